package ui

import (
	"fmt"
	"io"

	"github.com/schollz/progressbar/v3"
)

// ProgressBar counts audited packages. A nil or disabled bar is a no-op,
// so callers never check whether progress output is on.
type ProgressBar struct {
	bar *progressbar.ProgressBar
}

// NewProgressBar creates a counting bar on w. Pass max -1 when the number of
// APKs is not known until the bundle has been extracted.
func NewProgressBar(w io.Writer, max int, description string, enabled bool) *ProgressBar {
	if !enabled {
		return &ProgressBar{}
	}

	return &ProgressBar{bar: progressbar.NewOptions(max,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(25),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(w) }),
		progressbar.OptionSetRenderBlankState(true),
	)}
}

func (p *ProgressBar) active() bool {
	return p != nil && p.bar != nil
}

// Add advances the bar by n
func (p *ProgressBar) Add(n int) error {
	if !p.active() {
		return nil
	}
	return p.bar.Add(n)
}

// Increment advances the bar by one package
func (p *ProgressBar) Increment() {
	_ = p.Add(1)
}

// SetTotal sets the bar maximum once the bundle has been extracted
func (p *ProgressBar) SetTotal(n int) {
	if p.active() {
		p.bar.ChangeMax(n)
	}
}

// Finish completes the bar
func (p *ProgressBar) Finish() error {
	if !p.active() {
		return nil
	}
	return p.bar.Finish()
}

// IsFinished reports whether the bar reached its maximum. A disabled bar
// always reports true.
func (p *ProgressBar) IsFinished() bool {
	if !p.active() {
		return true
	}
	return p.bar.IsFinished()
}
