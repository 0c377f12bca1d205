package ui

import (
	"errors"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/manifoldco/promptui"
)

// ErrCancelled is returned when the user interrupts a prompt with Ctrl+C
var ErrCancelled = errors.New("operation cancelled by user")

// ConfirmPrompt asks a y/N question on the terminal. Answering no, or just
// pressing enter, is a plain false; only an interrupt is an error.
func ConfirmPrompt(label string) (bool, error) {
	prompt := promptui.Prompt{
		Label:     label,
		IsConfirm: true,
	}
	return confirmResult(prompt.Run())
}

func confirmResult(answer string, err error) (bool, error) {
	switch {
	case errors.Is(err, promptui.ErrAbort):
		return false, nil
	case errors.Is(err, promptui.ErrInterrupt), errors.Is(err, promptui.ErrEOF):
		return false, ErrCancelled
	case err != nil:
		return false, err
	}
	answer = strings.TrimSpace(answer)
	return strings.EqualFold(answer, "y") || strings.EqualFold(answer, "yes"), nil
}

// FuzzyMatch reports whether query fuzzily matches any of the candidates.
// An empty query matches everything.
func FuzzyMatch(query string, candidates ...string) bool {
	query = strings.TrimSpace(query)
	if query == "" {
		return true
	}
	for _, c := range candidates {
		if fuzzy.MatchNormalizedFold(query, c) {
			return true
		}
	}
	return false
}
