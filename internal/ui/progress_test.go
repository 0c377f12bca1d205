package ui

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressBar(t *testing.T) {
	var buf bytes.Buffer
	bar := NewProgressBar(&buf, 3, "Auditing", true)

	bar.Increment()
	bar.Increment()
	require.NoError(t, bar.Add(1))
	assert.True(t, bar.IsFinished())
	assert.Contains(t, buf.String(), "Auditing")
}

func TestProgressBar_SetTotal(t *testing.T) {
	var buf bytes.Buffer
	bar := NewProgressBar(&buf, -1, "Auditing", true)

	bar.SetTotal(2)
	bar.Increment()
	assert.False(t, bar.IsFinished())
	bar.Increment()
	assert.True(t, bar.IsFinished())
}

func TestProgressBar_Disabled(t *testing.T) {
	var buf bytes.Buffer
	bar := NewProgressBar(&buf, 3, "Auditing", false)

	bar.Increment()
	assert.NoError(t, bar.Add(2))
	assert.NoError(t, bar.Finish())
	assert.True(t, bar.IsFinished())
	assert.Empty(t, buf.String())
}

func TestProgressBar_Nil(t *testing.T) {
	var bar *ProgressBar
	assert.NotPanics(t, func() {
		bar.Increment()
		_ = bar.Finish()
		bar.SetTotal(4)
	})
}
