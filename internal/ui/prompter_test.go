package ui

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinePrompter(t *testing.T) {
	ctx := context.Background()
	var out bytes.Buffer
	p := NewLinePrompter(strings.NewReader("  0.5 \n2\n7\nY\nlast"), &out)

	answer, err := p.Ask(ctx, "amount: ")
	require.NoError(t, err)
	assert.Equal(t, "0.5", answer)
	assert.Contains(t, out.String(), "amount: ")

	idx, err := p.Choose(ctx, "pick", []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	assert.Contains(t, out.String(), "2. b")

	_, err = p.Choose(ctx, "pick", []string{"a", "b"})
	assert.ErrorIs(t, err, ErrInvalidChoice)

	ok, err := p.Confirm(ctx, "proceed?")
	require.NoError(t, err)
	assert.True(t, ok)

	answer, err = p.Ask(ctx, "> ")
	require.NoError(t, err)
	assert.Equal(t, "last", answer)

	_, err = p.Ask(ctx, "> ")
	assert.ErrorIs(t, err, io.EOF)
	_, err = p.Ask(ctx, "> ")
	assert.ErrorIs(t, err, io.EOF)
}

func TestLinePrompter_Cancelled(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	p := NewLinePrompter(pr, io.Discard)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Ask(ctx, "> ")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsYes(t *testing.T) {
	for _, in := range []string{"yes", "y", "Y", " YES "} {
		assert.True(t, isYes(in), in)
	}
	for _, in := range []string{"", "no", "n", "yep"} {
		assert.False(t, isYes(in), in)
	}
}
