package diff

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinesIdentical(t *testing.T) {
	doc := []byte("Keyboard:\n  ESC: F1\n")
	assert.Empty(t, Lines(doc, doc, "current", "new"))
}

func TestLinesSingleChange(t *testing.T) {
	before := []byte("Keyboard:\n  ESC: F1\n  F2: F3\n")
	after := []byte("Keyboard:\n  ESC: F4\n  F2: F3\n")

	out := Lines(before, after, "current", "new")
	require.NotEmpty(t, out)
	assert.True(t, strings.HasPrefix(out, "--- current\n+++ new\n"))
	assert.Contains(t, out, "\n Keyboard:\n")
	assert.Contains(t, out, "\n-  ESC: F1\n")
	assert.Contains(t, out, "\n+  ESC: F4\n")
	assert.Contains(t, out, "\n   F2: F3\n")
}

func TestLinesFromEmpty(t *testing.T) {
	out := Lines(nil, []byte("Strip:\n  ESC: F1\n"), "current", "new")
	assert.Contains(t, out, "+Strip:")
	assert.Contains(t, out, "+  ESC: F1")
	assert.NotContains(t, out, "\n-")
}

func TestLinesTruncates(t *testing.T) {
	var b strings.Builder
	for i := 0; i < MaxLines+10; i++ {
		b.WriteString("x\n")
	}
	out := Lines(nil, []byte(b.String()), "a", "b")
	assert.Contains(t, out, truncateMessage)
	assert.LessOrEqual(t, strings.Count(out, "\n"), MaxLines+1)
}

func TestStats(t *testing.T) {
	removed, added := Stats([]byte("a\nb\nc\n"), []byte("a\nc\nd\ne\n"))
	assert.Equal(t, 1, removed)
	assert.Equal(t, 2, added)
	assert.Equal(t, "1 line(s) removed, 2 line(s) added", Summary([]byte("a\nb\nc\n"), []byte("a\nc\nd\ne\n")))
}
