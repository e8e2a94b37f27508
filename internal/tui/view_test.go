package tui

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestViewListsDevices(t *testing.T) {
	src := &fakeSource{snap: sampleSnapshot()}
	m := loaded(t, src, false)

	out := m.View()
	assert.Contains(t, out, "keyglow devices")
	assert.Contains(t, out, "Keyboard")
	assert.Contains(t, out, "Strip")
	assert.Contains(t, out, "Light")
	assert.Contains(t, out, "e enable")
	assert.NotContains(t, out, "last error")
}

func TestViewShowsLastErrorOfSelection(t *testing.T) {
	src := &fakeSource{snap: sampleSnapshot()}
	m := loaded(t, src, false)
	m.cursor = 1

	assert.Contains(t, m.View(), "connection refused")
}

func TestViewReadOnlyFooter(t *testing.T) {
	m := loaded(t, &fakeSource{snap: sampleSnapshot()}, true)
	out := m.View()
	assert.NotContains(t, out, "e enable")
	assert.Contains(t, out, "q quit")
}

func TestViewEmptyAndError(t *testing.T) {
	m := NewModel(&fakeSource{}, time.Second, false)
	updated, _ := m.Update(DevicesMsg{Err: errors.New("dial unix: no such file")})
	m = updated.(Model)

	out := m.View()
	assert.Contains(t, out, "No devices reported")
	assert.Contains(t, out, "poll failed")
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "short", truncate("short", 10))
	require.Equal(t, "abcd…", truncate("abcdefgh", 5))
	require.Equal(t, "abc", truncate("abc", 0))
}
