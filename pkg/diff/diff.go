// Package diff renders line diffs of configuration documents.
package diff

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// MaxLines caps the rendered output.
const MaxLines = 2000

const truncateMessage = "... (diff truncated) ..."

// Lines compares before and after line by line and returns the changes
// with " ", "-" and "+" prefixes under a ---/+++ header. Identical input
// yields "".
func Lines(before, after []byte, beforeLabel, afterLabel string) string {
	if bytes.Equal(before, after) {
		return ""
	}

	dmp := diffmatchpatch.New()
	a, b, table := dmp.DiffLinesToChars(string(before), string(after))
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), table)

	var out []string
	out = append(out, "--- "+beforeLabel, "+++ "+afterLabel)
	for _, d := range diffs {
		prefix := " "
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			prefix = "-"
		case diffmatchpatch.DiffInsert:
			prefix = "+"
		}
		for _, line := range splitLines(d.Text) {
			out = append(out, prefix+line)
		}
	}

	if len(out) > MaxLines {
		out = append(out[:MaxLines], truncateMessage)
	}
	return strings.Join(out, "\n") + "\n"
}

// Stats counts removed and added lines.
func Stats(before, after []byte) (removed, added int) {
	dmp := diffmatchpatch.New()
	a, b, table := dmp.DiffLinesToChars(string(before), string(after))
	for _, d := range dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), table) {
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			removed += len(splitLines(d.Text))
		case diffmatchpatch.DiffInsert:
			added += len(splitLines(d.Text))
		}
	}
	return removed, added
}

// Summary formats Stats for humans.
func Summary(before, after []byte) string {
	removed, added := Stats(before, after)
	return fmt.Sprintf("%d line(s) removed, %d line(s) added", removed, added)
}

func splitLines(text string) []string {
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}
