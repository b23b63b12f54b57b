package notes

import (
	"fmt"
	"regexp"
	"strings"
)

// taskItem matches a list item that opens with a task box; group 1 is the
// box state.
var taskItem = regexp.MustCompile(`^[ \t]*(?:[-*+]|\d{1,9}[.)])[ \t]+\[([ xX])\]`)

// Checkbox is one task marker in a Markdown body, numbered in source order.
type Checkbox struct {
	Index   int
	Checked bool
	Label   string
}

// taskBoxes returns the byte spans of the "[ ]" boxes that render as
// checkboxes: boxes opening a list item, outside fenced code.
func taskBoxes(src string) [][2]int {
	var spans [][2]int
	fence := ""
	off := 0
	for _, line := range strings.SplitAfter(src, "\n") {
		start := off
		off += len(line)
		trimmed := strings.TrimLeft(line, " \t")
		if fence != "" {
			if strings.HasPrefix(trimmed, fence) {
				fence = ""
			}
			continue
		}
		if f := fenceOf(trimmed); f != "" {
			fence = f
			continue
		}
		if m := taskItem.FindStringSubmatchIndex(line); m != nil {
			spans = append(spans, [2]int{start + m[2] - 1, start + m[3] + 1})
		}
	}
	return spans
}

func fenceOf(line string) string {
	for _, c := range []string{"```", "~~~"} {
		if strings.HasPrefix(line, c) {
			return c
		}
	}
	return ""
}

// ParseCheckboxes lists the task markers of src in order of appearance.
func ParseCheckboxes(src string) []Checkbox {
	spans := taskBoxes(src)
	out := make([]Checkbox, 0, len(spans))
	for i, sp := range spans {
		rest := src[sp[1]:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[:nl]
		}
		out = append(out, Checkbox{
			Index:   i,
			Checked: src[sp[0]+1] != ' ',
			Label:   strings.TrimSpace(rest),
		})
	}
	return out
}

// SetCheckbox rewrites the index-th task marker of src. All other bytes
// are left untouched. Markers are counted in source order, which matches
// rendered order for flat lists.
func SetCheckbox(src string, index int, checked bool) (string, error) {
	spans := taskBoxes(src)
	if index < 0 || index >= len(spans) {
		return src, fmt.Errorf("checkbox %d out of range (have %d)", index, len(spans))
	}
	box := "[ ]"
	if checked {
		box = "[x]"
	}
	sp := spans[index]
	return src[:sp[0]] + box + src[sp[1]:], nil
}
