package pipeline

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const maxTitleRunes = 60

var (
	headingMarker  = regexp.MustCompile(`^#+\s+`)
	leadingMarkup  = regexp.MustCompile("^[\\*_`#\\->\\s\\[\\]\\(.\\d)]+")
	trailingMarkup = regexp.MustCompile("[\\*_`#]+$")
)

// ExtractTitle derives a note title from polished Markdown. The first
// heading line wins. Otherwise the first non-empty line is used once its
// list, quote and numbering markup is stripped, if more than three
// characters remain; it is cut to 60 characters. ok is false when
// neither yields a title.
func ExtractTitle(markdown string) (title string, ok bool) {
	lines := strings.Split(markdown, "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "#") {
			continue
		}
		if t := strings.TrimSpace(headingMarker.ReplaceAllString(line, "")); t != "" {
			return t, true
		}
	}

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		t := leadingMarkup.ReplaceAllString(line, "")
		t = strings.TrimSpace(trailingMarkup.ReplaceAllString(t, ""))
		if utf8.RuneCountInString(t) <= 3 {
			return "", false
		}
		if r := []rune(t); len(r) > maxTitleRunes {
			t = string(r[:maxTitleRunes]) + "..."
		}
		return t, true
	}
	return "", false
}
