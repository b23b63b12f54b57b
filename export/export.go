// Package export writes notes out as files or to the system clipboard.
package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/atotto/clipboard"

	"voicenotes/log"
	"voicenotes/markdown"
	"voicenotes/notes"
)

type Format int

const (
	// FormatDefault writes the body as stored: Markdown or markup.
	FormatDefault Format = iota
	// FormatText writes the plain-text flattening.
	FormatText
)

func (f Format) String() string {
	if f == FormatText {
		return "text"
	}
	return "default"
}

// ParseFormat accepts "md", "markdown", "html", "default", "txt" and "text".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default", "md", "markdown", "html":
		return FormatDefault, nil
	case "txt", "text":
		return FormatText, nil
	}
	return FormatDefault, fmt.Errorf("unknown export format %q", s)
}

var ErrEmptyNote = errors.New("note has no content to export")

var (
	spaces   = regexp.MustCompile(`\s+`)
	nonWord  = regexp.MustCompile(`[^\w-]+`)
	dashes   = regexp.MustCompile(`-{2,}`)
	edgeDash = regexp.MustCompile(`^-+|-+$`)
)

// Slugify turns a title into a filename stem.
func Slugify(title string) string {
	s := strings.ToLower(title)
	s = spaces.ReplaceAllString(s, "-")
	s = nonWord.ReplaceAllString(s, "")
	s = dashes.ReplaceAllString(s, "-")
	return edgeDash.ReplaceAllString(s, "")
}

// Filename is the base name, without extension, used for note n.
func Filename(n notes.Note, now time.Time) string {
	title := strings.TrimSpace(n.Title)
	if title != "" && title != notes.PlaceholderTitle {
		if slug := Slugify(title); slug != "" {
			return slug
		}
	}
	return "note-" + now.Format("2006-01-02-1504")
}

// Body returns the exported content and its file extension.
func Body(n notes.Note, format Format) (string, string, error) {
	if strings.TrimSpace(n.PolishedNote) == "" {
		return "", "", ErrEmptyNote
	}
	if format == FormatText {
		text, err := markdown.Flatten(n.PolishedNote)
		if err != nil {
			return "", "", fmt.Errorf("flatten note: %w", err)
		}
		return text, ".txt", nil
	}
	if n.IsMarkup() {
		return n.PolishedNote, ".html", nil
	}
	return n.PolishedNote, ".md", nil
}

// Export writes note n into dir and returns the written path.
func Export(n notes.Note, format Format, dir string, now time.Time) (string, error) {
	body, ext, err := Body(n, format)
	if err != nil {
		return "", err
	}
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(dir, Filename(n, now)+ext)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}
	log.Infof("exported note %s to %s (%s)", n.ID, path, format)
	return path, nil
}

// writeClipboard is swapped out in tests.
var writeClipboard = clipboard.WriteAll

// CopyToClipboard copies the plain-text flattening of n.
func CopyToClipboard(n notes.Note) error {
	body, _, err := Body(n, FormatText)
	if err != nil {
		return err
	}
	if clipboard.Unsupported {
		return errors.New("clipboard not available on this system")
	}
	if err := writeClipboard(body); err != nil {
		return fmt.Errorf("copy to clipboard: %w", err)
	}
	return nil
}
