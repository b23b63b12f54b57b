// Package markdown renders note bodies. Markdown is rendered as GitHub
// flavoured with hard line breaks; bodies that are already markup pass
// through untouched.
package markdown

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var md = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(
		html.WithHardWraps(),
		html.WithUnsafe(),
	),
)

var disabledAttr = regexp.MustCompile(`\s+disabled=""`)

// IsMarkup reports whether body is pre-rendered markup.
func IsMarkup(body string) bool {
	return strings.HasPrefix(strings.TrimSpace(body), "<")
}

// ToHTML renders body. Task list checkboxes come out enabled so they can
// be toggled.
func ToHTML(body string) (string, error) {
	if IsMarkup(body) {
		return body, nil
	}
	var buf bytes.Buffer
	if err := md.Convert([]byte(body), &buf); err != nil {
		return "", err
	}
	return disabledAttr.ReplaceAllString(buf.String(), ""), nil
}

// Flatten renders body and reduces it to plain text.
func Flatten(body string) (string, error) {
	rendered, err := ToHTML(body)
	if err != nil {
		return "", err
	}
	return PlainText(rendered)
}
