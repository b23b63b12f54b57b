package markdown

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var blockElements = map[atom.Atom]bool{
	atom.P: true, atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true,
	atom.H5: true, atom.H6: true, atom.Li: true, atom.Pre: true,
	atom.Blockquote: true, atom.Div: true,
}

var listElements = map[atom.Atom]bool{atom.Ul: true, atom.Ol: true}

var extraNewlines = regexp.MustCompile(`\n{3,}`)

// PlainText flattens markup: block elements end with a newline, list
// items start with "* " and task checkboxes become "[x] " or "[ ] ".
func PlainText(markup string) (string, error) {
	nodes, err := html.ParseFragment(strings.NewReader(markup), &html.Node{
		Type:     html.ElementNode,
		Data:     "div",
		DataAtom: atom.Div,
	})
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, n := range nodes {
		flatten(&b, n)
	}
	out := extraNewlines.ReplaceAllString(b.String(), "\n\n")
	return strings.TrimSpace(out), nil
}

func flatten(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		data := n.Data
		if p := n.Parent; p != nil && listElements[p.DataAtom] && strings.TrimSpace(data) == "" {
			return
		}
		if strings.HasSuffix(b.String(), "] ") {
			data = strings.TrimLeft(data, " ")
		}
		b.WriteString(data)
		return
	case html.ElementNode:
	default:
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			flatten(b, c)
		}
		return
	}

	switch n.DataAtom {
	case atom.Li:
		b.WriteString("* ")
	case atom.Br:
		b.WriteString("\n")
		return
	case atom.Input:
		if attr(n, "type") == "checkbox" {
			if hasAttr(n, "checked") {
				b.WriteString("[x] ")
			} else {
				b.WriteString("[ ] ")
			}
		}
		return
	case atom.Script, atom.Style:
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		flatten(b, c)
	}
	if blockElements[n.DataAtom] {
		b.WriteString("\n")
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}
