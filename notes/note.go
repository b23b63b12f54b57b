package notes

import (
	"sort"
	"strings"
)

const (
	PlaceholderTitle = "Note Title"
	StorageKey       = "voice-notes-app-data"
)

// Note is one stored note. Timestamp is the last modification in Unix
// milliseconds.
type Note struct {
	ID               string `json:"id"`
	Title            string `json:"title"`
	RawTranscription string `json:"rawTranscription"`
	PolishedNote     string `json:"polishedNote"`
	Timestamp        int64  `json:"timestamp"`
}

// IsMarkup reports whether the polished body is already rendered markup
// rather than Markdown source.
func (n Note) IsMarkup() bool {
	return strings.HasPrefix(strings.TrimSpace(n.PolishedNote), "<")
}

// DisplayTitle is the title shown in lists, falling back to the
// placeholder for untitled notes.
func (n Note) DisplayTitle() string {
	if t := strings.TrimSpace(n.Title); t != "" {
		return t
	}
	return PlaceholderTitle
}

type FieldState int

const (
	Empty FieldState = iota
	Placeholder
	Content
)

// Field is an editable text area. A field showing its placeholder hint is
// logically empty; only Content carries text.
type Field struct {
	State FieldState
	Text  string
}

func EmptyField() Field       { return Field{State: Empty} }
func PlaceholderField() Field { return Field{State: Placeholder} }

func ContentField(s string) Field {
	if s == "" {
		return EmptyField()
	}
	return Field{State: Content, Text: s}
}

// Value is the logical content of the field.
func (f Field) Value() string {
	if f.State == Content {
		return f.Text
	}
	return ""
}

func (f Field) IsPlaceholder() bool { return f.State == Placeholder }

// View is the editing surface of the active note.
type View struct {
	Title    Field
	Raw      Field
	Polished Field
}

func viewOf(n Note) View {
	v := View{
		Title:    ContentField(n.Title),
		Raw:      ContentField(n.RawTranscription),
		Polished: ContentField(n.PolishedNote),
	}
	if n.Title == PlaceholderTitle || strings.TrimSpace(n.Title) == "" {
		v.Title = PlaceholderField()
	}
	if v.Raw.State == Empty {
		v.Raw = PlaceholderField()
	}
	if v.Polished.State == Empty {
		v.Polished = PlaceholderField()
	}
	return v
}

type fields struct {
	title, raw, polished string
}

// logical maps the view to the values that are stored. An untitled note
// is stored with the placeholder title.
func (v View) logical() fields {
	title := strings.TrimSpace(v.Title.Value())
	if title == "" {
		title = PlaceholderTitle
	}
	return fields{title: title, raw: v.Raw.Value(), polished: v.Polished.Value()}
}

// fieldsOf is the stored counterpart of logical; a blank stored title
// compares equal to the placeholder.
func fieldsOf(n Note) fields {
	title := strings.TrimSpace(n.Title)
	if title == "" {
		title = PlaceholderTitle
	}
	return fields{title: title, raw: n.RawTranscription, polished: n.PolishedNote}
}

// sortNotes orders notes most recent first.
func sortNotes(list []Note) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Timestamp > list[j].Timestamp
	})
}
