package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"voicenotes/export"
	"voicenotes/hotkey"
	"voicenotes/log"
	"voicenotes/markdown"
	"voicenotes/notes"
	"voicenotes/pipeline"
	"voicenotes/recording"
)

type statusMsg string
type savedMsg struct{}
type savedClearMsg struct{ seq int }
type recStateMsg recording.State
type recTickMsg time.Duration
type hotkeyMsg hotkey.Action
type processedMsg struct {
	noteID  string
	outcome pipeline.Outcome
}
type editedMsg struct {
	tab  noteTab
	text string
	err  error
}

type noteTab int

const (
	tabPolished noteTab = iota
	tabRaw
)

const listWidth = 32

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("255"))
	placeholderSt = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("241"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	helpKeyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Bold(true)
	recStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	savedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	savingStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("4")).Bold(true)
	tabOnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("255")).Underline(true)
)

type tuiModel struct {
	app *App
	ctx context.Context

	width, height int
	status        string
	recState      recording.State
	elapsed       time.Duration
	wave          string

	cursor   int
	tab      noteTab
	task     int
	saved    string
	savedSeq int

	editingTitle bool
	titleInput   []rune
}

func newTUIModel(ctx context.Context, app *App) tuiModel {
	return tuiModel{app: app, ctx: ctx, status: "Ready to record"}
}

func (m tuiModel) Init() tea.Cmd { return nil }

func (m tuiModel) notes() []notes.Note { return m.app.store.Notes() }

func (m tuiModel) recording() bool {
	st := m.app.session.State()
	return st == recording.Capturing || st == recording.AcquiringDevice
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.app.surface.SetCells(max(10, msg.Width-listWidth-4), 3)
		m.app.vis.Resize()

	case tea.KeyMsg:
		if m.editingTitle {
			return m.updateTitle(msg)
		}
		return m.updateKey(msg)

	case statusMsg:
		m.status = string(msg)

	case recStateMsg:
		m.recState = recording.State(msg)
		if m.recState == recording.Idle {
			m.wave = ""
		}

	case recTickMsg:
		m.elapsed = time.Duration(msg)

	case waveMsg:
		if m.recording() {
			m.wave = string(msg)
		}

	case savedMsg:
		m.savedSeq++
		m.saved = "Saved"
		seq := m.savedSeq
		return m, tea.Tick(1500*time.Millisecond, func(time.Time) tea.Msg { return savedClearMsg{seq} })

	case savedClearMsg:
		if msg.seq == m.savedSeq {
			m.saved = ""
		}

	case processedMsg:
		if msg.outcome.Err != nil {
			log.Warnf("note %s: %v", msg.noteID, msg.outcome.Err)
		}
		m.task = 0

	case editedMsg:
		if msg.err != nil {
			m.status = "Editor failed: " + msg.err.Error()
			break
		}
		if msg.tab == tabRaw {
			m.app.store.EditRaw(msg.text)
		} else {
			m.app.store.EditPolished(msg.text)
		}
		m.saved = "Saving..."

	case hotkeyMsg:
		switch hotkey.Action(msg) {
		case hotkey.ActionStart:
			if !m.recording() {
				return m, m.startCmd()
			}
		case hotkey.ActionStop:
			if m.recording() {
				return m, m.stopCmd()
			}
		}
	}
	return m, nil
}

func (m tuiModel) startCmd() tea.Cmd {
	return func() tea.Msg {
		m.app.startRecording()
		return nil
	}
}

func (m tuiModel) stopCmd() tea.Cmd {
	return func() tea.Msg {
		m.app.stopRecording(m.ctx)
		return nil
	}
}

// stopFirst stops an in-progress recording before the active note
// changes, so the recording is attached to the note it started on.
func (m tuiModel) stopFirst() {
	if m.recording() {
		m.app.stopBeforeSwitch(m.ctx)
	}
}

func (m tuiModel) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	list := m.notes()
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit

	case "r", " ":
		if m.recording() {
			return m, m.stopCmd()
		}
		return m, m.startCmd()

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(list)-1 {
			m.cursor++
		}

	case "enter":
		if m.cursor < len(list) {
			m.stopFirst()
			if _, err := m.app.store.Load(list[m.cursor].ID); err != nil {
				m.status = "Error: " + err.Error()
				break
			}
			m.task = 0
			m.status = "Note loaded. Ready to record."
		}

	case "n":
		m.stopFirst()
		if _, err := m.app.store.New(); err != nil {
			m.status = "Error: " + err.Error()
			break
		}
		m.cursor, m.task = 0, 0
		m.status = "New note created. Ready to record."

	case "d":
		if m.cursor < len(list) {
			target := list[m.cursor].ID
			if target == m.app.store.Active().ID {
				m.stopFirst()
			}
			if _, err := m.app.store.Delete(target); err != nil {
				m.status = "Error: " + err.Error()
				break
			}
			m.cursor = min(m.cursor, max(0, len(m.notes())-1))
			m.status = "Note deleted."
		}

	case "tab":
		if m.tab == tabPolished {
			m.tab = tabRaw
		} else {
			m.tab = tabPolished
		}

	case "t":
		m.editingTitle = true
		if v := m.app.store.View().Title; v.State == notes.Content {
			m.titleInput = []rune(v.Text)
		} else {
			m.titleInput = nil
		}

	case "i":
		return m, m.editCmd()

	case "[":
		if m.task > 0 {
			m.task--
		}
	case "]":
		if m.task < len(m.app.store.Checkboxes())-1 {
			m.task++
		}
	case "x":
		boxes := m.app.store.Checkboxes()
		if m.task < len(boxes) {
			if err := m.app.store.ToggleCheckbox(m.task, !boxes[m.task].Checked); err != nil {
				m.status = "Error: " + err.Error()
			}
		}

	case "e", "E":
		format := export.FormatDefault
		if msg.String() == "E" {
			format = export.FormatText
		}
		m.app.store.AutoSave()
		path, err := export.Export(m.app.store.Active(), format, m.app.cfg.ExportDir, time.Now())
		if err != nil {
			m.status = "Export failed: " + err.Error()
			break
		}
		m.status = "Exported to " + path

	case "y":
		if err := export.CopyToClipboard(m.app.store.Active()); err != nil {
			m.status = "Copy failed: " + err.Error()
			break
		}
		m.status = "Copied note to clipboard."
	}
	return m, nil
}

func (m tuiModel) updateTitle(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.editingTitle = false
	case tea.KeyEnter:
		m.editingTitle = false
		if err := m.app.store.SetTitle(string(m.titleInput)); err != nil {
			m.status = "Error saving title: " + err.Error()
		}
	case tea.KeyBackspace:
		if len(m.titleInput) > 0 {
			m.titleInput = m.titleInput[:len(m.titleInput)-1]
		}
	case tea.KeyCtrlU:
		m.titleInput = nil
	case tea.KeyRunes, tea.KeySpace:
		m.titleInput = append(m.titleInput, msg.Runes...)
	}
	return m, nil
}

// editCmd opens $EDITOR on the visible field of the active note.
func (m tuiModel) editCmd() tea.Cmd {
	tab := m.tab
	view := m.app.store.View()
	text := view.Polished.Value()
	if tab == tabRaw {
		text = view.Raw.Value()
	}
	f, err := os.CreateTemp("", "voicenotes-*.md")
	if err != nil {
		return func() tea.Msg { return editedMsg{err: err} }
	}
	path := f.Name()
	_, err = f.WriteString(text)
	f.Close()
	if err != nil {
		os.Remove(path)
		return func() tea.Msg { return editedMsg{err: err} }
	}

	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = "vi"
	}
	return tea.ExecProcess(exec.Command(editor, path), func(err error) tea.Msg {
		defer os.Remove(path)
		if err != nil {
			return editedMsg{err: err}
		}
		data, err := os.ReadFile(path)
		return editedMsg{tab: tab, text: strings.TrimRight(string(data), "\n"), err: err}
	})
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}
	list := m.renderList()
	body := m.renderNote(max(20, m.width-listWidth-3))
	return lipgloss.JoinHorizontal(lipgloss.Top, list, " ", body)
}

func (m tuiModel) renderList() string {
	active := m.app.store.Active().ID
	var b strings.Builder
	b.WriteString(dimStyle.Render("Notes") + "\n\n")
	for i, n := range m.notes() {
		marker := "  "
		if n.ID == active {
			marker = "● "
		}
		line := truncate(marker+n.DisplayTitle(), listWidth-2)
		date := time.UnixMilli(n.Timestamp).Format("Jan 2 15:04")
		if i == m.cursor {
			b.WriteString(selectedStyle.Render(line) + "\n")
		} else {
			b.WriteString(line + "\n")
		}
		b.WriteString(dimStyle.Render("  "+date) + "\n")
	}
	return lipgloss.NewStyle().Width(listWidth).Height(m.height).Render(b.String())
}

func (m tuiModel) renderNote(width int) string {
	view := m.app.store.View()
	var b strings.Builder

	// title
	switch {
	case m.editingTitle:
		b.WriteString(titleStyle.Render(string(m.titleInput)+"▏") + "\n")
	case m.recording():
		b.WriteString(titleStyle.Render(liveTitle(view.Title)) + "\n")
	case view.Title.State == notes.Content:
		b.WriteString(titleStyle.Render(view.Title.Text) + "\n")
	default:
		b.WriteString(placeholderSt.Render(notes.PlaceholderTitle) + "\n")
	}

	// recorder
	if m.recording() {
		b.WriteString(recStyle.Render("● REC "+recording.FormatElapsed(m.elapsed)) + "\n")
		if m.wave != "" {
			b.WriteString(m.wave + "\n")
		}
	}
	status := m.status
	if m.saved != "" {
		style := savedStyle
		if m.saved != "Saved" {
			style = savingStyle
		}
		status += "  " + style.Render(m.saved)
	}
	b.WriteString(dimStyle.Render(status) + "\n\n")

	// tabs
	pol, raw := "Polished", "Raw"
	if m.tab == tabPolished {
		pol = tabOnStyle.Render(pol)
	} else {
		raw = tabOnStyle.Render(raw)
	}
	b.WriteString(pol + "  " + raw + "\n\n")

	if m.tab == tabRaw {
		b.WriteString(fieldText(view.Raw, "Raw transcription will appear here...", width))
	} else {
		b.WriteString(fieldText(polishedPreview(view.Polished), "Your polished notes will appear here...", width))
		b.WriteString(m.renderTasks(width))
	}

	b.WriteString("\n\n" + helpLine())
	return lipgloss.NewStyle().Width(width).Height(m.height).Render(b.String())
}

func (m tuiModel) renderTasks(width int) string {
	boxes := m.app.store.Checkboxes()
	if len(boxes) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\n" + dimStyle.Render("Tasks ([ ] to move, x to toggle)") + "\n")
	for i, c := range boxes {
		mark := "[ ]"
		if c.Checked {
			mark = "[x]"
		}
		line := truncate(mark+" "+c.Label, width-2)
		if i == m.task {
			b.WriteString(selectedStyle.Render("> "+line) + "\n")
		} else {
			b.WriteString("  " + line + "\n")
		}
	}
	return b.String()
}

// liveTitle is the heading shown while recording.
func liveTitle(title notes.Field) string {
	if title.State != notes.Content || title.Text == notes.PlaceholderTitle {
		return "New Recording"
	}
	return title.Text
}

func polishedPreview(f notes.Field) notes.Field {
	if f.State != notes.Content {
		return f
	}
	text, err := markdown.Flatten(f.Text)
	if err != nil {
		return f
	}
	return notes.ContentField(text)
}

func fieldText(f notes.Field, hint string, width int) string {
	if f.State != notes.Content {
		return placeholderSt.Render(hint)
	}
	var lines []string
	for _, para := range strings.Split(f.Text, "\n") {
		lines = append(lines, wrapText(para, width)...)
	}
	return strings.Join(lines, "\n")
}

func helpLine() string {
	keys := []struct{ k, d string }{
		{"r", "record"}, {"n", "new"}, {"enter", "open"}, {"d", "delete"}, {"t", "title"},
		{"i", "edit"}, {"tab", "raw/polished"}, {"e/E", "export md/txt"}, {"y", "copy"}, {"q", "quit"},
	}
	var parts []string
	for _, k := range keys {
		parts = append(parts, helpKeyStyle.Render(k.k)+helpStyle.Render(" "+k.d))
	}
	return strings.Join(parts, helpStyle.Render(" · "))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 1 || len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// wrapText breaks text on spaces so no line is wider than width runes.
func wrapText(text string, width int) []string {
	if text == "" {
		return []string{""}
	}
	width = max(1, width)
	var lines []string
	r := []rune(text)
	for len(r) > width {
		split := width
		for i := width; i > 0; i-- {
			if r[i] == ' ' {
				split = i
				break
			}
		}
		lines = append(lines, string(r[:split]))
		r = []rune(strings.TrimLeft(string(r[split:]), " "))
	}
	if len(r) > 0 {
		lines = append(lines, string(r))
	}
	return lines
}

func runTUI(ctx context.Context, app *App) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newTUIModel(ctx, app), tea.WithAltScreen(), tea.WithContext(ctx))
	app.attach(ctx, p.Send)

	go app.runAutoSave(ctx)

	if app.cfg.Hotkey {
		hk := hotkey.New()
		if err := hk.Register(); err != nil {
			log.Warnf("hotkey: %v", err)
			app.report(fmt.Sprintf("Hotkey unavailable: %v", err))
		} else {
			defer hk.Unregister()
			tr := hotkey.NewTrigger(ctx, hk, hotkey.DefaultHoldThreshold)
			go func() {
				for a := range tr.Actions() {
					p.Send(hotkeyMsg(a))
				}
			}()
		}
	}

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
