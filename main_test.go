package main

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"voicenotes/audio"
	"voicenotes/config"
	"voicenotes/encoder"
	"voicenotes/kv"
	"voicenotes/notes"
	"voicenotes/pipeline"
	"voicenotes/recording"
	"voicenotes/transcriber"
	"voicenotes/visualizer"
)

func testConfig() *config.Config {
	return &config.Config{
		Format:           encoder.FormatWAV,
		AutoSaveInterval: time.Hour,
		TickInterval:     10 * time.Millisecond,
		FrameInterval:    16 * time.Millisecond,
		Storage:          config.Storage{Backend: kv.BackendMemory, Key: notes.StorageKey},
	}
}

func testApp(t *testing.T, gen transcriber.Generator) (*App, *audio.FakeContext) {
	t.Helper()
	actx := audio.NewSineContext(500*time.Millisecond, false)
	var pipe *pipeline.Pipeline
	if gen != nil {
		pipe = pipeline.New(gen, transcriber.DefaultModels("gemini"))
	}
	app, err := newApp(context.Background(), testConfig(), appDeps{
		audio: actx,
		pipe:  pipe,
		sched: visualizer.NewManualScheduler(),
	})
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	t.Cleanup(app.Close)
	return app, actx
}

func waitAudio(t *testing.T, actx *audio.FakeContext) {
	t.Helper()
	caps := actx.Captures()
	if len(caps) == 0 {
		t.Fatal("no capture opened")
	}
	select {
	case <-caps[len(caps)-1].AudioDone():
	case <-time.After(2 * time.Second):
		t.Fatal("fake audio not delivered")
	}
}

func TestRecordTranscribePolish(t *testing.T) {
	gen := &transcriber.Fake{Transcript: "buy milk and eggs", Polished: "# Shopping\n\n- [ ] milk\n- [ ] eggs"}
	app, actx := testApp(t, gen)
	id := app.store.Active().ID

	app.startRecording()
	if !app.session.Capturing() {
		t.Fatal("session not capturing after start")
	}
	waitAudio(t, actx)
	app.stopRecording(context.Background())

	n, ok := app.store.Get(id)
	if !ok {
		t.Fatal("note missing")
	}
	if n.RawTranscription != "buy milk and eggs" || n.Title != "Shopping" {
		t.Errorf("note = %+v", n)
	}
	if got := len(app.store.Checkboxes()); got != 2 {
		t.Errorf("checkboxes = %d", got)
	}
	if calls := gen.Calls(); len(calls) != 2 {
		t.Errorf("generator calls = %d, want 2", len(calls))
	}
}

func TestStopWithoutProvider(t *testing.T) {
	app, _ := testApp(t, nil)
	out := app.process(context.Background(), app.store.Active().ID, recording.Artifact{Data: []byte{1}})
	if !errors.Is(out.Err, transcriber.ErrNoProvider) {
		t.Errorf("err = %v", out.Err)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{audio.Classify(errors.New("NotAllowedError: permission denied")), "Microphone permission denied"},
		{audio.Classify(errors.New("Requested device not found")), "No microphone found"},
		{audio.Classify(errors.New("device busy")), "Cannot access microphone"},
		{recording.ErrNoAudioCaptured, "No audio data captured"},
		{&pipeline.StageError{Stage: pipeline.StageTranscribe, Err: pipeline.ErrEmptyResult}, pipeline.StatusTranscribeEmpty},
		{&pipeline.StageError{Stage: pipeline.StagePolish, Err: errors.New("503")}, pipeline.StatusPolishFailed},
		{transcriber.ErrNoProvider, "No speech provider"},
		{errors.New("boom"), "Error: boom"},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); !strings.HasPrefix(got, tt.want) {
			t.Errorf("statusFor(%v) = %q, want prefix %q", tt.err, got, tt.want)
		}
	}
	if statusFor(nil) != "" {
		t.Error("statusFor(nil) not empty")
	}
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(m tuiModel, keys ...string) tuiModel {
	for _, k := range keys {
		next, _ := m.Update(key(k))
		m = next.(tuiModel)
	}
	return m
}

func TestTUINotesAndTitle(t *testing.T) {
	app, _ := testApp(t, nil)
	m := newTUIModel(context.Background(), app)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	m = next.(tuiModel)

	m = press(m, "n")
	if len(app.store.Notes()) != 2 {
		t.Fatalf("notes = %d, want 2", len(app.store.Notes()))
	}
	if m.status != "New note created. Ready to record." {
		t.Errorf("status = %q", m.status)
	}

	m = press(m, "t", "P", "l", "a", "n", "enter")
	if got := app.store.Active().Title; got != "Plan" {
		t.Errorf("title = %q", got)
	}
	stored, _ := app.store.Get(app.store.Active().ID)
	if stored.Title != "Plan" {
		t.Errorf("stored title = %q", stored.Title)
	}

	m = press(m, "j", "enter")
	if app.store.Active().ID != app.store.Notes()[1].ID {
		t.Error("enter did not load the selected note")
	}

	m = press(m, "d")
	if len(app.store.Notes()) != 1 {
		t.Errorf("notes after delete = %d", len(app.store.Notes()))
	}
	if !strings.Contains(m.View(), "Plan") {
		t.Errorf("view missing remaining note:\n%s", m.View())
	}
}

func TestTUIToggleCheckbox(t *testing.T) {
	app, _ := testApp(t, nil)
	id := app.store.Active().ID
	if _, err := app.store.ApplyPolish(id, "- [ ] one\n- [ ] two", "", false); err != nil {
		t.Fatal(err)
	}
	m := newTUIModel(context.Background(), app)
	press(m, "]", "x")
	n, _ := app.store.Get(id)
	if n.PolishedNote != "- [ ] one\n- [x] two" {
		t.Errorf("polished = %q", n.PolishedNote)
	}
}

func TestTUIExport(t *testing.T) {
	app, _ := testApp(t, nil)
	app.cfg.ExportDir = t.TempDir()
	id := app.store.Active().ID
	app.store.ApplyPolish(id, "# Trip\n\npack bags", "Trip", true)

	m := newTUIModel(context.Background(), app)
	m = press(m, "e")
	path := filepath.Join(app.cfg.ExportDir, "trip.md")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("export missing: %v (status %q)", err, m.status)
	}
	if m.status != "Exported to "+path {
		t.Errorf("status = %q", m.status)
	}
}

func TestTUILoadWhileRecordingStops(t *testing.T) {
	gen := &transcriber.Fake{Transcript: "first", Polished: "# First\n\nbody"}
	app, actx := testApp(t, gen)
	first := app.store.Active().ID
	app.store.New()
	app.store.Load(first)

	app.startRecording()
	waitAudio(t, actx)

	m := newTUIModel(context.Background(), app)
	press(m, "enter")
	if app.store.Active().ID == first {
		t.Fatal("enter did not switch notes")
	}
	if app.session.Capturing() {
		t.Fatal("recording still running after loading another note")
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if n, _ := app.store.Get(first); n.RawTranscription == "first" {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("recording was not transcribed into the note it started on")
}

func TestLiveTitle(t *testing.T) {
	if got := liveTitle(notes.PlaceholderField()); got != "New Recording" {
		t.Errorf("placeholder = %q", got)
	}
	if got := liveTitle(notes.ContentField("Standup")); got != "Standup" {
		t.Errorf("content = %q", got)
	}
}

func TestWrapText(t *testing.T) {
	got := wrapText("the quick brown fox jumps", 10)
	want := []string{"the quick", "brown fox", "jumps"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("wrapText = %q", got)
	}
	if got := wrapText("", 5); len(got) != 1 || got[0] != "" {
		t.Errorf("empty = %q", got)
	}
}

func TestTermSurface(t *testing.T) {
	var frames []string
	s := newTermSurface(func(msg tea.Msg) { frames = append(frames, string(msg.(waveMsg))) })
	s.SetCells(4, 1)
	w, h := s.Size()
	if w != 4 || h != 2 {
		t.Fatalf("size = %v x %v", w, h)
	}
	s.Resize(4, 2)
	s.FillRect(0, 0, 1, 2)
	s.FillRect(1, 0, 1, 1)
	s.FillRect(2, 1, 1, 1)
	s.FillRect(10, 10, 5, 5)
	s.Present()
	if len(frames) != 1 {
		t.Fatalf("frames = %d", len(frames))
	}
	for _, want := range []string{"█", "▀", "▄"} {
		if !strings.Contains(frames[0], want) {
			t.Errorf("frame %q missing %q", frames[0], want)
		}
	}
}

func writeWav(t *testing.T, d time.Duration) string {
	t.Helper()
	samples := make([]int16, int(d.Seconds()*encoder.SampleRate))
	for i := range samples {
		samples[i] = int16(5000 * math.Sin(2*math.Pi*300*float64(i)/encoder.SampleRate))
	}
	data, err := encoder.EncodeWav(samples)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "clip.wav")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestTranscribeFile(t *testing.T) {
	store, err := notes.Open(kv.NewMemory())
	if err != nil {
		t.Fatal(err)
	}
	gen := &transcriber.Fake{Transcript: "call the dentist", Polished: "# Dentist\n\nCall the dentist."}
	pipe := pipeline.New(gen, transcriber.DefaultModels("gemini"))

	var out bytes.Buffer
	if err := transcribeFile(context.Background(), &out, writeWav(t, 300*time.Millisecond), "flac", "", store, pipe); err != nil {
		t.Fatalf("transcribeFile: %v\n%s", err, out.String())
	}
	if len(store.Notes()) != 2 {
		t.Fatalf("notes = %d, want 2", len(store.Notes()))
	}
	n := store.Notes()[0]
	if n.Title != "Dentist" || n.RawTranscription != "call the dentist" {
		t.Errorf("note = %+v", n)
	}
	calls := gen.Calls()
	if len(calls) == 0 || calls[0].Parts[len(calls[0].Parts)-1].MIMEType != "audio/flac" {
		t.Errorf("audio not sent as flac: %+v", calls)
	}
	if !strings.Contains(out.String(), pipeline.StatusDone) {
		t.Errorf("output:\n%s", out.String())
	}
}

func TestTranscribeFileKeepsGivenTitle(t *testing.T) {
	store, err := notes.Open(kv.NewMemory())
	if err != nil {
		t.Fatal(err)
	}
	gen := &transcriber.Fake{Transcript: "call the dentist", Polished: "# Dentist\n\nCall the dentist."}
	pipe := pipeline.New(gen, transcriber.DefaultModels("gemini"))

	var out bytes.Buffer
	if err := transcribeFile(context.Background(), &out, writeWav(t, 300*time.Millisecond), "flac", "My Title", store, pipe); err != nil {
		t.Fatalf("transcribeFile: %v\n%s", err, out.String())
	}
	n := store.Notes()[0]
	if n.Title != "My Title" {
		t.Errorf("title = %q, want %q", n.Title, "My Title")
	}
	if n.PolishedNote != "# Dentist\n\nCall the dentist." {
		t.Errorf("polished = %q", n.PolishedNote)
	}
	if !strings.Contains(out.String(), "My Title") {
		t.Errorf("output:\n%s", out.String())
	}
}

func TestReadCommandsLeaveEmptyStoreUntouched(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "notes")
	cfg := testConfig()
	cfg.Storage = config.Storage{Backend: "file", Path: dir, Key: "voice-notes-app-data"}
	c := &cli{cfg: cfg}

	var out bytes.Buffer
	err := c.withStore(func(store *notes.Store) error {
		return printNotes(&out, store.Notes())
	}, notes.WithoutInitialNote())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if strings.Count(out.String(), "\n") != 1 {
		t.Errorf("list output:\n%s", out.String())
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("store wrote %d file(s) for a read", len(entries))
	}
}

func TestFindNotePrefix(t *testing.T) {
	store, _ := notes.Open(kv.NewMemory())
	id := store.Active().ID
	n, err := findNote(store, strings.TrimPrefix(id, "note_")[:8])
	if err != nil || n.ID != id {
		t.Errorf("findNote = %v, %v", n.ID, err)
	}
	if _, err := findNote(store, "zzzz"); !errors.Is(err, notes.ErrNotFound) {
		t.Errorf("err = %v", err)
	}
}
