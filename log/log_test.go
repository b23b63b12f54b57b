package log

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func setupLogDir(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	SetDir(tmp)
	t.Cleanup(func() { Close(); SetDir("") })
	return tmp
}

func TestResolveDirFlag(t *testing.T) {
	got, err := ResolveDir("/tmp/mylog")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/tmp/mylog" {
		t.Errorf("got %q, want /tmp/mylog", got)
	}
}

func TestResolveDirFlagRelative(t *testing.T) {
	got, err := ResolveDir("logs")
	if err != nil {
		t.Fatal(err)
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(wd, "logs")
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestResolveDirEnv(t *testing.T) {
	t.Setenv("VOICENOTES_LOG_PATH", "/tmp/voicenotes-env-log")
	got, err := ResolveDir("")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/tmp/voicenotes-env-log" {
		t.Errorf("got %q, want /tmp/voicenotes-env-log", got)
	}
}

func TestResolveDirDefault(t *testing.T) {
	t.Setenv("VOICENOTES_LOG_PATH", "")
	got, err := ResolveDir("")
	if err != nil {
		t.Fatal(err)
	}
	if got == "" {
		t.Error("expected non-empty default directory")
	}
}

func TestInitCreatesFiles(t *testing.T) {
	tmp := setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"diagnostics_log.txt", "notes_log.txt"} {
		path := filepath.Join(tmp, name)
		if _, err := os.Stat(path); err != nil {
			t.Errorf("%s not created: %v", name, err)
		}
	}
}

func TestNoteText(t *testing.T) {
	tmp := setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}

	NoteText("note_1", "Weekly sync\nsecond line")

	data, err := os.ReadFile(filepath.Join(tmp, "notes_log.txt"))
	if err != nil {
		t.Fatal(err)
	}
	line := string(data)
	if !strings.Contains(line, "note_1\tWeekly sync second line") {
		t.Errorf("notes_log.txt missing entry, got: %q", line)
	}
	if strings.Count(line, "\n") != 1 {
		t.Errorf("expected a single line, got: %q", line)
	}
}

func TestHelpersNoopBeforeInit(t *testing.T) {
	Close()
	Info("dropped")
	Stage("transcribe", "note_1", time.Second, errors.New("boom"))
	NoteText("note_1", "dropped")
	Recording("start", 0, 0, 0)
}

func TestStageWritesDiagnostics(t *testing.T) {
	tmp := setupLogDir(t)
	if err := Init(); err != nil {
		t.Fatal(err)
	}
	Stage("polish", "note_7", 1500*time.Millisecond, errors.New("quota exceeded"))
	Recording("stop", 3*time.Second, 4, 2048)

	data, err := os.ReadFile(filepath.Join(tmp, "diagnostics_log.txt"))
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	for _, want := range []string{"pipeline_stage", "stage=polish", "note=note_7", "quota exceeded", "recording", "chunks=4"} {
		if !strings.Contains(out, want) {
			t.Errorf("diagnostics missing %q in %q", want, out)
		}
	}
}

func TestCloseIdempotent(t *testing.T) {
	setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}
	Close()
	Close() // should not panic
}
