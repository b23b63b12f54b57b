package log

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	diagLog   zerolog.Logger
	diagFile  *os.File
	notesFile *os.File
	logMu     sync.Mutex
	logReady  bool
	pid       int
	dir       string
)

// Network is the per-request timing breakdown of a speech service call.
type Network struct {
	DNSMs      float64
	TLSMs      float64
	TTFBMs     float64
	TotalMs    float64
	ConnReused bool
	TLSProto   string
	SentKB     float64
}

func ResolveDir(flagPath string) (string, error) {
	// Priority 1: --logpath flag
	if flagPath != "" {
		return absolute(flagPath)
	}
	// Priority 2: VOICENOTES_LOG_PATH environment variable
	if envPath := os.Getenv("VOICENOTES_LOG_PATH"); envPath != "" {
		return absolute(envPath)
	}
	// Priority 3: default OS-specific location
	return getDefaultDir()
}

func absolute(p string) (string, error) {
	if filepath.IsAbs(p) {
		return p, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, p), nil
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

func Init() error {
	logMu.Lock()
	defer logMu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}
	pid = os.Getpid()

	var err error
	diagFile, err = os.OpenFile(filepath.Join(dir, "diagnostics_log.txt"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	notesFile, err = os.OpenFile(filepath.Join(dir, "notes_log.txt"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		diagFile.Close()
		return err
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}
	diagLog = zerolog.New(consoleWriter).With().Timestamp().Int("pid", pid).Logger()

	logReady = true
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	if notesFile != nil {
		notesFile.Close()
		notesFile = nil
	}
	logReady = false
}

func Info(msg string) {
	if logReady {
		diagLog.Info().Msg(msg)
	}
}

func Infof(format string, args ...any) {
	if logReady {
		diagLog.Info().Msg(fmt.Sprintf(format, args...))
	}
}

func Error(msg string) {
	if logReady {
		diagLog.Error().Msg(msg)
	}
}

func Errorf(format string, args ...any) {
	if logReady {
		diagLog.Error().Msg(fmt.Sprintf(format, args...))
	}
}

func Warn(msg string) {
	if logReady {
		diagLog.Warn().Msg(msg)
	}
}

func Warnf(format string, args ...any) {
	if logReady {
		diagLog.Warn().Msg(fmt.Sprintf(format, args...))
	}
}

func SessionStart(provider, format, storage string) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("provider", provider).
		Str("format", format).
		Str("storage", storage).
		Msg("session_start")
}

func SessionEnd(notes int) {
	if !logReady {
		return
	}
	diagLog.Info().Int("notes", notes).Msg("session_end")
}

// Recording logs a capture lifecycle event (start, stop, empty, failed).
func Recording(event string, elapsed time.Duration, chunks int, bytes int) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("event", event).
		Float64("elapsed_s", elapsed.Seconds()).
		Int("chunks", chunks).
		Float64("size_kb", float64(bytes)/1024).
		Msg("recording")
}

// Stage logs the outcome of one pipeline stage for a note.
func Stage(stage, noteID string, dur time.Duration, err error) {
	if !logReady {
		return
	}
	ev := diagLog.Info()
	if err != nil {
		ev = diagLog.Warn().Err(err)
	}
	ev.Str("stage", stage).
		Str("note", noteID).
		Int64("dur_ms", dur.Milliseconds()).
		Msg("pipeline_stage")
}

func ServiceCall(provider, endpoint string, n Network) {
	if !logReady {
		return
	}
	conn := "new"
	if n.ConnReused {
		conn = "reused"
	}
	ev := diagLog.Info().
		Str("provider", provider).
		Str("endpoint", endpoint).
		Str("conn", conn)
	if n.TLSProto != "" {
		ev = ev.Str("tls_proto", n.TLSProto)
	}
	ev.Float64("sent_kb", n.SentKB).
		Float64("dns_ms", n.DNSMs).
		Float64("tls_ms", n.TLSMs).
		Float64("ttfb_ms", n.TTFBMs).
		Float64("total_ms", n.TotalMs).
		Msg("service_call")
}

func Saved(noteID, reason string) {
	if !logReady {
		return
	}
	diagLog.Debug().Str("note", noteID).Str("reason", reason).Msg("saved")
}

// NoteText appends a line to notes_log.txt for each note the pipeline
// finished, so titles survive even if the store is lost.
func NoteText(noteID, title string) {
	if !logReady {
		return
	}
	logMu.Lock()
	defer logMu.Unlock()
	if notesFile == nil {
		return
	}
	title = strings.ReplaceAll(title, "\n", " ")
	line := fmt.Sprintf("%s\t[%d]\t%s\t%s\n", time.Now().Format("2006-01-02 15:04:05"), pid, noteID, title)
	notesFile.WriteString(line)
}
