// Package doctor runs interactive checks of everything a recording needs:
// note storage, the microphone, the speech service and, optionally, the
// clipboard and global hotkey.
package doctor

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"voicenotes/audio"
	"voicenotes/hotkey"
	"voicenotes/kv"
	"voicenotes/pipeline"
	"voicenotes/recording"
)

const (
	DefaultRecordDuration = 3 * time.Second
	probeKey              = "voicenotes-doctor-probe"
)

type Options struct {
	Out io.Writer
	In  io.Reader

	Audio    audio.Context
	Device   string
	Format   string
	Duration time.Duration

	// Pipeline is nil when no speech provider is configured.
	Pipeline *pipeline.Pipeline
	Storage  kv.Store
	// StorageErr is why Storage could not be opened.
	StorageErr error

	Hotkey    bool
	Clipboard bool
	// Confirm asks the user to confirm transcripts and press the hotkey.
	Confirm bool
}

type check struct {
	name string
	run  func(ctx context.Context) (string, error)
}

type runner struct {
	opts     Options
	in       *bufio.Reader
	artifact *recording.Artifact
}

// Run executes the checks and returns a process exit code: 0 when every
// check passed.
func Run(ctx context.Context, opts Options) int {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Duration <= 0 {
		opts.Duration = DefaultRecordDuration
	}
	r := &runner{opts: opts, in: bufio.NewReader(opts.In)}

	checks := []check{
		{"Note storage", r.checkStorage},
		{"Microphone", r.checkMicrophone},
		{"Speech service", r.checkSpeech},
	}
	if opts.Clipboard {
		checks = append(checks, check{"Clipboard", r.checkClipboard})
	}
	if opts.Hotkey {
		checks = append(checks, check{"Record hotkey", r.checkHotkey})
	}

	fmt.Fprintln(opts.Out, "voicenotes doctor")
	fmt.Fprintln(opts.Out, "=================")

	failed := 0
	for i, c := range checks {
		fmt.Fprintf(opts.Out, "\n[%d/%d] %s\n", i+1, len(checks), c.name)
		if ctx.Err() != nil {
			fmt.Fprintln(opts.Out, "  SKIP: interrupted")
			failed++
			continue
		}
		msg, err := c.run(ctx)
		if err != nil {
			fmt.Fprintf(opts.Out, "  FAIL: %v\n", err)
			failed++
			continue
		}
		fmt.Fprintf(opts.Out, "  PASS: %s\n", msg)
	}

	fmt.Fprintln(opts.Out)
	if failed == 0 {
		fmt.Fprintln(opts.Out, "All checks passed!")
		return 0
	}
	fmt.Fprintf(opts.Out, "%d check(s) failed. See details above.\n", failed)
	return 1
}

func (r *runner) checkStorage(context.Context) (string, error) {
	st := r.opts.Storage
	if r.opts.StorageErr != nil {
		return "", r.opts.StorageErr
	}
	if st == nil {
		return "", errors.New("no storage configured")
	}
	probe := []byte(fmt.Sprintf(`{"checked":%d}`, time.Now().UnixMilli()))
	if err := st.Set(probeKey, probe); err != nil {
		return "", fmt.Errorf("write: %w", err)
	}
	got, ok, err := st.Get(probeKey)
	if err != nil {
		return "", fmt.Errorf("read: %w", err)
	}
	if !ok || !bytes.Equal(got, probe) {
		return "", errors.New("read back a different value than was written")
	}
	return "write and read verified", nil
}

func (r *runner) checkMicrophone(ctx context.Context) (string, error) {
	actx := r.opts.Audio
	if actx == nil {
		c, err := audio.NewContext()
		if err != nil {
			return "", fmt.Errorf("connect to audio: %w", err)
		}
		defer c.Close()
		actx = c
	}
	dev, err := audio.FindDevice(actx, r.opts.Device)
	if err != nil {
		return "", err
	}

	sess := recording.New(recording.Config{Context: actx, Device: dev, Format: r.opts.Format})
	defer sess.Close()
	if err := sess.Start(); err != nil {
		return "", err
	}
	fmt.Fprintf(r.opts.Out, "  Recording from %s for %s, say something...\n", sess.DeviceName(), r.opts.Duration)
	select {
	case <-time.After(r.opts.Duration):
	case <-ctx.Done():
	}
	art, err := sess.Stop()
	if err != nil {
		return "", err
	}
	if art == nil {
		return "", recording.ErrNoAudioCaptured
	}
	r.artifact = art
	return fmt.Sprintf("captured %.1f KB of %s in %d chunk(s)", float64(len(art.Data))/1024, art.MediaType, art.Chunks), nil
}

func (r *runner) checkSpeech(ctx context.Context) (string, error) {
	p := r.opts.Pipeline
	if p == nil {
		return "", errors.New("no provider configured (set GEMINI_API_KEY, GROQ_API_KEY or OPENAI_API_KEY)")
	}
	if r.artifact == nil {
		return "", errors.New("skipped, nothing was recorded")
	}
	text, err := p.Transcribe(ctx, *r.artifact)
	if err != nil {
		return "", err
	}
	fmt.Fprintf(r.opts.Out, "\n  Transcribed with %s: %s\n\n", p.Provider(), text)
	if r.opts.Confirm && !r.ask("Is this correct? [y/n]: ") {
		return "", errors.New("transcript not confirmed")
	}
	return "transcript received", nil
}

func (r *runner) checkHotkey(ctx context.Context) (string, error) {
	msg, err := hotkey.Diagnose()
	if err != nil || !r.opts.Confirm {
		return msg, err
	}
	hk := hotkey.New()
	if err := hk.Register(); err != nil {
		return "", fmt.Errorf("register %s: %w", hotkey.Chord, err)
	}
	defer hk.Unregister()
	defer resetTerminal()

	fmt.Fprintf(r.opts.Out, "  Press %s...\n", hotkey.Chord)
	select {
	case <-hk.Keydown():
	case <-time.After(10 * time.Second):
		return "", errors.New("timed out waiting for the hotkey")
	case <-ctx.Done():
		return "", ctx.Err()
	}
	select {
	case <-hk.Keyup():
	case <-time.After(5 * time.Second):
	}
	return hotkey.Chord + " detected", nil
}

func (r *runner) ask(prompt string) bool {
	fmt.Fprint(r.opts.Out, prompt)
	line, _ := r.in.ReadString('\n')
	line = strings.ToLower(strings.TrimSpace(line))
	return line == "y" || line == "yes"
}
