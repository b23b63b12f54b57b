package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"voicenotes/audio"
	"voicenotes/config"
	"voicenotes/kv"
	"voicenotes/log"
	"voicenotes/notes"
	"voicenotes/pipeline"
	"voicenotes/recording"
	"voicenotes/transcriber"
	"voicenotes/visualizer"
)

// App is everything one interactive run owns: the note store, the
// recording session, the level visualizer and the transcription pipeline.
// It is built once at startup and torn down by Close.
type App struct {
	cfg     *config.Config
	db      kv.Store
	store   *notes.Store
	pipe    *pipeline.Pipeline
	audio   audio.Context
	session *recording.Session
	vis     *visualizer.Visualizer
	surface *termSurface

	sendMu sync.Mutex
	queue  chan tea.Msg

	runMu sync.Mutex
}

// openStore opens the configured persistence and the note collection on
// top of it.
func openStore(cfg *config.Config, opts ...notes.Option) (kv.Store, *notes.Store, error) {
	db, err := kv.Open(cfg.Storage.Backend, cfg.Storage.Path)
	if err != nil {
		return nil, nil, err
	}
	opts = append([]notes.Option{notes.WithKey(cfg.Storage.Key)}, opts...)
	store, err := notes.Open(db, opts...)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return db, store, nil
}

// newPipeline connects to the configured speech provider.
func newPipeline(ctx context.Context, cfg *config.Config) (*pipeline.Pipeline, error) {
	provider, key, err := cfg.Credentials()
	if err != nil {
		return nil, err
	}
	gen, err := transcriber.New(ctx, provider, key)
	if err != nil {
		return nil, err
	}
	if l, ok := gen.(interface{ SetLanguage(string) }); ok && cfg.Language != "" {
		l.SetLanguage(cfg.Language)
	}
	if w, ok := gen.(interface{ Warm() }); ok {
		go w.Warm()
	}
	return pipeline.New(gen, cfg.Models(provider)), nil
}

type appDeps struct {
	audio audio.Context
	pipe  *pipeline.Pipeline
	sched visualizer.Scheduler
}

func newApp(ctx context.Context, cfg *config.Config, deps appDeps) (*App, error) {
	a := &App{cfg: cfg, pipe: deps.pipe}

	db, store, err := openStore(cfg, notes.WithSaveHook(func(reason string) {
		if reason != "autosave" {
			a.send(savedMsg{})
		}
	}))
	if err != nil {
		return nil, err
	}
	a.db, a.store = db, store

	a.audio = deps.audio
	if a.audio == nil {
		if a.audio, err = audio.NewContext(); err != nil {
			db.Close()
			return nil, fmt.Errorf("connect to audio: %w", err)
		}
	}
	device, err := audio.FindDevice(a.audio, cfg.Device)
	if err != nil {
		log.Warnf("device %q: %v, using system default", cfg.Device, err)
		device = nil
	}

	sched := deps.sched
	if sched == nil {
		sched = visualizer.NewTickerScheduler(cfg.FrameInterval)
	}
	a.surface = newTermSurface(a.send)
	a.vis = visualizer.New(a.surface, sched)
	a.session = recording.New(recording.Config{
		Context:      a.audio,
		Device:       device,
		Format:       cfg.Format,
		TickInterval: cfg.TickInterval,
		Observer:     sessionObserver{a},
		Visualizer:   a.vis,
	})
	return a, nil
}

// attach routes asynchronous updates to the running program until ctx
// is done. Messages are queued so senders never wait on the update loop,
// which may itself be the sender.
func (a *App) attach(ctx context.Context, send func(tea.Msg)) {
	q := make(chan tea.Msg, 256)
	a.sendMu.Lock()
	a.queue = q
	a.sendMu.Unlock()
	go func() {
		for {
			select {
			case msg := <-q:
				send(msg)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (a *App) send(msg tea.Msg) {
	a.sendMu.Lock()
	q := a.queue
	a.sendMu.Unlock()
	if q == nil {
		return
	}
	select {
	case q <- msg:
	default:
	}
}

func (a *App) report(status string) {
	if status != "" {
		a.send(statusMsg(status))
	}
}

// runAutoSave persists field edits until ctx is done.
func (a *App) runAutoSave(ctx context.Context) {
	a.store.RunAutoSave(ctx, a.cfg.AutoSaveInterval, func(saved bool, err error) {
		if err != nil {
			a.send(statusMsg("Error saving note: " + err.Error()))
			return
		}
		a.send(savedMsg{})
	})
}

// startRecording opens the microphone. Failures are reported as status
// text; the session is left idle and ready for another attempt.
func (a *App) startRecording() {
	a.report("Requesting microphone access...")
	if err := a.session.Start(); err != nil {
		if errors.Is(err, recording.ErrAcquireCancelled) {
			a.report("Ready to record")
			return
		}
		log.Errorf("start recording: %v", err)
		a.report(statusFor(err))
		return
	}
	a.report("Recording... Press r to stop.")
}

// stopRecording finalises the session and, when audio was captured,
// runs the pipeline for the active note.
func (a *App) stopRecording(ctx context.Context) {
	id := a.store.Active().ID
	if art := a.finish(); art != nil {
		a.process(ctx, id, *art)
	}
}

// stopBeforeSwitch ends a recording ahead of a change of active note. The
// result is still written to the note the recording started on.
func (a *App) stopBeforeSwitch(ctx context.Context) {
	id := a.store.Active().ID
	if art := a.finish(); art != nil {
		go a.process(ctx, id, *art)
	}
}

func (a *App) finish() *recording.Artifact {
	art, err := a.session.Stop()
	if err != nil {
		log.Warnf("stop recording: %v", err)
		a.report(statusFor(err))
		return nil
	}
	if art != nil {
		a.report("Processing audio...")
	}
	return art
}

// process runs the pipeline for note id. Only one run is in flight at a
// time; a second recording finished meanwhile waits for the first.
func (a *App) process(ctx context.Context, id string, art recording.Artifact) pipeline.Outcome {
	if a.pipe == nil {
		a.report(statusFor(transcriber.ErrNoProvider))
		return pipeline.Outcome{Err: transcriber.ErrNoProvider}
	}
	a.runMu.Lock()
	defer a.runMu.Unlock()
	out := a.pipe.Run(ctx, id, art, a.store, a.report)
	a.send(processedMsg{noteID: id, outcome: out})
	return out
}

func (a *App) Close() {
	if a.session != nil {
		a.session.Close()
	}
	if _, err := a.store.AutoSave(); err != nil {
		log.Errorf("final save: %v", err)
	}
	if a.audio != nil {
		a.audio.Close()
	}
	if err := a.db.Close(); err != nil {
		log.Errorf("close storage: %v", err)
	}
	log.SessionEnd(len(a.store.Notes()))
}

type sessionObserver struct{ a *App }

func (o sessionObserver) StateChanged(st recording.State) { o.a.send(recStateMsg(st)) }
func (o sessionObserver) Tick(elapsed time.Duration)      { o.a.send(recTickMsg(elapsed)) }

// statusFor maps any failure to the line shown under the recorder.
func statusFor(err error) string {
	if err == nil {
		return ""
	}
	if s := pipeline.StatusFor(err); s != "" {
		return s
	}
	switch {
	case errors.Is(err, recording.ErrNoAudioCaptured):
		return "No audio data captured. Please try again."
	case errors.Is(err, transcriber.ErrNoProvider):
		return "No speech provider configured. Set GEMINI_API_KEY, GROQ_API_KEY or OPENAI_API_KEY."
	case errors.Is(err, config.ErrMissingKey):
		return "No API key for the configured provider."
	}
	switch audio.KindOf(err) {
	case audio.KindPermissionDenied:
		return "Microphone permission denied. Please check system privacy settings and try again."
	case audio.KindDeviceNotFound:
		return "No microphone found. Please connect a microphone."
	case audio.KindDeviceUnavailable:
		return "Cannot access microphone. It may be in use by another application."
	}
	return "Error: " + err.Error()
}
