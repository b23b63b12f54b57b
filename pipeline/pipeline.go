package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"voicenotes/log"
	"voicenotes/recording"
	"voicenotes/transcriber"
)

type Stage string

const (
	StageTranscribe Stage = "transcribe"
	StagePolish     Stage = "polish"
)

// ErrEmptyResult marks a call that succeeded with nothing but whitespace.
var ErrEmptyResult = errors.New("service returned an empty result")

// StageError is the failure of one external call.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Empty reports whether the call answered but with no usable text.
func (e *StageError) Empty() bool { return errors.Is(e.Err, ErrEmptyResult) }

const (
	StatusTranscribing     = "Getting transcription..."
	StatusTranscribed      = "Transcription complete. Polishing note..."
	StatusPolishing        = "Polishing note..."
	StatusDone             = "Note polished. Ready for next recording."
	StatusTranscribeEmpty  = "Transcription failed or returned empty."
	StatusTranscribeFailed = "Error getting transcription. Please try again."
	StatusPolishEmpty      = "Polishing failed or returned empty."
	StatusPolishFailed     = "Error polishing note. Please try again."
)

// StatusFor maps a stage failure to the message shown to the user.
func StatusFor(err error) string {
	var se *StageError
	if !errors.As(err, &se) {
		return ""
	}
	switch {
	case se.Stage == StageTranscribe && se.Empty():
		return StatusTranscribeEmpty
	case se.Stage == StageTranscribe:
		return StatusTranscribeFailed
	case se.Empty():
		return StatusPolishEmpty
	default:
		return StatusPolishFailed
	}
}

// Polished is the outcome of a successful polish call.
type Polished struct {
	Markdown string
	Title    string
	HasTitle bool
}

// Sink receives results by note id. notes.Store implements it.
type Sink interface {
	ApplyTranscription(id, raw string) (bool, error)
	ApplyPolish(id, polished, title string, hasTitle bool) (bool, error)
	RestorePlaceholders(id string)
}

type Pipeline struct {
	gen    transcriber.Generator
	models transcriber.Models
}

func New(gen transcriber.Generator, models transcriber.Models) *Pipeline {
	return &Pipeline{gen: gen, models: models}
}

func (p *Pipeline) Provider() string { return p.gen.Name() }

func usable(text string) (string, bool) {
	t := strings.TrimSpace(text)
	return t, t != ""
}

// Transcribe asks the service for a verbatim transcript of art.
func (p *Pipeline) Transcribe(ctx context.Context, art recording.Artifact) (string, error) {
	text, err := p.gen.Generate(ctx, p.models.Transcribe, []transcriber.Part{
		transcriber.TextPart(TranscribeInstruction),
		transcriber.AudioPart(art.Data, art.MediaType),
	})
	if err != nil {
		return "", &StageError{Stage: StageTranscribe, Err: err}
	}
	text, ok := usable(text)
	if !ok {
		return "", &StageError{Stage: StageTranscribe, Err: ErrEmptyResult}
	}
	return text, nil
}

// Polish rewrites a raw transcript into a titled Markdown note.
func (p *Pipeline) Polish(ctx context.Context, raw string) (Polished, error) {
	text, err := p.gen.Generate(ctx, p.models.Polish, []transcriber.Part{
		transcriber.TextPart(PolishPrompt(raw)),
	})
	if err != nil {
		return Polished{}, &StageError{Stage: StagePolish, Err: err}
	}
	text, ok := usable(text)
	if !ok {
		return Polished{}, &StageError{Stage: StagePolish, Err: ErrEmptyResult}
	}
	title, hasTitle := ExtractTitle(text)
	return Polished{Markdown: text, Title: title, HasTitle: hasTitle}, nil
}

// Outcome summarises one Run.
type Outcome struct {
	Raw      string
	Polished Polished
	Err      error
	// Dropped is set when the note was deleted before a result arrived.
	Dropped bool
}

// Run transcribes art, then polishes the transcript, writing each result
// into note noteID through sink. Polish only runs after a usable
// transcript. Failures restore the note's placeholders and are reported,
// never retried.
func (p *Pipeline) Run(ctx context.Context, noteID string, art recording.Artifact, sink Sink, report func(string)) Outcome {
	if report == nil {
		report = func(string) {}
	}
	var out Outcome

	report(StatusTranscribing)
	start := time.Now()
	raw, err := p.Transcribe(ctx, art)
	log.Stage(string(StageTranscribe), noteID, time.Since(start), err)
	if err != nil {
		out.Err = err
		sink.RestorePlaceholders(noteID)
		report(StatusFor(err))
		return out
	}
	out.Raw = raw
	applied, err := sink.ApplyTranscription(noteID, raw)
	if err != nil {
		log.Errorf("store transcription: %v", err)
	}
	if !applied {
		out.Dropped = err == nil
	}

	report(StatusTranscribed)
	report(StatusPolishing)
	start = time.Now()
	polished, err := p.Polish(ctx, raw)
	log.Stage(string(StagePolish), noteID, time.Since(start), err)
	if err != nil {
		out.Err = err
		sink.RestorePlaceholders(noteID)
		report(StatusFor(err))
		return out
	}
	out.Polished = polished
	applied, err = sink.ApplyPolish(noteID, polished.Markdown, polished.Title, polished.HasTitle)
	if err != nil {
		log.Errorf("store polished note: %v", err)
	}
	if !applied && err == nil {
		out.Dropped = true
	}
	report(StatusDone)
	return out
}
