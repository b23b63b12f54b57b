package transcriber

import (
	"context"
	"sync"
)

// Call is one request observed by Fake.
type Call struct {
	Model string
	Parts []Part
}

// Fake answers audio requests with Transcript and text requests with
// Polished, or fails with the matching error.
type Fake struct {
	Transcript    string
	Polished      string
	TranscribeErr error
	PolishErr     error

	// Block, when set, is waited on before answering.
	Block chan struct{}

	mu    sync.Mutex
	calls []Call
}

func (f *Fake) Name() string { return "fake" }

func (f *Fake) Generate(ctx context.Context, model string, parts []Part) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, Call{Model: model, Parts: parts})
	f.mu.Unlock()

	if f.Block != nil {
		select {
		case <-f.Block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if hasAudio(parts) {
		return f.Transcript, f.TranscribeErr
	}
	return f.Polished, f.PolishErr
}

func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}
