package recording

import (
	"errors"
	"sync"
	"testing"
	"time"

	"voicenotes/audio"
	"voicenotes/visualizer"
)

type recordObserver struct {
	mu     sync.Mutex
	states []State
	ticks  int
}

func (o *recordObserver) StateChanged(s State) {
	o.mu.Lock()
	o.states = append(o.states, s)
	o.mu.Unlock()
}

func (o *recordObserver) Tick(time.Duration) {
	o.mu.Lock()
	o.ticks++
	o.mu.Unlock()
}

func (o *recordObserver) snapshot() ([]State, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]State(nil), o.states...), o.ticks
}

type stubVisualizer struct {
	mu      sync.Mutex
	sources []visualizer.Source
}

func (v *stubVisualizer) Start(src visualizer.Source) {
	v.mu.Lock()
	v.sources = append(v.sources, src)
	v.mu.Unlock()
}

func waitAudio(t *testing.T, ctx *audio.FakeContext) {
	t.Helper()
	caps := ctx.Captures()
	select {
	case <-caps[len(caps)-1].AudioDone():
	case <-time.After(3 * time.Second):
		t.Fatal("fake audio never finished")
	}
}

func TestStartStopProducesArtifact(t *testing.T) {
	ctx := audio.NewSineContext(time.Second, false)
	obs := &recordObserver{}
	vis := &stubVisualizer{}
	s := New(Config{Context: ctx, Format: "flac", Observer: obs, Visualizer: vis})

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !s.Capturing() {
		t.Fatal("not capturing after Start")
	}
	waitAudio(t, ctx)

	art, err := s.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if art.MediaType != "audio/flac" {
		t.Errorf("MediaType = %q", art.MediaType)
	}
	if string(art.Data[:4]) != "fLaC" {
		t.Error("artifact is not a flac stream")
	}
	if art.Duration != time.Second {
		t.Errorf("Duration = %v, want 1s", art.Duration)
	}
	if art.Chunks < 2 {
		t.Errorf("Chunks = %d, want several", art.Chunks)
	}
	if s.State() != Idle {
		t.Errorf("state after stop = %v", s.State())
	}

	states, _ := obs.snapshot()
	want := []State{AcquiringDevice, Capturing, Stopping, Idle}
	if len(states) != len(want) {
		t.Fatalf("states = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("state[%d] = %v, want %v", i, states[i], want[i])
		}
	}
	if len(vis.sources) != 1 || vis.sources[0] != s {
		t.Error("visualizer was not started with the session")
	}
	if !ctx.Captures()[0].Closed() {
		t.Error("device not released on stop")
	}
}

func TestStopWithoutAudio(t *testing.T) {
	ctx := audio.NewSineContext(0, false)
	s := New(Config{Context: ctx})
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	art, err := s.Stop()
	if !errors.Is(err, ErrNoAudioCaptured) {
		t.Fatalf("err = %v, want ErrNoAudioCaptured", err)
	}
	if art != nil {
		t.Error("artifact produced for empty recording")
	}
	if s.Chunks() != 0 {
		t.Errorf("chunks = %d after empty stop", s.Chunks())
	}
}

func TestStopWhenIdleIsNoop(t *testing.T) {
	s := New(Config{Context: audio.NewSineContext(0, false)})
	for range 2 {
		art, err := s.Stop()
		if art != nil || err != nil {
			t.Fatalf("Stop on idle = %v, %v", art, err)
		}
	}
}

// slowContext holds NewCapture until release is closed, like a
// permission prompt the user has not answered yet.
type slowContext struct {
	*audio.FakeContext
	entered chan struct{}
	release chan struct{}
}

func (c *slowContext) NewCapture(dev *audio.DeviceInfo, cfg audio.CaptureConfig) (audio.CaptureDevice, error) {
	close(c.entered)
	<-c.release
	return c.FakeContext.NewCapture(dev, cfg)
}

func TestStopWhileAcquiringCancels(t *testing.T) {
	ctx := &slowContext{
		FakeContext: audio.NewSineContext(time.Second, true),
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	obs := &recordObserver{}
	vis := &stubVisualizer{}
	s := New(Config{Context: ctx, Observer: obs, Visualizer: vis})

	started := make(chan error, 1)
	go func() { started <- s.Start() }()
	select {
	case <-ctx.entered:
	case <-time.After(3 * time.Second):
		t.Fatal("Start never reached the device")
	}
	if st := s.State(); st != AcquiringDevice {
		t.Fatalf("state = %v, want acquiring", st)
	}

	art, err := s.Stop()
	if art != nil || err != nil {
		t.Fatalf("Stop while acquiring = %v, %v", art, err)
	}
	close(ctx.release)

	select {
	case err := <-started:
		if !errors.Is(err, ErrAcquireCancelled) {
			t.Fatalf("Start = %v, want ErrAcquireCancelled", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Start did not return after release")
	}
	if st := s.State(); st != Idle {
		t.Errorf("state = %v, want idle", st)
	}
	caps := ctx.Captures()
	if len(caps) != 1 || !caps[0].Closed() {
		t.Errorf("capture not released: %d opened", len(caps))
	}
	if s.Capturing() {
		t.Error("still capturing")
	}
	states, _ := obs.snapshot()
	if len(states) == 0 || states[len(states)-1] != Idle {
		t.Errorf("states = %v", states)
	}
	for _, st := range states {
		if st == Capturing {
			t.Errorf("reported capturing: %v", states)
		}
	}
	if len(vis.sources) != 0 {
		t.Error("visualizer started for a cancelled recording")
	}
}

func TestSingleCapturingSession(t *testing.T) {
	ctx := audio.NewSineContext(time.Second, true)
	s := New(Config{Context: ctx})
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Close()
	if err := s.Start(); !errors.Is(err, ErrAlreadyCapturing) {
		t.Fatalf("second Start = %v, want ErrAlreadyCapturing", err)
	}
	if n := len(ctx.Captures()); n != 1 {
		t.Errorf("opened %d devices, want 1", n)
	}
}

func TestRestartClearsPreviousChunks(t *testing.T) {
	ctx := audio.NewSineContext(500*time.Millisecond, false)
	s := New(Config{Context: ctx, Format: "wav"})

	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	waitAudio(t, ctx)
	first, err := s.Stop()
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	waitAudio(t, ctx)
	second, err := s.Stop()
	if err != nil {
		t.Fatal(err)
	}
	if len(first.Data) != len(second.Data) {
		t.Errorf("second artifact %d bytes, first %d: chunks leaked between recordings", len(second.Data), len(first.Data))
	}
	if second.MediaType != "audio/wav" {
		t.Errorf("MediaType = %q", second.MediaType)
	}
}

func TestAcquisitionFailure(t *testing.T) {
	ctx := audio.NewSineContext(time.Second, false)
	ctx.FailStarts(errors.New("Device or resource busy"), errors.New("Device or resource busy"))
	obs := &recordObserver{}
	s := New(Config{Context: ctx, Observer: obs})

	err := s.Start()
	if !errors.Is(err, audio.ErrDeviceUnavailable) {
		t.Fatalf("Start = %v, want device unavailable", err)
	}
	if s.State() != Idle {
		t.Errorf("state = %v, want idle", s.State())
	}
	states, _ := obs.snapshot()
	if len(states) != 3 || states[1] != AcquisitionFailed || states[2] != Idle {
		t.Errorf("states = %v", states)
	}

	// the user can try again
	if err := s.Start(); err != nil {
		t.Fatalf("retry Start: %v", err)
	}
	s.Close()
}

func TestConstraintFallback(t *testing.T) {
	ctx := audio.NewSineContext(time.Second, false)
	ctx.FailStarts(errors.New("constraint not satisfiable"))
	s := New(Config{Context: ctx, Capture: audio.CaptureConfig{Constraints: audio.DefaultConstraints()}})
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Close()
	if s.Constraints() != audio.ConservativeConstraints() {
		t.Errorf("constraints = %+v", s.Constraints())
	}
}

func TestTicksWhileCapturing(t *testing.T) {
	ctx := audio.NewSineContext(time.Second, true)
	obs := &recordObserver{}
	s := New(Config{Context: ctx, Observer: obs, TickInterval: 5 * time.Millisecond})
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	time.Sleep(60 * time.Millisecond)
	if s.Elapsed() <= 0 {
		t.Error("elapsed not advancing")
	}
	s.Stop()
	_, ticks := obs.snapshot()
	if ticks == 0 {
		t.Error("no elapsed ticks delivered")
	}
	time.Sleep(20 * time.Millisecond)
	if _, after := obs.snapshot(); after != ticks {
		t.Error("ticks continued after stop")
	}
	if s.Elapsed() != 0 {
		t.Error("elapsed should be zero when idle")
	}
}

func TestFormatElapsed(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "00:00.00"},
		{1530 * time.Millisecond, "00:01.53"},
		{61*time.Second + 50*time.Millisecond, "01:01.05"},
		{-time.Second, "00:00.00"},
	}
	for _, tt := range tests {
		if got := FormatElapsed(tt.d); got != tt.want {
			t.Errorf("FormatElapsed(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
