package recording

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"voicenotes/audio"
	"voicenotes/encoder"
	"voicenotes/log"
	"voicenotes/visualizer"
)

type State int

const (
	Idle State = iota
	AcquiringDevice
	Capturing
	Stopping
	AcquisitionFailed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AcquiringDevice:
		return "acquiring"
	case Capturing:
		return "capturing"
	case Stopping:
		return "stopping"
	case AcquisitionFailed:
		return "acquisition_failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var (
	ErrNoAudioCaptured  = errors.New("no audio captured")
	ErrAlreadyCapturing = errors.New("recording already in progress")
	ErrAcquireCancelled = errors.New("recording stopped before the microphone opened")
)

const DefaultTickInterval = 50 * time.Millisecond

// Artifact is the finished recording.
type Artifact struct {
	Data      []byte
	MediaType string
	Duration  time.Duration
	Chunks    int
}

// Observer is told about state changes and elapsed-time ticks. Calls are
// made without the session lock held.
type Observer interface {
	StateChanged(State)
	Tick(elapsed time.Duration)
}

// Visualizer is started once capture is running. It is expected to stop
// by itself when the session stops capturing.
type Visualizer interface {
	Start(src visualizer.Source)
}

type Config struct {
	Context      audio.Context
	Device       *audio.DeviceInfo
	Capture      audio.CaptureConfig
	Format       string
	TickInterval time.Duration
	Observer     Observer
	Visualizer   Visualizer
}

// Session owns one microphone at a time and turns what it captures into
// an Artifact.
type Session struct {
	cfg Config

	mu            sync.Mutex
	state         State
	capture       audio.CaptureDevice
	analyser      *audio.Analyser
	pipe          *encodePipe
	enc           encoder.Encoder
	started       time.Time
	tickStop      chan struct{}
	tickDone      chan struct{}
	cancelAcquire bool
	constraints   audio.Constraints

	chunkMu sync.Mutex
	chunks  [][]byte
}

func New(cfg Config) *Session {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.Capture.SampleRate == 0 {
		cfg.Capture.SampleRate = encoder.SampleRate
	}
	if cfg.Capture.Channels == 0 {
		cfg.Capture.Channels = encoder.Channels
	}
	return &Session{cfg: cfg}
}

func (s *Session) notify(st State) {
	if s.cfg.Observer != nil {
		s.cfg.Observer.StateChanged(st)
	}
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	s.notify(st)
}

// Start acquires the microphone and begins capturing. Resources left
// over from a previous recording are released first and the chunk
// buffer is cleared.
func (s *Session) Start() error {
	s.mu.Lock()
	switch s.state {
	case AcquiringDevice, Capturing, Stopping:
		s.mu.Unlock()
		return ErrAlreadyCapturing
	}
	s.releaseLocked()
	s.cancelAcquire = false
	s.state = AcquiringDevice
	s.mu.Unlock()
	s.resetChunks()
	s.notify(AcquiringDevice)

	enc, err := encoder.Negotiate(s.cfg.Format)
	if err != nil {
		log.Warnf("encoder fallback to %s: %v", enc.MediaType(), err)
	}
	analyser := audio.NewAnalyser()
	pipe := newEncodePipe(enc, s.appendChunk)

	capture, used, err := audio.Acquire(s.cfg.Context, s.cfg.Device, s.cfg.Capture, func(data []byte, _ uint32) {
		if len(data) < 2 {
			return
		}
		samples := make([]int16, len(data)/2)
		for i := range samples {
			samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
		}
		analyser.Write(samples)
		pipe.feed(samples)
	})
	if err != nil {
		pipe.finish()
		analyser.Close()
		s.resetChunks()
		log.Recording("acquire_failed", 0, 0, 0)
		log.Warnf("microphone (%s): %v", audio.KindOf(err), err)
		s.setState(AcquisitionFailed)
		s.setState(Idle)
		return err
	}

	s.mu.Lock()
	if s.cancelAcquire {
		s.state = Idle
		s.mu.Unlock()
		capture.ClearCallback()
		capture.Close()
		pipe.finish()
		analyser.Close()
		s.resetChunks()
		s.notify(Idle)
		return ErrAcquireCancelled
	}
	s.capture = capture
	s.analyser = analyser
	s.pipe = pipe
	s.enc = enc
	s.constraints = used.Constraints
	s.started = time.Now()
	s.state = Capturing
	s.startTickerLocked()
	s.mu.Unlock()

	if used.Constraints != s.cfg.Capture.Constraints {
		log.Warn("microphone opened with processing disabled after the first request was rejected")
	}
	log.Recording("start", 0, 0, 0)
	s.notify(Capturing)
	if s.cfg.Visualizer != nil {
		s.cfg.Visualizer.Start(s)
	}
	return nil
}

// Stop ends capture and returns the assembled recording. Calling it while
// nothing is being captured returns (nil, nil). A recording that produced
// no audio returns ErrNoAudioCaptured and no artifact.
func (s *Session) Stop() (*Artifact, error) {
	s.mu.Lock()
	switch s.state {
	case Capturing:
	case AcquiringDevice:
		s.cancelAcquire = true
		s.mu.Unlock()
		return nil, nil
	default:
		s.mu.Unlock()
		return nil, nil
	}
	s.state = Stopping
	capture, analyser, pipe, enc := s.capture, s.analyser, s.pipe, s.enc
	s.capture, s.analyser, s.pipe, s.enc = nil, nil, nil, nil
	elapsed := time.Since(s.started)
	tickStop, tickDone := s.tickStop, s.tickDone
	s.tickStop, s.tickDone = nil, nil
	s.mu.Unlock()
	s.notify(Stopping)

	if tickStop != nil {
		close(tickStop)
		<-tickDone
	}
	capture.ClearCallback()
	capture.Stop()
	capture.Close()
	finishErr := pipe.finish()
	analyser.Close()

	s.chunkMu.Lock()
	chunks := s.chunks
	s.chunkMu.Unlock()
	frames := enc.TotalFrames()

	s.setState(Idle)

	if finishErr != nil {
		log.Errorf("finalize recording: %v", finishErr)
		return nil, finishErr
	}
	if frames == 0 || len(chunks) == 0 {
		s.resetChunks()
		log.Recording("empty", elapsed, 0, 0)
		return nil, ErrNoAudioCaptured
	}

	art := &Artifact{
		Data:      bytes.Join(chunks, nil),
		MediaType: enc.MediaType(),
		Duration:  time.Duration(frames) * time.Second / encoder.SampleRate,
		Chunks:    len(chunks),
	}
	log.Recording("stop", elapsed, art.Chunks, len(art.Data))
	return art, nil
}

// Close stops any recording in progress and discards its audio.
func (s *Session) Close() {
	s.Stop()
	s.mu.Lock()
	s.releaseLocked()
	s.mu.Unlock()
}

// releaseLocked drops a device handle or analyser still held from an
// earlier attempt.
func (s *Session) releaseLocked() {
	if s.capture != nil {
		s.capture.ClearCallback()
		s.capture.Close()
		s.capture = nil
	}
	if s.analyser != nil {
		s.analyser.Close()
		s.analyser = nil
	}
}

func (s *Session) startTickerLocked() {
	stop := make(chan struct{})
	done := make(chan struct{})
	s.tickStop, s.tickDone = stop, done
	started := s.started
	interval := s.cfg.TickInterval
	obs := s.cfg.Observer
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if obs != nil {
					obs.Tick(time.Since(started))
				}
			}
		}
	}()
}

func (s *Session) appendChunk(c []byte) {
	if len(c) == 0 {
		return
	}
	s.chunkMu.Lock()
	s.chunks = append(s.chunks, c)
	s.chunkMu.Unlock()
}

func (s *Session) resetChunks() {
	s.chunkMu.Lock()
	s.chunks = nil
	s.chunkMu.Unlock()
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Capturing() bool {
	return s.State() == Capturing
}

// Elapsed is the time since capture started, zero when not capturing.
func (s *Session) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Capturing {
		return 0
	}
	return time.Since(s.started)
}

// Chunks returns how many encoded chunks have been buffered.
func (s *Session) Chunks() int {
	s.chunkMu.Lock()
	defer s.chunkMu.Unlock()
	return len(s.chunks)
}

// Constraints reports the processing constraints of the open stream.
func (s *Session) Constraints() audio.Constraints {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.constraints
}

func (s *Session) DeviceName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.capture == nil {
		return ""
	}
	return s.capture.DeviceName()
}

func (s *Session) ByteFrequencyData(dst []uint8) int {
	s.mu.Lock()
	a := s.analyser
	s.mu.Unlock()
	if a == nil {
		return 0
	}
	return a.ByteFrequencyData(dst)
}

func (s *Session) FrequencyBinCount() int {
	return audio.AnalyserFFTSize / 2
}

// FormatElapsed renders d as MM:SS.hh.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	cs := d.Milliseconds() / 10
	return fmt.Sprintf("%02d:%02d.%02d", cs/6000, (cs/100)%60, cs%100)
}
