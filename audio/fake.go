package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	"voicenotes/encoder"
)

const (
	fakeFrameSize     = 1024
	fakeBytesPerFrame = 2 // 16-bit mono
)

// FakeContext feeds prerecorded or synthetic PCM instead of a microphone.
// Start failures can be scripted to exercise acquisition fallback.
type FakeContext struct {
	pcm      []byte
	interval time.Duration
	devices  []DeviceInfo

	mu        sync.Mutex
	failures  []error
	requested []CaptureConfig
	captures  []*FakeCapture
}

// NewFakeContext loads PCM from a WAV file. With realtime set, chunks are
// delivered at the pace a real device would produce them.
func NewFakeContext(wavPath string, realtime bool) (*FakeContext, error) {
	f, err := os.Open(wavPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	samples, err := encoder.DecodeWav(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", wavPath, err)
	}
	return newFake(samples, realtime), nil
}

// NewSineContext produces a 440 Hz tone of the given length.
func NewSineContext(d time.Duration, realtime bool) *FakeContext {
	n := int(d.Seconds() * encoder.SampleRate)
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(6000 * math.Sin(2*math.Pi*440*float64(i)/encoder.SampleRate))
	}
	return newFake(samples, realtime)
}

func newFake(samples []int16, realtime bool) *FakeContext {
	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(s))
	}
	f := &FakeContext{
		pcm:     pcm,
		devices: []DeviceInfo{{ID: "fake-0", Name: "Fake Microphone"}},
	}
	if realtime {
		f.interval = time.Duration(fakeFrameSize) * time.Second / encoder.SampleRate
	}
	return f
}

// FailStarts queues errors returned by the next Start calls, in order.
func (f *FakeContext) FailStarts(errs ...error) {
	f.mu.Lock()
	f.failures = append(f.failures, errs...)
	f.mu.Unlock()
}

// SetDevices replaces the reported device list.
func (f *FakeContext) SetDevices(devices []DeviceInfo) {
	f.mu.Lock()
	f.devices = devices
	f.mu.Unlock()
}

// Requested returns the configs passed to NewCapture so far.
func (f *FakeContext) Requested() []CaptureConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]CaptureConfig(nil), f.requested...)
}

// Captures returns every capture created by this context.
func (f *FakeContext) Captures() []*FakeCapture {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*FakeCapture(nil), f.captures...)
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]DeviceInfo(nil), f.devices...), nil
}

func (f *FakeContext) Close() {}

func (f *FakeContext) NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requested = append(f.requested, config)
	var startErr error
	if len(f.failures) > 0 {
		startErr = f.failures[0]
		f.failures = f.failures[1:]
	}
	name := "fake"
	if device != nil {
		name = device.Name
	}
	c := &FakeCapture{
		pcm:       f.pcm,
		interval:  f.interval,
		name:      name,
		startErr:  startErr,
		audioDone: make(chan struct{}),
	}
	f.captures = append(f.captures, c)
	return c, nil
}

type FakeCapture struct {
	pcm       []byte
	interval  time.Duration
	name      string
	startErr  error
	audioDone chan struct{}

	mu       sync.Mutex
	cb       DataCallback
	closed   bool
	stopCh   chan struct{}
	feedDone chan struct{}
}

// AudioDone is closed once the whole PCM source has been delivered.
func (f *FakeCapture) AudioDone() <-chan struct{} { return f.audioDone }

func (f *FakeCapture) SetCallback(cb DataCallback) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

func (f *FakeCapture) ClearCallback() {
	f.mu.Lock()
	f.cb = nil
	f.mu.Unlock()
}

func (f *FakeCapture) DeviceName() string { return f.name }

func (f *FakeCapture) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *FakeCapture) callback() DataCallback {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cb
}

func (f *FakeCapture) Start() error {
	if f.startErr != nil {
		return f.startErr
	}
	f.mu.Lock()
	if f.stopCh != nil {
		// a fake capture feeds its source once
		f.mu.Unlock()
		return nil
	}
	f.stopCh = make(chan struct{})
	f.feedDone = make(chan struct{})
	stopCh, feedDone := f.stopCh, f.feedDone
	f.mu.Unlock()

	chunkBytes := fakeFrameSize * fakeBytesPerFrame
	go func() {
		defer close(feedDone)
		for pos := 0; pos < len(f.pcm); {
			if f.interval > 0 {
				select {
				case <-stopCh:
					return
				case <-time.After(f.interval):
				}
			} else {
				select {
				case <-stopCh:
					return
				default:
				}
			}
			end := min(pos+chunkBytes, len(f.pcm))
			if cb := f.callback(); cb != nil {
				chunk := make([]byte, end-pos)
				copy(chunk, f.pcm[pos:end])
				cb(chunk, uint32(len(chunk)/fakeBytesPerFrame))
			}
			pos = end
		}
		close(f.audioDone)
		<-stopCh
	}()
	return nil
}

func (f *FakeCapture) Stop() {
	f.mu.Lock()
	stopCh, feedDone := f.stopCh, f.feedDone
	f.mu.Unlock()
	if stopCh == nil {
		return
	}
	select {
	case <-stopCh:
	default:
		close(stopCh)
	}
	<-feedDone
}

func (f *FakeCapture) Close() {
	f.Stop()
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}
