package visualizer

import (
	"sync"
	"testing"
	"time"
)

func TestLayoutSizing(t *testing.T) {
	data := make([]uint8, 128)
	for i := range data {
		data[i] = 255
	}
	bars := Layout(data, 640, 100)
	if len(bars) != 64 {
		t.Fatalf("got %d bars, want 64", len(bars))
	}
	if bars[0].Width != 7 {
		t.Errorf("bar width = %v, want 7", bars[0].Width)
	}
	if bars[1].X != 10 {
		t.Errorf("second bar x = %v, want 10", bars[1].X)
	}
	if bars[0].Height != 100 || bars[0].Y != 0 {
		t.Errorf("full bar = %+v", bars[0])
	}
}

func TestLayoutFaintSignalVisible(t *testing.T) {
	data := []uint8{1, 0, 0, 0}
	bars := Layout(data, 100, 50)
	if len(bars) != 2 {
		t.Fatalf("got %d bars", len(bars))
	}
	if bars[0].Height != 1 {
		t.Errorf("faint bar height = %v, want 1", bars[0].Height)
	}
	if bars[0].Y != 25 {
		t.Errorf("faint bar y = %v, want 25", bars[0].Y)
	}
	if bars[1].Height != 0 {
		t.Errorf("silent bar height = %v, want 0", bars[1].Height)
	}
}

func TestLayoutSamplesEveryOtherValue(t *testing.T) {
	data := []uint8{255, 0, 0, 255, 51, 255}
	bars := Layout(data, 30, 10)
	want := []float64{10, 0, 2}
	for i, b := range bars {
		if b.Height != want[i] {
			t.Errorf("bar %d height = %v, want %v", i, b.Height, want[i])
		}
	}
}

func TestLayoutNarrowSurface(t *testing.T) {
	data := make([]uint8, 128)
	bars := Layout(data, 20, 10)
	for _, b := range bars {
		if b.Width < 1 {
			t.Fatalf("bar narrower than one unit: %+v", b)
		}
		if b.X >= 20 {
			t.Fatalf("bar starts past the surface: %+v", b)
		}
	}
	if len(bars) >= 64 {
		t.Errorf("expected truncation at surface edge, got %d bars", len(bars))
	}
	if Layout(nil, 100, 100) != nil {
		t.Error("empty data should produce no bars")
	}
}

type stubSource struct {
	mu        sync.Mutex
	capturing bool
	level     uint8
}

func (s *stubSource) Capturing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capturing
}

func (s *stubSource) set(capturing bool) {
	s.mu.Lock()
	s.capturing = capturing
	s.mu.Unlock()
}

func (s *stubSource) FrequencyBinCount() int { return 8 }

func (s *stubSource) ByteFrequencyData(dst []uint8) int {
	for i := range dst {
		dst[i] = s.level
	}
	return len(dst)
}

func TestVisualizerSelfTerminates(t *testing.T) {
	sched := NewManualScheduler()
	surface := &RecordingSurface{Width: 40, Height: 20, Ratio: 2}
	src := &stubSource{capturing: true, level: 255}
	v := New(surface, sched)

	v.Start(src)
	if w, h := surface.PixelSize(); w != 80 || h != 40 {
		t.Errorf("pixel size = %dx%d, want 80x40", w, h)
	}
	for range 3 {
		if n := sched.Step(); n != 1 {
			t.Fatalf("step ran %d callbacks, want 1", n)
		}
	}
	if got := len(surface.Snapshot()); got != 4 {
		t.Errorf("drew %d bars, want 4", got)
	}
	if v.Frames() != 3 {
		t.Errorf("frames = %d", v.Frames())
	}

	src.set(false)
	sched.Step()
	if v.Running() {
		t.Error("visualizer still running after capture ended")
	}
	if sched.Pending() != 0 {
		t.Errorf("%d frame requests left pending", sched.Pending())
	}
	if len(surface.Snapshot()) != 0 {
		t.Error("surface not cleared on exit")
	}
	if sched.Step() != 0 {
		t.Error("loop kept scheduling after exit")
	}
}

func TestVisualizerRestartAbandonsOldLoop(t *testing.T) {
	sched := NewManualScheduler()
	surface := &RecordingSurface{Width: 40, Height: 20, Ratio: 1}
	v := New(surface, sched)

	v.Start(&stubSource{capturing: true})
	v.Start(&stubSource{capturing: true})
	if sched.Pending() != 1 {
		t.Fatalf("pending = %d, want 1", sched.Pending())
	}
	sched.Step()
	if v.Frames() != 1 {
		t.Errorf("frames = %d, want 1", v.Frames())
	}
}

func TestVisualizerResizeOnlyWhileRunning(t *testing.T) {
	sched := NewManualScheduler()
	surface := &RecordingSurface{Width: 10, Height: 10, Ratio: 1}
	v := New(surface, sched)

	v.Resize()
	if w, _ := surface.PixelSize(); w != 0 {
		t.Errorf("resized while idle: %d", w)
	}

	src := &stubSource{capturing: true}
	v.Start(src)
	surface.SetSize(50, 10)
	v.Resize()
	if w, h := surface.PixelSize(); w != 50 || h != 10 {
		t.Errorf("pixel size = %dx%d, want 50x10", w, h)
	}
}

func TestTickerScheduler(t *testing.T) {
	s := NewTickerScheduler(time.Millisecond)
	fired := make(chan struct{}, 1)
	s.RequestFrame(func() { fired <- struct{}{} })
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("frame never fired")
	}

	id := s.RequestFrame(func() { t.Error("cancelled frame fired") })
	s.CancelFrame(id)
	time.Sleep(10 * time.Millisecond)
	if s.Pending() != 0 {
		t.Errorf("pending = %d", s.Pending())
	}
}
