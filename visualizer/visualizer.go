package visualizer

import (
	"math"
	"sync"
)

// Source supplies the live spectrum while a recording is capturing.
type Source interface {
	Capturing() bool
	ByteFrequencyData(dst []uint8) int
	FrequencyBinCount() int
}

// Surface is a drawable area. Size is in logical units; Resize receives
// the backing size in device pixels.
type Surface interface {
	Size() (width, height float64)
	PixelRatio() float64
	Resize(pxWidth, pxHeight int)
	Clear()
	FillRect(x, y, width, height float64)
}

// Presenter is implemented by surfaces that need an explicit flush once
// a frame is complete.
type Presenter interface {
	Present()
}

// Visualizer draws the level bars of a Source once per frame. The loop
// ends itself on the first frame that finds the source no longer
// capturing.
type Visualizer struct {
	surface Surface
	sched   Scheduler

	mu      sync.Mutex
	src     Source
	running bool
	gen     uint64
	pending FrameID
	buf     []uint8
	frames  int
}

func New(surface Surface, sched Scheduler) *Visualizer {
	return &Visualizer{surface: surface, sched: sched}
}

// Start begins drawing src. A loop already running for an earlier source
// is abandoned.
func (v *Visualizer) Start(src Source) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.gen++
	if v.pending != 0 {
		v.sched.CancelFrame(v.pending)
		v.pending = 0
	}
	v.src = src
	v.running = true
	v.buf = make([]uint8, max(0, src.FrequencyBinCount()))
	v.resizeLocked()
	v.requestLocked(v.gen)
}

func (v *Visualizer) requestLocked(gen uint64) {
	v.pending = v.sched.RequestFrame(func() { v.frame(gen) })
}

func (v *Visualizer) frame(gen uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if gen != v.gen || !v.running {
		return
	}

	v.requestLocked(gen)
	if !v.src.Capturing() {
		v.sched.CancelFrame(v.pending)
		v.pending = 0
		v.running = false
		v.surface.Clear()
		v.present()
		return
	}

	n := v.src.ByteFrequencyData(v.buf)
	w, h := v.surface.Size()
	v.surface.Clear()
	for _, b := range Layout(v.buf[:n], w, h) {
		v.surface.FillRect(b.X, b.Y, b.Width, b.Height)
	}
	v.present()
	v.frames++
}

func (v *Visualizer) present() {
	if p, ok := v.surface.(Presenter); ok {
		p.Present()
	}
}

// Resize recomputes the backing pixel size from the logical size and the
// pixel ratio. It does nothing unless a loop is running.
func (v *Visualizer) Resize() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.running {
		v.resizeLocked()
	}
}

func (v *Visualizer) resizeLocked() {
	w, h := v.surface.Size()
	ratio := v.surface.PixelRatio()
	if ratio <= 0 {
		ratio = 1
	}
	v.surface.Resize(int(math.Round(w*ratio)), int(math.Round(h*ratio)))
}

func (v *Visualizer) Running() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.running
}

// Frames returns how many frames were drawn since construction.
func (v *Visualizer) Frames() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.frames
}
