package visualizer

import "sync"

// ManualScheduler queues frame callbacks until Step runs them.
type ManualScheduler struct {
	mu      sync.Mutex
	next    FrameID
	pending map[FrameID]func()
	order   []FrameID
}

func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{pending: make(map[FrameID]func())}
}

func (m *ManualScheduler) RequestFrame(fn func()) FrameID {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	m.pending[m.next] = fn
	m.order = append(m.order, m.next)
	return m.next
}

func (m *ManualScheduler) CancelFrame(id FrameID) {
	m.mu.Lock()
	delete(m.pending, id)
	m.mu.Unlock()
}

// Step runs every callback pending at the time of the call and reports
// how many ran. Callbacks requested during Step wait for the next one.
func (m *ManualScheduler) Step() int {
	m.mu.Lock()
	ids := m.order
	m.order = nil
	var fns []func()
	for _, id := range ids {
		if fn, ok := m.pending[id]; ok {
			fns = append(fns, fn)
			delete(m.pending, id)
		}
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
	return len(fns)
}

func (m *ManualScheduler) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// RecordingSurface keeps the rectangles of the last frame.
type RecordingSurface struct {
	mu       sync.Mutex
	Width    float64
	Height   float64
	Ratio    float64
	PxWidth  int
	PxHeight int
	Rects    []Bar
	Clears   int
	Presents int
}

func (s *RecordingSurface) Size() (float64, float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Width, s.Height
}

func (s *RecordingSurface) PixelRatio() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Ratio
}

func (s *RecordingSurface) Resize(w, h int) {
	s.mu.Lock()
	s.PxWidth, s.PxHeight = w, h
	s.mu.Unlock()
}

func (s *RecordingSurface) Clear() {
	s.mu.Lock()
	s.Rects = nil
	s.Clears++
	s.mu.Unlock()
}

func (s *RecordingSurface) FillRect(x, y, w, h float64) {
	s.mu.Lock()
	s.Rects = append(s.Rects, Bar{X: x, Y: y, Width: w, Height: h})
	s.mu.Unlock()
}

func (s *RecordingSurface) Present() {
	s.mu.Lock()
	s.Presents++
	s.mu.Unlock()
}

// SetSize changes the logical size, as a window resize would.
func (s *RecordingSurface) SetSize(w, h float64) {
	s.mu.Lock()
	s.Width, s.Height = w, h
	s.mu.Unlock()
}

func (s *RecordingSurface) Snapshot() []Bar {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Bar(nil), s.Rects...)
}

func (s *RecordingSurface) PixelSize() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.PxWidth, s.PxHeight
}
