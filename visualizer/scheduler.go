package visualizer

import (
	"sync"
	"time"
)

// FrameID identifies a pending frame request. Zero is never issued.
type FrameID uint64

// Scheduler runs callbacks at display cadence. A requested callback runs
// at most once; CancelFrame on an already-run or unknown id is a no-op.
type Scheduler interface {
	RequestFrame(fn func()) FrameID
	CancelFrame(id FrameID)
}

const DefaultFrameInterval = 16 * time.Millisecond

// TickerScheduler fires each request once after a fixed interval.
type TickerScheduler struct {
	interval time.Duration

	mu     sync.Mutex
	next   FrameID
	timers map[FrameID]*time.Timer
}

func NewTickerScheduler(interval time.Duration) *TickerScheduler {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	return &TickerScheduler{interval: interval, timers: make(map[FrameID]*time.Timer)}
}

func (s *TickerScheduler) RequestFrame(fn func()) FrameID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	id := s.next
	s.timers[id] = time.AfterFunc(s.interval, func() {
		s.mu.Lock()
		_, ok := s.timers[id]
		delete(s.timers, id)
		s.mu.Unlock()
		if ok {
			fn()
		}
	})
	return id
}

func (s *TickerScheduler) CancelFrame(id FrameID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
}

// Pending reports how many requests have not yet fired.
func (s *TickerScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}
