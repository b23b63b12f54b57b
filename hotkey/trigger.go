package hotkey

import (
	"context"
	"time"
)

// DefaultHoldThreshold separates a tap from a hold.
const DefaultHoldThreshold = 400 * time.Millisecond

type Action int

const (
	ActionStart Action = iota
	ActionStop
)

func (a Action) String() string {
	if a == ActionStop {
		return "stop"
	}
	return "start"
}

// Trigger turns raw chord edges into recording actions. A tap starts a
// recording that the next tap stops; holding the chord past the threshold
// records until it is released.
type Trigger struct {
	actions chan Action
}

func NewTrigger(ctx context.Context, hk Hotkey, hold time.Duration) *Trigger {
	if hold <= 0 {
		hold = DefaultHoldThreshold
	}
	t := &Trigger{actions: make(chan Action, 2)}
	go t.run(ctx, hk, hold)
	return t
}

func (t *Trigger) Actions() <-chan Action { return t.actions }

func (t *Trigger) emit(ctx context.Context, a Action) bool {
	select {
	case t.actions <- a:
		return true
	case <-ctx.Done():
		return false
	}
}

func wait(ctx context.Context, ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	case <-ctx.Done():
		return false
	}
}

func (t *Trigger) run(ctx context.Context, hk Hotkey, hold time.Duration) {
	defer close(t.actions)
	for {
		if !wait(ctx, hk.Keydown()) || !t.emit(ctx, ActionStart) {
			return
		}
		timer := time.NewTimer(hold)
		select {
		case <-timer.C:
			if !wait(ctx, hk.Keyup()) || !t.emit(ctx, ActionStop) {
				return
			}
			continue
		case <-hk.Keyup():
			timer.Stop()
		case <-ctx.Done():
			timer.Stop()
			return
		}
		// latched: the next full press stops
		if !wait(ctx, hk.Keydown()) || !wait(ctx, hk.Keyup()) || !t.emit(ctx, ActionStop) {
			return
		}
	}
}
