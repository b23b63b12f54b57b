package hotkey

import (
	"context"
	"testing"
	"time"
)

func expect(t *testing.T, tr *Trigger, want Action) {
	t.Helper()
	select {
	case got, ok := <-tr.Actions():
		if !ok {
			t.Fatalf("actions closed, want %v", want)
		}
		if got != want {
			t.Fatalf("action = %v, want %v", got, want)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for %v", want)
	}
}

func expectNone(t *testing.T, tr *Trigger, d time.Duration) {
	t.Helper()
	select {
	case a := <-tr.Actions():
		t.Fatalf("unexpected action %v", a)
	case <-time.After(d):
	}
}

func TestTriggerHold(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fk := NewFake()
	tr := NewTrigger(ctx, fk, 40*time.Millisecond)

	fk.Press()
	expect(t, tr, ActionStart)
	time.Sleep(80 * time.Millisecond)
	fk.Release()
	expect(t, tr, ActionStop)
}

func TestTriggerTapLatches(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fk := NewFake()
	tr := NewTrigger(ctx, fk, 200*time.Millisecond)

	fk.Press()
	expect(t, tr, ActionStart)
	fk.Release()
	expectNone(t, tr, 60*time.Millisecond)

	fk.Press()
	fk.Release()
	expect(t, tr, ActionStop)
}

func TestTriggerCycles(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fk := NewFake()
	tr := NewTrigger(ctx, fk, 40*time.Millisecond)

	for i := 0; i < 2; i++ {
		fk.Press()
		expect(t, tr, ActionStart)
		time.Sleep(80 * time.Millisecond)
		fk.Release()
		expect(t, tr, ActionStop)

		fk.Press()
		expect(t, tr, ActionStart)
		fk.Release()
		time.Sleep(10 * time.Millisecond)
		fk.Press()
		fk.Release()
		expect(t, tr, ActionStop)
	}
}

func TestTriggerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	tr := NewTrigger(ctx, NewFake(), 0)
	cancel()
	select {
	case _, ok := <-tr.Actions():
		if ok {
			t.Fatal("unexpected action")
		}
	case <-time.After(time.Second):
		t.Fatal("actions not closed after cancel")
	}
}
