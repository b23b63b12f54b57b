//go:build linux

package hotkey

import "testing"

func TestChordNeedsModifiers(t *testing.T) {
	var c chord
	if e := c.feed(keySpace, keyPress); e != edgeNone {
		t.Fatalf("bare space = %v", e)
	}
	c.feed(keySpace, keyRelease)

	c.feed(keyLeftCtrl, keyPress)
	c.feed(keyRightShft, keyPress)
	if e := c.feed(keySpace, keyPress); e != edgeDown {
		t.Fatalf("chord press = %v", e)
	}
	if e := c.feed(keySpace, 2); e != edgeNone {
		t.Fatalf("autorepeat = %v", e)
	}
	c.feed(keyLeftCtrl, keyRelease)
	if e := c.feed(keySpace, keyRelease); e != edgeUp {
		t.Fatalf("release after modifier up = %v", e)
	}
}
