// Package hotkey listens for the global record chord (Ctrl+Shift+Space)
// so recording can be toggled while another window has focus.
package hotkey

const Chord = "Ctrl+Shift+Space"

type Hotkey interface {
	Register() error
	Unregister()
	Keydown() <-chan struct{}
	Keyup() <-chan struct{}
}

// send delivers without blocking; a pending edge already covers this one.
func send(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
