//go:build linux

package hotkey

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Linux reads key events straight from evdev; X11 and Wayland grabs are
// not reliable across desktops.

const (
	evKey        = 1
	keyRelease   = 0
	keyPress     = 1
	keyLeftCtrl  = 29
	keyRightCtrl = 97
	keyLeftShift = 42
	keyRightShft = 54
	keySpace     = 57

	inputEventSize = 24
)

var errNoKeyboards = errors.New("no keyboard devices found (is the user in the 'input' group?)")

type edge int

const (
	edgeNone edge = iota
	edgeDown
	edgeUp
)

// chord tracks modifier state for one keyboard.
type chord struct {
	ctrl, shift, active bool
}

func (c *chord) feed(code uint16, value int32) edge {
	down := value == keyPress
	up := value == keyRelease
	switch code {
	case keyLeftCtrl, keyRightCtrl:
		c.ctrl = down || (!up && c.ctrl)
	case keyLeftShift, keyRightShft:
		c.shift = down || (!up && c.shift)
	case keySpace:
		if down && !c.active && c.ctrl && c.shift {
			c.active = true
			return edgeDown
		}
		if up && c.active {
			c.active = false
			return edgeUp
		}
	}
	return edgeNone
}

type evdevHotkey struct {
	keydown chan struct{}
	keyup   chan struct{}
	files   []*os.File
	stop    chan struct{}
	once    sync.Once
}

func New() Hotkey {
	return &evdevHotkey{
		keydown: make(chan struct{}, 1),
		keyup:   make(chan struct{}, 1),
	}
}

func (h *evdevHotkey) Register() error {
	paths, err := keyboards()
	if err != nil {
		return fmt.Errorf("scan input devices: %w", err)
	}
	if len(paths) == 0 {
		return errNoKeyboards
	}
	h.stop = make(chan struct{})
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			continue
		}
		h.files = append(h.files, f)
		go h.read(f)
	}
	if len(h.files) == 0 {
		return fmt.Errorf("cannot open any of %d keyboard(s) (run: sudo usermod -aG input $USER, then log in again)", len(paths))
	}
	return nil
}

func (h *evdevHotkey) read(f *os.File) {
	buf := make([]byte, inputEventSize*16)
	var c chord
	for {
		n, err := f.Read(buf)
		if err != nil {
			return
		}
		select {
		case <-h.stop:
			return
		default:
		}
		for i := 0; i+inputEventSize <= n; i += inputEventSize {
			if binary.LittleEndian.Uint16(buf[i+16:]) != evKey {
				continue
			}
			code := binary.LittleEndian.Uint16(buf[i+18:])
			value := int32(binary.LittleEndian.Uint32(buf[i+20:]))
			switch c.feed(code, value) {
			case edgeDown:
				send(h.keydown)
			case edgeUp:
				send(h.keyup)
			}
		}
	}
}

func (h *evdevHotkey) Unregister() {
	h.once.Do(func() {
		if h.stop != nil {
			close(h.stop)
		}
		for _, f := range h.files {
			f.Close()
		}
	})
}

func (h *evdevHotkey) Keydown() <-chan struct{} { return h.keydown }
func (h *evdevHotkey) Keyup() <-chan struct{}   { return h.keyup }

func keyboards() ([]string, error) {
	entries, err := os.ReadDir("/dev/input")
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "event") && hasKeys(e.Name()) {
			out = append(out, filepath.Join("/dev/input", e.Name()))
		}
	}
	return out, nil
}

// hasKeys reports whether the device advertises a full key bitmap; mice
// and power buttons report a short one.
func hasKeys(event string) bool {
	data, err := os.ReadFile(filepath.Join("/sys/class/input", event, "device", "capabilities", "key"))
	if err != nil {
		return false
	}
	return len(strings.TrimSpace(string(data))) > 10
}

// Diagnose reports whether the record chord can be listened for.
func Diagnose() (string, error) {
	paths, err := keyboards()
	if err != nil {
		return "", fmt.Errorf("scan input devices: %w", err)
	}
	if len(paths) == 0 {
		return "", errNoKeyboards
	}
	for _, p := range paths {
		if f, err := os.Open(p); err == nil {
			f.Close()
			return fmt.Sprintf("%d keyboard(s), listening on %s for %s", len(paths), p, Chord), nil
		}
	}
	return "", fmt.Errorf("found %d keyboard(s) but cannot open any (run: sudo usermod -aG input $USER)", len(paths))
}
