package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

var ErrSelectionCancelled = errors.New("device selection cancelled")

// FindDevice returns the device whose ID or name matches query, comparing
// names case-insensitively. An empty query selects the system default (nil).
func FindDevice(ctx Context, query string) (*DeviceInfo, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	devices, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}
	for i, d := range devices {
		if d.ID == query || strings.EqualFold(d.Name, query) {
			return &devices[i], nil
		}
	}
	for i, d := range devices {
		if strings.Contains(strings.ToLower(d.Name), strings.ToLower(query)) {
			return &devices[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrDeviceNotFound, query)
}

// SelectDevice shows an interactive picker on the terminal and returns the
// chosen microphone. A single device is returned without prompting.
func SelectDevice(ctx Context) (*DeviceInfo, error) {
	devices, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}
	if len(devices) == 0 {
		return nil, fmt.Errorf("%w: no capture devices", ErrDeviceNotFound)
	}
	if len(devices) == 1 {
		return &devices[0], nil
	}

	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("setting raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	p := picker{devices: devices, out: os.Stdout}
	p.render()

	buf := make([]byte, 3)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil {
			return nil, fmt.Errorf("reading input: %w", err)
		}
		done, cancelled := p.key(buf[:n])
		switch {
		case cancelled:
			fmt.Fprint(p.out, "\r\n")
			return nil, ErrSelectionCancelled
		case done:
			fmt.Fprint(p.out, "\r\n")
			return &devices[p.cursor], nil
		}
		fmt.Fprintf(p.out, "\x1b[%dA", len(devices)+2)
		p.render()
	}
}

type picker struct {
	devices []DeviceInfo
	cursor  int
	out     io.Writer
}

func (p *picker) render() {
	fmt.Fprint(p.out, "\r\x1b[J")
	fmt.Fprint(p.out, "Choose a microphone (↑/↓, Enter to confirm, Esc to cancel):\r\n\r\n")
	for i, d := range p.devices {
		tag := ""
		if IsBluetooth(d.Name) {
			tag = " \x1b[33m[bluetooth: reduced quality]\x1b[0m"
		}
		if i == p.cursor {
			fmt.Fprintf(p.out, "  \x1b[1;36m> %s%s\x1b[0m\r\n", d.Name, tag)
		} else {
			fmt.Fprintf(p.out, "    %s%s\r\n", d.Name, tag)
		}
	}
}

// key applies one keypress and reports whether the choice is final.
func (p *picker) key(b []byte) (done, cancelled bool) {
	if len(b) == 1 {
		switch b[0] {
		case '\r', '\n':
			return true, false
		case 3, 0x1b, 'q':
			return false, true
		case 'j':
			p.move(1)
		case 'k':
			p.move(-1)
		}
		return false, false
	}
	if len(b) == 3 && b[0] == 0x1b && b[1] == '[' {
		switch b[2] {
		case 'A':
			p.move(-1)
		case 'B':
			p.move(1)
		}
	}
	return false, false
}

func (p *picker) move(delta int) {
	p.cursor = max(0, min(len(p.devices)-1, p.cursor+delta))
}
