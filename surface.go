package main

import (
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// waveMsg carries one rendered visualizer frame.
type waveMsg string

var (
	waveStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	waveDim   = lipgloss.NewStyle().Foreground(lipgloss.Color("236"))
)

// termSurface is a visualizer surface made of terminal cells. Each cell
// holds two vertically stacked pixels drawn with half blocks, so the
// logical height is twice the row count.
type termSurface struct {
	send func(tea.Msg)

	mu         sync.Mutex
	cols, rows int
	w, h       int
	px         []bool
}

func newTermSurface(send func(tea.Msg)) *termSurface {
	return &termSurface{send: send, cols: 40, rows: 4}
}

// SetCells sets the area available in terminal cells.
func (s *termSurface) SetCells(cols, rows int) {
	s.mu.Lock()
	s.cols, s.rows = max(1, cols), max(1, rows)
	s.mu.Unlock()
}

func (s *termSurface) Size() (float64, float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return float64(s.cols), float64(s.rows * 2)
}

func (s *termSurface) PixelRatio() float64 { return 1 }

func (s *termSurface) Resize(w, h int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w, s.h = max(0, w), max(0, h)
	s.px = make([]bool, s.w*s.h)
}

func (s *termSurface) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.px)
}

func (s *termSurface) FillRect(x, y, width, height float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	x0, y0 := max(0, int(x)), max(0, int(y))
	x1, y1 := min(s.w, int(x+width)), min(s.h, int(y+height))
	for py := y0; py < y1; py++ {
		for pxl := x0; pxl < x1; pxl++ {
			s.px[py*s.w+pxl] = true
		}
	}
}

func (s *termSurface) Present() {
	s.send(waveMsg(s.render()))
}

func (s *termSurface) at(x, y int) bool {
	if x >= s.w || y >= s.h {
		return false
	}
	return s.px[y*s.w+x]
}

func (s *termSurface) render() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var b strings.Builder
	for row := 0; row*2 < s.h; row++ {
		var line strings.Builder
		lit := false
		for x := 0; x < s.w; x++ {
			top, bot := s.at(x, row*2), s.at(x, row*2+1)
			switch {
			case top && bot:
				line.WriteString("█")
			case top:
				line.WriteString("▀")
			case bot:
				line.WriteString("▄")
			default:
				line.WriteString(" ")
				continue
			}
			lit = true
		}
		if lit {
			b.WriteString(waveStyle.Render(line.String()))
		} else {
			b.WriteString(waveDim.Render(line.String()))
		}
		b.WriteString("\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}
