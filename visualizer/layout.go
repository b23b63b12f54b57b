package visualizer

import "math"

// Bar is one rectangle in logical surface units.
type Bar struct {
	X, Y          float64
	Width, Height float64
}

// Layout maps amplitude samples (0..255) onto vertically centred bars
// spanning width. Half as many bars as samples are drawn; each takes 70%
// of its slot and leaves 30% as spacing. Any audible sample is at least
// one unit tall.
func Layout(data []uint8, width, height float64) []Bar {
	bufLen := len(data)
	numBars := bufLen / 2
	if numBars == 0 || width <= 0 || height <= 0 {
		return nil
	}

	total := width / float64(numBars)
	barWidth := math.Max(1, math.Floor(total*0.7))
	spacing := math.Max(0, math.Floor(total*0.3))
	step := float64(bufLen) / float64(numBars)

	bars := make([]Bar, 0, numBars)
	x := 0.0
	for i := 0; i < numBars; i++ {
		if x >= width {
			break
		}
		v := float64(data[int(math.Floor(float64(i)*step))])
		h := v / 255 * height
		if h > 0 && h < 1 {
			h = 1
		}
		h = math.Round(h)
		bars = append(bars, Bar{
			X:      math.Floor(x),
			Y:      math.Round((height - h) / 2),
			Width:  barWidth,
			Height: h,
		})
		x += barWidth + spacing
	}
	return bars
}
