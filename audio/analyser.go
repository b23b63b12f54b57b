package audio

import (
	"math"
	"math/cmplx"
	"sync"
)

const (
	AnalyserFFTSize   = 256
	AnalyserSmoothing = 0.75
	analyserMinDB     = -100.0
	analyserMaxDB     = -30.0
)

// Analyser turns the most recent window of captured samples into
// per-bin amplitudes in 0..255, the same scale a browser analyser node
// reports. It is fed from the capture callback and read by the level
// visualizer at frame cadence.
type Analyser struct {
	mu       sync.Mutex
	size     int
	ring     []float64
	pos      int
	window   []float64
	smoothed []float64
	closed   bool
}

func NewAnalyser() *Analyser {
	return newAnalyser(AnalyserFFTSize)
}

func newAnalyser(size int) *Analyser {
	a := &Analyser{
		size:     size,
		ring:     make([]float64, size),
		window:   make([]float64, size),
		smoothed: make([]float64, size/2),
	}
	for i := range a.window {
		x := 2 * math.Pi * float64(i) / float64(size)
		a.window[i] = 0.42 - 0.5*math.Cos(x) + 0.08*math.Cos(2*x)
	}
	return a
}

// FrequencyBinCount is half the FFT size.
func (a *Analyser) FrequencyBinCount() int { return a.size / 2 }

// Write appends PCM16 samples to the analysis window.
func (a *Analyser) Write(samples []int16) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	for _, s := range samples {
		a.ring[a.pos] = float64(s) / 32768.0
		a.pos = (a.pos + 1) % a.size
	}
}

// ByteFrequencyData fills dst with the current spectrum and returns the
// number of bins written.
func (a *Analyser) ByteFrequencyData(dst []uint8) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return 0
	}

	buf := make([]complex128, a.size)
	for i := 0; i < a.size; i++ {
		buf[i] = complex(a.ring[(a.pos+i)%a.size]*a.window[i], 0)
	}
	fft(buf)

	n := min(len(dst), len(a.smoothed))
	for k := range a.smoothed {
		mag := cmplx.Abs(buf[k]) / float64(a.size)
		a.smoothed[k] = AnalyserSmoothing*a.smoothed[k] + (1-AnalyserSmoothing)*mag
	}
	for k := 0; k < n; k++ {
		dst[k] = toByte(a.smoothed[k])
	}
	return n
}

// Close releases the analyser; later reads return no data.
func (a *Analyser) Close() {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
}

func (a *Analyser) Closed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

func toByte(mag float64) uint8 {
	if mag <= 0 {
		return 0
	}
	db := 20 * math.Log10(mag)
	scaled := 255 / (analyserMaxDB - analyserMinDB) * (db - analyserMinDB)
	switch {
	case scaled <= 0:
		return 0
	case scaled >= 255:
		return 255
	}
	return uint8(scaled)
}

// fft is an in-place iterative radix-2 transform; len(x) must be a power of two.
func fft(x []complex128) {
	n := len(x)
	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}
		j ^= bit
		if i < j {
			x[i], x[j] = x[j], x[i]
		}
	}
	for length := 2; length <= n; length <<= 1 {
		angle := -2 * math.Pi / float64(length)
		wl := complex(math.Cos(angle), math.Sin(angle))
		for i := 0; i < n; i += length {
			w := complex(1, 0)
			for k := 0; k < length/2; k++ {
				u := x[i+k]
				v := x[i+k+length/2] * w
				x[i+k] = u + v
				x[i+k+length/2] = u - v
				w *= wl
			}
		}
	}
}
