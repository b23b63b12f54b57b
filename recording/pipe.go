package recording

import (
	"fmt"
	"sync"
	"time"

	"voicenotes/encoder"
)

// encodePipe cuts incoming samples into fixed blocks and encodes them on
// its own goroutine, handing each drained chunk to emit in order.
type encodePipe struct {
	enc  encoder.Encoder
	emit func([]byte)

	mu        sync.Mutex
	sampleBuf []int16
	closed    bool
	blockChan chan []int16
	done      chan struct{}

	encodeTime time.Duration
	encodeErr  error
}

func newEncodePipe(enc encoder.Encoder, emit func([]byte)) *encodePipe {
	p := &encodePipe{
		enc:       enc,
		emit:      emit,
		blockChan: make(chan []int16, 64),
		done:      make(chan struct{}),
	}
	go func() {
		defer close(p.done)
		for block := range p.blockChan {
			start := time.Now()
			if err := p.enc.EncodeBlock(block); err != nil && p.encodeErr == nil {
				p.encodeErr = err
			}
			p.encodeTime += time.Since(start)
			p.emit(p.enc.Drain())
		}
	}()
	return p
}

func (p *encodePipe) feed(samples []int16) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.sampleBuf = append(p.sampleBuf, samples...)
	for len(p.sampleBuf) >= encoder.BlockSize {
		block := make([]int16, encoder.BlockSize)
		copy(block, p.sampleBuf[:encoder.BlockSize])
		p.sampleBuf = p.sampleBuf[encoder.BlockSize:]
		p.blockChan <- block
	}
}

// finish flushes the partial block, waits for the encoder goroutine and
// closes the encoder. Feeds after finish are dropped.
func (p *encodePipe) finish() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.done
		return nil
	}
	p.closed = true
	if len(p.sampleBuf) > 0 {
		p.blockChan <- p.sampleBuf
		p.sampleBuf = nil
	}
	close(p.blockChan)
	p.mu.Unlock()

	<-p.done
	if p.encodeErr != nil {
		return fmt.Errorf("encode: %w", p.encodeErr)
	}
	if err := p.enc.Close(); err != nil {
		return fmt.Errorf("close encoder: %w", err)
	}
	p.emit(p.enc.Drain())
	return nil
}
