/*
NAME
  prefetch.go - an asynchronous read-ahead buffer for pipe sources.

DESCRIPTION
  See Readme.md

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package prefetch provides an asynchronous read-ahead buffer for input
// sources whose producer cannot tolerate head-of-line blocking, such as a
// pipe from a download. A background reader fills a growable buffer; the
// foreground read blocks only when the buffer is empty and the source is
// still open. This is a convenience for pipe inputs, not part of the
// decode contract; file inputs read synchronously.
package prefetch

import (
	"io"
	"sync"

	"github.com/ausocean/utils/logging"
)

// Buffer sizing. The buffer starts small and doubles up to maxBuffer as
// the producer outpaces the consumer; unread bytes shift down to index 0
// whenever the read cursor crosses the high-water mark.
const (
	initBuffer = 64 << 10
	maxBuffer  = 8 << 20
	chunkSize  = 32 << 10
)

// Reader is an io.Reader that reads ahead of its consumer. Close releases
// the background reader; the source itself is not closed.
type Reader struct {
	src io.Reader
	log logging.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	buf    []byte
	r      int // Read cursor into buf.
	err    error
	closed bool
}

// NewReader returns a Reader pulling from src, and starts its background
// reader.
func NewReader(src io.Reader, l logging.Logger) *Reader {
	p := &Reader{src: src, log: l, buf: make([]byte, 0, initBuffer)}
	p.cond = sync.NewCond(&p.mu)
	go p.fill()
	return p
}

// fill is the background reader. It appends source bytes to the buffer,
// doubling its capacity up to the limit, and waits for the consumer when
// the buffer is full at that limit.
func (p *Reader) fill() {
	var chunk [chunkSize]byte
	for {
		n, err := p.src.Read(chunk[:])

		p.mu.Lock()
		for !p.closed && len(p.buf)-p.r+n > maxBuffer {
			p.cond.Wait()
		}
		if p.closed {
			p.mu.Unlock()
			return
		}
		if n > 0 {
			if len(p.buf)+n > cap(p.buf) && p.r > 0 {
				// Reclaim consumed space before considering growth.
				m := copy(p.buf, p.buf[p.r:])
				p.buf = p.buf[:m]
				p.r = 0
			}
			p.grow(n)
			p.buf = append(p.buf, chunk[:n]...)
		}
		if err != nil {
			p.err = err
			p.cond.Broadcast()
			p.mu.Unlock()
			return
		}
		p.cond.Broadcast()
		p.mu.Unlock()
	}
}

// grow doubles the buffer capacity, up to the limit, until n more bytes fit.
// Must be called with the lock held.
func (p *Reader) grow(n int) {
	c := cap(p.buf)
	for c < maxBuffer && len(p.buf)+n > c {
		c *= 2
	}
	if c > maxBuffer {
		c = maxBuffer
	}
	if c != cap(p.buf) {
		p.log.Debug("growing prefetch buffer", "cap", c)
		nb := make([]byte, len(p.buf), c)
		copy(nb, p.buf)
		p.buf = nb
	}
}

// shift moves unread bytes down to index 0 once the read cursor crosses
// the high-water mark of half the capacity. Must be called with the lock
// held.
func (p *Reader) shift() {
	if p.r < cap(p.buf)/2 {
		return
	}
	n := copy(p.buf, p.buf[p.r:])
	p.buf = p.buf[:n]
	p.r = 0
}

// Read implements io.Reader. It blocks only while the buffer is empty and
// the source has not yet ended.
func (p *Reader) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for p.r == len(p.buf) && p.err == nil && !p.closed {
		p.cond.Wait()
	}
	if p.closed {
		return 0, io.ErrClosedPipe
	}
	if p.r == len(p.buf) {
		return 0, p.err
	}

	n := copy(b, p.buf[p.r:])
	p.r += n
	p.shift()
	p.cond.Broadcast()
	return n, nil
}

// Close stops the background reader and unblocks any waiting Read.
func (p *Reader) Close() error {
	p.mu.Lock()
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()
	return nil
}
