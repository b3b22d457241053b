/*
NAME
  bits.go - a non-allocating bit cursor over a byte buffer.

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

package mpeg

// cursor provides bit-granular reads over a byte buffer. Unlike a general
// bitstream reader, field widths here are known at each call site, so the
// cursor only needs read, advance and rewind. The position may be advanced
// past the end of the buffer to account for measured skips that overshoot;
// reads past the end fail.
type cursor struct {
	buf []byte
	pos int // Bit position; may exceed len(buf)*8.
}

// read returns the next n bits (n <= 32) in the least significant part of
// a uint32, advancing the cursor. ok is false, and the cursor unmoved, if
// fewer than n bits remain.
func (c *cursor) read(n int) (v uint32, ok bool) {
	if c.pos+n > len(c.buf)*8 {
		return 0, false
	}
	for i := 0; i < n; i++ {
		p := c.pos + i
		bit := c.buf[p>>3] >> (7 - uint(p&7)) & 1
		v = v<<1 | uint32(bit)
	}
	c.pos += n
	return v, true
}

// readByte returns the next 8 bits. The cursor must be byte aligned.
func (c *cursor) readByte() (byte, bool) {
	if c.pos+8 > len(c.buf)*8 {
		return 0, false
	}
	b := c.buf[c.pos>>3]
	c.pos += 8
	return b, true
}

// advance moves the cursor forward n bits without bounds checking; the
// overshoot, if any, is reported by the cursor position.
func (c *cursor) advance(n int) { c.pos += n }

// rewind moves the cursor back n bits.
func (c *cursor) rewind(n int) {
	c.pos -= n
	if c.pos < 0 {
		c.pos = 0
	}
}

// aligned reports whether the cursor is at a byte boundary.
func (c *cursor) aligned() bool { return c.pos&7 == 0 }

// end returns the bit length of the buffer.
func (c *cursor) end() int { return len(c.buf) * 8 }
