/*
NAME
  parser.go - measurement of unencrypted MPEG header material.

DESCRIPTION
  See Readme.md

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>
  Trek Hopton <trek@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package mpeg provides scanning of MPEG start codes within payload
// buffers, measuring the length of header material preceding encrypted
// payload so that decryption can begin at the right byte. The scanner
// holds continuation state so that headers straddling buffer boundaries
// are measured correctly.
package mpeg

// MPEG start-code selectors recognised by the scanner. Slice codes occupy
// 0x01..0xaf and PES stream IDs 0xbd and 0xc0..0xef; both are matched by
// range rather than named here.
const (
	codePicture   = 0x00
	codeUserData  = 0xb2
	codeSequence  = 0xb3
	codeExtension = 0xb5
	codeSeqEnd    = 0xb7
	codeGOP       = 0xb8
	codeAncillary = 0xf9
)

// Extension start-code subtypes with known lengths.
const (
	extSequence      = 1
	extSequenceDispl = 2
	extPictureCoding = 8
)

// Scanner continuation states.
const (
	stateScan = iota // Searching for a start-code prefix.
	statePrefix      // A full prefix was seen; the selector byte is pending.
	stateUser        // Inside a user data section.
	stateCode        // Inside a start-code body; held bytes are replayed.
)

// Body dispatch results.
const (
	bodyDone = iota
	bodyStop
	bodySuspend
	bodyScrambled
	bodyUser
)

// Parser measures the unencrypted header material at the start of payload
// buffers. A Parser persists per elementary stream so that headers split
// across packet boundaries are continued rather than re-entered. The zero
// value is ready for use.
type Parser struct {
	state int
	zeros int    // Trailing zero bytes pending from the previous buffer.
	code  byte   // Selector of the start code in progress (stateCode).
	held  []byte // Body bytes seen so far for the code in progress.
	more  bool   // Parsing stopped mid-header at the last buffer boundary.
}

// Reset discards continuation state, for use at a payload unit start.
func (p *Parser) Reset() {
	p.state = stateScan
	p.zeros = 0
	p.code = 0
	p.held = nil
	p.more = false
}

// Unfinished reports whether the previous buffer ended inside header
// material, in which case the next buffer must also be offered to
// HeaderLen before any of its payload is treated as encrypted data.
func (p *Parser) Unfinished() bool { return p.more }

// HeaderLen scans buf and returns the byte count of header material at
// its start. The count may exceed len(buf) when a measured header region
// overshoots the buffer; the caller carries the overshoot into the next
// packet. scrambled reports that a PES header declared its payload
// scrambled, in which case the count is zero and decryption must begin at
// the very start of the buffer.
func (p *Parser) HeaderLen(buf []byte) (n int, scrambled bool) {
	c := cursor{buf: buf}
	heldBits := 0

	state, zeros, code := p.state, p.zeros, p.code
	if state == stateCode && len(p.held) > 0 {
		c.buf = append(append([]byte(nil), p.held...), buf...)
		heldBits = len(p.held) * 8
	}
	p.Reset()

	// result converts the cursor position to a byte count relative to the
	// start of buf, rounding any trailing bits up to a whole byte.
	result := func() int {
		nb := c.pos - heldBits
		if nb <= 0 {
			return 0
		}
		return (nb + 7) / 8
	}

	// suspend records continuation state when the buffer runs out inside
	// header material; everything up to the end of buf is header.
	suspend := func(st int, z int, holdFrom int) int {
		p.state, p.zeros, p.more = st, z, true
		if st == stateCode {
			p.code = code
			p.held = append([]byte(nil), c.buf[holdFrom>>3:]...)
			// The held bytes are replayed, so any overshoot within the
			// body must not be counted twice.
			c.pos = c.end()
		}
		if c.pos < c.end() {
			c.pos = c.end()
		}
		return result()
	}

	var prefix int // Bit position of the current code's prefix.

	for {
		switch state {
		case stateScan:
			if c.pos >= c.end() {
				return suspend(stateScan, 0, 0), false
			}

			// Byte-align. A set bit inside the stuffing region means no
			// further start code can exist in this buffer.
			if !c.aligned() {
				v, _ := c.read(8 - c.pos&7)
				if v != 0 {
					return result(), false
				}
			}

			// Scan for the 0x000001 prefix, tolerating leading zeros.
			scanStart := c.pos
			z := zeros
			zeros = 0
			for {
				b, ok := c.readByte()
				if !ok {
					if z > 2 {
						z = 2
					}
					return suspend(stateScan, z, 0), false
				}
				if b == 0 {
					z++
					continue
				}
				if b == 1 && z >= 2 {
					prefix = c.pos - 24
					if prefix < 0 {
						prefix = 0
					}
					state = statePrefix
					break
				}
				// Data where stuffing was expected; the header ended at
				// the start of this scan.
				c.pos = scanStart
				return result(), false
			}

		case statePrefix:
			sel, ok := c.readByte()
			if !ok {
				// The selector is the first byte of the next buffer.
				return suspend(statePrefix, 0, 0), false
			}
			code = sel
			bodyStart := c.pos
			disp, stopAt := p.body(&c, sel, prefix)
			switch disp {
			case bodyDone:
				state = stateScan
			case bodyUser:
				state = stateUser
			case bodyStop:
				c.pos = stopAt
				return result(), false
			case bodyScrambled:
				return 0, true
			case bodySuspend:
				// Hold the body bytes seen so far; the resumed parse
				// replays them ahead of the next buffer.
				return suspend(stateCode, 0, bodyStart), false
			}

		case stateUser:
			// Consume user data bytes until the next start-code prefix.
			z := zeros
			zeros = 0
			for {
				b, ok := c.readByte()
				if !ok {
					if z > 2 {
						z = 2
					}
					return suspend(stateUser, z, 0), false
				}
				switch {
				case b == 0:
					z++
				case b == 1 && z >= 2:
					c.rewind(24)
					state = stateScan
				default:
					z = 0
				}
				if state == stateScan {
					break
				}
			}

		case stateCode:
			// Replaying a code body held from the previous buffer.
			bodyStart := c.pos
			disp, stopAt := p.body(&c, code, 0)
			switch disp {
			case bodyDone:
				state = stateScan
			case bodyUser:
				state = stateUser
			case bodyStop:
				c.pos = stopAt
				return result(), false
			case bodyScrambled:
				return 0, true
			case bodySuspend:
				return suspend(stateCode, 0, bodyStart), false
			}
		}
	}
}

// body parses the body of the start code sel with the cursor just past
// the selector byte, returning a dispatch result and, for bodyStop, the
// bit position at which header material ends.
func (p *Parser) body(c *cursor, sel byte, prefix int) (disp, stopAt int) {
	switch {
	case sel == codePicture:
		c.advance(10)
		t, ok := c.read(3)
		if !ok {
			return bodySuspend, 0
		}
		c.advance(16)
		if t == 2 || t == 3 {
			c.advance(4)
		}
		if t == 3 {
			c.advance(4)
		}
		// Extra information bytes, each marked by a leading set bit.
		for {
			b, ok := c.read(1)
			if !ok {
				return bodySuspend, 0
			}
			if b == 0 {
				break
			}
			c.advance(8)
		}
		return bodyDone, 0

	case sel >= 0x01 && sel <= 0xaf:
		// A slice begins the encrypted picture payload.
		return bodyStop, prefix

	case sel == codeUserData:
		return bodyUser, 0

	case sel == codeSequence:
		c.advance(62)
		b, ok := c.read(1)
		if !ok {
			return bodySuspend, 0
		}
		if b == 1 {
			c.advance(64 * 8) // Intra quantiser matrix.
		}
		b, ok = c.read(1)
		if !ok {
			return bodySuspend, 0
		}
		if b == 1 {
			c.advance(64 * 8) // Non-intra quantiser matrix.
		}
		return bodyDone, 0

	case sel == codeExtension:
		sub, ok := c.read(4)
		if !ok {
			return bodySuspend, 0
		}
		switch sub {
		case extSequence:
			c.advance(44)
		case extSequenceDispl:
			c.advance(3)
			b, ok := c.read(1)
			if !ok {
				return bodySuspend, 0
			}
			c.advance(29)
			if b == 1 {
				c.advance(24)
			}
		case extPictureCoding:
			c.advance(29)
			b, ok := c.read(1)
			if !ok {
				return bodySuspend, 0
			}
			if b == 1 {
				c.advance(20)
			}
		default:
			return bodyStop, prefix
		}
		return bodyDone, 0

	case sel == codeSeqEnd, sel == codeAncillary:
		return bodyDone, 0

	case sel == codeGOP:
		c.advance(27)
		return bodyDone, 0

	case sel == 0xbd, sel >= 0xc0 && sel <= 0xef:
		// PES header: packet length, then the header extension.
		c.advance(16)
		c.advance(2)
		sc, ok := c.read(2)
		if !ok {
			return bodySuspend, 0
		}
		if sc != 0 {
			return bodyScrambled, 0
		}
		c.advance(12)
		l, ok := c.read(8)
		if !ok {
			return bodySuspend, 0
		}
		c.advance(int(l) * 8)
		return bodyDone, 0
	}

	// Unknown start code.
	return bodyStop, prefix
}
