/*
NAME
  turing.go - an implementation of the Turing stream cipher.

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

// Package turing implements the Turing stream cipher as defined in
// G. Rose and P. Hawkes, "Turing: a Fast Stream Cipher" (QUALCOMM).
// The cipher is deterministic; given an identical key and IV pair, two
// instances produce identical keystream.
package turing

import "github.com/pkg/errors"

// Register and key size constraints from the algorithm specification.
const (
	regLen = 17 // LFSR length in 32-bit words.
	minKey = 8  // Minimum key size in bytes.
	maxKey = 32 // Maximum key size in bytes.
	maxIV  = 48 // Maximum combined key and IV size in bytes.

	// confounder is mixed into the register during IV loading along with
	// the key and IV word counts.
	confounder = 0x1020300
)

// RoundSize is the number of keystream bytes produced by one round of the
// non-linear filter.
const RoundSize = 20

// MaxStream is the number of keystream bytes produced by one call to
// Generate, being one full cycle of the register (17 rounds). Callers that
// hand Generate a reused buffer should size it MaxStream+8 so a round
// never lands short.
const MaxStream = RoundSize * regLen

// Errors returned by SetKey, SetIV and Generate.
var (
	ErrKeySize  = errors.New("turing: invalid key size")
	ErrIVSize   = errors.New("turing: invalid iv size")
	ErrNoKey    = errors.New("turing: key has not been set")
	ErrKeyOrder = errors.New("turing: key must be set before iv")
)

// Cipher is an instance of the Turing cipher. A Cipher must be keyed with
// SetKey and then SetIV before keystream generation; SetIV may be called
// again to rekey the register for a new frame under the same key.
type Cipher struct {
	key    []uint32
	keybox [4][256]uint32
	reg    [regLen]uint32
	keyed  bool
}

// NewCipher returns a new unkeyed Cipher.
func NewCipher() *Cipher {
	return &Cipher{}
}

// SetKey installs the round key and pre-computes the keyed S-boxes. The
// key size must be a multiple of 4 bytes between 8 and 32 bytes; these
// restrictions are part of the algorithm specification.
func (c *Cipher) SetKey(key []byte) error {
	switch {
	case len(key)%4 != 0:
		return errors.Wrap(ErrKeySize, "key size must be a multiple of 4")
	case len(key) < minKey:
		return errors.Wrapf(ErrKeySize, "key size must be >= %d", minKey)
	case len(key) > maxKey:
		return errors.Wrapf(ErrKeySize, "key size must be <= %d", maxKey)
	}

	c.key = make([]uint32, len(key)/4)
	for i := range c.key {
		c.key[i] = fixedS(joinWord(key[i*4 : i*4+4]))
	}
	hadamard(c.key)

	// Pre-calculate the keyed S-boxes, per the fast implementation
	// outlined in the paper.
	for box := range c.keybox {
		shift := uint(box * 8)
		for i := range sbox {
			octet := byte(i)
			var word uint32
			for pos, k := range c.key {
				octet = sbox[getOctet(k, uint(box))^octet]
				word ^= rotl(qbox[octet], uint(pos)+shift)
			}
			c.keybox[box][i] = (word & rotr(0x00ffffff, shift)) | (uint32(octet) << (24 - shift))
		}
	}
	c.keyed = true
	return nil
}

// SetIV loads the register from the IV, the mixed key words and the
// confounder, then whitens it. SetKey must have been called first. The IV
// size must be a multiple of 4 bytes, and combined key and IV sizes must
// not exceed 48 bytes.
func (c *Cipher) SetIV(iv []byte) error {
	if !c.keyed {
		return ErrKeyOrder
	}
	switch {
	case len(iv)%4 != 0:
		return errors.Wrap(ErrIVSize, "iv size must be a multiple of 4")
	case len(c.key)*4+len(iv) > maxIV:
		return errors.Wrapf(ErrIVSize, "combined key and iv sizes must be <= %d", maxIV)
	}

	r := 0
	for i := 0; i < len(iv)/4; i++ {
		c.reg[r] = fixedS(joinWord(iv[i*4 : i*4+4]))
		r++
	}
	for _, k := range c.key {
		c.reg[r] = k
		r++
	}
	c.reg[r] = uint32(confounder | (len(c.key) << 4) | len(iv)/4)
	r++
	for i := 0; r < regLen; i++ {
		c.reg[r] = c.keyedS(c.reg[i]+c.reg[r-1], 0)
		r++
	}
	hadamard(c.reg[:])
	return nil
}

// Generate fills buf with keystream, producing one register cycle of
// MaxStream bytes, and returns the count written. buf must have room for
// at least MaxStream bytes.
func (c *Cipher) Generate(buf []byte) (int, error) {
	if !c.keyed {
		return 0, ErrNoKey
	}
	if len(buf) < MaxStream {
		return 0, errors.Errorf("turing: generate buffer too short: %d < %d", len(buf), MaxStream)
	}
	for i := 0; i < regLen; i++ {
		c.round(buf[i*RoundSize:])
	}
	return MaxStream, nil
}

// round runs the stepped non-linear filter, writing RoundSize keystream
// bytes to out.
func (c *Cipher) round(out []byte) {
	c.clock()
	a, b, d, e, z := c.reg[16], c.reg[13], c.reg[6], c.reg[1], c.reg[0]

	z += a + b + d + e
	a, b, d, e = a+z, b+z, d+z, e+z
	a, b, d, e, z = c.keyedS(a, 0), c.keyedS(b, 8), c.keyedS(d, 16), c.keyedS(e, 24), c.keyedS(z, 0)
	z += a + b + d + e
	a, b, d, e = a+z, b+z, d+z, e+z

	c.clock()
	c.clock()
	c.clock()

	a, b, d, e, z = a+c.reg[14], b+c.reg[12], d+c.reg[8], e+c.reg[1], z+c.reg[0]
	splitWord(a, out[0:4])
	splitWord(b, out[4:8])
	splitWord(d, out[8:12])
	splitWord(e, out[12:16])
	splitWord(z, out[16:20])

	c.clock()
}

// clock steps the LFSR once.
func (c *Cipher) clock() {
	word := c.reg[15] ^ c.reg[4] ^ (c.reg[0] << 8) ^ mtab[c.reg[0]>>24]
	copy(c.reg[:regLen-1], c.reg[1:])
	c.reg[regLen-1] = word
}

// keyedS applies the keyed S-box to a rotated word.
func (c *Cipher) keyedS(word uint32, rotate uint) uint32 {
	word = rotl(word, rotate)
	return c.keybox[0][byte(word>>24)] ^ c.keybox[1][byte(word>>16)] ^
		c.keybox[2][byte(word>>8)] ^ c.keybox[3][byte(word)]
}

// fixedS is the unkeyed word substitution used during key and IV loading.
func fixedS(word uint32) uint32 {
	for i := uint(0); i < 4; i++ {
		shift := i * 8
		octet := sbox[getOctet(word, i)]
		word = ((word ^ rotl(qbox[octet], shift)) & rotr(0x00ffffff, shift)) | (uint32(octet) << (24 - shift))
	}
	return word
}

// hadamard applies the pseudo-Hadamard transform across words.
func hadamard(words []uint32) {
	var sum uint32
	for _, w := range words {
		sum += w
	}
	words[len(words)-1] = 0
	for i := range words {
		words[i] += sum
	}
}

// getOctet returns octet i of word, where octet 0 is most significant.
func getOctet(word uint32, i uint) byte {
	return byte(word >> (24 - i*8))
}

func joinWord(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func splitWord(w uint32, b []byte) {
	b[0] = byte(w >> 24)
	b[1] = byte(w >> 16)
	b[2] = byte(w >> 8)
	b[3] = byte(w)
}

func rotl(w uint32, n uint) uint32 { return w<<(n%32) | w>>((32-n)%32) }
func rotr(w uint32, n uint) uint32 { return w>>(n%32) | w<<((32-n)%32) }
