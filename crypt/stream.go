/*
NAME
  stream.go - per-stream Turing cipher state and the stream pool.

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

// Package crypt provides the cipher keying layer of the TiVo recording
// decoder: derivation of recording keys from the media access key, a pool
// of per-stream Turing cipher instances rekeyed per block, and decoding of
// the per-stream key material carried in the recording.
package crypt

import (
	"crypto/sha1"

	"github.com/pkg/errors"

	"github.com/ausocean/tivo/cipher/turing"
)

// Stream holds the Turing cipher state for one elementary stream. A
// Stream is owned by its Pool and must not be shared between pools.
type Stream struct {
	id     byte
	block  uint32
	keyed  bool
	cipher *turing.Cipher
	buf    [turing.MaxStream + 8]byte
	pos    int // Cursor into buf.
	n      int // Length of last generated keystream block.
}

// Pool maintains the mapping from stream ID to Stream, rekeying a stream's
// cipher whenever its block number changes. A Pool is keyed with a derived
// recording key and is not safe for concurrent use.
type Pool struct {
	base    [KeySize]byte
	streams map[byte]*Stream
}

// NewPool returns a Pool keyed with the given derived recording key, which
// must be KeySize bytes.
func NewPool(key []byte) (*Pool, error) {
	if len(key) != KeySize {
		return nil, errors.Errorf("crypt: pool key must be %d bytes, got %d", KeySize, len(key))
	}
	p := &Pool{streams: make(map[byte]*Stream)}
	copy(p.base[:], key)
	return p, nil
}

// PrepareFrame locates or creates the Stream for the given stream ID and,
// if its current block differs, rekeys it: bytes 16..19 of the working key
// are overwritten with the stream ID and the three big-endian bytes of the
// block number, the Turing round key is the SHA-1 of the first 17 working
// key bytes, and the IV is the SHA-1 of all 20. The 17 byte truncation is
// deliberate and must not be "fixed"; the final three bytes are hashed
// into the IV only.
func (p *Pool) PrepareFrame(id byte, block uint32) (*Stream, error) {
	s, ok := p.streams[id]
	if !ok {
		s = &Stream{id: id, cipher: turing.NewCipher()}
		p.streams[id] = s
	}
	if s.keyed && s.block == block {
		return s, nil
	}

	work := p.base
	work[16] = id
	work[17] = byte(block >> 16)
	work[18] = byte(block >> 8)
	work[19] = byte(block)

	key := sha1.Sum(work[:17])
	iv := sha1.Sum(work[:])

	err := s.cipher.SetKey(key[:])
	if err != nil {
		return nil, errors.Wrap(err, "could not set stream cipher key")
	}
	err = s.cipher.SetIV(iv[:])
	if err != nil {
		return nil, errors.Wrap(err, "could not set stream cipher IV")
	}

	for i := range s.buf {
		s.buf[i] = 0
	}
	s.n, err = s.cipher.Generate(s.buf[:])
	if err != nil {
		return nil, errors.Wrap(err, "could not generate keystream")
	}
	s.pos = 0
	s.block = block
	s.keyed = true
	return s, nil
}

// Skip advances the stream's keystream cursor by n bytes, regenerating
// whole keystream blocks as required.
func (s *Stream) Skip(n int) error {
	s.pos += n
	for s.pos >= s.n {
		s.pos -= s.n
		var err error
		s.n, err = s.cipher.Generate(s.buf[:])
		if err != nil {
			return errors.Wrap(err, "could not regenerate keystream during skip")
		}
	}
	return nil
}

// Decrypt XORs each byte of buf in place with the next keystream byte.
func (s *Stream) Decrypt(buf []byte) error {
	for i := range buf {
		if s.pos >= s.n {
			var err error
			s.n, err = s.cipher.Generate(s.buf[:])
			if err != nil {
				return errors.Wrap(err, "could not regenerate keystream during decrypt")
			}
			s.pos = 0
		}
		buf[i] ^= s.buf[s.pos]
		s.pos++
	}
	return nil
}
