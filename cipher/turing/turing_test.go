/*
NAME
  turing_test.go - tests for the Turing stream cipher.

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

package turing

import (
	"bytes"
	"testing"

	"github.com/pkg/errors"
)

// TestDeterminism checks that two freshly keyed ciphers produce identical
// keystream for identical key and IV.
func TestDeterminism(t *testing.T) {
	key := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10, 0x11, 0x12, 0x13, 0x14}
	iv := []byte{0xaa, 0xbb, 0xcc, 0xdd, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88, 0x99, 0x00, 0xfe, 0xed, 0xbe, 0xef, 0xca, 0xfe}

	var bufs [2][MaxStream + 8]byte
	for i := range bufs {
		c := NewCipher()
		if err := c.SetKey(key); err != nil {
			t.Fatalf("could not set key: %v", err)
		}
		if err := c.SetIV(iv); err != nil {
			t.Fatalf("could not set IV: %v", err)
		}
		n, err := c.Generate(bufs[i][:])
		if err != nil {
			t.Fatalf("could not generate keystream: %v", err)
		}
		if n != MaxStream {
			t.Errorf("unexpected keystream length: got: %d, want: %d", n, MaxStream)
		}
	}
	if !bytes.Equal(bufs[0][:], bufs[1][:]) {
		t.Error("keystreams from identically keyed ciphers do not match")
	}
}

// TestRekey checks that re-loading the IV restarts the keystream.
func TestRekey(t *testing.T) {
	key := []byte{0xde, 0xad, 0xbe, 0xef, 0x01, 0x23, 0x45, 0x67, 0x89, 0xab, 0xcd, 0xef, 0x00, 0x11, 0x22, 0x33}
	iv := []byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b}

	c := NewCipher()
	if err := c.SetKey(key); err != nil {
		t.Fatalf("could not set key: %v", err)
	}

	var first, second [MaxStream]byte
	if err := c.SetIV(iv); err != nil {
		t.Fatalf("could not set IV: %v", err)
	}
	c.Generate(first[:])
	if err := c.SetIV(iv); err != nil {
		t.Fatalf("could not re-set IV: %v", err)
	}
	c.Generate(second[:])

	if !bytes.Equal(first[:], second[:]) {
		t.Error("keystream did not restart after IV reload")
	}
}

// TestXORReversibility checks that applying the keystream twice returns
// the original bytes.
func TestXORReversibility(t *testing.T) {
	key := []byte("an example 20b key..")
	iv := []byte("twenty bytes of iv..")

	plain := make([]byte, 3*MaxStream)
	for i := range plain {
		plain[i] = byte(i * 7)
	}

	work := make([]byte, len(plain))
	copy(work, plain)
	for pass := 0; pass < 2; pass++ {
		c := NewCipher()
		if err := c.SetKey(key); err != nil {
			t.Fatalf("could not set key: %v", err)
		}
		if err := c.SetIV(iv); err != nil {
			t.Fatalf("could not set IV: %v", err)
		}
		var ks [MaxStream + 8]byte
		for off := 0; off < len(work); off += MaxStream {
			c.Generate(ks[:])
			for i := 0; i < MaxStream && off+i < len(work); i++ {
				work[off+i] ^= ks[i]
			}
		}
	}

	if !bytes.Equal(work, plain) {
		t.Error("double decryption did not return original bytes")
	}
}

func TestKeySizes(t *testing.T) {
	tests := []struct {
		key  []byte
		want error
	}{
		{key: make([]byte, 7), want: ErrKeySize},
		{key: make([]byte, 4), want: ErrKeySize},
		{key: make([]byte, 36), want: ErrKeySize},
		{key: make([]byte, 20), want: nil},
		{key: make([]byte, 8), want: nil},
	}

	for i, test := range tests {
		err := NewCipher().SetKey(test.key)
		if errors.Cause(err) != test.want {
			t.Errorf("did not get expected error for test %d: got: %v, want: %v", i, err, test.want)
		}
	}
}

func TestIVRequiresKey(t *testing.T) {
	if err := NewCipher().SetIV(make([]byte, 20)); err != ErrKeyOrder {
		t.Errorf("did not get expected error: got: %v, want: %v", err, ErrKeyOrder)
	}
}
