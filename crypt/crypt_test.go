/*
NAME
  crypt_test.go - tests for key derivation, key parsing and the stream pool.

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

package crypt

import (
	"bytes"
	"encoding/hex"
	"testing"
)

const testMAK = "0123456789"

func TestMediaKey(t *testing.T) {
	const want = "651e40678819d49965c5e49e29cf932d3dc4872b"
	key := MediaKey(testMAK, []byte("tivo recording chunk"))
	if got := hex.EncodeToString(key[:]); got != want {
		t.Errorf("did not get expected media key: got: %s, want: %s", got, want)
	}
}

func TestMetaKey(t *testing.T) {
	const want = "9cd3ca4e1ea464b1fdbe3d901deca8ee8df34b5c"
	key := MetaKey(testMAK)
	if got := hex.EncodeToString(key[:]); got != want {
		t.Errorf("did not get expected metadata key: got: %s, want: %s", got, want)
	}
}

func TestParseKey(t *testing.T) {
	tests := []struct {
		key         []byte
		wantBlock   uint32
		wantCrypted uint32
		wantOK      bool
	}{
		{
			key:         []byte{0x80, 0x40, 0x48, 0xe8, 0xb0, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x03, 0x7a, 0xb7, 0x7d, 0xdf},
			wantBlock:   0x12345,
			wantCrypted: 0xdeadbeef,
			wantOK:      true,
		},
		{
			// Same key with the first always-set bit cleared.
			key:    []byte{0x00, 0x40, 0x48, 0xe8, 0xb0, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x03, 0x7a, 0xb7, 0x7d, 0xdf},
			wantOK: false,
		},
		{
			// Final always-set bit cleared.
			key:    []byte{0x80, 0x40, 0x48, 0xe8, 0xb0, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x03, 0x7a, 0xb7, 0x7d, 0xde},
			wantOK: false,
		},
		{
			// Short key material is never usable.
			key:    []byte{0x80, 0x40},
			wantOK: false,
		},
	}

	for i, test := range tests {
		block, crypted, ok := ParseKey(test.key)
		if ok != test.wantOK {
			t.Errorf("did not get expected ok for test %d: got: %v, want: %v", i, ok, test.wantOK)
			continue
		}
		if !ok {
			continue
		}
		if block != test.wantBlock {
			t.Errorf("did not get expected block for test %d: got: %#x, want: %#x", i, block, test.wantBlock)
		}
		if crypted != test.wantCrypted {
			t.Errorf("did not get expected crypted for test %d: got: %#x, want: %#x", i, crypted, test.wantCrypted)
		}
	}
}

func TestPrepareFrameRekey(t *testing.T) {
	key := MediaKey(testMAK, []byte("chunk"))
	p, err := NewPool(key[:])
	if err != nil {
		t.Fatalf("could not create pool: %v", err)
	}

	s, err := p.PrepareFrame(0xe0, 1)
	if err != nil {
		t.Fatalf("could not prepare frame: %v", err)
	}
	first := make([]byte, 32)
	s.Decrypt(first)

	// Same stream and block; the keystream must continue, not restart.
	s2, err := p.PrepareFrame(0xe0, 1)
	if err != nil {
		t.Fatalf("could not re-prepare frame: %v", err)
	}
	if s2 != s {
		t.Error("expected same stream instance for same stream ID")
	}
	cont := make([]byte, 32)
	s2.Decrypt(cont)
	if bytes.Equal(first, cont) {
		t.Error("keystream restarted on PrepareFrame without block change")
	}

	// New block; the stream must rekey and restart.
	_, err = p.PrepareFrame(0xe0, 2)
	if err != nil {
		t.Fatalf("could not prepare frame for new block: %v", err)
	}
	second := make([]byte, 32)
	s.Decrypt(second)
	if bytes.Equal(first, second) {
		t.Error("keystream did not change after block rekey")
	}

	// Back to block 1; identical keystream to the first visit.
	_, err = p.PrepareFrame(0xe0, 1)
	if err != nil {
		t.Fatalf("could not prepare frame for original block: %v", err)
	}
	again := make([]byte, 32)
	s.Decrypt(again)
	if !bytes.Equal(first, again) {
		t.Error("rekey for original block did not reproduce keystream")
	}
}

func TestSkip(t *testing.T) {
	key := MediaKey(testMAK, []byte("chunk"))

	// Reference: decrypt a run of zeros to capture raw keystream.
	p, _ := NewPool(key[:])
	s, err := p.PrepareFrame(0x01, 7)
	if err != nil {
		t.Fatalf("could not prepare frame: %v", err)
	}
	ref := make([]byte, 3000)
	s.Decrypt(ref)

	for _, skip := range []int{1, 19, 340, 341, 1000} {
		p2, _ := NewPool(key[:])
		s2, err := p2.PrepareFrame(0x01, 7)
		if err != nil {
			t.Fatalf("could not prepare frame: %v", err)
		}
		err = s2.Skip(skip)
		if err != nil {
			t.Fatalf("could not skip: %v", err)
		}
		got := make([]byte, 64)
		s2.Decrypt(got)
		if !bytes.Equal(got, ref[skip:skip+64]) {
			t.Errorf("skip of %d did not align keystream", skip)
		}
	}
}

func TestPoolKeySize(t *testing.T) {
	_, err := NewPool(make([]byte, 16))
	if err == nil {
		t.Error("expected error for short pool key")
	}
}
