/*
NAME
  decode_test.go - end-to-end tests for the decode pipeline.

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

package decode

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/ausocean/utils/logging"
)

const (
	testMAK    = "0123456789"
	mpegOffset = 0x80
	flagTS     = 0x20
)

var metaChunk = []byte("<TvBusMarshalledRecording>test</TvBusMarshalledRecording>")

// buildFile assembles a minimal single-chunk recording around the given
// MPEG payload.
func buildFile(t *testing.T, flags uint16, payload []byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	head := make([]byte, 16)
	copy(head, "TiVo")
	binary.BigEndian.PutUint16(head[6:8], flags)
	binary.BigEndian.PutUint32(head[10:14], mpegOffset)
	binary.BigEndian.PutUint16(head[14:16], 1)
	buf.Write(head)

	ch := make([]byte, 12)
	binary.BigEndian.PutUint32(ch[0:4], uint32(12+len(metaChunk)))
	binary.BigEndian.PutUint32(ch[4:8], uint32(len(metaChunk)))
	binary.BigEndian.PutUint16(ch[8:10], 1)
	buf.Write(ch)
	buf.Write(metaChunk)

	if buf.Len() > mpegOffset {
		t.Fatalf("fixture envelope of %d bytes does not fit before MPEG offset", buf.Len())
	}
	buf.Write(make([]byte, mpegOffset-buf.Len()))
	buf.Write(payload)
	return buf.Bytes()
}

func nullPacket() []byte {
	p := bytes.Repeat([]byte{0xff}, 188)
	p[0], p[1], p[2], p[3] = 0x47, 0x1f, 0xff, 0x10
	return p
}

// TestDecodePS runs a program stream recording with one unscrambled PES
// packet through the full pipeline.
func TestDecodePS(t *testing.T) {
	payload := []byte{
		0x00, 0x00, 0x01, 0xe0, 0x00, 0x0a,
		0x80, 0x00, 0x00,
		0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07,
	}
	in := buildFile(t, 0, payload)

	d, err := NewDecoder((*logging.TestLogger)(t))
	if err != nil {
		t.Fatalf("could not create decoder: %v", err)
	}
	var out bytes.Buffer
	err = d.Decode(bytes.NewReader(in), &out, testMAK)
	if err != nil {
		t.Fatalf("could not decode: %v", err)
	}
	if !bytes.Equal(out.Bytes(), payload) {
		t.Errorf("did not get expected output\ngot:  %x\nwant: %x", out.Bytes(), payload)
	}
}

// TestDecodeTS checks format dispatch on the envelope flag and the
// compatibility option's handling of NULL packets.
func TestDecodeTS(t *testing.T) {
	payload := append(nullPacket(), nullPacket()...)
	in := buildFile(t, flagTS, payload)

	d, err := NewDecoder((*logging.TestLogger)(t))
	if err != nil {
		t.Fatalf("could not create decoder: %v", err)
	}
	var out bytes.Buffer
	err = d.Decode(bytes.NewReader(in), &out, testMAK)
	if err != nil {
		t.Fatalf("could not decode: %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("clean mode emitted %d bytes for NULL packets, want 0", out.Len())
	}

	d, err = NewDecoder((*logging.TestLogger)(t), Compatibility(true))
	if err != nil {
		t.Fatalf("could not create decoder: %v", err)
	}
	out.Reset()
	err = d.Decode(bytes.NewReader(in), &out, testMAK)
	if err != nil {
		t.Fatalf("could not decode: %v", err)
	}
	if !bytes.Equal(out.Bytes(), payload) {
		t.Error("compatibility mode did not pass NULL packets through")
	}
}

func TestMetadata(t *testing.T) {
	in := buildFile(t, 0, nil)
	d, err := NewDecoder((*logging.TestLogger)(t))
	if err != nil {
		t.Fatalf("could not create decoder: %v", err)
	}
	docs, err := d.Metadata(bytes.NewReader(in), testMAK)
	if err != nil {
		t.Fatalf("could not read metadata: %v", err)
	}
	if len(docs) != 1 || !bytes.Equal(docs[0], metaChunk) {
		t.Error("did not get expected metadata documents")
	}
}

func TestDecodeBadMagic(t *testing.T) {
	in := buildFile(t, 0, nil)
	in[0] = 'X'
	d, err := NewDecoder((*logging.TestLogger)(t))
	if err != nil {
		t.Fatalf("could not create decoder: %v", err)
	}
	err = d.Decode(bytes.NewReader(in), &bytes.Buffer{}, testMAK)
	if err == nil {
		t.Error("expected error for bad envelope magic")
	}
}
