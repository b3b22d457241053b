/*
NAME
  ps.go - decryption of TiVo program stream payloads.

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

// Package ps provides the program stream side of the TiVo recording
// decoder. The decoder scans for MPEG start codes byte by byte, carries
// PES packets across, and decrypts scrambled packet payloads in place,
// clearing their scramble control bits.
package ps

import (
	"bufio"
	"io"

	"github.com/ausocean/utils/logging"
	"github.com/pkg/errors"

	"github.com/ausocean/tivo/crypt"
)

// Start-code classes. Codes at or below specialMax are emitted untouched;
// the rest carry a PES packet with either a short or a full header.
const specialMax = 0xba

// Errors returned by Process.
var (
	ErrUnknownStartCode = errors.New("unknown start code")
	ErrMalformedPES     = errors.New("malformed PES header")
)

// Decoder decrypts a TiVo program stream. A Decoder is keyed once with
// the recording's media cipher key and consumed by a single Process call.
type Decoder struct {
	pool *crypt.Pool
	log  logging.Logger
}

// NewDecoder returns a Decoder keyed with the recording's media cipher key.
func NewDecoder(key []byte, l logging.Logger) (*Decoder, error) {
	pool, err := crypt.NewPool(key)
	if err != nil {
		return nil, errors.Wrap(err, "could not create cipher pool")
	}
	return &Decoder{pool: pool, log: l}, nil
}

// Process consumes in until end of input, writing the decrypted program
// stream to out. End of input at a packet boundary or inside a scan is a
// clean termination.
func (d *Decoder) Process(in io.Reader, out io.Writer) error {
	var (
		r      = bufio.NewReaderSize(in, 32<<10)
		w      = bufio.NewWriterSize(out, 32<<10)
		marker = uint32(0xffffffff)
	)
	defer w.Flush()

	for {
		b, err := r.ReadByte()
		if err != nil {
			if err == io.EOF {
				return w.Flush()
			}
			return errors.Wrap(err, "could not read program stream")
		}

		marker = marker<<8 | uint32(b)
		if marker>>8 != 0x000001 {
			err = w.WriteByte(b)
			if err != nil {
				return errors.Wrap(err, "could not write program stream")
			}
			continue
		}

		code := byte(marker)
		switch {
		case code <= specialMax:
			err = w.WriteByte(code)
		case simpleCode(code):
			err = d.packet(r, w, code, false)
		case complexCode(code):
			err = d.packet(r, w, code, true)
		default:
			return errors.Wrapf(ErrUnknownStartCode, "code %#x", code)
		}
		if err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				d.log.Warning("program stream ended inside packet", "code", code)
				return w.Flush()
			}
			return err
		}
		marker = 0xffffffff
	}
}

// simpleCode reports whether the start code carries a PES packet with a
// bare length header.
func simpleCode(c byte) bool {
	switch c {
	case 0xbb, 0xbc, 0xbe, 0xbf, 0xf8:
		return true
	}
	return (c >= 0xf0 && c <= 0xf2) || (c >= 0xfa && c <= 0xff)
}

// complexCode reports whether the start code carries a PES packet with a
// full header including scramble control.
func complexCode(c byte) bool {
	return c == 0xbd || (c >= 0xc0 && c <= 0xef) || (c >= 0xf3 && c <= 0xf7) || c == 0xf9
}

// packet reads, optionally decrypts, and emits one PES packet. The start
// code prefix has already been emitted by the scan; the code byte leads
// the reconstructed packet.
func (d *Decoder) packet(r *bufio.Reader, w *bufio.Writer, code byte, full bool) error {
	headSize := 2
	if full {
		headSize = 5
	}
	head := make([]byte, headSize, headSize+0xffff)
	_, err := io.ReadFull(r, head)
	if err != nil {
		return err
	}

	length := int(head[0])<<8 | int(head[1])
	var (
		scramble     byte
		pesHeaderLen int
	)
	if full {
		if head[2]>>6 != 0x2 {
			return errors.Wrapf(ErrMalformedPES, "code %#x marker bits %#x", code, head[2]>>6)
		}
		scramble = head[2] >> 4 & 0x3
		pesHeaderLen = int(head[4])
	}

	var s *crypt.Stream
	switch scramble {
	case 3:
		if head[3]&0x01 != 0 {
			ext := make([]byte, pesHeaderLen)
			_, err = io.ReadFull(r, ext)
			if err != nil {
				return err
			}
			head = append(head, ext...)
			s, err = d.scrambledKey(code, head[3], ext)
			if err != nil {
				return err
			}
		}
	case 1, 2:
		// Never observed in recordings; treated as unscrambled.
		d.log.Warning("unexpected PES scramble control", "code", code, "scramble", scramble)
	}

	// The packet length counts bytes after the length field; the header
	// bytes beyond it have already been read.
	n := length - (len(head) - 2)
	if n < 0 {
		return errors.Wrapf(ErrMalformedPES, "code %#x length %d shorter than header", code, length)
	}
	rest := make([]byte, n)
	_, err = io.ReadFull(r, rest)
	if err != nil {
		return err
	}
	pkt := append(head, rest...)

	if scramble == 3 {
		// Payload begins after the full PES header; everything from
		// there is decrypted in place.
		off := 5 + pesHeaderLen
		if s != nil && off <= len(pkt) {
			err = s.Decrypt(pkt[off:])
			if err != nil {
				return errors.Wrap(err, "could not decrypt PES payload")
			}
		}
		pkt[2] &^= 0x30
	}
	if code == 0xbc {
		pkt[2] &^= 0x20
	}

	err = w.WriteByte(code)
	if err != nil {
		return errors.Wrap(err, "could not write start code")
	}
	_, err = w.Write(pkt)
	if err != nil {
		return errors.Wrap(err, "could not write PES packet")
	}
	return nil
}

// scrambledKey walks the PES header optional fields to the private data
// region, installs the carried stream key, and returns the prepared
// cipher stream for this packet.
func (d *Decoder) scrambledKey(code, flags byte, ext []byte) (*crypt.Stream, error) {
	off := 0
	switch flags >> 6 {
	case 2:
		off += 5 // PTS.
	case 3:
		off += 10 // PTS and DTS.
	}
	if flags&0x20 != 0 {
		off += 6 // ESCR.
	}
	if flags&0x10 != 0 {
		off += 3 // ES rate.
	}
	if flags&0x08 != 0 {
		off++ // DSM trick mode.
	}
	if flags&0x04 != 0 {
		off++ // Additional copy info.
	}
	if flags&0x02 != 0 {
		off += 2 // CRC.
	}
	if off >= len(ext) {
		return nil, errors.Wrap(ErrMalformedPES, "no room for PES extension byte")
	}
	e := ext[off]
	off++
	if e&0x80 == 0 {
		return nil, errors.Wrap(ErrMalformedPES, "scrambled packet carries no private data")
	}
	if off+crypt.StreamKeySize > len(ext) {
		return nil, errors.Wrap(ErrMalformedPES, "short PES private data")
	}
	return d.privateData(code, ext[off:off+crypt.StreamKeySize])
}

// privateData decodes the block number from 16 bytes of key material,
// prepares the Turing frame for this stream and block, and burns the
// crypted sentinel through the cipher to advance it into position.
func (d *Decoder) privateData(code byte, key []byte) (*crypt.Stream, error) {
	block, crypted, ok := crypt.ParseKey(key)
	if !ok {
		return nil, errors.Errorf("stream %#x key fails validation bits", code)
	}
	s, err := d.pool.PrepareFrame(code, block)
	if err != nil {
		return nil, errors.Wrap(err, "could not prepare cipher frame")
	}
	sentinel := []byte{byte(crypted >> 24), byte(crypted >> 16), byte(crypted >> 8), byte(crypted)}
	err = s.Decrypt(sentinel)
	if err != nil {
		return nil, errors.Wrap(err, "could not advance cipher past sentinel")
	}
	return s, nil
}
