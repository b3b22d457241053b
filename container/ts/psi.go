/*
NAME
  psi.go - PAT, PMT and TiVo private data parsing.

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

package ts

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/ausocean/tivo/crypt"
)

// TiVo private data packet framing.
const (
	privateFileType  = 0x5469566f // "TiVo".
	privateValidator = 0x8103
	privateEntrySize = 20
)

// Elementary stream type IDs from the PMT mapped to their class. The TiVo
// key-carrying stream is declared with the private data type.
const streamTypePrivate = 0x97

var streamTypes = map[byte]StreamType{
	0x01: StreamVideo, 0x02: StreamVideo, 0x10: StreamVideo, 0x1b: StreamVideo,
	0x80: StreamVideo, 0xea: StreamVideo,
	0x03: StreamAudio, 0x04: StreamAudio, 0x0f: StreamAudio, 0x11: StreamAudio,
	0x81: StreamAudio, 0x8a: StreamAudio,
	streamTypePrivate: StreamPrivateData,
}

// section skips the pointer field and validates the table prelude common
// to PAT and PMT, returning the section body (after the section length
// field) and its declared length.
func section(p []byte, pusi bool, tableID byte) ([]byte, int, error) {
	if pusi {
		if len(p) < 1 {
			return nil, 0, errors.Wrap(ErrMalformedTable, "no room for pointer field")
		}
		p = p[1+int(p[0]):]
	}
	if len(p) < 3 {
		return nil, 0, errors.Wrap(ErrMalformedTable, "no room for table prelude")
	}
	if p[0] != tableID {
		return nil, 0, errors.Wrapf(ErrMalformedTable, "table ID %#x, want %#x", p[0], tableID)
	}
	v := binary.BigEndian.Uint16(p[1:3])
	if v&0xc000 != 0x8000 {
		return nil, 0, errors.Wrapf(ErrMalformedTable, "bad section syntax bits %#x", v>>12)
	}
	length := int(v & 0x0fff)
	return p[3:], length, nil
}

// pat parses a program association table and records the program map PID.
func (d *Decoder) pat(p []byte, pusi bool) error {
	body, length, err := section(p, pusi, 0x00)
	if err != nil {
		return err
	}

	// Transport stream ID, version/current-next, section numbers.
	if len(body) < 5 {
		return errors.Wrap(ErrMalformedTable, "short PAT syntax section")
	}
	body = body[5:]

	// Entries fill the section up to the CRC.
	n := length - 5 - 4
	if n < 0 || n%4 != 0 {
		return errors.Wrapf(ErrMalformedTable, "bad PAT entry length %d", n)
	}
	if len(body) < n {
		return errors.Wrap(ErrMalformedTable, "short PAT entries")
	}
	for off := 0; off < n; off += 4 {
		program := binary.BigEndian.Uint16(body[off : off+2])
		pid := binary.BigEndian.Uint16(body[off+2:off+4]) & 0x1fff
		if program != 0 {
			d.pmtPID = pid
		}
	}
	return nil
}

// pmt parses a program map table, creating a stream for each declared
// elementary PID.
func (d *Decoder) pmt(p []byte, pusi bool) error {
	body, length, err := section(p, pusi, 0x02)
	if err != nil {
		return err
	}

	// Program number, version, section numbers, PCR PID, program info.
	if len(body) < 9 {
		return errors.Wrap(ErrMalformedTable, "short PMT syntax section")
	}
	infoLen := int(binary.BigEndian.Uint16(body[7:9]) & 0x0fff)
	body = body[9:]
	rem := length - 9 - 4 // Entries up to the CRC.
	if rem < infoLen {
		return errors.Wrapf(ErrMalformedTable, "program info of %d bytes overruns section", infoLen)
	}
	if len(body) < infoLen {
		return errors.Wrap(ErrMalformedTable, "short PMT program info")
	}
	body = body[infoLen:]
	rem -= infoLen

	for rem > 0 {
		if rem < 5 || len(body) < 5 {
			return errors.Wrapf(ErrMalformedTable, "bad PMT entry residual %d", rem)
		}
		var (
			typeID = body[0]
			pid    = binary.BigEndian.Uint16(body[1:3]) & 0x1fff
			esLen  = int(binary.BigEndian.Uint16(body[3:5]) & 0x0fff)
		)
		if rem < 5+esLen || len(body) < 5+esLen {
			return errors.Wrapf(ErrMalformedTable, "ES info of %d bytes overruns section", esLen)
		}
		body = body[5+esLen:]
		rem -= 5 + esLen

		if d.streams[pid] == nil {
			typ, ok := streamTypes[typeID]
			if !ok {
				typ = StreamOther
			}
			d.log.Debug("new elementary stream", "pid", pid, "type", typ.String())
			d.streams[pid] = &stream{typ: typ}
		}
	}
	return nil
}

// privateData parses a TiVo private data packet and installs the carried
// per-stream keys, resuming any paused streams.
func (d *Decoder) privateData(p []byte) error {
	if len(p) < 10 {
		return errors.Wrap(ErrMalformedTable, "short private data packet")
	}
	if binary.BigEndian.Uint32(p[0:4]) != privateFileType {
		return errors.Wrap(ErrMalformedTable, "private data file type mismatch")
	}
	if binary.BigEndian.Uint16(p[4:6]) != privateValidator {
		return errors.Wrap(ErrMalformedTable, "private data validator mismatch")
	}
	streamLen := int(p[9])
	p = p[10:]
	if streamLen > len(p) {
		return errors.Wrapf(ErrMalformedTable, "private data of %d bytes overruns packet", streamLen)
	}

	for off := 0; off+privateEntrySize <= streamLen; off += privateEntrySize {
		e := p[off : off+privateEntrySize]
		var (
			pid = binary.BigEndian.Uint16(e[0:2]) & 0x1fff
			id  = e[2]
		)
		st := d.streams[pid]
		if st == nil {
			d.log.Warning("key delivery for PID not in PMT", "pid", pid)
			st = &stream{typ: StreamNotInPMT}
			d.streams[pid] = st
		}
		st.setKey(id, e[4:4+crypt.StreamKeySize])
	}
	return nil
}
