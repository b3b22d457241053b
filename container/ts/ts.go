/*
NAME
  ts.go - decryption of TiVo transport stream payloads.

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

// Package ts provides the transport stream side of the TiVo recording
// decoder: a 188-byte packet framer, PAT/PMT and TiVo private data
// parsing, per-PID stream tracking with PES header carry across packet
// boundaries, selective payload decryption, and resynchronisation after
// sync loss.
package ts

import (
	"bufio"
	"io"

	"github.com/Comcast/gots/v2/packet"
	"github.com/ausocean/utils/logging"
	"github.com/pkg/errors"

	"github.com/ausocean/tivo/codec/mpeg"
	"github.com/ausocean/tivo/crypt"
)

// PacketSize is the size of an MPEG-TS packet.
const PacketSize = 188

// Standard PIDs.
const (
	patPID  = 0x0000
	nullPID = 0x1fff
)

// pidCount bounds the 13-bit PID space; streams are kept in a flat sparse
// array rather than a map.
const pidCount = 0x2000

// maskInterval is the interval of written bytes at which compatibility
// mode masks the scramble control bits of the straddling packet, and at
// which decryption resumes after a sync loss.
const maskInterval = 0x100000

// Errors returned by Process.
var (
	ErrPrivateAdaptation = errors.New("private adaptation field data unsupported")
	ErrMalformedTable    = errors.New("malformed PSI table")
)

// errSyncLost triggers resynchronisation; it never escapes Process.
var errSyncLost = errors.New("sync lost")

// StreamType is the declared type of a PID from the PMT.
type StreamType int

const (
	StreamNone StreamType = iota
	StreamVideo
	StreamAudio
	StreamPrivateData
	StreamOther
	StreamNotInPMT
)

func (t StreamType) String() string {
	switch t {
	case StreamVideo:
		return "video"
	case StreamAudio:
		return "audio"
	case StreamPrivateData:
		return "private data"
	case StreamOther:
		return "other"
	case StreamNotInPMT:
		return "not in PMT"
	}
	return "none"
}

// stream is the per-PID decryption state.
type stream struct {
	typ      StreamType
	streamID byte // Turing stream selector from the private data packet.
	key      [crypt.StreamKeySize]byte
	haveKey  bool
	paused   bool
	carry    int // PES header bytes still owed by following packets.
	parser   mpeg.Parser
}

// pause suspends decryption for the stream until a new key arrives.
func (s *stream) pause() { s.paused = true }

// setKey installs new key material, which also resumes decryption.
func (s *stream) setKey(id byte, key []byte) {
	s.streamID = id
	copy(s.key[:], key)
	s.haveKey = true
	s.paused = false
}

// Decoder decrypts a TiVo transport stream. A Decoder is keyed once with
// the recording's media cipher key and consumed by a single Process call.
type Decoder struct {
	pool   *crypt.Pool
	log    logging.Logger
	compat bool

	streams [pidCount]*stream
	pmtPID  uint16

	pending  []byte // Bytes read ahead of the framer, mostly by resync.
	written  int64  // Bytes emitted, including bytes skipped by resync.
	resumeAt int64  // Written-byte threshold at which decryption resumes.
	maskNext bool   // Compatibility mode: mask the next frame too.
}

// NewDecoder returns a Decoder keyed with the recording's media cipher
// key. In compatibility mode the output reproduces the reference filter
// byte for byte, including resync pass-through, NULL packets and the
// interval masking quirk; otherwise those are suppressed for a clean
// stream.
func NewDecoder(key []byte, compat bool, l logging.Logger) (*Decoder, error) {
	pool, err := crypt.NewPool(key)
	if err != nil {
		return nil, errors.Wrap(err, "could not create cipher pool")
	}
	return &Decoder{pool: pool, log: l, compat: compat}, nil
}

// Process consumes in until end of input, writing the decrypted transport
// stream to out. End of input on a packet boundary, or inside a packet,
// terminates cleanly.
func (d *Decoder) Process(in io.Reader, out io.Writer) error {
	r := bufio.NewReaderSize(in, 32<<10)
	w := bufio.NewWriterSize(out, 32<<10)
	defer w.Flush()

	var buf [PacketSize]byte
	for {
		err := d.next(r, buf[:])
		if err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return w.Flush()
			}
			return errors.Wrap(err, "could not read transport stream")
		}

		err = d.packet(w, buf[:])
		if err == errSyncLost {
			d.log.Warning("transport stream sync lost", "offset", d.written)
			err = d.resync(r, w, buf[:])
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return w.Flush()
			}
		}
		if err != nil {
			return err
		}
	}
}

// next fills buf with the next 188 bytes, draining read-ahead from resync
// before touching the reader.
func (d *Decoder) next(r io.Reader, buf []byte) error {
	if len(d.pending) >= PacketSize {
		copy(buf, d.pending[:PacketSize])
		d.pending = d.pending[PacketSize:]
		return nil
	}
	n := copy(buf, d.pending)
	d.pending = d.pending[:0]
	_, err := io.ReadFull(r, buf[n:])
	if err == io.EOF && n > 0 {
		return io.ErrUnexpectedEOF
	}
	return err
}

// packet parses and processes a single 188-byte packet.
func (d *Decoder) packet(w *bufio.Writer, buf []byte) error {
	var pkt packet.Packet
	copy(pkt[:], buf)

	if buf[0] != 0x47 || buf[1]&0x80 != 0 {
		return errSyncLost
	}

	// Header length: the fixed header plus any adaptation field.
	headerLen := 4
	if packet.ContainsAdaptationField(&pkt) {
		afLen := int(buf[4])
		if afLen > 0 {
			if buf[5]&0x02 != 0 {
				return errors.Wrapf(ErrPrivateAdaptation, "PID %d", pkt.PID())
			}
		}
		headerLen += 1 + afLen
		if headerLen > PacketSize {
			headerLen = PacketSize
		}
	}

	pid := uint16(pkt.PID())
	if pid == nullPID {
		if d.compat {
			return d.emit(w, buf)
		}
		return nil
	}

	// Packets without payload, such as PCR-only adaptation fields, need
	// no processing.
	if buf[3]&0x10 == 0 || headerLen >= PacketSize {
		return d.emit(w, buf)
	}

	switch {
	case pid == patPID:
		err := d.pat(buf[headerLen:], pkt.PayloadUnitStartIndicator())
		if err != nil {
			return err
		}
		return d.emit(w, buf)
	case pid == d.pmtPID && pid != 0:
		err := d.pmt(buf[headerLen:], pkt.PayloadUnitStartIndicator())
		if err != nil {
			return err
		}
		return d.emit(w, buf)
	}

	st := d.streams[pid]
	if st == nil {
		d.log.Warning("packet for PID not in PMT", "pid", pid)
		st = &stream{typ: StreamNotInPMT}
		d.streams[pid] = st
	}

	if st.typ == StreamPrivateData {
		err := d.privateData(buf[headerLen:])
		if err != nil {
			return err
		}
		return d.emit(w, buf)
	}

	return d.media(w, buf, st, headerLen, pkt.PayloadUnitStartIndicator())
}

// media processes an elementary stream packet: it tracks the PES header
// offset across packet boundaries and decrypts the scrambled portion of
// the payload.
func (d *Decoder) media(w *bufio.Writer, buf []byte, st *stream, headerLen int, pusi bool) error {
	payload := buf[headerLen:]
	scrambled := buf[3]&0xc0 != 0

	// A previous packet's PES header may extend past this whole payload.
	if st.carry > len(payload) {
		st.carry -= len(payload)
		return d.emit(w, buf)
	}

	pesOff := 0
	if pusi || st.carry > 0 || st.parser.Unfinished() {
		if pusi {
			st.parser.Reset()
			st.carry = 0
		}
		n, pesScrambled := st.parser.HeaderLen(payload[st.carry:])
		if pesScrambled {
			// The header declared the packet scrambled; decrypt from the
			// very start of this payload.
			pesOff = 0
			st.carry = 0
		} else {
			sum := st.carry + n
			if sum <= len(payload) {
				pesOff = sum
				st.carry = 0
			} else {
				pesOff = len(payload)
				st.carry = sum - len(payload)
			}
		}
	}

	if scrambled && pesOff < len(payload) {
		switch {
		case !st.haveKey:
			d.log.Warning("scrambled packet before key delivery", "type", st.typ.String())
		case st.paused:
			// Waiting on a fresh key after sync loss.
		default:
			block, _, ok := crypt.ParseKey(st.key[:])
			if !ok {
				d.log.Warning("stream key fails validation bits", "type", st.typ.String())
				break
			}
			s, err := d.pool.PrepareFrame(st.streamID, block)
			if err != nil {
				return errors.Wrap(err, "could not prepare cipher frame")
			}
			buf[3] &^= 0xc0
			err = s.Decrypt(payload[pesOff:])
			if err != nil {
				return errors.Wrap(err, "could not decrypt payload")
			}
		}
	}

	return d.emit(w, buf)
}

// emit writes one packet, maintaining the written-byte counter, the
// deferred decryption resume point, and the compatibility masking quirk.
func (d *Decoder) emit(w *bufio.Writer, buf []byte) error {
	if d.compat {
		if d.maskNext {
			buf[3] &= 0x3f
			d.maskNext = false
		}
		// Mask the scramble control bits of the packet straddling each
		// interval boundary, reproducing the reference filter.
		boundary := (d.written + PacketSize - 1) / maskInterval * maskInterval
		if boundary > 0 && boundary >= d.written {
			buf[3] &= 0x3f
			d.maskNext = buf[0] == 0x47
		}
	}

	n, err := w.Write(buf)
	d.count(int64(n))
	if err != nil {
		return errors.Wrap(err, "could not write transport stream")
	}
	return nil
}

// count advances the written-byte counter and resumes decryption globally
// once the deferred resume point is reached.
func (d *Decoder) count(n int64) {
	d.written += n
	if d.resumeAt > 0 && d.written >= d.resumeAt {
		for _, st := range d.streams {
			if st != nil {
				st.paused = false
			}
		}
		d.resumeAt = 0
	}
}
