/*
NAME
  resync.go - recovery of packet alignment after sync loss.

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
	"bufio"
	"io"
)

// syncConfirm is the number of packet-spaced sync bytes, beyond the first,
// required to accept a resynchronisation point.
const syncConfirm = 4

// resync searches the byte stream for a position at which syncConfirm+1
// packet-spaced sync bytes line up, then realigns the framer there. The
// skipped bytes are passed through in compatibility mode and dropped
// otherwise, but count as written either way. All streams pause
// decryption until fresh keys arrive or the written counter crosses the
// next interval boundary.
func (d *Decoder) resync(r *bufio.Reader, w *bufio.Writer, bad []byte) error {
	win := append(append([]byte(nil), bad...), d.pending...)
	d.pending = nil

	// The packet at position 0 failed to parse, so the search starts past
	// its first byte.
	p := 1
	for {
		// Ensure the window covers every sync position to confirm.
		need := p + syncConfirm*PacketSize + 1
		for len(win) < need {
			var tmp [4096]byte
			n, err := r.Read(tmp[:])
			win = append(win, tmp[:n]...)
			if err != nil {
				// The stream ended before alignment was recovered; pass
				// the tail through in compatibility mode and finish.
				if err == io.EOF {
					d.skip(w, win)
					return io.EOF
				}
				return err
			}
		}

		if aligned(win[p:]) {
			break
		}
		p++
	}

	err := d.skip(w, win[:p])
	if err != nil {
		return err
	}
	d.pending = win[p:]

	for _, st := range d.streams {
		if st != nil {
			st.pause()
		}
	}
	d.resumeAt = (d.written + maskInterval - 1) / maskInterval * maskInterval
	d.log.Warning("transport stream realigned", "skipped", p, "resumeAt", d.resumeAt)
	return nil
}

// aligned reports whether win begins a run of syncConfirm+1 packet-spaced
// sync bytes.
func aligned(win []byte) bool {
	for k := 0; k <= syncConfirm; k++ {
		if win[k*PacketSize] != 0x47 {
			return false
		}
	}
	return true
}

// skip disposes of bytes passed over during resynchronisation: emitted in
// compatibility mode, dropped otherwise, counted as written in both.
func (d *Decoder) skip(w *bufio.Writer, b []byte) error {
	if len(b) == 0 {
		return nil
	}
	if d.compat {
		_, err := w.Write(b)
		if err != nil {
			return err
		}
	}
	d.count(int64(len(b)))
	return nil
}
