/*
NAME
  decode.go - composition of the TiVo recording decode pipeline.

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

// Package decode composes the TiVo recording decode pipeline: the
// envelope reader strips the outer container and derives the cipher keys,
// and the program or transport stream decoder, selected by the envelope
// format flag, decrypts the MPEG payload into the output.
package decode

import (
	"io"

	"github.com/ausocean/utils/logging"
	"github.com/pkg/errors"

	"github.com/ausocean/tivo/container/ps"
	"github.com/ausocean/tivo/container/tivo"
	"github.com/ausocean/tivo/container/ts"
)

// streamDecoder is either of the payload decoders; selected once at
// envelope time.
type streamDecoder interface {
	Process(in io.Reader, out io.Writer) error
}

// Decoder decodes TiVo recordings.
type Decoder struct {
	log    logging.Logger
	compat bool
}

// NewDecoder returns a Decoder configured with the passed options.
func NewDecoder(l logging.Logger, options ...func(*Decoder) error) (*Decoder, error) {
	d := &Decoder{log: l}
	for _, option := range options {
		err := option(d)
		if err != nil {
			return nil, errors.Wrap(err, "could not apply option")
		}
	}
	return d, nil
}

// Compatibility is an option that can be passed to NewDecoder to
// reproduce the byte-exact output of the reference DirectShow filter,
// including resync pass-through, NULL packets and interval masking.
func Compatibility(on bool) func(*Decoder) error {
	return func(d *Decoder) error {
		d.compat = on
		d.log.Debug("configured decoder compatibility mode", "on", on)
		return nil
	}
}

// Decode consumes the recording from in, writing the decrypted MPEG
// stream to out. It blocks until the input is exhausted. The MAK is the
// owner's media access key.
func (d *Decoder) Decode(in io.Reader, out io.Writer, mak string) error {
	env, err := tivo.ReadEnvelope(in, mak)
	if err != nil {
		return errors.Wrap(err, "could not read envelope")
	}
	d.log.Info("envelope read", "format", env.Format.String(), "mpegOffset", env.MPEGOffset, "chunks", len(env.Chunks))

	var sd streamDecoder
	switch env.Format {
	case tivo.FormatTS:
		sd, err = ts.NewDecoder(env.MediaKey[:], d.compat, d.log)
	default:
		sd, err = ps.NewDecoder(env.MediaKey[:], d.log)
	}
	if err != nil {
		return errors.Wrap(err, "could not create stream decoder")
	}

	err = sd.Process(in, out)
	if err != nil {
		return errors.Wrapf(err, "could not decode %v payload", env.Format)
	}
	return nil
}

// Metadata runs envelope processing only and returns the decrypted
// metadata documents, one per chunk. The MPEG payload is not touched.
func (d *Decoder) Metadata(in io.Reader, mak string) ([][]byte, error) {
	return tivo.Metadata(in, mak)
}
