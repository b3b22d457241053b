/*
NAME
  envelope.go - parsing and decryption of the TiVo recording envelope.

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

// Package tivo provides parsing of the TiVo recording container: the
// fixed outer header, the metadata chunk table, and derivation of the
// recording cipher keys. The envelope reader leaves its source positioned
// at the first MPEG payload byte, ready for the stream decoders.
package tivo

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"github.com/ausocean/tivo/crypt"
)

// Envelope header layout.
const (
	headerSize    = 16
	chunkHeadSize = 12

	// flagTransport distinguishes a transport stream payload from a
	// program stream payload.
	flagTransport = 0x20
)

// magic is the four byte tag opening every recording.
var magic = [4]byte{'T', 'i', 'V', 'o'}

// Metadata chunk kinds. Any other value is fatal.
const (
	ChunkPlaintext = 0
	ChunkEncrypted = 1
)

// Format is the format of the MPEG payload following the envelope.
type Format int

const (
	FormatPS Format = iota
	FormatTS
)

func (f Format) String() string {
	if f == FormatTS {
		return "transport stream"
	}
	return "program stream"
}

// Errors returned by ReadEnvelope.
var (
	ErrBadMagic  = errors.New("envelope tag is not TiVo")
	ErrMalformed = errors.New("envelope malformed")
)

// Chunk is one metadata chunk. Data holds the payload, decrypted if the
// chunk was encrypted.
type Chunk struct {
	ID   uint16
	Kind uint16
	Data []byte
}

// Envelope is the parsed outer layer of a recording.
type Envelope struct {
	Flags      uint16
	Format     Format
	MPEGOffset uint32
	Chunks     []Chunk

	// MediaKey and MetaKey are the cipher keys derived from the MAK and
	// the first plaintext chunk.
	MediaKey [crypt.KeySize]byte
	MetaKey  [crypt.KeySize]byte
}

// ReadEnvelope reads the recording envelope from r, deriving the cipher
// keys and decrypting any encrypted metadata chunks in the order they
// appear. On return r is positioned at the first MPEG payload byte, i.e.
// exactly MPEGOffset bytes have been consumed.
func ReadEnvelope(r io.Reader, mak string) (*Envelope, error) {
	var head [headerSize]byte
	_, err := io.ReadFull(r, head[:])
	if err != nil {
		return nil, errors.Wrap(ErrMalformed, "short read in envelope header")
	}

	if [4]byte(head[0:4]) != magic {
		return nil, ErrBadMagic
	}

	env := &Envelope{
		Flags:      binary.BigEndian.Uint16(head[6:8]),
		MPEGOffset: binary.BigEndian.Uint32(head[10:14]),
	}
	if env.Flags&flagTransport != 0 {
		env.Format = FormatTS
	}
	chunks := int(binary.BigEndian.Uint16(head[14:16]))

	var (
		pos    = headerSize // Byte offset into the recording.
		cursor int          // Metadata keystream cursor; offset just past the last key-relevant payload.
		pool   *crypt.Pool
	)
	for i := 0; i < chunks; i++ {
		var ch [chunkHeadSize]byte
		_, err = io.ReadFull(r, ch[:])
		if err != nil {
			return nil, errors.Wrapf(ErrMalformed, "short read in chunk %d header", i)
		}
		var (
			size     = int(binary.BigEndian.Uint32(ch[0:4]))
			dataSize = int(binary.BigEndian.Uint32(ch[4:8]))
			id       = binary.BigEndian.Uint16(ch[8:10])
			kind     = binary.BigEndian.Uint16(ch[10:12])
		)
		if size < dataSize+chunkHeadSize {
			return nil, errors.Wrapf(ErrMalformed, "chunk %d size %d too small for %d data bytes", i, size, dataSize)
		}

		data := make([]byte, dataSize)
		_, err = io.ReadFull(r, data)
		if err != nil {
			return nil, errors.Wrapf(ErrMalformed, "short read in chunk %d data", i)
		}
		payloadStart := pos + chunkHeadSize

		switch kind {
		case ChunkPlaintext:
			if pool == nil {
				env.MediaKey = crypt.MediaKey(mak, data)
				env.MetaKey = crypt.MetaKey(mak)
				pool, err = crypt.NewPool(env.MetaKey[:])
				if err != nil {
					return nil, errors.Wrap(err, "could not create metadata cipher pool")
				}
				cursor = payloadStart + dataSize
			}
		case ChunkEncrypted:
			if pool == nil {
				return nil, errors.Wrapf(ErrMalformed, "chunk %d encrypted before any plaintext chunk", i)
			}
			if payloadStart < cursor {
				return nil, errors.Wrapf(ErrMalformed, "chunk %d payload behind metadata cursor", i)
			}
			s, err := pool.PrepareFrame(0, 0)
			if err != nil {
				return nil, errors.Wrap(err, "could not prepare metadata cipher frame")
			}
			err = s.Skip(payloadStart - cursor)
			if err != nil {
				return nil, errors.Wrap(err, "could not skip metadata keystream")
			}
			err = s.Decrypt(data)
			if err != nil {
				return nil, errors.Wrap(err, "could not decrypt metadata chunk")
			}
			cursor = payloadStart + dataSize
		default:
			return nil, errors.Wrapf(ErrMalformed, "chunk %d has unsupported kind %d", i, kind)
		}

		// Discard padding up to the declared chunk size.
		pad := size - dataSize - chunkHeadSize
		if pad > 0 {
			_, err = io.CopyN(io.Discard, r, int64(pad))
			if err != nil {
				return nil, errors.Wrapf(ErrMalformed, "short read in chunk %d padding", i)
			}
		}
		pos += size

		env.Chunks = append(env.Chunks, Chunk{ID: id, Kind: kind, Data: data})
	}

	if pool == nil {
		return nil, errors.Wrap(ErrMalformed, "no plaintext chunk to derive keys from")
	}

	// Consume up to the declared MPEG offset so the caller's reader is
	// positioned at the first payload byte.
	if int(env.MPEGOffset) < pos {
		return nil, errors.Wrapf(ErrMalformed, "MPEG offset %d inside envelope of %d bytes", env.MPEGOffset, pos)
	}
	_, err = io.CopyN(io.Discard, r, int64(int(env.MPEGOffset)-pos))
	if err != nil {
		return nil, errors.Wrap(ErrMalformed, "short read before MPEG payload")
	}
	return env, nil
}

// Metadata reads the envelope only and returns the metadata documents,
// one per chunk, decrypted as necessary. The MPEG payload is untouched.
func Metadata(r io.Reader, mak string) ([][]byte, error) {
	env, err := ReadEnvelope(r, mak)
	if err != nil {
		return nil, err
	}
	docs := make([][]byte, 0, len(env.Chunks))
	for _, c := range env.Chunks {
		docs = append(docs, c.Data)
	}
	return docs, nil
}
