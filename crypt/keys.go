/*
NAME
  keys.go - derivation of recording cipher keys from the media access key.

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
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
)

// metaKeyPrefix is prepended to the MAK when hashing for the metadata key.
const metaKeyPrefix = "tivo:TiVo DVR:"

// KeySize is the size in bytes of a derived cipher key.
const KeySize = sha1.Size

// MediaKey derives the media cipher key from the media access key and the
// first plaintext chunk's payload.
func MediaKey(mak string, chunk []byte) [KeySize]byte {
	h := sha1.New()
	h.Write([]byte(mak))
	h.Write(chunk)
	var key [KeySize]byte
	copy(key[:], h.Sum(nil))
	return key
}

// MetaKey derives the metadata cipher key from the media access key alone.
// The MAK is prefixed, MD5 hashed, and the lowercase hex digest is fed
// back through the media key routine in place of chunk data.
func MetaKey(mak string) [KeySize]byte {
	d := md5.Sum([]byte(metaKeyPrefix + mak))
	return MediaKey(mak, []byte(hex.EncodeToString(d[:])))
}
