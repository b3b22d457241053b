/*
NAME
  header.go - decoding of per-stream key material.

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

// StreamKeySize is the size of the per-stream key material carried in PES
// private data and in private data packets.
const StreamKeySize = 16

// ParseKey decodes the Turing block number and the crypted sentinel that
// are bit-scattered through 16 bytes of per-stream key material. ok
// reports whether all six always-set bits of the scatter pattern are in
// fact set; when they are not the key is not usable. The transport stream
// decoder then passes the payload through undecrypted, while the program
// stream decoder fails.
func ParseKey(key []byte) (block, crypted uint32, ok bool) {
	if len(key) < StreamKeySize {
		return 0, 0, false
	}

	ok = true
	if key[0]&0x80 == 0 {
		ok = false
	}
	if key[1]&0x40 == 0 {
		ok = false
	}
	block = uint32(key[1]&0x3f) << 18
	block |= uint32(key[2]) << 10
	block |= uint32(key[3]&0xc0) << 2
	if key[3]&0x20 == 0 {
		ok = false
	}
	block |= uint32(key[3]&0x1f) << 3
	block |= uint32(key[4]&0xe0) >> 5
	if key[4]&0x10 == 0 {
		ok = false
	}

	crypted = uint32(key[11]&0x03) << 30
	crypted |= uint32(key[12]) << 22
	crypted |= uint32(key[13]&0xfc) << 14
	if key[13]&0x02 == 0 {
		ok = false
	}
	crypted |= uint32(key[13]&0x01) << 15
	crypted |= uint32(key[14]) << 7
	crypted |= uint32(key[15]&0xfe) >> 1
	if key[15]&0x01 == 0 {
		ok = false
	}
	return block, crypted, ok
}
