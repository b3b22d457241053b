/*
NAME
  tables.go - S-box and Q-box tables for the Turing stream cipher.

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

package turing

// Tables from G. Rose and P. Hawkes, "Turing: a Fast Stream Cipher",
// QUALCOMM reference implementation.

// sbox is the fixed byte substitution table.
var sbox = [256]byte{
	0x61, 0x51, 0xeb, 0x19, 0xb9, 0x5d, 0x60, 0x38,
	0x7c, 0xb2, 0x06, 0x12, 0xc4, 0x5b, 0x16, 0x3b,
	0x2b, 0x18, 0x83, 0xb0, 0x7f, 0x75, 0xfa, 0xa0,
	0xe9, 0xdd, 0x6d, 0x7a, 0x6b, 0x68, 0x2d, 0x49,
	0xb5, 0x1c, 0x90, 0xf7, 0xed, 0x9f, 0xe8, 0xce,
	0xae, 0x77, 0xc2, 0x13, 0xfd, 0xcd, 0x3e, 0xcf,
	0x37, 0x6a, 0xd4, 0xdb, 0x8e, 0x65, 0x1f, 0x1a,
	0x87, 0xcb, 0x40, 0x15, 0x88, 0x0d, 0x35, 0xb3,
	0x11, 0x0f, 0xd0, 0x30, 0x48, 0xf9, 0xa8, 0xac,
	0x85, 0x1d, 0x9a, 0xfb, 0x50, 0x21, 0x91, 0x3c,
	0x46, 0x10, 0x52, 0x09, 0x39, 0xb8, 0x71, 0x4f,
	0x23, 0x31, 0xb1, 0x67, 0x99, 0x66, 0x0b, 0xad,
	0x53, 0x82, 0x59, 0x3f, 0xe6, 0xd3, 0x92, 0xf4,
	0x05, 0xda, 0x94, 0x78, 0xd6, 0x2e, 0x04, 0xef,
	0xa5, 0xbe, 0x25, 0x0a, 0x76, 0xb4, 0xe2, 0x84,
	0x6f, 0x9d, 0x55, 0xbb, 0x2c, 0xa6, 0x74, 0xa9,
	0xfe, 0x93, 0x47, 0x70, 0xe0, 0x4d, 0x8f, 0xa2,
	0xc9, 0xe4, 0xd2, 0xaf, 0xc3, 0x01, 0xe5, 0x00,
	0x5a, 0xf2, 0x08, 0x54, 0x44, 0x22, 0xbf, 0x86,
	0x42, 0xa3, 0x5c, 0x17, 0xc7, 0x33, 0xbd, 0x58,
	0x81, 0x89, 0x07, 0x4b, 0x36, 0x57, 0x8a, 0x95,
	0x8d, 0x79, 0x28, 0xd5, 0x8c, 0x3d, 0x6e, 0x7e,
	0x80, 0xff, 0xca, 0xf0, 0x24, 0xe3, 0x97, 0x9e,
	0x02, 0x45, 0xea, 0xde, 0xc6, 0x98, 0x69, 0xfc,
	0x43, 0xec, 0x29, 0xd8, 0x73, 0xf5, 0x03, 0x5e,
	0x32, 0x5f, 0xd7, 0xb6, 0xdf, 0x9b, 0x7d, 0x62,
	0xcc, 0xf6, 0x14, 0x0c, 0xe1, 0x4c, 0xd9, 0x96,
	0x26, 0xa7, 0x0e, 0x64, 0x27, 0xc0, 0x41, 0xc8,
	0x72, 0x3a, 0x34, 0xc1, 0x20, 0xbc, 0x2a, 0xa1,
	0xf3, 0x56, 0x4a, 0xba, 0xa4, 0xb7, 0xaa, 0xf1,
	0xd1, 0x4e, 0x1e, 0x7b, 0x6c, 0x63, 0x1b, 0xab,
	0xe7, 0x2f, 0x9c, 0xee, 0xf8, 0xdc, 0x8b, 0xc5,
}

// qbox is the fixed word substitution table used by the keyed S-boxes.
var qbox = [256]uint32{
	0x1faa1887, 0x4e5e435c, 0x9165c042, 0x250e6ef4,
	0x5957ee20, 0xd484fed3, 0xa666c502, 0x7e54e8ae,
	0xd12ee9d9, 0xfc1f38d4, 0x49829b5d, 0x1b5cdf3c,
	0x74864249, 0xda2e3963, 0x28f4429f, 0xc8432c35,
	0x4af40325, 0x9fc0dd70, 0xd8973ded, 0x1a02dc5e,
	0xcd175b42, 0xf10012bf, 0x6694d78c, 0xacaab26b,
	0x4ec11b9a, 0x3f168146, 0xc0ea8ec5, 0xb38ac28f,
	0x1fed5c0f, 0xaab4101c, 0xea2db082, 0x470929e1,
	0xe8a46a36, 0x38fad9ec, 0x066f3bf6, 0xf8fa3fe4,
	0x48451a72, 0x2cda49c3, 0x7c977dd7, 0xbbb4f50b,
	0x05886cbb, 0xe7336997, 0x0fd9c1f8, 0x91b15745,
	0x5ef55e61, 0xa3c51e02, 0x9e75855b, 0xb01ac0af,
	0x3153e5b1, 0x39afeff8, 0x955e1e86, 0x8909faa5,
	0x27f67a7d, 0x763e22f9, 0x4607737c, 0xf67dece7,
	0x55037f5c, 0xbbfa40a8, 0x928c5e38, 0x9663290f,
	0xa7f563e0, 0xe606e6bf, 0x5477e231, 0xde5f6766,
	0xc1ad52f9, 0xd24fe925, 0xaa9df9be, 0x8c87c3e5,
	0x67b902e3, 0xc951f299, 0xdf2b7f03, 0xf59dfcbd,
	0x1f8f71fe, 0xcbb270ae, 0x97ce3400, 0x9917a35b,
	0x14813076, 0xe487df57, 0xe10c17f3, 0x6b0d5bfa,
	0x7a8d149c, 0xe1a36598, 0x8bfc4865, 0xed63071e,
	0x32a3d9ae, 0x72589898, 0x2da7bb79, 0x69c532d0,
	0xddf45d42, 0x66185f5e, 0x4ae3696f, 0x0077c191,
	0x6ebf37d9, 0x3b4ccac5, 0xf332d4b0, 0x0b205e86,
	0x34f6ef69, 0xa6f07ea7, 0x88c6147a, 0x48024f8c,
	0x9c4c17f2, 0xd2c80a92, 0x7add4c0b, 0xddaf57d7,
	0x900ac33d, 0x7e0034d4, 0xa1cbddc7, 0xd46dae16,
	0x8c0f217a, 0x5db031b1, 0x8e612e9d, 0xf2bbaa34,
	0xb0acb851, 0xebec6fb6, 0x4d6fcada, 0x54685fbf,
	0x6b6d34cb, 0xf5ecd7ec, 0x2204d14f, 0x71bba31a,
	0xccdfd964, 0x13bab199, 0xc4acb895, 0xb4867c76,
	0x95560ac3, 0xfbe52d80, 0xa9a438e3, 0xd374adac,
	0x562db3e7, 0x2bffede8, 0x932d1875, 0x55d8774b,
	0xec1012ab, 0x349814fb, 0x3b09290a, 0x27a27e03,
	0x2bf543c3, 0xfcb733c9, 0x304a8ce3, 0x79e5c2a2,
	0x17a4c0e1, 0x45e0ec49, 0x3c993383, 0xd2161af9,
	0x48c6436e, 0x73216c64, 0x5dab65a0, 0x5ccfe0d1,
	0x9914a020, 0xf29db1bf, 0xb81c99b4, 0xd94e6ce3,
	0xae13dfa3, 0x6c289dcf, 0x10a024bc, 0xbd73e895,
	0x13fb3e31, 0xa80bb822, 0x0e469dda, 0x7773ad2e,
	0xbc281608, 0x47004061, 0xffb7bc2f, 0xe627a26c,
	0x59fd20c8, 0xb6090e86, 0x46ddf7f7, 0xd237f06b,
	0x76849c4b, 0x68f9ca22, 0x82cbe35d, 0x7205d69b,
	0xeafa908e, 0xdeaf94af, 0x140e773f, 0xd181bd38,
	0x9120a869, 0x11bfbd49, 0xf820a79d, 0x421c040a,
	0x33e0b92b, 0x1cd28988, 0xa7d834f6, 0xfb0e1cde,
	0xfedf83fb, 0xf4d40462, 0x195826a1, 0x7262f39c,
	0x2367ccb3, 0x8b8d5c34, 0xbd6acdbe, 0xb57ef54d,
	0x0db6244d, 0x105dacd7, 0xb9115d84, 0x37524a46,
	0x69212890, 0x404843c9, 0x782611fb, 0xa307aeff,
	0x07097945, 0x99c2afd7, 0x574628b4, 0xeb175428,
	0xb84f6b30, 0x2e335d6e, 0x06f468cf, 0x9a7bbe8a,
	0x00c4850f, 0xa5b7688a, 0x63b430bb, 0xba3854a5,
	0x489ea9e2, 0x94ce54d7, 0x3d80b80d, 0x3838a0f3,
	0xbdfc4514, 0xd7266421, 0xfe5e43d2, 0x13b1c84a,
	0x93f58114, 0xb319d8f4, 0xdb6061ec, 0x39a916bf,
	0xaad5a486, 0x624509d4, 0xabf03ee1, 0xccb85264,
	0x8dfef0d6, 0x22e96fcd, 0x84f4625b, 0x3bc99002,
	0xfe7d20f6, 0x0005d5c2, 0x9fde5ebd, 0x44e0fcc8,
	0x05508142, 0xc587f8b3, 0x3488ee23, 0xbe57c7d9,
	0xe906eaa3, 0xaa55c2b3, 0x2987102e, 0x21eb892b,
	0x4af1c54f, 0x06834276, 0xd36a9fe9, 0x7c5788cc,
	0x8008724b, 0x37be7ce4, 0xdd8ad1ed, 0x89e0cbcc,
	0x1415acc9, 0x1fef3768, 0x647c2f21, 0x058bc894,
}

// mtab is the multiplication table for the LFSR feedback, mapping the top
// byte of a word to the reduction of that word multiplied by the special
// element alpha. Each word entry is the byte-wise GF(2^8) product of its
// index with 0xD02B4367 under the field polynomial 0x14D.
var mtab [256]uint32

func init() {
	for i := range mtab {
		b := byte(i)
		mtab[i] = uint32(gmul(b, 0xd0))<<24 | uint32(gmul(b, 0x2b))<<16 |
			uint32(gmul(b, 0x43))<<8 | uint32(gmul(b, 0x67))
	}
}

// gmul multiplies a and b in GF(2^8) modulo the Turing field polynomial.
func gmul(a, b byte) byte {
	var p uint16
	x, y := uint16(a), uint16(b)
	for y != 0 {
		if y&1 != 0 {
			p ^= x
		}
		x <<= 1
		if x&0x100 != 0 {
			x ^= 0x14d
		}
		y >>= 1
	}
	return byte(p)
}
