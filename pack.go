// pack.go -- big-endian pack/unpack of the 32-bit words used throughout
// the on-disk format.
//
// License GPLv2
//
// The original mcdb packs integers big-endian specifically so that, on an
// aligned address, unpacking degenerates to a single ntohl()/htonl(); see
// mcdb_uint32_pack_bigendian_aligned_macro in the reference C
// implementation. encoding/binary.BigEndian is the idiomatic Go equivalent
// used by every cdb/mcdb Go port we looked at (e.g. colinmarc/cdb's
// wrapper in UNO-SOFT/mcdb packs its own header the same way), so pack.go
// is a thin, allocation-free wrapper rather than a hand-rolled shift chain.

package mcdb

import "encoding/binary"

const uint32Size = 4

// putUint32BE writes v into dst[:4] in big-endian order. dst must be at
// least 4 bytes long.
func putUint32BE(dst []byte, v uint32) {
	binary.BigEndian.PutUint32(dst, v)
}

// uint32BE reads a big-endian uint32 from src[:4]. src must be at least 4
// bytes long.
func uint32BE(src []byte) uint32 {
	return binary.BigEndian.Uint32(src)
}
