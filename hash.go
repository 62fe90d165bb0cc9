// hash.go -- djb hash used to bucket keys into the 256 hash tables
//
// (c) Sudhi Herle 2018
//
// License GPLv2
//
// If you need a commercial license for this work, please contact
// the author.
//
// This software does not come with any express or implied
// warranty; it is provided "as is". No claim  is made to its
// suitability for any purpose.

package mcdb

// HashSeed is the initial accumulator value for Hash, matching the
// original cdb/mcdb constant.
const HashSeed uint32 = 5381

// Hash computes the djb-style hash of b, starting from seed. Every record
// is bucketed by the low byte of Hash(HashSeed, key) and probed within its
// bucket starting at the "rotor" (the remaining high 24 bits, h >> 8).
func Hash(seed uint32, b []byte) uint32 {
	h := seed
	for _, c := range b {
		h = ((h << 5) + h) ^ uint32(c)
	}
	return h
}

// bucketOf returns the top-level hash bucket (0..255) for hash h.
func bucketOf(h uint32) uint32 { return h & 0xff }

// rotorOf returns the initial open-addressing probe offset within a
// bucket's table, before it is reduced modulo the table's slot count.
func rotorOf(h uint32) uint32 { return h >> 8 }
