// format.go -- on-disk layout of an mcdb file: the 2048-byte header, the
// records region, and the 256 hash-tables region.
//
// Mirrors mcdb.h's MCDB_SLOTS/MCDB_HEADER_SZ constants in the reference C
// implementation, and matches the same 256-bucket header laid out by the
// torbit-cdb, facebook-dns/dnsrocks cdb-mods, and UNO-SOFT-mcdb Go ports,
// differing only in byte order (this format uses big-endian throughout;
// see pack.go).
//
// License GPLv2

package mcdb

import "fmt"

const (
	// numBuckets is the number of top-level hash buckets. Must stay a
	// power of two; the format fixes it at 256 (one bucket per possible
	// low byte of a hash).
	numBuckets = 256

	// slotSize is the on-disk size of one hash-table slot: a (hash,pos)
	// pair, each a big-endian uint32.
	slotSize = 8

	// descSize is the on-disk size of one header table descriptor: a
	// (table_offset, table_slot_count) pair, each a big-endian uint32.
	descSize = 8

	// headerSize is the fixed size of the file header: one descriptor
	// per bucket.
	headerSize = numBuckets * descSize // 2048

	// align is the alignment boundary for records and hash tables.
	align = 8

	// maxFieldLen is the largest permitted length of a single key or
	// data field (INT_MAX - 8).
	maxFieldLen = (1<<31 - 1) - 8

	// maxFileSize is the largest mcdb file this format supports (offsets
	// are unsigned 32-bit).
	maxFileSize = uint64(1) << 32
)

// tableDesc is one of the 256 header entries: where a bucket's hash table
// starts in the file, and how many slots it has.
type tableDesc struct {
	offset uint32
	slots  uint32
}

// alignUp rounds n up to the next multiple of align.
func alignUp(n uint64) uint64 {
	return (n + align - 1) &^ (align - 1)
}

// encodeHeader packs 256 table descriptors into the fixed 2048-byte
// header, big-endian, in bucket order.
func encodeHeader(tabs [numBuckets]tableDesc) [headerSize]byte {
	var hdr [headerSize]byte
	for i, t := range tabs {
		off := i * descSize
		putUint32BE(hdr[off:off+4], t.offset)
		putUint32BE(hdr[off+4:off+8], t.slots)
	}
	return hdr
}

// decodeHeader unpacks the 2048-byte header and checks each non-empty
// table descriptor: the table must lie within the file, past the header,
// and have an even slot count. It does not check that tables are disjoint
// from each other or from the records region, nor the slots' record
// positions. fileSize is the total size of the database file, used for
// bounds checking.
func decodeHeader(hdr []byte, fileSize int64) (tabs [numBuckets]tableDesc, numrecs uint64, err error) {
	if len(hdr) < headerSize {
		return tabs, 0, newError(ReadFormat, "decodeHeader", fmt.Errorf("header too small: %d bytes", len(hdr)))
	}

	for i := 0; i < numBuckets; i++ {
		off := i * descSize
		t := tableDesc{
			offset: uint32BE(hdr[off : off+4]),
			slots:  uint32BE(hdr[off+4 : off+8]),
		}
		if t.slots > 0 {
			tableBytes := int64(t.slots) * slotSize
			if int64(t.offset) < headerSize || int64(t.offset)+tableBytes > fileSize {
				return tabs, 0, newError(ReadFormat, "decodeHeader", fmt.Errorf(
					"bucket %d: table at %d (%d slots) out of bounds for file size %d",
					i, t.offset, t.slots, fileSize))
			}
			if t.slots%2 != 0 {
				return tabs, 0, newError(ReadFormat, "decodeHeader", fmt.Errorf(
					"bucket %d: odd slot count %d", i, t.slots))
			}
		}
		numrecs += uint64(t.slots) / 2
		tabs[i] = t
	}
	return tabs, numrecs, nil
}

// recordsEnd returns the file offset at which the records region ends,
// i.e. the start of the earliest hash table (or the header's end, for an
// empty database). This is also the iterator's end-of-data position.
func recordsEnd(tabs [numBuckets]tableDesc) uint64 {
	end := uint64(headerSize)
	min := uint64(0)
	found := false
	for _, t := range tabs {
		if t.slots == 0 {
			continue
		}
		if !found || uint64(t.offset) < min {
			min = uint64(t.offset)
			found = true
		}
	}
	if found {
		return min
	}
	return end
}
