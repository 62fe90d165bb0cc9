// iter.go -- whole-database iteration in insertion order.
//
// Mirrors the records-region linear scan implicit in cdb_make.c/
// mcdb_make.c's own construction order, and borrows the All()/Keys()/
// Values() iterator shape from the perbu-cdb reference port, adapted to a
// stateful cursor object rather than a Go 1.23 iter.Seq2, since callers
// need an explicit, borrow-scoped cursor they can close early.
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

import "fmt"

// Iter is a finite, non-restartable cursor over the records region of one
// mapped generation of a database, visiting records in the order they
// were added to the Builder. To iterate again, call Reader.Iter for a new
// Iter.
type Iter struct {
	m   *Map
	pos uint64
	eod uint64

	klen, dlen uint32
	keyOff     uint64
	done       bool
}

// Iter returns a new Iter over the Reader's current mapping generation.
// The Iter holds its own registration, independent of the Reader's: it
// remains valid even if the Reader is later refreshed or closed.
func (r *Reader) Iter() *Iter {
	m := r.h.register()
	return &Iter{
		m:   m,
		pos: headerSize,
		eod: r.eod,
	}
}

// Close releases the Iter's registration on its mapping generation.
func (it *Iter) Close() error {
	it.m.release()
	return nil
}

// Next advances to the next record and reports whether one was found.
// Once Next returns false, the Iter is exhausted and further calls
// continue to return false.
func (it *Iter) Next() (bool, error) {
	if it.done || it.pos >= it.eod {
		it.done = true
		return false, nil
	}

	buf := it.m.Bytes()
	if it.pos+8 > it.eod {
		it.done = true
		return false, newError(ReadFormat, "Iter.Next", fmt.Errorf("truncated record preamble at %d", it.pos))
	}
	klen := uint32BE(buf[it.pos : it.pos+4])
	dlen := uint32BE(buf[it.pos+4 : it.pos+8])
	keyOff := it.pos + 8
	if keyOff+uint64(klen)+uint64(dlen) > it.eod {
		it.done = true
		return false, newError(ReadFormat, "Iter.Next", fmt.Errorf("record at %d (klen=%d dlen=%d) overruns records region", it.pos, klen, dlen))
	}

	it.klen = klen
	it.dlen = dlen
	it.keyOff = keyOff
	it.pos = alignUp(keyOff + uint64(klen) + uint64(dlen))
	return true, nil
}

// KeyPtr returns the key of the record most recently yielded by Next. The
// slice borrows from the mapping and is valid until the Iter is closed.
func (it *Iter) KeyPtr() []byte {
	return it.m.Bytes()[it.keyOff : it.keyOff+uint64(it.klen)]
}

// DataPtr returns the data of the record most recently yielded by Next.
func (it *Iter) DataPtr() []byte {
	off := it.keyOff + uint64(it.klen)
	return it.m.Bytes()[off : off+uint64(it.dlen)]
}

// KeyLen returns the key length of the record most recently yielded.
func (it *Iter) KeyLen() uint32 { return it.klen }

// DataLen returns the data length of the record most recently yielded.
func (it *Iter) DataLen() uint32 { return it.dlen }

// Record copies the current key and data into a Record, for callers that
// want an owned copy rather than a borrowed view.
func (it *Iter) Record() Record {
	k := make([]byte, it.klen)
	copy(k, it.KeyPtr())
	d := make([]byte, it.dlen)
	copy(d, it.DataPtr())
	return Record{Key: k, Data: d}
}
