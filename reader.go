// reader.go -- the Find/FindNext/FindStart state machine and borrowed
// key/data views into a mapped database.
//
// Mirrors struct mcdb and mcdb_findstart/mcdb_findnext/mcdb_find in mcdb.h
// and the reference C cdb_make/mcdb probe loop, and borrows the Go
// find-state idioms used in the facebook-dns cdb-mods and torbit-cdb
// ports. Exposes borrowed byte slices (scoped to the Reader's current
// registration) instead of raw pointers, since Go has no equivalent of a
// bare C pointer into mapped memory.
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

import (
	"fmt"
)

// Reader answers Find/FindNext/FindStart lookups and whole-database
// iteration against one mcdb file, re-mapping transparently on Refresh.
// A Reader is not safe for concurrent use by multiple goroutines; each
// goroutine should open its own Reader. NewReader opens a new Handle and
// maps the file afresh for every Reader.
type Reader struct {
	h *Handle
	m *Map

	tabs    [numBuckets]tableDesc
	numrecs uint64
	eod     uint64

	// find/findnext probe state, mirroring struct mcdb in mcdb.h.
	loop   uint32 // number of slots probed so far under the current key
	khash  uint32 // hash of the key being probed
	hpos   uint32 // file offset of the bucket's table
	hslots uint32 // slot count of the bucket's table
	idx    uint32 // current probe index within the table

	dpos uint32 // data offset of the most recent match
	dlen uint32 // data length of the most recent match
	kpos uint32 // key offset of the most recent match
	klen uint32 // key length of the most recent match
	hit  bool   // true once a match has been established

	started bool // true once FindStart/Find has established probe state
}

// NewReader maps fn and returns a Reader positioned at its current contents.
func NewReader(fn string) (*Reader, error) {
	h, err := OpenHandle(fn)
	if err != nil {
		return nil, err
	}
	return newReaderFromHandle(h)
}

func newReaderFromHandle(h *Handle) (*Reader, error) {
	m := h.register()
	tabs, numrecs, err := decodeHeader(m.Bytes(), m.size)
	if err != nil {
		m.release()
		return nil, err
	}
	return &Reader{
		h:       h,
		m:       m,
		tabs:    tabs,
		numrecs: numrecs,
		eod:     recordsEnd(tabs),
	}, nil
}

// NumRecs returns the total number of records in the database, computed
// from the header's table slot counts.
func (r *Reader) NumRecs() uint64 { return r.numrecs }

// Refresh checks whether the underlying file has been rebuilt and, if so,
// re-maps it and transfers this Reader's registration to the new
// generation. Subsequent Find/FindNext/Iter calls observe the new
// contents; any in-progress FindNext sequence is invalidated (a fresh
// FindStart is required after Refresh).
func (r *Reader) Refresh() error {
	if err := r.h.Refresh(); err != nil {
		return err
	}
	newm := r.h.register()
	if newm == r.m {
		newm.release()
		return nil
	}
	tabs, numrecs, err := decodeHeader(newm.Bytes(), newm.size)
	if err != nil {
		newm.release()
		return err
	}
	r.m.release()
	r.m = newm
	r.tabs = tabs
	r.numrecs = numrecs
	r.eod = recordsEnd(tabs)
	r.hit = false
	r.loop = 0
	r.started = false
	return nil
}

// Close releases this Reader's registration on its current mapping
// generation.
func (r *Reader) Close() error {
	r.m.release()
	return nil
}

func (r *Reader) bytes() []byte { return r.m.data }

// FindStart resets the probe state for key without performing any probes,
// equivalent to the reference implementation's mcdb_findstart. It is
// always safe to call and is implied by Find.
func (r *Reader) FindStart(key []byte) {
	h := Hash(HashSeed, key)
	bkt := bucketOf(h)
	t := r.tabs[bkt]

	r.khash = h
	r.hpos = t.offset
	r.hslots = t.slots
	r.loop = 0
	r.hit = false
	r.started = true
	if t.slots != 0 {
		r.idx = rotorOf(h) % t.slots
	} else {
		r.idx = 0
	}
}

// Find locates the first record whose key equals key, starting a fresh
// probe sequence. A subsequent FindNext(key) continues the same sequence
// and returns later records sharing that key, in insertion order. Find
// never returns an error for a missing key: ok is false and err is nil.
func (r *Reader) Find(key []byte) (data []byte, ok bool, err error) {
	r.FindStart(key)
	return r.FindNext(key)
}

// FindNext continues the probe sequence established by the most recent
// Find/FindStart call for the same key, returning the next matching
// record or ok==false once the bucket is exhausted. Calling FindNext
// before any FindStart/Find (or after a Refresh that installed a new
// generation) returns a Usage error wrapping ErrNoFind. FindNext does not
// check that key is the key given to the preceding Find/FindStart.
func (r *Reader) FindNext(key []byte) ([]byte, bool, error) {
	if !r.started {
		return nil, false, newError(Usage, "FindNext", ErrNoFind)
	}
	buf := r.bytes()
	for r.loop < r.hslots {
		slotOff := uint64(r.hpos) + uint64(r.idx)*slotSize
		slot, err := r.readSlot(buf, slotOff)
		if err != nil {
			return nil, false, err
		}

		r.loop++
		r.idx++
		if r.idx == r.hslots {
			r.idx = 0
		}

		if slot.pos == 0 {
			break
		}
		if slot.hash != r.khash {
			continue
		}

		rec, err := r.readRecordAt(buf, slot.pos)
		if err != nil {
			return nil, false, err
		}
		if rec.klen != uint32(len(key)) {
			continue
		}
		if !bytesEqual(buf[rec.keyOff:rec.keyOff+uint64(rec.klen)], key) {
			continue
		}

		r.kpos = slot.pos
		r.klen = rec.klen
		r.dpos = uint32(rec.keyOff + uint64(rec.klen))
		r.dlen = rec.dlen
		r.hit = true
		return buf[r.dpos : uint64(r.dpos)+uint64(r.dlen)], true, nil
	}
	r.hit = false
	return nil, false, nil
}

type hashSlot struct {
	hash uint32
	pos  uint32
}

func (r *Reader) readSlot(buf []byte, off uint64) (hashSlot, error) {
	if off+slotSize > uint64(len(buf)) {
		return hashSlot{}, newError(ReadFormat, "readSlot", fmt.Errorf("slot at %d out of bounds", off))
	}
	return hashSlot{
		hash: uint32BE(buf[off : off+4]),
		pos:  uint32BE(buf[off+4 : off+8]),
	}, nil
}

type recordView struct {
	klen, dlen uint32
	keyOff     uint64
}

func (r *Reader) readRecordAt(buf []byte, pos uint32) (recordView, error) {
	off := uint64(pos)
	if off < headerSize || off+8 > uint64(len(buf)) {
		return recordView{}, newError(ReadFormat, "readRecordAt", fmt.Errorf("record preamble at %d out of bounds", off))
	}
	klen := uint32BE(buf[off : off+4])
	dlen := uint32BE(buf[off+4 : off+8])
	keyOff := off + 8
	if keyOff+uint64(klen)+uint64(dlen) > uint64(len(buf)) {
		return recordView{}, newError(ReadFormat, "readRecordAt", fmt.Errorf("record at %d (klen=%d dlen=%d) out of bounds", off, klen, dlen))
	}
	return recordView{klen: klen, dlen: dlen, keyOff: keyOff}, nil
}

// KeyPtr returns the key bytes of the most recent match from Find/FindNext.
// The slice borrows directly from the mapped file and is valid until the
// next Find/FindStart call or until the Reader is closed/refreshed.
func (r *Reader) KeyPtr() []byte {
	if !r.hit {
		return nil
	}
	off := uint64(r.kpos) + 8
	return r.bytes()[off : off+uint64(r.klen)]
}

// DataPtr returns the data bytes of the most recent match; see KeyPtr for
// lifetime rules.
func (r *Reader) DataPtr() []byte {
	if !r.hit {
		return nil
	}
	return r.bytes()[r.dpos : uint64(r.dpos)+uint64(r.dlen)]
}

// KeyLen returns the key length of the most recent match.
func (r *Reader) KeyLen() uint32 { return r.klen }

// DataLen returns the data length of the most recent match.
func (r *Reader) DataLen() uint32 { return r.dlen }

// FindAll returns every value stored under key, in insertion order. It is
// a convenience built from Find/FindNext and copies each value out of the
// mapping so the result outlives the current registration.
func (r *Reader) FindAll(key []byte) ([][]byte, error) {
	var out [][]byte
	data, ok, err := r.Find(key)
	if err != nil {
		return nil, err
	}
	for ok {
		cp := make([]byte, len(data))
		copy(cp, data)
		out = append(out, cp)
		data, ok, err = r.FindNext(key)
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
