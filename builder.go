// builder.go -- in-memory aggregation of (key,data) records and the hash
// positions used to build an mcdb's 256 hash tables, plus the atomic
// temp-file + rename install step.
//
// Mirrors cdb_make.c/cdb_make.h (struct cdb_make, cdb_make_addbegin/
// addend/add/finish) and mcdb_makefn.c (temp-file creation, fchmod to
// prior mode, fdatasync, rename) in the reference C implementation, and
// follows dbwriter.go's DBWriter/Freeze in opencoff/go-mph, which folds
// the atomic-install step into Freeze rather than a separate type.
//
// License GPLv2

package mcdb

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

// hpChunkCap is the capacity of one node in the (hash,pos) pair chain,
// matching CDB_HPLIST (1000) in the reference cdb_make.h.
const hpChunkCap = 1000

// pair is one (hash, record-start-position) entry, recorded once per
// record as it is added and later bucket-sorted by the low byte of hash.
type pair struct {
	hash uint32
	pos  uint32
}

// hpChunk is a fixed-capacity node in the singly-linked pair chain. New
// chunks are pushed onto the front of the list as the current one fills
// up, so the chain runs newest-chunk-first.
type hpChunk struct {
	pairs [hpChunkCap]pair
	count int
	next  *hpChunk
}

type bstate int

const (
	stateOpen bstate = iota
	stateFrozen
	stateAborted
)

// Builder accumulates records into a temporary file positioned past the
// reserved 2048-byte header, then on Freeze computes and appends the 256
// hash tables, rewrites the header, and atomically installs the result at
// the target path via rename(2).
//
// A Builder is not safe for concurrent use: at most one goroutine may
// write to a given Builder at a time.
type Builder struct {
	fd  *os.File
	buf *bufio.Writer
	ew  *errWriter

	fn    string // target path
	fntmp string // sibling temp file, renamed over fn on success
	mode  os.FileMode

	pos        uint64
	numentries uint64
	head       *hpChunk

	state bstate
}

// Open prepares a new mcdb for construction at path fn. The database does
// not become visible at fn until a successful Freeze; until then, all
// writes land in a sibling temp file.
//
// If a file already exists at fn, the new file preserves its permission
// bits; otherwise the new file is created user-read-only, since an mcdb is
// never modified in place after creation. If fn exists but is not a
// regular file, Open fails with a Usage error.
func Open(fn string) (*Builder, error) {
	mode := os.FileMode(0400)
	if st, err := os.Stat(fn); err == nil {
		if !st.Mode().IsRegular() {
			return nil, newError(Usage, "Open", fmt.Errorf("%s: exists and is not a regular file", fn))
		}
		mode = st.Mode().Perm()
	} else if !os.IsNotExist(err) {
		return nil, newError(Read, "Open", err)
	}

	tmp := fmt.Sprintf("%s.tmp.%d", fn, rand32())
	fd, err := os.OpenFile(tmp, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return nil, newError(Write, "Open", err)
	}

	buf := bufio.NewWriterSize(fd, 8192)
	b := &Builder{
		fd:    fd,
		buf:   buf,
		ew:    newErrWriter(buf),
		fn:    fn,
		fntmp: tmp,
		mode:  mode,
		pos:   headerSize,
	}

	var z [headerSize]byte
	if err := writeAll(b.ew, z[:]); err != nil {
		b.abort()
		return nil, newError(Write, "Open", err)
	}
	return b, nil
}

// Len returns the number of records added so far.
func (b *Builder) Len() int { return int(b.numentries) }

// Filename returns the target path this Builder will install to.
func (b *Builder) Filename() string { return b.fn }

func (b *Builder) checkOpen() error {
	if b.state != stateOpen {
		return ErrFrozen
	}
	return nil
}

// AddBegin writes the 8-byte (klen,dlen) record preamble. It must be
// followed by exactly klen+dlen bytes across one or more AddBuf calls,
// then a matching AddEnd.
func (b *Builder) AddBegin(klen, dlen uint32) error {
	if err := b.checkOpen(); err != nil {
		return err
	}
	if uint64(klen) > maxFieldLen || uint64(dlen) > maxFieldLen {
		return newError(Write, "AddBegin", ErrValueTooLarge)
	}

	var preamble [8]byte
	putUint32BE(preamble[0:4], klen)
	putUint32BE(preamble[4:8], dlen)
	if err := writeAll(b.ew, preamble[:]); err != nil {
		return newError(Write, "AddBegin", err)
	}
	return nil
}

// AddBuf appends raw bytes belonging to the record most recently started
// with AddBegin.
func (b *Builder) AddBuf(p []byte) error {
	if err := b.checkOpen(); err != nil {
		return err
	}
	if len(p) == 0 {
		return nil
	}
	if err := writeAll(b.ew, p); err != nil {
		return newError(Write, "AddBuf", err)
	}
	return nil
}

// addPadding holds the zero bytes used to pad a record up to the next
// 8-byte boundary; a record's key+data is never more than 7 bytes short
// of aligned.
var addPadding [align]byte

// AddEnd records (hash, recordStartPosition) for the record begun by the
// matching AddBegin/AddBuf calls, pads the record out to the next 8-byte
// boundary (records and the hash-tables region that follows them must
// start aligned), and advances the builder's position past the padding.
// hash must be Hash(HashSeed, key) for that record's key.
func (b *Builder) AddEnd(klen, dlen, hash uint32) error {
	if err := b.checkOpen(); err != nil {
		return err
	}

	recPos := b.pos
	end := b.pos + 8 + uint64(klen) + uint64(dlen)
	newpos := alignUp(end)
	if newpos >= maxFileSize {
		return newError(Write, "AddEnd", fmt.Errorf("record at %d overflows 4 GiB limit", recPos))
	}

	if pad := newpos - end; pad > 0 {
		if err := writeAll(b.ew, addPadding[:pad]); err != nil {
			return newError(Write, "AddEnd", err)
		}
	}

	b.appendPair(hash, uint32(recPos))
	b.pos = newpos
	return nil
}

// Add is a convenience wrapper over AddBegin/AddBuf/AddEnd that writes a
// complete (key,data) record, computing the hash over key.
func (b *Builder) Add(key, data []byte) error {
	if len(key) > maxFieldLen || len(data) > maxFieldLen {
		return newError(Write, "Add", ErrValueTooLarge)
	}
	if err := b.AddBegin(uint32(len(key)), uint32(len(data))); err != nil {
		return err
	}
	if err := b.AddBuf(key); err != nil {
		return err
	}
	if err := b.AddBuf(data); err != nil {
		return err
	}
	h := Hash(HashSeed, key)
	return b.AddEnd(uint32(len(key)), uint32(len(data)), h)
}

func (b *Builder) appendPair(hash, pos uint32) {
	if b.head == nil || b.head.count >= hpChunkCap {
		b.head = &hpChunk{next: b.head}
	}
	b.head.pairs[b.head.count] = pair{hash: hash, pos: pos}
	b.head.count++
	b.numentries++
}

// Cancel discards the in-progress database. It is always safe to call,
// including more than once or after a Freeze has already succeeded or
// failed.
func (b *Builder) Cancel() error {
	if b.state != stateOpen {
		return nil
	}
	return b.abort()
}

func (b *Builder) abort() error {
	_ = b.fd.Close()
	_ = os.Remove(b.fntmp)
	b.state = stateAborted
	return nil
}

// maxPairBytes bounds the hash-table work array so its total size cannot
// overflow 32-bit address arithmetic.
const maxPairBytes = uint64(^uint32(0)) / 8

// Freeze computes the 256 hash tables from the records added so far,
// writes them and the file header, and atomically installs the result at
// the target path. If fsyncOnFinish is true, the temp file is fsync'd
// before being renamed into place.
//
// On any failure, Freeze cleans up the temp file and leaves the Builder in
// a destroyable (but not reusable) state; a subsequent Cancel is a no-op.
func (b *Builder) Freeze(fsyncOnFinish bool) (err error) {
	if err := b.checkOpen(); err != nil {
		return err
	}

	defer func() {
		if err != nil {
			b.abort()
		}
	}()

	var counts [numBuckets]uint32
	for c := b.head; c != nil; c = c.next {
		for i := 0; i < c.count; i++ {
			counts[bucketOf(c.pairs[i].hash)]++
		}
	}

	memsize := uint64(1)
	for _, c := range counts {
		if u := uint64(c) * 2; u > memsize {
			memsize = u
		}
	}
	memsize += b.numentries
	if memsize > maxPairBytes {
		return newError(Malloc, "Freeze", ErrTooManyRecords)
	}

	var start [numBuckets]uint32
	var cum uint32
	for i := 0; i < numBuckets; i++ {
		start[i] = cum
		cum += counts[i]
	}

	// Stable counting sort of every (hash,pos) pair into bucket order,
	// preserving insertion order within a bucket (required so that
	// findnext() on a duplicate key walks matches in insertion order).
	// Chunks are linked newest-first, so collect them and walk oldest to
	// newest; cdb_make_finish achieves the same net ordering via a
	// double reversal (newest-chunk-first combined with a backward fill)
	// which is equivalent but harder to follow in Go.
	split := make([]pair, b.numentries)
	cursor := start
	for _, c := range oldestFirst(b.head) {
		for i := 0; i < c.count; i++ {
			p := c.pairs[i]
			bkt := bucketOf(p.hash)
			split[cursor[bkt]] = p
			cursor[bkt]++
		}
	}

	var tabs [numBuckets]tableDesc
	var slotbuf [8]byte
	for i := 0; i < numBuckets; i++ {
		count := counts[i]
		slots := count * 2
		tabs[i] = tableDesc{offset: uint32(b.pos), slots: slots}
		if slots == 0 {
			continue
		}

		table := make([]pair, slots)
		for _, p := range split[start[i] : start[i]+count] {
			idx := (p.hash >> 8) % slots
			for table[idx].pos != 0 {
				idx++
				if idx == slots {
					idx = 0
				}
			}
			table[idx] = p
		}

		for _, p := range table {
			putUint32BE(slotbuf[0:4], p.hash)
			putUint32BE(slotbuf[4:8], p.pos)
			if err = writeAll(b.ew, slotbuf[:]); err != nil {
				return newError(Write, "Freeze", err)
			}
		}

		newpos := b.pos + uint64(slots)*slotSize
		if newpos >= maxFileSize {
			return newError(Write, "Freeze", fmt.Errorf("bucket %d table overflows 4 GiB limit", i))
		}
		b.pos = newpos
	}

	if err = b.buf.Flush(); err != nil {
		return newError(Write, "Freeze", err)
	}
	if err = b.ew.Error(); err != nil {
		return newError(Write, "Freeze", err)
	}

	hdr := encodeHeader(tabs)
	if _, err = b.fd.Seek(0, io.SeekStart); err != nil {
		return newError(Write, "Freeze", err)
	}
	if err = writeAll(b.fd, hdr[:]); err != nil {
		return newError(Write, "Freeze", err)
	}

	if err = b.fd.Chmod(b.mode); err != nil {
		return newError(Write, "Freeze", err)
	}
	if fsyncOnFinish {
		if err = fsync(b.fd); err != nil {
			return newError(Write, "Freeze", err)
		}
	}
	if err = b.fd.Close(); err != nil {
		return newError(Write, "Freeze", err)
	}
	if err = os.Rename(b.fntmp, b.fn); err != nil {
		return newError(Write, "Freeze", err)
	}

	b.state = stateFrozen
	return nil
}

// oldestFirst flattens the newest-chunk-first chain into oldest-first
// order, without mutating the chain (Builder may still be inspected after
// a failed Freeze).
func oldestFirst(head *hpChunk) []*hpChunk {
	var chunks []*hpChunk
	for c := head; c != nil; c = c.next {
		chunks = append(chunks, c)
	}
	for i, j := 0, len(chunks)-1; i < j; i, j = i+1, j-1 {
		chunks[i], chunks[j] = chunks[j], chunks[i]
	}
	return chunks
}
