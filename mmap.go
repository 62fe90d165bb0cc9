// mmap.go -- the memory-mapped handle lifecycle: open, refresh-on-change,
// reference counting, and the successor chain that lets readers drain an
// old mapping while a writer replaces the underlying file.
//
// Mirrors mcdb_mmap_create/mcdb_mmap_refresh/mcdb_register_access in the
// reference C implementation (mcdb.h/struct mcdb_mmap), recast as a
// reference-counted Go type with an atomic successor pointer rather than a
// function-pointer-driven C struct. The mmap mechanics themselves (open
// read-only, fstat, map the whole file, close the fd once mapped) follow
// opencoff/go-mph's NewDBReader in dbreader.go, which uses the same
// github.com/opencoff/go-mmap library.
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
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opencoff/go-mmap"
)

// Map is a reference-counted handle to a memory-mapping of one mcdb file.
// It is created once per distinct on-disk generation of a database and
// lives from newMap until its refcount drops to zero and it has no
// registered readers.
//
// A Map is safe for concurrent use by many goroutines: Bytes returns a
// stable slice for the lifetime of the Map, and register/release use
// atomic operations so no lock is held on the lookup hot path.
type Map struct {
	mm   *mmap.Mapping
	data []byte

	mtime time.Time
	size  int64

	fn string

	refcount int32
	next     atomic.Pointer[Map]
}

// newMap opens fn read-only, maps its entire contents, and returns a Map
// with an initial refcount of 1 (the caller's own reference).
func newMap(fn string) (*Map, error) {
	fd, err := os.Open(fn)
	if err != nil {
		return nil, newError(Read, "newMap", err)
	}
	defer fd.Close()

	st, err := fd.Stat()
	if err != nil {
		return nil, newError(Read, "newMap", err)
	}
	if !st.Mode().IsRegular() {
		return nil, newError(Usage, "newMap", fmt.Errorf("%s: not a regular file", fn))
	}
	if st.Size() < headerSize {
		return nil, newError(ReadFormat, "newMap", fmt.Errorf("%s: file smaller than header (%d bytes)", fn, st.Size()))
	}

	mm := mmap.New(fd)
	mapping, err := mm.Map(st.Size(), 0, mmap.PROT_READ, mmap.F_READAHEAD)
	if err != nil {
		return nil, newError(Read, "newMap", fmt.Errorf("%s: mmap %d bytes: %w", fn, st.Size(), err))
	}

	m := &Map{
		mm:       mapping,
		data:     mapping.Bytes(),
		mtime:    st.ModTime(),
		size:     st.Size(),
		fn:       fn,
		refcount: 1,
	}
	return m, nil
}

// Bytes returns the full backing slice for this mapping's generation of
// the database. The slice is valid for as long as the caller holds a
// registration on this Map (see register/release).
func (m *Map) Bytes() []byte { return m.data }

// register increments the Map's refcount and returns the newest Map in
// its successor chain, following next pointers with load-acquire
// semantics. The caller must call release on the returned Map, not
// necessarily on m, exactly once when done.
func (m *Map) register() *Map {
	cur := m
	for {
		if n := cur.next.Load(); n != nil {
			cur = n
			continue
		}
		atomic.AddInt32(&cur.refcount, 1)
		// Re-check for a successor published concurrently with our
		// increment; if one appeared, chase it and drop this ref.
		if n := cur.next.Load(); n != nil {
			cur.release()
			cur = n
			continue
		}
		return cur
	}
}

// release decrements the Map's refcount, destroying the mapping once it
// reaches zero. Destruction of a superseded Map is deferred until every
// reader that registered against it has released.
func (m *Map) release() {
	if atomic.AddInt32(&m.refcount, -1) == 0 {
		_ = m.mm.Unmap()
	}
}

// splice points m.next, and thereby steers future registrations, at succ.
// It is only ever called once per Map, guarded by mmapMu.
func (m *Map) splice(succ *Map) {
	m.next.Store(succ)
}

// mmapMu serialises successor splices across all Handles in the process: a
// single process-wide mutex guarding the one-time publication of a Map
// and the splice of successor maps. Reader hot paths never take this lock.
var mmapMu sync.Mutex

// Handle owns the chain of Map generations for a single on-disk path and
// is the thing a Reader actually holds. Refresh replaces Handle.cur's
// successor; lookups always register against the newest Map reachable
// from cur.
type Handle struct {
	fn  string
	cur atomic.Pointer[Map]
}

// OpenHandle maps fn and returns a Handle ready for lookups.
func OpenHandle(fn string) (*Handle, error) {
	m, err := newMap(fn)
	if err != nil {
		return nil, err
	}
	h := &Handle{fn: fn}
	h.cur.Store(m)
	return h, nil
}

// Stale reports whether the file at the Handle's path has a different
// mtime than the Map currently installed, i.e. whether Refresh would
// install a new generation.
func (h *Handle) Stale() (bool, error) {
	st, err := os.Stat(h.fn)
	if err != nil {
		return false, newError(Read, "Stale", err)
	}
	return !st.ModTime().Equal(h.cur.Load().mtime), nil
}

// Refresh checks whether the file at h's path has changed since the
// current Map was created and, if so, maps the new contents and splices
// them in as the successor of the newest Map reachable from h.cur.
// Existing registrations against older Maps are unaffected: they continue
// to observe their own snapshot until they release.
func (h *Handle) Refresh() error {
	mmapMu.Lock()
	defer mmapMu.Unlock()

	cur := h.cur.Load()
	st, err := os.Stat(h.fn)
	if err != nil {
		return newError(Read, "Refresh", err)
	}
	if st.ModTime().Equal(cur.mtime) {
		return nil
	}

	next, err := newMap(h.fn)
	if err != nil {
		return err
	}

	// Walk to the newest Map already reachable (in case another
	// goroutine refreshed concurrently before we took the lock) and
	// splice our new generation on as its successor.
	tail := cur
	for {
		if n := tail.next.Load(); n != nil {
			tail = n
			continue
		}
		break
	}
	if tail.mtime.Equal(next.mtime) {
		// Someone else installed the same generation already.
		next.release()
		return nil
	}
	tail.splice(next)
	h.cur.Store(next)
	// tail is no longer "current"; its owning reference (acquired when
	// it was created) transfers to next. Registered readers still hold
	// their own references and keep tail alive until they release.
	tail.release()
	return nil
}

// register acquires a registration against the newest Map reachable from
// h and returns it; the caller must call release exactly once.
func (h *Handle) register() *Map {
	return h.cur.Load().register()
}

// Close releases the Handle's own reference to its current Map chain.
// Readers that are still registered continue to function; once all
// registrations (including this one) have released, every unreferenced
// generation is unmapped.
func (h *Handle) Close() error {
	h.cur.Load().release()
	return nil
}
