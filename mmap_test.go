// mmap_test.go -- tests for the Map/Handle refresh and reference-counting
// state machine: scenario S6 (refresh after rebuild) and concurrent
// registration against a single Map.
//
// License GPLv2

package mcdb

import (
	"sync"
	"testing"
	"time"
)

func TestRefreshAfterRebuild(t *testing.T) {
	assert := newAsserter(t)
	fn := tempDBPath(t)
	defer cleanupDB(t, fn)

	buildSimpleDB(t, fn, []Record{{Key: []byte("k"), Data: []byte("old")}})

	rd, err := NewReader(fn)
	assert(err == nil, "reader open: %s", err)
	defer rd.Close()

	v, ok, _ := rd.Find([]byte("k"))
	assert(ok && string(v) == "old", "initial read: exp old, saw %v/%v", ok, v)

	// A second reader registers before the rebuild and must keep seeing
	// the old snapshot until it refreshes itself.
	rd2, err := NewReader(fn)
	assert(err == nil, "second reader open: %s", err)
	defer rd2.Close()

	// Ensure the rebuilt file's mtime differs from the original; some
	// filesystems have coarse mtime resolution.
	time.Sleep(10 * time.Millisecond)
	buildSimpleDB(t, fn, []Record{{Key: []byte("k"), Data: []byte("new")}})

	err = rd.Refresh()
	assert(err == nil, "refresh: %s", err)

	v, ok, _ = rd.Find([]byte("k"))
	assert(ok && string(v) == "new", "after refresh: exp new, saw %v/%v", ok, v)

	// rd2 has not refreshed yet: it must still observe the old contents.
	v, ok, _ = rd2.Find([]byte("k"))
	assert(ok && string(v) == "old", "rd2 pre-refresh: exp old, saw %v/%v", ok, v)

	err = rd2.Refresh()
	assert(err == nil, "rd2 refresh: %s", err)
	v, ok, _ = rd2.Find([]byte("k"))
	assert(ok && string(v) == "new", "rd2 post-refresh: exp new, saw %v/%v", ok, v)
}

func TestRefreshNoopWhenUnchanged(t *testing.T) {
	assert := newAsserter(t)
	fn := tempDBPath(t)
	defer cleanupDB(t, fn)

	buildSimpleDB(t, fn, []Record{{Key: []byte("k"), Data: []byte("v")}})

	rd, err := NewReader(fn)
	assert(err == nil, "reader open: %s", err)
	defer rd.Close()

	stale, err := rd.h.Stale()
	assert(err == nil, "stale: %s", err)
	assert(!stale, "freshly opened reader should not be stale")

	assert(rd.Refresh() == nil, "refresh: should be a no-op")
}

func TestMapConcurrentRegistration(t *testing.T) {
	assert := newAsserter(t)
	fn := tempDBPath(t)
	defer cleanupDB(t, fn)

	buildSimpleDB(t, fn, []Record{{Key: []byte("k"), Data: []byte("v")}})

	h, err := OpenHandle(fn)
	assert(err == nil, "open: %s", err)
	defer h.Close()

	const n = 64
	var wg sync.WaitGroup
	regs := make([]*Map, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			regs[i] = h.register()
		}(i)
	}
	wg.Wait()

	for _, m := range regs {
		assert(m != nil, "nil registration")
		assert(len(m.Bytes()) >= headerSize, "map should expose the full file, saw %d bytes", len(m.Bytes()))
	}
	for _, m := range regs {
		m.release()
	}
}
