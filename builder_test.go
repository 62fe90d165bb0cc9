// builder_test.go -- tests for Builder: Add/Freeze/Cancel and the
// overflow/size-limit edge cases.
//
// License GPLv2

package mcdb

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"testing"
)

var keep bool

func init() {
	flag.BoolVar(&keep, "keep", false, "Keep test databases")
}

func tempDBPath(t *testing.T) string {
	return fmt.Sprintf("%s/mcdb-test-%d-%d.db", os.TempDir(), os.Getpid(), rand.Int())
}

func cleanupDB(t *testing.T, fn string) {
	if keep {
		t.Logf("db kept at %s", fn)
		return
	}
	os.Remove(fn)
}

func TestBuilderSingleRecord(t *testing.T) {
	assert := newAsserter(t)
	fn := tempDBPath(t)
	defer cleanupDB(t, fn)

	b, err := Open(fn)
	assert(err == nil, "open: %s", err)

	err = b.Add([]byte("one"), []byte("Hello"))
	assert(err == nil, "add: %s", err)

	err = b.Freeze(true)
	assert(err == nil, "freeze: %s", err)

	rd, err := NewReader(fn)
	assert(err == nil, "reader open: %s", err)
	defer rd.Close()

	assert(rd.NumRecs() == 1, "numrecs: exp 1, saw %d", rd.NumRecs())

	v, ok, err := rd.Find([]byte("one"))
	assert(err == nil, "find: %s", err)
	assert(ok, "find(one): not found")
	assert(string(v) == "Hello", "find(one): exp Hello, saw %s", v)

	_, ok, err = rd.Find([]byte("two"))
	assert(err == nil, "find(two): %s", err)
	assert(!ok, "find(two): unexpectedly found")
}

func TestBuilderDuplicateKeys(t *testing.T) {
	assert := newAsserter(t)
	fn := tempDBPath(t)
	defer cleanupDB(t, fn)

	b, err := Open(fn)
	assert(err == nil, "open: %s", err)

	recs := []Record{
		{Key: []byte("a"), Data: []byte("1")},
		{Key: []byte("a"), Data: []byte("2")},
		{Key: []byte("a"), Data: []byte("3")},
		{Key: []byte("b"), Data: []byte("x")},
	}
	for _, r := range recs {
		assert(b.Add(r.Key, r.Data) == nil, "add %s", r.Key)
	}
	assert(b.Freeze(false) == nil, "freeze")

	rd, err := NewReader(fn)
	assert(err == nil, "reader open: %s", err)
	defer rd.Close()

	v, ok, err := rd.Find([]byte("a"))
	assert(ok && string(v) == "1", "a[0]: exp 1, saw %v/%v", ok, v)
	v, ok, err = rd.FindNext([]byte("a"))
	assert(ok && string(v) == "2", "a[1]: exp 2, saw %v/%v", ok, v)
	v, ok, err = rd.FindNext([]byte("a"))
	assert(ok && string(v) == "3", "a[2]: exp 3, saw %v/%v", ok, v)
	_, ok, err = rd.FindNext([]byte("a"))
	assert(err == nil && !ok, "a[3]: exp not-found, saw %v", ok)

	v, ok, _ = rd.Find([]byte("b"))
	assert(ok && string(v) == "x", "b: exp x, saw %v/%v", ok, v)
}

func TestBuilderEmptyKeyAndValue(t *testing.T) {
	assert := newAsserter(t)
	fn := tempDBPath(t)
	defer cleanupDB(t, fn)

	b, err := Open(fn)
	assert(err == nil, "open: %s", err)
	assert(b.Add(nil, nil) == nil, "add empty")
	assert(b.Freeze(false) == nil, "freeze")

	rd, err := NewReader(fn)
	assert(err == nil, "reader open: %s", err)
	defer rd.Close()

	v, ok, err := rd.Find([]byte(""))
	assert(err == nil && ok, "find empty key")
	assert(len(v) == 0, "exp empty value, saw %d bytes", len(v))

	it := rd.Iter()
	defer it.Close()
	more, err := it.Next()
	assert(err == nil && more, "iter.Next: exp one record")
	assert(it.KeyLen() == 0 && it.DataLen() == 0, "exp klen=0 dlen=0, saw %d/%d", it.KeyLen(), it.DataLen())
	more, err = it.Next()
	assert(err == nil && !more, "iter.Next: exp exhausted")
}

func TestBuilderManyKeysHashCollisions(t *testing.T) {
	assert := newAsserter(t)
	fn := tempDBPath(t)
	defer cleanupDB(t, fn)

	b, err := Open(fn)
	assert(err == nil, "open: %s", err)

	const n = 10000
	want := make(map[string]string, n)
	for i := 0; i < n; i++ {
		k := fmt.Sprintf("k%05d", i)
		v := fmt.Sprintf("v%05d", i)
		assert(b.Add([]byte(k), []byte(v)) == nil, "add %s", k)
		want[k] = v
	}
	assert(b.Freeze(false) == nil, "freeze")

	rd, err := NewReader(fn)
	assert(err == nil, "reader open: %s", err)
	defer rd.Close()
	assert(rd.NumRecs() == n, "numrecs: exp %d, saw %d", n, rd.NumRecs())

	for k, v := range want {
		got, ok, err := rd.Find([]byte(k))
		assert(err == nil, "find %s: %s", k, err)
		assert(ok, "find %s: not found", k)
		assert(string(got) == v, "find %s: exp %s, saw %s", k, v, got)
	}

	_, ok, err := rd.Find([]byte("missing"))
	assert(err == nil && !ok, "find missing: exp not-found, saw %v", ok)
}

func TestBuilderIterationOrder(t *testing.T) {
	assert := newAsserter(t)
	fn := tempDBPath(t)
	defer cleanupDB(t, fn)

	b, err := Open(fn)
	assert(err == nil, "open: %s", err)
	for _, k := range keyw {
		assert(b.Add([]byte(k), []byte(k)) == nil, "add %s", k)
	}
	assert(b.Freeze(false) == nil, "freeze")

	rd, err := NewReader(fn)
	assert(err == nil, "reader open: %s", err)
	defer rd.Close()

	it := rd.Iter()
	defer it.Close()
	for i, want := range keyw {
		more, err := it.Next()
		assert(err == nil, "next %d: %s", i, err)
		assert(more, "next %d: exhausted early", i)
		assert(string(it.KeyPtr()) == want, "record %d: exp key %s, saw %s", i, want, it.KeyPtr())
	}
	more, err := it.Next()
	assert(err == nil && !more, "iter: exp exhausted after %d records", len(keyw))
}

func TestBuilderCancel(t *testing.T) {
	assert := newAsserter(t)
	fn := tempDBPath(t)

	b, err := Open(fn)
	assert(err == nil, "open: %s", err)
	assert(b.Add([]byte("x"), []byte("y")) == nil, "add")
	assert(b.Cancel() == nil, "cancel")

	_, err = os.Stat(fn)
	assert(os.IsNotExist(err), "cancel: target file should not exist, stat err=%v", err)

	// Cancel is idempotent.
	assert(b.Cancel() == nil, "second cancel")
}

func TestBuilderOverflowRejected(t *testing.T) {
	assert := newAsserter(t)
	fn := tempDBPath(t)
	defer cleanupDB(t, fn)

	b, err := Open(fn)
	assert(err == nil, "open: %s", err)
	defer b.Cancel()

	err = b.AddBegin(uint32(maxFieldLen)+1, 0)
	assert(err != nil, "AddBegin(maxFieldLen+1): expected overflow rejection")
}
