package cache

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKeyDeterministic(t *testing.T) {
	k1 := NewKey("security_scan", []byte("def f(): pass"), []byte("max_depth=3;"), "1.0.0")
	k2 := NewKey("security_scan", []byte("def f(): pass"), []byte("max_depth=3;"), "1.0.0")
	assert.Equal(t, k1, k2, "same inputs must hash to the same key (P1 determinism)")

	k3 := NewKey("security_scan", []byte("def f(): pass # changed"), []byte("max_depth=3;"), "1.0.0")
	assert.NotEqual(t, k1, k3)
}

func TestCanonicalizeOptionsDropsDefaultsAndSortsKeys(t *testing.T) {
	defaults := map[string]interface{}{"max_depth": 3, "tier": "community"}
	a := CanonicalizeOptions(map[string]interface{}{"tier": "pro", "max_depth": 3}, defaults)
	b := CanonicalizeOptions(map[string]interface{}{"max_depth": 3, "tier": "pro"}, defaults)
	assert.Equal(t, a, b, "key ordering must not affect the canonical form")
	assert.NotContains(t, string(a), "max_depth", "default-valued option should be dropped")
}

func TestPutGetRoundTrip(t *testing.T) {
	c, err := New(t.TempDir())
	require.NoError(t, err)

	e := &Entry{Key: Key("abc123"), Value: []byte("result-bytes"), Dependencies: []string{"fileA"}}
	require.NoError(t, c.Put(e))

	got, ok := c.Get(Key("abc123"))
	require.True(t, ok)
	assert.Equal(t, []byte("result-bytes"), got.Value)
}

func TestGetFallsThroughToDiskAfterMemoryEviction(t *testing.T) {
	dir := t.TempDir()
	c1, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, c1.Put(&Entry{Key: Key("diskonly"), Value: []byte("v")}))

	// A fresh Cache over the same directory has an empty memory tier but
	// must still find the entry on disk (§4.7: "memory -> disk -> miss").
	c2, err := New(dir)
	require.NoError(t, err)
	got, ok := c2.Get(Key("diskonly"))
	require.True(t, ok)
	assert.Equal(t, []byte("v"), got.Value)
}

func TestCorruptDiskEntryIsATreatedMiss(t *testing.T) {
	dir := t.TempDir()
	c, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, c.Put(&Entry{Key: Key("zz"), Value: []byte("v")}))

	path := c.diskPath(Key("zz"))
	require.NoError(t, os.WriteFile(path, []byte("not a valid cache entry"), 0o644))

	// Fresh cache so the good copy isn't still resident in memory.
	c2, _ := New(dir)
	_, ok := c2.Get(Key("zz"))
	assert.False(t, ok, "corrupted disk entries must be treated as a miss")
}

func TestComputeRunsOnceOnHit(t *testing.T) {
	c, err := New(t.TempDir())
	require.NoError(t, err)

	calls := 0
	compute := func() ([]byte, error) {
		calls++
		return []byte("computed"), nil
	}

	e1, err := c.Compute(Key("k"), nil, compute)
	require.NoError(t, err)
	e2, err := c.Compute(Key("k"), nil, compute)
	require.NoError(t, err)

	assert.Equal(t, e1.Value, e2.Value)
	assert.Equal(t, 1, calls, "second Compute for the same key must be a cache hit, not a recompute")
}

func TestInvalidateCascadesTransitively(t *testing.T) {
	c, err := New(t.TempDir())
	require.NoError(t, err)

	// "b" depends on file "a.py"; "c" depends on "b"'s cache key, modeling
	// a result built on top of another cached result.
	require.NoError(t, c.Put(&Entry{Key: Key("b"), Dependencies: []string{"a.py"}}))
	require.NoError(t, c.Put(&Entry{Key: Key("c"), Dependencies: []string{"b"}}))
	require.NoError(t, c.Put(&Entry{Key: Key("unrelated"), Dependencies: []string{"other.py"}}))

	removed := c.Invalidate("a.py")
	removedSet := map[Key]bool{}
	for _, k := range removed {
		removedSet[k] = true
	}
	assert.True(t, removedSet[Key("b")])
	assert.True(t, removedSet[Key("c")], "invalidation must cascade to results depending on an invalidated result")
	assert.False(t, removedSet[Key("unrelated")])

	_, ok := c.Get(Key("b"))
	assert.False(t, ok)
	_, ok = c.Get(Key("c"))
	assert.False(t, ok)
}

func TestInvalidateTerminatesOnDependencyCycle(t *testing.T) {
	c, err := New(t.TempDir())
	require.NoError(t, err)
	// A self-referential dependency graph should never happen from a
	// correct builder, but Invalidate must not hang if it does.
	require.NoError(t, c.Put(&Entry{Key: Key("x"), Dependencies: []string{"y"}}))
	require.NoError(t, c.Put(&Entry{Key: Key("y"), Dependencies: []string{"x"}}))

	done := make(chan struct{})
	go func() {
		c.Invalidate("y")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Invalidate did not terminate on a cyclic dependency graph")
	}
}
