// Package cache implements the content-addressed analysis cache described
// in §4.7: a memory tier in front of a disk tier, both keyed
// by the same hash-only key (never a filename), with dependency-cascade
// invalidation and cycle-safe traversal. Grounded in the original engine's
// ruleset/cache.go (checksum verification, corrupt-entry-is-a-miss
// discipline) and ruleset/downloader.go (content-addressed fetch-and-
// verify), generalized from "cached ruleset bundle" to "cached analysis
// result."
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// magic and version identify a disk cache entry's on-disk format, per
// §6: "a two-byte magic CS and a one-byte version prefix." Incompatible
// versions are treated as misses and deleted.
var magic = [2]byte{'C', 'S'}

const version byte = 1

// streamBlockSize bounds memory use while hashing large files (§4.7:
// "streaming 64 KiB-block hash for files > 1 MiB").
const streamBlockSize = 64 * 1024
const streamThreshold = 1 << 20

// Key is a cache key: `H(analysis_kind) ⊕ H(input_content) ⊕
// H(options_canonical) ⊕ H(tool_version)`, hex-encoded. Keys carry no
// filename — lookup is hash-only.
type Key string

// HashContent streaming-hashes content in streamBlockSize blocks once
// size exceeds streamThreshold, bounding peak memory for large files; for
// small inputs it's equivalent to a single sha256.Sum.
func HashContent(content []byte) [32]byte {
	if len(content) <= streamThreshold {
		return sha256.Sum256(content)
	}
	h := sha256.New()
	for off := 0; off < len(content); off += streamBlockSize {
		end := off + streamBlockSize
		if end > len(content) {
			end = len(content)
		}
		h.Write(content[off:end])
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// CanonicalizeOptions produces a stable serialization of an options map:
// keys sorted, zero-value/default entries dropped, per §4.7: "Options are
// canonicalized (stable ordering of map keys, dropped defaults) before
// hashing."
func CanonicalizeOptions(opts map[string]interface{}, defaults map[string]interface{}) []byte {
	keys := make([]string, 0, len(opts))
	for k, v := range opts {
		if dv, ok := defaults[k]; ok && fmt.Sprint(dv) == fmt.Sprint(v) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var buf []byte
	for _, k := range keys {
		entry, _ := json.Marshal(opts[k])
		buf = append(buf, []byte(k)...)
		buf = append(buf, '=')
		buf = append(buf, entry...)
		buf = append(buf, ';')
	}
	return buf
}

func xorHash(a, b [32]byte) [32]byte {
	var out [32]byte
	for i := range out {
		out[i] = a[i] ^ b[i]
	}
	return out
}

// NewKey computes a Key from the four hashed components §4.7 names.
func NewKey(analysisKind string, inputContent []byte, optionsCanonical []byte, toolVersion string) Key {
	h1 := sha256.Sum256([]byte(analysisKind))
	h2 := HashContent(inputContent)
	h3 := sha256.Sum256(optionsCanonical)
	h4 := sha256.Sum256([]byte(toolVersion))
	combined := xorHash(xorHash(h1, h2), xorHash(h3, h4))
	return Key(hex.EncodeToString(combined[:]))
}

// Entry is one cached value plus its invalidation/eviction metadata, per
// §3's Cache Entry: "Value = serialized result + metadata { created_at,
// size_bytes, dependencies: set<FileHash> }."
type Entry struct {
	Key          Key
	Value        []byte // implementation-chosen serialization of the analysis result
	CreatedAt    time.Time
	SizeBytes    int64
	Dependencies []string // file hashes this result was computed from
}

// defaultMemoryCapacity bounds the in-memory tier's entry count when a
// caller doesn't pick one explicitly — a documented extension of §4.7's
// two-tier design (the spec leaves memory-tier sizing to the
// implementation; an unbounded map would grow with every distinct
// analysis run for the life of the process).
const defaultMemoryCapacity = 2048

// Cache is the two-tier store: a bounded in-memory LRU guarding a disk
// directory, per §4.7: "Two tiers... Both consult the same key. On
// lookup: memory -> disk -> miss." It also owns the file -> dependents
// adjacency used for cascading invalidation. The memory tier's own
// locking covers entry access; mu guards only deps.
type Cache struct {
	dir string

	mu     sync.RWMutex
	memory *lru.Cache[Key, *Entry]
	deps   map[string]map[Key]bool // file hash -> dependent cache keys
	locks  sync.Map                // Key -> *sync.Mutex, per-key single-writer
}

// New constructs a Cache rooted at dir (created if absent) with a memory
// tier bounded to defaultMemoryCapacity entries, per §6's default
// `.scalpel_cache`.
func New(dir string) (*Cache, error) {
	return NewWithCapacity(dir, defaultMemoryCapacity)
}

// NewWithCapacity is New but with an explicit memory-tier entry cap,
// evicting least-recently-used entries (still retrievable from the disk
// tier) once exceeded.
func NewWithCapacity(dir string, capacity int) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cache: create dir: %w", err)
	}
	memory, err := lru.New[Key, *Entry](capacity)
	if err != nil {
		return nil, fmt.Errorf("cache: create memory tier: %w", err)
	}
	return &Cache{
		dir:    dir,
		memory: memory,
		deps:   map[string]map[Key]bool{},
	}, nil
}

func (c *Cache) keyLock(k Key) *sync.Mutex {
	l, _ := c.locks.LoadOrStore(k, &sync.Mutex{})
	return l.(*sync.Mutex)
}

func (c *Cache) diskPath(k Key) string {
	s := string(k)
	prefix := s
	if len(s) >= 2 {
		prefix = s[:2]
	}
	return filepath.Join(c.dir, prefix, s)
}

// Get looks up k, consulting memory then disk. A disk hit is promoted
// into the memory tier. Any deserialization failure on disk is treated as
// a miss and the corrupt file is removed, per §4.7's corruption handling.
func (c *Cache) Get(k Key) (*Entry, bool) {
	if e, ok := c.memory.Get(k); ok {
		return e, true
	}

	e, ok := c.readDisk(k)
	if !ok {
		return nil, false
	}
	c.memory.Add(k, e)
	return e, true
}

// Compute implements the per-key single-writer contract described in
// §5: duplicate concurrent computations for the same key
// serialize through a per-key mutex rather than corrupting shared state;
// at most one caller actually invokes fn, but a second in-flight caller
// does not error, it simply waits and then observes the first caller's
// result (or recomputes if the first caller's write failed).
func (c *Cache) Compute(k Key, dependencies []string, fn func() ([]byte, error)) (*Entry, error) {
	if e, ok := c.Get(k); ok {
		return e, nil
	}
	lock := c.keyLock(k)
	lock.Lock()
	defer lock.Unlock()

	if e, ok := c.Get(k); ok {
		return e, nil
	}
	value, err := fn()
	if err != nil {
		return nil, err
	}
	e := &Entry{Key: k, Value: value, CreatedAt: time.Now(), SizeBytes: int64(len(value)), Dependencies: dependencies}
	if err := c.Put(e); err != nil {
		return nil, err
	}
	return e, nil
}

// Put stores an entry in both tiers, registering its dependency set so a
// later Invalidate(file) can find it. Disk writes go through a temp file
// plus atomic rename, per §4.7/§5's "atomic-rename writes" discipline —
// a reader never observes a half-written file.
func (c *Cache) Put(e *Entry) error {
	c.memory.Add(e.Key, e)
	c.mu.Lock()
	for _, dep := range e.Dependencies {
		if c.deps[dep] == nil {
			c.deps[dep] = map[Key]bool{}
		}
		c.deps[dep][e.Key] = true
	}
	c.mu.Unlock()
	return c.writeDisk(e)
}

func (c *Cache) writeDisk(e *Entry) error {
	path := c.diskPath(e.Key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cache: mkdir: %w", err)
	}
	payload := encodeEntry(e)
	tmp := path + fmt.Sprintf(".tmp-%d", time.Now().UnixNano())
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return fmt.Errorf("cache: write temp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("cache: rename: %w", err)
	}
	return nil
}

// onDiskEntry is the JSON body written after the magic+version prefix.
type onDiskEntry struct {
	CreatedAt    time.Time `json:"created_at"`
	SizeBytes    int64     `json:"size_bytes"`
	Dependencies []string  `json:"dependencies"`
	Value        []byte    `json:"value"`
}

func encodeEntry(e *Entry) []byte {
	body, _ := json.Marshal(onDiskEntry{CreatedAt: e.CreatedAt, SizeBytes: e.SizeBytes, Dependencies: e.Dependencies, Value: e.Value})
	out := make([]byte, 0, len(body)+3)
	out = append(out, magic[0], magic[1], version)
	out = append(out, body...)
	return out
}

// readDisk reads and decodes a disk entry. Any failure — missing file,
// half-written file, bad magic, unsupported version, malformed JSON — is
// a miss; a corrupt (present but undecodable) file is removed so it
// doesn't keep failing on every subsequent lookup.
func (c *Cache) readDisk(k Key) (*Entry, bool) {
	path := c.diskPath(k)
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, false // missing or unreadable: plain miss, nothing to clean up
	}
	if len(raw) < 3 || raw[0] != magic[0] || raw[1] != magic[1] {
		os.Remove(path)
		return nil, false
	}
	if raw[2] != version {
		os.Remove(path) // incompatible version: treated as a miss and deleted, per §6
		return nil, false
	}
	var body onDiskEntry
	if err := json.Unmarshal(raw[3:], &body); err != nil {
		os.Remove(path)
		return nil, false
	}
	return &Entry{
		Key:          k,
		Value:        body.Value,
		CreatedAt:    body.CreatedAt,
		SizeBytes:    body.SizeBytes,
		Dependencies: body.Dependencies,
	}, true
}

// Invalidate removes every cache entry that transitively depends on file
// (directly, or through a chain of results computed from results that
// depended on it) and returns the set of keys removed, per §4.7/R3.
// Invalidation traversal records visited keys and stops on a revisit, so
// a dependency cycle (entry A lists B as a dependency and vice versa,
// which a correct builder never produces but a corrupt cache might)
// terminates instead of looping forever.
func (c *Cache) Invalidate(file string) []Key {
	c.mu.Lock()
	defer c.mu.Unlock()

	visited := map[Key]bool{}
	var removed []Key
	frontier := []string{file}
	seenFiles := map[string]bool{}

	for len(frontier) > 0 {
		f := frontier[0]
		frontier = frontier[1:]
		if seenFiles[f] {
			continue
		}
		seenFiles[f] = true

		for k := range c.deps[f] {
			if visited[k] {
				continue
			}
			visited[k] = true
			removed = append(removed, k)
			c.memory.Remove(k)
			os.Remove(c.diskPath(k))
			// A removed key's own cache key also acts as a dependency
			// identifier for anything built on top of it.
			frontier = append(frontier, string(k))
		}
		delete(c.deps, f)
	}
	return removed
}

// Len reports the number of entries currently resident in the memory
// tier (not the disk tier, which may hold more that haven't been read
// back yet).
func (c *Cache) Len() int {
	return c.memory.Len()
}
