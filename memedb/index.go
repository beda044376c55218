package memedb

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/kjk/memedb/log"
)

// keys in a bucket are ids from indexManager's key dictionary
type bucket struct {
	value any
	keys  *roaring.Bitmap
}

type index struct {
	name    string
	deriver Deriver
	// canonical JSON of index value => bucket
	buckets map[string]*bucket
	// key id => canonical JSON of its bucket
	keyBucket map[uint32]string
}

// inverse operations of index changes made in a transaction
type undoLog []func()

func (u *undoLog) push(fn func()) {
	if u != nil {
		*u = append(*u, fn)
	}
}

type indexManager struct {
	mu      sync.RWMutex
	indexes map[string]*index
	// key dictionary, ids are never reused
	ids  map[string]uint32
	keys []string
}

// derived index value of a key for one index
type indexEntry struct {
	idx   *index
	value any
	ck    string
}

func newIndexManager() *indexManager {
	return &indexManager{
		indexes: map[string]*index{},
		ids:     map[string]uint32{},
	}
}

func newIndex(name string, d Deriver) *index {
	return &index{
		name:      name,
		deriver:   d,
		buckets:   map[string]*bucket{},
		keyBucket: map[uint32]string{},
	}
}

// canonicalKey is the bucket key for an index value. Equal JSON means
// the same bucket. Numbers are compared by value so int 1, float64 1 and
// json.Number "1.0" match.
func canonicalKey(iv any) (string, error) {
	d, err := json.Marshal(iv)
	if err != nil {
		return "", err
	}
	v, err := decodeJSON(d)
	if err != nil {
		return "", err
	}
	d, err = json.Marshal(canonicalNumbers(v))
	if err != nil {
		return "", err
	}
	return string(d), nil
}

// canonicalNumbers rewrites numbers in v (as returned by decodeJSON) to
// a single form: integers without fraction or exponent, other numbers
// as shortest float64 repr
func canonicalNumbers(v any) any {
	switch v := v.(type) {
	case json.Number:
		return json.Number(canonicalNumber(string(v)))
	case []any:
		for i, el := range v {
			v[i] = canonicalNumbers(el)
		}
	case map[string]any:
		for k, el := range v {
			v[k] = canonicalNumbers(el)
		}
	}
	return v
}

func canonicalNumber(s string) string {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return strconv.FormatInt(i, 10)
	}
	if u, err := strconv.ParseUint(s, 10, 64); err == nil {
		return strconv.FormatUint(u, 10)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		// out of float64 range, keep as written
		return s
	}
	if f == math.Trunc(f) && math.Abs(f) < 1<<63 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func (idx *index) entry(v any) (indexEntry, error) {
	iv, err := derive(idx.deriver, v)
	if err != nil {
		return indexEntry{}, fmt.Errorf("memedb: index '%s': %w", idx.name, err)
	}
	ck, err := canonicalKey(iv)
	if err != nil {
		return indexEntry{}, fmt.Errorf("memedb: index '%s': bad index value: %w", idx.name, err)
	}
	return indexEntry{idx: idx, value: iv, ck: ck}, nil
}

func (idx *index) del(id uint32, undo *undoLog) {
	ck, ok := idx.keyBucket[id]
	if !ok {
		return
	}
	b := idx.buckets[ck]
	b.keys.Remove(id)
	delete(idx.keyBucket, id)
	if b.keys.IsEmpty() {
		delete(idx.buckets, ck)
	}
	undo.push(func() { idx.add(id, ck, b.value, nil) })
}

// add moves id to bucket ck, removing it from its previous bucket
func (idx *index) add(id uint32, ck string, iv any, undo *undoLog) {
	if cur, ok := idx.keyBucket[id]; ok {
		if cur == ck {
			return
		}
		idx.del(id, undo)
	}
	b := idx.buckets[ck]
	if b == nil {
		b = &bucket{value: iv, keys: roaring.New()}
		idx.buckets[ck] = b
	}
	b.keys.Add(id)
	idx.keyBucket[id] = ck
	undo.push(func() { idx.del(id, nil) })
}

// must hold im.mu
func (im *indexManager) idFor(key string) uint32 {
	if id, ok := im.ids[key]; ok {
		return id
	}
	id := uint32(len(im.keys))
	im.ids[key] = id
	im.keys = append(im.keys, key)
	return id
}

// must hold im.mu (at least for reading)
func (im *indexManager) keysOf(bm *roaring.Bitmap) []string {
	res := make([]string, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		res = append(res, im.keys[it.Next()])
	}
	slices.Sort(res)
	return res
}

func (im *indexManager) has(name string) bool {
	im.mu.RLock()
	defer im.mu.RUnlock()
	_, ok := im.indexes[name]
	return ok
}

func (im *indexManager) list() []*index {
	im.mu.RLock()
	defer im.mu.RUnlock()
	res := make([]*index, 0, len(im.indexes))
	for _, idx := range im.indexes {
		res = append(res, idx)
	}
	return res
}

// entries derives index values for v in every index. Derivers run
// without im.mu but with db.mu held, so they may only read from the DB
// (Get, Keys, Lookup). Set, Delete, Run, CreateIndex or DropIndex from a
// Deriver deadlock.
func (im *indexManager) entries(v any) ([]indexEntry, error) {
	var res []indexEntry
	for _, idx := range im.list() {
		e, err := idx.entry(v)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, nil
}

// update puts key in the bucket of its new index value in every index
func (im *indexManager) update(key string, entries []indexEntry, undo *undoLog) {
	if len(entries) == 0 {
		return
	}
	im.mu.Lock()
	defer im.mu.Unlock()
	id := im.idFor(key)
	for _, e := range entries {
		e.idx.add(id, e.ck, e.value, undo)
	}
}

// remove takes key out of every index
func (im *indexManager) remove(key string, undo *undoLog) {
	im.mu.Lock()
	defer im.mu.Unlock()
	id, ok := im.ids[key]
	if !ok {
		return
	}
	for _, idx := range im.indexes {
		idx.del(id, undo)
	}
}

// rollback reverts changes recorded in undo, newest first
func (im *indexManager) rollback(undo undoLog) {
	im.mu.Lock()
	defer im.mu.Unlock()
	for i := len(undo) - 1; i >= 0; i-- {
		undo[i]()
	}
}

func (im *indexManager) register(idx *index, keys []string, entries []indexEntry) error {
	im.mu.Lock()
	defer im.mu.Unlock()
	if _, ok := im.indexes[idx.name]; ok {
		return fmt.Errorf("memedb: index '%s': %w", idx.name, ErrDuplicateIndex)
	}
	for i, key := range keys {
		e := entries[i]
		idx.add(im.idFor(key), e.ck, e.value, nil)
	}
	im.indexes[idx.name] = idx
	return nil
}

func (im *indexManager) drop(name string) error {
	im.mu.Lock()
	defer im.mu.Unlock()
	if _, ok := im.indexes[name]; !ok {
		return fmt.Errorf("memedb: index '%s': %w", name, ErrIndexNotFound)
	}
	delete(im.indexes, name)
	return nil
}

func (im *indexManager) get(name string) (*index, error) {
	idx, ok := im.indexes[name]
	if !ok {
		return nil, fmt.Errorf("memedb: index '%s': %w", name, ErrIndexNotFound)
	}
	return idx, nil
}

// CreateIndex creates index name and fills it from current content.
// A nil d means Identity. Fails with ErrDuplicateIndex if the index
// exists. If d fails for any stored value, the index is not created.
func (db *DB) CreateIndex(name string, d Deriver) error {
	if d == nil {
		d = Identity
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	im := db.indexes
	if im.has(name) {
		return fmt.Errorf("memedb: index '%s': %w", name, ErrDuplicateIndex)
	}
	idx := newIndex(name, d)
	keys := db.Keys()
	entries := make([]indexEntry, len(keys))
	for i, key := range keys {
		v, _ := db.Get(key)
		e, err := idx.entry(v)
		if err != nil {
			return fmt.Errorf("memedb: create index, key '%s': %w", key, err)
		}
		entries[i] = e
	}
	if err := im.register(idx, keys, entries); err != nil {
		return err
	}
	log.Event("memedb.create_index", "name", name, "keys", len(keys), "buckets", len(idx.buckets))
	return nil
}

// DropIndex removes index name
func (db *DB) DropIndex(name string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.indexes.drop(name)
}

// Indexes returns names of all indexes, sorted
func (db *DB) Indexes() []string {
	var res []string
	for _, idx := range db.indexes.list() {
		res = append(res, idx.name)
	}
	slices.Sort(res)
	return res
}

// Lookup returns sorted keys whose value derives to indexValue in index name
func (db *DB) Lookup(name string, indexValue any) ([]string, error) {
	return db.LookupAny(name, indexValue)
}

// LookupAny returns sorted keys whose value derives to any of indexValues
func (db *DB) LookupAny(name string, indexValues ...any) ([]string, error) {
	cks := make([]string, len(indexValues))
	for i, iv := range indexValues {
		ck, err := canonicalKey(iv)
		if err != nil {
			return nil, fmt.Errorf("memedb: index '%s': bad index value: %w", name, err)
		}
		cks[i] = ck
	}

	im := db.indexes
	im.mu.RLock()
	defer im.mu.RUnlock()
	idx, err := im.get(name)
	if err != nil {
		return nil, err
	}
	var bms []*roaring.Bitmap
	for _, ck := range cks {
		if b := idx.buckets[ck]; b != nil {
			bms = append(bms, b.keys)
		}
	}
	return im.keysOf(roaring.FastOr(bms...)), nil
}

// IndexData returns content of index name: canonical JSON of index
// value => sorted keys
func (db *DB) IndexData(name string) (map[string][]string, error) {
	im := db.indexes
	im.mu.RLock()
	defer im.mu.RUnlock()
	idx, err := im.get(name)
	if err != nil {
		return nil, err
	}
	res := make(map[string][]string, len(idx.buckets))
	for ck, b := range idx.buckets {
		res[ck] = im.keysOf(b.keys)
	}
	return res, nil
}
