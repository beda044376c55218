package memedb

import (
	"bytes"
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"slices"
	"sync"

	"github.com/kjk/memedb/atomicfile"
	"github.com/kjk/memedb/log"
	"github.com/tidwall/pretty"
)

// DB is a key-value store backed by the JSON file at Path
type DB struct {
	// path of the JSON file, its directory must exist
	Path string
	// if true, the file is written as indented JSON
	Indent bool

	// exclusive lock held by transactions and index (re)creation
	mu sync.Mutex

	// guards individual accesses to data, never held across a transaction
	dataMu sync.RWMutex
	data   map[string]any

	indexes *indexManager
}

// on-disk record
type record struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// New creates a DB for path and loads it, creating the file if needed
func New(path string) (*DB, error) {
	db := &DB{Path: path}
	if err := Open(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Open loads db from db.Path. If the file doesn't exist, it's created
// with an empty store.
func Open(db *DB) error {
	if db.Path == "" {
		return ErrEmptyPath
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	db.indexes = newIndexManager()
	return db.load()
}

// Get returns the value for key. ok is false if key is not present.
func (db *DB) Get(key string) (v any, ok bool) {
	db.dataMu.RLock()
	v, ok = db.data[key]
	db.dataMu.RUnlock()
	return v, ok
}

// Keys returns all keys, sorted
func (db *DB) Keys() []string {
	db.dataMu.RLock()
	res := make([]string, 0, len(db.data))
	for k := range db.data {
		res = append(res, k)
	}
	db.dataMu.RUnlock()
	slices.Sort(res)
	return res
}

func (db *DB) Len() int {
	db.dataMu.RLock()
	defer db.dataMu.RUnlock()
	return len(db.data)
}

func (db *DB) setData(m map[string]any) {
	db.dataMu.Lock()
	db.data = m
	db.dataMu.Unlock()
}

func (db *DB) put(key string, v any) {
	db.dataMu.Lock()
	db.data[key] = v
	db.dataMu.Unlock()
}

func (db *DB) remove(key string) {
	db.dataMu.Lock()
	delete(db.data, key)
	db.dataMu.Unlock()
}

// decodeFile parses file content. ok is false if top-level value is
// neither an object nor an array, in which case m is empty.
func decodeFile(d []byte) (m map[string]any, ok bool, err error) {
	root, err := decodeJSON(d)
	if err != nil {
		return nil, false, err
	}
	m = map[string]any{}
	switch v := root.(type) {
	case map[string]any:
		return v, true, nil
	case []any:
		for _, el := range v {
			rec, isObj := el.(map[string]any)
			if !isObj {
				continue
			}
			key, isStr := rec["key"].(string)
			if !isStr {
				continue
			}
			val, hasVal := rec["value"]
			if !hasVal {
				continue
			}
			m[key] = val
		}
		return m, true, nil
	}
	return m, false, nil
}

// must hold db.mu
func (db *DB) load() error {
	d, err := os.ReadFile(db.Path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Logf("memedb: %s not found, creating empty store\n", db.Path)
		prev := db.data
		db.setData(map[string]any{})
		if err = db.save(); err != nil {
			db.setData(prev)
			return err
		}
		return nil
	}
	if err != nil {
		return err
	}
	m, ok, err := decodeFile(d)
	if err != nil {
		return fmt.Errorf("memedb: failed to parse '%s': %w", db.Path, err)
	}
	if !ok {
		log.Logf("memedb: warning: '%s' is neither a JSON array nor an object, loaded as empty\n", db.Path)
	}
	db.setData(m)
	log.Verbosef("memedb: loaded %d keys from '%s'\n", len(m), db.Path)
	return nil
}

// Marshal returns the content save() writes to disk for the current state
func (db *DB) Marshal() ([]byte, error) {
	db.dataMu.RLock()
	recs := make([]record, 0, len(db.data))
	for k, v := range db.data {
		recs = append(recs, record{Key: k, Value: v})
	}
	db.dataMu.RUnlock()
	slices.SortFunc(recs, func(a, b record) int {
		return cmp.Compare(a.Key, b.Key)
	})

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(recs); err != nil {
		return nil, err
	}
	d := buf.Bytes()
	if db.Indent {
		d = pretty.Pretty(d)
	}
	return d, nil
}

// must hold db.mu
func (db *DB) save() error {
	d, err := db.Marshal()
	if err != nil {
		return err
	}
	// keep permissions of the existing file
	perm := os.FileMode(0644)
	if st, err := os.Stat(db.Path); err == nil {
		perm = st.Mode().Perm()
	}
	return atomicfile.WriteFile(db.Path, d, perm)
}

// decodeJSON decodes a single JSON value. Numbers are kept as
// json.Number so integers of any size survive a load and save.
func decodeJSON(d []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(d))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("invalid data after top-level value")
	}
	return v, nil
}

// normalize returns v as it would be after a save and reload
func normalize(v any) (any, error) {
	d, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return decodeJSON(d)
}
