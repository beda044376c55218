package memedb

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/alecthomas/assert"
)

func TestCreateIndexByLen(t *testing.T) {
	db := openTestDB(t)
	assert.NoError(t, db.Set("a", "x"))
	assert.NoError(t, db.Set("b", "yy"))
	assert.NoError(t, db.CreateIndex("by_len", Len))
	assertIndex(t, db, "by_len", map[string][]string{
		"1": {"a"},
		"2": {"b"},
	})

	keys, err := db.Lookup("by_len", 2)
	assert.NoError(t, err)
	assert.Equal(t, []string{"b"}, keys)
	keys, err = db.Lookup("by_len", 5)
	assert.NoError(t, err)
	assert.Equal(t, []string{}, keys)
}

func TestCreateIndexDuplicate(t *testing.T) {
	db := openTestDB(t)
	assert.NoError(t, db.Set("a", "x"))
	assert.NoError(t, db.CreateIndex("idx", Len))
	before := indexData(t, db, "idx")

	err := db.CreateIndex("idx", nil)
	assert.True(t, errors.Is(err, ErrDuplicateIndex), "got %v", err)
	assertIndex(t, db, "idx", before)
	assert.Equal(t, []string{"idx"}, db.Indexes())
}

func TestCreateIndexFailingDeriver(t *testing.T) {
	db := openTestDB(t)
	assert.NoError(t, db.Set("a", "x"))
	assert.NoError(t, db.Set("b", 5))
	// Len can't take length of a number
	err := db.CreateIndex("by_len", Len)
	assert.Error(t, err)
	assert.Equal(t, 0, len(db.Indexes()))
	_, err = db.IndexData("by_len")
	assert.True(t, errors.Is(err, ErrIndexNotFound))

	panicky := DeriveFunc(func(v any) (any, error) {
		return v.(string) + "!", nil
	})
	err = db.CreateIndex("bang", panicky)
	var pe *PanicError
	assert.True(t, errors.As(err, &pe), "got %v", err)
	assert.Equal(t, 0, len(db.Indexes()))
}

func TestIndexUpdatedOnSetAndDelete(t *testing.T) {
	db := openTestDB(t)
	assert.NoError(t, db.CreateIndex("by_city", Field("city")))
	assert.NoError(t, db.Set("ann", map[string]any{"city": "Paris"}))
	assert.NoError(t, db.Set("bob", map[string]any{"city": "Oslo"}))
	assert.NoError(t, db.Set("cid", map[string]any{"city": "Paris"}))
	assert.NoError(t, db.Set("dan", "no city"))
	assertIndex(t, db, "by_city", map[string][]string{
		`"Paris"`: {"ann", "cid"},
		`"Oslo"`:  {"bob"},
		"null":    {"dan"},
	})

	assert.NoError(t, db.Delete("ann"))
	assert.NoError(t, db.Delete("dan"))
	assertIndex(t, db, "by_city", map[string][]string{
		`"Paris"`: {"cid"},
		`"Oslo"`:  {"bob"},
	})

	// re-adding a deleted key
	assert.NoError(t, db.Set("ann", map[string]any{"city": "Oslo"}))
	keys, err := db.Lookup("by_city", "Oslo")
	assert.NoError(t, err)
	assert.Equal(t, []string{"ann", "bob"}, keys)
}

func TestOverwriteMovesKeyToNewBucket(t *testing.T) {
	db := openTestDB(t)
	assert.NoError(t, db.CreateIndex("id", nil))
	assert.NoError(t, db.Set("k", 1))
	assert.NoError(t, db.Set("k", 2))
	assertIndex(t, db, "id", map[string][]string{
		"2": {"k"},
	})
	// same value again is a no-op
	assert.NoError(t, db.Set("k", 2))
	assertIndex(t, db, "id", map[string][]string{
		"2": {"k"},
	})
}

func TestLookupNumbersAndComposite(t *testing.T) {
	db := openTestDB(t)
	assert.NoError(t, db.CreateIndex("id", Identity))
	assert.NoError(t, db.Set("i", 1))
	assert.NoError(t, db.Set("l", []any{"a", 1}))
	assert.NoError(t, db.Set("m", map[string]any{"b": 2, "a": 1}))

	for _, iv := range []any{1, 1.0, int64(1), uint8(1), json.Number("1.0"), json.Number("1e0")} {
		keys, err := db.Lookup("id", iv)
		assert.NoError(t, err)
		assert.Equal(t, []string{"i"}, keys, "%T", iv)
	}
	keys, err := db.Lookup("id", []any{"a", 1})
	assert.NoError(t, err)
	assert.Equal(t, []string{"l"}, keys)
	keys, err = db.Lookup("id", map[string]any{"a": 1, "b": 2})
	assert.NoError(t, err)
	assert.Equal(t, []string{"m"}, keys)

	_, err = db.Lookup("id", make(chan int))
	assert.Error(t, err)
}

func TestLookupAny(t *testing.T) {
	db := openTestDB(t)
	for k, v := range map[string]any{"a": "x", "b": "yy", "c": "zz", "d": "www"} {
		assert.NoError(t, db.Set(k, v))
	}
	assert.NoError(t, db.CreateIndex("by_len", Len))
	keys, err := db.LookupAny("by_len", 1, 3)
	assert.NoError(t, err)
	assert.Equal(t, []string{"a", "d"}, keys)
	keys, err = db.LookupAny("by_len", 2, 2, 7)
	assert.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, keys)
	keys, err = db.LookupAny("by_len")
	assert.NoError(t, err)
	assert.Equal(t, []string{}, keys)
}

func TestDropIndex(t *testing.T) {
	db := openTestDB(t)
	assert.NoError(t, db.CreateIndex("b", nil))
	assert.NoError(t, db.CreateIndex("a", Len))
	assert.Equal(t, []string{"a", "b"}, db.Indexes())

	assert.NoError(t, db.DropIndex("a"))
	assert.Equal(t, []string{"b"}, db.Indexes())
	err := db.DropIndex("a")
	assert.True(t, errors.Is(err, ErrIndexNotFound))
	_, err = db.Lookup("a", 1)
	assert.True(t, errors.Is(err, ErrIndexNotFound))

	// Len would fail on a number, but the index is gone
	assert.NoError(t, db.Set("n", 5))
	// name can be reused
	assert.NoError(t, db.CreateIndex("a", nil))
	assertIndex(t, db, "a", map[string][]string{"5": {"n"}})
}

func TestIndexesNotPersisted(t *testing.T) {
	db := openTestDB(t)
	assert.NoError(t, db.Set("a", "x"))
	assert.NoError(t, db.CreateIndex("by_len", Len))

	db2, err := New(db.Path)
	assert.NoError(t, err)
	assert.Equal(t, 0, len(db2.Indexes()))
	diskMatchesMemory(t, db)
}

func TestLargeIntegerBuckets(t *testing.T) {
	path := testPath(t)
	writeFile(t, path, `{"a": 9007199254740993, "b": 9007199254740992, "c": 2.5, "d": 25e-1}`)
	db, err := New(path)
	assert.NoError(t, err)
	assert.NoError(t, db.CreateIndex("id", nil))
	assertIndex(t, db, "id", map[string][]string{
		"9007199254740993": {"a"},
		"9007199254740992": {"b"},
		"2.5":              {"c", "d"},
	})
	keys, err := db.Lookup("id", int64(9007199254740993))
	assert.NoError(t, err)
	assert.Equal(t, []string{"a"}, keys)
	keys, err = db.Lookup("id", 2.5)
	assert.NoError(t, err)
	assert.Equal(t, []string{"c", "d"}, keys)
}

func TestCanonicalNumber(t *testing.T) {
	tests := [][2]string{
		{"1", "1"},
		{"1.0", "1"},
		{"1e0", "1"},
		{"-0", "0"},
		{"100e-2", "1"},
		{"2.50", "2.5"},
		{"9007199254740993", "9007199254740993"},
		{"18446744073709551615", "18446744073709551615"},
		{"1e400", "1e400"},
	}
	for _, test := range tests {
		assert.Equal(t, test[1], canonicalNumber(test[0]), test[0])
	}
}
