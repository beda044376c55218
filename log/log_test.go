package log

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alecthomas/assert"
	"github.com/kjk/memedb/siser"
)

func TestFormatEvent(t *testing.T) {
	tm := time.UnixMilli(1700000000123).UTC()
	d := FormatEvent("memedb.commit", tm)
	assert.Equal(t, "--- 0 1700000000123 memedb.commit\n", string(d))

	var buf bytes.Buffer
	buf.Write(d)
	buf.Write(FormatEvent("memedb.rollback", tm, "key", "k1", "ops", 2, "error", "a; b\nc"))

	r := siser.NewReader(&buf)
	assert.True(t, r.ReadNext(), "%v", r.Err())
	assert.Equal(t, "memedb.commit", r.Name)
	assert.Equal(t, 0, len(r.Data))

	assert.True(t, r.ReadNext(), "%v", r.Err())
	assert.Equal(t, "memedb.rollback", r.Name)
	assert.Equal(t, tm.UnixMilli(), r.Timestamp.UnixMilli())
	s := string(r.Data)
	assert.True(t, strings.Contains(s, "k1"), s)
	assert.True(t, strings.Contains(s, "ops"), s)

	assert.False(t, r.ReadNext())
	assert.NoError(t, r.Err())
}

func TestFormatEventBadArgs(t *testing.T) {
	assert.Panics(t, func() { FormatEvent("e", time.Now(), "odd") })
	assert.Panics(t, func() { FormatEvent("e", time.Now(), []int{1}, 2) })
	assert.Panics(t, func() { FormatEvent("e", time.Now(), nil, 2) })
}

func TestNilDailyFile(t *testing.T) {
	var w *DailyFile
	assert.NoError(t, w.WriteString("foo"))
	assert.NoError(t, w.Close())
}

// readLog returns content of the only file in dir/kind
func readLog(t *testing.T, dir string, kind string) string {
	paths, err := filepath.Glob(filepath.Join(dir, kind, "*.txt"))
	assert.NoError(t, err)
	assert.Equal(t, 1, len(paths), "%s: %v", kind, paths)
	d, err := os.ReadFile(paths[0])
	assert.NoError(t, err)
	return string(d)
}

func TestInitWritesFiles(t *testing.T) {
	dir := t.TempDir()
	Quiet = true
	Init(&Config{Dir: dir})
	defer func() {
		Close()
		Quiet = false
	}()

	Logf("hello %s\n", "world")
	Errorf("bad thing: %d", 5)
	Event("test.event", "n", 1)
	Close()

	s := readLog(t, dir, "log")
	assert.True(t, strings.HasPrefix(s, "hello world\nbad thing: 5\n"), s)

	s = readLog(t, dir, "errors")
	assert.True(t, strings.HasPrefix(s, "bad thing: 5\n"), s)
	assert.True(t, strings.Contains(s, "log_test.go"), "missing callstack: %s", s)

	s = readLog(t, dir, "events")
	r := siser.NewReader(strings.NewReader(s))
	assert.True(t, r.ReadNext(), "%v", r.Err())
	assert.Equal(t, "test.event", r.Name)
	assert.False(t, r.ReadNext())
	assert.NoError(t, r.Err())

	// after Close logging still works, to stdout only
	Logf("after close\n")
	assert.False(t, strings.Contains(readLog(t, dir, "log"), "after close"))
}

func TestVerbosef(t *testing.T) {
	dir := t.TempDir()
	Quiet = true
	Init(&Config{Dir: dir})
	defer func() {
		Close()
		Quiet = false
		Verbose = false
	}()

	Verbose = false
	Verbosef("hidden\n")
	Verbose = true
	Verbosef("shown\n")
	Close()
	assert.Equal(t, "shown\n", readLog(t, dir, "log"))
}
