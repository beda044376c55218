package log

import (
	"fmt"
	"path/filepath"
	"reflect"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kjk/memedb/siser"
	"github.com/toon-format/toon-go"
)

var (
	mu        sync.Mutex
	logFile   *DailyFile
	errorFile *DailyFile
	eventFile *DailyFile

	// if true, Verbosef() will log messages
	Verbose bool

	// Quiet disables printing to stdout. Files are still written.
	Quiet bool
)

type Config struct {
	// directory where log files are stored, each kind
	// (log, errors, events) in its own subdirectory
	Dir string
}

// Init enables writing logs to files. Without it logs only go to stdout.
func Init(config *Config) {
	Close()
	mu.Lock()
	defer mu.Unlock()
	logFile = NewDailyFile(filepath.Join(config.Dir, "log"))
	errorFile = NewDailyFile(filepath.Join(config.Dir, "errors"))
	// events file is only created if we log events
	eventFile = NewDailyFile(filepath.Join(config.Dir, "events"))
}

// Close closes log files. Logging after Close goes to stdout only.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	for _, w := range []**DailyFile{&logFile, &errorFile, &eventFile} {
		_ = (*w).Close()
		*w = nil
	}
}

func files() (l, e, ev *DailyFile) {
	mu.Lock()
	defer mu.Unlock()
	return logFile, errorFile, eventFile
}

func Logf(s string, args ...any) {
	if len(args) > 0 {
		s = fmt.Sprintf(s, args...)
	}
	if !Quiet {
		fmt.Print(s)
	}
	l, _, _ := files()
	_ = l.WriteString(s)
}

func Verbosef(s string, args ...any) {
	if !Verbose {
		return
	}
	Logf(s, args...)
}

// callstack returns "file:line" of callers, one per line.
// skip 0 is the caller of callstack.
func callstack(skip int) string {
	var pcs [32]uintptr
	n := runtime.Callers(skip+2, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])
	var sb strings.Builder
	for {
		frame, more := frames.Next()
		if frame.File != "" {
			sb.WriteString(frame.File + ":" + strconv.Itoa(frame.Line) + "\n")
		}
		if !more {
			break
		}
	}
	return sb.String()
}

// Errorf logs an error message along with the callstack.
// It also goes to the errors file.
func Errorf(s string, args ...any) {
	if len(args) > 0 {
		s = fmt.Sprintf(s, args...)
	}
	if !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	s += callstack(1)
	Logf("%s", s)
	_, e, _ := files()
	_ = e.WriteString(s)
}

// keys in Event() must be simple values
func keyToStr(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if v == nil {
		panic("log.Event: nil key")
	}
	switch reflect.TypeOf(v).Kind() {
	case reflect.Array, reflect.Slice, reflect.Struct, reflect.Map, reflect.Chan, reflect.Interface, reflect.Pointer, reflect.Func:
		panic(fmt.Sprintf("log.Event: key %v is of kind %T", v, v))
	}
	return fmt.Sprint(v)
}

// FormatEvent serializes event as siser record named name, with
// key/values toon encoded as data
func FormatEvent(name string, t time.Time, vals ...any) []byte {
	n := len(vals)
	if n%2 != 0 {
		panic(fmt.Sprintf("log.Event: odd number of values (%d)", n))
	}
	var d []byte
	if n > 0 {
		m := map[string]any{}
		for i := 0; i < n; i += 2 {
			m[keyToStr(vals[i])] = vals[i+1]
		}
		var err error
		if d, err = toon.Marshal(m); err != nil {
			d = []byte("error: " + strconv.Quote(err.Error()))
		}
	}
	return siser.MarshalLine(name, t, d, nil)
}

// Event records a named event with key/value pairs to the events file
func Event(name string, vals ...any) {
	d := FormatEvent(name, time.Now().UTC(), vals...)
	Verbosef("event: %s", d)
	_, _, ev := files()
	_ = ev.Write(d)
}

func EventWithDuration(name string, dur time.Duration, vals ...any) {
	vals = append(vals, "durmicro", dur.Microseconds())
	Event(name, vals...)
}
