package log

import (
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DailyFile appends to a per-day file Dir/YYYY-MM-DD.txt.
// All methods are safe to call on nil receiver, which makes them no-ops.
type DailyFile struct {
	Dir string

	mu   sync.Mutex
	day  int // YYYYMMDD
	file *os.File
}

func NewDailyFile(dir string) *DailyFile {
	return &DailyFile{Dir: dir}
}

func dayOf(t time.Time) int {
	return t.Year()*10000 + int(t.Month())*100 + t.Day()
}

// must hold w.mu
func (w *DailyFile) open(now time.Time) error {
	today := dayOf(now)
	if w.file != nil && w.day == today {
		return nil
	}
	if err := w.close(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.Dir, 0755); err != nil {
		return err
	}
	path := filepath.Join(w.Dir, now.Format("2006-01-02")+".txt")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	w.file = f
	w.day = today
	return nil
}

func (w *DailyFile) Write(d []byte) error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.open(time.Now().UTC()); err != nil {
		return err
	}
	_, err := w.file.Write(d)
	return err
}

func (w *DailyFile) WriteString(s string) error {
	return w.Write([]byte(s))
}

func (w *DailyFile) close() error {
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	w.day = 0
	return err
}

func (w *DailyFile) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file != nil {
		_ = w.file.Sync()
	}
	return w.close()
}

