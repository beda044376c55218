package siser

import (
	"bytes"
	"strconv"
	"time"
)

var hdrPrefix = []byte("--- ")

// MarshalLine serializes a record. A zero t means no timestamp and an
// empty name means no name. If wb is given its buffer is re-used, so the
// result is only valid until the next use of wb.
func MarshalLine(name string, t time.Time, d []byte, wb *bytes.Buffer) []byte {
	if wb == nil {
		wb = &bytes.Buffer{}
	} else {
		wb.Reset()
	}
	// 32 covers size, timestamp and separators
	wb.Grow(len(hdrPrefix) + len(name) + len(d) + 32)

	n := len(d)
	wb.Write(hdrPrefix)
	wb.WriteString(strconv.Itoa(n))
	if !t.IsZero() {
		wb.WriteByte(' ')
		wb.WriteString(strconv.FormatInt(t.UnixMilli(), 10))
	}
	if name != "" {
		wb.WriteByte(' ')
		wb.WriteString(name)
	}
	wb.WriteByte('\n')
	if n > 0 {
		wb.Write(d)
		if d[n-1] != '\n' {
			wb.WriteByte('\n')
		}
	}
	return wb.Bytes()
}
