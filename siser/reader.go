package siser

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"time"
)

// Reader reads records written with MarshalLine
type Reader struct {
	r *bufio.Reader

	// records were written without a timestamp. Needed to tell
	// "${size} ${name}" from "${size} ${timestamp}"
	NoTimestamp bool

	// valid after ReadNext() returns true, until the next call
	Data      []byte
	Name      string
	Timestamp time.Time

	err  error
	done bool
}

func NewReader(r io.Reader) *Reader {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &Reader{r: br}
}

// Err returns the error that stopped reading. io.EOF is not an error.
func (r *Reader) Err() error {
	return r.err
}

func (r *Reader) badHeader(hdr []byte) bool {
	r.err = fmt.Errorf("siser: invalid header '%s'", bytes.TrimSpace(hdr))
	return false
}

// ReadNext reads the next record. Returns false at the end of data or on
// error, check Err() to tell which.
func (r *Reader) ReadNext() bool {
	if r.err != nil || r.done {
		return false
	}
	r.Name = ""
	r.Timestamp = time.Time{}

	hdr, err := r.r.ReadBytes('\n')
	if err != nil {
		if err == io.EOF && len(hdr) == 0 {
			r.done = true
		} else if err == io.EOF {
			r.err = io.ErrUnexpectedEOF
		} else {
			r.err = err
		}
		return false
	}
	if !bytes.HasPrefix(hdr, hdrPrefix) {
		return r.badHeader(hdr)
	}
	parts := bytes.SplitN(bytes.TrimSuffix(hdr[len(hdrPrefix):], []byte{'\n'}), []byte{' '}, 3)

	size, err := strconv.Atoi(string(parts[0]))
	if err != nil || size < 0 {
		return r.badHeader(hdr)
	}
	rest := parts[1:]
	if !r.NoTimestamp && len(rest) > 0 {
		ms, err := strconv.ParseInt(string(rest[0]), 10, 64)
		if err != nil {
			return r.badHeader(hdr)
		}
		r.Timestamp = time.UnixMilli(ms)
		rest = rest[1:]
	}
	if len(rest) > 0 {
		r.Name = string(bytes.Join(rest, []byte{' '}))
	}

	// don't hold on to big buffers
	if cap(r.Data) > 1024*1024 || cap(r.Data) < size {
		r.Data = make([]byte, size)
	} else {
		r.Data = r.Data[:size]
	}
	if _, err = io.ReadFull(r.r, r.Data); err != nil {
		r.err = err
		return false
	}
	// skip the newline MarshalLine adds for readability
	if size > 0 && r.Data[size-1] != '\n' {
		if _, err = r.r.Discard(1); err != nil {
			r.err = err
			return false
		}
	}
	return true
}
