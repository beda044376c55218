package memedb

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyPath      = errors.New("memedb: path is not set")
	ErrDuplicateIndex = errors.New("memedb: index already exists")
	ErrIndexNotFound  = errors.New("memedb: index not found")
	// ErrTxDone is returned by Tx methods called after Run returned
	ErrTxDone = errors.New("memedb: transaction already finished")
)

// TxError is returned by Run when a transaction was rolled back.
// Err is what made it fail. RollbackErr is set if reloading the store
// from disk failed too, in which case memory and indexes still have the
// changes of the failed transaction and differ from the file.
type TxError struct {
	Err         error
	RollbackErr error
}

func (e *TxError) Error() string {
	if e.RollbackErr != nil {
		return fmt.Sprintf("memedb: transaction rolled back: %s (reload failed: %s)", e.Err, e.RollbackErr)
	}
	return fmt.Sprintf("memedb: transaction rolled back: %s", e.Err)
}

func (e *TxError) Unwrap() error { return e.Err }

// PanicError wraps a value recovered from a panic inside a transaction
// or a Deriver
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

// errKind returns the type name of the innermost error, for logging
func errKind(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return fmt.Sprintf("%T", err)
		}
		err = next
	}
}
