package memedb

import (
	"fmt"
	"time"

	"github.com/kjk/memedb/log"
)

// Tx is a transaction in progress, valid only inside the body passed to Run
type Tx struct {
	db   *DB
	undo undoLog
	ops  int
	done bool
}

// Get returns the value for key, including changes made by tx
func (tx *Tx) Get(key string) (any, bool) {
	return tx.db.Get(key)
}

// Set sets key to value and updates all indexes
func (tx *Tx) Set(key string, value any) error {
	if tx.done {
		return ErrTxDone
	}
	v, err := normalize(value)
	if err != nil {
		return fmt.Errorf("memedb: set '%s': %w", key, err)
	}
	// derive first so a failing Deriver leaves nothing half done
	entries, err := tx.db.indexes.entries(v)
	if err != nil {
		return fmt.Errorf("memedb: set '%s': %w", key, err)
	}
	tx.db.put(key, v)
	tx.db.indexes.update(key, entries, &tx.undo)
	tx.ops++
	return nil
}

// Delete removes key from the store and all indexes.
// Deleting a missing key is not an error.
func (tx *Tx) Delete(key string) error {
	if tx.done {
		return ErrTxDone
	}
	tx.db.remove(key)
	tx.db.indexes.remove(key, &tx.undo)
	tx.ops++
	return nil
}

func (tx *Tx) exec(body func(tx *Tx) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return body(tx)
}

// Run runs body as a transaction, holding the exclusive lock until done.
// If body returns nil the store is saved. If body fails, panics or the
// save fails, indexes are reverted, the store is reloaded from disk and
// a *TxError is returned.
func (db *DB) Run(body func(tx *Tx) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	timeStart := time.Now()
	tx := &Tx{db: db}
	defer func() { tx.done = true }()

	err := tx.exec(body)
	if err == nil {
		err = db.save()
		if err == nil {
			log.EventWithDuration("memedb.commit", time.Since(timeStart), "ops", tx.ops)
			return nil
		}
		err = fmt.Errorf("memedb: save '%s': %w", db.Path, err)
	}
	return db.rollback(tx, err)
}

// must hold db.mu. Indexes are reverted only if reloading succeeds, so
// that they always describe what is in memory.
func (db *DB) rollback(tx *Tx, cause error) error {
	log.Errorf("memedb: transaction failed, rolling back. %s: %s", errKind(cause), cause)
	txErr := &TxError{Err: cause}
	if err := db.load(); err != nil {
		txErr.RollbackErr = err
		log.Errorf("memedb: rollback reload of '%s' failed, memory keeps changes of the failed transaction: %s", db.Path, err)
	} else {
		db.indexes.rollback(tx.undo)
	}
	log.Event("memedb.rollback", "ops", tx.ops, "kind", errKind(cause))
	return txErr
}

// Set sets key to value in its own transaction
func (db *DB) Set(key string, value any) error {
	return db.Run(func(tx *Tx) error {
		return tx.Set(key, value)
	})
}

// Delete removes key in its own transaction
func (db *DB) Delete(key string) error {
	return db.Run(func(tx *Tx) error {
		return tx.Delete(key)
	})
}
