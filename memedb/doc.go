// Package memedb is a small embedded key-value store kept in a single
// JSON file, with transactional writes and secondary indexes over values.
//
// # Basic Usage
//
//	db, err := memedb.New("data.json")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = db.Set("alice", map[string]any{"city": "Paris"})
//	v, ok := db.Get("alice")
//
// The struct form allows setting options before the initial load:
//
//	db := &memedb.DB{Path: "data.json", Indent: true}
//	err := memedb.Open(db)
//
// # File Format
//
// The file is a JSON array of {"key": ..., "value": ...} objects, sorted
// by key. For compatibility a top-level JSON object is also accepted on
// load and used directly as the key to value map. Any other top-level
// value loads as an empty store.
//
// Values go through a JSON round-trip on Set, so what Get returns is what
// a reload from disk would return (numbers are json.Number, structs
// become map[string]any). Numbers are kept exactly as written, so large
// integers written by other tools survive a load and save. Values returned by Get must not be modified.
//
// # Transactions
//
// Every mutation runs inside [DB.Run]. Run holds the store's exclusive
// lock for the whole body plus the save. If the body returns an error,
// panics, or the save fails, index changes are undone, the store is
// reloaded from disk and Run returns a [*TxError]. Set and Delete are
// single-operation transactions.
//
//	err := db.Run(func(tx *memedb.Tx) error {
//	    if err := tx.Set("a", 1); err != nil {
//	        return err
//	    }
//	    return tx.Delete("b")
//	})
//
// # Indexes
//
// An index maps a value derived from each stored value to the set of keys
// holding it. Indexes live in memory only and are built by CreateIndex
// from the current content, then kept up to date by every Set and Delete.
//
//	err := db.CreateIndex("by_city", memedb.Field("city"))
//	keys, err := db.Lookup("by_city", "Paris")
//
// # Thread Safety
//
// DB is safe for concurrent use. Transactions are serialized, including
// the disk write. Get, Keys and Lookup never wait for a transaction and
// may see changes of a transaction that is still running.
package memedb
