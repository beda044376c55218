// Package siser reads and writes length-prefixed records.
//
// A record is a header line followed by data:
//
//	--- ${size} ${timestamp_in_unix_epoch_ms} ${name}\n
//	${data}
//
// Timestamp and name are optional. If data doesn't end with a newline,
// one is added after it for readability and skipped when reading. Since
// size is explicit, data can contain anything, including newlines and
// lines that look like headers.
package siser
