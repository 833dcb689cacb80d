package cache

import (
	"time"
)

// Entry is one persisted catalog record plus bookkeeping.
type Entry struct {
	// Data is the serialized record as returned by the normalizer.
	Data []byte `json:"data"`

	// FetchedAt is when the record was retrieved from the catalog.
	FetchedAt time.Time `json:"fetched_at"`
}

// Age returns how long ago the entry was fetched.
func (e *Entry) Age() time.Duration {
	return time.Since(e.FetchedAt)
}

// Size returns the serialized record size in bytes.
func (e *Entry) Size() int {
	return len(e.Data)
}
