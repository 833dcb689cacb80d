package catalog

import (
	"errors"
	"fmt"
)

// Kind classifies a catalog lookup failure.
type Kind string

const (
	// KindNotFound means the item does not exist upstream. Terminal.
	KindNotFound Kind = "not_found"

	// KindBanned means the catalog has throttled or blocked this client.
	// Terminal for the session; the message carries remediation guidance
	// and the client never retries on its own.
	KindBanned Kind = "banned"

	// KindNetwork is a transport failure, including timeouts. Safe for the
	// caller to retry later, never retried automatically.
	KindNetwork Kind = "network"

	// KindMalformed means the response did not match the expected shape.
	KindMalformed Kind = "malformed"
)

// Error is a typed failure for one identifier. Failures are returned as
// values and carried inside batch results; the client never panics and
// never lets one bad identifier abort a batch.
type Error struct {
	ID      int
	Kind    Kind
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("catalog %s error (id %d): %s: %v", e.Kind, e.ID, e.Message, e.Err)
	}
	return fmt.Sprintf("catalog %s error (id %d): %s", e.Kind, e.ID, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// ErrorKind extracts the failure kind from an error chain.
func ErrorKind(err error) (Kind, bool) {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Kind, true
	}
	return "", false
}

// IsNotFound reports whether err is a NotFound catalog failure.
func IsNotFound(err error) bool {
	k, ok := ErrorKind(err)
	return ok && k == KindNotFound
}

// IsBanned reports whether err is a Banned catalog failure.
func IsBanned(err error) bool {
	k, ok := ErrorKind(err)
	return ok && k == KindBanned
}

// IsNetwork reports whether err is a Network catalog failure.
func IsNetwork(err error) bool {
	k, ok := ErrorKind(err)
	return ok && k == KindNetwork
}

// IsMalformed reports whether err is a Malformed catalog failure.
func IsMalformed(err error) bool {
	k, ok := ErrorKind(err)
	return ok && k == KindMalformed
}
