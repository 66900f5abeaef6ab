package derive

import (
	"errors"
	"fmt"
)

// classification of derivation errors, mirroring the three outcomes every
// pull-stage's poll() may produce: keep going later (Temporary), rebuild
// the whole pipeline from a new L1 origin (Reset), or stop the node
// (Critical).

type temporaryError struct{ err error }

func (e temporaryError) Error() string { return e.err.Error() }
func (e temporaryError) Unwrap() error { return e.err }

// NewTemporaryError wraps an error that is expected to clear up on its own,
// e.g. a network hiccup or an upstream node that is not yet synced far
// enough. Callers retry the same operation on the next poll.
func NewTemporaryError(err error) error {
	return temporaryError{err: err}
}

func IsTemporaryError(err error) bool {
	var t temporaryError
	return errors.As(err, &t)
}

type resetError struct{ err error }

func (e resetError) Error() string { return e.err.Error() }
func (e resetError) Unwrap() error { return e.err }

// NewResetError wraps an error that requires the whole derivation pipeline
// to reset to a fresh L1 origin, e.g. an L1 reorg invalidating buffered
// frames or an unsafe head reorg reported by the execution client.
func NewResetError(err error) error {
	return resetError{err: err}
}

func IsResetError(err error) bool {
	var r resetError
	return errors.As(err, &r)
}

type criticalError struct{ err error }

func (e criticalError) Error() string { return e.err.Error() }
func (e criticalError) Unwrap() error { return e.err }

// NewCriticalError wraps an error the pipeline cannot recover from without
// operator intervention, e.g. malformed chain configuration.
func NewCriticalError(err error) error {
	return criticalError{err: err}
}

func IsCriticalError(err error) bool {
	var c criticalError
	return errors.As(err, &c)
}

// ErrNotEnoughData signals a stage cannot produce an item yet because its
// upstream has not surfaced enough input; distinct from io.EOF (which
// signals the upstream is exhausted, i.e. temporarily out of new data).
var ErrNotEnoughData = errors.New("not enough data")

// NotEnoughData wraps ErrNotEnoughData with context, still comparable via
// errors.Is(err, ErrNotEnoughData).
func NotEnoughData(context string) error {
	return fmt.Errorf("%s: %w", context, ErrNotEnoughData)
}
