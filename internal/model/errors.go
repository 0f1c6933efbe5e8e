package model

import (
	"errors"
	"fmt"
)

// ErrNotFound reports a pseudonym lookup miss. Commands decide whether a miss
// is fatal (run) or just reported (get with multiple targets).
var ErrNotFound = errors.New("pseudonym not found")

// ErrProbeExhausted reports that no candidate username authenticated during a
// probe. Callers fall back to the default candidate and surface a notice; it is
// never fatal.
var ErrProbeExhausted = errors.New("no candidate username succeeded")

// NotFound wraps ErrNotFound with the missing pseudonym.
func NotFound(pseudonym string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, pseudonym)
}

// PersistenceError reports a failure reading or writing the pseudonym table.
// It is fatal to the invoking command.
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s pseudonym table %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// SourceError reports that the peer snapshot source (the tailscale status
// command or a supplied file) failed or produced unparseable data. It is fatal
// to the whole refresh.
type SourceError struct {
	Source string
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("peer snapshot from %s: %v", e.Source, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }
