package events

import "time"

// WriteStart is emitted before normalizing a payload into the store.
type WriteStart struct {
	ID         string
	Optimistic bool
}

// WriteFinish is emitted after a write attempt, applied or not.
type WriteFinish struct {
	ID         string
	Records    int
	Optimistic bool
	Err        error
	Duration   time.Duration
}

// ReadStart is emitted before denormalizing a selection from the store.
type ReadStart struct {
	ID string
}

// ReadFinish is emitted after a read attempt.
type ReadFinish struct {
	ID       string
	Stale    bool
	Err      error
	Duration time.Duration
}

// DiffStart is emitted before a gap analysis.
type DiffStart struct {
	ID string
}

// DiffFinish is emitted after a gap analysis.
type DiffFinish struct {
	ID          string
	IsMissing   bool
	MissingSets int
	Err         error
	Duration    time.Duration
}

// ShapeMismatch is emitted when written data disagrees with the query shape
// (e.g. a scalar where the selection expected an object). Non-fatal.
type ShapeMismatch struct {
	ID   string
	Path string
}
