package pagination

import (
	"fmt"
	"time"
)

// State is a runner state.
type State string

const (
	StateFetching  State = "fetching"
	StateMapping   State = "mapping"
	StateWriting   State = "writing"
	StateExhausted State = "exhausted"
	StateAborted   State = "aborted"
)

// Terminal reports whether no further transitions leave s.
func (s State) Terminal() bool {
	return s == StateExhausted || s == StateAborted
}

// Reason qualifies a terminal state.
type Reason string

const (
	// ReasonNatural: empty page or offset reached the total.
	ReasonNatural Reason = "natural"
	// ReasonCapped: the cumulative item count reached the cap.
	ReasonCapped Reason = "capped"
	// ReasonFetch: the fetcher returned a terminal error.
	ReasonFetch Reason = "fetch"
	// ReasonWrite: the sink could not write a page.
	ReasonWrite Reason = "write"
	// ReasonCheckpoint: the advanced offset could not be persisted.
	ReasonCheckpoint Reason = "checkpoint"
	// ReasonCancelled: the context was cancelled.
	ReasonCancelled Reason = "cancelled"
)

// Outcome is the result of running one partition.
type Outcome struct {
	Partition string
	State     State
	Reason    Reason

	// StartOffset is the checkpointed offset the run started from.
	StartOffset int

	// Offset is the last committed offset.
	Offset int

	// Fetched counts records committed by this run.
	Fetched int

	// Committed is the cumulative item count after this run.
	Committed int

	Pages    int
	Err      error
	Duration time.Duration
}

// Exhausted reports whether the partition finished, naturally or capped.
func (o Outcome) Exhausted() bool {
	return o.State == StateExhausted
}

// Natural reports whether the partition reached the end of its result set.
func (o Outcome) Natural() bool {
	return o.State == StateExhausted && o.Reason == ReasonNatural
}

// Capped reports whether the partition stopped at the cap.
func (o Outcome) Capped() bool {
	return o.State == StateExhausted && o.Reason == ReasonCapped
}

// Aborted reports whether the partition stopped early on an error.
func (o Outcome) Aborted() bool {
	return o.State == StateAborted
}

// String renders the outcome as "exhausted[natural]" or "aborted[fetch]".
func (o Outcome) String() string {
	return fmt.Sprintf("%s[%s]", o.State, o.Reason)
}
