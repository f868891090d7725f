// Package checkpoint persists per-partition pagination progress so that an
// interrupted scrape resumes at the last fully committed page.
package checkpoint

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrCorrupt indicates that stored checkpoint data could not be decoded.
var ErrCorrupt = errors.New("corrupt checkpoint")

// Progress is the committed state of one partition.
type Progress struct {
	// StartAt is the offset of the next page to fetch. Everything before it
	// has been written to the outputs.
	StartAt int `json:"startAt"`

	// ItemsFetched is the cumulative number of records committed for the
	// partition across all runs. It is what the result cap is checked against.
	ItemsFetched int `json:"itemsFetched"`

	// UpdatedAt is when the progress was last committed.
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// UnmarshalJSON accepts both the object form and a bare integer offset.
func (p *Progress) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] != '{' {
		var offset int
		if err := json.Unmarshal(data, &offset); err != nil {
			return fmt.Errorf("%w: offset: %v", ErrCorrupt, err)
		}
		*p = Progress{StartAt: offset, ItemsFetched: offset}
		return p.validate()
	}

	type progressJSON struct {
		StartAt      int       `json:"startAt"`
		ItemsFetched *int      `json:"itemsFetched"`
		UpdatedAt    time.Time `json:"updatedAt"`
	}
	var raw progressJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	*p = Progress{StartAt: raw.StartAt, ItemsFetched: raw.StartAt, UpdatedAt: raw.UpdatedAt}
	if raw.ItemsFetched != nil {
		p.ItemsFetched = *raw.ItemsFetched
	}
	return p.validate()
}

func (p Progress) validate() error {
	if p.StartAt < 0 || p.ItemsFetched < 0 {
		return fmt.Errorf("%w: negative progress (startAt=%d, itemsFetched=%d)", ErrCorrupt, p.StartAt, p.ItemsFetched)
	}
	return nil
}

// wrapCorrupt marks a decode error as ErrCorrupt unless it already is.
func wrapCorrupt(err error) error {
	if errors.Is(err, ErrCorrupt) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrCorrupt, err)
}

// Checkpoint maps partition keys to their committed progress.
type Checkpoint map[string]Progress

// Clone returns an independent copy.
func (c Checkpoint) Clone() Checkpoint {
	out := make(Checkpoint, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Backend persists progress per partition. Writes touch only the named
// partitions, so several stores sharing one backend never erase each
// other's offsets.
type Backend interface {
	// Load returns the stored checkpoint. A missing checkpoint is not an
	// error; undecodable data is reported with ErrCorrupt.
	Load(ctx context.Context) (Checkpoint, error)

	// Put stores progress for one partition. Implementations must not leave
	// a partially written checkpoint behind if the process dies mid-write.
	Put(ctx context.Context, partition string, p Progress) error

	// Delete removes the given partitions, or every partition when none
	// are given.
	Delete(ctx context.Context, partitions ...string) error
}
