package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// Checkpoint is persisted batch progress. Cursor is the number of leading
// entities whose results are in Results. Metrics covers Results only and is
// recomputed on resume.
type Checkpoint struct {
	RunID       string         `json:"run_id"`
	Cursor      int            `json:"cursor"`
	Fingerprint string         `json:"fingerprint"`
	Results     []ResolvedDate `json:"results"`
	Metrics     RunMetrics     `json:"metrics"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Validate checks internal consistency of a loaded checkpoint.
func (c *Checkpoint) Validate() error {
	if c.Fingerprint == "" {
		return eris.New("checkpoint: missing fingerprint")
	}
	if c.Cursor < 0 {
		return eris.Errorf("checkpoint: negative cursor %d", c.Cursor)
	}
	if c.Cursor != len(c.Results) {
		return eris.Errorf("checkpoint: cursor %d does not match %d results", c.Cursor, len(c.Results))
	}
	return nil
}
