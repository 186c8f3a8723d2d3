// ABOUTME: InstructionRun is one execution record of an instruction card.
// ABOUTME: Carries the exhaustive change list needed to reverse the run, plus per-card errors.
package board

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// RunError is a per-card failure recorded during a run. A failing card does
// not abort the run; the engine records the error and continues with the
// remaining cards in scope.
type RunError struct {
	CardID  ulid.ULID `json:"card_id"`
	Message string    `json:"message"`
}

// InstructionRun records one execution of an instruction card against a
// board. Changes are ordered as applied; undo replays them in reverse.
type InstructionRun struct {
	RunID         ulid.ULID  `json:"run_id"`
	BoardID       ulid.ULID  `json:"board_id"`
	InstructionID ulid.ULID  `json:"instruction_id"`
	StartedAt     time.Time  `json:"started_at"`
	Changes       []Change   `json:"-"` // custom marshal
	Errors        []RunError `json:"errors,omitempty"`
	Undone        bool       `json:"undone"`

	// TargetColumnID and Confidence record how target resolution went so
	// callers can distinguish confident resolutions from fallbacks.
	TargetColumnID ulid.ULID `json:"target_column_id"`
	Confidence     string    `json:"confidence"`
}

// runJSON is the wire format for InstructionRun.
type runJSON struct {
	RunID          ulid.ULID         `json:"run_id"`
	BoardID        ulid.ULID         `json:"board_id"`
	InstructionID  ulid.ULID         `json:"instruction_id"`
	StartedAt      time.Time         `json:"started_at"`
	Changes        []json.RawMessage `json:"changes"`
	Errors         []RunError        `json:"errors,omitempty"`
	Undone         bool              `json:"undone"`
	TargetColumnID ulid.ULID         `json:"target_column_id"`
	Confidence     string            `json:"confidence"`
}

// MarshalJSON serializes the run with properly typed changes.
func (r InstructionRun) MarshalJSON() ([]byte, error) {
	changes := make([]json.RawMessage, len(r.Changes))
	for i, c := range r.Changes {
		data, err := MarshalChange(c)
		if err != nil {
			return nil, fmt.Errorf("marshal change %d: %w", i, err)
		}
		changes[i] = data
	}
	return json.Marshal(runJSON{
		RunID:          r.RunID,
		BoardID:        r.BoardID,
		InstructionID:  r.InstructionID,
		StartedAt:      r.StartedAt,
		Changes:        changes,
		Errors:         r.Errors,
		Undone:         r.Undone,
		TargetColumnID: r.TargetColumnID,
		Confidence:     r.Confidence,
	})
}

// UnmarshalJSON deserializes the run with properly typed changes.
func (r *InstructionRun) UnmarshalJSON(data []byte) error {
	var j runJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	changes := make([]Change, len(j.Changes))
	for i, raw := range j.Changes {
		c, err := UnmarshalChange(raw)
		if err != nil {
			return fmt.Errorf("unmarshal change %d: %w", i, err)
		}
		changes[i] = c
	}
	r.RunID = j.RunID
	r.BoardID = j.BoardID
	r.InstructionID = j.InstructionID
	r.StartedAt = j.StartedAt
	r.Changes = changes
	r.Errors = j.Errors
	r.Undone = j.Undone
	r.TargetColumnID = j.TargetColumnID
	r.Confidence = j.Confidence
	return nil
}
