package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage names a milestone within a sync run.
type Stage string

// Run and pair milestones.
const (
	StageRunStart  Stage = "RUN_START"
	StagePairStart Stage = "PAIR_START"
	StagePairDone  Stage = "PAIR_DONE"
	StageRunDone   Stage = "RUN_DONE"
	StageRunError  Stage = "RUN_ERROR"
)

// Event is one milestone of a sync run.
type Event struct {
	// RunID identifies the run in 16-byte UUID form.
	RunID [16]byte
	TS    time.Time
	Stage Stage
	// Journal and Year scope pair events.
	Journal string
	ISSN    string
	Year    int
	// Pairs is the size of the work list on RUN_START.
	Pairs int
	// Items is the identifier count collected by a finished pair.
	Items int
	// Dur is the pair or run wall time on completion stages.
	Dur  time.Duration
	Note string
}

// Validate rejects events sinks cannot attribute.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError:
	case StagePairStart, StagePairDone:
		if e.Journal == "" || e.Year == 0 {
			return fmt.Errorf("%s requires journal and year", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// Terminal reports whether the event closes a run.
func (e Event) Terminal() bool {
	return e.Stage == StageRunDone || e.Stage == StageRunError
}

// RunID converts a uuid.UUID into the Event form.
func RunID(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
