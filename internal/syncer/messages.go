package syncer

import (
	"fmt"

	"github.com/TsaiLintung/paper-scroll/internal/scroll"
)

// StartCommand is the only inbound message: it carries everything a run
// needs so the orchestrator never reads shared state.
type StartCommand struct {
	RunID     string           `json:"run_id"`
	Journals  []scroll.Journal `json:"journals"`
	StartYear int              `json:"start_year"`
	EndYear   int              `json:"end_year"`
	Email     string           `json:"email,omitempty"`
}

// EventType tags outbound messages.
type EventType string

// Outbound message types. Every run ends with EventDone, including runs
// that failed.
const (
	EventStatus   EventType = "status"
	EventSnapshot EventType = "snapshot"
	EventError    EventType = "error"
	EventDone     EventType = "done"
)

// Event is one outbound message.
type Event struct {
	RunID    string                  `json:"run_id"`
	Type     EventType               `json:"type"`
	Status   *scroll.Status          `json:"status,omitempty"`
	Snapshot *scroll.JournalSnapshot `json:"snapshot,omitempty"`
	Message  string                  `json:"message,omitempty"`
}

// Pair is one unit of sync work.
type Pair struct {
	Journal scroll.Journal
	Year    int
}

// Label renders the pair as shown in status messages.
func (p Pair) Label() string {
	return fmt.Sprintf("%s (%d)", p.Journal.Name, p.Year)
}

// WorkList expands journals over the inclusive year range, journal-major.
// The years may be given in either order.
func WorkList(journals []scroll.Journal, startYear, endYear int) []Pair {
	lo, hi := scroll.NormalizeYears(startYear, endYear)
	pairs := make([]Pair, 0, len(journals)*(hi-lo+1))
	for _, j := range journals {
		for year := lo; year <= hi; year++ {
			pairs = append(pairs, Pair{Journal: j, Year: year})
		}
	}
	return pairs
}

// Status messages.
const (
	MessageNoJournals = "No journals configured"
	MessageAllDone    = "All journals updated."
)

func fetchingMessage(p Pair) string {
	return "Fetching " + p.Label()
}
