package scroll

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyRunning is returned when a sync is requested while another is in flight.
	ErrAlreadyRunning = errors.New("sync already running")
	// ErrNotFound is returned by stores when a key has no value.
	ErrNotFound = errors.New("not found")
	// ErrNoResults marks a sample request that matched zero works.
	ErrNoResults = errors.New("no works matched the sample filter")
	// ErrNoJournalData is reported by the feed when no snapshot exists yet.
	ErrNoJournalData = errors.New("no journal data yet, run a sync first")
)

// ListingError reports a failed page fetch while crawling a journal listing.
type ListingError struct {
	ISSN       string
	Year       int
	StatusCode int
	Err        error
}

func (e *ListingError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("listing %s (%d): status %d: %v", e.ISSN, e.Year, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("listing %s (%d): %v", e.ISSN, e.Year, e.Err)
}

func (e *ListingError) Unwrap() error { return e.Err }

// FetchError reports a work lookup that failed after the retry budget.
type FetchError struct {
	DOI        string
	StatusCode int
	Attempts   int
	Err        error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch work %s: %d attempt(s): %v", e.DOI, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// SampleError reports a sample request that found nothing or failed after retries.
type SampleError struct {
	ISSN       string
	Year       int
	StatusCode int
	Attempts   int
	Err        error
}

func (e *SampleError) Error() string {
	return fmt.Sprintf("sample %s (%d): %d attempt(s): %v", e.ISSN, e.Year, e.Attempts, e.Err)
}

func (e *SampleError) Unwrap() error { return e.Err }

// ValidationError rejects a settings mutation before it is applied.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}
