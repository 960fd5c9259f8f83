// Package system provides the wall clock used outside of tests.
package system

import (
	"time"

	"github.com/TsaiLintung/paper-scroll/internal/scroll"
)

var _ scroll.Clock = Clock{}

// Clock implements scroll.Clock using time.Now in UTC.
type Clock struct{}

// New creates a new Clock.
func New() Clock {
	return Clock{}
}

// Now returns the current UTC time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
