// Package pacing serializes outbound sampler requests through one interval gate.
package pacing

import (
	"context"
	"sync"
	"time"

	"github.com/TsaiLintung/paper-scroll/internal/clock/system"
	"github.com/TsaiLintung/paper-scroll/internal/metrics"
	"github.com/TsaiLintung/paper-scroll/internal/scroll"
)

// Default intervals between consecutive requests.
const (
	DefaultWithEmail    = 200 * time.Millisecond
	DefaultWithoutEmail = time.Second
)

// Config holds scheduler configuration.
//   - WithEmail / WithoutEmail: gate interval selected by whether a contact email is set.
//   - BaseContext: lifetime context; waits end early only when it is canceled.
//   - Clock, Pauser: injectable for tests.
type Config struct {
	WithEmail    time.Duration
	WithoutEmail time.Duration
	BaseContext  context.Context
	Clock        scroll.Clock
	Pauser       Pauser
}

// Scheduler hands out request slots in arrival order. Each slot starts at
// max(now, previous slot + interval), with the interval chosen by the caller
// reserving the new slot.
type Scheduler struct {
	cfg     Config
	mu      sync.Mutex
	last    time.Time
	granted bool
}

// New builds a Scheduler, filling unset fields with defaults.
func New(cfg Config) *Scheduler {
	if cfg.WithEmail <= 0 {
		cfg.WithEmail = DefaultWithEmail
	}
	if cfg.WithoutEmail <= 0 {
		cfg.WithoutEmail = DefaultWithoutEmail
	}
	if cfg.BaseContext == nil {
		cfg.BaseContext = context.Background()
	}
	if cfg.Clock == nil {
		cfg.Clock = system.New()
	}
	if cfg.Pauser == nil {
		cfg.Pauser = TimerPauser{}
	}
	return &Scheduler{cfg: cfg}
}

// Interval returns the gate interval for the given contact mode.
func (s *Scheduler) Interval(contactEmail bool) time.Duration {
	if contactEmail {
		return s.cfg.WithEmail
	}
	return s.cfg.WithoutEmail
}

// Reserve claims the next slot and returns how long the caller must wait
// before dispatching. Slots are granted in the order Reserve is called.
func (s *Scheduler) Reserve(contactEmail bool) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.cfg.Clock.Now()
	slot := now
	if s.granted {
		if next := s.last.Add(s.Interval(contactEmail)); next.After(slot) {
			slot = next
		}
	}
	s.last = slot
	s.granted = true
	return slot.Sub(now)
}

// Wait reserves a slot and blocks until it opens. The wait is bound to the
// scheduler's base context, not the caller's.
func (s *Scheduler) Wait(contactEmail bool) time.Duration {
	delay := s.Reserve(contactEmail)
	metrics.ObservePacingWait(delay)
	s.cfg.Pauser.Pause(s.cfg.BaseContext, delay)
	return delay
}
