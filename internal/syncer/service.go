package syncer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/TsaiLintung/paper-scroll/internal/scroll"
)

// SettingsSource supplies the configuration a run is built from.
type SettingsSource interface {
	Get(ctx context.Context) (scroll.Settings, error)
}

// Service is the entry point used by the API and CLI: it turns the current
// settings into a StartCommand and clears snapshots that no longer match them.
type Service struct {
	settings SettingsSource
	store    scroll.SnapshotStore
	orch     *Orchestrator
	receiver *Receiver
	logger   *zap.Logger
}

// NewService wires the orchestrator and receiver behind one facade.
func NewService(
	settings SettingsSource,
	store scroll.SnapshotStore,
	orch *Orchestrator,
	receiver *Receiver,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{settings: settings, store: store, orch: orch, receiver: receiver, logger: logger}
}

// Trigger starts a run from the stored settings and returns its ID.
func (s *Service) Trigger(ctx context.Context) (string, error) {
	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return "", err
	}
	runID, err := s.orch.Start(ctx, StartCommand{
		Journals:  cfg.Journals,
		StartYear: cfg.StartYear,
		EndYear:   cfg.EndYear,
		Email:     cfg.Email,
	})
	if err != nil {
		return "", err
	}
	// The run only writes configured keys, so removing unconfigured ones
	// cannot collide with it.
	if _, err := s.Prune(ctx, cfg); err != nil {
		s.logger.Warn("prune stale snapshots failed", zap.String("run_id", runID), zap.Error(err))
	}
	return runID, nil
}

// Prune deletes snapshots whose journal is no longer configured or whose
// year falls outside the configured range, returning the removed keys.
func (s *Service) Prune(ctx context.Context, cfg scroll.Settings) ([]string, error) {
	snaps, err := s.store.ListSnapshots(ctx)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	configured := make(map[string]struct{}, len(cfg.Journals))
	for _, j := range cfg.Journals {
		configured[j.Name] = struct{}{}
	}
	lo, hi := cfg.YearRange()

	var removed []string
	for _, snap := range snaps {
		_, keep := configured[snap.Name]
		if keep && snap.Year >= lo && snap.Year <= hi {
			continue
		}
		if err := s.store.DeleteSnapshot(ctx, snap.Key()); err != nil {
			return removed, fmt.Errorf("delete snapshot %s: %w", snap.Key(), err)
		}
		removed = append(removed, snap.Key())
	}
	if len(removed) > 0 {
		s.logger.Info("pruned stale snapshots", zap.Strings("keys", removed))
	}
	return removed, nil
}

// Wait blocks until runID finishes.
func (s *Service) Wait(ctx context.Context, runID string) (Result, error) {
	return s.receiver.Wait(ctx, runID)
}

// Running reports whether a run is in flight.
func (s *Service) Running() bool {
	return s.orch.Running()
}

// Latest returns the last status seen in this process.
func (s *Service) Latest() scroll.Status {
	return s.receiver.Latest()
}
