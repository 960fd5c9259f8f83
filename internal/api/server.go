package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/TsaiLintung/paper-scroll/internal/feed"
	"github.com/TsaiLintung/paper-scroll/internal/metrics"
	"github.com/TsaiLintung/paper-scroll/internal/progress/sinks"
	"github.com/TsaiLintung/paper-scroll/internal/scroll"
	"github.com/TsaiLintung/paper-scroll/internal/settings"
)

const (
	maxBatch              = 50
	defaultRequestTimeout = 2 * time.Minute
)

// SettingsService mutates the configuration record.
type SettingsService interface {
	Get(ctx context.Context) (scroll.Settings, error)
	Apply(ctx context.Context, patch settings.Patch) (settings.Update, error)
	Reset(ctx context.Context) (settings.Update, error)
	AddJournal(ctx context.Context, journal scroll.Journal) (settings.Update, error)
	RemoveJournal(ctx context.Context, issn string) (settings.Update, error)
	Find(ctx context.Context, query string) ([]scroll.Journal, error)
}

// SyncService starts and reports sync runs.
type SyncService interface {
	Trigger(ctx context.Context) (string, error)
	Running() bool
	Latest() scroll.Status
}

// PaperFeed serves papers from synced snapshots.
type PaperFeed interface {
	Next(ctx context.Context, n int) ([]scroll.Paper, error)
	Random(ctx context.Context) (scroll.Paper, error)
	Remaining() int
	LastError() error
}

// PaperSampler serves randomly sampled papers.
type PaperSampler interface {
	Batch(ctx context.Context, n int) ([]scroll.Paper, error)
	Reset()
	LastError() error
}

// RunHistory lists recent sync runs.
type RunHistory interface {
	Recent() []sinks.RunSummary
}

// Store is the read side of persistence the API touches directly.
type Store interface {
	scroll.SnapshotStore
	scroll.StatusStore
	scroll.StarStore
}

// Deps bundles the collaborators behind the routes.
type Deps struct {
	Settings SettingsService
	Sync     SyncService
	Feed     PaperFeed
	Sampler  PaperSampler
	History  RunHistory
	Store    Store
	Clock    scroll.Clock
	Logger   *zap.Logger
}

// Options tunes batch sizes and request limits.
type Options struct {
	InitialBatch   int
	LoadMoreBatch  int
	RequestTimeout time.Duration
}

// Server wires HTTP handlers to the feed, settings, and sync services.
type Server struct {
	router chi.Router
	deps   Deps
	opts   Options
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, opts Options) *Server {
	if opts.InitialBatch <= 0 {
		opts.InitialBatch = feed.InitialBatch
	}
	if opts.LoadMoreBatch <= 0 {
		opts.LoadMoreBatch = feed.LoadMoreBatch
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{deps: deps, opts: opts, logger: logger.Named("api")}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(opts.RequestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/config", func(r chi.Router) {
			r.Get("/", s.getConfig)
			r.Patch("/", s.patchConfig)
			r.Post("/reset", s.resetConfig)
		})
		r.Route("/journals", func(r chi.Router) {
			r.Get("/", s.listJournals)
			r.Post("/", s.addJournal)
			r.Delete("/{issn}", s.removeJournal)
		})
		r.Post("/sync", s.startSync)
		r.Get("/status", s.getStatus)
		r.Get("/snapshots", s.listSnapshots)
		r.Get("/runs", s.listRuns)
		r.Route("/papers", func(r chi.Router) {
			r.Get("/", s.nextPapers)
			r.Get("/random", s.randomPaper)
			r.Get("/sample", s.samplePapers)
		})
		r.Route("/starred", func(r chi.Router) {
			r.Get("/", s.listStarred)
			r.Post("/", s.starPaper)
			// DOIs contain slashes, so the key is the rest of the path.
			r.Get("/*", s.starredStatus)
			r.Delete("/*", s.unstarPaper)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if _, err := s.deps.Store.GetStatus(r.Context()); err != nil && !errors.Is(err, scroll.ErrNotFound) {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type configResponse struct {
	settings.Update
	RunID string `json:"run_id,omitempty"`
}

func (s *Server) getConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.deps.Settings.Get(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) patchConfig(w http.ResponseWriter, r *http.Request) {
	var patch settings.Patch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	update, err := s.deps.Settings.Apply(r.Context(), patch)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.afterUpdate(r.Context(), update))
}

func (s *Server) resetConfig(w http.ResponseWriter, r *http.Request) {
	update, err := s.deps.Settings.Reset(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.afterUpdate(r.Context(), update))
}

func (s *Server) listJournals(w http.ResponseWriter, r *http.Request) {
	journals, err := s.deps.Settings.Find(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"journals": nonNil(journals)})
}

func (s *Server) addJournal(w http.ResponseWriter, r *http.Request) {
	var journal scroll.Journal
	if err := decodeJSON(r, &journal); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	update, err := s.deps.Settings.AddJournal(r.Context(), journal)
	if err != nil {
		s.fail(w, err)
		return
	}
	status := http.StatusCreated
	if len(update.Changed) == 0 {
		status = http.StatusOK
	}
	writeJSON(w, status, s.afterUpdate(r.Context(), update))
}

func (s *Server) removeJournal(w http.ResponseWriter, r *http.Request) {
	update, err := s.deps.Settings.RemoveJournal(r.Context(), chi.URLParam(r, "issn"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.afterUpdate(r.Context(), update))
}

// afterUpdate starts a sync when the change affects what is crawled. A run
// already in flight keeps going with the settings it started with.
func (s *Server) afterUpdate(ctx context.Context, update settings.Update) configResponse {
	resp := configResponse{Update: update}
	if !update.Resync {
		return resp
	}
	runID, err := s.deps.Sync.Trigger(ctx)
	switch {
	case errors.Is(err, scroll.ErrAlreadyRunning):
		s.logger.Info("resync skipped, sync already running", zap.Strings("changed", update.Changed))
	case err != nil:
		s.logger.Warn("resync failed to start", zap.Error(err))
	default:
		resp.RunID = runID
	}
	return resp
}

func (s *Server) startSync(w http.ResponseWriter, r *http.Request) {
	runID, err := s.deps.Sync.Trigger(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
}

type statusResponse struct {
	Status  scroll.Status `json:"status"`
	Running bool          `json:"running"`
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.deps.Store.GetStatus(r.Context())
	if errors.Is(err, scroll.ErrNotFound) {
		status, err = s.deps.Sync.Latest(), nil
	}
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: status, Running: s.deps.Sync.Running()})
}

type snapshotSummary struct {
	Key   string `json:"key"`
	Name  string `json:"name"`
	ISSN  string `json:"issn"`
	Year  int    `json:"year"`
	Items int    `json:"items"`
}

func (s *Server) listSnapshots(w http.ResponseWriter, r *http.Request) {
	snaps, err := s.deps.Store.ListSnapshots(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	out := make([]snapshotSummary, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, snapshotSummary{
			Key:   snap.Key(),
			Name:  snap.Name,
			ISSN:  snap.ISSN,
			Year:  snap.Year,
			Items: len(snap.Items),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"snapshots": out})
}

func (s *Server) listRuns(w http.ResponseWriter, _ *http.Request) {
	var runs []sinks.RunSummary
	if s.deps.History != nil {
		runs = s.deps.History.Recent()
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": nonNil(runs)})
}

type papersResponse struct {
	Papers    []scroll.Paper `json:"papers"`
	Remaining int            `json:"remaining,omitempty"`
	LastError string         `json:"last_error,omitempty"`
}

func (s *Server) nextPapers(w http.ResponseWriter, r *http.Request) {
	n, err := s.batchSize(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	papers, err := s.deps.Feed.Next(r.Context(), n)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, papersResponse{
		Papers:    nonNil(papers),
		Remaining: s.deps.Feed.Remaining(),
		LastError: errText(s.deps.Feed.LastError(), len(papers) < n),
	})
}

func (s *Server) randomPaper(w http.ResponseWriter, r *http.Request) {
	paper, err := s.deps.Feed.Random(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, paper)
}

func (s *Server) samplePapers(w http.ResponseWriter, r *http.Request) {
	n, err := s.batchSize(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if reset, _ := strconv.ParseBool(r.URL.Query().Get("reset")); reset {
		s.deps.Sampler.Reset()
	}
	papers, err := s.deps.Sampler.Batch(r.Context(), n)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, papersResponse{
		Papers:    nonNil(papers),
		LastError: errText(s.deps.Sampler.LastError(), len(papers) < n),
	})
}

// batchSize reads n, falling back to the initial batch, or the load-more
// batch when more=true.
func (s *Server) batchSize(r *http.Request) (int, error) {
	q := r.URL.Query()
	if raw := q.Get("n"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxBatch {
			return 0, fmt.Errorf("n must be an integer within 1..%d", maxBatch)
		}
		return n, nil
	}
	if more, _ := strconv.ParseBool(q.Get("more")); more {
		return s.opts.LoadMoreBatch, nil
	}
	return s.opts.InitialBatch, nil
}

func (s *Server) listStarred(w http.ResponseWriter, r *http.Request) {
	starred, err := s.deps.Store.ListStarred(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"starred": nonNil(starred)})
}

func (s *Server) starPaper(w http.ResponseWriter, r *http.Request) {
	var paper scroll.Paper
	if err := decodeJSON(r, &paper); err != nil || paper.DOI == "" {
		writeError(w, http.StatusBadRequest, "paper with doi required")
		return
	}
	starred := scroll.StarredPaper{Paper: paper, StarredAt: s.now()}
	if err := s.deps.Store.StarPaper(r.Context(), starred); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, starred)
}

type starredStatusResponse struct {
	DOI       string     `json:"doi"`
	Starred   bool       `json:"starred"`
	StarredAt *time.Time `json:"starred_at,omitempty"`
}

func (s *Server) starredStatus(w http.ResponseWriter, r *http.Request) {
	doi, ok := doiParam(w, r)
	if !ok {
		return
	}
	resp := starredStatusResponse{DOI: scroll.DOIURL(doi)}
	starred, err := s.deps.Store.GetStarred(r.Context(), doi)
	switch {
	case errors.Is(err, scroll.ErrNotFound):
	case err != nil:
		s.fail(w, err)
		return
	default:
		resp.Starred = true
		resp.StarredAt = &starred.StarredAt
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) unstarPaper(w http.ResponseWriter, r *http.Request) {
	doi, ok := doiParam(w, r)
	if !ok {
		return
	}
	if err := s.deps.Store.UnstarPaper(r.Context(), doi); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// doiParam reads the DOI from the wildcard segment, writing 400 when absent.
func doiParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	doi, err := url.PathUnescape(chi.URLParam(r, "*"))
	if err != nil || doi == "" {
		writeError(w, http.StatusBadRequest, "doi required")
		return "", false
	}
	return doi, true
}

func (s *Server) now() time.Time {
	if s.deps.Clock == nil {
		return time.Now().UTC()
	}
	return s.deps.Clock.Now()
}

// fail maps domain errors onto HTTP statuses.
func (s *Server) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case scroll.IsValidation(err), errors.Is(err, feed.ErrNoJournals):
		return http.StatusBadRequest
	case errors.Is(err, scroll.ErrNotFound), errors.Is(err, scroll.ErrNoJournalData):
		return http.StatusNotFound
	case errors.Is(err, scroll.ErrAlreadyRunning):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func errText(err error, short bool) string {
	if err == nil || !short {
		return ""
	}
	return err.Error()
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
