// Package settings owns the persisted configuration record: first-use
// defaults, validated field-by-field mutation, journal list edits, and the
// policy that decides which edits require a fresh sync.
package settings

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/sahilm/fuzzy"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/TsaiLintung/paper-scroll/internal/scroll"
)

// Field names accepted by Set and reported by the resync policy.
const (
	FieldStartYear = "start_year"
	FieldEndYear   = "end_year"
	FieldTextSize  = "text_size"
	FieldEmail     = "email"
	FieldJournals  = "journals"
)

var resyncPolicy = map[string]bool{
	FieldStartYear: true,
	FieldEndYear:   true,
	FieldJournals:  true,
	FieldEmail:     false,
	FieldTextSize:  false,
}

// RequiresResync reports whether changing field invalidates existing snapshots.
func RequiresResync(field string) bool {
	return resyncPolicy[field]
}

// Fields lists the settable field names in display order.
func Fields() []string {
	return []string{FieldStartYear, FieldEndYear, FieldTextSize, FieldEmail}
}

// Update is the outcome of a successful mutation.
type Update struct {
	Settings scroll.Settings `json:"settings"`
	Changed  []string        `json:"changed"`
	Resync   bool            `json:"resync_triggered"`
}

// Patch carries optional field replacements; nil fields are left untouched.
type Patch struct {
	StartYear *int             `json:"start_year,omitempty"`
	EndYear   *int             `json:"end_year,omitempty"`
	TextSize  *int             `json:"text_size,omitempty"`
	Email     *string          `json:"email,omitempty"`
	Journals  []scroll.Journal `json:"journals,omitempty"`
}

// Service serializes reads and writes of the configuration record.
type Service struct {
	store  scroll.SettingsStore
	mu     sync.Mutex
	logger *zap.Logger
}

// New constructs a Service.
func New(store scroll.SettingsStore, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger}
}

// Get returns the stored record, creating and persisting defaults on first use.
func (s *Service) Get(ctx context.Context) (scroll.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

func (s *Service) load(ctx context.Context) (scroll.Settings, error) {
	current, err := s.store.GetSettings(ctx)
	if err == nil {
		return current, nil
	}
	if !errors.Is(err, scroll.ErrNotFound) {
		return scroll.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	current = scroll.DefaultSettings()
	if err := s.store.PutSettings(ctx, current); err != nil {
		return scroll.Settings{}, fmt.Errorf("persist default settings: %w", err)
	}
	s.logger.Info("created default settings")
	return current, nil
}

// Set parses value for a single named field and applies it.
func (s *Service) Set(ctx context.Context, field, value string) (Update, error) {
	var patch Patch
	switch field {
	case FieldStartYear, FieldEndYear, FieldTextSize:
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return Update{}, &scroll.ValidationError{Field: field, Reason: "must be an integer"}
		}
		switch field {
		case FieldStartYear:
			patch.StartYear = &n
		case FieldEndYear:
			patch.EndYear = &n
		default:
			patch.TextSize = &n
		}
	case FieldEmail:
		email := strings.TrimSpace(value)
		patch.Email = &email
	default:
		return Update{}, &scroll.ValidationError{Field: field, Reason: "unknown setting"}
	}
	return s.Apply(ctx, patch)
}

// Apply validates the patched record and persists it. A rejected patch leaves
// the stored record unchanged.
func (s *Service) Apply(ctx context.Context, patch Patch) (Update, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.load(ctx)
	if err != nil {
		return Update{}, err
	}
	next := current.Clone()
	if patch.StartYear != nil {
		next.StartYear = *patch.StartYear
	}
	if patch.EndYear != nil {
		next.EndYear = *patch.EndYear
	}
	if patch.TextSize != nil {
		next.TextSize = *patch.TextSize
	}
	if patch.Email != nil {
		next.Email = *patch.Email
	}
	if patch.Journals != nil {
		next.Journals = uniqueJournals(patch.Journals)
	}
	return s.commit(ctx, current, next)
}

// AddJournal appends a journal. Adding one whose ISSN or name is already
// configured is a no-op.
func (s *Service) AddJournal(ctx context.Context, journal scroll.Journal) (Update, error) {
	journal = cleanJournal(journal)
	if err := journal.Validate(); err != nil {
		return Update{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.load(ctx)
	if err != nil {
		return Update{}, err
	}
	next, added := current.WithJournal(journal)
	if !added {
		return Update{Settings: current}, nil
	}
	return s.commit(ctx, current, next)
}

// RemoveJournal drops the journal with the given ISSN.
func (s *Service) RemoveJournal(ctx context.Context, issn string) (Update, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.load(ctx)
	if err != nil {
		return Update{}, err
	}
	next, removed := current.WithoutJournal(strings.TrimSpace(issn))
	if !removed {
		return Update{}, fmt.Errorf("journal %s: %w", issn, scroll.ErrNotFound)
	}
	return s.commit(ctx, current, next)
}

// Reset restores the defaults.
func (s *Service) Reset(ctx context.Context) (Update, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.load(ctx)
	if err != nil {
		return Update{}, err
	}
	return s.commit(ctx, current, scroll.DefaultSettings())
}

// ImportJournals reads a YAML document of the form
//
//	journals:
//	  - name: aer
//	    issn: 0002-8282
//
// and adds every journal not already configured. The whole document is
// validated before anything is stored.
func (s *Service) ImportJournals(ctx context.Context, r io.Reader) (Update, error) {
	var doc struct {
		Journals []scroll.Journal `yaml:"journals"`
	}
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return Update{}, fmt.Errorf("decode journal list: %w", err)
	}
	for i := range doc.Journals {
		doc.Journals[i] = cleanJournal(doc.Journals[i])
		if err := doc.Journals[i].Validate(); err != nil {
			return Update{}, fmt.Errorf("journal %d: %w", i+1, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.load(ctx)
	if err != nil {
		return Update{}, err
	}
	next := current
	for _, j := range doc.Journals {
		next, _ = next.WithJournal(j)
	}
	return s.commit(ctx, current, next)
}

// Find ranks configured journals against query by fuzzy match on name and
// ISSN. An empty query returns every journal in configured order.
func (s *Service) Find(ctx context.Context, query string) ([]scroll.Journal, error) {
	current, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return current.Journals, nil
	}
	matches := fuzzy.FindFrom(query, journalSource(current.Journals))
	out := make([]scroll.Journal, 0, len(matches))
	for _, m := range matches {
		out = append(out, current.Journals[m.Index])
	}
	return out, nil
}

type journalSource []scroll.Journal

func (js journalSource) String(i int) string { return js[i].Name + " " + js[i].ISSN }
func (js journalSource) Len() int            { return len(js) }

func (s *Service) commit(ctx context.Context, current, next scroll.Settings) (Update, error) {
	if err := next.Validate(); err != nil {
		return Update{}, err
	}
	changed := diff(current, next)
	if len(changed) == 0 {
		return Update{Settings: current}, nil
	}
	if err := s.store.PutSettings(ctx, next); err != nil {
		return Update{}, fmt.Errorf("persist settings: %w", err)
	}
	update := Update{Settings: next, Changed: changed}
	for _, field := range changed {
		if RequiresResync(field) {
			update.Resync = true
		}
	}
	s.logger.Info("settings updated",
		zap.Strings("changed", changed),
		zap.Bool("resync", update.Resync),
	)
	return update, nil
}

func diff(a, b scroll.Settings) []string {
	var changed []string
	if a.StartYear != b.StartYear {
		changed = append(changed, FieldStartYear)
	}
	if a.EndYear != b.EndYear {
		changed = append(changed, FieldEndYear)
	}
	if a.TextSize != b.TextSize {
		changed = append(changed, FieldTextSize)
	}
	if a.Email != b.Email {
		changed = append(changed, FieldEmail)
	}
	if !sameJournals(a.Journals, b.Journals) {
		changed = append(changed, FieldJournals)
	}
	return changed
}

func sameJournals(a, b []scroll.Journal) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// uniqueJournals cleans each entry and keeps the first journal per ISSN or name.
func uniqueJournals(journals []scroll.Journal) []scroll.Journal {
	set := scroll.Settings{Journals: make([]scroll.Journal, 0, len(journals))}
	for _, j := range journals {
		set, _ = set.WithJournal(cleanJournal(j))
	}
	return set.Journals
}

func cleanJournal(j scroll.Journal) scroll.Journal {
	return scroll.Journal{Name: strings.TrimSpace(j.Name), ISSN: strings.ToUpper(strings.TrimSpace(j.ISSN))}
}
