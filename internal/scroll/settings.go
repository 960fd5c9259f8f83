package scroll

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
)

// Bounds applied when validating settings.
const (
	MinYear     = 1800
	MaxYear     = 2100
	MinTextSize = 8
	MaxTextSize = 48
)

var issnPattern = regexp.MustCompile(`^\d{4}-\d{3}[\dXx]$`)

// Settings is the user-tunable configuration record.
type Settings struct {
	StartYear int       `json:"start_year" yaml:"start_year"`
	EndYear   int       `json:"end_year" yaml:"end_year"`
	TextSize  int       `json:"text_size" yaml:"text_size"`
	Email     string    `json:"email" yaml:"email"`
	Journals  []Journal `json:"journals" yaml:"journals"`
}

// DefaultSettings returns the record created on first use.
func DefaultSettings() Settings {
	return Settings{
		StartYear: 2021,
		EndYear:   2021,
		TextSize:  16,
		Email:     "",
		Journals:  []Journal{{Name: "aer", ISSN: "0002-8282"}},
	}
}

// YearRange normalizes the stored years to [min, max].
func (s Settings) YearRange() (int, int) {
	return NormalizeYears(s.StartYear, s.EndYear)
}

// NormalizeYears orders a year pair ascending.
func NormalizeYears(a, b int) (int, int) {
	if a > b {
		return b, a
	}
	return a, b
}

// Clone returns a copy that does not share the journal slice.
func (s Settings) Clone() Settings {
	cp := s
	cp.Journals = append([]Journal(nil), s.Journals...)
	return cp
}

// HasJournal reports whether a journal with the same ISSN or name is configured.
func (s Settings) HasJournal(j Journal) bool {
	for _, existing := range s.Journals {
		if strings.EqualFold(existing.ISSN, j.ISSN) || existing.Name == j.Name {
			return true
		}
	}
	return false
}

// WithJournal appends j unless it is already present. The second result is
// false when nothing changed.
func (s Settings) WithJournal(j Journal) (Settings, bool) {
	if s.HasJournal(j) {
		return s, false
	}
	next := s.Clone()
	next.Journals = append(next.Journals, j)
	return next, true
}

// WithoutJournal removes every journal with the given ISSN.
func (s Settings) WithoutJournal(issn string) (Settings, bool) {
	next := s.Clone()
	next.Journals = next.Journals[:0]
	removed := false
	for _, j := range s.Journals {
		if strings.EqualFold(j.ISSN, issn) {
			removed = true
			continue
		}
		next.Journals = append(next.Journals, j)
	}
	return next, removed
}

// Validate checks ranges and required fields.
func (s Settings) Validate() error {
	if err := validateYear("start_year", s.StartYear); err != nil {
		return err
	}
	if err := validateYear("end_year", s.EndYear); err != nil {
		return err
	}
	if s.TextSize < MinTextSize || s.TextSize > MaxTextSize {
		return &ValidationError{
			Field:  "text_size",
			Reason: fmt.Sprintf("must be between %d and %d", MinTextSize, MaxTextSize),
		}
	}
	if s.Email != "" {
		addr, err := mail.ParseAddress(s.Email)
		if err != nil {
			return &ValidationError{Field: "email", Reason: "not a valid address"}
		}
		// The address is sent verbatim as mailto, so display names are refused.
		if addr.Address != s.Email {
			return &ValidationError{Field: "email", Reason: "must be a bare address such as name@example.org"}
		}
	}
	issns := make(map[string]struct{}, len(s.Journals))
	names := make(map[string]struct{}, len(s.Journals))
	for _, j := range s.Journals {
		if err := j.Validate(); err != nil {
			return err
		}
		issn := strings.ToUpper(j.ISSN)
		if _, dup := issns[issn]; dup {
			return &ValidationError{Field: "journals", Reason: fmt.Sprintf("ISSN %s listed twice", j.ISSN)}
		}
		if _, dup := names[j.Name]; dup {
			return &ValidationError{Field: "journals", Reason: fmt.Sprintf("name %q listed twice", j.Name)}
		}
		issns[issn] = struct{}{}
		names[j.Name] = struct{}{}
	}
	return nil
}

// Validate checks the journal's required fields.
func (j Journal) Validate() error {
	if strings.TrimSpace(j.Name) == "" {
		return &ValidationError{Field: "journal.name", Reason: "is required"}
	}
	if !issnPattern.MatchString(j.ISSN) {
		return &ValidationError{Field: "journal.issn", Reason: fmt.Sprintf("%q is not an ISSN", j.ISSN)}
	}
	return nil
}

func validateYear(field string, year int) error {
	if year < MinYear || year > MaxYear {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("must be between %d and %d", MinYear, MaxYear)}
	}
	return nil
}
