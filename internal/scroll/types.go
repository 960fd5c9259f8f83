package scroll

import (
	"fmt"
	"sort"
	"time"
)

// Journal identifies a journal by ISSN; the name doubles as the snapshot key prefix.
type Journal struct {
	Name string `json:"name" yaml:"name"`
	ISSN string `json:"issn" yaml:"issn"`
}

// SnapshotItem is one identifier collected by a listing sweep.
type SnapshotItem struct {
	DOI string `json:"DOI"`
}

// JournalSnapshot is the frozen result of one full crawl of a (journal, year) pair.
type JournalSnapshot struct {
	ISSN  string         `json:"issn"`
	Name  string         `json:"name"`
	Year  int            `json:"year"`
	Items []SnapshotItem `json:"items"`
}

// SnapshotKey builds the composite key used to store a snapshot.
func SnapshotKey(name string, year int) string {
	return fmt.Sprintf("%s-%d", name, year)
}

// Key returns the composite name-year key for the snapshot.
func (s JournalSnapshot) Key() string {
	return SnapshotKey(s.Name, s.Year)
}

// Clone returns a deep copy so stores never share item slices with callers.
func (s JournalSnapshot) Clone() JournalSnapshot {
	cp := s
	cp.Items = append([]SnapshotItem(nil), s.Items...)
	return cp
}

// Status is the singleton progress record shown as the sync indicator.
type Status struct {
	Message  string  `json:"message"`
	Progress float64 `json:"progress"`
}

// Work is the subset of an OpenAlex work record the feed consumes.
type Work struct {
	ID                    string           `json:"id"`
	DOI                   string           `json:"doi,omitempty"`
	DisplayName           string           `json:"display_name,omitempty"`
	Title                 string           `json:"title,omitempty"`
	PublicationYear       int              `json:"publication_year,omitempty"`
	AbstractInvertedIndex map[string][]int `json:"abstract_inverted_index,omitempty"`
	PrimaryLocation       *Location        `json:"primary_location,omitempty"`
	Authorships           []Authorship     `json:"authorships,omitempty"`
}

// Location is the primary hosting location of a work.
type Location struct {
	Source *Source `json:"source,omitempty"`
}

// Source names the venue a work was published in.
type Source struct {
	DisplayName string `json:"display_name,omitempty"`
}

// Authorship links a work to one author.
type Authorship struct {
	Author Author `json:"author"`
}

// Author carries the author display name.
type Author struct {
	DisplayName string `json:"display_name,omitempty"`
}

// StarredPaper is a paper the user bookmarked.
type StarredPaper struct {
	Paper     Paper     `json:"paper"`
	StarredAt time.Time `json:"starred_at"`
}

// SortStarred orders bookmarks newest first, breaking ties by DOI.
func SortStarred(items []StarredPaper) {
	sort.Slice(items, func(i, j int) bool {
		if !items[i].StarredAt.Equal(items[j].StarredAt) {
			return items[i].StarredAt.After(items[j].StarredAt)
		}
		return items[i].Paper.DOI < items[j].Paper.DOI
	})
}
