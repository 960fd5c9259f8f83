package scroll

import (
	"fmt"
	"sort"
	"strings"
)

// DefaultDOI backs papers whose work record has no DOI.
const DefaultDOI = "10.1038/s41586-020-2649-2"

const doiResolver = "https://doi.org/"

// Paper is the display-ready form of a work.
type Paper struct {
	ID          string `json:"id"`
	DOI         string `json:"doi"`
	Title       string `json:"title"`
	Abstract    string `json:"abstract"`
	YearJournal string `json:"year_journal"`
	Authors     string `json:"authors_joined"`
}

// ToPaper converts a work record into a Paper.
func ToPaper(w Work) Paper {
	doi := w.DOI
	if doi == "" {
		doi = DefaultDOI
	}
	title := w.DisplayName
	if title == "" {
		title = w.Title
	}
	if title == "" {
		title = "Untitled"
	}
	return Paper{
		ID:          w.ID,
		DOI:         DOIURL(doi),
		Title:       title,
		Abstract:    ReconstructAbstract(w.AbstractInvertedIndex),
		YearJournal: yearJournal(w),
		Authors:     joinAuthors(w.Authorships),
	}
}

// DOIURL turns a bare DOI into a resolver URL, leaving URLs untouched.
func DOIURL(doi string) string {
	if doi == "" || strings.HasPrefix(doi, "http") {
		return doi
	}
	return doiResolver + doi
}

// NormalizeDOI produces the cache key for a DOI: trimmed, resolver-prefixed, lowercase.
func NormalizeDOI(doi string) string {
	return strings.ToLower(DOIURL(strings.TrimSpace(doi)))
}

// ReconstructAbstract rebuilds text from an inverted index by ordering every
// (position, word) pair on position.
func ReconstructAbstract(index map[string][]int) string {
	if len(index) == 0 {
		return ""
	}
	type token struct {
		pos  int
		word string
	}
	tokens := make([]token, 0, len(index))
	for word, positions := range index {
		for _, pos := range positions {
			tokens = append(tokens, token{pos: pos, word: word})
		}
	}
	sort.Slice(tokens, func(i, j int) bool {
		if tokens[i].pos != tokens[j].pos {
			return tokens[i].pos < tokens[j].pos
		}
		return tokens[i].word < tokens[j].word
	})
	words := make([]string, len(tokens))
	for i, t := range tokens {
		words[i] = t.word
	}
	return strings.Join(words, " ")
}

func yearJournal(w Work) string {
	if w.PublicationYear == 0 || w.PrimaryLocation == nil || w.PrimaryLocation.Source == nil {
		return ""
	}
	name := w.PrimaryLocation.Source.DisplayName
	if name == "" {
		return ""
	}
	return fmt.Sprintf("%d · %s", w.PublicationYear, name)
}

func joinAuthors(authorships []Authorship) string {
	names := make([]string, 0, len(authorships))
	for _, a := range authorships {
		if a.Author.DisplayName != "" {
			names = append(names, a.Author.DisplayName)
		}
	}
	return strings.Join(names, ", ")
}
