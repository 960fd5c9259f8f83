package scroll

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWithJournalIsIdempotent(t *testing.T) {
	t.Parallel()

	base := DefaultSettings()
	added, changed := base.WithJournal(Journal{Name: "qje", ISSN: "0033-5533"})
	require.True(t, changed)
	require.Len(t, added.Journals, 2)

	again, changed := added.WithJournal(Journal{Name: "qje", ISSN: "0033-5533"})
	require.False(t, changed)
	require.Equal(t, added.Journals, again.Journals)

	sameName, changed := added.WithJournal(Journal{Name: "qje", ISSN: "1111-2222"})
	require.False(t, changed)
	require.Len(t, sameName.Journals, 2)

	require.Len(t, base.Journals, 1, "original must not be mutated")
}

func TestWithoutJournal(t *testing.T) {
	t.Parallel()

	s, _ := DefaultSettings().WithJournal(Journal{Name: "qje", ISSN: "0033-5533"})
	next, removed := s.WithoutJournal("0002-8282")
	require.True(t, removed)
	require.Equal(t, []Journal{{Name: "qje", ISSN: "0033-5533"}}, next.Journals)
	require.Len(t, s.Journals, 2)

	_, removed = next.WithoutJournal("9999-9999")
	require.False(t, removed)
}

func TestYearRangeNormalizes(t *testing.T) {
	t.Parallel()

	lo, hi := Settings{StartYear: 2023, EndYear: 2019}.YearRange()
	require.Equal(t, 2019, lo)
	require.Equal(t, 2023, hi)
}

func TestSettingsValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, DefaultSettings().Validate())

	cases := map[string]func(*Settings){
		"start_year":   func(s *Settings) { s.StartYear = 1200 },
		"end_year":     func(s *Settings) { s.EndYear = 3000 },
		"text_size":    func(s *Settings) { s.TextSize = 2 },
		"email":        func(s *Settings) { s.Email = "not-an-email" },
		"journal.name": func(s *Settings) { s.Journals = []Journal{{Name: " ", ISSN: "0002-8282"}} },
		"journal.issn": func(s *Settings) { s.Journals = []Journal{{Name: "aer", ISSN: "abc"}} },
	}
	for field, mutate := range cases {
		t.Run(field, func(t *testing.T) {
			t.Parallel()
			s := DefaultSettings()
			mutate(&s)
			err := s.Validate()
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			require.Equal(t, field, verr.Field)
		})
	}
}

func TestSettingsValidateRejectsDuplicateJournals(t *testing.T) {
	t.Parallel()

	for name, journals := range map[string][]Journal{
		"same issn": {{Name: "aer", ISSN: "0002-8282"}, {Name: "aer2", ISSN: "0002-8282"}},
		"issn case": {{Name: "x", ISSN: "1234-567X"}, {Name: "y", ISSN: "1234-567x"}},
		"same name": {{Name: "aer", ISSN: "0002-8282"}, {Name: "aer", ISSN: "0033-5533"}},
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			s := DefaultSettings()
			s.Journals = journals
			var verr *ValidationError
			require.ErrorAs(t, s.Validate(), &verr)
			require.Equal(t, "journals", verr.Field)
		})
	}
}

func TestSettingsValidateRequiresBareEmail(t *testing.T) {
	t.Parallel()

	s := DefaultSettings()
	s.Email = "me@example.org"
	require.NoError(t, s.Validate())

	for _, email := range []string{"Me <me@example.org>", " me@example.org", "<me@example.org>"} {
		s.Email = email
		var verr *ValidationError
		require.ErrorAs(t, s.Validate(), &verr, "email %q", email)
		require.Equal(t, "email", verr.Field)
	}
}

func TestSnapshotKey(t *testing.T) {
	t.Parallel()

	snap := JournalSnapshot{Name: "aer", Year: 2021}
	require.Equal(t, "aer-2021", snap.Key())
}
