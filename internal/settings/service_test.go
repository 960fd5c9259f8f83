package settings

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TsaiLintung/paper-scroll/internal/scroll"
	"github.com/TsaiLintung/paper-scroll/internal/storage/memory"
)

var jpe = scroll.Journal{Name: "jpe", ISSN: "0022-3808"}

type failingStore struct {
	scroll.SettingsStore
	putErr error
	puts   int
}

func (f *failingStore) PutSettings(ctx context.Context, s scroll.Settings) error {
	f.puts++
	if f.putErr != nil {
		return f.putErr
	}
	return f.SettingsStore.PutSettings(ctx, s)
}

func TestGetCreatesAndPersistsDefaults(t *testing.T) {
	t.Parallel()

	store := memory.New()
	svc := New(store, nil)

	got, err := svc.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, scroll.DefaultSettings(), got)

	stored, err := store.GetSettings(context.Background())
	require.NoError(t, err)
	require.Equal(t, got, stored)
}

func TestResyncPolicy(t *testing.T) {
	t.Parallel()

	require.True(t, RequiresResync(FieldStartYear))
	require.True(t, RequiresResync(FieldEndYear))
	require.True(t, RequiresResync(FieldJournals))
	require.False(t, RequiresResync(FieldEmail))
	require.False(t, RequiresResync(FieldTextSize))
	require.False(t, RequiresResync("unknown"))
}

func TestSetAppliesFieldAndReportsResync(t *testing.T) {
	t.Parallel()

	svc := New(memory.New(), nil)
	ctx := context.Background()

	update, err := svc.Set(ctx, FieldEndYear, "2023")
	require.NoError(t, err)
	require.Equal(t, 2023, update.Settings.EndYear)
	require.Equal(t, []string{FieldEndYear}, update.Changed)
	require.True(t, update.Resync)

	update, err = svc.Set(ctx, FieldEmail, "me@example.org")
	require.NoError(t, err)
	require.False(t, update.Resync)

	update, err = svc.Set(ctx, FieldTextSize, "18")
	require.NoError(t, err)
	require.False(t, update.Resync)
	require.Equal(t, 18, update.Settings.TextSize)
}

func TestSetSameValueIsNoop(t *testing.T) {
	t.Parallel()

	svc := New(memory.New(), nil)
	update, err := svc.Set(context.Background(), FieldStartYear, "2021")
	require.NoError(t, err)
	require.Empty(t, update.Changed)
	require.False(t, update.Resync)
}

func TestRejectedUpdateLeavesRecordUnchanged(t *testing.T) {
	t.Parallel()

	store := memory.New()
	svc := New(store, nil)
	ctx := context.Background()

	cases := map[string]string{
		FieldStartYear: "1700",
		FieldEndYear:   "not-a-year",
		FieldTextSize:  "99",
		FieldEmail:     "nobody",
		"colour":       "blue",
	}
	for field, value := range cases {
		_, err := svc.Set(ctx, field, value)
		require.True(t, scroll.IsValidation(err), "field %s", field)
	}

	stored, err := store.GetSettings(ctx)
	require.NoError(t, err)
	require.Equal(t, scroll.DefaultSettings(), stored)
}

func TestApplyJournalsDropsDuplicates(t *testing.T) {
	t.Parallel()

	store := memory.New()
	svc := New(store, nil)
	ctx := context.Background()

	update, err := svc.Apply(ctx, Patch{Journals: []scroll.Journal{
		{Name: "aer", ISSN: "0002-8282"},
		{Name: " aer ", ISSN: "0002-8282"},
		{Name: "aer", ISSN: "0033-5533"},
		{Name: "qje", ISSN: " 0033-5533 "},
		{Name: "x", ISSN: "1234-567x"},
	}})
	require.NoError(t, err)
	want := []scroll.Journal{
		{Name: "aer", ISSN: "0002-8282"},
		{Name: "qje", ISSN: "0033-5533"},
		{Name: "x", ISSN: "1234-567X"},
	}
	require.Equal(t, want, update.Settings.Journals)

	stored, err := store.GetSettings(ctx)
	require.NoError(t, err)
	require.Equal(t, want, stored.Journals)
}

func TestSetEmailRejectsDisplayName(t *testing.T) {
	t.Parallel()

	svc := New(memory.New(), nil)
	_, err := svc.Set(context.Background(), FieldEmail, "Me <me@example.org>")
	require.True(t, scroll.IsValidation(err))
}

func TestAddJournalIsIdempotent(t *testing.T) {
	t.Parallel()

	svc := New(memory.New(), nil)
	ctx := context.Background()

	update, err := svc.AddJournal(ctx, jpe)
	require.NoError(t, err)
	require.True(t, update.Resync)
	require.Len(t, update.Settings.Journals, 2)

	update, err = svc.AddJournal(ctx, scroll.Journal{Name: "jpe", ISSN: "1537-534X"})
	require.NoError(t, err)
	require.False(t, update.Resync)
	require.Len(t, update.Settings.Journals, 2)

	update, err = svc.AddJournal(ctx, scroll.Journal{Name: "other", ISSN: "0022-3808"})
	require.NoError(t, err)
	require.Len(t, update.Settings.Journals, 2)
}

func TestAddJournalValidates(t *testing.T) {
	t.Parallel()

	svc := New(memory.New(), nil)
	_, err := svc.AddJournal(context.Background(), scroll.Journal{Name: "bad", ISSN: "12345678"})
	require.True(t, scroll.IsValidation(err))

	_, err = svc.AddJournal(context.Background(), scroll.Journal{Name: " ", ISSN: "0022-3808"})
	require.True(t, scroll.IsValidation(err))
}

func TestRemoveJournal(t *testing.T) {
	t.Parallel()

	svc := New(memory.New(), nil)
	ctx := context.Background()

	update, err := svc.RemoveJournal(ctx, "0002-8282")
	require.NoError(t, err)
	require.Empty(t, update.Settings.Journals)
	require.True(t, update.Resync)

	_, err = svc.RemoveJournal(ctx, "0002-8282")
	require.True(t, errors.Is(err, scroll.ErrNotFound))
}

func TestResetRestoresDefaults(t *testing.T) {
	t.Parallel()

	svc := New(memory.New(), nil)
	ctx := context.Background()
	_, err := svc.AddJournal(ctx, jpe)
	require.NoError(t, err)

	update, err := svc.Reset(ctx)
	require.NoError(t, err)
	require.Equal(t, scroll.DefaultSettings(), update.Settings)
	require.Equal(t, []string{FieldJournals}, update.Changed)
}

func TestImportJournals(t *testing.T) {
	t.Parallel()

	svc := New(memory.New(), nil)
	doc := `
journals:
  - name: jpe
    issn: 0022-3808
  - name: aer
    issn: 0002-8282
  - name: qje
    issn: 0033-5533
`
	update, err := svc.ImportJournals(context.Background(), strings.NewReader(doc))
	require.NoError(t, err)
	require.Equal(t, []scroll.Journal{
		{Name: "aer", ISSN: "0002-8282"},
		jpe,
		{Name: "qje", ISSN: "0033-5533"},
	}, update.Settings.Journals)
}

func TestImportJournalsRejectsWholeDocument(t *testing.T) {
	t.Parallel()

	store := memory.New()
	svc := New(store, nil)
	doc := "journals:\n  - name: jpe\n    issn: 0022-3808\n  - name: broken\n    issn: nope\n"

	_, err := svc.ImportJournals(context.Background(), strings.NewReader(doc))
	require.True(t, scroll.IsValidation(err))

	got, err := svc.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, scroll.DefaultSettings().Journals, got.Journals)
}

func TestFindRanksFuzzyMatches(t *testing.T) {
	t.Parallel()

	svc := New(memory.New(), nil)
	ctx := context.Background()
	_, err := svc.Apply(ctx, Patch{Journals: []scroll.Journal{
		{Name: "aer", ISSN: "0002-8282"},
		{Name: "journal of political economy", ISSN: "0022-3808"},
		{Name: "econometrica", ISSN: "0012-9682"},
	}})
	require.NoError(t, err)

	found, err := svc.Find(ctx, "polecon")
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, "0022-3808", found[0].ISSN)

	all, err := svc.Find(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestPersistFailureIsWrapped(t *testing.T) {
	t.Parallel()

	fs := &failingStore{SettingsStore: memory.New()}
	svc := New(fs, nil)
	ctx := context.Background()
	_, err := svc.Get(ctx)
	require.NoError(t, err)

	fs.putErr = errors.New("disk full")
	_, err = svc.Set(ctx, FieldTextSize, "20")
	require.ErrorContains(t, err, "persist settings")
}
