package openalex

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/TsaiLintung/paper-scroll/internal/fetcher"
	"github.com/TsaiLintung/paper-scroll/internal/policy/pacing"
	"github.com/TsaiLintung/paper-scroll/internal/policy/retry"
	"github.com/TsaiLintung/paper-scroll/internal/scroll"
)

const sampleBody = `{"results":[{"id":"https://openalex.org/W1","doi":"https://doi.org/10.1/a",
"display_name":"Sampled","publication_year":2021}]}`

type recordingPauser struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (p *recordingPauser) Pause(_ context.Context, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delays = append(p.delays, d)
}

func (p *recordingPauser) Delays() []time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]time.Duration(nil), p.delays...)
}

// scriptedServer replies with the given statuses in order, then 200 with body.
func scriptedServer(t *testing.T, statuses []int, body string) (*httptest.Server, *[]*http.Request) {
	t.Helper()
	var (
		mu       sync.Mutex
		requests []*http.Request
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		idx := len(requests)
		requests = append(requests, r.Clone(context.Background()))
		mu.Unlock()
		if idx < len(statuses) {
			w.WriteHeader(statuses[idx])
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &requests
}

func newTestClient(srv *httptest.Server, backoff *recordingPauser) *Client {
	getter := fetcher.New(fetcher.Config{Name: "openalex"}, srv.Client(), zap.NewNop())
	scheduler := pacing.New(pacing.Config{Pauser: &recordingPauser{}})
	return New(
		Config{BaseURL: srv.URL, Timeout: time.Second, Seed: func() int { return 42 }},
		getter,
		scheduler,
		retry.New(retry.DefaultConfig()),
		zap.NewNop(),
		WithPauser(backoff),
	)
}

func TestSampleWorkRetriesTransientStatuses(t *testing.T) {
	t.Parallel()

	srv, requests := scriptedServer(t, []int{http.StatusTooManyRequests, http.StatusTooManyRequests}, sampleBody)
	backoff := &recordingPauser{}
	client := newTestClient(srv, backoff)

	work, err := client.SampleWork(context.Background(), "0002-8282", 2021, "")

	require.NoError(t, err)
	require.Equal(t, "Sampled", work.DisplayName)
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second}, backoff.Delays())
	require.Len(t, *requests, 3)
}

func TestSampleWorkBuildsFilterQuery(t *testing.T) {
	t.Parallel()

	srv, requests := scriptedServer(t, nil, sampleBody)
	client := newTestClient(srv, &recordingPauser{})

	_, err := client.SampleWork(context.Background(), "0002-8282", 2021, "me@example.org")
	require.NoError(t, err)

	require.Len(t, *requests, 1)
	q := (*requests)[0].URL.Query()
	require.Equal(t, "/works", (*requests)[0].URL.Path)
	require.Equal(t,
		"primary_location.source.issn:0002-8282,from_publication_date:2021-01-01,to_publication_date:2021-12-31",
		q.Get("filter"))
	require.Equal(t, "1", q.Get("sample"))
	require.Equal(t, "1", q.Get("per-page"))
	require.Equal(t, "42", q.Get("seed"))
	require.Equal(t, "me@example.org", q.Get("mailto"))
}

func TestSampleWorkZeroResultsIsTerminal(t *testing.T) {
	t.Parallel()

	srv, requests := scriptedServer(t, nil, `{"results":[]}`)
	backoff := &recordingPauser{}
	client := newTestClient(srv, backoff)

	_, err := client.SampleWork(context.Background(), "0002-8282", 1900, "")

	var sampleErr *scroll.SampleError
	require.True(t, errors.As(err, &sampleErr))
	require.True(t, errors.Is(err, scroll.ErrNoResults))
	require.Empty(t, backoff.Delays())
	require.Len(t, *requests, 1)
}

func TestFetchWorkNotFoundFailsImmediately(t *testing.T) {
	t.Parallel()

	srv, requests := scriptedServer(t, []int{http.StatusNotFound}, `{}`)
	backoff := &recordingPauser{}
	client := newTestClient(srv, backoff)

	_, err := client.FetchWork(context.Background(), "10.1/missing", "")

	var fetchErr *scroll.FetchError
	require.True(t, errors.As(err, &fetchErr))
	require.Equal(t, http.StatusNotFound, fetchErr.StatusCode)
	require.Equal(t, 1, fetchErr.Attempts)
	require.Empty(t, backoff.Delays())
	require.Len(t, *requests, 1)
}

func TestFetchWorkExhaustsRetryBudget(t *testing.T) {
	t.Parallel()

	statuses := []int{503, 503, 503, 503, 503}
	srv, requests := scriptedServer(t, statuses, `{}`)
	backoff := &recordingPauser{}
	client := newTestClient(srv, backoff)

	_, err := client.FetchWork(context.Background(), "10.1/flaky", "")

	var fetchErr *scroll.FetchError
	require.True(t, errors.As(err, &fetchErr))
	require.Equal(t, 5, fetchErr.Attempts)
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}, backoff.Delays())
	require.Len(t, *requests, 5)
}

func TestFetchWorkEscapesNormalizedDOI(t *testing.T) {
	t.Parallel()

	srv, requests := scriptedServer(t, nil, `{"id":"https://openalex.org/W9","doi":"https://doi.org/10.1257/aer.1"}`)
	client := newTestClient(srv, &recordingPauser{})

	work, err := client.FetchWork(context.Background(), "10.1257/AER.1", "me@example.org")
	require.NoError(t, err)
	require.Equal(t, "https://openalex.org/W9", work.ID)

	req := (*requests)[0]
	require.Equal(t, "/works/https%3A%2F%2Fdoi.org%2F10.1257%2Faer.1", req.URL.EscapedPath())
	require.Equal(t, "me@example.org", req.URL.Query().Get("mailto"))
}

func TestEscapeComponent(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"https://doi.org/10.1257/aer.1":             "https%3A%2F%2Fdoi.org%2F10.1257%2Faer.1",
		"https://doi.org/10.1002/(sici)1099-1255*x": "https%3A%2F%2Fdoi.org%2F10.1002%2F(sici)1099-1255*x",
		"https://doi.org/10.1/a b?c=d&e#f":          "https%3A%2F%2Fdoi.org%2F10.1%2Fa%20b%3Fc%3Dd%26e%23f",
		"https://doi.org/10.1/it's~ok!":             "https%3A%2F%2Fdoi.org%2F10.1%2Fit's~ok!",
	}
	for in, want := range cases {
		require.Equal(t, want, escapeComponent(in), in)
	}
}
