package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestClientGetReturnsBodyAndStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "application/json", r.Header.Get("Accept"))
		require.Equal(t, "paper-scroll-test", r.Header.Get("User-Agent"))
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	client := New(Config{Name: "test", UserAgent: "paper-scroll-test"}, srv.Client(), zap.NewNop())
	resp, err := client.Get(context.Background(), srv.URL, time.Second)

	require.NoError(t, err)
	require.Equal(t, http.StatusTeapot, resp.StatusCode)
	require.False(t, resp.OK())
	require.JSONEq(t, `{"ok":true}`, string(resp.Body))
}

func TestClientGetTimesOut(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	client := New(Config{Name: "test"}, srv.Client(), nil)
	_, err := client.Get(context.Background(), srv.URL, 20*time.Millisecond)

	require.Error(t, err)
	require.True(t, errors.Is(err, ErrTimeout))
}

func TestClientGetTruncatesBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("0123456789"))
	}))
	defer srv.Close()

	client := New(Config{Name: "test", MaxBodyBytes: 4}, srv.Client(), nil)
	resp, err := client.Get(context.Background(), srv.URL, time.Second)

	require.NoError(t, err)
	require.Equal(t, "0123", string(resp.Body))
	require.True(t, resp.OK())
}
