package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()

	if upstreamRequestsTotal == nil || pacingWaitSeconds == nil ||
		httpRequestsTotal == nil || syncActive == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObserveUpstreamRequest(t *testing.T) {
	before := testutil.ToFloat64(upstreamCounter("openalex", "429"))
	ObserveUpstreamRequest("openalex", "429", 120*time.Millisecond)
	ObserveUpstreamRequest("openalex", "429", 80*time.Millisecond)

	if got := testutil.ToFloat64(upstreamCounter("openalex", "429")) - before; got != 2 {
		t.Errorf("expected 2 upstream requests, got %f", got)
	}
}

func TestObserveRetryLabelsTransportErrors(t *testing.T) {
	Init()
	before := testutil.ToFloat64(upstreamRetriesTotal.WithLabelValues("openalex", "error"))
	ObserveRetry("openalex", 0)
	if got := testutil.ToFloat64(upstreamRetriesTotal.WithLabelValues("openalex", "error")) - before; got != 1 {
		t.Errorf("expected 1 retry labeled error, got %f", got)
	}
}

func TestSetSyncActive(t *testing.T) {
	SetSyncActive(true)
	if got := testutil.ToFloat64(syncActive); got != 1 {
		t.Errorf("expected gauge 1, got %f", got)
	}
	SetSyncActive(false)
	if got := testutil.ToFloat64(syncActive); got != 0 {
		t.Errorf("expected gauge 0, got %f", got)
	}
}

func upstreamCounter(api, code string) prometheus.Counter {
	Init()
	return upstreamRequestsTotal.WithLabelValues(api, code)
}
