// Package fetcher issues timeout-bounded JSON GET requests against upstream APIs.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/TsaiLintung/paper-scroll/internal/metrics"
)

// ErrTimeout marks a request aborted by its per-request deadline.
var ErrTimeout = errors.New("request timed out")

const defaultMaxBodyBytes = 8 << 20

// Config controls client behavior.
type Config struct {
	// Name labels metrics and logs, e.g. "crossref".
	Name         string
	UserAgent    string
	MaxBodyBytes int64
}

// Response is the result of a single GET.
type Response struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
	Duration   time.Duration
}

// OK reports a 2xx status.
func (r Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Client performs GET requests with a per-call timeout.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

// New builds a Client. A nil httpClient gets a pooled transport.
func New(cfg Config, httpClient *http.Client, logger *zap.Logger) *Client {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.Name == "" {
		cfg.Name = "upstream"
	}
	if httpClient == nil {
		httpClient = &http.Client{Transport: newHTTPTransport()}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{cfg: cfg, http: httpClient, logger: logger}
}

// Get issues a GET bounded by timeout. Non-2xx statuses are returned in the
// Response; only transport failures produce an error.
func (c *Client) Get(ctx context.Context, rawURL string, timeout time.Duration) (Response, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return Response{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveUpstreamRequest(c.cfg.Name, "error", time.Since(start))
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Response{}, fmt.Errorf("%w after %s: %w", ErrTimeout, timeout, err)
		}
		return Response{}, fmt.Errorf("%s request: %w", c.cfg.Name, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Debug("close response body", zap.Error(cerr))
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxBodyBytes))
	dur := time.Since(start)
	if err != nil {
		metrics.ObserveUpstreamRequest(c.cfg.Name, "error", dur)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Response{}, fmt.Errorf("%w reading body: %w", ErrTimeout, err)
		}
		return Response{}, fmt.Errorf("read %s body: %w", c.cfg.Name, err)
	}
	metrics.ObserveUpstreamRequest(c.cfg.Name, strconv.Itoa(resp.StatusCode), dur)
	c.logger.Debug("upstream response",
		zap.String("api", c.cfg.Name),
		zap.String("url", rawURL),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", dur),
	)
	return Response{
		URL:        rawURL,
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       body,
		Duration:   dur,
	}, nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
