// Package openalex looks up and samples work records from the OpenAlex API
// through a shared pacing gate and a bounded retry policy.
package openalex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/TsaiLintung/paper-scroll/internal/fetcher"
	"github.com/TsaiLintung/paper-scroll/internal/metrics"
	"github.com/TsaiLintung/paper-scroll/internal/policy/pacing"
	"github.com/TsaiLintung/paper-scroll/internal/policy/retry"
	"github.com/TsaiLintung/paper-scroll/internal/scroll"
)

// Defaults for the public API.
const (
	DefaultBaseURL = "https://api.openalex.org"
	DefaultTimeout = 30 * time.Second
	apiName        = "openalex"
)

var _ scroll.WorkFetcher = (*Client)(nil)

// Getter issues a bounded GET.
type Getter interface {
	Get(ctx context.Context, rawURL string, timeout time.Duration) (fetcher.Response, error)
}

// Config controls the client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// Seed returns the sample seed; defaults to a random integer.
	Seed func() int
}

// Client implements scroll.WorkFetcher.
type Client struct {
	cfg       Config
	getter    Getter
	scheduler *pacing.Scheduler
	retry     *retry.Policy
	pauser    pacing.Pauser
	logger    *zap.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithPauser replaces the backoff sleeper (tests record instead of sleeping).
func WithPauser(p pacing.Pauser) Option {
	return func(c *Client) { c.pauser = p }
}

// New builds a Client. The scheduler is owned by this client; share the
// client, not the scheduler, to keep one gate per process.
func New(
	cfg Config,
	getter Getter,
	scheduler *pacing.Scheduler,
	policy *retry.Policy,
	logger *zap.Logger,
	opts ...Option,
) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Seed == nil {
		cfg.Seed = func() int { return rand.IntN(1_000_000) }
	}
	if scheduler == nil {
		scheduler = pacing.New(pacing.Config{})
	}
	if policy == nil {
		policy = retry.New(retry.DefaultConfig())
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		cfg:       cfg,
		getter:    getter,
		scheduler: scheduler,
		retry:     policy,
		pauser:    pacing.TimerPauser{},
		logger:    logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchWork looks up one work by DOI.
func (c *Client) FetchWork(ctx context.Context, doi string, email string) (scroll.Work, error) {
	key := scroll.NormalizeDOI(doi)
	if key == "" {
		return scroll.Work{}, &scroll.FetchError{DOI: doi, Err: errors.New("empty doi")}
	}
	endpoint := c.cfg.BaseURL + "/works/" + escapeComponent(key)
	if email != "" {
		endpoint += "?" + url.Values{"mailto": {email}}.Encode()
	}

	resp, attempts, err := c.do(ctx, endpoint, email)
	if err != nil {
		return scroll.Work{}, &scroll.FetchError{DOI: key, StatusCode: resp.StatusCode, Attempts: attempts, Err: err}
	}
	var work scroll.Work
	if err := json.Unmarshal(resp.Body, &work); err != nil {
		return scroll.Work{}, &scroll.FetchError{
			DOI:        key,
			StatusCode: resp.StatusCode,
			Attempts:   attempts,
			Err:        fmt.Errorf("decode work: %w", err),
		}
	}
	return work, nil
}

// SampleWork draws one random work published by issn in year.
func (c *Client) SampleWork(ctx context.Context, issn string, year int, email string) (scroll.Work, error) {
	endpoint := c.sampleURL(issn, year, email)
	resp, attempts, err := c.do(ctx, endpoint, email)
	if err != nil {
		return scroll.Work{}, &scroll.SampleError{
			ISSN: issn, Year: year, StatusCode: resp.StatusCode, Attempts: attempts, Err: err,
		}
	}
	var page struct {
		Results []scroll.Work `json:"results"`
	}
	if err := json.Unmarshal(resp.Body, &page); err != nil {
		return scroll.Work{}, &scroll.SampleError{
			ISSN: issn, Year: year, StatusCode: resp.StatusCode, Attempts: attempts,
			Err: fmt.Errorf("decode sample: %w", err),
		}
	}
	if len(page.Results) == 0 {
		return scroll.Work{}, &scroll.SampleError{
			ISSN: issn, Year: year, StatusCode: resp.StatusCode, Attempts: attempts, Err: scroll.ErrNoResults,
		}
	}
	return page.Results[0], nil
}

func (c *Client) sampleURL(issn string, year int, email string) string {
	y := strconv.Itoa(year)
	filter := "primary_location.source.issn:" + issn +
		",from_publication_date:" + y + "-01-01" +
		",to_publication_date:" + y + "-12-31"
	q := "filter=" + filter +
		"&sample=1&per-page=1&seed=" + strconv.Itoa(c.cfg.Seed())
	if email != "" {
		q += "&mailto=" + url.QueryEscape(email)
	}
	return c.cfg.BaseURL + "/works?" + q
}

// do runs the paced retry loop. It returns the last response seen so callers
// can report its status, the number of attempts made, and an error when no
// 2xx response arrived.
func (c *Client) do(ctx context.Context, endpoint, email string) (fetcher.Response, int, error) {
	var (
		last fetcher.Response
		err  error
	)
	for attempt := 1; ; attempt++ {
		c.scheduler.Wait(email != "")
		if ctxErr := ctx.Err(); ctxErr != nil {
			return last, attempt - 1, fmt.Errorf("openalex request canceled: %w", ctxErr)
		}

		last, err = c.getter.Get(ctx, endpoint, c.cfg.Timeout)
		if err == nil && last.OK() {
			return last, attempt, nil
		}
		if err == nil {
			err = fmt.Errorf("unexpected status %d", last.StatusCode)
		}
		transportErr := err
		if last.StatusCode != 0 {
			transportErr = nil
		}
		if !c.retry.ShouldRetry(last.StatusCode, transportErr, attempt) {
			return last, attempt, err
		}

		delay := c.retry.Backoff(attempt)
		metrics.ObserveRetry(apiName, last.StatusCode)
		c.logger.Warn("openalex request failed, backing off",
			zap.String("url", endpoint),
			zap.Int("status", last.StatusCode),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		c.pauser.Pause(ctx, delay)
	}
}

// componentUnescapes lists the marks a URI component leaves literal but
// QueryEscape encodes.
var componentUnescapes = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

// escapeComponent encodes s as a single URI component, so the DOI URL's
// scheme colon and slashes are all percent-encoded.
func escapeComponent(s string) string {
	return componentUnescapes.Replace(url.QueryEscape(s))
}
