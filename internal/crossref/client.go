// Package crossref walks the Crossref journal works listing with cursor
// pagination and returns every DOI published in a given year.
package crossref

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/TsaiLintung/paper-scroll/internal/fetcher"
	"github.com/TsaiLintung/paper-scroll/internal/scroll"
)

// Defaults for the public listing API.
const (
	DefaultBaseURL  = "https://api.crossref.org"
	DefaultPageSize = 200
	DefaultTimeout  = 45 * time.Second
	startCursor     = "*"
)

var _ scroll.Lister = (*Client)(nil)

// Getter issues a bounded GET.
type Getter interface {
	Get(ctx context.Context, rawURL string, timeout time.Duration) (fetcher.Response, error)
}

// Config controls the listing client.
type Config struct {
	BaseURL  string
	PageSize int
	Timeout  time.Duration
}

// Client implements scroll.Lister against Crossref.
type Client struct {
	cfg    Config
	getter Getter
	logger *zap.Logger
}

type worksPage struct {
	Status  string `json:"status"`
	Message struct {
		Items []struct {
			DOI string `json:"DOI"`
		} `json:"items"`
		NextCursor string `json:"next-cursor"`
	} `json:"message"`
}

// New builds a Client.
func New(cfg Config, getter Getter, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{cfg: cfg, getter: getter, logger: logger}
}

// FetchAllIdentifiers pages through the journal's works for year until the
// server returns an empty page or no next cursor. Pages are fetched one at a
// time; any failure aborts the sweep so a partial listing is never returned.
func (c *Client) FetchAllIdentifiers(
	ctx context.Context,
	journal scroll.Journal,
	year int,
	email string,
) ([]string, error) {
	var (
		dois   []string
		cursor = startCursor
		pages  int
	)
	for {
		page, err := c.fetchPage(ctx, journal.ISSN, year, cursor, email)
		if err != nil {
			return nil, err
		}
		pages++
		items := page.Message.Items
		for _, item := range items {
			if item.DOI == "" {
				continue
			}
			dois = append(dois, item.DOI)
		}
		if len(items) == 0 || page.Message.NextCursor == "" {
			break
		}
		cursor = page.Message.NextCursor
	}
	c.logger.Info("journal listing complete",
		zap.String("journal", journal.Name),
		zap.String("issn", journal.ISSN),
		zap.Int("year", year),
		zap.Int("pages", pages),
		zap.Int("dois", len(dois)),
	)
	return dois, nil
}

func (c *Client) fetchPage(ctx context.Context, issn string, year int, cursor, email string) (worksPage, error) {
	resp, err := c.getter.Get(ctx, c.pageURL(issn, year, cursor, email), c.cfg.Timeout)
	if err != nil {
		return worksPage{}, &scroll.ListingError{ISSN: issn, Year: year, Err: err}
	}
	if !resp.OK() {
		return worksPage{}, &scroll.ListingError{
			ISSN:       issn,
			Year:       year,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}
	var page worksPage
	if err := json.Unmarshal(resp.Body, &page); err != nil {
		return worksPage{}, &scroll.ListingError{
			ISSN: issn, Year: year, StatusCode: resp.StatusCode,
			Err: fmt.Errorf("decode works page: %w", err),
		}
	}
	if page.Status != "" && page.Status != "ok" {
		return worksPage{}, &scroll.ListingError{
			ISSN: issn, Year: year, StatusCode: resp.StatusCode,
			Err: errors.New("listing status " + strconv.Quote(page.Status)),
		}
	}
	return page, nil
}

func (c *Client) pageURL(issn string, year int, cursor, email string) string {
	y := strconv.Itoa(year)
	q := url.Values{}
	q.Set("filter", "from-pub-date:"+y+"-01-01,until-pub-date:"+y+"-12-31")
	q.Set("rows", strconv.Itoa(c.cfg.PageSize))
	q.Set("cursor", cursor)
	q.Set("select", "DOI")
	if email != "" {
		q.Set("mailto", email)
	}
	return c.cfg.BaseURL + "/journals/" + url.PathEscape(issn) + "/works?" + q.Encode()
}
