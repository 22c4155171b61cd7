package fetch

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"ngx-pipeline/config"
	"ngx-pipeline/models"
	"ngx-pipeline/utils"
)

// QuotesFetcher pulls the market-movers feed. The feed has no pagination
// envelope: pages are bare arrays and a page shorter than the requested
// limit is the stop signal.
type QuotesFetcher struct {
	client   *Client
	baseURL  string
	pageSize int
	delay    time.Duration
	retry    *utils.RetryConfig
	logger   *utils.Logger
}

// NewQuotesFetcher creates a fetcher for the configured quotes feed.
func NewQuotesFetcher(client *Client, cfg *config.Config, logger *utils.Logger) *QuotesFetcher {
	return &QuotesFetcher{
		client:   client,
		baseURL:  cfg.QuotesURL,
		pageSize: cfg.PageSize,
		delay:    time.Duration(cfg.RateLimitMs) * time.Millisecond,
		retry: &utils.RetryConfig{
			MaxAttempts: cfg.MaxRetries,
			BaseDelay:   time.Second,
			Logger:      logger,
		},
		logger: logger,
	}
}

// FetchAll iterates pages from 1 and accumulates records. On a
// non-recoverable transport or decode error the rows fetched so far are
// returned together with the error; an empty result set is a valid
// outcome, not a failure.
func (f *QuotesFetcher) FetchAll(ctx context.Context) ([]models.QuoteRow, error) {
	var all []models.QuoteRow

	for page := 1; ; page++ {
		var rows []models.QuoteRow

		err := f.retry.Do(ctx, fmt.Sprintf("quotes page %d", page), func() error {
			query := url.Values{
				"page":  {strconv.Itoa(page)},
				"limit": {strconv.Itoa(f.pageSize)},
				"sort":  {"change"},
				"order": {"desc"},
			}
			rows = nil
			return f.client.GetJSON(ctx, f.baseURL, query, &rows)
		})
		if err != nil {
			f.logger.Error("[quotes] Page %d failed, returning %d rows fetched so far: %v",
				page, len(all), err)
			return all, err
		}

		f.logger.Info("[quotes] Page %d: %d records", page, len(rows))
		if len(rows) == 0 {
			break
		}
		all = append(all, rows...)

		if len(rows) < f.pageSize {
			break
		}

		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return all, ctx.Err()
		}
	}

	f.logger.Info("[quotes] Fetched %d records total", len(all))
	return all, nil
}
