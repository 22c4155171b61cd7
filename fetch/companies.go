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

// companiesEnvelope is the directory feed's pagination wrapper.
type companiesEnvelope struct {
	Data    []models.CompanyRecord `json:"data"`
	HasNext bool                   `json:"hasNext"`
}

// CompaniesFetcher pulls the company directory. Unlike the quotes feed,
// pagination here is driven purely by the envelope's hasNext flag — a page
// shorter than the limit is NOT a stop signal.
type CompaniesFetcher struct {
	client   *Client
	baseURL  string
	pageSize int
	delay    time.Duration
	retry    *utils.RetryConfig
	logger   *utils.Logger
}

// NewCompaniesFetcher creates a fetcher for the configured directory feed.
func NewCompaniesFetcher(client *Client, cfg *config.Config, logger *utils.Logger) *CompaniesFetcher {
	return &CompaniesFetcher{
		client:   client,
		baseURL:  cfg.CompaniesURL,
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

// FetchAll iterates pages from 1 until hasNext is false or a page comes
// back empty. Partial results survive a failed page.
func (f *CompaniesFetcher) FetchAll(ctx context.Context) ([]models.CompanyRecord, error) {
	var all []models.CompanyRecord

	for page := 1; ; page++ {
		var envelope companiesEnvelope

		err := f.retry.Do(ctx, fmt.Sprintf("companies page %d", page), func() error {
			query := url.Values{
				"page":  {strconv.Itoa(page)},
				"limit": {strconv.Itoa(f.pageSize)},
				"sort":  {"market_cap"},
				"order": {"desc"},
			}
			envelope = companiesEnvelope{}
			return f.client.GetJSON(ctx, f.baseURL, query, &envelope)
		})
		if err != nil {
			f.logger.Error("[companies] Page %d failed, returning %d records fetched so far: %v",
				page, len(all), err)
			return all, err
		}

		f.logger.Info("[companies] Page %d: %d records, hasNext=%t",
			page, len(envelope.Data), envelope.HasNext)

		if len(envelope.Data) == 0 {
			break
		}
		all = append(all, envelope.Data...)

		if !envelope.HasNext {
			break
		}

		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return all, ctx.Err()
		}
	}

	f.logger.Info("[companies] Fetched %d records total", len(all))
	return all, nil
}
