package fetch

import (
	"context"
	"fmt"
	"time"

	"ngx-pipeline/config"
	"ngx-pipeline/models"
	"ngx-pipeline/utils"
)

type snapshotEnvelope struct {
	Success bool         `json:"success"`
	Data    snapshotData `json:"data"`
}

type snapshotData struct {
	Date             string   `json:"date"`
	ASI              *float64 `json:"asi"`
	ASIChangePercent *float64 `json:"asiChangePercent"`
	Deals            *float64 `json:"deals"`
	Volume           *float64 `json:"volume"`
	ValueTraded      *float64 `json:"valueTraded"`
	MarketCap        struct {
		Equity *float64 `json:"equity"`
		Bonds  *float64 `json:"bonds"`
		ETFs   *float64 `json:"etfs"`
		Total  *float64 `json:"total"`
	} `json:"marketCap"`
	UpdatedAt string `json:"updatedAt"`
}

// SnapshotFetcher pulls the single index-level statistics object. The
// payload carries a success flag that must be truthy; anything else is a
// failed fetch.
type SnapshotFetcher struct {
	client *Client
	url    string
	logger *utils.Logger
}

// NewSnapshotFetcher creates a fetcher for the configured snapshot endpoint.
func NewSnapshotFetcher(client *Client, cfg *config.Config, logger *utils.Logger) *SnapshotFetcher {
	return &SnapshotFetcher{client: client, url: cfg.SnapshotURL, logger: logger}
}

// Fetch retrieves the snapshot and flattens the nested marketCap object.
// The run's business date is used when the payload date is absent or
// unparseable.
func (f *SnapshotFetcher) Fetch(ctx context.Context, runDate time.Time) (*models.MarketSnapshot, error) {
	var envelope snapshotEnvelope
	if err := f.client.GetJSON(ctx, f.url, nil, &envelope); err != nil {
		return nil, err
	}
	if !envelope.Success {
		return nil, fmt.Errorf("snapshot API returned success=false")
	}

	d := envelope.Data
	snap := &models.MarketSnapshot{
		Date:             runDate,
		ASI:              d.ASI,
		ASIChangePercent: d.ASIChangePercent,
		Deals:            d.Deals,
		Volume:           d.Volume,
		ValueTraded:      d.ValueTraded,
		MarketCapEquity:  d.MarketCap.Equity,
		MarketCapBonds:   d.MarketCap.Bonds,
		MarketCapETFs:    d.MarketCap.ETFs,
		MarketCapTotal:   d.MarketCap.Total,
	}

	if d.Date != "" {
		if t, err := time.Parse(time.RFC3339, d.Date); err == nil {
			snap.Date = t
		}
	}
	if d.UpdatedAt != "" {
		if t, err := time.Parse(time.RFC3339, d.UpdatedAt); err == nil {
			snap.UpdatedAt = &t
		}
	}

	f.logger.Info("[snapshot] Fetched market snapshot for %s", snap.Date.Format("2006-01-02"))
	return snap, nil
}
