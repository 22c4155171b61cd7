package models

import "time"

// ReportRow is one traded-instrument record extracted from the daily PDF
// report. Numeric fields are pointers: a cell that fails coercion becomes
// nil rather than failing the row.
type ReportRow struct {
	Seq           int
	Symbol        string
	PrevClose     *float64
	Open          *float64
	High          *float64
	Low           *float64
	Close         *float64
	Change        *float64
	ChangePercent *float64
	Deals         *float64
	Volume        *float64
	Value         *float64
	VWAP          *float64
	Date          time.Time
}

// QuoteRow is a symbol-keyed partial record from the market-movers feed.
// Only the P/E ratio participates in reconciliation; the rest is carried
// for the audit trail.
type QuoteRow struct {
	Symbol        string   `json:"symbol"`
	Price         *float64 `json:"price"`
	ChangePercent *float64 `json:"changePercent"`
	Volume        *float64 `json:"volume"`
	PriceEarnings *float64 `json:"priceEarnings"`
	EPSDiluted    *float64 `json:"epsDiluted"`
	DividendYield *float64 `json:"dividendYield"`
}

// CompanyRecord is a symbol-keyed record from the company directory feed.
type CompanyRecord struct {
	ID        int64    `json:"id"`
	Symbol    string   `json:"symbol"`
	Name      string   `json:"name"`
	Sector    string   `json:"sector"`
	MarketCap *float64 `json:"marketCap"`
	Price     *float64 `json:"price"`
	PrevClose *float64 `json:"prevClose"`
	Volume    *float64 `json:"volume"`
}

// ReconciledRecord is a ReportRow left-joined with the quote and company
// feeds on symbol. One record per symbol per business date.
type ReconciledRecord struct {
	ReportRow
	PriceEarnings *float64
	MarketCap     *float64
	Sector        *string
}

// MarketSnapshot is the single index-level statistics record for a date.
type MarketSnapshot struct {
	Date             time.Time
	ASI              *float64
	ASIChangePercent *float64
	Deals            *float64
	Volume           *float64
	ValueTraded      *float64
	MarketCapEquity  *float64
	MarketCapBonds   *float64
	MarketCapETFs    *float64
	MarketCapTotal   *float64
	UpdatedAt        *time.Time
}
