package services

import (
	"regexp"
	"strings"
	"time"

	"ngx-pipeline/models"
	"ngx-pipeline/utils"
)

// excludedSymbols are known non-equity instruments (bonds, ETFs,
// depositary-style tickers) dropped before persistence.
var excludedSymbols = []string{
	"VSPBONDETF", "VETGOODS", "LOTUSHAL15", "GREENWETF", "STANBICETF30",
	"MERVALUE", "SIAMLETF40", "MERGROWTH", "VETGRIF30", "VETINDETF",
	"VETBANK", "NEWGOLD",
}

// excludePattern catches ETF-like and numeric-suffixed tickers that the
// explicit list misses.
var excludePattern = regexp.MustCompile(`(?i)ETF|EFT|FGSUK|[0-9]`)

// MergeStats reports row counts at each exclusion stage. The counts are
// the integrity signal that the join did not silently drop the wrong
// rows: Final = Initial − ExcludedSpecific − ExcludedPattern always.
type MergeStats struct {
	Initial          int
	ExcludedSpecific int
	ExcludedPattern  int
	Final            int
}

// Merger reconciles the three per-symbol datasets into one record set.
type Merger struct {
	logger *utils.Logger
}

// NewMerger creates a Merger with the given logger.
func NewMerger(logger *utils.Logger) *Merger {
	return &Merger{logger: logger}
}

// Merge left-joins the report rows (the authoritative spine) with the
// quote feed (P/E only) and the company directory (market cap and sector
// only) on symbol, then applies the exclusion rules. Unmatched symbols on
// the right-hand sides contribute nil columns; they are never a join
// failure.
func (m *Merger) Merge(report []models.ReportRow, quotes []models.QuoteRow,
	companies []models.CompanyRecord) ([]models.ReconciledRecord, MergeStats) {

	quotesBySymbol := make(map[string]models.QuoteRow, len(quotes))
	for _, q := range quotes {
		if q.Symbol == "" {
			continue
		}
		if _, ok := quotesBySymbol[q.Symbol]; !ok {
			quotesBySymbol[q.Symbol] = q
		}
	}

	companiesBySymbol := make(map[string]models.CompanyRecord, len(companies))
	for _, c := range companies {
		if c.Symbol == "" {
			continue
		}
		if _, ok := companiesBySymbol[c.Symbol]; !ok {
			companiesBySymbol[c.Symbol] = c
		}
	}

	spine := dedupeSpine(report)
	stats := MergeStats{Initial: len(spine)}
	result := make([]models.ReconciledRecord, 0, len(spine))

	for _, row := range spine {
		if isExcludedSymbol(row.Symbol) {
			stats.ExcludedSpecific++
			continue
		}
		if excludePattern.MatchString(row.Symbol) {
			stats.ExcludedPattern++
			continue
		}

		rec := models.ReconciledRecord{ReportRow: row}
		rec.Date = normalizeDate(row.Date)

		if q, ok := quotesBySymbol[row.Symbol]; ok {
			rec.PriceEarnings = q.PriceEarnings
		}
		if c, ok := companiesBySymbol[row.Symbol]; ok {
			rec.MarketCap = c.MarketCap
			rec.Sector = blankToNil(c.Sector)
		}

		result = append(result, rec)
	}

	stats.Final = len(result)
	m.logger.Info("[merge] Reconciled %d → %d records (specific: %d, pattern: %d)",
		stats.Initial, stats.Final, stats.ExcludedSpecific, stats.ExcludedPattern)
	return result, stats
}

// dedupeSpine enforces one report row per symbol, first occurrence wins.
func dedupeSpine(report []models.ReportRow) []models.ReportRow {
	seen := make(map[string]struct{}, len(report))
	out := make([]models.ReportRow, 0, len(report))
	for _, r := range report {
		if r.Symbol == "" {
			continue
		}
		if _, dup := seen[r.Symbol]; dup {
			continue
		}
		seen[r.Symbol] = struct{}{}
		out = append(out, r)
	}
	return out
}

func isExcludedSymbol(symbol string) bool {
	for _, s := range excludedSymbols {
		if strings.EqualFold(symbol, s) {
			return true
		}
	}
	return false
}

// normalizeDate strips any time-of-day component so the persisted date is
// a plain business date.
func normalizeDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// blankToNil converts empty or whitespace-only text into a nil column.
func blankToNil(s string) *string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
