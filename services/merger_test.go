package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ngx-pipeline/models"
	"ngx-pipeline/utils"
)

func newTestMerger() *Merger { return NewMerger(utils.NewLogger()) }

func f(v float64) *float64 { return &v }

func reportRow(symbol string) models.ReportRow {
	return models.ReportRow{
		Symbol: symbol,
		Close:  f(100),
		Date:   time.Date(2026, 1, 20, 14, 30, 0, 0, time.UTC),
	}
}

func TestMergeLeftJoinOnSymbol(t *testing.T) {
	report := []models.ReportRow{reportRow("DANGCEM"), reportRow("GTCO")}
	quotes := []models.QuoteRow{
		{Symbol: "DANGCEM", PriceEarnings: f(12.5), Price: f(450)},
	}
	companies := []models.CompanyRecord{
		{Symbol: "DANGCEM", MarketCap: f(7.6e12), Sector: "Industrial Goods"},
		{Symbol: "UNLISTED", MarketCap: f(1)},
	}

	records, stats := newTestMerger().Merge(report, quotes, companies)
	require.Len(t, records, 2)
	require.Equal(t, 2, stats.Initial)
	require.Equal(t, 2, stats.Final)

	dangcem := records[0]
	require.Equal(t, "DANGCEM", dangcem.Symbol)
	require.NotNil(t, dangcem.PriceEarnings)
	require.Equal(t, 12.5, *dangcem.PriceEarnings)
	require.NotNil(t, dangcem.MarketCap)
	require.NotNil(t, dangcem.Sector)
	require.Equal(t, "Industrial Goods", *dangcem.Sector)

	// Unmatched right-hand sides degrade to nil columns.
	gtco := records[1]
	require.Nil(t, gtco.PriceEarnings)
	require.Nil(t, gtco.MarketCap)
	require.Nil(t, gtco.Sector)
}

func TestMergeCountArithmetic(t *testing.T) {
	report := []models.ReportRow{
		reportRow("DANGCEM"),
		reportRow("VETBANK"),    // explicit exclusion list
		reportRow("NEWGOLD"),    // explicit exclusion list
		reportRow("SIAMLETF40"), // explicit list (checked before pattern)
		reportRow("GOLD1"),      // pattern: digit
		reportRow("LOTUSetf"),   // pattern: case-insensitive ETF, not in the list
		reportRow("GTCO"),
	}

	records, stats := newTestMerger().Merge(report, nil, nil)
	require.Equal(t, 7, stats.Initial)
	require.Equal(t, 3, stats.ExcludedSpecific)
	require.Equal(t, 2, stats.ExcludedPattern)
	require.Equal(t, 2, stats.Final)
	require.Equal(t, stats.Initial-stats.ExcludedSpecific-stats.ExcludedPattern, stats.Final)
	require.Len(t, records, stats.Final)
}

func TestMergeNeverIncreasesRowCount(t *testing.T) {
	report := []models.ReportRow{reportRow("DANGCEM")}
	quotes := []models.QuoteRow{
		{Symbol: "DANGCEM", PriceEarnings: f(1)},
		{Symbol: "DANGCEM", PriceEarnings: f(2)},
		{Symbol: "NOTINREPORT", PriceEarnings: f(3)},
	}

	records, stats := newTestMerger().Merge(report, quotes, nil)
	require.Len(t, records, 1)
	require.Equal(t, 1, stats.Final)
	// First quote match wins.
	require.Equal(t, 1.0, *records[0].PriceEarnings)
}

func TestMergeDedupesSpineSymbols(t *testing.T) {
	report := []models.ReportRow{reportRow("DANGCEM"), reportRow("DANGCEM")}

	records, stats := newTestMerger().Merge(report, nil, nil)
	require.Len(t, records, 1)
	require.Equal(t, 1, stats.Initial)
}

func TestExcludePattern(t *testing.T) {
	rejected := []string{"SIAMLETF40", "VETBANKetf", "GREENWEFT", "FGSUK2031", "fgsuk", "GOLD1", "ABC9DEF"}
	for _, s := range rejected {
		require.True(t, excludePattern.MatchString(s), "pattern should reject %q", s)
	}

	accepted := []string{"DANGCEM", "GTCO", "ZENITHBANK", "MTNN", "NB"}
	for _, s := range accepted {
		require.False(t, excludePattern.MatchString(s), "pattern should accept %q", s)
	}
}

func TestExcludePatternVsExplicitList(t *testing.T) {
	// VETBANK is only caught by the explicit list — no digit, no ETF
	// substring — which is why both stages exist.
	require.False(t, excludePattern.MatchString("VETBANK"))
	require.True(t, isExcludedSymbol("VETBANK"))
	require.True(t, isExcludedSymbol("vetbank"))
	require.False(t, isExcludedSymbol("DANGCEM"))
}

func TestMergeNormalizesDateAndBlanks(t *testing.T) {
	report := []models.ReportRow{reportRow("DANGCEM")}
	companies := []models.CompanyRecord{
		{Symbol: "DANGCEM", Sector: "   "},
	}

	records, _ := newTestMerger().Merge(report, nil, companies)
	require.Len(t, records, 1)
	require.Equal(t, time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC), records[0].Date)
	require.Nil(t, records[0].Sector, "whitespace-only sector becomes nil")
}
