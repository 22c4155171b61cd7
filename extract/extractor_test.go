package extract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var sampleCells = []string{
	"1", "DANGCEM", "450.00", "452.00", "455.00", "448.00",
	"453.50", "3.50", "0.78", "120", "1,500,000", "680,250,000.00", "453.50",
}

func TestParseRowOrdinalFastPath(t *testing.T) {
	fields, ok := parseRow(sampleCells)
	require.True(t, ok)
	require.Equal(t, "DANGCEM", fields[1])
	require.Len(t, fields, expectedColumns)
}

func TestParseRowLooseHeuristic(t *testing.T) {
	// Some report variants carry a non-numeric lead cell on valid rows;
	// the loose printable/bounded-length check is the reference path.
	cells := append([]string{}, sampleCells...)
	cells[0] = "1a"
	_, ok := parseRow(cells)
	require.True(t, ok)

	// Unbounded leading cells are not row material.
	cells[0] = "this leading cell is far too long to be a row ordinal"
	_, ok = parseRow(cells)
	require.False(t, ok)

	cells[0] = ""
	_, ok = parseRow(cells)
	require.False(t, ok)
}

func TestParseRowCollapsedRecovery(t *testing.T) {
	// Entire row content collapsed into one whitespace-joined cell with
	// the remaining cells empty.
	collapsed := []string{
		"1 DANGCEM 450.00 452.00 455.00 448.00 453.50 3.50 0.78 120 1500000 680250000.00 453.50",
		"", "", "", "",
	}

	fields, ok := parseRow(collapsed)
	require.True(t, ok)
	require.Equal(t, "1", fields[0])
	require.Equal(t, "DANGCEM", fields[1])
	require.Equal(t, "453.50", fields[12])
}

func TestParseRowCollapsedNonNumericLeadRejected(t *testing.T) {
	collapsed := []string{
		"TOTAL DANGCEM 450.00 452.00 455.00 448.00 453.50 3.50 0.78 120 1500000 680250000.00 453.50",
		"", "",
	}
	_, ok := parseRow(collapsed)
	require.False(t, ok)
}

func TestParseRowCollapsedTooFewTokensRejected(t *testing.T) {
	collapsed := []string{"1 DANGCEM 450.00", "", ""}
	_, ok := parseRow(collapsed)
	require.False(t, ok)
}

func TestParseRowShortMultiCellRejected(t *testing.T) {
	_, ok := parseRow([]string{"1", "DANGCEM", "450.00"})
	require.False(t, ok)
}

func TestCoerceNumber(t *testing.T) {
	tests := []struct {
		in   string
		want *float64
	}{
		{"12,345.50", f(12345.50)},
		{"450.00", f(450)},
		{"0", f(0)},
		{"", nil},
		{"   ", nil},
		{"--", nil},
		{"N/A", nil},
	}

	for _, tt := range tests {
		got := coerceNumber(tt.in)
		if tt.want == nil {
			require.Nil(t, got, "coerceNumber(%q)", tt.in)
			continue
		}
		require.NotNil(t, got, "coerceNumber(%q)", tt.in)
		require.InDelta(t, *tt.want, *got, 1e-9)
	}
}

func TestCoerceNumberIdempotent(t *testing.T) {
	first := coerceNumber("1,234.56")
	require.NotNil(t, first)

	second := coerceNumber("1234.56")
	require.NotNil(t, second)
	require.Equal(t, *first, *second)
}

func TestBuildRowStampsDate(t *testing.T) {
	date := time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC)
	row := buildRow(sampleCells, date)

	require.Equal(t, date, row.Date)
	require.Equal(t, 1, row.Seq)
	require.Equal(t, "DANGCEM", row.Symbol)
	require.NotNil(t, row.Volume)
	require.Equal(t, 1500000.0, *row.Volume)
	require.NotNil(t, row.ChangePercent)
	require.Equal(t, 0.78, *row.ChangePercent)
}

func TestBuildRowNullsOnBadCells(t *testing.T) {
	cells := append([]string{}, sampleCells...)
	cells[2] = ""
	cells[8] = "n/a"

	row := buildRow(cells, time.Now())
	require.Nil(t, row.PrevClose)
	require.Nil(t, row.ChangePercent)
	require.NotNil(t, row.Open)
}

func f(v float64) *float64 { return &v }
