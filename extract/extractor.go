package extract

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/ledongthuc/pdf"

	"ngx-pipeline/models"
	"ngx-pipeline/utils"
)

// expectedColumns is the report table width: S/N, Symbol, PClose, Open,
// High, Low, Close, Change, %Change, Deals, Volume, Value, VWAP.
const expectedColumns = 13

// maxLeadingTokenLen bounds the leading cell for the loose acceptance
// heuristic; real ordinals and tickers are far shorter.
const maxLeadingTokenLen = 12

// ErrNoRows means the document was readable but yielded no usable table
// rows. This is fatal for the run.
var ErrNoRows = errors.New("no table rows extracted from report")

// Extractor parses the daily PDF report into ReportRows.
type Extractor struct {
	logger *utils.Logger
}

// New creates an Extractor.
func New(logger *utils.Logger) *Extractor {
	return &Extractor{logger: logger}
}

// Extract scans every page of the report at path and returns the accepted
// rows stamped with the business date. Pages are scanned independently; a
// page that fails text extraction is skipped, not fatal. Duplicate symbols
// keep their first occurrence.
func (e *Extractor) Extract(path string, date time.Time) ([]models.ReportRow, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open report %s: %w", path, err)
	}
	defer f.Close()

	seen := utils.NewStringSet()
	var out []models.ReportRow

	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}

		textRows, err := page.GetTextByRow()
		if err != nil {
			e.logger.Warn("[extract] Page %d unreadable, skipping: %v", i, err)
			continue
		}

		for _, tr := range textRows {
			cells := make([]string, 0, len(tr.Content))
			for _, t := range tr.Content {
				cells = append(cells, strings.TrimSpace(t.S))
			}

			fields, ok := parseRow(cells)
			if !ok {
				continue
			}

			row := buildRow(fields, date)
			if row.Symbol == "" || !seen.Add(row.Symbol) {
				continue
			}
			out = append(out, row)
		}
	}

	if len(out) == 0 {
		return nil, ErrNoRows
	}

	e.logger.Info("[extract] Extracted %d rows from %s", len(out), path)
	return out, nil
}

// parseRow decides whether a raw cell slice is a data row and returns its
// first expectedColumns fields. Acceptance, in order:
//
//  1. A full-width row whose leading cell is a digit-only ordinal.
//  2. A full-width row whose leading cell is printable and of bounded
//     length (the reference heuristic; report layouts vary and some pages
//     carry non-numeric lead cells on valid rows).
//  3. Collapsed-row recovery: the entire row's content sits in a single
//     whitespace-joined cell. If its leading token is numeric and there
//     are at least expectedColumns tokens, the row is rebuilt by
//     splitting on whitespace.
//
// Everything else is dropped silently.
func parseRow(cells []string) ([]string, bool) {
	if len(cells) >= expectedColumns {
		if isOrdinal(cells[0]) || looksWellFormed(cells[0]) {
			return cells[:expectedColumns], true
		}
		return nil, false
	}

	if joined, ok := collapsedCell(cells); ok {
		tokens := strings.Fields(joined)
		if len(tokens) >= expectedColumns && isOrdinal(tokens[0]) {
			return tokens[:expectedColumns], true
		}
	}

	return nil, false
}

// collapsedCell reports whether exactly one cell carries content and
// returns it.
func collapsedCell(cells []string) (string, bool) {
	var content string
	for _, c := range cells {
		if c == "" {
			continue
		}
		if content != "" {
			return "", false
		}
		content = c
	}
	return content, content != ""
}

func isOrdinal(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func looksWellFormed(s string) bool {
	if s == "" || len([]rune(s)) > maxLeadingTokenLen {
		return false
	}
	for _, r := range s {
		if !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}

func buildRow(fields []string, date time.Time) models.ReportRow {
	seq, _ := strconv.Atoi(fields[0])
	return models.ReportRow{
		Seq:           seq,
		Symbol:        strings.TrimSpace(fields[1]),
		PrevClose:     coerceNumber(fields[2]),
		Open:          coerceNumber(fields[3]),
		High:          coerceNumber(fields[4]),
		Low:           coerceNumber(fields[5]),
		Close:         coerceNumber(fields[6]),
		Change:        coerceNumber(fields[7]),
		ChangePercent: coerceNumber(fields[8]),
		Deals:         coerceNumber(fields[9]),
		Volume:        coerceNumber(fields[10]),
		Value:         coerceNumber(fields[11]),
		VWAP:          coerceNumber(fields[12]),
		Date:          date,
	}
}

// coerceNumber strips thousands separators and parses the cell. Anything
// that does not parse — including empty cells — becomes nil, never an
// error.
func coerceNumber(s string) *float64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}
