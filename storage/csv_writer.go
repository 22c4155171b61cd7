package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"ngx-pipeline/models"
)

// CSVWriter dumps the raw extracted report rows to a CSV file as an audit
// trail of what the document yielded before reconciliation. It is safe
// for concurrent use.
type CSVWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

// NewCSVWriter creates (or truncates) the CSV file at the given path and
// writes the header row. Intermediate directories are created automatically.
func NewCSVWriter(path string) (*CSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("csv: create output dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("csv: create file %q: %w", path, err)
	}

	w := csv.NewWriter(f)

	if err := w.Write([]string{
		"date", "seq", "symbol", "prev_close", "open", "high", "low", "close",
		"change", "change_percent", "deals", "volume", "value", "vwap",
	}); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("csv: write header: %w", err)
	}
	w.Flush()

	return &CSVWriter{file: f, writer: w}, nil
}

// WriteRows appends the extracted rows to the CSV file.
func (c *CSVWriter) WriteRows(rows []models.ReportRow) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, r := range rows {
		record := []string{
			r.Date.Format("2006-01-02"),
			strconv.Itoa(r.Seq),
			r.Symbol,
			fmtFloat(r.PrevClose),
			fmtFloat(r.Open),
			fmtFloat(r.High),
			fmtFloat(r.Low),
			fmtFloat(r.Close),
			fmtFloat(r.Change),
			fmtFloat(r.ChangePercent),
			fmtFloat(r.Deals),
			fmtFloat(r.Volume),
			fmtFloat(r.Value),
			fmtFloat(r.VWAP),
		}
		if err := c.writer.Write(record); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}

	c.writer.Flush()
	return c.writer.Error()
}

// Close flushes and closes the underlying file.
func (c *CSVWriter) Close() error {
	c.writer.Flush()
	return c.file.Close()
}

func fmtFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
