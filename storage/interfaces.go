package storage

import "ngx-pipeline/models"

// RecordSink is the interface the pipeline persists through.
type RecordSink interface {
	UpsertRecords(records []models.ReconciledRecord) (UpsertStats, error)
	UpsertSnapshot(snap *models.MarketSnapshot) error
	Close() error
}

// RowAuditWriter persists the raw extracted rows before reconciliation.
type RowAuditWriter interface {
	WriteRows(rows []models.ReportRow) error
	Close() error
}
