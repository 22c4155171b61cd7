package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"ngx-pipeline/models"
	"ngx-pipeline/utils"
)

const recordColumns = 17

// UpsertStats accounts for one upsert call. Duplicates are a countable
// outcome, not an error.
type UpsertStats struct {
	Inserted   int
	Duplicates int
	Errors     int
}

// PostgresWriter persists reconciled records and market snapshots. The
// connection is opened lazily on first use and reused for the run. Both
// tables are append-only; uniqueness constraints are what the duplicate
// tolerance relies on.
type PostgresWriter struct {
	dsn    string
	logger *utils.Logger
	db     *sql.DB
}

// NewPostgresWriter prepares a writer for the given DSN. No connection is
// made until the first upsert.
func NewPostgresWriter(dsn string, logger *utils.Logger) *PostgresWriter {
	return &PostgresWriter{dsn: dsn, logger: logger}
}

func (pw *PostgresWriter) ensureConn() error {
	if pw.db != nil {
		return nil
	}

	db, err := sql.Open("postgres", pw.dsn)
	if err != nil {
		return fmt.Errorf("postgres: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("postgres: ping: %w", err)
	}

	pw.db = db
	if err := pw.migrate(); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}

	pw.logger.Info("[postgres] Connection established")
	return nil
}

func (pw *PostgresWriter) migrate() error {
	_, err := pw.db.Exec(`
		CREATE TABLE IF NOT EXISTS daily_equities (
			id             SERIAL PRIMARY KEY,
			symbol         VARCHAR(32) NOT NULL,
			trade_date     DATE        NOT NULL,
			seq            INT,
			prev_close     NUMERIC(18,4),
			open           NUMERIC(18,4),
			high           NUMERIC(18,4),
			low            NUMERIC(18,4),
			close          NUMERIC(18,4),
			change         NUMERIC(18,4),
			change_percent NUMERIC(18,4),
			deals          NUMERIC(18,2),
			volume         NUMERIC(20,2),
			value          NUMERIC(20,2),
			vwap           NUMERIC(18,4),
			price_earnings NUMERIC(18,4),
			market_cap     NUMERIC(24,2),
			sector         TEXT,
			UNIQUE (symbol, trade_date)
		);

		CREATE TABLE IF NOT EXISTS market_snapshots (
			id                 SERIAL PRIMARY KEY,
			trade_date         DATE NOT NULL UNIQUE,
			asi                NUMERIC(18,2),
			asi_change_percent NUMERIC(18,4),
			deals              NUMERIC(18,2),
			volume             NUMERIC(20,2),
			value_traded       NUMERIC(20,2),
			market_cap_equity  NUMERIC(24,2),
			market_cap_bonds   NUMERIC(24,2),
			market_cap_etfs    NUMERIC(24,2),
			market_cap_total   NUMERIC(24,2),
			updated_at         TIMESTAMPTZ
		);

		CREATE INDEX IF NOT EXISTS idx_daily_equities_date   ON daily_equities(trade_date);
		CREATE INDEX IF NOT EXISTS idx_daily_equities_symbol ON daily_equities(symbol);
	`)
	return err
}

// UpsertRecords appends the record set. It tries one bulk insert first;
// on a duplicate-key violation it falls back to inserting row by row,
// counting successes, duplicate-skips and hard errors separately. Only a
// non-duplicate bulk failure is returned as an error.
func (pw *PostgresWriter) UpsertRecords(records []models.ReconciledRecord) (UpsertStats, error) {
	var stats UpsertStats
	if len(records) == 0 {
		return stats, nil
	}
	if err := pw.ensureConn(); err != nil {
		return stats, err
	}

	pw.logger.Info("[postgres] Uploading %d records to daily_equities", len(records))

	if err := pw.insertBulk(records); err != nil {
		if !isDuplicateErr(err) {
			return stats, fmt.Errorf("postgres: bulk insert: %w", err)
		}
		pw.logger.Warn("[postgres] Duplicate entries detected, inserting row by row")
		return pw.insertRowByRow(records), nil
	}

	stats.Inserted = len(records)
	return stats, nil
}

func (pw *PostgresWriter) insertBulk(records []models.ReconciledRecord) error {
	valueStrings := make([]string, 0, len(records))
	valueArgs := make([]interface{}, 0, len(records)*recordColumns)

	for idx, r := range records {
		base := idx * recordColumns
		placeholders := make([]string, recordColumns)
		for i := range placeholders {
			placeholders[i] = fmt.Sprintf("$%d", base+i+1)
		}
		valueStrings = append(valueStrings, "("+strings.Join(placeholders, ",")+")")
		valueArgs = append(valueArgs, recordArgs(r)...)
	}

	query := fmt.Sprintf(`
		INSERT INTO daily_equities (
			symbol, trade_date, seq, prev_close, open, high, low, close,
			change, change_percent, deals, volume, value, vwap,
			price_earnings, market_cap, sector
		) VALUES %s
	`, strings.Join(valueStrings, ","))

	_, err := pw.db.Exec(query, valueArgs...)
	return err
}

func (pw *PostgresWriter) insertRowByRow(records []models.ReconciledRecord) UpsertStats {
	var stats UpsertStats

	for _, r := range records {
		_, err := pw.db.Exec(`
			INSERT INTO daily_equities (
				symbol, trade_date, seq, prev_close, open, high, low, close,
				change, change_percent, deals, volume, value, vwap,
				price_earnings, market_cap, sector
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		`, recordArgs(r)...)

		switch {
		case err == nil:
			stats.Inserted++
		case isDuplicateErr(err):
			stats.Duplicates++
		default:
			stats.Errors++
			pw.logger.Error("[postgres] Insert failed for %s: %v", r.Symbol, err)
		}
	}

	pw.logger.Info("[postgres] Upload completed: %d inserted, %d duplicates skipped, %d errors",
		stats.Inserted, stats.Duplicates, stats.Errors)
	return stats
}

func recordArgs(r models.ReconciledRecord) []interface{} {
	return []interface{}{
		r.Symbol, r.Date, r.Seq, r.PrevClose, r.Open, r.High, r.Low, r.Close,
		r.Change, r.ChangePercent, r.Deals, r.Volume, r.Value, r.VWAP,
		r.PriceEarnings, r.MarketCap, r.Sector,
	}
}

// UpsertSnapshot appends the one-per-date market snapshot. A duplicate
// means the snapshot for this date is already stored; that is a skip, not
// an error.
func (pw *PostgresWriter) UpsertSnapshot(snap *models.MarketSnapshot) error {
	if err := pw.ensureConn(); err != nil {
		return err
	}

	_, err := pw.db.Exec(`
		INSERT INTO market_snapshots (
			trade_date, asi, asi_change_percent, deals, volume, value_traded,
			market_cap_equity, market_cap_bonds, market_cap_etfs, market_cap_total,
			updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, snap.Date, snap.ASI, snap.ASIChangePercent, snap.Deals, snap.Volume,
		snap.ValueTraded, snap.MarketCapEquity, snap.MarketCapBonds,
		snap.MarketCapETFs, snap.MarketCapTotal, snap.UpdatedAt)

	if err != nil {
		if isDuplicateErr(err) {
			pw.logger.Info("[postgres] Snapshot for %s already stored, skipping",
				snap.Date.Format("2006-01-02"))
			return nil
		}
		return fmt.Errorf("postgres: snapshot insert: %w", err)
	}

	pw.logger.Info("[postgres] Market snapshot stored for %s", snap.Date.Format("2006-01-02"))
	return nil
}

// Close releases the connection if one was ever opened.
func (pw *PostgresWriter) Close() error {
	if pw.db == nil {
		return nil
	}
	return pw.db.Close()
}

// isDuplicateErr classifies a uniqueness-constraint violation. The pq
// error code is authoritative; the message check covers errors that have
// been wrapped into plain text by intermediate layers.
func isDuplicateErr(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") || strings.Contains(msg, "unique constraint")
}
