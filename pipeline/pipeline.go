package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"ngx-pipeline/config"
	"ngx-pipeline/models"
	"ngx-pipeline/scraper/portal"
	"ngx-pipeline/services"
	"ngx-pipeline/storage"
	"ngx-pipeline/utils"
)

// PortalDateFormat is the business-date format the report portal expects.
const PortalDateFormat = "02/01/2006"

const discoverInterval = 2 * time.Second

// Acquirer obtains the report artifact for a business date.
type Acquirer interface {
	Acquire(ctx context.Context, date, downloadDir string) (string, error)
}

// Extractor parses the report artifact into rows.
type Extractor interface {
	Extract(path string, date time.Time) ([]models.ReportRow, error)
}

// QuotesSource and CompaniesSource are the two paginated feeds.
type QuotesSource interface {
	FetchAll(ctx context.Context) ([]models.QuoteRow, error)
}

type CompaniesSource interface {
	FetchAll(ctx context.Context) ([]models.CompanyRecord, error)
}

// SnapshotSource provides the index-level statistics record.
type SnapshotSource interface {
	Fetch(ctx context.Context, runDate time.Time) (*models.MarketSnapshot, error)
}

// Options are the per-run parameters.
type Options struct {
	Date         time.Time
	SkipDownload bool // reuse an existing artifact in the download dir
	DryRun       bool // skip persistence
}

// StageOutcome records one stage's result for the run report.
type StageOutcome struct {
	Name   string
	OK     bool
	Detail string
}

// RunReport is the orchestrator's structured result: per-stage outcomes
// plus the merge and upsert accounting.
type RunReport struct {
	OK          bool
	Stages      []StageOutcome
	MergeStats  services.MergeStats
	UpsertStats storage.UpsertStats
	Records     int
}

func (r *RunReport) add(name string, ok bool, format string, args ...any) {
	r.Stages = append(r.Stages, StageOutcome{Name: name, OK: ok, Detail: fmt.Sprintf(format, args...)})
}

// Pipeline sequences acquisition, extraction, the feed fetches,
// reconciliation and persistence for one business date.
type Pipeline struct {
	cfg       *config.Config
	logger    *utils.Logger
	acquirer  Acquirer
	extractor Extractor
	quotes    QuotesSource
	companies CompaniesSource
	snapshot  SnapshotSource
	merger    *services.Merger
	sink      storage.RecordSink
	audit     storage.RowAuditWriter

	pollInterval time.Duration
}

// New wires a Pipeline from its collaborators. audit may be nil.
func New(cfg *config.Config, logger *utils.Logger, acquirer Acquirer, extractor Extractor,
	quotes QuotesSource, companies CompaniesSource, snapshot SnapshotSource,
	merger *services.Merger, sink storage.RecordSink, audit storage.RowAuditWriter) *Pipeline {

	return &Pipeline{
		cfg:          cfg,
		logger:       logger,
		acquirer:     acquirer,
		extractor:    extractor,
		quotes:       quotes,
		companies:    companies,
		snapshot:     snapshot,
		merger:       merger,
		sink:         sink,
		audit:        audit,
		pollInterval: discoverInterval,
	}
}

// Run executes the full pipeline for opts.Date. The download directory is
// scoped to this run: created on start, purged on success. Failure to
// discover a report artifact within the wait budget is the only condition
// that halts the run before any data is produced; feed and persistence
// failures degrade and are recorded in the report instead.
func (p *Pipeline) Run(ctx context.Context, opts Options) *RunReport {
	report := &RunReport{}
	dateStr := opts.Date.Format(PortalDateFormat)
	p.logger.Info("[pipeline] Starting run for date: %s", dateStr)

	dir, created, err := p.downloadDir()
	if err != nil {
		report.add("setup", false, "download dir: %v", err)
		return report
	}

	// Step 1: drive the portal session (optional).
	if opts.SkipDownload {
		report.add("acquire", true, "skipped, reusing artifact in %s", dir)
	} else {
		path, err := p.acquirer.Acquire(ctx, dateStr, dir)
		if err != nil {
			// Not yet fatal: discovery below decides whether a usable
			// artifact exists anyway.
			p.logger.Warn("[pipeline] Acquisition reported failure: %v", err)
			report.add("acquire", false, "%v", err)
		} else {
			report.add("acquire", true, "artifact at %s", path)
		}
	}

	// Step 2: discover the artifact within the wait budget.
	budget := time.Duration(p.cfg.DownloadWaitSec) * time.Second
	artifact, err := portal.WaitForArtifact(ctx, dir, budget, p.pollInterval)
	if err != nil {
		report.add("discover", false, "%v", err)
		p.logger.Error("[pipeline] No report artifact found: %v", err)
		return report
	}
	report.add("discover", true, "found %s", artifact)

	// Step 3: extract the table. Structurally empty documents are fatal.
	rows, err := p.extractor.Extract(artifact, opts.Date)
	if err != nil {
		report.add("extract", false, "%v", err)
		p.logger.Error("[pipeline] Extraction failed: %v", err)
		return report
	}
	report.add("extract", true, "%d rows", len(rows))

	if p.audit != nil {
		if err := p.audit.WriteRows(rows); err != nil {
			p.logger.Warn("[pipeline] Audit CSV write failed: %v", err)
		}
	}

	// Step 4: the two feeds are independent of each other and of the
	// extraction; fetch them concurrently. Reconciliation must not start
	// until both have completed or definitively failed.
	var (
		quoteRows   []models.QuoteRow
		companyRows []models.CompanyRecord
		quotesErr   error
		companyErr  error
	)

	pool := utils.NewWorkerPool(2, 0)
	pool.Submit(func() { quoteRows, quotesErr = p.quotes.FetchAll(ctx) })
	pool.Submit(func() { companyRows, companyErr = p.companies.FetchAll(ctx) })
	pool.Wait()

	report.add("quotes", quotesErr == nil, "%d records%s", len(quoteRows), errSuffix(quotesErr))
	report.add("companies", companyErr == nil, "%d records%s", len(companyRows), errSuffix(companyErr))

	// Step 5: reconcile. Feed failures degrade to nil right-hand columns.
	records, stats := p.merger.Merge(rows, quoteRows, companyRows)
	report.MergeStats = stats
	report.Records = len(records)
	report.add("merge", true, "%d → %d (specific: %d, pattern: %d)",
		stats.Initial, stats.Final, stats.ExcludedSpecific, stats.ExcludedPattern)

	// Step 6: market snapshot, non-fatal.
	snap, snapErr := p.snapshot.Fetch(ctx, opts.Date)
	report.add("snapshot", snapErr == nil, "%s", detailOrErr(snapErr, "fetched"))

	// Step 7: persist. Non-duplicate errors fail the stage, never the run.
	if opts.DryRun {
		report.add("persist", true, "dry run, skipped")
	} else {
		upsert, err := p.sink.UpsertRecords(records)
		report.UpsertStats = upsert
		if err != nil {
			p.logger.Error("[pipeline] Record upsert failed: %v", err)
			report.add("persist", false, "%v", err)
		} else {
			report.add("persist", true, "%d inserted, %d duplicates, %d errors",
				upsert.Inserted, upsert.Duplicates, upsert.Errors)
		}

		if snap != nil {
			if err := p.sink.UpsertSnapshot(snap); err != nil {
				p.logger.Error("[pipeline] Snapshot upsert failed: %v", err)
				report.add("persist-snapshot", false, "%v", err)
			} else {
				report.add("persist-snapshot", true, "stored")
			}
		}
	}

	report.OK = true
	p.purge(dir, created)
	p.logger.Info("[pipeline] Run completed for %s", dateStr)
	return report
}

// downloadDir resolves the run-scoped download directory. With no
// configured override a fresh temp dir is created and owned by this run.
func (p *Pipeline) downloadDir() (string, bool, error) {
	if p.cfg.DownloadDir != "" {
		if err := os.MkdirAll(p.cfg.DownloadDir, 0755); err != nil {
			return "", false, err
		}
		return p.cfg.DownloadDir, false, nil
	}
	dir, err := os.MkdirTemp("", "ngx-report-*")
	if err != nil {
		return "", false, err
	}
	return dir, true, nil
}

// purge clears the download directory after a successful run. A temp dir
// created by this run is removed entirely; a configured dir only has its
// files deleted.
func (p *Pipeline) purge(dir string, created bool) {
	if created {
		if err := os.RemoveAll(dir); err != nil {
			p.logger.Warn("[pipeline] Could not remove download dir %s: %v", dir, err)
		}
		return
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		p.logger.Warn("[pipeline] Could not read download dir for cleanup: %v", err)
		return
	}
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err == nil {
			removed++
		}
	}
	p.logger.Info("[pipeline] Cleanup removed %d files from %s", removed, dir)
}

func errSuffix(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf(" (degraded: %v)", err)
}

func detailOrErr(err error, ok string) string {
	if err == nil {
		return ok
	}
	return err.Error()
}
