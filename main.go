package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"ngx-pipeline/config"
	"ngx-pipeline/extract"
	"ngx-pipeline/fetch"
	"ngx-pipeline/pipeline"
	"ngx-pipeline/scraper/portal"
	"ngx-pipeline/services"
	"ngx-pipeline/storage"
	"ngx-pipeline/utils"
)

func main() {
	dateFlag := flag.String("date", "", "business date as DD/MM/YYYY (default: today)")
	skipDownload := flag.Bool("skip-download", false, "reuse an existing report artifact instead of driving the portal session")
	dryRun := flag.Bool("dry-run", false, "skip persistence")
	flag.Parse()

	logger := utils.NewLogger()
	cfg := config.Load()

	date, err := resolveDate(*dateFlag)
	if err != nil {
		logger.Error("Invalid -date %q, want DD/MM/YYYY: %v", *dateFlag, err)
		os.Exit(2)
	}

	logger.Info("=== Market Data Pipeline starting ===")
	logger.Info("Config — date: %s | page size: %d | rate: %dms | skip-download: %t | dry-run: %t",
		date.Format(pipeline.PortalDateFormat), cfg.PageSize, cfg.RateLimitMs, *skipDownload, *dryRun)

	var audit storage.RowAuditWriter
	csvWriter, err := storage.NewCSVWriter(cfg.CSVOutputPath)
	if err != nil {
		logger.Warn("Audit CSV unavailable: %v", err)
	} else {
		audit = csvWriter
		defer csvWriter.Close()
	}

	sink := storage.NewPostgresWriter(cfg.DSN(), logger)
	defer sink.Close()

	client := fetch.NewClient(30 * time.Second)

	p := pipeline.New(cfg, logger,
		portal.New(cfg, logger),
		extract.New(logger),
		fetch.NewQuotesFetcher(client, cfg, logger),
		fetch.NewCompaniesFetcher(client, cfg, logger),
		fetch.NewSnapshotFetcher(client, cfg, logger),
		services.NewMerger(logger),
		sink,
		audit,
	)

	report := p.Run(context.Background(), pipeline.Options{
		Date:         date,
		SkipDownload: *skipDownload,
		DryRun:       *dryRun,
	})

	for _, s := range report.Stages {
		if s.OK {
			logger.Info("stage %-16s ok — %s", s.Name, s.Detail)
		} else {
			logger.Warn("stage %-16s FAILED — %s", s.Name, s.Detail)
		}
	}

	if !report.OK {
		logger.Error("Pipeline failed")
		os.Exit(1)
	}

	fmt.Printf("  Done. %d records reconciled (%d inserted, %d duplicates) for %s\n\n",
		report.Records, report.UpsertStats.Inserted, report.UpsertStats.Duplicates,
		date.Format(pipeline.PortalDateFormat))
}

// resolveDate parses the -date flag, defaulting to today.
func resolveDate(raw string) (time.Time, error) {
	if raw == "" {
		now := time.Now()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	return time.Parse(pipeline.PortalDateFormat, raw)
}
