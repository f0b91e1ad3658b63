// reconcile-links runs the read-only reconciliation batch: it re-derives the
// best match for every linked source record and reports the links where the
// matcher now disagrees with what is stored. Nothing is written to the
// database; each proposed correction goes through the normal relink endpoint
// if a reviewer agrees with it.
//
// The report carries no timestamps, so two runs over identical data produce
// byte-identical artifacts. That makes reports diffable across runs.
//
// Usage: go run ./scripts/reconcile-links [-margin 0.10] [-out report.yaml]
//
// Database connection: config.yaml plus the standard PG* environment
// variables, same as the server.
//
// Flags:
//
//	-margin  How much a re-derived match must beat the stored confidence by
//	         before a correction is proposed (default: from config)
//	-out     Report destination file; "-" writes to stdout (default: "-")
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/atelierops/pipeline-engine/pkg/config"
	"github.com/atelierops/pipeline-engine/pkg/database"
	"github.com/atelierops/pipeline-engine/pkg/repositories"
	"github.com/atelierops/pipeline-engine/pkg/services"
)

func main() {
	margin := flag.Float64("margin", 0, "Correction margin; 0 uses the configured value")
	out := flag.String("out", "-", `Report destination; "-" for stdout`)
	flag.Parse()

	if err := run(*margin, *out); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(margin float64, out string) error {
	cfg, err := config.Load("reconcile-links")
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if margin <= 0 {
		margin = cfg.Matching.ReconciliationMargin
	}

	logConfig := zap.NewDevelopmentConfig()
	logConfig.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	logger, err := logConfig.Build()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.ConnectionString(),
		MaxConnections: 5,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	svc := services.NewReconciliationService(
		db,
		repositories.NewSourceRecordRepository(),
		repositories.NewEntityRepository(),
		repositories.NewAliasRepository(),
		repositories.NewLinkRepository(),
		cfg.Matching.CodePrefixes,
		logger,
	)

	report, err := svc.BuildReport(ctx, margin)
	if err != nil {
		return fmt.Errorf("failed to build report: %w", err)
	}

	encoded, err := yaml.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to serialize report: %w", err)
	}

	if out == "-" {
		_, err = os.Stdout.Write(encoded)
		return err
	}
	if err := os.WriteFile(out, encoded, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	fmt.Printf("Scanned %d linked records, %d corrections proposed -> %s\n",
		report.RecordsScanned, len(report.Corrections), out)
	return nil
}
