package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/iota-uz/assetdesk/modules/importer"
	"github.com/iota-uz/assetdesk/modules/importer/domain/backend"
	"github.com/iota-uz/assetdesk/modules/importer/domain/record"
	"github.com/iota-uz/assetdesk/modules/importer/infrastructure/memory"
	"github.com/iota-uz/assetdesk/modules/importer/infrastructure/persistence"
	"github.com/iota-uz/assetdesk/modules/importer/services"
	"github.com/iota-uz/assetdesk/pkg/composables"
	"github.com/iota-uz/assetdesk/pkg/configuration"
	"github.com/iota-uz/assetdesk/pkg/logging"
)

type importOptions struct {
	entity      string
	file        string
	tenantID    uuid.UUID
	apply       bool
	backend     string
	batchSize   int
	concurrency int
	reportPath  string
	errorsXLSX  string
	schemaFile  string
	logLevel    string
}

func newImportCmd() *cobra.Command {
	var opts importOptions
	var tenant string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a CSV or XLSX file (dry-run unless --apply)",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(opts.entity) == "" {
				return withCode(exitUsage, fmt.Errorf("--entity is required"))
			}
			if strings.TrimSpace(opts.file) == "" {
				return withCode(exitUsage, fmt.Errorf("--file is required"))
			}
			id, err := uuid.Parse(strings.TrimSpace(tenant))
			if err != nil {
				return withCode(exitUsage, fmt.Errorf("invalid --tenant: %w", err))
			}
			opts.tenantID = id
			if opts.backend != "db" && opts.backend != "memory" {
				return withCode(exitUsage, fmt.Errorf("unsupported --backend: %s", opts.backend))
			}
			if opts.batchSize < 0 || opts.batchSize > configuration.MaxImportBatchSize {
				return withCode(exitUsage, fmt.Errorf("--batch-size must be between 1 and %d", configuration.MaxImportBatchSize))
			}
			if opts.concurrency < 0 || opts.concurrency > configuration.MaxImportConcurrency {
				return withCode(exitUsage, fmt.Errorf("--concurrency must be between 1 and %d", configuration.MaxImportConcurrency))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.entity, "entity", "", "Entity: employees, assets or sim_cards (required)")
	cmd.Flags().StringVar(&opts.file, "file", "", "Input file, CSV or XLSX (required)")
	cmd.Flags().StringVar(&tenant, "tenant", "", "Tenant UUID (required)")
	cmd.Flags().BoolVar(&opts.apply, "apply", false, "Apply changes (default is dry-run)")
	cmd.Flags().StringVar(&opts.backend, "backend", "db", "Backend: db or memory")
	cmd.Flags().IntVar(&opts.batchSize, "batch-size", 0, "Rows per write batch (default from IMPORT_BATCH_SIZE)")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 0, "Concurrent batches (default from IMPORT_CONCURRENCY)")
	cmd.Flags().StringVar(&opts.reportPath, "report", "", "Write the full report as JSON to this path")
	cmd.Flags().StringVar(&opts.errorsXLSX, "errors-xlsx", "", "Write errors and warnings as XLSX to this path")
	cmd.Flags().StringVar(&opts.schemaFile, "schema-file", "", "YAML file with synonym and required-field overrides")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "warn", "Log level: silent, error, warn, info, debug")
	return cmd
}

type importSummary struct {
	Status            string         `json:"status"`
	RunID             string         `json:"run_id"`
	TenantID          string         `json:"tenant_id"`
	Entity            string         `json:"entity"`
	Backend           string         `json:"backend"`
	Apply             bool           `json:"apply"`
	File              string         `json:"file"`
	Counts            summaryCounts  `json:"counts"`
	MasterDataCreated map[string]int `json:"master_data_created"`
	ReferenceErrors   int            `json:"reference_errors"`
	FileError         string         `json:"file_error,omitempty"`
	Errors            []string       `json:"errors,omitempty"`
	ReportPath        string         `json:"report_path,omitempty"`
	ErrorsXLSXPath    string         `json:"errors_xlsx_path,omitempty"`
	DurationMs        int64          `json:"duration_ms"`
}

type summaryCounts struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Inserted  int `json:"inserted"`
	Updated   int `json:"updated"`
}

// summaryErrorLimit bounds the errors echoed on stdout; --report carries all of them.
const summaryErrorLimit = 20

func runImport(ctx context.Context, out io.Writer, opts importOptions) error {
	registry, err := importer.LoadRegistry(opts.schemaFile)
	if err != nil {
		return withCode(exitUsage, err)
	}
	d, err := registry.Get(opts.entity)
	if err != nil {
		return withCode(exitUsage, err)
	}

	var cfg configuration.ImportOptions
	if err := env.Parse(&cfg); err != nil {
		return withCode(exitUsage, fmt.Errorf("import configuration: %w", err))
	}
	if err := cfg.Validate(); err != nil {
		return withCode(exitUsage, err)
	}

	data, err := os.ReadFile(opts.file)
	if err != nil {
		return withCode(exitUsage, fmt.Errorf("read %s: %w", opts.file, err))
	}

	logger := logging.ConsoleLogger(configuration.ParseLogLevel(opts.logLevel))
	log := logger.WithFields(logrus.Fields{"entity": d.Entity, "tenant_id": opts.tenantID.String()})
	ctx = composables.WithTenantID(ctx, opts.tenantID)
	ctx = composables.WithLogger(ctx, log)

	var b backend.Backend
	switch opts.backend {
	case "memory":
		b = memory.NewStore()
	default:
		pool, err := connectDB(ctx)
		if err != nil {
			return withCode(exitDB, err)
		}
		defer pool.Close()
		ctx = composables.WithPool(ctx, pool)
		pg, err := persistence.NewPostgresBackend(persistence.DefaultMapping())
		if err != nil {
			return withCode(exitUsage, err)
		}
		b = pg
	}

	engine := services.NewEngine(b,
		services.WithLogger(log),
		services.WithDecoder(services.NewDecoder(cfg.MaxFileSize)),
	)
	runOpts := services.OptionsFromConfig(cfg)
	runOpts.DryRun = !opts.apply
	if opts.batchSize > 0 {
		runOpts.BatchSize = opts.batchSize
	}
	if opts.concurrency > 0 {
		runOpts.Concurrency = opts.concurrency
	}
	runOpts.OnProgress = func(p services.Progress) {
		log.WithFields(logrus.Fields{"stage": p.Stage, "percent": p.Percent}).Info("import progress")
	}

	report, runErr := engine.Run(ctx, d, data, runOpts)

	if opts.reportPath != "" {
		if err := writeJSONFile(opts.reportPath, report); err != nil {
			return err
		}
	}
	if opts.errorsXLSX != "" {
		wb, err := services.WriteErrorWorkbook(report)
		if err != nil {
			return withCode(exitDB, fmt.Errorf("errors workbook: %w", err))
		}
		if err := writeFile(opts.errorsXLSX, wb); err != nil {
			return err
		}
	}

	if err := writeJSONLine(out, summarize(report, opts)); err != nil {
		return err
	}

	switch {
	case errors.Is(runErr, services.ErrDecode):
		return withCode(exitValidation, runErr)
	case runErr != nil:
		return runErr
	case opts.apply && len(report.ReferenceErrors) > 0:
		return withCode(exitDBWrite, fmt.Errorf("%d reference values could not be created", len(report.ReferenceErrors)))
	case report.Failed > 0:
		return withCode(exitValidation, fmt.Errorf("%d of %d rows failed", report.Failed, report.Total))
	}
	return nil
}

func summarize(r record.Report, opts importOptions) importSummary {
	status := "dry_run"
	if opts.apply {
		status = "applied"
	}
	if r.Cancelled {
		status = "cancelled"
	}
	errs := r.ErrorLines()
	if len(errs) > summaryErrorLimit {
		errs = errs[:summaryErrorLimit]
	}
	return importSummary{
		Status:   status,
		RunID:    r.RunID.String(),
		TenantID: opts.tenantID.String(),
		Entity:   r.Entity,
		Backend:  opts.backend,
		Apply:    opts.apply,
		File:     opts.file,
		Counts: summaryCounts{
			Total:     r.Total,
			Succeeded: r.Succeeded,
			Failed:    r.Failed,
			Skipped:   r.Skipped,
			Inserted:  r.Inserted,
			Updated:   r.Updated,
		},
		MasterDataCreated: r.MasterDataCreated,
		ReferenceErrors:   len(r.ReferenceErrors),
		FileError:         r.FileError,
		Errors:            errs,
		ReportPath:        opts.reportPath,
		ErrorsXLSXPath:    opts.errorsXLSX,
		DurationMs:        r.Duration().Milliseconds(),
	}
}
