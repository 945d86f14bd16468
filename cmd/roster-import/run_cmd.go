// cmd/roster-import/run_cmd.go
package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/classbridge/roster-import/pkg/importer"
	"github.com/classbridge/roster-import/pkg/model"
	"github.com/classbridge/roster-import/pkg/source"
)

type runOptions struct {
	Source    string
	Format    string
	Sheet     string
	Table     string
	Only      []string
	Skip      []string
	DryRun    bool
	Limit     int
	ChunkSize int
	FailFast  bool
	Timeout   time.Duration
	Actor     string
	ActorRole string
}

func newRunCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run --source <path|table>",
		Short: "Run one import batch and print the summary",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(opts.Source) == "" {
				return errors.New("--source is required")
			}

			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			src, err := buildSource(cmd, app, opts)
			if err != nil {
				return err
			}

			importOpts := importer.Options{
				DryRun:    opts.DryRun,
				Only:      opts.Only,
				Skip:      opts.Skip,
				Limit:     opts.Limit,
				ChunkSize: opts.ChunkSize,
				FailFast:  opts.FailFast,
				Timeout:   opts.Timeout,
			}
			if importOpts.ChunkSize == 0 {
				importOpts.ChunkSize = app.cfg.ChunkSize
			}
			if !cmd.Flags().Changed("timeout") {
				importOpts.Timeout = app.cfg.ImportTimeout
			}
			if opts.Actor != "" {
				importOpts.Actor = model.ActorContext{UserID: opts.Actor, Role: opts.ActorRole}
			}

			summary, err := app.importer.Run(cmd.Context(), src, importOpts)
			if summary != nil {
				printSummary(cmd, summary)
			}
			return err
		},
	}

	cmd.Flags().StringVar(&opts.Source, "source", "", "source file path, or table name with --format snowflake")
	cmd.Flags().StringVar(&opts.Format, "format", "", "source format: csv, xlsx, or snowflake (default: by file extension)")
	cmd.Flags().StringVar(&opts.Sheet, "sheet", "", "worksheet name for xlsx sources (default: first sheet)")
	cmd.Flags().StringSliceVar(&opts.Only, "only", nil, "run only the named steps (sessions, people, flags)")
	cmd.Flags().StringSliceVar(&opts.Skip, "skip", nil, "skip the named steps")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "report the summary without writing anything")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "stop after this many rows (0 = unlimited)")
	cmd.Flags().IntVar(&opts.ChunkSize, "chunk-size", 0, "rows per cancellation checkpoint (default: from config)")
	cmd.Flags().BoolVar(&opts.FailFast, "fail-fast", false, "abort the batch on the first row error")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "batch deadline (0 disables)")
	cmd.Flags().StringVar(&opts.Actor, "actor", "", "actor identity recorded on audit entries (default: system)")
	cmd.Flags().StringVar(&opts.ActorRole, "actor-role", "", "actor role recorded on audit entries")
	return cmd
}

func buildSource(cmd *cobra.Command, app *app, opts runOptions) (source.Source, error) {
	format := opts.Format
	if format == "" {
		switch strings.ToLower(filepath.Ext(opts.Source)) {
		case ".xlsx", ".xlsm":
			format = "xlsx"
		default:
			format = "csv"
		}
	}

	switch format {
	case "csv":
		return source.NewCSVSource(opts.Source), nil
	case "xlsx":
		src := source.NewXLSXSource(opts.Source)
		if opts.Sheet != "" {
			src = src.WithSheet(opts.Sheet)
		}
		return src, nil
	case "snowflake":
		sf, err := app.openSnowflake(cmd.Context())
		if err != nil {
			return nil, err
		}
		query := "SELECT * FROM " + opts.Source
		return source.NewSnowflakeSource(sf.DB(), opts.Source, query), nil
	default:
		return nil, fmt.Errorf("unknown source format %q", format)
	}
}

func printSummary(cmd *cobra.Command, s *importer.Summary) {
	mode := "import"
	if s.DryRun {
		mode = "dry run"
	}
	cmd.Printf("Batch %s (%s of %s) finished in %s\n", s.BatchID, mode, s.Source, s.Elapsed.Round(time.Millisecond))
	cmd.Printf("  rows read:  %d\n", s.RowsRead)
	cmd.Printf("  created:    %d\n", s.Created)
	cmd.Printf("  updated:    %d\n", s.Updated)
	cmd.Printf("  unchanged:  %d\n", s.Unchanged)
	cmd.Printf("  unmatched:  %d\n", s.Unmatched)
	if s.Skipped > 0 {
		cmd.Printf("  skipped:    %d\n", s.Skipped)
	}
	cmd.Printf("  errored:    %d\n", s.Errored)
	cmd.Printf("  flags:      +%d / -%d\n", s.FlagsCreated, s.FlagsResolved)
	if s.AuditFailures > 0 {
		cmd.Printf("  audit write failures: %d\n", s.AuditFailures)
	}

	if len(s.ErrorCounts) > 0 {
		categories := make([]importer.ErrorCategory, 0, len(s.ErrorCounts))
		for category := range s.ErrorCounts {
			categories = append(categories, category)
		}
		sort.Slice(categories, func(i, j int) bool { return categories[i] < categories[j] })

		cmd.Println("Errors by category:")
		for _, category := range categories {
			cmd.Printf("  %-14s %d\n", category.String()+":", s.ErrorCounts[category])
			for _, sample := range s.ErrorSamples[category] {
				cmd.Printf("    %s\n", sample.String())
			}
		}
	}
}
