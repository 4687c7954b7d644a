package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/opendate-cli/internal/batch"
	"github.com/sells-group/opendate-cli/internal/config"
	"github.com/sells-group/opendate-cli/internal/export"
	"github.com/sells-group/opendate-cli/internal/model"
	"github.com/sells-group/opendate-cli/internal/store"
	"github.com/sells-group/opendate-cli/internal/table"
)

var (
	resolveInput         string
	resolveSheet         string
	resolveOutput        string
	resolveFormat        string
	resolvePriority      string
	resolveConcurrency   int
	resolveCheckpoint    string
	resolveNoCheckpoints bool
	resolveResume        bool
	resolveNoResume      bool
	resolveAudit         bool
	resolveMetrics       string
	resolveDisabled      = map[string]*bool{}
	resolvePaths         = map[string]*string{}
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve opening dates for every entity in an input file",
	Long: `Reads POIs or properties from a CSV or XLSX file and attaches the first
available opening date from the configured sources, in priority order.

Examples:
  # Default priority, sources from config.yaml
  opendate resolve --input pois.csv --output pois_dated.csv

  # Skip the knowledge graph and use a local cadastral extract
  opendate resolve --input pois.csv --output out.xlsx --format xlsx \
    --no-knowledge-graph --cadastral-age ages.csv

  # Start over instead of resuming an interrupted run
  opendate resolve --input pois.csv --output out.csv --no-resume`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		applyResolveFlags(cmd, cfg)
		return runResolve(ctx, cfg)
	},
}

func runResolve(ctx context.Context, c *config.Config) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if resolveInput == "" {
		return eris.New("resolve: --input is required")
	}
	format, err := outputFormat(resolveFormat, resolveOutput)
	if err != nil {
		return err
	}

	f := newFetcher(c)
	in, err := table.Load(ctx, f, resolveInput, resolveSheet)
	if err != nil {
		return eris.Wrap(err, "resolve: load input")
	}
	cols, report, err := batch.Validate(in, nil)
	if err != nil {
		return eris.Wrap(err, "resolve: validate input")
	}
	zap.L().Info("input validated",
		zap.Int("rows", report.Rows),
		zap.Int("with_name", report.WithName),
		zap.Int("with_coordinates", report.WithCoordinates),
		zap.Int("with_reference", report.WithReference),
		zap.Int("unusable", report.Unusable),
	)
	entities := batch.EntitiesFrom(in, cols)

	order, err := priorityOrder(c, resolvePriority)
	if err != nil {
		return err
	}
	disabled := make(map[string]bool)
	for name, v := range resolveDisabled {
		disabled[name] = *v
	}
	env, err := initEnv(ctx, c, order, disabled)
	if err != nil {
		return err
	}

	var auditSinks export.Multi
	var st store.Store
	if format == "store" || resolveAudit {
		st, err = initStore(ctx, c)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		auditSinks = append(auditSinks, export.StoreSink{Store: st})
	}

	// With a store open, checkpoints live next to the audit rows.
	var cp batch.Checkpointer
	switch {
	case !c.Batch.Checkpoints:
	case st != nil:
		cp = batch.StoreCheckpointer{Store: st, Key: "resolve:" + resolveInput}
	default:
		cp = batch.FileCheckpointer{Path: c.Batch.CheckpointPath}
	}
	runner := batch.NewRunner(env.Engine, cp, batch.Options{
		CheckpointInterval: c.Batch.CheckpointInterval,
		Concurrency:        c.Batch.Concurrency,
		Resume:             c.Batch.Resume,
		OnChunk: func(done, total int) {
			zap.L().Info("progress", zap.Int("done", done), zap.Int("total", total))
		},
	})

	res, err := runner.Run(ctx, entities)
	if err != nil {
		return eris.Wrap(err, "resolve: run")
	}
	res.Metrics.Degraded = mergeDegraded(res.Metrics.Degraded, env.Disabled)

	run := export.Run{RunID: res.RunID, Columns: in.Columns, Entities: entities, Results: res.Results}
	sinks := auditSinks
	switch format {
	case "csv":
		sinks = append(sinks, export.CSVSink{Path: resolveOutput})
	case "xlsx":
		sinks = append(sinks, export.XLSXSink{Path: resolveOutput})
	}
	// Output is written even when ctx was cancelled after the run finished.
	if err := sinks.Write(context.WithoutCancel(ctx), run); err != nil {
		return eris.Wrap(err, "resolve: write output")
	}

	if resolveMetrics != "" {
		if err := writeJSON(resolveMetrics, res.Metrics); err != nil {
			return err
		}
	}
	zap.L().Info("resolve complete",
		zap.String("run_id", res.RunID),
		zap.String("output", resolveOutput),
		zap.Int("total", res.Metrics.Total),
		zap.Int("resolved", res.Metrics.Resolved),
		zap.Float64("coverage", res.Metrics.Coverage),
		zap.Any("by_source", res.Metrics.BySource),
		zap.Strings("degraded", res.Metrics.Degraded),
	)
	return nil
}

// outputFormat resolves --format, inferring it from the output extension.
func outputFormat(format, output string) (string, error) {
	if format == "" {
		switch strings.ToLower(filepath.Ext(output)) {
		case ".xlsx":
			format = "xlsx"
		default:
			format = "csv"
		}
	}
	switch format {
	case "csv", "xlsx":
		if output == "" {
			return "", eris.Errorf("resolve: --output is required for %s output", format)
		}
	case "store":
	default:
		return "", eris.Errorf("resolve: unknown format %q (csv, xlsx, store)", format)
	}
	return format, nil
}

// applyResolveFlags overlays explicitly set flags on the loaded config.
func applyResolveFlags(cmd *cobra.Command, c *config.Config) {
	fl := cmd.Flags()
	if fl.Changed("concurrency") {
		c.Batch.Concurrency = resolveConcurrency
	}
	if fl.Changed("checkpoint") {
		c.Batch.CheckpointPath = resolveCheckpoint
	}
	if resolveNoCheckpoints {
		c.Batch.Checkpoints = false
	}
	if fl.Changed("resume") {
		c.Batch.Resume = resolveResume
	}
	if resolveNoResume {
		c.Batch.Resume = false
	}
	for name, p := range resolvePaths {
		if *p != "" {
			sc := c.Sources.ByName(name)
			sc.Path = *p
			sc.Enabled = true
		}
	}
}

func mergeDegraded(degraded, disabled []string) []string {
	out := append([]string(nil), degraded...)
	for _, d := range disabled {
		if !contains(out, d) {
			out = append(out, d)
		}
	}
	return out
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return eris.Wrap(err, "marshal json")
	}
	return eris.Wrapf(os.WriteFile(path, data, 0o644), "write %s", path)
}

func flagName(source string) string {
	return strings.ReplaceAll(source, "_", "-")
}

func init() {
	fl := resolveCmd.Flags()
	fl.StringVar(&resolveInput, "input", "", "input CSV or XLSX (path or http/ftp URL)")
	fl.StringVar(&resolveSheet, "sheet", "", "worksheet name for XLSX input")
	fl.StringVar(&resolveOutput, "output", "", "output file")
	fl.StringVar(&resolveFormat, "format", "", "output format: csv, xlsx or store (default from extension)")
	fl.StringVar(&resolvePriority, "priority", "", "comma-separated source priority order")
	fl.IntVar(&resolveConcurrency, "concurrency", 4, "entities resolved in parallel")
	fl.StringVar(&resolveCheckpoint, "checkpoint", "", "checkpoint file (default from config)")
	fl.BoolVar(&resolveNoCheckpoints, "no-checkpoints", false, "disable checkpointing")
	fl.BoolVar(&resolveResume, "resume", true, "resume from a matching checkpoint")
	fl.BoolVar(&resolveNoResume, "no-resume", false, "ignore any existing checkpoint")
	fl.BoolVar(&resolveAudit, "audit", false, "also write per-source attempts to the store")
	fl.StringVar(&resolveMetrics, "metrics", "", "write run metrics as JSON to this file")

	for _, name := range model.DefaultPriority {
		resolveDisabled[name] = fl.Bool("no-"+flagName(name), false, "skip the "+name+" source")
		if name != model.SourceKnowledgeGraph {
			resolvePaths[name] = fl.String(flagName(name), "", name+" data file (path or URL)")
		}
	}
	rootCmd.AddCommand(resolveCmd)
}
