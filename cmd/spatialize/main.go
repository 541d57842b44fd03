package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"spatialization-module/internal/adapters/secondary/boundaries"
	"spatialization-module/internal/adapters/secondary/geotiff"
	"spatialization-module/internal/adapters/secondary/gonumsolver"
	"spatialization-module/internal/adapters/secondary/postgis"
	"spatialization-module/internal/adapters/secondary/projection"
	"spatialization-module/internal/config"
	"spatialization-module/internal/core/domain"
	"spatialization-module/internal/core/services"
	"spatialization-module/internal/logger"
	"spatialization-module/internal/tracing"

	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

const (
	exitOK     = 0
	exitFailed = 1
	exitUsage  = 2
)

const usageText = `usage:
  spatialize run [flags] REQUEST   mask rasters into the region tree described by REQUEST
  spatialize fit [flags] INPUT     split a parent logistic curve into weighted subregions

REQUEST and INPUT are YAML (.yaml, .yml) or JSON files.`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, usageText)
		return exitUsage
	}
	switch args[0] {
	case "run":
		return runPipeline(ctx, args[1:], stdout, stderr)
	case "fit":
		return runFit(ctx, args[1:], stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usageText)
		return exitOK
	default:
		fmt.Fprintf(stderr, "unknown command %q\n%s\n", args[0], usageText)
		return exitUsage
	}
}

func addLogFlags(fs *pflag.FlagSet) {
	fs.String("log-level", "info", "log level: debug, info, warn or error")
	fs.String("log-format", "json", "log format: json or text")
}

func addOutputFlags(fs *pflag.FlagSet) {
	fs.StringP("output", "o", "", "write the result to this file instead of stdout")
	fs.StringP("report-format", "f", "json", "result format: json or yaml")
}

func newRunFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("spatialize run", pflag.ContinueOnError)
	fs.Bool("overwrite", false, "rewrite outputs that already exist")
	fs.String("concurrency", string(domain.ConcurrencySequential), "unit scheduling: sequential or bounded-pool")
	fs.Int("workers", 4, "worker count of the bounded pool")
	fs.String("summarize", "", "add the region trees and per-region sums of this asset to the report")
	fs.String("flat-subdir", domain.DefaultFlatSubdir, "output directory of flat jobs, relative to each asset")
	fs.String("mode", "", "job mode: tree or flat (overrides the request)")
	addLogFlags(fs)
	addOutputFlags(fs)
	return fs
}

func newFitFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("spatialize fit", pflag.ContinueOnError)
	fs.String("tolerance", "", "relative band in percent around each observation, instead of exact equality")
	fs.Int("max-iterations", 0, "solver outer iteration limit (0 keeps the default)")
	addLogFlags(fs)
	addOutputFlags(fs)
	return fs
}

// parseArgs parses fs and returns the single positional file. ok is false
// when the caller should exit with code.
func parseArgs(fs *pflag.FlagSet, args []string, stderr io.Writer) (file string, code int, ok bool) {
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return "", exitOK, false
		}
		return "", exitUsage, false
	}
	if fs.NArg() != 1 {
		fmt.Fprintf(stderr, "%s takes exactly one file argument\n%s\n", fs.Name(), usageText)
		return "", exitUsage, false
	}
	return fs.Arg(0), exitOK, true
}

func runPipeline(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := newRunFlags()
	path, code, ok := parseArgs(fs, args, stderr)
	if !ok {
		return code
	}
	mode, _ := fs.GetString("mode")
	summarize, _ := fs.GetString("summarize")
	output, _ := fs.GetString("output")
	format, _ := fs.GetString("report-format")
	if err := checkFormat(format); err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}

	cfg, err := config.LoadWithFlags(fs)
	if err != nil {
		fmt.Fprintf(stderr, "load config: %v\n", err)
		return exitFailed
	}
	logger.Init(cfg.Logger)
	defer startTracing(ctx, cfg.Tracing)()

	var req domain.PipelineRequest
	if err := decodeFile(path, &req); err != nil {
		log.WithError(err).Error("Failed to read run request")
		return exitFailed
	}
	if mode != "" {
		req.Mode = domain.JobMode(mode)
	}
	if req.Mode == "" {
		req.Mode = domain.JobModeTree
	}
	if req.FlatSubdir == "" {
		req.FlatSubdir = cfg.Pipeline.FlatSubdir
	}
	req.Options = resolveOptions(fs, cfg, req.Options)

	var pool *pgxpool.Pool
	if cfg.Database.Enabled {
		pool, err = postgis.NewPool(ctx, cfg.Database)
		if err != nil {
			log.WithError(err).Error("Boundary database unavailable")
			return exitFailed
		}
		defer pool.Close()
	}

	osfs := afero.NewOsFs()
	store := geotiff.NewStore(osfs)
	masker := services.NewRasterMaskService(osfs, store, projection.NewReprojector(), nil)
	pipeline := services.NewPipelineService(osfs, boundaries.NewResolver(osfs, pool), masker, nil)

	report, err := pipeline.Run(ctx, req)
	if err != nil {
		log.WithError(err).Error("Run aborted")
		return exitFailed
	}

	result := runOutput{RunReport: *report}
	if summarize != "" {
		result.Regions = report.Roots
		result.Summaries, err = services.NewRasterStatsService(store).SummarizeRun(ctx, report, summarize)
		if err != nil {
			log.WithError(err).WithField("asset", summarize).Warn("Some regions could not be summarized")
		}
	}

	if err := writeResult(output, format, stdout, result); err != nil {
		log.WithError(err).Error("Failed to write report")
		return exitFailed
	}

	counts := report.Counts()
	entry := log.WithFields(log.Fields{
		"run_id":  report.ID,
		"success": counts[domain.OutcomeSuccess],
		"cached":  counts[domain.OutcomeSkippedCached],
		"failed":  counts[domain.OutcomeFailed],
	})
	if report.Failed() {
		entry.Error("Run finished with failed units")
		return exitFailed
	}
	entry.Info("Run finished")
	return exitOK
}

// resolveOptions layers run options: configuration, then the request file's
// options block, then pipeline flags set on the command line.
func resolveOptions(fs *pflag.FlagSet, cfg *config.Config, fromFile domain.RunOptions) domain.RunOptions {
	configured := cfg.Pipeline.RunOptions()
	if fromFile.ConcurrencyMode == "" {
		return configured
	}

	out := fromFile
	if out.WorkerCount == 0 {
		out.WorkerCount = configured.WorkerCount
	}
	if fs.Changed("overwrite") {
		out.Overwrite = configured.Overwrite
	}
	if fs.Changed("concurrency") {
		out.ConcurrencyMode = configured.ConcurrencyMode
	}
	if fs.Changed("workers") {
		out.WorkerCount = configured.WorkerCount
	}
	if out.TolerancePercentage == nil {
		out.TolerancePercentage = configured.TolerancePercentage
	}
	return out
}

// runOutput is what the run command writes. Regions and Summaries are filled
// only when --summarize names an asset.
type runOutput struct {
	domain.RunReport `yaml:",inline"`
	Regions          []*domain.RegionNode `json:"regions,omitempty" yaml:"regions,omitempty"`
	Summaries        []domain.NodeSummary `json:"summaries,omitempty" yaml:"summaries,omitempty"`
}

// startTracing installs the configured exporter and returns a function that
// flushes it. Tracing failures never fail a command.
func startTracing(ctx context.Context, cfg config.TracingConfig) func() {
	shutdown, err := tracing.Setup(ctx, cfg)
	if err != nil {
		log.WithError(err).Warn("Tracing disabled")
	}
	return func() {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := shutdown(flushCtx); err != nil {
			log.WithError(err).Warn("Failed to flush traces")
		}
	}
}

func runFit(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := newFitFlags()
	path, code, ok := parseArgs(fs, args, stderr)
	if !ok {
		return code
	}
	maxIter, _ := fs.GetInt("max-iterations")
	output, _ := fs.GetString("output")
	format, _ := fs.GetString("report-format")
	if err := checkFormat(format); err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}

	cfg, err := config.LoadWithFlags(fs)
	if err != nil {
		fmt.Fprintf(stderr, "load config: %v\n", err)
		return exitFailed
	}
	logger.Init(cfg.Logger)
	defer startTracing(ctx, cfg.Tracing)()

	var in domain.RegionalFitInput
	if err := decodeFile(path, &in); err != nil {
		log.WithError(err).Error("Failed to read fit input")
		return exitFailed
	}
	if in.TolerancePercentage == nil || fs.Changed("tolerance") {
		in.TolerancePercentage = cfg.Pipeline.TolerancePercentage
	}
	if maxIter > 0 {
		in.MaxIterations = maxIter
	}

	res, err := services.NewRegionalFitService(gonumsolver.New(), nil).Fit(ctx, in)
	if err != nil {
		log.WithError(err).Error("Fit failed")
		return exitFailed
	}
	if err := writeResult(output, format, stdout, res); err != nil {
		log.WithError(err).Error("Failed to write fit result")
		return exitFailed
	}
	if err := res.Err(); err != nil {
		log.WithError(err).Error("Fit did not converge")
		return exitFailed
	}
	log.WithFields(log.Fields{"name": res.Name, "rmse": res.Stats.RMSE, "r_squared": res.Stats.RSquared}).Info("Fit converged")
	return exitOK
}

func checkFormat(format string) error {
	switch format {
	case "json", "yaml":
		return nil
	}
	return fmt.Errorf("unknown report format %q, want json or yaml", format)
}

// decodeFile rejects unknown keys so that typos in a request do not pass
// silently.
func decodeFile(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(b))
		dec.KnownFields(true)
		if err := dec.Decode(v); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.DisallowUnknownFields()
		if err := dec.Decode(v); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
	}
	return nil
}

func writeResult(path, format string, stdout io.Writer, v any) error {
	var buf bytes.Buffer
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		if err := enc.Close(); err != nil {
			return err
		}
	default:
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return err
		}
	}

	if path == "" {
		_, err := stdout.Write(buf.Bytes())
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}
