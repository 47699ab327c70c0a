package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"bronze/internal/config"
	"bronze/internal/metrics"
	"bronze/internal/metrics/datadog"
	"bronze/internal/metrics/prompush"
	"bronze/internal/stats"
)

// verbosity gates infof/debugf; warnings always print.
var verbosity int

func infof(format string, a ...any) {
	if verbosity >= 1 {
		log.Printf(format, a...)
	}
}

func debugf(format string, a ...any) {
	if verbosity >= 2 {
		log.Printf(format, a...)
	}
}

// main is the entry point for the bronze binary. It resolves the run
// configuration from flags (with environment fallbacks for tuning knobs),
// optionally initializes a metrics backend, and executes the streaming run.
func main() {
	cfg := config.Default()

	var (
		metricsBackendFlg string
		pushGatewayURLFlg string
		dogstatsdAddrFlg  string
	)

	flag.StringVar(&cfg.URL, "url", "", "URL of the compressed CSV dump (required)")
	flag.StringVar(&cfg.OutDir, "out-dir", "", "shard output directory, e.g. data/bronze/opinions/2025-09-04 (required)")
	flag.Int64Var(&cfg.RowsPerShard, "rows-per-shard", cfg.RowsPerShard, "shard rollover threshold in rows")
	flag.IntVar(&cfg.BlockMB, "block-mb", cfg.BlockMB, "CSV read block size per batch (MiB)")
	flag.IntVar(&cfg.Verbosity, "v", 0, "verbosity: 0=warnings, 1=info, 2=debug")
	flag.IntVar(&cfg.SummaryEvery, "summary-every", cfg.SummaryEvery, "emit a full summary every N batches")
	flag.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "connection setup timeout")
	flag.BoolVar(&cfg.Overlap, "overlap", false, "overlap decode with shard writing")
	flag.StringVar(&cfg.Job, "job", cfg.Job, "job label for metrics")
	flag.StringVar(&metricsBackendFlg, "metrics-backend", "none", "metrics backend (none, pushgateway, dogstatsd)")
	flag.StringVar(&pushGatewayURLFlg, "pushgateway-url", "", "Pushgateway base URL (overrides env PUSHGATEWAY_URL)")
	flag.StringVar(&dogstatsdAddrFlg, "dogstatsd-addr", "", "DogStatsD address (overrides env DOGSTATSD_ADDR)")
	flag.Parse()

	issues := config.Validate(cfg)
	for _, iss := range issues {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasError(issues) {
		os.Exit(2)
	}
	verbosity = cfg.Verbosity

	initMetrics(metricsBackendFlg, pushGatewayURLFlg, dogstatsdAddrFlg, cfg.Job)
	defer func() {
		if err := metrics.Flush(); err != nil {
			log.Printf("metrics: flush error: %v", err)
		}
	}()

	infof("bronze: url=%s out=%s rows_per_shard=%d block=%dMiB",
		cfg.URL, cfg.OutDir, cfg.RowsPerShard, cfg.BlockMB)

	run := stats.NewRun()
	start := time.Now()
	err := runBronze(context.Background(), cfg, run)
	run.LogSummary()

	if err != nil {
		log.Printf("bronze: %v", err)
		os.Exit(1)
	}
	infof("completed in %s", time.Since(start).Truncate(time.Millisecond))
}

// initMetrics installs the selected metrics backend: flag → env → default.
// Failures degrade to the nop backend with a warning; metrics never block a run.
func initMetrics(backendName, gwURL, ddAddr, job string) {
	if backendName == "" {
		backendName = os.Getenv("METRICS_BACKEND")
	}

	switch backendName {
	case "pushgateway":
		if gwURL == "" {
			gwURL = os.Getenv("PUSHGATEWAY_URL")
		}
		if gwURL == "" {
			gwURL = "http://localhost:9091"
		}
		b, err := prompush.NewBackend(job, gwURL)
		if err != nil {
			log.Printf("metrics: failed to init prom push backend: %v; using nop", err)
			return
		}
		infof("metrics: backend=pushgateway url=%s job=%s", gwURL, job)
		metrics.SetBackend(b)

	case "dogstatsd":
		if ddAddr == "" {
			ddAddr = os.Getenv("DOGSTATSD_ADDR")
		}
		if ddAddr == "" {
			ddAddr = "127.0.0.1:8125"
		}
		b, err := datadog.NewBackend(datadog.Config{
			Addr:       ddAddr,
			Namespace:  "bronze.",
			GlobalTags: []string{"job:" + job},
		})
		if err != nil {
			log.Printf("metrics: failed to init dogstatsd backend: %v; using nop", err)
			return
		}
		infof("metrics: backend=dogstatsd addr=%s job=%s", ddAddr, job)
		metrics.SetBackend(b)

	case "", "none":
		debugf("metrics: disabled (backend=%q)", backendName)

	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", backendName)
	}
}
