// Package main is the entry point for pmload, a load generator that drives
// an in-process engine with producers, consumers and periodic mode switches.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pmengine/internal/config"
	"pmengine/internal/engine"
	"pmengine/internal/loadgen"
)

type options struct {
	configPath     string
	producers      int
	consumers      int
	messages       int
	switchInterval time.Duration
	rate           float64
	reportInterval time.Duration
	timeout        time.Duration
	capacity       int
	format         string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "pmload",
		Short: "Run a load test against the priority message engine",
		Long: `Run producers and consumers against an in-process engine while the
ordering mode is toggled at a fixed interval, then print a report.

Flags override values from the loadgen section of the config file.

Example:
  pmload --producers 100 --consumers 30 --messages 50000
  pmload --config config/config.yaml --switch-interval 2s --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.configPath, "config", "", "path to configuration file")
	cmd.Flags().IntVar(&opts.producers, "producers", 0, "number of producers")
	cmd.Flags().IntVar(&opts.consumers, "consumers", 0, "number of consumers")
	cmd.Flags().IntVar(&opts.messages, "messages", 0, "messages per producer")
	cmd.Flags().DurationVar(&opts.switchInterval, "switch-interval", 0, "mode toggle period")
	cmd.Flags().Float64Var(&opts.rate, "rate", 0, "messages per second per producer (0 = unlimited)")
	cmd.Flags().DurationVar(&opts.reportInterval, "report-interval", 0, "progress report period")
	cmd.Flags().DurationVar(&opts.timeout, "get-timeout", 0, "engine default get timeout")
	cmd.Flags().IntVar(&opts.capacity, "capacity", 0, "engine capacity (0 = unbounded)")
	cmd.Flags().StringVar(&opts.format, "format", "text", "report format (json|text)")

	return cmd
}

func run(cmd *cobra.Command, opts *options) error {
	if opts.format != "text" && opts.format != "json" {
		return fmt.Errorf("invalid format %q: must be json or text", opts.format)
	}

	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	applyFlags(cmd, opts, cfg)

	logger := cfg.Logger.NewLogger()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	eng := engine.New(logger,
		engine.WithDefaultTimeout(cfg.Engine.DefaultTimeout),
		engine.WithCapacity(cfg.Engine.Capacity),
		engine.WithHighPriorityMode(cfg.Engine.HighPriority),
	)

	out := cmd.OutOrStdout()
	runCfg := loadgen.FromConfig(&cfg.Loadgen)
	total := runCfg.Total()
	if opts.format == "text" {
		runCfg.OnProgress = func(p loadgen.Progress) {
			fmt.Fprintf(out, "generated/consumed/total/high-priority: %d/%d/%d/%t\n",
				p.Produced, p.Consumed, total, p.HighPriority)
		}
	}

	report, err := loadgen.Run(ctx, eng, runCfg, logger)
	if report != nil {
		if werr := writeReport(out, opts.format, report); werr != nil {
			return werr
		}
	}
	return err
}

// applyFlags copies explicitly set flags over the loaded config.
func applyFlags(cmd *cobra.Command, opts *options, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("producers") {
		cfg.Loadgen.Producers = opts.producers
	}
	if flags.Changed("consumers") {
		cfg.Loadgen.Consumers = opts.consumers
	}
	if flags.Changed("messages") {
		cfg.Loadgen.MessagesPerProducer = opts.messages
	}
	if flags.Changed("switch-interval") {
		cfg.Loadgen.SwitchInterval = opts.switchInterval
	}
	if flags.Changed("rate") {
		cfg.Loadgen.ProducerRate = opts.rate
	}
	if flags.Changed("report-interval") {
		cfg.Loadgen.ReportInterval = opts.reportInterval
	}
	if flags.Changed("get-timeout") {
		cfg.Engine.DefaultTimeout = opts.timeout
	}
	if flags.Changed("capacity") {
		cfg.Engine.Capacity = opts.capacity
	}
}

func writeReport(w io.Writer, format string, report *loadgen.Report) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Fprintf(w, "total time: %s\n", report.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "produced: %d\n", report.Produced)
	fmt.Fprintf(w, "consumed: %d\n", report.Consumed)
	fmt.Fprintf(w, "mode switches: %d\n", report.Switches)
	fmt.Fprintf(w, "throughput: %.0f msg/s\n", report.Throughput())
	return nil
}
