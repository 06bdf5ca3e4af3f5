package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/zoobzio/relayz"
	"github.com/zoobzio/relayz/internal/builtin"
	"github.com/zoobzio/relayz/internal/config"
	"github.com/zoobzio/relayz/internal/logging"
	"github.com/zoobzio/relayz/metrics"
)

// hookGrace bounds how long a run waits for asynchronous event handlers
// before printing metrics.
const hookGrace = time.Second

type runOptions struct {
	configPath string
	method     string
	stages     []string
	metrics    bool
	recover    bool
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run [payload]",
		Short: "Run a payload through the configured stages",
		Long: `Run a payload through the configured stages and print the result.

The payload argument overrides pipeline.payload from the configuration, and
each --stage replaces the configured stage list.

Examples:
  relayz run "  hello " --stage trim --stage suffix:! --stage upper
  relayz run hello --stage prefix:a --stage prefix:b --via after
  relayz run --config pipeline.yaml --metrics`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			opts.apply(cmd, cfg, args)

			logger, err := logging.New(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return err
			}

			_, err = execute(cmd.Context(), cmd.OutOrStdout(), cfg, logger)
			return err
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "configuration file (default relayz.yaml if present)")
	flags.StringVar(&opts.method, "via", "", "invocation method used on stages")
	flags.StringArrayVarP(&opts.stages, "stage", "s", nil, "stage identifier, repeatable; replaces configured stages")
	flags.BoolVar(&opts.metrics, "metrics", false, "print Prometheus metrics after the run")
	flags.BoolVar(&opts.recover, "recover", false, "convert stage panics into errors")
	return cmd
}

// apply lets flags and arguments override the loaded configuration.
func (o *runOptions) apply(cmd *cobra.Command, cfg *config.Config, args []string) {
	if len(args) == 1 {
		cfg.Pipeline.Payload = args[0]
	}
	if cmd.Flags().Changed("via") {
		cfg.Pipeline.Method = o.method
	}
	if cmd.Flags().Changed("stage") {
		cfg.Pipeline.Stages = o.stages
	}
	if cmd.Flags().Changed("metrics") {
		cfg.Metrics.Enabled = o.metrics
	}
	if cmd.Flags().Changed("recover") {
		cfg.Pipeline.Recover = o.recover
	}
}

// execute builds the pipeline described by cfg over the builtin registry and
// runs it, writing the result to out. With metrics enabled the Prometheus
// exposition follows the result.
func execute(ctx context.Context, out io.Writer, cfg *config.Config, logger *logrus.Logger) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	registry := relayz.NewRegistry()
	if err := builtin.Register(registry, logger); err != nil {
		return "", err
	}

	pipeline := relayz.New[string](cfg.Pipeline.Name, registry).
		Send(cfg.Pipeline.Payload).
		Through(relayz.Refs[string](cfg.Pipeline.Stages...)...).
		Via(cfg.Pipeline.Method)
	if cfg.Pipeline.Recover {
		pipeline.WithRecovery()
	}
	defer pipeline.Close()

	if err := observe(pipeline, logger); err != nil {
		return "", err
	}

	var promRegistry *prometheus.Registry
	var exporter *metrics.Registry
	if cfg.Metrics.Enabled {
		promRegistry = prometheus.NewRegistry()
		exporter = metrics.NewRegistry(promRegistry)
		if err := exporter.Observe(pipeline); err != nil {
			return "", err
		}
		promRegistry.MustRegister(metrics.NewRegistryCollector("builtin", registry))
	}

	logger.WithFields(logrus.Fields{
		"pipeline": cfg.Pipeline.Name,
		"stages":   len(cfg.Pipeline.Stages),
		"method":   cfg.Pipeline.Method,
	}).Debug("running pipeline")

	result, runErr := pipeline.ThenReturn(ctx)
	if runErr == nil {
		fmt.Fprintln(out, result)
	}

	if promRegistry != nil {
		waitForRun(exporter, cfg.Pipeline.Name, hookGrace)
		if err := writeMetrics(out, promRegistry); err != nil {
			return result, errors.Join(runErr, err)
		}
	}
	return result, runErr
}

// observe logs pipeline events.
func observe(pipeline *relayz.Pipeline[string], logger *logrus.Logger) error {
	if err := pipeline.OnStageComplete(func(_ context.Context, e relayz.PipelineEvent) error {
		entry := logger.WithFields(logrus.Fields{
			"run_id":   e.RunID,
			"stage":    e.Stage,
			"index":    e.StageIndex,
			"duration": e.Duration,
		})
		if e.Error != nil {
			entry.WithError(e.Error).Warn("stage failed")
			return nil
		}
		entry.Debug("stage complete")
		return nil
	}); err != nil {
		return err
	}
	return pipeline.OnShortCircuit(func(_ context.Context, e relayz.PipelineEvent) error {
		logger.WithFields(logrus.Fields{
			"run_id": e.RunID,
			"stage":  e.Stage,
			"index":  e.StageIndex,
		}).Info("chain stopped early")
		return nil
	})
}

// waitForRun polls until the exporter has recorded a run of pipeline or
// timeout elapses.
func waitForRun(exporter *metrics.Registry, pipeline string, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for exporter.Runs(pipeline) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
}

func writeMetrics(out io.Writer, registry *prometheus.Registry) error {
	families, err := registry.Gather()
	if err != nil {
		return err
	}
	fmt.Fprintln(out)
	for _, family := range families {
		if _, err := expfmt.MetricFamilyToText(out, family); err != nil {
			return err
		}
	}
	return nil
}
