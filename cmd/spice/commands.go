package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/edp1096/circuit-engine/internal/waveplot"
	"github.com/edp1096/circuit-engine/pkg/analysis"
	"github.com/edp1096/circuit-engine/pkg/config"
	"github.com/edp1096/circuit-engine/pkg/coordinator"
	"github.com/edp1096/circuit-engine/pkg/logging"
	"github.com/edp1096/circuit-engine/pkg/netlist"
)

var (
	configPath string
	logLevel   string
	jsonLogs   bool
	plotPath   string
	withTrace  bool
	withStats  bool

	rootCmd = &cobra.Command{
		Use:           "spice",
		Short:         "Circuit simulation engine",
		Long:          "spice parses SPICE-style netlists and runs DC, AC, transient, parametric and Monte Carlo analyses.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	runCmd = &cobra.Command{
		Use:   "run <netlist>",
		Short: "Run every analysis card of a netlist and print the results",
		Args:  cobra.ExactArgs(1),
		RunE:  runNetlist,
	}

	parseCmd = &cobra.Command{
		Use:   "parse <netlist>",
		Short: "Parse a netlist and list its nodes, components and analyses",
		Args:  cobra.ExactArgs(1),
		RunE:  parseNetlist,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json", false, "write log records as JSON")

	runCmd.Flags().StringVar(&plotPath, "plot", "", "write AC and transient results as an image (png, svg, pdf)")
	runCmd.Flags().BoolVar(&withTrace, "trace", false, "print OpenTelemetry spans to stderr")
	runCmd.Flags().BoolVar(&withStats, "metrics", false, "print engine metrics after the run")

	rootCmd.AddCommand(runCmd, parseCmd)
}

// loadConfig applies the command line overrides on top of config.Load.
func loadConfig() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if jsonLogs {
		cfg.Logging.JSON = true
	}
	if err := cfg.Validate(); err != nil {
		return cfg, nil, fmt.Errorf("invalid config: %w", err)
	}
	log := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.Logging.Level),
		JSON:    cfg.Logging.JSON,
		Service: "spice",
	})
	return cfg, log, nil
}

func runNetlist(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	if withTrace {
		shutdown, err := setupTracing(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				log.Warn("trace shutdown failed", slog.String("error", err.Error()))
			}
		}()
	}

	nl, err := netlist.ParseFile(args[0])
	if err != nil {
		return err
	}
	if len(nl.Analyses) == 0 {
		return errors.New("netlist has no analysis cards")
	}
	log.Info("netlist parsed", slog.String("title", nl.Title), slog.Int("components", nl.Circuit.Len()), slog.Int("analyses", len(nl.Analyses)))

	coord := coordinator.New(cfg, coordinator.WithLogger(log))
	rep := newReporter(cmd.OutOrStdout(), nl)
	rep.header()

	plotted := 0
	for i, spec := range nl.Analyses {
		resp, err := coord.Run(ctx, coordinator.Request{Circuit: nl.Circuit, Spec: spec})
		if err != nil {
			return fmt.Errorf("%s analysis: %w", spec.Kind, err)
		}
		rep.result(resp)

		if plotPath == "" {
			continue
		}
		chart, ok := chartOf(nl, resp.Result, rep.node)
		if !ok {
			continue
		}
		path := plotName(plotPath, i, len(nl.Analyses))
		if err := chart.Save(path); err != nil {
			return err
		}
		plotted++
		log.Info("plot written", slog.String("path", path), slog.String("kind", spec.Kind.String()))
	}
	if plotPath != "" && plotted == 0 {
		log.Warn("no ac or transient result to plot")
	}

	if withStats {
		return writeMetrics(cmd.OutOrStdout(), nil)
	}
	return nil
}

func parseNetlist(cmd *cobra.Command, args []string) error {
	if _, _, err := loadConfig(); err != nil {
		return err
	}
	nl, err := netlist.ParseFile(args[0])
	if err != nil {
		return err
	}
	newReporter(cmd.OutOrStdout(), nl).summary()
	return nil
}

func chartOf(nl *netlist.Netlist, res *analysis.Result, name waveplot.NodeName) (waveplot.Chart, bool) {
	switch {
	case res.Transient != nil:
		return waveplot.Transient(nl.Title, res.Transient, name), true
	case res.AC != nil:
		return waveplot.AC(nl.Title, res.AC, name), true
	default:
		return waveplot.Chart{}, false
	}
}
