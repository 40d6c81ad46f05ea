package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/barnettlynn/scanbridge/internal/config"
	"github.com/barnettlynn/scanbridge/pkg/metrics"
)

var (
	flagVerbose     bool
	flagIP          string
	flagTimeout     time.Duration
	flagIdentity    string
	flagConfig      string
	flagMetricsAddr string

	defaults *config.Config
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "scanbridge",
		Short:         "Drive a network-attached document scanner",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			invocationID := uuid.New()
			setupLogging(flagVerbose, invocationID)
			if flagMetricsAddr != "" {
				go func() {
					if err := metrics.ListenAndServe(flagMetricsAddr); err != nil {
						slog.Warn("metrics server stopped", "error", err)
					}
				}()
			}
			if flagConfig == "" {
				return nil
			}
			cfg, err := config.Load(flagConfig)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			defaults = cfg
			applyDefaults(cmd)
			setupLogging(flagVerbose, invocationID)
			return nil
		},
	}

	root.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "enable debug logging")
	root.PersistentFlags().StringVar(&flagIP, "ip", "", "appliance IP address (skip broadcast discovery)")
	root.PersistentFlags().DurationVar(&flagTimeout, "timeout", 10*time.Second, "discovery and button-wait timeout")
	root.PersistentFlags().StringVar(&flagIdentity, "identity", "", "pairing identity (overrides a derived or configured one)")
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "path to a defaults file")
	root.PersistentFlags().StringVar(&flagMetricsAddr, "metrics-addr", "", "if set, serve Prometheus metrics on this address (e.g. :9090)")

	root.AddCommand(newDiscoverCmd())
	root.AddCommand(newPairCmd())
	root.AddCommand(newScanCmd())
	return root
}

// applyDefaults fills unset global flags from the loaded defaults file.
// A flag the user actually typed on the command line always wins.
func applyDefaults(cmd *cobra.Command) {
	if defaults == nil {
		return
	}
	changed := cmd.Flags().Changed
	if !changed("verbose") && defaults.Runtime.Verbose != nil {
		flagVerbose = *defaults.Runtime.Verbose
	}
	if !changed("ip") && defaults.Appliance.IP != "" {
		flagIP = defaults.Appliance.IP
	}
	if !changed("identity") && defaults.Appliance.Identity != "" {
		flagIdentity = defaults.Appliance.Identity
	}
	if !changed("timeout") && defaults.Appliance.TimeoutSeconds != nil {
		flagTimeout = time.Duration(*defaults.Appliance.TimeoutSeconds) * time.Second
	}
}

// setupLogging installs the default text handler and tags every log
// line with a per-invocation identifier, so output from discovery, the
// heartbeat goroutine, and a long scan run can be correlated back to
// one CLI invocation.
func setupLogging(verbose bool, invocationID uuid.UUID) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler).With("invocation_id", invocationID.String()))
}

// targetIP parses flagIP, returning nil (broadcast discovery) if unset.
func targetIP() (net.IP, error) {
	if flagIP == "" {
		return nil, nil
	}
	ip := net.ParseIP(flagIP)
	if ip == nil {
		return nil, fmt.Errorf("--ip %q is not a valid IP address", flagIP)
	}
	return ip, nil
}

// withSignalCancel returns a context cancelled on SIGINT/SIGTERM, along
// with a function to stop watching for them.
func withSignalCancel(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}
