package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/edgecli/hostsentinel/internal/config"
	"github.com/edgecli/hostsentinel/internal/sysinfo"
)

var (
	// Version is set at build time
	Version = "dev"
	// Commit is set at build time
	Commit = "none"
)

// newProvider is swapped out in tests
var newProvider = func() sysinfo.Provider {
	return sysinfo.NewHostProvider()
}

// NewRootCmd builds the command tree. The root command itself runs the monitor.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "hostsentinel",
		Short: "hostsentinel - host resource threshold monitor",
		Long: `hostsentinel samples processor load, memory, filesystem usage and the
number of running processes on independent intervals, and records a
warning to the alert log and standard output whenever a reading exceeds
its threshold.

Configuration is layered: built-in defaults, then the YAML file given by
--config (or ~/.hostsentinel/config.yaml), then HOSTSENTINEL_* environment
variables, then flags.

Use "hostsentinel [command] --help" for more information about a command.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runMonitor,
	}

	addConfigFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newCheckCmd())
	rootCmd.AddCommand(newDebugCmd())
	return rootCmd
}

// Execute runs the root command
func Execute() error {
	return NewRootCmd().ExecuteContext(context.Background())
}

func addConfigFlags(fs *pflag.FlagSet) {
	def := config.Default()

	fs.String("config", "", "Config file (default: ~/.hostsentinel/config.yaml)")

	fs.Duration("cpu-interval", def.CPU.Interval, "Interval between CPU usage checks")
	fs.Duration("cpu-window", 0, "CPU measurement window (default: the CPU interval)")
	fs.Duration("memory-interval", def.Memory.Interval, "Interval between memory usage checks")
	fs.Duration("disk-interval", def.Disk.Interval, "Interval between disk usage checks")
	fs.Duration("process-interval", def.Process.Interval, "Interval between running process checks")

	fs.Float64("cpu-threshold", def.CPU.Threshold, "CPU usage percentage that triggers a warning")
	fs.Float64("memory-threshold", def.Memory.Threshold, "Memory usage percentage that triggers a warning")
	fs.Float64("disk-threshold", def.Disk.Threshold, "Disk usage percentage that triggers a warning")
	fs.Float64("process-threshold", def.Process.Threshold, "Running process count that triggers a warning")

	fs.StringSlice("ignore", def.IgnoreList, "Mount point substrings to skip for disk usage checks")
	fs.String("log-file", def.LogFile, "Alert log file")
	fs.String("log-level", def.LogLevel, "Operational log level (debug, info, warn, error)")
	fs.String("metrics-addr", "", "Serve Prometheus metrics on this address (disabled when empty)")
	fs.Bool("no-color", false, "Disable colored console output")
}

// applyFlags copies every explicitly set flag onto cfg
func applyFlags(fs *pflag.FlagSet, cfg *config.Config) error {
	durations := map[string]*time.Duration{
		"cpu-interval":     &cfg.CPU.Interval,
		"cpu-window":       &cfg.CPU.Window,
		"memory-interval":  &cfg.Memory.Interval,
		"disk-interval":    &cfg.Disk.Interval,
		"process-interval": &cfg.Process.Interval,
	}
	for name, dst := range durations {
		if !fs.Changed(name) {
			continue
		}
		v, err := fs.GetDuration(name)
		if err != nil {
			return fmt.Errorf("flag --%s: %w", name, err)
		}
		*dst = v
	}

	thresholds := map[string]*float64{
		"cpu-threshold":     &cfg.CPU.Threshold,
		"memory-threshold":  &cfg.Memory.Threshold,
		"disk-threshold":    &cfg.Disk.Threshold,
		"process-threshold": &cfg.Process.Threshold,
	}
	for name, dst := range thresholds {
		if !fs.Changed(name) {
			continue
		}
		v, err := fs.GetFloat64(name)
		if err != nil {
			return fmt.Errorf("flag --%s: %w", name, err)
		}
		*dst = v
	}

	strs := map[string]*string{
		"log-file":     &cfg.LogFile,
		"log-level":    &cfg.LogLevel,
		"metrics-addr": &cfg.MetricsAddr,
	}
	for name, dst := range strs {
		if !fs.Changed(name) {
			continue
		}
		v, err := fs.GetString(name)
		if err != nil {
			return fmt.Errorf("flag --%s: %w", name, err)
		}
		*dst = v
	}

	if fs.Changed("ignore") {
		v, err := fs.GetStringSlice("ignore")
		if err != nil {
			return fmt.Errorf("flag --ignore: %w", err)
		}
		cfg.IgnoreList = v
	}
	if fs.Changed("no-color") {
		v, err := fs.GetBool("no-color")
		if err != nil {
			return fmt.Errorf("flag --no-color: %w", err)
		}
		cfg.NoColor = v
	}
	return nil
}

// resolveConfig loads, overrides and validates the configuration
func resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := applyFlags(cmd.Flags(), cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			info, err := newProvider().HostInfo(cmd.Context())

			fmt.Fprintf(out, "hostsentinel\n")
			fmt.Fprintf(out, "  Version:  %s\n", Version)
			fmt.Fprintf(out, "  Commit:   %s\n", Commit)
			if err == nil {
				fmt.Fprintf(out, "  Platform: %s\n", info)
			}
		},
	}
}
