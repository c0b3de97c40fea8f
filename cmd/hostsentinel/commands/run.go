package commands

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/edgecli/hostsentinel/internal/alert"
	"github.com/edgecli/hostsentinel/internal/config"
	"github.com/edgecli/hostsentinel/internal/logging"
	"github.com/edgecli/hostsentinel/internal/metrics"
	"github.com/edgecli/hostsentinel/internal/monitor"
	"github.com/edgecli/hostsentinel/internal/ui"
)

// runMonitor starts all samplers and blocks until SIGINT/SIGTERM
func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.LogLevel, cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}
	defer log.Sync()
	log = log.With(zap.String("run_id", uuid.New().String()))

	recorder := metrics.NewRecorder()
	out := cmd.OutOrStdout()

	sink, err := alert.OpenLogSink(cfg.LogFile, out,
		alert.WithLogger(log),
		alert.WithStyler(consoleStyler(out, cfg.NoColor)),
		alert.WithFailureCounter(recorder),
	)
	if err != nil {
		return err
	}
	defer func() {
		if err := sink.Close(); err != nil {
			log.Warn("failed to close alert log", zap.Error(err))
		}
	}()

	sup, err := monitor.Build(cfg, newProvider(), sink,
		monitor.WithLogger(log),
		monitor.WithRecorder(recorder),
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	if cfg.MetricsAddr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := recorder.Serve(ctx, cfg.MetricsAddr, log); err != nil {
				log.Error("metrics server failed", zap.Error(err))
			}
		}()
	}

	log.Info("monitoring started",
		zap.Duration("cpu_interval", cfg.CPU.Interval),
		zap.Duration("memory_interval", cfg.Memory.Interval),
		zap.Duration("disk_interval", cfg.Disk.Interval),
		zap.Duration("process_interval", cfg.Process.Interval),
		zap.Strings("ignore_list", cfg.IgnoreList),
		zap.String("log_file", cfg.LogFile))

	err = sup.Run(ctx)
	stop()
	wg.Wait()

	log.Info("monitoring stopped")
	return err
}

func consoleStyler(w io.Writer, noColor bool) ui.Styler {
	if f, ok := w.(*os.File); ok {
		return ui.NewStyler(f, noColor)
	}
	return ui.Plain()
}
