package commands

import (
	"errors"
	"fmt"
	"sync"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/edgecli/hostsentinel/internal/alert"
	"github.com/edgecli/hostsentinel/internal/monitor"
	"github.com/edgecli/hostsentinel/internal/ui"
)

// ErrThresholdExceeded is returned by check when any reading is over its threshold
var ErrThresholdExceeded = errors.New("one or more readings exceed their threshold")

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Measure every metric once and print the results",
		Long: `Take one reading of every metric using the resolved configuration and
print it next to its threshold. Nothing is written to the alert log.

Exits non-zero when any reading exceeds its threshold, which makes it
usable from cron or a health check script.`,
		Args: cobra.NoArgs,
		RunE: runCheck,
	}
}

type checkResult struct {
	kind      alert.Kind
	threshold float64
	readings  []monitor.Reading
	err       error
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	discard := alert.SinkFunc(func(alert.Event) {})
	sup, err := monitor.Build(cfg, newProvider(), discard)
	if err != nil {
		return err
	}

	spinner := ui.NewSpinner(cmd.ErrOrStderr(), consoleStyler(cmd.ErrOrStderr(), cfg.NoColor),
		fmt.Sprintf("Sampling CPU over %s", cfg.CPU.EffectiveWindow()))
	spinner.Start()

	// the CPU probe blocks for its window, so measure everything at once
	samplers := sup.Samplers()
	results := make([]checkResult, len(samplers))
	var wg sync.WaitGroup
	for i, s := range samplers {
		wg.Add(1)
		go func(i int, s *monitor.Sampler) {
			defer wg.Done()
			readings, err := s.Measure(cmd.Context())
			results[i] = checkResult{
				kind:      s.Kind(),
				threshold: s.Threshold(),
				readings:  readings,
				err:       err,
			}
		}(i, s)
	}
	wg.Wait()
	spinner.Stop()

	out := cmd.OutOrStdout()
	styler := consoleStyler(out, cfg.NoColor)
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tLABEL\tVALUE\tTHRESHOLD\tSTATUS")

	exceeded := false
	for _, r := range results {
		for _, rd := range r.readings {
			over := alert.Exceeds(rd.Value, r.threshold)
			exceeded = exceeded || over
			label := rd.Label
			if label == "" {
				label = "-"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
				r.kind, label, formatValue(r.kind, rd.Value), formatValue(r.kind, r.threshold), styler.Status(over))
		}
		if r.err != nil {
			fmt.Fprintf(tw, "%s\t-\t-\t%s\tERROR: %v\n", r.kind, formatValue(r.kind, r.threshold), r.err)
		}
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}

	if exceeded {
		return ErrThresholdExceeded
	}
	return nil
}

func formatValue(kind alert.Kind, v float64) string {
	if kind == alert.KindProcessCount {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.2f%%", v)
}
