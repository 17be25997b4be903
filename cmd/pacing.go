package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/socialpilot/internal/antidetect"
	"github.com/xkilldash9x/socialpilot/internal/service"
)

// pacingFlags override the configured anti-detection profile for one command.
type pacingFlags struct {
	batchLimit     int
	minDelay       time.Duration
	maxDelay       time.Duration
	actionsPerHour int
}

func (f *pacingFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.batchLimit, "batch-limit", 0, "maximum actions in this run (0 keeps anti_detection.batch_limit)")
	cmd.Flags().DurationVar(&f.minDelay, "min-delay", 0, "lower bound of the delay between actions")
	cmd.Flags().DurationVar(&f.maxDelay, "max-delay", 0, "upper bound of the delay between actions")
	cmd.Flags().IntVar(&f.actionsPerHour, "actions-per-hour", 0, "hourly action cap for this run")
}

func (f *pacingFlags) override() antidetect.Config {
	return antidetect.Config{
		BatchLimit:     f.batchLimit,
		MinDelay:       f.minDelay,
		MaxDelay:       f.maxDelay,
		ActionsPerHour: f.actionsPerHour,
	}
}

// options returns the run options for the flags that were set.
func (f *pacingFlags) options() []service.RunOption {
	o := f.override()
	if o == (antidetect.Config{}) {
		return nil
	}
	return []service.RunOption{service.WithAntiDetection(o)}
}
