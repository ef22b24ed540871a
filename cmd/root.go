package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"hut-availability/config"
	"hut-availability/models"
	"hut-availability/utils"
)

// NewRootCmd builds the hutprobe command tree
func NewRootCmd() *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:           "hutprobe",
		Short:         "Scrapes room availability of mountain huts from hut-reservation.org",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error (default $LOG_LEVEL or info)")

	env := func() (*config.Config, *utils.Logger) {
		cfg := config.Load()
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}
		return cfg, utils.NewLogger(cfg.LogLevel)
	}

	root.AddCommand(newRunCmd(env))
	root.AddCommand(newProbeCmd(env))
	return root
}

// Execute runs the CLI until done or interrupted
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

type envFunc func() (*config.Config, *utils.Logger)

// parseStart reads a dd.mm.yyyy flag, empty meaning today
func parseStart(s string) (time.Time, error) {
	if s == "" {
		return models.Day(time.Now()), nil
	}
	d, err := models.ParseDate(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid start date %q, want dd.mm.yyyy", s)
	}
	return d, nil
}
