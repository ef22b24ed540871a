package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"hut-availability/models"
	"hut-availability/scraper/hutreservation"
	"hut-availability/services"
)

func newProbeCmd(env envFunc) *cobra.Command {
	var (
		days        int
		startFlag   string
		showBrowser bool
	)

	c := &cobra.Command{
		Use:   "probe HUT_ID",
		Short: "Probe a single hut and print its availability",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid hut id %q", args[0])
			}
			start, err := parseStart(startFlag)
			if err != nil {
				return err
			}

			cfg, logger := env()
			if showBrowser {
				cfg.Headless = false
			}

			browser, err := hutreservation.NewBrowser(cfg.BrowserOptions(), logger)
			if err != nil {
				return err
			}
			defer browser.Close()

			session, err := browser.NewSession(cmd.Context())
			if err != nil {
				return err
			}
			defer session.Close()

			hut := models.Hut{ID: id}
			probe := hutreservation.NewProbe(cfg.ProbeConfig(), logger)
			outcome, err := probe.Run(cmd.Context(), session, hut, start, models.AddDays(start, days))
			if outcome != nil {
				services.PrintOutcome(os.Stdout, hut, outcome)
			}
			return err
		},
	}

	c.Flags().IntVar(&days, "days", 28, "days to probe")
	c.Flags().StringVar(&startFlag, "start", "", "first date as dd.mm.yyyy (default today)")
	c.Flags().BoolVar(&showBrowser, "show-browser", false, "run Chrome with a visible window")
	return c
}
