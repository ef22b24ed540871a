package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"hut-availability/config"
	"hut-availability/models"
	"hut-availability/scraper/hutreservation"
	"hut-availability/services"
	"hut-availability/storage"
	"hut-availability/utils"
)

func newRunCmd(env envFunc) *cobra.Command {
	var (
		from, to, days, workers int
		hutsFile, startFlag     string
		noDB, showBrowser       bool
	)

	c := &cobra.Command{
		Use:   "run",
		Short: "Probe every hut and store availability in PostgreSQL and CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger := env()
			flags := cmd.Flags()
			if flags.Changed("from") {
				cfg.HutIDFrom = from
			}
			if flags.Changed("to") {
				cfg.HutIDTo = to
			}
			if flags.Changed("days") {
				cfg.DaysToProcess = days
			}
			if flags.Changed("workers") {
				cfg.MaxConcurrency = workers
			}
			if hutsFile != "" {
				cfg.HutsFile = hutsFile
			}
			if showBrowser {
				cfg.Headless = false
			}
			start, err := parseStart(startFlag)
			if err != nil {
				return err
			}
			return runAll(cmd, cfg, logger, start, !noDB)
		},
	}

	c.Flags().IntVar(&from, "from", 0, "first hut id (default $HUT_ID_FROM or 1)")
	c.Flags().IntVar(&to, "to", 0, "last hut id (default $HUT_ID_TO or 672)")
	c.Flags().StringVar(&hutsFile, "huts-file", "", "JSON5 hut list, replaces the id range")
	c.Flags().IntVar(&days, "days", 0, "days to probe from the start date (default $DAYS_TO_PROCESS or 248)")
	c.Flags().IntVar(&workers, "workers", 0, "concurrent probes (default $MAX_CONCURRENCY or 3)")
	c.Flags().StringVar(&startFlag, "start", "", "first date as dd.mm.yyyy (default today)")
	c.Flags().BoolVar(&noDB, "no-db", false, "skip PostgreSQL, write CSV only")
	c.Flags().BoolVar(&showBrowser, "show-browser", false, "run Chrome with a visible window")
	return c
}

func runAll(cmd *cobra.Command, cfg *config.Config, logger *utils.Logger, start time.Time, useDB bool) error {
	ctx := cmd.Context()
	started := time.Now()
	runID := uuid.NewString()

	// ================== Bootstrap ====================
	logger.Info("Hut availability run %s", runID)
	logger.Info("Concurrency: %d | Rate delay: %dms | Save retries: %d",
		cfg.MaxConcurrency, cfg.RateLimitDelay, cfg.MaxRetries)

	huts, err := loadHuts(cfg)
	if err != nil {
		return err
	}
	end := models.AddDays(start, cfg.DaysToProcess)
	logger.Info("%d huts, %s to %s", len(huts), models.FormatDate(start), models.FormatDate(end))

	// =================== Sinks ========================================
	matrix := services.NewMatrixBuilder(logger)
	sink := storage.MultiSink{matrix}

	if useDB {
		pgWriter, err := storage.NewPostgresWriter(ctx, cfg.DatabaseURL, runID, logger)
		if err != nil {
			return fmt.Errorf("cannot connect to PostgreSQL (use --no-db to skip): %w", err)
		}
		if err := pgWriter.CreateTable(ctx); err != nil {
			pgWriter.Close()
			return err
		}
		sink = append(sink, pgWriter)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			logger.Error("Closing sinks: %v", err)
		}
	}()

	// =============== Probing ===================================
	browser, err := hutreservation.NewBrowser(cfg.BrowserOptions(), logger)
	if err != nil {
		return err
	}
	defer browser.Close()

	probe := hutreservation.NewProbe(cfg.ProbeConfig(), logger)
	runner, err := services.NewProbeRunner(services.RunnerConfig{
		RunID:              runID,
		Workers:            cfg.MaxConcurrency,
		RateLimitDelayMs:   cfg.RateLimitDelay,
		HutTimeout:         cfg.HutTimeout,
		MaxSessionFailures: cfg.MaxSessionFailures,
		RecoverDelay:       cfg.RecoverDelay,
		SaveRetries:        cfg.MaxRetries,
		SaveBackoff:        time.Second,
		NotInSystemPath:    cfg.NotInSystemPath,
		SkipNotInSystem:    cfg.SkipNotInSystem,
	}, probe, browser, sink, logger)
	if err != nil {
		return err
	}

	results, runErr := runner.Run(ctx, huts, start, end)
	if runErr != nil {
		logger.Error("Run stopped early: %v", runErr)
	}

	// ========= CSV: availability matrices ===========================
	if err := storage.NewCSVWriter(cfg.CSVFilePath, logger).WriteMatrix(matrix.PlacesMatrix(start, end)); err != nil {
		logger.Error("Failed to write CSV: %v", err)
	}
	if err := storage.NewCSVWriter(cfg.CSVRawFilePath, logger).WriteMatrix(matrix.TextMatrix(start, end)); err != nil {
		logger.Error("Failed to write CSV: %v", err)
	}

	// ==== Insights ============================
	summary := services.NewInsightService(logger).Generate(runID, started, results)
	services.PrintRunReport(os.Stdout, summary)

	fmt.Fprintln(os.Stdout, " Done! Matrix →", cfg.CSVFilePath)
	if useDB {
		fmt.Fprintln(os.Stdout, " Records stored in PostgreSQL table: hut_availability")
	}
	return runErr
}

func loadHuts(cfg *config.Config) ([]models.Hut, error) {
	if cfg.HutsFile != "" {
		return storage.LoadHuts(cfg.HutsFile)
	}
	return storage.HutRange(cfg.HutIDFrom, cfg.HutIDTo)
}
