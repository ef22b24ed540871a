package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"hut-availability/models"
	"hut-availability/scraper/hutreservation"
	"hut-availability/storage"
	"hut-availability/utils"
)

// ErrTooManyFailures trips once the browser failed more often than allowed
var ErrTooManyFailures = errors.New("too many session failures")

// bound on saving one hut's records after the run context is gone
const saveTimeout = 30 * time.Second

// RunnerConfig controls how huts are fanned out over probes
type RunnerConfig struct {
	RunID              string // generated when empty
	Workers            int
	RateLimitDelayMs   int
	HutTimeout         time.Duration
	MaxSessionFailures int
	RecoverDelay       time.Duration
	SaveRetries        int
	SaveBackoff        time.Duration
	NotInSystemPath    string // skip list file, disabled when empty
	SkipNotInSystem    bool
	CheckpointEvery    int // skip list is written every N finished huts
}

// Restarter is implemented by session factories backed by a browser process
// that can die and be replaced. Sessions carry the generation they were
// opened on (hutreservation.Generational).
type Restarter interface {
	Generation() uint64
	Healthy(ctx context.Context) bool
	// Restart replaces the process unless it already moved past generation
	Restart(ctx context.Context, generation uint64) (bool, error)
}

// HutResult is what the runner learned about one hut
type HutResult struct {
	Hut      models.Hut
	Outcome  *models.ProbeOutcome // nil when skipped or no session could be opened
	Skipped  bool
	Err      error // session failure
	SaveErr  error
	Duration time.Duration

	generation uint64 // browser generation the session belonged to
}

// ProbeRunner probes many huts concurrently, one session per probe
type ProbeRunner struct {
	cfg      RunnerConfig
	probe    *hutreservation.Probe
	sessions hutreservation.SessionFactory
	sink     storage.RecordSink
	limiter  *utils.RateLimiter
	logger   *utils.Logger

	notInSystem *utils.HutTracker
	failures    atomic.Int32
	finished    atomic.Int32
	recoverMu   sync.Mutex
	saveMu      sync.Mutex
}

// NewProbeRunner creates a runner and loads the skip list
func NewProbeRunner(cfg RunnerConfig, probe *hutreservation.Probe, sessions hutreservation.SessionFactory, sink storage.RecordSink, logger *utils.Logger) (*ProbeRunner, error) {
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.CheckpointEvery < 1 {
		cfg.CheckpointEvery = 10
	}
	if cfg.SaveRetries < 1 {
		cfg.SaveRetries = 1
	}

	var known []int
	if cfg.NotInSystemPath != "" {
		ids, err := storage.LoadSkipList(cfg.NotInSystemPath)
		if err != nil {
			return nil, err
		}
		known = ids
	}

	return &ProbeRunner{
		cfg:         cfg,
		probe:       probe,
		sessions:    sessions,
		sink:        sink,
		limiter:     utils.NewRateLimiter(cfg.RateLimitDelayMs),
		logger:      logger.With("run", cfg.RunID),
		notInSystem: utils.NewHutTracker(known...),
	}, nil
}

// RunID identifies this run in storage
func (r *ProbeRunner) RunID() string {
	return r.cfg.RunID
}

// NotInSystem returns every hut id known not to be bookable, including earlier runs
func (r *ProbeRunner) NotInSystem() []int {
	return r.notInSystem.IDs()
}

// Run probes every hut over [start, end). Results are aligned with huts;
// huts never started because the run stopped early have a nil Outcome and no error.
// The returned error is ErrTooManyFailures or the context error.
func (r *ProbeRunner) Run(ctx context.Context, huts []models.Hut, start, end time.Time) ([]HutResult, error) {
	results := make([]HutResult, len(huts))
	for i, h := range huts {
		results[i].Hut = h
	}

	r.logger.Info("Probing %d huts from %s to %s with %d workers",
		len(huts), models.FormatDate(start), models.FormatDate(end), r.cfg.Workers)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)

	for i, hut := range huts {
		if r.cfg.SkipNotInSystem && r.notInSystem.Has(hut.ID) {
			r.logger.Debug("Skipping %s, not in system", hut)
			results[i].Skipped = true
			continue
		}
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := r.limiter.Wait(gctx); err != nil {
				return nil
			}
			var err error
			results[i], err = r.runHut(gctx, hut, start, end)
			return err
		})
	}

	err := g.Wait()
	if cerr := r.checkpoint(); cerr != nil {
		r.logger.Error("Failed to save skip list: %v", cerr)
	}
	if err == nil {
		err = ctx.Err()
	}
	return results, err
}

// runHut probes one hut. A hut whose session went down with a browser
// that another worker already restarted is probed once more.
func (r *ProbeRunner) runHut(ctx context.Context, hut models.Hut, start, end time.Time) (HutResult, error) {
	res := r.probeHut(ctx, hut, start, end)
	if res.Err == nil {
		return res, nil
	}
	stale, err := r.recover(ctx, res)
	if err != nil || !stale || ctx.Err() != nil {
		return res, err
	}

	r.logger.Info("Probing %s again on the restarted browser", hut)
	res = r.probeHut(ctx, hut, start, end)
	if res.Err == nil {
		return res, nil
	}
	_, err = r.recover(ctx, res)
	return res, err
}

func (r *ProbeRunner) probeHut(ctx context.Context, hut models.Hut, start, end time.Time) (res HutResult) {
	res.Hut = hut
	began := time.Now()
	defer func() { res.Duration = time.Since(began) }()
	if restarter, ok := r.sessions.(Restarter); ok {
		res.generation = restarter.Generation()
	}

	hutCtx := ctx
	if r.cfg.HutTimeout > 0 {
		var cancel context.CancelFunc
		hutCtx, cancel = context.WithTimeout(ctx, r.cfg.HutTimeout)
		defer cancel()
	}

	session, err := r.sessions.NewSession(hutCtx)
	if err != nil {
		if ctx.Err() == nil {
			res.Err = fmt.Errorf("open session for hut %d: %w", hut.ID, err)
		}
		return res
	}
	if g, ok := session.(hutreservation.Generational); ok {
		res.generation = g.Generation()
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			r.logger.Debug("Closing session of %s: %v", hut, cerr)
		}
	}()

	outcome, err := r.probe.Run(hutCtx, session, hut, start, end)
	res.Outcome, res.Err = outcome, err
	if outcome == nil {
		return res
	}

	switch {
	case outcome.Kind == models.OutcomeNotInSystem:
		if r.notInSystem.Add(hut.ID) {
			r.logger.Info("%s is not in the reservation system", hut)
		}
	case len(outcome.Records) > 0:
		res.SaveErr = r.save(ctx, hut.ID, outcome.Records)
	}

	if n := r.finished.Add(1); int(n)%r.cfg.CheckpointEvery == 0 {
		if err := r.checkpoint(); err != nil {
			r.logger.Error("Failed to save skip list: %v", err)
		}
	}
	r.logger.Info("%s: %s, %d records", hut, outcome.Kind, len(outcome.Records))
	return res
}

// save outlives a cancelled run so partial results still land
func (r *ProbeRunner) save(ctx context.Context, hutID int, records []models.AvailabilityRecord) error {
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()
	err := utils.RetryWithBackoff(saveCtx, r.cfg.SaveRetries, r.cfg.SaveBackoff, func() error {
		return r.sink.SaveRecords(saveCtx, hutID, records)
	}, r.logger)
	if err != nil {
		r.logger.Error("Saving hut %d failed: %v", hutID, err)
	}
	return err
}

// recover handles the session failure of res. Failures of sessions whose
// browser was already replaced are reported as stale and not counted.
// Otherwise the failure counts against the breaker, and Chrome is restarted
// only when the process itself stopped answering; a broken tab is simply
// closed with its probe.
func (r *ProbeRunner) recover(ctx context.Context, res HutResult) (stale bool, err error) {
	restarter, canRestart := r.sessions.(Restarter)

	r.recoverMu.Lock()
	if canRestart && res.generation != restarter.Generation() {
		r.recoverMu.Unlock()
		r.logger.Warn("%s lost its session to a browser restart: %v", res.Hut, res.Err)
		return true, nil
	}

	n := int(r.failures.Add(1))
	r.logger.Error("Session failure %d/%d: %v", n, r.cfg.MaxSessionFailures, res.Err)
	if n > r.cfg.MaxSessionFailures {
		r.recoverMu.Unlock()
		return false, fmt.Errorf("%w: %d failures, last: %w", ErrTooManyFailures, n, res.Err)
	}

	if canRestart && !restarter.Healthy(ctx) {
		if _, err := restarter.Restart(ctx, res.generation); err != nil {
			r.logger.Error("Restart failed: %v", err)
		}
	}
	r.recoverMu.Unlock()

	// a cancelled run ends through the errgroup context, not through the breaker
	_ = utils.Sleep(ctx, r.cfg.RecoverDelay)
	return false, nil
}

// Failures is the number of infrastructure failures seen so far
func (r *ProbeRunner) Failures() int {
	return int(r.failures.Load())
}

func (r *ProbeRunner) checkpoint() error {
	if r.cfg.NotInSystemPath == "" {
		return nil
	}
	r.saveMu.Lock()
	defer r.saveMu.Unlock()
	return storage.SaveSkipList(r.cfg.NotInSystemPath, r.notInSystem.IDs())
}
