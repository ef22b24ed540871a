package hutreservation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"hut-availability/models"
	"hut-availability/utils"
)

// DefaultBaseURL is the booking wizard root; the hut id and "/wizard" are appended
const DefaultBaseURL = "https://www.hut-reservation.org/reservation/book-hut/"

var (
	ErrInvalidHut   = errors.New("hut id must be positive")
	ErrInvalidRange = errors.New("requested end must be after requested start")
)

// how often a stale table is re-read while waiting for it to refresh
const staleTablePoll = 250 * time.Millisecond

// ProbeConfig is the retry and recovery policy of a probe. The window size
// is not part of it: the remote widget always renders 14 days.
type ProbeConfig struct {
	BaseURL            string
	MaxWidenedRetries  int
	WidgetTimeout      time.Duration
	TableTimeout       time.Duration
	ErrorBannerTimeout time.Duration
	AntiLoopNudgeDays  int // added when a message resolves to a date already used
	WidenBase          int // widened retry n skips WidenBase^(n-1) days
	AnchorOffsetDays   int // messages state the last closed day
}

// DefaultProbeConfig returns the policy the site has been probed with so far
func DefaultProbeConfig() ProbeConfig {
	return ProbeConfig{
		BaseURL:            DefaultBaseURL,
		MaxWidenedRetries:  5,
		WidgetTimeout:      3 * time.Second,
		TableTimeout:       3 * time.Second,
		ErrorBannerTimeout: 2 * time.Second,
		AntiLoopNudgeDays:  3,
		WidenBase:          3,
		AnchorOffsetDays:   1,
	}
}

// Probe drives the reservation calendar of one hut at a time
type Probe struct {
	cfg    ProbeConfig
	logger *utils.Logger
}

// NewProbe creates a Probe, filling unset policy fields with defaults.
// AnchorOffsetDays is taken as given since zero is a valid policy; start
// from DefaultProbeConfig to get the usual +1 day.
func NewProbe(cfg ProbeConfig, logger *utils.Logger) *Probe {
	def := DefaultProbeConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.MaxWidenedRetries <= 0 {
		cfg.MaxWidenedRetries = def.MaxWidenedRetries
	}
	if cfg.WidgetTimeout <= 0 {
		cfg.WidgetTimeout = def.WidgetTimeout
	}
	if cfg.TableTimeout <= 0 {
		cfg.TableTimeout = def.TableTimeout
	}
	if cfg.ErrorBannerTimeout <= 0 {
		cfg.ErrorBannerTimeout = def.ErrorBannerTimeout
	}
	if cfg.AntiLoopNudgeDays <= 0 {
		cfg.AntiLoopNudgeDays = def.AntiLoopNudgeDays
	}
	if cfg.WidenBase <= 1 {
		cfg.WidenBase = def.WidenBase
	}
	if cfg.AnchorOffsetDays < 0 {
		cfg.AnchorOffsetDays = 0
	}
	return &Probe{cfg: cfg, logger: logger}
}

// Config returns the effective policy
func (p *Probe) Config() ProbeConfig {
	return p.cfg
}

// HutURL is the booking wizard of a hut
func (p *Probe) HutURL(hutID int) string {
	return hutURL(p.cfg.BaseURL, hutID)
}

func hutURL(base string, hutID int) string {
	return base + strconv.Itoa(hutID) + "/wizard"
}

type probeState int

const (
	stateStart probeState = iota
	stateSetWindow
	stateAwaitWidget
	stateAwaitTable
	stateCheckErrorBanner
	stateResolveFromMessage
	stateRecordUnknownAndRetry
	stateExtractRows
	stateDone
	stateNotInSystem
	stateAborted
)

var stateNames = [...]string{
	"Start", "SetWindow", "AwaitWidget", "AwaitTable", "CheckErrorBanner",
	"ResolveFromMessage", "RecordUnknownAndRetry", "ExtractRows",
	"Done", "NotInSystem", "Aborted",
}

func (s probeState) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "state(" + strconv.Itoa(int(s)) + ")"
}

func (s probeState) terminal() bool {
	return s == stateDone || s == stateNotInSystem || s == stateAborted
}

// probeRun is the recovery state of one invocation, discarded afterwards
type probeRun struct {
	cfg     ProbeConfig
	logger  *utils.Logger
	session Session
	hut     models.Hut
	end     time.Time

	currentStart      time.Time
	window            models.CalendarWindow
	attempts          int
	lastErrorText     string
	previousAlternate time.Time
	windowsSubmitted  int
	lastTable         string
	page              *PageParser

	records    *recordSet
	unresolved []models.CalendarWindow
}

// Run probes hut over [start, end). The session belongs to this run only.
//
// Everything the site can do to a window ends up in the outcome as data. The
// returned error is non-nil only when the session itself failed (ErrSession);
// the outcome then still holds the records gathered before the failure.
// Cancelling ctx ends the run as an aborted partial failure.
func (p *Probe) Run(ctx context.Context, session Session, hut models.Hut, start, end time.Time) (*models.ProbeOutcome, error) {
	if hut.ID <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidHut, hut.ID)
	}
	start, end = models.Day(start), models.Day(end)
	if !end.After(start) {
		return nil, fmt.Errorf("%w: %s - %s", ErrInvalidRange, models.FormatDate(start), models.FormatDate(end))
	}

	r := &probeRun{
		cfg:          p.cfg,
		logger:       p.logger.With("hut", hut.ID),
		session:      session,
		hut:          hut,
		end:          end,
		currentStart: start,
		records:      newRecordSet(hut.ID),
	}

	state, err := r.loop(ctx)
	return r.outcome(state), err
}

func (r *probeRun) loop(ctx context.Context) (probeState, error) {
	state := stateStart
	for !state.terminal() {
		if ctx.Err() != nil {
			r.logger.Warn("Probe cancelled in %s", state)
			return r.abort(), nil
		}

		next, err := r.step(ctx, state)
		if err != nil {
			if ctx.Err() != nil {
				r.logger.Warn("Probe cancelled in %s", state)
				return r.abort(), nil
			}
			r.abort()
			return stateAborted, fmt.Errorf("hut %d in %s: %w", r.hut.ID, state, err)
		}
		r.logger.Debug("%s -> %s", state, next)
		state = next
	}
	return state, nil
}

func (r *probeRun) step(ctx context.Context, state probeState) (probeState, error) {
	switch state {
	case stateStart:
		return r.start(ctx)
	case stateSetWindow:
		return r.setWindow(), nil
	case stateAwaitWidget:
		return r.awaitWidget(ctx)
	case stateAwaitTable:
		return r.awaitTable(ctx)
	case stateCheckErrorBanner:
		return r.checkErrorBanner(ctx)
	case stateResolveFromMessage:
		return r.resolveFromMessage(), nil
	case stateRecordUnknownAndRetry:
		return r.recordUnknownAndRetry(), nil
	case stateExtractRows:
		return r.extractRows(), nil
	default:
		return state, fmt.Errorf("no transition out of %s", state)
	}
}

func (r *probeRun) start(ctx context.Context) (probeState, error) {
	url := hutURL(r.cfg.BaseURL, r.hut.ID)
	r.logger.Info("Probing %s from %s to %s", r.hut, models.FormatDate(r.currentStart), models.FormatDate(r.end))
	if err := r.session.Open(ctx, url); err != nil {
		return stateStart, err
	}

	found, err := r.session.WaitFor(ctx, SelectorPreamble, r.cfg.ErrorBannerTimeout)
	if err != nil || !found {
		return stateSetWindow, err
	}
	page, err := r.readPage(ctx)
	if err != nil {
		return stateStart, err
	}
	preamble := page.Preamble()
	if d, ok := ResolveMessageDate(preamble); ok && d.After(r.currentStart) {
		r.logger.Info("Set start date based on preamble: %s", models.FormatDate(d))
		r.currentStart = d
	}
	return stateSetWindow, nil
}

func (r *probeRun) setWindow() probeState {
	if !r.currentStart.Before(r.end) {
		return stateDone
	}
	r.window = models.NewWindow(r.currentStart)
	r.logger.Debug("Window %s (attempt %d)", r.window, r.attempts+1)
	return stateAwaitWidget
}

func (r *probeRun) awaitWidget(ctx context.Context) (probeState, error) {
	found, err := r.session.WaitFor(ctx, SelectorArrivalInput, r.cfg.WidgetTimeout)
	if err != nil {
		return stateAwaitWidget, err
	}
	if !found {
		if r.windowsSubmitted == 0 {
			r.logger.Info("No calendar widget, hut is not in the reservation system")
			return stateNotInSystem, nil
		}
		r.logger.Warn("Calendar widget disappeared for window %s", r.window)
		r.lastErrorText = ""
		return stateRecordUnknownAndRetry, nil
	}

	if err := r.submitWindow(ctx); err != nil {
		return stateAwaitWidget, err
	}
	return stateAwaitTable, nil
}

func (r *probeRun) submitWindow(ctx context.Context) error {
	if err := r.session.SetField(ctx, SelectorArrivalInput, models.FormatDate(r.window.Start)); err != nil {
		return err
	}
	if err := r.session.Submit(ctx, SelectorArrivalInput); err != nil {
		return err
	}
	if err := r.session.SetField(ctx, SelectorDepartureInput, models.FormatDate(r.window.End)); err != nil {
		return err
	}
	if err := r.session.Submit(ctx, SelectorDepartureInput); err != nil {
		return err
	}
	r.windowsSubmitted++
	return nil
}

// awaitTable waits for a table that differs from the last extracted one;
// the previous window's table lingers until the widget re-renders
func (r *probeRun) awaitTable(ctx context.Context) (probeState, error) {
	deadline := time.Now().Add(r.cfg.TableTimeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			r.logger.Info("Table did not refresh for window %s", r.window)
			return stateCheckErrorBanner, nil
		}
		found, err := r.session.WaitFor(ctx, SelectorTable, remaining)
		if err != nil {
			return stateAwaitTable, err
		}
		if !found {
			r.logger.Info("Table does not load for window %s", r.window)
			return stateCheckErrorBanner, nil
		}
		page, err := r.readPage(ctx)
		if err != nil {
			return stateAwaitTable, err
		}
		if table := page.TableMarkup(); table != "" && table != r.lastTable {
			r.page = page
			return stateExtractRows, nil
		}
		if err := utils.Sleep(ctx, min(staleTablePoll, time.Until(deadline))); err != nil {
			return stateAwaitTable, err
		}
	}
}

func (r *probeRun) checkErrorBanner(ctx context.Context) (probeState, error) {
	r.lastErrorText = ""
	found, err := r.session.WaitFor(ctx, SelectorErrorBanner, r.cfg.ErrorBannerTimeout)
	if err != nil {
		return stateCheckErrorBanner, err
	}
	if !found {
		return stateRecordUnknownAndRetry, nil
	}
	page, err := r.readPage(ctx)
	if err != nil {
		return stateCheckErrorBanner, err
	}
	text, ok := page.FindErrorBanner()
	if !ok {
		return stateRecordUnknownAndRetry, nil
	}
	r.logger.Info("Error message: %s", text)
	r.lastErrorText = text
	return stateResolveFromMessage, nil
}

func (r *probeRun) resolveFromMessage() probeState {
	res := ClassifyMessage(r.lastErrorText)
	if !res.Resolved() {
		return stateRecordUnknownAndRetry
	}

	d := res.Date
	if !r.previousAlternate.IsZero() && !d.After(r.previousAlternate) {
		// the site echoes the same boundary after re-anchoring onto it
		d = models.AddDays(r.previousAlternate, r.cfg.AntiLoopNudgeDays)
		r.logger.Info("Same %s message as before, moving on to %s", res.Kind, models.FormatDate(d))
	}
	anchor := models.AddDays(d, r.cfg.AnchorOffsetDays)
	if !anchor.After(r.currentStart) {
		r.logger.Info("Message date %s does not move the window forward", models.FormatDate(res.Date))
		return stateRecordUnknownAndRetry
	}

	skipped := models.CalendarWindow{Start: r.currentStart, End: anchor}.Clip(r.end)
	for _, date := range skipped.Dates() {
		r.records.putStatus(date, r.lastErrorText)
	}
	r.previousAlternate = d
	r.currentStart = anchor
	r.attempts = 0
	r.logger.Info("Using %s message, set start date to %s", res.Kind, models.FormatDate(anchor))
	return stateSetWindow
}

func (r *probeRun) recordUnknownAndRetry() probeState {
	status := r.lastErrorText
	if status == "" {
		status = models.StatusUnresolved
	}
	for _, date := range r.window.Clip(r.end).Dates() {
		r.records.putStatus(date, status)
	}

	r.attempts++
	if r.attempts == 1 {
		r.logger.Info("Retrying window %s once as is", r.window)
		return stateSetWindow
	}

	widened := r.attempts - 1
	if widened > r.cfg.MaxWidenedRetries {
		r.logger.Warn("Giving up after %d widened retries at %s", r.cfg.MaxWidenedRetries, models.FormatDate(r.currentStart))
		return r.abort()
	}

	skip := intPow(r.cfg.WidenBase, r.attempts-2)
	next := models.AddDays(r.currentStart, skip)
	r.markUnresolved(models.CalendarWindow{Start: r.currentStart, End: next}.Clip(r.end))
	r.logger.Info("Checking %d days further (widened retry %d/%d)", skip, widened, r.cfg.MaxWidenedRetries)
	r.currentStart = next
	return stateSetWindow
}

func (r *probeRun) extractRows() probeState {
	win := r.window.Clip(r.end)
	// the window loaded, so earlier failed attempts on it no longer apply;
	// dates the table leaves out end up with no record at all
	r.records.clearStatus(win)
	found := 0
	for _, row := range r.page.ExtractTableRows() {
		rec, err := row.Record(r.hut.ID)
		if err != nil {
			r.logger.Debug("Skipping row: %v", err)
			continue
		}
		if !win.Contains(rec.Date) {
			continue
		}
		r.records.putRoom(rec)
		found++
	}
	r.logger.Info("Window %s: %d availability cells", win, found)

	r.lastTable = r.page.TableMarkup()
	r.page = nil
	r.lastErrorText = ""
	r.attempts = 0
	r.currentStart = models.AddDays(r.currentStart, models.WindowSizeDays)
	if !r.currentStart.Before(r.end) {
		return stateDone
	}
	return stateSetWindow
}

// abort marks everything not yet scanned as unresolved
func (r *probeRun) abort() probeState {
	if r.currentStart.Before(r.end) {
		r.markUnresolved(models.CalendarWindow{Start: r.currentStart, End: r.end})
		r.currentStart = r.end
	}
	return stateAborted
}

func (r *probeRun) markUnresolved(w models.CalendarWindow) {
	if !w.Start.Before(w.End) {
		return
	}
	if n := len(r.unresolved); n > 0 && !r.unresolved[n-1].End.Before(w.Start) {
		if w.End.After(r.unresolved[n-1].End) {
			r.unresolved[n-1].End = w.End
		}
		return
	}
	r.unresolved = append(r.unresolved, w)
}

func (r *probeRun) readPage(ctx context.Context) (*PageParser, error) {
	markup, err := r.session.Markup(ctx)
	if err != nil {
		return nil, err
	}
	return NewPageParser(markup)
}

func (r *probeRun) outcome(state probeState) *models.ProbeOutcome {
	out := &models.ProbeOutcome{HutID: r.hut.ID}
	switch state {
	case stateNotInSystem:
		out.Kind = models.OutcomeNotInSystem
		return out
	case stateAborted:
		out.Kind = models.OutcomePartialFailure
		out.Aborted = true
	default:
		out.Kind = models.OutcomeSuccess
		if len(r.unresolved) > 0 {
			out.Kind = models.OutcomePartialFailure
		}
	}
	out.Records = r.records.sorted()
	out.UnresolvedWindows = r.unresolved
	r.logger.Info("Probe finished: %s, %d records, %d unresolved windows", out.Kind, len(out.Records), len(out.UnresolvedWindows))
	return out
}

func intPow(base, exp int) int {
	n := 1
	for range exp {
		n *= base
	}
	return n
}
