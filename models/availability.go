package models

import (
	"fmt"
	"time"
)

// DateLayout is how the reservation site renders calendar dates
const DateLayout = "02.01.2006"

// WindowSizeDays is fixed by the remote widget, which only renders two weeks per query
const WindowSizeDays = 14

// StatusUnresolved marks dates whose window never loaded and carried no banner text
const StatusUnresolved = "unresolved"

// Hut is a mountain hut as known to the reservation system
type Hut struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func (h Hut) String() string {
	if h.Name == "" {
		return fmt.Sprintf("hut %d", h.ID)
	}
	return fmt.Sprintf("hut %d (%s)", h.ID, h.Name)
}

// NewDate returns the calendar date at UTC midnight
func NewDate(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Day truncates t to its calendar date
func Day(t time.Time) time.Time {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// AddDays moves a calendar date by n days
func AddDays(d time.Time, n int) time.Time {
	return d.AddDate(0, 0, n)
}

// ParseDate parses a dd.mm.yyyy date
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

// FormatDate renders a date the way the reservation site expects it
func FormatDate(d time.Time) string {
	return d.Format(DateLayout)
}

// CalendarWindow is the slice of dates one calendar query covers, End exclusive
type CalendarWindow struct {
	Start time.Time
	End   time.Time
}

// NewWindow returns the fixed-width window starting at start
func NewWindow(start time.Time) CalendarWindow {
	start = Day(start)
	return CalendarWindow{Start: start, End: AddDays(start, WindowSizeDays)}
}

// Clip shortens the window so it never extends past limit
func (w CalendarWindow) Clip(limit time.Time) CalendarWindow {
	if w.End.After(limit) {
		w.End = limit
	}
	return w
}

// Contains reports whether d falls inside [Start, End)
func (w CalendarWindow) Contains(d time.Time) bool {
	return !d.Before(w.Start) && d.Before(w.End)
}

// Dates lists every date of the window in order
func (w CalendarWindow) Dates() []time.Time {
	var dates []time.Time
	for d := w.Start; d.Before(w.End); d = AddDays(d, 1) {
		dates = append(dates, d)
	}
	return dates
}

func (w CalendarWindow) String() string {
	return FormatDate(w.Start) + " - " + FormatDate(w.End)
}

// AvailabilityRecord is the availability of one room type on one date.
// Places is only meaningful when Status is empty; otherwise Status holds
// the non-numeric text shown by the site (e.g. "ausgebucht" or a banner).
// An empty RoomType marks a status covering the whole date.
type AvailabilityRecord struct {
	HutID    int
	Date     time.Time
	RoomType string
	Places   int
	Status   string
}

// HasPlaces reports whether the record carries a number of free places
func (r AvailabilityRecord) HasPlaces() bool {
	return r.Status == ""
}

// Value renders the record value as it would appear in a report cell
func (r AvailabilityRecord) Value() string {
	if r.HasPlaces() {
		return fmt.Sprintf("%d", r.Places)
	}
	return r.Status
}

// OutcomeKind classifies how a probe ended
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeNotInSystem
	OutcomePartialFailure
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeNotInSystem:
		return "not in system"
	case OutcomePartialFailure:
		return "partial failure"
	default:
		return "unknown"
	}
}

// ProbeOutcome is the terminal result of probing one hut
type ProbeOutcome struct {
	HutID             int
	Kind              OutcomeKind
	Aborted           bool
	Records           []AvailabilityRecord
	UnresolvedWindows []CalendarWindow
}

// NumericRecords returns only the records that carry a number of places
func (o *ProbeOutcome) NumericRecords() []AvailabilityRecord {
	var out []AvailabilityRecord
	for _, r := range o.Records {
		if r.HasPlaces() {
			out = append(out, r)
		}
	}
	return out
}
