package hutreservation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"hut-availability/models"
)

// fakePage is what the widget shows after one window was submitted
type fakePage struct {
	table  string
	banner string
	hidden bool // calendar widget gone
}

// fakeSite scripts the reservation wizard of one hut
type fakeSite struct {
	preamble string
	noWidget bool
	// page decides what the n-th submitted window (0-based) renders
	page func(n int, start time.Time) fakePage
}

type fakeSession struct {
	site *fakeSite

	opened    []string
	fields    map[string]string
	submitted []time.Time
	current   fakePage
	closed    bool

	// markupErrAfter makes Markup fail once this many windows were submitted
	markupErrAfter int
}

func newFakeSession(site *fakeSite) *fakeSession {
	return &fakeSession{site: site, fields: make(map[string]string), markupErrAfter: -1}
}

func (s *fakeSession) Open(_ context.Context, url string) error {
	s.opened = append(s.opened, url)
	s.current = fakePage{hidden: s.site.noWidget}
	return nil
}

func (s *fakeSession) SetField(_ context.Context, selector, text string) error {
	s.fields[selector] = text
	return nil
}

func (s *fakeSession) Submit(_ context.Context, selector string) error {
	if selector != SelectorDepartureInput {
		return nil
	}
	start, err := models.ParseDate(s.fields[SelectorArrivalInput])
	if err != nil {
		return fmt.Errorf("%w: bad arrival %q", ErrSession, s.fields[SelectorArrivalInput])
	}
	n := len(s.submitted)
	s.submitted = append(s.submitted, start)
	s.current = s.site.page(n, start)
	return nil
}

func (s *fakeSession) WaitFor(ctx context.Context, selector string, _ time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	switch selector {
	case SelectorPreamble:
		return s.site.preamble != "", nil
	case SelectorArrivalInput:
		return !s.current.hidden, nil
	case SelectorTable:
		return s.current.table != "", nil
	case SelectorErrorBanner:
		return s.current.banner != "", nil
	}
	return false, nil
}

func (s *fakeSession) Markup(_ context.Context) (string, error) {
	if s.markupErrAfter >= 0 && len(s.submitted) > s.markupErrAfter {
		return "", fmt.Errorf("%w: tab crashed", ErrSession)
	}
	var b strings.Builder
	b.WriteString("<html><body>")
	if s.site.preamble != "" {
		fmt.Fprintf(&b, `<app-check-availability-step><span class="welcomeMessage">%s</span></app-check-availability-step>`, s.site.preamble)
	}
	if !s.current.hidden {
		b.WriteString(`<input id="cy-arrivalDate__input"><input formcontrolname="departureDate">`)
	}
	b.WriteString(s.current.table)
	if s.current.banner != "" {
		fmt.Fprintf(&b, `<app-error-messages><div class="error_message">%s</div></app-error-messages>`, s.current.banner)
	}
	b.WriteString("</body></html>")
	return b.String(), nil
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

// availabilityTable renders 14 days from start with one row per room type,
// the date cell only filled on the first row of each date
func availabilityTable(start time.Time, rooms []string, places func(day time.Time, room string) string) string {
	return availabilityTableDays(start, models.WindowSizeDays, rooms, places)
}

// availabilityTableDays renders only the first days dates, as at the end of a season
func availabilityTableDays(start time.Time, days int, rooms []string, places func(day time.Time, room string) string) string {
	var b strings.Builder
	b.WriteString(`<table aria-label="Date Availability Table">`)
	for _, day := range (models.CalendarWindow{Start: start, End: models.AddDays(start, days)}).Dates() {
		for i, room := range rooms {
			date := ""
			if i == 0 {
				date = day.Format("Mon 02.01.2006")
			}
			fmt.Fprintf(&b,
				`<mat-row class="mat-mdc-row"><td class="table_row_date">%s</td><td class="table_row_room">%s</td><td class="table_row_places">%s</td></mat-row>`,
				date, room, places(day, room))
		}
	}
	b.WriteString(`</table>`)
	return b.String()
}

var testRooms = []string{"dormitorio", "matrimoniale", "quadrupla"}

func fixedPlaces(n string) func(time.Time, string) string {
	return func(time.Time, string) string { return n }
}

// openSite renders a full table for every window
func openSite() *fakeSite {
	return &fakeSite{page: func(_ int, start time.Time) fakePage {
		return fakePage{table: availabilityTable(start, testRooms, fixedPlaces("7"))}
	}}
}
