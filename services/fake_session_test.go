package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"hut-availability/models"
	"hut-availability/scraper/hutreservation"
)

const testBaseURL = "https://huts.example/book-hut/"

// hut behaviours of the fake reservation site
const (
	hutOpen    = ""
	hutMissing = "missing" // no calendar widget
	hutCrash   = "crash"   // the tab dies on open, the browser survives
	hutKill    = "kill"    // the first open takes the whole browser down
)

// fakeFactory plays a browser process: a restart starts a new generation
// and every session of the old one fails from then on
type fakeFactory struct {
	mu         sync.Mutex
	behaviour  map[int]string
	places     string
	generation uint64
	dead       bool
	killed     map[int]bool
	opened     []int
	sessions   int
	closed     int
	restarts   int
}

func newFakeFactory(behaviour map[int]string) *fakeFactory {
	return &fakeFactory{behaviour: behaviour, places: "3", killed: make(map[int]bool)}
}

func (f *fakeFactory) NewSession(context.Context) (hutreservation.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dead {
		return nil, fmt.Errorf("%w: browser gone", hutreservation.ErrSession)
	}
	f.sessions++
	return &fakeSession{factory: f, fields: make(map[string]string), generation: f.generation}, nil
}

func (f *fakeFactory) Generation() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.generation
}

func (f *fakeFactory) Healthy(context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.dead
}

func (f *fakeFactory) Restart(_ context.Context, generation uint64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if generation != f.generation {
		return false, nil
	}
	f.generation++
	f.dead = false
	f.restarts++
	return true, nil
}

func (f *fakeFactory) openedHuts() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.opened...)
}

type fakeSession struct {
	factory    *fakeFactory
	generation uint64
	behaviour  string
	fields     map[string]string
	arrival    time.Time
	submitted  bool
}

func (s *fakeSession) Generation() uint64 {
	return s.generation
}

// alive fails once the browser the session was opened on is gone
func (s *fakeSession) alive() error {
	s.factory.mu.Lock()
	defer s.factory.mu.Unlock()
	if s.factory.dead || s.generation != s.factory.generation {
		return fmt.Errorf("%w: browser restarted", hutreservation.ErrSession)
	}
	return nil
}

func (s *fakeSession) Open(_ context.Context, url string) error {
	if err := s.alive(); err != nil {
		return err
	}
	id, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(url, testBaseURL), "/wizard"))
	if err != nil {
		return fmt.Errorf("%w: unexpected url %s", hutreservation.ErrSession, url)
	}
	s.factory.mu.Lock()
	s.factory.opened = append(s.factory.opened, id)
	s.behaviour = s.factory.behaviour[id]
	kill := s.behaviour == hutKill && !s.factory.killed[id]
	if kill {
		s.factory.killed[id] = true
		s.factory.dead = true
	}
	s.factory.mu.Unlock()

	if s.behaviour == hutCrash || kill {
		return fmt.Errorf("%w: tab crashed", hutreservation.ErrSession)
	}
	return nil
}

func (s *fakeSession) SetField(_ context.Context, selector, text string) error {
	s.fields[selector] = text
	return nil
}

func (s *fakeSession) Submit(_ context.Context, selector string) error {
	if selector != hutreservation.SelectorDepartureInput {
		return nil
	}
	d, err := models.ParseDate(s.fields[hutreservation.SelectorArrivalInput])
	if err != nil {
		return fmt.Errorf("%w: %v", hutreservation.ErrSession, err)
	}
	s.arrival, s.submitted = d, true
	return nil
}

func (s *fakeSession) WaitFor(ctx context.Context, selector string, _ time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	// keeps probes of several workers in flight at the same time
	time.Sleep(2 * time.Millisecond)
	if err := s.alive(); err != nil {
		return false, err
	}
	switch selector {
	case hutreservation.SelectorArrivalInput:
		return s.behaviour != hutMissing, nil
	case hutreservation.SelectorTable:
		return s.submitted, nil
	}
	return false, nil
}

func (s *fakeSession) Markup(context.Context) (string, error) {
	if err := s.alive(); err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("<html><body>")
	if s.behaviour != hutMissing {
		b.WriteString(`<input id="cy-arrivalDate__input"><input formcontrolname="departureDate">`)
	}
	if s.submitted {
		b.WriteString(`<table aria-label="Date Availability Table">`)
		for _, d := range models.NewWindow(s.arrival).Dates() {
			fmt.Fprintf(&b,
				`<mat-row><td class="table_row_date">%s</td><td class="table_row_room">lager</td><td class="table_row_places">%s</td></mat-row>`,
				d.Format("Mon 02.01.2006"), s.factory.places)
		}
		b.WriteString(`</table>`)
	}
	b.WriteString("</body></html>")
	return b.String(), nil
}

func (s *fakeSession) Close() error {
	s.factory.mu.Lock()
	defer s.factory.mu.Unlock()
	s.factory.closed++
	return nil
}

// flakySink fails the first failures saves, then records everything
type flakySink struct {
	mu       sync.Mutex
	failures int
	calls    int
	saved    map[int][]models.AvailabilityRecord
}

func (s *flakySink) SaveRecords(_ context.Context, hutID int, records []models.AvailabilityRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.failures {
		return fmt.Errorf("connection reset")
	}
	if s.saved == nil {
		s.saved = make(map[int][]models.AvailabilityRecord)
	}
	s.saved[hutID] = records
	return nil
}

func (s *flakySink) Close() error { return nil }
