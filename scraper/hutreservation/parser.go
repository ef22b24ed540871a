package hutreservation

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"hut-availability/models"
)

// Selectors of the reservation wizard
const (
	SelectorArrivalInput   = "#cy-arrivalDate__input"
	SelectorDepartureInput = "input[formcontrolname='departureDate']"
	SelectorTable          = `table[aria-label="Date Availability Table"]`
	SelectorErrorBanner    = "app-error-messages .error_message"
	SelectorPreamble       = "app-check-availability-step .welcomeMessage"

	classRowDate   = "table_row_date"
	classRowRoom   = "table_row_room"
	classRowPlaces = "table_row_places"
	selectorCells  = "td.table_row_date, td.table_row_room, td.table_row_places"

	// site-specific urgency flag appended to low counts
	urgencyMarker = "!"
)

// DefaultRoomType labels rows that carry no room category cell
const DefaultRoomType = "all"

var (
	rowDateRegex   = regexp.MustCompile(`\d{1,2}\.\d{1,2}\.\d{4}`)
	whitespaceRuns = regexp.MustCompile(`\s+`)
)

// TableRow is one (date, room type) cell pair of the availability table, still as text
type TableRow struct {
	Date       string
	RoomType   string
	PlacesText string
}

// PageParser answers questions about one rendered page
type PageParser struct {
	doc *goquery.Document
}

// NewPageParser parses rendered markup
func NewPageParser(markup string) (*PageParser, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse markup: %w", err)
	}
	return &PageParser{doc: doc}, nil
}

// HasDateInputField reports whether the calendar widget rendered
func (p *PageParser) HasDateInputField() bool {
	return p.doc.Find(SelectorArrivalInput).Length() > 0
}

// FindErrorBanner returns the text of the first error banner, if any
func (p *PageParser) FindErrorBanner() (string, bool) {
	sel := p.doc.Find(SelectorErrorBanner).First()
	if sel.Length() == 0 {
		return "", false
	}
	return cleanText(sel.Text()), true
}

// Preamble joins every welcome message block into one string
func (p *PageParser) Preamble() string {
	var parts []string
	p.doc.Find(SelectorPreamble).Each(func(_ int, s *goquery.Selection) {
		if t := cleanText(s.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	return strings.Join(parts, " ")
}

// TableMarkup returns the outer HTML of the availability table, empty if absent
func (p *PageParser) TableMarkup() string {
	sel := p.doc.Find(SelectorTable).First()
	if sel.Length() == 0 {
		return ""
	}
	html, err := goquery.OuterHtml(sel)
	if err != nil {
		return ""
	}
	return html
}

// ExtractTableRows returns the table rows in document order. Cells are
// walked flat because an HTML5 re-parse detaches custom mat-row elements
// from the table: a date cell opens a date, a places cell closes a row.
// Empty places cells are absent data and produce no row.
func (p *PageParser) ExtractTableRows() []TableRow {
	var rows []TableRow
	currentDate, currentRoom := "", ""
	p.doc.Find(SelectorTable).First().Find(selectorCells).Each(func(_ int, cell *goquery.Selection) {
		switch {
		case cell.HasClass(classRowDate):
			if d := rowDateRegex.FindString(cell.Text()); d != "" {
				currentDate = d
			}
			currentRoom = ""
		case cell.HasClass(classRowRoom):
			currentRoom = cleanText(cell.Text())
		case cell.HasClass(classRowPlaces):
			places := cleanPlaces(cell.Text())
			if currentDate == "" || places == "" {
				currentRoom = ""
				return
			}
			room := currentRoom
			if room == "" {
				room = DefaultRoomType
			}
			rows = append(rows, TableRow{
				Date:       currentDate,
				RoomType:   room,
				PlacesText: places,
			})
			currentRoom = ""
		}
	})
	return rows
}

// ParseDate returns the calendar date of the row
func (r TableRow) ParseDate() (time.Time, error) {
	parts := strings.Split(r.Date, ".")
	if len(parts) != 3 {
		return time.Time{}, fmt.Errorf("malformed row date %q", r.Date)
	}
	d, ok := buildDate(parts[0], parts[1], parts[2])
	if !ok {
		return time.Time{}, fmt.Errorf("invalid row date %q", r.Date)
	}
	return d, nil
}

// Record converts the row into an availability record for hutID
func (r TableRow) Record(hutID int) (models.AvailabilityRecord, error) {
	date, err := r.ParseDate()
	if err != nil {
		return models.AvailabilityRecord{}, err
	}
	rec := models.AvailabilityRecord{HutID: hutID, Date: date, RoomType: r.RoomType}
	if n, ok := parsePlaces(r.PlacesText); ok {
		rec.Places = n
	} else {
		rec.Status = r.PlacesText
	}
	return rec, nil
}

func cleanText(s string) string {
	return strings.TrimSpace(whitespaceRuns.ReplaceAllString(s, " "))
}

func cleanPlaces(s string) string {
	return strings.TrimSpace(strings.TrimSuffix(cleanText(s), urgencyMarker))
}

// parsePlaces accepts plain non-negative integers only
func parsePlaces(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
		if n > 1_000_000 {
			return 0, false
		}
	}
	return n, true
}
