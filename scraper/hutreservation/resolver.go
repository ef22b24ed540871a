package hutreservation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"hut-availability/models"
)

// MessageKind tags which family of free-text message produced a date
type MessageKind int

const (
	MessageUnrecognized MessageKind = iota
	MessageSeasonStart
	MessageClosedUntil
	MessageOperationBoundary
)

func (k MessageKind) String() string {
	switch k {
	case MessageSeasonStart:
		return "season start"
	case MessageClosedUntil:
		return "closed until"
	case MessageOperationBoundary:
		return "operation boundary"
	default:
		return "unrecognized"
	}
}

// MessageResolution is the date a message points at, if any
type MessageResolution struct {
	Kind MessageKind
	Date time.Time
}

// Resolved reports whether the message yielded a date
func (r MessageResolution) Resolved() bool {
	return r.Kind != MessageUnrecognized
}

// years the attended/unattended boundary message is searched for
const (
	boundaryFirstYear = 2025
	boundaryLastYear  = 2029
)

var (
	seasonStartMarkers = []string{"saisonstart", "season start", "inizio stagione"}
	closedMarkers      = []string{"closed until", "fino al"}
	attendedMarkers    = []string{"bewarteten", "attended", "gestito"}
	unattendedMarkers  = []string{"unbewarteten", "unattended", "non gestito"}

	fullDateRegex = regexp.MustCompile(`(\d{1,2})\.(\d{1,2})\.(\d{4})`)
)

type messageMatcher struct {
	kind  MessageKind
	match func(lower string) (time.Time, bool)
}

// tried in order, first hit wins
var messageMatchers = []messageMatcher{
	{MessageSeasonStart, matchSeasonStart},
	{MessageClosedUntil, matchGeschlossen},
	{MessageClosedUntil, matchClosedUntil},
	{MessageOperationBoundary, matchOperationBoundary},
}

// ClassifyMessage finds the date a banner or preamble message refers to.
// Malformed embedded dates never resolve.
func ClassifyMessage(text string) MessageResolution {
	lower := strings.ToLower(text)
	for _, m := range messageMatchers {
		if d, ok := m.match(lower); ok {
			return MessageResolution{Kind: m.kind, Date: d}
		}
	}
	return MessageResolution{Kind: MessageUnrecognized}
}

// ResolveMessageDate returns the date a message refers to.
// A false result means "could not resolve", never "today".
func ResolveMessageDate(text string) (time.Time, bool) {
	r := ClassifyMessage(text)
	return r.Date, r.Resolved()
}

func matchSeasonStart(lower string) (time.Time, bool) {
	for _, marker := range seasonStartMarkers {
		idx := strings.LastIndex(lower, marker)
		if idx == -1 {
			continue
		}
		m := fullDateRegex.FindStringSubmatch(lower[idx+len(marker):])
		if m == nil {
			return time.Time{}, false
		}
		return buildDate(m[1], m[2], m[3])
	}
	return time.Time{}, false
}

// "Die Hütte ist bis 15.06.2025 geschlossen." puts the date second to last
func matchGeschlossen(lower string) (time.Time, bool) {
	if !strings.Contains(lower, "geschlossen") {
		return time.Time{}, false
	}
	return trailingDate(lower, 2)
}

// "The hut is closed until 15.06.2025." puts the date last
func matchClosedUntil(lower string) (time.Time, bool) {
	if !containsAny(lower, closedMarkers) {
		return time.Time{}, false
	}
	return trailingDate(lower, 1)
}

func matchOperationBoundary(lower string) (time.Time, bool) {
	if !containsAny(lower, unattendedMarkers) {
		return time.Time{}, false
	}
	// every attended marker is a substring of its unattended counterpart
	if !containsAny(stripAll(lower, unattendedMarkers), attendedMarkers) {
		return time.Time{}, false
	}
	for year := boundaryFirstYear; year <= boundaryLastYear; year++ {
		yearToken := fmt.Sprintf(".%d", year)
		idx := strings.Index(lower, yearToken)
		if idx == -1 {
			continue
		}
		fields := strings.Fields(lower[:idx])
		if len(fields) == 0 {
			return time.Time{}, false
		}
		parts := strings.Split(fields[len(fields)-1], ".")
		if len(parts) != 2 {
			return time.Time{}, false
		}
		return buildDate(parts[0], parts[1], strconv.Itoa(year))
	}
	return time.Time{}, false
}

// trailingDate parses the date token among the last n whitespace-separated tokens
func trailingDate(text string, n int) (time.Time, bool) {
	fields := strings.Fields(text)
	for i := len(fields) - 1; i >= 0 && i >= len(fields)-n; i-- {
		token := strings.TrimRight(fields[i], ".,;:!)")
		parts := strings.Split(token, ".")
		if len(parts) != 3 {
			continue
		}
		return buildDate(parts[0], parts[1], parts[2])
	}
	return time.Time{}, false
}

// buildDate rejects anything time.Date would silently normalise, e.g. 32.01
func buildDate(dd, mm, yyyy string) (time.Time, bool) {
	day, err := strconv.Atoi(strings.TrimSpace(dd))
	if err != nil {
		return time.Time{}, false
	}
	month, err := strconv.Atoi(strings.TrimSpace(mm))
	if err != nil {
		return time.Time{}, false
	}
	year, err := strconv.Atoi(strings.TrimSpace(yyyy))
	if err != nil || year < 1 {
		return time.Time{}, false
	}
	if month < 1 || month > 12 || day < 1 {
		return time.Time{}, false
	}
	d := models.NewDate(year, time.Month(month), day)
	if d.Day() != day || int(d.Month()) != month || d.Year() != year {
		return time.Time{}, false
	}
	return d, true
}

func stripAll(s string, subs []string) string {
	for _, sub := range subs {
		s = strings.ReplaceAll(s, sub, " ")
	}
	return s
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
