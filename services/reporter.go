package services

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"hut-availability/models"
)

// PrintRunReport renders the run summary as terminal tables
func PrintRunReport(w io.Writer, s *models.RunSummary) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("HUT AVAILABILITY RUN")
	t.AppendRows([]table.Row{
		{"Run", s.RunID},
		{"Started", s.Started.Format(time.DateTime)},
		{"Runtime", s.Runtime.Round(time.Second)},
		{"Huts checked", s.HutsChecked},
		{"Skipped (known not in system)", s.Skipped},
		{"Not in system", s.NotInSystem},
		{"Complete", s.Succeeded},
		{"Partial", s.Partial},
		{"Aborted", s.Aborted},
		{"Session errors", s.Errors},
		{"Save errors", s.SaveErrors},
		{"Records", s.Records},
		{"Numeric records", s.NumericRecords},
		{"Free places (sum)", s.TotalFreePlaces},
	})
	t.SetStyle(table.StyleRounded)
	t.Render()

	if len(s.TopHuts) == 0 {
		return
	}

	top := table.NewWriter()
	top.SetOutputMirror(w)
	top.SetTitle(fmt.Sprintf("TOP %d HUTS BY FREE PLACES", len(s.TopHuts)))
	top.AppendHeader(table.Row{"#", "Hut", "Free places", "Dates with places"})
	for i, h := range s.TopHuts {
		top.AppendRow(table.Row{i + 1, h.Hut.String(), h.FreePlaces, h.DatesWithPlaces})
	}
	top.SetStyle(table.StyleRounded)
	top.Render()
}

// PrintOutcome renders every record of a single probe
func PrintOutcome(w io.Writer, hut models.Hut, o *models.ProbeOutcome) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(fmt.Sprintf("%s: %s", hut, o.Kind))
	t.AppendHeader(table.Row{"Date", "Room", "Places / status"})
	for _, r := range o.Records {
		room := r.RoomType
		if room == "" {
			room = "-"
		}
		t.AppendRow(table.Row{models.FormatDate(r.Date), room, r.Value()})
	}
	for _, uw := range o.UnresolvedWindows {
		t.AppendFooter(table.Row{"unresolved", uw.String(), ""})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
}
