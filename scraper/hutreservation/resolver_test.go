package hutreservation

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"hut-availability/models"
)

func TestClassifyMessageFamilies(t *testing.T) {
	dates := []time.Time{
		models.NewDate(2025, 6, 14),
		models.NewDate(2026, 1, 1),
		models.NewDate(2028, 2, 29),
		models.NewDate(2029, 12, 31),
	}
	families := []struct {
		name   string
		kind   MessageKind
		render func(d time.Time) string
	}{
		{"season start", MessageSeasonStart, func(d time.Time) string {
			return "Sommersaisonstart " + d.Format("02.01.2006")
		}},
		{"geschlossen", MessageClosedUntil, func(d time.Time) string {
			return fmt.Sprintf("Die Hütte ist bis %s geschlossen.", d.Format("02.01.2006"))
		}},
		{"closed until", MessageClosedUntil, func(d time.Time) string {
			return fmt.Sprintf("The hut is closed until %s.", d.Format("02.01.2006"))
		}},
		{"fino al", MessageClosedUntil, func(d time.Time) string {
			return fmt.Sprintf("Il rifugio è chiuso fino al %s.", d.Format("02.01.2006"))
		}},
		{"operation boundary", MessageOperationBoundary, func(d time.Time) string {
			return fmt.Sprintf("Ab %s wechselt die Hütte vom bewarteten in den unbewarteten Betrieb.", d.Format("2.1.2006"))
		}},
	}

	for _, f := range families {
		for _, d := range dates {
			t.Run(f.name+" "+models.FormatDate(d), func(t *testing.T) {
				msg := f.render(d)
				res := ClassifyMessage(msg)
				require.Equal(t, f.kind, res.Kind, msg)
				require.Equal(t, d, res.Date, msg)

				got, ok := ResolveMessageDate(msg)
				require.True(t, ok)
				require.Equal(t, d, got)
			})
		}
	}
}

func TestClassifyMessageRejectsMalformedDates(t *testing.T) {
	for _, msg := range []string{
		"Sommersaisonstart 32.06.2025",
		"Sommersaisonstart 15.13.2025",
		"Die Hütte ist bis 29.02.2025 geschlossen.",
		"The hut is closed until 00.06.2025.",
		"Chiuso fino al 31.04.2025.",
		"Ab 32.5.2026 vom bewarteten in den unbewarteten Betrieb.",
		"Ab 12.5.2024 vom bewarteten in den unbewarteten Betrieb.",
		"Sommersaisonstart bald",
		"The hut is closed until further notice.",
		"Keine Verfügbarkeit für den gewählten Zeitraum.",
		"",
	} {
		t.Run(msg, func(t *testing.T) {
			res := ClassifyMessage(msg)
			require.Equal(t, MessageUnrecognized, res.Kind)
			require.False(t, res.Resolved())
			require.True(t, res.Date.IsZero())

			_, ok := ResolveMessageDate(msg)
			require.False(t, ok)
		})
	}
}

func TestClassifyMessageIsCaseInsensitive(t *testing.T) {
	res := ClassifyMessage("THE HUT IS CLOSED UNTIL 03.07.2025.")
	require.Equal(t, MessageClosedUntil, res.Kind)
	require.Equal(t, models.NewDate(2025, 7, 3), res.Date)

	res = ClassifyMessage("SOMMERSAISONSTART: 21.06.2025")
	require.Equal(t, MessageSeasonStart, res.Kind)
	require.Equal(t, models.NewDate(2025, 6, 21), res.Date)
}

func TestClassifyMessagePriority(t *testing.T) {
	// season start wins over the closed marker in the same text
	res := ClassifyMessage("Geschlossen. Sommersaisonstart 20.06.2025")
	require.Equal(t, MessageSeasonStart, res.Kind)
	require.Equal(t, models.NewDate(2025, 6, 20), res.Date)
}

func TestClassifyMessageBoundaryUsesFirstYearInRange(t *testing.T) {
	msg := "Vom 15.6.2026 bis 20.9.2026 bewarteten Betrieb, danach unbewarteten Winterraum."
	res := ClassifyMessage(msg)
	require.Equal(t, MessageOperationBoundary, res.Kind)
	require.Equal(t, models.NewDate(2026, 6, 15), res.Date)
}

func TestClassifyMessageBoundaryNeedsBothMarkers(t *testing.T) {
	for _, msg := range []string{
		"From 01.10.2025 the hut is unattended.",
		"Ab 01.10.2025 nur unbewarteten Winterraum.",
		"Dal 01.10.2025 rifugio non gestito.",
	} {
		t.Run(msg, func(t *testing.T) {
			require.Equal(t, MessageUnrecognized, ClassifyMessage(msg).Kind)
		})
	}

	for _, msg := range []string{
		"From 01.10.2025 the hut switches from attended to unattended operation.",
		"Dal 01.10.2025 il rifugio passa da gestito a non gestito.",
	} {
		t.Run(msg, func(t *testing.T) {
			res := ClassifyMessage(msg)
			require.Equal(t, MessageOperationBoundary, res.Kind)
			require.Equal(t, models.NewDate(2025, 10, 1), res.Date)
		})
	}
}
