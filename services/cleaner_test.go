package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"hut-availability/models"
	"hut-availability/utils"
)

func day(d int) time.Time { return models.NewDate(2025, 7, d) }

func TestMatrixBuilder(t *testing.T) {
	b := NewMatrixBuilder(utils.NopLogger())
	ctx := context.Background()

	require.NoError(t, b.SaveRecords(ctx, 9, []models.AvailabilityRecord{
		{HutID: 9, Date: day(1), RoomType: "lager", Places: 10},
		{HutID: 9, Date: day(1), RoomType: "zimmer", Places: 2},
		{HutID: 9, Date: day(2), RoomType: "lager", Status: "ausgebucht"},
		{HutID: 9, Date: day(2), RoomType: "zimmer", Places: 1},
		{HutID: 9, Date: day(9), RoomType: "lager", Places: 50}, // outside the range
	}))
	require.NoError(t, b.SaveRecords(ctx, 4, []models.AvailabilityRecord{
		{HutID: 4, Date: day(2), Status: "Die Hütte ist geschlossen"},
		{HutID: 4, Date: day(3), Status: models.StatusUnresolved},
	}))

	places := b.PlacesMatrix(day(1), day(4))
	want := &models.AvailabilityMatrix{
		Dates: []time.Time{day(1), day(2), day(3)},
		Rows: []models.MatrixRow{
			{HutID: 4, Cells: []string{"", "0", "0"}},
			{HutID: 9, Cells: []string{"12", "1", ""}},
		},
	}
	if diff := cmp.Diff(want, places); diff != "" {
		t.Fatalf("places matrix mismatch (-want +got):\n%s", diff)
	}

	text := b.TextMatrix(day(1), day(4))
	require.Equal(t, []string{"", "Die Hütte ist geschlossen", "unresolved"}, text.Rows[0].Cells)
	require.Equal(t, []string{"lager: 10 | zimmer: 2", "lager: ausgebucht | zimmer: 1", ""}, text.Rows[1].Cells)
}

func TestMatrixBuilderReplacesHutRecords(t *testing.T) {
	b := NewMatrixBuilder(utils.NopLogger())
	ctx := context.Background()

	require.NoError(t, b.SaveRecords(ctx, 1, []models.AvailabilityRecord{{HutID: 1, Date: day(1), RoomType: "all", Places: 5}}))
	require.NoError(t, b.SaveRecords(ctx, 1, []models.AvailabilityRecord{{HutID: 1, Date: day(1), RoomType: "all", Places: 2}}))

	m := b.PlacesMatrix(day(1), day(2))
	require.Equal(t, []models.MatrixRow{{HutID: 1, Cells: []string{"2"}}}, m.Rows)
}
