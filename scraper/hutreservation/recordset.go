package hutreservation

import (
	"sort"
	"time"

	"hut-availability/models"
)

// recordSet keeps at most one record per (date, room type), last write wins.
// A date holds either one date-wide status record or per-room records.
type recordSet struct {
	hutID  int
	byDate map[int64]map[string]models.AvailabilityRecord
}

func newRecordSet(hutID int) *recordSet {
	return &recordSet{hutID: hutID, byDate: make(map[int64]map[string]models.AvailabilityRecord)}
}

func (s *recordSet) putRoom(rec models.AvailabilityRecord) {
	key := rec.Date.Unix()
	rooms := s.byDate[key]
	if rooms == nil {
		rooms = make(map[string]models.AvailabilityRecord)
		s.byDate[key] = rooms
	}
	delete(rooms, "")
	rooms[rec.RoomType] = rec
}

func (s *recordSet) putStatus(date time.Time, status string) {
	s.byDate[date.Unix()] = map[string]models.AvailabilityRecord{
		"": {HutID: s.hutID, Date: date, Status: status},
	}
}

// clearStatus drops date-wide status records inside w, leaving per-room records
func (s *recordSet) clearStatus(w models.CalendarWindow) {
	for _, date := range w.Dates() {
		key := date.Unix()
		if rooms := s.byDate[key]; rooms != nil {
			delete(rooms, "")
			if len(rooms) == 0 {
				delete(s.byDate, key)
			}
		}
	}
}

func (s *recordSet) len() int {
	n := 0
	for _, rooms := range s.byDate {
		n += len(rooms)
	}
	return n
}

// sorted returns the records ordered by date, then room type
func (s *recordSet) sorted() []models.AvailabilityRecord {
	out := make([]models.AvailabilityRecord, 0, s.len())
	for _, rooms := range s.byDate {
		for _, rec := range rooms {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].RoomType < out[j].RoomType
	})
	return out
}
