package storage

import (
	"fmt"
	"os"

	"github.com/titanous/json5"

	"hut-availability/models"
)

// LoadHuts reads a JSON5 hut list such as
//
//	[
//	  {id: 1, name: "Rifugio Vittorio Sella"}, // comments allowed
//	  {id: 7},
//	]
func LoadHuts(path string) ([]models.Hut, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read hut list: %w", err)
	}
	var huts []models.Hut
	if err := json5.Unmarshal(data, &huts); err != nil {
		return nil, fmt.Errorf("parse hut list %s: %w", path, err)
	}
	seen := make(map[int]bool, len(huts))
	out := huts[:0]
	for _, h := range huts {
		if h.ID <= 0 {
			return nil, fmt.Errorf("hut list %s: invalid hut id %d", path, h.ID)
		}
		if seen[h.ID] {
			continue
		}
		seen[h.ID] = true
		out = append(out, h)
	}
	return out, nil
}

// HutRange lists the huts with ids from..to inclusive
func HutRange(from, to int) ([]models.Hut, error) {
	if from <= 0 || to < from {
		return nil, fmt.Errorf("invalid hut id range %d..%d", from, to)
	}
	huts := make([]models.Hut, 0, to-from+1)
	for id := from; id <= to; id++ {
		huts = append(huts, models.Hut{ID: id})
	}
	return huts, nil
}
