package models

import "time"

// RunSummary aggregates one runner pass over many huts
type RunSummary struct {
	RunID       string
	Started     time.Time
	Runtime     time.Duration
	HutsChecked int
	Skipped     int // known not in system, never opened
	NotInSystem int
	Succeeded   int
	Partial     int // partial failures, aborted ones included
	Aborted     int
	Errors      int // session failures
	SaveErrors  int

	Records         int
	NumericRecords  int
	TotalFreePlaces int

	TopHuts []HutAvailability
}

// HutAvailability is how much room one hut offered over the probed range
type HutAvailability struct {
	Hut             Hut
	FreePlaces      int
	DatesWithPlaces int
}
