package models

import (
	"fmt"
	"sync"
	"time"
	_ "time/tzdata"
)

var (
	locOnce sync.Once
	locVal  *time.Location
)

// Santiago returns the America/Santiago location, falling back to UTC-3
// if the zone database cannot be read.
func Santiago() *time.Location {
	locOnce.Do(func() {
		loc, err := time.LoadLocation(DefaultTimezone)
		if err != nil {
			loc = time.FixedZone("CLT", -3*60*60)
		}
		locVal = loc
	})
	return locVal
}

// LoadLocation resolves a configured timezone name; empty means Santiago.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" || name == DefaultTimezone {
		return Santiago(), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return loc, nil
}
