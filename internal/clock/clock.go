package clock

import (
	"fmt"
	"time"

	// Embedded zone database so the reference zone resolves on minimal images
	_ "time/tzdata"
)

// DefaultZone is the reference timezone for ingestion timestamps and liveness
const DefaultZone = "Africa/Nairobi"

// Clock supplies the current time in the reference timezone
type Clock interface {
	Now() time.Time
}

// Zoned is the wall clock converted to a fixed location
type Zoned struct {
	loc *time.Location
}

// New creates a clock for the named IANA zone
func New(zone string) (*Zoned, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", zone, err)
	}
	return &Zoned{loc: loc}, nil
}

// Now returns the current time in the clock's zone
func (z *Zoned) Now() time.Time {
	return time.Now().In(z.loc)
}

// Location returns the clock's zone
func (z *Zoned) Location() *time.Location {
	return z.loc
}

// Fixed always returns the same instant. Used by tests and replays.
type Fixed struct {
	T time.Time
}

// Now returns the fixed instant
func (f Fixed) Now() time.Time {
	return f.T
}
