package aggregation

import (
	"math"
	"sort"
	"time"

	"github.com/smukkama/helmet-monitor/internal/reading"
)

// OnlineWindow is how recent the latest reading must be for a person to be online
const OnlineWindow = 30 * time.Second

// Status is the liveness classification of a person
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// PersonState is the derived view of one person's history. It is never stored.
type PersonState struct {
	PersonID     string          `json:"person_id"`
	Latest       reading.Reading `json:"latest"`
	Status       Status          `json:"status"`
	LastSeen     time.Time       `json:"last_seen"`
	MQ7Count     int             `json:"mq7_count"`
	MQ2Count     int             `json:"mq2_count"`
	HarmfulCount int             `json:"harmful_count"`
	ReadingCount int             `json:"reading_count"`
}

// Liveness classifies a person whose latest reading was taken at last
func Liveness(last, now time.Time) Status {
	if now.Sub(last) <= OnlineWindow {
		return StatusOnline
	}
	return StatusOffline
}

// Aggregate partitions readings by person and computes each person's state.
// It has no side effects; the same snapshot always yields the same result.
func Aggregate(readings []reading.Reading, now time.Time) map[string]*PersonState {
	states := make(map[string]*PersonState)

	for _, r := range readings {
		if r.PersonID == "" {
			continue
		}

		state, ok := states[r.PersonID]
		if !ok {
			state = &PersonState{PersonID: r.PersonID, Latest: r}
			states[r.PersonID] = state
		} else if !r.Timestamp.Before(state.Latest.Timestamp) {
			// Equal timestamps: the later arrival wins
			state.Latest = r
		}

		state.ReadingCount++
		if r.MQ7.Set() {
			state.MQ7Count++
		}
		if r.MQ2.Set() {
			state.MQ2Count++
		}
		if r.MQ7.Set() || r.MQ2.Set() {
			state.HarmfulCount++
		}
	}

	for _, state := range states {
		state.LastSeen = state.Latest.Timestamp
		state.Status = Liveness(state.LastSeen, now)
	}

	return states
}

// PersonIDs lists the people in readings in order of first appearance
func PersonIDs(readings []reading.Reading) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, r := range readings {
		if r.PersonID == "" || seen[r.PersonID] {
			continue
		}
		seen[r.PersonID] = true
		ids = append(ids, r.PersonID)
	}
	return ids
}

// History returns one person's readings sorted by timestamp. Readings with
// equal timestamps keep their arrival order.
func History(readings []reading.Reading, personID string) []reading.Reading {
	var history []reading.Reading
	for _, r := range readings {
		if r.PersonID == personID {
			history = append(history, r)
		}
	}
	sort.SliceStable(history, func(i, j int) bool {
		return history[i].Timestamp.Before(history[j].Timestamp)
	})
	return history
}

// TrackPoint is one GPS fix
type TrackPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
}

// Track extracts the GPS path from a time-sorted history. Readings without a
// complete fix are skipped.
func Track(history []reading.Reading) []TrackPoint {
	points := make([]TrackPoint, 0, len(history))
	for _, r := range history {
		if r.Latitude == nil || r.Longitude == nil {
			continue
		}
		points = append(points, TrackPoint{
			Timestamp: r.Timestamp,
			Latitude:  *r.Latitude,
			Longitude: *r.Longitude,
		})
	}
	return points
}

// Summary holds the latest environmental values rounded for display
type Summary struct {
	Temperature *float64 `json:"temperature,omitempty"`
	Pressure    *float64 `json:"pressure,omitempty"`
	Humidity    *float64 `json:"humidity,omitempty"`
	Altitude    *float64 `json:"altitude,omitempty"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
}

// Summarize rounds environmental values to 2 decimals and coordinates to 5
func Summarize(latest reading.Reading) Summary {
	return Summary{
		Temperature: round(latest.Temperature, 2),
		Pressure:    round(latest.Pressure, 2),
		Humidity:    round(latest.Humidity, 2),
		Altitude:    round(latest.Altitude, 2),
		Latitude:    round(latest.Latitude, 5),
		Longitude:   round(latest.Longitude, 5),
	}
}

func round(v *float64, places int) *float64 {
	if v == nil {
		return nil
	}
	scale := math.Pow(10, float64(places))
	rounded := math.Round(*v*scale) / scale
	return &rounded
}
