// Package dashboard projects the reading history into the views the
// monitoring dashboard renders.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/smukkama/helmet-monitor/internal/aggregation"
	"github.com/smukkama/helmet-monitor/internal/alarming"
	"github.com/smukkama/helmet-monitor/internal/clock"
	"github.com/smukkama/helmet-monitor/internal/reading"
	"github.com/smukkama/helmet-monitor/internal/store"
)

// ErrPersonNotFound is returned for a person id with no readings
var ErrPersonNotFound = errors.New("person not found")

// Service builds dashboard views from a store snapshot
type Service struct {
	store  store.Store
	clock  clock.Clock
	logger *zap.Logger
}

// NewService creates a dashboard service reading from st
func NewService(st store.Store, clk clock.Clock, logger *zap.Logger) *Service {
	return &Service{store: st, clock: clk, logger: logger}
}

// PersonStatus is one entry of the status list
type PersonStatus struct {
	PersonID        string             `json:"person_id"`
	Status          aggregation.Status `json:"status"`
	LastSeen        time.Time          `json:"last_seen"`
	SecondsSince    float64            `json:"seconds_since_last_seen"`
	HarmfulCount    int                `json:"harmful_count"`
	HighestSeverity alarming.Severity  `json:"highest_severity"`
}

// PersonDetail is the full view of one person
type PersonDetail struct {
	*aggregation.PersonState
	Summary    aggregation.Summary `json:"summary"`
	Advisories []alarming.Advisory `json:"advisories"`
}

// Overview counts records and people
type Overview struct {
	TotalRecords int       `json:"total_records"`
	Persons      int       `json:"persons"`
	Online       int       `json:"online"`
	GeneratedAt  time.Time `json:"generated_at"`
}

// Track is a person's GPS path
type Track struct {
	PersonID string                   `json:"person_id"`
	Points   []aggregation.TrackPoint `json:"points"`
	Last     *aggregation.TrackPoint  `json:"last,omitempty"`
}

// Readings returns the full history in arrival order
func (s *Service) Readings(ctx context.Context) ([]reading.Reading, error) {
	return s.store.ReadAll(ctx)
}

// Overview summarises the whole collection
func (s *Service) Overview(ctx context.Context) (*Overview, error) {
	readings, err := s.store.ReadAll(ctx)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	states := aggregation.Aggregate(readings, now)
	online := 0
	for _, st := range states {
		if st.Status == aggregation.StatusOnline {
			online++
		}
	}

	return &Overview{
		TotalRecords: len(readings),
		Persons:      len(states),
		Online:       online,
		GeneratedAt:  now,
	}, nil
}

// Persons lists every person with liveness, in order of first appearance
func (s *Service) Persons(ctx context.Context) ([]PersonStatus, error) {
	readings, err := s.store.ReadAll(ctx)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	states := aggregation.Aggregate(readings, now)

	statuses := make([]PersonStatus, 0, len(states))
	for _, id := range aggregation.PersonIDs(readings) {
		state := states[id]
		advisories, err := s.evaluate(state)
		if err != nil {
			s.logger.Error("skipping person in status list", zap.String("person_id", id), zap.Error(err))
			continue
		}

		statuses = append(statuses, PersonStatus{
			PersonID:        id,
			Status:          state.Status,
			LastSeen:        state.LastSeen,
			SecondsSince:    now.Sub(state.LastSeen).Seconds(),
			HarmfulCount:    state.HarmfulCount,
			HighestSeverity: alarming.Highest(advisories),
		})
	}

	return statuses, nil
}

// Person returns state, summary and advisories for one person
func (s *Service) Person(ctx context.Context, personID string) (*PersonDetail, error) {
	readings, err := s.store.ReadAll(ctx)
	if err != nil {
		return nil, err
	}

	state, ok := aggregation.Aggregate(aggregation.History(readings, personID), s.clock.Now())[personID]
	if !ok {
		return nil, ErrPersonNotFound
	}

	advisories, err := s.evaluate(state)
	if err != nil {
		return nil, err
	}

	return &PersonDetail{
		PersonState: state,
		Summary:     aggregation.Summarize(state.Latest),
		Advisories:  advisories,
	}, nil
}

// History returns one person's readings sorted by timestamp
func (s *Service) History(ctx context.Context, personID string) ([]reading.Reading, error) {
	readings, err := s.store.ReadAll(ctx)
	if err != nil {
		return nil, err
	}

	history := aggregation.History(readings, personID)
	if len(history) == 0 {
		return nil, ErrPersonNotFound
	}
	return history, nil
}

// Track returns one person's GPS path
func (s *Service) Track(ctx context.Context, personID string) (*Track, error) {
	history, err := s.History(ctx, personID)
	if err != nil {
		return nil, err
	}

	track := &Track{PersonID: personID, Points: aggregation.Track(history)}
	if n := len(track.Points); n > 0 {
		last := track.Points[n-1]
		track.Last = &last
	}
	return track, nil
}

// evaluate runs the rules for one person. A panic is reported as an error so
// one bad record cannot take down a whole dashboard pass.
func (s *Service) evaluate(state *aggregation.PersonState) (advisories []alarming.Advisory, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("advisory evaluation failed for %s: %v", state.PersonID, r)
		}
	}()

	return alarming.Evaluate(state.Latest, state.MQ7Count, state.MQ2Count), nil
}
