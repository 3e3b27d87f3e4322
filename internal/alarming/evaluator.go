package alarming

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/smukkama/helmet-monitor/internal/aggregation"
	"github.com/smukkama/helmet-monitor/internal/clock"
	"github.com/smukkama/helmet-monitor/internal/protocol"
	"github.com/smukkama/helmet-monitor/internal/reading"
)

// CounterTracker keeps per-person counters and advisory fingerprints
type CounterTracker interface {
	Record(ctx context.Context, r reading.Reading) (*Counters, error)
	Get(ctx context.Context, personID string) (*Counters, error)
	SwapFingerprint(ctx context.Context, personID, fingerprint string) (string, error)
}

// Publisher sends notifications downstream
type Publisher interface {
	PublishAdvisory(ctx context.Context, n *protocol.AdvisoryNotification) error
}

// Scheduler arms a per-person offline deadline
type Scheduler interface {
	Arm(personID string, expiryAt time.Time) error
}

// Evaluator runs the advisory rules over the reading stream and publishes a
// notification whenever a person's actionable advisories change
type Evaluator struct {
	counters  CounterTracker
	publisher Publisher
	scheduler Scheduler
	clock     clock.Clock
	logger    *zap.Logger
}

// NewEvaluator creates a new advisory evaluator. scheduler may be nil.
func NewEvaluator(counters CounterTracker, publisher Publisher, scheduler Scheduler, clk clock.Clock, logger *zap.Logger) *Evaluator {
	return &Evaluator{
		counters:  counters,
		publisher: publisher,
		scheduler: scheduler,
		clock:     clk,
		logger:    logger,
	}
}

// HandleReading updates the person's counters, re-arms the offline deadline
// and publishes ADVISORY_RAISED or ADVISORY_CLEARED on a fingerprint change
func (e *Evaluator) HandleReading(ctx context.Context, ev *protocol.ReadingEvent) error {
	r := ev.Reading
	if r.PersonID == "" {
		r.PersonID = ev.PersonID
	}
	if r.PersonID == "" {
		return fmt.Errorf("reading event %s has no person id", ev.EventID)
	}

	counters, err := e.counters.Record(ctx, r)
	if err != nil {
		return err
	}

	if e.scheduler != nil {
		if err := e.scheduler.Arm(r.PersonID, r.Timestamp.Add(aggregation.OnlineWindow)); err != nil {
			e.logger.Warn("failed to arm offline deadline", zap.String("person_id", r.PersonID), zap.Error(err))
		}
	}

	advisories := Evaluate(r, int(counters.MQ7), int(counters.MQ2))
	fingerprint := Fingerprint(advisories)

	previous, err := e.counters.SwapFingerprint(ctx, r.PersonID, fingerprint)
	if err != nil {
		return err
	}
	if fingerprint == previous {
		return nil
	}

	notificationType := NotificationTypeFor(previous, fingerprint)
	e.logger.Info("advisories changed",
		zap.String("person_id", r.PersonID),
		zap.String("type", notificationType),
		zap.String("previous", previous),
		zap.String("current", fingerprint))

	return e.sendNotification(ctx, e.newNotification(notificationType, r.PersonID, Highest(advisories), advisories, counters))
}

// HandleOffline publishes PERSON_OFFLINE for a person whose deadline expired
func (e *Evaluator) HandleOffline(ctx context.Context, personID string) error {
	counters, err := e.counters.Get(ctx, personID)
	if err != nil {
		return err
	}

	e.logger.Info("person went offline",
		zap.String("person_id", personID),
		zap.Time("last_seen", counters.LastSeen))

	return e.sendNotification(ctx, e.newNotification(protocol.NotificationOffline, personID, SeverityWarning, nil, counters))
}

// NotificationTypeFor maps a fingerprint transition to a notification type
func NotificationTypeFor(previous, current string) string {
	if current == "" && previous != "" {
		return protocol.NotificationCleared
	}
	return protocol.NotificationRaised
}

func (e *Evaluator) newNotification(notificationType, personID string, severity Severity, advisories []Advisory, counters *Counters) *protocol.AdvisoryNotification {
	items := make([]protocol.AdvisoryItem, 0, len(advisories))
	for _, a := range advisories {
		items = append(items, protocol.AdvisoryItem{
			Severity:  string(a.Severity),
			Dimension: a.Dimension,
			Message:   a.Message,
		})
	}

	return &protocol.AdvisoryNotification{
		NotificationID: uuid.NewString(),
		Type:           notificationType,
		PersonID:       personID,
		Severity:       string(severity),
		Advisories:     items,
		MQ7Count:       counters.MQ7,
		MQ2Count:       counters.MQ2,
		HarmfulCount:   counters.Harmful,
		LastSeen:       counters.LastSeen,
		CreatedAt:      e.clock.Now(),
	}
}

func (e *Evaluator) sendNotification(ctx context.Context, notification *protocol.AdvisoryNotification) error {
	if err := e.publisher.PublishAdvisory(ctx, notification); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}
