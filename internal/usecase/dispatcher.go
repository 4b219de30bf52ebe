package usecase

import (
	"context"
	"fmt"
	"time"

	"FxSentry/internal/domain/models"
	domrepo "FxSentry/internal/domain/repository"
	applogger "FxSentry/pkg/logger"
)

// SubscriberDirectory is the registry surface the monitors consume.
type SubscriberDirectory interface {
	Subscribers(ctx context.Context, instrument string, tf domrepo.Timeframe) ([]models.Subscriber, error)
	Policy(ctx context.Context, subscriberID string) models.CooldownPolicy
	MonitoredKeys(ctx context.Context) ([]models.SignalKey, error)
	OwnerChannels(ctx context.Context, ownerID string) []models.Channel
}

// CooldownGate throttles repeat notifications per (subscriber, topic).
type CooldownGate interface {
	TryAcquire(subscriberID, topic string, level models.NotificationLevel, window time.Duration) bool
	Bypass(subscriberID, topic string)
}

// Dispatcher fans events out: it resolves subscribers, filters each through
// the cooldown gate and mute windows, and publishes one message per topic
// with the surviving recipients attached. Level-1 alerts bypass both the
// cooldown window and mutes.
type Dispatcher struct {
	dir     SubscriberDirectory
	gate    CooldownGate
	pub     domrepo.EventPublisher
	metrics domrepo.Metrics
	l       *applogger.Logger
	now     func() time.Time
}

func NewDispatcher(dir SubscriberDirectory, gate CooldownGate, pub domrepo.EventPublisher, m domrepo.Metrics, l *applogger.Logger) *Dispatcher {
	return &Dispatcher{dir: dir, gate: gate, pub: pub, metrics: m, l: l, now: time.Now}
}

// DispatchSignalChange delivers a label transition to every subscriber of
// the key whose cooldown allows it. Signal changes are Level-3 class.
func (d *Dispatcher) DispatchSignalChange(ctx context.Context, e models.SignalChangeEvent) error {
	subs, err := d.dir.Subscribers(ctx, e.Instrument, domrepo.Timeframe(e.Timeframe))
	if err != nil {
		return fmt.Errorf("resolve subscribers for %s: %w", e.Key(), err)
	}

	// One cooldown record per (subscriber, instrument, timeframe). A
	// subscriber appears once per channel in the registry answer; the gate
	// is consulted once per subscriber and every channel of an admitted
	// subscriber rides the same acquisition.
	now := d.now()
	topic := signalTopicKey(e)
	admitted := make(map[string]bool, len(subs))
	refs := make([]models.SubscriberRef, 0, len(subs))
	for _, sub := range subs {
		ok, decided := admitted[sub.ID]
		if !decided {
			ok = d.admit(sub.ID, topic, models.LevelAdjust, sub.Policy, now)
			admitted[sub.ID] = ok
		}
		if ok {
			refs = append(refs, models.SubscriberRef{ID: sub.ID, Channel: sub.Channel})
		}
	}
	if len(refs) == 0 {
		return nil
	}

	e.Subscribers = refs
	return d.pub.PublishSignalChange(ctx, e)
}

// DispatchPositionAlert delivers an urgency-classified alert to the position
// owner on each of their channels.
func (d *Dispatcher) DispatchPositionAlert(ctx context.Context, e models.PositionAlertEvent) error {
	policy := d.dir.Policy(ctx, e.OwnerID)
	now := d.now()
	topic := positionTopicKey(e)

	if e.Level == models.LevelCritical {
		d.gate.Bypass(e.OwnerID, topic)
	} else {
		if e.Level > policy.UrgencyThreshold {
			d.metrics.RecordSuppressed(levelName(e.Level))
			return nil
		}
		if !d.admit(e.OwnerID, topic, e.Level, policy, now) {
			return nil
		}
	}

	e.Subscribers = ownerRefs(d.dir.OwnerChannels(ctx, e.OwnerID), e.OwnerID)
	return d.pub.PublishPositionAlert(ctx, e)
}

// DispatchPositionSummary publishes the Level-4 daily digest. Summaries run
// on their own schedule and never consult the gate.
func (d *Dispatcher) DispatchPositionSummary(ctx context.Context, e models.PositionSummaryEvent) error {
	e.Subscribers = ownerRefs(d.dir.OwnerChannels(ctx, e.OwnerID), e.OwnerID)
	return d.pub.PublishPositionSummary(ctx, e)
}

// admit applies mute windows then the cooldown window for a non-critical
// level. Records suppression metrics on rejection.
func (d *Dispatcher) admit(subscriberID, topic string, level models.NotificationLevel, policy models.CooldownPolicy, now time.Time) bool {
	if policy.Muted(now) {
		d.metrics.RecordSuppressed(levelName(level))
		return false
	}
	if !d.gate.TryAcquire(subscriberID, topic, level, policy.Window(level)) {
		d.metrics.RecordSuppressed(levelName(level))
		d.l.Debug("notification suppressed by cooldown",
			applogger.String("subscriber", subscriberID),
			applogger.String("topic", topic),
			applogger.Int("level", int(level)),
		)
		return false
	}
	return true
}

// signalTopicKey scopes the cooldown to the monitored key, so a change on
// one instrument never charges the window of another.
func signalTopicKey(e models.SignalChangeEvent) string {
	return models.TopicSignalChange + ":" + e.Key().String()
}

// positionTopicKey scopes the cooldown to the instrument the position rides.
func positionTopicKey(e models.PositionAlertEvent) string {
	return models.TopicPositionAlert + ":" + e.Instrument
}

func ownerRefs(channels []models.Channel, ownerID string) []models.SubscriberRef {
	if len(channels) == 0 {
		channels = []models.Channel{models.ChannelWebhook}
	}
	refs := make([]models.SubscriberRef, 0, len(channels))
	for _, ch := range channels {
		refs = append(refs, models.SubscriberRef{ID: ownerID, Channel: ch})
	}
	return refs
}

func levelName(l models.NotificationLevel) string {
	return fmt.Sprintf("level%d", int(l))
}
