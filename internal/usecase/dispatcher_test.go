package usecase

import (
	"context"
	"testing"
	"time"

	"FxSentry/internal/domain/models"
	"FxSentry/internal/service/cooldown"
)

func alertAt(level models.NotificationLevel) models.PositionAlertEvent {
	return models.PositionAlertEvent{
		PositionID: "pos-1",
		OwnerID:    "owner-1",
		Instrument: "EUR/USD",
		Direction:  models.DirectionLong,
		Level:      level,
		DetectedAt: time.Now(),
	}
}

func newDispatchFixture(t *testing.T, dir *fakeDirectory, now func() time.Time) (*Dispatcher, *fakePublisher) {
	t.Helper()
	pub := &fakePublisher{}
	gate := cooldown.NewWithClock(now)
	d := NewDispatcher(dir, gate, pub, newCountingMetrics(), testLogger(t))
	d.now = now
	return d, pub
}

func TestLevel3CooldownSuppression(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	dir := &fakeDirectory{
		policies: map[string]models.CooldownPolicy{"owner-1": models.DefaultCooldownPolicy()},
		channels: map[string][]models.Channel{"owner-1": {models.ChannelEmail}},
	}
	d, pub := newDispatchFixture(t, dir, clock)
	ctx := context.Background()

	if err := d.DispatchPositionAlert(ctx, alertAt(models.LevelAdjust)); err != nil {
		t.Fatalf("first dispatch: %v", err)
	}
	now = now.Add(10 * time.Minute) // inside the 30m Level-3 window
	if err := d.DispatchPositionAlert(ctx, alertAt(models.LevelAdjust)); err != nil {
		t.Fatalf("second dispatch: %v", err)
	}
	if got := len(pub.alertEvents()); got != 1 {
		t.Fatalf("alerts = %d, want second suppressed", got)
	}

	now = now.Add(25 * time.Minute) // past the window
	if err := d.DispatchPositionAlert(ctx, alertAt(models.LevelAdjust)); err != nil {
		t.Fatalf("third dispatch: %v", err)
	}
	if got := len(pub.alertEvents()); got != 2 {
		t.Fatalf("alerts = %d, want third delivered", got)
	}
}

func TestLevel1BypassesCooldown(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	dir := &fakeDirectory{
		policies: map[string]models.CooldownPolicy{"owner-1": models.DefaultCooldownPolicy()},
		channels: map[string][]models.Channel{"owner-1": {models.ChannelEmail}},
	}
	d, pub := newDispatchFixture(t, dir, clock)
	ctx := context.Background()

	// A Level-2 alert charges the cooldown, then a Level-1 fires seconds later.
	if err := d.DispatchPositionAlert(ctx, alertAt(models.LevelExit)); err != nil {
		t.Fatalf("level2 dispatch: %v", err)
	}
	now = now.Add(5 * time.Second)
	if err := d.DispatchPositionAlert(ctx, alertAt(models.LevelCritical)); err != nil {
		t.Fatalf("level1 dispatch: %v", err)
	}
	alerts := pub.alertEvents()
	if len(alerts) != 2 {
		t.Fatalf("alerts = %d, level1 must never be suppressed", len(alerts))
	}
}

func TestMuteWindowSuppressesRoutineNotCritical(t *testing.T) {
	now := time.Date(2026, 3, 2, 2, 30, 0, 0, time.UTC) // 02:30 UTC
	clock := func() time.Time { return now }
	policy := models.DefaultCooldownPolicy()
	policy.MuteWindows = []models.MuteWindow{{FromMinute: 0, ToMinute: 6 * 60}} // 00:00-06:00
	dir := &fakeDirectory{
		policies: map[string]models.CooldownPolicy{"owner-1": policy},
		channels: map[string][]models.Channel{"owner-1": {models.ChannelEmail}},
	}
	d, pub := newDispatchFixture(t, dir, clock)
	ctx := context.Background()

	if err := d.DispatchPositionAlert(ctx, alertAt(models.LevelAdjust)); err != nil {
		t.Fatalf("muted dispatch: %v", err)
	}
	if got := len(pub.alertEvents()); got != 0 {
		t.Fatalf("alerts = %d, level3 should be muted", got)
	}

	if err := d.DispatchPositionAlert(ctx, alertAt(models.LevelCritical)); err != nil {
		t.Fatalf("critical dispatch: %v", err)
	}
	if got := len(pub.alertEvents()); got != 1 {
		t.Fatalf("alerts = %d, level1 ignores mutes", got)
	}
}

func TestUrgencyThresholdDropsLowUrgency(t *testing.T) {
	policy := models.DefaultCooldownPolicy()
	policy.UrgencyThreshold = models.LevelExit // only levels 1-2 wanted
	dir := &fakeDirectory{
		policies: map[string]models.CooldownPolicy{"owner-1": policy},
		channels: map[string][]models.Channel{"owner-1": {models.ChannelEmail}},
	}
	d, pub := newDispatchFixture(t, dir, time.Now)
	ctx := context.Background()

	if err := d.DispatchPositionAlert(ctx, alertAt(models.LevelAdjust)); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if got := len(pub.alertEvents()); got != 0 {
		t.Fatalf("alerts = %d, level3 above threshold should drop", got)
	}
	if err := d.DispatchPositionAlert(ctx, alertAt(models.LevelExit)); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if got := len(pub.alertEvents()); got != 1 {
		t.Fatalf("alerts = %d, level2 should pass", got)
	}
}

func TestSignalChangeCooldownPerSubscriber(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	coolPolicy := models.DefaultCooldownPolicy()
	hotPolicy := models.DefaultCooldownPolicy()
	hotPolicy.Level3Window = time.Minute
	dir := &fakeDirectory{
		subscribers: map[string][]models.Subscriber{
			"EUR/USD:1h": {
				{ID: "sub-cool", Channel: models.ChannelTelegram, Policy: coolPolicy},
				{ID: "sub-hot", Channel: models.ChannelSlack, Policy: hotPolicy},
			},
		},
	}
	d, pub := newDispatchFixture(t, dir, clock)
	ctx := context.Background()

	event := models.SignalChangeEvent{
		Instrument: "EUR/USD", Timeframe: "1h",
		OldLabel: models.LabelHold, NewLabel: models.LabelBuy,
		NewConfidence: 0.78, DetectedAt: now,
	}
	if err := d.DispatchSignalChange(ctx, event); err != nil {
		t.Fatalf("first dispatch: %v", err)
	}

	now = now.Add(2 * time.Minute)
	event.OldLabel, event.NewLabel = models.LabelBuy, models.LabelSell
	if err := d.DispatchSignalChange(ctx, event); err != nil {
		t.Fatalf("second dispatch: %v", err)
	}

	events := pub.signalEvents()
	if len(events) != 2 {
		t.Fatalf("events = %d", len(events))
	}
	if len(events[0].Subscribers) != 2 {
		t.Fatalf("first event subscribers = %+v", events[0].Subscribers)
	}
	// Two minutes later only the short-window subscriber is eligible again.
	if len(events[1].Subscribers) != 1 || events[1].Subscribers[0].ID != "sub-hot" {
		t.Fatalf("second event subscribers = %+v", events[1].Subscribers)
	}
}

func TestSignalCooldownScopedPerInstrument(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	sub := models.Subscriber{ID: "sub-1", Channel: models.ChannelTelegram, Policy: models.DefaultCooldownPolicy()}
	dir := &fakeDirectory{
		subscribers: map[string][]models.Subscriber{
			"EUR/USD:1h": {sub},
			"GBP/USD:1h": {sub},
		},
	}
	d, pub := newDispatchFixture(t, dir, clock)
	ctx := context.Background()

	eur := models.SignalChangeEvent{
		Instrument: "EUR/USD", Timeframe: "1h",
		OldLabel: models.LabelHold, NewLabel: models.LabelBuy,
		NewConfidence: 0.78, DetectedAt: now,
	}
	if err := d.DispatchSignalChange(ctx, eur); err != nil {
		t.Fatalf("EUR dispatch: %v", err)
	}

	// One minute later GBP/USD flips. Each (instrument, timeframe) carries
	// its own cooldown record, so the EUR window must not suppress it.
	now = now.Add(time.Minute)
	gbp := models.SignalChangeEvent{
		Instrument: "GBP/USD", Timeframe: "1h",
		OldLabel: models.LabelHold, NewLabel: models.LabelSell,
		NewConfidence: 0.81, DetectedAt: now,
	}
	if err := d.DispatchSignalChange(ctx, gbp); err != nil {
		t.Fatalf("GBP dispatch: %v", err)
	}

	events := pub.signalEvents()
	if len(events) != 2 {
		t.Fatalf("events = %d, want both instruments delivered", len(events))
	}
	if events[1].Instrument != "GBP/USD" || len(events[1].Subscribers) != 1 {
		t.Fatalf("second event = %+v", events[1])
	}
}

func TestSignalChangeReachesAllChannelsOfSubscriber(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	policy := models.DefaultCooldownPolicy()
	dir := &fakeDirectory{
		subscribers: map[string][]models.Subscriber{
			"EUR/USD:1h": {
				{ID: "sub-1", Channel: models.ChannelTelegram, Policy: policy},
				{ID: "sub-1", Channel: models.ChannelEmail, Policy: policy},
			},
		},
	}
	d, pub := newDispatchFixture(t, dir, clock)
	ctx := context.Background()

	event := models.SignalChangeEvent{
		Instrument: "EUR/USD", Timeframe: "1h",
		OldLabel: models.LabelHold, NewLabel: models.LabelBuy,
		NewConfidence: 0.78, DetectedAt: now,
	}
	if err := d.DispatchSignalChange(ctx, event); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	events := pub.signalEvents()
	if len(events) != 1 {
		t.Fatalf("events = %d", len(events))
	}
	// The cooldown gates the subscriber, not the channel row: one admitted
	// subscriber delivers to every channel they registered.
	refs := events[0].Subscribers
	if len(refs) != 2 {
		t.Fatalf("subscriber refs = %+v, want both channels of sub-1", refs)
	}
	seen := map[models.Channel]bool{}
	for _, r := range refs {
		if r.ID != "sub-1" {
			t.Fatalf("unexpected subscriber %q", r.ID)
		}
		seen[r.Channel] = true
	}
	if !seen[models.ChannelTelegram] || !seen[models.ChannelEmail] {
		t.Fatalf("channels = %+v", refs)
	}

	// The single admit charged one window for the pair.
	now = now.Add(time.Minute)
	event.OldLabel, event.NewLabel = models.LabelBuy, models.LabelSell
	if err := d.DispatchSignalChange(ctx, event); err != nil {
		t.Fatalf("second dispatch: %v", err)
	}
	if got := len(pub.signalEvents()); got != 1 {
		t.Fatalf("events = %d, in-window change must stay suppressed", got)
	}
}

func TestNoSurvivorsMeansNoPublish(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	dir := &fakeDirectory{
		subscribers: map[string][]models.Subscriber{
			"EUR/USD:1h": {{ID: "sub-1", Channel: models.ChannelTelegram, Policy: models.DefaultCooldownPolicy()}},
		},
	}
	d, pub := newDispatchFixture(t, dir, clock)
	ctx := context.Background()

	event := models.SignalChangeEvent{
		Instrument: "EUR/USD", Timeframe: "1h",
		NewLabel: models.LabelBuy, NewConfidence: 0.7, DetectedAt: now,
	}
	if err := d.DispatchSignalChange(ctx, event); err != nil {
		t.Fatalf("first dispatch: %v", err)
	}
	now = now.Add(time.Minute)
	event.NewLabel = models.LabelSell
	if err := d.DispatchSignalChange(ctx, event); err != nil {
		t.Fatalf("second dispatch: %v", err)
	}
	if got := len(pub.signalEvents()); got != 1 {
		t.Fatalf("events = %d, suppressed-for-all change must not publish", got)
	}
}
