package models

import "time"

// Channel identifies which adapter owns delivery of a subscriber's messages.
type Channel string

const (
	ChannelTelegram Channel = "telegram"
	ChannelSlack    Channel = "slack"
	ChannelEmail    Channel = "email"
	ChannelWebhook  Channel = "webhook"
)

func (c Channel) IsValid() bool {
	switch c {
	case ChannelTelegram, ChannelSlack, ChannelEmail, ChannelWebhook:
		return true
	default:
		return false
	}
}

// Subscription binds one subscriber+channel to one monitored key.
// Unique on (SubscriberID, Channel, Instrument, Timeframe).
type Subscription struct {
	SubscriberID string
	Channel      Channel
	Instrument   string
	Timeframe    string
}

// Key returns the monitored key the subscription refers to.
func (s Subscription) Key() SignalKey {
	return SignalKey{Instrument: s.Instrument, Timeframe: s.Timeframe}
}

// MuteWindow is a daily quiet interval in the subscriber's notification
// policy, expressed as minutes since midnight UTC. Windows may wrap past
// midnight (From > To).
type MuteWindow struct {
	FromMinute int
	ToMinute   int
}

// Contains reports whether t falls inside the window.
func (w MuteWindow) Contains(t time.Time) bool {
	m := t.UTC().Hour()*60 + t.UTC().Minute()
	if w.FromMinute <= w.ToMinute {
		return m >= w.FromMinute && m < w.ToMinute
	}
	return m >= w.FromMinute || m < w.ToMinute
}

// CooldownPolicy is a subscriber's notification throttling policy.
type CooldownPolicy struct {
	Level2Window     time.Duration
	Level3Window     time.Duration
	UrgencyThreshold NotificationLevel // alerts above this level are dropped
	MuteWindows      []MuteWindow
	AutoAdjustSL     bool
}

// Window returns the cooldown window for the given level. Level 1 has no
// window and Level 4 runs on its own schedule.
func (p CooldownPolicy) Window(level NotificationLevel) time.Duration {
	switch level {
	case LevelExit:
		return p.Level2Window
	case LevelAdjust:
		return p.Level3Window
	default:
		return 0
	}
}

// Muted reports whether any mute window covers t.
func (p CooldownPolicy) Muted(t time.Time) bool {
	for _, w := range p.MuteWindows {
		if w.Contains(t) {
			return true
		}
	}
	return false
}

// DefaultCooldownPolicy mirrors the registry's server-side defaults for
// subscribers without an explicit policy.
func DefaultCooldownPolicy() CooldownPolicy {
	return CooldownPolicy{
		Level2Window:     5 * time.Minute,
		Level3Window:     30 * time.Minute,
		UrgencyThreshold: LevelSummary,
	}
}

// Subscriber is the registry's answer for one subscription: identity plus
// delivery channel and resolved policy.
type Subscriber struct {
	ID      string
	Channel Channel
	Policy  CooldownPolicy
}
