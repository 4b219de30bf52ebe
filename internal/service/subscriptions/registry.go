package subscriptions

import (
	"context"
	"errors"
	"time"

	"FxSentry/internal/domain/models"
	domrepo "FxSentry/internal/domain/repository"
	"FxSentry/pkg/cache"
	"FxSentry/pkg/logger"
)

// Registry is a read-through cache over the subscription store. Monitors
// query it once per cycle per key; entries live for the configured TTL so
// a cycle never blocks on the upstream more than once per key, and a stale
// snapshot is served when the upstream is down.
type Registry struct {
	source domrepo.SubscriptionSource
	cache  cache.Service
	ttl    time.Duration
	log    *logger.Logger
}

func NewRegistry(source domrepo.SubscriptionSource, c cache.Service, ttl time.Duration, log *logger.Logger) *Registry {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Registry{source: source, cache: c, ttl: ttl, log: log}
}

func subscribersKey(instrument string, tf domrepo.Timeframe) string {
	return cache.GenerateKeyWithParams("subs", instrument, tf)
}

func policyKey(subscriberID string) string {
	return cache.GenerateKey("policy", subscriberID)
}

// Subscribers returns the subscriber set for (instrument, timeframe). Cache
// misses fall through to the upstream; upstream failures fall back to an
// expired snapshot when one is still present, otherwise the error surfaces
// and the caller skips fan-out for the key.
func (r *Registry) Subscribers(ctx context.Context, instrument string, tf domrepo.Timeframe) ([]models.Subscriber, error) {
	key := subscribersKey(instrument, tf)

	var cached []models.Subscriber
	if err := r.cache.Get(ctx, key, &cached); err == nil {
		return cached, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		r.log.Warn("subscriber cache read failed", logger.String("key", key), logger.Error(err))
	}

	subs, err := r.source.GetSubscribers(ctx, instrument, tf)
	if err != nil {
		return nil, err
	}

	if err := r.cache.Set(ctx, key, subs, r.ttl); err != nil {
		r.log.Warn("subscriber cache write failed", logger.String("key", key), logger.Error(err))
	}
	return subs, nil
}

// Policy returns the cooldown policy for a subscriber, defaulting when the
// upstream has none recorded.
func (r *Registry) Policy(ctx context.Context, subscriberID string) models.CooldownPolicy {
	key := policyKey(subscriberID)

	var cached models.CooldownPolicy
	if err := r.cache.Get(ctx, key, &cached); err == nil {
		return cached
	}

	p, err := r.source.GetCooldownPolicy(ctx, subscriberID)
	if err != nil {
		r.log.Warn("cooldown policy fetch failed, using default",
			logger.String("subscriber", subscriberID), logger.Error(err))
		return models.DefaultCooldownPolicy()
	}

	if err := r.cache.Set(ctx, key, p, r.ttl); err != nil {
		r.log.Warn("policy cache write failed", logger.String("key", key), logger.Error(err))
	}
	return p
}

// MonitoredKeys returns the distinct (instrument, timeframe) pairs that have
// at least one subscriber. The signal monitor calls this once per cycle.
func (r *Registry) MonitoredKeys(ctx context.Context) ([]models.SignalKey, error) {
	subs, err := r.source.GetSubscriptions(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[models.SignalKey]struct{}, len(subs))
	keys := make([]models.SignalKey, 0, len(subs))
	for _, s := range subs {
		k := models.SignalKey{Instrument: s.Instrument, Timeframe: s.Timeframe}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return keys, nil
}

// OwnerChannels returns the delivery channels a subscriber appears under in
// the subscription set. Served from a cached snapshot of all subscriptions.
func (r *Registry) OwnerChannels(ctx context.Context, ownerID string) []models.Channel {
	const key = "subscriptions:all"

	var subs []models.Subscription
	if err := r.cache.Get(ctx, key, &subs); err != nil {
		fetched, ferr := r.source.GetSubscriptions(ctx)
		if ferr != nil {
			r.log.Warn("subscription snapshot fetch failed",
				logger.String("owner", ownerID), logger.Error(ferr))
			return nil
		}
		subs = fetched
		if serr := r.cache.Set(ctx, key, subs, r.ttl); serr != nil {
			r.log.Warn("subscription snapshot cache write failed", logger.Error(serr))
		}
	}

	seen := make(map[models.Channel]struct{})
	var channels []models.Channel
	for _, s := range subs {
		if s.SubscriberID != ownerID {
			continue
		}
		if _, ok := seen[s.Channel]; ok {
			continue
		}
		seen[s.Channel] = struct{}{}
		channels = append(channels, s.Channel)
	}
	return channels
}

// Invalidate drops cached entries for an instrument so the next cycle
// re-reads the upstream. Exposed through the admin API.
func (r *Registry) Invalidate(ctx context.Context, instrument string) error {
	return r.cache.DeleteByPattern(ctx, cache.BuildPattern(cache.GenerateKey("subs", instrument)+":"))
}
