package subscriptions

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"FxSentry/internal/domain/models"
	domrepo "FxSentry/internal/domain/repository"
	"FxSentry/internal/service/retry"
	xhttp "FxSentry/pkg/http"
)

// Client talks to the external subscription store over HTTP. It implements
// repository.SubscriptionSource; callers should go through the Registry
// cache rather than hitting this directly from hot paths.
type Client struct {
	baseURL string
	http    *xhttp.Client
	retry   retry.Policy
}

type Option func(*Client)

func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Client) { c.retry = p.Normalized() }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http = xhttp.NewClient(xhttp.WithTimeout(d)) }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    xhttp.NewClient(xhttp.WithTimeout(5 * time.Second)),
		retry:   retry.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type subscriberDTO struct {
	ID      string            `json:"id"`
	Channel string            `json:"channel"`
	Policy  cooldownPolicyDTO `json:"cooldownPolicy"`
}

type cooldownPolicyDTO struct {
	Level2WindowSec  int             `json:"level2WindowSec"`
	Level3WindowSec  int             `json:"level3WindowSec"`
	UrgencyThreshold int             `json:"urgencyThreshold"`
	AutoAdjustSL     bool            `json:"autoAdjustSl"`
	MuteWindows      []muteWindowDTO `json:"muteWindows"`
}

type muteWindowDTO struct {
	FromMinute int `json:"fromMinute"`
	ToMinute   int `json:"toMinute"`
}

type subscriptionDTO struct {
	SubscriberID string `json:"subscriberId"`
	Channel      string `json:"channel"`
	Instrument   string `json:"instrument"`
	Timeframe    string `json:"timeframe"`
}

func (c *Client) GetSubscribers(ctx context.Context, instrument string, tf domrepo.Timeframe) ([]models.Subscriber, error) {
	var dtos []subscriberDTO
	err := c.fetch(ctx, c.baseURL+"/subscribers", map[string][]string{
		"instrument": {instrument},
		"timeframe":  {string(tf)},
	}, &dtos)
	if err != nil {
		return nil, err
	}

	subs := make([]models.Subscriber, 0, len(dtos))
	for _, d := range dtos {
		subs = append(subs, toSubscriber(d))
	}
	return subs, nil
}

func (c *Client) GetSubscriptions(ctx context.Context) ([]models.Subscription, error) {
	var dtos []subscriptionDTO
	if err := c.fetch(ctx, c.baseURL+"/subscriptions", nil, &dtos); err != nil {
		return nil, err
	}

	out := make([]models.Subscription, 0, len(dtos))
	for _, d := range dtos {
		tf := domrepo.NormalizeTimeframe(d.Timeframe)
		ch := models.Channel(d.Channel)
		if !ch.IsValid() {
			ch = models.ChannelWebhook
		}
		out = append(out, models.Subscription{
			SubscriberID: d.SubscriberID,
			Channel:      ch,
			Instrument:   d.Instrument,
			Timeframe:    string(tf),
		})
	}
	return out, nil
}

func (c *Client) GetCooldownPolicy(ctx context.Context, subscriberID string) (models.CooldownPolicy, error) {
	var dto cooldownPolicyDTO
	err := c.fetch(ctx, c.baseURL+"/subscribers/"+subscriberID+"/cooldown-policy", nil, &dto)
	if err != nil {
		return models.CooldownPolicy{}, err
	}
	return toPolicy(dto), nil
}

func (c *Client) fetch(ctx context.Context, url string, query map[string][]string, dest interface{}) error {
	op := func(ctx context.Context) error {
		resp, err := c.http.SendRequest(ctx, &xhttp.RequestOptions{
			Method:      xhttp.MethodGet,
			URL:         url,
			QueryParams: query,
		})
		if err != nil {
			return &domrepo.UpstreamError{Service: "subscriptions", Err: err}
		}
		defer resp.Body.Close()

		if resp.StatusCode >= http.StatusInternalServerError {
			return &domrepo.UpstreamError{
				Service: "subscriptions",
				Err:     fmt.Errorf("status %d", resp.StatusCode),
			}
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("subscriptions: unexpected status %d", resp.StatusCode)
		}
		if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
			return &domrepo.UpstreamError{Service: "subscriptions", Err: err}
		}
		return nil
	}
	return c.retry.Do(ctx, op, domrepo.IsUpstream)
}

func toSubscriber(d subscriberDTO) models.Subscriber {
	ch := models.Channel(d.Channel)
	if !ch.IsValid() {
		ch = models.ChannelWebhook
	}
	return models.Subscriber{
		ID:      d.ID,
		Channel: ch,
		Policy:  toPolicy(d.Policy),
	}
}

func toPolicy(d cooldownPolicyDTO) models.CooldownPolicy {
	p := models.DefaultCooldownPolicy()
	if d.Level2WindowSec > 0 {
		p.Level2Window = time.Duration(d.Level2WindowSec) * time.Second
	}
	if d.Level3WindowSec > 0 {
		p.Level3Window = time.Duration(d.Level3WindowSec) * time.Second
	}
	if lvl := models.NotificationLevel(d.UrgencyThreshold); lvl.IsValid() {
		p.UrgencyThreshold = lvl
	}
	p.AutoAdjustSL = d.AutoAdjustSL
	for _, w := range d.MuteWindows {
		p.MuteWindows = append(p.MuteWindows, models.MuteWindow{
			FromMinute: w.FromMinute,
			ToMinute:   w.ToMinute,
		})
	}
	return p
}
