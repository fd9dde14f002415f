package internal

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/go-logr/logr"
)

const (
	// DefaultExpiryWindow is how long a credential must stay valid after it is
	// handed out.
	DefaultExpiryWindow = time.Minute
	// DefaultExchangeTimeout bounds a single STS exchange.
	DefaultExchangeTimeout = 30 * time.Second

	// CredentialsSource is reported in aws.Credentials.Source.
	CredentialsSource = "webidctl"
)

// Observer is notified of cache activity. Metrics implements it.
type Observer interface {
	CacheHit()
	ExchangeCompleted(creds Credentials, err error)
}

type nopObserver struct{}

func (nopObserver) CacheHit() {}
func (nopObserver) ExchangeCompleted(Credentials, error) {}

// Option configures a CredentialCache.
type Option func(*CredentialCache)

// WithClock replaces time.Now for staleness checks.
func WithClock(now func() time.Time) Option {
	return func(c *CredentialCache) {
		c.now = now
	}
}

// WithExpiryWindow sets the margin before expiration at which a cached
// credential is refreshed. Default: 1 minute.
func WithExpiryWindow(d time.Duration) Option {
	return func(c *CredentialCache) {
		c.window = d
	}
}

// WithExchangeTimeout bounds each exchange. Default: 30 seconds.
func WithExchangeTimeout(d time.Duration) Option {
	return func(c *CredentialCache) {
		c.timeout = d
	}
}

func WithLogger(log logr.Logger) Option {
	return func(c *CredentialCache) {
		c.log = log
	}
}

func WithObserver(o Observer) Option {
	return func(c *CredentialCache) {
		c.observer = o
	}
}

// CredentialCache holds one role's temporary credentials and refreshes them
// lazily, on the calling goroutine, when they are missing or about to expire.
// Refreshes are serialized: callers queued behind an exchange receive its
// outcome instead of issuing their own.
type CredentialCache struct {
	cfg       RoleConfig
	exchanger Exchanger
	now       func() time.Time
	window    time.Duration
	timeout   time.Duration
	log       logr.Logger
	observer  Observer

	// attempts counts finished exchanges. It is written under mu and read
	// before queueing so a waiter can tell whether an exchange finished while
	// it waited.
	attempts atomic.Uint64

	mu      sync.Mutex
	creds   *Credentials
	lastErr error

	// onWait, if set at construction, runs after a caller samples attempts
	// and before it locks mu.
	onWait func()
}

var _ aws.CredentialsProvider = (*CredentialCache)(nil)

// NewCredentialCache returns an empty cache for cfg.
func NewCredentialCache(cfg RoleConfig, exchanger Exchanger, opts ...Option) *CredentialCache {
	c := &CredentialCache{
		cfg:       cfg,
		exchanger: exchanger,
		now:       time.Now,
		window:    DefaultExpiryWindow,
		timeout:   DefaultExchangeTimeout,
		log:       logr.Discard(),
		observer:  nopObserver{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config returns the role configuration the cache was built with.
func (c *CredentialCache) Config() RoleConfig {
	return c.cfg
}

// ExpiryWindow returns the refresh margin.
func (c *CredentialCache) ExpiryWindow() time.Duration {
	return c.window
}

// Get returns credentials valid for at least the expiry window, exchanging a
// new token first if needed.
func (c *CredentialCache) Get(ctx context.Context) (AWSCredential, error) {
	creds, err := c.get(ctx, false)
	if err != nil {
		return AWSCredential{}, err
	}
	return creds.Project(), nil
}

// Refresh exchanges unconditionally. On failure the cached value is kept.
func (c *CredentialCache) Refresh(ctx context.Context) error {
	_, err := c.get(ctx, true)
	return err
}

// Retrieve implements aws.CredentialsProvider. Expires is the point at which
// this cache would refresh, so an aws.CredentialsCache wrapping it asks again
// then.
func (c *CredentialCache) Retrieve(ctx context.Context) (aws.Credentials, error) {
	v, deadline, err := c.GetWithDeadline(ctx)
	if err != nil {
		return aws.Credentials{}, err
	}
	return aws.Credentials{
		AccessKeyID:     v.AccessKeyID,
		SecretAccessKey: v.SecretAccessKey,
		SessionToken:    v.SessionToken,
		Source:          CredentialsSource,
		CanExpire:       true,
		Expires:         deadline,
	}, nil
}

// GetWithDeadline is Get for callers that hand credentials to another process
// and must tell it when to ask again. The deadline is the expiration minus the
// expiry window, the point at which this cache would refresh.
func (c *CredentialCache) GetWithDeadline(ctx context.Context) (AWSCredential, time.Time, error) {
	creds, err := c.get(ctx, false)
	if err != nil {
		return AWSCredential{}, time.Time{}, err
	}
	return creds.Project(), creds.Expiration.Add(-c.window), nil
}

func (c *CredentialCache) stale(creds *Credentials) bool {
	return creds.Expiration.Before(c.now().Add(c.window))
}

func (c *CredentialCache) get(ctx context.Context, force bool) (Credentials, error) {
	if err := ctx.Err(); err != nil {
		return Credentials{}, err
	}

	seen := c.attempts.Load()
	if c.onWait != nil {
		c.onWait()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.attempts.Load() != seen {
		// An exchange finished while we waited; share its outcome.
		if c.lastErr != nil {
			return Credentials{}, c.lastErr
		}
		return *c.creds, nil
	}

	if !force && c.creds != nil && !c.stale(c.creds) {
		c.observer.CacheHit()
		return *c.creds, nil
	}

	return c.exchangeLocked(ctx)
}

func (c *CredentialCache) exchangeLocked(ctx context.Context) (Credentials, error) {
	log := c.log.WithValues("roleARN", c.cfg.RoleARN, "sessionName", c.cfg.SessionName)
	if c.creds == nil {
		log.V(1).Info("fetching credentials")
	} else {
		log.V(1).Info("refreshing credentials", "expiration", c.creds.Expiration)
	}

	exCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	creds, err := c.exchanger.Exchange(exCtx, c.cfg)
	c.attempts.Add(1)
	c.observer.ExchangeCompleted(creds, err)
	if err != nil {
		c.lastErr = err
		var exErr *ExchangeError
		if errors.As(err, &exErr) && exErr.Code() != "" {
			log.Error(err, "credential exchange failed", "code", exErr.Code())
		} else {
			log.Error(err, "credential exchange failed")
		}
		return Credentials{}, err
	}

	c.lastErr = nil
	c.creds = &creds
	log.Info("new credentials", "accessKeyID", creds.AccessKeyID, "expiration", creds.Expiration)
	if c.stale(&creds) {
		log.Info("STS returned credentials inside the expiry window", "window", c.window)
	}
	return creds, nil
}
