package authcore

import (
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	internalaudit "github.com/nexusscholar/authcore/internal/audit"
	internalmetrics "github.com/nexusscholar/authcore/internal/metrics"
	"github.com/nexusscholar/authcore/password"
	"github.com/nexusscholar/authcore/ratelimit"
	"github.com/nexusscholar/authcore/secrets"
)

// Builder assembles an [Engine]. Construction is allocation-only until
// Build; no I/O happens before the first Engine call.
type Builder struct {
	config    Config
	store     Store
	sender    EmailSender
	redis     redis.UniversalClient
	auditSink AuditSink
	clock     func() time.Time
	built     bool
}

// New returns a Builder primed with default configuration.
func New() *Builder {
	return &Builder{config: defaultConfig()}
}

// WithConfig replaces the whole configuration. Zero-value subfields are not
// back-filled; start from the defaults and adjust.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithEncryptionKey sets the 16-byte server key sealing secrets at rest.
func (b *Builder) WithEncryptionKey(key []byte) *Builder {
	b.config.EncryptionKey = append([]byte(nil), key...)
	return b
}

// WithStore sets the persistent store. Required.
func (b *Builder) WithStore(s Store) *Builder {
	b.store = s
	return b
}

// WithEmailSender sets the outbound-mail collaborator. Required.
func (b *Builder) WithEmailSender(sender EmailSender) *Builder {
	b.sender = sender
	return b
}

// WithRedis supplies a Redis client. When set, the global per-IP request
// budget is shared across processes instead of being process-local.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithAuditSink enables auditing into the given sink.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	b.config.Audit.Enabled = sink != nil
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithClock replaces the engine's time source, including the rate-limiter
// clocks. Intended for tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

// Build validates the configuration and assembles the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.store == nil {
		return nil, errors.New("store is required")
	}
	if b.sender == nil {
		return nil, errors.New("email sender is required")
	}
	if err := validateConfig(b.config); err != nil {
		return nil, err
	}

	codec, err := secrets.New(b.config.EncryptionKey)
	if err != nil {
		return nil, err
	}

	hasher, err := password.NewHasher(password.Params{
		Memory:      b.config.Password.Memory,
		Time:        b.config.Password.Time,
		Parallelism: b.config.Password.Parallelism,
		SaltLength:  b.config.Password.SaltLength,
		KeyLength:   b.config.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	clock := b.clock
	if clock == nil {
		clock = time.Now
	}

	cfg := b.config
	e := &Engine{
		config:  cfg,
		store:   b.store,
		sender:  b.sender,
		codec:   codec,
		hasher:  hasher,
		now:     clock,
		metrics: internalmetrics.New(internalmetrics.Config{Enabled: cfg.Metrics.Enabled}),
		audit: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.auditSink),

		globalBucket:       ratelimit.NewRefillingTokenBucket[string](cfg.GlobalRateLimit.Max, cfg.GlobalRateLimit.RefillInterval).WithClock(clock),
		signInThrottler:    ratelimit.NewThrottler[string](cfg.SignInThrottle.Timeouts).WithClock(clock),
		totpBucket:         ratelimit.NewExpiringTokenBucket[string](cfg.TOTP.MaxAttempts, cfg.TOTP.AttemptWindow).WithClock(clock),
		recoveryBucket:     ratelimit.NewExpiringTokenBucket[string](cfg.RecoveryCode.MaxAttempts, cfg.RecoveryCode.AttemptWindow).WithClock(clock),
		sendEmailBucket:    ratelimit.NewExpiringTokenBucket[string](cfg.EmailVerification.SendLimit, cfg.EmailVerification.SendWindow).WithClock(clock),
		verifyEmailBucket:  ratelimit.NewExpiringTokenBucket[string](cfg.EmailVerification.VerifyLimit, cfg.EmailVerification.VerifyWindow).WithClock(clock),
		resetIPBucket:      ratelimit.NewRefillingTokenBucket[string](cfg.PasswordReset.RequestsPerIP, cfg.PasswordReset.IPRefillInterval).WithClock(clock),
		resetRequestBucket: ratelimit.NewExpiringTokenBucket[string](cfg.PasswordReset.RequestLimit, cfg.PasswordReset.RequestWindow).WithClock(clock),
		resetCodeBucket:    ratelimit.NewExpiringTokenBucket[string](cfg.PasswordReset.VerifyLimit, cfg.PasswordReset.VerifyWindow).WithClock(clock),
	}

	if b.redis != nil {
		e.globalShared = ratelimit.NewFixedWindowLimiter(
			b.redis,
			cfg.GlobalRateLimit.RedisPrefix,
			cfg.GlobalRateLimit.Max,
			cfg.GlobalRateLimit.RefillInterval*time.Duration(cfg.GlobalRateLimit.Max),
		)
	}

	b.built = true
	return e, nil
}
