package authcore

import (
	"errors"
	"time"
)

// Config holds all engine tuning. Treat an instance as immutable once
// passed to [Builder.WithConfig].
type Config struct {
	// EncryptionKey is the static 16-byte server key sealing TOTP keys and
	// recovery codes at rest. Loaded once at startup; never logged.
	EncryptionKey []byte

	Session           SessionConfig
	Password          PasswordConfig
	TOTP              TOTPConfig
	RecoveryCode      RecoveryCodeConfig
	EmailVerification EmailVerificationConfig
	PasswordReset     PasswordResetConfig
	SignInThrottle    SignInThrottleConfig
	GlobalRateLimit   GlobalRateLimitConfig
	Audit             AuditConfig
	Metrics           MetricsConfig
}

// SessionConfig controls ordinary session lifetime. Sessions renew
// (sliding expiration) once more than half the lifetime has elapsed, so an
// idle session still dies after Lifetime.
type SessionConfig struct {
	Lifetime time.Duration
}

// PasswordConfig carries the Argon2id cost parameters (Memory in KiB) and
// the minimum accepted password length.
type PasswordConfig struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	MinLength   int
}

// TOTPConfig controls the TOTP second factor and its attempt budget.
type TOTPConfig struct {
	Issuer        string
	Digits        int
	Period        time.Duration
	MaxAttempts   int
	AttemptWindow time.Duration
}

// RecoveryCodeConfig controls the recovery-code attempt budget.
type RecoveryCodeConfig struct {
	MaxAttempts   int
	AttemptWindow time.Duration
}

// EmailVerificationConfig controls the email challenge flow: code shape,
// challenge TTL, and the per-user send and verify budgets.
type EmailVerificationConfig struct {
	CodeDigits   int
	TTL          time.Duration
	SendLimit    int
	SendWindow   time.Duration
	VerifyLimit  int
	VerifyWindow time.Duration
}

// PasswordResetConfig controls the reset flow: code shape, reset-session
// TTL, the per-IP and per-email request budgets, and the per-user code
// verification budget.
type PasswordResetConfig struct {
	CodeDigits       int
	TTL              time.Duration
	RequestsPerIP    int
	IPRefillInterval time.Duration
	RequestLimit     int
	RequestWindow    time.Duration
	VerifyLimit      int
	VerifyWindow     time.Duration
}

// SignInThrottleConfig is the escalating cooldown table applied per email
// key on sign-in attempts.
type SignInThrottleConfig struct {
	Timeouts []time.Duration
}

// GlobalRateLimitConfig is the coarse per-IP request budget consumed by
// [Engine.AllowRequest] before any flow logic runs. When a Redis client is
// supplied to the builder the budget is shared across processes under
// RedisPrefix; otherwise it is process-local.
type GlobalRateLimitConfig struct {
	Max            int
	RefillInterval time.Duration
	RedisPrefix    string
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled bool
}

// DefaultConfig returns the engine defaults. Adjust fields and pass the
// result to [Builder.WithConfig].
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Session: SessionConfig{
			Lifetime: 10 * 24 * time.Hour,
		},
		Password: PasswordConfig{
			Memory:      19 * 1024,
			Time:        2,
			Parallelism: 1,
			SaltLength:  16,
			KeyLength:   32,
			MinLength:   8,
		},
		TOTP: TOTPConfig{
			Issuer:        "authcore",
			Digits:        6,
			Period:        30 * time.Second,
			MaxAttempts:   5,
			AttemptWindow: 30 * time.Minute,
		},
		RecoveryCode: RecoveryCodeConfig{
			MaxAttempts:   3,
			AttemptWindow: time.Hour,
		},
		EmailVerification: EmailVerificationConfig{
			CodeDigits:   6,
			TTL:          10 * time.Minute,
			SendLimit:    3,
			SendWindow:   10 * time.Minute,
			VerifyLimit:  5,
			VerifyWindow: 30 * time.Minute,
		},
		PasswordReset: PasswordResetConfig{
			CodeDigits:       6,
			TTL:              10 * time.Minute,
			RequestsPerIP:    3,
			IPRefillInterval: time.Minute,
			RequestLimit:     3,
			RequestWindow:    10 * time.Minute,
			VerifyLimit:      5,
			VerifyWindow:     30 * time.Minute,
		},
		SignInThrottle: SignInThrottleConfig{
			Timeouts: []time.Duration{
				time.Second,
				2 * time.Second,
				4 * time.Second,
				8 * time.Second,
				16 * time.Second,
				30 * time.Second,
				time.Minute,
				3 * time.Minute,
				5 * time.Minute,
			},
		},
		GlobalRateLimit: GlobalRateLimitConfig{
			Max:            100,
			RefillInterval: time.Second,
			RedisPrefix:    "agrl",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func validateConfig(cfg Config) error {
	if len(cfg.EncryptionKey) != 16 {
		return errors.New("encryption key must be 16 bytes")
	}
	if cfg.Session.Lifetime <= 0 {
		return errors.New("session lifetime must be positive")
	}
	if cfg.TOTP.Digits < 6 || cfg.TOTP.Digits > 10 {
		return errors.New("totp digits must be between 6 and 10")
	}
	if cfg.TOTP.Period <= 0 {
		return errors.New("totp period must be positive")
	}
	if cfg.TOTP.MaxAttempts <= 0 || cfg.RecoveryCode.MaxAttempts <= 0 {
		return errors.New("second-factor attempt budgets must be positive")
	}
	if cfg.EmailVerification.CodeDigits < 6 || cfg.EmailVerification.CodeDigits > 8 {
		return errors.New("email verification code digits must be between 6 and 8")
	}
	if cfg.PasswordReset.CodeDigits < 6 || cfg.PasswordReset.CodeDigits > 8 {
		return errors.New("password reset code digits must be between 6 and 8")
	}
	if cfg.EmailVerification.TTL <= 0 || cfg.PasswordReset.TTL <= 0 {
		return errors.New("challenge TTLs must be positive")
	}
	if len(cfg.SignInThrottle.Timeouts) == 0 {
		return errors.New("sign-in throttle table must not be empty")
	}
	for _, d := range cfg.SignInThrottle.Timeouts {
		if d <= 0 {
			return errors.New("sign-in throttle timeouts must be positive")
		}
	}
	if cfg.GlobalRateLimit.Max <= 0 || cfg.GlobalRateLimit.RefillInterval <= 0 {
		return errors.New("global rate limit must be positive")
	}
	if cfg.Password.MinLength < 8 {
		return errors.New("password minimum length must be >= 8")
	}
	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.EncryptionKey = append([]byte(nil), cfg.EncryptionKey...)
	out.SignInThrottle.Timeouts = append([]time.Duration(nil), cfg.SignInThrottle.Timeouts...)
	return out
}
