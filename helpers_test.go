package authcore_test

import (
	"context"
	"sync"
	"testing"
	"time"

	authcore "github.com/nexusscholar/authcore"
	"github.com/nexusscholar/authcore/memstore"
)

type sentMail struct {
	To   string
	Kind authcore.EmailKind
	Code string
}

// captureSender records outbound mail instead of sending it.
type captureSender struct {
	mu   sync.Mutex
	sent []sentMail
}

func (s *captureSender) Send(_ context.Context, to string, kind authcore.EmailKind, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentMail{To: to, Kind: kind, Code: code})
	return nil
}

func (s *captureSender) lastCode(t *testing.T, kind authcore.EmailKind) string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.sent) - 1; i >= 0; i-- {
		if s.sent[i].Kind == kind {
			return s.sent[i].Code
		}
	}
	t.Fatalf("no %s mail captured", kind)
	return ""
}

func (s *captureSender) count(kind authcore.EmailKind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.sent {
		if m.Kind == kind {
			n++
		}
	}
	return n
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testConfig() authcore.Config {
	cfg := authcore.DefaultConfig()
	cfg.EncryptionKey = []byte("0123456789abcdef")
	// Minimum Argon2 costs keep each hash cheap in tests.
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.KeyLength = 16
	return cfg
}

func newTestEngine(t *testing.T) (*authcore.Engine, *memstore.Store, *captureSender, *fakeClock) {
	t.Helper()

	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	store := memstore.New()
	sender := &captureSender{}

	engine, err := authcore.New().
		WithConfig(testConfig()).
		WithStore(store).
		WithEmailSender(sender).
		WithClock(clock.Now).
		Build()
	if err != nil {
		t.Fatalf("engine build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return engine, store, sender, clock
}

// signUpUser registers and returns a signed-up account for flow tests.
func signUpUser(t *testing.T, engine *authcore.Engine, email string) authcore.SignUpResult {
	t.Helper()
	res, err := engine.SignUp(context.Background(), email, "testuser", "correct-horse-battery")
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	return res
}

// verifiedUser registers an account and completes email verification.
func verifiedUser(t *testing.T, engine *authcore.Engine, sender *captureSender, email string) authcore.SignUpResult {
	t.Helper()
	res := signUpUser(t, engine, email)
	code := sender.lastCode(t, authcore.EmailVerificationCode)
	if _, err := engine.VerifyEmail(context.Background(), res.Token, res.Verification.ID, code); err != nil {
		t.Fatalf("VerifyEmail failed: %v", err)
	}
	return res
}
