// Package otp issues and checks phone one-time codes with per-phone rate
// limiting and lockout on top of a challenge.Store.
package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"sync"
	"time"

	"github.com/mahalle/mahalle-api/internal/apperr"
	"github.com/mahalle/mahalle-api/internal/challenge"
	"github.com/mahalle/mahalle-api/internal/phone"
	"github.com/mahalle/mahalle-api/internal/sms"
)

const (
	codePrefix     = "otp:code:"
	attemptsPrefix = "otp:attempts:"
	lockPrefix     = "otp:lock:"
	ratePrefix     = "otp:rate:"

	rateWindow = time.Hour
	codeMin    = 100000
	codeMax    = 999999
)

var (
	ErrLocked          = apperr.New(apperr.KindLocked, "phone is temporarily locked, try again later")
	ErrRateLimited     = apperr.New(apperr.KindRateLimited, "too many code requests, try again later")
	ErrExpired         = apperr.New(apperr.KindExpired, "code expired or was never requested")
	ErrInvalidCode     = apperr.New(apperr.KindInvalidCode, "invalid code")
	ErrTooManyAttempts = apperr.New(apperr.KindTooManyAttempts, "too many wrong codes, phone locked")
)

// Policy holds the code lifetime and abuse limits.
type Policy struct {
	TTL         time.Duration
	HourlyLimit int
	MaxAttempts int
	Lockout     time.Duration
	ResendAfter time.Duration
	// DevMode replaces random codes with DevCode.
	DevMode    bool
	DevCode    string
	SMSTimeout time.Duration
}

// Challenge describes a freshly issued code.
type Challenge struct {
	TTL        time.Duration
	RetryAfter time.Duration
}

// challengeState is a snapshot of a phone's challenge keys.
type challengeState struct {
	CodePresent bool
	CodeTTL     time.Duration
	Attempts    int64
	Locked      bool
	LockTTL     time.Duration
}

// Manager runs the request/verify protocol.
type Manager struct {
	store  challenge.Store
	sender sms.Sender
	policy Policy
	logger *slog.Logger
	code   func() (string, error)
	sends  sync.WaitGroup
}

// NewManager constructs a Manager.
func NewManager(store challenge.Store, sender sms.Sender, policy Policy, logger *slog.Logger) *Manager {
	m := &Manager{store: store, sender: sender, policy: policy, logger: logger, code: randomCode}
	if policy.DevMode {
		m.code = func() (string, error) { return policy.DevCode, nil }
	}
	return m
}

// RequestCode issues a new code for phone and hands it to the SMS sender.
func (m *Manager) RequestCode(ctx context.Context, p string) (Challenge, error) {
	locked, err := m.store.Exists(ctx, lockPrefix+p)
	if err != nil {
		return Challenge{}, fmt.Errorf("check lock: %w", err)
	}
	if locked {
		return Challenge{}, ErrLocked.WithRetry(m.remaining(ctx, lockPrefix, p))
	}

	n, err := m.store.Incr(ctx, ratePrefix+p, rateWindow)
	if err != nil {
		return Challenge{}, fmt.Errorf("count request: %w", err)
	}
	if n > int64(m.policy.HourlyLimit) {
		m.logger.WarnContext(ctx, "otp rate limited", slog.String("phone", phone.Mask(p)), slog.Int64("count", n))
		return Challenge{}, ErrRateLimited.WithRetry(m.remaining(ctx, ratePrefix, p))
	}

	code, err := m.code()
	if err != nil {
		return Challenge{}, fmt.Errorf("generate code: %w", err)
	}
	if err := m.store.Set(ctx, codePrefix+p, code, m.policy.TTL); err != nil {
		return Challenge{}, fmt.Errorf("store code: %w", err)
	}

	m.deliver(ctx, p, code)
	return Challenge{TTL: m.policy.TTL, RetryAfter: m.policy.ResendAfter}, nil
}

// remaining returns the lifetime left on prefix+p for a retry hint. A lookup
// failure yields no hint.
func (m *Manager) remaining(ctx context.Context, prefix, p string) time.Duration {
	left, err := m.store.TTL(ctx, prefix+p)
	if err != nil {
		m.logger.DebugContext(ctx, "retry hint unavailable",
			slog.String("key", prefix),
			slog.String("phone", phone.Mask(p)),
			slog.Any("error", err))
		return 0
	}
	return left
}

// deliver sends the code without holding up the caller. Failures are logged only.
func (m *Manager) deliver(ctx context.Context, p, code string) {
	msg := sms.Message{
		Phone: p,
		Body:  fmt.Sprintf("Your Mahalle verification code is %s. It expires in %d minutes.", code, int(m.policy.TTL.Minutes())),
	}
	ctx = context.WithoutCancel(ctx)
	m.sends.Add(1)
	go func() {
		defer m.sends.Done()
		sendCtx, cancel := context.WithTimeout(ctx, m.policy.SMSTimeout)
		defer cancel()
		if err := m.sender.Send(sendCtx, msg); err != nil {
			m.logger.ErrorContext(sendCtx, "sms delivery failed", slog.String("phone", phone.Mask(p)), slog.Any("error", err))
		}
	}()
}

// Wait blocks until in-flight SMS sends have finished.
func (m *Manager) Wait() {
	m.sends.Wait()
}

// Verify checks code against the live challenge for phone. A match consumes it.
func (m *Manager) Verify(ctx context.Context, p, code string) error {
	stored, err := m.store.Get(ctx, codePrefix+p)
	if errors.Is(err, challenge.ErrNotFound) {
		return ErrExpired
	}
	if err != nil {
		return fmt.Errorf("load code: %w", err)
	}

	n, err := m.store.Incr(ctx, attemptsPrefix+p, m.policy.TTL)
	if err != nil {
		return fmt.Errorf("count attempt: %w", err)
	}
	if n > int64(m.policy.MaxAttempts) {
		if err := m.store.Set(ctx, lockPrefix+p, "1", m.policy.Lockout); err != nil {
			return fmt.Errorf("set lock: %w", err)
		}
		if err := m.store.Del(ctx, codePrefix+p, attemptsPrefix+p); err != nil {
			return fmt.Errorf("clear challenge: %w", err)
		}
		m.logger.WarnContext(ctx, "otp locked", slog.String("phone", phone.Mask(p)), slog.Duration("lockout", m.policy.Lockout))
		return ErrTooManyAttempts.WithRetry(m.policy.Lockout)
	}

	if subtle.ConstantTimeCompare([]byte(stored), []byte(code)) != 1 {
		return ErrInvalidCode
	}

	// Only one verifier of a given code may consume it.
	consumed, err := m.store.CompareAndDel(ctx, codePrefix+p, stored)
	if err != nil {
		return fmt.Errorf("consume code: %w", err)
	}
	if !consumed {
		return ErrExpired
	}
	if err := m.store.Del(ctx, attemptsPrefix+p); err != nil {
		return fmt.Errorf("reset attempts: %w", err)
	}
	return nil
}

// state reports the challenge keys currently held for phone.
func (m *Manager) state(ctx context.Context, p string) (challengeState, error) {
	var s challengeState
	var err error

	if s.CodeTTL, err = m.store.TTL(ctx, codePrefix+p); err != nil {
		return challengeState{}, err
	}
	s.CodePresent = s.CodeTTL > 0

	raw, err := m.store.Get(ctx, attemptsPrefix+p)
	switch {
	case errors.Is(err, challenge.ErrNotFound):
	case err != nil:
		return challengeState{}, err
	default:
		if s.Attempts, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return challengeState{}, fmt.Errorf("parse attempts: %w", err)
		}
	}

	if s.LockTTL, err = m.store.TTL(ctx, lockPrefix+p); err != nil {
		return challengeState{}, err
	}
	s.Locked = s.LockTTL > 0
	return s, nil
}

func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeMax-codeMin+1))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(codeMin+n.Int64(), 10), nil
}
