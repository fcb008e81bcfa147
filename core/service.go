package core

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Clock returns the current time; tests substitute a fixed one.
type Clock func() time.Time

var validate = validator.New()

// ValidateEmail normalizes email and rejects missing or malformed addresses.
func ValidateEmail(email string) (string, error) {
	email = NormalizeEmail(email)
	if err := validate.Var(email, "required,email"); err != nil {
		return "", ErrInvalidEmail
	}
	return email, nil
}

// CheckResult is the outcome of a freshness check.
type CheckResult struct {
	Authenticated bool
	// LastUsedAt is the value before this check touched the row.
	LastUsedAt *time.Time
}

// FreshnessChecker decides whether an email logged in within the window.
// Expiry is anchored to authenticated_at; last_used_at never extends it.
type FreshnessChecker struct {
	ledger FreshnessLedger
	window time.Duration
	now    Clock
	log    *zap.Logger
}

func NewFreshnessChecker(ledger FreshnessLedger, window time.Duration, now Clock, log *zap.Logger) *FreshnessChecker {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &FreshnessChecker{ledger: ledger, window: window, now: now, log: log}
}

// Window reports the configured freshness window.
func (c *FreshnessChecker) Window() time.Duration { return c.window }

// Check reports whether email is fresh and, if so, refreshes last_used_at.
// Unknown and stale emails are both reported as not authenticated.
func (c *FreshnessChecker) Check(ctx context.Context, email string) (CheckResult, error) {
	email, err := ValidateEmail(email)
	if err != nil {
		return CheckResult{}, err
	}

	now := c.now()
	u, found, err := c.ledger.FindFresh(ctx, email, now.Add(-c.window))
	if err != nil {
		return CheckResult{}, fmt.Errorf("find fresh %s: %w", email, err)
	}
	if !found {
		return CheckResult{Authenticated: false}, nil
	}

	// Best-effort: the decision is already made, a lost timestamp is harmless.
	bestEffort(c.log, "touch last_used_at", c.ledger.TouchLastUsed(ctx, email, now), zap.String("email", email))

	prev := u.LastUsedAt
	return CheckResult{Authenticated: true, LastUsedAt: &prev}, nil
}

// Fresh evaluates the freshness predicate without touching the row.
func (c *FreshnessChecker) Fresh(ctx context.Context, email string) (bool, error) {
	email, err := ValidateEmail(email)
	if err != nil {
		return false, err
	}
	_, found, err := c.ledger.FindFresh(ctx, email, c.now().Add(-c.window))
	return found, err
}

// TokenVerifier resolves a bearer access token to the identity it was issued for.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (Principal, error)
}

// FreshnessRecorder writes the ledger row after a completed login.
type FreshnessRecorder struct {
	ledger   FreshnessLedger
	verifier TokenVerifier
	now      Clock
}

func NewFreshnessRecorder(ledger FreshnessLedger, verifier TokenVerifier, now Clock) *FreshnessRecorder {
	if now == nil {
		now = time.Now
	}
	return &FreshnessRecorder{ledger: ledger, verifier: verifier, now: now}
}

// Record resets both timestamps for email to now. proof is the access token of the
// session that was just established; it must verify and belong to email.
func (r *FreshnessRecorder) Record(ctx context.Context, proof, email string) error {
	if proof == "" {
		return ErrMissingProof
	}
	email, err := ValidateEmail(email)
	if err != nil {
		return err
	}

	p, err := r.verifier.Verify(ctx, proof)
	if err != nil {
		return err
	}
	if NormalizeEmail(p.Email) != email {
		return ErrProofMismatch
	}

	now := r.now()
	if err := r.ledger.Upsert(ctx, email, now, now); err != nil {
		return fmt.Errorf("upsert %s: %w", email, err)
	}
	return nil
}

// bestEffort logs a failed non-fatal side effect instead of failing the request.
func bestEffort(log *zap.Logger, what string, err error, fields ...zap.Field) {
	if err == nil {
		return
	}
	log.Warn("best-effort "+what+" failed", append(fields, zap.Error(err))...)
}
