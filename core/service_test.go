package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newProtocol(t *testing.T) (*fakeLedger, *fakeClock, *FreshnessChecker, *FreshnessRecorder) {
	t.Helper()
	ledger := newFakeLedger()
	clock := &fakeClock{now: t0}
	verifier := fakeVerifier{
		"tok-a": {UserID: "u-a", Email: "a@x.com"},
		"tok-b": {UserID: "u-b", Email: "B@x.com"},
	}
	checker := NewFreshnessChecker(ledger, 30*day, clock.Now, nil)
	recorder := NewFreshnessRecorder(ledger, verifier, clock.Now)
	return ledger, clock, checker, recorder
}

func TestCheckUnknownEmail(t *testing.T) {
	ledger, _, checker, _ := newProtocol(t)

	res, err := checker.Check(context.Background(), "nobody@x.com")
	require.NoError(t, err)
	require.False(t, res.Authenticated)
	require.Nil(t, res.LastUsedAt)
	require.Zero(t, ledger.touches)
}

func TestCheckRejectsInvalidEmail(t *testing.T) {
	_, _, checker, _ := newProtocol(t)

	_, err := checker.Check(context.Background(), "not-an-email")
	require.ErrorIs(t, err, ErrInvalidEmail)

	_, err = checker.Check(context.Background(), "  ")
	require.ErrorIs(t, err, ErrInvalidEmail)
}

func TestWindowBoundary(t *testing.T) {
	ctx := context.Background()
	_, clock, checker, recorder := newProtocol(t)

	require.NoError(t, recorder.Record(ctx, "tok-a", "a@x.com"))

	clock.Set(t0.Add(29*day + 23*time.Hour))
	res, err := checker.Check(ctx, "a@x.com")
	require.NoError(t, err)
	require.True(t, res.Authenticated)

	// Touching last_used_at above must not move the expiry.
	clock.Set(t0.Add(30 * day))
	res, err = checker.Check(ctx, "a@x.com")
	require.NoError(t, err)
	require.False(t, res.Authenticated)

	clock.Set(t0.Add(30*day + time.Hour))
	res, err = checker.Check(ctx, "a@x.com")
	require.NoError(t, err)
	require.False(t, res.Authenticated)
}

func TestRenewalExtendsWindow(t *testing.T) {
	ctx := context.Background()
	ledger, clock, checker, recorder := newProtocol(t)

	require.NoError(t, recorder.Record(ctx, "tok-b", "b@x.com"))
	clock.Set(t0.Add(20 * day))
	require.NoError(t, recorder.Record(ctx, "tok-b", "b@x.com"))
	require.Len(t, ledger.rows, 1)

	clock.Set(t0.Add(35 * day))
	res, err := checker.Check(ctx, "b@x.com")
	require.NoError(t, err)
	require.True(t, res.Authenticated)

	u, err := ledger.Get(ctx, "b@x.com")
	require.NoError(t, err)
	require.Equal(t, t0.Add(20*day), u.AuthenticatedAt)
}

func TestCheckTouchesLastUsed(t *testing.T) {
	ctx := context.Background()
	ledger, clock, checker, recorder := newProtocol(t)

	require.NoError(t, recorder.Record(ctx, "tok-a", "a@x.com"))
	clock.Set(t0.Add(2 * day))

	res, err := checker.Check(ctx, "A@X.com ")
	require.NoError(t, err)
	require.True(t, res.Authenticated)
	require.NotNil(t, res.LastUsedAt)
	require.Equal(t, t0, *res.LastUsedAt)

	u, err := ledger.Get(ctx, "a@x.com")
	require.NoError(t, err)
	require.Equal(t, t0.Add(2*day), u.LastUsedAt)
	require.Equal(t, t0, u.AuthenticatedAt)
}

func TestFreshDoesNotTouch(t *testing.T) {
	ctx := context.Background()
	ledger, clock, checker, recorder := newProtocol(t)

	require.NoError(t, recorder.Record(ctx, "tok-a", "a@x.com"))
	clock.Set(t0.Add(day))

	fresh, err := checker.Fresh(ctx, "a@x.com")
	require.NoError(t, err)
	require.True(t, fresh)
	require.Zero(t, ledger.touches)
}

func TestCheckPropagatesStoreError(t *testing.T) {
	ledger, _, checker, _ := newProtocol(t)
	boom := errors.New("connection refused")
	ledger.findErr = boom

	_, err := checker.Check(context.Background(), "a@x.com")
	require.ErrorIs(t, err, boom)
}

func TestRecordRequiresProof(t *testing.T) {
	ctx := context.Background()
	ledger, _, _, recorder := newProtocol(t)

	require.ErrorIs(t, recorder.Record(ctx, "", "a@x.com"), ErrMissingProof)
	require.ErrorIs(t, recorder.Record(ctx, "forged", "a@x.com"), ErrInvalidToken)
	require.ErrorIs(t, recorder.Record(ctx, "tok-b", "a@x.com"), ErrProofMismatch)
	require.ErrorIs(t, recorder.Record(ctx, "tok-a", "bad"), ErrInvalidEmail)
	require.Zero(t, ledger.upserts)
}

func TestRecordNormalizesEmail(t *testing.T) {
	ctx := context.Background()
	ledger, _, _, recorder := newProtocol(t)

	require.NoError(t, recorder.Record(ctx, "tok-b", " b@X.COM"))
	_, err := ledger.Get(ctx, "b@x.com")
	require.NoError(t, err)
}

func TestValidateEmail(t *testing.T) {
	email, err := ValidateEmail("  Seller@Example.COM ")
	require.NoError(t, err)
	require.Equal(t, "seller@example.com", email)

	_, err = ValidateEmail("seller@")
	require.ErrorIs(t, err, ErrInvalidEmail)
}
