package core

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// ConfirmState is a step of the magic-link confirmation.
type ConfirmState string

const (
	ConfirmPending            ConfirmState = "pending"
	ConfirmSessionEstablished ConfirmState = "session_established"
	ConfirmRecorded           ConfirmState = "recorded"
	ConfirmFailed             ConfirmState = "failed"
)

// ConfirmTokens are the fragments the identity provider appends to the redirect.
type ConfirmTokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// ParseConfirmFragment reads access_token and refresh_token from a URL fragment
// ("#access_token=...&refresh_token=..." or without the leading '#').
func ParseConfirmFragment(fragment string) (ConfirmTokens, error) {
	values, err := url.ParseQuery(strings.TrimPrefix(fragment, "#"))
	if err != nil {
		return ConfirmTokens{}, ErrInvalidToken
	}
	return ConfirmTokens{
		AccessToken:  values.Get("access_token"),
		RefreshToken: values.Get("refresh_token"),
	}, nil
}

// ConfirmResult is the terminal state of one confirmation.
type ConfirmResult struct {
	State   ConfirmState
	Session Session
	// Err is why the confirmation failed.
	Err error
	// RecordErr is a recorder failure tolerated under the non-fatal policy.
	RecordErr error
}

// Recorder marks an email as freshly authenticated given proof of the login.
type Recorder interface {
	Record(ctx context.Context, proof, email string) error
}

// ConfirmationHandler turns redirected tokens into a session and a ledger record.
type ConfirmationHandler struct {
	store       CredentialStore
	recorder    Recorder
	recordFatal bool
	log         *zap.Logger
}

func NewConfirmationHandler(store CredentialStore, recorder Recorder, recordFatal bool, log *zap.Logger) *ConfirmationHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &ConfirmationHandler{store: store, recorder: recorder, recordFatal: recordFatal, log: log}
}

func (h *ConfirmationHandler) Confirm(ctx context.Context, tokens ConfirmTokens) ConfirmResult {
	state := ConfirmPending
	if strings.TrimSpace(tokens.AccessToken) == "" || strings.TrimSpace(tokens.RefreshToken) == "" {
		return h.fail(state, errors.New("invalid authentication link"))
	}

	sess, err := h.establish(ctx, tokens)
	if err != nil {
		return h.fail(state, err)
	}
	state = ConfirmSessionEstablished

	// The email comes from the verified session, never from the client.
	err = h.recorder.Record(ctx, sess.AccessToken, sess.User.Email)
	if err != nil {
		h.log.Error("record authentication failed",
			zap.String("email", NormalizeEmail(sess.User.Email)),
			zap.String("state", string(state)),
			zap.Error(err),
		)
		if h.recordFatal {
			return ConfirmResult{State: ConfirmFailed, Session: sess, Err: err}
		}
	}
	return ConfirmResult{State: ConfirmRecorded, Session: sess, RecordErr: err}
}

// establish validates the access token, falling back to the refresh token when the
// access token is already expired.
func (h *ConfirmationHandler) establish(ctx context.Context, tokens ConfirmTokens) (Session, error) {
	p, err := h.store.GetUser(ctx, tokens.AccessToken)
	if err == nil {
		return Session{AccessToken: tokens.AccessToken, RefreshToken: tokens.RefreshToken, User: p}, nil
	}
	if !errors.Is(err, ErrInvalidToken) {
		return Session{}, err
	}
	return h.store.RefreshSession(ctx, tokens.RefreshToken)
}

func (h *ConfirmationHandler) fail(from ConfirmState, err error) ConfirmResult {
	h.log.Info("confirmation failed", zap.String("from", string(from)), zap.Error(err))
	return ConfirmResult{State: ConfirmFailed, Err: err}
}
