package core

import (
	"context"
	"crypto/subtle"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// GateRequest is what a headless caller presents.
type GateRequest struct {
	Email      string
	AuthHeader string
}

// AuthStrategy is one way a headless caller can prove who it is.
type AuthStrategy interface {
	Name() string
	Authorize(ctx context.Context, req GateRequest) (bool, error)
}

// RemedyAction tells a headless client what to do after a denial.
type RemedyAction string

const (
	RemedyCheckEmail RemedyAction = "check_email"
	RemedyAuthFailed RemedyAction = "auth_failed"
)

const (
	checkEmailMessage = "Authentication required. Check your email for a magic link, then run this shortcut again."
	authFailedMessage = "Authentication failed. Please try again."
)

// Remedy accompanies a denial so the client can branch without treating it as a fault.
type Remedy struct {
	Action  RemedyAction `json:"action"`
	Message string       `json:"message"`
}

// Decision is the gate's verdict for one request.
type Decision struct {
	Authorized bool
	Strategy   string
	Remedy     *Remedy
}

// LinkTrigger issues a magic link for an email.
type LinkTrigger interface {
	Trigger(ctx context.Context, email string) error
}

// HeadlessGate evaluates strategies in order; the first that authorizes wins.
// When none does, it sends a magic link and asks the client to retry later.
type HeadlessGate struct {
	strategies []AuthStrategy
	trigger    LinkTrigger
	log        *zap.Logger
}

func NewHeadlessGate(trigger LinkTrigger, log *zap.Logger, strategies ...AuthStrategy) *HeadlessGate {
	if log == nil {
		log = zap.NewNop()
	}
	return &HeadlessGate{strategies: strategies, trigger: trigger, log: log}
}

func (g *HeadlessGate) Authorize(ctx context.Context, req GateRequest) Decision {
	for _, s := range g.strategies {
		ok, err := s.Authorize(ctx, req)
		if err != nil {
			g.log.Error("gate strategy failed", zap.String("strategy", s.Name()), zap.Error(err))
			return deny(RemedyAuthFailed, authFailedMessage)
		}
		if ok {
			return Decision{Authorized: true, Strategy: s.Name()}
		}
	}

	if err := g.trigger.Trigger(ctx, req.Email); err != nil {
		g.log.Error("magic link trigger failed", zap.String("email", NormalizeEmail(req.Email)), zap.Error(err))
		return deny(RemedyAuthFailed, authFailedMessage)
	}
	g.log.Info("user not authenticated, magic link sent", zap.String("email", NormalizeEmail(req.Email)))
	return deny(RemedyCheckEmail, checkEmailMessage)
}

func deny(action RemedyAction, message string) Decision {
	return Decision{Authorized: false, Remedy: &Remedy{Action: action, Message: message}}
}

// BypassStrategy authorizes callers presenting the pre-shared automation secret.
// It never touches the ledger.
type BypassStrategy struct {
	secret []byte
	hash   []byte
}

// NewBypassStrategy accepts the plain secret, a bcrypt hash of it, or both.
// With neither configured the strategy never authorizes.
func NewBypassStrategy(secret, bcryptHash string) *BypassStrategy {
	return &BypassStrategy{secret: []byte(secret), hash: []byte(bcryptHash)}
}

func (s *BypassStrategy) Name() string { return "bypass" }

func (s *BypassStrategy) Authorize(_ context.Context, req GateRequest) (bool, error) {
	return s.Matches(req.AuthHeader), nil
}

// Matches reports whether an Authorization header carries the automation secret.
func (s *BypassStrategy) Matches(header string) bool {
	token, ok := bearerToken(header)
	if !ok {
		return false
	}
	if len(s.secret) > 0 && subtle.ConstantTimeCompare([]byte(token), s.secret) == 1 {
		return true
	}
	if len(s.hash) > 0 && bcrypt.CompareHashAndPassword(s.hash, []byte(token)) == nil {
		return true
	}
	return false
}

// FreshnessStrategy authorizes emails with a fresh ledger record.
type FreshnessStrategy struct {
	checker *FreshnessChecker
}

func NewFreshnessStrategy(checker *FreshnessChecker) *FreshnessStrategy {
	return &FreshnessStrategy{checker: checker}
}

func (s *FreshnessStrategy) Name() string { return "freshness" }

func (s *FreshnessStrategy) Authorize(ctx context.Context, req GateRequest) (bool, error) {
	res, err := s.checker.Check(ctx, req.Email)
	if err != nil {
		return false, err
	}
	return res.Authenticated, nil
}
