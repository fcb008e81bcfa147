package core

import (
	"context"
	"sync"
	"time"
)

type fakeLedger struct {
	mu      sync.Mutex
	rows    map[string]AuthenticatedUser
	findErr error
	upserts int
	touches int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{rows: map[string]AuthenticatedUser{}}
}

func (l *fakeLedger) Upsert(_ context.Context, email string, authenticatedAt, lastUsedAt time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.upserts++
	l.rows[email] = AuthenticatedUser{Email: email, AuthenticatedAt: authenticatedAt, LastUsedAt: lastUsedAt}
	return nil
}

func (l *fakeLedger) FindFresh(_ context.Context, email string, cutoff time.Time) (AuthenticatedUser, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.findErr != nil {
		return AuthenticatedUser{}, false, l.findErr
	}
	u, ok := l.rows[email]
	if !ok || !u.AuthenticatedAt.After(cutoff) {
		return AuthenticatedUser{}, false, nil
	}
	return u, true, nil
}

func (l *fakeLedger) TouchLastUsed(_ context.Context, email string, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.touches++
	if u, ok := l.rows[email]; ok {
		u.LastUsedAt = at
		l.rows[email] = u
	}
	return nil
}

func (l *fakeLedger) Get(_ context.Context, email string) (AuthenticatedUser, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	u, ok := l.rows[email]
	if !ok {
		return AuthenticatedUser{}, ErrNotFound
	}
	return u, nil
}

func (l *fakeLedger) Stats(_ context.Context, cutoff time.Time) (LedgerStats, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var st LedgerStats
	for _, u := range l.rows {
		st.Total++
		if u.AuthenticatedAt.After(cutoff) {
			st.Fresh++
		}
	}
	return st, nil
}

// fakeClock is a settable Clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// fakeVerifier maps tokens to identities.
type fakeVerifier map[string]Principal

func (v fakeVerifier) Verify(_ context.Context, token string) (Principal, error) {
	p, ok := v[token]
	if !ok {
		return Principal{}, ErrInvalidToken
	}
	return p, nil
}

type fakeTrigger struct {
	mu     sync.Mutex
	emails []string
	err    error
}

func (t *fakeTrigger) Trigger(_ context.Context, email string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.emails = append(t.emails, email)
	return t.err
}

func (t *fakeTrigger) calls() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.emails...)
}

type fakeStore struct {
	mu         sync.Mutex
	users      map[string]Principal
	refresh    map[string]Session
	sendErr    error
	sent       []string
	redirectTo string
}

func (s *fakeStore) SendMagicLink(_ context.Context, email, redirectTo string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, email)
	s.redirectTo = redirectTo
	return s.sendErr
}

func (s *fakeStore) GetUser(_ context.Context, accessToken string) (Principal, error) {
	p, ok := s.users[accessToken]
	if !ok {
		return Principal{}, ErrInvalidToken
	}
	return p, nil
}

func (s *fakeStore) RefreshSession(_ context.Context, refreshToken string) (Session, error) {
	sess, ok := s.refresh[refreshToken]
	if !ok {
		return Session{}, ErrInvalidToken
	}
	return sess, nil
}

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

const day = 24 * time.Hour
