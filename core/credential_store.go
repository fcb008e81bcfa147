package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Session is an established identity-provider session.
type Session struct {
	AccessToken  string
	RefreshToken string
	User         Principal
}

// CredentialStore is the identity provider: it issues magic links and vouches for tokens.
type CredentialStore interface {
	// SendMagicLink emails a one-time link that lands on redirectTo after verification.
	SendMagicLink(ctx context.Context, email, redirectTo string) error
	// GetUser returns the identity behind an access token.
	GetUser(ctx context.Context, accessToken string) (Principal, error)
	// RefreshSession trades a refresh token for a new session.
	RefreshSession(ctx context.Context, refreshToken string) (Session, error)
}

// GoTrueClient calls the Supabase auth (GoTrue) REST endpoints.
type GoTrueClient struct {
	client *http.Client
	base   string
	apiKey string
}

func NewGoTrueClient(supabaseURL, apiKey string) *GoTrueClient {
	return &GoTrueClient{
		client: &http.Client{Timeout: 10 * time.Second},
		base:   supabaseURL + "/auth/v1",
		apiKey: apiKey,
	}
}

type gotrueUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type gotrueToken struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	User         gotrueUser `json:"user"`
}

// SendMagicLink posts to /otp; create_user lets first-time sellers sign up by link.
func (c *GoTrueClient) SendMagicLink(ctx context.Context, email, redirectTo string) error {
	endpoint := c.base + "/otp"
	if redirectTo != "" {
		endpoint += "?redirect_to=" + url.QueryEscape(redirectTo)
	}
	body := map[string]any{"email": email, "create_user": true}
	resp, err := c.do(ctx, http.MethodPost, endpoint, "", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return statusError("otp", resp)
	}
	return nil
}

func (c *GoTrueClient) GetUser(ctx context.Context, accessToken string) (Principal, error) {
	resp, err := c.do(ctx, http.MethodGet, c.base+"/user", accessToken, nil)
	if err != nil {
		return Principal{}, err
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Principal{}, ErrInvalidToken
	case resp.StatusCode/100 != 2:
		return Principal{}, statusError("user", resp)
	}
	var u gotrueUser
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return Principal{}, fmt.Errorf("%w: decode user: %v", ErrCredentialStore, err)
	}
	if u.Email == "" {
		return Principal{}, ErrInvalidToken
	}
	return Principal{UserID: u.ID, Email: u.Email}, nil
}

func (c *GoTrueClient) RefreshSession(ctx context.Context, refreshToken string) (Session, error) {
	body := map[string]string{"refresh_token": refreshToken}
	resp, err := c.do(ctx, http.MethodPost, c.base+"/token?grant_type=refresh_token", "", body)
	if err != nil {
		return Session{}, err
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized:
		return Session{}, ErrInvalidToken
	case resp.StatusCode/100 != 2:
		return Session{}, statusError("token", resp)
	}
	var t gotrueToken
	if err := json.NewDecoder(resp.Body).Decode(&t); err != nil {
		return Session{}, fmt.Errorf("%w: decode token: %v", ErrCredentialStore, err)
	}
	if t.AccessToken == "" || t.User.Email == "" {
		return Session{}, ErrInvalidToken
	}
	return Session{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		User:         Principal{UserID: t.User.ID, Email: t.User.Email},
	}, nil
}

func (c *GoTrueClient) do(ctx context.Context, method, endpoint, bearer string, body any) (*http.Response, error) {
	if c.base == "/auth/v1" {
		return nil, fmt.Errorf("%w: supabase url not configured", ErrCredentialStore)
	}
	var rdr io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rdr = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, rdr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", c.apiKey)
	if bearer == "" {
		bearer = c.apiKey
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrCredentialStore, err)
	}
	return resp, nil
}

func statusError(op string, resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("%w: %s returned status %d: %s", ErrCredentialStore, op, resp.StatusCode, bytes.TrimSpace(msg))
}
