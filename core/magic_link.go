package core

import (
	"context"
	"fmt"
)

// MagicLinkTrigger asks the credential store to email a one-time login link.
// No state about issued links is kept here; the store owns expiry and single use.
type MagicLinkTrigger struct {
	store      CredentialStore
	redirectTo string
}

func NewMagicLinkTrigger(store CredentialStore, redirectTo string) *MagicLinkTrigger {
	return &MagicLinkTrigger{store: store, redirectTo: redirectTo}
}

func (t *MagicLinkTrigger) Trigger(ctx context.Context, email string) error {
	email, err := ValidateEmail(email)
	if err != nil {
		return err
	}
	if err := t.store.SendMagicLink(ctx, email, t.redirectTo); err != nil {
		return fmt.Errorf("send magic link: %w", err)
	}
	return nil
}
