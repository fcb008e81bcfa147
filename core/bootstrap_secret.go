package core

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
)

// BootstrapAutomationSecret makes sure a bypass secret exists when AUTH_SECRET_PATH is set.
// It is idempotent: an existing file is reused, and configured secrets are left alone.
func BootstrapAutomationSecret(cfg *Config, log *zap.Logger) error {
	if cfg.AutomationSecret != "" || cfg.AutomationBcrypt != "" || cfg.AutomationPath == "" {
		return nil
	}

	if b, err := os.ReadFile(cfg.AutomationPath); err == nil {
		secret := strings.TrimSpace(string(b))
		if secret == "" {
			return fmt.Errorf("automation secret file %s is empty", cfg.AutomationPath)
		}
		cfg.AutomationSecret = secret
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}

	secret, err := generateSecret(40)
	if err != nil {
		return err
	}
	if err := os.WriteFile(cfg.AutomationPath, []byte(secret+"\n"), 0o600); err != nil {
		return err
	}
	cfg.AutomationSecret = secret
	log.Info("automation secret generated", zap.String("path", cfg.AutomationPath))
	return nil
}

func generateSecret(length int) (string, error) {
	if length <= 0 {
		return "", errors.New("secret length must be positive")
	}
	raw := make([]byte, length)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw)[:length], nil
}
