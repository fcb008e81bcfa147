package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"CONFIG_FILE", "PORT", "SITE_URL", "NEXT_PUBLIC_SITE_URL", "AUTH_WINDOW_DAYS",
		"RECORD_FAILURE_FATAL", "MIGRATE_ON_START", "UPLOAD_FOLDER", "ALLOWED_ORIGINS",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("SITE_URL", "https://shop.example/")

	cfg := Load()
	require.Equal(t, "3000", cfg.Port)
	require.Equal(t, "https://shop.example", cfg.SiteURL)
	require.Equal(t, "https://shop.example/auth-confirm", cfg.ConfirmRedirectURL())
	require.Equal(t, 30, cfg.AuthWindowDays)
	require.Equal(t, 30*24*time.Hour, cfg.AuthWindow())
	require.True(t, cfg.MigrateOnStart)
	require.False(t, cfg.RecordFailureFatal)
	require.Equal(t, "blinkshop-uploads", cfg.UploadFolder)
}

func TestLoadFileOverlayEnvWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blinkshop.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: "8080"
auth_window_days: 14
record_failure_fatal: true
allowed_origins: ["https://admin.example"]
upload_folder: from-file
`), 0o600))
	clearConfigEnv(t)
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("UPLOAD_FOLDER", "from-env")

	cfg := Load()
	require.Equal(t, "8080", cfg.Port)
	require.Equal(t, 14, cfg.AuthWindowDays)
	require.True(t, cfg.RecordFailureFatal)
	require.Equal(t, []string{"https://admin.example"}, cfg.AllowedOrigins)
	require.Equal(t, "from-env", cfg.UploadFolder)
}

func TestValidate(t *testing.T) {
	err := Config{AuthWindowDays: 0}.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "SUPABASE_URL")
	require.Contains(t, err.Error(), "AUTH_WINDOW_DAYS")

	require.NoError(t, Config{
		SupabaseURL: "https://x.supabase.co", SupabaseAnonKey: "anon",
		SiteURL: "https://shop.example", AuthWindowDays: 30,
	}.Validate())
}

func TestBootstrapAutomationSecret(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth_secret")
	cfg := Config{AutomationPath: path}

	require.NoError(t, BootstrapAutomationSecret(&cfg, zap.NewNop()))
	require.Len(t, cfg.AutomationSecret, 40)
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// second start reuses the file
	again := Config{AutomationPath: path}
	require.NoError(t, BootstrapAutomationSecret(&again, zap.NewNop()))
	require.Equal(t, cfg.AutomationSecret, again.AutomationSecret)

	// configured secret wins
	set := Config{AutomationPath: path, AutomationSecret: "given"}
	require.NoError(t, BootstrapAutomationSecret(&set, zap.NewNop()))
	require.Equal(t, "given", set.AutomationSecret)
}
