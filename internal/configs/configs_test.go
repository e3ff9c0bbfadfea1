package configs

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	// Run from a directory without a .env file.
	t.Chdir(t.TempDir())
	for _, key := range []string{
		"ENVIRONMENT", "PORT", "ALLOWED_ORIGINS", "JWT_SECRET", "STORE_DRIVER",
		"DATABASE_URL", "BADGER_PATH", "STORE_TIMEOUT", "DEDUP_WINDOW",
		"S3_BUCKET_NAME", "S3_ENDPOINT", "S3_ACCESS_KEY_ID", "S3_SECRET_ACCESS_KEY",
	} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestLoadConfig_DevelopmentDefaults(t *testing.T) {
	clearEnv(t)

	req := require.New(t)
	cfg, err := LoadConfig()
	req.NoError(err)
	req.True(cfg.IsDevelopment())
	req.Equal(8080, cfg.Port)
	req.NotEmpty(cfg.JWTSecret)
	req.NotEmpty(cfg.DatabaseDSN)
	req.Equal(3*time.Second, cfg.StoreTimeout)
	req.False(cfg.AttachmentsEnabled())
}

func TestLoadConfig_ProductionRequiresSecrets(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("PORT", "9000")
	t.Setenv("STORE_DRIVER", "badger")
	t.Setenv("DEDUP_WINDOW", "5s")

	_, err := LoadConfig()
	require.ErrorContains(t, err, "JWT_SECRET")

	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("ALLOWED_ORIGINS", " https://a.example , ,https://b.example")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	require.Equal(t, StoreDriverBadger, cfg.StoreDriver)
	require.Equal(t, "./data/badger", cfg.BadgerPath)
	require.Equal(t, 5*time.Second, cfg.DedupWindow)
}

func TestNormalize_Rejects(t *testing.T) {
	base := func() *AppConfig {
		return &AppConfig{
			Environment:  EnvDevelopment,
			Port:         8080,
			StoreDriver:  StoreDriverBadger,
			BadgerPath:   "data",
			StoreTimeout: time.Second,
			DedupWindow:  time.Second,
		}
	}

	tests := []struct {
		name   string
		mutate func(c *AppConfig)
		want   string
	}{
		{"privileged port", func(c *AppConfig) { c.Port = 80 }, "port number"},
		{"unknown driver", func(c *AppConfig) { c.StoreDriver = "sqlite" }, "STORE_DRIVER"},
		{"zero timeout", func(c *AppConfig) { c.StoreTimeout = 0 }, "STORE_TIMEOUT"},
		{"zero window", func(c *AppConfig) { c.DedupWindow = 0 }, "DEDUP_WINDOW"},
		{"partial s3", func(c *AppConfig) { c.S3BucketName = "bucket" }, "S3_ENDPOINT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			require.ErrorContains(t, cfg.normalize(), tt.want)
		})
	}

	require.NoError(t, base().normalize())
}
