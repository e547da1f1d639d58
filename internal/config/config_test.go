package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// inTempDir keeps a developer's .env out of the test.
func inTempDir(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoadMemoryDriver(t *testing.T) {
	inTempDir(t)
	t.Setenv("APP_ENV", "dev")
	t.Setenv("APP_PORT", "8080")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("TOKEN_TTL_HOURS", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, cfg.StoreDriver)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL)
	assert.Equal(t, 10, cfg.BcryptCost)
	assert.EqualValues(t, 5<<20, cfg.UploadMaxBytes)
	assert.Equal(t, "uploads", cfg.UploadDir)
	assert.False(t, cfg.IsProd())
}

func TestLoadReportsEveryMissingVariable(t *testing.T) {
	inTempDir(t)
	for _, k := range []string{"APP_ENV", "APP_PORT", "JWT_SECRET", "DB_USER", "DB_HOST", "DB_PORT", "DB_NAME"} {
		t.Setenv(k, "")
	}
	t.Setenv("STORE_DRIVER", "mysql")
	t.Setenv("BCRYPT_COST", "ten")

	_, err := Load()
	require.Error(t, err)
	for _, want := range []string{"APP_ENV", "JWT_SECRET", "DB_NAME", "BCRYPT_COST"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	inTempDir(t)
	for _, k := range []string{"APP_ENV", "APP_PORT", "JWT_SECRET", "STORE_DRIVER"} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
	env := "APP_ENV=prod\nAPP_PORT=9000\nJWT_SECRET=from-file\nSTORE_DRIVER=memory\n"
	require.NoError(t, os.WriteFile(filepath.Join(".", ".env"), []byte(env), 0o600))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.JWTSecret)
	assert.True(t, cfg.IsProd())
}

func TestLoadRateLimitConfigShorthands(t *testing.T) {
	t.Setenv("RATE_LIMIT_BURST", "5")
	t.Setenv("RATE_LIMIT_REFILL_EVERY", "2s")
	t.Setenv("RATE_LIMIT_TTL", "1s")

	cfg := LoadRateLimitConfig()
	assert.Equal(t, 5, cfg.Capacity)
	assert.Equal(t, 1, cfg.RefillTokens)
	assert.Equal(t, 2*time.Second, cfg.RefillInterval)
	assert.Equal(t, 10*time.Second, cfg.TTL)
}
