package config

import (
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validEnv(t *testing.T) {
	t.Helper()
	t.Setenv("TEMPBOX_SECURITY_ENCRYPTION_KEY", hex.EncodeToString(make([]byte, 32)))
	t.Setenv("TEMPBOX_SECURITY_TOKEN_SECRET", "test-secret-key-at-least-32-characters!!")
}

func TestLoadDefaults(t *testing.T) {
	validEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "tmp_", cfg.Inbox.AddressPrefix)
	assert.Equal(t, 24, cfg.Inbox.AddressLength)
	assert.Equal(t, 24*time.Hour, cfg.Inbox.DefaultTTL)
	assert.Equal(t, 50, cfg.Inbox.MaxMessages)
	assert.Equal(t, int64(10*1024*1024), cfg.Inbox.MaxMessageBytes)
	assert.Equal(t, ":2525", cfg.SMTP.BindAddr)
	assert.Equal(t, 60, cfg.RateLimit.APIPerMinute)
	assert.Equal(t, 10, cfg.RateLimit.InboxCreatePerHour)
	assert.Equal(t, 5*time.Minute, cfg.Worker.Interval)
	assert.Equal(t, 100, cfg.Worker.BatchSize)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Len(t, cfg.Security.EncryptionKey, 32)
}

func TestLoadOverrides(t *testing.T) {
	validEnv(t)
	t.Setenv("TEMPBOX_SERVER_PORT", "9090")
	t.Setenv("TEMPBOX_INBOX_DOMAIN", "mail.example.com")
	t.Setenv("TEMPBOX_INBOX_DEFAULT_TTL", "2h")
	t.Setenv("TEMPBOX_WORKER_INTERVAL", "1m")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "mail.example.com", cfg.Inbox.Domain)
	assert.Equal(t, 2*time.Hour, cfg.Inbox.DefaultTTL)
	assert.Equal(t, time.Minute, cfg.Worker.Interval)
}

func TestLoadMissingEncryptionKey(t *testing.T) {
	t.Setenv("TEMPBOX_SECURITY_ENCRYPTION_KEY", "")
	t.Setenv("TEMPBOX_SECURITY_TOKEN_SECRET", "test-secret-key-at-least-32-characters!!")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadBadEncryptionKey(t *testing.T) {
	t.Setenv("TEMPBOX_SECURITY_TOKEN_SECRET", "test-secret-key-at-least-32-characters!!")

	t.Setenv("TEMPBOX_SECURITY_ENCRYPTION_KEY", "not-hex")
	_, err := Load()
	assert.Error(t, err)

	// 长度不足
	t.Setenv("TEMPBOX_SECURITY_ENCRYPTION_KEY", "deadbeef")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoadShortTokenSecret(t *testing.T) {
	t.Setenv("TEMPBOX_SECURITY_ENCRYPTION_KEY", hex.EncodeToString(make([]byte, 32)))
	t.Setenv("TEMPBOX_SECURITY_TOKEN_SECRET", "short")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadSQLDriverRequiresDSN(t *testing.T) {
	validEnv(t)
	t.Setenv("TEMPBOX_DATABASE_DRIVER", "postgres")

	_, err := Load()
	assert.Error(t, err)

	t.Setenv("TEMPBOX_DATABASE_DSN", "host=localhost user=tempbox dbname=tempbox")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Database.Driver)
}

func TestParseList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, parseList("a, b"))
	assert.Equal(t, []string{"*"}, parseList("*"))
	assert.Empty(t, parseList(""))
}
