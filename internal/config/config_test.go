package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	viper.Reset()
	t.Setenv("BACKEND_URL", "http://backend.test/api/")
	t.Setenv("SESSION_STALE_AFTER", "120")
	t.Setenv("POLL_INTERVAL", "10")
	t.Setenv("CREDENTIAL_STORE", "file")
	t.Setenv("CREDENTIAL_FILE", t.TempDir()+"/token.json")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "http://backend.test/api", cfg.Backend.BaseURL)
	require.Equal(t, 2*time.Minute, cfg.Session.StaleAfter)
	require.Equal(t, 10*time.Second, cfg.Polling.Interval)
	require.Equal(t, StoreFile, cfg.Session.Store)
}

func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Setenv("CREDENTIAL_STORE", "")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, 5*time.Minute, cfg.Session.StaleAfter)
	require.Equal(t, 30*time.Second, cfg.Polling.Interval)
}

func TestLoadConfig_RedisStoreWithoutHostFallsBack(t *testing.T) {
	viper.Reset()
	t.Setenv("CREDENTIAL_STORE", "redis")
	t.Setenv("REDIS_HOST", "")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, StoreMemory, cfg.Session.Store)
}

func TestLoadConfig_RejectsUnknownStore(t *testing.T) {
	viper.Reset()
	t.Setenv("CREDENTIAL_STORE", "cookie")
	_, err := LoadConfig()
	require.Error(t, err)
}

func TestLoadConfig_LogFile(t *testing.T) {
	viper.Reset()
	t.Setenv("LOG_FILE", "/var/log/taskboard/front.log")
	t.Setenv("LOG_MAX_BACKUPS", "7")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "/var/log/taskboard/front.log", cfg.Log.File)
	require.Equal(t, 100, cfg.Log.MaxSizeMB)
	require.Equal(t, 7, cfg.Log.MaxBackups)
	require.Equal(t, 28, cfg.Log.MaxAgeDays)

	viper.Reset()
	t.Setenv("LOG_MAX_SIZE_MB", "0")
	_, err = LoadConfig()
	require.Error(t, err)
}
