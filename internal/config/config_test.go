package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", cfg.Listen)
	assert.Equal(t, "Studio A", cfg.DefaultLocation)
	assert.True(t, cfg.SecureCookies)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Listen, again.Listen)
	assert.Equal(t, cfg.Database, again.Database)
	assert.Equal(t, cfg.GenerateCron, again.GenerateCron)
	assert.Nil(t, again.BasicAuth)
}

func TestLoadNormalizesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
listen: ":9000"
default_location: "  Lakeside Pavilion "
secure_cookies: false
recurring:
  - rrule: "FREQ=WEEKLY;BYDAY=MO"
    start: "2025-11-03T18:00"
basic_auth:
  username: admin
  password: ""
log:
  level: debug
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Listen)
	assert.Equal(t, "Lakeside Pavilion", cfg.DefaultLocation)
	assert.False(t, cfg.SecureCookies)
	assert.Equal(t, "America/Chicago", cfg.Timezone)
	assert.Equal(t, 28, cfg.HorizonDays)
	assert.Equal(t, 365, cfg.CookieDays)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 10, cfg.Log.MaxSizeMB)

	require.Len(t, cfg.Recurring, 1)
	assert.Equal(t, "recurring-freq=weekly-byday=mo", cfg.Recurring[0].ID)
	assert.Equal(t, "Lakeside Pavilion", cfg.Recurring[0].Location)

	assert.False(t, cfg.AdminEnabled(), "empty password disables admin")
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: [unterminated"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.BasicAuth = &BasicAuthConfig{Username: "admin", Password: "secret"}
	cfg.ICS = []ICSConfig{{ID: "studio", URL: "https://example.com/studio.ics"}}

	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.True(t, loaded.AdminEnabled())
	assert.Equal(t, cfg.ICS, loaded.ICS)

	assert.Error(t, Save("", cfg))
	assert.Error(t, Save(path, nil))
}
