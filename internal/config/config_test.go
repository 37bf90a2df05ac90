package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/checklist-engine/checklist"
)

func TestLoad_CreatesDefaultOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "FR", cfg.Country)
	assert.Equal(t, "0 * * * *", cfg.Audit.Cron)
	assert.Equal(t, 60, cfg.Audit.LookbackDays)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
country: be
schedule:
  per_periodicity:
    daily:
      start: "08:00"
      end: "18:00"
reminders:
  cron: ""
`), 0o600))

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "BE", cfg.Country)
	assert.Equal(t, "0 * * * *", cfg.Audit.Cron)
	assert.Equal(t, "", cfg.Reminders.Cron, "explicit empty disables the job")
	assert.Equal(t, 30, cfg.Reminders.LeadMinutes)
	assert.Equal(t, checklist.TimeRange{Start: "08:00", End: "18:00"}, cfg.Schedule.PerPeriodicity[checklist.Daily])
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, Save(path, DefaultConfig()))
	t.Setenv("CHECKLIST_COUNTRY", "de")
	t.Setenv("CHECKLIST_AUDIT_LOOKBACK_DAYS", "14")
	t.Setenv("CHECKLIST_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "DE", cfg.Country)
	assert.Equal(t, 14, cfg.Audit.LookbackDays)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
}

func TestLoad_InvalidEnvNumber(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, Save(path, DefaultConfig()))
	t.Setenv("CHECKLIST_MAX_RANGE_DAYS", "lots")

	_, err := Load(path)

	assert.Error(t, err)
}

func TestNormalize(t *testing.T) {
	cfg := &Config{LogLevel: "LOUD"}
	cfg.Normalize()

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "127.0.0.1:8080", cfg.Listen)
	assert.Equal(t, 400, cfg.MaxRangeDays)
	assert.NotNil(t, cfg.CORSOrigins)
}
