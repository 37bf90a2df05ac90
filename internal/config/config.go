package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/warp/checklist-engine/checklist"
)

// NOTE: YAML file is the source of truth; a .env file and CHECKLIST_*
// environment variables override individual fields at load time only and
// are never written back.

const (
	defaultListen       = "127.0.0.1:8080"
	defaultDBPath       = "checklist.db"
	defaultCountry      = "FR"
	defaultLogLevel     = "info"
	defaultAuditCron    = "0 * * * *"
	defaultReminderCron = "*/30 * * * *"
	defaultLookbackDays = 60
	defaultLeadMinutes  = 30
	defaultMaxRangeDays = 400
	envPrefix           = "CHECKLIST_"
)

// AuditConfig schedules the missed-instance auditor.
type AuditConfig struct {
	// Cron is a standard 5-field schedule. Empty disables the job.
	Cron         string `yaml:"cron" json:"cron"`
	LookbackDays int    `yaml:"lookback_days" json:"lookback_days"`
}

// RemindersConfig schedules the reminder scan.
type RemindersConfig struct {
	Cron        string `yaml:"cron" json:"cron"`
	LeadMinutes int    `yaml:"lead_minutes" json:"lead_minutes"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen" json:"listen"`

	// DBPath is the SQLite database file (":memory:" for an ephemeral store).
	DBPath string `yaml:"db_path" json:"db_path"`

	// Country selects the timezone and national holiday calendar.
	Country string `yaml:"country" json:"country"`

	LogLevel    string   `yaml:"log_level" json:"log_level"`
	CORSOrigins []string `yaml:"cors_origins" json:"cors_origins"`

	// MaxRangeDays bounds listing ranges accepted by the API.
	MaxRangeDays int `yaml:"max_range_days" json:"max_range_days"`

	// Schedule is the default time-of-day window per periodicity, used to
	// seed the store's schedule settings on first run.
	Schedule checklist.ScheduleConfig `yaml:"schedule" json:"schedule"`

	Audit     AuditConfig     `yaml:"audit" json:"audit"`
	Reminders RemindersConfig `yaml:"reminders" json:"reminders"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:       defaultListen,
		DBPath:       defaultDBPath,
		Country:      defaultCountry,
		LogLevel:     defaultLogLevel,
		CORSOrigins:  []string{"http://localhost:3000", "http://localhost:5173"},
		MaxRangeDays: defaultMaxRangeDays,
		Audit:        AuditConfig{Cron: defaultAuditCron, LookbackDays: defaultLookbackDays},
		Reminders:    RemindersConfig{Cron: defaultReminderCron, LeadMinutes: defaultLeadMinutes},
	}
}

// Normalize fills in missing/zero values with defaults.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.DBPath == "" {
		c.DBPath = defaultDBPath
	}
	c.Country = strings.ToUpper(strings.TrimSpace(c.Country))
	if c.Country == "" {
		c.Country = defaultCountry
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
		c.LogLevel = strings.ToLower(c.LogLevel)
	default:
		c.LogLevel = defaultLogLevel
	}
	if c.CORSOrigins == nil {
		c.CORSOrigins = []string{}
	}
	if c.MaxRangeDays <= 0 {
		c.MaxRangeDays = defaultMaxRangeDays
	}
	if c.Audit.LookbackDays <= 0 {
		c.Audit.LookbackDays = defaultLookbackDays
	}
	if c.Reminders.LeadMinutes <= 0 {
		c.Reminders.LeadMinutes = defaultLeadMinutes
	}
}

// Load loads configuration from the given YAML path, then applies .env and
// environment overrides.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms and returned
//   - If the file exists, it is unmarshalled and normalized
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	var cfg *Config
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		cfg = DefaultConfig()
		if err := Save(path, cfg); err != nil {
			return cfg, err
		}
	case err != nil:
		return nil, err
	default:
		// Fields absent from the file keep their defaults; an explicit
		// empty cron disables that job.
		cfg = DefaultConfig()
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	// .env is optional.
	_ = godotenv.Load()
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	cfg.Normalize()
	return cfg, nil
}

// ApplyEnv overrides fields from CHECKLIST_* environment variables.
func (c *Config) ApplyEnv() error {
	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(envPrefix + name); ok {
			*dst = v
		}
	}
	num := func(name string, dst *int) error {
		v, ok := os.LookupEnv(envPrefix + name)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", envPrefix, name, err)
		}
		*dst = n
		return nil
	}

	str("LISTEN", &c.Listen)
	str("DB_PATH", &c.DBPath)
	str("COUNTRY", &c.Country)
	str("LOG_LEVEL", &c.LogLevel)
	str("AUDIT_CRON", &c.Audit.Cron)
	str("REMINDER_CRON", &c.Reminders.Cron)
	if v, ok := os.LookupEnv(envPrefix + "CORS_ORIGINS"); ok {
		c.CORSOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.CORSOrigins = append(c.CORSOrigins, o)
			}
		}
	}
	if err := num("AUDIT_LOOKBACK_DAYS", &c.Audit.LookbackDays); err != nil {
		return err
	}
	if err := num("REMINDER_LEAD_MINUTES", &c.Reminders.LeadMinutes); err != nil {
		return err
	}
	return num("MAX_RANGE_DAYS", &c.MaxRangeDays)
}

// Save writes cfg to path atomically (temp file + rename) with 0600 perms.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}
	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".checklist-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save delegates to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
