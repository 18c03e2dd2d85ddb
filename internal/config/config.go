package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment variable overrides.
const EnvPrefix = "UNIFI_"

// Config is the daemon's declarative configuration.
type Config struct {
	// Controller connection
	Host      string `yaml:"host"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	Port      int    `yaml:"port,omitempty"` // 0 = auto-detect 443/8443/11443
	VerifySSL *bool  `yaml:"verify_ssl,omitempty"`
	Site      string `yaml:"site,omitempty"`

	// Timeouts and retry
	ConnectTimeout time.Duration `yaml:"connect_timeout,omitempty"`
	RequestTimeout time.Duration `yaml:"request_timeout,omitempty"`
	MaxRetries     int           `yaml:"max_retries,omitempty"`

	// Collection window
	InitialLookbackHours int           `yaml:"initial_lookback_hours,omitempty"`
	PollInterval         time.Duration `yaml:"poll_interval,omitempty"`
	DedupWindow          time.Duration `yaml:"dedup_window,omitempty"`
	IPSourceThreshold    int           `yaml:"ip_source_threshold,omitempty"`

	// Paths
	ReportsDir     string `yaml:"reports_dir"`
	StateDir       string `yaml:"state_dir,omitempty"` // defaults to reports_dir
	HealthFilePath string `yaml:"health_file,omitempty"`

	// Logging
	LogLevel  string `yaml:"log_level,omitempty"`
	LogFormat string `yaml:"log_format,omitempty"`
	LogFile   string `yaml:"log_file,omitempty"`

	// Rendering
	Timezone string `yaml:"timezone,omitempty"` // IANA zone for display timestamps

	// Metrics endpoint (0 disables)
	MetricsPort int `yaml:"metrics_port,omitempty"`

	// Delivery
	SMTP SMTPConfig `yaml:"smtp,omitempty"`

	// SSH/DB fallback for IPS events
	SSH SSHConfig `yaml:"ssh,omitempty"`

	// Enrichment integrations
	Integrations IntegrationsConfig `yaml:"integrations,omitempty"`
}

// SMTPConfig configures the email delivery channel.
type SMTPConfig struct {
	Host     string   `yaml:"host,omitempty"`
	Port     int      `yaml:"port,omitempty"`
	Username string   `yaml:"username,omitempty"`
	Password string   `yaml:"password,omitempty"`
	From     string   `yaml:"from,omitempty"`
	To       []string `yaml:"to,omitempty"`
	StartTLS *bool    `yaml:"starttls,omitempty"`
}

// Enabled reports whether the email channel is configured at all.
func (s SMTPConfig) Enabled() bool {
	return s.Host != "" && s.From != ""
}

// SSHConfig configures the gateway SSH fallback for IPS events.
type SSHConfig struct {
	Host     string `yaml:"host,omitempty"`
	Port     int    `yaml:"port,omitempty"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	KeyFile  string `yaml:"key_file,omitempty"`
}

// Enabled reports whether the SSH fallback is configured.
func (s SSHConfig) Enabled() bool {
	return s.Host != "" && s.Username != "" && (s.Password != "" || s.KeyFile != "")
}

// IntegrationsConfig holds per-integration credentials.
type IntegrationsConfig struct {
	IPReputation IPReputationConfig `yaml:"ip_reputation,omitempty"`
}

// IPReputationConfig configures the source-IP reputation enrichment.
type IPReputationConfig struct {
	URL    string `yaml:"url,omitempty"`
	APIKey string `yaml:"api_key,omitempty"`
}

// Defaults applied before file/env loading.
func defaults() *Config {
	verify := true
	return &Config{
		VerifySSL:            &verify,
		ConnectTimeout:       10 * time.Second,
		RequestTimeout:       30 * time.Second,
		MaxRetries:           5,
		InitialLookbackHours: 24,
		PollInterval:         time.Hour,
		DedupWindow:          time.Hour,
		IPSourceThreshold:    10,
		HealthFilePath:       "/tmp/unifi-scanner-health",
		LogLevel:             "info",
		LogFormat:            "auto",
		Timezone:             "UTC",
		SMTP: SMTPConfig{
			Port: 587,
		},
		SSH: SSHConfig{
			Port: 22,
		},
	}
}

// defaultPaths are searched in order when no explicit path is given.
var defaultPaths = []string{
	"/etc/unifi-scanner/unifi-scanner.yml",
	"/etc/unifi-scanner/unifi-scanner.yaml",
	"./unifi-scanner.yml",
	"./unifi-scanner.yaml",
}

// Load reads configuration from the given file (or the default search path
// when path is empty), applies environment overrides, resolves *_FILE secret
// indirection, and validates the result.
func Load(path string) (*Config, error) {
	// .env support for container deployments
	if err := godotenv.Load(); err == nil {
		log.Debug().Msg("Loaded .env from current directory")
	}

	cfg := defaults()

	configPath := path
	if configPath == "" {
		for _, candidate := range defaultPaths {
			if _, err := os.Stat(candidate); err == nil {
				configPath = candidate
				break
			}
		}
	}

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configPath, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", configPath, err)
		}
		log.Info().Str("path", configPath).Msg("Loaded configuration file")
	} else if path != "" {
		return nil, fmt.Errorf("config file %s not found", path)
	} else {
		log.Debug().Msg("No config file found, using environment and defaults")
	}

	applyEnvOverrides(cfg)

	if err := resolveSecretFiles(cfg); err != nil {
		return nil, err
	}

	if cfg.StateDir == "" {
		cfg.StateDir = cfg.ReportsDir
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnvOverrides maps UNIFI_* environment variables onto the config.
func applyEnvOverrides(cfg *Config) {
	setString := func(key string, dst *string) {
		if v, ok := lookupSecret(key); ok {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v, ok := lookupSecret(key); ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			} else {
				log.Warn().Str("var", EnvPrefix+key).Str("value", v).Msg("Ignoring non-numeric environment override")
			}
		}
	}
	setBool := func(key string, dst **bool) {
		if v, ok := lookupSecret(key); ok {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = &b
			} else {
				log.Warn().Str("var", EnvPrefix+key).Str("value", v).Msg("Ignoring non-boolean environment override")
			}
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if v, ok := lookupSecret(key); ok {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			} else {
				log.Warn().Str("var", EnvPrefix+key).Str("value", v).Msg("Ignoring unparsable duration override")
			}
		}
	}

	setString("HOST", &cfg.Host)
	setString("USERNAME", &cfg.Username)
	setString("PASSWORD", &cfg.Password)
	setInt("PORT", &cfg.Port)
	setBool("VERIFY_SSL", &cfg.VerifySSL)
	setString("SITE", &cfg.Site)
	setDuration("CONNECT_TIMEOUT", &cfg.ConnectTimeout)
	setDuration("REQUEST_TIMEOUT", &cfg.RequestTimeout)
	setInt("MAX_RETRIES", &cfg.MaxRetries)
	setInt("INITIAL_LOOKBACK_HOURS", &cfg.InitialLookbackHours)
	setDuration("POLL_INTERVAL", &cfg.PollInterval)
	setDuration("DEDUP_WINDOW", &cfg.DedupWindow)
	setString("REPORTS_DIR", &cfg.ReportsDir)
	setString("STATE_DIR", &cfg.StateDir)
	setString("HEALTH_FILE", &cfg.HealthFilePath)
	setString("LOG_LEVEL", &cfg.LogLevel)
	setString("LOG_FORMAT", &cfg.LogFormat)
	setString("LOG_FILE", &cfg.LogFile)
	setString("TIMEZONE", &cfg.Timezone)
	setInt("METRICS_PORT", &cfg.MetricsPort)

	setString("SMTP_HOST", &cfg.SMTP.Host)
	setInt("SMTP_PORT", &cfg.SMTP.Port)
	setString("SMTP_USERNAME", &cfg.SMTP.Username)
	setString("SMTP_PASSWORD", &cfg.SMTP.Password)
	setString("SMTP_FROM", &cfg.SMTP.From)
	if v, ok := lookupSecret("SMTP_TO"); ok {
		var to []string
		for _, addr := range strings.Split(v, ",") {
			if addr = strings.TrimSpace(addr); addr != "" {
				to = append(to, addr)
			}
		}
		cfg.SMTP.To = to
	}

	setString("SSH_HOST", &cfg.SSH.Host)
	setInt("SSH_PORT", &cfg.SSH.Port)
	setString("SSH_USERNAME", &cfg.SSH.Username)
	setString("SSH_PASSWORD", &cfg.SSH.Password)
	setString("SSH_KEY_FILE", &cfg.SSH.KeyFile)

	setString("IP_REPUTATION_URL", &cfg.Integrations.IPReputation.URL)
	setString("IP_REPUTATION_API_KEY", &cfg.Integrations.IPReputation.APIKey)
}

// lookupSecret resolves UNIFI_<KEY>, preferring UNIFI_<KEY>_FILE when set so
// secrets can be mounted from files.
func lookupSecret(key string) (string, bool) {
	if path := os.Getenv(EnvPrefix + key + "_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Warn().Err(err).Str("var", EnvPrefix+key+"_FILE").Msg("Failed to read secret file")
			return "", false
		}
		return strings.TrimSpace(string(data)), true
	}
	if v, ok := os.LookupEnv(EnvPrefix + key); ok {
		return v, true
	}
	return "", false
}

// resolveSecretFiles expands file: references in sensitive YAML fields.
func resolveSecretFiles(cfg *Config) error {
	for _, field := range []*string{&cfg.Password, &cfg.SMTP.Password, &cfg.SSH.Password, &cfg.Integrations.IPReputation.APIKey} {
		v := *field
		if !strings.HasPrefix(v, "file:") {
			continue
		}
		path := strings.TrimPrefix(v, "file:")
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read secret file %s: %w", path, err)
		}
		*field = strings.TrimSpace(string(data))
	}
	return nil
}

// Validate checks the configuration and reports every failing field at once.
func (c *Config) Validate() error {
	var problems []string

	if c.Host == "" {
		problems = append(problems, "host is required")
	}
	if c.Username == "" {
		problems = append(problems, "username is required")
	}
	if c.Password == "" {
		problems = append(problems, "password is required")
	}
	if c.ReportsDir == "" {
		problems = append(problems, "reports_dir is required")
	}
	if c.InitialLookbackHours < 1 || c.InitialLookbackHours > 720 {
		problems = append(problems, fmt.Sprintf("initial_lookback_hours must be in [1, 720], got %d", c.InitialLookbackHours))
	}
	if c.PollInterval < time.Minute {
		problems = append(problems, fmt.Sprintf("poll_interval must be at least 1m, got %s", c.PollInterval))
	}
	if c.MaxRetries < 1 {
		problems = append(problems, fmt.Sprintf("max_retries must be at least 1, got %d", c.MaxRetries))
	}
	switch strings.ToLower(c.LogLevel) {
	case "", "trace", "debug", "info", "warn", "warning", "error", "fatal":
	default:
		problems = append(problems, fmt.Sprintf("log_level %q is not a recognized level", c.LogLevel))
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "auto", "json", "console":
	default:
		problems = append(problems, fmt.Sprintf("log_format %q is not one of auto, json, console", c.LogFormat))
	}
	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			problems = append(problems, fmt.Sprintf("timezone %q is not a valid IANA zone", c.Timezone))
		}
	}
	if c.SMTP.Host != "" && c.SMTP.From == "" {
		problems = append(problems, "smtp.from is required when smtp.host is set")
	}
	if !c.SMTP.Enabled() && c.ReportsDir == "" {
		problems = append(problems, "at least one delivery channel (smtp or reports_dir) must be configured")
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration invalid:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

// ValidateWritable checks the filesystem paths the daemon must own. Called at
// startup so misconfigured mounts fail fast.
func (c *Config) ValidateWritable() error {
	var problems []string
	for _, dir := range []string{c.ReportsDir, c.StateDir} {
		if dir == "" {
			continue
		}
		if err := checkDirWritable(dir); err != nil {
			problems = append(problems, err.Error())
		}
	}
	if c.HealthFilePath != "" {
		if err := checkDirWritable(filepath.Dir(c.HealthFilePath)); err != nil {
			problems = append(problems, err.Error())
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("configuration invalid:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

func checkDirWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("directory %s cannot be created: %v", dir, err)
	}
	probe, err := os.CreateTemp(dir, ".write-check-*")
	if err != nil {
		return fmt.Errorf("directory %s is not writable: %v", dir, err)
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)
	return nil
}

// VerifyTLS returns the effective TLS verification setting.
func (c *Config) VerifyTLS() bool {
	return c.VerifySSL == nil || *c.VerifySSL
}

// Location returns the display timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
