package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "unifi-scanner.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const minimalYAML = `
host: unifi.example.com
username: scanner
password: secret
reports_dir: /tmp/reports
`

func TestLoadMinimal(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "unifi.example.com", cfg.Host)
	assert.Equal(t, 0, cfg.Port, "port defaults to auto-detect")
	assert.True(t, cfg.VerifyTLS())
	assert.Equal(t, time.Hour, cfg.PollInterval)
	assert.Equal(t, time.Hour, cfg.DedupWindow)
	assert.Equal(t, 24, cfg.InitialLookbackHours)
	assert.Equal(t, 10, cfg.IPSourceThreshold)
	assert.Equal(t, "/tmp/reports", cfg.StateDir, "state dir falls back to reports dir")
	assert.Equal(t, time.UTC, cfg.Location())
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := defaults()
	cfg.InitialLookbackHours = 0
	cfg.PollInterval = time.Second

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "host is required")
	assert.Contains(t, msg, "username is required")
	assert.Contains(t, msg, "password is required")
	assert.Contains(t, msg, "reports_dir is required")
	assert.Contains(t, msg, "initial_lookback_hours")
	assert.Contains(t, msg, "poll_interval")
}

func TestValidateLookbackBounds(t *testing.T) {
	cfg := defaults()
	cfg.Host, cfg.Username, cfg.Password, cfg.ReportsDir = "h", "u", "p", "/tmp/r"

	cfg.InitialLookbackHours = 720
	assert.NoError(t, cfg.Validate())
	cfg.InitialLookbackHours = 721
	assert.Error(t, cfg.Validate())
	cfg.InitialLookbackHours = 1
	assert.NoError(t, cfg.Validate())
}

func TestValidateBadTimezone(t *testing.T) {
	cfg := defaults()
	cfg.Host, cfg.Username, cfg.Password, cfg.ReportsDir = "h", "u", "p", "/tmp/r"
	cfg.Timezone = "Mars/Olympus_Mons"
	assert.Error(t, cfg.Validate())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("UNIFI_HOST", "env-host.example.com")
	t.Setenv("UNIFI_PORT", "8443")
	t.Setenv("UNIFI_VERIFY_SSL", "false")
	t.Setenv("UNIFI_POLL_INTERVAL", "30m")
	t.Setenv("UNIFI_SMTP_TO", "a@example.com, b@example.com")

	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "env-host.example.com", cfg.Host)
	assert.Equal(t, 8443, cfg.Port)
	assert.False(t, cfg.VerifyTLS())
	assert.Equal(t, 30*time.Minute, cfg.PollInterval)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, cfg.SMTP.To)
}

func TestSecretFileIndirection(t *testing.T) {
	secretPath := filepath.Join(t.TempDir(), "pw")
	require.NoError(t, os.WriteFile(secretPath, []byte("hunter2\n"), 0o600))
	t.Setenv("UNIFI_PASSWORD_FILE", secretPath)

	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)
	assert.Equal(t, "hunter2", cfg.Password)
}

func TestFilePrefixSecret(t *testing.T) {
	secretPath := filepath.Join(t.TempDir(), "pw")
	require.NoError(t, os.WriteFile(secretPath, []byte("swordfish"), 0o600))

	cfg, err := Load(writeConfig(t, `
host: unifi.example.com
username: scanner
password: file:`+secretPath+`
reports_dir: /tmp/reports
`))
	require.NoError(t, err)
	assert.Equal(t, "swordfish", cfg.Password)
}

func TestSMTPEnabled(t *testing.T) {
	assert.False(t, SMTPConfig{}.Enabled())
	assert.False(t, SMTPConfig{Host: "mail.example.com"}.Enabled())
	assert.True(t, SMTPConfig{Host: "mail.example.com", From: "x@example.com"}.Enabled())
}

func TestSSHEnabled(t *testing.T) {
	assert.False(t, SSHConfig{}.Enabled())
	assert.False(t, SSHConfig{Host: "gw", Username: "root"}.Enabled())
	assert.True(t, SSHConfig{Host: "gw", Username: "root", Password: "pw"}.Enabled())
	assert.True(t, SSHConfig{Host: "gw", Username: "root", KeyFile: "/k"}.Enabled())
}

func TestValidateWritable(t *testing.T) {
	dir := t.TempDir()
	cfg := defaults()
	cfg.ReportsDir = filepath.Join(dir, "reports")
	cfg.StateDir = filepath.Join(dir, "state")
	cfg.HealthFilePath = filepath.Join(dir, "health")

	require.NoError(t, cfg.ValidateWritable())
	assert.DirExists(t, cfg.ReportsDir)
	assert.DirExists(t, cfg.StateDir)
}
