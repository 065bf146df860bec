package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/555Russich/18.fl-auto-response/internal/config"
	"github.com/555Russich/18.fl-auto-response/internal/session"
)

// newRunFlags returns a command carrying the run flags, parsed from args.
func newRunFlags(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "run"}
	addRunFlags(cmd)
	require.NoError(t, cmd.ParseFlags(args))
	return cmd
}

func clearResponderEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		config.EnvStore, config.EnvPatternFile, config.EnvCookieFile,
		config.EnvLogFile, config.EnvLogLevel, config.EnvHeadless,
	} {
		t.Setenv(key, "")
	}
}

func TestResolveRunConfig_Defaults(t *testing.T) {
	clearResponderEnv(t)

	cfg, err := resolveRunConfig(newRunFlags(t))
	require.NoError(t, err)

	assert.Equal(t, "file://orders_id.json", cfg.Store)
	assert.Equal(t, "pattern_bad.regexp", cfg.PatternFile)
	assert.Equal(t, "bot.log", cfg.LogFile)
	assert.True(t, cfg.HeadlessOrDefault())
	assert.Equal(t, 3, cfg.Timings.DiscoveryAttempts)
}

func TestResolveRunConfig_Layering(t *testing.T) {
	clearResponderEnv(t)
	t.Setenv(config.EnvStore, "sqlite://env.db")
	t.Setenv(config.EnvCookieFile, "env_cookies.json")
	t.Setenv(config.EnvLogLevel, "warn")

	path := filepath.Join(t.TempDir(), "responder.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store: redis://localhost:6379/0\nlog_level: debug\n"), 0o644))

	cfg, err := resolveRunConfig(newRunFlags(t,
		"--config", path,
		"--log-level", "error",
		"--headless=false",
		"--max-restarts", "4",
	))
	require.NoError(t, err)

	assert.Equal(t, "redis://localhost:6379/0", cfg.Store, "file beats env")
	assert.Equal(t, "env_cookies.json", cfg.CookieFile, "env beats defaults")
	assert.Equal(t, "error", cfg.LogLevel, "flag beats file")
	assert.False(t, cfg.HeadlessOrDefault())
	assert.Equal(t, 4, cfg.MaxRestarts)
}

func TestResolveRunConfig_Invalid(t *testing.T) {
	clearResponderEnv(t)

	tests := []struct {
		name string
		args []string
	}{
		{name: "missing config file", args: []string{"--config", filepath.Join(t.TempDir(), "nope.json")}},
		{name: "bad log level", args: []string{"--log-level", "loud"}},
		{name: "negative restarts", args: []string{"--max-restarts", "-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := resolveRunConfig(newRunFlags(t, tt.args...))
			assert.Error(t, err)
		})
	}
}

func TestPipelineOptions(t *testing.T) {
	cfg := config.Defaults()
	cfg.UserAgent = "agent/1.0"
	cfg.ChromePath = "/usr/bin/chromium"
	cfg.Timings.IdleSleep = config.Duration(time.Minute)
	creds := session.Credentials{Login: "user", Password: "secret"}

	opts := pipelineOptions(cfg, creds, zap.NewNop())

	assert.Equal(t, creds, opts.Credentials)
	assert.Equal(t, "file://orders_id.json", opts.StoreDSN)
	assert.Equal(t, time.Hour, opts.CacheTTL)
	assert.Equal(t, "pattern_bad.regexp", opts.PatternFile)
	assert.Equal(t, time.Minute, opts.Timings.IdleSleep)
	assert.Equal(t, 3, opts.Timings.DetailAttempts)
	assert.Equal(t, 7*24*time.Hour, opts.Window.Lookback)

	require.NotNil(t, opts.Browser)
	assert.True(t, opts.Browser.Headless)
	assert.Equal(t, "agent/1.0", opts.Browser.UserAgent)
	assert.Equal(t, "/usr/bin/chromium", opts.Browser.ExecPath)
	assert.Equal(t, 1500*time.Millisecond, opts.Browser.LocateTimeout)
	assert.Equal(t, cfg.Site.APIPattern, opts.Browser.CaptureURL)
}
