package config

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "flowkit.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func testFlags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("flows-dir", "", "")
	flags.String("state", "", "")
	flags.String("log-level", "", "")
	flags.String("log-format", "", "")
	flags.Int("port", 0, "")
	flags.BoolP("verbose", "v", false, "")
	return flags
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	cfg, file, err := Load("", nil)
	require.NoError(t, err)
	assert.Empty(t, file)
	assert.Equal(t, filepath.Join(dir, DefaultFlowsDir), cfg.FlowsDir)
	assert.Equal(t, filepath.Join(dir, DefaultStateFile), cfg.StatePath)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, DefaultWebPort, cfg.Web.Port)
	assert.Zero(t, cfg.Geo.RateLimit)
}

func TestLoad_FileFoundUpward(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, `flows_dir: pipelines
database: postgres://localhost/flows
twitter:
  search_url: http://search.local/search.json
  rate_limit: 2.5
geo:
  app_id: ${FLOWKIT_TEST_APPID}
  base_url: http://geo.local/geocode
web:
  port: 9000
`)
	sub := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	t.Chdir(sub)
	t.Setenv("FLOWKIT_TEST_APPID", "secret")

	cfg, file, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "flowkit.yaml"), file)
	assert.Equal(t, root, cfg.ProjectRoot)
	assert.Equal(t, filepath.Join(root, "pipelines"), cfg.FlowsDir)
	assert.Equal(t, "postgres://localhost/flows", cfg.Database)
	assert.Equal(t, "http://search.local/search.json", cfg.Twitter.SearchURL)
	assert.Equal(t, 2.5, cfg.Twitter.RateLimit)
	assert.Equal(t, "secret", cfg.Geo.AppID)
	assert.Equal(t, 9000, cfg.Web.Port)
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := writeConfig(t, dir, `flows_dir: from_file
log:
  level: warn
  format: json
web:
  port: 9000
`)

	t.Run("env overrides file", func(t *testing.T) {
		t.Setenv("FLOWKIT_FLOWS_DIR", "/from_env")
		t.Setenv("FLOWKIT_LOG_LEVEL", "error")
		t.Setenv("FLOWKIT_WEB_PORT", "9100")

		cfg, _, err := Load(path, testFlags())
		require.NoError(t, err)
		assert.Equal(t, "/from_env", cfg.FlowsDir)
		assert.Equal(t, "error", cfg.Log.Level)
		assert.Equal(t, "json", cfg.Log.Format)
		assert.Equal(t, 9100, cfg.Web.Port)
	})

	t.Run("flags override env", func(t *testing.T) {
		t.Setenv("FLOWKIT_FLOWS_DIR", "/from_env")
		flags := testFlags()
		require.NoError(t, flags.Set("flows-dir", "from_flag"))
		require.NoError(t, flags.Set("log-level", "debug"))
		require.NoError(t, flags.Set("state", "state.db"))
		require.NoError(t, flags.Set("port", "9200"))

		cfg, _, err := Load(path, flags)
		require.NoError(t, err)
		assert.Equal(t, "from_flag", cfg.FlowsDir, "flag paths are not rebased on the project root")
		assert.Equal(t, "state.db", cfg.StatePath)
		assert.Equal(t, "debug", cfg.Log.Level)
		assert.Equal(t, 9200, cfg.Web.Port)
	})

	t.Run("unset flags fall back to env", func(t *testing.T) {
		t.Setenv("FLOWKIT_FLOWS_DIR", "/from_env")
		cfg, _, err := Load(path, testFlags())
		require.NoError(t, err)
		assert.Equal(t, "/from_env", cfg.FlowsDir)
	})
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	_, _, err := Load(filepath.Join(dir, "missing.yaml"), nil)
	assert.ErrorContains(t, err, "error reading config file")

	path := writeConfig(t, dir, "log:\n  level: loud\n  format: xml\n")
	_, _, err = Load(path, nil)
	assert.ErrorContains(t, err, `invalid log.level "loud"`)
	assert.ErrorContains(t, err, "log.format must be one of")
}

func TestConfig_Validate(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())

	cfg.FlowsDir = ""
	cfg.Web.Port = 70000
	cfg.Geo.RateLimit = -1
	err := cfg.Validate()
	assert.ErrorContains(t, err, "flows_dir is required")
	assert.ErrorContains(t, err, "web.port out of range")
	assert.ErrorContains(t, err, "geo.rate_limit")
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "log.level", envKey("FLOWKIT_LOG_LEVEL"))
	assert.Equal(t, "twitter.search_url", envKey("FLOWKIT_TWITTER_SEARCH_URL"))
	assert.Equal(t, "state_path", envKey("FLOWKIT_STATE_PATH"))
	assert.Equal(t, "geo.app_id", envKey("FLOWKIT_GEO_APP_ID"))
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("FLOWKIT_TEST_HOST", "db.local")
	assert.Equal(t, "postgres://db.local/x", ExpandEnv("postgres://${FLOWKIT_TEST_HOST}/x"))
	assert.Equal(t, "${FLOWKIT_TEST_UNSET}", ExpandEnv("${FLOWKIT_TEST_UNSET}"))
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, LogConfig{Level: "warn", Format: "json"}, false)
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	buf.Reset()
	logger = NewLogger(&buf, LogConfig{Level: "info", Format: "text"}, true)
	logger.Debug("debug on")
	assert.Contains(t, buf.String(), "msg=\"debug on\"")
}

func TestContext(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, Default(), FromContext(ctx))
	assert.NotNil(t, GetLogger(ctx))

	cfg := Default()
	cfg.Database = "sqlite:x.db"
	ctx = WithConfig(ctx, cfg, "flowkit.yaml")
	ctx = WithLogger(ctx, slog.Default())
	assert.Same(t, cfg, FromContext(ctx))
	assert.Equal(t, "flowkit.yaml", FileFromContext(ctx))
	assert.Same(t, slog.Default(), GetLogger(ctx))
}
