package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleConfig struct {
	HTTP struct {
		Port string `yaml:"port" env:"SAMPLE_HTTP_PORT"`
	} `yaml:"http"`
	Tokens struct {
		RegistrationTTL time.Duration `yaml:"registrationTTL"`
		Multiplier      int           `yaml:"multiplier"`
	} `yaml:"tokens"`
	Debug bool `yaml:"debug"`
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigYAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
http:
  port: "9000"
tokens:
  registrationTTL: 15m
  multiplier: 2
`)
	t.Setenv(defaultConfigPathEnv, path)
	t.Setenv(defaultDotEnvPathEnv, "")
	t.Setenv("SAMPLE_HTTP_PORT", "9100")
	t.Setenv("TOKENS_REGISTRATIONTTL", "45s")

	var cfg sampleConfig
	require.NoError(t, LoadConfig(&cfg))

	assert.Equal(t, "9100", cfg.HTTP.Port)
	assert.Equal(t, 45*time.Second, cfg.Tokens.RegistrationTTL)
	assert.Equal(t, 2, cfg.Tokens.Multiplier)
}

func TestLoadConfigDotEnvDoesNotOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	dotenv := writeFile(t, dir, "local.env", "SAMPLE_HTTP_PORT=7000\nDEBUG=true\n")
	t.Setenv(defaultConfigPathEnv, "")
	t.Setenv(defaultDotEnvPathEnv, dotenv)
	t.Setenv("SAMPLE_HTTP_PORT", "7100")
	t.Cleanup(func() { os.Unsetenv("DEBUG") })

	var cfg sampleConfig
	require.NoError(t, LoadConfig(&cfg))

	assert.Equal(t, "7100", cfg.HTTP.Port)
	assert.True(t, cfg.Debug)
}

func TestLoadConfigMissingExplicitDotEnv(t *testing.T) {
	t.Setenv(defaultConfigPathEnv, "")
	t.Setenv(defaultDotEnvPathEnv, filepath.Join(t.TempDir(), "missing.env"))

	var cfg sampleConfig
	assert.Error(t, LoadConfig(&cfg))
}

func TestLoadConfigRejectsBadDuration(t *testing.T) {
	t.Setenv(defaultConfigPathEnv, "")
	t.Setenv(defaultDotEnvPathEnv, "")
	t.Setenv("TOKENS_REGISTRATIONTTL", "soon")

	var cfg sampleConfig
	err := LoadConfig(&cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TOKENS_REGISTRATIONTTL")
}

func TestLoadConfigRejectsNonPointer(t *testing.T) {
	assert.Error(t, LoadConfig(sampleConfig{}))
	assert.Error(t, LoadConfig(nil))
}
