package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, 60*time.Second, cfg.HTTP.RequestTimeout)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 0, cfg.Objective.WorkerCount)
	assert.Equal(t, "newton", cfg.Objective.Method)
	assert.Equal(t, 200, cfg.Objective.MaxIterations)
	assert.Equal(t, 1000, cfg.Objective.MaxResults)
	assert.Equal(t, 4096, cfg.Objective.MaxScalars)
}

func TestLoadLogLevel(t *testing.T) {
	tests := []struct {
		name  string
		env   string
		level string
		want  string
	}{
		{name: "development default", env: "development", want: "debug"},
		{name: "production default", env: "production", want: "info"},
		{name: "explicit level wins", env: "development", level: "warn", want: "warn"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("ENV", tt.env)
			t.Setenv("LOG_LEVEL", tt.level)
			cfg, err := Load()
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.Logging.Level)
		})
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("OBJ_WORKER_COUNT", "4")
	t.Setenv("OBJ_METHOD", "lbfgs")
	t.Setenv("OBJ_MAX_TERMS", "50")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, 4, cfg.Objective.WorkerCount)
	assert.Equal(t, "lbfgs", cfg.Objective.Method)
	assert.Equal(t, 50, cfg.Objective.MaxTerms)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"negative workers", "OBJ_WORKER_COUNT", "-1"},
		{"unknown method", "OBJ_METHOD", "sgd"},
		{"zero iterations", "OBJ_MAX_ITERATIONS", "0"},
		{"negative scalars", "OBJ_MAX_SCALARS", "-1"},
		{"not a number", "HTTP_PORT", "http"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
		})
	}
}

func TestValidMethod(t *testing.T) {
	for _, m := range Methods {
		assert.True(t, ValidMethod(m))
	}
	assert.False(t, ValidMethod(""))
}
