package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)

	assert.Equal(t, "synthledger", cfg.App.Name)
	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, "json", cfg.App.LogFormat)
	assert.Equal(t, 8401, cfg.Server.Port)
	assert.Equal(t, 1000, cfg.Generation.Volume)
	assert.Equal(t, 2, cfg.Generation.DecimalPlaces)
	assert.Equal(t, []string{"USD", "EUR", "GBP"}, cfg.Generation.Currencies)
	assert.Equal(t, 1024, cfg.Runtime.BufferSize)
	assert.Equal(t, "block", cfg.Runtime.BackpressurePolicy)
	assert.Equal(t, 1.0, cfg.Privacy.EpsilonBudget)
	assert.Equal(t, 5, cfg.Privacy.KAnonymity)
	assert.Equal(t, 0.05, cfg.Evaluation.SignificanceThreshold)
	assert.Equal(t, 0.75, cfg.Runtime.HighLoadThreshold)
	assert.Equal(t, 0.90, cfg.Runtime.CriticalLoadThreshold)
	assert.Equal(t, 5, cfg.HotReload.MaxBackups)
}

func TestApplyDefaults_DoesNotOverwriteExplicitValues(t *testing.T) {
	cfg := &Config{}
	cfg.Generation.Volume = 50000
	cfg.Privacy.EpsilonBudget = 0.5

	applyDefaults(cfg)

	assert.Equal(t, 50000, cfg.Generation.Volume)
	assert.Equal(t, 0.5, cfg.Privacy.EpsilonBudget)
}

func TestApplyEnvironmentOverrides(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)

	t.Setenv("SYNTHLEDGER_VOLUME", "25000")
	t.Setenv("SYNTHLEDGER_EPSILON_BUDGET", "2.5")
	t.Setenv("SYNTHLEDGER_K_ANONYMITY", "10")

	applyEnvironmentOverrides(cfg)

	assert.Equal(t, 25000, cfg.Generation.Volume)
	assert.Equal(t, 2.5, cfg.Privacy.EpsilonBudget)
	assert.Equal(t, 10, cfg.Privacy.KAnonymity)
}
