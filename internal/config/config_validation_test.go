package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func TestValidateConfig_DefaultsAreValid(t *testing.T) {
	require.NoError(t, ValidateConfig(validConfig()))
}

func TestValidateConfig_RejectsNonPositiveEpsilonBudget(t *testing.T) {
	cfg := validConfig()
	cfg.Privacy.EpsilonBudget = 0
	err := ValidateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "epsilon_budget")
}

func TestValidateConfig_RejectsKAnonymityBelowOne(t *testing.T) {
	cfg := validConfig()
	cfg.Privacy.KAnonymity = 0
	err := ValidateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "k_anonymity")
}

func TestValidateConfig_RejectsBadWinsorizeBounds(t *testing.T) {
	cfg := validConfig()
	cfg.Privacy.WinsorizeLowPct = 0.9
	cfg.Privacy.WinsorizeHighPct = 0.1
	err := ValidateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "winsorize_bounds")
}

func TestValidateConfig_RejectsFraudPatternMixNotSummingToOne(t *testing.T) {
	cfg := validConfig()
	cfg.Generation.FraudPatternMix = map[string]float64{
		"normal":                  0.5,
		"statistically_improbable": 0.1,
	}
	err := ValidateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fraud_pattern_mix")
}

func TestValidateConfig_AcceptsFraudPatternMixSummingToOne(t *testing.T) {
	cfg := validConfig()
	cfg.Generation.FraudPatternMix = map[string]float64{
		"normal":                   0.85,
		"statistically_improbable": 0.05,
		"obvious_round_numbers":    0.05,
		"threshold_adjacent":       0.05,
	}
	require.NoError(t, ValidateConfig(cfg))
}

func TestValidateConfig_RejectsInvalidBackpressurePolicy(t *testing.T) {
	cfg := validConfig()
	cfg.Runtime.BackpressurePolicy = "explode"
	err := ValidateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backpressure_policy")
}

func TestValidateConfig_RejectsInvalidLogLevel(t *testing.T) {
	cfg := validConfig()
	cfg.App.LogLevel = "verbose"
	err := ValidateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log_level")
}

func TestValidateConfig_RejectsSignificanceThresholdOutOfRange(t *testing.T) {
	cfg := validConfig()
	cfg.Evaluation.SignificanceThreshold = 1.5
	err := ValidateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "significance_threshold")
}

func TestValidateConfig_RejectsCriticalLoadThresholdBelowHighLoadThreshold(t *testing.T) {
	cfg := validConfig()
	cfg.Runtime.HighLoadThreshold = 0.9
	cfg.Runtime.CriticalLoadThreshold = 0.5
	err := ValidateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load_thresholds")
}
