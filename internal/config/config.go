// Package config loads and validates the core's configuration: generation
// parameters, runtime (buffer/batch/backpressure), privacy (ε-budget,
// k-anonymity), evaluation thresholds, plus the ambient logging/metrics/
// tracing sections every component reads at construction, via YAML load,
// default-filling, env-var overrides, and a fail-fast validator.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"synthledger/internal/sinks"
	"synthledger/pkg/dlq"
	"synthledger/pkg/errors"

	"gopkg.in/yaml.v2"
)

// AppConfig carries process identity used in logs, spans, and the fingerprint
// manifest.
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
}

// GenerationConfig parameterizes record generation.
type GenerationConfig struct {
	MasterSeed       uint64            `yaml:"master_seed"`
	Volume           int               `yaml:"volume"`
	StartDate        string            `yaml:"start_date"` // RFC3339 date
	EndDate          string            `yaml:"end_date"`
	Currencies       []string          `yaml:"currencies"`
	FraudPatternMix  map[string]float64 `yaml:"fraud_pattern_mix"` // pattern name -> probability weight
	DecimalPlaces    int               `yaml:"decimal_places"`
	RoundNumberProb  float64           `yaml:"round_number_probability"`
	NiceNumberProb   float64           `yaml:"nice_number_probability"`
	AllocatorFormat  string            `yaml:"allocator_format"` // sequential/year_prefixed/year_month_prefixed/random/company_year_prefixed
	AllocatorBase    int64             `yaml:"allocator_base"`
}

// RuntimeConfig parameterizes the streaming runtime.
type RuntimeConfig struct {
	BufferSize       int           `yaml:"buffer_size"`
	BatchSize        int           `yaml:"batch_size"`
	ProgressInterval int           `yaml:"progress_interval"`
	BackpressurePolicy string      `yaml:"backpressure_policy"` // block/drop_oldest/drop_newest/buffer
	MaxOverflow      int           `yaml:"max_overflow"`
	Timeout          time.Duration `yaml:"timeout"`
	AutoThrottle     bool          `yaml:"auto_throttle"`

	// CPU-load throttling: when AutoThrottle is set, the streaming runtime
	// consults a monitoring.CPUMonitor sampled on CPULoadCheckInterval and
	// sleeps ThrottleDelay between records from the moment load reaches
	// CriticalLoadThreshold until it drops below HighLoadThreshold.
	CPULoadCheckInterval  time.Duration `yaml:"cpu_load_check_interval"`
	HighLoadThreshold     float64       `yaml:"high_load_threshold"`
	CriticalLoadThreshold float64       `yaml:"critical_load_threshold"`
	ThrottleDelay         time.Duration `yaml:"throttle_delay"`
}

// PrivacyConfig parameterizes fingerprint extraction.
type PrivacyConfig struct {
	EpsilonBudget      float64            `yaml:"epsilon_budget"`
	KAnonymity         int                `yaml:"k_anonymity"`
	WinsorizeLowPct    float64            `yaml:"winsorize_low_pct"`
	WinsorizeHighPct   float64            `yaml:"winsorize_high_pct"`
	WinsorizeTargets   []string           `yaml:"winsorize_targets"`
}

// EvaluationConfig parameterizes evaluation.
type EvaluationConfig struct {
	SignificanceThreshold float64           `yaml:"significance_threshold"`
	MetricDirections      map[string]bool   `yaml:"metric_directions"` // metric -> higher_is_better
}

// MetricsConfig configures the Prometheus exporter.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// ServerConfig configures the HTTP control plane.
type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// HotReloadConfig mirrors pkg/hotreload.Config's shape. It is duplicated
// here rather than imported because pkg/hotreload imports this package to
// get at *Config; internal/app converts between the two at construction.
type HotReloadConfig struct {
	Enabled          bool          `yaml:"enabled"`
	WatchInterval    time.Duration `yaml:"watch_interval"`
	DebounceInterval time.Duration `yaml:"debounce_interval"`
	ValidateOnReload bool          `yaml:"validate_on_reload"`
	BackupOnReload   bool          `yaml:"backup_on_reload"`
	BackupDirectory  string        `yaml:"backup_directory"`
	MaxBackups       int           `yaml:"max_backups"`
	FailsafeMode     bool          `yaml:"failsafe_mode"`
}

// SinksConfig configures every output sink and the shared dead letter queue.
type SinksConfig struct {
	Kafka     sinks.KafkaSinkConfig   `yaml:"kafka"`
	LocalFile sinks.LocalFileConfig   `yaml:"local_file"`
	DeadLetter dlq.Config             `yaml:"dead_letter_queue"`
}

// Config is the root configuration document.
type Config struct {
	App        AppConfig        `yaml:"app"`
	Server     ServerConfig     `yaml:"server"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Tracing    struct {
		Enabled     bool    `yaml:"enabled"`
		Exporter    string  `yaml:"exporter"`
		Endpoint    string  `yaml:"endpoint"`
		SampleRate  float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`
	Generation GenerationConfig `yaml:"generation"`
	Runtime    RuntimeConfig    `yaml:"runtime"`
	Privacy    PrivacyConfig    `yaml:"privacy"`
	Evaluation EvaluationConfig `yaml:"evaluation"`
	Sinks      SinksConfig      `yaml:"sinks"`
	HotReload  HotReloadConfig  `yaml:"hot_reload"`

	// loadedFromFile records the raw bytes parsed, so a hot-reload watcher
	// (pkg/hotreload) can detect whether the file changed at all before
	// re-validating.
	loadedFromFile []byte
}

// LoadConfig reads configFile (if non-empty), fills defaults, applies
// SYNTHLEDGER_* environment overrides, and validates in that order.
func LoadConfig(configFile string) (*Config, error) {
	config := &Config{}

	if configFile != "" {
		if err := loadConfigFile(configFile, config); err != nil {
			return nil, errors.ConfigurationError("load_file", err.Error())
		}
	}

	applyDefaults(config)
	applyEnvironmentOverrides(config)

	if err := ValidateConfig(config); err != nil {
		return nil, err
	}
	return config, nil
}

func loadConfigFile(filename string, config *Config) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	config.loadedFromFile = data
	return nil
}

// RawBytes exposes the last-loaded file content for the hot-reload watcher's
// change-detection hash.
func (c *Config) RawBytes() []byte { return c.loadedFromFile }

func applyDefaults(config *Config) {
	if config.App.Name == "" {
		config.App.Name = "synthledger"
	}
	if config.App.Version == "" {
		config.App.Version = "v0.1.0"
	}
	if config.App.Environment == "" {
		config.App.Environment = "development"
	}
	if config.App.LogLevel == "" {
		config.App.LogLevel = "info"
	}
	if config.App.LogFormat == "" {
		config.App.LogFormat = "json"
	}

	if config.Server.Port == 0 {
		config.Server.Port = 8401
	}
	if config.Server.Host == "" {
		config.Server.Host = "0.0.0.0"
	}

	if config.Metrics.Port == 0 {
		config.Metrics.Port = 9401
	}
	if config.Metrics.Path == "" {
		config.Metrics.Path = "/metrics"
	}
	config.Metrics.Enabled = true

	if config.Tracing.Exporter == "" {
		config.Tracing.Exporter = "otlp"
	}
	if config.Tracing.SampleRate == 0 {
		config.Tracing.SampleRate = 1.0
	}

	if config.Generation.Volume == 0 {
		config.Generation.Volume = 1000
	}
	if config.Generation.DecimalPlaces == 0 {
		config.Generation.DecimalPlaces = 2
	}
	if config.Generation.RoundNumberProb == 0 {
		config.Generation.RoundNumberProb = 0.05
	}
	if config.Generation.NiceNumberProb == 0 {
		config.Generation.NiceNumberProb = 0.10
	}
	if len(config.Generation.Currencies) == 0 {
		config.Generation.Currencies = []string{"USD", "EUR", "GBP"}
	}
	if config.Generation.AllocatorFormat == "" {
		config.Generation.AllocatorFormat = "year_prefixed"
	}
	if config.Generation.AllocatorBase == 0 {
		config.Generation.AllocatorBase = 1
	}

	if config.Runtime.BufferSize == 0 {
		config.Runtime.BufferSize = 1024
	}
	if config.Runtime.BatchSize == 0 {
		config.Runtime.BatchSize = 100
	}
	if config.Runtime.ProgressInterval == 0 {
		config.Runtime.ProgressInterval = 500
	}
	if config.Runtime.BackpressurePolicy == "" {
		config.Runtime.BackpressurePolicy = "block"
	}
	if config.Runtime.Timeout == 0 {
		config.Runtime.Timeout = 30 * time.Second
	}
	if config.Runtime.CPULoadCheckInterval == 0 {
		config.Runtime.CPULoadCheckInterval = 2 * time.Second
	}
	if config.Runtime.HighLoadThreshold == 0 {
		config.Runtime.HighLoadThreshold = 0.75
	}
	if config.Runtime.CriticalLoadThreshold == 0 {
		config.Runtime.CriticalLoadThreshold = 0.90
	}
	if config.Runtime.ThrottleDelay == 0 {
		config.Runtime.ThrottleDelay = 5 * time.Millisecond
	}

	if config.Privacy.EpsilonBudget == 0 {
		config.Privacy.EpsilonBudget = 1.0
	}
	if config.Privacy.KAnonymity == 0 {
		config.Privacy.KAnonymity = 5
	}
	if config.Privacy.WinsorizeHighPct == 0 {
		config.Privacy.WinsorizeHighPct = 0.99
	}

	if config.Evaluation.SignificanceThreshold == 0 {
		config.Evaluation.SignificanceThreshold = 0.05
	}

	if config.Sinks.Kafka.Topic == "" {
		config.Sinks.Kafka.Topic = "synthledger.records"
	}
	if config.Sinks.Kafka.BatchSize == 0 {
		config.Sinks.Kafka.BatchSize = 500
	}
	if config.Sinks.Kafka.BatchTimeout == "" {
		config.Sinks.Kafka.BatchTimeout = "1s"
	}
	if config.Sinks.Kafka.MaxMessageBytes == 0 {
		config.Sinks.Kafka.MaxMessageBytes = 1048576
	}
	if config.Sinks.Kafka.RetryMax == 0 {
		config.Sinks.Kafka.RetryMax = 3
	}
	if config.Sinks.Kafka.Timeout == "" {
		config.Sinks.Kafka.Timeout = "10s"
	}
	if config.Sinks.Kafka.RequiredAcks == 0 {
		config.Sinks.Kafka.RequiredAcks = 1
	}
	if config.Sinks.Kafka.QueueSize == 0 {
		config.Sinks.Kafka.QueueSize = 5000
	}
	if config.Sinks.Kafka.Compression == "" {
		config.Sinks.Kafka.Compression = "snappy"
	}

	if config.Sinks.LocalFile.Directory == "" {
		config.Sinks.LocalFile.Directory = "./output"
	}
	if config.Sinks.LocalFile.QueueSize == 0 {
		config.Sinks.LocalFile.QueueSize = 3000
	}
	if config.Sinks.LocalFile.WorkerCount == 0 {
		config.Sinks.LocalFile.WorkerCount = 3
	}
	if config.Sinks.LocalFile.MaxOpenFiles == 0 {
		config.Sinks.LocalFile.MaxOpenFiles = 100
	}
	if config.Sinks.LocalFile.MaxTotalDiskGB == 0 {
		config.Sinks.LocalFile.MaxTotalDiskGB = 5.0
	}
	if config.Sinks.LocalFile.DiskCheckInterval == "" {
		config.Sinks.LocalFile.DiskCheckInterval = "60s"
	}
	if config.Sinks.LocalFile.CleanupThresholdPercent == 0 {
		config.Sinks.LocalFile.CleanupThresholdPercent = 90.0
	}
	if config.Sinks.LocalFile.Rotation.MaxSizeMB == 0 {
		config.Sinks.LocalFile.Rotation.MaxSizeMB = 512
	}
	if config.Sinks.LocalFile.Rotation.MaxFiles == 0 {
		config.Sinks.LocalFile.Rotation.MaxFiles = 20
	}

	if config.Sinks.DeadLetter.Directory == "" {
		config.Sinks.DeadLetter.Directory = "./dlq"
	}
	if config.Sinks.DeadLetter.QueueSize == 0 {
		config.Sinks.DeadLetter.QueueSize = 10000
	}
	if config.Sinks.DeadLetter.MaxFiles == 0 {
		config.Sinks.DeadLetter.MaxFiles = 10
	}
	if config.Sinks.DeadLetter.MaxFileSize == 0 {
		config.Sinks.DeadLetter.MaxFileSize = 100
	}
	if config.Sinks.DeadLetter.RetentionDays == 0 {
		config.Sinks.DeadLetter.RetentionDays = 7
	}
	if config.Sinks.DeadLetter.FlushInterval == 0 {
		config.Sinks.DeadLetter.FlushInterval = 30 * time.Second
	}

	if config.HotReload.WatchInterval == 0 {
		config.HotReload.WatchInterval = 5 * time.Second
	}
	if config.HotReload.DebounceInterval == 0 {
		config.HotReload.DebounceInterval = 500 * time.Millisecond
	}
	if config.HotReload.BackupDirectory == "" {
		config.HotReload.BackupDirectory = "./config-backups"
	}
	if config.HotReload.MaxBackups == 0 {
		config.HotReload.MaxBackups = 5
	}
}

func getEnvString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// applyEnvironmentOverrides lets a small number of hot knobs (log level,
// seed, volume, ε-budget, k-anonymity, server enablement) be set without
// editing the YAML file.
func applyEnvironmentOverrides(config *Config) {
	config.App.LogLevel = getEnvString("SYNTHLEDGER_LOG_LEVEL", config.App.LogLevel)
	config.Generation.Volume = getEnvInt("SYNTHLEDGER_VOLUME", config.Generation.Volume)
	config.Generation.MasterSeed = uint64(getEnvInt("SYNTHLEDGER_SEED", int(config.Generation.MasterSeed)))
	config.Privacy.EpsilonBudget = getEnvFloat("SYNTHLEDGER_EPSILON_BUDGET", config.Privacy.EpsilonBudget)
	config.Privacy.KAnonymity = getEnvInt("SYNTHLEDGER_K_ANONYMITY", config.Privacy.KAnonymity)
	config.Server.Enabled = getEnvBool("SYNTHLEDGER_SERVER_ENABLED", config.Server.Enabled)
}

// ValidateConfig fails fast on the Configuration-kind invariants: invalid
// weights, negative thresholds, ε <= 0, k < 1.
func ValidateConfig(config *Config) error {
	v := &validator{config: config}
	return v.run()
}

type validator struct {
	config *Config
	errs   []string
}

func (v *validator) fail(operation, message string) {
	v.errs = append(v.errs, fmt.Sprintf("%s: %s", operation, message))
}

func (v *validator) run() error {
	v.validateApp()
	v.validateGeneration()
	v.validateRuntime()
	v.validatePrivacy()
	v.validateEvaluation()

	if len(v.errs) > 0 {
		return errors.ConfigurationError("validate", strings.Join(v.errs, "; "))
	}
	return nil
}

func (v *validator) validateApp() {
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true}
	if !validLevels[v.config.App.LogLevel] {
		v.fail("validate_log_level", fmt.Sprintf("invalid log level: %s", v.config.App.LogLevel))
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[v.config.App.LogFormat] {
		v.fail("validate_log_format", fmt.Sprintf("invalid log format: %s", v.config.App.LogFormat))
	}
}

func (v *validator) validateGeneration() {
	g := v.config.Generation
	if g.Volume < 0 {
		v.fail("validate_volume", "generation volume must be >= 0")
	}
	if g.DecimalPlaces < 0 || g.DecimalPlaces > 6 {
		v.fail("validate_decimal_places", "decimal_places must be in [0,6]")
	}
	if g.RoundNumberProb < 0 || g.RoundNumberProb > 1 {
		v.fail("validate_round_number_probability", "round_number_probability must be in [0,1]")
	}
	if g.NiceNumberProb < 0 || g.NiceNumberProb > 1 {
		v.fail("validate_nice_number_probability", "nice_number_probability must be in [0,1]")
	}
	total := 0.0
	for _, w := range g.FraudPatternMix {
		if w < 0 {
			v.fail("validate_fraud_pattern_mix", "fraud pattern weights must be non-negative")
		}
		total += w
	}
	if len(g.FraudPatternMix) > 0 && (total < 0.99 || total > 1.01) {
		v.fail("validate_fraud_pattern_mix", fmt.Sprintf("fraud pattern weights must sum to 1 +/- 0.01, got %.4f", total))
	}
}

func (v *validator) validateRuntime() {
	r := v.config.Runtime
	if r.BufferSize <= 0 {
		v.fail("validate_buffer_size", "buffer_size must be > 0")
	}
	if r.BatchSize <= 0 {
		v.fail("validate_batch_size", "batch_size must be > 0")
	}
	if r.ProgressInterval <= 0 {
		v.fail("validate_progress_interval", "progress_interval must be > 0")
	}
	validPolicies := map[string]bool{"block": true, "drop_oldest": true, "drop_newest": true, "buffer": true}
	if !validPolicies[r.BackpressurePolicy] {
		v.fail("validate_backpressure_policy", fmt.Sprintf("invalid backpressure policy: %s", r.BackpressurePolicy))
	}
	if r.Timeout < 0 {
		v.fail("validate_timeout", "timeout must be >= 0")
	}
	if r.HighLoadThreshold < 0 || r.HighLoadThreshold > 1 {
		v.fail("validate_high_load_threshold", "high_load_threshold must be in [0,1]")
	}
	if r.CriticalLoadThreshold < 0 || r.CriticalLoadThreshold > 1 {
		v.fail("validate_critical_load_threshold", "critical_load_threshold must be in [0,1]")
	}
	if r.CriticalLoadThreshold < r.HighLoadThreshold {
		v.fail("validate_load_thresholds", "critical_load_threshold must be >= high_load_threshold")
	}
}

func (v *validator) validatePrivacy() {
	p := v.config.Privacy
	if p.EpsilonBudget <= 0 {
		v.fail("validate_epsilon_budget", "epsilon_budget must be > 0")
	}
	if p.KAnonymity < 1 {
		v.fail("validate_k_anonymity", "k_anonymity must be >= 1")
	}
	if p.WinsorizeLowPct < 0 || p.WinsorizeLowPct > 1 {
		v.fail("validate_winsorize_low_pct", "winsorize_low_pct must be in [0,1]")
	}
	if p.WinsorizeHighPct < 0 || p.WinsorizeHighPct > 1 {
		v.fail("validate_winsorize_high_pct", "winsorize_high_pct must be in [0,1]")
	}
	if p.WinsorizeLowPct > 0 && p.WinsorizeHighPct > 0 && p.WinsorizeLowPct >= p.WinsorizeHighPct {
		v.fail("validate_winsorize_bounds", "winsorize_low_pct must be < winsorize_high_pct")
	}
}

func (v *validator) validateEvaluation() {
	if v.config.Evaluation.SignificanceThreshold <= 0 || v.config.Evaluation.SignificanceThreshold >= 1 {
		v.fail("validate_significance_threshold", "significance_threshold must be in (0,1)")
	}
}
