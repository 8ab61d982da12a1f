package config

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/thalesfsp/ho/v2"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "ho.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// The YAML file is optional; a missing file is not an error.
func Load(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	if err := loadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config env: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// OptimizationConfig converts the optimizer defaults to a library config.
// A zero seed means time-seeded.
func (o Optimizer) OptimizationConfig() ho.OptimizationConfig {
	cfg := ho.DefaultConfig()
	cfg.InitialSamples = o.InitialSamples
	cfg.Acquisition = o.Acquisition
	cfg.NumCandidates = o.NumCandidates
	cfg.Restarts = o.Restarts
	cfg.MaxIterations = o.MaxIterations
	cfg.MaxRetries = o.MaxRetries
	cfg.DuplicateTolerance = o.DuplicateTolerance
	cfg.AcqParams.Xi = o.Xi

	if o.Seed != 0 {
		cfg.AcqParams.RandomState = rand.New(rand.NewSource(o.Seed))
	}

	return cfg
}

func loadYAML(cfg *Config, path string) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // path comes from the command line
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}

		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg. Only non-empty values
// override the current config.
func loadEnv(cfg *Config) error {
	setString(&cfg.Server.Addr, "HO_ADDR")
	setString(&cfg.Logging.Level, "HO_LOG_LEVEL")
	setString(&cfg.Store.Dir, "HO_STORE_DIR")
	setString(&cfg.Optimizer.Acquisition, "HO_ACQUISITION")

	return errors.Join(
		setDuration(&cfg.Server.ReadTimeout, "HO_READ_TIMEOUT"),
		setDuration(&cfg.Server.WriteTimeout, "HO_WRITE_TIMEOUT"),
		setBool(&cfg.Logging.Development, "HO_LOG_DEVELOPMENT"),
		setInt(&cfg.Server.MaxBatch, "HO_MAX_BATCH"),
		setInt(&cfg.Store.WriteFrequency, "HO_STORE_WRITE_FREQUENCY"),
		setInt(&cfg.Optimizer.InitialSamples, "HO_INITIAL_SAMPLES"),
		setInt64(&cfg.Optimizer.Seed, "HO_SEED"),
	)
}

func validate(cfg *Config) error {
	if cfg.Server.Addr == "" {
		return errors.New("server.addr is required")
	}

	if cfg.Server.BodyLimit <= 0 {
		return errors.New("server.body_limit must be positive")
	}

	if cfg.Server.MaxBatch < 1 {
		return errors.New("server.max_batch must be at least 1")
	}

	if cfg.Store.WriteFrequency < 1 {
		return errors.New("store.write_frequency must be at least 1")
	}

	if _, err := ho.NewAcquisition(cfg.Optimizer.Acquisition, ho.AcquisitionParams{Xi: cfg.Optimizer.Xi}); err != nil {
		return fmt.Errorf("optimizer: %w", err)
	}

	if cfg.Optimizer.InitialSamples < 0 {
		return errors.New("optimizer.initial_samples must not be negative")
	}

	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}

	*dst = n

	return nil
}

func setInt64(dst *int64, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}

	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}

	*dst = n

	return nil
}

func setBool(dst *bool, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}

	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}

	*dst = b

	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}

	*dst = d

	return nil
}
