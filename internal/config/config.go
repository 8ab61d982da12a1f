// Package config holds the configuration of the ho binary.
package config

import (
	"time"

	"github.com/thalesfsp/ho/v2"
)

// Config is the root configuration.
type Config struct {
	Server    Server    `yaml:"server"`
	Logging   Logging   `yaml:"logging"`
	Store     Store     `yaml:"store"`
	Optimizer Optimizer `yaml:"optimizer"`
}

// Server configures the REST front-end.
type Server struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	BodyLimit    int64         `yaml:"body_limit"`
	MaxBatch     int           `yaml:"max_batch"`
}

// Logging configures the zap logger.
type Logging struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Store configures snapshot persistence. An empty Dir disables it.
type Store struct {
	Dir            string `yaml:"dir"`
	WriteFrequency int    `yaml:"write_frequency"`
}

// Optimizer holds the defaults applied to experiments created without
// explicit optimizer arguments.
type Optimizer struct {
	InitialSamples     int     `yaml:"initial_samples"`
	Acquisition        string  `yaml:"acquisition"`
	NumCandidates      int     `yaml:"num_candidates"`
	Restarts           int     `yaml:"restarts"`
	MaxIterations      int     `yaml:"max_iterations"`
	MaxRetries         int     `yaml:"max_retries"`
	DuplicateTolerance float64 `yaml:"duplicate_tolerance"`
	Xi                 float64 `yaml:"xi"`
	Seed               int64   `yaml:"seed"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	d := ho.DefaultConfig()

	return Config{
		Server: Server{
			Addr:         ":5000",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 2 * time.Minute,
			BodyLimit:    1 << 20,
			MaxBatch:     32,
		},
		Logging: Logging{
			Level: "info",
		},
		Store: Store{
			WriteFrequency: 1,
		},
		Optimizer: Optimizer{
			InitialSamples:     d.InitialSamples,
			Acquisition:        d.Acquisition,
			NumCandidates:      d.NumCandidates,
			Restarts:           d.Restarts,
			MaxIterations:      d.MaxIterations,
			MaxRetries:         d.MaxRetries,
			DuplicateTolerance: d.DuplicateTolerance,
			Xi:                 d.AcqParams.Xi,
		},
	}
}
