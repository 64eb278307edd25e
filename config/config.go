//
// Tencent is pleased to support the open source community by making stepflow available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// stepflow is licensed under the Apache License Version 2.0.
//
//

// Package config loads graph and runtime configuration from YAML files.
// Durations are written in Go notation ("30s", "5m", "168h").
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"trpc.group/trpc-go/stepflow/graph"
)

// Config is the top-level configuration document.
type Config struct {
	// Graph is the step-graph specification.
	Graph graph.GraphSpec `yaml:"graph"`
	// Checkpoint controls checkpointing.
	Checkpoint CheckpointConfig `yaml:"checkpoint,omitempty"`
	// Server configures the inbound webhook server.
	Server ServerConfig `yaml:"server,omitempty"`
	// Log configures logging.
	Log LogConfig `yaml:"log,omitempty"`
}

// CheckpointConfig mirrors graph.CheckpointConfig with readable durations.
type CheckpointConfig struct {
	Enabled        bool     `yaml:"enabled"`
	OnNodeStart    bool     `yaml:"on_node_start,omitempty"`
	OnNodeComplete bool     `yaml:"on_node_complete,omitempty"`
	MaxAge         Duration `yaml:"max_age,omitempty"`
	Async          bool     `yaml:"async,omitempty"`
	QueueSize      int      `yaml:"queue_size,omitempty"`
	// Store selects the saver backend: "inmemory" or "sqlite".
	Store string `yaml:"store,omitempty"`
	// Path is the database path for the sqlite backend.
	Path string `yaml:"path,omitempty"`
}

// ToGraphConfig converts to the engine's checkpoint configuration.
func (c CheckpointConfig) ToGraphConfig() graph.CheckpointConfig {
	return graph.CheckpointConfig{
		Enabled:        c.Enabled,
		OnNodeStart:    c.OnNodeStart,
		OnNodeComplete: c.OnNodeComplete,
		MaxAge:         time.Duration(c.MaxAge),
		Async:          c.Async,
		QueueSize:      c.QueueSize,
	}
}

// ServerConfig configures the webhook HTTP server.
type ServerConfig struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string `yaml:"addr,omitempty"`
	// AllowedOrigins configures CORS. Empty allows none.
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error, fatal.
	Level string `yaml:"level,omitempty"`
}

// Duration is a time.Duration that unmarshals from Go duration strings.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Load reads and parses a configuration file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(raw)
}

// Parse parses a configuration document. The graph spec is validated;
// validation errors fail the parse, warnings are returned inside the
// spec's report and logged by the caller.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if report := cfg.Graph.Validate(); !report.Valid() {
		return nil, fmt.Errorf("%w: %v", graph.ErrGraphInvalid, report.Errors)
	}
	return &cfg, nil
}

// LoadGraph reads a file holding only a graph spec document.
func LoadGraph(path string) (*graph.GraphSpec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read graph spec: %w", err)
	}
	var spec graph.GraphSpec
	if err := yaml.Unmarshal(raw, &spec); err != nil {
		return nil, fmt.Errorf("parse graph spec: %w", err)
	}
	return &spec, nil
}
