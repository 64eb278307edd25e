//
// Tencent is pleased to support the open source community by making stepflow available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// stepflow is licensed under the Apache License Version 2.0.
//
//

package graph

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// UnmarshalYAML decodes a trigger config, accepting Go duration notation
// ("30s", "5m") for the interval.
func (t *TriggerConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		EventTypes []string `yaml:"event_types"`
		Interval   string   `yaml:"interval"`
		Source     string   `yaml:"source"`
		Path       string   `yaml:"path"`
		Methods    []string `yaml:"methods"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	t.EventTypes = raw.EventTypes
	t.Source = raw.Source
	t.Path = raw.Path
	t.Methods = raw.Methods
	if raw.Interval != "" {
		interval, err := time.ParseDuration(raw.Interval)
		if err != nil {
			return fmt.Errorf("invalid interval %q: %w", raw.Interval, err)
		}
		t.Interval = interval
	}
	return nil
}

// MarshalYAML encodes the trigger config with a readable interval.
func (t TriggerConfig) MarshalYAML() (any, error) {
	out := map[string]any{}
	if len(t.EventTypes) > 0 {
		out["event_types"] = t.EventTypes
	}
	if t.Interval > 0 {
		out["interval"] = t.Interval.String()
	}
	if t.Source != "" {
		out["source"] = t.Source
	}
	if t.Path != "" {
		out["path"] = t.Path
	}
	if len(t.Methods) > 0 {
		out["methods"] = t.Methods
	}
	return out, nil
}
