//
// Tencent is pleased to support the open source community by making stepflow available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// stepflow is licensed under the Apache License Version 2.0.
//
//

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/stepflow/graph"
)

const sampleConfig = `
graph:
  id: inbox-guardian
  version: "1.0.0"
  entry_node: intake
  nodes:
    - id: intake
      kind: reasoning_loop
      output_keys: [request]
      max_visits: 1
    - id: fetch
      kind: direct_tool_call
      tools: [fetch_emails]
      input_keys: [request]
      output_keys: [emails]
    - id: report
      kind: reasoning_loop
      input_keys: [emails]
      output_keys: [done]
  edges:
    - source: intake
      target: fetch
      condition: on_success
    - source: fetch
      target: report
      condition: expression
      expression: "!empty(outputs.emails)"
  entry_points:
    - id: main
      entry_node: intake
      trigger: manual
      isolation: shared
  async_entry_points:
    - id: periodic
      entry_node: fetch
      trigger: timer
      trigger_config:
        interval: 30m
      isolation: shared
    - id: hook
      entry_node: fetch
      trigger: webhook
      trigger_config:
        path: /hooks/email
        methods: [POST]
      isolation: isolated
      max_concurrent: 4
      overflow: queue
  terminal_nodes: [report]
  limits:
    max_iterations: 50
    max_tool_calls_per_turn: 10
checkpoint:
  enabled: true
  on_node_complete: true
  async: true
  max_age: 168h
  store: sqlite
  path: guardian.db
server:
  addr: ":8080"
  allowed_origins: ["https://console.example.com"]
log:
  level: debug
`

func TestParseFullConfig(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "inbox-guardian", cfg.Graph.ID)
	require.Len(t, cfg.Graph.Nodes, 3)
	assert.Equal(t, graph.KindDirectToolCall, cfg.Graph.Nodes[1].Kind)
	assert.Equal(t, 1, cfg.Graph.Nodes[0].MaxVisits)
	require.Len(t, cfg.Graph.Edges, 2)
	assert.Equal(t, graph.ConditionExpression, cfg.Graph.Edges[1].Condition)

	require.Len(t, cfg.Graph.AsyncEntryPoints, 2)
	assert.Equal(t, 30*time.Minute, cfg.Graph.AsyncEntryPoints[0].TriggerConfig.Interval)
	assert.Equal(t, "/hooks/email", cfg.Graph.AsyncEntryPoints[1].TriggerConfig.Path)
	assert.Equal(t, graph.OverflowQueue, cfg.Graph.AsyncEntryPoints[1].Overflow)

	assert.Equal(t, 50, cfg.Graph.Limits.MaxIterations)

	ckpt := cfg.Checkpoint.ToGraphConfig()
	assert.True(t, ckpt.Enabled)
	assert.True(t, ckpt.Async)
	assert.Equal(t, 7*24*time.Hour, ckpt.MaxAge)
	assert.Equal(t, "sqlite", cfg.Checkpoint.Store)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)

	// The parsed spec compiles directly.
	_, err = graph.Compile(&cfg.Graph)
	require.NoError(t, err)
}

func TestParseRejectsInvalidGraph(t *testing.T) {
	doc := `
graph:
  id: broken
  entry_node: ghost
  nodes:
    - id: intake
      kind: reasoning_loop
`
	_, err := Parse([]byte(doc))
	assert.ErrorIs(t, err, graph.ErrGraphInvalid)
}

func TestParseRejectsMalformedYAML(t *testing.T) {
	_, err := Parse([]byte("graph: [unclosed"))
	assert.Error(t, err)
}

func TestParseRejectsBadDuration(t *testing.T) {
	doc := `
graph:
  id: g
  entry_node: a
  nodes:
    - id: a
      kind: reasoning_loop
  async_entry_points:
    - id: tick
      entry_node: a
      trigger: timer
      trigger_config:
        interval: soon
      isolation: shared
`
	_, err := Parse([]byte(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid interval")
}

func TestLoadReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "inbox-guardian", cfg.Graph.ID)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadGraphReadsBareSpec(t *testing.T) {
	doc := `
id: bare
entry_node: a
nodes:
  - id: a
    kind: reasoning_loop
`
	path := filepath.Join(t.TempDir(), "graph.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	spec, err := LoadGraph(path)
	require.NoError(t, err)
	assert.Equal(t, "bare", spec.ID)
	assert.True(t, spec.Validate().Valid())
}
