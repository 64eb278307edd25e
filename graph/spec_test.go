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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSpec() *GraphSpec {
	return NewBuilder("triage").
		AddNode(&NodeSpec{ID: "intake", Kind: KindReasoningLoop, OutputKeys: []string{"request"}}).
		AddNode(&NodeSpec{ID: "fetch", Kind: KindDirectToolCall, Tools: []string{"fetch"}, OutputKeys: []string{"items"}}).
		AddNode(&NodeSpec{ID: "report", Kind: KindReasoningLoop, OutputKeys: []string{"done"}}).
		AddEdge(&EdgeSpec{Source: "intake", Target: "fetch", Condition: ConditionOnSuccess}).
		AddEdge(&EdgeSpec{Source: "fetch", Target: "report", Condition: ConditionAlways}).
		SetEntryNode("intake").
		SetTerminalNodes("report").
		Spec()
}

func TestValidateAcceptsWellFormedSpec(t *testing.T) {
	report := validSpec().Validate()
	assert.True(t, report.Valid())
	assert.Empty(t, report.Errors)
}

func TestValidateRejectsDuplicateNodeIDs(t *testing.T) {
	spec := validSpec()
	spec.Nodes = append(spec.Nodes, &NodeSpec{ID: "intake", Kind: KindReasoningLoop})
	report := spec.Validate()
	require.False(t, report.Valid())
	assert.Contains(t, report.Errors[0], "duplicate node id")
}

func TestValidateRejectsUnknownKind(t *testing.T) {
	spec := validSpec()
	spec.Nodes[0].Kind = "daydream"
	report := spec.Validate()
	require.False(t, report.Valid())
	assert.Contains(t, report.Errors[0], "unknown kind")
}

func TestValidateRejectsDirectToolCallWithoutTools(t *testing.T) {
	spec := validSpec()
	spec.Nodes[1].Tools = nil
	report := spec.Validate()
	require.False(t, report.Valid())
	assert.Contains(t, report.Errors[0], "declares no tools")
}

func TestValidateRejectsDanglingEdge(t *testing.T) {
	spec := validSpec()
	spec.Edges = append(spec.Edges, &EdgeSpec{Source: "fetch", Target: "ghost", Condition: ConditionAlways})
	report := spec.Validate()
	require.False(t, report.Valid())
	assert.Contains(t, report.Errors[0], `target "ghost" not found`)
}

func TestValidateRequiresEntryNode(t *testing.T) {
	spec := validSpec()
	spec.EntryNode = ""
	report := spec.Validate()
	require.False(t, report.Valid())
	assert.Contains(t, report.Errors[0], "exactly one primary entry node")
}

func TestValidateRejectsExpressionEdgeWithoutExpression(t *testing.T) {
	spec := validSpec()
	spec.Edges[0].Condition = ConditionExpression
	report := spec.Validate()
	require.False(t, report.Valid())
	assert.Contains(t, report.Errors[0], "without expression")
}

func TestValidateEntryPoints(t *testing.T) {
	spec := validSpec()
	spec.EntryPoints = []*EntryPointSpec{
		{ID: "main", EntryNode: "intake", Trigger: TriggerManual, Isolation: IsolationShared},
	}
	spec.AsyncEntryPoints = []*AsyncEntryPointSpec{
		{ID: "tick", EntryNode: "fetch", Trigger: TriggerTimer,
			TriggerConfig: TriggerConfig{Interval: time.Minute}, Isolation: IsolationShared},
	}
	assert.True(t, spec.Validate().Valid())

	spec.AsyncEntryPoints[0].TriggerConfig.Interval = 0
	report := spec.Validate()
	require.False(t, report.Valid())
	assert.Contains(t, report.Errors[0], "timer without an interval")
}

func TestValidateWarnsOnEventEntryWithoutTypes(t *testing.T) {
	spec := validSpec()
	spec.AsyncEntryPoints = []*AsyncEntryPointSpec{
		{ID: "evt", EntryNode: "fetch", Trigger: TriggerEvent, Isolation: IsolationIsolated},
	}
	report := spec.Validate()
	assert.True(t, report.Valid())
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "subscribes to no event types")
}

func TestValidateRejectsManualAsyncEntryPoint(t *testing.T) {
	spec := validSpec()
	spec.AsyncEntryPoints = []*AsyncEntryPointSpec{
		{ID: "bg", EntryNode: "fetch", Trigger: TriggerManual, Isolation: IsolationShared},
	}
	report := spec.Validate()
	require.False(t, report.Valid())
	assert.Contains(t, report.Errors[0], "cannot use a manual trigger")
}

func TestValidateRejectsDuplicateEntryPointIDs(t *testing.T) {
	spec := validSpec()
	spec.EntryPoints = []*EntryPointSpec{
		{ID: "main", EntryNode: "intake", Trigger: TriggerManual, Isolation: IsolationShared},
	}
	spec.AsyncEntryPoints = []*AsyncEntryPointSpec{
		{ID: "main", EntryNode: "fetch", Trigger: TriggerWebhook, Isolation: IsolationIsolated},
	}
	report := spec.Validate()
	require.False(t, report.Valid())
	assert.Contains(t, report.Errors[0], "duplicate entry point id")
}

func TestDefaultLoopLimits(t *testing.T) {
	limits := DefaultLoopLimits()
	assert.Equal(t, 100, limits.MaxIterations)
	assert.Equal(t, 20, limits.MaxToolCallsPerTurn)
}
