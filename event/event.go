//
// Tencent is pleased to support the open source community by making stepflow available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// stepflow is licensed under the Apache License Version 2.0.
//
//

// Package event defines the events flowing through the engine: execution
// lifecycle notifications and external signals that wake event-triggered
// entry points.
package event

import (
	"time"

	"github.com/google/uuid"
)

// Well-known event types emitted by the engine itself.
const (
	TypeInvocationStarted  = "invocation.started"
	TypeInvocationFinished = "invocation.finished"
	TypeInvocationRejected = "invocation.rejected"
	TypeNodeStarted        = "node.started"
	TypeNodeCompleted      = "node.completed"
	TypeNodeFailed         = "node.failed"
	TypeExecutionPaused    = "execution.paused"
)

// Event is one occurrence on the bus. External publishers set Type and
// Payload; the engine fills the rest.
type Event struct {
	// ID is the unique event id.
	ID string `json:"id"`
	// Type classifies the event, e.g. "email.received".
	Type string `json:"type"`
	// Source identifies the publisher.
	Source string `json:"source,omitempty"`
	// SessionID is the session the event belongs to, when any.
	SessionID string `json:"sessionID,omitempty"`
	// NodeID is the node the event concerns, when any.
	NodeID string `json:"nodeID,omitempty"`
	// Payload carries event-specific data.
	Payload map[string]any `json:"payload,omitempty"`
	// Timestamp is the creation time.
	Timestamp time.Time `json:"timestamp"`
}

// New creates an event of the given type.
func New(eventType string) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
	}
}

// Clone returns a shallow copy with its own payload map.
func (e *Event) Clone() *Event {
	cp := *e
	if e.Payload != nil {
		cp.Payload = make(map[string]any, len(e.Payload))
		for k, v := range e.Payload {
			cp.Payload[k] = v
		}
	}
	return &cp
}
