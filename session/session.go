//
// Tencent is pleased to support the open source community by making stepflow available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// stepflow is licensed under the Apache License Version 2.0.
//
//

// Package session provides the core session functionality.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/spaolacci/murmur3"
)

// StateMap is a map of state key-value pairs.
type StateMap map[string]any

var (
	// ErrGraphIDRequired is the error for graph id required.
	ErrGraphIDRequired = errors.New("graphID is required")
	// ErrSessionIDRequired is the error for session id required.
	ErrSessionIDRequired = errors.New("sessionID is required")
	// ErrSessionNotFound is returned when a session does not exist.
	ErrSessionNotFound = errors.New("session not found")
)

// Key identifies a session within a graph.
type Key struct {
	// GraphID is the owning graph.
	GraphID string
	// SessionID is the session id.
	SessionID string
}

// CheckSessionKey validates the full key.
func (k Key) CheckSessionKey() error {
	if k.GraphID == "" {
		return ErrGraphIDRequired
	}
	if k.SessionID == "" {
		return ErrSessionIDRequired
	}
	return nil
}

// CheckGraphKey validates the graph scope of the key.
func (k Key) CheckGraphKey() error {
	if k.GraphID == "" {
		return ErrGraphIDRequired
	}
	return nil
}

// Turn is one completed invocation recorded in a session. The turn log
// is append-only; earlier turns are never rewritten.
type Turn struct {
	// ID is the invocation id.
	ID string `json:"id"`
	// EntryPointID is the entry point that started the invocation.
	EntryPointID string `json:"entryPointID"`
	// Input is the trigger payload the invocation started with.
	Input map[string]any `json:"input,omitempty"`
	// Outputs is the final output-key map of the invocation.
	Outputs map[string]any `json:"outputs,omitempty"`
	// Success reports whether the invocation completed without error.
	Success bool `json:"success"`
	// Timestamp is the completion time.
	Timestamp time.Time `json:"timestamp"`
}

// Session is one conversation with a graph: accumulated state plus the
// append-only turn log.
type Session struct {
	ID        string       `json:"id"`        // ID is the session id.
	GraphID   string       `json:"graphID"`   // GraphID is the owning graph.
	State     StateMap     `json:"state"`     // State is the accumulated session state.
	Turns     []Turn       `json:"turns"`     // Turns is the append-only turn log.
	TurnMu    sync.RWMutex `json:"-"`         // TurnMu guards Turns.
	UpdatedAt time.Time    `json:"updatedAt"` // UpdatedAt is the last update time.
	CreatedAt time.Time    `json:"createdAt"` // CreatedAt is the creation time.

	// Hash is the pre-computed slot hash for dispatch placement. It is
	// calculated once during session creation using murmur3 of
	// "graphID:sessionID" and remains immutable afterwards.
	Hash int `json:"-"`
}

// SlotHash computes the dispatch slot hash for a session key.
func SlotHash(graphID, sessionID string) int {
	return int(murmur3.Sum32([]byte(fmt.Sprintf("%s:%s", graphID, sessionID))))
}

// Clone returns a copy of the session.
func (sess *Session) Clone() *Session {
	sess.TurnMu.RLock()
	copied := &Session{
		ID:        sess.ID,
		GraphID:   sess.GraphID,
		State:     make(StateMap, len(sess.State)),
		Turns:     make([]Turn, len(sess.Turns)),
		UpdatedAt: sess.UpdatedAt,
		CreatedAt: sess.CreatedAt,
		Hash:      sess.Hash,
	}
	copy(copied.Turns, sess.Turns)
	sess.TurnMu.RUnlock()
	for k, v := range sess.State {
		copied.State[k] = v
	}
	return copied
}

// Service is the storage contract for sessions.
type Service interface {
	// CreateSession creates a new session. An empty SessionID in the key
	// asks the service to generate one.
	CreateSession(ctx context.Context, key Key, state StateMap) (*Session, error)

	// GetSession gets a session, or nil when it does not exist.
	GetSession(ctx context.Context, key Key) (*Session, error)

	// ListSessions lists all sessions of a graph.
	ListSessions(ctx context.Context, graphID string) ([]*Session, error)

	// DeleteSession deletes a session.
	DeleteSession(ctx context.Context, key Key) error

	// UpdateState merges the given state into the session state.
	UpdateState(ctx context.Context, key Key, state StateMap) error

	// AppendTurn appends a turn to the session's turn log.
	AppendTurn(ctx context.Context, key Key, turn *Turn) error

	// Close releases service resources.
	Close() error
}
