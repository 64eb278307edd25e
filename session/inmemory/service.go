//
// Tencent is pleased to support the open source community by making stepflow available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// stepflow is licensed under the Apache License Version 2.0.
//
//

// Package inmemory provides an in-memory session service.
package inmemory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"trpc.group/trpc-go/stepflow/session"
)

// Service is an in-memory implementation of session.Service. Sessions do
// not survive restarts.
type Service struct {
	mu     sync.RWMutex
	graphs map[string]map[string]*session.Session
}

var _ session.Service = (*Service)(nil)

// NewService creates an empty in-memory session service.
func NewService() *Service {
	return &Service{graphs: make(map[string]map[string]*session.Session)}
}

// CreateSession creates a new session. An empty SessionID generates one.
func (s *Service) CreateSession(_ context.Context, key session.Key, state session.StateMap) (*session.Session, error) {
	if err := key.CheckGraphKey(); err != nil {
		return nil, err
	}
	if key.SessionID == "" {
		key.SessionID = uuid.NewString()
	}
	now := time.Now().UTC()
	sess := &session.Session{
		ID:        key.SessionID,
		GraphID:   key.GraphID,
		State:     make(session.StateMap, len(state)),
		UpdatedAt: now,
		CreatedAt: now,
		Hash:      session.SlotHash(key.GraphID, key.SessionID),
	}
	for k, v := range state {
		sess.State[k] = v
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sessions := s.graphs[key.GraphID]
	if sessions == nil {
		sessions = make(map[string]*session.Session)
		s.graphs[key.GraphID] = sessions
	}
	sessions[key.SessionID] = sess
	return sess.Clone(), nil
}

// GetSession gets a session, or nil when it does not exist.
func (s *Service) GetSession(_ context.Context, key session.Key) (*session.Session, error) {
	if err := key.CheckSessionKey(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess := s.graphs[key.GraphID][key.SessionID]
	if sess == nil {
		return nil, nil
	}
	return sess.Clone(), nil
}

// ListSessions lists all sessions of a graph.
func (s *Service) ListSessions(_ context.Context, graphID string) ([]*session.Session, error) {
	if graphID == "" {
		return nil, session.ErrGraphIDRequired
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	sessions := make([]*session.Session, 0, len(s.graphs[graphID]))
	for _, sess := range s.graphs[graphID] {
		sessions = append(sessions, sess.Clone())
	}
	return sessions, nil
}

// DeleteSession deletes a session. Deleting an absent session is a no-op.
func (s *Service) DeleteSession(_ context.Context, key session.Key) error {
	if err := key.CheckSessionKey(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.graphs[key.GraphID], key.SessionID)
	return nil
}

// UpdateState merges the given state into the session state.
func (s *Service) UpdateState(_ context.Context, key session.Key, state session.StateMap) error {
	if err := key.CheckSessionKey(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.graphs[key.GraphID][key.SessionID]
	if sess == nil {
		return session.ErrSessionNotFound
	}
	for k, v := range state {
		sess.State[k] = v
	}
	sess.UpdatedAt = time.Now().UTC()
	return nil
}

// AppendTurn appends a turn to the session's turn log.
func (s *Service) AppendTurn(_ context.Context, key session.Key, turn *session.Turn) error {
	if err := key.CheckSessionKey(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.graphs[key.GraphID][key.SessionID]
	if sess == nil {
		return session.ErrSessionNotFound
	}
	sess.Turns = append(sess.Turns, *turn)
	sess.UpdatedAt = time.Now().UTC()
	return nil
}

// Close releases service resources.
func (s *Service) Close() error {
	return nil
}
