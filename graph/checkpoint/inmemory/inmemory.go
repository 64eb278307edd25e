//
// Tencent is pleased to support the open source community by making stepflow available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// stepflow is licensed under the Apache License Version 2.0.
//
//

// Package inmemory provides an in-memory checkpoint saver for testing and
// single-process deployments.
package inmemory

import (
	"context"
	"sync"
	"time"

	"trpc.group/trpc-go/stepflow/graph"
)

// Saver keeps checkpoint records in process memory, newest last per
// session. Records do not survive restarts.
type Saver struct {
	mu       sync.RWMutex
	sessions map[string][]*graph.CheckpointRecord
}

var _ graph.CheckpointSaver = (*Saver)(nil)

// NewSaver creates an empty in-memory saver.
func NewSaver() *Saver {
	return &Saver{sessions: make(map[string][]*graph.CheckpointRecord)}
}

// Put stores a copy of the record.
func (s *Saver) Put(_ context.Context, rec *graph.CheckpointRecord) error {
	cp := *rec
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[rec.SessionID] = append(s.sessions[rec.SessionID], &cp)
	return nil
}

// Latest returns the most recent record for the session, or nil.
func (s *Saver) Latest(_ context.Context, sessionID string) (*graph.CheckpointRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	recs := s.sessions[sessionID]
	if len(recs) == 0 {
		return nil, nil
	}
	cp := *recs[len(recs)-1]
	return &cp, nil
}

// DeleteSession removes all records for the session.
func (s *Saver) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

// DeleteOlderThan prunes records created before cutoff.
func (s *Saver) DeleteOlderThan(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, recs := range s.sessions {
		kept := recs[:0]
		for _, rec := range recs {
			if rec.Timestamp.Before(cutoff) {
				removed++
				continue
			}
			kept = append(kept, rec)
		}
		if len(kept) == 0 {
			delete(s.sessions, id)
			continue
		}
		s.sessions[id] = kept
	}
	return removed, nil
}
