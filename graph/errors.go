//
// Tencent is pleased to support the open source community by making stepflow available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// stepflow is licensed under the Apache License Version 2.0.
//
//

package graph

import "errors"

var (
	// ErrGraphInvalid indicates the graph failed structural validation.
	ErrGraphInvalid = errors.New("graph spec is invalid")
	// ErrLimitExceeded indicates a node visit or iteration cap was hit.
	ErrLimitExceeded = errors.New("limit exceeded")
	// ErrLoopBudgetExceeded indicates a reasoning loop did not converge
	// within its tool-call budget.
	ErrLoopBudgetExceeded = errors.New("reasoning loop budget exceeded")
	// ErrToolInvocation indicates a tool was missing or failed.
	ErrToolInvocation = errors.New("tool invocation failed")
	// ErrInvalidRouteSelection indicates a model-decides route outside the
	// declared candidate set.
	ErrInvalidRouteSelection = errors.New("invalid route selection")
	// ErrAdmissionRejected indicates a trigger above the concurrency cap.
	ErrAdmissionRejected = errors.New("admission rejected")
	// ErrCheckpointFailure indicates the persistence layer was unavailable.
	ErrCheckpointFailure = errors.New("checkpoint failure")
	// ErrDeadEnd indicates no edge matched under strict routing.
	ErrDeadEnd = errors.New("no edge matched")
	// ErrEntryPointNotFound indicates an unknown entry point id.
	ErrEntryPointNotFound = errors.New("entry point not found")
	// ErrSessionNotFound indicates an unknown session id.
	ErrSessionNotFound = errors.New("session not found")
)
