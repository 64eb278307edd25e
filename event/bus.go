//
// Tencent is pleased to support the open source community by making stepflow available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// stepflow is licensed under the Apache License Version 2.0.
//
//

package event

import (
	"sync"

	"github.com/google/uuid"

	"trpc.group/trpc-go/stepflow/log"
)

// Filter decides whether a subscriber receives an event.
type Filter func(*Event) bool

// TypeFilter matches events whose type is in the given set. An empty set
// matches everything.
func TypeFilter(types ...string) Filter {
	if len(types) == 0 {
		return func(*Event) bool { return true }
	}
	set := make(map[string]struct{}, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}
	return func(e *Event) bool {
		_, ok := set[e.Type]
		return ok
	}
}

type subscriber struct {
	ch     chan *Event
	filter Filter
}

// Bus is an in-process publish/subscribe bus. Delivery is per-subscriber
// buffered and non-blocking: a subscriber that falls behind loses events
// rather than stalling the publisher.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber
	bufferSize  int
	closed      bool
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithBufferSize sets the per-subscriber channel capacity.
func WithBufferSize(n int) BusOption {
	return func(b *Bus) {
		if n > 0 {
			b.bufferSize = n
		}
	}
}

// NewBus creates a bus. The default per-subscriber buffer is 64.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		subscribers: make(map[string]*subscriber),
		bufferSize:  64,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a subscriber whose filter matches the events it
// wants. The returned cancel func removes the subscription and closes
// the channel; it is safe to call more than once.
func (b *Bus) Subscribe(filter Filter) (<-chan *Event, func()) {
	if filter == nil {
		filter = func(*Event) bool { return true }
	}
	sub := &subscriber{
		ch:     make(chan *Event, b.bufferSize),
		filter: filter,
	}
	id := uuid.NewString()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	b.subscribers[id] = sub
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			if _, ok := b.subscribers[id]; ok {
				delete(b.subscribers, id)
				close(sub.ch)
			}
			b.mu.Unlock()
		})
	}
	return sub.ch, cancel
}

// Publish delivers the event to every matching subscriber. Each
// subscriber receives its own copy.
func (b *Bus) Publish(e *Event) {
	if e == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, sub := range b.subscribers {
		if !sub.filter(e) {
			continue
		}
		select {
		case sub.ch <- e.Clone():
		default:
			log.Warnf("event bus: subscriber buffer full, dropping event %s (%s)", e.ID, e.Type)
		}
	}
}

// Close shuts the bus down, closing all subscriber channels. Publish and
// Subscribe become no-ops afterwards.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subscribers {
		delete(b.subscribers, id)
		close(sub.ch)
	}
}
