// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hooks

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// verdictQueueSize bounds the verdict events waiting for async delivery.
const verdictQueueSize = 1000

// Subscription is a handle for a registered subscriber.
type Subscription struct {
	ID    string
	Event HookEvent

	handler func(*EventContext)
	bus     *EventBus
}

// Unsubscribe removes the subscription. Calling it twice is harmless.
func (s *Subscription) Unsubscribe() {
	s.bus.remove(s)
}

// BusStats counts what happened to published events.
type BusStats struct {
	Delivered uint64 `json:"delivered"`
	Dropped   uint64 `json:"dropped"`
	Panicked  uint64 `json:"panicked"`
}

// EventBus fans verdict events out to subscribers.
// PublishAsync hands events to a single worker so a slow hook never blocks the ledger.
type EventBus struct {
	mu     sync.RWMutex
	subs   map[HookEvent][]*Subscription
	queue  chan *EventContext
	closed bool
	once   sync.Once
	done   chan struct{}

	delivered atomic.Uint64
	dropped   atomic.Uint64
	panicked  atomic.Uint64
}

// NewEventBus creates a bus and starts its delivery worker.
func NewEventBus() *EventBus {
	b := &EventBus{
		subs:  make(map[HookEvent][]*Subscription),
		queue: make(chan *EventContext, verdictQueueSize),
		done:  make(chan struct{}),
	}
	go b.deliverQueued()
	return b
}

// Subscribe registers handler for event.
func (b *EventBus) Subscribe(event HookEvent, handler func(*EventContext)) *Subscription {
	sub := &Subscription{ID: uuid.NewString(), Event: event, handler: handler, bus: b}

	b.mu.Lock()
	b.subs[event] = append(b.subs[event], sub)
	b.mu.Unlock()
	return sub
}

func (b *EventBus) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[sub.Event] = slices.DeleteFunc(slices.Clone(b.subs[sub.Event]), func(s *Subscription) bool {
		return s.ID == sub.ID
	})
}

// Publish delivers ev to its subscribers on the calling goroutine.
// A panicking subscriber is logged and does not stop the others.
func (b *EventBus) Publish(ev *EventContext) {
	b.mu.RLock()
	subs := b.subs[ev.Event]
	b.mu.RUnlock()

	for _, sub := range subs {
		b.call(sub, ev)
	}
}

func (b *EventBus) call(sub *Subscription, ev *EventContext) {
	defer func() {
		if r := recover(); r != nil {
			b.panicked.Add(1)
			log.WithFields(log.Fields{
				"event":           ev.Event,
				"verification_id": ev.VerificationID,
			}).Errorf("hook subscriber panicked: %v", r)
		}
	}()
	sub.handler(ev)
	b.delivered.Add(1)
}

// PublishAsync queues ev. It is dropped when the queue is full or the bus is shut down.
func (b *EventBus) PublishAsync(ev *EventContext) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.dropped.Add(1)
		return
	}
	select {
	case b.queue <- ev:
	default:
		b.dropped.Add(1)
		log.WithField("verification_id", ev.VerificationID).Warnf("verdict event queue full, dropping %s", ev.Event)
	}
}

func (b *EventBus) deliverQueued() {
	defer close(b.done)
	for ev := range b.queue {
		if ev != nil {
			b.Publish(ev)
		}
	}
}

// Shutdown stops accepting async events and waits until the queued ones are delivered.
func (b *EventBus) Shutdown() {
	b.once.Do(func() {
		b.mu.Lock()
		b.closed = true
		close(b.queue)
		b.mu.Unlock()
	})
	<-b.done
}

// Stats returns delivery counters.
func (b *EventBus) Stats() BusStats {
	return BusStats{
		Delivered: b.delivered.Load(),
		Dropped:   b.dropped.Load(),
		Panicked:  b.panicked.Load(),
	}
}
