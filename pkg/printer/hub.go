// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package printer

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Subscription receives canonical state snapshots. The channel holds at
// most one snapshot; an undelivered snapshot is replaced by a newer one.
// C is closed when the subscription or the engine is closed.
type Subscription struct {
	ID string

	hub  *hub
	ch   chan State
	last uint64
}

// C returns the snapshot channel
func (s *Subscription) C() <-chan State {
	return s.ch
}

// Close stops delivery and closes C. Safe to call more than once.
func (s *Subscription) Close() {
	s.hub.remove(s)
}

// hub fans snapshots out to subscribers on change and on a fixed cadence
type hub struct {
	source   func() State
	interval time.Duration
	limiter  *rate.Limiter
	logger   zerolog.Logger
	metrics  *Metrics

	mu     sync.Mutex
	subs   map[string]*Subscription
	closed bool

	notify chan struct{}
}

func newHub(source func() State, interval, minSpacing time.Duration) *hub {
	limit := rate.Inf
	if minSpacing > 0 {
		limit = rate.Every(minSpacing)
	}
	return &hub{
		source:   source,
		interval: interval,
		limiter:  rate.NewLimiter(limit, 1),
		subs:     make(map[string]*Subscription),
		notify:   make(chan struct{}, 1),
	}
}

// Subscribe registers a subscriber and queues the current snapshot for it
func (h *hub) Subscribe() *Subscription {
	sub := &Subscription{
		ID:  uuid.NewString(),
		hub: h,
		ch:  make(chan State, 1),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		close(sub.ch)
		return sub
	}
	h.subs[sub.ID] = sub
	h.metrics.subscriberCount(len(h.subs))
	h.offer(sub, h.source())

	h.logger.Debug().Str("subscriber", sub.ID).Int("subscribers", len(h.subs)).Msg("Subscriber added")
	return sub
}

func (h *hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subs[sub.ID]; !ok {
		return
	}
	delete(h.subs, sub.ID)
	close(sub.ch)
	h.metrics.subscriberCount(len(h.subs))
	h.logger.Debug().Str("subscriber", sub.ID).Int("subscribers", len(h.subs)).Msg("Subscriber removed")
}

// Count returns the number of active subscribers
func (h *hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Notify signals that the state changed. It never blocks.
func (h *hub) Notify() {
	select {
	case h.notify <- struct{}{}:
	default:
	}
}

// Run delivers snapshots until ctx is done, then closes every subscription
func (h *hub) Run(ctx context.Context) {
	defer h.closeAll()

	var tick <-chan time.Time
	if h.interval > 0 {
		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			h.deliver(true)
		case <-h.notify:
			if !h.wait(ctx) {
				return
			}
			h.deliver(false)
		}
	}
}

// wait enforces the minimum spacing between change-driven deliveries.
// Notifications arriving meanwhile coalesce into the next delivery.
func (h *hub) wait(ctx context.Context) bool {
	delay := h.limiter.Reserve().Delay()
	if delay <= 0 {
		return true
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// deliver offers the current snapshot to every subscriber. Without force,
// subscribers that already hold this version are skipped.
func (h *hub) deliver(force bool) {
	snap := h.source()

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sub := range h.subs {
		if !force && sub.last >= snap.Version {
			continue
		}
		h.offer(sub, snap)
	}
}

// offer hands snap to sub without blocking, replacing any undelivered one.
// Caller holds h.mu.
func (h *hub) offer(sub *Subscription, snap State) {
	replaced := false
	select {
	case <-sub.ch:
		replaced = true
	default:
	}
	select {
	case sub.ch <- snap:
		sub.last = snap.Version
		h.metrics.delivered(replaced)
	default:
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for id, sub := range h.subs {
		delete(h.subs, id)
		close(sub.ch)
	}
	h.metrics.subscriberCount(0)
}
