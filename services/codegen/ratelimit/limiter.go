// Copyright (C) 2025 Claro Labs (oss@clarolabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ratelimit tracks per-provider request and token budgets over a
// rolling time window.
//
// One Limiter instance is shared by every workflow in the process, so
// budgets hold even when many runs hit the same provider concurrently.
// Admission is the only operation that consumes budget; a refusal mutates
// nothing and reports how long the caller should wait before asking again.
package ratelimit

import (
	"sync"
	"time"
)

// DefaultWindow is the budget window used when none is configured.
// Provider quotas are universally expressed per minute.
const DefaultWindow = time.Minute

// Budget is a provider's configured ceilings for one window, plus its
// pricing for spend accounting. A zero ceiling means unlimited.
type Budget struct {
	RequestsPerMinute     int
	InputTokensPerMinute  int
	OutputTokensPerMinute int
	InputPricePerMillion  float64
	OutputPricePerMillion float64
}

// Usage is a point-in-time snapshot of a provider's consumed quota.
type Usage struct {
	// RequestsUsed, InputTokensUsed and OutputTokensUsed count events
	// still inside the current window.
	RequestsUsed     int
	InputTokensUsed  int
	OutputTokensUsed int

	// TotalRequests and Spend accumulate over the life of the process.
	TotalRequests int64
	Spend         float64
}

// event is one admitted request inside the sliding log. Token counts start
// as estimates and are trued up by Settle once the reply arrives.
type event struct {
	at  time.Time
	in  int
	out int
}

type providerState struct {
	mu            sync.Mutex
	budget        Budget
	events        []*event
	totalRequests int64
	spend         float64
}

// Permit is proof of a granted admission. It carries the admitted event so
// the dispatcher can settle actual token usage against the estimate.
type Permit struct {
	state *providerState
	ev    *event
}

// Limiter is the process-wide rate limiter. Safe for concurrent use;
// admission checks for different providers do not contend.
type Limiter struct {
	mu        sync.RWMutex
	window    time.Duration
	providers map[string]*providerState

	// now is replaceable in tests.
	now func() time.Time
}

// New creates a limiter with the given window. A non-positive window falls
// back to DefaultWindow.
func New(window time.Duration) *Limiter {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{
		window:    window,
		providers: make(map[string]*providerState),
		now:       time.Now,
	}
}

// Configure sets or replaces the budget for a provider. Existing window
// events are kept; only the ceilings change.
func (l *Limiter) Configure(provider string, b Budget) {
	st := l.stateFor(provider)
	st.mu.Lock()
	st.budget = b
	st.mu.Unlock()
}

func (l *Limiter) stateFor(provider string) *providerState {
	l.mu.RLock()
	st, ok := l.providers[provider]
	l.mu.RUnlock()
	if ok {
		return st
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if st, ok = l.providers[provider]; ok {
		return st
	}
	st = &providerState{}
	l.providers[provider] = st
	return st
}

// Admit checks whether a request with the projected token cost fits inside
// the provider's current window.
//
// On success it deducts the cost (records the event) and returns a Permit
// with a zero wait. On refusal it returns a nil Permit and the duration
// after which the oldest counted event will have left the window; nothing
// is deducted. Exceeding a budget is ordinary control flow, never an error.
func (l *Limiter) Admit(provider string, estInputTokens, estOutputTokens int) (*Permit, time.Duration) {
	st := l.stateFor(provider)
	st.mu.Lock()
	defer st.mu.Unlock()

	now := l.now()
	st.prune(now, l.window)

	var reqs, in, out int
	for _, ev := range st.events {
		reqs++
		in += ev.in
		out += ev.out
	}

	b := st.budget
	over := (b.RequestsPerMinute > 0 && reqs+1 > b.RequestsPerMinute) ||
		(b.InputTokensPerMinute > 0 && in+estInputTokens > b.InputTokensPerMinute) ||
		(b.OutputTokensPerMinute > 0 && out+estOutputTokens > b.OutputTokensPerMinute)
	if over {
		if len(st.events) > 0 {
			wait := st.events[0].at.Add(l.window).Sub(now)
			if wait <= 0 {
				wait = time.Millisecond
			}
			return nil, wait
		}
		// The estimate alone exceeds the ceiling on an empty window, so
		// waiting cannot help. Admit anyway and let the provider reject
		// the oversized request.
	}

	ev := &event{at: now, in: estInputTokens, out: estOutputTokens}
	st.events = append(st.events, ev)
	st.totalRequests++
	return &Permit{state: st, ev: ev}, 0
}

// Settle replaces a permit's token estimates with the actual usage reported
// by the provider and accrues spend. Safe to call with a nil permit.
func (l *Limiter) Settle(p *Permit, actualInputTokens, actualOutputTokens int) {
	if p == nil || p.state == nil {
		return
	}
	st := p.state
	st.mu.Lock()
	defer st.mu.Unlock()
	p.ev.in = actualInputTokens
	p.ev.out = actualOutputTokens
	st.spend += float64(actualInputTokens)/1e6*st.budget.InputPricePerMillion +
		float64(actualOutputTokens)/1e6*st.budget.OutputPricePerMillion
}

// UsageFor returns the provider's live counters.
func (l *Limiter) UsageFor(provider string) Usage {
	st := l.stateFor(provider)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.prune(l.now(), l.window)

	u := Usage{TotalRequests: st.totalRequests, Spend: st.spend}
	for _, ev := range st.events {
		u.RequestsUsed++
		u.InputTokensUsed += ev.in
		u.OutputTokensUsed += ev.out
	}
	return u
}

// TotalSpend sums accrued spend across all providers.
func (l *Limiter) TotalSpend() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var total float64
	for _, st := range l.providers {
		st.mu.Lock()
		total += st.spend
		st.mu.Unlock()
	}
	return total
}

// prune drops events older than the window. Callers hold st.mu.
func (st *providerState) prune(now time.Time, window time.Duration) {
	cutoff := now.Add(-window)
	i := 0
	for i < len(st.events) && !st.events[i].at.After(cutoff) {
		i++
	}
	if i > 0 {
		st.events = append([]*event(nil), st.events[i:]...)
	}
}
