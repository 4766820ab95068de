// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package advisory logs non-fatal warnings at most once per distinct message.
//
// One Advisor is shared by every session of a process. New keeps seen
// messages in a bounded LRU set, so a long-running server forgets old
// messages instead of growing without limit and may repeat one after it is
// evicted. NewUnbounded never forgets and logs each message exactly once.
package advisory

import (
	"fmt"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of distinct messages remembered.
const DefaultCacheSize = 4096

// Option configures an Advisor.
type Option func(*Advisor)

// WithLogger sets the destination logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Advisor) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// Advisor deduplicates warnings.
//
// Thread Safety: safe for concurrent use.
type Advisor struct {
	seen   seenSet
	logger *slog.Logger
}

type seenSet interface {
	ContainsOrAdd(key string, value struct{}) (ok, evicted bool)
	Len() int
}

// unboundedSet is a seenSet that never evicts.
type unboundedSet struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func (s *unboundedSet) ContainsOrAdd(key string, value struct{}) (ok, evicted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok = s.keys[key]; !ok {
		s.keys[key] = value
	}
	return ok, false
}

func (s *unboundedSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}

// New creates an Advisor remembering up to size messages.
func New(size int, opts ...Option) (*Advisor, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	seen, err := lru.New[string, struct{}](size)
	if err != nil {
		return nil, fmt.Errorf("creating advisory cache: %w", err)
	}
	return newAdvisor(seen, opts), nil
}

// NewUnbounded creates an Advisor that remembers every message for the life
// of the process.
func NewUnbounded(opts ...Option) *Advisor {
	return newAdvisor(&unboundedSet{keys: make(map[string]struct{})}, opts)
}

func newAdvisor(seen seenSet, opts []Option) *Advisor {
	a := &Advisor{seen: seen, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Warn logs msg unless it was already logged. Attributes do not take part in
// deduplication.
func (a *Advisor) Warn(msg string, attrs ...slog.Attr) {
	if !a.Record(msg) {
		return
	}
	args := make([]any, 0, len(attrs))
	for _, attr := range attrs {
		args = append(args, attr)
	}
	a.logger.Warn(msg, args...)
}

// Record marks msg as seen and reports whether it was new.
func (a *Advisor) Record(msg string) bool {
	found, _ := a.seen.ContainsOrAdd(msg, struct{}{})
	return !found
}

// Seen returns the number of distinct messages currently remembered.
func (a *Advisor) Seen() int {
	return a.seen.Len()
}
