// Copyright (c) 2026 MLForge. All rights reserved.
// Author: platform@mlforge.dev

package iam

import (
	"context"
	"sync"
	"time"
)

// LoginLimiter tracks failed authentication attempts per key (client IP,
// falling back to username when the IP is unknown) over a sliding window.
//
// # Why not the transport rate limiter?
//
// The per-IP limiter in the middleware package throttles request volume.
// This limiter counts FAILED logins only: an attacker cycling passwords at
// a polite request rate still gets locked out after maxAttempts failures,
// while a legitimate user logging in repeatedly is never throttled.
type LoginLimiter struct {
	mutex       sync.Mutex
	failures    map[string][]time.Time
	maxAttempts int
	window      time.Duration

	// resetOnSuccess clears a key's failure history after a successful
	// login. Off by default: a success from an attacker-shared IP must
	// not hand back the full attempt budget.
	resetOnSuccess bool
}

// NewLoginLimiter constructs a limiter and starts a janitor goroutine that
// prunes stale keys until ctx is cancelled.
func NewLoginLimiter(ctx context.Context, maxAttempts int, window time.Duration, resetOnSuccess bool) *LoginLimiter {
	limiter := &LoginLimiter{
		failures:       make(map[string][]time.Time),
		maxAttempts:    maxAttempts,
		window:         window,
		resetOnSuccess: resetOnSuccess,
	}

	go func() {
		ticker := time.NewTicker(window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				limiter.prune()
			}
		}
	}()

	return limiter
}

// IsLimited reports whether the key has exhausted its failure budget
// within the window. Checked BEFORE any credential work so locked-out
// attempts never touch the user table or bcrypt.
func (limiter *LoginLimiter) IsLimited(key string) bool {
	limiter.mutex.Lock()
	defer limiter.mutex.Unlock()

	return len(limiter.recent(key)) >= limiter.maxAttempts
}

// RecordFailure appends a failed attempt for the key.
func (limiter *LoginLimiter) RecordFailure(key string) {
	limiter.mutex.Lock()
	defer limiter.mutex.Unlock()

	limiter.failures[key] = append(limiter.recent(key), time.Now())
}

// RecordSuccess notes a successful login. Only clears history when the
// limiter was configured with resetOnSuccess.
func (limiter *LoginLimiter) RecordSuccess(key string) {
	if !limiter.resetOnSuccess {
		return
	}

	limiter.mutex.Lock()
	defer limiter.mutex.Unlock()

	delete(limiter.failures, key)
}

// recent returns the key's failures still inside the window and compacts
// the stored slice. Caller must hold the mutex.
func (limiter *LoginLimiter) recent(key string) []time.Time {
	cutoff := time.Now().Add(-limiter.window)

	kept := limiter.failures[key][:0]
	for _, at := range limiter.failures[key] {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}

	if len(kept) == 0 {
		delete(limiter.failures, key)
		return nil
	}
	limiter.failures[key] = kept
	return kept
}

// prune drops keys whose failures have all aged out.
func (limiter *LoginLimiter) prune() {
	limiter.mutex.Lock()
	defer limiter.mutex.Unlock()

	for key := range limiter.failures {
		limiter.recent(key)
	}
}
