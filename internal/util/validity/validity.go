// Copyright 2024 The ReBenchDB Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

// Package validity provides a cheap token that marks derived data as
// stale some delay after an invalidating write.
package validity

import (
	"sync"
	"sync/atomic"
	"time"
)

// Token is a handle over cached derived data. Readers hold a *Token
// and re-check IsValid before trusting their cache; writers call
// InvalidateAndNew after changing the underlying data.
//
// A non-zero delay lets concurrent readers briefly observe stale data,
// which amortizes recomputation during ingest bursts. At most one
// invalidation timer is ever scheduled per token.
type Token struct {
	delay time.Duration
	valid atomic.Bool

	mu struct {
		sync.Mutex
		scheduled bool
	}
}

// NewToken returns a valid token whose invalidation is deferred by the
// given delay.
func NewToken(delay time.Duration) *Token {
	t := &Token{delay: delay}
	t.valid.Store(true)
	return t
}

// IsValid reports whether the data guarded by this token may still be
// used.
func (t *Token) IsValid() bool {
	return t.valid.Load()
}

// InvalidateAndNew schedules the token's invalidation if it has not
// been scheduled yet. It returns the receiver while it remains valid;
// once invalid, it returns a fresh valid token with the same delay.
func (t *Token) InvalidateAndNew() *Token {
	t.mu.Lock()
	if !t.mu.scheduled {
		t.mu.scheduled = true
		if t.delay <= 0 {
			t.valid.Store(false)
		} else {
			time.AfterFunc(t.delay, func() {
				t.valid.Store(false)
			})
		}
	}
	t.mu.Unlock()

	if t.valid.Load() {
		return t
	}
	return NewToken(t.delay)
}

// Holder publishes the current token of one cache. Readers grab the
// token with Current; writers call Invalidate after changing the
// underlying data.
type Holder struct {
	current atomic.Pointer[Token]
}

// NewHolder returns a holder seeded with a valid token.
func NewHolder(delay time.Duration) *Holder {
	h := &Holder{}
	h.current.Store(NewToken(delay))
	return h
}

// Current returns the token readers should check.
func (h *Holder) Current() *Token {
	return h.current.Load()
}

// Invalidate schedules the current token's invalidation and swaps in
// its successor.
func (h *Holder) Invalidate() {
	t := h.current.Load()
	h.current.Store(t.InvalidateAndNew())
}
