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

// Package notify contains a utility type to broadcast variable
// updates to listeners.
package notify

import "sync"

// Var is a variable whose updates can be waited on. The zero value is
// ready to use and holds the zero value of T.
type Var[T any] struct {
	mu      sync.Mutex
	value   T
	updated chan struct{}
}

// Get returns the current value and a channel that closes the next
// time Set is called.
func (v *Var[T]) Get() (T, <-chan struct{}) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.updated == nil {
		v.updated = make(chan struct{})
	}
	return v.value, v.updated
}

// Set stores the value and wakes all pending Get channels.
func (v *Var[T]) Set(value T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.value = value
	if v.updated != nil {
		close(v.updated)
		v.updated = nil
	}
}
