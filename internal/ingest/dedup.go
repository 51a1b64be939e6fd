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

package ingest

import "github.com/naomiGrew/ReBenchDB/internal/types"

// measurementKey is the identity of a measurement tuple within one
// trial.
type measurementKey struct {
	runID       int32
	criterionID int32
	invocation  int32
	iteration   int32
}

// seenSet tracks measurement identities already accepted while
// streaming a payload, so a malformed payload repeating a tuple cannot
// enqueue it twice within one request. The database rows the oracle
// knows about are handled separately.
type seenSet map[measurementKey]struct{}

// accept records the measurement's identity. It returns false if the
// identity had been recorded before.
func (s seenSet) accept(m types.Measurement) bool {
	key := measurementKey{
		runID:       m.RunID,
		criterionID: m.CriterionID,
		invocation:  m.Invocation,
		iteration:   m.Iteration,
	}
	if _, dup := s[key]; dup {
		return false
	}
	s[key] = struct{}{}
	return true
}
