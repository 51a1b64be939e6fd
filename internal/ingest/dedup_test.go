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

import (
	"testing"

	"github.com/naomiGrew/ReBenchDB/internal/types"
	"github.com/stretchr/testify/require"
)

func TestSeenSet(t *testing.T) {
	seen := seenSet{}
	m := types.Measurement{RunID: 1, CriterionID: 2, Invocation: 3, Iteration: 4, Value: 1.5}

	require.True(t, seen.accept(m))
	require.False(t, seen.accept(m), "same identity must be rejected")

	// The value is not part of the identity.
	dup := m
	dup.Value = 99.0
	require.False(t, seen.accept(dup))

	// Any varied key component makes a fresh identity.
	next := m
	next.Iteration = 5
	require.True(t, seen.accept(next))
	next = m
	next.Invocation = 9
	require.True(t, seen.accept(next))
	next = m
	next.CriterionID = 7
	require.True(t, seen.accept(next))
	next = m
	next.RunID = 8
	require.True(t, seen.accept(next))
}
