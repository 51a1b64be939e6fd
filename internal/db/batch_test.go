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

package db

import (
	"fmt"
	"strings"
	"testing"

	"github.com/naomiGrew/ReBenchDB/internal/types"
	"github.com/stretchr/testify/require"
)

func TestMeasurementBatchSQL(t *testing.T) {
	for _, n := range []int{1, MeasurementSmallBatchSize, MeasurementBatchSize} {
		sql := measurementBatchSQL(n)
		// One paren opens the column list, one per tuple.
		require.Equal(t, n+1, strings.Count(sql, "("),
			"expected %d tuples", n)
		require.Equal(t, n*6, strings.Count(sql, "$"),
			"each tuple binds 6 parameters")
		require.Contains(t, sql, fmt.Sprintf("$%d)", n*6),
			"placeholders are numbered through the final tuple")
		require.True(t, strings.HasSuffix(sql, "ON CONFLICT DO NOTHING"))
	}
}

func TestMeasurementBatchSQLPlansAreDistinct(t *testing.T) {
	// The driver caches prepared statements by text; each batch size
	// must map to its own plan.
	require.NotEqual(t, insertMeasurementBatched, insertMeasurementSmall)
	require.NotEqual(t, insertMeasurementSmall, insertMeasurementSingle)
}

func TestMeasurementArgsOrder(t *testing.T) {
	args := measurementArgs([]types.Measurement{
		{RunID: 1, TrialID: 2, CriterionID: 3, Invocation: 4, Iteration: 5, Value: 6.5},
		{RunID: 7, TrialID: 8, CriterionID: 9, Invocation: 10, Iteration: 11, Value: 12.5},
	})
	require.Equal(t, []any{
		int32(1), int32(2), int32(3), int32(4), int32(5), 6.5,
		int32(7), int32(8), int32(9), int32(10), int32(11), 12.5,
	}, args)
}

func TestAvailableMeasurementsHas(t *testing.T) {
	avail := AvailableMeasurements{
		10: {20: {1: 3, 2: 1}},
	}
	require.True(t, avail.Has(10, 20, 1, 1))
	require.True(t, avail.Has(10, 20, 1, 3))
	require.False(t, avail.Has(10, 20, 1, 4))
	require.True(t, avail.Has(10, 20, 2, 1))
	require.False(t, avail.Has(10, 20, 3, 1))
	require.False(t, avail.Has(10, 21, 1, 1))
	require.False(t, avail.Has(11, 20, 1, 1))

	var empty AvailableMeasurements
	require.False(t, empty.Has(1, 1, 1, 1))
}
