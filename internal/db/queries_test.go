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
	"testing"

	"github.com/stretchr/testify/require"
)

func strptr(s string) *string { return &s }

func TestTimelineDataSQLNoFilters(t *testing.T) {
	name, sql, args := timelineDataSQL(&TimelineRequest{}, make([]any, 8))
	require.Equal(t, "timelineData", name)
	require.Len(t, args, 8)
	require.NotContains(t, sql, "varvalue")
	require.Contains(t, sql, "ORDER BY tr.starttime")
}

// The statement name and text must be unique per filter shape so the
// driver caches one prepared plan per shape.
func TestTimelineDataSQLFilterShapes(t *testing.T) {
	tcs := []struct {
		req      TimelineRequest
		name     string
		contains []string
	}{
		{
			req:      TimelineRequest{VarValue: strptr("x")},
			name:     "timelineData:v",
			contains: []string{"r.varvalue = $9"},
		},
		{
			req:      TimelineRequest{Cores: strptr("4"), ExtraArgs: strptr("-O2")},
			name:     "timelineData:c:ea",
			contains: []string{"r.cores = $9", "r.extraargs = $10"},
		},
		{
			req: TimelineRequest{
				VarValue:  strptr("x"),
				Cores:     strptr("4"),
				InputSize: strptr("large"),
				ExtraArgs: strptr("-O2"),
			},
			name: "timelineData:v:c:i:ea",
			contains: []string{
				"r.varvalue = $9", "r.cores = $10",
				"r.inputsize = $11", "r.extraargs = $12",
			},
		},
	}
	for _, tc := range tcs {
		name, sql, args := timelineDataSQL(&tc.req, make([]any, 8))
		require.Equal(t, tc.name, name)
		require.Len(t, args, 8+len(tc.contains))
		for _, want := range tc.contains {
			require.Contains(t, sql, want)
		}
	}
}
