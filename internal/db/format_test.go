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

func TestSlug(t *testing.T) {
	tcs := []struct {
		name     string
		expected string
	}{
		{"SOM", "SOM"},
		{"My Project", "My-Project"},
		{"a/b.c_d", "a-b-c-d"},
		{"already-fine-123", "already-fine-123"},
		{"ünïcode", "-n-code"},
		{"", ""},
	}
	for _, tc := range tcs {
		require.Equal(t, tc.expected, Slug(tc.name), "slug of %q", tc.name)
	}
}

func TestFilterCommitMessage(t *testing.T) {
	tcs := []struct {
		msg      string
		expected string
	}{
		{"plain message", "plain message"},
		{"subject\n\nSigned-off-by: A <a@example.org>", "subject"},
		{`line one\nline two`, "line one\nline two"},
		{"  padded  ", "padded"},
		{
			"fix it\nSigned-off-by: A <a@example.org>\nmore text",
			"fix it\n\nmore text",
		},
	}
	for _, tc := range tcs {
		require.Equal(t, tc.expected, FilterCommitMessage(tc.msg))
	}
}
