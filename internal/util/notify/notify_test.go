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

package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestVarWakesWaiters(t *testing.T) {
	var v Var[int]

	value, updated := v.Get()
	require.Equal(t, 0, value)

	go v.Set(42)

	select {
	case <-updated:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for update")
	}
	value, _ = v.Get()
	require.Equal(t, 42, value)
}

func TestVarChannelRotates(t *testing.T) {
	var v Var[string]
	_, first := v.Get()
	v.Set("a")
	_, second := v.Get()
	require.NotEqual(t, first, second)

	select {
	case <-second:
		t.Fatal("new channel must not be closed yet")
	default:
	}
}
