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

package stopper

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestStopClosesStoppingBeforeCancel(t *testing.T) {
	ctx := WithContext(context.Background())
	sawStopping := make(chan struct{})

	ctx.Go(func() error {
		<-ctx.Stopping()
		close(sawStopping)
		return nil
	})

	ctx.Stop(time.Second)
	select {
	case <-sawStopping:
	default:
		t.Fatal("goroutine did not observe the stop")
	}
	require.Error(t, ctx.Err())
}

func TestWaitReturnsFirstError(t *testing.T) {
	ctx := WithContext(context.Background())
	boom := errors.New("boom")
	ctx.Go(func() error { return boom })
	require.ErrorIs(t, ctx.Wait(), boom)
	ctx.Stop(time.Millisecond)
}

func TestStopIsIdempotent(t *testing.T) {
	ctx := WithContext(context.Background())
	ctx.Stop(time.Millisecond)
	ctx.Stop(time.Millisecond)
}
