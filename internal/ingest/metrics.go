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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	measurementsRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_measurements_recorded_total",
		Help: "the number of measurement rows inserted",
	})
	measurementsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_measurements_skipped_total",
		Help: "the number of measurement tuples skipped as already stored",
	})
	profilesRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_profiles_recorded_total",
		Help: "the number of profile rows inserted",
	})
	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ingest_request_duration_seconds",
		Help:    "the length of time it took to record one payload",
		Buckets: prometheus.DefBuckets,
	})
)
