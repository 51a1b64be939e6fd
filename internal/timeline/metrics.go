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

package timeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "timeline_jobs_submitted_total",
		Help: "the number of timeline recomputation jobs submitted",
	})
	jobsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "timeline_jobs_processed_total",
		Help: "the number of timeline recomputation jobs completed",
	})
	jobErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "timeline_job_errors_total",
		Help: "the number of timeline recomputation jobs that failed",
	})
	drainDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "timeline_drain_duration_seconds",
		Help:    "the length of time it took to recompute one drained batch",
		Buckets: prometheus.DefBuckets,
	})
	pendingValues = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "timeline_pending_values",
		Help: "the number of measurement values awaiting aggregation",
	})
)
