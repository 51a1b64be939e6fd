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
	"context"

	"github.com/naomiGrew/ReBenchDB/internal/types"
	"github.com/pkg/errors"
)

var _ types.TimelineStore = (*DB)(nil)

// PersistTimelineJobs implements types.TimelineStore. Each key write
// is idempotent, so duplicate submissions coalesce in the queue.
func (d *DB) PersistTimelineJobs(ctx context.Context, keys []types.TimelineKey) error {
	for _, k := range keys {
		if _, err := d.pool.Exec(ctx, insertTimelineJob, k.TrialID, k.RunID, k.CriterionID); err != nil {
			return errors.Wrapf(err,
				"timeline job (trial %d, run %d, criterion %d)", k.TrialID, k.RunID, k.CriterionID)
		}
	}
	return nil
}

// LoadTimelineJobs implements types.TimelineStore.
func (d *DB) LoadTimelineJobs(ctx context.Context) ([]types.TimelineKey, error) {
	rows, err := d.pool.Query(ctx, selectTimelineJobs)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rows.Close()

	var ret []types.TimelineKey
	for rows.Next() {
		var k types.TimelineKey
		if err := rows.Scan(&k.TrialID, &k.RunID, &k.CriterionID); err != nil {
			return nil, errors.WithStack(err)
		}
		ret = append(ret, k)
	}
	return ret, errors.WithStack(rows.Err())
}

// MeasurementSample implements types.TimelineStore.
func (d *DB) MeasurementSample(ctx context.Context, key types.TimelineKey) ([]float64, error) {
	rows, err := d.pool.Query(ctx, selectMeasurementSample, key.RunID, key.TrialID, key.CriterionID)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rows.Close()

	var ret []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, errors.WithStack(err)
		}
		ret = append(ret, v)
	}
	return ret, errors.WithStack(rows.Err())
}

// UpsertTimeline implements types.TimelineStore.
func (d *DB) UpsertTimeline(ctx context.Context, e types.TimelineEntry) error {
	_, err := d.pool.Exec(ctx, upsertTimeline,
		e.RunID, e.TrialID, e.CriterionID,
		e.Min, e.Max, e.StdDev, e.Mean, e.Median, e.NumSamples, e.BCI95Low, e.BCI95Up)
	return errors.Wrapf(err,
		"timeline (run %d, trial %d, criterion %d)", e.RunID, e.TrialID, e.CriterionID)
}

// DeleteTimelineJob implements types.TimelineStore.
func (d *DB) DeleteTimelineJob(ctx context.Context, key types.TimelineKey) error {
	_, err := d.pool.Exec(ctx, deleteTimelineJob, key.TrialID, key.RunID, key.CriterionID)
	return errors.WithStack(err)
}
