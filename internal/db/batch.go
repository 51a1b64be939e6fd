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
	"fmt"
	"strings"

	"github.com/naomiGrew/ReBenchDB/internal/types"
	"github.com/pkg/errors"
)

// MeasurementBatchSize is the number of tuples in the hot-path
// multi-row insert. Residuals drain through the small batch and then
// one tuple at a time.
const (
	MeasurementBatchSize      = 50
	MeasurementSmallBatchSize = 10
)

// The three fixed statement texts give the driver exactly three
// prepared plans to cache; the tuple count is encoded in the text.
var (
	insertMeasurementBatched = measurementBatchSQL(MeasurementBatchSize)
	insertMeasurementSmall   = measurementBatchSQL(MeasurementSmallBatchSize)
	insertMeasurementSingle  = measurementBatchSQL(1)
)

// measurementBatchSQL builds the n-tuple measurement insert. Each
// tuple binds 6 parameters; conflicting tuples are dropped.
func measurementBatchSQL(n int) string {
	var sb strings.Builder
	sb.WriteString(`INSERT INTO measurement
  (runid, trialid, criterion, invocation, iteration, value)
VALUES `)
	for i := 0; i < n; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 6
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6)
	}
	sb.WriteString(" ON CONFLICT DO NOTHING")
	return sb.String()
}

func measurementArgs(ms []types.Measurement) []any {
	args := make([]any, 0, len(ms)*6)
	for _, m := range ms {
		args = append(args, m.RunID, m.TrialID, m.CriterionID, m.Invocation, m.Iteration, m.Value)
	}
	return args
}

// InsertMeasurements writes a batch of measurements, reusing the fixed
// 50-tuple plan for full batches and draining residuals through the
// 10-tuple and single-tuple plans. It returns the number of rows
// actually inserted, which excludes tuples dropped by conflict.
func (d *DB) InsertMeasurements(ctx context.Context, ms []types.Measurement) (int, error) {
	recorded := 0
	for len(ms) >= MeasurementBatchSize {
		n, err := d.insertMeasurementBatch(ctx, ms[:MeasurementBatchSize], insertMeasurementBatched)
		if err != nil {
			return recorded, err
		}
		recorded += n
		ms = ms[MeasurementBatchSize:]
	}
	for len(ms) >= MeasurementSmallBatchSize {
		n, err := d.insertMeasurementBatch(ctx, ms[:MeasurementSmallBatchSize], insertMeasurementSmall)
		if err != nil {
			return recorded, err
		}
		recorded += n
		ms = ms[MeasurementSmallBatchSize:]
	}
	for _, m := range ms {
		n, err := d.insertMeasurementBatch(ctx, []types.Measurement{m}, insertMeasurementSingle)
		if err != nil {
			return recorded, err
		}
		recorded += n
	}
	return recorded, nil
}

// insertMeasurementBatch executes one fixed-size insert. A unique
// violation inside the batch falls back to tuple-at-a-time retries so
// that every non-conflicting tuple still lands.
func (d *DB) insertMeasurementBatch(
	ctx context.Context, ms []types.Measurement, sql string,
) (int, error) {
	tag, err := d.pool.Exec(ctx, sql, measurementArgs(ms)...)
	if err == nil {
		return int(tag.RowsAffected()), nil
	}
	if !isUniqueViolation(err) {
		return 0, errors.Wrapf(err, "batch insert of %d measurements", len(ms))
	}

	recorded := 0
	for _, m := range ms {
		tag, err := d.pool.Exec(ctx, insertMeasurementSingle, measurementArgs([]types.Measurement{m})...)
		if err != nil {
			if isUniqueViolation(err) {
				continue
			}
			return recorded, errors.Wrapf(err,
				"measurement (run %d, trial %d, criterion %d, invocation %d, iteration %d)",
				m.RunID, m.TrialID, m.CriterionID, m.Invocation, m.Iteration)
		}
		recorded += int(tag.RowsAffected())
	}
	return recorded, nil
}

// AvailableMeasurements is the dedup oracle for one trial: for every
// run and criterion, the largest iteration already stored per
// invocation.
type AvailableMeasurements map[int32]map[int32]map[int32]int32

// Has reports whether the given tuple is already covered.
func (a AvailableMeasurements) Has(runID, criterionID, invocation, iteration int32) bool {
	byCrit, ok := a[runID]
	if !ok {
		return false
	}
	byInv, ok := byCrit[criterionID]
	if !ok {
		return false
	}
	maxIt, ok := byInv[invocation]
	return ok && maxIt >= iteration
}

// FetchAvailableMeasurements loads the oracle for a trial in one
// aggregated query.
func (d *DB) FetchAvailableMeasurements(
	ctx context.Context, trialID int32,
) (AvailableMeasurements, error) {
	rows, err := d.pool.Query(ctx, availableMeasurements, trialID)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rows.Close()

	ret := AvailableMeasurements{}
	for rows.Next() {
		var runID, critID, invocation, maxIteration int32
		if err := rows.Scan(&runID, &critID, &invocation, &maxIteration); err != nil {
			return nil, errors.WithStack(err)
		}
		byCrit, ok := ret[runID]
		if !ok {
			byCrit = map[int32]map[int32]int32{}
			ret[runID] = byCrit
		}
		byInv, ok := byCrit[critID]
		if !ok {
			byInv = map[int32]int32{}
			byCrit[critID] = byInv
		}
		byInv[invocation] = maxIteration
	}
	return ret, errors.WithStack(rows.Err())
}

// InsertProfile stores one serialized profile. A duplicate profile for
// the same (run, trial, invocation, numIterations) is silently
// ignored; the return value reports whether a row was written.
func (d *DB) InsertProfile(
	ctx context.Context, runID, trialID, invocation, numIterations int32, value string,
) (bool, error) {
	tag, err := d.pool.Exec(ctx, insertProfile, runID, trialID, invocation, numIterations, value)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, errors.Wrapf(err,
			"profile (run %d, trial %d, invocation %d)", runID, trialID, invocation)
	}
	return tag.RowsAffected() > 0, nil
}
