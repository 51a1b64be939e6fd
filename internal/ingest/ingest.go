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

// Package ingest records benchmark result payloads: metadata is
// interned idempotently, measurements stream through batched
// conflict-tolerant inserts, and accepted values are handed to the
// timeline updater.
package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/naomiGrew/ReBenchDB/internal/api"
	"github.com/naomiGrew/ReBenchDB/internal/db"
	"github.com/naomiGrew/ReBenchDB/internal/timeline"
	"github.com/naomiGrew/ReBenchDB/internal/types"
	"github.com/naomiGrew/ReBenchDB/internal/util/validity"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// User errors surfaced on the request boundary.
var (
	ErrNoSuchExperiment = errors.New("no such experiment")
	ErrMissingEndTime   = errors.New("completion payload has no endTime")
)

// Ingester is the write side of the service. One instance is shared by
// every request.
type Ingester struct {
	db         *db.DB
	updater    *timeline.Updater
	statsToken *validity.Holder
}

// New constructs the ingester.
func New(database *db.DB, updater *timeline.Updater, statsToken *validity.Holder) *Ingester {
	return &Ingester{
		db:         database,
		updater:    updater,
		statsToken: statsToken,
	}
}

// RecordAllData idempotently records one payload and returns the
// number of measurement and profile rows actually inserted, excluding
// skipped duplicates. Uniqueness violations are recovered internally;
// any other database error aborts the request. Partial inserts are
// safe: re-submission of the same payload converges.
func (in *Ingester) RecordAllData(
	ctx context.Context, data *api.BenchData, suppressTimeline bool,
) (recordedMeasurements, recordedProfiles int, _ error) {
	start := time.Now()

	// Derived statistics are stale the moment anything lands.
	in.statsToken.Invalidate()

	startTime, err := time.Parse(time.RFC3339, data.StartTime)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "invalid startTime %q", data.StartTime)
	}

	env, err := in.db.RecordEnvironment(ctx,
		data.Env.HostName, data.Env.OSType, data.Env.Memory, data.Env.CPU, data.Env.ClockSpeed)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "environment %q", data.Env.HostName)
	}
	project, err := in.db.RecordProject(ctx, data.ProjectName)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "project %q", data.ProjectName)
	}
	exp, err := in.db.RecordExperiment(ctx, project, data.ExperimentName, data.ExperimentDesc)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "experiment %q", data.ExperimentName)
	}
	source, err := in.db.RecordSource(ctx, types.Source{
		RepoURL:        data.Source.RepoURL,
		BranchOrTag:    data.Source.BranchOrTag,
		CommitID:       data.Source.CommitID,
		CommitMessage:  data.Source.CommitMsg,
		AuthorName:     data.Source.AuthorName,
		AuthorEmail:    data.Source.AuthorEmail,
		CommitterName:  data.Source.CommitterName,
		CommitterEmail: data.Source.CommitterEmail,
	})
	if err != nil {
		return 0, 0, errors.Wrapf(err, "source %q", data.Source.CommitID)
	}
	trial, err := in.db.RecordTrial(ctx, data.Env.ManualRun, startTime, exp,
		data.Env.UserName, env, source, data.Env.Denoise)
	if err != nil {
		return 0, 0, errors.Wrap(err, "trial")
	}

	criteria := make(map[int]types.Criterion, len(data.Criteria))
	for _, c := range data.Criteria {
		row, err := in.db.RecordCriterion(ctx, c.Name, c.Unit)
		if err != nil {
			return 0, 0, errors.Wrapf(err, "criterion %q (%s)", c.Name, c.Unit)
		}
		criteria[c.Index] = row
	}

	// The dedup oracle is scoped to the trial; fetch it once, before
	// the first group that has measurements.
	var available db.AvailableMeasurements
	seen := seenSet{}

	for _, group := range data.Data {
		run, err := in.recordRun(ctx, &group.RunID)
		if err != nil {
			return 0, 0, err
		}

		if len(group.Data) > 0 && available == nil {
			available, err = in.db.FetchAvailableMeasurements(ctx, trial.ID)
			if err != nil {
				return 0, 0, errors.Wrapf(err, "available measurements for trial %d", trial.ID)
			}
		}

		batch := make([]types.Measurement, 0, db.MeasurementBatchSize)
		for _, point := range group.Data {
			for _, mv := range point.Measures {
				criterion, ok := criteria[mv.Criterion]
				if !ok {
					return recordedMeasurements, recordedProfiles,
						errors.Errorf("payload references undeclared criterion index %d", mv.Criterion)
				}
				if available.Has(run.ID, criterion.ID, point.Invocation, point.Iteration) {
					measurementsSkipped.Inc()
					continue
				}
				m := types.Measurement{
					RunID:       run.ID,
					TrialID:     trial.ID,
					CriterionID: criterion.ID,
					Invocation:  point.Invocation,
					Iteration:   point.Iteration,
					Value:       mv.Value,
				}
				if !seen.accept(m) {
					measurementsSkipped.Inc()
					continue
				}
				batch = append(batch, m)
				if len(batch) == db.MeasurementBatchSize {
					n, err := in.db.InsertMeasurements(ctx, batch)
					recordedMeasurements += n
					if err != nil {
						return recordedMeasurements, recordedProfiles, err
					}
					batch = batch[:0]
				}
				if criterion.Name == types.TotalCriterion {
					in.updater.AddValue(run.ID, trial.ID, criterion.ID, mv.Value)
				}
			}
		}
		if len(batch) > 0 {
			n, err := in.db.InsertMeasurements(ctx, batch)
			recordedMeasurements += n
			if err != nil {
				return recordedMeasurements, recordedProfiles, err
			}
		}

		for _, p := range group.Profiles {
			value, err := serializeProfile(p.Data)
			if err != nil {
				return recordedMeasurements, recordedProfiles,
					errors.Wrapf(err, "profile (run %d, invocation %d)", run.ID, p.Invocation)
			}
			inserted, err := in.db.InsertProfile(ctx, run.ID, trial.ID, p.Invocation, p.NumIterations, value)
			if err != nil {
				return recordedMeasurements, recordedProfiles, err
			}
			if inserted {
				recordedProfiles++
			}
		}
	}

	if recordedMeasurements > 0 && !suppressTimeline {
		if err := in.updater.SubmitUpdateJobs(ctx); err != nil {
			return recordedMeasurements, recordedProfiles, err
		}
	}

	measurementsRecorded.Add(float64(recordedMeasurements))
	profilesRecorded.Add(float64(recordedProfiles))
	requestDuration.Observe(time.Since(start).Seconds())
	log.WithFields(log.Fields{
		"project":      data.ProjectName,
		"experiment":   data.ExperimentName,
		"commit":       data.Source.CommitID,
		"measurements": recordedMeasurements,
		"profiles":     recordedProfiles,
		"duration":     time.Since(start),
	}).Debug("recorded payload")

	return recordedMeasurements, recordedProfiles, nil
}

// recordRun interns a run and its executor, suite, and benchmark,
// leaves first.
func (in *Ingester) recordRun(ctx context.Context, spec *api.RunSpec) (types.Run, error) {
	executor, err := in.db.RecordExecutor(ctx,
		spec.Benchmark.Suite.Executor.Name, spec.Benchmark.Suite.Executor.Description)
	if err != nil {
		return types.Run{}, errors.Wrapf(err, "executor %q", spec.Benchmark.Suite.Executor.Name)
	}
	suite, err := in.db.RecordSuite(ctx, spec.Benchmark.Suite.Name, spec.Benchmark.Suite.Description)
	if err != nil {
		return types.Run{}, errors.Wrapf(err, "suite %q", spec.Benchmark.Suite.Name)
	}
	benchmark, err := in.db.RecordBenchmark(ctx, spec.Benchmark.Name, spec.Benchmark.Description)
	if err != nil {
		return types.Run{}, errors.Wrapf(err, "benchmark %q", spec.Benchmark.Name)
	}

	run, err := in.db.RecordRun(ctx, types.Run{
		CmdLine:           spec.CmdLine,
		BenchmarkID:       benchmark.ID,
		SuiteID:           suite.ID,
		ExecutorID:        executor.ID,
		Location:          spec.Location,
		Cores:             spec.Cores,
		VarValue:          spec.VarValue,
		InputSize:         spec.InputSize,
		ExtraArgs:         spec.ExtraArgs,
		MaxInvocationTime: spec.Benchmark.RunDetails.MaxInvocationTime,
		MinIterationTime:  spec.Benchmark.RunDetails.MinIterationTime,
		Warmup:            spec.Benchmark.RunDetails.Warmup,
	})
	if err != nil {
		return types.Run{}, errors.Wrapf(err, "run %q", spec.CmdLine)
	}
	return run, nil
}

// serializeProfile normalizes a profile payload to its stored text
// form: strings pass through, everything else is JSON-encoded.
func serializeProfile(data interface{}) (string, error) {
	if s, ok := data.(string); ok {
		return s, nil
	}
	b, err := json.Marshal(data)
	return string(b), errors.WithStack(err)
}

// RecordCompletion closes every open trial of the experiment named in
// the payload.
func (in *Ingester) RecordCompletion(ctx context.Context, c *api.BenchCompletion) error {
	if c.EndTime == "" {
		return ErrMissingEndTime
	}
	endTime, err := time.Parse(time.RFC3339, c.EndTime)
	if err != nil {
		return errors.Wrapf(ErrMissingEndTime, "invalid endTime %q", c.EndTime)
	}

	project, err := in.db.ProjectByName(ctx, c.ProjectName)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNoSuchExperiment
	}
	if err != nil {
		return errors.Wrapf(err, "project %q", c.ProjectName)
	}
	exp, err := in.db.ExperimentByName(ctx, project, c.ExperimentName)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNoSuchExperiment
	}
	if err != nil {
		return errors.Wrapf(err, "experiment %q", c.ExperimentName)
	}

	closed, err := in.db.CompleteTrials(ctx, exp, endTime)
	if err != nil {
		return errors.Wrapf(err, "completing trials of %q", c.ExperimentName)
	}
	log.WithFields(log.Fields{
		"experiment": c.ExperimentName,
		"trials":     closed,
	}).Debug("experiment completed")
	return nil
}
