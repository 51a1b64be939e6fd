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

package server

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"testing"
	"time"

	"github.com/naomiGrew/ReBenchDB/internal/api"
	"github.com/naomiGrew/ReBenchDB/internal/db"
	"github.com/naomiGrew/ReBenchDB/internal/ingest"
	"github.com/naomiGrew/ReBenchDB/internal/timeline"
	"github.com/naomiGrew/ReBenchDB/internal/types"
	"github.com/naomiGrew/ReBenchDB/internal/util/stdpool"
	"github.com/naomiGrew/ReBenchDB/internal/util/stopper"
	"github.com/naomiGrew/ReBenchDB/internal/util/validity"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// fixture provides a database-backed service for integration tests.
// Tests are skipped unless TEST_REBENCH_DB_URL points at a disposable
// database.
type fixture struct {
	Context  context.Context
	DB       *db.DB
	Ingester *ingest.Ingester
	Updater  *timeline.Updater
}

var fixtureTables = []string{
	"timelinecalcjob", "timeline", "profiledata", "measurement",
	"trial", "run", "experiment", "project", "source", "environment",
	"criterion", "unit", "executor", "suite", "benchmark",
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	connect := os.Getenv("TEST_REBENCH_DB_URL")
	if connect == "" {
		t.Skip("TEST_REBENCH_DB_URL not set")
	}

	stop := stopper.WithContext(context.Background())
	t.Cleanup(func() { stop.Stop(5 * time.Second) })

	pool, err := stdpool.OpenPgxAsPool(stop, connect)
	require.NoError(t, err)
	database := db.New(pool)
	require.NoError(t, database.InitializeOnce(stop))

	for _, table := range fixtureTables {
		_, err := pool.Exec(stop, "TRUNCATE TABLE "+table+" CASCADE")
		require.NoError(t, err)
	}

	cfg := &timeline.Config{
		Enabled:          true,
		BootstrapSamples: 100,
		BackupPolling:    time.Minute,
		RNG:              rand.New(rand.NewSource(1)),
	}
	require.NoError(t, cfg.Preflight())
	updater := timeline.New(stop, cfg, database)
	require.NoError(t, updater.Recover(stop))

	return &fixture{
		Context:  stop,
		DB:       database,
		Ingester: ingest.New(database, updater, validity.NewHolder(0)),
		Updater:  updater,
	}
}

func (f *fixture) count(t *testing.T, table string) int {
	t.Helper()
	var n int
	require.NoError(t,
		f.DB.Pool().QueryRow(f.Context, "SELECT count(*) FROM "+table).Scan(&n))
	return n
}

// smallPayload builds one project/experiment/run payload with the
// given measurement values at the total criterion.
func smallPayload(commitID, branch string, values ...float64) *api.BenchData {
	points := make([]api.Point, 0, len(values))
	for i, v := range values {
		points = append(points, api.Point{
			Invocation: int32(i + 1),
			Iteration:  1,
			Measures:   []api.MeasureValue{{Criterion: 0, Value: v}},
		})
	}
	return &api.BenchData{
		ProjectName:    "Small Example Project",
		ExperimentName: "Small Test Case",
		StartTime:      "2024-03-07T22:00:00Z",
		Env: api.Environment{
			HostName:   "testhost",
			OSType:     "Linux",
			Memory:     16 << 30,
			CPU:        "Test CPU",
			ClockSpeed: 2_800_000_000,
			UserName:   "tester",
		},
		Source: api.Source{
			RepoURL:        "https://example.org/repo.git",
			BranchOrTag:    branch,
			CommitID:       commitID,
			CommitMsg:      "a commit message",
			AuthorName:     "An Author",
			AuthorEmail:    "author@example.org",
			CommitterName:  "A Committer",
			CommitterEmail: "committer@example.org",
		},
		Criteria: []api.Criterion{{Index: 0, Name: types.TotalCriterion, Unit: "ms"}},
		Data: []api.RunGroup{{
			RunID: api.RunSpec{
				Benchmark: api.BenchmarkSpec{
					Name: "Bench1",
					Suite: api.SuiteSpec{
						Name:     "Suite1",
						Executor: api.ExecutorSpec{Name: "Exec1"},
					},
					RunDetails: api.RunDetails{MaxInvocationTime: 300, MinIterationTime: 50},
				},
				CmdLine:  "exec1 suite1 bench1",
				Location: "benchmarks/",
			},
			Data: points,
		}},
	}
}

func TestRecordSmallPayload(t *testing.T) {
	f := newFixture(t)

	ms, ps, err := f.Ingester.RecordAllData(f.Context, smallPayload("abc123", "main", 1, 2, 3), false)
	require.NoError(t, err)
	require.Equal(t, 3, ms)
	require.Equal(t, 0, ps)

	require.Equal(t, 3, f.count(t, "measurement"))
	for _, table := range []string{
		"project", "experiment", "trial", "run", "source",
		"environment", "criterion", "executor", "suite", "benchmark",
	} {
		require.Equal(t, 1, f.count(t, table), "table %s", table)
	}

	project, err := f.DB.ProjectByName(f.Context, "Small Example Project")
	require.NoError(t, err)
	require.Equal(t, "Small-Example-Project", project.Slug)
	changes, err := f.DB.Changes(f.Context, project)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	require.Equal(t, "abc123", changes[0].CommitID)
}

func TestIngestionIsIdempotent(t *testing.T) {
	f := newFixture(t)

	ms, _, err := f.Ingester.RecordAllData(f.Context, smallPayload("abc123", "main", 1, 2, 3), false)
	require.NoError(t, err)
	require.Equal(t, 3, ms)

	// Interning caches must not mask re-fetch correctness.
	f.DB.ClearCaches()

	ms, ps, err := f.Ingester.RecordAllData(f.Context, smallPayload("abc123", "main", 1, 2, 3), false)
	require.NoError(t, err)
	require.Equal(t, 0, ms)
	require.Equal(t, 0, ps)
	require.Equal(t, 3, f.count(t, "measurement"))
}

func TestConcurrentIngestConverges(t *testing.T) {
	f := newFixture(t)

	g, ctx := errgroup.WithContext(f.Context)
	for i := 0; i < 2; i++ {
		g.Go(func() error {
			_, _, err := f.Ingester.RecordAllData(ctx, smallPayload("abc123", "main", 1, 2, 3), false)
			return err
		})
	}
	require.NoError(t, g.Wait())
	require.Equal(t, 3, f.count(t, "measurement"))
}

func TestTimelineConvergence(t *testing.T) {
	f := newFixture(t)

	// 24 runs with one total-criterion value each yield 24 series.
	payload := smallPayload("abc123", "main")
	payload.Data = nil
	for i := 0; i < 24; i++ {
		group := smallPayload("abc123", "main", float64(i)).Data[0]
		group.RunID.CmdLine = fmt.Sprintf("exec1 suite1 bench%d", i)
		group.RunID.Benchmark.Name = fmt.Sprintf("Bench%d", i)
		payload.Data = append(payload.Data, group)
	}

	ms, _, err := f.Ingester.RecordAllData(f.Context, payload, false)
	require.NoError(t, err)
	require.Equal(t, 24, ms)

	require.NoError(t, f.Updater.AwaitQuiescence(f.Context))
	require.Equal(t, 24, f.count(t, "timeline"))
	require.Equal(t, 0, f.count(t, "timelinecalcjob"))

	// Each series reflects every stored measurement.
	var mismatched int
	require.NoError(t, f.DB.Pool().QueryRow(f.Context, `
SELECT count(*) FROM timeline t
 WHERE t.numsamples <> (
   SELECT count(*) FROM measurement m
    WHERE m.runid = t.runid AND m.trialid = t.trialid AND m.criterion = t.criterion)`,
	).Scan(&mismatched))
	require.Equal(t, 0, mismatched)
}

func TestProfilesAreRecordedOnce(t *testing.T) {
	f := newFixture(t)

	payload := smallPayload("abc123", "main", 1)
	payload.Data[0].Profiles = []api.Profile{
		{Invocation: 1, NumIterations: 1, Data: "raw profile text"},
		{Invocation: 2, NumIterations: 1, Data: map[string]any{"stack": []any{"a", "b"}}},
	}

	_, ps, err := f.Ingester.RecordAllData(f.Context, payload, false)
	require.NoError(t, err)
	require.Equal(t, 2, ps)

	_, ps, err = f.Ingester.RecordAllData(f.Context, payload, false)
	require.NoError(t, err)
	require.Equal(t, 0, ps)
	require.Equal(t, 2, f.count(t, "profiledata"))
}

func TestCompletionSetsEndTime(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.Ingester.RecordAllData(f.Context, smallPayload("abc123", "main", 1), false)
	require.NoError(t, err)

	require.ErrorIs(t, f.Ingester.RecordCompletion(f.Context, &api.BenchCompletion{
		ProjectName:    "Small Example Project",
		ExperimentName: "Small Test Case",
	}), ingest.ErrMissingEndTime)

	require.ErrorIs(t, f.Ingester.RecordCompletion(f.Context, &api.BenchCompletion{
		ProjectName:    "Small Example Project",
		ExperimentName: "does not exist",
		EndTime:        "2024-03-07T23:00:00Z",
	}), ingest.ErrNoSuchExperiment)

	require.NoError(t, f.Ingester.RecordCompletion(f.Context, &api.BenchCompletion{
		ProjectName:    "Small Example Project",
		ExperimentName: "Small Test Case",
		EndTime:        "2024-03-07T23:00:00Z",
	}))
	var open int
	require.NoError(t, f.DB.Pool().QueryRow(f.Context,
		"SELECT count(*) FROM trial WHERE endtime IS NULL").Scan(&open))
	require.Equal(t, 0, open)
}

func TestBaselineCommit(t *testing.T) {
	f := newFixture(t)

	older := smallPayload("maincommit", "main", 1, 2)
	older.StartTime = "2024-03-01T10:00:00Z"
	_, _, err := f.Ingester.RecordAllData(f.Context, older, false)
	require.NoError(t, err)

	feature := smallPayload("featcommit", "feature", 3, 4)
	feature.StartTime = "2024-03-07T10:00:00Z"
	_, _, err = f.Ingester.RecordAllData(f.Context, feature, false)
	require.NoError(t, err)

	project, err := f.DB.ProjectByName(f.Context, "Small Example Project")
	require.NoError(t, err)
	require.NoError(t, f.DB.SetProjectBaseBranch(f.Context, project, "main"))
	project, err = f.DB.ProjectByName(f.Context, "Small Example Project")
	require.NoError(t, err)

	baseline, err := f.DB.GetBaselineCommit(f.Context, project, "featcommit")
	require.NoError(t, err)
	require.NotNil(t, baseline)
	require.Equal(t, "maincommit", baseline.CommitID)

	exists, base, change, err := f.DB.RevisionsExistInProject(
		f.Context, project.Slug, "maincommit", "featcommit")
	require.NoError(t, err)
	require.True(t, exists)
	require.Equal(t, "maincommit", base.CommitID)
	require.Equal(t, "featcommit", change.CommitID)
}

func TestTimelineData(t *testing.T) {
	f := newFixture(t)

	older := smallPayload("maincommit", "main", 1, 2, 3)
	older.StartTime = "2024-03-01T10:00:00Z"
	_, _, err := f.Ingester.RecordAllData(f.Context, older, false)
	require.NoError(t, err)

	feature := smallPayload("featcommit", "feature", 4, 5, 6)
	feature.StartTime = "2024-03-07T10:00:00Z"
	_, _, err = f.Ingester.RecordAllData(f.Context, feature, false)
	require.NoError(t, err)
	require.NoError(t, f.Updater.AwaitQuiescence(f.Context))

	project, err := f.DB.ProjectByName(f.Context, "Small Example Project")
	require.NoError(t, err)

	data, err := f.DB.GetTimelineData(f.Context, project, db.TimelineRequest{
		BaselineCommit: "maincommit",
		ChangeCommit:   "featcommit",
		BaselineBranch: "main",
		ChangeBranch:   "feature",
		Benchmark:      "Bench1",
		Suite:          "Suite1",
		Executor:       "Exec1",
	})
	require.NoError(t, err)
	require.Len(t, data.Timestamps, 2)
	require.NotNil(t, data.BaselineIndex)
	require.NotNil(t, data.ChangeIndex)
	require.Equal(t, 2.0, data.BaselineMedian[*data.BaselineIndex])
	require.Equal(t, 5.0, data.ChangeMedian[*data.ChangeIndex])

	baseOnly, err := f.DB.GetTimelineData(f.Context, project, db.TimelineRequest{
		BaselineCommit: "maincommit",
		BaselineBranch: "main",
		Benchmark:      "Bench1",
		Suite:          "Suite1",
		Executor:       "Exec1",
	})
	require.NoError(t, err)
	require.Len(t, baseOnly.Timestamps, 1)
	require.Nil(t, baseOnly.ChangeMedian)
}
