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

// Package db persists benchmark metadata, measurements, and timeline
// statistics in PostgreSQL. Metadata entities are interned through
// in-process caches that stay consistent under concurrent ingesters.
package db

import (
	"context"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/naomiGrew/ReBenchDB/internal/types"
)

// DB is the persistence adapter. A single instance is constructed at
// startup and shared by every request; all mutable state lives in the
// caches, never in package globals.
type DB struct {
	pool *types.Pool

	caches struct {
		environments cache[types.Environment]
		projects     cache[types.Project]
		experiments  cache[types.Experiment]
		sources      cache[types.Source]
		trials       cache[types.Trial]
		executors    cache[types.Executor]
		suites       cache[types.Suite]
		benchmarks   cache[types.Benchmark]
		units        cache[struct{}]
		criteria     cache[types.Criterion]
		runs         cache[types.Run]
	}
}

// New constructs the adapter around an open pool.
func New(pool *types.Pool) *DB {
	return &DB{pool: pool}
}

// Pool exposes the underlying connection pool.
func (d *DB) Pool() *types.Pool { return d.pool }

// ClearCaches drops every interned row. Intended for tests.
func (d *DB) ClearCaches() {
	d.caches.environments.clear()
	d.caches.projects.clear()
	d.caches.experiments.clear()
	d.caches.sources.clear()
	d.caches.trials.clear()
	d.caches.executors.clear()
	d.caches.suites.clear()
	d.caches.benchmarks.clear()
	d.caches.units.clear()
	d.caches.criteria.clear()
	d.caches.runs.clear()
}

func scanEnvironment(row pgx.Row) (types.Environment, error) {
	var e types.Environment
	err := row.Scan(&e.ID, &e.HostName, &e.OSType, &e.Memory, &e.CPU, &e.ClockSpeed)
	return e, err
}

// RecordEnvironment interns the environment row for the hostname.
func (d *DB) RecordEnvironment(
	ctx context.Context, hostName, osType string, memory int64, cpu string, clockSpeed int64,
) (types.Environment, error) {
	return recordCached(ctx, d, &d.caches.environments, hostName, scanEnvironment,
		fetchEnvironment, []any{hostName},
		insertEnvironment, []any{hostName, osType, memory, cpu, clockSpeed})
}

func scanProject(row pgx.Row) (types.Project, error) {
	var p types.Project
	err := row.Scan(&p.ID, &p.Name, &p.Slug, &p.Description,
		&p.ShowChanges, &p.AllResults, &p.BaseBranch)
	return p, err
}

// RecordProject interns the project row for the name. The URL slug is
// derived from the name on first insertion.
func (d *DB) RecordProject(ctx context.Context, name string) (types.Project, error) {
	return recordCached(ctx, d, &d.caches.projects, name, scanProject,
		fetchProject, []any{name},
		insertProject, []any{name, Slug(name)})
}

// ProjectByName loads a project without creating it. The caller
// decides how to surface pgx.ErrNoRows.
func (d *DB) ProjectByName(ctx context.Context, name string) (types.Project, error) {
	if p, ok := d.caches.projects.get(name); ok {
		return p, nil
	}
	return scanProject(d.pool.QueryRow(ctx, fetchProject, name))
}

// ProjectBySlug loads a project by its URL slug. Slugs are not
// interned: this is a read-side lookup only.
func (d *DB) ProjectBySlug(ctx context.Context, slug string) (types.Project, error) {
	return scanProject(d.pool.QueryRow(ctx, fetchProjectBySlug, slug))
}

// SetProjectBaseBranch designates the branch that supplies baseline
// data for comparisons.
func (d *DB) SetProjectBaseBranch(ctx context.Context, p types.Project, branch string) error {
	_, err := d.pool.Exec(ctx, updateProjectBaseBranch, p.ID, branch)
	if err == nil {
		p.BaseBranch = &branch
		d.caches.projects.put(p.Name, p)
	}
	return err
}

func scanExperiment(row pgx.Row) (types.Experiment, error) {
	var e types.Experiment
	err := row.Scan(&e.ID, &e.Name, &e.ProjectID, &e.Description)
	return e, err
}

// RecordExperiment interns the experiment row for (project, name).
func (d *DB) RecordExperiment(
	ctx context.Context, project types.Project, name string, description *string,
) (types.Experiment, error) {
	key := cacheKey(strconv.Itoa(int(project.ID)), name)
	return recordCached(ctx, d, &d.caches.experiments, key, scanExperiment,
		fetchExperiment, []any{project.ID, name},
		insertExperiment, []any{project.ID, name, description})
}

func scanSource(row pgx.Row) (types.Source, error) {
	var s types.Source
	err := row.Scan(&s.ID, &s.RepoURL, &s.BranchOrTag, &s.CommitID, &s.CommitMessage,
		&s.AuthorName, &s.AuthorEmail, &s.CommitterName, &s.CommitterEmail)
	return s, err
}

// RecordSource interns the source row for the commit. The commit
// message is filtered before it is stored.
func (d *DB) RecordSource(ctx context.Context, s types.Source) (types.Source, error) {
	msg := FilterCommitMessage(s.CommitMessage)
	return recordCached(ctx, d, &d.caches.sources, s.CommitID, scanSource,
		fetchSource, []any{s.CommitID},
		insertSource, []any{s.RepoURL, s.BranchOrTag, s.CommitID, msg,
			s.AuthorName, s.AuthorEmail, s.CommitterName, s.CommitterEmail})
}

func scanTrial(row pgx.Row) (types.Trial, error) {
	var t types.Trial
	err := row.Scan(&t.ID, &t.ManualRun, &t.StartTime, &t.ExpID, &t.Username,
		&t.EnvID, &t.SourceID, &t.Denoise, &t.EndTime)
	return t, err
}

// RecordTrial interns the trial row for its composite key
// (username, environment, start time, experiment).
func (d *DB) RecordTrial(
	ctx context.Context,
	manualRun bool,
	startTime time.Time,
	exp types.Experiment,
	username string,
	env types.Environment,
	source types.Source,
	denoise string,
) (types.Trial, error) {
	key := cacheKey(username, strconv.Itoa(int(env.ID)),
		startTime.UTC().Format(time.RFC3339Nano), strconv.Itoa(int(exp.ID)))
	return recordCached(ctx, d, &d.caches.trials, key, scanTrial,
		fetchTrial, []any{username, env.ID, startTime, exp.ID},
		insertTrial, []any{manualRun, startTime, exp.ID, username, env.ID, source.ID, denoise})
}

func scanExecutor(row pgx.Row) (types.Executor, error) {
	var e types.Executor
	err := row.Scan(&e.ID, &e.Name, &e.Description)
	return e, err
}

// RecordExecutor interns the executor row for the name.
func (d *DB) RecordExecutor(ctx context.Context, name string, description *string) (types.Executor, error) {
	return recordCached(ctx, d, &d.caches.executors, name, scanExecutor,
		fetchExecutor, []any{name},
		insertExecutor, []any{name, description})
}

func scanSuite(row pgx.Row) (types.Suite, error) {
	var s types.Suite
	err := row.Scan(&s.ID, &s.Name, &s.Description)
	return s, err
}

// RecordSuite interns the suite row for the name.
func (d *DB) RecordSuite(ctx context.Context, name string, description *string) (types.Suite, error) {
	return recordCached(ctx, d, &d.caches.suites, name, scanSuite,
		fetchSuite, []any{name},
		insertSuite, []any{name, description})
}

func scanBenchmark(row pgx.Row) (types.Benchmark, error) {
	var b types.Benchmark
	err := row.Scan(&b.ID, &b.Name, &b.Description)
	return b, err
}

// RecordBenchmark interns the benchmark row for the name.
func (d *DB) RecordBenchmark(ctx context.Context, name string, description *string) (types.Benchmark, error) {
	return recordCached(ctx, d, &d.caches.benchmarks, name, scanBenchmark,
		fetchBenchmark, []any{name},
		insertBenchmark, []any{name, description})
}

// RecordUnit ensures the unit row exists. Units carry no payload
// beyond their name, so the cache only remembers the insert happened.
func (d *DB) RecordUnit(ctx context.Context, name string) error {
	if _, ok := d.caches.units.get(name); ok {
		return nil
	}
	if _, err := d.pool.Exec(ctx, insertUnit, name); err != nil {
		return err
	}
	d.caches.units.put(name, struct{}{})
	return nil
}

func scanCriterion(row pgx.Row) (types.Criterion, error) {
	var c types.Criterion
	err := row.Scan(&c.ID, &c.Name, &c.Unit)
	return c, err
}

// RecordCriterion interns the criterion row for (name, unit). The unit
// row is created first to satisfy the foreign key.
func (d *DB) RecordCriterion(ctx context.Context, name, unit string) (types.Criterion, error) {
	if err := d.RecordUnit(ctx, unit); err != nil {
		return types.Criterion{}, err
	}
	return recordCached(ctx, d, &d.caches.criteria, cacheKey(name, unit), scanCriterion,
		fetchCriterion, []any{name, unit},
		insertCriterion, []any{name, unit})
}

func scanRun(row pgx.Row) (types.Run, error) {
	var r types.Run
	err := row.Scan(&r.ID, &r.BenchmarkID, &r.SuiteID, &r.ExecutorID, &r.CmdLine,
		&r.Location, &r.VarValue, &r.Cores, &r.InputSize, &r.ExtraArgs,
		&r.MaxInvocationTime, &r.MinIterationTime, &r.Warmup)
	return r, err
}

// ExperimentByName loads an experiment without creating it. The
// caller decides how to surface pgx.ErrNoRows.
func (d *DB) ExperimentByName(
	ctx context.Context, project types.Project, name string,
) (types.Experiment, error) {
	return scanExperiment(d.pool.QueryRow(ctx, fetchExperiment, project.ID, name))
}

// CompleteTrials sets the end time of every open trial of the
// experiment and returns how many rows were closed.
func (d *DB) CompleteTrials(ctx context.Context, exp types.Experiment, endTime time.Time) (int64, error) {
	tag, err := d.pool.Exec(ctx, completeTrials, exp.ID, endTime)
	if err != nil {
		return 0, err
	}
	// Cached trial rows may now carry a stale nil EndTime; they are
	// keyed for ingest dedup only, so the staleness is harmless.
	return tag.RowsAffected(), nil
}

// RecordRun interns the run row for the command line. The caller has
// already interned the executor, suite, and benchmark leaves.
func (d *DB) RecordRun(ctx context.Context, r types.Run) (types.Run, error) {
	return recordCached(ctx, d, &d.caches.runs, r.CmdLine, scanRun,
		fetchRun, []any{r.CmdLine},
		insertRun, []any{r.BenchmarkID, r.SuiteID, r.ExecutorID, r.CmdLine,
			r.Location, r.VarValue, r.Cores, r.InputSize, r.ExtraArgs,
			r.MaxInvocationTime, r.MinIterationTime, r.Warmup})
}
