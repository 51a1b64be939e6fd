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

// Package types contains data types and interfaces that define the
// major functional blocks of the service. Placing them here makes it
// easy to compose functionality without import cycles.
package types

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TotalCriterion is the distinguished criterion name whose values drive
// timeline aggregation. The literal also appears in SQL statements.
const TotalCriterion = "total"

// Querier is implemented by pgxpool.Pool, pgxpool.Conn, pgxpool.Tx,
// pgx.Conn, and pgx.Tx types. This allows a degree of flexibility in
// defining types that require a database connection.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...interface{}) pgx.Row
}

var (
	_ Querier = (*pgxpool.Conn)(nil)
	_ Querier = (*pgxpool.Pool)(nil)
	_ Querier = (*pgxpool.Tx)(nil)
	_ Querier = (*pgx.Conn)(nil)
	_ Querier = (pgx.Tx)(nil)
)

// PoolInfo describes a database connection pool and what it's
// connected to.
type PoolInfo struct {
	ConnectionString string
	Version          string
}

// Info returns the PoolInfo when embedded.
func (i *PoolInfo) Info() *PoolInfo { return i }

// Pool is an injection point for the connection to the database.
type Pool struct {
	*pgxpool.Pool
	PoolInfo
	_ noCopy
}

// A Project groups experiments under a user-visible name. The Slug is
// derived from the name and used in URLs.
type Project struct {
	ID          int32
	Name        string
	Slug        string
	Description *string
	ShowChanges bool
	AllResults  bool
	BaseBranch  *string
}

// An Experiment is a named campaign within a project.
type Experiment struct {
	ID          int32
	ProjectID   int32
	Name        string
	Description *string
}

// A Source identifies the commit a trial ran against. CommitMessage is
// stored already filtered.
type Source struct {
	ID             int32
	RepoURL        string
	BranchOrTag    string
	CommitID       string
	CommitMessage  string
	AuthorName     string
	AuthorEmail    string
	CommitterName  string
	CommitterEmail string
}

// An Environment describes the machine a trial ran on, unique by
// hostname.
type Environment struct {
	ID         int32
	HostName   string
	OSType     string
	Memory     int64
	CPU        string
	ClockSpeed int64
}

// A Trial is a single execution session of runs by a user on an
// environment. EndTime is set on completion.
type Trial struct {
	ID        int32
	ManualRun bool
	StartTime time.Time
	ExpID     int32
	Username  string
	EnvID     int32
	SourceID  int32
	Denoise   string
	EndTime   *time.Time
}

// Executor, Suite, and Benchmark are interned by name.
type Executor struct {
	ID          int32
	Name        string
	Description *string
}

// Suite is a named collection of benchmarks.
type Suite struct {
	ID          int32
	Name        string
	Description *string
}

// Benchmark is a single benchmark program.
type Benchmark struct {
	ID          int32
	Name        string
	Description *string
}

// A Criterion is a named measurement dimension with a unit.
type Criterion struct {
	ID   int32
	Name string
	Unit string
}

// A Run is an invocable benchmark configuration, keyed by its full
// command line.
type Run struct {
	ID                int32
	CmdLine           string
	BenchmarkID       int32
	SuiteID           int32
	ExecutorID        int32
	Location          string
	Cores             *string
	VarValue          *string
	InputSize         *string
	ExtraArgs         *string
	MaxInvocationTime int32
	MinIterationTime  int32
	Warmup            *int32
}

// A Measurement is one recorded value for a criterion during a
// specific invocation/iteration of a run within a trial.
type Measurement struct {
	RunID       int32
	TrialID     int32
	CriterionID int32
	Invocation  int32
	Iteration   int32
	Value       float64
}

// TimelineKey identifies one timeline series and one pending
// recomputation job.
type TimelineKey struct {
	TrialID     int32
	RunID       int32
	CriterionID int32
}

// A TimelineEntry is the summary-statistics row maintained per
// (run, trial, criterion).
type TimelineEntry struct {
	RunID       int32
	TrialID     int32
	CriterionID int32
	Min         float64
	Max         float64
	StdDev      float64
	Mean        float64
	Median      float64
	NumSamples  int32
	BCI95Low    float64
	BCI95Up     float64
}

// TimelineStore is the durable side of the timeline updater: the job
// queue, the authoritative measurement sample, and the summary rows.
type TimelineStore interface {
	// PersistTimelineJobs records the keys in the durable job queue so
	// a crashed process can resume. Writing a key is idempotent.
	PersistTimelineJobs(ctx context.Context, keys []TimelineKey) error

	// LoadTimelineJobs returns every persisted job key.
	LoadTimelineJobs(ctx context.Context) ([]TimelineKey, error)

	// MeasurementSample returns all measurement values for the key's
	// (run, trial, criterion) triple.
	MeasurementSample(ctx context.Context, key TimelineKey) ([]float64, error)

	// UpsertTimeline stores the summary row, replacing any previous
	// row for the same key.
	UpsertTimeline(ctx context.Context, e TimelineEntry) error

	// DeleteTimelineJob removes the key from the durable job queue.
	DeleteTimelineJob(ctx context.Context, key TimelineKey) error
}

type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
