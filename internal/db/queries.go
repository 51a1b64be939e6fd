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
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/naomiGrew/ReBenchDB/internal/types"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// $1 = project slug, $2 = commitid
const fetchSourceInProject = `
SELECT DISTINCT src.id, src.repourl, src.branchortag, src.commitid, src.commitmessage,
       src.authorname, src.authoremail, src.committername, src.committeremail
  FROM source src
  JOIN trial tr ON tr.sourceid = src.id
  JOIN experiment exp ON exp.id = tr.expid
  JOIN project p ON p.id = exp.projectid
 WHERE lower(p.slug) = lower($1) AND src.commitid = $2`

// RevisionsExistInProject reports whether both commits have recorded
// trials in the project and, if so, returns their source rows.
func (d *DB) RevisionsExistInProject(
	ctx context.Context, projectSlug, base, change string,
) (bool, *types.Source, *types.Source, error) {
	baseSrc, err := scanSource(d.pool.QueryRow(ctx, fetchSourceInProject, projectSlug, base))
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil, nil, nil
	}
	if err != nil {
		return false, nil, nil, errors.WithStack(err)
	}
	changeSrc, err := scanSource(d.pool.QueryRow(ctx, fetchSourceInProject, projectSlug, change))
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil, nil, nil
	}
	if err != nil {
		return false, nil, nil, errors.WithStack(err)
	}
	return true, &baseSrc, &changeSrc, nil
}

// $1 = projectid, $2 = basebranch, $3 = excluded commitid
const fetchBaselineCommit = `
SELECT src.id, src.repourl, src.branchortag, src.commitid, src.commitmessage,
       src.authorname, src.authoremail, src.committername, src.committeremail
  FROM source src
  JOIN trial tr ON tr.sourceid = src.id
  JOIN experiment exp ON exp.id = tr.expid
 WHERE exp.projectid = $1
   AND src.branchortag = $2
   AND src.commitid <> $3
 ORDER BY tr.starttime DESC
 LIMIT 1`

// GetBaselineCommit returns the most recent source on the project's
// base branch other than the given commit, or nil if the project has
// no base branch or no such commit.
func (d *DB) GetBaselineCommit(
	ctx context.Context, project types.Project, currentCommit string,
) (*types.Source, error) {
	if project.BaseBranch == nil {
		return nil, nil
	}
	src, err := scanSource(d.pool.QueryRow(ctx, fetchBaselineCommit,
		project.ID, *project.BaseBranch, currentCommit))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &src, nil
}

// TimelineRequest selects one timeline series. The four pointer fields
// are optional filters; a nil filter matches every run.
type TimelineRequest struct {
	// Commits to highlight in the result.
	BaselineCommit string
	ChangeCommit   string

	// Branches whose series are requested. An empty ChangeBranch
	// requests the baseline series only.
	BaselineBranch string
	ChangeBranch   string

	Benchmark string
	Suite     string
	Executor  string

	VarValue  *string
	Cores     *string
	InputSize *string
	ExtraArgs *string
}

// PlotData is the columnar result of a timeline query. All slices
// share the Timestamps index; a series that has no value at an index
// holds NaN there. The Change columns are nil when only the baseline
// branch was requested, giving the 4-column baseline shape versus the
// 7-column comparison shape.
type PlotData struct {
	Timestamps []int64

	BaselineMedian   []float64
	BaselineBCI95Low []float64
	BaselineBCI95Up  []float64

	ChangeMedian   []float64
	ChangeBCI95Low []float64
	ChangeBCI95Up  []float64

	// Positions of the requested commits, identified by isCurrent in
	// the underlying query; nil when the commit has no timeline row.
	BaselineIndex *int
	ChangeIndex   *int
}

const timelineDataBase = `
SELECT tr.starttime, src.branchortag, src.commitid IN ($1, $2) AS iscurrent,
       src.commitid, t.median, t.bci95low, t.bci95up
  FROM timeline t
  JOIN trial tr ON tr.id = t.trialid
  JOIN source src ON src.id = tr.sourceid
  JOIN run r ON r.id = t.runid
  JOIN criterion c ON c.id = t.criterion
  JOIN benchmark b ON b.id = r.benchmarkid
  JOIN suite s ON s.id = r.suiteid
  JOIN executor e ON e.id = r.execid
  JOIN experiment exp ON exp.id = tr.expid
 WHERE exp.projectid = $3
   AND c.name = 'total'
   AND b.name = $4 AND s.name = $5 AND e.name = $6
   AND src.branchortag IN ($7, $8)`

// timelineDataSQL appends the optional filters by position. The
// returned name encodes which filters are present; because the
// statement text is unique per filter shape, the driver caches one
// prepared plan per shape.
func timelineDataSQL(req *TimelineRequest, args []any) (string, string, []any) {
	var sb strings.Builder
	sb.WriteString(timelineDataBase)
	name := "timelineData"

	appendFilter := func(tag, column string, value *string) {
		if value == nil {
			return
		}
		args = append(args, *value)
		sb.WriteString(" AND ")
		sb.WriteString(column)
		sb.WriteString(" = $")
		sb.WriteString(strconv.Itoa(len(args)))
		name += ":" + tag
	}
	appendFilter("v", "r.varvalue", req.VarValue)
	appendFilter("c", "r.cores", req.Cores)
	appendFilter("i", "r.inputsize", req.InputSize)
	appendFilter("ea", "r.extraargs", req.ExtraArgs)

	sb.WriteString(" ORDER BY tr.starttime")
	return name, sb.String(), args
}

// GetTimelineData answers a timeline query for the project, packaging
// the rows into columnar PlotData ordered by trial start time.
func (d *DB) GetTimelineData(
	ctx context.Context, project types.Project, req TimelineRequest,
) (*PlotData, error) {
	changeRequested := req.ChangeBranch != ""
	changeBranch := req.ChangeBranch
	if !changeRequested {
		// IN ($7, $8) with both params equal degenerates to the
		// baseline branch alone.
		changeBranch = req.BaselineBranch
	}

	args := []any{req.BaselineCommit, req.ChangeCommit, project.ID,
		req.Benchmark, req.Suite, req.Executor, req.BaselineBranch, changeBranch}
	name, sql, args := timelineDataSQL(&req, args)
	log.WithFields(log.Fields{
		"project":   project.Slug,
		"statement": name,
	}).Trace("timeline query")

	rows, err := d.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rows.Close()

	ret := &PlotData{}
	for rows.Next() {
		var startTime time.Time
		var branch, commitID string
		var isCurrent bool
		var median, low, up float64
		if err := rows.Scan(&startTime, &branch, &isCurrent, &commitID, &median, &low, &up); err != nil {
			return nil, errors.WithStack(err)
		}

		idx := len(ret.Timestamps)
		ret.Timestamps = append(ret.Timestamps, startTime.Unix())
		onBaseline := branch == req.BaselineBranch
		if onBaseline {
			ret.BaselineMedian = append(ret.BaselineMedian, median)
			ret.BaselineBCI95Low = append(ret.BaselineBCI95Low, low)
			ret.BaselineBCI95Up = append(ret.BaselineBCI95Up, up)
		} else {
			ret.BaselineMedian = append(ret.BaselineMedian, math.NaN())
			ret.BaselineBCI95Low = append(ret.BaselineBCI95Low, math.NaN())
			ret.BaselineBCI95Up = append(ret.BaselineBCI95Up, math.NaN())
		}
		if changeRequested {
			if onBaseline {
				ret.ChangeMedian = append(ret.ChangeMedian, math.NaN())
				ret.ChangeBCI95Low = append(ret.ChangeBCI95Low, math.NaN())
				ret.ChangeBCI95Up = append(ret.ChangeBCI95Up, math.NaN())
			} else {
				ret.ChangeMedian = append(ret.ChangeMedian, median)
				ret.ChangeBCI95Low = append(ret.ChangeBCI95Low, low)
				ret.ChangeBCI95Up = append(ret.ChangeBCI95Up, up)
			}
		}
		if isCurrent {
			i := idx
			if commitID == req.BaselineCommit {
				ret.BaselineIndex = &i
			} else {
				ret.ChangeIndex = &i
			}
		}
	}
	return ret, errors.WithStack(rows.Err())
}

// TableStat is one row of the dashboard statistics.
type TableStat struct {
	Table string
	Count int64
}

// statsTables is the fixed set of tables reported by Stats. The names
// are compile-time constants, never user input.
var statsTables = []string{
	"measurement", "profiledata", "timeline", "run", "trial",
	"experiment", "project", "source", "environment", "criterion",
	"executor", "suite", "benchmark",
}

// Stats reports the row count of every core table.
func (d *DB) Stats(ctx context.Context) ([]TableStat, error) {
	ret := make([]TableStat, 0, len(statsTables))
	for _, table := range statsTables {
		var count int64
		if err := d.pool.QueryRow(ctx, "SELECT count(*) FROM "+table).Scan(&count); err != nil {
			return nil, errors.Wrapf(err, "counting %s", table)
		}
		ret = append(ret, TableStat{Table: table, Count: count})
	}
	return ret, nil
}

// Change is one commit with recorded trials in a project.
type Change struct {
	CommitID      string
	BranchOrTag   string
	CommitMessage string
	LastTrial     time.Time
}

// $1 = projectid
const fetchChanges = `
SELECT src.commitid, src.branchortag, src.commitmessage, max(tr.starttime) AS last
  FROM source src
  JOIN trial tr ON tr.sourceid = src.id
  JOIN experiment exp ON exp.id = tr.expid
 WHERE exp.projectid = $1
 GROUP BY src.commitid, src.branchortag, src.commitmessage
 ORDER BY last DESC`

// Changes lists the distinct commits of a project, most recent first.
func (d *DB) Changes(ctx context.Context, project types.Project) ([]Change, error) {
	rows, err := d.pool.Query(ctx, fetchChanges, project.ID)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rows.Close()

	var ret []Change
	for rows.Next() {
		var c Change
		if err := rows.Scan(&c.CommitID, &c.BranchOrTag, &c.CommitMessage, &c.LastTrial); err != nil {
			return nil, errors.WithStack(err)
		}
		ret = append(ret, c)
	}
	return ret, errors.WithStack(rows.Err())
}
