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

// Statement texts are package constants so that pgx's statement cache
// sees one stable text (and thus one prepared plan) per statement for
// the lifetime of the process.

// $1 = hostname
const fetchEnvironment = `
SELECT id, hostname, ostype, memory, cpu, clockspeed
  FROM environment WHERE hostname = $1`

// $1 = hostname, $2 = ostype, $3 = memory, $4 = cpu, $5 = clockspeed
const insertEnvironment = `
INSERT INTO environment (hostname, ostype, memory, cpu, clockspeed)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, hostname, ostype, memory, cpu, clockspeed`

// $1 = name
const fetchProject = `
SELECT id, name, slug, description, showchanges, allresults, basebranch
  FROM project WHERE name = $1`

// $1 = name, $2 = slug
const insertProject = `
INSERT INTO project (name, slug)
VALUES ($1, $2)
RETURNING id, name, slug, description, showchanges, allresults, basebranch`

// $1 = slug
const fetchProjectBySlug = `
SELECT id, name, slug, description, showchanges, allresults, basebranch
  FROM project WHERE lower(slug) = lower($1)`

// $1 = projectid, $2 = basebranch
const updateProjectBaseBranch = `
UPDATE project SET basebranch = $2 WHERE id = $1`

// $1 = projectid, $2 = name
const fetchExperiment = `
SELECT id, name, projectid, description
  FROM experiment WHERE projectid = $1 AND name = $2`

// $1 = projectid, $2 = name, $3 = description
const insertExperiment = `
INSERT INTO experiment (projectid, name, description)
VALUES ($1, $2, $3)
RETURNING id, name, projectid, description`

// $1 = commitid
const fetchSource = `
SELECT id, repourl, branchortag, commitid, commitmessage,
       authorname, authoremail, committername, committeremail
  FROM source WHERE commitid = $1`

// $1 = repourl, $2 = branchortag, $3 = commitid, $4 = commitmessage,
// $5 = authorname, $6 = authoremail, $7 = committername, $8 = committeremail
const insertSource = `
INSERT INTO source (repourl, branchortag, commitid, commitmessage,
                    authorname, authoremail, committername, committeremail)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id, repourl, branchortag, commitid, commitmessage,
          authorname, authoremail, committername, committeremail`

// $1 = username, $2 = envid, $3 = starttime, $4 = expid
const fetchTrial = `
SELECT id, manualrun, starttime, expid, username, envid, sourceid, denoise, endtime
  FROM trial
 WHERE username = $1 AND envid = $2 AND starttime = $3 AND expid = $4`

// $1 = manualrun, $2 = starttime, $3 = expid, $4 = username,
// $5 = envid, $6 = sourceid, $7 = denoise
const insertTrial = `
INSERT INTO trial (manualrun, starttime, expid, username, envid, sourceid, denoise)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id, manualrun, starttime, expid, username, envid, sourceid, denoise, endtime`

// $1 = name
const fetchExecutor = `
SELECT id, name, description FROM executor WHERE name = $1`

// $1 = name, $2 = description
const insertExecutor = `
INSERT INTO executor (name, description)
VALUES ($1, $2)
RETURNING id, name, description`

// $1 = name
const fetchSuite = `
SELECT id, name, description FROM suite WHERE name = $1`

// $1 = name, $2 = description
const insertSuite = `
INSERT INTO suite (name, description)
VALUES ($1, $2)
RETURNING id, name, description`

// $1 = name
const fetchBenchmark = `
SELECT id, name, description FROM benchmark WHERE name = $1`

// $1 = name, $2 = description
const insertBenchmark = `
INSERT INTO benchmark (name, description)
VALUES ($1, $2)
RETURNING id, name, description`

// $1 = name
const insertUnit = `
INSERT INTO unit (name) VALUES ($1) ON CONFLICT DO NOTHING`

// $1 = name, $2 = unit
const fetchCriterion = `
SELECT id, name, unit FROM criterion WHERE name = $1 AND unit = $2`

// $1 = name, $2 = unit
const insertCriterion = `
INSERT INTO criterion (name, unit)
VALUES ($1, $2)
RETURNING id, name, unit`

// $1 = cmdline
const fetchRun = `
SELECT id, benchmarkid, suiteid, execid, cmdline, location, varvalue,
       cores, inputsize, extraargs, maxinvocationtime, miniterationtime, warmup
  FROM run WHERE cmdline = $1`

// $1 = benchmarkid, $2 = suiteid, $3 = execid, $4 = cmdline,
// $5 = location, $6 = varvalue, $7 = cores, $8 = inputsize,
// $9 = extraargs, $10 = maxinvocationtime, $11 = miniterationtime,
// $12 = warmup
const insertRun = `
INSERT INTO run (benchmarkid, suiteid, execid, cmdline, location, varvalue,
                 cores, inputsize, extraargs, maxinvocationtime,
                 miniterationtime, warmup)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING id, benchmarkid, suiteid, execid, cmdline, location, varvalue,
          cores, inputsize, extraargs, maxinvocationtime, miniterationtime, warmup`

// The dedup oracle for one trial: for every (run, criterion,
// invocation) that already holds data, the largest recorded iteration.
//
// $1 = trialid
const availableMeasurements = `
SELECT runid, criterion, invocation, max(iteration)
  FROM measurement
 WHERE trialid = $1
 GROUP BY runid, criterion, invocation`

// $1 = runid, $2 = trialid, $3 = invocation, $4 = numiterations, $5 = value
const insertProfile = `
INSERT INTO profiledata (runid, trialid, invocation, numiterations, value)
VALUES ($1, $2, $3, $4, $5)`

// $1 = expid, $2 = endtime
const completeTrials = `
UPDATE trial SET endtime = $2 WHERE expid = $1 AND endtime IS NULL`

// $1 = trialid, $2 = runid, $3 = criterion
const insertTimelineJob = `
INSERT INTO timelinecalcjob (trialid, runid, criterion)
VALUES ($1, $2, $3)
ON CONFLICT DO NOTHING`

const selectTimelineJobs = `
SELECT trialid, runid, criterion FROM timelinecalcjob`

// $1 = trialid, $2 = runid, $3 = criterion
const deleteTimelineJob = `
DELETE FROM timelinecalcjob
 WHERE trialid = $1 AND runid = $2 AND criterion = $3`

// $1 = runid, $2 = trialid, $3 = criterion
const selectMeasurementSample = `
SELECT value FROM measurement
 WHERE runid = $1 AND trialid = $2 AND criterion = $3
 ORDER BY invocation, iteration`

// $1..$3 = key, $4..$11 = statistics
const upsertTimeline = `
INSERT INTO timeline (runid, trialid, criterion, minval, maxval, sdval,
                      mean, median, numsamples, bci95low, bci95up)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (runid, trialid, criterion) DO UPDATE
  SET minval = EXCLUDED.minval,
      maxval = EXCLUDED.maxval,
      sdval = EXCLUDED.sdval,
      mean = EXCLUDED.mean,
      median = EXCLUDED.median,
      numsamples = EXCLUDED.numsamples,
      bci95low = EXCLUDED.bci95low,
      bci95up = EXCLUDED.bci95up`
