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

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// schema is executed in one round-trip when the database has not been
// initialized yet. The uniqueness constraints here are load-bearing:
// the ingest path relies on them to detect concurrent insertion.
const schema = `
CREATE TABLE environment (
  id serial primary key,
  hostname varchar unique,
  ostype varchar,
  memory bigint,
  cpu varchar,
  clockspeed bigint
);

CREATE TABLE unit (
  name varchar primary key
);

CREATE TABLE criterion (
  id serial primary key,
  name varchar,
  unit varchar references unit (name),
  unique (name, unit)
);

CREATE TABLE project (
  id serial primary key,
  name varchar unique,
  slug varchar unique,
  description text,
  showchanges bool DEFAULT true,
  allresults bool DEFAULT false,
  basebranch varchar
);

CREATE TABLE experiment (
  id serial primary key,
  name varchar NOT NULL,
  projectid smallint references project (id),
  description text,
  unique (projectid, name)
);

CREATE TABLE source (
  id serial primary key,
  repourl varchar,
  branchortag varchar,
  commitid varchar unique,
  commitmessage text,
  authorname varchar,
  authoremail varchar,
  committername varchar,
  committeremail varchar
);

CREATE TABLE trial (
  id serial primary key,
  manualrun bool,
  starttime timestamptz,
  expid smallint references experiment (id),
  username varchar,
  envid smallint references environment (id),
  sourceid smallint references source (id),
  denoise text,
  endtime timestamptz,
  unique (username, envid, starttime, expid)
);

CREATE TABLE executor (
  id serial primary key,
  name varchar unique,
  description text
);

CREATE TABLE suite (
  id serial primary key,
  name varchar unique,
  description text
);

CREATE TABLE benchmark (
  id serial primary key,
  name varchar unique,
  description text
);

CREATE TABLE run (
  id serial primary key,
  benchmarkid smallint references benchmark (id),
  suiteid smallint references suite (id),
  execid smallint references executor (id),
  cmdline text unique,
  location text,
  varvalue varchar,
  cores varchar,
  inputsize varchar,
  extraargs varchar,
  maxinvocationtime int,
  miniterationtime int,
  warmup int
);

CREATE TABLE measurement (
  runid smallint references run (id),
  trialid smallint references trial (id),
  criterion smallint references criterion (id),
  invocation smallint,
  iteration smallint,
  value float8 NOT NULL,
  primary key (runid, trialid, criterion, invocation, iteration)
);

CREATE TABLE profiledata (
  runid smallint references run (id),
  trialid smallint references trial (id),
  invocation smallint,
  numiterations smallint,
  value text NOT NULL,
  primary key (runid, trialid, invocation, numiterations)
);

CREATE TABLE timeline (
  runid smallint references run (id),
  trialid smallint references trial (id),
  criterion smallint references criterion (id),
  minval float8,
  maxval float8,
  sdval float8,
  mean float8,
  median float8,
  numsamples int,
  bci95low float8,
  bci95up float8,
  primary key (runid, trialid, criterion)
);

CREATE TABLE timelinecalcjob (
  trialid smallint,
  runid smallint,
  criterion smallint,
  primary key (trialid, runid, criterion)
);
`

// $1 = lower-cased table name
const tableExistsQuery = `
SELECT count(*) FROM information_schema.tables
 WHERE lower(table_name) = $1 AND table_schema = current_schema()`

// InitializeOnce creates the schema if the executor table is not
// present. It is safe to call on every startup.
func (d *DB) InitializeOnce(ctx context.Context) error {
	var count int
	if err := d.pool.QueryRow(ctx, tableExistsQuery, "executor").Scan(&count); err != nil {
		return errors.Wrap(err, "could not check for initialized schema")
	}
	if count > 0 {
		return nil
	}
	log.Info("initializing database schema")
	if _, err := d.pool.Exec(ctx, schema); err != nil {
		return errors.Wrap(err, "could not initialize schema")
	}
	return nil
}
