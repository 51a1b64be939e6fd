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

// Package stdpool creates standardized database connection pools.
package stdpool

import (
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/naomiGrew/ReBenchDB/internal/types"
	"github.com/naomiGrew/ReBenchDB/internal/util/stopper"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// OpenPgxAsPool opens a pgx connection pool against the given
// connection string. The pool is closed when the stopper begins
// stopping. Connections that fail because the database is still
// starting up are retried until the context is canceled.
func OpenPgxAsPool(ctx *stopper.Context, connectString string) (*types.Pool, error) {
	cfg, err := pgxpool.ParseConfig(connectString)
	if err != nil {
		return nil, errors.Wrap(err, "could not parse connection string")
	}
	cfg.MaxConnLifetime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	ret := &types.Pool{
		Pool: pool,
		PoolInfo: types.PoolInfo{
			ConnectionString: connectString,
		},
	}

	ctx.Go(func() error {
		<-ctx.Stopping()
		ret.Close()
		return nil
	})

ping:
	if err := ret.Ping(ctx); err != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ctx.Stopping():
			return nil, errors.New("stopped while waiting for database")
		case <-time.After(time.Second):
			log.WithError(err).Info("waiting for database to become ready")
			goto ping
		}
	}

	if err := ret.QueryRow(ctx, "SELECT version();").Scan(&ret.Version); err != nil {
		return nil, errors.Wrap(err, "could not query version")
	}
	log.Infof("connected: %s", ret.Version)

	return ret, nil
}
