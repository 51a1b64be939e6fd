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
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
)

// cache interns fully materialized metadata rows by their natural key.
// Entries live for the process lifetime; Clear exists for tests.
type cache[T any] struct {
	sf singleflight.Group

	mu struct {
		sync.Mutex
		rows map[string]T
	}
}

func (c *cache[T]) get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.mu.rows[key]
	return v, ok
}

func (c *cache[T]) put(key string, v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mu.rows == nil {
		c.mu.rows = make(map[string]T)
	}
	c.mu.rows[key] = v
}

func (c *cache[T]) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mu.rows = nil
}

// cacheKey joins the parts of a composite natural key. The separator
// cannot occur in any key component.
func cacheKey(parts ...string) string {
	return strings.Join(parts, "\x00")
}

// recordCached implements the intern-or-insert contract shared by all
// metadata entities:
//
//  1. A cached row is returned as-is.
//  2. Otherwise fetchSQL runs; a found row is cached and returned.
//  3. Otherwise insertSQL runs (with RETURNING). On a unique-violation
//     error a concurrent request has inserted the row; fetchSQL is
//     re-run and must find exactly one row.
//  4. Any other error propagates.
//
// Concurrent first-lookups of the same key share one execution via
// singleflight; losers of a cross-process race recover in step 3.
func recordCached[T any](
	ctx context.Context,
	d *DB,
	c *cache[T],
	key string,
	scan func(pgx.Row) (T, error),
	fetchSQL string, fetchArgs []any,
	insertSQL string, insertArgs []any,
) (T, error) {
	if v, ok := c.get(key); ok {
		return v, nil
	}

	v, err, _ := c.sf.Do(key, func() (any, error) {
		v, err := scan(d.pool.QueryRow(ctx, fetchSQL, fetchArgs...))
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.WithStack(err)
		}

		v, err = scan(d.pool.QueryRow(ctx, insertSQL, insertArgs...))
		if err == nil {
			return v, nil
		}
		if !isUniqueViolation(err) {
			return nil, errors.WithStack(err)
		}

		// Lost the insert race; exactly one row must now exist.
		v, err = scan(d.pool.QueryRow(ctx, fetchSQL, fetchArgs...))
		return v, errors.WithStack(err)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	row := v.(T)
	c.put(key, row)
	return row, nil
}

// isUniqueViolation matches PostgreSQL error 23505.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
