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

// Package server assembles the long-lived service object: connection
// pool, persistence adapter, interning caches, stats-validity token,
// timeline updater, and ingester.
package server

import (
	"context"
	"time"

	"github.com/naomiGrew/ReBenchDB/internal/db"
	"github.com/naomiGrew/ReBenchDB/internal/ingest"
	"github.com/naomiGrew/ReBenchDB/internal/timeline"
	"github.com/naomiGrew/ReBenchDB/internal/util/stdpool"
	"github.com/naomiGrew/ReBenchDB/internal/util/stopper"
	"github.com/naomiGrew/ReBenchDB/internal/util/validity"
)

// Service owns all process-wide mutable state. Construct exactly one
// per process.
type Service struct {
	Config     *Config
	DB         *db.DB
	Ingester   *ingest.Ingester
	Updater    *timeline.Updater
	StatsToken *validity.Holder

	stop *stopper.Context
}

// New connects to the database, bootstraps the schema if needed,
// recovers persisted timeline jobs, and returns the ready service.
func New(ctx context.Context, cfg *Config) (*Service, error) {
	if err := cfg.Preflight(); err != nil {
		return nil, err
	}
	stop := stopper.WithContext(ctx)

	pool, err := stdpool.OpenPgxAsPool(stop, cfg.ConnectionString())
	if err != nil {
		stop.Stop(time.Second)
		return nil, err
	}
	database := db.New(pool)
	if err := database.InitializeOnce(stop); err != nil {
		stop.Stop(time.Second)
		return nil, err
	}

	timelineCfg := &timeline.Config{
		Enabled:          cfg.TimelineEnabled,
		BootstrapSamples: cfg.BootstrapSamples,
	}
	if err := timelineCfg.Preflight(); err != nil {
		stop.Stop(time.Second)
		return nil, err
	}
	updater := timeline.New(stop, timelineCfg, database)
	if err := updater.Recover(stop); err != nil {
		stop.Stop(time.Second)
		return nil, err
	}

	statsToken := validity.NewHolder(cfg.CacheInvalidationDelay)

	return &Service{
		Config:     cfg,
		DB:         database,
		Ingester:   ingest.New(database, updater, statsToken),
		Updater:    updater,
		StatsToken: statsToken,
		stop:       stop,
	}, nil
}

// Stop drains the timeline updater and releases every resource. The
// context bounds how long the drain may take.
func (s *Service) Stop(ctx context.Context) error {
	err := s.Updater.Shutdown(ctx)
	s.stop.Stop(5 * time.Second)
	if waitErr := s.stop.Wait(); err == nil {
		err = waitErr
	}
	return err
}
