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
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/naomiGrew/ReBenchDB/internal/util/stats"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

// Config contains the user-visible configuration of the service.
// Flag defaults are taken from the environment, so either mechanism
// works.
type Config struct {
	DBUser     string
	DBPassword string
	DBHost     string
	DBPort     int
	DBName     string

	TimelineEnabled  bool
	BootstrapSamples int

	CacheInvalidationDelay time.Duration
}

// Bind registers flags.
func (c *Config) Bind(flags *pflag.FlagSet) {
	flags.StringVar(
		&c.DBUser,
		"dbUser",
		envString("REBENCH_DB_USER", "postgres"),
		"the database user")
	flags.StringVar(
		&c.DBPassword,
		"dbPassword",
		envString("REBENCH_DB_PASSWORD", ""),
		"the database password")
	flags.StringVar(
		&c.DBHost,
		"dbHost",
		envString("REBENCH_DB_HOST", "localhost"),
		"the database host")
	flags.IntVar(
		&c.DBPort,
		"dbPort",
		envInt("REBENCH_DB_PORT", 5432),
		"the database port")
	flags.StringVar(
		&c.DBName,
		"dbName",
		envString("REBENCH_DB_NAME", "rebenchdb"),
		"the database name")
	flags.BoolVar(
		&c.TimelineEnabled,
		"timeline",
		envBool("REBENCH_TIMELINE_ENABLED", true),
		"maintain per-series summary statistics asynchronously")
	flags.IntVar(
		&c.BootstrapSamples,
		"bootstrapSamples",
		envInt("REBENCH_BOOTSTRAP_N", stats.DefaultBootstrapSamples),
		"the number of bootstrap resamples behind each confidence interval")
	flags.DurationVar(
		&c.CacheInvalidationDelay,
		"cacheInvalidationDelay",
		time.Duration(envInt("REBENCH_CACHE_INVALIDATION_DELAY", 0))*time.Millisecond,
		"how long readers may observe stale derived statistics")
}

// Preflight validates the configuration.
func (c *Config) Preflight() error {
	if c.DBHost == "" {
		return errors.New("dbHost unset")
	}
	if c.DBName == "" {
		return errors.New("dbName unset")
	}
	if c.DBPort <= 0 || c.DBPort > 65535 {
		return errors.Errorf("invalid dbPort %d", c.DBPort)
	}
	if c.BootstrapSamples <= 0 {
		return errors.New("bootstrapSamples must be positive")
	}
	if c.CacheInvalidationDelay < 0 {
		return errors.New("cacheInvalidationDelay must not be negative")
	}
	return nil
}

// ConnectionString renders the pgx connection URL.
func (c *Config) ConnectionString() string {
	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:   "/" + c.DBName,
	}
	if c.DBUser != "" {
		u.User = url.UserPassword(c.DBUser, c.DBPassword)
	}
	return u.String()
}

func envString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
