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

// rebenchdb stores, aggregates, and serves benchmark measurement data.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/naomiGrew/ReBenchDB/internal/server"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	cfg := &server.Config{}
	cmd := &cobra.Command{
		Use:          "rebenchdb",
		Short:        "benchmark results storage and timeline aggregation",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(
				context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			svc, err := server.New(ctx, cfg)
			if err != nil {
				return err
			}
			log.Info("service ready")

			<-ctx.Done()
			log.Info("shutting down")
			drainCtx, drainCancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer drainCancel()
			return svc.Stop(drainCtx)
		},
	}
	cfg.Bind(cmd.Flags())

	if err := cmd.Execute(); err != nil {
		log.WithError(err).Error("exiting")
		os.Exit(1)
	}
}
