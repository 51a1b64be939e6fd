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

// Package timeline maintains the per-(run, trial, criterion) summary
// statistics asynchronously. Ingest tasks feed values into a pending
// map; a single consumer drains it, recomputes statistics from the
// authoritative measurement sample, and upserts the timeline rows.
package timeline

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/naomiGrew/ReBenchDB/internal/types"
	"github.com/naomiGrew/ReBenchDB/internal/util/notify"
	"github.com/naomiGrew/ReBenchDB/internal/util/stats"
	"github.com/naomiGrew/ReBenchDB/internal/util/stopper"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Config controls the updater.
type Config struct {
	// Enabled gates the whole subsystem; a disabled updater accepts
	// and discards values.
	Enabled bool

	// BootstrapSamples is the bootstrap replicate count R.
	BootstrapSamples int

	// MaxPending caps the number of values held in memory; AddValue
	// blocks above the cap until the consumer catches up.
	MaxPending int

	// BackupPolling bounds how long submitted work can sit in the
	// pending map if a wakeup is missed. A timer is preferred to
	// time.After() since After always creates a new goroutine.
	BackupPolling time.Duration

	// RNG seeds the bootstrap deterministically in tests. Leave nil in
	// production.
	RNG *rand.Rand
}

// Preflight applies defaults.
func (c *Config) Preflight() error {
	if c.BootstrapSamples == 0 {
		c.BootstrapSamples = stats.DefaultBootstrapSamples
	}
	if c.BootstrapSamples < 0 {
		return errors.New("bootstrapSamples must be positive")
	}
	if c.MaxPending <= 0 {
		c.MaxPending = 65536
	}
	if c.BackupPolling <= 0 {
		c.BackupPolling = 10 * time.Second
	}
	return nil
}

// Updater is the single-consumer, multi-producer coalescing worker.
type Updater struct {
	cfg       *Config
	store     types.TimelineStore
	submitted notify.Var[int] // bumped to wake the consumer

	mu struct {
		sync.Mutex
		pending       map[types.TimelineKey][]float64
		pendingValues int
		outstanding   int
		quiesced      chan struct{} // closed while drained and idle
		shutdown      bool
		notFull       *sync.Cond
	}
}

// New constructs the updater and starts its consumer loop on the
// stopper. The config must have passed Preflight.
func New(ctx *stopper.Context, cfg *Config, store types.TimelineStore) *Updater {
	u := &Updater{cfg: cfg, store: store}
	u.mu.pending = make(map[types.TimelineKey][]float64)
	u.mu.quiesced = make(chan struct{})
	close(u.mu.quiesced)
	u.mu.notFull = sync.NewCond(&u.mu.Mutex)

	if cfg.Enabled {
		ctx.Go(func() error {
			u.consume(ctx)
			return nil
		})
	}
	return u
}

// AddValue appends a measurement value to the pending list of its
// series. It blocks while the pending map is over the configured cap.
// Values arriving after Shutdown are dropped.
func (u *Updater) AddValue(runID, trialID, criterionID int32, value float64) {
	if !u.cfg.Enabled {
		return
	}
	key := types.TimelineKey{TrialID: trialID, RunID: runID, CriterionID: criterionID}

	u.mu.Lock()
	defer u.mu.Unlock()
	for u.mu.pendingValues >= u.cfg.MaxPending && !u.mu.shutdown {
		u.mu.notFull.Wait()
	}
	if u.mu.shutdown {
		return
	}
	u.mu.pending[key] = append(u.mu.pending[key], value)
	u.mu.pendingValues++
	u.unquiesceLocked()
	pendingValues.Set(float64(u.mu.pendingValues))
}

// SubmitUpdateJobs persists every pending key to the durable job
// queue, then wakes the consumer. Persisting is idempotent per key, so
// duplicate submissions coalesce.
func (u *Updater) SubmitUpdateJobs(ctx context.Context) error {
	if !u.cfg.Enabled {
		return nil
	}
	u.mu.Lock()
	keys := make([]types.TimelineKey, 0, len(u.mu.pending))
	for k := range u.mu.pending {
		keys = append(keys, k)
	}
	u.mu.Unlock()

	if err := u.store.PersistTimelineJobs(ctx, keys); err != nil {
		return err
	}
	jobsSubmitted.Add(float64(len(keys)))
	u.wake()
	return nil
}

// Recover re-enqueues every persisted job as a value-less recompute
// marker. Called once on startup so a crashed process converges.
func (u *Updater) Recover(ctx context.Context) error {
	if !u.cfg.Enabled {
		return nil
	}
	keys, err := u.store.LoadTimelineJobs(ctx)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	log.WithField("jobs", len(keys)).Info("recovering persisted timeline jobs")

	u.mu.Lock()
	for _, k := range keys {
		if _, ok := u.mu.pending[k]; !ok {
			u.mu.pending[k] = nil
		}
	}
	u.unquiesceLocked()
	u.mu.Unlock()
	u.wake()
	return nil
}

// AwaitQuiescence blocks until the pending map has drained and no job
// is in flight.
func (u *Updater) AwaitQuiescence(ctx context.Context) error {
	u.mu.Lock()
	ch := u.mu.quiesced
	u.mu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting new values and waits for the queue to
// drain.
func (u *Updater) Shutdown(ctx context.Context) error {
	u.mu.Lock()
	u.mu.shutdown = true
	u.mu.notFull.Broadcast()
	u.mu.Unlock()
	u.wake()
	return u.AwaitQuiescence(ctx)
}

func (u *Updater) wake() {
	v, _ := u.submitted.Get()
	u.submitted.Set(v + 1)
}

// unquiesceLocked replaces a resolved quiescence channel with an open
// one. Callers hold u.mu.
func (u *Updater) unquiesceLocked() {
	select {
	case <-u.mu.quiesced:
		u.mu.quiesced = make(chan struct{})
	default:
	}
}

// consume is the single consumer loop. It drains the pending map by
// atomic swap, recomputes each dirty series, and sleeps until the next
// submission or the backup poll.
func (u *Updater) consume(ctx *stopper.Context) {
	backupTimer := time.NewTimer(u.cfg.BackupPolling)
	defer backupTimer.Stop()

	_, wakeup := u.submitted.Get()
	for {
		drained := u.drain(ctx)

		// Producers may have enqueued while the batch was computing;
		// re-loop immediately in that case.
		if drained > 0 {
			continue
		}

		backupTimer.Stop()
		select {
		case <-backupTimer.C:
		default:
		}
		backupTimer.Reset(u.cfg.BackupPolling)

		select {
		case <-wakeup:
			_, wakeup = u.submitted.Get()
		case <-backupTimer.C:
			// Catches work whose wakeup raced with the drain.
		case <-ctx.Stopping():
			return
		case <-ctx.Done():
			return
		}
	}
}

// drain swaps the pending map and computes every key it held,
// returning the number of keys processed.
func (u *Updater) drain(ctx context.Context) int {
	u.mu.Lock()
	batch := u.mu.pending
	if len(batch) == 0 {
		if u.mu.outstanding == 0 {
			select {
			case <-u.mu.quiesced:
			default:
				close(u.mu.quiesced)
			}
		}
		u.mu.Unlock()
		return 0
	}
	u.mu.pending = make(map[types.TimelineKey][]float64)
	u.mu.pendingValues = 0
	u.mu.outstanding += len(batch)
	u.mu.notFull.Broadcast()
	pendingValues.Set(0)
	u.mu.Unlock()

	start := time.Now()
	for key, values := range batch {
		if err := u.computeOne(ctx, key); err != nil {
			// The job row stays behind so a later pass retries.
			jobErrors.Inc()
			log.WithError(err).WithFields(log.Fields{
				"trial":     key.TrialID,
				"run":       key.RunID,
				"criterion": key.CriterionID,
				"values":    len(values),
			}).Error("timeline job failed")
		} else {
			jobsProcessed.Inc()
		}
		u.mu.Lock()
		u.mu.outstanding--
		u.mu.Unlock()
	}
	drainDuration.Observe(time.Since(start).Seconds())
	return len(batch)
}

// computeOne recomputes a single series from the authoritative sample
// in the database. The in-memory values only marked the series dirty;
// reading back the full sample makes crash recovery and concurrent
// processes share one code path.
func (u *Updater) computeOne(ctx context.Context, key types.TimelineKey) error {
	sample, err := u.store.MeasurementSample(ctx, key)
	if err != nil {
		return err
	}
	if len(sample) == 0 {
		// A recovered job whose measurements never committed; nothing
		// to summarize.
		return u.store.DeleteTimelineJob(ctx, key)
	}

	summary, err := stats.Summarize(sample, u.cfg.BootstrapSamples, u.cfg.RNG)
	if err != nil {
		return err
	}
	if err := u.store.UpsertTimeline(ctx, types.TimelineEntry{
		RunID:       key.RunID,
		TrialID:     key.TrialID,
		CriterionID: key.CriterionID,
		Min:         summary.Min,
		Max:         summary.Max,
		StdDev:      summary.StdDev,
		Mean:        summary.Mean,
		Median:      summary.Median,
		NumSamples:  int32(summary.NumSamples),
		BCI95Low:    summary.BCI95Low,
		BCI95Up:     summary.BCI95Up,
	}); err != nil {
		return err
	}
	return u.store.DeleteTimelineJob(ctx, key)
}
