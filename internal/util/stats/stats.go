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

// Package stats computes the summary statistics maintained per
// timeline series: basic sample statistics plus a bootstrap 95%
// confidence interval of the mean.
package stats

import (
	"math/rand"
	"sort"
	"time"

	moremath "github.com/aclements/go-moremath/stats"
	"github.com/pkg/errors"
)

// DefaultBootstrapSamples is the number of bootstrap resamples used
// when no explicit count is configured.
const DefaultBootstrapSamples = 1000

// Summary holds the descriptive statistics of one sample.
type Summary struct {
	Min        float64
	Max        float64
	Mean       float64
	StdDev     float64
	Median     float64
	NumSamples int
	BCI95Low   float64
	BCI95Up    float64
}

// Summarize computes the Summary of a non-empty sample. The bootstrap
// draws r resamples; rng may be provided for deterministic results and
// defaults to a time-seeded source. The input is not modified.
func Summarize(sample []float64, r int, rng *rand.Rand) (Summary, error) {
	n := len(sample)
	if n == 0 {
		return Summary{}, errors.New("cannot summarize an empty sample")
	}
	if r <= 0 {
		r = DefaultBootstrapSamples
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	s := moremath.Sample{Xs: sample}
	min, max := s.Bounds()
	ret := Summary{
		Min:        min,
		Max:        max,
		Mean:       s.Mean(),
		Median:     s.Quantile(0.5),
		NumSamples: n,
	}
	if n == 1 {
		// A single observation carries no dispersion information.
		ret.BCI95Low = sample[0]
		ret.BCI95Up = sample[0]
		return ret, nil
	}
	ret.StdDev = s.StdDev()
	ret.BCI95Low, ret.BCI95Up = bootstrapCI95(sample, r, rng)
	return ret, nil
}

// bootstrapCI95 draws r resamples with replacement, each of the full
// sample size, and returns the 2.5th and 97.5th nearest-rank
// percentiles of the resample means.
func bootstrapCI95(sample []float64, r int, rng *rand.Rand) (low, up float64) {
	n := len(sample)
	means := make([]float64, r)
	for i := range means {
		sum := 0.0
		for j := 0; j < n; j++ {
			sum += sample[rng.Intn(n)]
		}
		means[i] = sum / float64(n)
	}
	sort.Float64s(means)
	return means[nearestRank(0.025, r)], means[nearestRank(0.975, r)]
}

// nearestRank returns the zero-based index of the q-th percentile in a
// sorted slice of length n, using the nearest-rank method.
func nearestRank(q float64, n int) int {
	rank := int(q*float64(n) + 0.5)
	if rank < 1 {
		rank = 1
	}
	if rank > n {
		rank = n
	}
	return rank - 1
}
