// Copyright 2025-2026 The feedrelay Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package trending

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/apex/log"
	"github.com/vidstream/feedrelay/common"
	"github.com/vidstream/feedrelay/datastore"
	"github.com/vidstream/feedrelay/relay"
)

// Tagged run state of the recomputation job. At most one run is in flight at
// any time; a trigger landing on a running job is skipped, never queued.
const (
	runStateIdle int32 = iota
	runStateRunning
)

// RecomputeJob periodically recomputes the trending set from aggregate
// engagement counts and republishes it to the shared trending group.
//
// Every run is a full recomputation and a full republish of the top-N. There
// is no delta against the previous run; a client connected across two runs
// receives the complete set twice when nothing changed.
type RecomputeJob interface {
	// Start arm the recomputation interval timer
	Start() error
	// Stop cancel the interval timer
	Stop() error
	// RunOnce execute a single recomputation now. Returns
	// common.ErrStaleRunSkipped when a prior run is still active.
	RunOnce(ctxt context.Context) error
}

// recomputeJobImpl implements RecomputeJob
type recomputeJobImpl struct {
	common.Component
	backplane   relay.Backplane
	content     datastore.ContentStore
	interval    time.Duration
	threshold   int64
	topN        int
	runState    int32
	timer       common.IntervalTimer
	rootContext context.Context
}

// GetRecomputeJob define a new trending recomputation job
func GetRecomputeJob(
	rootCtxt context.Context,
	wg *sync.WaitGroup,
	backplane relay.Backplane,
	content datastore.ContentStore,
	config common.TrendingJobConfig,
	instance string,
) (RecomputeJob, error) {
	logTags := log.Fields{
		"module": "trending", "component": "recompute-job", "instance": instance,
	}
	timer, err := common.GetIntervalTimerInstance("trending-recompute", rootCtxt, wg)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define interval timer")
		return nil, err
	}
	return &recomputeJobImpl{
		Component:   common.Component{LogTags: logTags},
		backplane:   backplane,
		content:     content,
		interval:    time.Second * time.Duration(config.Interval),
		threshold:   config.Threshold,
		topN:        config.TopN,
		runState:    runStateIdle,
		timer:       timer,
		rootContext: rootCtxt,
	}, nil
}

// Start arm the recomputation interval timer
func (j *recomputeJobImpl) Start() error {
	log.WithFields(j.LogTags).Infof("Arming recompute timer at %s", j.interval)
	return j.timer.Start(j.interval, func() error {
		if err := j.RunOnce(j.rootContext); err != nil {
			if errors.Is(err, common.ErrStaleRunSkipped) {
				// Informational. The slow run owns the cycle.
				log.WithFields(j.LogTags).Info("Skipped recompute trigger, run in flight")
				return nil
			}
			return err
		}
		return nil
	}, false)
}

// Stop cancel the interval timer
func (j *recomputeJobImpl) Stop() error {
	return j.timer.Stop()
}

// RunOnce execute a single recomputation now
func (j *recomputeJobImpl) RunOnce(ctxt context.Context) error {
	if !atomic.CompareAndSwapInt32(&j.runState, runStateIdle, runStateRunning) {
		return common.ErrStaleRunSkipped
	}
	defer atomic.StoreInt32(&j.runState, runStateIdle)

	candidates, err := j.content.TopEngaged(ctxt, j.threshold, j.topN)
	if err != nil {
		log.WithError(err).WithFields(j.LogTags).Error("Trending recompute query failed")
		return err
	}
	// The store contract already orders by engagement, but the published
	// order is this job's responsibility
	sort.SliceStable(candidates, func(a, b int) bool {
		return candidates[a].Likes > candidates[b].Likes
	})
	if len(candidates) > j.topN {
		candidates = candidates[:j.topN]
	}
	published := 0
	for _, record := range candidates {
		event := common.FeedEvent{
			Kind:        common.KindTrendingUpdated,
			Content:     record,
			PublishedAt: time.Now().UTC(),
		}
		if err := j.backplane.Publish(ctxt, common.TrendingGroup, event); err != nil {
			// Transient publish failure on one item must not starve
			// the rest of the set
			log.WithError(err).WithFields(j.LogTags).Errorf(
				"Dropped trending update for content %s", record.ID,
			)
			continue
		}
		published++
	}
	log.WithFields(j.LogTags).Infof(
		"Recomputed trending set. Published %d of %d items", published, len(candidates),
	)
	return nil
}
