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

package cmd

import (
	"context"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/vidstream/feedrelay/common"
	"github.com/vidstream/feedrelay/core"
	"github.com/vidstream/feedrelay/datastore"
	"github.com/vidstream/feedrelay/relay"
	"github.com/vidstream/feedrelay/trending"
)

// RunTrendingRunner run the trending recomputation runner.
//
// Deploy exactly one runner per fleet; feed instances receive its output
// through the relay backplane like any other publisher.
func RunTrendingRunner(
	runTimeContext context.Context,
	configs *common.TrendingJobConfig,
	instance string,
	natsClient *core.NatsClient,
	store datastore.Store,
	wg *sync.WaitGroup,
) error {
	logTags := log.Fields{
		"module":    "cmd",
		"component": "trending-runner",
		"instance":  instance,
	}

	localCtxt, lclCancel := context.WithCancel(runTimeContext)
	defer lclCancel()

	backplane, err := relay.GetNatsBackplane(localCtxt, natsClient, instance)
	if err != nil {
		log.WithError(err).WithFields(logTags).Errorf("Unable to define relay backplane")
		return err
	}

	job, err := trending.GetRecomputeJob(
		localCtxt, wg, backplane, store, *configs, instance,
	)
	if err != nil {
		log.WithError(err).WithFields(logTags).Errorf("Unable to define recompute job")
		return err
	}

	if err := job.Start(); err != nil {
		log.WithError(err).WithFields(logTags).Errorf("Unable to start recompute job")
		return err
	}
	log.WithFields(logTags).Info("Started trending recomputation runner")

	// ============================================================================

	<-runTimeContext.Done()

	if err := job.Stop(); err != nil {
		log.WithError(err).WithFields(logTags).Error("Failure during job stop")
	}
	{
		ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
		defer cancel()
		backplane.Close(ctx)
	}

	return nil
}
