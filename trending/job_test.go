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
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/apex/log"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/vidstream/feedrelay/common"
	"github.com/vidstream/feedrelay/relay"
)

// scriptedContentStore test content store returning canned records
type scriptedContentStore struct {
	records    []common.ContentRecord
	queryCount int32
	blockOn    chan bool
}

func (s *scriptedContentStore) TopEngaged(
	ctxt context.Context, threshold int64, limit int,
) ([]common.ContentRecord, error) {
	atomic.AddInt32(&s.queryCount, 1)
	if s.blockOn != nil {
		<-s.blockOn
	}
	result := []common.ContentRecord{}
	for _, record := range s.records {
		if record.Likes >= threshold {
			result = append(result, record)
		}
	}
	return result, nil
}

// recordingBackplane test backplane recording trending publishes
type recordingBackplane struct {
	lock      sync.Mutex
	published []common.FeedEvent
	failFirst bool
}

func (b *recordingBackplane) Publish(
	ctxt context.Context, groupName string, event common.FeedEvent,
) error {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.failFirst {
		b.failFirst = false
		return common.ErrRelayUnavailable
	}
	event.Group = groupName
	b.published = append(b.published, event)
	return nil
}

func (b *recordingBackplane) Subscribe(handler relay.EventHandlerCB) error {
	return fmt.Errorf("not supported")
}

func (b *recordingBackplane) Close(ctxt context.Context) {}

func testRecords(likes ...int64) []common.ContentRecord {
	records := make([]common.ContentRecord, len(likes))
	for idx, count := range likes {
		records[idx] = common.ContentRecord{
			ID:         uuid.New().String(),
			OwnerID:    uuid.New().String(),
			Likes:      count,
			UploadedAt: time.Now().UTC(),
		}
	}
	return records
}

func TestTrendingRecompute(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	wg := sync.WaitGroup{}
	defer wg.Wait()
	utCtxt, utCtxtCancel := context.WithCancel(context.Background())
	defer utCtxtCancel()

	store := &scriptedContentStore{records: testRecords(80, 60, 40, 90)}
	backplane := &recordingBackplane{}

	uut, err := GetRecomputeJob(
		utCtxt, &wg, backplane, store, common.TrendingJobConfig{
			Interval: 300, Threshold: 50, TopN: 10,
		}, "unit-test",
	)
	assert.Nil(err)

	// Case 0: full recompute publishes the qualifying set in engagement order
	assert.Nil(uut.RunOnce(utCtxt))
	assert.Len(backplane.published, 3)
	assert.Equal(int64(90), backplane.published[0].Content.Likes)
	assert.Equal(int64(80), backplane.published[1].Content.Likes)
	assert.Equal(int64(60), backplane.published[2].Content.Likes)
	for _, event := range backplane.published {
		assert.Equal(common.KindTrendingUpdated, event.Kind)
		assert.Equal(common.TrendingGroup, event.Group)
	}

	// Case 1: every run is a full republish, unchanged data included
	assert.Nil(uut.RunOnce(utCtxt))
	assert.Len(backplane.published, 6)

	// Case 2: a failed publish skips the item, the rest still go out
	backplane.published = nil
	backplane.failFirst = true
	assert.Nil(uut.RunOnce(utCtxt))
	assert.Len(backplane.published, 2)
	assert.Equal(int64(80), backplane.published[0].Content.Likes)
}

func TestTrendingTopNCap(t *testing.T) {
	assert := assert.New(t)

	wg := sync.WaitGroup{}
	defer wg.Wait()
	utCtxt, utCtxtCancel := context.WithCancel(context.Background())
	defer utCtxtCancel()

	store := &scriptedContentStore{records: testRecords(10, 90, 70, 50, 30)}
	backplane := &recordingBackplane{}

	uut, err := GetRecomputeJob(
		utCtxt, &wg, backplane, store, common.TrendingJobConfig{
			Interval: 300, Threshold: 0, TopN: 3,
		}, "unit-test",
	)
	assert.Nil(err)

	assert.Nil(uut.RunOnce(utCtxt))
	assert.Len(backplane.published, 3)
	assert.Equal(int64(90), backplane.published[0].Content.Likes)
	assert.Equal(int64(70), backplane.published[1].Content.Likes)
	assert.Equal(int64(50), backplane.published[2].Content.Likes)
}

func TestTrendingOverlapGuard(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	wg := sync.WaitGroup{}
	defer wg.Wait()
	utCtxt, utCtxtCancel := context.WithCancel(context.Background())
	defer utCtxtCancel()

	store := &scriptedContentStore{
		records: testRecords(80, 60),
		blockOn: make(chan bool),
	}
	backplane := &recordingBackplane{}

	uut, err := GetRecomputeJob(
		utCtxt, &wg, backplane, store, common.TrendingJobConfig{
			Interval: 300, Threshold: 50, TopN: 10,
		}, "unit-test",
	)
	assert.Nil(err)

	// Start a run which stalls inside the store query
	firstDone := make(chan error, 1)
	go func() {
		firstDone <- uut.RunOnce(utCtxt)
	}()
	// Wait until the slow run holds the cycle
	for atomic.LoadInt32(&store.queryCount) == 0 {
		time.Sleep(time.Millisecond)
	}

	// Triggers landing while a run is active are skipped, not queued
	assert.ErrorIs(uut.RunOnce(utCtxt), common.ErrStaleRunSkipped)
	assert.ErrorIs(uut.RunOnce(utCtxt), common.ErrStaleRunSkipped)
	assert.Equal(int32(1), atomic.LoadInt32(&store.queryCount))

	// Release the slow run
	close(store.blockOn)
	select {
	case err := <-firstDone:
		assert.Nil(err)
	case <-time.After(time.Second):
		assert.True(false)
	}
	assert.Len(backplane.published, 2)

	// The guard clears once the run completes
	store.blockOn = nil
	assert.Nil(uut.RunOnce(utCtxt))
	assert.Equal(int32(3), atomic.LoadInt32(&store.queryCount))
}
