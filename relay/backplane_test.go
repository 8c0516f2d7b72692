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

package relay

import (
	"context"
	"testing"
	"time"

	"github.com/apex/log"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/vidstream/feedrelay/common"
	"github.com/vidstream/feedrelay/core"
)

func getTestNatsClient(t *testing.T) *core.NatsClient {
	assert := assert.New(t)
	client, err := core.GetNatsClient(core.NATSConnectParams{
		ServerURI:            common.GetUnitTestNatsURI(),
		ConnectTimeout:       time.Second,
		MaxReconnectAttempt:  0,
		ReconnectWait:        time.Second,
		OnDisconnectCallback: func(_ *nats.Conn, _ error) {},
		OnReconnectCallback:  func(_ *nats.Conn) {},
		OnCloseCallback:      func(_ *nats.Conn) {},
	})
	assert.Nil(err)
	return &client
}

func TestBackplaneBroadcast(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtxt, utCtxtCancel := context.WithCancel(context.Background())
	defer utCtxtCancel()

	// Two instances sharing the backplane, the publisher included as a
	// subscriber
	client1 := getTestNatsClient(t)
	defer client1.Close(utCtxt)
	client2 := getTestNatsClient(t)
	defer client2.Close(utCtxt)

	uut1, err := GetNatsBackplane(utCtxt, client1, "ut-instance-1")
	assert.Nil(err)
	defer uut1.Close(utCtxt)
	uut2, err := GetNatsBackplane(utCtxt, client2, "ut-instance-2")
	assert.Nil(err)
	defer uut2.Close(utCtxt)

	recv1 := make(chan common.FeedEvent, 4)
	recv2 := make(chan common.FeedEvent, 4)
	assert.Nil(uut1.Subscribe(func(ctxt context.Context, event common.FeedEvent) error {
		recv1 <- event
		return nil
	}))
	assert.Nil(uut2.Subscribe(func(ctxt context.Context, event common.FeedEvent) error {
		recv2 <- event
		return nil
	}))

	// Case 0: double subscribe is rejected
	assert.NotNil(uut1.Subscribe(func(ctxt context.Context, event common.FeedEvent) error {
		return nil
	}))

	// Case 1: invalid group name is rejected
	assert.NotNil(uut1.Publish(utCtxt, "bad group name", common.FeedEvent{}))

	// Case 2: an event published on one instance reaches both, once each
	targetGroup := common.PersonalGroup(uuid.New().String())
	testEvent := common.FeedEvent{
		Kind: common.KindContentPublished,
		Content: common.ContentRecord{
			ID:      uuid.New().String(),
			OwnerID: uuid.New().String(),
		},
	}
	assert.Nil(uut1.Publish(utCtxt, targetGroup, testEvent))
	for _, recv := range []chan common.FeedEvent{recv1, recv2} {
		select {
		case event := <-recv:
			assert.Equal(targetGroup, event.Group)
			assert.Equal("ut-instance-1", event.Source)
			assert.Equal(testEvent.Content.ID, event.Content.ID)
			assert.False(event.PublishedAt.IsZero())
		case <-time.After(time.Second):
			assert.True(false)
		}
	}
	assert.Empty(recv1)
	assert.Empty(recv2)

	// Case 3: publishes on different groups stay separated by subject
	otherGroup := common.PersonalGroup(uuid.New().String())
	assert.Nil(uut2.Publish(utCtxt, otherGroup, testEvent))
	for _, recv := range []chan common.FeedEvent{recv1, recv2} {
		select {
		case event := <-recv:
			assert.Equal(otherGroup, event.Group)
			assert.Equal("ut-instance-2", event.Source)
		case <-time.After(time.Second):
			assert.True(false)
		}
	}

	// Case 4: malformed payloads on the subject space are dropped
	assert.Nil(client1.NATS().Publish("feed.group."+targetGroup, []byte("not json")))
	assert.Nil(client1.NATS().Flush())
	time.Sleep(time.Millisecond * 100)
	assert.Empty(recv2)
}

func TestBackplaneUnavailable(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtxt, utCtxtCancel := context.WithCancel(context.Background())
	defer utCtxtCancel()

	client := getTestNatsClient(t)
	uut, err := GetNatsBackplane(utCtxt, client, "ut-instance")
	assert.Nil(err)

	// Sever the transport, then publish
	client.NATS().Close()
	err = uut.Publish(utCtxt, common.TrendingGroup, common.FeedEvent{
		Kind:    common.KindTrendingUpdated,
		Content: common.ContentRecord{ID: uuid.New().String(), OwnerID: "ut"},
	})
	assert.ErrorIs(err, common.ErrRelayUnavailable)
}
