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

package dispatch

import (
	"context"
	"encoding/json"

	"github.com/apex/log"
	"github.com/vidstream/feedrelay/common"
	"github.com/vidstream/feedrelay/registry"
)

// FeedDispatcher delivers one event to every locally registered connection of
// its target group.
//
// Delivery is fire-and-forget. No acknowledgment is collected from clients;
// a connection that vanished between lookup and push is skipped without
// aborting delivery to the remaining members.
type FeedDispatcher interface {
	// Dispatch push the event payload to all local members of the target
	// group
	Dispatch(ctxt context.Context, event common.FeedEvent) error
}

// feedDispatcherImpl implements FeedDispatcher
type feedDispatcherImpl struct {
	common.Component
	connections registry.ConnectionRegistry
}

// GetFeedDispatcher define a new fan-out dispatcher against a connection
// registry
func GetFeedDispatcher(
	connections registry.ConnectionRegistry, instance string,
) (FeedDispatcher, error) {
	logTags := log.Fields{
		"module": "dispatch", "component": "feed-dispatcher", "instance": instance,
	}
	return &feedDispatcherImpl{
		Component:   common.Component{LogTags: logTags},
		connections: connections,
	}, nil
}

// Dispatch push the event payload to all local members of the target group.
// A group with no local members is a no-op.
func (d *feedDispatcherImpl) Dispatch(ctxt context.Context, event common.FeedEvent) error {
	if err := ctxt.Err(); err != nil {
		return err
	}
	members := d.connections.MembersOf(event.Group)
	if len(members) == 0 {
		log.WithFields(d.LogTags).Debugf("No local members for %s", event.String())
		return nil
	}
	serialized, err := json.Marshal(&event)
	if err != nil {
		log.WithError(err).WithFields(d.LogTags).Errorf(
			"Failed to serialize %s", event.String(),
		)
		return err
	}
	delivered := 0
	for _, conn := range members {
		if err := conn.Deliver(serialized); err != nil {
			// The connection closed between lookup and push, or its
			// buffer is full. Not an error for the caller.
			log.WithError(err).WithFields(d.LogTags).Debugf(
				"Skipped connection %s for %s", conn.ID, event.String(),
			)
			continue
		}
		delivered++
	}
	log.WithFields(d.LogTags).Debugf(
		"Delivered %s to %d of %d local members", event.String(), delivered, len(members),
	)
	return nil
}
