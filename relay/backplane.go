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
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/go-playground/validator/v10"
	"github.com/nats-io/nats.go"
	"github.com/vidstream/feedrelay/common"
	"github.com/vidstream/feedrelay/core"
)

// groupSubjectPrefix is the NATS subject space carrying delivery group events
const groupSubjectPrefix = "feed.group."

// subjectForGroup map a delivery group name to its backplane subject
func subjectForGroup(groupName string) string {
	return groupSubjectPrefix + groupName
}

// groupFromSubject recover the delivery group name from a backplane subject
func groupFromSubject(subject string) string {
	return strings.TrimPrefix(subject, groupSubjectPrefix)
}

// EventHandlerCB callback invoked exactly once per event received by this
// instance
type EventHandlerCB func(ctxt context.Context, event common.FeedEvent) error

// Backplane is the cross-instance publish/subscribe channel. An event
// published on any instance reaches the subscriber callback on every
// instance, the publishing one included.
//
// Delivery is at-least-once per instance and fire-and-forget for the
// publisher: when the transport is down, Publish fails with
// common.ErrRelayUnavailable and the event is gone. Consumers must tolerate
// duplicates and must not depend on strict ordering.
type Backplane interface {
	// Publish broadcast an event to a delivery group on all instances
	Publish(ctxt context.Context, groupName string, event common.FeedEvent) error
	// Subscribe register the per-instance event callback. At most one
	// subscription per backplane instance.
	Subscribe(handler EventHandlerCB) error
	// Close stop forwarding events and release the subscription
	Close(ctxt context.Context)
}

// natsBackplaneImpl implements Backplane over core NATS pub/sub
type natsBackplaneImpl struct {
	common.Component
	client     *core.NatsClient
	instance   string
	lock       *sync.Mutex
	sub        *nats.Subscription
	forwardCB  EventHandlerCB
	validate   *validator.Validate
	opContext  context.Context
	ctxtCancel context.CancelFunc
}

// GetNatsBackplane define a new NATS relay backplane
func GetNatsBackplane(
	ctxt context.Context, client *core.NatsClient, instance string,
) (Backplane, error) {
	logTags := log.Fields{
		"module": "relay", "component": "nats-backplane", "instance": instance,
	}
	opCtxt, cancel := context.WithCancel(ctxt)
	return &natsBackplaneImpl{
		Component:  common.Component{LogTags: logTags},
		client:     client,
		instance:   instance,
		lock:       &sync.Mutex{},
		sub:        nil,
		forwardCB:  nil,
		validate:   validator.New(),
		opContext:  opCtxt,
		ctxtCancel: cancel,
	}, nil
}

// Publish broadcast an event to a delivery group on all instances
func (b *natsBackplaneImpl) Publish(
	ctxt context.Context, groupName string, event common.FeedEvent,
) error {
	if err := common.ValidateGroupName(groupName); err != nil {
		log.WithError(err).WithFields(b.LogTags).Errorf("Unable to publish event")
		return err
	}
	event.Group = groupName
	event.Source = b.instance
	if event.PublishedAt.IsZero() {
		event.PublishedAt = time.Now().UTC()
	}
	if !b.client.NATS().IsConnected() {
		log.WithFields(b.LogTags).Errorf(
			"Dropping %s. Backplane transport is down", event.String(),
		)
		return common.ErrRelayUnavailable
	}
	serialized, err := json.Marshal(&event)
	if err != nil {
		log.WithError(err).WithFields(b.LogTags).Errorf(
			"Failed to serialize %s", event.String(),
		)
		return err
	}
	if err := b.client.NATS().Publish(subjectForGroup(groupName), serialized); err != nil {
		log.WithError(err).WithFields(b.LogTags).Errorf(
			"Dropping %s. Backplane send failed", event.String(),
		)
		return fmt.Errorf("%w: %s", common.ErrRelayUnavailable, err.Error())
	}
	log.WithFields(b.LogTags).Debugf("Published %s", event.String())
	return nil
}

// Subscribe register the per-instance event callback.
//
// One wildcard subscription covers every delivery group; membership filtering
// is the local dispatcher's concern, not the backplane's.
func (b *natsBackplaneImpl) Subscribe(handler EventHandlerCB) error {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.sub != nil {
		err := fmt.Errorf("already subscribed")
		log.WithError(err).WithFields(b.LogTags).Error("Unable to subscribe")
		return err
	}
	b.forwardCB = handler
	sub, err := b.client.NATS().Subscribe(groupSubjectPrefix+">", b.receive)
	if err != nil {
		log.WithError(err).WithFields(b.LogTags).Error("Unable to define subscription")
		return err
	}
	b.sub = sub
	log.WithFields(b.LogTags).Info("Subscribed to delivery group events")
	return nil
}

// receive handle one raw message from the transport. Malformed payloads are
// logged and dropped; a bad event must not take down the receive path.
func (b *natsBackplaneImpl) receive(msg *nats.Msg) {
	var event common.FeedEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		log.WithError(err).WithFields(b.LogTags).Errorf(
			"Discarding malformed event on %s", msg.Subject,
		)
		return
	}
	if err := b.validate.Struct(&event); err != nil {
		log.WithError(err).WithFields(b.LogTags).Errorf(
			"Discarding invalid event on %s", msg.Subject,
		)
		return
	}
	// The subject is authoritative for targeting
	event.Group = groupFromSubject(msg.Subject)
	log.WithFields(b.LogTags).Debugf("Received %s", event.String())
	if err := b.forwardCB(b.opContext, event); err != nil {
		log.WithError(err).WithFields(b.LogTags).Errorf(
			"Handler failed on %s", event.String(),
		)
	}
}

// Close stop forwarding events and release the subscription
func (b *natsBackplaneImpl) Close(ctxt context.Context) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.ctxtCancel()
	if b.sub != nil {
		if err := b.sub.Unsubscribe(); err != nil {
			log.WithError(err).WithFields(b.LogTags).Error("Unsubscribe failed")
		} else {
			log.WithFields(b.LogTags).Info("Unsubscribed from delivery group events")
		}
		b.sub = nil
	}
}
