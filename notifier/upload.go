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

package notifier

import (
	"context"
	"time"

	"github.com/apex/log"
	"github.com/go-playground/validator/v10"
	"github.com/vidstream/feedrelay/common"
	"github.com/vidstream/feedrelay/datastore"
	"github.com/vidstream/feedrelay/relay"
)

// UploadNotifier announces newly uploaded content to the uploader's
// followers.
//
// The upload pipeline calls NotifyUpload exactly once per durably created
// content record. Only followers with a live connection somewhere in the
// fleet receive anything; there is no durable inbox for offline followers.
type UploadNotifier interface {
	// NotifyUpload publish one content-published event per follower
	// personal group
	NotifyUpload(ctxt context.Context, content common.ContentRecord) error
}

// uploadNotifierImpl implements UploadNotifier
type uploadNotifierImpl struct {
	common.Component
	backplane relay.Backplane
	followers datastore.FollowerStore
	validate  *validator.Validate
}

// GetUploadNotifier define a new upload notifier
func GetUploadNotifier(
	backplane relay.Backplane, followers datastore.FollowerStore, instance string,
) (UploadNotifier, error) {
	logTags := log.Fields{
		"module": "notifier", "component": "upload-notifier", "instance": instance,
	}
	return &uploadNotifierImpl{
		Component: common.Component{LogTags: logTags},
		backplane: backplane,
		followers: followers,
		validate:  validator.New(),
	}, nil
}

// NotifyUpload publish one content-published event per follower personal
// group.
//
// Returns common.ErrOwnerNotFound when the owning user record cannot be
// resolved. Individual publish failures are logged and dropped; they never
// abort notification of the remaining followers, and they never fail the
// originating upload.
func (n *uploadNotifierImpl) NotifyUpload(
	ctxt context.Context, content common.ContentRecord,
) error {
	if err := n.validate.Struct(&content); err != nil {
		log.WithError(err).WithFields(n.LogTags).Error("Rejecting invalid content record")
		return err
	}
	ownerKnown, err := n.followers.OwnerExists(ctxt, content.OwnerID)
	if err != nil {
		log.WithError(err).WithFields(n.LogTags).Errorf(
			"Owner lookup failed for content %s", content.ID,
		)
		return err
	}
	if !ownerKnown {
		log.WithFields(n.LogTags).Errorf(
			"Content %s references unknown owner %s", content.ID, content.OwnerID,
		)
		return common.ErrOwnerNotFound
	}
	followerIDs, err := n.followers.FollowersOf(ctxt, content.OwnerID)
	if err != nil {
		log.WithError(err).WithFields(n.LogTags).Errorf(
			"Follower resolution failed for owner %s", content.OwnerID,
		)
		return err
	}
	// An uploader without followers is valid; nothing to announce
	published := 0
	for _, followerID := range followerIDs {
		event := common.FeedEvent{
			Kind:        common.KindContentPublished,
			Content:     content,
			PublishedAt: time.Now().UTC(),
		}
		targetGroup := common.PersonalGroup(followerID)
		if err := n.backplane.Publish(ctxt, targetGroup, event); err != nil {
			log.WithError(err).WithFields(n.LogTags).Errorf(
				"Dropped upload notice for follower %s of content %s",
				followerID, content.ID,
			)
			continue
		}
		published++
	}
	log.WithFields(n.LogTags).Infof(
		"Announced content %s to %d of %d followers",
		content.ID, published, len(followerIDs),
	)
	return nil
}
