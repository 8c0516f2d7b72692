package common

import (
	"fmt"
	"regexp"
	"time"
)

// FeedEventKind enumerates the event kinds delivered to clients
type FeedEventKind string

const (
	// KindContentPublished signals newly uploaded content to followers
	KindContentPublished FeedEventKind = "content-published"
	// KindTrendingUpdated signals a trending set entry to all clients
	KindTrendingUpdated FeedEventKind = "trending-updated"
)

// TrendingGroup is the shared delivery group every identified connection joins
const TrendingGroup = "trending"

// PersonalGroup returns the personal delivery group name for a user
func PersonalGroup(userID string) string {
	return fmt.Sprintf("user_%s", userID)
}

// groupNamePattern group names must be safe for use as backplane subject
// tokens
var groupNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateGroupName check whether a string is a valid delivery group name
func ValidateGroupName(name string) error {
	if !groupNamePattern.MatchString(name) {
		return fmt.Errorf("'%s' is not a valid delivery group name", name)
	}
	return nil
}

// ContentRecord is one content item as stored by the platform data store.
//
// The feed layer treats it as an opaque read-only payload; Likes is the
// engagement count owned and mutated by the data store.
type ContentRecord struct {
	ID         string    `json:"id" validate:"required"`
	OwnerID    string    `json:"owner_id" validate:"required"`
	Title      string    `json:"title"`
	FilePath   string    `json:"file_path"`
	Likes      int64     `json:"likes"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// FeedEvent is one immutable message to fan out to a delivery group.
//
// Created by the upload notifier or the trending runner, consumed once per
// subscribing instance, then discarded. Never persisted, no replay.
type FeedEvent struct {
	// Kind is the event kind
	Kind FeedEventKind `json:"kind" validate:"required,oneof=content-published trending-updated"`
	// Group is the target delivery group name
	Group string `json:"group" validate:"required"`
	// Content is the content record carried by the event
	Content ContentRecord `json:"content" validate:"required,dive"`
	// Source names the publishing instance
	Source string `json:"source" validate:"required"`
	// PublishedAt is the publisher's timestamp
	PublishedAt time.Time `json:"published_at"`
}

// String implements toString for FeedEvent
func (e FeedEvent) String() string {
	return fmt.Sprintf("%s@%s[%s]", e.Kind, e.Group, e.Content.ID)
}
