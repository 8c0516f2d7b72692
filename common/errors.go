package common

import "errors"

// Failure taxonomy of the feed distribution subsystem. All of these degrade
// feed freshness only; none should ever fail an originating user request.
var (
	// ErrRelayUnavailable indicates the relay backplane is unreachable.
	// The publish is dropped after logging. No retry queue, no durability.
	ErrRelayUnavailable = errors.New("relay backplane unavailable")

	// ErrOwnerNotFound indicates an upload notification referenced a user
	// record the data store cannot resolve. Logged, no event published.
	ErrOwnerNotFound = errors.New("content owner not found")

	// ErrConnectionGone indicates a dispatch target vanished mid-delivery.
	// Silently skipped, never surfaced to the dispatch caller.
	ErrConnectionGone = errors.New("connection gone")

	// ErrStaleRunSkipped indicates a trending recomputation trigger fired
	// while a prior run was still active. Informational, not a failure.
	ErrStaleRunSkipped = errors.New("recomputation run already in progress")
)
