package data

import "errors"

var (
	// ErrValidation reports a rejected write: blank text or a missing thread
	// or sender id. The write has no effect.
	ErrValidation = errors.New("validation failed")

	// ErrStoreUnavailable reports a transient store failure. The caller may
	// retry; nothing is retried internally.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrSummaryStale reports that a message was durably appended but the
	// owning thread's lastMessage summary could not be updated. The log is
	// authoritative; the summary catches up on the next successful append.
	ErrSummaryStale = errors.New("thread summary stale")

	// ErrThreadNotFound reports a lookup for a thread id that was never
	// created.
	ErrThreadNotFound = errors.New("thread not found")

	// ErrMessageNotFound reports a read-receipt update for a message that
	// does not exist in the addressed thread.
	ErrMessageNotFound = errors.New("message not found")
)
