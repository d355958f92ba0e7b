package conversation

import (
	"github.com/mentorgrid/conversations/internal/data"
	"github.com/mentorgrid/conversations/internal/identity"
)

// The facade's error taxonomy, re-exported from the layers that raise the
// errors so callers match everything with errors.Is against this package.
var (
	// ErrInvalidParticipant: one or both participant ids missing or malformed
	// at thread-identity derivation. Fatal to the call, not retried.
	ErrInvalidParticipant = identity.ErrInvalidParticipant

	// ErrValidation: blank message text or a missing sender/thread at send
	// time. The write has no effect; this is never swallowed silently.
	ErrValidation = data.ErrValidation

	// ErrStoreUnavailable: transient store failure on a write. The caller
	// owns retrying; re-invoking EnsureThread or SendMessage is safe.
	ErrStoreUnavailable = data.ErrStoreUnavailable

	// ErrSummaryStale: the message was durably appended but the thread's
	// cached lastMessage could not be updated. The log is authoritative; the
	// summary catches up on the next successful append.
	ErrSummaryStale = data.ErrSummaryStale

	// ErrThreadNotFound / ErrMessageNotFound: the addressed document does not
	// exist.
	ErrThreadNotFound  = data.ErrThreadNotFound
	ErrMessageNotFound = data.ErrMessageNotFound
)
