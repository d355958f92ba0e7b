// Package identity derives canonical thread identifiers.
package identity

import (
	"errors"
	"fmt"
	"strings"
)

// Separator joins the two participant ids inside a thread id. It is reserved:
// participant ids must never contain it.
const Separator = "_"

// ErrInvalidParticipant reports a missing or malformed participant id.
var ErrInvalidParticipant = errors.New("invalid participant")

// PairID maps an unordered pair of participant ids to the canonical thread id.
// The pair is sorted lexicographically before joining, so PairID(a, b) and
// PairID(b, a) always agree and the mapping is injective over valid pairs.
func PairID(a, b string) (string, error) {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	if a == "" || b == "" {
		return "", fmt.Errorf("%w: empty participant id", ErrInvalidParticipant)
	}
	if strings.Contains(a, Separator) || strings.Contains(b, Separator) {
		return "", fmt.Errorf("%w: participant id contains reserved separator %q", ErrInvalidParticipant, Separator)
	}
	if a == b {
		return "", fmt.Errorf("%w: a thread needs two distinct participants", ErrInvalidParticipant)
	}
	if a > b {
		a, b = b, a
	}
	return a + Separator + b, nil
}

// Participants splits a canonical thread id back into its sorted pair.
func Participants(threadID string) (string, string, bool) {
	a, b, ok := strings.Cut(threadID, Separator)
	if !ok || a == "" || b == "" {
		return "", "", false
	}
	return a, b, true
}

// Contains reports whether the canonical thread id names userID as one of its
// two participants.
func Contains(threadID, userID string) bool {
	a, b, ok := Participants(threadID)
	return ok && (a == userID || b == userID)
}
