// Package data provides the conversation models and MongoDB-backed stores.
package data

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mentorgrid/conversations/internal/identity"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ThreadStore owns the Thread aggregate: creation/merge, summary updates and
// participant metadata.
type ThreadStore struct {
	coll *mongo.Collection
}

// NewThreadStore returns a ThreadStore using the given collection.
func NewThreadStore(coll *mongo.Collection) *ThreadStore {
	return &ThreadStore{coll: coll}
}

// EnsureThread guarantees a thread exists for the participant pair. It issues
// a single merge write (upsert): participants, display metadata and updatedAt
// are (re)written on every call, createdAt, the null lastMessage and the
// participant roles only when the document is first created. There is no
// read-then-write, so the call is safe to issue from both participants at
// once and to retry after a transient failure.
//
// Missing roles are defaulted by position: the initiating participant is
// assumed to be the mentee, the other side the mentor. The defaults only
// matter at creation; once stored, roles never change.
func (s *ThreadStore) EnsureThread(ctx context.Context, a, b Participant) (*Thread, error) {
	// Derive the canonical thread id first; this also validates both ids
	id, err := identity.PairID(a.ID, b.ID)
	if err != nil {
		return nil, err
	}
	a.ID = strings.TrimSpace(a.ID)
	b.ID = strings.TrimSpace(b.ID)
	// Default the roles by calling position (initiator = mentee)
	// These feed $setOnInsert below, so they are only resolved once:
	// a later merge from the other side cannot flip mentor and mentee
	if a.Meta.Role == "" {
		a.Meta.Role = RoleMentee
	}
	if b.Meta.Role == "" {
		b.Meta.Role = RoleMentor
	}

	// Store the pair sorted so the array matches the canonical id order
	pair := []string{a.ID, b.ID}
	sort.Strings(pair)

	now := time.Now().UTC()

	// Merge fields: rewritten on every call, from either participant
	set := bson.M{
		"participants": pair,
		"updatedAt":    now,
	}
	// Creation-only fields: written once when the upsert inserts
	setOnInsert := bson.M{
		"createdAt":   now,
		"lastMessage": nil,
	}
	for pid, meta := range map[string]ParticipantMeta{a.ID: a.Meta, b.ID: b.Meta} {
		// Display metadata merges when supplied; an absent value never
		// blanks what is already stored
		if meta.Name != "" {
			set["participantMeta."+pid+".name"] = meta.Name
		}
		if meta.AvatarURL != "" {
			set["participantMeta."+pid+".avatarUrl"] = meta.AvatarURL
		}
		// Dotted path keeps the role out of the merge set entirely
		setOnInsert["participantMeta."+pid+".role"] = meta.Role
	}

	update := bson.M{"$set": set, "$setOnInsert": setOnInsert}
	opts := options.UpdateOne().SetUpsert(true)
	if _, err := s.coll.UpdateOne(ctx, bson.M{"_id": id}, update, opts); err != nil {
		return nil, fmt.Errorf("%w: ensure thread %s: %v", ErrStoreUnavailable, id, err)
	}

	return s.GetThread(ctx, id)
}

// GetThread fetches one thread by its canonical id.
func (s *ThreadStore) GetThread(ctx context.Context, id string) (*Thread, error) {
	var th Thread
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&th)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrThreadNotFound
		}
		return nil, fmt.Errorf("%w: get thread %s: %v", ErrStoreUnavailable, id, err)
	}
	return &th, nil
}

// ListThreadsFor returns every thread the user participates in, most recently
// updated first. The live projector re-sorts on top of this to place threads
// with an unresolved order key last.
func (s *ThreadStore) ListThreadsFor(ctx context.Context, userID string) ([]*Thread, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: empty user id", ErrValidation)
	}

	// Sort newest activity first (-1 = descending on updatedAt)
	opts := options.Find().SetSort(bson.D{{Key: "updatedAt", Value: -1}})
	// Matching a scalar against the participants array is Mongo's
	// array-contains query; the multikey index serves it
	cursor, err := s.coll.Find(ctx, bson.M{"participants": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: list threads for %s: %v", ErrStoreUnavailable, userID, err)
	}
	// Ensure cursor is closed when done (cleanup)
	defer cursor.Close(ctx)

	// All() reads every document from the cursor into the slice
	var threads []*Thread
	if err := cursor.All(ctx, &threads); err != nil {
		return nil, fmt.Errorf("%w: decode threads for %s: %v", ErrStoreUnavailable, userID, err)
	}
	return threads, nil
}

// SetLastMessage replaces the thread's denormalized summary and bumps
// updatedAt. Called by the message log after every successful append; the
// summary is a cache of the log's latest entry, nothing more.
func (s *ThreadStore) SetLastMessage(ctx context.Context, threadID string, summary MessageSummary) error {
	// updatedAt never moves backwards: take the later of now and the
	// message's own timestamp
	now := time.Now().UTC()
	if now.Before(summary.CreatedAt) {
		now = summary.CreatedAt
	}
	update := bson.M{"$set": bson.M{
		"lastMessage": summary,
		"updatedAt":   now,
	}}
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": threadID}, update)
	if err != nil {
		return fmt.Errorf("%w: update summary for %s: %v", ErrStoreUnavailable, threadID, err)
	}
	// No matched document means the thread was never ensured
	if res.MatchedCount == 0 {
		return ErrThreadNotFound
	}
	return nil
}
