package data

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Role classifies a thread participant. It is a closed variant resolved once
// when a thread is created, never re-derived afterwards.
type Role string

const (
	RoleMentor Role = "mentor"
	RoleMentee Role = "mentee"
)

// ParticipantMeta is display metadata for one participant. Name and AvatarURL
// are refreshed on every merge and carry no identity authority; Role is fixed
// at creation time.
type ParticipantMeta struct {
	Name      string `bson:"name" json:"name"`
	AvatarURL string `bson:"avatarUrl,omitempty" json:"avatarUrl,omitempty"`
	Role      Role   `bson:"role" json:"role"`
}

// Participant is the caller-supplied record EnsureThread consumes: an id plus
// the display metadata to merge alongside it.
type Participant struct {
	ID   string          `json:"id"`
	Meta ParticipantMeta `json:"meta"`
}

// MessageSummary is the denormalized lastMessage cache held on a thread. A new
// append replaces it wholesale; it is never independently authored.
type MessageSummary struct {
	Text      string    `bson:"text" json:"text"`
	SenderID  string    `bson:"senderId" json:"senderId"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

// Thread maps to the threads collection: the persistent identity of one
// two-party conversation.
type Thread struct {
	ID              string                     `bson:"_id" json:"id"`
	Participants    []string                   `bson:"participants" json:"participants"`
	ParticipantMeta map[string]ParticipantMeta `bson:"participantMeta" json:"participantMeta"`
	LastMessage     *MessageSummary            `bson:"lastMessage" json:"lastMessage"`
	CreatedAt       time.Time                  `bson:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time                  `bson:"updatedAt" json:"updatedAt"`
}

// Message maps to the messages collection: one immutable entry in a thread's
// log. ReadBy is the only mutable field and only ever grows.
type Message struct {
	ID        bson.ObjectID `bson:"_id,omitempty" json:"id"`
	ThreadID  string        `bson:"threadId" json:"threadId"`
	SenderID  string        `bson:"senderId" json:"senderId"`
	Text      string        `bson:"text" json:"text"`
	CreatedAt time.Time     `bson:"createdAt" json:"createdAt"`
	ReadBy    []string      `bson:"readBy" json:"readBy"`

	// ClientToken correlates an optimistic, locally-held copy of a message
	// with the store-acknowledged one.
	ClientToken string `bson:"clientToken,omitempty" json:"clientToken,omitempty"`
}

// Timestamp is a tagged ordering key. Pending marks a value not yet
// acknowledged by the store's clock; pending keys order after every resolved
// key.
type Timestamp struct {
	Time    time.Time `json:"time"`
	Pending bool      `json:"pending"`
}

// Before reports whether t orders strictly before u in ascending views.
func (t Timestamp) Before(u Timestamp) bool {
	if t.Pending != u.Pending {
		return !t.Pending
	}
	return t.Time.Before(u.Time)
}
