package data

import (
	"context"
	"errors"
	"testing"

	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestAppendValidation(t *testing.T) {
	// Validation happens before any store access.
	log := &MessageLog{}

	cases := []struct{ threadID, senderID, text string }{
		{"", "u1", "hi"},
		{"u1_u2", "", "hi"},
		{"u1_u2", "u1", ""},
		{"u1_u2", "u1", "   \t"},
	}
	for _, c := range cases {
		if _, err := log.Append(context.Background(), c.threadID, c.senderID, c.text, ""); !errors.Is(err, ErrValidation) {
			t.Fatalf("Append(%q, %q, %q) = %v, want ErrValidation", c.threadID, c.senderID, c.text, err)
		}
	}
}

func TestAppendAndList(t *testing.T) {
	c := setupDB(t)
	defer func() { _ = c.Close(context.Background()) }()

	threads := NewThreadStore(c.ThreadsCollection())
	log := NewMessageLog(c.MessagesCollection(), threads)
	ctx := context.Background()

	if _, err := threads.EnsureThread(ctx, Participant{ID: "u1"}, Participant{ID: "u2"}); err != nil {
		t.Fatalf("EnsureThread failed: %v", err)
	}

	sent, err := log.Append(ctx, "u1_u2", "u1", "  hi  ", "")
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if sent.Text != "hi" {
		t.Fatalf("text should be stored trimmed, got %q", sent.Text)
	}
	if len(sent.ReadBy) != 1 || sent.ReadBy[0] != "u1" {
		t.Fatalf("sender must be in readBy at creation, got %v", sent.ReadBy)
	}

	if _, err := log.Append(ctx, "u1_u2", "u2", "hello", ""); err != nil {
		t.Fatalf("second Append failed: %v", err)
	}

	msgs, err := log.List(ctx, "u1_u2", 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Text != "hi" || msgs[1].Text != "hello" {
		t.Fatalf("messages out of order: %q, %q", msgs[0].Text, msgs[1].Text)
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt) {
			t.Fatalf("createdAt must be non-decreasing")
		}
	}
}

func TestAppendUpdatesSummary(t *testing.T) {
	c := setupDB(t)
	defer func() { _ = c.Close(context.Background()) }()

	threads := NewThreadStore(c.ThreadsCollection())
	log := NewMessageLog(c.MessagesCollection(), threads)
	ctx := context.Background()

	if _, err := threads.EnsureThread(ctx, Participant{ID: "u1"}, Participant{ID: "u2"}); err != nil {
		t.Fatalf("EnsureThread failed: %v", err)
	}

	sent, err := log.Append(ctx, "u1_u2", "u1", "summary check", "")
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	th, err := threads.GetThread(ctx, "u1_u2")
	if err != nil {
		t.Fatalf("GetThread failed: %v", err)
	}
	if th.LastMessage == nil || th.LastMessage.Text != "summary check" {
		t.Fatalf("summary does not reflect the latest append: %+v", th.LastMessage)
	}
	if th.UpdatedAt.Before(sent.CreatedAt) {
		t.Fatalf("updatedAt %v must not precede the message's createdAt %v", th.UpdatedAt, sent.CreatedAt)
	}
}

func TestAppendToUnknownThreadReportsStaleSummary(t *testing.T) {
	c := setupDB(t)
	defer func() { _ = c.Close(context.Background()) }()

	threads := NewThreadStore(c.ThreadsCollection())
	log := NewMessageLog(c.MessagesCollection(), threads)

	// The log write lands, the summary update cannot: callers get the message
	// plus the staleness signal.
	msg, err := log.Append(context.Background(), "ghost_thread", "u1", "hi", "")
	if !errors.Is(err, ErrSummaryStale) {
		t.Fatalf("expected ErrSummaryStale, got %v", err)
	}
	if msg == nil {
		t.Fatalf("the appended message must still be returned")
	}
}

func TestMarkReadMonotone(t *testing.T) {
	c := setupDB(t)
	defer func() { _ = c.Close(context.Background()) }()

	threads := NewThreadStore(c.ThreadsCollection())
	log := NewMessageLog(c.MessagesCollection(), threads)
	ctx := context.Background()

	if _, err := threads.EnsureThread(ctx, Participant{ID: "u1"}, Participant{ID: "u2"}); err != nil {
		t.Fatalf("EnsureThread failed: %v", err)
	}
	sent, err := log.Append(ctx, "u1_u2", "u1", "read me", "")
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	// Marking twice leaves exactly one copy of each reader.
	for i := 0; i < 2; i++ {
		if err := log.MarkRead(ctx, "u1_u2", sent.ID, "u2"); err != nil {
			t.Fatalf("MarkRead failed: %v", err)
		}
	}

	msgs, err := log.List(ctx, "u1_u2", 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	got := msgs[0].ReadBy
	if len(got) != 2 {
		t.Fatalf("expected readBy {u1, u2}, got %v", got)
	}
	seen := map[string]bool{}
	for _, r := range got {
		seen[r] = true
	}
	if !seen["u1"] || !seen["u2"] {
		t.Fatalf("readBy must contain both the sender and the reader: %v", got)
	}
}

func TestMarkReadUnknownMessage(t *testing.T) {
	c := setupDB(t)
	defer func() { _ = c.Close(context.Background()) }()

	threads := NewThreadStore(c.ThreadsCollection())
	log := NewMessageLog(c.MessagesCollection(), threads)

	err := log.MarkRead(context.Background(), "u1_u2", bson.NewObjectID(), "u2")
	if !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("expected ErrMessageNotFound, got %v", err)
	}
}
