package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/mentorgrid/conversations/internal/conversation"
	"github.com/mentorgrid/conversations/internal/data"
	"github.com/mentorgrid/conversations/internal/feed"
	"github.com/mentorgrid/conversations/internal/identity"
	"github.com/mentorgrid/conversations/internal/middleware"
	"github.com/mentorgrid/conversations/internal/projector"
)

// memStore is an in-memory stand-in for the Mongo-backed stores, good enough
// to exercise the HTTP surface without a database.
type memStore struct {
	mu      sync.Mutex
	threads map[string]*data.Thread
	msgs    []*data.Message
}

func newMemStore() *memStore {
	return &memStore{threads: make(map[string]*data.Thread)}
}

func (m *memStore) EnsureThread(_ context.Context, a, b data.Participant) (*data.Thread, error) {
	id, err := identity.PairID(a.ID, b.ID)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	th, ok := m.threads[id]
	if !ok {
		th = &data.Thread{ID: id, Participants: []string{a.ID, b.ID}, CreatedAt: now}
		m.threads[id] = th
	}
	th.UpdatedAt = now
	return th, nil
}

func (m *memStore) ListThreadsFor(_ context.Context, userID string) ([]*data.Thread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*data.Thread
	for _, th := range m.threads {
		if identity.Contains(th.ID, userID) {
			out = append(out, th)
		}
	}
	return out, nil
}

func (m *memStore) Append(_ context.Context, threadID, senderID, text, clientToken string) (*data.Message, error) {
	threadID = strings.TrimSpace(threadID)
	senderID = strings.TrimSpace(senderID)
	text = strings.TrimSpace(text)
	if threadID == "" || senderID == "" || text == "" {
		return nil, fmt.Errorf("%w: thread id, sender id and non-blank text are all required", data.ErrValidation)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	msg := &data.Message{
		ID: bson.NewObjectID(), ThreadID: threadID, SenderID: senderID, Text: text,
		CreatedAt: time.Now().UTC(), ReadBy: []string{senderID}, ClientToken: clientToken,
	}
	m.msgs = append(m.msgs, msg)
	return msg, nil
}

func (m *memStore) List(_ context.Context, threadID string, limit int64) ([]*data.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*data.Message
	for _, msg := range m.msgs {
		if msg.ThreadID == threadID {
			out = append(out, msg)
		}
	}
	if int64(len(out)) > limit {
		out = out[int64(len(out))-limit:]
	}
	return out, nil
}

func (m *memStore) MarkRead(_ context.Context, threadID string, messageID bson.ObjectID, readerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.msgs {
		if msg.ID == messageID && msg.ThreadID == threadID {
			for _, r := range msg.ReadBy {
				if r == readerID {
					return nil
				}
			}
			msg.ReadBy = append(msg.ReadBy, readerID)
			return nil
		}
	}
	return data.ErrMessageNotFound
}

func newTestRouter(t *testing.T) (*gin.Engine, *memStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := newMemStore()
	broker := feed.NewBroker()
	threadViews := projector.NewThreadListProjector(store, broker)
	msgViews := projector.NewMessageListProjector(store, broker)
	svc := conversation.New(store, store, threadViews, msgViews, broker)

	limiter := middleware.NewLimiterStore(6000, 100, time.Minute)
	t.Cleanup(limiter.Stop)
	return newRouter(svc, limiter), store
}

func doJSON(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	_ = json.NewEncoder(&buf).Encode(body)
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestEnsureThreadEndpoint(t *testing.T) {
	router, store := newTestRouter(t)

	body := ensureThreadRequest{
		Initiator: data.Participant{ID: "u1", Meta: data.ParticipantMeta{Name: "Ada"}},
		Partner:   data.Participant{ID: "u2", Meta: data.ParticipantMeta{Name: "Max", Role: data.RoleMentor}},
	}

	w := doJSON(router, http.MethodPost, "/v1/threads", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Thread data.Thread `json:"thread"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "u1_u2", resp.Thread.ID)

	// Ensuring again, in either order, converges on the same single thread.
	body.Initiator, body.Partner = body.Partner, body.Initiator
	w = doJSON(router, http.MethodPost, "/v1/threads", body)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, store.threads, 1)
}

func TestEnsureThreadEndpointInvalidParticipant(t *testing.T) {
	router, _ := newTestRouter(t)

	body := ensureThreadRequest{
		Initiator: data.Participant{ID: ""},
		Partner:   data.Participant{ID: "u2"},
	}
	w := doJSON(router, http.MethodPost, "/v1/threads", body)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
}

func TestSendMessageEndpoint(t *testing.T) {
	router, store := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/v1/threads/u1_u2/messages", sendMessageRequest{
		SenderID: "u1", Text: "hi",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Message      data.Message `json:"message"`
		SummaryStale bool         `json:"summaryStale"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "hi", resp.Message.Text)
	require.Equal(t, []string{"u1"}, resp.Message.ReadBy)
	require.False(t, resp.SummaryStale)
	require.Len(t, store.msgs, 1)
}

func TestSendMessageEndpointStoresTextVerbatim(t *testing.T) {
	router, store := newTestRouter(t)

	// Markup-significant characters pass through untouched; the stored text
	// is exactly what the sender wrote.
	text := `tickets < $20 & "fun"`
	w := doJSON(router, http.MethodPost, "/v1/threads/u1_u2/messages", sendMessageRequest{
		SenderID: "u1", Text: text,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	require.Len(t, store.msgs, 1)
	require.Equal(t, text, store.msgs[0].Text)
}

func TestSendMessageEndpointRejectsBlankText(t *testing.T) {
	router, store := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/v1/threads/u1_u2/messages", sendMessageRequest{
		SenderID: "u1", Text: "   ",
	})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
	require.Empty(t, store.msgs, "a rejected send must produce no message")
}

func TestMarkReadEndpoint(t *testing.T) {
	router, store := newTestRouter(t)

	msg, err := store.Append(context.Background(), "u1_u2", "u1", "hi", "")
	require.NoError(t, err)

	path := "/v1/threads/u1_u2/messages/" + msg.ID.Hex() + "/read"
	w := doJSON(router, http.MethodPost, path, markReadRequest{ReaderID: "u2"})
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())
	require.ElementsMatch(t, []string{"u1", "u2"}, store.msgs[0].ReadBy)

	// Unknown message id maps to 404.
	path = "/v1/threads/u1_u2/messages/" + bson.NewObjectID().Hex() + "/read"
	w = doJSON(router, http.MethodPost, path, markReadRequest{ReaderID: "u2"})
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestWatchMessagesWebsocket(t *testing.T) {
	router, store := newTestRouter(t)

	_, err := store.Append(context.Background(), "u1_u2", "u1", "hello there", "")
	require.NoError(t, err)

	srv := httptest.NewServer(router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/threads/u1_u2/messages/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame struct {
		Messages []projector.MessageView `json:"messages"`
	}
	require.NoError(t, conn.ReadJSON(&frame))
	require.Len(t, frame.Messages, 1)
	require.Equal(t, "hello there", frame.Messages[0].Message.Text)
	require.False(t, frame.Messages[0].CreatedAt.Pending)
}
