package main

import (
	"errors"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/mentorgrid/conversations/internal/conversation"
	"github.com/mentorgrid/conversations/internal/data"
	"github.com/mentorgrid/conversations/internal/middleware"
)

type api struct {
	svc *conversation.Service
}

func newRouter(svc *conversation.Service, limiter *middleware.LimiterStore) *gin.Engine {
	r := gin.Default()
	r.Use(cors.Default())

	a := &api{svc: svc}
	v1 := r.Group("/v1")
	v1.POST("/threads", middleware.RateLimit(limiter), a.ensureThread)
	v1.POST("/threads/:id/messages", middleware.RateLimit(limiter), a.sendMessage)
	v1.POST("/threads/:id/messages/:mid/read", a.markRead)
	v1.GET("/users/:id/threads/ws", a.watchThreads)
	v1.GET("/threads/:id/messages/ws", a.watchMessages)
	return r
}

type ensureThreadRequest struct {
	Initiator data.Participant `json:"initiator"`
	Partner   data.Participant `json:"partner"`
}

// ensureThread creates or merges the canonical thread for a participant pair.
func (a *api) ensureThread(c *gin.Context) {
	var req ensureThreadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request body"})
		return
	}

	th, err := a.svc.EnsureThread(c.Request.Context(), req.Initiator, req.Partner)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"thread": th})
}

type sendMessageRequest struct {
	SenderID string `json:"senderId"`
	Text     string `json:"text"`
}

// sendMessage appends one message to the thread's log. A durable append whose
// summary update lagged still succeeds, flagged so clients can tell.
func (a *api) sendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request body"})
		return
	}

	// The log stores the sender's text verbatim (after the facade's trim);
	// escaping is the renderer's job, not the store's.
	msg, err := a.svc.SendMessage(c.Request.Context(), c.Param("id"), req.SenderID, req.Text)
	if err != nil && !errors.Is(err, conversation.ErrSummaryStale) {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message":      msg,
		"summaryStale": errors.Is(err, conversation.ErrSummaryStale),
	})
}

type markReadRequest struct {
	ReaderID string `json:"readerId"`
}

// markRead adds the reader to a message's readBy set.
func (a *api) markRead(c *gin.Context) {
	var req markReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request body"})
		return
	}
	msgID, err := bson.ObjectIDFromHex(c.Param("mid"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed message id"})
		return
	}

	if err := a.svc.MarkRead(c.Request.Context(), c.Param("id"), msgID, req.ReaderID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// respondError maps the facade's error taxonomy onto HTTP statuses. Failures
// are always distinguishable from success; nothing is swallowed.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, conversation.ErrInvalidParticipant),
		errors.Is(err, conversation.ErrValidation):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, conversation.ErrThreadNotFound),
		errors.Is(err, conversation.ErrMessageNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, conversation.ErrStoreUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store unavailable, retry"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
