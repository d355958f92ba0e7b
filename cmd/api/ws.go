package main

import (
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mentorgrid/conversations/internal/projector"
)

const (
	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
	writeWait    = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The browser clients live on the marketing/app origins; access control
	// is out of scope for this service.
	CheckOrigin: func(*http.Request) bool { return true },
}

// watchThreads streams the user's live thread list over a websocket. The
// subscription is disposed the moment the peer goes away, so a closed tab
// never leaks a live query.
func (a *api) watchThreads(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	sock := newSocket(conn)
	defer sock.close()

	dispose := a.svc.SubscribeThreads(c.Param("id"), func(view []projector.ThreadView) {
		sock.writeJSON(gin.H{"threads": view})
	})
	defer dispose()

	sock.readUntilClose()
}

// watchMessages streams one thread's live message window over a websocket.
// The optional ?max= query bounds the window.
func (a *api) watchMessages(c *gin.Context) {
	// Bad or missing ?max= values fall through to the default window.
	var max int64
	if v, ok := c.GetQuery("max"); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			max = n
		}
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	sock := newSocket(conn)
	defer sock.close()

	dispose := a.svc.SubscribeMessages(c.Param("id"), func(view []projector.MessageView) {
		sock.writeJSON(gin.H{"messages": view})
	}, max)
	defer dispose()

	sock.readUntilClose()
}

// socket serializes writes to one websocket connection: projector callbacks
// and the keepalive ping goroutine both write to it.
type socket struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
	stop chan struct{}
	once sync.Once
}

func newSocket(conn *websocket.Conn) *socket {
	s := &socket{id: uuid.NewString(), conn: conn, stop: make(chan struct{})}
	go s.pingLoop()
	return s
}

func (s *socket) writeJSON(v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteJSON(v); err != nil {
		log.Printf("ws %s write: %v", s.id, err)
	}
}

// readUntilClose discards inbound frames until the peer closes or stops
// answering pings.
func (s *socket) readUntilClose() {
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *socket) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := s.conn.WriteMessage(websocket.PingMessage, nil)
			s.mu.Unlock()
			if err != nil {
				return
			}
		case <-s.stop:
			return
		}
	}
}

func (s *socket) close() {
	s.once.Do(func() {
		close(s.stop)
		_ = s.conn.Close()
	})
}
