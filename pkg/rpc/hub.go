// Package rpc implements the in-call control / inter-host facade: a
// JSON-RPC-over-REST transport carrying CC<->VC and Control->VC
// messages, plus a gorilla/websocket hub that fans out the activity log
// to dashboard/ICC subscribers over stdlib net/http JSON handlers and a
// client-registration websocket hub.
package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/dvmproject-go/dvmhost/pkg/logger"
	"github.com/gorilla/websocket"
)

// ActivityEvent is one line of the live activity log fanned out to
// dashboard/ICC subscribers over an explicit subscription list.
type ActivityEvent struct {
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

func (e *ActivityEvent) marshal() ([]byte, error) { return json.Marshal(e) }

// subscriber is one registered websocket connection.
type subscriber struct {
	id       string
	conn     *websocket.Conn
	messages chan []byte
}

// ActivityHub manages websocket subscriber connections and broadcasts
// ActivityEvents to all of them.
type ActivityHub struct {
	log *logger.Logger

	mu          sync.RWMutex
	subscribers map[*subscriber]bool

	broadcast  chan ActivityEvent
	register   chan *subscriber
	unregister chan *subscriber
}

// NewActivityHub constructs an ActivityHub. Call Run in its own
// goroutine to start the fan-out loop.
func NewActivityHub(log *logger.Logger) *ActivityHub {
	if log == nil {
		log = logger.New(logger.Config{Level: "info"})
	}
	return &ActivityHub{
		log:         log.WithComponent("rpc"),
		subscribers: make(map[*subscriber]bool),
		broadcast:   make(chan ActivityEvent, 256),
		register:    make(chan *subscriber),
		unregister:  make(chan *subscriber),
	}
}

// Run drives the hub's registration/broadcast loop until ctx is
// cancelled.
func (h *ActivityHub) Run(ctx context.Context) {
	for {
		select {
		case s := <-h.register:
			h.mu.Lock()
			h.subscribers[s] = true
			h.mu.Unlock()
			h.log.Debug("activity subscriber registered", logger.String("id", s.id))

		case s := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.subscribers[s]; ok {
				delete(h.subscribers, s)
				close(s.messages)
			}
			h.mu.Unlock()
			h.log.Debug("activity subscriber unregistered", logger.String("id", s.id))

		case event := <-h.broadcast:
			data, err := event.marshal()
			if err != nil {
				h.log.Error("failed to marshal activity event", logger.Error(err))
				continue
			}
			h.mu.RLock()
			for s := range h.subscribers {
				select {
				case s.messages <- data:
				default:
					h.log.Warn("subscriber buffer full, skipping", logger.String("id", s.id))
				}
			}
			h.mu.RUnlock()

		case <-ctx.Done():
			h.mu.Lock()
			for s := range h.subscribers {
				close(s.messages)
			}
			h.subscribers = make(map[*subscriber]bool)
			h.mu.Unlock()
			return
		}
	}
}

// Publish enqueues an event for broadcast, dropping it if the broadcast
// channel is saturated rather than blocking the caller.
func (h *ActivityHub) Publish(eventType string, data map[string]interface{}) {
	select {
	case h.broadcast <- ActivityEvent{Type: eventType, Timestamp: time.Now(), Data: data}:
	default:
		h.log.Warn("activity broadcast channel full, dropping event", logger.String("type", eventType))
	}
}

// SubscriberCount reports how many websocket clients are attached.
func (h *ActivityHub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Handler returns the HTTP handler that upgrades a connection and
// registers it as a subscriber.
func (h *ActivityHub) Handler() http.Handler {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			http.Error(w, "websocket upgrade failed", http.StatusBadRequest)
			return
		}
		s := &subscriber{id: r.RemoteAddr, conn: conn, messages: make(chan []byte, 256)}
		h.register <- s

		go func() {
			defer func() {
				h.unregister <- s
				_ = s.conn.Close()
			}()
			s.conn.SetReadLimit(1024)
			for {
				if _, _, err := s.conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		go func() {
			for msg := range s.messages {
				_ = s.conn.WriteMessage(websocket.TextMessage, msg)
			}
		}()
	})
}
