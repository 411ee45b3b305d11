package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"firequest/pipeline"
)

// MessageType tags stream messages.
type MessageType string

const (
	PredictionRecorded MessageType = "prediction_recorded"
)

// Message is the envelope pushed to websocket clients.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
	ID        string          `json:"id"`
}

// PredictionMessage is the Data of a PredictionRecorded message.
type PredictionMessage struct {
	Label      string   `json:"label"`
	Confidence *float64 `json:"confidence,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
}

type client struct {
	conn      *websocket.Conn
	send      chan []byte
	clientID  string
	sessionID string
}

type delivery struct {
	sessionID string
	payload   []byte
}

// Hub fans recorded predictions out to the websocket clients watching the
// session they belong to.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan delivery
	register   chan *client
	unregister chan *client
	mu         sync.RWMutex
	done       chan struct{}
	upgrader   websocket.Upgrader
	logger     *zap.Logger
}

// NewHub creates a hub; Run must be started before clients connect.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan delivery, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logger,
	}
}

// Run processes registrations and broadcasts until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.logger.Debug("websocket client connected",
				zap.String("client_id", c.clientID), zap.String("session_id", c.sessionID))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			h.logger.Debug("websocket client disconnected", zap.String("client_id", c.clientID))

		case d := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				if c.sessionID != d.sessionID {
					continue
				}
				select {
				case c.send <- d.payload:
				default:
					close(c.send)
					delete(h.clients, c)
				}
			}
			h.mu.Unlock()

		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return nil
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Serve upgrades the request and streams the session's predictions to it.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, sessionID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{
		conn:      conn,
		send:      make(chan []byte, 64),
		clientID:  uuid.NewString(),
		sessionID: sessionID,
	}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump(h.logger)
	go c.readPump(h)
}

// RecordPrediction implements pipeline.Recorder. It never blocks; a full
// queue drops the message.
func (h *Hub) RecordPrediction(ctx context.Context, rec pipeline.Record) error {
	data, err := json.Marshal(PredictionMessage{
		Label:      rec.Result.Label,
		Confidence: rec.Result.Confidence,
		Warnings:   rec.Warnings,
	})
	if err != nil {
		return err
	}
	payload, err := json.Marshal(Message{
		Type:      PredictionRecorded,
		Timestamp: rec.At,
		Data:      data,
		ID:        uuid.NewString(),
	})
	if err != nil {
		return err
	}

	select {
	case h.broadcast <- delivery{sessionID: rec.SessionID, payload: payload}:
	default:
		h.logger.Warn("websocket broadcast queue is full, dropping message",
			zap.String("session_id", rec.SessionID))
	}
	return nil
}

func (c *client) writePump(logger *zap.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Debug("websocket write error", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only watches for the peer going away; clients send nothing.
func (c *client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}
	}
}
