// Package websocket fans orchestrator events out to websocket clients and
// accepts prompt and cancel commands from them.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-chat/core/events"
)

const (
	sendBufferSize = 256
	pongWait       = 60 * time.Second
	pingInterval   = 30 * time.Second
	writeWait      = 10 * time.Second
	maxMessageSize = 1 << 20
)

const (
	CommandPrompt = "prompt"
	CommandCancel = "cancel"

	// KindError is the envelope kind of a command failure. It is sent only
	// to the client that issued the command.
	KindError = "error"
)

// Envelope is the JSON frame sent for every event.
type Envelope struct {
	Kind           string    `json:"kind"`
	Timestamp      time.Time `json:"timestamp"`
	ConversationID string    `json:"conversation_id,omitempty"`
	TurnID         string    `json:"turn_id,omitempty"`
	Data           any       `json:"data,omitempty"`
}

// Command is a frame received from a client.
type Command struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
	Text           string `json:"text,omitempty"`
}

// Controller carries out client commands. Prompt blocks for the duration of
// the turn.
type Controller interface {
	Prompt(ctx context.Context, conversationID, text string) error
	Cancel(conversationID string) bool
}

type Hub struct {
	upgrader   websocket.Upgrader
	controller Controller

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

type HubOption func(*Hub)

// WithCheckOrigin replaces the origin check of the upgrader. By default only
// same-origin requests are accepted.
func WithCheckOrigin(check func(r *http.Request) bool) HubOption {
	return func(h *Hub) {
		h.upgrader.CheckOrigin = check
	}
}

func NewHub(controller Controller, opts ...HubOption) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	hub := &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		controller: controller,
		ctx:        ctx,
		cancel:     cancel,
		clients:    map[*client]struct{}{},
	}
	for _, opt := range opts {
		opt(hub)
	}
	return hub
}

// Handle broadcasts event to every connected client. It has the signature of
// an orchestration event handler and never blocks: a client whose send
// buffer is full misses the frame.
func (h *Hub) Handle(event events.Event) {
	data, err := json.Marshal(Envelope{
		Kind:           string(event.Kind()),
		Timestamp:      event.Timestamp(),
		ConversationID: event.ConversationID(),
		TurnID:         event.TurnID(),
		Data:           event,
	})
	if err != nil {
		logger.Error("failed to encode event", "kind", event.Kind(), "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		if !client.queue(data) {
			logger.Warn("dropping event for slow websocket client", "kind", event.Kind(), "remote", client.remote)
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("failed to upgrade websocket connection", "remote", r.RemoteAddr, "error", err)
		return
	}

	client := &client{
		conn:   conn,
		remote: r.RemoteAddr,
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[client] = struct{}{}
	h.wg.Add(2)
	h.mu.Unlock()

	logger.Info("websocket client connected", "remote", client.remote)
	go h.writeLoop(client)
	go h.readLoop(client)
}

// Close disconnects every client and waits for running commands to finish.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.Unlock()

	h.cancel()
	for _, client := range clients {
		client.close()
	}
	h.wg.Wait()
	return nil
}

func (h *Hub) remove(client *client) {
	h.mu.Lock()
	delete(h.clients, client)
	h.mu.Unlock()
	client.close()
}

func (h *Hub) readLoop(client *client) {
	defer h.wg.Done()
	defer h.remove(client)

	client.conn.SetReadLimit(maxMessageSize)
	_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("websocket read failed", "remote", client.remote, "error", err)
			}
			return
		}

		var command Command
		if err := json.Unmarshal(data, &command); err != nil {
			h.reply(client, command, fmt.Errorf("malformed command: %w", err))
			continue
		}
		h.dispatch(client, command)
	}
}

func (h *Hub) dispatch(client *client, command Command) {
	switch command.Type {
	case CommandPrompt:
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			if err := h.prompt(command); err != nil {
				h.reply(client, command, err)
			}
		}()

	case CommandCancel:
		if !h.controller.Cancel(command.ConversationID) {
			h.reply(client, command, fmt.Errorf("no running turn for conversation %q", command.ConversationID))
		}

	default:
		h.reply(client, command, fmt.Errorf("unknown command type %q", command.Type))
	}
}

func (h *Hub) prompt(command Command) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("prompt panicked: %v", recovered)
		}
	}()
	return h.controller.Prompt(h.ctx, command.ConversationID, command.Text)
}

func (h *Hub) reply(client *client, command Command, err error) {
	data, marshalErr := json.Marshal(Envelope{
		Kind:           KindError,
		Timestamp:      time.Now(),
		ConversationID: command.ConversationID,
		Data:           map[string]string{"command": command.Type, "error": err.Error()},
	})
	if marshalErr != nil {
		logger.Error("failed to encode command error", "error", marshalErr)
		return
	}
	client.queue(data)
}

func (h *Hub) writeLoop(client *client) {
	defer h.wg.Done()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case data := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				client.close()
				_ = client.conn.Close()
				return
			}

		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				client.close()
				_ = client.conn.Close()
				return
			}

		case <-client.done:
			_ = client.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			_ = client.conn.Close()
			return
		}
	}
}

type client struct {
	conn   *websocket.Conn
	remote string
	send   chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

func (c *client) queue(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// close stops the write loop, which closes the connection and so ends the
// read loop.
func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
