package daemon

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"songfactory/internal/jobs"
	"songfactory/internal/logging"
)

const (
	writeWait        = 10 * time.Second
	progressInterval = 500 * time.Millisecond
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Command is a message sent by a websocket client.
type Command struct {
	Type string   `json:"type"`
	IDs  []int64  `json:"ids,omitempty"`
	Args []string `json:"args,omitempty"`
}

// Message is sent to websocket clients.
type Message struct {
	Type  string      `json:"type"`
	Event *jobs.Event `json:"event,omitempty"`
	RunID string      `json:"run_id,omitempty"`
	Error string      `json:"error,omitempty"`
}

// client serializes writes to one connection.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// hub fans run events out to websocket clients and turns their commands
// into runner calls.
type hub struct {
	daemon   *Daemon
	logger   *slog.Logger
	progress *rate.Limiter

	mu      sync.RWMutex
	clients map[*client]struct{}
}

func newHub(d *Daemon, logger *slog.Logger) *hub {
	return &hub{
		daemon:   d,
		logger:   logger,
		progress: rate.NewLimiter(rate.Every(progressInterval), 1),
		clients:  make(map[*client]struct{}),
	}
}

func (h *hub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// broadcast sends ev to every client. Progress events are throttled.
func (h *hub) broadcast(ev jobs.Event) {
	if ev.Type == jobs.EventProgress && !h.progress.Allow() {
		return
	}
	data, err := json.Marshal(Message{Type: "event", Event: &ev})
	if err != nil {
		h.logger.Error("failed to encode event", logging.Error(err))
		return
	}
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if err := c.write(data); err != nil {
			h.logger.Debug("dropping websocket client", logging.Error(err))
			h.remove(c)
		}
	}
}

func (h *hub) add(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		_ = c.conn.Close()
	}
}

func (h *hub) close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()
	for c := range clients {
		c.mu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server stopping"),
			time.Now().Add(time.Second))
		c.mu.Unlock()
		_ = c.conn.Close()
	}
}

func (h *hub) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", logging.Error(err))
		return
	}
	c := &client{conn: conn}
	h.add(c)
	h.logger.Debug("websocket client connected", logging.String("remote", r.RemoteAddr))

	active, runID := h.daemon.runner.Running()
	hello := Message{Type: "hello"}
	if active {
		hello.RunID = runID
	}
	if data, err := json.Marshal(hello); err == nil {
		_ = c.write(data)
	}

	go h.readLoop(c)
}

func (h *hub) readLoop(c *client) {
	defer h.remove(c)
	for {
		var cmd Command
		if err := c.conn.ReadJSON(&cmd); err != nil {
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) {
				h.logger.Debug("websocket read ended", logging.Error(err))
			}
			return
		}
		reply := h.dispatch(cmd)
		if data, err := json.Marshal(reply); err == nil {
			if err := c.write(data); err != nil {
				return
			}
		}
	}
}

// dispatch applies a client command and returns the acknowledgement.
func (h *hub) dispatch(cmd Command) Message {
	switch cmd.Type {
	case "confirm":
		h.daemon.Confirm()
		return Message{Type: "ack_confirm"}
	case "stop":
		h.daemon.StopRun()
		return Message{Type: "ack_stop"}
	case "run":
		runID, err := h.daemon.StartRun(jobs.RunOptions{IDs: cmd.IDs})
		if err != nil {
			return Message{Type: "error", Error: err.Error()}
		}
		return Message{Type: "ack_run", RunID: runID}
	default:
		return Message{Type: "error", Error: "unknown command " + cmd.Type}
	}
}
