package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/conneroisu/roaster/internal/logging"
	"github.com/google/uuid"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Send pings to peer with this period.
	pingPeriod = 30 * time.Second

	// Messages queued per client before it is dropped.
	clientBuffer = 16
)

// Live reload message types.
const (
	MessageReload       = "reload"
	MessageCompileError = "compile_error"
)

// ReloadMessage is pushed to browsers when an asset changes.
type ReloadMessage struct {
	Type      string    `json:"type"`
	Path      string    `json:"path,omitempty"`
	Message   string    `json:"message,omitempty"`
	Line      int       `json:"line,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type reloadClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// ReloadHub fans reload messages out to connected browsers.
type ReloadHub struct {
	clients      map[*reloadClient]struct{}
	clientsMutex sync.RWMutex
	register     chan *reloadClient
	unregister   chan *reloadClient
	broadcast    chan []byte
	done         chan struct{}
	logger       logging.Logger
}

// NewReloadHub creates a hub. Run must be called before clients connect.
func NewReloadHub(logger logging.Logger) *ReloadHub {
	if logger == nil {
		logger = logging.Discard()
	}
	return &ReloadHub{
		clients:    make(map[*reloadClient]struct{}),
		register:   make(chan *reloadClient),
		unregister: make(chan *reloadClient),
		broadcast:  make(chan []byte, clientBuffer),
		done:       make(chan struct{}),
		logger:     logger.WithComponent("livereload"),
	}
}

// Run dispatches messages until ctx is cancelled, then disconnects every
// client.
func (h *ReloadHub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		h.clientsMutex.Lock()
		for c := range h.clients {
			delete(h.clients, c)
			close(c.send)
		}
		h.clientsMutex.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			h.clientsMutex.Lock()
			h.clients[c] = struct{}{}
			count := len(h.clients)
			h.clientsMutex.Unlock()
			h.logger.Debug(ctx, "Client connected", "client_id", c.id, "clients", count)

		case c := <-h.unregister:
			h.clientsMutex.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			count := len(h.clients)
			h.clientsMutex.Unlock()
			h.logger.Debug(ctx, "Client disconnected", "client_id", c.id, "clients", count)

		case message := <-h.broadcast:
			h.clientsMutex.Lock()
			for c := range h.clients {
				select {
				case c.send <- message:
				default:
					// Slow client; it reconnects on its own
					h.logger.Debug(ctx, "Dropping slow client", "client_id", c.id)
					delete(h.clients, c)
					close(c.send)
				}
			}
			h.clientsMutex.Unlock()
		}
	}
}

// Broadcast queues msg for every connected client. It never blocks once
// the hub has stopped.
func (h *ReloadHub) Broadcast(msg ReloadMessage) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		data = []byte(`{"type":"reload"}`)
	}

	select {
	case h.broadcast <- data:
	case <-h.done:
	}
}

// ClientCount returns the number of connected clients.
func (h *ReloadHub) ClientCount() int {
	h.clientsMutex.RLock()
	defer h.clientsMutex.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request to a websocket and streams messages to it
// until either side goes away. Cross-origin connections are refused by
// the websocket library's same-origin check.
func (h *ReloadHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn(r.Context(), err, "WebSocket upgrade failed", "remote", r.RemoteAddr)
		return
	}

	c := &reloadClient{id: uuid.NewString(), conn: conn, send: make(chan []byte, clientBuffer)}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}

	// Browsers never send anything; CloseRead handles control frames and
	// cancels ctx when the peer disconnects.
	ctx := conn.CloseRead(r.Context())
	h.writePump(ctx, c)

	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *ReloadHub) writePump(ctx context.Context, c *reloadClient) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.conn.Close(websocket.StatusNormalClosure, "")
			return

		case message, ok := <-c.send:
			if !ok {
				c.conn.Close(websocket.StatusGoingAway, "")
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Write(writeCtx, websocket.MessageText, message)
			cancel()
			if err != nil {
				h.logger.Debug(ctx, "WebSocket write failed", "error", err.Error())
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

// liveReloadScript connects to the hub and reloads the page on change.
const liveReloadScript = `(function() {
  var proto = location.protocol === "https:" ? "wss://" : "ws://";
  var delay = 1000;
  function connect() {
    var ws = new WebSocket(proto + location.host + "/_roaster/livereload");
    ws.onopen = function() { delay = 1000; };
    ws.onmessage = function(event) {
      var msg = JSON.parse(event.data);
      if (msg.type === "compile_error") {
        console.error("[roaster] " + msg.path + ":" + msg.line + ": " + msg.message);
      }
      location.reload();
    };
    ws.onclose = function() {
      setTimeout(connect, delay);
      delay = Math.min(delay * 2, 30000);
    };
  }
  connect();
})();
`

func handleLiveReloadScript(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", JavaScriptContentType)
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write([]byte(liveReloadScript))
}
