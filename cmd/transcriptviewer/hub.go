package main

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// notice is the subset of a relay notice the viewer inspects. The raw
// payload is forwarded to browsers unchanged.
type notice struct {
	EventType string `json:"eventType"`
	CallID    string `json:"callId"`
	Role      string `json:"role,omitempty"`
	Text      string `json:"text,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// writeWait bounds each write so a stalled browser cannot hold up the hub.
const writeWait = 5 * time.Second

// Hub fans relay notices out to connected browsers.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan json.RawMessage
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       <-chan struct{}
	mu         sync.RWMutex
}

// newHub creates a hub that stops when done is closed.
func newHub(done <-chan struct{}) *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan json.RawMessage, 100),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       done,
	}
}

func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// run owns the client set until done is closed.
func (h *Hub) run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for conn := range h.clients {
				conn.Close()
				delete(h.clients, conn)
			}
			h.mu.Unlock()
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			n := len(h.clients)
			h.mu.Unlock()
			log.Info().Int("clients", n).Msg("Viewer connected")

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			n := len(h.clients)
			h.mu.Unlock()
			log.Info().Int("clients", n).Msg("Viewer disconnected")

		case payload := <-h.broadcast:
			h.mu.Lock()
			for conn := range h.clients {
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
					log.Warn().Err(err).Msg("Viewer write failed")
					conn.Close()
					delete(h.clients, conn)
				}
			}
			h.mu.Unlock()
		}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // local tool
	},
}

func wsHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Msg("WebSocket upgrade failed")
			return
		}
		select {
		case hub.register <- conn:
		case <-hub.done:
			conn.Close()
			return
		}

		// Browsers never send; reading only detects the disconnect.
		go func() {
			defer func() {
				select {
				case hub.unregister <- conn:
				case <-hub.done:
					conn.Close()
				}
			}()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}
}

const indexPage = `<!doctype html>
<html>
<head><meta charset="utf-8"><title>Voice relay calls</title>
<style>
body { font-family: sans-serif; margin: 2em; }
.user { color: #1a5fb4; }
.assistant { color: #26a269; }
.call { color: #777; font-style: italic; }
</style>
</head>
<body>
<h1>Voice relay calls</h1>
<div id="log"></div>
<script>
const log = document.getElementById("log");
const ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
ws.onmessage = (m) => {
  const n = JSON.parse(m.data);
  const p = document.createElement("p");
  if (n.role) {
    p.className = n.role;
    p.textContent = "[" + n.callId + "] " + n.role + ": " + n.text;
  } else {
    p.className = "call";
    p.textContent = "[" + n.callId + "] " + n.eventType + (n.reason ? " (" + n.reason + ")" : "");
  }
  log.prepend(p);
};
</script>
</body>
</html>
`

func indexHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexPage))
}
