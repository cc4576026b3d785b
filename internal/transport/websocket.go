// SPDX-License-Identifier: MIT
package transport

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"firealarm/internal/detect"
	applog "firealarm/internal/log"
)

//go:embed web/index.html
var indexHTML []byte

const (
	broadcastQueue = 64
	writeTimeout   = 2 * time.Second
)

// Status is served as JSON at /status.
type Status struct {
	Status    string   `json:"status"`
	Clients   int      `json:"clients"`
	Alarms    uint64   `json:"alarms"`
	Dropped   uint64   `json:"dropped"`
	UptimeSec float64  `json:"uptime_sec"`
	LastAlarm *Message `json:"last_alarm,omitempty"`
}

// WebSocketTransport serves a monitor page and broadcasts alarms to
// WebSocket clients connected at /ws.
type WebSocketTransport struct {
	upgrader  websocket.Upgrader
	clients   map[*websocket.Conn]bool
	clientsMu sync.Mutex
	broadcast chan Message
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
	server    *http.Server
	listener  net.Listener
	started   time.Time

	alarms  atomic.Uint64
	dropped atomic.Uint64
	last    atomic.Pointer[Message]
}

// NewWebSocketTransport creates the transport without starting a server.
// Use Handler to mount it, or Listen to serve it on an address.
func NewWebSocketTransport() *WebSocketTransport {
	wst := &WebSocketTransport{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Monitor page may be served from elsewhere.
			},
		},
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan Message, broadcastQueue),
		done:      make(chan struct{}),
		started:   time.Now(),
	}
	wst.wg.Add(1)
	go wst.handleBroadcasts()
	return wst
}

// ListenWebSocket binds addr and serves the transport on it.
func ListenWebSocket(addr string) (*WebSocketTransport, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("websocket transport: listen on %s: %w", addr, err)
	}
	wst := NewWebSocketTransport()
	wst.listener = ln
	wst.server = &http.Server{
		Handler:           wst.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		applog.Infof("WebSocketTransport: Serving monitor on http://%s", ln.Addr())
		if err := wst.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			applog.Errorf("WebSocketTransport: Server error: %v", err)
		}
	}()
	return wst, nil
}

// Addr returns the bound address, or nil when not listening.
func (wst *WebSocketTransport) Addr() net.Addr {
	if wst.listener == nil {
		return nil
	}
	return wst.listener.Addr()
}

// Handler returns the HTTP routes: the monitor page at /, JSON status at
// /status and the WebSocket endpoint at /ws.
func (wst *WebSocketTransport) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wst.handleWebSocket)
	mux.HandleFunc("/status", wst.handleStatus)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(indexHTML)
	})
	return mux
}

func (wst *WebSocketTransport) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(wst.Status()); err != nil {
		applog.Debugf("WebSocketTransport: status write failed: %v", err)
	}
}

// Status returns the current transport status.
func (wst *WebSocketTransport) Status() Status {
	return Status{
		Status:    "ok",
		Clients:   wst.Clients(),
		Alarms:    wst.alarms.Load(),
		Dropped:   wst.dropped.Load(),
		UptimeSec: time.Since(wst.started).Seconds(),
		LastAlarm: wst.last.Load(),
	}
}

// Clients returns the number of connected WebSocket clients.
func (wst *WebSocketTransport) Clients() int {
	wst.clientsMu.Lock()
	defer wst.clientsMu.Unlock()
	return len(wst.clients)
}

// handleWebSocket upgrades HTTP connections to WebSocket
func (wst *WebSocketTransport) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := wst.upgrader.Upgrade(w, r, nil)
	if err != nil {
		applog.Warnf("WebSocketTransport: Upgrade error: %v", err)
		return
	}

	wst.clientsMu.Lock()
	select {
	case <-wst.done:
		wst.clientsMu.Unlock()
		conn.Close()
		return
	default:
	}
	wst.clients[conn] = true
	total := len(wst.clients)
	wst.clientsMu.Unlock()
	applog.Infof("WebSocketTransport: Client %s connected, total: %d", conn.RemoteAddr(), total)

	// Clients only listen; reading detects the disconnect.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
		wst.clientsMu.Lock()
		delete(wst.clients, conn)
		total := len(wst.clients)
		wst.clientsMu.Unlock()
		conn.Close()
		applog.Infof("WebSocketTransport: Client disconnected, total: %d", total)
	}()
}

// handleBroadcasts sends messages to all connected clients. Messages still
// queued at Close are flushed before it returns.
func (wst *WebSocketTransport) handleBroadcasts() {
	defer wst.wg.Done()
	for {
		select {
		case <-wst.done:
			for {
				select {
				case msg := <-wst.broadcast:
					wst.writeAll(msg)
				default:
					return
				}
			}
		case msg := <-wst.broadcast:
			wst.writeAll(msg)
		}
	}
}

func (wst *WebSocketTransport) writeAll(msg Message) {
	wst.clientsMu.Lock()
	defer wst.clientsMu.Unlock()
	for client := range wst.clients {
		client.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := client.WriteJSON(msg); err != nil {
			applog.Warnf("WebSocketTransport: Error sending to client: %v", err)
			client.Close()
			delete(wst.clients, client)
		}
	}
}

// Send queues ev for broadcast. It returns ErrQueueFull when the broadcast
// queue is full.
func (wst *WebSocketTransport) Send(ev detect.AlarmEvent) error {
	msg := NewMessage(ev)
	wst.alarms.Add(1)
	wst.last.Store(&msg)

	select {
	case <-wst.done:
		return net.ErrClosed
	default:
	}
	select {
	case wst.broadcast <- msg:
		return nil
	default:
		wst.dropped.Add(1)
		return ErrQueueFull
	}
}

// Close disconnects all clients and shuts down the server.
func (wst *WebSocketTransport) Close() error {
	var err error
	wst.closeOnce.Do(func() {
		applog.Debugf("WebSocketTransport: Closing")
		close(wst.done)
		wst.wg.Wait()

		wst.clientsMu.Lock()
		for client := range wst.clients {
			client.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(time.Second))
			client.Close()
		}
		wst.clients = make(map[*websocket.Conn]bool)
		wst.clientsMu.Unlock()

		if wst.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			err = wst.server.Shutdown(ctx)
		}
	})
	return err
}

var _ Transport = (*WebSocketTransport)(nil)
