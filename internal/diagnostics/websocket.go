package diagnostics

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const websocketWriteTimeout = 5 * time.Second

// WebSocketSink streams events as JSON text frames to every connected
// websocket client. Report never blocks generation: events that do not fit
// in the broadcast buffer are dropped and counted.
type WebSocketSink struct {
	mu       sync.RWMutex
	clients  map[*websocket.Conn]struct{}
	upgrader websocket.Upgrader

	broadcast chan Event
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	dropped atomic.Int64
}

// NewWebSocketSink starts the broadcaster goroutine. buffer <= 0 uses 256.
func NewWebSocketSink(buffer int) *WebSocketSink {
	if buffer <= 0 {
		buffer = 256
	}
	s := &WebSocketSink{
		clients:   make(map[*websocket.Conn]struct{}),
		broadcast: make(chan Event, buffer),
		done:      make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	s.wg.Add(1)
	go s.run()
	return s
}

func (s *WebSocketSink) Report(e Event) {
	select {
	case <-s.done:
		return
	default:
	}
	select {
	case s.broadcast <- e:
	default:
		s.dropped.Add(1)
	}
}

// Dropped returns how many events were discarded because the buffer was full.
func (s *WebSocketSink) Dropped() int64 {
	return s.dropped.Load()
}

// Clients returns the number of connected clients.
func (s *WebSocketSink) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// ServeHTTP upgrades the request and registers the connection. The handler
// keeps reading so that close frames from the client are observed.
func (s *WebSocketSink) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		Logger().Warn("diagnostics websocket upgrade failed", "err", err)
		return
	}

	s.mu.Lock()
	select {
	case <-s.done:
		s.mu.Unlock()
		conn.Close()
		return
	default:
	}
	s.clients[conn] = struct{}{}
	s.mu.Unlock()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			s.remove(conn)
			return
		}
	}
}

func (s *WebSocketSink) remove(conn *websocket.Conn) {
	s.mu.Lock()
	if _, ok := s.clients[conn]; ok {
		delete(s.clients, conn)
		conn.Close()
	}
	s.mu.Unlock()
}

func (s *WebSocketSink) run() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case event := <-s.broadcast:
			payload, err := json.Marshal(event)
			if err != nil {
				continue
			}

			s.mu.RLock()
			conns := make([]*websocket.Conn, 0, len(s.clients))
			for conn := range s.clients {
				conns = append(conns, conn)
			}
			s.mu.RUnlock()

			for _, conn := range conns {
				conn.SetWriteDeadline(time.Now().Add(websocketWriteTimeout))
				if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
					s.remove(conn)
				}
			}
		}
	}
}

// Close stops the broadcaster and disconnects every client.
func (s *WebSocketSink) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		close(s.done)
		for conn := range s.clients {
			conn.Close()
			delete(s.clients, conn)
		}
		s.mu.Unlock()
		s.wg.Wait()
	})
	return nil
}
