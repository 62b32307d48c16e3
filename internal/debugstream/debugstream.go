// Package debugstream is an optional, host-attached sink for the
// stack_trace runtime knob: when tracing is enabled the interpreter
// emits one Frame per executed instruction, and any attached WebSocket
// client observes the stream. It never feeds back into dispatch, so
// attaching or detaching a client cannot affect interpreter behavior.
package debugstream

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Frame is one instruction's trace record.
type Frame struct {
	PC         int    `json:"pc"`
	Opcode     string `json:"opcode"`
	StackDepth int    `json:"stack_depth"`
	HeapID     uint32 `json:"heap_id"`
}

// Sink accepts WebSocket clients and fans every emitted Frame out to
// all of them. A Sink with no attached clients drops frames silently —
// observation is opt-in.
type Sink struct {
	upgrader websocket.Upgrader
	server   *http.Server

	mu      sync.RWMutex
	clients map[string]chan []byte
	nextID  int
}

// NewSink builds a sink listening on addr ("host:port"). Call Start to
// begin serving.
func NewSink(addr string) *Sink {
	s := &Sink{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[string]chan []byte),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/trace", s.handleConn)
	s.server = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Start begins serving in the background. The listener error, if any,
// surfaces only via the returned channel since ListenAndServe blocks.
func (s *Sink) Start() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

func (s *Sink) handleConn(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s.mu.Lock()
	s.nextID++
	id := fmt.Sprintf("trace_%d", s.nextID)
	ch := make(chan []byte, 256)
	s.clients[id] = ch
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, id)
		s.mu.Unlock()
		conn.Close()
	}()

	for msg := range ch {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// Emit broadcasts a trace frame to every attached client, dropping it
// for any client whose outbound buffer is full rather than blocking the
// interpreter's dispatch loop.
func (s *Sink) Emit(f Frame) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.clients) == 0 {
		return
	}
	body, err := json.Marshal(f)
	if err != nil {
		return
	}
	for _, ch := range s.clients {
		select {
		case ch <- body:
		default:
		}
	}
}

// Close shuts the listener down and disconnects every client.
func (s *Sink) Close() error {
	s.mu.Lock()
	for id, ch := range s.clients {
		close(ch)
		delete(s.clients, id)
	}
	s.mu.Unlock()
	return s.server.Close()
}

// Tracer adapts a Sink to the interpreter's vm.Tracer interface
// (Emit(pc, opcode, stackDepth, heapID)) without internal/vm needing to
// import this package.
type Tracer struct {
	Sink *Sink
}

func (t Tracer) Emit(pc int, opcode string, stackDepth int, heapID uint32) {
	t.Sink.Emit(Frame{PC: pc, Opcode: opcode, StackDepth: stackDepth, HeapID: heapID})
}

// Client observes a Sink's trace stream from the outside (a debugger UI,
// a test harness asserting on dispatch order).
type Client struct {
	conn   *websocket.Conn
	frames chan Frame
}

// Dial connects to a Sink's /trace endpoint.
func Dial(url string) (*Client, error) {
	dialer := websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("debugstream: dial %s: %w", url, err)
	}

	c := &Client{conn: conn, frames: make(chan Frame, 256)}
	go c.readLoop()
	return c, nil
}

func (c *Client) readLoop() {
	defer close(c.frames)
	for {
		_, body, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var f Frame
		if err := json.Unmarshal(body, &f); err != nil {
			continue
		}
		select {
		case c.frames <- f:
		default:
		}
	}
}

// Frames returns the channel of decoded trace frames.
func (c *Client) Frames() <-chan Frame { return c.frames }

// Close disconnects the client.
func (c *Client) Close() error { return c.conn.Close() }
