package moonraker

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsMaxMessageSize = 512 * 1024
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = 30 * time.Second
	wsWriteWait      = 10 * time.Second
	wsSendBuffer     = 64
)

// WSClient represents a WebSocket client connection.
type WSClient struct {
	id     int64
	conn   *websocket.Conn
	server *Server
	sendCh chan any
	done   chan struct{}
	once   sync.Once
}

// newWSClient creates a new WebSocket client.
func (s *Server) newWSClient(conn *websocket.Conn) *WSClient {
	return &WSClient{
		id:     atomic.AddInt64(&s.nextWSID, 1),
		conn:   conn,
		server: s,
		sendCh: make(chan any, wsSendBuffer),
		done:   make(chan struct{}),
	}
}

// Send queues a message for the client. Messages are dropped when the
// queue is full.
func (c *WSClient) Send(msg any) {
	select {
	case c.sendCh <- msg:
	case <-c.done:
	default:
		c.server.logger.WithField("client", c.id).Warn("dropping message, send queue full")
	}
}

// Close closes the client connection.
func (c *WSClient) Close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// readPump reads messages from the WebSocket connection.
func (c *WSClient) readPump() {
	defer func() {
		c.server.removeClient(c)
		c.Close()
	}()

	c.conn.SetReadLimit(wsMaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.server.logger.WithError(err).Warn("websocket read error")
			}
			return
		}
		c.handleMessage(message)
	}
}

// writePump sends queued messages and keepalive pings.
func (c *WSClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case msg := <-c.sendCh:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.server.logger.WithError(err).Debug("websocket write error")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}

// handleMessage processes an incoming JSON-RPC request.
func (c *WSClient) handleMessage(data []byte) {
	var req jsonRPCRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.Send(jsonRPCResponse{
			JSONRPC: "2.0",
			Error:   &jsonRPCError{Code: -32700, Message: "Parse error"},
		})
		return
	}
	c.Send(c.server.call(context.Background(), req, c))
}

// handleWebSocket upgrades the connection and serves it until it closes.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}

	client := s.newWSClient(conn)
	s.wsClientMu.Lock()
	s.wsClients[client.id] = client
	s.wsClientMu.Unlock()
	s.metrics.WebsocketClients.Inc(nil)
	s.logger.WithField("client", client.id).Debug("websocket client connected")

	go client.writePump()
	client.readPump() // blocks until the connection closes
}

// removeClient forgets a disconnected client.
func (s *Server) removeClient(client *WSClient) {
	s.wsClientMu.Lock()
	_, ok := s.wsClients[client.id]
	delete(s.wsClients, client.id)
	s.wsClientMu.Unlock()

	if ok {
		s.metrics.WebsocketClients.Dec(nil)
		s.logger.WithField("client", client.id).Debug("websocket client disconnected")
	}
}

// closeClients disconnects every client.
func (s *Server) closeClients() {
	s.wsClientMu.RLock()
	clients := make([]*WSClient, 0, len(s.wsClients))
	for _, c := range s.wsClients {
		clients = append(clients, c)
	}
	s.wsClientMu.RUnlock()

	for _, c := range clients {
		c.Close()
	}
}

// broadcast sends a notification to every connected client.
func (s *Server) broadcast(method string, params any) {
	msg := jsonRPCNotification{JSONRPC: "2.0", Method: method, Params: params}

	s.wsClientMu.RLock()
	defer s.wsClientMu.RUnlock()
	for _, c := range s.wsClients {
		c.Send(msg)
	}
}
