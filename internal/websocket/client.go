package websocket

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"relaychat/internal/config"
)

// ClientFrame is an inbound control frame from the client: joining or
// leaving a chat room.
type ClientFrame struct {
	Action string `json:"action"` // "join" or "leave"
	ChatID uint   `json:"chatId"`
}

// FrameHandler processes inbound client frames. The handler is where chat
// membership is checked before a join reaches the presence hub.
type FrameHandler func(ctx context.Context, sessionID string, userID uint, frame ClientFrame) error

// Client is a middleman between a websocket connection and the hub.
type Client struct {
	hub  *Hub
	conn *websocket.Conn

	// Buffered channel of outbound frames.
	send chan []byte

	// SessionID is the presence session bound to this connection.
	SessionID string

	// UserID is the authenticated user for this connection.
	UserID uint

	handleFrame FrameHandler
	onClose     func()
}

// readPump pumps frames from the websocket connection to the frame handler.
// Its deferred cleanup is the single exit path for the connection, graceful
// or abrupt: it unregisters the client and fires onClose, which tears down
// the presence session.
func (c *Client) readPump(wsCfg config.WebSocketConfig) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
		if c.onClose != nil {
			c.onClose()
		}
	}()
	c.conn.SetReadLimit(int64(wsCfg.MaxMessageSizeBytes))
	c.conn.SetReadDeadline(time.Now().Add(time.Duration(wsCfg.PongWaitSeconds) * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(time.Duration(wsCfg.PongWaitSeconds) * time.Second))
		return nil
	})

	for {
		messageType, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("websocket: read error (session %s): %v", c.SessionID, err)
			}
			break
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var frame ClientFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			log.Printf("websocket: bad frame from session %s: %v", c.SessionID, err)
			continue
		}
		if c.handleFrame != nil {
			if err := c.handleFrame(context.Background(), c.SessionID, c.UserID, frame); err != nil {
				log.Printf("websocket: frame %q from session %s rejected: %v", frame.Action, c.SessionID, err)
			}
		}
	}
}

// writePump pumps frames from the hub to the websocket connection.
func (c *Client) writePump(wsCfg config.WebSocketConfig) {
	ticker := time.NewTicker(time.Duration(wsCfg.PingPeriodSeconds) * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(time.Duration(wsCfg.WriteWaitSeconds) * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(time.Duration(wsCfg.WriteWaitSeconds) * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeConnection upgrades an HTTP request to a websocket connection and
// starts the read and write pumps. onClose runs exactly once when the
// connection ends, however it ends.
func ServeConnection(hub *Hub, sessionID string, userID uint, handler FrameHandler, onClose func(), w http.ResponseWriter, r *http.Request, wsCfg config.WebSocketConfig) error {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	client := &Client{
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, 256),
		SessionID:   sessionID,
		UserID:      userID,
		handleFrame: handler,
		onClose:     onClose,
	}
	hub.Register(client)

	go client.writePump(wsCfg)
	go client.readPump(wsCfg)
	return nil
}
