package server

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/apexsim/apexsim/internal/core/session"
)

// Wire message types.
const (
	messageTypeWelcome  = "welcome"
	messageTypeSnapshot = "snapshot"
	messageTypeControls = "controls"
)

// inboundMessage is a control frame from the browser. Absent fields leave
// the corresponding control untouched.
type inboundMessage struct {
	Type     string   `json:"type"`
	Throttle *float64 `json:"throttle,omitempty"`
	Brake    *float64 `json:"brake,omitempty"`
	Steering *float64 `json:"steering,omitempty"`
}

// welcomeMessage is sent once after the handshake and tells the client which
// vehicle it drives.
type welcomeMessage struct {
	Type      string `json:"type"`
	VehicleID string `json:"vehicleId"`
	Track     string `json:"track"`
	TotalLaps int    `json:"totalLaps"`
}

// snapshotMessage wraps a session snapshot for the wire.
type snapshotMessage struct {
	Type string `json:"type"`
	session.Snapshot
}

// client is one connected WebSocket peer. The write mutex serializes the
// welcome and broadcast paths; gorilla connections allow one writer at a
// time.
type client struct {
	id        string
	vehicleID string
	conn      *websocket.Conn
	writeMu   sync.Mutex
}

func newClient(conn *websocket.Conn, vehicleID string) *client {
	return &client{
		id:        uuid.NewString(),
		vehicleID: vehicleID,
		conn:      conn,
	}
}

func (c *client) write(data []byte, timeout time.Duration) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(timeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *client) writeJSON(v any, timeout time.Duration) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(timeout))
	return c.conn.WriteJSON(v)
}
