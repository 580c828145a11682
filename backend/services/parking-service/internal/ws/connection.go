// Package ws is the WebSocket gateway for gate controllers and sensor boards.
package ws

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const maxFrameBytes = 64 * 1024

// MessageProcessor handles raw device frames.
type MessageProcessor interface {
	Process(ctx context.Context, deviceID string, raw []byte) ([]byte, error)
}

// Connection represents one connected device. Only the write pump writes to the socket.
type Connection struct {
	deviceID     string
	ws           *websocket.Conn
	send         chan []byte
	done         chan struct{}
	closeOnce    sync.Once
	logger       *zap.Logger
	processor    MessageProcessor
	pingInterval time.Duration
	writeTimeout time.Duration
	onClose      func(*Connection)
}

// NewConnection builds connection wrapper.
func NewConnection(deviceID string, ws *websocket.Conn, processor MessageProcessor, pingInterval, writeTimeout time.Duration, logger *zap.Logger, onClose func(*Connection)) *Connection {
	return &Connection{
		deviceID:     deviceID,
		ws:           ws,
		send:         make(chan []byte, 16),
		done:         make(chan struct{}),
		logger:       logger,
		processor:    processor,
		pingInterval: pingInterval,
		writeTimeout: writeTimeout,
		onClose:      onClose,
	}
}

// DeviceID returns identifier.
func (c *Connection) DeviceID() string {
	return c.deviceID
}

// Start launches the write pump and blocks in the read pump until the socket closes.
func (c *Connection) Start(ctx context.Context) {
	go c.writePump(ctx)
	c.readPump(ctx)
}

func (c *Connection) pongWait() time.Duration {
	return 2 * c.pingInterval
}

func (c *Connection) readPump(ctx context.Context) {
	defer c.Close()
	c.ws.SetReadLimit(maxFrameBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.pongWait()))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.pongWait()))
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			c.logger.Info("device connection read closed", zap.String("device_id", c.deviceID), zap.Error(err))
			return
		}

		response, err := c.processor.Process(ctx, c.deviceID, message)
		if err != nil {
			c.logger.Warn("failed to process device frame", zap.String("device_id", c.deviceID), zap.Error(err))
			continue
		}
		if response != nil {
			c.Send(response)
		}
	}
}

func (c *Connection) writePump(ctx context.Context) {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			_ = c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"))
			return
		case <-c.done:
			_ = c.write(websocket.CloseMessage, []byte{})
			return
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				c.logger.Warn("device write failed", zap.String("device_id", c.deviceID), zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Send enqueues a message for writing. It never blocks; a full buffer drops the message.
func (c *Connection) Send(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		c.logger.Warn("dropping outgoing device message, buffer full", zap.String("device_id", c.deviceID))
		return false
	}
}

// Close stops both pumps. Safe to call more than once.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.onClose != nil {
			c.onClose(c)
		}
	})
}

func (c *Connection) write(messageType int, data []byte) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.ws.WriteMessage(messageType, data)
}
