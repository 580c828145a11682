package ws

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Server upgrades HTTP connections to WebSockets for field devices.
type Server struct {
	ctx          context.Context
	manager      *Manager
	processor    MessageProcessor
	logger       *zap.Logger
	pingInterval time.Duration
	writeTimeout time.Duration
	upgrader     websocket.Upgrader
}

// NewServer builds ws server. Connections live until ctx is done or the device hangs up.
func NewServer(ctx context.Context, manager *Manager, processor MessageProcessor, pingInterval, writeTimeout time.Duration, logger *zap.Logger) *Server {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &Server{
		ctx:          ctx,
		manager:      manager,
		processor:    processor,
		logger:       logger,
		pingInterval: pingInterval,
		writeTimeout: writeTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// ServeHTTP handles GET /devices/ws?device_id=...
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	deviceID := strings.TrimSpace(r.URL.Query().Get("device_id"))
	if deviceID == "" {
		http.Error(w, "device_id is required", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", zap.String("device_id", deviceID), zap.Error(err))
		return
	}

	connection := NewConnection(deviceID, conn, s.processor, s.pingInterval, s.writeTimeout, s.logger, func(c *Connection) {
		s.manager.Remove(c)
		s.logger.Info("device disconnected", zap.String("device_id", c.DeviceID()))
	})
	if previous := s.manager.Add(connection); previous != nil {
		previous.Close()
	}

	go connection.Start(s.ctx)
	s.logger.Info("device connected", zap.String("device_id", deviceID))
}
