package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/jstittsworth/auction-copilot/internal/models"
)

// ErrPortInUse indicates the configured listen port is taken. Fatal at startup.
var ErrPortInUse = errors.New("websocket port in use")

// Heartbeats are expected every 5 seconds; a connection silent for
// readDeadline is considered dead.
const readDeadline = 15 * time.Second

// Message types accepted on the wire.
const (
	typeExtensionConnected = "EXTENSION_CONNECTED"
	typeExtensionHeartbeat = "EXTENSION_HEARTBEAT"
	typeStateUpdate        = "STATE_UPDATE"
)

// envelope is the tagged frame wrapper; the payload shape depends on Type.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type connectedPayload struct {
	Platform string `json:"platform"`
	Version  string `json:"version"`
}

type heartbeatPayload struct {
	Timestamp int64 `json:"timestamp"`
}

// SnapshotHandler receives decoded snapshots in arrival order.
type SnapshotHandler func(*models.Snapshot)

// Server is the inbound websocket listener the scraper connects to.
type Server struct {
	port     int
	handler  SnapshotHandler
	log      *logrus.Entry
	srv      *http.Server
	addr     string
	upgrader websocket.Upgrader
}

func NewServer(port int, handler SnapshotHandler, log *logrus.Logger) *Server {
	return &Server{
		port:    port,
		handler: handler,
		log:     log.WithField("component", "transport"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Loopback-only listener; the scraper runs on the same host.
				return true
			},
		},
	}
}

// Start binds the loopback port and serves in a background goroutine.
// Returns ErrPortInUse when the port is taken.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/ws", func(c *gin.Context) {
		s.handleWebSocket(c.Writer, c.Request)
	})
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	addr := fmt.Sprintf("127.0.0.1:%d", s.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		if strings.Contains(err.Error(), "address already in use") {
			return fmt.Errorf("%w: %s", ErrPortInUse, addr)
		}
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.addr = ln.Addr().String()
	s.srv = &http.Server{Handler: router}
	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("Transport server stopped")
		}
	}()

	s.log.WithField("addr", s.addr).Info("Websocket listener started")
	return nil
}

// Addr returns the bound listen address once Start has succeeded.
func (s *Server) Addr() string {
	return s.addr
}

// Shutdown stops accepting connections and closes existing ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Error("Failed to upgrade scraper connection")
		return
	}
	s.log.WithField("remote", conn.RemoteAddr().String()).Info("Scraper connected")
	go s.readPump(conn)
}

// readPump processes frames from one scraper connection in arrival order.
// Reconnection after a drop is the scraper's responsibility.
func (s *Server) readPump(conn *websocket.Conn) {
	defer func() {
		conn.Close()
		s.log.Info("Scraper connection closed")
	}()

	conn.SetReadDeadline(time.Now().Add(readDeadline))
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.WithError(err).Warn("Scraper connection error")
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(readDeadline))
		if msgType != websocket.TextMessage {
			continue
		}
		s.handleFrame(data)
	}
}

func (s *Server) handleFrame(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.log.WithError(err).Warn("Rejecting undecodable frame")
		return
	}

	switch env.Type {
	case typeExtensionConnected:
		var p connectedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			s.log.WithError(err).Warn("Rejecting malformed handshake frame")
			return
		}
		s.log.WithFields(logrus.Fields{
			"platform": p.Platform,
			"version":  p.Version,
		}).Info("Scraper handshake")

	case typeExtensionHeartbeat:
		var p heartbeatPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			s.log.WithError(err).Warn("Rejecting malformed heartbeat frame")
			return
		}
		s.log.WithField("timestamp", p.Timestamp).Trace("Heartbeat")

	case typeStateUpdate:
		snap, err := decodeSnapshot(env.Payload)
		if err != nil {
			s.log.WithError(err).Warn("Rejecting malformed state update")
			return
		}
		s.handler(snap)

	default:
		s.log.WithField("type", env.Type).Info("Ignoring unknown frame type")
	}
}

// decodeSnapshot strictly decodes a STATE_UPDATE payload. Unknown fields
// reject the frame: a schema drift in the scraper should be loud, not
// silently half-parsed.
func decodeSnapshot(payload []byte) (*models.Snapshot, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()

	var snap models.Snapshot
	if err := dec.Decode(&snap); err != nil {
		return nil, fmt.Errorf("state update decode: %w", err)
	}
	return &snap, nil
}
