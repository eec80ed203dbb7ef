// The two WebSocket endpoints (C8): the robot-bound outbound stream and the
// operator manual-drive input socket. Adapted from the reference gateway's
// server/websocket.go upgrade-then-pump shape, but each endpoint here has a
// single direction of traffic instead of a generic duplex client, so there
// is no per-connection Hub registration — the robot socket subscribes
// directly to the command bus and the manual-drive socket reads frames and
// re-injects them.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tabledelivery/control-core/internal/auth"
	"github.com/tabledelivery/control-core/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 65536
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// HandleRobotControlSocket upgrades the connection and forwards every
// command published on the bus as a text frame. There is no authentication
// on this endpoint in the current design (see the open question in the
// design notes); it is expected to run on a network segment reachable only
// by the robot itself.
func (s *Server) HandleRobotControlSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("robot control socket: upgrade failed", zap.Error(err))
		}
		return
	}
	defer conn.Close()

	sub := s.bus.Subscribe()
	defer s.bus.Unsubscribe(sub)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	conn.SetReadLimit(maxMessageSize)

	// Drain and discard inbound frames so a dead peer is detected promptly;
	// the robot never sends meaningful data on this socket.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				conn.Close()
				return
			}
		}
	}()

	for {
		select {
		case cmd, ok := <-sub.C():
			if !ok {
				return
			}
			data, err := json.Marshal(cmd)
			if err != nil {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// HandleManualDriveSocket upgrades the connection, validates the bearer
// token carried in the query parameter, and loops over inbound frames,
// applying the role allow-list from §4.5 to each one.
func (s *Server) HandleManualDriveSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	claims, err := s.issuer.Validate(token)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("manual drive socket: upgrade failed", zap.Error(err))
		}
		return
	}
	defer conn.Close()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))
		s.handleManualFrame(claims, data)
	}
}

func (s *Server) handleManualFrame(claims *auth.Claims, data []byte) {
	var cmd protocol.RobotCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		return
	}

	if !claims.Role.CanOperate() {
		return
	}

	switch cmd.Kind {
	case protocol.CommandDrive:
		if !claims.Role.IsAdmin() {
			held := s.store.EffectiveLock()
			if held == nil || held.HolderID != claims.Sub {
				return
			}
		}
		limited := s.limiter.Limit(cmd.LinearVelocity, cmd.AngularVelocity)
		s.bus.Publish(protocol.Drive(limited.LinearVelocity, limited.AngularVelocity))

	case protocol.CommandNavigate:
		if !claims.Role.IsAdmin() {
			return
		}
		s.dispatcher.Preempt(claims.Sub, claims.Name, cmd.Start, cmd.Destination)

	case protocol.CommandCancel:
		if !claims.Role.IsAdmin() {
			return
		}
		s.bus.Publish(cmd)

	case protocol.CommandLed, protocol.CommandAudioBeep, protocol.CommandAudioVolume:
		if !claims.Role.IsAdmin() {
			return
		}
		s.bus.Publish(cmd)

	default:
		// unknown command kind, silently discarded
	}
}
