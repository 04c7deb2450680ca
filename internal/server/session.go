// Package server manages individual WebSocket sessions, handling read/write
// pumps, command dispatch, rate limiting, and lifecycle control for each
// connection bound to a hub client.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/Tyrowin/gohub/internal/hub"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = 54 * time.Second
	replyBuffer = 32
)

// Session binds one upgraded WebSocket connection to one hub client. The
// read pump feeds commands into the hub; the write pump is the only writer
// on the connection and drains the client's outbox and the reply queue.
type Session struct {
	conn           *websocket.Conn
	client         *hub.Client
	hub            *hub.Hub
	log            zerolog.Logger
	replies        chan []byte
	limiter        *rateLimiter
	maxMessageSize int64
}

func newSession(conn *websocket.Conn, client *hub.Client, h *hub.Hub, cfg Config, logger zerolog.Logger) *Session {
	conn.SetReadLimit(cfg.MaxMessageSize)

	s := &Session{
		conn:   conn,
		client: client,
		hub:    h,
		log: logger.With().
			Str("component", "session").
			Stringer("client", client.ID()).
			Str("addr", client.Addr()).
			Logger(),
		replies:        make(chan []byte, replyBuffer),
		limiter:        newRateLimiter(cfg.RateLimit),
		maxMessageSize: cfg.MaxMessageSize,
	}
	s.reply(Reply{Type: replyWelcome, ID: client.ID().String()})
	return s
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (s *Session) setupReadConnection() {
	if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		s.log.Warn().Err(err).Msg("Error setting initial read deadline")
	}
	s.conn.SetPongHandler(func(string) error {
		if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			s.log.Warn().Err(err).Msg("Error setting read deadline in pong handler")
		}
		return nil
	})
}

// logReadError logs the reason the read loop ended at a level matching how
// expected it is.
func (s *Session) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		s.log.Warn().Int64("limit", s.maxMessageSize).Msg("Message exceeded maximum size")
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		s.log.Info().Err(err).Msg("Client disconnected")
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		s.log.Info().Err(err).Msg("Client connection closed")
	case websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig):
		s.log.Warn().Err(err).Msg("Unexpected WebSocket error")
	default:
		s.log.Warn().Err(err).Msg("WebSocket read error")
	}
}

func (s *Session) readPump() {
	defer func() {
		s.unregister()
		s.closeConnection()
	}()

	s.setupReadConnection()

	for {
		kind, raw, err := s.conn.ReadMessage()
		if err != nil {
			s.logReadError(err)
			return
		}

		if !s.limiter.allow() {
			s.log.Warn().
				Int("burst", s.limiter.burst()).
				Msg("Rate limit exceeded; discarding message")
			s.replyError(Command{}, errRateLimited)
			continue
		}

		s.handleCommand(kind, raw)
	}
}

// unregister removes the client from the hub. The client may already be
// gone after eviction or shutdown.
func (s *Session) unregister() {
	err := s.hub.Unregister(s.client.ID())
	switch {
	case err == nil:
	case errors.Is(err, hub.ErrUnknownClient), errors.Is(err, hub.ErrHubClosed):
		s.log.Debug().Err(err).Msg("Client already removed from hub")
	default:
		s.log.Error().Err(err).Msg("Error unregistering client")
	}
}

func (s *Session) handleCommand(kind int, raw []byte) {
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		s.log.Debug().Err(err).Msg("Invalid command")
		s.replyError(cmd, fmt.Errorf("%w: %v", errMalformedCommand, err))
		return
	}

	switch cmd.Action {
	case actionJoin:
		s.replyResult(cmd, s.hub.JoinChannel(s.client.ID(), cmd.Channel))
	case actionLeave:
		s.replyResult(cmd, s.hub.LeaveChannel(s.client.ID(), cmd.Channel))
	case actionPublish:
		s.publish(kind, cmd)
	default:
		s.replyError(cmd, errUnknownAction)
	}
}

func (s *Session) publish(kind int, cmd Command) {
	binary := kind == websocket.BinaryMessage
	payload, err := cmd.decodePayload(binary)
	if err != nil {
		s.replyError(cmd, fmt.Errorf("%w: payload: %v", errMalformedCommand, err))
		return
	}

	report, err := s.hub.Publish(cmd.Channel, hub.Message{
		Payload: payload,
		Binary:  binary,
		Origin:  s.client.ID(),
	})
	if err != nil {
		s.replyError(cmd, err)
		return
	}

	s.reply(Reply{
		Type:       replyAck,
		Action:     cmd.Action,
		Channel:    cmd.Channel,
		Recipients: &report.Recipients,
		Delivered:  &report.Delivered,
	})
}

func (s *Session) replyResult(cmd Command, err error) {
	if err != nil {
		s.replyError(cmd, err)
		return
	}
	s.reply(Reply{Type: replyAck, Action: cmd.Action, Channel: cmd.Channel})
}

func (s *Session) replyError(cmd Command, err error) {
	s.reply(Reply{
		Type:    replyError,
		Action:  cmd.Action,
		Channel: cmd.Channel,
		Code:    errorCode(err),
		Error:   err.Error(),
	})
}

// reply queues a frame for the write pump, discarding it when the queue is full.
func (s *Session) reply(r Reply) {
	data, err := json.Marshal(r)
	if err != nil {
		s.log.Error().Err(err).Msg("Error encoding reply")
		return
	}

	select {
	case s.replies <- data:
	default:
		s.log.Warn().Str("type", r.Type).Msg("Reply queue full; discarding reply")
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.closeConnection()
	}()

	for s.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (s *Session) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case msg, ok := <-s.client.Outbox():
		if !ok {
			return s.writeCloseMessage()
		}
		return s.writeDelivery(msg)
	case reply := <-s.replies:
		return s.writeFrame(websocket.TextMessage, reply)
	case <-ticker.C:
		return s.writePing()
	}
}

func (s *Session) writeDelivery(msg hub.Message) bool {
	data, err := encodeDelivery(msg)
	if err != nil {
		s.log.Error().Err(err).Str("channel", msg.Channel).Msg("Error encoding delivery")
		return true
	}

	kind := websocket.TextMessage
	if msg.Binary {
		kind = websocket.BinaryMessage
	}
	return s.writeFrame(kind, data)
}

func (s *Session) writeFrame(kind int, data []byte) bool {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		s.log.Warn().Err(err).Msg("Error setting write deadline")
		return false
	}
	if err := s.conn.WriteMessage(kind, data); err != nil {
		if !isExpectedCloseError(err) {
			s.log.Warn().Err(err).Msg("Error writing message")
		}
		return false
	}
	return true
}

// writeCloseMessage sends a close frame once the hub has disposed the client.
func (s *Session) writeCloseMessage() bool {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return false
	}
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "")
	if err := s.conn.WriteMessage(websocket.CloseMessage, msg); err != nil {
		if !isExpectedCloseError(err) {
			s.log.Warn().Err(err).Msg("Error writing close message")
		}
	}
	return false
}

// writePing sends a ping message to keep the connection alive
func (s *Session) writePing() bool {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		s.log.Warn().Err(err).Msg("Error setting write deadline for ping")
		return false
	}
	if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		s.log.Warn().Err(err).Msg("Error writing ping message")
		return false
	}
	return true
}

// closeConnection safely closes the WebSocket connection with proper error handling
func (s *Session) closeConnection() {
	if err := s.conn.Close(); err != nil && !isExpectedCloseError(err) {
		s.log.Warn().Err(err).Msg("Error closing connection")
	}
}
