// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, hub stats, HTTP publishing, and the built-in test page.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/Tyrowin/gohub/internal/hub"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

const unknownUserAgent = "Unknown browser"

// PublishResponse is the JSON body returned by the HTTP publish endpoint.
type PublishResponse struct {
	Channel    string `json:"channel"`
	Recipients int    `json:"recipients"`
	Delivered  int    `json:"delivered"`
	Dropped    int    `json:"dropped"`
	Skipped    int    `json:"skipped"`
}

// ChannelResponse describes one channel and its members.
type ChannelResponse struct {
	Channel string      `json:"channel"`
	Members []uuid.UUID `json:"members"`
}

// handleWebSocket registers a hub client, upgrades the connection, and
// starts the session pumps. Registration happens first so a full or closed
// hub answers with a plain HTTP error instead of an upgraded socket.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	client, err := s.hub.Register(clientInfo(r))
	if err != nil {
		s.log.Warn().Err(err).Str("addr", r.RemoteAddr).Msg("Rejecting WebSocket connection")
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Str("addr", r.RemoteAddr).Msg("WebSocket upgrade failed")
		if err := s.hub.Unregister(client.ID()); err != nil && !errors.Is(err, hub.ErrHubClosed) {
			s.log.Error().Err(err).Msg("Error releasing client after failed upgrade")
		}
		return
	}

	if !s.trackSession() {
		s.log.Debug().Str("addr", r.RemoteAddr).Msg("Server shutting down; dropping new connection")
		if err := s.hub.Unregister(client.ID()); err != nil && !errors.Is(err, hub.ErrHubClosed) {
			s.log.Error().Err(err).Msg("Error releasing client during shutdown")
		}
		if err := conn.Close(); err != nil && !isExpectedCloseError(err) {
			s.log.Warn().Err(err).Msg("Error closing connection")
		}
		return
	}

	session := newSession(conn, client, s.hub, s.cfg, s.log)
	go func() {
		defer s.sessions.Done()
		session.writePump()
	}()
	go func() {
		defer s.sessions.Done()
		session.readPump()
	}()
}

// clientInfo extracts the connection metadata kept on the hub client.
func clientInfo(r *http.Request) hub.ClientInfo {
	userAgent := r.UserAgent()
	if userAgent == "" {
		userAgent = unknownUserAgent
	}
	return hub.ClientInfo{Addr: r.RemoteAddr, UserAgent: userAgent}
}

// handleHealth provides a simple health check endpoint that returns server status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	if s.hub.State() != hub.StateRunning {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = fmt.Fprintf(w, "GoHub is %s", s.hub.State())
		return
	}
	_, _ = fmt.Fprint(w, "GoHub server is running!")
}

func (s *Server) handlePing(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, "pong")
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.hub.Stats())
}

func (s *Server) handleChannels(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.hub.Stats().Channels)
}

func (s *Server) handleChannel(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	members, err := s.hub.ChannelMembers(name)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	s.writeJSON(w, http.StatusOK, ChannelResponse{Channel: name, Members: members})
}

// handlePublish publishes the request body to a channel on behalf of the
// server. application/octet-stream bodies are delivered as binary messages.
func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxMessageSize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "Message too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "Error reading body", http.StatusBadRequest)
		return
	}

	report, err := s.hub.Publish(name, hub.Message{
		Payload: body,
		Binary:  r.Header.Get("Content-Type") == "application/octet-stream",
	})
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	s.writeJSON(w, http.StatusOK, PublishResponse{
		Channel:    report.Channel,
		Recipients: report.Recipients,
		Delivered:  report.Delivered,
		Dropped:    report.Dropped,
		Skipped:    report.Skipped,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn().Err(err).Msg("Error writing JSON response")
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, hub.ErrUnknownChannel), errors.Is(err, hub.ErrUnknownClient):
		return http.StatusNotFound
	case errors.Is(err, hub.ErrHubClosed), errors.Is(err, hub.ErrCapacityExceeded):
		return http.StatusServiceUnavailable
	case errors.Is(err, hub.ErrInvalidChannel):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// handleTestPage serves an HTML page for joining channels and publishing by hand.
func (s *Server) handleTestPage(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprint(w, testPage); err != nil {
		s.log.Warn().Err(err).Msg("Error writing HTML response")
	}
}

const testPage = `<!DOCTYPE html>
<html>
<head>
    <title>GoHub WebSocket Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #log { border: 1px solid #ccc; height: 300px; padding: 10px; overflow-y: scroll; margin: 10px 0; background-color: #f9f9f9; }
        input[type="text"] { padding: 5px; margin-right: 10px; }
    </style>
</head>
<body>
    <h1>GoHub WebSocket Test</h1>
    <div>
        <input type="text" id="channel" value="room1">
        <button onclick="send('join')">Join</button>
        <button onclick="send('leave')">Leave</button>
    </div>
    <div>
        <input type="text" id="payload" placeholder="Type a message...">
        <button onclick="send('publish')">Publish</button>
    </div>
    <div id="log"></div>
    <script>
        const log = document.getElementById('log');
        const ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/ws');

        function append(text) {
            const line = document.createElement('div');
            line.textContent = text;
            log.appendChild(line);
            log.scrollTop = log.scrollHeight;
        }

        function send(action) {
            const cmd = { action: action, channel: document.getElementById('channel').value };
            if (action === 'publish') {
                cmd.payload = document.getElementById('payload').value;
            }
            ws.send(JSON.stringify(cmd));
        }

        ws.onopen = () => append('connected');
        ws.onmessage = (event) => append(event.data);
        ws.onclose = () => append('connection closed');
    </script>
</body>
</html>`
