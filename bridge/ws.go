package bridge

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocket message types.
const (
	MessageTypePrint       = "print"
	MessageTypePrinted     = "printed"
	MessageTypePrintFailed = "print_failed"
	MessageTypePing        = "ping"
	MessageTypePong        = "pong"
	MessageTypeError       = "error"
)

// WSMessage is one frame on /ws. Replies echo the ID of the message they answer.
type WSMessage struct {
	Type  string   `json:"type"`
	ID    string   `json:"id,omitempty"`
	Job   *Request `json:"job,omitempty"`
	Error string   `json:"error,omitempty"`
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied
		s.Logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// the server's request read timeout must not end the socket
	_ = conn.SetReadDeadline(time.Time{})

	if s.MaxBodyBytes > 0 {
		conn.SetReadLimit(s.MaxBodyBytes)
	}
	logger := s.Logger.With("remote", r.RemoteAddr)
	logger.Info("websocket connected")

	for {
		var msg WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("websocket read failed", "error", err)
			}
			logger.Info("websocket disconnected")
			return
		}

		var reply WSMessage
		switch msg.Type {
		case MessageTypePing:
			reply = WSMessage{Type: MessageTypePong, ID: msg.ID}

		case MessageTypePrint:
			reply = WSMessage{Type: MessageTypePrinted, ID: msg.ID}
			var err error
			if msg.Job == nil {
				err = &ValidationError{Field: "job", Reason: "is required"}
			} else {
				err = s.Service.Print(r.Context(), *msg.Job)
			}
			if err != nil {
				reply.Type = MessageTypePrintFailed
				reply.Error = clientMessage(err)
			}

		default:
			reply = WSMessage{Type: MessageTypeError, ID: msg.ID, Error: "unknown message type " + msg.Type}
		}

		if err := conn.WriteJSON(reply); err != nil {
			logger.Warn("websocket write failed", "error", err)
			return
		}
	}
}
