package web

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:   1024,
	WriteBufferSize:  1024,
	HandshakeTimeout: writeWait,
	CheckOrigin: func(r *http.Request) bool {
		return true // read-only local monitor
	},
}

// handleWebSocket streams run events until the run completes or the client
// goes away.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// Subscribe before reading state so no event falls between the two
	updates := s.mon.Subscribe()
	defer s.mon.Unsubscribe(updates)

	state := s.mon.State()
	if err := writeEvent(conn, state); err != nil || state.Status == StatusCompleted {
		return
	}

	// The client never sends data; reading processes control frames and
	// notices when it goes away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case e, ok := <-updates:
			if !ok {
				return
			}
			if err := writeEvent(conn, e); err != nil {
				s.logger.Error("Failed to write WebSocket message: %v", err)
				return
			}
			if e.Type == EventDone {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run complete"),
					time.Now().Add(writeWait))
				return
			}

		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}

		case <-gone:
			return
		}
	}
}

func writeEvent(conn *websocket.Conn, e Event) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(e)
}
