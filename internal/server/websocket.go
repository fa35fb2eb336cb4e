package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/michaelbrown/rustplay/internal/executor"
	"github.com/michaelbrown/rustplay/internal/queue"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS is open to every origin
	},
}

// wsOutgoing is a message to the client.
type wsOutgoing struct {
	Type   string             `json:"type"`
	Status int                `json:"status,omitempty"`
	Result *executor.Response `json:"result,omitempty"`
	Error  string             `json:"error,omitempty"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer ws.Close()
	ws.SetReadLimit(s.cfg.Execution.MaxSourceBytes + envelopeSlack)

	conn := s.conns.Add(ws)
	defer s.conns.Remove(conn.ID)
	log := s.logger.With().Str("conn_id", conn.ID).Logger()

	// Read loop
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) &&
				!errors.Is(err, websocket.ErrCloseSent) {
				log.Debug().Err(err).Msg("websocket read ended")
			}
			return
		}

		var req executor.Request
		if err := json.Unmarshal(data, &req); err != nil {
			s.wsWriteJSON(conn, wsOutgoing{Type: "error", Error: "invalid message: " + err.Error()})
			continue
		}
		if int64(len(req.Code)) > s.cfg.Execution.MaxSourceBytes {
			s.wsWriteJSON(conn, wsOutgoing{Type: "error",
				Error: fmt.Sprintf("source exceeds %d bytes", s.cfg.Execution.MaxSourceBytes)})
			continue
		}

		job := queue.NewJob(conn.Ctx, req)
		if err := s.queue.Submit(job); err != nil {
			s.wsWriteJSON(conn, wsOutgoing{Type: "error", Error: err.Error()})
			continue
		}
		result, err := job.Wait(conn.Ctx)
		if err != nil {
			return
		}
		s.wsWriteJSON(conn, wsOutgoing{Type: "result", Status: result.Status(), Result: &result.Response})
	}
}

func (s *Server) wsWriteJSON(c *Conn, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error().Err(err).Msg("websocket marshal error")
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		s.logger.Debug().Err(err).Str("conn_id", c.ID).Msg("websocket write error")
	}
}
