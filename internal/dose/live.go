package dose

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aquacalc/ph-adjuster/internal/metrics"
	"github.com/aquacalc/ph-adjuster/internal/model"
)

// LiveRequest is one input snapshot on a live session. Seq is echoed back
// so clients can discard responses to superseded input.
type LiveRequest struct {
	Seq int64 `json:"seq"`
	DoseRequest
}

// LiveResponse answers one LiveRequest with either a result or an error.
type LiveResponse struct {
	Type   string            `json:"type"` // "result" or "error"
	Seq    int64             `json:"seq"`
	Result *model.DoseResult `json:"result,omitempty"`
	Error  string            `json:"error,omitempty"`
}

// HandleLive handles WebSocket upgrade requests at GET /api/v1/dose/live.
//
// Each inbound message is a complete input snapshot and is answered with a
// freshly computed result, so a form can recompute on every keystroke.
// Live results are not recorded; use POST /api/v1/dose to log a dose.
func (s *Service) HandleLive(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	metrics.LiveSessions.Inc()
	defer metrics.LiveSessions.Dec()

	done := make(chan struct{})
	defer close(done)

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// Ping ticker to keep connection alive through proxies.
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("live session closed", "err", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		resp := s.answer(data)
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(resp); err != nil {
			return
		}
	}
}

func (s *Service) answer(data []byte) LiveResponse {
	var req LiveRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return LiveResponse{Type: "error", Error: "invalid request body"}
	}
	profile, target, pref, err := req.parse()
	if err != nil {
		return LiveResponse{Type: "error", Seq: req.Seq, Error: err.Error()}
	}
	result := s.compute(profile, target, pref)
	return LiveResponse{Type: "result", Seq: req.Seq, Result: &result}
}
