package cnapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"limitboard/internal/limitup"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleStream upgrades to a WebSocket, runs the analysis for ?date= and
// sends progress events followed by one result or error event. Closing the
// socket cancels the run.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	date, err := s.dateParam(r)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The read loop only exists to notice the client going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(ev ProgressEvent) error {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(ev)
	}

	s.log.Info("progress stream opened", "date", date, "remote", r.RemoteAddr)
	res, err := s.analyzer.Run(ctx, date, func(p limitup.Progress) {
		if err := send(ProgressEvent{
			Type:   EventProgress,
			Done:   p.Done,
			Total:  p.Total,
			Symbol: p.Symbol,
			Failed: p.Failed,
		}); err != nil {
			cancel()
		}
	})
	if err != nil {
		if ctx.Err() != nil {
			s.log.Info("progress stream closed by client", "date", date)
			return
		}
		s.log.Error("running limit-up analysis", "date", date, "error", err)
		send(ProgressEvent{Type: EventError, Error: err.Error(), Status: statusFor(err)})
		closeNormal(conn)
		return
	}

	resp := newLimitUpResponse(s.runs.add(res), res)
	if err := send(ProgressEvent{Type: EventResult, Result: &resp}); err != nil {
		s.log.Warn("sending result", "date", date, "error", err)
		return
	}
	closeNormal(conn)
}

func closeNormal(conn *websocket.Conn) {
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
}
