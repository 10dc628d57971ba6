package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/raphaelgruber/qaharvest/internal/models"
)

const (
	defaultWatchInterval = 500 * time.Millisecond
	watchWriteTimeout    = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// handleWatchJob streams a job over a websocket. The current job is sent on
// connect and again on every status change; the server closes the socket
// once the job is terminal.
func (s *Server) handleWatchJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	job, err := s.deps.Jobs.Get(ctx, id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "job_id", id, "error", err)
		return
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Time{})

	// Drain client frames so a close from the peer is noticed.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.watchInterval)
	defer ticker.Stop()

	var last models.JobStatus
	for {
		if job.Status != last {
			_ = conn.SetWriteDeadline(time.Now().Add(watchWriteTimeout))
			if err := conn.WriteJSON(job); err != nil {
				s.logger.Debug("watch write failed", "job_id", id, "error", err)
				return
			}
			last = job.Status
		}

		if job.Status.IsTerminal() {
			closeWatch(conn, websocket.CloseNormalClosure, "job finished")
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-gone:
			return
		case <-ticker.C:
		}

		job, err = s.deps.Jobs.Get(ctx, id)
		if err != nil {
			s.logger.Warn("watch lookup failed", "job_id", id, "error", err)
			closeWatch(conn, websocket.CloseInternalServerErr, "job lookup failed")
			return
		}
	}
}

func closeWatch(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}
