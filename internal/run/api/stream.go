package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/agentboard/agentboard/internal/common/errors"
	v1 "github.com/agentboard/agentboard/pkg/api/v1"
)

const (
	// streamPollInterval is how often the progress store is polled for a
	// connected client.
	streamPollInterval = 1500 * time.Millisecond

	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// StreamRun upgrades to a websocket and pushes progress frames for a
// ticket's run until the run reaches a terminal status. The first frame
// carries the full transcript; later frames carry only appended text.
// GET /api/v1/tickets/:ticketId/run/stream
func (h *Handler) StreamRun(c *gin.Context) {
	ticketID := c.Param("ticketId")

	ticket, err := h.repo.GetTicket(c.Request.Context(), ticketID)
	if err != nil {
		appErr := errors.NotFound("ticket", ticketID)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}
	if ticket.InstancePath == "" {
		appErr := errors.NotFound("run", ticketID)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed",
			zap.String("ticket_id", ticketID), zap.Error(err))
		return
	}

	go h.readLoop(conn)
	h.writeLoop(c.Request.Context(), conn, ticketID)
}

// readLoop consumes client frames; the stream is one-directional but pong
// control frames must still be processed to keep the connection alive.
func (h *Handler) readLoop(conn *websocket.Conn) {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Handler) writeLoop(ctx context.Context, conn *websocket.Conn, ticketID string) {
	defer conn.Close()

	ticker := time.NewTicker(streamPollInterval)
	defer ticker.Stop()
	pinger := time.NewTicker(pingPeriod)
	defer pinger.Stop()

	var offset int64

	// Prime the client immediately instead of waiting a full tick.
	if done := h.pushFrame(ctx, conn, ticketID, &offset); done {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-pinger.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ticker.C:
			if done := h.pushFrame(ctx, conn, ticketID, &offset); done {
				return
			}
		}
	}
}

// pushFrame polls once and writes one frame. Returns true when streaming
// should stop, either on write failure or after the final flush for a
// terminal status.
func (h *Handler) pushFrame(ctx context.Context, conn *websocket.Conn, ticketID string, offset *int64) bool {
	frame, err := h.buildFrame(ctx, ticketID, offset)
	if err != nil {
		h.logger.Warn("failed to build stream frame",
			zap.String("ticket_id", ticketID), zap.Error(err))
		return true
	}

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(frame); err != nil {
		return true
	}

	if frame.Terminal {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished"))
		return true
	}
	return false
}

func (h *Handler) buildFrame(ctx context.Context, ticketID string, offset *int64) (*StreamFrame, error) {
	ticket, err := h.repo.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	frame := &StreamFrame{Status: v1.RunStatusLaunching}

	snap, err := h.store.Read(ticket.InstancePath)
	if err != nil {
		return nil, err
	}
	if snap != nil {
		frame.Status = snap.Status
		frame.Phase = snap.Phase
		frame.Message = snap.Message
	}

	text, next, err := h.store.ReadTranscript(ticket.InstancePath, *offset)
	if err != nil {
		return nil, err
	}
	frame.Log = text
	*offset = next

	if ticket.RunStartedAt != nil {
		end := time.Now().UTC()
		if ticket.RunCompletedAt != nil {
			end = *ticket.RunCompletedAt
		}
		frame.ElapsedMS = end.Sub(*ticket.RunStartedAt).Milliseconds()
	}

	frame.Terminal = frame.Status.Terminal()
	return frame, nil
}
