package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/intellifactory/internal/events"
)

// handleSSE streams hub events to one client. Each connection owns one
// subscription; it is released as soon as the client goes away.
func (h *handlers) handleSSE(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	sub := h.hub.Subscribe()
	defer h.hub.Unsubscribe(sub)

	writeSSE(c.Writer, string(events.TypeConnected), map[string]string{"type": "connected", "subscription": sub.ID()})
	c.Writer.Flush()

	ctx := c.Request.Context()
	for {
		waitCtx, cancel := context.WithTimeout(ctx, h.heartbeat)
		ev, err := sub.Next(waitCtx)
		cancel()

		switch {
		case err == nil:
			writeSSE(c.Writer, string(ev.Type), ev.Payload)
		case ctx.Err() != nil, errors.Is(err, events.ErrClosed):
			return
		case errors.Is(err, context.DeadlineExceeded):
			writeSSE(c.Writer, string(events.TypeHeartbeat), map[string]string{
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			})
		default:
			h.log.Warn("event stream stopped", "subscription", sub.ID(), "err", err)
			return
		}
		c.Writer.Flush()
	}
}

// writeSSE writes a single SSE event to the writer.
func writeSSE(w io.Writer, event string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, string(jsonData))
}
