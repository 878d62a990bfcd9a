package v1

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const wsPingInterval = 30 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The API is bound to localhost; cross-origin tooling is allowed.
		return true
	},
}

func parseAfterSeq(c echo.Context) (uint64, error) {
	raw := c.QueryParam("after_seq")
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseUint(raw, 10, 64)
}

// StreamEvents replays the evidence log after the given cursor and then
// streams live events over SSE. The event seq doubles as the SSE id, so a
// reconnecting client can resume with after_seq.
// GET /v1/evidence/:request_id/events?after_seq=N
func (h *Handler) StreamEvents(c echo.Context) error {
	requestID := c.Param("request_id")
	afterSeq, err := parseAfterSeq(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "after_seq must be a non-negative integer"})
	}

	ctx := c.Request().Context()
	events, cancel, err := h.recorder.Subscribe(ctx, requestID, afterSeq)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	defer cancel()

	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().WriteHeader(http.StatusOK)

	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return fmt.Errorf("streaming not supported by response writer")
	}

	for {
		select {
		case ev, open := <-events:
			if !open {
				return nil
			}
			data, err := json.Marshal(ev)
			if err != nil {
				log.Printf("evidence event marshal failed for %s seq %d: %v", requestID, ev.Seq, err)
				continue
			}
			fmt.Fprintf(c.Response(), "id: %d\nevent: %s\ndata: %s\n\n", ev.Seq, ev.Type, data)
			flusher.Flush()
		case <-ctx.Done():
			return nil
		}
	}
}

// StreamWebSocket serves the same replay-then-live contract as StreamEvents
// over a websocket, one JSON event per message.
// GET /v1/evidence/:request_id/stream?after_seq=N
func (h *Handler) StreamWebSocket(c echo.Context) error {
	requestID := c.Param("request_id")
	afterSeq, err := parseAfterSeq(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "after_seq must be a non-negative integer"})
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Printf("websocket upgrade failed for %s: %v", requestID, err)
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	events, unsubscribe, err := h.recorder.Subscribe(ctx, requestID, afterSeq)
	if err != nil {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscribe failed"))
		return nil
	}
	defer unsubscribe()

	// Reader goroutine: the client never sends data, but reading is what
	// surfaces close frames and connection loss.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case ev, open := <-events:
			if !open {
				return nil
			}
			if err := conn.WriteJSON(ev); err != nil {
				return nil
			}
		case <-ping.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		case <-ctx.Done():
			return nil
		}
	}
}
