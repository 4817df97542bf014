package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"shadowpay/core/events"
	"shadowpay/crypto"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsBuffer       = 64
)

// EventStream hands out live subscriptions to committed events.
type EventStream interface {
	Subscribe(capacity int) (<-chan events.Event, func())
}

// handleEventStream upgrades to a websocket and forwards committed events,
// optionally restricted to one pay request address.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	if s.stream == nil {
		s.writeError(w, r, http.StatusServiceUnavailable, "StreamDisabled", "event stream is not configured")
		return
	}
	filter := strings.TrimSpace(r.URL.Query().Get("address"))
	if filter != "" {
		addr, err := crypto.ParseAddress(filter)
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, "InvalidAddress", err.Error())
			return
		}
		filter = crypto.FormatAddress(addr)
	}
	// Server read and write timeouts would otherwise cut long-lived streams.
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.cfg.CORSOrigins})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	ctx := conn.CloseRead(r.Context())
	if err := s.streamEvents(ctx, conn, filter); err != nil {
		if status := websocket.CloseStatus(err); status == -1 {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (s *Server) streamEvents(ctx context.Context, conn *websocket.Conn, address string) error {
	updates, cancel := s.stream.Subscribe(wsBuffer)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-updates:
			if !ok {
				return nil
			}
			payload := evt.Event()
			if payload == nil {
				continue
			}
			if address != "" && payload.Attributes["address"] != address {
				continue
			}
			if err := writeStreamEvent(ctx, conn, payload.Type, payload.Attributes); err != nil {
				return err
			}
		}
	}
}

func writeStreamEvent(ctx context.Context, conn *websocket.Conn, eventType string, attrs map[string]string) error {
	data, err := json.Marshal(ReceiptLog(mergeType(eventType, attrs)))
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}

func mergeType(eventType string, attrs map[string]string) map[string]string {
	out := make(map[string]string, len(attrs)+1)
	for k, v := range attrs {
		out[k] = v
	}
	out["type"] = eventType
	return out
}
