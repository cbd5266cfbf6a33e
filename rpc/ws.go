package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"namechain/core"
)

const (
	wsWriteTimeout = 10 * time.Second
)

type eventPayload struct {
	Type       string            `json:"type"`
	Cursor     string            `json:"cursor"`
	Block      string            `json:"block"`
	Height     uint64            `json:"height"`
	TxHash     string            `json:"txHash"`
	Timestamp  uint64            `json:"ts"`
	Event      string            `json:"event"`
	Attributes map[string]string `json:"attributes"`
}

func eventPayloadFrom(update core.EventUpdate) eventPayload {
	return eventPayload{
		Type:       "event",
		Cursor:     update.Cursor,
		Block:      update.BlockHash.Hex(),
		Height:     update.Height,
		TxHash:     update.TxHash.Hex(),
		Timestamp:  update.Timestamp,
		Event:      update.Event.Type,
		Attributes: update.Event.Attributes,
	}
}

// handleEventsWS streams committed events. Clients resume with ?cursor=N to
// replay retained events after sequence N.
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	if s == nil || s.node == nil {
		http.Error(w, "node unavailable", http.StatusServiceUnavailable)
		return
	}
	cursor := strings.TrimSpace(r.URL.Query().Get("cursor"))
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")
	ctx := conn.CloseRead(r.Context())
	if err := s.streamEvents(ctx, conn, cursor); err != nil {
		if status := websocket.CloseStatus(err); status == -1 {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (s *Server) streamEvents(ctx context.Context, conn *websocket.Conn, cursor string) error {
	updates, cancel, backlog, err := s.node.SubscribeEvents(ctx, cursor)
	if err != nil {
		return err
	}
	defer cancel()

	for _, update := range backlog {
		if err := writeEventUpdate(ctx, conn, update); err != nil {
			return err
		}
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if err := writeEventUpdate(ctx, conn, update); err != nil {
				return err
			}
		}
	}
}

func writeEventUpdate(ctx context.Context, conn *websocket.Conn, update core.EventUpdate) error {
	data, err := json.Marshal(eventPayloadFrom(update))
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
