package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/titanscrape/titan/internal/eventbus"
	"github.com/titanscrape/titan/internal/logging"
	"github.com/titanscrape/titan/internal/model"
)

var eventStreamUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// EventStreamHandlers implements the shared event-stream notifications
// channel (spec.md §6): one websocket per deployment, optionally filtered
// by domain via the `?domain=` query parameter.
type EventStreamHandlers struct {
	Bus     eventbus.Bus
	Channel string
}

type eventStreamMessage struct {
	Event     model.EventType `json:"event"`
	Data      any             `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// Stream handles GET /events: upgrades to a websocket and relays every
// event on the shared channel (domain-filtered if requested) until the
// client disconnects.
func (h *EventStreamHandlers) Stream(w http.ResponseWriter, r *http.Request) {
	channel := h.Channel
	if channel == "" {
		channel = eventbus.DefaultChannel
	}
	domain := r.URL.Query().Get("domain")

	stream, unsubscribe, err := h.Bus.SubscribeFiltered(r.Context(), channel, domain, nil)
	if err != nil {
		writeError(w, err)
		return
	}
	defer unsubscribe()

	conn, err := eventStreamUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn(logging.HTTPAPI, "event stream websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	_ = conn.WriteJSON(eventStreamMessage{Event: "connected", Timestamp: time.Now().UnixMilli()})

	for {
		select {
		case event, ok := <-stream:
			if !ok {
				return
			}
			msg := eventStreamMessage{Event: event.Type, Data: event.Payload, Timestamp: event.Timestamp.UnixMilli()}
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}
