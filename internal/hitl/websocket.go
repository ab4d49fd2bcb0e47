package hitl

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/titanscrape/titan/internal/logging"
	"github.com/titanscrape/titan/internal/model"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// StreamHandler upgrades an operator's HTTP request to a websocket and
// attaches it to the session named in the {session_id} route variable,
// streaming viewport frames and status messages out while decoding admin
// input events in (spec.md §6 "HITL streaming protocol").
func (c *Coordinator) StreamHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["session_id"]
	live, ok := c.Attach(sessionID)
	if !ok {
		http.Error(w, "unknown or expired hitl session", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn(logging.HITL, "websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	live.markAdminConnected()
	_ = conn.WriteJSON(newStatusMessage("connected", map[string]any{"session_id": sessionID}))

	done := make(chan struct{})
	go c.readInput(conn, live, done)
	c.writeFrames(r.Context(), conn, live, done)
}

func (c *Coordinator) writeFrames(ctx context.Context, conn *websocket.Conn, live *liveSession, done <-chan struct{}) {
	ticker := time.NewTicker(time.Second / time.Duration(c.streamFPS()))
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			jpeg, err := live.harvester.Snapshot(ctx)
			if err != nil {
				logging.Warn(logging.HITL, "failed to capture viewport snapshot", zap.Error(err))
				continue
			}
			live.mu.Lock()
			live.frameSeq++
			frame := model.StreamFrame{
				SessionID: live.session.SessionID,
				Sequence:  live.frameSeq,
				Timestamp: time.Now(),
				JPEG:      jpeg,
			}
			live.mu.Unlock()

			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.BinaryMessage, EncodeFrame(frame)); err != nil {
				return
			}
		}
	}
}

func (c *Coordinator) readInput(conn *websocket.Conn, live *liveSession, done chan<- struct{}) {
	defer close(done)
	ctx := context.Background()

	for {
		var event model.InputEvent
		if err := conn.ReadJSON(&event); err != nil {
			return
		}
		event.SessionID = live.session.SessionID

		switch event.Type {
		case "ping":
			_ = conn.WriteJSON(newStatusMessage("pong", nil))
		case model.InputSolved:
			result := model.SolverResult{Type: model.SolverResultCookie}
			if event.Solution != nil {
				result = *event.Solution
			}
			live.signalSolved(result)
		case model.InputCancel:
			c.markStatus(live, model.HITLCancelled)
			return
		default:
			if err := live.harvester.Inject(ctx, event); err != nil {
				logging.Warn(logging.HITL, "failed to inject admin input", zap.String("type", string(event.Type)), zap.Error(err))
			}
		}
	}
}
