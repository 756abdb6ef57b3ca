package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"nhooyr.io/websocket"

	"stakingrewards/core/types"
)

const wsWriteTimeout = 10 * time.Second

// streamEvents replays journaled events after the cursor query parameter and
// then follows the journal live.
func (sr *stakingRoutes) streamEvents(w http.ResponseWriter, r *http.Request) {
	cursor, _, err := parsePage(r)
	if err != nil {
		writeError(w, err)
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	ctx := conn.CloseRead(r.Context())
	if err := sr.followJournal(ctx, conn, cursor); err != nil {
		if status := websocket.CloseStatus(err); status == -1 && ctx.Err() == nil {
			sr.logger.Debug("event stream closed", "error", err)
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (sr *stakingRoutes) followJournal(ctx context.Context, conn *websocket.Conn, cursor uint64) error {
	// Subscribe before reading the backlog so nothing appended in between is
	// lost; duplicates are filtered by sequence.
	updates, cancel := sr.journal.Subscribe()
	defer cancel()

	for {
		backlog, err := sr.journal.List(cursor, 0)
		if err != nil {
			return err
		}
		for _, evt := range backlog {
			if err := writeEvent(ctx, conn, evt); err != nil {
				return err
			}
			cursor = evt.Sequence
		}
		if len(backlog) == 0 {
			break
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-updates:
			if !ok {
				return conn.Close(websocket.StatusTryAgainLater, "subscriber fell behind")
			}
			if evt.Sequence <= cursor {
				continue
			}
			if err := writeEvent(ctx, conn, evt); err != nil {
				return err
			}
			cursor = evt.Sequence
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, evt types.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
