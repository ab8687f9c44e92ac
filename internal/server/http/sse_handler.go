package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"wagate/internal/broadcast"
	"wagate/internal/logging"
	"wagate/internal/server/app"
)

// heartbeatInterval keeps idle SSE connections alive through proxies.
const heartbeatInterval = 30 * time.Second

// SSEHandler streams per-account lifecycle events over Server-Sent Events.
type SSEHandler struct {
	accounts    *app.AccountService
	broadcaster *broadcast.Broadcaster
	logger      logging.Logger
}

func NewSSEHandler(accounts *app.AccountService, broadcaster *broadcast.Broadcaster) *SSEHandler {
	return &SSEHandler{
		accounts:    accounts,
		broadcaster: broadcaster,
		logger:      logging.NewComponentLogger("SSEHandler"),
	}
}

// HandleEventStream serves GET /api/accounts/{id}/events. Connecting also
// activates the account, so a fresh browser tab starts the login flow and
// receives the resulting qr events on the same connection.
func (h *SSEHandler) HandleEventStream(w http.ResponseWriter, r *http.Request, accountID string) {
	flusher, ok := flusherFor(w)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	// Subscribe before activation so no event emitted during session
	// startup can slip past this listener.
	sub := h.broadcaster.Subscribe(accountID)
	defer h.broadcaster.Unsubscribe(sub)

	if _, err := h.accounts.Activate(r.Context(), accountID); err != nil {
		writeError(w, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // disable nginx buffering

	h.logger.Info("SSE connection established for account: %s", accountID)

	if _, err := fmt.Fprintf(w, "event: connected\ndata: {\"account_id\":%q}\n\n", accountID); err != nil {
		h.logger.Error("Failed to send connection message: %v", err)
		return
	}
	flusher.Flush()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				// Pruned by the broadcaster for falling behind.
				h.logger.Warn("SSE subscription for account %s was pruned", accountID)
				return
			}
			data, err := serializeEvent(accountID, ev.Payload())
			if err != nil {
				h.logger.Error("Failed to serialize %s event: %v", ev.Kind(), err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind(), data); err != nil {
				h.logger.Error("Failed to send SSE message: %v", err)
				return
			}
			flusher.Flush()

		case <-ticker.C:
			if _, err := fmt.Fprintf(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()

		case <-r.Context().Done():
			h.logger.Info("SSE connection closed for account: %s", accountID)
			return
		}
	}
}

func serializeEvent(accountID string, payload map[string]any) (string, error) {
	data := make(map[string]any, len(payload)+2)
	for k, v := range payload {
		data[k] = v
	}
	data["account_id"] = accountID
	data["timestamp"] = time.Now().UTC().Format(time.RFC3339)

	raw, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// flusherFor finds http.Flusher through any middleware wrappers.
func flusherFor(w http.ResponseWriter) (http.Flusher, bool) {
	for {
		if flusher, ok := w.(http.Flusher); ok {
			return flusher, true
		}
		unwrapper, ok := w.(interface{ Unwrap() http.ResponseWriter })
		if !ok {
			return nil, false
		}
		w = unwrapper.Unwrap()
		if w == nil {
			return nil, false
		}
	}
}
