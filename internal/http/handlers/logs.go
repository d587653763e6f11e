package handlers

import (
	"log/slog"
	"net/http"
	"strings"
)

const maxClientMessageLen = 500

type clientLogEntry struct {
	Level   string                 `json:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Message string                 `json:"message" validate:"required"`
	Screen  string                 `json:"screen" validate:"max=120"`
	OrderID string                 `json:"orderId" validate:"max=64"`
	Meta    map[string]interface{} `json:"meta"`
}

type clientLogRequest struct {
	App     string           `json:"app" validate:"required,oneof=web scanner dashboard"`
	Entries []clientLogEntry `json:"entries" validate:"required,min=1,max=50,dive"`
}

// Noise the SPA reports on every flaky connection or denied camera prompt.
var suppressedClientMessages = map[string]struct{}{
	"network_offline":          {},
	"camera_permission_denied": {},
	"checkout_dismissed":       {},
}

// ClientLogs relays browser-side errors from the checkout page and the
// gate scanner into the server log.
func (h *Handler) ClientLogs(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	var req clientLogRequest
	if !h.decodeJSON(w, r, "client_log", &req) {
		return
	}
	logger = logger.With("source", "client", "app", req.App, "ip", r.RemoteAddr)
	for _, entry := range req.Entries {
		if isSuppressedClientMessage(entry.Message) {
			continue
		}
		logClientEntry(logger, entry)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func isSuppressedClientMessage(message string) bool {
	_, ok := suppressedClientMessages[strings.ToLower(strings.TrimSpace(message))]
	return ok
}

func logClientEntry(logger *slog.Logger, entry clientLogEntry) {
	message := strings.TrimSpace(entry.Message)
	if len(message) > maxClientMessageLen {
		message = message[:maxClientMessageLen]
	}
	attrs := []any{"message", message}
	if entry.Screen != "" {
		attrs = append(attrs, "screen", entry.Screen)
	}
	if entry.OrderID != "" {
		attrs = append(attrs, "order_id", entry.OrderID)
	}
	if len(entry.Meta) > 0 {
		attrs = append(attrs, "meta", entry.Meta)
	}
	switch strings.ToLower(entry.Level) {
	case "debug":
		logger.Debug("client_log", attrs...)
	case "warn", "warning":
		logger.Warn("client_log", attrs...)
	case "error":
		logger.Error("client_log", attrs...)
	default:
		logger.Info("client_log", attrs...)
	}
}
