package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/pumpfight/internal/service"
)

// EventHandler serves persisted event and payout history.
type EventHandler struct {
	svc    Launchpad
	logger *slog.Logger
}

// NewEventHandler creates an EventHandler.
func NewEventHandler(svc Launchpad, logger *slog.Logger) *EventHandler {
	return &EventHandler{svc: svc, logger: logHandler(logger, "events")}
}

// ListEvents returns a token's events, newest first.
// GET /api/events?token=0x...&limit=50&offset=0
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(w, "token", r.URL.Query().Get("token"))
	if !ok {
		return
	}
	evs, err := h.svc.Events(r.Context(), addr, parseListOpts(r))
	if err != nil {
		writeServiceError(w, r, h.logger, "list events", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]service.EventView{"events": newEventViews(evs)})
}

// ListPayouts returns CHZ transfers received by an address.
// GET /api/payouts?to=0x...
func (h *EventHandler) ListPayouts(w http.ResponseWriter, r *http.Request) {
	to, ok := parseAddress(w, "to", r.URL.Query().Get("to"))
	if !ok {
		return
	}
	ps, err := h.svc.Payouts(r.Context(), to, parseListOpts(r))
	if err != nil {
		writeServiceError(w, r, h.logger, "list payouts", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]payoutView{"payouts": newPayoutViews(ps)})
}
