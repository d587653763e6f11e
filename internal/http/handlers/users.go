package handlers

import (
	"net/http"
	"strings"

	"eventmitra/backend/internal/models"
)

type updateMeRequest struct {
	Name  *string `json:"name" validate:"omitempty,min=1,max=120"`
	Phone *string `json:"phone" validate:"omitempty,max=32"`
}

type loyaltyResponse struct {
	Balance      int64                       `json:"balance"`
	Badges       []string                    `json:"badges"`
	Transactions []models.LoyaltyTransaction `json:"transactions"`
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	caller, ok := actor(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	user, err := h.repo.GetUserByID(ctx, caller.UserID)
	if err != nil {
		h.handleTicketingError(logger, w, "me", err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *Handler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	caller, ok := actor(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req updateMeRequest
	if !h.decodeJSON(w, r, "update_me", &req) {
		return
	}
	if req.Name != nil {
		trimmed := strings.TrimSpace(*req.Name)
		if trimmed == "" {
			writeError(w, http.StatusBadRequest, "name is required")
			return
		}
		req.Name = &trimmed
	}

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	user, err := h.repo.UpdateUserProfile(ctx, caller.UserID, req.Name, req.Phone)
	if err != nil {
		h.handleTicketingError(logger, w, "update_me", err)
		return
	}
	logger.Info("update_me", "status", "success")
	writeJSON(w, http.StatusOK, user)
}

func (h *Handler) ListMyOrders(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	caller, ok := actor(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	items, total, err := h.repo.ListMyOrders(ctx, caller.UserID, parseIntQuery(r, "limit", 20), parseIntQuery(r, "offset", 0))
	if err != nil {
		h.handleTicketingError(logger, w, "list_my_orders", err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[models.Order]{Items: items, Total: total})
}

func (h *Handler) ListMyTickets(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	caller, ok := actor(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	items, err := h.repo.ListMyTickets(ctx, caller.UserID)
	if err != nil {
		h.handleTicketingError(logger, w, "list_my_tickets", err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[models.Ticket]{Items: items, Total: len(items)})
}

func (h *Handler) MyLoyalty(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	caller, ok := actor(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	user, err := h.repo.GetUserByID(ctx, caller.UserID)
	if err != nil {
		h.handleTicketingError(logger, w, "my_loyalty", err)
		return
	}
	ledger, err := h.repo.ListLoyaltyTransactions(ctx, caller.UserID, parseIntQuery(r, "limit", 50))
	if err != nil {
		h.handleTicketingError(logger, w, "my_loyalty", err)
		return
	}
	writeJSON(w, http.StatusOK, loyaltyResponse{Balance: user.LoyaltyPoints, Badges: user.Badges, Transactions: ledger})
}

func (h *Handler) ListFavorites(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	caller, ok := actor(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	events, err := h.repo.ListFavoriteEvents(ctx, caller.UserID)
	if err != nil {
		h.handleTicketingError(logger, w, "list_favorites", err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[models.Event]{Items: events, Total: len(events)})
}

func (h *Handler) AddFavorite(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	caller, ok := actor(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	eventID, ok := pathInt64(r, "eventId")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid event id")
		return
	}
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	if _, err := h.repo.GetEvent(ctx, eventID); err != nil {
		h.handleTicketingError(logger, w, "add_favorite", err)
		return
	}
	if err := h.repo.AddFavorite(ctx, caller.UserID, eventID); err != nil {
		h.handleTicketingError(logger, w, "add_favorite", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) RemoveFavorite(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	caller, ok := actor(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	eventID, ok := pathInt64(r, "eventId")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid event id")
		return
	}
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	if err := h.repo.RemoveFavorite(ctx, caller.UserID, eventID); err != nil {
		h.handleTicketingError(logger, w, "remove_favorite", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
