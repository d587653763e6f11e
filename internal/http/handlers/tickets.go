package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"eventmitra/backend/internal/checkout"

	"github.com/go-chi/chi/v5"
)

type verifyTicketRequest struct {
	TicketID  string `json:"ticketId"`
	QRPayload string `json:"qrPayload" validate:"required"`
}

type checkInRequest struct {
	QRPayload string `json:"qrPayload"`
	Location  string `json:"location" validate:"max=120"`
}

type transferTicketRequest struct {
	RecipientEmail string `json:"recipientEmail" validate:"required,email"`
}

func (h *Handler) GetTicket(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	caller, ok := actor(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	ticket, err := h.admission.Ticket(ctx, caller, chi.URLParam(r, "ticketId"))
	if err != nil {
		h.handleTicketingError(logger, w, "get_ticket", err)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) TicketQR(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	caller, ok := actor(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	png, err := h.admission.QRImage(ctx, caller, chi.URLParam(r, "ticketId"))
	if err != nil {
		h.handleTicketingError(logger, w, "ticket_qr", err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

// VerifyTicket answers whether a scanned QR would be admitted. Rejections
// are reported in the body with 200.
func (h *Handler) VerifyTicket(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	var req verifyTicketRequest
	if !h.decodeJSON(w, r, "verify_ticket", &req) {
		return
	}
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	result, err := h.admission.Verify(ctx, checkout.ScanInput{
		TicketID:  strings.TrimSpace(req.TicketID),
		QRPayload: req.QRPayload,
	})
	if err != nil {
		h.handleTicketingError(logger, w, "verify_ticket", err)
		return
	}
	if !result.Valid {
		logger.Info("verify_ticket", "status", "rejected", "reason", result.Reason)
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) CheckInTicket(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	caller, ok := actor(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req checkInRequest
	if !h.decodeJSON(w, r, "check_in", &req) {
		return
	}
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	result, err := h.admission.CheckIn(ctx, caller, checkout.CheckInInput{
		TicketID:  chi.URLParam(r, "ticketId"),
		QRPayload: req.QRPayload,
		Location:  req.Location,
	})
	if err != nil {
		h.handleTicketingError(logger, w, "check_in", err)
		return
	}
	logger.Info("check_in", "status", "success", "ticket_id", result.Ticket.ID, "event_id", result.EventID)
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) TransferTicket(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	caller, ok := actor(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req transferTicketRequest
	if !h.decodeJSON(w, r, "transfer_ticket", &req) {
		return
	}
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	ticket, err := h.admission.Transfer(ctx, caller, chi.URLParam(r, "ticketId"), req.RecipientEmail)
	if err != nil {
		h.handleTicketingError(logger, w, "transfer_ticket", err)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}
