package handlers

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"eventmitra/backend/internal/checkout"
	"eventmitra/backend/internal/geocode"
	"eventmitra/backend/internal/integrations"
	"eventmitra/backend/internal/models"
)

type venueRequest struct {
	Name     string   `json:"name" validate:"required,max=200"`
	Address  string   `json:"address" validate:"max=500"`
	City     string   `json:"city" validate:"required,max=120"`
	Lat      *float64 `json:"lat" validate:"omitempty,latitude"`
	Lng      *float64 `json:"lng" validate:"omitempty,longitude"`
	Capacity int      `json:"capacity" validate:"min=0"`
}

type ticketTypeRequest struct {
	Name         string     `json:"name" validate:"required,max=80"`
	Description  string     `json:"description" validate:"max=1000"`
	Price        int64      `json:"price" validate:"min=0"`
	Quantity     int        `json:"quantity" validate:"required,min=1"`
	MaxPerUser   int        `json:"maxPerUser" validate:"min=0"`
	SaleStartsAt *time.Time `json:"saleStartsAt"`
	SaleEndsAt   *time.Time `json:"saleEndsAt"`
	IsActive     *bool      `json:"isActive"`
}

type createEventRequest struct {
	Title       string              `json:"title" validate:"required,max=200"`
	Description string              `json:"description" validate:"max=20000"`
	Category    string              `json:"category" validate:"required,max=60"`
	StartsAt    time.Time           `json:"startsAt" validate:"required"`
	EndsAt      time.Time           `json:"endsAt" validate:"required,gtfield=StartsAt"`
	Venue       venueRequest        `json:"venue"`
	TicketTypes []ticketTypeRequest `json:"ticketTypes" validate:"dive"`
}

type patchEventRequest struct {
	Title       *string    `json:"title" validate:"omitempty,min=1,max=200"`
	Description *string    `json:"description" validate:"omitempty,max=20000"`
	Category    *string    `json:"category" validate:"omitempty,min=1,max=60"`
	StartsAt    *time.Time `json:"startsAt"`
	EndsAt      *time.Time `json:"endsAt"`
	VenueName   *string    `json:"venueName" validate:"omitempty,min=1,max=200"`
	Address     *string    `json:"address" validate:"omitempty,max=500"`
	City        *string    `json:"city" validate:"omitempty,min=1,max=120"`
	Lat         *float64   `json:"lat" validate:"omitempty,latitude"`
	Lng         *float64   `json:"lng" validate:"omitempty,longitude"`
	Capacity    *int       `json:"capacity" validate:"omitempty,min=0"`
}

type patchTicketTypeRequest struct {
	Name         *string    `json:"name" validate:"omitempty,min=1,max=80"`
	Description  *string    `json:"description" validate:"omitempty,max=1000"`
	Price        *int64     `json:"price" validate:"omitempty,min=0"`
	Quantity     *int       `json:"quantity" validate:"omitempty,min=0"`
	MaxPerUser   *int       `json:"maxPerUser" validate:"omitempty,min=1"`
	SaleStartsAt *time.Time `json:"saleStartsAt"`
	SaleEndsAt   *time.Time `json:"saleEndsAt"`
	IsActive     *bool      `json:"isActive"`
}

func (req ticketTypeRequest) input() models.TicketTypeInput {
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	return models.TicketTypeInput{
		Name:         req.Name,
		Description:  req.Description,
		Price:        req.Price,
		Quantity:     req.Quantity,
		MaxPerUser:   req.MaxPerUser,
		SaleStartsAt: req.SaleStartsAt,
		SaleEndsAt:   req.SaleEndsAt,
		IsActive:     active,
	}
}

func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	query := r.URL.Query()
	events, total, err := h.repo.ListEvents(ctx, models.EventFilter{
		Category: query.Get("category"),
		City:     query.Get("city"),
		Query:    query.Get("q"),
		Limit:    parseIntQuery(r, "limit", 20),
		Offset:   parseIntQuery(r, "offset", 0),
	})
	if err != nil {
		h.handleTicketingError(logger, w, "list_events", err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[models.Event]{Items: events, Total: total})
}

func (h *Handler) MyEvents(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	caller, ok := actor(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	events, err := h.repo.ListOrganizerEvents(ctx, caller.UserID)
	if err != nil {
		h.handleTicketingError(logger, w, "my_events", err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[models.Event]{Items: events, Total: len(events)})
}

// GetEvent is public. Drafts are reported as missing to everyone but
// their organizer and admins.
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	eventID, ok := pathInt64(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid event id")
		return
	}
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	event, err := h.repo.GetEvent(ctx, eventID)
	if err != nil {
		h.handleTicketingError(logger, w, "get_event", err)
		return
	}
	if event.Status == models.EventStatusDraft {
		caller, ok := actor(r)
		if !ok || !canManage(caller, event) {
			logger.Warn("get_event", "status", "draft_hidden", "event_id", eventID)
			writeError(w, http.StatusNotFound, "not found")
			return
		}
	}
	writeJSON(w, http.StatusOK, event)
}

func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	caller, ok := actor(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req createEventRequest
	if !h.decodeJSON(w, r, "create_event", &req) {
		return
	}

	venue := models.Venue{
		Name:     req.Venue.Name,
		Address:  req.Venue.Address,
		City:     req.Venue.City,
		Lat:      req.Venue.Lat,
		Lng:      req.Venue.Lng,
		Capacity: req.Venue.Capacity,
	}
	if venue.Lat == nil || venue.Lng == nil {
		h.geocodeVenue(r.Context(), &venue)
	}

	types := make([]models.TicketTypeInput, 0, len(req.TicketTypes))
	for _, tt := range req.TicketTypes {
		types = append(types, tt.input())
	}

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	event, err := h.repo.CreateEvent(ctx, caller.UserID, models.EventInput{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		StartsAt:    req.StartsAt,
		EndsAt:      req.EndsAt,
		Venue:       venue,
	}, types)
	if err != nil {
		h.handleTicketingError(logger, w, "create_event", err)
		return
	}
	logger.Info("create_event", "status", "success", "event_id", event.ID)
	writeJSON(w, http.StatusCreated, event)
}

// geocodeVenue fills missing coordinates when a geocoder is configured.
// Lookup failures leave the venue unchanged.
func (h *Handler) geocodeVenue(ctx context.Context, venue *models.Venue) {
	if h.geocoder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 4*time.Second)
	defer cancel()
	res, err := h.geocoder.LocateVenue(ctx, venue.Name, venue.Address, venue.City)
	if err != nil {
		if !errors.Is(err, geocode.ErrNoMatch) {
			h.logger.Warn("geocode_venue", "status", "failed", "error", err)
		}
		return
	}
	lat, lng := res.Lat, res.Lng
	venue.Lat = &lat
	venue.Lng = &lng
}

func (h *Handler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	var req patchEventRequest
	if !h.decodeJSON(w, r, "update_event", &req) {
		return
	}
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	event, ok := h.loadManagedEvent(ctx, w, r, "update_event")
	if !ok {
		return
	}
	start, end := event.StartsAt, event.EndsAt
	if req.StartsAt != nil {
		start = *req.StartsAt
	}
	if req.EndsAt != nil {
		end = *req.EndsAt
	}
	if !end.After(start) {
		writeError(w, http.StatusBadRequest, "event must end after it starts")
		return
	}

	updated, err := h.repo.UpdateEvent(ctx, event.ID, models.EventPatch{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		StartsAt:    req.StartsAt,
		EndsAt:      req.EndsAt,
		VenueName:   req.VenueName,
		Address:     req.Address,
		City:        req.City,
		Lat:         req.Lat,
		Lng:         req.Lng,
		Capacity:    req.Capacity,
	})
	if err != nil {
		h.handleTicketingError(logger, w, "update_event", err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) PublishEvent(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	event, ok := h.loadManagedEvent(ctx, w, r, "publish_event")
	if !ok {
		return
	}
	published, err := h.repo.PublishEvent(ctx, event.ID, h.now())
	if err != nil {
		h.handleTicketingError(logger, w, "publish_event", err)
		return
	}
	logger.Info("publish_event", "status", "success", "event_id", event.ID)
	writeJSON(w, http.StatusOK, published)
}

// CancelEvent cancels the event, voids its active tickets and drops
// pending reminders. Refunds stay with the per-order refund flow.
func (h *Handler) CancelEvent(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	event, ok := h.loadManagedEvent(ctx, w, r, "cancel_event")
	if !ok {
		return
	}
	cancelled, err := h.repo.CancelEvent(ctx, event.ID)
	if err != nil {
		h.handleTicketingError(logger, w, "cancel_event", err)
		return
	}
	if _, err := h.repo.CancelEventJobs(ctx, event.ID, models.NotificationKindEventReminder); err != nil {
		logger.Warn("cancel_event", "status", "reminder_cleanup_failed", "event_id", event.ID, "error", err)
	}
	logger.Info("cancel_event", "status", "success", "event_id", event.ID, "tickets_cancelled", cancelled)
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "ticketsCancelled": cancelled})
}

func (h *Handler) CompleteEvent(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	event, ok := h.loadManagedEvent(ctx, w, r, "complete_event")
	if !ok {
		return
	}
	if err := h.repo.CompleteEvent(ctx, event.ID); err != nil {
		h.handleTicketingError(logger, w, "complete_event", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	event, ok := h.loadManagedEvent(ctx, w, r, "delete_event")
	if !ok {
		return
	}
	if err := h.repo.DeleteEvent(ctx, event.ID); err != nil {
		h.handleTicketingError(logger, w, "delete_event", err)
		return
	}
	h.deleteStoredObject(ctx, event.BannerURL)
	logger.Info("delete_event", "status", "success", "event_id", event.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) CreateTicketType(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	var req ticketTypeRequest
	if !h.decodeJSON(w, r, "create_ticket_type", &req) {
		return
	}
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	event, ok := h.loadManagedEvent(ctx, w, r, "create_ticket_type")
	if !ok {
		return
	}
	tt, err := h.repo.CreateTicketType(ctx, event.ID, req.input())
	if err != nil {
		h.handleTicketingError(logger, w, "create_ticket_type", err)
		return
	}
	writeJSON(w, http.StatusCreated, tt)
}

func (h *Handler) UpdateTicketType(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	typeID, ok := pathInt64(r, "typeId")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid ticket type id")
		return
	}
	var req patchTicketTypeRequest
	if !h.decodeJSON(w, r, "update_ticket_type", &req) {
		return
	}
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	event, ok := h.loadManagedEvent(ctx, w, r, "update_ticket_type")
	if !ok {
		return
	}
	tt, err := h.repo.UpdateTicketType(ctx, event.ID, typeID, models.TicketTypePatch{
		Name:         req.Name,
		Description:  req.Description,
		Price:        req.Price,
		Quantity:     req.Quantity,
		MaxPerUser:   req.MaxPerUser,
		SaleStartsAt: req.SaleStartsAt,
		SaleEndsAt:   req.SaleEndsAt,
		IsActive:     req.IsActive,
	})
	if err != nil {
		h.handleTicketingError(logger, w, "update_ticket_type", err)
		return
	}
	writeJSON(w, http.StatusOK, tt)
}

// UploadBanner accepts a multipart "banner" file, stores a resized cover
// and thumbnail and replaces the previous banner.
func (h *Handler) UploadBanner(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	if h.s3 == nil {
		writeError(w, http.StatusServiceUnavailable, "media not configured")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, integrations.MaxBannerBytes+(1<<20))
	if err := r.ParseMultipartForm(integrations.MaxBannerBytes); err != nil {
		logger.Warn("upload_banner", "status", "invalid_form", "error", err)
		writeError(w, http.StatusBadRequest, "banner must be a multipart upload of at most 5MB")
		return
	}
	file, _, err := r.FormFile("banner")
	if err != nil {
		writeError(w, http.StatusBadRequest, "banner file is required")
		return
	}
	defer file.Close()

	ctx, cancel := context.WithTimeout(r.Context(), 20*time.Second)
	defer cancel()
	event, ok := h.loadManagedEvent(ctx, w, r, "upload_banner")
	if !ok {
		return
	}
	processed, err := integrations.ProcessBanner(file)
	if err != nil {
		logger.Warn("upload_banner", "status", "invalid_image", "error", err)
		writeError(w, http.StatusBadRequest, "banner must be a jpeg or png image of at most 5MB")
		return
	}
	bannerURL, err := h.s3.PutObject(ctx, h.s3.BannerKey(event.ID, "cover"), "image/jpeg", processed.Banner)
	if err != nil {
		logger.Error("upload_banner", "status", "s3_error", "error", err)
		writeError(w, http.StatusInternalServerError, "upload failed")
		return
	}
	thumbURL, err := h.s3.PutObject(ctx, h.s3.BannerKey(event.ID, "thumb"), "image/jpeg", processed.Thumbnail)
	if err != nil {
		logger.Warn("upload_banner", "status", "thumbnail_failed", "error", err)
	}
	if err := h.repo.SetEventBanner(ctx, event.ID, bannerURL); err != nil {
		h.handleTicketingError(logger, w, "upload_banner", err)
		return
	}
	h.deleteStoredObject(ctx, event.BannerURL)
	logger.Info("upload_banner", "status", "success", "event_id", event.ID, "width", processed.Width, "height", processed.Height)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"bannerUrl":    bannerURL,
		"thumbnailUrl": thumbURL,
		"width":        processed.Width,
		"height":       processed.Height,
	})
}

func (h *Handler) deleteStoredObject(ctx context.Context, objectURL string) {
	if h.s3 == nil || objectURL == "" {
		return
	}
	key, ok := h.s3.KeyFromURL(objectURL)
	if !ok {
		return
	}
	if err := h.s3.DeleteObject(ctx, key); err != nil {
		h.logger.Warn("delete_object", "status", "failed", "key", key, "error", err)
	}
}

func (h *Handler) EventStats(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	event, ok := h.loadManagedEvent(ctx, w, r, "event_stats")
	if !ok {
		return
	}
	stats, err := h.repo.GetEventStats(ctx, event.ID)
	if err != nil {
		h.handleTicketingError(logger, w, "event_stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) ListAttendees(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	event, ok := h.loadManagedEvent(ctx, w, r, "list_attendees")
	if !ok {
		return
	}
	rows, err := h.repo.ListAttendees(ctx, event.ID)
	if err != nil {
		h.handleTicketingError(logger, w, "list_attendees", err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[models.Attendance]{Items: rows, Total: len(rows)})
}

func (h *Handler) ExportAttendeesCSV(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	event, ok := h.loadManagedEvent(ctx, w, r, "export_attendees")
	if !ok {
		return
	}
	rows, err := h.repo.ListAttendees(ctx, event.ID)
	if err != nil {
		h.handleTicketingError(logger, w, "export_attendees", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="event-%d-attendees.csv"`, event.ID))
	w.WriteHeader(http.StatusOK)
	if err := writeAttendeesCSV(w, rows); err != nil {
		logger.Warn("export_attendees", "status", "write_failed", "error", err)
	}
}

func writeAttendeesCSV(w http.ResponseWriter, rows []models.Attendance) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"ticket_id", "order_number", "ticket_type", "name", "email", "phone", "status", "checked_in_at"}); err != nil {
		return err
	}
	for _, row := range rows {
		checkedIn := ""
		if row.CheckedInAt != nil {
			checkedIn = row.CheckedInAt.UTC().Format(time.RFC3339)
		}
		record := []string{
			row.TicketID,
			row.OrderNumber,
			row.TicketTypeName,
			csvSafe(row.AttendeeName),
			csvSafe(row.AttendeeEmail),
			csvSafe(row.AttendeePhone),
			row.Status,
			checkedIn,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// csvSafe neutralises values that spreadsheets would evaluate as formulas.
func csvSafe(value string) string {
	if value != "" && strings.ContainsAny(value[:1], "=+-@") {
		return "'" + value
	}
	return value
}

func canManage(caller checkout.Actor, event models.Event) bool {
	return caller.IsAdmin() || event.OrganizerID == caller.UserID
}

// loadManagedEvent resolves the {id} event and checks that the caller
// organizes it or is an admin. It writes the error response on failure.
func (h *Handler) loadManagedEvent(ctx context.Context, w http.ResponseWriter, r *http.Request, action string) (models.Event, bool) {
	logger := h.loggerForRequest(r)
	caller, ok := actor(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return models.Event{}, false
	}
	eventID, ok := pathInt64(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid event id")
		return models.Event{}, false
	}
	event, err := h.repo.GetEvent(ctx, eventID)
	if err != nil {
		h.handleTicketingError(logger, w, action, err)
		return models.Event{}, false
	}
	if !canManage(caller, event) {
		h.handleTicketingError(logger, w, action, checkout.ErrForbidden)
		return models.Event{}, false
	}
	return event, true
}
