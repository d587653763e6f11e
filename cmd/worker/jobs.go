package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"eventmitra/backend/internal/checkout"
	"eventmitra/backend/internal/integrations"
	"eventmitra/backend/internal/metrics"
	"eventmitra/backend/internal/models"
	"eventmitra/backend/internal/repository"
	"eventmitra/backend/internal/ticketing"
)

const (
	maxAttempts          = 3
	staleProcessingAfter = 10 * time.Minute
)

// errSkipJob marks jobs that no longer make sense to deliver, e.g. a
// reminder for a cancelled event. They are closed without retrying.
var errSkipJob = errors.New("job skipped")

type jobStore interface {
	GetUserByID(ctx context.Context, id int64) (models.User, error)
	GetEvent(ctx context.Context, eventID int64) (models.Event, error)
	GetOrderDetail(ctx context.Context, orderID string) (models.OrderDetail, error)
	UpdateNotificationJobStatus(ctx context.Context, jobID int64, status string, attempts int, lastError string, nextRun *time.Time) error
	SetTicketQRImageURL(ctx context.Context, ticketID, url string) error
}

type mailSender interface {
	Send(ctx context.Context, msg integrations.Email) error
}

type objectStore interface {
	PutObject(ctx context.Context, key, contentType string, data []byte) (string, error)
}

type worker struct {
	store   jobStore
	mailer  mailSender
	archive objectStore
	baseURL string
	logger  *slog.Logger
	now     func() time.Time
}

func (w *worker) handleJob(ctx context.Context, job models.NotificationJob) error {
	logger := w.logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("job_id", job.ID, "kind", job.Kind, "user_id", job.UserID)
	logger.Info("job_processing", "event_id", job.EventID, "run_at", job.RunAt, "attempts", job.Attempts)

	user, err := w.store.GetUserByID(ctx, job.UserID)
	if err != nil {
		metrics.NotificationJob(job.Kind, metrics.OutcomeFailed)
		return w.store.UpdateNotificationJobStatus(ctx, job.ID, repository.JobStatusFailed, job.Attempts+1, err.Error(), nil)
	}

	msg, err := w.buildEmail(ctx, job, user)
	if errors.Is(err, errSkipJob) {
		logger.Info("job_skipped", "reason", err.Error())
		metrics.NotificationJob(job.Kind, metrics.OutcomeRejected)
		return w.store.UpdateNotificationJobStatus(ctx, job.ID, repository.JobStatusFailed, job.Attempts, err.Error(), nil)
	}
	if err == nil {
		err = w.mailer.Send(ctx, msg)
	}
	if err != nil {
		return w.retryLater(ctx, logger, job, err)
	}

	if err := w.store.UpdateNotificationJobStatus(ctx, job.ID, repository.JobStatusSent, job.Attempts, "", nil); err != nil {
		return err
	}
	metrics.NotificationJob(job.Kind, metrics.OutcomeOK)
	logger.Info("job_sent", "attachments", len(msg.Attachments))
	return nil
}

// retryLater backs off 1<<attempts minutes and gives up after maxAttempts.
func (w *worker) retryLater(ctx context.Context, logger *slog.Logger, job models.NotificationJob, cause error) error {
	attempts := job.Attempts + 1
	if attempts >= maxAttempts {
		metrics.NotificationJob(job.Kind, metrics.OutcomeFailed)
		logger.Warn("job_gave_up", "attempts", attempts, "error", cause)
		return w.store.UpdateNotificationJobStatus(ctx, job.ID, repository.JobStatusFailed, attempts, cause.Error(), nil)
	}
	nextRun := w.now().Add(time.Duration(1<<attempts) * time.Minute)
	logger.Warn("job_retry", "attempts", attempts, "next_run", nextRun, "error", cause)
	return w.store.UpdateNotificationJobStatus(ctx, job.ID, repository.JobStatusPending, attempts, cause.Error(), &nextRun)
}

func (w *worker) buildEmail(ctx context.Context, job models.NotificationJob, user models.User) (integrations.Email, error) {
	switch job.Kind {
	case models.NotificationKindBookingConfirmed:
		return w.bookingConfirmedEmail(ctx, job, user)
	case models.NotificationKindEventReminder:
		return w.reminderEmail(ctx, job, user)
	case models.NotificationKindOrderRefunded:
		return w.refundEmail(ctx, job, user)
	default:
		return integrations.Email{}, fmt.Errorf("%w: unknown job kind %q", errSkipJob, job.Kind)
	}
}

func (w *worker) bookingConfirmedEmail(ctx context.Context, job models.NotificationJob, user models.User) (integrations.Email, error) {
	detail, event, err := w.loadOrder(ctx, job)
	if err != nil {
		return integrations.Email{}, err
	}
	if detail.Order.Status != models.OrderStatusConfirmed && detail.Order.Status != models.OrderStatusPartiallyRefunded {
		return integrations.Email{}, fmt.Errorf("%w: order is %s", errSkipJob, detail.Order.Status)
	}
	tickets := activeTickets(detail.Tickets)
	html, err := renderEmail(bookingTemplate, w.emailData(user, event, detail, tickets))
	if err != nil {
		return integrations.Email{}, err
	}
	return integrations.Email{
		To:          recipient(detail, user),
		Subject:     fmt.Sprintf("Your tickets for %s", event.Title),
		HTML:        html,
		Attachments: w.ticketAttachments(ctx, event.ID, tickets),
	}, nil
}

func (w *worker) reminderEmail(ctx context.Context, job models.NotificationJob, user models.User) (integrations.Email, error) {
	detail, event, err := w.loadOrder(ctx, job)
	if err != nil {
		return integrations.Email{}, err
	}
	if event.Status != models.EventStatusPublished {
		return integrations.Email{}, fmt.Errorf("%w: event is %s", errSkipJob, event.Status)
	}
	if !event.StartsAt.After(w.now()) {
		return integrations.Email{}, fmt.Errorf("%w: event already started", errSkipJob)
	}
	tickets := activeTickets(detail.Tickets)
	if len(tickets) == 0 {
		return integrations.Email{}, fmt.Errorf("%w: no active tickets", errSkipJob)
	}
	html, err := renderEmail(reminderTemplate, w.emailData(user, event, detail, tickets))
	if err != nil {
		return integrations.Email{}, err
	}
	return integrations.Email{
		To:          recipient(detail, user),
		Subject:     fmt.Sprintf("Reminder: %s starts %s", event.Title, formatEventTime(event.StartsAt)),
		HTML:        html,
		Attachments: w.ticketAttachments(ctx, event.ID, tickets),
	}, nil
}

func (w *worker) refundEmail(ctx context.Context, job models.NotificationJob, user models.User) (integrations.Email, error) {
	detail, event, err := w.loadOrder(ctx, job)
	if err != nil {
		return integrations.Email{}, err
	}
	data := w.emailData(user, event, detail, nil)
	data.RefundAmount = formatAmount(payloadInt64(job.Payload, "amount"), detail.Order.Currency)
	html, err := renderEmail(refundTemplate, data)
	if err != nil {
		return integrations.Email{}, err
	}
	return integrations.Email{
		To:      recipient(detail, user),
		Subject: fmt.Sprintf("Refund processed for order %s", detail.Order.OrderNumber),
		HTML:    html,
	}, nil
}

func (w *worker) loadOrder(ctx context.Context, job models.NotificationJob) (models.OrderDetail, models.Event, error) {
	orderID := payloadString(job.Payload, "orderId")
	if orderID == "" {
		return models.OrderDetail{}, models.Event{}, fmt.Errorf("%w: payload has no orderId", errSkipJob)
	}
	detail, err := w.store.GetOrderDetail(ctx, orderID)
	if errors.Is(err, repository.ErrOrderNotFound) {
		return models.OrderDetail{}, models.Event{}, fmt.Errorf("%w: order %s not found", errSkipJob, orderID)
	}
	if err != nil {
		return models.OrderDetail{}, models.Event{}, err
	}
	eventID := extractEventID(job)
	if eventID == 0 {
		eventID = detail.Order.EventID
	}
	event, err := w.store.GetEvent(ctx, eventID)
	if errors.Is(err, repository.ErrEventNotFound) {
		return models.OrderDetail{}, models.Event{}, fmt.Errorf("%w: event %d not found", errSkipJob, eventID)
	}
	if err != nil {
		return models.OrderDetail{}, models.Event{}, err
	}
	return detail, event, nil
}

// ticketAttachments renders one QR PNG per ticket. When an archive is
// configured, PNGs not yet stored are uploaded and their URL recorded.
// Archive failures never block the email.
func (w *worker) ticketAttachments(ctx context.Context, eventID int64, tickets []models.Ticket) []integrations.Attachment {
	out := make([]integrations.Attachment, 0, len(tickets))
	for _, ticket := range tickets {
		png, err := ticketing.GenerateQRImagePNG(ticket.QRPayload, checkout.QRImageSize)
		if err != nil {
			w.logger.Warn("qr_render", "status", "failed", "ticket_id", ticket.ID, "error", err)
			continue
		}
		out = append(out, integrations.Attachment{
			Name:        "ticket-" + shortID(ticket.ID) + ".png",
			ContentType: "image/png",
			Data:        png,
		})
		if w.archive == nil || ticket.QRImageURL != "" {
			continue
		}
		url, err := w.archive.PutObject(ctx, integrations.TicketQRKey(eventID, ticket.ID), "image/png", png)
		if err != nil {
			w.logger.Warn("qr_archive", "status", "upload_failed", "ticket_id", ticket.ID, "error", err)
			continue
		}
		if err := w.store.SetTicketQRImageURL(ctx, ticket.ID, url); err != nil {
			w.logger.Warn("qr_archive", "status", "db_failed", "ticket_id", ticket.ID, "error", err)
		}
	}
	return out
}

func activeTickets(tickets []models.Ticket) []models.Ticket {
	out := make([]models.Ticket, 0, len(tickets))
	for _, t := range tickets {
		if t.Status == models.TicketStatusActive {
			out = append(out, t)
		}
	}
	return out
}

// recipient prefers the contact given at checkout over the account email.
func recipient(detail models.OrderDetail, user models.User) string {
	if detail.Order.Contact.Email != "" {
		return detail.Order.Contact.Email
	}
	return user.Email
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func payloadString(payload map[string]interface{}, key string) string {
	if payload == nil {
		return ""
	}
	raw, ok := payload[key]
	if !ok || raw == nil {
		return ""
	}
	switch value := raw.(type) {
	case string:
		return value
	case fmt.Stringer:
		return value.String()
	default:
		return fmt.Sprintf("%v", value)
	}
}

func extractEventID(job models.NotificationJob) int64 {
	if job.EventID != nil {
		return *job.EventID
	}
	return payloadInt64(job.Payload, "eventId")
}

func payloadInt64(payload map[string]interface{}, key string) int64 {
	if payload == nil {
		return 0
	}
	raw, ok := payload[key]
	if !ok || raw == nil {
		return 0
	}
	switch value := raw.(type) {
	case int64:
		return value
	case float64:
		return int64(value)
	case int:
		return int64(value)
	case string:
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err == nil {
			return parsed
		}
	}
	return 0
}
