package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"eventmitra/backend/internal/checkout"
	"eventmitra/backend/internal/config"
	"eventmitra/backend/internal/geocode"
	authmw "eventmitra/backend/internal/http/middleware"
	"eventmitra/backend/internal/integrations"
	"eventmitra/backend/internal/rate"
	"eventmitra/backend/internal/repository"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
)

type Handler struct {
	repo         *repository.Repository
	checkout     *checkout.Service
	admission    *checkout.Admission
	s3           *integrations.S3Client
	geocoder     *geocode.Client
	cfg          *config.Config
	logger       *slog.Logger
	validator    *validator.Validate
	loginLimiter *rate.WindowLimiter
	now          func() time.Time
}

// Services groups the optional collaborators of the HTTP layer. Nil
// fields disable the endpoints that need them.
type Services struct {
	Checkout  *checkout.Service
	Admission *checkout.Admission
	S3        *integrations.S3Client
	Geocoder  *geocode.Client
}

func New(repo *repository.Repository, services Services, cfg *config.Config, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg == nil {
		cfg = &config.Config{}
	}
	return &Handler{
		repo:         repo,
		checkout:     services.Checkout,
		admission:    services.Admission,
		s3:           services.S3,
		geocoder:     services.Geocoder,
		cfg:          cfg,
		logger:       logger,
		validator:    newValidator(),
		loginLimiter: rate.NewWindowLimiter(5, 15*time.Minute),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (h *Handler) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, 5*time.Second)
}

// withGatewayTimeout leaves room for a gateway round trip on top of the
// database work.
func (h *Handler) withGatewayTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, 15*time.Second)
}

func (h *Handler) loggerForRequest(r *http.Request) *slog.Logger {
	logger := h.logger
	if logger == nil {
		return slog.Default()
	}
	if reqID := chimw.GetReqID(r.Context()); reqID != "" {
		logger = logger.With("request_id", reqID)
	}
	if userID, ok := authmw.UserIDFromContext(r.Context()); ok {
		logger = logger.With("user_id", userID)
	}
	return logger
}

// actor returns the authenticated caller. The second value is false for
// anonymous requests.
func actor(r *http.Request) (checkout.Actor, bool) {
	userID, ok := authmw.UserIDFromContext(r.Context())
	if !ok {
		return checkout.Actor{}, false
	}
	return checkout.Actor{UserID: userID, Role: authmw.RoleFromContext(r.Context())}, true
}
