package main

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"eventmitra/backend/internal/config"
	"eventmitra/backend/internal/http/handlers"
	"eventmitra/backend/internal/http/middleware"
	"eventmitra/backend/internal/metrics"
	"eventmitra/backend/internal/models"
	"eventmitra/backend/internal/rate"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

type routerDeps struct {
	cfg     *config.Config
	blocked middleware.BlockChecker
	limiter rate.Limiter
	logger  *slog.Logger
}

func newRouter(h *handlers.Handler, deps routerDeps) http.Handler {
	cfg := deps.cfg
	organizer := middleware.RequireRole(models.RoleOrganizer, models.RoleAdmin)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(deps.logger))
	r.Use(middleware.Metrics)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(20 * time.Second))
	r.Use(corsMiddleware(cfg.AllowedOrigins))

	r.Get("/healthz", h.Healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		// Identity is attached before the limiter so signed-in clients are
		// keyed by user id rather than by a shared ip.
		r.Use(middleware.OptionalAuth(cfg.JWTSecret))
		if deps.limiter != nil {
			r.Use(middleware.RateLimit(deps.limiter, deps.logger))
		}

		r.Post("/auth/register", h.Register)
		r.Post("/auth/login", h.Login)
		r.Post("/tickets/verify", h.VerifyTicket)
		r.Get("/events", h.ListEvents)
		r.Get("/events/{id}", h.GetEvent)
		r.Post("/logs/client", h.ClientLogs)

		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(cfg.JWTSecret))
			r.Use(middleware.BlockedUserMiddleware(deps.blocked))

			r.Get("/users/me", h.Me)
			r.Patch("/users/me", h.UpdateMe)
			r.Get("/users/me/orders", h.ListMyOrders)
			r.Get("/users/me/tickets", h.ListMyTickets)
			r.Get("/users/me/loyalty", h.MyLoyalty)
			r.Get("/users/me/favorites", h.ListFavorites)
			r.Post("/users/me/favorites/{eventId}", h.AddFavorite)
			r.Delete("/users/me/favorites/{eventId}", h.RemoveFavorite)

			r.Group(func(r chi.Router) {
				r.Use(organizer)
				r.Get("/events/mine", h.MyEvents)
				r.Post("/events", h.CreateEvent)
				r.Patch("/events/{id}", h.UpdateEvent)
				r.Delete("/events/{id}", h.DeleteEvent)
				r.Post("/events/{id}/publish", h.PublishEvent)
				r.Post("/events/{id}/cancel", h.CancelEvent)
				r.Post("/events/{id}/complete", h.CompleteEvent)
				r.Post("/events/{id}/ticket-types", h.CreateTicketType)
				r.Patch("/events/{id}/ticket-types/{typeId}", h.UpdateTicketType)
				r.Post("/events/{id}/banner", h.UploadBanner)
				r.Get("/events/{id}/stats", h.EventStats)
				r.Get("/events/{id}/attendees", h.ListAttendees)
				r.Get("/events/{id}/attendees.csv", h.ExportAttendeesCSV)
				r.Post("/media/presign", h.PresignMedia)

				r.Get("/admin/coupons", h.ListCoupons)
				r.Post("/admin/coupons", h.CreateCoupon)
				r.Patch("/admin/coupons/{id}", h.UpdateCoupon)
				r.Delete("/admin/coupons/{id}", h.DeleteCoupon)
			})

			r.Post("/payments/coupons/validate", h.ValidateCoupon)
			r.Post("/payments/orders", h.CreateOrder)
			r.Post("/payments/verify", h.VerifyPayment)
			r.Get("/payments/orders/{orderId}", h.GetOrder)
			r.Post("/payments/orders/{orderId}/cancel", h.CancelOrder)
			r.Post("/payments/orders/{orderId}/refund", h.RefundOrder)

			r.Get("/tickets/{ticketId}", h.GetTicket)
			r.Get("/tickets/{ticketId}/qr.png", h.TicketQR)
			r.Post("/tickets/{ticketId}/check-in", h.CheckInTicket)
			r.Post("/tickets/{ticketId}/transfer", h.TransferTicket)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(models.RoleAdmin))
				r.Get("/admin/users", h.ListAdminUsers)
				r.Post("/admin/users/{id}/role", h.SetUserRole)
				r.Post("/admin/users/{id}/block", h.BlockUser)
				r.Post("/admin/users/{id}/unblock", h.UnblockUser)
				r.Get("/admin/orders", h.ListAdminOrders)
				r.Post("/admin/tickets/{ticketId}/cancel", h.CancelTicket)
				r.Get("/admin/stats", h.AdminStats)
				r.Get("/admin/geocode", h.Geocode)
			})
		})
	})

	return r
}

func corsMiddleware(allowed string) func(http.Handler) http.Handler {
	origins := map[string]struct{}{}
	wildcard := false
	for _, origin := range strings.Split(allowed, ",") {
		origin = strings.TrimSpace(origin)
		switch origin {
		case "":
		case "*":
			wildcard = true
		default:
			origins[origin] = struct{}{}
		}
	}
	if len(origins) == 0 {
		wildcard = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if wildcard {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else if _, ok := origins[origin]; ok {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization,Content-Type")
			w.Header().Set("Access-Control-Expose-Headers", "Retry-After,Content-Disposition")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
