package web

import (
	stdlog "log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/innerjoy/funnel/internal/handlers"
)

func Router(d handlers.Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  stdlog.New(log.Logger, "", 0),
		NoColor: true,
	}))
	r.Use(middleware.Recoverer)

	// Public
	r.Get("/healthz", handlers.Health)
	r.Get("/invite/qr.png", handlers.InviteQR(d))

	// WhatsApp Cloud API
	r.Get("/webhook", handlers.WebhookVerify(d))
	r.Post("/webhook", handlers.Webhook(d))

	// Pre-normalized inbound events
	r.Post("/events", handlers.Events(d))

	// --- Admin routes (bearer token) ---
	r.Route("/admin", func(ar chi.Router) {
		ar.Use(handlers.RequireAdmin(d.AdminToken))

		ar.Get("/stats", handlers.AdminStats(d))
		ar.Post("/dispatch/run", handlers.AdminRunDispatch(d))

		ar.Get("/contacts/{key}", handlers.AdminContact(d))
		ar.Post("/contacts/{key}/membership", handlers.AdminMembership(d))
		ar.Post("/contacts/{key}/attendance", handlers.AdminAttendance(d))
	})

	return r
}
