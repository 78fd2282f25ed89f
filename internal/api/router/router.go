package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/vetcare-scheduling/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/vetcare-scheduling/internal/http/middleware"
	"github.com/wolfman30/vetcare-scheduling/internal/practice"
	"github.com/wolfman30/vetcare-scheduling/pkg/logging"
)

// Config holds router configuration. Nil handlers leave their routes unmounted.
type Config struct {
	Logger         *logging.Logger
	Health         http.Handler
	MetricsHandler http.Handler
	Retell         *handlers.RetellHandler
	Slots          *handlers.SlotsHandler
	Availability   *handlers.AvailabilityHandler
	PracticeConfig *practice.Handler

	AdminAuthSecret     string
	RetellWebhookSecret string
	RateLimitRPS        float64
	RateLimitBurst      int
	// Done stops background middleware work such as rate-limit eviction.
	Done <-chan struct{}
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	health := cfg.Health
	if health == nil {
		health = handlers.NewHealthHandler(nil)
	}
	r.Method(http.MethodGet, "/health", health)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	rps, burst := cfg.RateLimitRPS, cfg.RateLimitBurst
	if rps <= 0 {
		rps = 5
	}
	if burst <= 0 {
		burst = 20
	}
	limited := httpmiddleware.RateLimit(rps, burst, cfg.Done)

	if cfg.Retell != nil {
		r.Route("/webhooks/retell", func(wh chi.Router) {
			wh.Use(limited)
			wh.Use(httpmiddleware.RetellSignature(cfg.RetellWebhookSecret))
			wh.Post("/check-availability", cfg.Retell.HandleCheckAvailability)
			wh.Post("/book-appointment", cfg.Retell.HandleBookAppointment)
		})
	}

	if cfg.Slots != nil {
		r.With(limited, middleware.Compress(5)).
			Get("/api/practices/{practiceID}/vets/{vetID}/slots", cfg.Slots.GetSlots)
	}

	r.Route("/admin", func(admin chi.Router) {
		admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
		admin.Route("/practices/{practiceID}", func(p chi.Router) {
			p.Use(httpmiddleware.RequirePracticeScope)
			if cfg.Availability != nil {
				p.Post("/availability", cfg.Availability.CreateBlock)
				p.Delete("/availability/{recordID}", cfg.Availability.DeactivateRecord)
			}
			if cfg.PracticeConfig != nil {
				p.Get("/config", cfg.PracticeConfig.GetConfig)
				p.Put("/config", cfg.PracticeConfig.UpdateConfig)
			}
		})
	})

	return r
}
