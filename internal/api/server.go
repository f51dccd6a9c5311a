// Package api serves the scheduling services as JSON over HTTP.
package api

import (
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"televet/internal/booking"
	"televet/internal/export"
	"televet/internal/scheduling"
	"televet/internal/settings"
	"televet/internal/templates"
)

// Services are the operations exposed over HTTP.
type Services struct {
	Templates *templates.Service
	Sessions  *scheduling.Registry
	Settings  *settings.Service
	Booking   *booking.Service
	Export    *export.Exporter
}

// Options configure authentication and rate limiting. An empty APIKey
// disables the key check; a zero RPS disables the limiter.
type Options struct {
	APIKey string
	RPS    float64
	Burst  int
	// Now is used for week filters; defaults to time.Now.
	Now func() time.Time
}

type Server struct {
	svc      Services
	opts     Options
	validate *validator.Validate
	limiter  *limiterStore
	logger   *zerolog.Logger
}

func NewServer(svc Services, opts Options, logger *zerolog.Logger) *Server {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	s := &Server{
		svc:      svc,
		opts:     opts,
		validate: validate,
		logger:   logger,
	}
	if opts.RPS > 0 {
		s.limiter = newLimiterStore(opts.RPS, opts.Burst, nil)
	}
	return s
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(s.requestID)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)
	r.Use(s.rateLimit)
	r.Use(s.auth)

	r.Route("/vets/{vetID}", func(r chi.Router) {
		r.Route("/templates", func(r chi.Router) {
			r.Get("/", s.listTemplates)
			r.Post("/", s.createTemplate)
			r.Route("/{templateID}", func(r chi.Router) {
				r.Get("/", s.getTemplate)
				r.Put("/", s.updateTemplate)
				r.Delete("/", s.deleteTemplate)
				r.Post("/copy-day", s.copyTemplateDay)
				r.Post("/copy-from", s.copyTemplateFrom)
				r.Post("/analyze", s.analyzeTemplate)
				r.Post("/apply", s.applyTemplate)
			})
		})

		r.Route("/schedules", func(r chi.Router) {
			r.Get("/", s.listSchedules)
			r.Get("/export", s.exportSchedules)
			r.Put("/{date}", s.editDay)
		})

		r.Route("/blocked-dates", func(r chi.Router) {
			r.Get("/", s.listBlockedDates)
			r.Post("/", s.blockDates)
			r.Delete("/{date}", s.unblockDate)
		})

		r.Post("/maintenance/sweep", s.sweep)
		r.Post("/maintenance/purge", s.purge)

		r.Delete("/session", s.releaseSession)

		r.Get("/settings", s.getSettings)
		r.Put("/settings", s.updateSettings)

		r.Get("/bookable-slots", s.bookableSlots)
		r.Get("/availability", s.checkAvailability)
	})

	r.Post("/appointments", s.book)
	r.Get("/owners/{ownerID}/appointments", s.ownerAppointments)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	return r
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*scheduling.Session, bool) {
	sess, err := s.svc.Sessions.Open(r.Context(), chi.URLParam(r, "vetID"))
	if err != nil {
		s.fail(w, r, err)
		return nil, false
	}
	return sess, true
}
