package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// RouterConfig collects the handlers mounted by NewRouter. Nil handlers
// leave their routes unmounted.
type RouterConfig struct {
	Sessions    *SessionHandler
	Meetings    *MeetingHandler
	Assignments *AssignmentHandler
	Chat        *ChatHandler
	Events      *EventsHandler
	Metrics     http.Handler
	Validator   SessionValidator
	Observer    RequestObserver
	Logger      *slog.Logger
	Middleware  []func(http.Handler) http.Handler
}

// NewRouter builds the API router.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := defaultLogger(cfg.Logger)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(logger, cfg.Observer))
	for _, mw := range cfg.Middleware {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	if cfg.Sessions != nil {
		r.Post("/sessions", cfg.Sessions.CreateSession)
		r.Delete("/sessions/current", cfg.Sessions.DeleteCurrentSession)
		r.Get("/roster", cfg.Sessions.Roster)
		r.Get("/config", cfg.Sessions.Config)
		r.Get("/phrases", cfg.Sessions.Phrases)
	}

	r.Group(func(r chi.Router) {
		if cfg.Validator != nil {
			r.Use(RequireSession(cfg.Validator, logger))
		}

		if cfg.Events != nil {
			r.Get("/events", cfg.Events.Meetings)
		}

		r.Route("/meetings", func(r chi.Router) {
			if cfg.Meetings != nil {
				r.Get("/", cfg.Meetings.List)
				r.Post("/", cfg.Meetings.Create)
				r.Delete("/", cfg.Meetings.DeleteAll)
				r.Get("/active", cfg.Meetings.Active)
				r.Post("/recurring", cfg.Meetings.ScheduleRecurring)
			}

			r.Route("/{meetingID}", func(r chi.Router) {
				if cfg.Meetings != nil {
					r.Get("/", cfg.Meetings.Get)
					r.Delete("/", cfg.Meetings.Delete)
					r.Put("/status", cfg.Meetings.SetStatus)
				}
				if cfg.Assignments != nil {
					r.Put("/assignments/{position}", cfg.Assignments.Assign)
					r.Put("/assignments/{position}/confirmation", cfg.Assignments.Confirm)
				}
				if cfg.Chat != nil {
					r.Get("/messages", cfg.Chat.List)
					r.Post("/messages", cfg.Chat.Send)
				}
				if cfg.Events != nil {
					r.Get("/events", cfg.Events.Messages)
				}
			})
		})
	})

	return r
}
