package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/skorper/harmony/internal/api/middleware"
	"github.com/skorper/harmony/internal/api/response"
	"github.com/skorper/harmony/pkg/models"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler  http.HandlerFunc
	ListJobs       http.HandlerFunc
	JobStatus      http.HandlerFunc
	CancelJob      http.HandlerFunc
	AdminListJobs  http.HandlerFunc
	AdminJobStatus http.HandlerFunc
	AdminCancelJob http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.Get("/health", orNotImplemented(deps.HealthHandler))

	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Get("/jobs", orNotImplemented(deps.ListJobs))
		r.Get("/jobs/{jobID}", orNotImplemented(deps.JobStatus))
		// cancel is reachable with GET as well
		r.Post("/jobs/{jobID}/cancel", orNotImplemented(deps.CancelJob))
		r.Get("/jobs/{jobID}/cancel", orNotImplemented(deps.CancelJob))

		r.Route("/admin", func(r chi.Router) {
			r.Use(deps.Auth.RequireScope(models.ScopeAdmin))

			r.Get("/jobs", orNotImplemented(deps.AdminListJobs))
			r.Get("/jobs/{jobID}", orNotImplemented(deps.AdminJobStatus))
			r.Post("/jobs/{jobID}/cancel", orNotImplemented(deps.AdminCancelJob))
			r.Get("/jobs/{jobID}/cancel", orNotImplemented(deps.AdminCancelJob))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
