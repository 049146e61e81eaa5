package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/genbridge/genbridge/internal/api/middleware"
	"github.com/genbridge/genbridge/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler http.HandlerFunc

	SubmitTaskHandler    http.HandlerFunc
	StreamTaskHandler    http.HandlerFunc
	GetTaskStatusHandler http.HandlerFunc
	EventsHandler        http.HandlerFunc

	CreateProviderHandler   http.HandlerFunc
	ListProvidersHandler    http.HandlerFunc
	DeleteProviderHandler   http.HandlerFunc
	CreateCredentialHandler http.HandlerFunc
	ListCredentialsHandler  http.HandlerFunc
	DeleteCredentialHandler http.HandlerFunc

	CreateKeyHandler http.HandlerFunc
	ListKeysHandler  http.HandlerFunc
	RevokeKeyHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public health check
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Post("/api/v1/tasks", orNotImplemented(deps.SubmitTaskHandler))
		r.Post("/api/v1/tasks/stream", orNotImplemented(deps.StreamTaskHandler))
		r.Get("/api/v1/tasks/{taskID}", orNotImplemented(deps.GetTaskStatusHandler))
		r.Get("/api/v1/events", orNotImplemented(deps.EventsHandler))

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope("admin"))

			r.Post("/api/v1/providers", orNotImplemented(deps.CreateProviderHandler))
			r.Get("/api/v1/providers", orNotImplemented(deps.ListProvidersHandler))
			r.Delete("/api/v1/providers/{providerID}", orNotImplemented(deps.DeleteProviderHandler))
			r.Post("/api/v1/providers/{providerID}/credentials", orNotImplemented(deps.CreateCredentialHandler))
			r.Get("/api/v1/providers/{providerID}/credentials", orNotImplemented(deps.ListCredentialsHandler))
			r.Delete("/api/v1/credentials/{credentialID}", orNotImplemented(deps.DeleteCredentialHandler))

			r.Post("/api/v1/admin/keys", orNotImplemented(deps.CreateKeyHandler))
			r.Get("/api/v1/admin/keys", orNotImplemented(deps.ListKeysHandler))
			r.Delete("/api/v1/admin/keys/{keyID}", orNotImplemented(deps.RevokeKeyHandler))
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
