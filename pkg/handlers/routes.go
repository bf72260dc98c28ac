package handlers

import (
	"net/http"

	"github.com/go-chi/chi"

	"github.com/d4l-data4life/go-image-studio/pkg/auth"
	"github.com/d4l-data4life/go-image-studio/pkg/config"
	"github.com/d4l-data4life/go-image-studio/pkg/conversation"

	"github.com/d4l-data4life/go-svc/pkg/logging"
	"github.com/d4l-data4life/go-svc/pkg/middlewares"
)

// Dependencies are the services the API routes are served by
type Dependencies struct {
	Generator      ImageGenerator
	Conversations  *conversation.Service
	Storage        StorageChecker
	TokenValidator auth.TokenValidator
	RateLimiter    *RateLimiter
	AllowedOrigins []string
	ServiceSecret  string
	// Ping checks the database for readiness; nil pings the service database
	Ping func() error
	// Middlewares wrap the request/response routes but not the session stream
	Middlewares []func(http.Handler) http.Handler
}

// RegisterRoutes registers all API routes
func RegisterRoutes(r chi.Router, deps Dependencies) {
	// External routes (ingress routes)
	r.Route(config.APIPrefix, func(r chi.Router) {
		r.Use(AuthMiddleware(deps.TokenValidator))

		r.Group(func(r chi.Router) {
			r.Use(deps.Middlewares...)
			r.Mount("/image", NewImageHandler(deps.Generator, deps.RateLimiter).Routes())
			r.Mount("/conversations", NewConversationsHandler(deps.Conversations).Routes())
		})
		r.Mount("/sessions", NewSessionsHandler(
			deps.Generator,
			deps.Conversations,
			deps.RateLimiter,
			deps.AllowedOrigins,
		).Routes())
	})

	// Internal routes (service-to-service)
	if deps.ServiceSecret == "" {
		logging.LogInfof("No service secret configured, internal routes are disabled")
		return
	}
	r.Route(config.InternalPrefix, func(r chi.Router) {
		serviceAuth := middlewares.NewServiceSecretAuthenticator(deps.ServiceSecret, NewServiceAuthLogger())
		r.Use(serviceAuth.Authenticate())
		r.Use(deps.Middlewares...)

		r.Mount("/storage", NewStorageHandler(deps.Storage).Routes())
	})
}
