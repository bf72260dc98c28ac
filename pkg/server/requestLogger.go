package server

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/d4l-data4life/go-image-studio/pkg/handlers"

	"github.com/d4l-data4life/go-svc/pkg/d4lcontext"
	"github.com/d4l-data4life/go-svc/pkg/log"
	"github.com/d4l-data4life/go-svc/pkg/logging"
)

// RequestLogger sets up the middleware to log requests.
// It runs after AuthMiddleware, so the user is the token subject.
func RequestLogger() func(http.Handler) http.Handler {
	return logging.Logger().HTTPMiddleware(
		log.WithUserParser(getUserIDFromRequest),
		log.WithClientIDParser(d4lcontext.GetClientID),
		log.WithCallerIPParser(getCallerIPFromRequest),
		log.WithObfuscators(),
	)
}

// getUserIDFromRequest returns the authenticated user or an empty string on internal routes
func getUserIDFromRequest(r *http.Request) string {
	userID := handlers.GetUserIDFromContext(r.Context())
	if userID == uuid.Nil {
		return ""
	}
	return userID.String()
}

// getCallerIPFromRequest is used by the logger to extract the caller's IP address.
// RemoteAddr has been rewritten by middleware.RealIP.
func getCallerIPFromRequest(r *http.Request) string {
	return r.RemoteAddr
}
