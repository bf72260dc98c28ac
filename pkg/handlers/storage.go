package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/render"

	"github.com/d4l-data4life/go-image-studio/pkg/storage"

	"github.com/d4l-data4life/go-svc/pkg/instrumented"
)

// StorageChecker verifies the image bucket
type StorageChecker interface {
	Check(ctx context.Context) storage.CheckResult
}

// StorageHandler exposes the bucket check to other services
type StorageHandler struct {
	*instrumented.Handler
	checker StorageChecker
}

// NewStorageHandler creates a new storage handler
func NewStorageHandler(checker StorageChecker) *StorageHandler {
	return &StorageHandler{
		Handler: GetHandlerFactory().NewHandler("StorageHandler"),
		checker: checker,
	}
}

// Routes returns storage routes
func (h *StorageHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get(h.InstrumentChi("/check", h.Check))
	return r
}

// Check reports whether the bucket exists and is listable
func (h *StorageHandler) Check(w http.ResponseWriter, r *http.Request) {
	result := h.checker.Check(r.Context())
	if !result.Success {
		render.Status(r, http.StatusServiceUnavailable)
	}
	render.JSON(w, r, result)
}
