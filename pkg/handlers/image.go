package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/render"

	"github.com/d4l-data4life/go-image-studio/pkg/generation"
	"github.com/d4l-data4life/go-image-studio/pkg/history"

	"github.com/d4l-data4life/go-svc/pkg/instrumented"
	"github.com/d4l-data4life/go-svc/pkg/logging"
)

// maxImageRequestBytes bounds request bodies carrying base64 images and histories
const maxImageRequestBytes = 32 << 20

// ImageGenerator produces or edits an image for a request
type ImageGenerator interface {
	Generate(ctx context.Context, req generation.Request) (*generation.Result, error)
}

// ImageHandler serves POST /api/image
type ImageHandler struct {
	*instrumented.Handler
	generator ImageGenerator
	limiter   *RateLimiter
}

// NewImageHandler creates the generation handler; a nil limiter disables rate limiting
func NewImageHandler(generator ImageGenerator, limiter *RateLimiter) *ImageHandler {
	return &ImageHandler{
		Handler:   GetHandlerFactory().NewHandler("ImageHandler"),
		generator: generator,
		limiter:   limiter,
	}
}

// Routes returns image routes
func (h *ImageHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.With(h.limiter.Middleware).Post(h.InstrumentChi("/", h.GenerateImage))
	return r
}

// ImageRequest is the body of POST /api/image.
// Image stays raw so that non-string values can be rejected as invalid image input.
type ImageRequest struct {
	Prompt      string          `json:"prompt"`
	Image       json.RawMessage `json:"image,omitempty"`
	History     []history.Item  `json:"history,omitempty"`
	AspectRatio string          `json:"aspectRatio,omitempty"`
	Model       string          `json:"model,omitempty"`
	IsEditing   bool            `json:"isEditing,omitempty"`
}

func (req ImageRequest) imageRef() (string, bool) {
	if len(req.Image) == 0 || string(req.Image) == "null" {
		return "", true
	}
	var ref string
	if err := json.Unmarshal(req.Image, &ref); err != nil {
		return "", false
	}
	return ref, true
}

// GenerateImage generates or edits an image and returns it as a data URL
func (h *ImageHandler) GenerateImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImageRequestBytes)

	var req ImageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	image, ok := req.imageRef()
	if !ok {
		renderError(w, r, http.StatusBadRequest, generation.MessageInvalidImageInput)
		return
	}

	result, err := h.generator.Generate(r.Context(), generation.Request{
		Prompt:      req.Prompt,
		Image:       image,
		History:     req.History,
		AspectRatio: req.AspectRatio,
		Model:       req.Model,
		IsEditing:   req.IsEditing,
	})
	if err != nil {
		logging.LogErrorfCtx(r.Context(), err, "Error generating image")
		renderGenerationError(w, r, err)
		return
	}

	logging.LogDebugf("Generated image with %s for user %s", result.Model, GetUserIDFromContext(r.Context()))
	render.JSON(w, r, result)
}
