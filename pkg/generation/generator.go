package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/d4l-data4life/go-image-studio/pkg/config"
	"github.com/d4l-data4life/go-image-studio/pkg/imageutil"
	"github.com/d4l-data4life/go-image-studio/pkg/metrics"

	"github.com/d4l-data4life/go-svc/pkg/logging"
)

// Generator selects a backend for a request, falls back between backends and
// normalizes the result into a data URL plus description
type Generator struct {
	edit     EditBackend
	imagen   TextToImageBackend
	resolver ImageResolver

	apiKeyConfigured bool
	timeout          time.Duration
	fallbackOnFail   bool
	optimize         imageutil.Options
}

// NewGenerator creates a generator from the generation config and its backends.
// A missing backend is treated like a missing API key.
func NewGenerator(cfg config.GenerationConfig, edit EditBackend, imagen TextToImageBackend, resolver ImageResolver) *Generator {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 25 * time.Second
	}
	return &Generator{
		edit:             edit,
		imagen:           imagen,
		resolver:         resolver,
		apiKeyConfigured: cfg.APIKey != "" && edit != nil && imagen != nil,
		timeout:          timeout,
		fallbackOnFail:   cfg.FallbackOnFail,
		optimize: imageutil.Options{
			MaxWidth: cfg.MaxImageWidth,
			Quality:  cfg.ImageQuality,
		},
	}
}

// Generate runs the request against the matching backend.
// All failures are returned as *Error.
func (g *Generator) Generate(ctx context.Context, req Request) (*Result, error) {
	if req.Prompt == "" {
		return nil, BadRequest(MessagePromptRequired)
	}
	if !g.apiKeyConfigured {
		logging.LogErrorf(ErrMissingAPIKey, "generation backends are not configured")
		return nil, Internal(MessageAPIKeyMissing, ErrMissingAPIKey)
	}

	if req.UsesEditBackend() {
		var input *imageutil.Image
		if req.Image != "" {
			img, err := g.prepareImage(ctx, req.Image)
			if err != nil {
				return nil, err
			}
			input = &img
			logging.LogDebugf("Processing image edit request: mime=%s size=%s",
				img.MIMEType, imageutil.FormatFileSize(len(img.Data)))
		}
		return g.runEdit(ctx, req.Prompt, input, false)
	}

	aspectRatio := NormalizeAspectRatio(req.AspectRatio)
	out, err := g.imagen.Generate(ctx, req.Prompt, aspectRatio)
	if err == nil && len(out.Image.Data) == 0 {
		err = ErrEmptyPredictions
	}
	if err != nil {
		metrics.BackendCalls.WithLabelValues(ModelImagen3, metrics.OutcomeError).Inc()
		if !g.fallbackOnFail {
			logging.LogErrorf(err, "text-to-image generation failed")
			return nil, BackendFailure(err)
		}
		logging.LogInfof("text-to-image generation failed, falling back to %s: %v", ModelGemini, err)
		metrics.Fallbacks.Inc()
		return g.runEdit(ctx, req.Prompt, nil, true)
	}
	metrics.BackendCalls.WithLabelValues(ModelImagen3, metrics.OutcomeSuccess).Inc()

	mimeType := out.Image.MIMEType
	if mimeType == "" {
		mimeType = DefaultOutputMIMEType
	}
	description := fmt.Sprintf(`Generated image for prompt: "%s"`, req.Prompt)
	return &Result{
		Image:       imageutil.Image{MIMEType: mimeType, Data: out.Image.Data}.DataURL(),
		Description: &description,
		Model:       ModelImagen3,
		AspectRatio: aspectRatio,
	}, nil
}

// prepareImage validates the edit input and downscales it
func (g *Generator) prepareImage(ctx context.Context, ref string) (imageutil.Image, error) {
	if !imageutil.IsDataURL(ref) && !imageutil.IsRemoteURL(ref) {
		return imageutil.Image{}, BadRequest(MessageInvalidDataURL)
	}
	img, err := g.resolver.Resolve(ctx, ref)
	if err != nil {
		if imageutil.IsRemoteURL(ref) {
			logging.LogErrorf(err, "failed to fetch image for editing")
			return imageutil.Image{}, BadRequest(MessageInvalidImageInput)
		}
		return imageutil.Image{}, BadRequest(MessageInvalidDataURL)
	}
	optimized, err := imageutil.Optimize(img, g.optimize)
	if err != nil {
		// formats we cannot decode are passed on as uploaded
		logging.LogErrorf(err, "failed to optimize image for editing, sending it unchanged")
		return img, nil
	}
	return optimized, nil
}

func (g *Generator) runEdit(ctx context.Context, prompt string, input *imageutil.Image, fallback bool) (*Result, error) {
	out, err := g.editWithTimeout(ctx, prompt, input)
	switch {
	case errors.Is(err, ErrTimeout):
		metrics.BackendCalls.WithLabelValues(ModelGemini, metrics.OutcomeTimeout).Inc()
		logging.LogErrorf(err, "edit-capable generation timed out")
		return nil, BackendFailure(err)
	case errors.Is(err, ErrNoCandidates):
		metrics.BackendCalls.WithLabelValues(ModelGemini, metrics.OutcomeNoImage).Inc()
		return nil, Internal(MessageNoCandidates, err)
	case err != nil:
		metrics.BackendCalls.WithLabelValues(ModelGemini, metrics.OutcomeError).Inc()
		logging.LogErrorf(err, "edit-capable generation failed")
		return nil, BackendFailure(err)
	}

	if len(out.Image.Data) == 0 {
		metrics.BackendCalls.WithLabelValues(ModelGemini, metrics.OutcomeNoImage).Inc()
		logging.LogInfof("No image data in response")
		return nil, Internal(MessageNoImage, ErrNoImage)
	}
	metrics.BackendCalls.WithLabelValues(ModelGemini, metrics.OutcomeSuccess).Inc()

	mimeType := out.Image.MIMEType
	if mimeType == "" {
		mimeType = DefaultOutputMIMEType
	}
	result := &Result{
		Image:    imageutil.Image{MIMEType: mimeType, Data: out.Image.Data}.DataURL(),
		Model:    ModelGemini,
		Fallback: fallback,
	}
	if out.Text != "" {
		text := out.Text
		result.Description = &text
	}
	return result, nil
}

type editResult struct {
	out Output
	err error
}

// editWithTimeout races the edit call against a timer. The context deadline
// stops the underlying call, the timer guarantees the caller is released.
func (g *Generator) editWithTimeout(ctx context.Context, prompt string, input *imageutil.Image) (Output, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	done := make(chan editResult, 1)
	go func() {
		out, err := g.edit.Edit(ctx, prompt, input)
		done <- editResult{out: out, err: err}
	}()

	timer := time.NewTimer(g.timeout)
	defer timer.Stop()

	select {
	case res := <-done:
		if res.err != nil && errors.Is(res.err, context.DeadlineExceeded) {
			return Output{}, ErrTimeout
		}
		return res.out, res.err
	case <-timer.C:
		return Output{}, ErrTimeout
	}
}
