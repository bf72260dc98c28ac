package generation

import (
	"context"

	"github.com/d4l-data4life/go-image-studio/pkg/history"
	"github.com/d4l-data4life/go-image-studio/pkg/imageutil"
)

const (
	// ModelImagen3 selects the text-to-image backend
	ModelImagen3 = "imagen-3"
	// ModelGemini selects the edit-capable backend
	ModelGemini = "gemini"

	// DefaultAspectRatio is used for any ratio outside the whitelist
	DefaultAspectRatio = "1:1"
	// DefaultOutputMIMEType is assumed when a backend does not report one
	DefaultOutputMIMEType = "image/png"
)

var validAspectRatios = map[string]bool{
	"1:1":  true,
	"3:4":  true,
	"4:3":  true,
	"9:16": true,
	"16:9": true,
}

// NormalizeAspectRatio returns ratio if whitelisted, 1:1 otherwise
func NormalizeAspectRatio(ratio string) string {
	if validAspectRatios[ratio] {
		return ratio
	}
	return DefaultAspectRatio
}

// Request is a single generation or edit request
type Request struct {
	Prompt string
	// Image is a data URL or a storage URL of the image to edit
	Image       string
	History     []history.Item
	AspectRatio string
	Model       string
	IsEditing   bool
}

// UsesEditBackend reports whether the request has to go to the edit-capable backend
func (r Request) UsesEditBackend() bool {
	return r.Image != "" || r.IsEditing || r.Model != ModelImagen3
}

// Result is the normalized outcome of a generation
type Result struct {
	// Image is a data URL
	Image       string  `json:"image"`
	Description *string `json:"description"`
	// Model is the backend that produced the image
	Model       string `json:"model,omitempty"`
	AspectRatio string `json:"aspectRatio,omitempty"`
	Fallback    bool   `json:"fallback,omitempty"`
}

// Output is what a backend returned. Image.Data is empty when no image part was found.
type Output struct {
	Image imageutil.Image
	Text  string
}

// EditBackend is a multimodal backend taking a prompt and an optional input image
type EditBackend interface {
	Edit(ctx context.Context, prompt string, image *imageutil.Image) (Output, error)
}

// TextToImageBackend turns a prompt into an image
type TextToImageBackend interface {
	Generate(ctx context.Context, prompt string, aspectRatio string) (Output, error)
}

// ImageResolver turns a data URL or storage URL into image bytes
type ImageResolver interface {
	Resolve(ctx context.Context, ref string) (imageutil.Image, error)
}
