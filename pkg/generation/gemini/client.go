package gemini

import (
	"context"

	"github.com/pkg/errors"
	"google.golang.org/genai"

	"github.com/d4l-data4life/go-image-studio/pkg/generation"
	"github.com/d4l-data4life/go-image-studio/pkg/imageutil"

	"github.com/d4l-data4life/go-svc/pkg/logging"
)

// DefaultModel is the image-generation capable Gemini model
const DefaultModel = "gemini-2.0-flash-exp-image-generation"

// Config holds configuration for the Gemini client
type Config struct {
	APIKey string
	Model  string
}

// Client implements the edit-capable backend on top of the Gemini API
type Client struct {
	models contentGenerator
	model  string
}

// contentGenerator is the subset of genai.Models used by the client
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// NewClient creates a new Gemini client
func NewClient(ctx context.Context, config Config) (*Client, error) {
	if config.APIKey == "" {
		return nil, generation.ErrMissingAPIKey
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create genai client")
	}

	logging.LogDebugf("Initialized Gemini client (model: %s)", config.Model)

	return &Client{
		models: client.Models,
		model:  config.Model,
	}, nil
}

// generationConfig asks for mixed text and image output
func generationConfig() *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		Temperature:        genai.Ptr[float32](1),
		TopP:               genai.Ptr[float32](0.95),
		TopK:               genai.Ptr[float32](40),
		ResponseModalities: []string{"TEXT", "IMAGE"},
	}
}

// Edit sends exactly one text part and, when given, one inline image part
func (c *Client) Edit(ctx context.Context, prompt string, image *imageutil.Image) (generation.Output, error) {
	parts := []*genai.Part{genai.NewPartFromText(prompt)}
	if image != nil {
		parts = append(parts, genai.NewPartFromBytes(image.Data, image.MIMEType))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	logging.LogDebugf("Sending Gemini request: model=%s parts=%d", c.model, len(parts))

	resp, err := c.models.GenerateContent(ctx, c.model, contents, generationConfig())
	if err != nil {
		return generation.Output{}, err
	}
	return parseResponse(resp)
}

// parseResponse keeps the last inline image and the last text of the first candidate
func parseResponse(resp *genai.GenerateContentResponse) (generation.Output, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return generation.Output{}, generation.ErrNoCandidates
	}
	candidate := resp.Candidates[0]
	if candidate == nil || candidate.Content == nil {
		return generation.Output{}, generation.ErrNoCandidates
	}

	var out generation.Output
	for _, part := range candidate.Content.Parts {
		if part == nil {
			continue
		}
		if part.InlineData != nil && len(part.InlineData.Data) > 0 {
			out.Image = imageutil.Image{
				MIMEType: part.InlineData.MIMEType,
				Data:     part.InlineData.Data,
			}
		} else if part.Text != "" {
			out.Text = part.Text
		}
	}

	logging.LogDebugf("Received Gemini response: parts=%d image_bytes=%d text_len=%d",
		len(candidate.Content.Parts), len(out.Image.Data), len(out.Text))

	return out, nil
}
