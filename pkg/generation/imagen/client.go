package imagen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/eapache/go-resiliency/retrier"
	"github.com/pkg/errors"

	"github.com/d4l-data4life/go-image-studio/pkg/generation"
	"github.com/d4l-data4life/go-image-studio/pkg/imageutil"

	"github.com/d4l-data4life/go-svc/pkg/logging"
)

const backendName = "imagen"

// maxDetailsLength bounds upstream bodies copied into error details, in runes
const maxDetailsLength = 200

// Client implements the text-to-image backend against the Imagen predict endpoint
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	retrier    *retrier.Retrier
}

// Config holds configuration for the Imagen client
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
	// Attempts is the total number of tries of the HTTP call
	Attempts   int
	RetryDelay time.Duration
}

// NewClient creates a new Imagen client
func NewClient(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if config.Model == "" {
		config.Model = "imagen-3.0-generate-002"
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	if config.Attempts < 1 {
		config.Attempts = 2
	}
	if config.RetryDelay == 0 {
		config.RetryDelay = time.Second
	}

	logging.LogDebugf("Initialized Imagen client with URL: %s (model: %s, attempts: %d)",
		config.BaseURL, config.Model, config.Attempts)

	return &Client{
		baseURL: strings.TrimSuffix(config.BaseURL, "/"),
		apiKey:  config.APIKey,
		model:   config.Model,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		retrier: retrier.New(retrier.ExponentialBackoff(config.Attempts-1, config.RetryDelay), classifier{}),
	}
}

type predictRequest struct {
	Instances  []predictInstance `json:"instances"`
	Parameters predictParameters `json:"parameters"`
}

type predictInstance struct {
	Prompt string `json:"prompt"`
}

type predictParameters struct {
	NumberOfImages int    `json:"number_of_images"`
	AspectRatio    string `json:"aspectRatio"`
}

type predictResponse struct {
	Predictions []prediction `json:"predictions"`
}

type prediction struct {
	BytesBase64Encoded string `json:"bytesBase64Encoded"`
	MIMEType           string `json:"mimeType"`
}

type apiErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Generate requests a single image for prompt in the given aspect ratio
func (c *Client) Generate(ctx context.Context, prompt string, aspectRatio string) (generation.Output, error) {
	reqData, err := json.Marshal(predictRequest{
		Instances:  []predictInstance{{Prompt: prompt}},
		Parameters: predictParameters{NumberOfImages: 1, AspectRatio: aspectRatio},
	})
	if err != nil {
		return generation.Output{}, errors.Wrap(err, "failed to marshal request")
	}

	logging.LogDebugf("Sending Imagen predict request: model=%s aspectRatio=%s", c.model, aspectRatio)

	var body []byte
	err = c.retrier.RunCtx(ctx, func(ctx context.Context) error {
		var callErr error
		body, callErr = c.predict(ctx, reqData)
		return callErr
	})
	if err != nil {
		return generation.Output{}, err
	}

	var resp predictResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return generation.Output{}, &generation.UpstreamError{
			Backend: backendName,
			Message: "failed to parse response: " + err.Error(),
			NonJSON: true,
		}
	}
	if len(resp.Predictions) == 0 || resp.Predictions[0].BytesBase64Encoded == "" {
		return generation.Output{}, generation.ErrEmptyPredictions
	}

	first := resp.Predictions[0]
	data, err := base64.StdEncoding.DecodeString(first.BytesBase64Encoded)
	if err != nil {
		return generation.Output{}, errors.Wrap(err, "failed to decode prediction")
	}
	mimeType := first.MIMEType
	if mimeType == "" {
		mimeType = generation.DefaultOutputMIMEType
	}

	logging.LogDebugf("Received Imagen response: predictions=%d image_bytes=%d", len(resp.Predictions), len(data))

	return generation.Output{Image: imageutil.Image{MIMEType: mimeType, Data: data}}, nil
}

// predict performs a single HTTP call and returns the raw 2xx body
func (c *Client) predict(ctx context.Context, reqData []byte) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/models/%s:predict", c.baseURL, c.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqData))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create HTTP request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, upstreamError(resp.StatusCode, body)
	}
	return body, nil
}

// upstreamError extracts the best available message from an error body
func upstreamError(status int, body []byte) *generation.UpstreamError {
	e := &generation.UpstreamError{Backend: backendName, StatusCode: status}

	var apiErr apiErrorBody
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		e.Message = apiErr.Error.Message
		return e
	}

	text := strings.TrimSpace(string(body))
	e.NonJSON = text != "" && !json.Valid(body)
	if runes := []rune(text); len(runes) > maxDetailsLength {
		text = string(runes[:maxDetailsLength]) + "..."
	}
	if text == "" {
		text = http.StatusText(status)
	}
	e.Message = text
	return e
}

// classifier retries transport failures, rate limiting and server errors
type classifier struct{}

func (classifier) Classify(err error) retrier.Action {
	if err == nil {
		return retrier.Succeed
	}
	var upstream *generation.UpstreamError
	if errors.As(err, &upstream) {
		if upstream.StatusCode == http.StatusTooManyRequests || upstream.StatusCode >= 500 {
			return retrier.Retry
		}
		return retrier.Fail
	}
	return retrier.Retry
}
