package generation

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors for generation
var (
	// ErrTimeout indicates the edit-capable backend did not answer in time
	ErrTimeout = errors.New("API request timed out")

	// ErrNoImage indicates the backend answered without an image part
	ErrNoImage = errors.New("no image generated")

	// ErrNoCandidates indicates the edit-capable backend returned no candidates at all
	ErrNoCandidates = errors.New("no candidates in response")

	// ErrEmptyPredictions indicates the text-to-image backend returned no predictions
	ErrEmptyPredictions = errors.New("no predictions in response")

	// ErrMissingAPIKey indicates no API key is configured for the backends
	ErrMissingAPIKey = errors.New("API key not configured")
)

const (
	MessagePromptRequired    = "Prompt is required"
	MessageAPIKeyMissing     = "API key not configured"
	MessageGenerationFailed  = "Failed to generate image"
	MessageInvalidImageInput = "Invalid image input"
	MessageInvalidDataURL    = "Invalid image data URL format"
	MessageNoImage           = "No image generated in response"
	MessageNoCandidates      = "No valid response from Gemini API"

	// PossibleCauseNonJSON is reported when the upstream answered with something other than JSON
	PossibleCauseNonJSON = "The API returned a non-JSON response (for example an HTML error page). " +
		"Check the API key, the model name and the service status."
)

// Error is a client-facing generation failure rendered as JSON by the handler
type Error struct {
	Status        int    `json:"-"`
	Message       string `json:"error"`
	Details       string `json:"details,omitempty"`
	PossibleCause string `json:"possibleCause,omitempty"`
	cause         error
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Details)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// BadRequest creates a 400 error
func BadRequest(message string) *Error {
	return &Error{Status: http.StatusBadRequest, Message: message}
}

// Internal creates a 500 error without details
func Internal(message string, cause error) *Error {
	return &Error{Status: http.StatusInternalServerError, Message: message, cause: cause}
}

// BackendFailure creates the 500 error for a failed or timed out backend call
func BackendFailure(err error) *Error {
	e := &Error{
		Status:  http.StatusInternalServerError,
		Message: MessageGenerationFailed,
		Details: err.Error(),
		cause:   err,
	}
	if IsNonJSON(err) {
		e.PossibleCause = PossibleCauseNonJSON
	}
	return e
}

// UpstreamError is a non-2xx or unparseable answer of a backend
type UpstreamError struct {
	Backend    string
	StatusCode int
	Message    string
	NonJSON    bool
}

func (e *UpstreamError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s error: %s", e.Backend, e.Message)
	}
	return fmt.Sprintf("%s error %d: %s", e.Backend, e.StatusCode, e.Message)
}

// IsNonJSON reports whether err stems from an upstream body that was not JSON
func IsNonJSON(err error) bool {
	if err == nil {
		return false
	}
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return upstream.NonJSON
	}
	return LooksLikeNonJSON(err.Error())
}

// LooksLikeNonJSON detects HTML pages and JSON decoder complaints about markup
func LooksLikeNonJSON(s string) bool {
	lower := strings.ToLower(strings.TrimSpace(s))
	return strings.Contains(lower, "<!doctype") ||
		strings.Contains(lower, "<html") ||
		strings.HasPrefix(lower, "<") ||
		strings.Contains(lower, "invalid character '<'") ||
		strings.Contains(lower, "unexpected token <")
}
