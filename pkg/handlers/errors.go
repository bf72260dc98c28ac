package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"

	"github.com/d4l-data4life/go-image-studio/pkg/conversation"
	"github.com/d4l-data4life/go-image-studio/pkg/generation"
	"github.com/d4l-data4life/go-image-studio/pkg/storage"
)

const maxUserErrorLength = 140

// user-facing messages for known failures
var userErrors = []struct {
	err     error
	message string
}{
	{generation.ErrTimeout, "The image service timed out. Please try again."},
	{generation.ErrNoImage, generation.MessageNoImage},
	{generation.ErrNoCandidates, generation.MessageNoCandidates},
	{generation.ErrMissingAPIKey, generation.MessageAPIKeyMissing},
	{conversation.ErrNotFound, "Conversation not found"},
	{conversation.ErrCreateFailed, "Failed to save conversation"},
	{storage.ErrInvalidImage, generation.MessageInvalidImageInput},
}

// shortenUserError turns err into a message that fits a status banner
func shortenUserError(err error) string {
	if err == nil {
		return "Unexpected error"
	}
	for _, known := range userErrors {
		if errors.Is(err, known.err) {
			return known.message
		}
	}
	var genErr *generation.Error
	if errors.As(err, &genErr) {
		return truncateMessage(genErr.Message)
	}
	return truncateMessage(err.Error())
}

func truncateMessage(s string) string {
	runes := []rune(s)
	if len(runes) <= maxUserErrorLength {
		return s
	}
	return string(runes[:maxUserErrorLength]) + "…"
}

func renderError(w http.ResponseWriter, r *http.Request, status int, message string) {
	render.Status(r, status)
	render.JSON(w, r, map[string]string{"error": message})
}

// renderGenerationError renders a *generation.Error as is and anything else as a backend failure
func renderGenerationError(w http.ResponseWriter, r *http.Request, err error) {
	var genErr *generation.Error
	if !errors.As(err, &genErr) {
		genErr = generation.BackendFailure(err)
	}
	render.Status(r, genErr.Status)
	render.JSON(w, r, genErr)
}
