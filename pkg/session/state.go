package session

import (
	"github.com/google/uuid"

	"github.com/d4l-data4life/go-image-studio/pkg/generation"
	"github.com/d4l-data4life/go-image-studio/pkg/history"
	"github.com/d4l-data4life/go-image-studio/pkg/models"
)

// Phase of a session turn
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseSubmitting Phase = "submitting"
	PhaseSuccess    Phase = "success"
	PhaseError      Phase = "error"
)

const (
	MessageSaveFailed = "Your conversation was generated but could not be saved to the database."
	MessageCanceled   = "Request canceled by user."
	MessageSlow       = "Request is taking longer than expected. You may want to try again or modify your prompt."
)

// State is everything a client needs to render a session
type State struct {
	Phase          Phase          `json:"phase"`
	History        []history.Item `json:"history"`
	ConversationID *uuid.UUID     `json:"conversationId,omitempty"`
	GeneratedImage string         `json:"generatedImage,omitempty"`
	Description    string         `json:"description,omitempty"`
	Error          string         `json:"error,omitempty"`
	Warning        string         `json:"warning,omitempty"`
	Loading        bool           `json:"loading"`
	LoadingSeconds int            `json:"loadingSeconds"`
}

// NewState returns the idle state of an empty session
func NewState() State {
	return State{Phase: PhaseIdle, History: []history.Item{}}
}

// Event is an input to Reduce
type Event interface {
	isEvent()
}

// Submit starts a turn with a prompt and an optional uploaded image
type Submit struct {
	Prompt string
	Image  string
}

// Tick advances the loading counter by one second
type Tick struct{}

// SlowWarning fires when a turn runs longer than expected
type SlowWarning struct{}

// GenerationSucceeded carries the normalized backend result
type GenerationSucceeded struct {
	Result generation.Result
}

// GenerationFailed carries the error shown to the user
type GenerationFailed struct {
	Message string
}

// SaveFailed reports that persisting the conversation failed
type SaveFailed struct{}

// Saved reports the id the conversation was persisted under
type Saved struct {
	ConversationID uuid.UUID
}

// Cancel hides the loading state. The backend call keeps running.
type Cancel struct{}

// Reset starts over with an empty session
type Reset struct{}

// Loaded replaces the session with a stored conversation
type Loaded struct {
	ConversationID uuid.UUID
	History        []history.Item
}

func (Submit) isEvent()              {}
func (Tick) isEvent()                {}
func (SlowWarning) isEvent()         {}
func (GenerationSucceeded) isEvent() {}
func (GenerationFailed) isEvent()    {}
func (SaveFailed) isEvent()          {}
func (Saved) isEvent()               {}
func (Cancel) isEvent()              {}
func (Reset) isEvent()               {}
func (Loaded) isEvent()              {}

// Reduce is the pure transition function of a session
func Reduce(s State, event Event) State {
	switch ev := event.(type) {
	case Submit:
		if s.Loading || ev.Prompt == "" {
			return s
		}
		parts := []history.Part{}
		// the uploaded image only travels with the first user message
		if ev.Image != "" && !history.HasUserItem(s.History) {
			parts = append(parts, history.Part{Image: ev.Image})
		}
		parts = append(parts, history.Part{Text: ev.Prompt})
		s.History = appendItem(s.History, history.Item{Role: history.RoleUser, Parts: parts})
		s.Phase = PhaseSubmitting
		s.Loading = true
		s.LoadingSeconds = 0
		s.Error = ""
		s.Warning = ""

	case Tick:
		if s.Loading {
			s.LoadingSeconds++
		}

	case SlowWarning:
		if s.Loading && s.Phase == PhaseSubmitting {
			s.Warning = MessageSlow
		}

	case GenerationSucceeded:
		parts := []history.Part{}
		description := ""
		if ev.Result.Description != nil {
			description = *ev.Result.Description
		}
		if description != "" {
			parts = append(parts, history.Part{Text: description})
		}
		parts = append(parts, history.Part{Image: ev.Result.Image})
		item := history.Item{Role: history.RoleModel, Parts: parts}
		meta := models.GenerationMetadata{
			Model:       ev.Result.Model,
			AspectRatio: ev.Result.AspectRatio,
			Fallback:    ev.Result.Fallback,
		}
		if !meta.IsZero() {
			item.Metadata = &meta
		}
		s.History = appendItem(s.History, item)
		s.GeneratedImage = ev.Result.Image
		s.Description = description
		s.Phase = PhaseSuccess
		s.Loading = false
		s.Error = ""
		s.Warning = ""

	case GenerationFailed:
		s.Phase = PhaseError
		s.Loading = false
		s.Error = ev.Message
		s.Warning = ""

	case SaveFailed:
		s.Warning = MessageSaveFailed

	case Saved:
		id := ev.ConversationID
		s.ConversationID = &id

	case Cancel:
		if !s.Loading {
			return s
		}
		s.Phase = PhaseError
		s.Loading = false
		s.LoadingSeconds = 0
		s.Error = MessageCanceled
		s.Warning = ""

	case Reset:
		return NewState()

	case Loaded:
		next := NewState()
		id := ev.ConversationID
		next.ConversationID = &id
		next.History = appendItem(nil, ev.History...)
		if last, ok := history.LastImage(ev.History); ok {
			next.GeneratedImage = last.Image
		}
		return next
	}
	return s
}

// appendItem copies before appending so earlier snapshots stay untouched
func appendItem(items []history.Item, more ...history.Item) []history.Item {
	out := make([]history.Item, 0, len(items)+len(more))
	out = append(out, items...)
	return append(out, more...)
}
