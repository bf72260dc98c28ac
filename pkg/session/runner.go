package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/d4l-data4life/go-image-studio/pkg/generation"
	"github.com/d4l-data4life/go-image-studio/pkg/history"
	"github.com/d4l-data4life/go-image-studio/pkg/metrics"

	"github.com/d4l-data4life/go-svc/pkg/logging"
)

const (
	// DefaultTickInterval is the resolution of the loading counter
	DefaultTickInterval = time.Second
	// DefaultSlowAfter is when the "taking longer than expected" warning appears
	DefaultSlowAfter = 30 * time.Second
)

// Generator produces images for a turn
type Generator interface {
	Generate(ctx context.Context, req generation.Request) (*generation.Result, error)
}

// Saver persists the history of a session
type Saver interface {
	SaveHistory(ctx context.Context, items []history.Item, title string, existingID, userID uuid.UUID) (uuid.UUID, error)
}

// SubmitRequest is what a client sends to start a turn
type SubmitRequest struct {
	Prompt      string `json:"prompt"`
	Image       string `json:"image,omitempty"`
	Model       string `json:"model,omitempty"`
	AspectRatio string `json:"aspectRatio,omitempty"`
}

// Runner applies events to a session and drives turns: the generation call
// runs alongside a loading ticker and the slow warning timer, the save runs
// after a successful generation.
type Runner struct {
	generator Generator
	saver     Saver
	userID    uuid.UUID
	emit      func(State)

	tickInterval time.Duration
	slowAfter    time.Duration

	mu    sync.Mutex
	state State
	wg    sync.WaitGroup
}

// Option configures a Runner
type Option func(*Runner)

// WithTimers overrides the tick interval and the slow warning delay
func WithTimers(tick, slowAfter time.Duration) Option {
	return func(r *Runner) {
		r.tickInterval = tick
		r.slowAfter = slowAfter
	}
}

// NewRunner creates a runner for userID; emit receives every new state
func NewRunner(generator Generator, saver Saver, userID uuid.UUID, emit func(State), opts ...Option) *Runner {
	r := &Runner{
		generator:    generator,
		saver:        saver,
		userID:       userID,
		emit:         emit,
		tickInterval: DefaultTickInterval,
		slowAfter:    DefaultSlowAfter,
		state:        NewState(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// State returns the current snapshot
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Dispatch applies an event and emits the resulting state
func (r *Runner) Dispatch(event Event) State {
	r.mu.Lock()
	r.state = Reduce(r.state, event)
	snapshot := r.state
	r.mu.Unlock()

	if r.emit != nil {
		r.emit(snapshot)
	}
	return snapshot
}

// Submit starts a turn. It returns false when a turn is already loading or the prompt is empty.
func (r *Runner) Submit(ctx context.Context, req SubmitRequest) bool {
	r.mu.Lock()
	before := r.state
	r.mu.Unlock()
	if before.Loading || req.Prompt == "" {
		return false
	}

	// follow-up prompts edit the latest generated image
	image := req.Image
	isEditing := image != "" || before.GeneratedImage != ""
	if image == "" {
		image = before.GeneratedImage
	}
	genReq := generation.Request{
		Prompt:      req.Prompt,
		Image:       image,
		History:     before.History,
		AspectRatio: req.AspectRatio,
		Model:       req.Model,
		IsEditing:   isEditing,
	}

	r.Dispatch(Submit{Prompt: req.Prompt, Image: req.Image})

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.runTurn(ctx, genReq)
	}()
	return true
}

func (r *Runner) runTurn(ctx context.Context, req generation.Request) {
	stop := make(chan struct{})
	var timers sync.WaitGroup
	timers.Add(1)
	go func() {
		defer timers.Done()
		r.runTimers(stop)
	}()

	result, err := r.generator.Generate(ctx, req)
	close(stop)
	timers.Wait()

	if err != nil {
		r.Dispatch(GenerationFailed{Message: userMessage(err)})
		return
	}
	state := r.Dispatch(GenerationSucceeded{Result: *result})

	// the save outlives the connection that started the turn
	saveCtx := context.WithoutCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.save(saveCtx, state)
	}()
}

// runTimers emits Tick every interval and SlowWarning once, until stop is closed
func (r *Runner) runTimers(stop <-chan struct{}) {
	ticker := time.NewTicker(r.tickInterval)
	defer ticker.Stop()
	slow := time.NewTimer(r.slowAfter)
	defer slow.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.Dispatch(Tick{})
		case <-slow.C:
			r.Dispatch(SlowWarning{})
		}
	}
}

func (r *Runner) save(ctx context.Context, state State) {
	existing := uuid.Nil
	if state.ConversationID != nil {
		existing = *state.ConversationID
	}
	id, err := r.saver.SaveHistory(ctx, state.History, "", existing, r.userID)
	if err != nil || id == uuid.Nil {
		if err != nil {
			logging.LogErrorf(err, "Error saving conversation")
		}
		metrics.SaveFailures.Inc()
		r.Dispatch(SaveFailed{})
		return
	}
	r.Dispatch(Saved{ConversationID: id})
}

// Wait blocks until all started turns and saves have finished
func (r *Runner) Wait() {
	r.wg.Wait()
}

func userMessage(err error) string {
	var genErr *generation.Error
	if errors.As(err, &genErr) {
		return genErr.Error()
	}
	return err.Error()
}
