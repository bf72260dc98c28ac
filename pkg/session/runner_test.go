package session

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d4l-data4life/go-image-studio/pkg/config"
	"github.com/d4l-data4life/go-image-studio/pkg/generation"
	"github.com/d4l-data4life/go-image-studio/pkg/history"
)

// Executed before test runs in this package (fails otherwise)
func TestMain(m *testing.M) {
	config.SetupEnv()
	config.SetupLogger()
	os.Exit(m.Run())
}

type fakeGenerator struct {
	mu       sync.Mutex
	requests []generation.Request
	release  chan struct{}
	err      error
}

func (g *fakeGenerator) Generate(ctx context.Context, req generation.Request) (*generation.Result, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.mu.Unlock()
	if g.release != nil {
		<-g.release
	}
	if g.err != nil {
		return nil, g.err
	}
	return &generation.Result{Image: resultURL, Model: generation.ModelImagen3, AspectRatio: "1:1"}, nil
}

func (g *fakeGenerator) lastRequest() generation.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.requests[len(g.requests)-1]
}

type fakeSaver struct {
	mu    sync.Mutex
	id    uuid.UUID
	err   error
	saved [][]history.Item
	ids   []uuid.UUID
	// entered is closed when a save starts, the save then waits for release
	entered chan struct{}
	release chan struct{}
	ctxErrs []error
}

func (s *fakeSaver) SaveHistory(ctx context.Context, items []history.Item, _ string, existingID, _ uuid.UUID) (uuid.UUID, error) {
	if s.entered != nil {
		close(s.entered)
		<-s.release
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctxErrs = append(s.ctxErrs, ctx.Err())
	s.saved = append(s.saved, items)
	s.ids = append(s.ids, existingID)
	if s.err != nil {
		return uuid.Nil, s.err
	}
	return s.id, nil
}

type recorder struct {
	mu     sync.Mutex
	states []State
}

func (r *recorder) emit(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *recorder) phases() []Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	phases := []Phase{}
	for _, s := range r.states {
		if len(phases) == 0 || phases[len(phases)-1] != s.Phase {
			phases = append(phases, s.Phase)
		}
	}
	return phases
}

func TestRunnerTurnAndSave(t *testing.T) {
	gen := &fakeGenerator{release: make(chan struct{})}
	saver := &fakeSaver{id: uuid.New()}
	rec := &recorder{}
	r := NewRunner(gen, saver, uuid.New(), rec.emit, WithTimers(5*time.Millisecond, 20*time.Millisecond))

	require.True(t, r.Submit(context.Background(), SubmitRequest{Prompt: "a cat", Image: uploadURL, AspectRatio: "16:9"}))
	assert.False(t, r.Submit(context.Background(), SubmitRequest{Prompt: "a dog"}))

	require.Eventually(t, func() bool {
		s := r.State()
		return s.LoadingSeconds > 0 && s.Warning == MessageSlow
	}, time.Second, 5*time.Millisecond)

	close(gen.release)
	r.Wait()

	s := r.State()
	assert.Equal(t, PhaseSuccess, s.Phase)
	assert.Equal(t, resultURL, s.GeneratedImage)
	assert.Empty(t, s.Warning)
	require.NotNil(t, s.ConversationID)
	assert.Equal(t, saver.id, *s.ConversationID)
	assert.Equal(t, []Phase{PhaseSubmitting, PhaseSuccess}, rec.phases())

	req := gen.lastRequest()
	assert.Equal(t, uploadURL, req.Image)
	assert.True(t, req.IsEditing)
	assert.Equal(t, "16:9", req.AspectRatio)
	assert.Empty(t, req.History)

	require.Len(t, saver.saved, 1)
	assert.Len(t, saver.saved[0], 2)
	assert.Equal(t, uuid.Nil, saver.ids[0])
}

func TestRunnerFollowUpEditsLatestImage(t *testing.T) {
	gen := &fakeGenerator{}
	saver := &fakeSaver{id: uuid.New()}
	r := NewRunner(gen, saver, uuid.New(), nil)

	require.True(t, r.Submit(context.Background(), SubmitRequest{Prompt: "a cat", Model: generation.ModelImagen3}))
	r.Wait()
	assert.False(t, gen.lastRequest().IsEditing)

	require.True(t, r.Submit(context.Background(), SubmitRequest{Prompt: "add a hat"}))
	r.Wait()

	req := gen.lastRequest()
	assert.True(t, req.IsEditing)
	assert.Equal(t, resultURL, req.Image)
	assert.Len(t, req.History, 2)

	require.Len(t, saver.ids, 2)
	assert.Equal(t, saver.id, saver.ids[1])
	assert.Len(t, r.State().History, 4)
}

func TestRunnerFailures(t *testing.T) {
	gen := &fakeGenerator{err: generation.Internal(generation.MessageGenerationFailed, errors.New("boom"))}
	saver := &fakeSaver{id: uuid.New()}
	r := NewRunner(gen, saver, uuid.New(), nil)

	require.True(t, r.Submit(context.Background(), SubmitRequest{Prompt: "a cat"}))
	r.Wait()
	s := r.State()
	assert.Equal(t, PhaseError, s.Phase)
	assert.Contains(t, s.Error, generation.MessageGenerationFailed)
	assert.Len(t, s.History, 1)
	assert.Empty(t, saver.saved)

	gen.err = nil
	saver.err = errors.New("db down")
	require.True(t, r.Submit(context.Background(), SubmitRequest{Prompt: "again"}))
	r.Wait()
	s = r.State()
	assert.Equal(t, PhaseSuccess, s.Phase)
	assert.Equal(t, MessageSaveFailed, s.Warning)
	assert.Nil(t, s.ConversationID)
}

func TestRunnerCancel(t *testing.T) {
	gen := &fakeGenerator{release: make(chan struct{})}
	r := NewRunner(gen, &fakeSaver{id: uuid.New()}, uuid.New(), nil)

	require.True(t, r.Submit(context.Background(), SubmitRequest{Prompt: "a cat"}))
	s := r.Dispatch(Cancel{})
	assert.False(t, s.Loading)
	assert.Equal(t, MessageCanceled, s.Error)

	close(gen.release)
	r.Wait()
	assert.Len(t, r.State().History, 2)
}

func TestRunnerSaveOutlivesCanceledContext(t *testing.T) {
	gen := &fakeGenerator{}
	saver := &fakeSaver{id: uuid.New(), entered: make(chan struct{}), release: make(chan struct{})}
	r := NewRunner(gen, saver, uuid.New(), func(State) {}, WithTimers(time.Hour, time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	require.True(t, r.Submit(ctx, SubmitRequest{Prompt: "a cat"}))

	<-saver.entered
	// the client disconnects while the save is running
	cancel()
	close(saver.release)
	r.Wait()

	require.Len(t, saver.ctxErrs, 1)
	assert.NoError(t, saver.ctxErrs[0])
	s := r.State()
	require.NotNil(t, s.ConversationID)
	assert.Equal(t, saver.id, *s.ConversationID)
	assert.Empty(t, s.Warning)
}
