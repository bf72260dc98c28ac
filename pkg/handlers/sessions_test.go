package handlers_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d4l-data4life/go-image-studio/pkg/conversation"
	"github.com/d4l-data4life/go-image-studio/pkg/handlers"
	"github.com/d4l-data4life/go-image-studio/pkg/session"
)

func dialSession(t *testing.T, h *handlers.SessionsHandler, userID uuid.UUID) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.Stream(w, asUser(r, userID))
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads pushed messages until match accepts one
func readUntil(t *testing.T, conn *websocket.Conn, match func(handlers.SessionResponse) bool) handlers.SessionResponse {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var msg handlers.SessionResponse
		require.NoError(t, conn.ReadJSON(&msg))
		if match(msg) {
			return msg
		}
	}
}

func isError(msg handlers.SessionResponse) bool {
	return msg.Type == handlers.SessionError
}

func TestSessionsHandler_SubmitAndSave(t *testing.T) {
	f := newFixture()
	gen := &fakeGenerator{}
	h := handlers.NewSessionsHandler(gen, f.service, nil, nil, session.WithTimers(time.Millisecond, time.Minute))
	userID := uuid.New()
	conn := dialSession(t, h, userID)

	initial := readUntil(t, conn, func(m handlers.SessionResponse) bool { return m.Type == handlers.SessionState })
	assert.Equal(t, session.PhaseIdle, initial.State.Phase)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type":   handlers.SessionSubmit,
		"prompt": "a cat",
		"image":  jpegURL,
	}))
	saved := readUntil(t, conn, func(m handlers.SessionResponse) bool {
		return m.State != nil && m.State.ConversationID != nil
	})
	assert.Equal(t, session.PhaseSuccess, saved.State.Phase)
	assert.Equal(t, pngURL, saved.State.GeneratedImage)
	require.Len(t, saved.State.History, 2)
	assert.Equal(t, jpegURL, gen.lastRequest().Image)

	list, err := f.service.List(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, *saved.State.ConversationID, list[0].ID)
	assert.Equal(t, "a cat", list[0].Title)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": handlers.SessionReset}))
	reset := readUntil(t, conn, func(m handlers.SessionResponse) bool { return m.State != nil })
	assert.Equal(t, session.NewState().Phase, reset.State.Phase)
	assert.Empty(t, reset.State.History)
	assert.Nil(t, reset.State.ConversationID)
}

func TestSessionsHandler_Load(t *testing.T) {
	f := newFixture()
	userID := uuid.New()
	id, err := f.service.SaveHistory(context.Background(), sampleHistory(), "", uuid.Nil, userID)
	require.NoError(t, err)

	h := handlers.NewSessionsHandler(&fakeGenerator{}, f.service, nil, nil)
	conn := dialSession(t, h, userID)
	readUntil(t, conn, func(m handlers.SessionResponse) bool { return m.Type == handlers.SessionState })

	require.NoError(t, conn.WriteJSON(map[string]string{"type": handlers.SessionLoad, "conversationId": id.String()}))
	loaded := readUntil(t, conn, func(m handlers.SessionResponse) bool { return m.State != nil })
	require.NotNil(t, loaded.State.ConversationID)
	assert.Equal(t, id, *loaded.State.ConversationID)
	assert.Len(t, loaded.State.History, 2)
	assert.True(t, strings.HasPrefix(loaded.State.GeneratedImage, "http://memory.local/images/"))

	require.NoError(t, conn.WriteJSON(map[string]string{"type": handlers.SessionLoad, "conversationId": uuid.NewString()}))
	msg := readUntil(t, conn, isError)
	assert.Equal(t, "Conversation not found", msg.Error)
}

func TestSessionsHandler_ProtocolErrors(t *testing.T) {
	f := newFixture()
	h := handlers.NewSessionsHandler(&fakeGenerator{}, f.service, nil, nil)
	conn := dialSession(t, h, uuid.New())
	readUntil(t, conn, func(m handlers.SessionResponse) bool { return m.Type == handlers.SessionState })

	tests := []struct {
		request map[string]string
		error   string
	}{
		{map[string]string{"type": "dance"}, "Unknown message type"},
		{map[string]string{"type": handlers.SessionSubmit}, "Prompt is required"},
		{map[string]string{"type": handlers.SessionLoad, "conversationId": "nope"}, "Invalid conversation ID"},
	}
	for _, tt := range tests {
		require.NoError(t, conn.WriteJSON(tt.request))
		assert.Equal(t, tt.error, readUntil(t, conn, isError).Error)
	}
}

func TestSessionsHandler_SaveFailureWarning(t *testing.T) {
	repo := conversation.NewMemoryRepository()
	repo.FailCreateConversation = assert.AnError
	f := newFixture()
	service := conversation.NewService(repo, f.blobs, nil)

	h := handlers.NewSessionsHandler(&fakeGenerator{}, service, nil, nil)
	conn := dialSession(t, h, uuid.New())
	require.NoError(t, conn.WriteJSON(map[string]string{"type": handlers.SessionSubmit, "prompt": "a cat"}))

	warned := readUntil(t, conn, func(m handlers.SessionResponse) bool {
		return m.State != nil && m.State.Warning != ""
	})
	assert.Equal(t, session.MessageSaveFailed, warned.State.Warning)
	assert.Equal(t, session.PhaseSuccess, warned.State.Phase)
}
