package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/d4l-data4life/go-image-studio/pkg/conversation"
	"github.com/d4l-data4life/go-image-studio/pkg/session"

	"github.com/d4l-data4life/go-svc/pkg/instrumented"
	"github.com/d4l-data4life/go-svc/pkg/logging"
)

const sessionWriteTimeout = 10 * time.Second

// Session message types
const (
	SessionSubmit = "submit"
	SessionCancel = "cancel"
	SessionReset  = "reset"
	SessionLoad   = "load"
	SessionState  = "state"
	SessionError  = "error"
)

// SessionRequest is a message sent by the client
type SessionRequest struct {
	Type string `json:"type"`
	session.SubmitRequest
	ConversationID string `json:"conversationId,omitempty"`
}

// SessionResponse is a message pushed to the client
type SessionResponse struct {
	Type  string         `json:"type"`
	State *session.State `json:"state,omitempty"`
	Error string         `json:"error,omitempty"`
}

// SessionsHandler drives a session state machine over a WebSocket
type SessionsHandler struct {
	*instrumented.Handler
	generator  ImageGenerator
	service    *conversation.Service
	limiter    *RateLimiter
	upgrader   websocket.Upgrader
	runnerOpts []session.Option
}

// NewSessionsHandler creates the session handler. Empty allowedOrigins accepts any origin.
func NewSessionsHandler(
	generator ImageGenerator,
	service *conversation.Service,
	limiter *RateLimiter,
	allowedOrigins []string,
	runnerOpts ...session.Option,
) *SessionsHandler {
	origins := map[string]bool{}
	for _, o := range allowedOrigins {
		if o != "" {
			origins[o] = true
		}
	}
	return &SessionsHandler{
		Handler:   GetHandlerFactory().NewHandler("SessionsHandler"),
		generator: generator,
		service:   service,
		limiter:   limiter,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(origins) == 0 || origin == "" || origins[origin]
			},
		},
		runnerOpts: runnerOpts,
	}
}

// Routes returns session routes
func (h *SessionsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/stream", h.Stream)
	return r
}

type sessionConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *sessionConn) send(msg SessionResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(sessionWriteTimeout)); err != nil {
		logging.LogDebugf("WebSocket write deadline: %v", err)
	}
	if err := c.conn.WriteJSON(msg); err != nil {
		logging.LogDebugf("WebSocket write error: %v", err)
	}
}

func (c *sessionConn) sendState(s session.State) {
	c.send(SessionResponse{Type: SessionState, State: &s})
}

func (c *sessionConn) sendError(message string) {
	c.send(SessionResponse{Type: SessionError, Error: message})
}

// Stream upgrades to a WebSocket and runs one session until the client disconnects
func (h *SessionsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	userID := GetUserIDFromContext(r.Context())

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.LogErrorf(err, "Failed to upgrade to WebSocket")
		return
	}
	defer conn.Close()

	out := &sessionConn{conn: conn}
	runner := session.NewRunner(h.generator, h.service, userID, out.sendState, h.runnerOpts...)
	// turns run until the client disconnects
	ctx, cancel := context.WithCancel(context.Background())
	defer runner.Wait()
	defer cancel()

	logging.LogDebugf("Session started for user %s", userID)
	out.sendState(runner.State())

	for {
		var req SessionRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logging.LogDebugf("WebSocket closed normally")
			} else {
				logging.LogErrorf(err, "WebSocket read error")
			}
			return
		}
		h.handleSessionRequest(ctx, runner, out, userID, req)
	}
}

func (h *SessionsHandler) handleSessionRequest(
	ctx context.Context,
	runner *session.Runner,
	out *sessionConn,
	userID uuid.UUID,
	req SessionRequest,
) {
	switch req.Type {
	case SessionSubmit:
		if req.Prompt == "" {
			out.sendError("Prompt is required")
			return
		}
		if h.limiter != nil && !h.limiter.Allow(userID.String()) {
			out.sendError("Too many requests")
			return
		}
		if !runner.Submit(ctx, req.SubmitRequest) {
			out.sendError("A request is already in progress")
		}
	case SessionCancel:
		runner.Dispatch(session.Cancel{})
	case SessionReset:
		runner.Dispatch(session.Reset{})
	case SessionLoad:
		convID, err := uuid.Parse(req.ConversationID)
		if err != nil {
			out.sendError("Invalid conversation ID")
			return
		}
		items, err := h.service.LoadHistory(ctx, convID, userID)
		if err != nil {
			logging.LogErrorf(err, "Error loading conversation %s", convID)
			out.sendError(shortenUserError(err))
			return
		}
		runner.Dispatch(session.Loaded{ConversationID: convID, History: items})
	default:
		out.sendError("Unknown message type")
	}
}
