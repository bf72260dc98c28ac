package testutils

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/cors"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/d4l-data4life/go-image-studio/pkg/auth"
	"github.com/d4l-data4life/go-image-studio/pkg/config"
	"github.com/d4l-data4life/go-image-studio/pkg/conversation"
	"github.com/d4l-data4life/go-image-studio/pkg/generation"
	"github.com/d4l-data4life/go-image-studio/pkg/handlers"
	"github.com/d4l-data4life/go-image-studio/pkg/metrics"
	"github.com/d4l-data4life/go-image-studio/pkg/server"
	"github.com/d4l-data4life/go-image-studio/pkg/storage"
	"github.com/d4l-data4life/go-svc/pkg/logging"
)

// TestServiceSecret protects the internal routes of the mock server
const TestServiceSecret = "test-service-secret"

// StaticGenerator always returns the same image
type StaticGenerator struct {
	Image string
}

func (g StaticGenerator) Generate(_ context.Context, req generation.Request) (*generation.Result, error) {
	if req.Prompt == "" {
		return nil, generation.BadRequest(generation.MessagePromptRequired)
	}
	description := "Generated image for prompt: \"" + req.Prompt + "\""
	return &generation.Result{Image: g.Image, Description: &description, Model: generation.ModelGemini}, nil
}

// TestDependencies wires in-memory persistence, a static generator and HS256 auth
func TestDependencies(t *testing.T) handlers.Dependencies {
	repo := conversation.NewMemoryRepository()
	blobs := storage.NewMemoryStore("")
	validator, err := auth.NewLocalJWTValidator(TestJWTSecret)
	require.NoError(t, err)
	return handlers.Dependencies{
		Generator:      StaticGenerator{Image: "data:image/png;base64,iVBORw0KGgo="},
		Conversations:  conversation.NewService(repo, blobs, storage.NewResolver(blobs, time.Minute)),
		Storage:        blobs,
		TokenValidator: validator,
		ServiceSecret:  TestServiceSecret,
		Ping:           func() error { return nil },
	}
}

// GetRequestPayload converts a given object into a reader of that obect as json payload
func GetRequestPayload(payload interface{}) io.Reader {
	bytes, _ := json.Marshal(payload)
	return strings.NewReader(string(bytes))
}

// GetTestMockServer creates the mocked server for tests
func GetTestMockServer(t *testing.T) *server.Server {
	config.SetupEnv()
	config.SetupLogger()
	corsOptions := config.CorsConfig([]string{"localhost"})
	srv := server.NewServer("TEST_SERVER", cors.New(corsOptions), 1, 10*time.Second)

	server.SetupRoutes(srv, TestDependencies(t))
	metrics.AddBuildInfoMetric()
	metrics.AddGenerationMetrics()
	return srv
}

// MustJSON marshals object or logs and returns nil
func MustJSON[T any](object T) datatypes.JSON {
	bytes, err := json.Marshal(object)
	if err != nil {
		logging.LogErrorfCtx(context.Background(), err, "failed marshalling to JSON")
		return nil
	}
	return bytes
}

// Pointerfy returns a pointer to a copy of thing
func Pointerfy[T any](thing T) *T {
	return &thing
}
