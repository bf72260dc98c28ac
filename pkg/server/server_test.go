package server_test

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/d4l-data4life/go-image-studio/internal/testutils"
)

func TestEndpointProtection(t *testing.T) {
	tests := []struct {
		name      string
		method    string
		url       string
		protected bool
	}{
		{"Liveness", http.MethodGet, "/checks/liveness", false},
		{"Readiness", http.MethodGet, "/checks/readiness", false},
		{"Metrics", http.MethodGet, "/metrics", false},
		{"Image", http.MethodPost, "/api/image", true},
		{"Conversations", http.MethodGet, "/api/conversations", true},
		{"Conversation history", http.MethodGet, "/api/conversations/" + uuid.NewString() + "/history", true},
		{"Session stream", http.MethodGet, "/api/sessions/stream", true},
		{"Storage check", http.MethodGet, "/internal/storage/check", true},
	}

	server := testutils.GetTestMockServer(t)

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			request := httptest.NewRequest(test.method, test.url, strings.NewReader(""))
			writer := httptest.NewRecorder()
			server.Mux().ServeHTTP(writer, request)
			assert.Equal(t, test.protected, writer.Code == http.StatusUnauthorized)
		})
	}
}

func TestAuthenticatedRequests(t *testing.T) {
	server := testutils.GetTestMockServer(t)
	token := testutils.SignedToken(t, map[string]interface{}{"sub": uuid.NewString()})

	request := httptest.NewRequest(http.MethodPost, "/api/image", strings.NewReader(`{"prompt":"a cat"}`))
	request.Header.Set("Authorization", testutils.BearerHeader(token))
	writer := httptest.NewRecorder()
	server.Mux().ServeHTTP(writer, request)
	assert.Equal(t, http.StatusOK, writer.Code)
	assert.Contains(t, writer.Body.String(), `Generated image for prompt`)

	request = httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
	request.Header.Set("Authorization", testutils.BearerHeader(token))
	writer = httptest.NewRecorder()
	server.Mux().ServeHTTP(writer, request)
	assert.Equal(t, http.StatusOK, writer.Code)
	assert.JSONEq(t, `[]`, writer.Body.String())
}

func TestMetrics(t *testing.T) {
	tests := []struct {
		name        string
		metric      string
		value       int
		metricExist bool
		valueMatch  bool
	}{
		{"Golang metrics should exist", "go_memstats_alloc_bytes_total", -1, true, false},
		{"Golang metrics should exist", "go_info", 1, true, true},
		{"go-image-studio info metric should exist", "build_info", 1, true, true},
		{"fallback counter should exist", "d4l_go_image_studio_generation_fallbacks_total", 0, true, true},
	}

	server := testutils.GetTestMockServer(t)

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			request := httptest.NewRequest(http.MethodGet, "/metrics", strings.NewReader(""))
			writer := httptest.NewRecorder()
			server.Mux().ServeHTTP(writer, request)

			resp := writer.Result()
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()

			assert.Equal(t, test.metricExist, strings.Contains(string(body), test.metric),
				fmt.Sprintf("Text %s should contain metric '%s'", string(body), test.metric))

			// regexp allows to ignore metric labels
			metricValueRegexp := fmt.Sprintf(`%s(\{.*\})? %d`, test.metric, test.value)
			matched, err := regexp.Match(metricValueRegexp, body)
			if err != nil {
				t.Error(err)
			}
			assert.Equal(t, test.valueMatch, matched,
				fmt.Sprintf("Text %s should contain metric '%s' with value '%d'", string(body), test.metric, test.value))
		})
	}
}

func TestCors(t *testing.T) {
	tests := []struct {
		name                  string
		reply                 *httptest.ResponseRecorder
		request               *http.Request
		requestHeader         string // one header to include in request (cannot use maps here)
		requestHeaderContent  string // header value
		expectHeaders         bool   // whether expectedHeader should be present in reply
		expectedHeader        string
		expectedHeaderContent string
	}{
		{
			name:                  "Access-Control-Allow-Origin header should be present",
			reply:                 httptest.NewRecorder(),
			request:               httptest.NewRequest("GET", "/checks/liveness", nil),
			requestHeader:         "Origin",
			requestHeaderContent:  "localhost",
			expectHeaders:         true,
			expectedHeader:        "Access-Control-Allow-Origin",
			expectedHeaderContent: "localhost",
		},
		{
			name:                  "Access-Control-Expose-Headers header should be present",
			reply:                 httptest.NewRecorder(),
			request:               httptest.NewRequest("GET", "/checks/liveness", nil),
			requestHeader:         "Origin",
			requestHeaderContent:  "localhost",
			expectHeaders:         true,
			expectedHeader:        "Access-Control-Expose-Headers",
			expectedHeaderContent: "Link, Retry-After",
		},
		{
			name:                  "Access-Control-Allow-Credentials header should be present",
			reply:                 httptest.NewRecorder(),
			request:               httptest.NewRequest("GET", "/checks/liveness", nil),
			requestHeader:         "Origin",
			requestHeaderContent:  "localhost",
			expectHeaders:         true,
			expectedHeader:        "Access-Control-Allow-Credentials",
			expectedHeaderContent: "true",
		},
		{
			name:                  "Origin matches not",
			reply:                 httptest.NewRecorder(),
			request:               httptest.NewRequest("GET", "/checks/liveness", nil),
			requestHeader:         "Origin",
			requestHeaderContent:  "http://www.data4life.care",
			expectHeaders:         false,
			expectedHeader:        "Access-Control-Allow-Origin",
			expectedHeaderContent: "localhost",
		},
	}

	server := testutils.GetTestMockServer(t)

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			test.request.Header.Set(test.requestHeader, test.requestHeaderContent)

			server.Mux().ServeHTTP(test.reply, test.request)
			if test.expectHeaders {
				assert.Equal(t, test.expectedHeaderContent, test.reply.Header().Get(test.expectedHeader))
			} else {
				assert.Equal(t, "", test.reply.Header().Get(test.expectedHeader))
			}
		})
	}
}
