package invoker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/cuongbtq/replay-tools/internal/auth"
	"github.com/cuongbtq/replay-tools/internal/replay/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedRequest struct {
	method string
	path   string
	auth   string
	ctype  string
	body   string
}

type recorder struct {
	mu       sync.Mutex
	requests []capturedRequest
}

func (r *recorder) all() []capturedRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]capturedRequest(nil), r.requests...)
}

func newServer(t *testing.T, status int, respBody string, rec *recorder) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		rec.mu.Lock()
		defer rec.mu.Unlock()
		rec.requests = append(rec.requests, capturedRequest{
			method: r.Method,
			path:   r.URL.EscapedPath(),
			auth:   r.Header.Get("Authorization"),
			ctype:  r.Header.Get("Content-Type"),
			body:   string(body),
		})
		w.WriteHeader(status)
		_, _ = w.Write([]byte(respBody))
	}))
	t.Cleanup(srv.Close)
	return srv
}

type failingProvider struct{}

func (failingProvider) Token(_ context.Context, audience, _, env string) (string, error) {
	return "", &domain.AuthError{Audience: audience, Env: env, Err: errors.New("expired")}
}

func newTestClient(baseURL string, endpoint Endpoint, creds auth.CredentialProvider) *Client {
	return NewClient(&Config{
		BaseURL:     baseURL + "/",
		Endpoint:    endpoint,
		Credentials: creds,
		Audience:    "github-for-jira",
		Group:       "admins",
		Env:         "dev",
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestClient_Invoke(t *testing.T) {
	tests := []struct {
		name       string
		endpoint   Endpoint
		batch      []domain.WorkItem
		status     int
		respBody   string
		wantStatus domain.Status
		wantErr    bool
		wantPath   string
		wantBody   string
	}{
		{
			name:       "success",
			endpoint:   Configuration{},
			batch:      items([]string{"https://a.atlassian.net"}),
			status:     http.StatusOK,
			respBody:   `{"ok":true}`,
			wantStatus: domain.StatusSuccess,
			wantPath:   "/api/configuration",
			wantBody:   `{"jiraHosts":["https://a.atlassian.net"]}`,
		},
		{
			name:       "server error",
			endpoint:   NewResync("", nil, nil),
			batch:      items([]string{"1"}),
			status:     http.StatusInternalServerError,
			respBody:   "boom",
			wantStatus: domain.StatusError,
			wantErr:    true,
			wantPath:   "/api/resync",
		},
		{
			name:       "rotation not found",
			endpoint:   RotateSecrets{},
			batch:      items([]string{"cloud", "{ws}"}),
			status:     http.StatusNotFound,
			wantStatus: domain.StatusNotFound,
			wantPath:   "/api/internal/installations/rotate/cloudid/cloud/bitbucket/workspaceuuid/%7Bws%7D",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			srv := newServer(t, tt.status, tt.respBody, rec)
			client := newTestClient(srv.URL, tt.endpoint, auth.NewStatic("jwt"))

			result, err := client.Invoke(context.Background(), tt.batch)

			assert.Equal(t, tt.wantStatus, result.Status)
			assert.Equal(t, tt.status, result.StatusCode)
			if tt.wantErr {
				var remoteErr *domain.RemoteError
				require.True(t, errors.As(err, &remoteErr))
				assert.Equal(t, tt.status, remoteErr.StatusCode)
				assert.Equal(t, tt.respBody, remoteErr.Body)
			} else {
				require.NoError(t, err)
			}

			captured := rec.all()
			require.Len(t, captured, 1)
			assert.Equal(t, http.MethodPost, captured[0].method)
			assert.Equal(t, "slauth jwt", captured[0].auth)
			assert.Equal(t, tt.wantPath, captured[0].path)
			if tt.wantBody != "" {
				assert.Equal(t, "application/json", captured[0].ctype)
				assert.JSONEq(t, tt.wantBody, captured[0].body)
			}
		})
	}
}

func TestClient_InvokeAuthFailure(t *testing.T) {
	rec := &recorder{}
	srv := newServer(t, http.StatusOK, "", rec)
	client := newTestClient(srv.URL, Configuration{}, failingProvider{})

	_, err := client.Invoke(context.Background(), items([]string{"host"}))

	var authErr *domain.AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Empty(t, rec.all(), "no request may be sent without a token")
}

func TestClient_InvokeTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := newTestClient(url, Configuration{}, auth.NewStatic("jwt"))
	result, err := client.Invoke(context.Background(), items([]string{"host"}))

	assert.Equal(t, domain.StatusError, result.Status)
	var remoteErr *domain.RemoteError
	require.True(t, errors.As(err, &remoteErr))
	assert.Equal(t, 0, remoteErr.StatusCode)
}

func TestClient_InvokeBuildFailure(t *testing.T) {
	rec := &recorder{}
	srv := newServer(t, http.StatusOK, "", rec)
	client := newTestClient(srv.URL, NewResync("", nil, nil), auth.NewStatic("jwt"))

	_, err := client.Invoke(context.Background(), items([]string{"not-a-number"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to build resync request")
	assert.Empty(t, rec.all())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	long := strings.Repeat("x", 10)
	assert.Equal(t, "xxxxx...(truncated)", truncate(long, 5))
}
