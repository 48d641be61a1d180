package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := NewHTTPClient(srv.URL, StaticToken("tok-1"))
	require.NoError(t, err)
	return c
}

func TestHTTPClient_GetEndpoints(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		_, _ = w.Write([]byte(`[]`))
	})
	ctx := context.Background()

	_, err := c.Network(ctx, 7)
	require.NoError(t, err)
	_, err = c.FriendRequests(ctx, 7)
	require.NoError(t, err)
	_, err = c.SentRequests(ctx, 7)
	require.NoError(t, err)
	body, err := c.CandidatePool(ctx, "mentors")
	require.NoError(t, err)
	assert.Equal(t, "[]", string(body))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"/users/7/network",
		"/users/7/friend-requests",
		"/users/7/sent-requests",
		"/candidates/mentors",
	}, paths)
}

func TestHTTPClient_CandidatePoolRejectsUnknownKind(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})
	_, err := c.CandidatePool(context.Background(), "investors")
	assert.True(t, IsTransport(err))
}

func TestHTTPClient_PostBodies(t *testing.T) {
	var mu sync.Mutex
	got := map[string]map[string]any{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		mu.Lock()
		got[r.URL.Path] = body
		mu.Unlock()
		_, _ = w.Write([]byte(`{"success":true}`))
	})
	ctx := context.Background()

	require.NoError(t, c.SendFriendRequest(ctx, 3, "b@x.com"))
	require.NoError(t, c.AcceptFriendRequest(ctx, "c@x.com", 3))
	require.NoError(t, c.DeclineFriendRequest(ctx, "d@x.com", 3))

	mu.Lock()
	defer mu.Unlock()

	assert.Equal(t, map[string]any{"userId": float64(3), "receiverEmail": "b@x.com"}, got["/friend-requests/send"])
	assert.Equal(t, map[string]any{"senderEmail": "c@x.com", "receiverId": float64(3)}, got["/friend-requests/accept"])
	assert.Equal(t, map[string]any{"senderEmail": "d@x.com", "receiverId": float64(3)}, got["/friend-requests/decline"])
}

func TestHTTPClient_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		code   ErrorCode
	}{
		{"unauthorized", http.StatusUnauthorized, `{"message":"expired"}`, ErrCodeAuth},
		{"forbidden", http.StatusForbidden, ``, ErrCodeAuth},
		{"conflict", http.StatusConflict, `{"error":"already friends"}`, ErrCodeConflict},
		{"unprocessable", http.StatusUnprocessableEntity, ``, ErrCodeConflict},
		{"bad request on mutation", http.StatusBadRequest, ``, ErrCodeConflict},
		{"server error", http.StatusBadGateway, ``, ErrCodeTransport},
		{"rejected envelope", http.StatusOK, `{"success":false,"message":"already accepted"}`, ErrCodeConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			err := c.AcceptFriendRequest(context.Background(), "a@x.com", 1)
			require.Error(t, err)
			assert.Equal(t, tt.code, CodeOf(err), err.Error())
		})
	}
}

func TestHTTPClient_ConflictCarriesBackendMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"message":"already accepted"}`))
	})
	err := c.AcceptFriendRequest(context.Background(), "a@x.com", 1)

	var re *Error
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "already accepted", re.Message)
	assert.Equal(t, http.StatusConflict, re.Status)
	assert.Equal(t, "acceptFriendRequest", re.Op)
}

func TestHTTPClient_BadRequestOnReadIsTransport(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})
	_, err := c.Network(context.Background(), 1)
	assert.True(t, IsTransport(err))
}

func TestHTTPClient_RejectedReadIsTransport(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"message":"session expired"}`))
	})
	body, err := c.Network(context.Background(), 1)
	require.Error(t, err)
	assert.Nil(t, body)
	assert.True(t, IsTransport(err))

	var re *Error
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "session expired", re.Message)
	assert.Equal(t, "network", re.Op)
	assert.Equal(t, http.StatusOK, re.Status)
}

func TestHTTPClient_SuccessfulEnvelopeReadPassesThrough(t *testing.T) {
	payload := `{"success":true,"data":{"friendRequests":[]}}`
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(payload))
	})
	body, err := c.FriendRequests(context.Background(), 1)
	require.NoError(t, err)
	assert.JSONEq(t, payload, string(body))
}

func TestHTTPClient_MissingTokenIsAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("request must not be sent without a token")
	}))
	defer srv.Close()

	c, err := NewHTTPClient(srv.URL, StaticToken(""))
	require.NoError(t, err)

	_, err = c.Network(context.Background(), 1)
	assert.True(t, IsAuth(err))
}

func TestHTTPClient_TimeoutIsTransport(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c, err := NewHTTPClient(srv.URL, StaticToken("t"), WithTimeout(20*time.Millisecond))
	require.NoError(t, err)

	_, err = c.Network(context.Background(), 1)
	assert.True(t, IsTransport(err))
}

func TestNewHTTPClient_Validation(t *testing.T) {
	_, err := NewHTTPClient("ftp://example.com", StaticToken("t"))
	assert.Error(t, err)

	_, err = NewHTTPClient("https://example.com", nil)
	assert.Error(t, err)
}
