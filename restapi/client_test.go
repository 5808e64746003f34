package restapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAPI(t *testing.T, token string) *httptest.Server {
	t.Helper()

	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer "+token {
				http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	})
	api.HandleFunc("/chat/messages", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		w.Write([]byte(`{"messages":[
			{"id":"a","user":{"id":"u1","username":"alice"},"content":"one","createdAt":"2024-05-01T10:00:00Z"},
			{"id":"b","user":{"id":"u2","username":"bob"},"content":"two","createdAt":"2024-05-01T10:01:00Z"}]}`))
	}).Methods(http.MethodGet)
	api.HandleFunc("/chat/online", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]int{"count": 14})
	}).Methods(http.MethodGet)
	api.HandleFunc("/videos/search", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "8", r.URL.Query().Get("limit"))
		if r.URL.Query().Get("q") == "none" {
			w.Write([]byte(`{"videos":null}`))
			return
		}
		w.Write([]byte(`{"videos":[{"id":"v1","code":"abc123","title":"Trailer","thumbnail":"https://cdn/v1.jpg"}]}`))
	}).Methods(http.MethodGet)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestRecentMessages(t *testing.T) {
	srv := newTestAPI(t, "tok")
	c := NewClient(srv.URL+"/api/", "tok", nil, time.Second)

	msgs, err := c.RecentMessages(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "a", msgs[0].ID)
	assert.Equal(t, "bob", msgs[1].User.Username)
}

func TestOnlineCount(t *testing.T) {
	srv := newTestAPI(t, "tok")
	c := NewClient(srv.URL+"/api", "tok", nil, time.Second)

	n, err := c.OnlineCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 14, n)
}

func TestSearchVideos(t *testing.T) {
	srv := newTestAPI(t, "tok")
	c := NewClient(srv.URL+"/api", "tok", srv.Client(), 0)

	videos, err := c.SearchVideos(context.Background(), "ab")
	require.NoError(t, err)
	require.Len(t, videos, 1)
	assert.Equal(t, "abc123", videos[0].Code)

	videos, err = c.SearchVideos(context.Background(), "none")
	require.NoError(t, err)
	assert.NotNil(t, videos)
	assert.Empty(t, videos)
}

func TestUnexpectedStatus(t *testing.T) {
	srv := newTestAPI(t, "tok")
	c := NewClient(srv.URL+"/api", "wrong", nil, time.Second)

	_, err := c.OnlineCount(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
	assert.Contains(t, err.Error(), "401")
}

func TestNotFound(t *testing.T) {
	srv := newTestAPI(t, "tok")
	c := NewClient(srv.URL, "tok", nil, time.Second)

	_, err := c.RecentMessages(context.Background(), 2)
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
}
