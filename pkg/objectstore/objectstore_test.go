package objectstore

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/mahaj/convosync/pkg/errs"
)

func TestUpload(t *testing.T) {
	var got *http.Request
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		body, _ = io.ReadAll(r.Body)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "service-key", zerolog.Nop())
	err := c.Upload(context.Background(), "chat-media", "image/image_abc.jpg", []byte("bytes"), "image/jpeg")
	require.NoError(t, err)

	require.Equal(t, http.MethodPost, got.Method)
	require.Equal(t, "/storage/v1/object/chat-media/image/image_abc.jpg", got.URL.Path)
	require.Equal(t, "Bearer service-key", got.Header.Get("Authorization"))
	require.Equal(t, "image/jpeg", got.Header.Get("Content-Type"))
	require.Equal(t, "true", got.Header.Get("x-upsert"))
	require.Equal(t, "bytes", string(body))
}

func TestUploadServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bucket not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "service-key", zerolog.Nop())
	err := c.Upload(context.Background(), "missing", "a.jpg", nil, "image/jpeg")
	require.Error(t, err)
	require.Equal(t, errs.Network, errs.KindOf(err))
	require.Contains(t, err.Error(), "404")
}

func TestPublicURL(t *testing.T) {
	c := NewClient("https://storage.test/", "k", zerolog.Nop())
	require.Equal(t,
		"https://storage.test/storage/v1/object/public/chat-media/image/a.jpg",
		c.PublicURL("chat-media", "image/a.jpg"))
}

func TestRemove(t *testing.T) {
	var payload map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "service-key", zerolog.Nop())
	require.NoError(t, c.Remove(context.Background(), "chat-media", []string{"a.jpg", "b.jpg"}))
	require.Equal(t, []string{"a.jpg", "b.jpg"}, payload["prefixes"])
}
