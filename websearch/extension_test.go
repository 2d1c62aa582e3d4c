package websearch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signTestToken(t *testing.T, secret []byte) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{})
	signed, err := tok.SignedString(secret)
	require.NoError(t, err)
	return signed
}

func TestExtensionProviderUnavailableBeforeAttach(t *testing.T) {
	p := NewExtensionProvider([]byte("secret"))
	assert.False(t, p.IsAvailable())
	assert.Equal(t, "extension", p.Name())

	_, err := p.Search(context.Background(), "golang", Options{})
	assert.Error(t, err, "Search before Attach should fail rather than hang")
}

func TestExtensionProviderAttachRejectsBadToken(t *testing.T) {
	secret := []byte("test-secret")
	p := NewExtensionProvider(secret)

	attachErr := make(chan error, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		attachErr <- p.Attach(conn, "not-a-valid-token")
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv.URL), nil)
	require.NoError(t, err)
	defer conn.Close()

	select {
	case err := <-attachErr:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Attach to reject the bad token")
	}
	assert.False(t, p.IsAvailable())
}

func TestExtensionProviderSearchRoundTrip(t *testing.T) {
	secret := []byte("test-secret")
	p := NewExtensionProvider(secret)
	token := signTestToken(t, secret)

	attached := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		require.NoError(t, p.Attach(conn, token))
		close(attached)

		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var req extensionRequest
		require.NoError(t, json.Unmarshal(data, &req))
		assert.Equal(t, "golang release notes", req.Query)

		payload, _ := json.Marshal(extensionResponse{
			ID:      req.ID,
			Results: []SearchResult{{Title: "Go 1.25 release notes", URL: "https://go.dev/doc/go1.25"}},
		})
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, payload))
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv.URL), nil)
	require.NoError(t, err)
	defer conn.Close()

	select {
	case <-attached:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the provider to attach")
	}
	require.True(t, p.IsAvailable())

	results, err := p.Search(context.Background(), "golang release notes", Options{MaxResults: 5})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Go 1.25 release notes", results[0].Title)
	assert.Equal(t, "extension", results[0].Source)
	assert.False(t, results[0].FetchedAt.IsZero())
}

func TestExtensionProviderSkippedBySearchServiceWhenUnattached(t *testing.T) {
	ext := NewExtensionProvider([]byte("secret"))
	svc := NewService([]Provider{ext})
	defer svc.Close()

	results, err := svc.Search(context.Background(), "golang", Options{})
	require.NoError(t, err, "an unattached extension provider should be skipped, not fail the search")
	assert.Empty(t, results)
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}
