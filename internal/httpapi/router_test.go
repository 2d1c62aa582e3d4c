// Tests only exercise routes that don't require a live chat/embedding
// engine sidecar (spec §7's ingest/query paths are covered at the
// localrag.Engine level, in localrag_test.go).
package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelai/localrag"
)

func newTestRouter(t *testing.T, apiKey string) http.Handler {
	t.Helper()
	cfg := localrag.DefaultConfig()
	cfg.DBPath = filepath.Join(t.TempDir(), "test.db")

	eng, err := localrag.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close() })

	return NewRouter(eng, RouterConfig{APIKey: apiKey})
}

func TestHealthNeedsNoAuth(t *testing.T) {
	r := newTestRouter(t, "secret")
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthMiddlewareRejectsMissingOrWrongBearer(t *testing.T) {
	r := newTestRouter(t, "secret")

	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/documents", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/documents", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestEmptyAPIKeyDisablesAuth(t *testing.T) {
	r := newTestRouter(t, "")
	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListDocumentsEmptyReturnsEmptyArray(t *testing.T) {
	r := newTestRouter(t, "")
	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Documents []localrag.Document `json:"documents"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Empty(t, body.Documents)
}

func TestDeleteUnknownDocumentReturns404(t *testing.T) {
	r := newTestRouter(t, "")
	req := httptest.NewRequest(http.MethodDelete, "/documents/999", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteInvalidIDReturns400(t *testing.T) {
	r := newTestRouter(t, "")
	req := httptest.NewRequest(http.MethodDelete, "/documents/not-a-number", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConversationLifecycle(t *testing.T) {
	r := newTestRouter(t, "")

	body, _ := json.Marshal(map[string]string{"title": "My Chat"})
	req := httptest.NewRequest(http.MethodPost, "/conversations", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var created struct {
		ConversationID int64 `json:"conversation_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Positive(t, created.ConversationID)

	req = httptest.NewRequest(http.MethodGet, "/conversations", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "My Chat")

	req = httptest.NewRequest(http.MethodGet, "/conversations/"+strconv.FormatInt(created.ConversationID, 10)+"/messages", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var messages struct {
		Messages []any `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &messages))
	assert.Empty(t, messages.Messages)
}

func TestSettingsRoundTrip(t *testing.T) {
	r := newTestRouter(t, "")

	req := httptest.NewRequest(http.MethodGet, "/settings/topK", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	body, _ := json.Marshal(map[string]string{"value": "10"})
	req = httptest.NewRequest(http.MethodPut, "/settings/topK", bytes.NewReader(body))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/settings/topK", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"10"`)
}

func TestIngestRejectsMissingPath(t *testing.T) {
	r := newTestRouter(t, "")
	body, _ := json.Marshal(map[string]string{})
	req := httptest.NewRequest(http.MethodPost, "/ingest", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQueryRejectsEmptyQuestion(t *testing.T) {
	r := newTestRouter(t, "")
	body, _ := json.Marshal(map[string]string{"question": ""})
	req := httptest.NewRequest(http.MethodPost, "/query", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// TestExtensionWSRejectsNonUpgradeRequest exercises the /ws seam without
// a real websocket client: gorilla/websocket's Upgrader itself rejects a
// plain GET that lacks the Upgrade/Connection handshake headers, and does
// so before the engine's API-key auth would even apply (the route sits
// outside that middleware group, spec §4.7's own JWT is its access
// control).
func TestExtensionWSRejectsNonUpgradeRequest(t *testing.T) {
	r := newTestRouter(t, "secret")
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
