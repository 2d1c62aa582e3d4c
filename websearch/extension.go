package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
)

// extensionRequest/extensionResponse are the bridge's wire messages: the
// companion browser helper performs the actual search natively (no
// proxy, no CORS) and replies on the same connection.
type extensionRequest struct {
	ID         string   `json:"id"`
	Type       string   `json:"type"`
	Query      string   `json:"query"`
	MaxResults int      `json:"maxResults,omitempty"`
	Sources    []string `json:"sources,omitempty"`
}

type extensionResponse struct {
	ID      string         `json:"id"`
	Results []SearchResult `json:"results"`
	Error   string         `json:"error,omitempty"`
}

// ExtensionProvider searches through a companion browser extension over
// a persistent WebSocket, authenticated with a signed JWT (spec §4.7).
// Availability is dynamic: it tracks whether the extension is currently
// connected.
type ExtensionProvider struct {
	mu        sync.Mutex
	conn      *websocket.Conn
	secret    []byte
	connected bool
	pending   map[string]chan extensionResponse
}

// NewExtensionProvider returns a provider with no connection yet;
// Attach binds the provider to a live browser-extension socket.
func NewExtensionProvider(jwtSecret []byte) *ExtensionProvider {
	return &ExtensionProvider{
		secret:  jwtSecret,
		pending: make(map[string]chan extensionResponse),
	}
}

func (p *ExtensionProvider) Name() string { return "extension" }

func (p *ExtensionProvider) IsAvailable() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// Attach binds conn as the active extension socket after verifying the
// bearer token it opened with, and starts the read loop that dispatches
// responses to pending Search calls.
func (p *ExtensionProvider) Attach(conn *websocket.Conn, bearerToken string) error {
	if _, err := jwt.Parse(bearerToken, func(t *jwt.Token) (interface{}, error) {
		return p.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"})); err != nil {
		return fmt.Errorf("verifying extension token: %w", err)
	}

	p.mu.Lock()
	p.conn = conn
	p.connected = true
	p.mu.Unlock()

	go p.readLoop(conn)
	return nil
}

// Detach marks the provider unavailable, e.g. on socket close.
func (p *ExtensionProvider) Detach() {
	p.mu.Lock()
	p.connected = false
	p.conn = nil
	p.mu.Unlock()
}

func (p *ExtensionProvider) readLoop(conn *websocket.Conn) {
	defer p.Detach()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var resp extensionResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			continue
		}
		p.mu.Lock()
		ch, ok := p.pending[resp.ID]
		if ok {
			delete(p.pending, resp.ID)
		}
		p.mu.Unlock()
		if ok {
			ch <- resp
		}
	}
}

func (p *ExtensionProvider) Search(ctx context.Context, query string, opts Options) ([]SearchResult, error) {
	p.mu.Lock()
	conn := p.conn
	connected := p.connected
	p.mu.Unlock()
	if !connected || conn == nil {
		return nil, fmt.Errorf("extension provider not connected")
	}

	id := fmt.Sprintf("%d", time.Now().UnixNano())
	req := extensionRequest{ID: id, Type: "search", Query: query, MaxResults: opts.MaxResults, Sources: opts.Sources}

	ch := make(chan extensionResponse, 1)
	p.mu.Lock()
	p.pending[id] = ch
	p.mu.Unlock()

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshalling extension request: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		p.mu.Lock()
		delete(p.pending, id)
		p.mu.Unlock()
		return nil, fmt.Errorf("writing extension request: %w", err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	select {
	case resp := <-ch:
		if resp.Error != "" {
			return nil, fmt.Errorf("extension search failed: %s", resp.Error)
		}
		now := time.Now()
		for i := range resp.Results {
			resp.Results[i].Source = p.Name()
			resp.Results[i].FetchedAt = now
		}
		return resp.Results, nil
	case <-time.After(timeout):
		p.mu.Lock()
		delete(p.pending, id)
		p.mu.Unlock()
		return nil, fmt.Errorf("extension search timed out")
	case <-ctx.Done():
		p.mu.Lock()
		delete(p.pending, id)
		p.mu.Unlock()
		return nil, ctx.Err()
	}
}
