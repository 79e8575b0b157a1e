//go:build functional

// Package functional drives a running storefront the way a browser does.
package functional

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/flexishop/internal/catalog"
	"github.com/vyrodovalexey/flexishop/internal/config"
	"github.com/vyrodovalexey/flexishop/internal/middleware"
	"github.com/vyrodovalexey/flexishop/internal/render"
	"github.com/vyrodovalexey/flexishop/internal/server"
	"github.com/vyrodovalexey/flexishop/internal/store"
)

// Environment variable names for test configuration.
const (
	EnvTestServerHost = "TEST_SERVER_HOST"
	EnvTestTimeout    = "TEST_TIMEOUT"
	EnvTestBackend    = "TEST_STORAGE_BACKEND"
)

// Default test configuration values.
const (
	DefaultTestHost         = "127.0.0.1"
	DefaultTestTimeout      = 30 * time.Second
	DefaultRequestTimeout   = 5 * time.Second
	DefaultWebSocketTimeout = 10 * time.Second
	DefaultShutdownTimeout  = 5 * time.Second
	DefaultBackend          = store.BackendFile
)

// testCatalog is served from a temporary file, the same way the binary loads it.
const testCatalog = `[
  {"id": 1, "name": "Wireless Headphones", "description": "Over-ear, 30h battery.", "brand": "Sonic", "category": "electronics", "price": 79.99, "rating": 4.5, "inStock": true, "image": "assets/images/headphones.jpg"},
  {"id": 2, "name": "Coffee Mug", "description": "Stoneware, 350ml.", "brand": "Brew", "category": "home", "price": 12.50, "rating": 4.0, "inStock": true, "image": "assets/images/mug.jpg"},
  {"id": 3, "name": "Smart Watch", "description": "Heart rate and GPS.", "brand": "Sonic", "category": "electronics", "price": 199.00, "rating": 3.5, "inStock": false, "image": "assets/images/watch.jpg"},
  {"id": 4, "name": "Yoga Mat", "description": "Non-slip, 6mm.", "brand": "Flex", "category": "sports", "price": 25.00, "rating": 5.0, "inStock": true, "image": "assets/images/mat.jpg"}
]`

// TestConfig holds test configuration loaded from environment.
type TestConfig struct {
	Host    string
	Timeout time.Duration
	Backend string
}

// LoadTestConfig loads test configuration from environment variables.
func LoadTestConfig() *TestConfig {
	cfg := &TestConfig{
		Host:    DefaultTestHost,
		Timeout: DefaultTestTimeout,
		Backend: DefaultBackend,
	}

	if host := os.Getenv(EnvTestServerHost); host != "" {
		cfg.Host = host
	}

	if timeoutStr := os.Getenv(EnvTestTimeout); timeoutStr != "" {
		if timeout, err := time.ParseDuration(timeoutStr); err == nil {
			cfg.Timeout = timeout
		}
	}

	if backend := os.Getenv(EnvTestBackend); backend != "" {
		cfg.Backend = backend
	}

	return cfg
}

// TestServer runs the storefront on a free port over a temporary data dir.
type TestServer struct {
	Server  *server.Server
	BaseURL string
	WSURL   string
	DataDir string

	kv      store.Store
	t       *testing.T
	mu      sync.Mutex
	started bool
}

// NewTestServer creates a storefront backed by a fresh data directory.
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()
	return NewTestServerWithDataDir(t, t.TempDir())
}

// NewTestServerWithDataDir creates a storefront whose persisted slots live in
// dataDir, so a second server over the same dir sees the first one's carts.
func NewTestServerWithDataDir(t *testing.T, dataDir string) *TestServer {
	t.Helper()

	testCfg := LoadTestConfig()

	listener, err := net.Listen("tcp", net.JoinHostPort(testCfg.Host, "0"))
	if err != nil {
		t.Fatalf("Failed to find available port: %v", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	listener.Close()

	catalogPath := filepath.Join(dataDir, "products.json")
	if err := os.WriteFile(catalogPath, []byte(testCatalog), 0o644); err != nil {
		t.Fatalf("Failed to write catalog: %v", err)
	}

	cfg := &config.Config{
		ServerPort:      port,
		LogLevel:        "error",
		ShutdownTimeout: DefaultShutdownTimeout,
		CORSOrigins:     []string{"*"},
		AuthMode:        "none",
		AssetPrefix:     config.DefaultAssetPrefix,
		NestedPrefix:    config.DefaultNestedPrefix,
		AssetsDir:       t.TempDir(),
		StorageBackend:  testCfg.Backend,
		DataDir:         filepath.Join(dataDir, "sessions"),
		SQLitePath:      filepath.Join(dataDir, "flexishop.db"),
		SessionCookie:   middleware.DefaultSessionCookie,
	}

	products, err := (&catalog.Loader{Source: catalog.NewFileSource(dataDir), Primary: "products.json"}).Load(context.Background())
	if err != nil {
		t.Fatalf("Failed to load catalog: %v", err)
	}
	cat, err := catalog.NewStore(products)
	if err != nil {
		t.Fatalf("Failed to build catalog: %v", err)
	}
	cat.AdjustImagePaths(cfg.AssetPrefix, cfg.NestedPrefix)

	kv, err := store.Open(store.Options{
		Backend:    cfg.StorageBackend,
		DataDir:    cfg.DataDir,
		SQLitePath: cfg.SQLitePath,
	})
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}

	srv := server.New(cfg, zap.NewNop(), server.Deps{
		Catalog:  cat,
		Store:    kv,
		Renderer: render.MustNew(),
	})

	return &TestServer{
		Server:  srv,
		BaseURL: fmt.Sprintf("http://%s", net.JoinHostPort(testCfg.Host, strconv.Itoa(port))),
		WSURL:   fmt.Sprintf("ws://%s/ws", net.JoinHostPort(testCfg.Host, strconv.Itoa(port))),
		DataDir: dataDir,
		kv:      kv,
		t:       t,
	}
}

// Start starts the test server.
func (ts *TestServer) Start() {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.started {
		return
	}

	go func() {
		if err := ts.Server.Start(); err != nil {
			ts.t.Logf("Server error: %v", err)
		}
	}()

	ts.waitForReady()
	ts.started = true
}

// waitForReady waits for the server to be ready to accept connections.
func (ts *TestServer) waitForReady() {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultTestTimeout)
	defer cancel()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			ts.t.Fatalf("Server did not become ready within timeout")
		case <-ticker.C:
			resp, err := http.Get(ts.BaseURL + "/ready")
			if err == nil {
				resp.Body.Close()
				if resp.StatusCode == http.StatusOK {
					return
				}
			}
		}
	}
}

// Stop shuts the server down and closes its store.
func (ts *TestServer) Stop() {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if !ts.started {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()

	if err := ts.Server.Shutdown(ctx); err != nil {
		ts.t.Logf("Server shutdown error: %v", err)
	}
	if err := ts.kv.Close(); err != nil {
		ts.t.Logf("Store close error: %v", err)
	}

	ts.started = false
}

// Browser is an HTTP client with its own cookie jar, standing in for one
// browsing context. Redirects are not followed so tests can assert them.
type Browser struct {
	client  *http.Client
	baseURL string
	t       *testing.T
}

// NewBrowser creates a browsing context with an empty cookie jar.
func NewBrowser(t *testing.T, baseURL string) *Browser {
	t.Helper()

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("Failed to create cookie jar: %v", err)
	}

	return &Browser{
		client: &http.Client{
			Timeout: DefaultRequestTimeout,
			Jar:     jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		baseURL: baseURL,
		t:       t,
	}
}

// SessionID returns the browsing-context cookie the server issued.
func (b *Browser) SessionID() string {
	u, _ := url.Parse(b.baseURL)
	for _, c := range b.client.Jar.Cookies(u) {
		if c.Name == middleware.DefaultSessionCookie {
			return c.Value
		}
	}
	return ""
}

// AdoptSession copies sid into the jar, as if the browser kept its cookie
// across a server restart.
func (b *Browser) AdoptSession(sid string) {
	u, _ := url.Parse(b.baseURL)
	b.client.Jar.SetCookies(u, []*http.Cookie{{Name: middleware.DefaultSessionCookie, Value: sid, Path: "/"}})
}

// Cookie returns the Cookie header value for dialing the badge socket.
func (b *Browser) Cookie() string {
	return middleware.DefaultSessionCookie + "=" + b.SessionID()
}

// Request represents an HTTP request configuration.
type Request struct {
	Method      string
	Path        string
	Body        io.Reader
	ContentType string
}

// Response represents an HTTP response.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Text returns the body as a string.
func (r *Response) Text() string {
	return string(r.Body)
}

// Do executes an HTTP request and returns the response.
func (b *Browser) Do(ctx context.Context, req Request) (*Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, b.baseURL+req.Path, req.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       body,
	}, nil
}

// Get performs a GET request.
func (b *Browser) Get(ctx context.Context, path string) (*Response, error) {
	return b.Do(ctx, Request{Method: http.MethodGet, Path: path})
}

// PostForm submits an HTML form.
func (b *Browser) PostForm(ctx context.Context, path string, values url.Values) (*Response, error) {
	return b.Do(ctx, Request{
		Method:      http.MethodPost,
		Path:        path,
		Body:        strings.NewReader(values.Encode()),
		ContentType: "application/x-www-form-urlencoded",
	})
}

// PostJSON sends a JSON API request.
func (b *Browser) PostJSON(ctx context.Context, path string, body any) (*Response, error) {
	return b.sendJSON(ctx, http.MethodPost, path, body)
}

// PutJSON sends a JSON API request.
func (b *Browser) PutJSON(ctx context.Context, path string, body any) (*Response, error) {
	return b.sendJSON(ctx, http.MethodPut, path, body)
}

func (b *Browser) sendJSON(ctx context.Context, method, path string, body any) (*Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}
	return b.Do(ctx, Request{
		Method:      method,
		Path:        path,
		Body:        bytes.NewReader(data),
		ContentType: "application/json",
	})
}

// APIResponse represents a generic API response structure.
type APIResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// CartLine is one line of the cart API response.
type CartLine struct {
	ID       int             `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
}

// CartSummary is the totals block of the cart API response.
type CartSummary struct {
	ItemCount int             `json:"itemCount"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Tax       decimal.Decimal `json:"tax"`
	Total     decimal.Decimal `json:"total"`
}

// CartResponse mirrors GET /api/v1/cart.
type CartResponse struct {
	Items   []CartLine  `json:"items"`
	Summary CartSummary `json:"summary"`
}

// ParseCart decodes a cart API response.
func ParseCart(t *testing.T, resp *Response) CartResponse {
	t.Helper()

	var apiResp APIResponse
	if err := json.Unmarshal(resp.Body, &apiResp); err != nil {
		t.Fatalf("Failed to parse API response: %v. Body: %s", err, resp.Text())
	}
	if !apiResp.Success {
		t.Fatalf("Expected success=true, got false. Error: %s", apiResp.Error)
	}

	var cart CartResponse
	if err := json.Unmarshal(apiResp.Data, &cart); err != nil {
		t.Fatalf("Failed to parse cart: %v", err)
	}
	return cart
}

// AssertStatusCode asserts that the response has the expected status code.
func AssertStatusCode(t *testing.T, resp *Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d. Body: %s", expected, resp.StatusCode, resp.Text())
	}
}

// AssertContains asserts that the response body contains want.
func AssertContains(t *testing.T, resp *Response, want string) {
	t.Helper()
	if !strings.Contains(resp.Text(), want) {
		t.Errorf("Expected body to contain %q", want)
	}
}

// AssertBadge asserts the header cart badge shows count.
func AssertBadge(t *testing.T, resp *Response, count int) {
	t.Helper()
	AssertContains(t, resp, fmt.Sprintf(`<span id="cart-count" class="cart-count">%d</span>`, count))
}

// LogTestStart logs the start of a test.
func LogTestStart(t *testing.T, testID, testName string) {
	t.Helper()
	t.Logf("Starting test %s: %s", testID, testName)
}

// LogTestEnd logs the end of a test.
func LogTestEnd(t *testing.T, testID string) {
	t.Helper()
	t.Logf("Completed test %s", testID)
}
