package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apphttp "storefront/internal/http"
	applog "storefront/internal/log"
	"storefront/internal/repos"
	"storefront/pkg/mercadopago"
)

type envelope struct {
	Success bool            `json:"success"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Meta struct {
		RequestID  string `json:"requestId"`
		Pagination *struct {
			Page       int `json:"page"`
			TotalItems int `json:"totalItems"`
		} `json:"pagination"`
	} `json:"meta"`
}

type logEntry struct {
	Action string         `json:"action"`
	Fields map[string]any `json:"fields"`
}

type lockedBuf struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (l *lockedBuf) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.Write(p)
}

func (l *lockedBuf) entries() []logEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []logEntry
	for _, line := range strings.Split(l.b.String(), "\n") {
		var e logEntry
		if json.Unmarshal([]byte(line), &e) == nil && e.Action != "" {
			out = append(out, e)
		}
	}
	return out
}

// find returns the most recent entry logged under action.
func (l *lockedBuf) find(action string) (logEntry, bool) {
	entries := l.entries()
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Action == action {
			return entries[i], true
		}
	}
	return logEntry{}, false
}

// fakeGateway stands in for MercadoPago.
type fakeGateway struct {
	mu       sync.Mutex
	payments map[string]*mercadopago.Payment
	prefs    []mercadopago.PreferenceRequest
}

func (g *fakeGateway) CreatePreference(_ context.Context, req mercadopago.PreferenceRequest) (*mercadopago.Preference, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prefs = append(g.prefs, req)
	id := fmt.Sprintf("pref-%d", len(g.prefs))
	return &mercadopago.Preference{ID: id, InitPoint: "https://mp.example/init/" + id}, nil
}

func (g *fakeGateway) GetPayment(_ context.Context, id string) (*mercadopago.Payment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.payments[id]
	if !ok {
		return nil, &mercadopago.APIError{StatusCode: 404, Message: "not found"}
	}
	return p, nil
}

func (g *fakeGateway) approve(paymentID, orderID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.payments[paymentID] = &mercadopago.Payment{Status: mercadopago.StatusApproved, Metadata: map[string]any{"order_id": orderID}}
}

type testServer struct {
	app  *fiber.App
	db   *sqlx.DB
	gw   *fakeGateway
	logs *lockedBuf
}

func newServer(t *testing.T, opts apphttp.Options) *testServer {
	t.Helper()
	logs := &lockedBuf{}
	applog.Setup("test", logs)
	t.Cleanup(func() { applog.Setup("test", io.Discard) })

	db, err := repos.OpenDB("sqlite", ":memory:")
	require.NoError(t, err)
	require.NoError(t, repos.SeedDemo(db))
	t.Cleanup(func() { _ = db.Close() })

	gw := &fakeGateway{payments: map[string]*mercadopago.Payment{}}
	if opts.Config.JWTSecret == "" {
		opts.Config.JWTSecret = "test-secret"
	}
	opts.Config.TokenTTL = time.Hour
	opts.Config.SiteURL = "https://shop.example"
	opts.Config.Currency = "COP"
	opts.Config.MediaDir = t.TempDir()
	opts.DB = db
	opts.Gateway = gw

	return &testServer{app: apphttp.New(opts), db: db, gw: gw, logs: logs}
}

type call struct {
	method  string
	path    string
	body    any
	token   string
	cookies []*http.Cookie
	header  map[string]string
}

func (s *testServer) do(t *testing.T, c call) (*http.Response, envelope) {
	t.Helper()
	var r io.Reader
	if c.body != nil {
		b, err := json.Marshal(c.body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(c.method, c.path, r)
	if c.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range c.header {
		req.Header.Set(k, v)
	}
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var env envelope
	_ = json.Unmarshal(raw, &env)
	return resp, env
}

func cookieNamed(cookies []*http.Cookie, name string) *http.Cookie {
	for _, ck := range cookies {
		if ck.Name == name {
			return ck
		}
	}
	return nil
}

// login returns the bearer token and the response cookies.
func (s *testServer) login(t *testing.T, email string) (string, []*http.Cookie) {
	t.Helper()
	resp, env := s.do(t, call{method: "POST", path: "/api/auth/login", body: map[string]string{
		"email": email, "password": repos.DemoPassword,
	}})
	require.Equal(t, http.StatusOK, resp.StatusCode, env.Message)
	var sess struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &sess))
	require.NotEmpty(t, sess.Token)
	return sess.Token, resp.Cookies()
}

func TestNotFoundEnvelope(t *testing.T) {
	s := newServer(t, apphttp.Options{})
	resp, env := s.do(t, call{method: "GET", path: "/nope"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
	assert.NotEmpty(t, env.Meta.RequestID)
}

func TestHealthz(t *testing.T) {
	s := newServer(t, apphttp.Options{})
	resp, err := s.app.Test(httptest.NewRequest("GET", "/healthz", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestProductsArePaginated(t *testing.T) {
	s := newServer(t, apphttp.Options{})
	resp, env := s.do(t, call{method: "GET", path: "/api/products?limit=3&page=1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var items []map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &items))
	assert.Len(t, items, 3)
	require.NotNil(t, env.Meta.Pagination)
	assert.Equal(t, 4, env.Meta.Pagination.TotalItems)
}

func TestCheckoutReturnPage(t *testing.T) {
	s := newServer(t, apphttp.Options{})
	resp, err := s.app.Test(httptest.NewRequest("GET", "/checkout/success?external_reference=ord-123&payment_id=999", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "Payment received")
	assert.Contains(t, string(body), "ord-123")
	assert.Contains(t, string(body), "999")
}

func TestMediaTraversalBlocked(t *testing.T) {
	s := newServer(t, apphttp.Options{})
	resp, err := s.app.Test(httptest.NewRequest("GET", "/media/%2e%2e/secret", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
