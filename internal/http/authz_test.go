package http_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apphttp "storefront/internal/http"
	"storefront/internal/repos"
)

func TestAdminRequiresRole(t *testing.T) {
	s := newServer(t, apphttp.Options{})

	resp, env := s.do(t, call{method: "GET", path: "/api/admin/users"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)

	alice, _ := s.login(t, "alice@storefront.test")
	resp, env = s.do(t, call{method: "GET", path: "/api/admin/users", token: alice})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)

	e, ok := s.logs.find("access.denied.admin")
	require.True(t, ok)
	assert.Equal(t, "user", e.Fields["role"])

	admin, _ := s.login(t, "admin@storefront.test")
	resp, env = s.do(t, call{method: "GET", path: "/api/admin/users", token: admin})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var users []map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &users))
	assert.Len(t, users, 3)
}

func TestAdminStockUpdate(t *testing.T) {
	s := newServer(t, apphttp.Options{})
	admin, _ := s.login(t, "admin@storefront.test")

	resp, env := s.do(t, call{method: "PUT", path: "/api/admin/inventory", token: admin,
		body: map[string]any{"product_id": "p-mouse", "qty": 7}})
	require.Equal(t, http.StatusOK, resp.StatusCode, env.Message)
	var avail struct {
		Status string `json:"status"`
		Qty    int    `json:"qty"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &avail))
	assert.Equal(t, 7, avail.Qty)
	assert.Equal(t, "IN_STOCK", avail.Status)

	resp, _ = s.do(t, call{method: "PUT", path: "/api/admin/inventory", token: admin,
		body: map[string]any{"product_id": "p-mouse", "qty": -1}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestForeignOrderIsNotFound(t *testing.T) {
	s := newServer(t, apphttp.Options{})
	alice, _ := s.login(t, "alice@storefront.test")
	bob, _ := s.login(t, "bob@storefront.test")

	resp, env := s.do(t, call{method: "POST", path: "/api/orders", token: alice,
		body: map[string]any{"items": []map[string]any{{"product_id": "p-webcam", "quantity": 1}}}})
	require.Equal(t, http.StatusCreated, resp.StatusCode, env.Message)
	var order struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &order))

	resp, _ = s.do(t, call{method: "GET", path: "/api/orders/" + order.ID, token: bob})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	e, ok := s.logs.find("access.denied.order")
	require.True(t, ok)
	assert.Equal(t, order.ID, e.Fields["order_id"])

	resp, _ = s.do(t, call{method: "POST", path: "/api/payments/preference", token: bob,
		body: map[string]string{"order_id": order.ID}})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Empty(t, s.gw.prefs)

	resp, _ = s.do(t, call{method: "GET", path: "/api/orders/" + order.ID, token: alice})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestInvalidTokenIsAnonymous(t *testing.T) {
	s := newServer(t, apphttp.Options{})
	resp, _ := s.do(t, call{method: "GET", path: "/api/cart", token: "not-a-jwt"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_, ok := s.logs.find("auth.token.invalid")
	assert.True(t, ok)
}

func TestCookieSessionNeedsCSRFToken(t *testing.T) {
	s := newServer(t, apphttp.Options{})
	_, cookies := s.login(t, "alice@storefront.test")
	add := map[string]any{"product_id": "p-webcam", "quantity": 1}

	resp, env := s.do(t, call{method: "POST", path: "/api/cart/add", body: add, cookies: cookies})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "CSRF_FAILED", env.Error.Code)
	_, ok := s.logs.find("csrf.fail")
	assert.True(t, ok)

	// A safe request hands out the token cookie.
	resp, _ = s.do(t, call{method: "GET", path: "/api/cart", cookies: cookies})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	csrfCookie := cookieNamed(resp.Cookies(), "csrf_")
	require.NotNil(t, csrfCookie)

	resp, env = s.do(t, call{method: "POST", path: "/api/cart/add", body: add,
		cookies: append(cookies, csrfCookie), header: map[string]string{"X-CSRF-Token": csrfCookie.Value}})
	assert.Equal(t, http.StatusOK, resp.StatusCode, env.Message)
}

func TestBearerSkipsCSRF(t *testing.T) {
	s := newServer(t, apphttp.Options{})
	tok, cookies := s.login(t, "alice@storefront.test")
	resp, env := s.do(t, call{method: "POST", path: "/api/cart/add", token: tok, cookies: cookies,
		body: map[string]any{"product_id": "p-webcam", "quantity": 1}})
	assert.Equal(t, http.StatusOK, resp.StatusCode, env.Message)
}

func TestLoginRotatesSessionCookie(t *testing.T) {
	s := newServer(t, apphttp.Options{})
	_, first := s.login(t, "alice@storefront.test")
	oldSID := cookieNamed(first, "sid")
	require.NotNil(t, oldSID)

	resp, _ := s.do(t, call{method: "GET", path: "/api/products", cookies: first})
	csrfCookie := cookieNamed(resp.Cookies(), "csrf_")
	require.NotNil(t, csrfCookie)

	resp, env := s.do(t, call{method: "POST", path: "/api/auth/login",
		body:    map[string]string{"email": "alice@storefront.test", "password": repos.DemoPassword},
		cookies: append(first, csrfCookie),
		header:  map[string]string{"X-CSRF-Token": csrfCookie.Value}})
	require.Equal(t, http.StatusOK, resp.StatusCode, env.Message)
	newSID := cookieNamed(resp.Cookies(), "sid")
	require.NotNil(t, newSID)
	assert.NotEqual(t, oldSID.Value, newSID.Value)

	resp, _ = s.do(t, call{method: "GET", path: "/api/auth/session", cookies: []*http.Cookie{oldSID}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp, _ = s.do(t, call{method: "GET", path: "/api/auth/session", cookies: []*http.Cookie{newSID}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestChangePassword(t *testing.T) {
	s := newServer(t, apphttp.Options{})
	tok, _ := s.login(t, "bob@storefront.test")

	resp, _ := s.do(t, call{method: "PUT", path: "/api/user/password",
		body: map[string]string{"current_password": repos.DemoPassword, "new_password": "N3w!Passw0rd"}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, env := s.do(t, call{method: "PUT", path: "/api/user/password", token: tok,
		body: map[string]string{"current_password": "wrong", "new_password": "N3w!Passw0rd"}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "INVALID_CREDENTIALS", env.Error.Code)
	_, ok := s.logs.find("user.password.change.fail")
	assert.True(t, ok)

	resp, _ = s.do(t, call{method: "PUT", path: "/api/user/password", token: tok,
		body: map[string]string{"current_password": repos.DemoPassword, "new_password": "weak"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, env = s.do(t, call{method: "PUT", path: "/api/user/password", token: tok,
		body: map[string]string{"current_password": repos.DemoPassword, "new_password": "N3w!Passw0rd"}})
	require.Equal(t, http.StatusOK, resp.StatusCode, env.Message)
	_, ok = s.logs.find("user.password.change")
	assert.True(t, ok)

	resp, _ = s.do(t, call{method: "POST", path: "/api/auth/login",
		body: map[string]string{"email": "bob@storefront.test", "password": repos.DemoPassword}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp, env = s.do(t, call{method: "POST", path: "/api/auth/login",
		body: map[string]string{"email": "bob@storefront.test", "password": "N3w!Passw0rd"}})
	assert.Equal(t, http.StatusOK, resp.StatusCode, env.Message)
}
