package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mahalle/mahalle-api/internal/config"
	"github.com/mahalle/mahalle-api/internal/logging"
	"github.com/mahalle/mahalle-api/internal/routes"
	"github.com/mahalle/mahalle-api/internal/sms"
)

type nopSender struct{}

func (nopSender) Send(context.Context, sms.Message) error { return nil }

func testConfig() config.Config {
	return config.Config{
		AppName:        "Mahalle",
		AppEnv:         "test",
		Port:           "0",
		StoreTimeout:   time.Second,
		RateLimitPerIP: 100,
		OTP: config.OTP{
			TTL:         5 * time.Minute,
			HourlyLimit: 10,
			MaxAttempts: 3,
			Lockout:     5 * time.Minute,
			ResendAfter: time.Minute,
			DevMode:     true,
			DevCode:     "123456",
		},
		JWT: config.JWT{
			AccessSecret:    "primary-secret-primary-secret-00",
			RefreshSecret:   "refresh-secret-refresh-secret-00",
			AccessTTL:       720 * time.Hour,
			RefreshTTL:      2160 * time.Hour,
			RegistrationTTL: 30 * time.Minute,
			Issuer:          "mahalle-auth",
		},
		SMS: config.SMS{Driver: "log", Timeout: time.Second},
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = cache.Close() })

	srv, err := New(testConfig(), nil, cache, logging.Discard(), WithSender(nopSender{}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func do(t *testing.T, app *fiber.App, method, path, bearer string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = strings.NewReader(string(raw))
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if bearer != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+bearer)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp, out
}

func TestSignInFlow(t *testing.T) {
	app := newTestServer(t).App()
	const phone = "05551234567"

	resp, body := do(t, app, fiber.MethodPost, "/auth/request-otp", "", fiber.Map{"phone": "+90 555 123 45 67"})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.EqualValues(t, 300, body["expires_in"])
	assert.EqualValues(t, 60, body["retry_after"])
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	resp, body = do(t, app, fiber.MethodPost, "/auth/verify-otp", "", fiber.Map{"phone": phone, "otp": "000000"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_code", body["error"])

	resp, body = do(t, app, fiber.MethodPost, "/auth/verify-otp", "", fiber.Map{"phone": phone, "otp": "123456"})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, true, body["is_new_user"])
	temp, _ := body["temp_token"].(string)
	require.NotEmpty(t, temp)

	resp, body = do(t, app, fiber.MethodPost, "/auth/register", temp, fiber.Map{"username": "ahmet", "neighborhood_id": routes.DevNeighborhoodID})
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	access, _ := body["access_token"].(string)
	refresh, _ := body["refresh_token"].(string)
	require.NotEmpty(t, access)
	require.NotEmpty(t, refresh)
	user, _ := body["user"].(map[string]any)
	assert.Equal(t, "ahmet", user["username"])
	assert.Equal(t, "user", user["role"])

	resp, body = do(t, app, fiber.MethodPost, "/auth/register", temp, fiber.Map{"username": "ahmet", "neighborhood_id": routes.DevNeighborhoodID})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "unauthenticated", body["error"])

	resp, body = do(t, app, fiber.MethodGet, "/auth/me", access, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	me, _ := body["user"].(map[string]any)
	assert.Equal(t, phone, me["phone"])

	resp, body = do(t, app, fiber.MethodPost, "/auth/refresh", "", fiber.Map{"refresh_token": refresh})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.NotEmpty(t, body["access_token"])

	resp, body = do(t, app, fiber.MethodPost, "/auth/refresh", "", fiber.Map{"refresh_token": access})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "invalid refresh token", body["message"])

	resp, _ = do(t, app, fiber.MethodPost, "/auth/logout", access, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = do(t, app, fiber.MethodGet, "/admin/permissions/"+user["id"].(string), access, nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "staff only", body["message"])

	// Signing in again returns a session for the now-known account.
	_, _ = do(t, app, fiber.MethodPost, "/auth/request-otp", "", fiber.Map{"phone": phone})
	resp, body = do(t, app, fiber.MethodPost, "/auth/verify-otp", "", fiber.Map{"phone": phone, "otp": "123456"})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, false, body["is_new_user"])
	assert.NotEmpty(t, body["access_token"])
}

func TestRateLimitedResponseCarriesRetryAfter(t *testing.T) {
	app := newTestServer(t).App()

	for i := 0; i < 10; i++ {
		resp, body := do(t, app, fiber.MethodPost, "/auth/request-otp", "", fiber.Map{"phone": "05550001122"})
		require.Equal(t, http.StatusOK, resp.StatusCode, body)
	}
	resp, body := do(t, app, fiber.MethodPost, "/auth/request-otp", "", fiber.Map{"phone": "05550001122"})
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "rate_limited", body["error"])
	assert.NotEmpty(t, resp.Header.Get(fiber.HeaderRetryAfter))
}

func TestAuthErrors(t *testing.T) {
	app := newTestServer(t).App()

	resp, body := do(t, app, fiber.MethodGet, "/auth/me", "", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "unauthenticated", body["error"])

	resp, body = do(t, app, fiber.MethodPost, "/auth/request-otp", "", fiber.Map{"phone": "abc"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_request", body["error"])

	resp, body = do(t, app, fiber.MethodPost, "/auth/verify-otp", "", fiber.Map{"phone": "05551234567", "otp": "123456"})
	require.Equal(t, http.StatusGone, resp.StatusCode)
	assert.Equal(t, "otp_expired", body["error"])

	resp, body = do(t, app, fiber.MethodGet, "/nope", "", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", body["error"])
}

func TestHealthz(t *testing.T) {
	app := newTestServer(t).App()

	resp, body := do(t, app, fiber.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status, _ := body["status"].(map[string]any)
	assert.Equal(t, "up", status["redis"])
	assert.Equal(t, "in-memory", status["postgres"])
}

func TestNew_RequiresStoresOutsideDev(t *testing.T) {
	cfg := testConfig()
	cfg.AppEnv = "staging"
	_, err := New(cfg, nil, nil, logging.Discard())
	assert.Error(t, err)
}
