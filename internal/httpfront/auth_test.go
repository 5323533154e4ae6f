package httpfront_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stackia/rtp2httpd/internal/httpfront"
)

func TestAuthenticateRejectsMissingToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/rtp/239.0.0.1:1234", nil)
	require.False(t, httpfront.Authenticate(r, "secret", ""))
}

func TestAuthenticateAcceptsQueryToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/rtp/239.0.0.1:1234?r2h-token=secret", nil)
	require.True(t, httpfront.Authenticate(r, "secret", ""))
}

func TestAuthenticateAcceptsCookieToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/rtp/239.0.0.1:1234", nil)
	r.AddCookie(&http.Cookie{Name: "r2h-token", Value: "secret"})
	require.True(t, httpfront.Authenticate(r, "secret", ""))
}

func TestAuthenticateAcceptsUserAgentToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/rtp/239.0.0.1:1234", nil)
	r.Header.Set("User-Agent", "Player/1.0 R2HTOKEN/secret")
	require.True(t, httpfront.Authenticate(r, "secret", ""))
}

func TestAuthenticateEnforcesHostname(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/rtp/239.0.0.1:1234", nil)
	r.Host = "wrong.example.com"
	require.False(t, httpfront.Authenticate(r, "", "gateway.example.com"))

	r.Host = "gateway.example.com:8080"
	require.True(t, httpfront.Authenticate(r, "", "gateway.example.com"))
}

func TestWantsSnapshot(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/rtp/239.0.0.1:1234?snapshot=1", nil)
	require.True(t, httpfront.WantsSnapshot(r))

	r = httptest.NewRequest(http.MethodGet, "/rtp/239.0.0.1:1234", nil)
	r.Header.Set("Accept", "image/jpeg")
	require.True(t, httpfront.WantsSnapshot(r))

	r = httptest.NewRequest(http.MethodGet, "/rtp/239.0.0.1:1234", nil)
	require.False(t, httpfront.WantsSnapshot(r))
}
