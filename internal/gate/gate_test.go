package gate_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"burnlink/internal/gate"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-session-secret"

func requestWithCookies(t *testing.T, rec *httptest.ResponseRecorder) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/abc1234", nil)
	for _, cookie := range rec.Result().Cookies() {
		req.AddCookie(cookie)
	}
	return req
}

func TestVerified_NoSession(t *testing.T) {
	sessions := gate.NewSessions(secret)

	req := httptest.NewRequest(http.MethodGet, "/abc1234", nil)
	rec := httptest.NewRecorder()

	assert.False(t, sessions.Verified(rec, req, "abc1234"))
}

func TestMarkVerified_ThenVerified(t *testing.T) {
	sessions := gate.NewSessions(secret)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/abc1234/password", nil)
	require.NoError(t, sessions.MarkVerified(rec, req, "abc1234"))
	require.NotEmpty(t, rec.Result().Cookies())

	followUp := requestWithCookies(t, rec)
	assert.True(t, sessions.Verified(httptest.NewRecorder(), followUp, "abc1234"))
}

func TestVerified_IsScopedToShortCode(t *testing.T) {
	sessions := gate.NewSessions(secret)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/abc1234/password", nil)
	require.NoError(t, sessions.MarkVerified(rec, req, "abc1234"))

	followUp := requestWithCookies(t, rec)
	assert.False(t, sessions.Verified(httptest.NewRecorder(), followUp, "other456"))
}

func TestVerified_RejectsTamperedCookie(t *testing.T) {
	sessions := gate.NewSessions(secret)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/abc1234/password", nil)
	require.NoError(t, sessions.MarkVerified(rec, req, "abc1234"))

	tampered := httptest.NewRequest(http.MethodGet, "/abc1234", nil)
	for _, cookie := range rec.Result().Cookies() {
		tampered.AddCookie(&http.Cookie{Name: cookie.Name, Value: cookie.Value + "tamper"})
	}
	assert.False(t, sessions.Verified(httptest.NewRecorder(), tampered, "abc1234"))
}

func TestVerified_DifferentSecretCannotForge(t *testing.T) {
	sessions := gate.NewSessions(secret)
	forger := gate.NewSessions("other-secret")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/abc1234/password", nil)
	require.NoError(t, forger.MarkVerified(rec, req, "abc1234"))

	followUp := requestWithCookies(t, rec)
	assert.False(t, sessions.Verified(httptest.NewRecorder(), followUp, "abc1234"))
}
