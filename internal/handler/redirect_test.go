package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"burnlink/internal/expiry"
	"burnlink/internal/gate"
	"burnlink/internal/handler"
	"burnlink/internal/repo"
	"burnlink/internal/resolver"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T {
	return &v
}

type fakeStore struct {
	mu    sync.Mutex
	links map[string]*repo.Link
}

func newFakeStore(links ...*repo.Link) *fakeStore {
	s := &fakeStore{links: make(map[string]*repo.Link)}
	for _, l := range links {
		s.links[l.ShortCode] = l
	}
	return s
}

func (s *fakeStore) GetByShortCode(_ context.Context, code string) (*repo.Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	link, ok := s.links[code]
	if !ok {
		return nil, repo.ErrLinkNotFound
	}
	snapshot := *link
	return &snapshot, nil
}

func (s *fakeStore) IncrementViews(_ context.Context, id int64) (int64, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, link := range s.links {
		if link.ID == id {
			link.CurrentViews++
			link.TotalClicks++
			return link.CurrentViews, link.TotalClicks, nil
		}
	}
	return 0, 0, repo.ErrLinkNotFound
}

func (s *fakeStore) Deactivate(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, link := range s.links {
		if link.ID == id {
			link.IsActive = false
			return nil
		}
	}
	return repo.ErrLinkNotFound
}

func (s *fakeStore) get(code string) *repo.Link {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.links[code]
}

func newServer(store *fakeStore) *echo.Echo {
	sessions := gate.NewSessions("test-secret")
	res := resolver.New(store, nil, expiry.NewMockClock(now))
	h := handler.NewRedirectHandler(res, sessions)

	e := echo.New()
	e.HEAD("/:shortCode", h.Head)
	e.GET("/:shortCode", h.Redirect)
	e.POST("/:shortCode/password", h.SubmitPassword)
	return e
}

func newLink(code string) *repo.Link {
	return &repo.Link{
		ID:         1,
		ShortCode:  code,
		TargetURL:  "https://example.com/target",
		ExpiryType: repo.ExpiryNone,
		IsActive:   true,
	}
}

func do(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func body(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	return m
}

func TestGet_RedirectsAndIncrements(t *testing.T) {
	store := newFakeStore(newLink("abc1234"))
	e := newServer(store)

	rec := do(e, httptest.NewRequest(http.MethodGet, "/abc1234", nil))

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://example.com/target", rec.Header().Get("Location"))
	assert.Equal(t, int64(1), store.get("abc1234").CurrentViews)
}

func TestGet_NotFound(t *testing.T) {
	e := newServer(newFakeStore())

	rec := do(e, httptest.NewRequest(http.MethodGet, "/missing1", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	resp := body(t, rec)
	assert.Equal(t, "Link not found", resp["error"])
}

func TestGet_TimeExpired(t *testing.T) {
	link := newLink("abc1234")
	link.ExpiryType = repo.ExpiryTime
	link.ExpiresAt = ptr(now.Add(-time.Hour))
	store := newFakeStore(link)
	e := newServer(store)

	rec := do(e, httptest.NewRequest(http.MethodGet, "/abc1234", nil))

	assert.Equal(t, http.StatusGone, rec.Code)
	resp := body(t, rec)
	assert.Equal(t, "Link expired", resp["error"])
	assert.Equal(t, "time_expired", resp["reason"])
	assert.Equal(t, "abc1234", resp["shortCode"])
	assert.NotEmpty(t, resp["expiredAt"])
	// The tombstone is persisted for the next request.
	assert.False(t, store.get("abc1234").IsActive)
}

func TestGet_ViewsExpiredCarriesLimitAndCustomMessage(t *testing.T) {
	link := newLink("abc1234")
	link.ExpiryType = repo.ExpiryViews
	link.MaxViews = ptr(int64(2))
	link.CurrentViews = 2
	link.CustomMessage = ptr("This offer has ended.")
	e := newServer(newFakeStore(link))

	rec := do(e, httptest.NewRequest(http.MethodGet, "/abc1234", nil))

	assert.Equal(t, http.StatusGone, rec.Code)
	resp := body(t, rec)
	assert.Equal(t, "views_expired", resp["reason"])
	assert.Equal(t, float64(2), resp["maxViews"])
	assert.Equal(t, "This offer has ended.", resp["message"])
}

func TestGet_LastViewScenario(t *testing.T) {
	// expiryType=BOTH, expiresAt in one hour, maxViews=1: first GET 302 and
	// consumes the final view, second GET 410 views_expired.
	link := newLink("abc1234")
	link.ExpiryType = repo.ExpiryBoth
	link.ExpiresAt = ptr(now.Add(time.Hour))
	link.MaxViews = ptr(int64(1))
	store := newFakeStore(link)
	e := newServer(store)

	first := do(e, httptest.NewRequest(http.MethodGet, "/abc1234", nil))
	assert.Equal(t, http.StatusFound, first.Code)
	assert.Equal(t, int64(1), store.get("abc1234").CurrentViews)
	assert.False(t, store.get("abc1234").IsActive)

	second := do(e, httptest.NewRequest(http.MethodGet, "/abc1234", nil))
	assert.Equal(t, http.StatusGone, second.Code)
	assert.Equal(t, "views_expired", body(t, second)["reason"])
}

func TestHead_NeverIncrements(t *testing.T) {
	active := newLink("active12")
	expired := newLink("expired1")
	expired.ID = 2
	expired.ExpiryType = repo.ExpiryTime
	expired.ExpiresAt = ptr(now.Add(-time.Hour))
	gated := newLink("gated123")
	gated.ID = 3
	hash, err := bcrypt.GenerateFromPassword([]byte("secret123"), bcrypt.MinCost)
	require.NoError(t, err)
	gated.PasswordHash = ptr(string(hash))

	store := newFakeStore(active, expired, gated)
	e := newServer(store)

	tests := []struct {
		code string
		want int
	}{
		{"active12", http.StatusOK},
		{"expired1", http.StatusGone},
		{"gated123", http.StatusUnauthorized},
		{"missing1", http.StatusNotFound},
	}

	for _, tt := range tests {
		rec := do(e, httptest.NewRequest(http.MethodHead, "/"+tt.code, nil))
		assert.Equal(t, tt.want, rec.Code, "HEAD /%s", tt.code)
	}

	assert.Equal(t, int64(0), store.get("active12").CurrentViews)
	assert.Equal(t, int64(0), store.get("gated123").CurrentViews)
}

func TestPasswordFlow(t *testing.T) {
	link := newLink("abc1234")
	hash, err := bcrypt.GenerateFromPassword([]byte("secret123"), bcrypt.MinCost)
	require.NoError(t, err)
	link.PasswordHash = ptr(string(hash))
	store := newFakeStore(link)
	e := newServer(store)

	// Without a session the link demands a password.
	rec := do(e, httptest.NewRequest(http.MethodGet, "/abc1234", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	resp := body(t, rec)
	assert.Equal(t, true, resp["requiresPassword"])
	assert.Equal(t, "abc1234", resp["shortCode"])
	assert.Equal(t, int64(0), store.get("abc1234").CurrentViews)

	// Wrong password: 401, no session cookie, no state change.
	rec = do(e, postPassword("abc1234", "wrong"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, rec.Result().Cookies())
	assert.Equal(t, int64(0), store.get("abc1234").CurrentViews)

	// Correct password: session established, redirected back to the link.
	rec = do(e, postPassword("abc1234", "secret123"))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/abc1234", rec.Header().Get("Location"))
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)

	// The session carries the follow-up GET without re-submitting.
	req := httptest.NewRequest(http.MethodGet, "/abc1234", nil)
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}
	rec = do(e, req)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://example.com/target", rec.Header().Get("Location"))
	assert.Equal(t, int64(1), store.get("abc1234").CurrentViews)
}

func TestPassword_LinkWithoutGateIs404(t *testing.T) {
	e := newServer(newFakeStore(newLink("abc1234")))

	rec := do(e, postPassword("abc1234", "anything"))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(e, postPassword("missing1", "anything"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func postPassword(code, password string) *http.Request {
	form := url.Values{}
	form.Set("password", password)
	req := httptest.NewRequest(http.MethodPost, "/"+code+"/password", strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	return req
}
