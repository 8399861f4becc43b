package handler

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"burnlink/internal/expiry"
	"burnlink/internal/gate"
	"burnlink/internal/repo"
	"burnlink/internal/resolver"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// RedirectHandler owns the public-facing redirect surface:
// HEAD/GET /{shortCode} and POST /{shortCode}/password.
type RedirectHandler struct {
	resolver *resolver.Resolver
	sessions *gate.Sessions
}

func NewRedirectHandler(res *resolver.Resolver, sessions *gate.Sessions) *RedirectHandler {
	return &RedirectHandler{resolver: res, sessions: sessions}
}

type expiredResponse struct {
	Error     string     `json:"error"`
	Message   string     `json:"message"`
	ShortCode string     `json:"shortCode"`
	Reason    string     `json:"reason"`
	ExpiredAt *time.Time `json:"expiredAt,omitempty"`
	MaxViews  *int64     `json:"maxViews,omitempty"`
}

type passwordResponse struct {
	Error            string `json:"error"`
	Message          string `json:"message"`
	ShortCode        string `json:"shortCode"`
	RequiresPassword bool   `json:"requiresPassword"`
}

// Head handles HEAD /{shortCode}: a status probe that never increments
// counters or logs clicks, so clients can pre-flight the real GET.
func (h *RedirectHandler) Head(c echo.Context) error {
	ctx := c.Request().Context()
	code := c.Param("shortCode")

	outcome, err := h.resolver.Peek(ctx, code)
	if err != nil {
		log.Error().Err(err).Str("short_code", code).Msg("status probe failed")
		return c.NoContent(http.StatusInternalServerError)
	}

	switch outcome.Kind {
	case resolver.OutcomeNotFound:
		return c.NoContent(http.StatusNotFound)
	case resolver.OutcomeExpired:
		return c.NoContent(http.StatusGone)
	case resolver.OutcomePasswordRequired:
		return c.NoContent(http.StatusUnauthorized)
	default:
		return c.NoContent(http.StatusOK)
	}
}

// Redirect handles GET /{shortCode}: the full resolution path.
func (h *RedirectHandler) Redirect(c echo.Context) error {
	ctx := c.Request().Context()
	code := c.Param("shortCode")

	creds := resolver.Credentials{
		SessionVerified: h.sessions.Verified(c.Response(), c.Request(), code),
	}
	visitor := resolver.Visitor{
		IP:        getClientIP(c.Request()),
		UserAgent: c.Request().UserAgent(),
		Referrer:  c.Request().Referer(),
	}

	outcome, err := h.resolver.Resolve(ctx, code, creds, visitor)
	if err != nil {
		log.Error().Err(err).Str("short_code", code).Msg("redirect resolution failed")
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error":   "Server error",
			"message": "An error occurred while processing your request.",
		})
	}

	switch outcome.Kind {
	case resolver.OutcomeRedirect:
		return c.Redirect(http.StatusFound, outcome.TargetURL)

	case resolver.OutcomeNotFound:
		return c.JSON(http.StatusNotFound, map[string]string{
			"error":   "Link not found",
			"message": "This link does not exist or has been deleted.",
		})

	case resolver.OutcomeExpired:
		return c.JSON(http.StatusGone, newExpiredResponse(outcome))

	case resolver.OutcomePasswordRequired:
		return c.JSON(http.StatusUnauthorized, passwordResponse{
			Error:            "Password required",
			Message:          "This link is password protected. Please provide a password.",
			ShortCode:        code,
			RequiresPassword: true,
		})

	case resolver.OutcomeInvalidPassword:
		return c.JSON(http.StatusUnauthorized, passwordResponse{
			Error:            "Invalid password",
			Message:          "The password you provided is incorrect.",
			ShortCode:        code,
			RequiresPassword: true,
		})
	}

	return c.NoContent(http.StatusInternalServerError)
}

// SubmitPassword handles POST /{shortCode}/password with a form body.
// A correct password establishes the gate session and retries the redirect.
func (h *RedirectHandler) SubmitPassword(c echo.Context) error {
	ctx := c.Request().Context()
	code := c.Param("shortCode")
	password := c.FormValue("password")

	ok, err := h.resolver.VerifyPassword(ctx, code, password)
	if err != nil {
		if errors.Is(err, repo.ErrLinkNotFound) || errors.Is(err, resolver.ErrNoPassword) {
			return c.NoContent(http.StatusNotFound)
		}
		log.Error().Err(err).Str("short_code", code).Msg("password verification failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "server error")
	}

	if !ok {
		return c.JSON(http.StatusUnauthorized, passwordResponse{
			Error:            "Invalid password",
			Message:          "Invalid password. Please try again.",
			ShortCode:        code,
			RequiresPassword: true,
		})
	}

	if err := h.sessions.MarkVerified(c.Response(), c.Request(), code); err != nil {
		log.Error().Err(err).Str("short_code", code).Msg("failed to establish gate session")
		return echo.NewHTTPError(http.StatusInternalServerError, "server error")
	}

	return c.Redirect(http.StatusFound, "/"+code)
}

func newExpiredResponse(outcome resolver.Outcome) expiredResponse {
	resp := expiredResponse{
		Error:     "Link expired",
		ShortCode: outcome.ShortCode,
		Reason:    string(outcome.Reason),
		ExpiredAt: outcome.ExpiredAt,
		MaxViews:  outcome.MaxViews,
	}

	switch {
	case outcome.CustomMessage != nil && *outcome.CustomMessage != "":
		resp.Message = *outcome.CustomMessage
	case outcome.Reason == expiry.ReasonTimeExpired && outcome.ExpiredAt != nil:
		resp.Message = fmt.Sprintf("This link expired on %s.", outcome.ExpiredAt.Format("Jan 02, 2006"))
	case outcome.Reason == expiry.ReasonViewsExpired && outcome.MaxViews != nil:
		resp.Message = fmt.Sprintf("This link has reached its maximum view limit of %d.", *outcome.MaxViews)
	default:
		resp.Message = "This link has expired."
	}

	return resp
}

// getClientIP extracts the client IP from the request
func getClientIP(r *http.Request) string {
	// Try X-Forwarded-For header first (for proxies)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if ip := net.ParseIP(xff); ip != nil {
			return xff
		}
	}

	// Try X-Real-IP header
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if ip := net.ParseIP(xri); ip != nil {
			return xri
		}
	}

	// Fall back to RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}

	return r.RemoteAddr
}
