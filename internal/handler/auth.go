package handler

import (
	"errors"
	"net/http"

	"burnlink/internal/auth"

	"github.com/labstack/echo/v4"
)

type AuthHandler struct {
	authenticator *auth.Authenticator
}

func NewAuthHandler(authenticator *auth.Authenticator) *AuthHandler {
	return &AuthHandler{authenticator: authenticator}
}

// Login handles POST /login - validates credentials and sets the JWT cookie
func (h *AuthHandler) Login(c echo.Context) error {
	var creds auth.Credentials
	if err := c.Bind(&creds); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request")
	}

	cookie, err := h.authenticator.Authenticate(creds)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthorized) {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to create token")
	}

	cookie.Secure = c.IsTLS()
	c.SetCookie(cookie)

	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Logout handles POST /logout - clears the JWT cookie
func (h *AuthHandler) Logout(c echo.Context) error {
	c.SetCookie(auth.ExpireCookie())
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
