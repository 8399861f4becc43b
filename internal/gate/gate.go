// Package gate tracks which short codes a visitor has unlocked. The state
// lives in a signed cookie, not process memory, so any instance sharing the
// secret can honor a verification.
package gate

import (
	"net/http"
	"time"

	"github.com/gorilla/sessions"
	"github.com/rs/zerolog/log"
)

const (
	sessionName = "burnlink_gate"
	idleTimeout = 30 * time.Minute
)

// Sessions is the password-gate session store. A password is verified once
// per session, not once per redirect.
type Sessions struct {
	store *sessions.CookieStore
}

func NewSessions(secret string) *Sessions {
	store := sessions.NewCookieStore([]byte(secret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(idleTimeout.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	return &Sessions{store: store}
}

// Verified reports whether this visitor has unlocked the given short code,
// and slides the idle window forward when they have.
func (s *Sessions) Verified(w http.ResponseWriter, r *http.Request, shortCode string) bool {
	session, err := s.store.Get(r, sessionName)
	if err != nil {
		// Tampered or stale cookie; treat as unverified.
		return false
	}

	deadline, ok := session.Values[shortCode].(int64)
	if !ok || time.Now().Unix() >= deadline {
		return false
	}

	session.Values[shortCode] = time.Now().Add(idleTimeout).Unix()
	if err := session.Save(r, w); err != nil {
		log.Warn().Err(err).Msg("failed to refresh gate session")
	}

	return true
}

// MarkVerified records a successful password check for the short code.
func (s *Sessions) MarkVerified(w http.ResponseWriter, r *http.Request, shortCode string) error {
	session, err := s.store.Get(r, sessionName)
	if err != nil {
		// Start a fresh session over the broken cookie.
		session, _ = s.store.New(r, sessionName)
	}

	session.Values[shortCode] = time.Now().Add(idleTimeout).Unix()
	return session.Save(r, w)
}
