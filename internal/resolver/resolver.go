// Package resolver implements the redirect resolution state machine:
// Lookup -> Evaluate -> PasswordCheck -> Increment -> Redirect, with click
// logging detached from the request path.
package resolver

import (
	"context"
	"errors"
	"time"

	"burnlink/internal/expiry"
	"burnlink/internal/repo"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

// ErrNoPassword is returned by VerifyPassword for links without a gate.
var ErrNoPassword = errors.New("link is not password protected")

// dummy bcrypt hash compared against when there is nothing real to compare,
// so the miss path costs the same as a mismatch.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// LinkStore is the durable side of the resolver. Implemented by repo.LinksRepo.
type LinkStore interface {
	GetByShortCode(ctx context.Context, code string) (*repo.Link, error)
	IncrementViews(ctx context.Context, id int64) (currentViews, totalClicks int64, err error)
	Deactivate(ctx context.Context, id int64) error
}

// ClickLogger receives successful resolutions. Implementations must not
// block; failures stay on their side of the fence.
type ClickLogger interface {
	LogClick(linkID int64, ip, userAgent, referrer string)
}

type OutcomeKind int

const (
	OutcomeRedirect OutcomeKind = iota
	OutcomeNotFound
	OutcomeExpired
	OutcomePasswordRequired
	OutcomeInvalidPassword
)

// Outcome is the terminal result of a resolution attempt. Exactly one is
// produced per request unless storage fails.
type Outcome struct {
	Kind          OutcomeKind
	ShortCode     string
	TargetURL     string
	Reason        expiry.Reason
	ExpiredAt     *time.Time
	MaxViews      *int64
	CustomMessage *string
}

// Visitor carries the request attributes the click logger wants.
type Visitor struct {
	IP        string
	UserAgent string
	Referrer  string
}

// Credentials is the password-gate state the HTTP layer extracted for this
// request: either a prior session verification or a freshly submitted password.
type Credentials struct {
	SessionVerified bool
	Password        string
}

type Resolver struct {
	store  LinkStore
	clicks ClickLogger
	clock  expiry.Clock
}

func New(store LinkStore, clicks ClickLogger, clock expiry.Clock) *Resolver {
	if clock == nil {
		clock = expiry.RealClock{}
	}
	return &Resolver{store: store, clicks: clicks, clock: clock}
}

// Resolve runs the full state machine for GET /{code}. Storage errors on the
// lookup or increment are returned to the caller; every other failure path is
// absorbed here.
func (r *Resolver) Resolve(ctx context.Context, code string, creds Credentials, visitor Visitor) (Outcome, error) {
	link, err := r.store.GetByShortCode(ctx, code)
	if err != nil {
		if errors.Is(err, repo.ErrLinkNotFound) {
			log.Warn().Str("short_code", code).Msg("short code not found")
			return Outcome{Kind: OutcomeNotFound, ShortCode: code}, nil
		}
		return Outcome{}, err
	}

	decision := expiry.Evaluate(link, r.clock.Now())

	switch decision.Verdict {
	case expiry.Gone:
		// Cache the verdict so future requests short-circuit on the flag
		// instead of re-deriving it. The snapshot check remains the source
		// of truth, so a failed write here costs nothing.
		if link.IsActive {
			r.deactivateBestEffort(ctx, link.ID)
		}
		return expiredOutcome(link, decision), nil

	case expiry.PasswordRequired:
		outcome, ok := r.checkPassword(link, creds)
		if !ok {
			return outcome, nil
		}
	}

	currentViews, _, err := r.store.IncrementViews(ctx, link.ID)
	if err != nil {
		return Outcome{}, err
	}

	// The increment that reaches the limit is the last valid view; this
	// request passes, everyone after sees the tombstone.
	if link.ExpiryType.UsesViews() && link.MaxViews != nil && currentViews >= *link.MaxViews {
		r.deactivateBestEffort(ctx, link.ID)
	}

	if r.clicks != nil {
		r.clicks.LogClick(link.ID, visitor.IP, visitor.UserAgent, visitor.Referrer)
	}

	log.Debug().Str("short_code", code).Str("target", link.TargetURL).Msg("redirecting")

	return Outcome{Kind: OutcomeRedirect, ShortCode: code, TargetURL: link.TargetURL}, nil
}

// Peek answers HEAD /{code}: lookup and evaluate only, no writes, no logging.
func (r *Resolver) Peek(ctx context.Context, code string) (Outcome, error) {
	link, err := r.store.GetByShortCode(ctx, code)
	if err != nil {
		if errors.Is(err, repo.ErrLinkNotFound) {
			return Outcome{Kind: OutcomeNotFound, ShortCode: code}, nil
		}
		return Outcome{}, err
	}

	decision := expiry.Evaluate(link, r.clock.Now())

	switch decision.Verdict {
	case expiry.Gone:
		return expiredOutcome(link, decision), nil
	case expiry.PasswordRequired:
		return Outcome{Kind: OutcomePasswordRequired, ShortCode: code}, nil
	}

	return Outcome{Kind: OutcomeRedirect, ShortCode: code, TargetURL: link.TargetURL}, nil
}

// VerifyPassword backs POST /{code}/password. It reports whether the
// submitted password matches; session establishment is the caller's job.
func (r *Resolver) VerifyPassword(ctx context.Context, code, password string) (bool, error) {
	link, err := r.store.GetByShortCode(ctx, code)
	if err != nil {
		return false, err
	}

	if !link.HasPassword() {
		// Burn the same time as a real comparison before reporting.
		_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
		return false, ErrNoPassword
	}

	return verifyHash(*link.PasswordHash, password), nil
}

func (r *Resolver) checkPassword(link *repo.Link, creds Credentials) (Outcome, bool) {
	if creds.SessionVerified {
		return Outcome{}, true
	}

	if creds.Password == "" {
		return Outcome{Kind: OutcomePasswordRequired, ShortCode: link.ShortCode}, false
	}

	if !verifyHash(*link.PasswordHash, creds.Password) {
		log.Warn().Str("short_code", link.ShortCode).Msg("invalid password attempt")
		return Outcome{Kind: OutcomeInvalidPassword, ShortCode: link.ShortCode}, false
	}

	return Outcome{}, true
}

func (r *Resolver) deactivateBestEffort(ctx context.Context, linkID int64) {
	if err := r.store.Deactivate(ctx, linkID); err != nil {
		log.Warn().Err(err).Int64("link_id", linkID).Msg("failed to persist inactive flag")
	}
}

func expiredOutcome(link *repo.Link, decision expiry.Decision) Outcome {
	return Outcome{
		Kind:          OutcomeExpired,
		ShortCode:     link.ShortCode,
		Reason:        decision.Reason,
		ExpiredAt:     decision.ExpiredAt,
		MaxViews:      decision.MaxViews,
		CustomMessage: link.CustomMessage,
	}
}

func verifyHash(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
