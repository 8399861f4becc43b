// Package expiry decides what a link snapshot allows at a point in time.
// It never touches storage; the resolver acts on its verdicts.
package expiry

import (
	"time"

	"burnlink/internal/repo"
)

type Verdict int

const (
	// Allowed means the request may proceed to the counter increment.
	Allowed Verdict = iota
	// Gone means the link is expired or deactivated.
	Gone
	// PasswordRequired means the link is live but gated.
	PasswordRequired
)

// Reason is the machine-readable expiry cause clients branch on.
type Reason string

const (
	ReasonInactive     Reason = "inactive"
	ReasonTimeExpired  Reason = "time_expired"
	ReasonViewsExpired Reason = "views_expired"
)

type Decision struct {
	Verdict Verdict
	Reason  Reason
	// ExpiredAt is set for time_expired.
	ExpiredAt *time.Time
	// MaxViews is set for views_expired.
	MaxViews *int64
}

// Clock lets tests pin the evaluation time.
type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now().UTC()
}

// MockClock is a controllable Clock for deterministic tests.
type MockClock struct {
	current time.Time
}

func NewMockClock(t time.Time) *MockClock {
	return &MockClock{current: t}
}

func (c *MockClock) Now() time.Time {
	return c.current
}

// Advance moves the clock forward by the given duration.
func (c *MockClock) Advance(d time.Duration) {
	c.current = c.current.Add(d)
}

// Evaluate applies the expiry rules to a snapshot, first match wins:
// inactive, time expiry, view expiry, password gate, allowed.
//
// The check runs against a snapshot read before any write. Requests that
// pass it still go through the post-increment recheck, which closes the
// race window this cheap filter leaves open at the view boundary.
func Evaluate(link *repo.Link, now time.Time) Decision {
	if !link.IsActive {
		return inactiveDecision(link, now)
	}

	if link.ExpiryType.UsesTime() && link.ExpiresAt != nil && link.ExpiresAt.Before(now) {
		return Decision{Verdict: Gone, Reason: ReasonTimeExpired, ExpiredAt: link.ExpiresAt}
	}

	if link.ExpiryType.UsesViews() && link.MaxViews != nil && link.CurrentViews >= *link.MaxViews {
		return Decision{Verdict: Gone, Reason: ReasonViewsExpired, MaxViews: link.MaxViews}
	}

	if link.HasPassword() {
		return Decision{Verdict: PasswordRequired}
	}

	return Decision{Verdict: Allowed}
}

// inactiveDecision reports why a tombstoned link is gone. When the snapshot
// shows which expiry rule tripped the flag, clients get that reason instead
// of a bare "inactive"; explicit deactivation keeps the generic reason.
func inactiveDecision(link *repo.Link, now time.Time) Decision {
	if link.ExpiryType.UsesTime() && link.ExpiresAt != nil && link.ExpiresAt.Before(now) {
		return Decision{Verdict: Gone, Reason: ReasonTimeExpired, ExpiredAt: link.ExpiresAt}
	}
	if link.ExpiryType.UsesViews() && link.MaxViews != nil && link.CurrentViews >= *link.MaxViews {
		return Decision{Verdict: Gone, Reason: ReasonViewsExpired, MaxViews: link.MaxViews}
	}
	return Decision{Verdict: Gone, Reason: ReasonInactive}
}
