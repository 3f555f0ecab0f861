// Package guard decides whether a protected view may render. It is the sole
// arbiter consulted before such a view is shown: every route declares whether
// it requires authentication and the guard maps session state to a render,
// wait or redirect outcome, debouncing redirects so that two rapid
// evaluations can never enqueue two navigations.
package guard

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/studyhall/sessionkit/session"
)

// Decision is the guard's verdict for one route evaluation.
type Decision int

const (
	// DecisionWait renders a loading placeholder. Issued while session state
	// is still unknown; redirecting before the state resolves is the classic
	// redirect-loop bug this component exists to prevent.
	DecisionWait Decision = iota

	// DecisionRender lets the view render.
	DecisionRender

	// DecisionRedirect schedules a navigation away from the route.
	DecisionRedirect
)

func (d Decision) String() string {
	switch d {
	case DecisionWait:
		return "wait"
	case DecisionRender:
		return "render"
	case DecisionRedirect:
		return "redirect"
	}
	return "invalid"
}

// Route describes the protection requirement of the route under evaluation.
type Route struct {
	// RequiresAuth marks routes that only an authenticated session may view.
	RequiresAuth bool
	// IsAuthRoute marks the login/register surface, which an authenticated
	// session is bounced away from.
	IsAuthRoute bool
}

// Navigator performs the actual navigation once a redirect is due.
type Navigator interface {
	Navigate(target string)
}

const defaultDebounce = 150 * time.Millisecond

// Guard evaluates routes against session state and dispatches debounced
// redirects.
type Guard struct {
	navigator   Navigator
	loginTarget string
	homeTarget  string
	debounce    time.Duration
	log         zerolog.Logger

	mu      sync.Mutex
	pending string
	timer   *time.Timer
}

// Option configures a Guard.
type Option func(*Guard)

// WithDebounce sets the redirect debounce window. Zero fires immediately.
func WithDebounce(d time.Duration) Option {
	return func(g *Guard) {
		g.debounce = d
	}
}

// WithTargets overrides the login and home redirect targets.
func WithTargets(login, home string) Option {
	return func(g *Guard) {
		g.loginTarget = login
		g.homeTarget = home
	}
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(g *Guard) {
		g.log = log
	}
}

// New creates a Guard dispatching redirects through navigator.
func New(navigator Navigator, options ...Option) (*Guard, error) {
	if navigator == nil {
		return nil, errors.New("[guard.New] navigator is required")
	}
	g := &Guard{
		navigator:   navigator,
		loginTarget: "/login",
		homeTarget:  "/",
		debounce:    defaultDebounce,
		log:         zerolog.Nop(),
	}
	for _, opt := range options {
		opt(g)
	}
	return g, nil
}

// Evaluate is the pure decision function: no timers, no side effects.
// The returned target is only meaningful for DecisionRedirect.
func (g *Guard) Evaluate(state session.State, route Route) (Decision, string) {
	switch state {
	case session.StateUnknown:
		return DecisionWait, ""
	case session.StateAuthenticated, session.StateRenewing:
		// A session being renewed is still a live session; bouncing it to
		// the login page mid-renewal would loop on renewal success.
		if route.IsAuthRoute {
			return DecisionRedirect, g.homeTarget
		}
		return DecisionRender, ""
	default:
		if route.RequiresAuth {
			return DecisionRedirect, g.loginTarget
		}
		return DecisionRender, ""
	}
}

// Check evaluates the route and, for a redirect verdict, schedules the
// debounced navigation. Scheduling the same target twice collapses into one
// navigation; a render or wait verdict cancels any redirect still pending.
func (g *Guard) Check(state session.State, route Route) Decision {
	decision, target := g.Evaluate(state, route)

	g.mu.Lock()
	if decision != DecisionRedirect {
		g.cancelPendingLocked()
		g.mu.Unlock()
		return decision
	}

	if g.pending == target {
		g.mu.Unlock()
		return decision // navigation already queued
	}
	g.cancelPendingLocked()

	if g.debounce <= 0 {
		g.mu.Unlock()
		g.log.Debug().Str("target", target).Msg("redirecting")
		g.navigator.Navigate(target)
		return decision
	}

	g.pending = target
	g.timer = time.AfterFunc(g.debounce, func() { g.fire(target) })
	g.mu.Unlock()
	return decision
}

func (g *Guard) fire(target string) {
	g.mu.Lock()
	if g.pending != target {
		g.mu.Unlock()
		return
	}
	g.pending = ""
	g.timer = nil
	g.mu.Unlock()

	g.log.Debug().Str("target", target).Msg("redirecting")
	g.navigator.Navigate(target)
}

func (g *Guard) cancelPendingLocked() {
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	g.pending = ""
}
