// Package session orchestrates the credential lifecycle: login, logout,
// silent renewal and keep-alive. The Manager owns the session state machine
// and is the only component that writes to the credential store.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/studyhall/sessionkit/credentials"
	"github.com/studyhall/sessionkit/issuer"
)

const (
	defaultRenewalMargin     = 30 * time.Second
	defaultKeepAliveInterval = 5 * time.Minute
)

// Issuer is the slice of the identity service the Manager needs.
type Issuer interface {
	Login(ctx context.Context, identifier, secret string) (credentials.Record, error)
	Renew(ctx context.Context, refreshToken string) (credentials.Record, error)
	Logout(ctx context.Context, accessToken string) error
}

// renewal is the in-flight operation handle concurrent callers attach to.
// The initiator fills token/err and closes done; everyone else waits on done.
type renewal struct {
	done  chan struct{}
	token string
	err   error
}

// Manager drives the session state machine.
//
// Concurrency: all state lives behind one mutex. At most one renewal is in
// flight at a time; concurrent triggers join the pending renewal instead of
// starting a second one. A logout bumps the session epoch so that the result
// of a renewal still in flight is discarded rather than resurrecting the
// logged-out session.
type Manager struct {
	store  credentials.Store
	issuer Issuer

	mu          sync.Mutex
	initialized bool
	state       State
	user        User
	epoch       uint64
	renewal     *renewal
	subs        map[int]chan State
	nextSubID   int

	margin            time.Duration
	keepAliveInterval time.Duration
	nowTime           func() time.Time
	log               zerolog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithRenewalMargin sets how long before actual expiry a renewal is
// triggered.
func WithRenewalMargin(d time.Duration) Option {
	return func(m *Manager) {
		m.margin = d
	}
}

// WithKeepAliveInterval sets the heartbeat cadence used by KeepAlive.
func WithKeepAliveInterval(d time.Duration) Option {
	return func(m *Manager) {
		m.keepAliveInterval = d
	}
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(m *Manager) {
		m.log = log
	}
}

// WithNowTime sets the now time function (primarily for testing).
func WithNowTime(nowFunc func() time.Time) Option {
	return func(m *Manager) {
		m.nowTime = nowFunc
	}
}

// NewManager creates a Manager over the given store and issuer client.
func NewManager(store credentials.Store, iss Issuer, options ...Option) (*Manager, error) {
	if store == nil {
		return nil, errors.New("[NewManager] store is required")
	}
	if iss == nil {
		return nil, errors.New("[NewManager] issuer is required")
	}

	m := &Manager{
		store:             store,
		issuer:            iss,
		state:             StateUnknown,
		subs:              make(map[int]chan State),
		margin:            defaultRenewalMargin,
		keepAliveInterval: defaultKeepAliveInterval,
		nowTime:           time.Now,
		log:               zerolog.Nop(),
	}
	for _, opt := range options {
		opt(m)
	}
	return m, nil
}

// Initialize rebuilds session state from the credential store. It runs once
// per process start; later calls are no-ops. A stored record with a live
// access token authenticates immediately; a record with only a refresh token
// triggers one renewal attempt; anything else, including corrupt storage,
// resolves to unauthenticated. Initialize never fails on bad stored data.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	if m.initialized {
		m.mu.Unlock()
		return nil
	}
	m.initialized = true

	record := m.loadLocked()

	if record.FreshAt(m.nowTime(), 0) {
		user, err := userFromToken(record.AccessToken)
		if err == nil {
			m.user = user
			m.setStateLocked(StateAuthenticated)
			m.mu.Unlock()
			return nil
		}
		// Unparsable access token: treat the whole record as tampered.
		m.log.Warn().Msg("stored access token unparsable, clearing credentials")
		m.clearLocked()
		m.setStateLocked(StateUnauthenticated)
		m.mu.Unlock()
		return nil
	}

	if record.RefreshToken != "" {
		// Only a refresh token survived; attempt one renewal. Every failure
		// branch inside renewLocked resolves the state to unauthenticated.
		if _, err := m.renewLocked(ctx, record); err != nil { // unlocks
			m.log.Info().Err(err).Msg("startup renewal failed")
		}
		return nil
	}

	m.setStateLocked(StateUnauthenticated)
	m.mu.Unlock()
	return nil
}

// Login exchanges the user's credentials for a token pair, persists it and
// transitions to authenticated. On failure the state returns to
// unauthenticated and the error is surfaced to the caller so the UI can show
// it.
func (m *Manager) Login(ctx context.Context, identifier, secret string) error {
	record, err := m.issuer.Login(ctx, identifier, secret)
	if err != nil {
		m.mu.Lock()
		m.setStateLocked(StateUnauthenticated)
		m.mu.Unlock()
		return errors.Wrap(err, "[Manager.Login] issuer login")
	}

	user, err := userFromToken(record.AccessToken)
	if err != nil {
		m.mu.Lock()
		m.setStateLocked(StateUnauthenticated)
		m.mu.Unlock()
		return errors.Wrap(issuer.ErrServiceUnavailable, "issued access token unparsable")
	}

	m.mu.Lock()
	m.epoch++ // a renewal of the previous session must not overwrite this login
	m.saveLocked(record)
	m.user = user
	m.setStateLocked(StateAuthenticated)
	m.mu.Unlock()
	return nil
}

// Logout clears local state unconditionally and then notifies the identity
// service on a best-effort basis. The store is emptied and the state flipped
// to unauthenticated before the remote call, so a guard evaluation during
// logout can never observe a stale authenticated session. Calling Logout
// twice is harmless.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	m.epoch++ // any renewal currently in flight must discard its result
	record := m.loadLocked()
	m.clearLocked()
	m.user = User{}
	m.setStateLocked(StateUnauthenticated)
	m.mu.Unlock()

	if record.AccessToken != "" {
		if err := m.issuer.Logout(ctx, record.AccessToken); err != nil {
			m.log.Debug().Err(err).Msg("remote logout failed")
		}
	}
	return nil
}

// EnsureFreshToken returns an access token that is valid for at least the
// configured renewal margin, renewing through the single-flight path when
// necessary. Concurrent callers with a stale token coalesce into one network
// renewal and all resolve against its result.
func (m *Manager) EnsureFreshToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	if !m.initialized {
		m.mu.Unlock()
		return "", ErrNotInitialized
	}
	if m.state == StateUnauthenticated {
		m.mu.Unlock()
		return "", errors.Wrap(ErrSessionExpired, "[Manager.EnsureFreshToken] not signed in")
	}

	if m.renewal != nil {
		r := m.renewal
		m.mu.Unlock()
		return awaitRenewal(ctx, r)
	}

	record := m.loadLocked()
	if record.FreshAt(m.nowTime(), m.margin) {
		m.mu.Unlock()
		return record.AccessToken, nil
	}
	return m.renewLocked(ctx, record)
}

// ForceRenew renews the token pair regardless of the local expiry clock. The
// request interceptor uses it when the server rejects a token the client
// still believed fresh. It joins any renewal already in flight.
func (m *Manager) ForceRenew(ctx context.Context) (string, error) {
	m.mu.Lock()
	if !m.initialized {
		m.mu.Unlock()
		return "", ErrNotInitialized
	}
	if m.state == StateUnauthenticated {
		m.mu.Unlock()
		return "", errors.Wrap(ErrSessionExpired, "[Manager.ForceRenew] not signed in")
	}
	return m.renewLocked(ctx, m.loadLocked())
}

// CurrentState returns the state machine's current state.
func (m *Manager) CurrentState() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// CurrentUser returns the authenticated user, if any.
func (m *Manager) CurrentUser() (User, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateAuthenticated && m.state != StateRenewing {
		return User{}, false
	}
	return m.user, true
}

// Subscribe returns a channel on which state transitions are delivered and a
// function that cancels the subscription. Delivery is best-effort for slow
// consumers; CurrentState always has the latest value.
func (m *Manager) Subscribe() (<-chan State, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSubID
	m.nextSubID++
	ch := make(chan State, 8)
	m.subs[id] = ch

	unsubscribe := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
	return ch, unsubscribe
}

// renewLocked joins the in-flight renewal or starts a new one. Called with
// the lock held; returns with it released.
func (m *Manager) renewLocked(ctx context.Context, record credentials.Record) (string, error) {
	if m.renewal != nil {
		r := m.renewal
		m.mu.Unlock()
		return awaitRenewal(ctx, r)
	}

	if record.RefreshToken == "" {
		m.clearLocked()
		m.user = User{}
		m.setStateLocked(StateUnauthenticated)
		m.mu.Unlock()
		return "", errors.Wrap(ErrSessionExpired, "[Manager] no refresh token")
	}

	r := &renewal{done: make(chan struct{})}
	m.renewal = r
	epoch := m.epoch
	m.setStateLocked(StateRenewing)
	m.mu.Unlock()

	renewed, err := m.issuer.Renew(ctx, record.RefreshToken)

	m.mu.Lock()
	if m.renewal == r {
		m.renewal = nil
	}

	if m.epoch != epoch {
		// Logged out while the renewal was in flight: discard the result.
		r.err = errors.Wrap(ErrSessionExpired, "[Manager] session ended during renewal")
		m.mu.Unlock()
		close(r.done)
		return "", r.err
	}

	switch {
	case err == nil:
		user, uerr := userFromToken(renewed.AccessToken)
		if uerr != nil {
			m.clearLocked()
			m.user = User{}
			m.setStateLocked(StateUnauthenticated)
			r.err = errors.Wrap(ErrSessionExpired, "renewed access token unparsable")
		} else {
			m.saveLocked(renewed)
			m.user = user
			m.setStateLocked(StateAuthenticated)
			r.token = renewed.AccessToken
		}

	case errors.Is(err, issuer.ErrRefreshRejected):
		m.clearLocked()
		m.user = User{}
		m.setStateLocked(StateUnauthenticated)
		r.err = errors.Wrap(ErrSessionExpired, err.Error())

	default:
		if record.FreshAt(m.nowTime(), 0) {
			// Proactive renewal inside the safety margin failed transiently;
			// the old token has not actually lapsed, so keep using it and
			// stay authenticated until it does.
			m.log.Warn().Err(err).Msg("proactive renewal failed, keeping current token")
			m.setStateLocked(StateAuthenticated)
			r.token = record.AccessToken
		} else {
			m.log.Warn().Err(err).Msg("renewal failed with access token already expired")
			m.clearLocked()
			m.user = User{}
			m.setStateLocked(StateUnauthenticated)
			r.err = errors.Wrap(ErrSessionExpired, err.Error())
		}
	}

	m.mu.Unlock()
	close(r.done)
	return r.token, r.err
}

func awaitRenewal(ctx context.Context, r *renewal) (string, error) {
	select {
	case <-ctx.Done():
		return "", errors.Wrap(ctx.Err(), "[Manager] renewal wait cancelled")
	case <-r.done:
		return r.token, r.err
	}
}

// setStateLocked records a transition and notifies subscribers.
func (m *Manager) setStateLocked(s State) {
	if m.state == s {
		return
	}
	m.log.Debug().Stringer("from", m.state).Stringer("to", s).Msg("session state transition")
	m.state = s
	for _, ch := range m.subs {
		select {
		case ch <- s:
		default:
		}
	}
}

// loadLocked reads the store, degrading to an empty record when storage is
// unavailable.
func (m *Manager) loadLocked() credentials.Record {
	record, err := m.store.Load()
	if err != nil {
		m.log.Warn().Err(err).Msg("credential load failed, continuing without stored session")
		return credentials.Record{}
	}
	return record
}

// saveLocked persists the record, degrading to a warning when storage is
// unavailable. The in-memory session stays usable either way.
func (m *Manager) saveLocked(record credentials.Record) {
	if err := m.store.Save(record); err != nil {
		m.log.Warn().Err(err).Msg("credential save failed, session will not survive a restart")
	}
}

func (m *Manager) clearLocked() {
	if err := m.store.Clear(); err != nil {
		m.log.Warn().Err(err).Msg("credential clear failed")
	}
}
