package session

import (
	"context"
	"time"
)

// Pinger performs the lightweight heartbeat call that signals an active
// session to the platform.
type Pinger interface {
	Ping(ctx context.Context) error
}

// KeepAlive sends a heartbeat on the configured interval for as long as the
// session is authenticated, until ctx is cancelled. Heartbeat failures are
// logged and never change session state by themselves; expiry handling
// belongs to the renewal path.
func (m *Manager) KeepAlive(ctx context.Context, pinger Pinger) {
	ticker := time.NewTicker(m.keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.CurrentState() != StateAuthenticated {
				continue
			}
			if err := pinger.Ping(ctx); err != nil {
				m.log.Warn().Err(err).Msg("keep-alive heartbeat failed")
			}
		}
	}
}
