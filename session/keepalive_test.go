package session_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/studyhall/sessionkit/session"
	"github.com/stretchr/testify/require"
)

type fakePinger struct {
	calls atomic.Int32
	err   error
}

func (p *fakePinger) Ping(ctx context.Context) error {
	p.calls.Add(1)
	return p.err
}

func TestKeepAlivePingsWhileAuthenticated(t *testing.T) {
	f := newFixture(t, session.WithKeepAliveInterval(10*time.Millisecond))
	f.seedAuthenticated(t, time.Hour)

	pinger := &fakePinger{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.manager.KeepAlive(ctx, pinger)
		close(done)
	}()

	require.Eventually(t, func() bool { return pinger.calls.Load() >= 2 },
		time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestKeepAliveFailureDoesNotChangeState(t *testing.T) {
	f := newFixture(t, session.WithKeepAliveInterval(10*time.Millisecond))
	f.seedAuthenticated(t, time.Hour)

	pinger := &fakePinger{err: errors.New("heartbeat down")}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	f.manager.KeepAlive(ctx, pinger)

	require.GreaterOrEqual(t, pinger.calls.Load(), int32(1))
	require.Equal(t, session.StateAuthenticated, f.manager.CurrentState(),
		"heartbeat failure alone never alters session state")
}

func TestKeepAliveSkipsWhenSignedOut(t *testing.T) {
	f := newFixture(t, session.WithKeepAliveInterval(10*time.Millisecond))
	require.NoError(t, f.manager.Initialize(context.Background()))

	pinger := &fakePinger{}
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	f.manager.KeepAlive(ctx, pinger)

	require.Zero(t, pinger.calls.Load())
}
