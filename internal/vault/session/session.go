// Package session owns the in-memory key material of an unlocked vault and
// enforces the inactivity auto-lock.
//
// A Guard is an explicit value created and passed by the caller, not an
// ambient singleton, so independent sessions (tests, multi-tenant hosts)
// cannot collide. At most one master key lives inside a Guard at a time;
// locking in any form wipes it.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/pinvault/pinvault/internal/common"
	"github.com/pinvault/pinvault/internal/logging"
	"github.com/pinvault/pinvault/internal/timex"
)

// State is the session lifecycle position.
type State string

const (
	StateLoggedOut      State = "logged_out"
	StateActive         State = "active"
	StateLockedBySystem State = "locked_by_system"
	StateLockedByUser   State = "locked_by_user"
)

// Guard tracks activity and clears decrypted key material on lock, idle
// timeout, and logout.
type Guard struct {
	mu sync.Mutex

	clock  timex.Clock
	logger logging.Logger

	state        State
	masterKey    []byte
	rootSecret   []byte
	lastActivity time.Time
	timeout      time.Duration
	timer        timex.Timer

	// onAutoLock, when set, is invoked (outside the lock) after an idle
	// timeout has wiped the session.
	onAutoLock func()
}

func NewGuard(clock timex.Clock, logger logging.Logger) *Guard {
	if logger == nil {
		logger = logging.Nop{}
	}
	return &Guard{clock: clock, logger: logger, state: StateLoggedOut}
}

// SetAutoLockHandler registers a notification hook for idle-timeout locks.
func (g *Guard) SetAutoLockHandler(fn func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onAutoLock = fn
}

// Activate installs the master key and root secret for a freshly unlocked
// vault and arms the idle timer. timeout <= 0 disables auto-lock. The guard
// takes ownership of both slices and will wipe them.
func (g *Guard) Activate(masterKey, rootSecret []byte, timeout time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.wipeLocked()
	g.masterKey = masterKey
	g.rootSecret = rootSecret
	g.state = StateActive
	g.timeout = timeout
	g.lastActivity = g.clock.Now()
	g.armTimerLocked()
}

// Touch registers user activity, deferring the idle lock. It is a no-op
// outside the active state.
func (g *Guard) Touch() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != StateActive {
		return
	}
	g.lastActivity = g.clock.Now()
	g.armTimerLocked()
}

// MasterKey returns a copy of the session master key, or
// common.ErrSessionLocked when no session is active. The copy stays valid
// even if an idle timeout wipes the guard's own slice mid-operation; the
// caller owns it and should wipe it when done.
func (g *Guard) MasterKey() ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != StateActive {
		return nil, common.ErrSessionLocked
	}
	return append([]byte{}, g.masterKey...), nil
}

// RootSecret returns a copy of the in-memory recovery phrase bytes for the
// active session (needed to mint an unlock token without re-prompting). The
// caller owns the copy and should wipe it.
func (g *Guard) RootSecret() ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != StateActive {
		return nil, common.ErrSessionLocked
	}
	return append([]byte{}, g.rootSecret...), nil
}

// State returns the current lifecycle state.
func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Lock is the explicit user lock: wipe key material, keep the unlock token.
func (g *Guard) Lock(ctx context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != StateActive {
		return
	}
	g.wipeLocked()
	g.state = StateLockedByUser
	g.logger.Info(ctx, "session locked", "reason", "user")
}

// Logout wipes key material and returns the session to logged-out. The
// caller is responsible for destroying the unlock token alongside.
func (g *Guard) Logout(ctx context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.wipeLocked()
	g.state = StateLoggedOut
	g.logger.Info(ctx, "session logged out")
}

// armTimerLocked cancels any pending idle timer and schedules a new one.
// Must be called with g.mu held.
func (g *Guard) armTimerLocked() {
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	if g.timeout <= 0 {
		return
	}
	g.timer = g.clock.AfterFunc(g.timeout, g.autoLock)
}

// autoLock fires on idle-timer expiry.
func (g *Guard) autoLock() {
	g.mu.Lock()

	if g.state != StateActive {
		g.mu.Unlock()
		return
	}

	// A Touch that raced the timer moves the deadline; re-arm for the
	// remainder instead of locking.
	deadline := g.lastActivity.Add(g.timeout)
	now := g.clock.Now()
	if now.Before(deadline) {
		g.timer = g.clock.AfterFunc(deadline.Sub(now), g.autoLock)
		g.mu.Unlock()
		return
	}

	g.wipeLocked()
	g.state = StateLockedBySystem
	hook := g.onAutoLock
	g.mu.Unlock()

	g.logger.Info(context.Background(), "session locked", "reason", "idle timeout")
	if hook != nil {
		hook()
	}
}

// wipeLocked zeroes and drops all key material. Must be called with g.mu
// held.
func (g *Guard) wipeLocked() {
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	common.Wipe(g.masterKey)
	common.Wipe(g.rootSecret)
	g.masterKey = nil
	g.rootSecret = nil
}
