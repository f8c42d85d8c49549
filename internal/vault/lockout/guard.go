// Package lockout rate-limits PIN attempts with escalating penalties.
//
// A 6-digit PIN has only 10^6 possibilities. Once an attacker holds the
// stored unlock token, the only remaining defenses are the derivation cost
// and this guard: 3 cumulative failures buy a 30-second lockout, 5 buy five
// minutes, and 10 destroy the token outright, leaving full recovery-phrase
// entry as the only way back in.
package lockout

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pinvault/pinvault/internal/common"
	"github.com/pinvault/pinvault/internal/dbx"
	"github.com/pinvault/pinvault/internal/logging"
	"github.com/pinvault/pinvault/internal/storage"
	"github.com/pinvault/pinvault/internal/timex"
	"github.com/pinvault/pinvault/internal/vault/models"
)

const (
	// ShortLockoutThreshold is the cumulative failure count that starts
	// 30-second lockouts.
	ShortLockoutThreshold = 3
	// LongLockoutThreshold is the cumulative failure count that starts
	// 5-minute lockouts.
	LongLockoutThreshold = 5
	// TerminalThreshold is the cumulative failure count at which the
	// unlock token is destroyed.
	TerminalThreshold = 10

	ShortLockoutDuration = 30 * time.Second
	LongLockoutDuration  = 5 * time.Minute
)

// LockoutError rejects an attempt made inside a timed lockout window.
type LockoutError struct {
	Remaining time.Duration
}

func (e *LockoutError) Error() string {
	return fmt.Sprintf("locked out, retry in %ds", int(e.Remaining.Seconds()))
}

// Status is the answer to a lockout query.
type Status struct {
	// Locked is true while attempts are rejected, including the terminal
	// state.
	Locked bool
	// Remaining is how long the current timed window still has to run.
	// Zero in the terminal state, which never expires.
	Remaining time.Duration
	// Terminal means the token is gone and only full recovery is accepted.
	Terminal bool
	// FailedAttempts is the cumulative failure counter.
	FailedAttempts int
}

// Guard persists the failure counter across restarts and applies the
// escalation schedule. State transitions happen as a side effect of
// RegisterFailure regardless of whether the caller inspects the result.
type Guard struct {
	db     *sql.DB
	clock  timex.Clock
	logger logging.Logger
}

func NewGuard(db *sql.DB, clock timex.Clock, logger logging.Logger) *Guard {
	if logger == nil {
		logger = logging.Nop{}
	}
	return &Guard{db: db, clock: clock, logger: logger}
}

// Check is a pure, non-mutating query. Callers must consult it (directly or
// via Allow) before permitting any PIN attempt.
func (g *Guard) Check(ctx context.Context) (Status, error) {
	state, err := g.load(ctx, storage.NewSQLiteRepository(g.db))
	if err != nil {
		return Status{}, err
	}
	return g.status(state), nil
}

// Allow returns nil when an attempt may proceed, a *LockoutError carrying
// the remaining window during a timed lockout, and
// common.ErrRootSecretRequired in the terminal state.
func (g *Guard) Allow(ctx context.Context) error {
	st, err := g.Check(ctx)
	if err != nil {
		return err
	}
	switch {
	case st.Terminal:
		return common.ErrRootSecretRequired
	case st.Locked:
		return &LockoutError{Remaining: st.Remaining}
	default:
		return nil
	}
}

// RegisterFailure records a failed PIN attempt, arms the lockout window the
// new cumulative count calls for, and destroys the unlock token in the same
// transaction when the terminal threshold is reached.
func (g *Guard) RegisterFailure(ctx context.Context) (Status, error) {
	var result Status

	err := dbx.WithTx(ctx, g.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := storage.NewSQLiteRepository(tx)

		state, err := g.load(ctx, repo)
		if err != nil {
			return err
		}

		state.FailedAttempts++
		now := g.clock.Now().UTC()

		switch {
		case state.FailedAttempts >= TerminalThreshold:
			state.LockoutUntil = time.Time{}
			if err := repo.Delete(ctx, storage.KeyUnlockToken); err != nil {
				return err
			}
		case state.FailedAttempts >= LongLockoutThreshold:
			state.LockoutUntil = now.Add(LongLockoutDuration)
		case state.FailedAttempts >= ShortLockoutThreshold:
			state.LockoutUntil = now.Add(ShortLockoutDuration)
		}

		if err := g.save(ctx, repo, state); err != nil {
			return err
		}
		result = g.status(state)
		return nil
	})
	if err != nil {
		return Status{}, err
	}

	if result.Terminal {
		g.logger.Warn(ctx, "unlock token destroyed after repeated failures",
			"failed_attempts", result.FailedAttempts)
	} else if result.Locked {
		g.logger.Info(ctx, "pin attempts locked out",
			"failed_attempts", result.FailedAttempts,
			"remaining_seconds", int(result.Remaining.Seconds()))
	}
	return result, nil
}

// Reset clears the counter after a successful verification. A successful
// PIN verification cannot happen in the terminal state (the token is gone),
// so the only path out of terminal is full recovery, which also ends here.
func (g *Guard) Reset(ctx context.Context) error {
	repo := storage.NewSQLiteRepository(g.db)
	return g.save(ctx, repo, &models.LockoutState{})
}

func (g *Guard) status(state *models.LockoutState) Status {
	st := Status{FailedAttempts: state.FailedAttempts}

	if state.FailedAttempts >= TerminalThreshold {
		st.Locked = true
		st.Terminal = true
		return st
	}

	now := g.clock.Now().UTC()
	if now.Before(state.LockoutUntil) {
		st.Locked = true
		st.Remaining = state.LockoutUntil.Sub(now)
	}
	return st
}

func (g *Guard) load(ctx context.Context, repo storage.Repository) (*models.LockoutState, error) {
	b, err := repo.Get(ctx, storage.KeyLockoutState)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return &models.LockoutState{}, nil
	}

	var state models.LockoutState
	if err := json.Unmarshal(b, &state); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDecoding, err)
	}
	return &state, nil
}

func (g *Guard) save(ctx context.Context, repo storage.Repository, state *models.LockoutState) error {
	b, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("lockout state encoding: %w", err)
	}
	return repo.Set(ctx, storage.KeyLockoutState, b)
}
