// Package lock implements the single global benchmark-run lock (spec.md
// §4.2): a lease acquired by overwrite, renewed by heartbeat, released by
// delete, using a settle-delay read-after-write confirmation in place of
// compare-and-swap. Grounded on original_source/scripts/s3_lock.py.
package lock

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/scfuzzbench/runcoord/internal/coord"
	"github.com/scfuzzbench/runcoord/internal/objectstore"
)

// settleDelay is the pause between a tentative lock write and the
// confirmation read that decides whether this caller actually won it.
const settleDelay = 600 * time.Millisecond

// Manager acquires, renews and releases the global lock for one owner.
type Manager struct {
	store Client
	key   string
	log   zerolog.Logger
}

// Client is the subset of objectstore.Client the lock needs.
type Client = objectstore.Client

// New builds a Manager targeting the given lock key (spec.md's default is
// runs/_control/global-lock.json, see coord.GlobalLockKey).
func New(store Client, key string, log zerolog.Logger) *Manager {
	if key == "" {
		key = coord.GlobalLockKey()
	}
	return &Manager{store: store, key: key, log: log}
}

// Read returns the current lock payload, if any, and whether it is expired.
func (m *Manager) Read(ctx context.Context) (lock *coord.Lock, expired bool, err error) {
	var l coord.Lock
	found, err := objectstore.GetJSON(ctx, m.store, m.key, &l)
	if err != nil {
		return nil, true, err
	}
	if !found {
		return nil, true, nil
	}
	return &l, l.Expired(time.Now()), nil
}

func (m *Manager) build(owner, runID, benchmarkUUID, actor string, leaseSeconds int, previousGeneration int64) *coord.Lock {
	now := time.Now().UTC()
	expires := now.Add(time.Duration(max(leaseSeconds, 1)) * time.Second)
	return &coord.Lock{
		Owner:           owner,
		RunID:           runID,
		BenchmarkUUID:   benchmarkUUID,
		Generation:      previousGeneration + 1,
		Token:           uuid.New().String(),
		LeaseSeconds:    leaseSeconds,
		UpdatedBy:       actor,
		AcquiredAt:      now.Format(time.RFC3339),
		AcquiredAtEpoch: now.Unix(),
		ExpiresAt:       expires.Format(time.RFC3339),
		ExpiresAtEpoch:  expires.Unix(),
	}
}

// AcquireOptions configures one Acquire call.
type AcquireOptions struct {
	Owner               string
	RunID               string
	BenchmarkUUID       string
	Actor               string
	LeaseSeconds        int
	PollSeconds         float64
	AcquireTimeoutSeconds int // 0 = unbounded
}

// Acquire polls until it wins the lock or AcquireTimeoutSeconds elapses.
// Races between simultaneous acquirers are resolved by the settle-delay
// read-after-write confirmation: at most one will find its token
// preserved; losers back off and retry.
func (m *Manager) Acquire(ctx context.Context, opt AcquireOptions) (*coord.Lock, error) {
	poll := opt.PollSeconds
	if poll <= 0 {
		poll = 5.0
	}
	lease := opt.LeaseSeconds
	if lease < 1 {
		lease = 1
	}
	started := time.Now()

	for {
		existing, expired, err := m.Read(ctx)
		if err != nil {
			return nil, err
		}

		if existing != nil && !expired && existing.Owner != opt.Owner {
			if opt.AcquireTimeoutSeconds > 0 && time.Since(started) >= time.Duration(opt.AcquireTimeoutSeconds)*time.Second {
				return nil, fmt.Errorf("%w: held by %s", coord.ErrTimeoutWaitingForLock, existing.Owner)
			}
			if err := sleepJittered(ctx, poll); err != nil {
				return nil, err
			}
			continue
		}

		var previousGeneration int64
		if existing != nil {
			previousGeneration = existing.Generation
		}
		payload := m.build(opt.Owner, opt.RunID, opt.BenchmarkUUID, opt.Actor, lease, previousGeneration)
		if err := objectstore.PutJSON(ctx, m.store, m.key, payload); err != nil {
			return nil, err
		}

		if err := sleepCtx(ctx, settleDelay); err != nil {
			return nil, err
		}

		var confirmed coord.Lock
		found, err := objectstore.GetJSON(ctx, m.store, m.key, &confirmed)
		if err != nil {
			return nil, err
		}
		if found && confirmed.Owner == opt.Owner && confirmed.Token == payload.Token {
			m.log.Info().Str("owner", opt.Owner).Int64("generation", confirmed.Generation).Msg("lock acquired")
			return &confirmed, nil
		}

		if opt.AcquireTimeoutSeconds > 0 && time.Since(started) >= time.Duration(opt.AcquireTimeoutSeconds)*time.Second {
			return nil, fmt.Errorf("%w: lost acquire race", coord.ErrTimeoutWaitingForLock)
		}
		if err := sleepJittered(ctx, poll); err != nil {
			return nil, err
		}
	}
}

// Heartbeat renews the lease. It fails with ErrOwnerMismatch if another
// owner's unexpired token is present, or ErrLockMissing if the object is
// gone. Callers MUST treat any heartbeat failure as loss of the lock.
func (m *Manager) Heartbeat(ctx context.Context, opt AcquireOptions) (*coord.Lock, error) {
	existing, expired, err := m.Read(ctx)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("%w", coord.ErrLockMissing)
	}
	if existing.Owner != opt.Owner && !expired {
		return nil, fmt.Errorf("%w: held by %s", coord.ErrOwnerMismatch, existing.Owner)
	}
	if existing.Owner != opt.Owner {
		return nil, fmt.Errorf("%w: expired and claimed by %s", coord.ErrOwnerMismatch, existing.Owner)
	}

	lease := opt.LeaseSeconds
	if lease < 1 {
		lease = 1
	}
	payload := m.build(opt.Owner, opt.RunID, opt.BenchmarkUUID, opt.Actor, lease, existing.Generation)
	if err := objectstore.PutJSON(ctx, m.store, m.key, payload); err != nil {
		return nil, err
	}

	var confirmed coord.Lock
	found, err := objectstore.GetJSON(ctx, m.store, m.key, &confirmed)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: missing after heartbeat write", coord.ErrLockMissing)
	}
	if confirmed.Owner != opt.Owner {
		return nil, fmt.Errorf("%w: after heartbeat write, held by %s", coord.ErrOwnerMismatch, confirmed.Owner)
	}
	return &confirmed, nil
}

// Release deletes the lock if it is owned by owner, expired, or already
// missing. It is idempotent.
func (m *Manager) Release(ctx context.Context, owner string) error {
	existing, expired, err := m.Read(ctx)
	if err != nil {
		return err
	}
	if existing == nil {
		return nil
	}
	if existing.Owner != owner && !expired {
		return fmt.Errorf("%w: held by %s", coord.ErrOwnerMismatch, existing.Owner)
	}
	return m.store.Delete(ctx, m.key)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// sleepJittered sleeps pollSeconds plus up to 25% jitter, per spec.md §5.
func sleepJittered(ctx context.Context, pollSeconds float64) error {
	jitter := pollSeconds * 0.25 * rand.Float64()
	return sleepCtx(ctx, time.Duration((pollSeconds+jitter)*float64(time.Second)))
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
