package coord

import "errors"

// Object-store client error kinds (spec §4.1, §7). NotFound is never fatal;
// Transient is retried by the client itself before surfacing; Fatal means
// the caller should stop.
var (
	ErrNotFound  = errors.New("object not found")
	ErrTransient = errors.New("transient object-store error")
	ErrFatal     = errors.New("fatal object-store error")
)

// Lock error kinds (spec §4.2, §7).
var (
	ErrOwnerMismatch         = errors.New("lock owner mismatch")
	ErrLockMissing           = errors.New("lock object missing")
	ErrTimeoutWaitingForLock = errors.New("timeout waiting for lock")
	ErrRaceLost              = errors.New("lost acquire race to another owner")
)

// Queue/claim error kinds (spec §4.3).
var (
	ErrNoShardsProvided = errors.New("no shards were provided")
	ErrDuplicateShard   = errors.New("duplicate shard_key")
	ErrInvalidShardSpec = errors.New("invalid shard spec")
	ErrNoClaimableShard = errors.New("no claimable shard")
)
