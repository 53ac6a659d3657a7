package health

import (
	"context"
	"time"

	"github.com/scfuzzbench/runcoord/internal/objectstore"
)

// ObjectStoreChecker reports whether the object store backing the run
// coordination core is reachable, implementing both HealthChecker and
// HealthPinger.
type ObjectStoreChecker struct {
	store   objectstore.Client
	probeKey string
	healthy bool
}

// NewObjectStoreChecker builds a checker that periodically probes probeKey
// with a Get call; probeKey need not exist, only be reachable.
func NewObjectStoreChecker(store objectstore.Client, probeKey string) *ObjectStoreChecker {
	return &ObjectStoreChecker{store: store, probeKey: probeKey}
}

func (c *ObjectStoreChecker) Name() string { return "object_store" }

func (c *ObjectStoreChecker) IsHealthy() bool { return c.healthy }

func (c *ObjectStoreChecker) HealthPing(ctx context.Context) error {
	_, _, err := c.store.Get(ctx, c.probeKey)
	return err
}

// Start periodically pings the object store and updates the cached flag.
func (c *ObjectStoreChecker) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	eval := func() {
		pingCtx, cancel := context.WithTimeout(ctx, interval/2)
		defer cancel()
		c.healthy = c.HealthPing(pingCtx) == nil
	}

	eval()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			eval()
		}
	}
}
