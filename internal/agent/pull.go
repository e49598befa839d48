package agent

import (
	"context"
	"sync"
	"time"

	"github.com/convoy-ops/convoy/internal/metrics"
	"github.com/convoy-ops/convoy/internal/types"
)

// pullDedupWindow is how long a completed pull's log is reused for
// identical requests. Concurrent deploys of the same image across many
// deployments should hit the registry once, not once per deployment.
const pullDedupWindow = 5000 * time.Millisecond

// pullRecord caches the outcome of one image pull.
type pullRecord struct {
	mu   sync.Mutex
	log  types.Log
	err  error
	done time.Time
}

// PullCache deduplicates concurrent and near-concurrent image pulls per
// image name. Callers racing on the same image serialize on its record;
// whoever loses the race gets the winner's log back verbatim.
type PullCache struct {
	mu      sync.Mutex
	records map[string]*pullRecord
}

// NewPullCache creates an empty cache.
func NewPullCache() *PullCache {
	return &PullCache{records: make(map[string]*pullRecord)}
}

func (p *PullCache) recordFor(name string) *pullRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.records[name]
	if !ok {
		rec = &pullRecord{}
		p.records[name] = rec
	}
	return rec
}

// Pull pulls the image through the client, deduplicating against other
// in-flight or recently completed pulls of the same image name.
func (p *PullCache) Pull(ctx context.Context, client *Client, params PullImageParams) (types.Log, error) {
	rec := p.recordFor(params.Name)
	rec.mu.Lock()
	defer rec.mu.Unlock()

	if !rec.done.IsZero() && time.Since(rec.done) < pullDedupWindow {
		metrics.IncDedupedPull()
		return rec.log, rec.err
	}

	rec.log, rec.err = client.pullImage(ctx, params)
	rec.done = time.Now()
	return rec.log, rec.err
}
