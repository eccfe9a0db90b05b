package application

import (
	"context"
	"fmt"
	"time"

	"github.com/brelli/genrepl/internal/domain"
	"github.com/brelli/genrepl/internal/ports"
)

const DefaultDecisionTTL = 15 * time.Minute

// DecisionCache memoizes tool decisions per literal query string with a TTL.
// Keys are not normalized: near-duplicate phrasings are distinct entries by
// design, since a short TTL already bounds the cost of re-classification.
//
// A misclassification must never sink the turn, so classifier failures and
// invalid decisions degrade to a cached "no tool" fallback.
type DecisionCache struct {
	classifier ports.DecisionClassifier
	clock      ports.Clock
	ttl        time.Duration

	// gate runs before each upstream classification call so that cache
	// misses pass through the same admission control as generation.
	gate func(ctx context.Context) error

	entries map[string]domain.CachedDecision
	hits    int
	misses  int
}

func NewDecisionCache(classifier ports.DecisionClassifier, clock ports.Clock, ttl time.Duration) *DecisionCache {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if ttl <= 0 {
		ttl = DefaultDecisionTTL
	}

	return &DecisionCache{
		classifier: classifier,
		clock:      clock,
		ttl:        ttl,
		entries:    map[string]domain.CachedDecision{},
	}
}

// SetGate installs the admission hook invoked before upstream
// classification calls.
func (c *DecisionCache) SetGate(gate func(ctx context.Context) error) {
	c.gate = gate
}

// Decide returns the cached decision for query when unexpired, otherwise
// classifies upstream, validates, and caches the result. The only error it
// returns is context cancellation; everything else becomes a fallback
// decision.
func (c *DecisionCache) Decide(ctx context.Context, query string) (domain.ToolDecision, error) {
	now := c.clock.Now()

	if cached, ok := c.entries[query]; ok {
		if !cached.Expired(now, c.ttl) {
			c.hits++
			return cached.Decision, nil
		}
		delete(c.entries, query)
	}

	c.misses++

	if c.gate != nil {
		if err := c.gate(ctx); err != nil {
			return domain.ToolDecision{}, err
		}
	}

	decision, err := c.classifier.Classify(ctx, query)
	switch {
	case ctx.Err() != nil:
		return domain.ToolDecision{}, ctx.Err()
	case err != nil:
		decision = domain.ToolDecision{
			Reasoning: fmt.Sprintf("classification failed, proceeding without tools: %v", err),
		}
	case !decision.IsValid():
		decision = domain.ToolDecision{
			Reasoning: "invalid tool configuration, proceeding without tools",
		}
	}

	c.entries[query] = domain.CachedDecision{Decision: decision, StoredAt: c.clock.Now()}

	return decision, nil
}

func (c *DecisionCache) Clear() {
	c.entries = map[string]domain.CachedDecision{}
}

type CacheStats struct {
	Size    int
	Hits    int
	Misses  int
	HitRate float64
}

func (c *DecisionCache) Stats() CacheStats {
	total := c.hits + c.misses

	var rate float64
	if total > 0 {
		rate = float64(c.hits) / float64(total)
	}

	return CacheStats{
		Size:    len(c.entries),
		Hits:    c.hits,
		Misses:  c.misses,
		HitRate: rate,
	}
}
