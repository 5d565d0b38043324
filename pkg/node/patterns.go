package node

import (
	"context"

	"github.com/anp-network/node/pkg/patterns"
	"github.com/anp-network/node/pkg/provider"
	"github.com/anp-network/node/pkg/store"
)

// extractPatternsFn adapts patterns.Extract's signature to the closure
// queue.Manager invokes every patternExtractionEvery corrections.
func extractPatternsFn(ctx context.Context, s store.Store, p provider.Provider) (int, error) {
	return patterns.Extract(ctx, s, p, patterns.DefaultWindow)
}
