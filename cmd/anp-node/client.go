package main

import (
	"context"

	"github.com/anp-network/node/pkg/node"
)

// openNode wires a *node.Node for administrative subcommands: it loads
// config, opens the store, and constructs the node, but never calls Run —
// there is no HTTP server and no background loop, just direct access to the
// node's store, trust manager, and identity for one-shot CLI operations.
func openNode(ctx context.Context) (*node.Node, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	log := newConfiguredLogger(cfg)

	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	prov, err := newProvider(cfg.Provider)
	if err != nil {
		return nil, err
	}

	return node.New(cfg, log, st, prov)
}
