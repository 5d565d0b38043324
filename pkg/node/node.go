// Package node wires every other package into a runnable process: it owns
// the HTTP server, the inbound/outbound processing loops, and the gossip
// timer, and serves the node's HTTP and WebSocket API. Outside it, only
// pkg/transport and pkg/provider (as HTTP clients) and internal/metrics (for
// the /metrics endpoint) import net/http; the core packages (store,
// identity, message, maturity, trust, queue, engine) stay ignorant of HTTP,
// WebSocket, and process lifecycle concerns.
package node

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/anp-network/node/internal/config"
	"github.com/anp-network/node/internal/logger"
	"github.com/anp-network/node/pkg/engine"
	"github.com/anp-network/node/pkg/identity"
	"github.com/anp-network/node/pkg/maturity"
	"github.com/anp-network/node/pkg/provider"
	"github.com/anp-network/node/pkg/queue"
	"github.com/anp-network/node/pkg/store"
	"github.com/anp-network/node/pkg/transport"
	"github.com/anp-network/node/pkg/trust"
)

const (
	gossipInterval  = 5 * time.Minute
	gossipMinTrust  = 0.4
	bootstrapTrust  = 0.3
	nodeVersion     = "0.2.0"
	resolveTimeout  = 10 * time.Second
	sendTimeout     = 30 * time.Second
)

// Node orchestrates a single agent process: the store-backed lifecycle
// engine, the wire-protocol transport, and the HTTP/WebSocket surface that
// exposes both to remote peers and to the local owner-facing UI.
type Node struct {
	cfg      *config.Config
	log      logger.Logger
	store    store.Store
	identity *identity.Identity
	provider provider.Provider

	trust    *trust.Manager
	engine   *engine.Engine
	resolver *transport.Resolver
	sender   *transport.Sender
	receiver *transport.Receiver
	limiter  *transport.IPRateLimiter
	queue    *queue.Manager
	hub      *wsHub

	authSecret []byte
	authToken  string
	publicURL  string

	mu         sync.RWMutex
	running    bool
	httpServer *http.Server
}

// New wires a Node from cfg. It loads or generates identity under
// cfg.Storage.Root, and does not itself start any network listener or
// background loop — call Run for that.
func New(cfg *config.Config, log logger.Logger, st store.Store, prov provider.Provider) (*Node, error) {
	id, err := identity.LoadOrGenerate(cfg.Storage.Root, cfg.NodeName, effectiveHost(cfg))
	if err != nil {
		return nil, fmt.Errorf("node: load or generate identity: %w", err)
	}

	resolver := transport.NewResolver(resolveTimeout)
	sender := transport.NewSender(resolver, sendTimeout)
	receiver := transport.NewReceiver(resolver)
	trustMgr := trust.NewManager(st)
	eng := engine.New(st, prov, log)
	limiter := transport.NewIPRateLimiter()

	n := &Node{
		cfg:      cfg,
		log:      log,
		store:    st,
		identity: id,
		provider: prov,
		trust:    trustMgr,
		engine:   eng,
		resolver: resolver,
		sender:   sender,
		receiver: receiver,
		limiter:  limiter,
		hub:      newWSHub(),
		publicURL: cfg.PublicURL,
	}

	n.queue = queue.New(st, trustMgr, eng, sender, id, log, n.extractPatterns)
	n.queue.Subscribe(n.hub.broadcast)

	return n, nil
}

func effectiveHost(cfg *config.Config) string {
	if cfg.PublicURL != "" {
		return stripScheme(cfg.PublicURL)
	}
	return fmt.Sprintf("%s:%d", cfg.Domain, cfg.Port)
}

func stripScheme(url string) string {
	for _, prefix := range []string{"https://", "http://"} {
		if len(url) > len(prefix) && url[:len(prefix)] == prefix {
			return url[len(prefix):]
		}
	}
	return url
}

// Run validates configuration, optionally discovers a public tunnel,
// reconciles the identity host, restores pending reviews, and then
// supervises the four long-lived tasks — HTTP server, inbound loop,
// outbound loop, gossip timer — until ctx is cancelled. It returns once
// every task has exited.
func (n *Node) Run(ctx context.Context) error {
	for _, problem := range n.cfg.Validate() {
		n.log.Warn("configuration problem", logger.String("detail", problem))
	}

	if n.cfg.PublicURL == "" {
		if url, ok := n.discoverOrSpawnTunnel(ctx); ok {
			n.publicURL = url
			n.cfg.PublicURL = url
			n.log.Info("tunnel discovered", logger.String("public_url", url))
		}
	}

	if host := effectiveHost(n.cfg); host != "" {
		if currentHost, err := identity.Host(n.identity.DID()); err == nil && currentHost != host {
			if err := n.identity.UpdateHost(host, n.cfg.Storage.Root); err != nil {
				n.log.Warn("failed to reconcile identity host", logger.Error(err))
			} else {
				n.log.Info("identity host reconciled", logger.String("host", host))
			}
		}
	}

	if err := n.queue.RestorePending(ctx); err != nil {
		n.log.Warn("failed to restore pending reviews", logger.Error(err))
	}
	n.log.Info("pending reviews restored", logger.Int("count", n.queue.PendingCount()))

	n.authSecret = newAuthSecret()
	token, err := newAuthToken(n.authSecret)
	if err != nil {
		return fmt.Errorf("node: issue bearer token: %w", err)
	}
	n.authToken = token
	n.log.Info("local API bearer token issued", logger.String("token", n.authToken))

	n.mu.Lock()
	n.running = true
	n.mu.Unlock()

	group, gctx := errgroup.WithContext(ctx)

	if n.cfg.BootstrapPeer != "" {
		group.Go(func() error {
			n.bootstrapPeer(gctx, n.cfg.BootstrapPeer)
			return nil
		})
	}

	group.Go(func() error { return n.queue.RunInbound(gctx) })
	group.Go(func() error { return n.queue.RunOutbound(gctx) })
	group.Go(func() error { return n.runGossipLoop(gctx) })
	group.Go(func() error { return n.runHTTPServer(gctx) })

	err = group.Wait()
	n.mu.Lock()
	n.running = false
	n.mu.Unlock()
	if err != nil && err != context.Canceled {
		return err
	}
	return nil
}

// Identity returns the node's own identity, for callers (CLI subcommands,
// startup logging) that need it without going through the HTTP API.
func (n *Node) Identity() *identity.Identity {
	return n.identity
}

// Store returns the node's underlying store, for CLI subcommands that read
// or mutate node state directly without a running HTTP server.
func (n *Node) Store() store.Store {
	return n.store
}

// Trust returns the node's trust manager, for CLI subcommands that manage
// peers directly without a running HTTP server.
func (n *Node) Trust() *trust.Manager {
	return n.trust
}

// UpdateHost rewrites the identifier's host component, for when the node
// moves to a new domain or port. The key pair is untouched.
func (n *Node) UpdateHost(newHost string) error {
	return n.identity.UpdateHost(newHost, n.cfg.Storage.Root)
}

// Shutdown stops the HTTP server gracefully. The remaining loops exit on
// their own once the context passed to Run is cancelled.
func (n *Node) Shutdown(ctx context.Context) error {
	n.mu.RLock()
	srv := n.httpServer
	n.mu.RUnlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (n *Node) extractPatterns() (int, error) {
	return extractPatternsFn(context.Background(), n.store, n.provider)
}

// State is the owner-facing snapshot served at the health/state endpoints.
type State struct {
	Status            string  `json:"status"`
	DID               string  `json:"did"`
	NodeName          string  `json:"node_name"`
	Domain            string  `json:"domain"`
	PeerCount         int     `json:"peer_count"`
	PendingCount      int     `json:"pending_count"`
	Mood              string  `json:"mood"`
	UsedTokens        int64   `json:"used_tokens"`
	MonthlyLimit      int64   `json:"monthly_limit_tokens"`
	CallsTotal        int64   `json:"calls_total"`
	Maturity          float64 `json:"maturity"`
	MaturityLabel     string  `json:"maturity_label"`
	CorrectionsCount  int     `json:"corrections_count"`
	PatternsCount     int     `json:"patterns_count"`
	OverBudget        bool    `json:"over_budget,omitempty"`
	PublicURL         string  `json:"public_url,omitempty"`
	Version           string  `json:"version,omitempty"`
	LastPeerActivity  string  `json:"last_peer_activity,omitempty"`
}

// GetState returns the current node snapshot for the UI and health checks.
func (n *Node) GetState(ctx context.Context) (State, error) {
	budget, err := n.store.ReadBudget(ctx)
	if err != nil {
		return State{}, err
	}
	score, err := maturity.Calculate(ctx, n.store)
	if err != nil {
		return State{}, err
	}
	corrections, err := n.store.CorrectionCount(ctx)
	if err != nil {
		return State{}, err
	}
	patterns, err := n.store.PatternCount(ctx)
	if err != nil {
		return State{}, err
	}
	peerCount, err := n.trust.PeerCount(ctx)
	if err != nil {
		return State{}, err
	}
	overBudget, err := n.store.IsOverBudget(ctx)
	if err != nil {
		return State{}, err
	}

	n.mu.RLock()
	running := n.running
	n.mu.RUnlock()

	status := "offline"
	if running {
		status = "online"
	}

	peers, err := n.trust.GetAll(ctx)
	if err != nil {
		return State{}, err
	}
	var lastActivity string
	for _, p := range peers {
		if p.LastSeen > lastActivity {
			lastActivity = p.LastSeen
		}
	}

	return State{
		Status:           status,
		DID:              n.identity.DID(),
		NodeName:         n.cfg.NodeName,
		Domain:           n.cfg.Domain,
		PeerCount:        peerCount,
		PendingCount:     n.queue.PendingCount(),
		Mood:             budget.Mood,
		UsedTokens:       budget.UsedTokens,
		MonthlyLimit:     budget.MonthlyLimitTokens,
		CallsTotal:       budget.CallsTotal,
		Maturity:         score,
		MaturityLabel:    maturity.Label(score),
		CorrectionsCount: corrections,
		PatternsCount:    patterns,
		OverBudget:       overBudget,
		PublicURL:        n.publicURL,
		Version:          nodeVersion,
		LastPeerActivity: lastActivity,
	}, nil
}
