package node

import (
	"context"
	"encoding/json"
	"net/http"
	"os/exec"
	"strconv"
	"time"

	"github.com/anp-network/node/internal/logger"
)

const (
	ngrokProbeTimeout = 2 * time.Second
	ngrokSpawnPoll    = 500 * time.Millisecond
	ngrokSpawnTimeout = 10 * time.Second
)

// ngrokAPIAddr is a var rather than a const so tests can point it at a
// fake local API server instead of the real ngrok agent.
var ngrokAPIAddr = "http://127.0.0.1:4040/api/tunnels"

type ngrokTunnel struct {
	PublicURL string `json:"public_url"`
	Config    struct {
		Addr string `json:"addr"`
	} `json:"config"`
}

type ngrokTunnelsResponse struct {
	Tunnels []ngrokTunnel `json:"tunnels"`
}

// detectNgrokTunnel looks for an already-running ngrok agent exposing this
// node's local port, returning its public URL. It returns ok=false whenever
// ngrok isn't reachable or isn't forwarding this port — never an error,
// since the caller treats "no tunnel" as a normal, expected outcome.
func (n *Node) detectNgrokTunnel(ctx context.Context) (string, bool) {
	client := &http.Client{Timeout: ngrokProbeTimeout}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ngrokAPIAddr, nil)
	if err != nil {
		return "", false
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", false
	}

	var parsed ngrokTunnelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", false
	}

	wantAddr := "http://localhost:" + strconv.Itoa(n.cfg.Port)
	for _, t := range parsed.Tunnels {
		if t.Config.Addr == wantAddr {
			return t.PublicURL, true
		}
	}
	return "", false
}

// spawnNgrok launches the ngrok binary (if installed) pointed at this
// node's local port, then polls the local API until the tunnel comes up or
// ngrokSpawnTimeout elapses.
func (n *Node) spawnNgrok(ctx context.Context) (string, bool) {
	binary, err := exec.LookPath("ngrok")
	if err != nil {
		return "", false
	}

	cmd := exec.CommandContext(ctx, binary, "http", strconv.Itoa(n.cfg.Port))
	if err := cmd.Start(); err != nil {
		n.log.Warn("failed to spawn ngrok", logger.Error(err))
		return "", false
	}

	deadline := time.Now().Add(ngrokSpawnTimeout)
	for time.Now().Before(deadline) {
		if url, ok := n.detectNgrokTunnel(ctx); ok {
			return url, true
		}
		select {
		case <-ctx.Done():
			return "", false
		case <-time.After(ngrokSpawnPoll):
		}
	}
	return "", false
}

// discoverOrSpawnTunnel is used when cfg.PublicURL is empty: it first looks
// for a tunnel the owner already started manually, and failing that tries
// to start one itself, mirroring the tunnel auto-configuration a node
// without a fixed public address needs to be reachable at all.
func (n *Node) discoverOrSpawnTunnel(ctx context.Context) (string, bool) {
	if url, ok := n.detectNgrokTunnel(ctx); ok {
		return url, true
	}
	return n.spawnNgrok(ctx)
}
