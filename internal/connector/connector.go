// Package connector connects the local node to candidate peers, one address
// at a time, through the shared worker pool.
package connector

import (
	"context"
	"time"

	"code.dogecoin.org/airdrop/internal/log"
	"code.dogecoin.org/airdrop/internal/metric"
	"code.dogecoin.org/airdrop/internal/pool"
	"code.dogecoin.org/airdrop/internal/spec"
)

const DefaultAttemptTimeout = 3 * time.Second

type Config struct {
	AttemptTimeout time.Duration
	AddressKinds   []spec.AddressKind
	MaxConnections int // stop after this many successes; 0 means no cap
}

func DefaultConfig() Config {
	return Config{
		AttemptTimeout: DefaultAttemptTimeout,
		AddressKinds:   spec.DefaultAddressKinds,
	}
}

type Connector struct {
	client spec.NodeClient
	pool   *pool.Pool
	cfg    Config
	kinds  map[spec.AddressKind]bool
}

func New(client spec.NodeClient, workers *pool.Pool, cfg Config) *Connector {
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = DefaultAttemptTimeout
	}
	if cfg.AddressKinds == nil {
		cfg.AddressKinds = spec.DefaultAddressKinds
	}
	kinds := make(map[spec.AddressKind]bool, len(cfg.AddressKinds))
	for _, k := range cfg.AddressKinds {
		kinds[k] = true
	}
	return &Connector{client: client, pool: workers, cfg: cfg, kinds: kinds}
}

// ConnectAll walks the candidates in order and returns how many of them
// accepted a connection. Failed attempts are logged, never returned.
func (c *Connector) ConnectAll(ctx context.Context, candidates []*spec.NetworkNode) int {
	count := 0
	attempts := 0
	for _, node := range candidates {
		if c.cfg.MaxConnections > 0 && count >= c.cfg.MaxConnections {
			log.Infof("[connect] reached %d connections, skipping %d remaining nodes", count, len(candidates)-attempts)
			break
		}
		if ctx.Err() != nil {
			log.Warnw("[connect] run cancelled", "connected", count)
			break
		}
		attempts++
		if c.connectNode(node) {
			count++
			metric.Connected.Set(float64(count))
		}
		log.Infof("[connect] connected %d of %d/%d", count, attempts, len(candidates))
	}
	return count
}

// connectNode tries the node's addresses in listed order until one succeeds.
func (c *Connector) connectNode(node *spec.NetworkNode) bool {
	for _, a := range node.Addresses {
		if !c.kinds[a.Kind] {
			log.Debugw("[connect] skipping unsupported address", "node", node.ID, "kind", a.Kind)
			continue
		}
		if !a.IsValid() {
			log.Debugw("[connect] skipping incomplete address", "node", node.ID, "address", a.String())
			continue
		}
		if a.IsNull() {
			log.Debugw("[connect] skipping null address", "node", node.ID, "address", a.String())
			continue
		}
		addr := a
		out := c.pool.Do(pool.Task{
			Stage:   spec.StageConnect,
			Target:  node.ID,
			Address: addr.String(),
			Timeout: c.cfg.AttemptTimeout,
			Op: func(ctx context.Context) error {
				return c.client.Connect(ctx, node.ID, addr.Host, addr.Port)
			},
		})
		if out.OK() {
			log.Debugw("[connect] connected", "node", node.ID, "address", addr.String(), "elapsed", out.Elapsed)
			return true
		}
		log.Warnw("[connect] attempt failed", "node", node.ID, "address", addr.String(), "outcome", out.Kind, "err", out.Err)
		if out.Kind == pool.Cancelled {
			return false
		}
	}
	log.Infow("[connect] unable to connect", "node", node.ID)
	return false
}
