// Package funder opens channels to connected peers that have none.
package funder

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"code.dogecoin.org/airdrop/internal/log"
	"code.dogecoin.org/airdrop/internal/metric"
	"code.dogecoin.org/airdrop/internal/pool"
	"code.dogecoin.org/airdrop/internal/spec"
)

const (
	DefaultAmountSats     = 16000000
	DefaultMaxFundings    = 25
	DefaultAttemptTimeout = 5 * time.Second
	DefaultListTimeout    = 30 * time.Second
	MsatPerSat            = 1000
)

type Config struct {
	AmountSats     int64
	PushFraction   *big.Rat // share of AmountSats pushed to the peer, in [0,1]
	MaxFundings    int      // 0 means no cap
	MinConf        int
	AttemptTimeout time.Duration
	ListTimeout    time.Duration // bounds the listpeers call
}

func DefaultConfig() Config {
	return Config{
		AmountSats:     DefaultAmountSats,
		PushFraction:   big.NewRat(1, 2),
		MaxFundings:    DefaultMaxFundings,
		AttemptTimeout: DefaultAttemptTimeout,
		ListTimeout:    DefaultListTimeout,
	}
}

// PushMsat is the amount pushed to the peer, in millisatoshi.
// The fraction is applied in whole satoshis, rounding down.
func PushMsat(amountSats int64, fraction *big.Rat) int64 {
	if fraction == nil || fraction.Sign() <= 0 {
		return 0
	}
	push := new(big.Int).Mul(big.NewInt(amountSats), fraction.Num())
	push.Quo(push, fraction.Denom())
	return push.Int64() * MsatPerSat
}

// ValidFraction reports whether r is a rational in [0,1].
func ValidFraction(r *big.Rat) error {
	if r == nil {
		return fmt.Errorf("push fraction is not set")
	}
	if r.Sign() < 0 || r.Cmp(big.NewRat(1, 1)) > 0 {
		return fmt.Errorf("push fraction %v is outside [0,1]", r.RatString())
	}
	return nil
}

type Funder struct {
	client spec.NodeClient
	pool   *pool.Pool
	cfg    Config
}

func New(client spec.NodeClient, workers *pool.Pool, cfg Config) *Funder {
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = DefaultAttemptTimeout
	}
	if cfg.ListTimeout <= 0 {
		cfg.ListTimeout = DefaultListTimeout
	}
	return &Funder{client: client, pool: workers, cfg: cfg}
}

// FundUnfunded opens a channel to every live peer without one, up to
// MaxFundings. Only a failure to list peers is returned as an error.
func (f *Funder) FundUnfunded(ctx context.Context) (int, error) {
	peers, err := f.listPeers(ctx)
	if err != nil {
		return 0, fmt.Errorf("listpeers: %w", err)
	}
	fundable := make([]spec.Peer, 0, len(peers))
	for _, p := range peers {
		if p.Fundable() {
			fundable = append(fundable, p)
		}
	}
	log.Infof("[fund] %d of %d peers have no channel", len(fundable), len(peers))

	pushMsat := PushMsat(f.cfg.AmountSats, f.cfg.PushFraction)
	count := 0
	for i, p := range fundable {
		if f.cfg.MaxFundings > 0 && count >= f.cfg.MaxFundings {
			log.Infof("[fund] reached %d fundings, skipping %d peers", count, len(fundable)-i)
			break
		}
		if ctx.Err() != nil {
			log.Warnw("[fund] run cancelled", "funded", count)
			break
		}
		peer := p
		out := f.pool.Do(pool.Task{
			Stage:   spec.StageFund,
			Target:  peer.ID,
			Timeout: f.cfg.AttemptTimeout,
			Op: func(ctx context.Context) error {
				return f.client.FundChannel(ctx, peer.ID, f.cfg.AmountSats, f.cfg.MinConf, pushMsat)
			},
		})
		if !out.OK() {
			log.Warnw("[fund] funding failed", "peer", peer.ID, "outcome", out.Kind, "err", out.Err)
			continue
		}
		count++
		metric.Funded.Set(float64(count))
		log.Infof("[fund] funded channel with %s", peer.ID)
	}
	return count, nil
}

func (f *Funder) listPeers(ctx context.Context) ([]spec.Peer, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.ListTimeout)
	defer cancel()
	return f.client.ListPeers(ctx)
}
