// Package lntest provides a scriptable in-memory node client for tests.
package lntest

import (
	"context"
	"errors"
	"sync"

	"code.dogecoin.org/airdrop/internal/spec"
)

// ErrRejected is the default remote failure.
var ErrRejected = errors.New("remote rejected the request")

type ConnectCall struct {
	NodeID string
	Host   string
	Port   uint16
}

type FundCall struct {
	PeerID     string
	AmountSats int64
	MinConf    int
	PushMsat   int64
}

// Client implements spec.NodeClient. Connect and FundChannel succeed
// unless ConnectFn / FundFn say otherwise.
type Client struct {
	Nodes    []spec.NetworkNode
	Channels []spec.Channel
	Peers    []spec.Peer
	ListErr  error

	ConnectFn func(ctx context.Context, call ConnectCall) error
	FundFn    func(ctx context.Context, call FundCall) error

	mu       sync.Mutex
	connects []ConnectCall
	fundings []FundCall
}

var _ spec.NodeClient = &Client{}

func (c *Client) ListNodes(ctx context.Context) ([]spec.NetworkNode, error) {
	return c.Nodes, c.ListErr
}

func (c *Client) ListChannels(ctx context.Context) ([]spec.Channel, error) {
	return c.Channels, c.ListErr
}

func (c *Client) ListPeers(ctx context.Context) ([]spec.Peer, error) {
	return c.Peers, c.ListErr
}

func (c *Client) Connect(ctx context.Context, nodeID string, host string, port uint16) error {
	call := ConnectCall{NodeID: nodeID, Host: host, Port: port}
	c.mu.Lock()
	c.connects = append(c.connects, call)
	c.mu.Unlock()
	if c.ConnectFn != nil {
		return c.ConnectFn(ctx, call)
	}
	return nil
}

func (c *Client) FundChannel(ctx context.Context, peerID string, amountSats int64, minConf int, pushMsat int64) error {
	call := FundCall{PeerID: peerID, AmountSats: amountSats, MinConf: minConf, PushMsat: pushMsat}
	c.mu.Lock()
	c.fundings = append(c.fundings, call)
	c.mu.Unlock()
	if c.FundFn != nil {
		return c.FundFn(ctx, call)
	}
	return nil
}

// Connects returns every Connect call made so far, in order.
func (c *Client) Connects() []ConnectCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ConnectCall(nil), c.connects...)
}

// Fundings returns every FundChannel call made so far, in order.
func (c *Client) Fundings() []FundCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]FundCall(nil), c.fundings...)
}

// Hang blocks until ctx is done, like a remote that never answers.
func Hang(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}
