// Package lightning talks to a local lightningd over its JSON-RPC unix socket.
package lightning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/hermeznetwork/tracerr"

	"code.dogecoin.org/airdrop/internal/spec"
)

// RemoteError is a JSON-RPC error returned by lightningd.
type RemoteError struct {
	Method  string `json:"-"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s (code %d)", e.Method, e.Message, e.Code)
}

type request struct {
	Version string         `json:"jsonrpc"`
	ID      uint64         `json:"id"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params"`
}

type response struct {
	Result json.RawMessage `json:"result"`
	Error  *RemoteError    `json:"error"`
}

// Client opens one socket connection per call, so calls may run
// concurrently and a cancelled call never blocks another.
type Client struct {
	path   string
	dialer net.Dialer
	nextID atomic.Uint64
}

var _ spec.NodeClient = &Client{}

// New returns a client for the lightning-rpc socket at path.
func New(path string) *Client {
	return &Client{path: path}
}

func (c *Client) Path() string {
	return c.path
}

func (c *Client) ListNodes(ctx context.Context) ([]spec.NetworkNode, error) {
	var res listNodesResponse
	if err := c.call(ctx, "listnodes", map[string]any{}, &res); err != nil {
		return nil, err
	}
	nodes := make([]spec.NetworkNode, 0, len(res.Nodes))
	for _, n := range res.Nodes {
		nodes = append(nodes, n.toNode())
	}
	return nodes, nil
}

func (c *Client) ListChannels(ctx context.Context) ([]spec.Channel, error) {
	var res listChannelsResponse
	if err := c.call(ctx, "listchannels", map[string]any{}, &res); err != nil {
		return nil, err
	}
	channels := make([]spec.Channel, 0, len(res.Channels))
	for _, ch := range res.Channels {
		channels = append(channels, ch.toChannel())
	}
	return channels, nil
}

func (c *Client) ListPeers(ctx context.Context) ([]spec.Peer, error) {
	var res listPeersResponse
	if err := c.call(ctx, "listpeers", map[string]any{}, &res); err != nil {
		return nil, err
	}
	peers := make([]spec.Peer, 0, len(res.Peers))
	for _, p := range res.Peers {
		peers = append(peers, p.toPeer())
	}
	return peers, nil
}

func (c *Client) Connect(ctx context.Context, nodeID string, host string, port uint16) error {
	return c.call(ctx, "connect", map[string]any{
		"id":   nodeID,
		"host": host,
		"port": port,
	}, nil)
}

func (c *Client) FundChannel(ctx context.Context, peerID string, amountSats int64, minConf int, pushMsat int64) error {
	return c.call(ctx, "fundchannel", map[string]any{
		"id":        peerID,
		"amount":    amountSats,
		"minconf":   minConf,
		"push_msat": pushMsat,
	}, nil)
}

// call sends one request and decodes its result into result (if not nil).
// When ctx ends first the returned error is ctx.Err().
func (c *Client) call(ctx context.Context, method string, params map[string]any, result any) error {
	conn, err := c.dialer.DialContext(ctx, "unix", c.path)
	if err != nil {
		if cerr := ctxErr(ctx, err); cerr != nil {
			return cerr
		}
		return tracerr.Wrap(fmt.Errorf("cannot connect to %s: %w", c.path, err))
	}
	defer conn.Close()

	// unblock reads and writes when ctx ends.
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now())
	})
	defer stop()

	req := request{Version: "2.0", ID: c.nextID.Add(1), Method: method, Params: params}
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		if cerr := ctxErr(ctx, err); cerr != nil {
			return cerr
		}
		return tracerr.Wrap(fmt.Errorf("%s: sending request: %w", method, err))
	}
	var res response
	if err := json.NewDecoder(conn).Decode(&res); err != nil {
		if cerr := ctxErr(ctx, err); cerr != nil {
			return cerr
		}
		return tracerr.Wrap(fmt.Errorf("%s: reading response: %w", method, err))
	}
	if res.Error != nil {
		res.Error.Method = method
		return res.Error
	}
	if result != nil {
		if err := json.Unmarshal(res.Result, result); err != nil {
			return tracerr.Wrap(fmt.Errorf("%s: decoding result: %w", method, err))
		}
	}
	return nil
}

// ctxErr maps an I/O failure caused by ctx (or its deadline) to the context error.
func ctxErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return context.DeadlineExceeded
	}
	return nil
}
