package spec

import "context"

// NodeClient is the remote procedure interface of the local node.
// Every call may hang: callers bound them with ctx.
type NodeClient interface {
	ListNodes(ctx context.Context) ([]NetworkNode, error)
	ListChannels(ctx context.Context) ([]Channel, error)
	ListPeers(ctx context.Context) ([]Peer, error)
	Connect(ctx context.Context, nodeID string, host string, port uint16) error
	FundChannel(ctx context.Context, peerID string, amountSats int64, minConf int, pushMsat int64) error
}
