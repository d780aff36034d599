package lightning

import (
	"encoding/json"

	"code.dogecoin.org/airdrop/internal/spec"
)

// Raw lightningd records, as returned over JSON-RPC.

type addressRecord struct {
	Type    string `json:"type"`
	Address string `json:"address"`
	Port    uint16 `json:"port"`
}

type nodeRecord struct {
	NodeID    string          `json:"nodeid"`
	Alias     string          `json:"alias"`
	Addresses []addressRecord `json:"addresses"`
}

type channelRecord struct {
	ShortChannelID string `json:"short_channel_id"`
	Source         string `json:"source"`
	Destination    string `json:"destination"`
	Active         bool   `json:"active"`
	Public         bool   `json:"public"`
}

type peerRecord struct {
	ID          string            `json:"id"`
	Connected   bool              `json:"connected"`
	NumChannels *int              `json:"num_channels"` // newer releases
	Channels    []json.RawMessage `json:"channels"`     // older releases
}

type listNodesResponse struct {
	Nodes []nodeRecord `json:"nodes"`
}

type listChannelsResponse struct {
	Channels []channelRecord `json:"channels"`
}

type listPeersResponse struct {
	Peers []peerRecord `json:"peers"`
}

func (n nodeRecord) toNode() spec.NetworkNode {
	addrs := make([]spec.NetworkAddress, 0, len(n.Addresses))
	for _, a := range n.Addresses {
		addrs = append(addrs, spec.NetworkAddress{
			Kind: spec.AddressKind(a.Type),
			Host: a.Address,
			Port: a.Port,
		})
	}
	return spec.NetworkNode{ID: n.NodeID, Alias: n.Alias, Addresses: addrs}
}

func (c channelRecord) toChannel() spec.Channel {
	return spec.Channel{
		ShortChannelID: c.ShortChannelID,
		Source:         c.Source,
		Destination:    c.Destination,
		Active:         c.Active,
		Public:         c.Public,
	}
}

func (p peerRecord) toPeer() spec.Peer {
	num := len(p.Channels)
	if p.NumChannels != nil {
		num = *p.NumChannels
	}
	return spec.Peer{ID: p.ID, Connected: p.Connected, NumChannels: num}
}
