package spec

// NetworkNode is a participant in the network graph.
// Channels is populated when the graph is built.
type NetworkNode struct {
	ID        string
	Alias     string
	Addresses []NetworkAddress
	Channels  []Channel
}

// HasAddress is true if the node advertises at least one address.
func (n *NetworkNode) HasAddress() bool {
	return len(n.Addresses) > 0
}

// ActivePublicChannels counts incident channels that are both active and public.
func (n *NetworkNode) ActivePublicChannels() int {
	count := 0
	for _, c := range n.Channels {
		if c.Active && c.Public {
			count++
		}
	}
	return count
}

// Channel is one directed channel record from the gossip view.
type Channel struct {
	ShortChannelID string
	Source         string
	Destination    string
	Active         bool
	Public         bool
}

// Peer is a node currently connected to the local node.
type Peer struct {
	ID          string
	Connected   bool
	NumChannels int
}

// Fundable is true when the peer has no channel with us yet.
func (p Peer) Fundable() bool {
	return p.NumChannels == 0
}
