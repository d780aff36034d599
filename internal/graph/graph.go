// Package graph indexes a snapshot of the network by node id and selects
// well-connected nodes from it.
package graph

import (
	"sort"

	"code.dogecoin.org/airdrop/internal/spec"
)

// DefaultMinActiveChannels is the eligibility threshold used by the tool.
const DefaultMinActiveChannels = 2

// Graph maps node id to node. It is read-only once Build returns.
type Graph map[string]*spec.NetworkNode

// Build prunes unreachable nodes, indexes the rest and attaches channels.
func Build(nodes []spec.NetworkNode, channels []spec.Channel) Graph {
	g := Index(Prune(nodes))
	g.Merge(channels)
	return g
}

// Prune keeps only nodes with at least one advertised address.
func Prune(nodes []spec.NetworkNode) []spec.NetworkNode {
	res := make([]spec.NetworkNode, 0, len(nodes))
	for _, n := range nodes {
		if n.HasAddress() {
			res = append(res, n)
		}
	}
	return res
}

// Index keys nodes by id. Ids are unique in the source feed; a duplicate
// replaces the earlier record.
func Index(nodes []spec.NetworkNode) Graph {
	g := make(Graph, len(nodes))
	for i := range nodes {
		node := nodes[i] // copy: the graph owns its nodes
		node.Channels = nil
		g[node.ID] = &node
	}
	return g
}

// Merge attaches each channel to its source and to its destination,
// independently, whichever of them is in the graph.
func (g Graph) Merge(channels []spec.Channel) {
	for _, c := range channels {
		if n, found := g[c.Source]; found {
			n.Channels = append(n.Channels, c)
		}
		if n, found := g[c.Destination]; found {
			n.Channels = append(n.Channels, c)
		}
	}
}

// Eligible returns the nodes with at least minActive active public channels.
// The result is sorted by node id; callers should treat it as a set.
func Eligible(g Graph, minActive int) []*spec.NetworkNode {
	eligible := make([]*spec.NetworkNode, 0)
	for _, n := range g {
		if n.ActivePublicChannels() >= minActive {
			eligible = append(eligible, n)
		}
	}
	sort.Slice(eligible, func(i, j int) bool {
		return eligible[i].ID < eligible[j].ID
	})
	return eligible
}

// Stats for progress logging.
func (g Graph) Stats() (nodes int, channels int) {
	for _, n := range g {
		channels += len(n.Channels)
	}
	return len(g), channels
}
