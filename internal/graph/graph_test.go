package graph

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"code.dogecoin.org/airdrop/internal/spec"
)

func addr(host string) spec.NetworkAddress {
	return spec.NetworkAddress{Kind: spec.KindIPv4, Host: host, Port: 9735}
}

func chanAB(a, b string, active, public bool) spec.Channel {
	return spec.Channel{Source: a, Destination: b, Active: active, Public: public}
}

func ids(nodes []*spec.NetworkNode) []string {
	res := make([]string, 0, len(nodes))
	for _, n := range nodes {
		res = append(res, n.ID)
	}
	return res
}

func TestPruneIsExact(t *testing.T) {
	nodes := []spec.NetworkNode{
		{ID: "a", Addresses: []spec.NetworkAddress{addr("1.1.1.1")}},
		{ID: "b"},
		{ID: "c", Addresses: []spec.NetworkAddress{}},
		{ID: "d", Addresses: []spec.NetworkAddress{addr("2.2.2.2"), addr("3.3.3.3")}},
	}
	pruned := Prune(nodes)
	require.Len(t, pruned, 2)
	assert.Equal(t, "a", pruned[0].ID)
	assert.Equal(t, "d", pruned[1].ID)

	g := Build(nodes, nil)
	assert.Len(t, g, 2)
	assert.Contains(t, g, "a")
	assert.Contains(t, g, "d")
}

func TestIndexLastWriteWins(t *testing.T) {
	g := Index([]spec.NetworkNode{
		{ID: "a", Alias: "first", Addresses: []spec.NetworkAddress{addr("1.1.1.1")}},
		{ID: "a", Alias: "second", Addresses: []spec.NetworkAddress{addr("2.2.2.2")}},
	})
	require.Len(t, g, 1)
	assert.Equal(t, "second", g["a"].Alias)
}

func TestMergeAttachesBothEndpoints(t *testing.T) {
	nodes := []spec.NetworkNode{
		{ID: "a", Addresses: []spec.NetworkAddress{addr("1.1.1.1")}},
		{ID: "b", Addresses: []spec.NetworkAddress{addr("2.2.2.2")}},
	}
	c := chanAB("a", "b", true, true)
	g := Build(nodes, []spec.Channel{c})
	assert.Equal(t, []spec.Channel{c}, g["a"].Channels)
	assert.Equal(t, []spec.Channel{c}, g["b"].Channels)

	_, channels := g.Stats()
	assert.Equal(t, 2, channels, "a channel between two nodes appears once per endpoint")
}

func TestMergeMissingEndpoint(t *testing.T) {
	nodes := []spec.NetworkNode{
		{ID: "a", Addresses: []spec.NetworkAddress{addr("1.1.1.1")}},
	}
	g := Build(nodes, []spec.Channel{
		chanAB("a", "x", true, true),
		chanAB("y", "a", true, true),
		chanAB("x", "y", true, true),
	})
	require.Len(t, g, 1)
	assert.Len(t, g["a"].Channels, 2)
}

func TestBuildDoesNotAliasInput(t *testing.T) {
	nodes := []spec.NetworkNode{
		{ID: "a", Addresses: []spec.NetworkAddress{addr("1.1.1.1")}},
	}
	Build(nodes, []spec.Channel{chanAB("a", "b", true, true)})
	assert.Empty(t, nodes[0].Channels)
}

func TestEligibleThreshold(t *testing.T) {
	nodes := []spec.NetworkNode{
		{ID: "k", Addresses: []spec.NetworkAddress{addr("1.1.1.1")}},
		{ID: "k-1", Addresses: []spec.NetworkAddress{addr("2.2.2.2")}},
		{ID: "inactive", Addresses: []spec.NetworkAddress{addr("3.3.3.3")}},
	}
	channels := []spec.Channel{
		chanAB("k", "p", true, true),
		chanAB("q", "k", true, true),
		chanAB("k", "r", true, true),
		chanAB("k-1", "p", true, true),
		chanAB("k-1", "q", true, true),
		chanAB("k-1", "r", false, true), // not active
		chanAB("k-1", "s", true, false), // not public
		chanAB("inactive", "p", false, false),
		chanAB("inactive", "q", false, true),
		chanAB("inactive", "r", true, false),
	}
	g := Build(nodes, channels)
	assert.ElementsMatch(t, []string{"k"}, ids(Eligible(g, 3)))
	assert.ElementsMatch(t, []string{"k", "k-1"}, ids(Eligible(g, 2)))
	assert.ElementsMatch(t, []string{"k", "k-1", "inactive"}, ids(Eligible(g, 0)))
}

func TestEligibleMatchesPredicate(t *testing.T) {
	var nodes []spec.NetworkNode
	var channels []spec.Channel
	for i := 0; i < 40; i++ {
		id := fmt.Sprintf("n%02d", i)
		nodes = append(nodes, spec.NetworkNode{ID: id, Addresses: []spec.NetworkAddress{addr("10.0.0.1")}})
		for j := 0; j < i%5; j++ {
			channels = append(channels, chanAB(id, fmt.Sprintf("x%d", j), j%2 == 0 || i%3 == 0, true))
		}
	}
	g := Build(nodes, channels)
	for k := 0; k <= 5; k++ {
		var want []string
		for id, n := range g {
			count := 0
			for _, c := range n.Channels {
				if c.Active && c.Public {
					count++
				}
			}
			if count >= k {
				want = append(want, id)
			}
		}
		assert.ElementsMatch(t, want, ids(Eligible(g, k)), "k=%d", k)
	}
}

func TestScenarioPrunedDestination(t *testing.T) {
	nodes := []spec.NetworkNode{
		{ID: "A", Addresses: []spec.NetworkAddress{{Kind: spec.KindIPv4, Host: "1.2.3.4", Port: 9735}}},
		{ID: "B", Addresses: []spec.NetworkAddress{}},
	}
	channels := []spec.Channel{{Source: "A", Destination: "B", Active: true, Public: true}}
	g := Build(nodes, channels)
	require.Len(t, g, 1)
	assert.Contains(t, g, "A")
	assert.Equal(t, []string{"A"}, ids(Eligible(g, 1)))
}
