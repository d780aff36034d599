package spec

import (
	"net"
	"strconv"
)

// AddressKind is the transport kind of an advertised node address.
type AddressKind string

const (
	KindIPv4  AddressKind = "ipv4"
	KindIPv6  AddressKind = "ipv6"
	KindTorV2 AddressKind = "torv2"
	KindTorV3 AddressKind = "torv3"
)

// DefaultAddressKinds are the kinds the connector will dial.
var DefaultAddressKinds = []AddressKind{KindIPv4, KindIPv6, KindTorV2, KindTorV3}

// KnownAddressKind reports whether kind is one of the dialable kinds.
// Other kinds (dns, websocket, ...) are unsupported.
func KnownAddressKind(kind AddressKind) bool {
	switch kind {
	case KindIPv4, KindIPv6, KindTorV2, KindTorV3:
		return true
	}
	return false
}

// NetworkAddress is an address advertised by a node in the network graph.
type NetworkAddress struct {
	Kind AddressKind
	Host string
	Port uint16
}

// Host values that nodes advertise but can never be dialed.
// Some nodes have a poorly configured ipv6 of '::'
var nullHosts = map[string]bool{
	"0.0.0.0":   true,
	"127.0.0.1": true,
	"::":        true,
}

func (a NetworkAddress) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(int(a.Port)))
}

// IsNull is true for unspecified and loopback hosts.
func (a NetworkAddress) IsNull() bool {
	if nullHosts[a.Host] {
		return true
	}
	ip := net.ParseIP(a.Host)
	if ip == nil {
		return false // onion host
	}
	return ip.IsUnspecified() || ip.IsLoopback()
}

// IsValid is false for addresses that cannot be dialed at all.
func (a NetworkAddress) IsValid() bool {
	return a.Host != "" && a.Port != 0
}
