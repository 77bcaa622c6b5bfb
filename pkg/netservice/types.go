// Package netservice implements logical network services for a slice: type
// inference and validation over interface topology, per-service address
// allocation, and the stateful service facade that mutates topology-store
// objects.
package netservice

import (
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/util/sets"
)

// ServiceType is the closed enumeration of network-service variants.
type ServiceType string

const (
	// L2Bridge connects interfaces at a single site.
	L2Bridge ServiceType = "L2Bridge"
	// L2PTP is a strict point-to-point link between exactly two sites.
	L2PTP ServiceType = "L2PTP"
	// L2STS is a flexible multi-point tunnel between exactly two sites.
	L2STS ServiceType = "L2STS"

	// PortMirror duplicates traffic from one interface to another. Its
	// membership is fixed at creation.
	PortMirror ServiceType = "PortMirror"

	// L3 subnetted variants; the Ext forms can carry publicly routable
	// addresses.
	IPv4Net    ServiceType = "IPv4Net"
	IPv4NetExt ServiceType = "IPv4NetExt"
	IPv6Net    ServiceType = "IPv6Net"
	IPv6NetExt ServiceType = "IPv6NetExt"
	L3VPN      ServiceType = "L3VPN"
)

// Layer is the network layer of a service.
type Layer string

const (
	LayerL2 Layer = "L2"
	LayerL3 Layer = "L3"
)

var (
	l2Types      = sets.New(L2Bridge, L2PTP, L2STS)
	l3Types      = sets.New(IPv4Net, IPv4NetExt, IPv6Net, IPv6NetExt, L3VPN)
	specialTypes = sets.New(PortMirror)
)

// L2Types returns the L2 service variants, sorted.
func L2Types() []ServiceType { return sets.List(l2Types) }

// L3Types returns the L3 service variants, sorted.
func L3Types() []ServiceType { return sets.List(l3Types) }

// SpecialTypes returns the fixed-membership special variants, sorted.
func SpecialTypes() []ServiceType { return sets.List(specialTypes) }

// AllTypes returns every known service type, sorted.
func AllTypes() []ServiceType {
	return sets.List(l2Types.Union(l3Types).Union(specialTypes))
}

// Layer returns the layer a service type belongs to. PortMirror is treated
// as L2 since it operates on frames.
func (t ServiceType) Layer() Layer {
	if l3Types.Has(t) {
		return LayerL3
	}
	return LayerL2
}

// Known reports whether t is a member of the closed enumeration.
func (t ServiceType) Known() bool {
	return l2Types.Has(t) || l3Types.Has(t) || specialTypes.Has(t)
}

// ParseServiceType maps a type name to the enumeration.
func ParseServiceType(s string) (ServiceType, error) {
	t := ServiceType(s)
	if !t.Known() {
		return "", fmt.Errorf("unknown network service type %q", s)
	}
	return t, nil
}

// ParseL3Kind maps the short L3 network kinds accepted by the L3 factory
// onto service types.
func ParseL3Kind(kind string) (ServiceType, error) {
	switch kind {
	case "IPv4":
		return IPv4Net, nil
	case "IPv4Ext":
		return IPv4NetExt, nil
	case "IPv6":
		return IPv6Net, nil
	case "IPv6Ext":
		return IPv6NetExt, nil
	case "L3VPN":
		return L3VPN, nil
	default:
		return "", fmt.Errorf("invalid L3 network kind %q: allowed values [IPv4, IPv4Ext, IPv6, IPv6Ext, L3VPN]", kind)
	}
}

// MirrorDirection selects which traffic a PortMirror copies.
type MirrorDirection string

const (
	MirrorBoth   MirrorDirection = "both"
	MirrorRXOnly MirrorDirection = "rx"
	MirrorTXOnly MirrorDirection = "tx"
)

// ParseMirrorDirection parses a direction specifier, case-insensitively.
func ParseMirrorDirection(s string) (MirrorDirection, error) {
	switch strings.ToLower(s) {
	case "rx":
		return MirrorRXOnly, nil
	case "tx":
		return MirrorTXOnly, nil
	case "both", "":
		return MirrorBoth, nil
	default:
		return "", fmt.Errorf("unknown mirror direction %q: use rx, tx or both", s)
	}
}
