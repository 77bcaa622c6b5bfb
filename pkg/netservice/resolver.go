package netservice

import (
	"fmt"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/sliceworks/slicenet/pkg/topology"
)

// ResolveL2Type computes the L2 service type implied by a set of interfaces.
// It is used whenever the caller does not pin an explicit type.
//
// Interfaces at zero or one site form a bridge. Across two sites the strict
// point-to-point type is required when a facility port is involved on one
// end or when an explicit route is requested, and only if no baseline NICs
// are present — the flexible tunnel implementation does not pop VLAN tags
// correctly over those transports. Everything else across two sites is the
// flexible multi-point type. More than two sites is an error.
func ResolveL2Type(ifaces []*topology.Interface, eroEnabled bool) (ServiceType, error) {
	sites := sets.New[string]()
	facilityCount := 0
	basicNICCount := 0

	for _, ifc := range ifaces {
		sites.Insert(ifc.Site())
		if ifc.Node.IsFacility() {
			facilityCount++
		}
		if ifc.Model == topology.NICBasic {
			basicNICCount++
		}
	}

	switch {
	case sites.Len() <= 1:
		return L2Bridge, nil

	case sites.Len() == 2:
		facilityPair := facilityCount > 0 && facilityCount < 2
		if (facilityPair || eroEnabled) && basicNICCount == 0 {
			return L2PTP, nil
		}
		if len(ifaces) >= 2 {
			return L2STS, nil
		}
		return "", fmt.Errorf("cannot resolve a service type for %d interface(s) across two sites", len(ifaces))

	default:
		return "", fmt.Errorf("invalid network service: networks are limited to 2 unique sites, requested: %v", sets.List(sites))
	}
}
