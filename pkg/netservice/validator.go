package netservice

import (
	"fmt"

	"go.uber.org/multierr"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/sliceworks/slicenet/pkg/topology"
)

// ValidateType enforces the structural constraints a service type places on
// its interface set. An empty set always validates — an empty service is
// awaiting its first interface. Every violation found is collected into one
// aggregate error; callers treat any non-nil result as a hard failure of
// the requested mutation.
func ValidateType(t ServiceType, ifaces []*topology.Interface) error {
	if len(ifaces) == 0 {
		return nil
	}

	sites := sets.New[string]()
	nics := sets.New[string]()
	for _, ifc := range ifaces {
		sites.Insert(ifc.Site())
		nics.Insert(ifc.Model)
	}

	switch t {
	case L2Bridge:
		if sites.Len() > 1 {
			return fmt.Errorf("network type %s must be empty or include interfaces from exactly one site, %d sites requested: %v",
				t, sites.Len(), sets.List(sites))
		}
		return nil

	case L2PTP:
		var errs error
		if sites.Len() != 2 {
			errs = multierr.Append(errs, fmt.Errorf("network type %s must include interfaces from exactly two sites, %d sites requested: %v",
				t, sites.Len(), sets.List(sites)))
		}
		if nics.Has(topology.NICBasic) {
			errs = multierr.Append(errs, fmt.Errorf("network type %s does not support interfaces of type %q", t, topology.NICBasic))
		}
		return errs

	case L2STS:
		var errs error
		if sites.Len() != 2 {
			errs = multierr.Append(errs, fmt.Errorf("network type %s must include interfaces from exactly two sites, %d sites requested: %v",
				t, sites.Len(), sets.List(sites)))
		}
		if len(ifaces) > 2 {
			errs = multierr.Append(errs, validateHostColocation(t, ifaces))
		}
		return errs

	default:
		return fmt.Errorf("unknown network type %q", t)
	}
}

// validateHostColocation enforces that two baseline NICs never share a
// physical host at a site hosting more than one node. Facility nodes are
// pass-throughs and do not count toward a site's node population.
func validateHostColocation(t ServiceType, ifaces []*topology.Interface) error {
	nodesPerSite := make(map[string]sets.Set[string])
	for _, ifc := range ifaces {
		if ifc.Node == nil || ifc.Node.IsFacility() {
			continue
		}
		site := ifc.Node.Site
		if nodesPerSite[site] == nil {
			nodesPerSite[site] = sets.New[string]()
		}
		nodesPerSite[site].Insert(ifc.Node.Name)
	}

	var errs error
	hosts := sets.New[string]()
	for _, ifc := range ifaces {
		node := ifc.Node
		if node == nil || node.IsFacility() {
			continue
		}
		if ifc.Model != topology.NICBasic || nodesPerSite[node.Site].Len() <= 1 {
			continue
		}

		switch {
		case node.Host == "":
			errs = multierr.Append(errs, fmt.Errorf("network type %s does not support multiple %s interfaces on nodes residing on the same host: node %q needs an explicit host pin",
				t, topology.NICBasic, node.Name))
		case hosts.Has(node.Host):
			errs = multierr.Append(errs, fmt.Errorf("network type %s does not support multiple %s interfaces on nodes residing on the same host: multiple nodes pinned to %q",
				t, topology.NICBasic, node.Host))
		default:
			hosts.Insert(node.Host)
		}
	}
	return errs
}
