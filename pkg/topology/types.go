package topology

// NodeKind distinguishes managed compute nodes from facility pass-through
// nodes that hand traffic to external infrastructure.
type NodeKind string

const (
	KindCompute  NodeKind = "compute"
	KindFacility NodeKind = "facility"
)

// NICBasic is the baseline shared NIC model. It is carved out of a physical
// NIC shared between tenants, so it cannot be isolated per-VLAN the way
// dedicated models can and carries extra colocation restrictions.
const NICBasic = "NIC_Basic"

// Node is a device in the slice that owns interfaces.
type Node struct {
	Name string   `json:"name" yaml:"name"`
	Site string   `json:"site" yaml:"site"`
	Kind NodeKind `json:"kind" yaml:"kind"`

	// Host is the explicit physical host pin, empty when unpinned.
	Host string `json:"host,omitempty" yaml:"host,omitempty"`
}

// IsFacility reports whether the node is an external pass-through.
func (n *Node) IsFacility() bool {
	return n != nil && n.Kind == KindFacility
}

// InterfaceMeta is the per-interface metadata blob. Addr is the address a
// network service assigned to the interface; Auto requests automatic
// assignment when the interface joins a subnetted service.
type InterfaceMeta struct {
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"`
	Auto bool   `json:"auto,omitempty" yaml:"auto,omitempty"`
}

// Interface is a NIC port on a node. Interfaces are owned by nodes and
// referenced, never owned, by network services.
type Interface struct {
	Name  string        `json:"name" yaml:"name"`
	Node  *Node         `json:"-" yaml:"-"`
	Model string        `json:"model" yaml:"model"`
	VLAN  string        `json:"vlan,omitempty" yaml:"vlan,omitempty"`
	Meta  InterfaceMeta `json:"meta,omitempty" yaml:"meta,omitempty"`
}

// Site returns the site of the owning node, or "" for a detached interface.
func (i *Interface) Site() string {
	if i == nil || i.Node == nil {
		return ""
	}
	return i.Node.Site
}

// Service is a network-service record held by the store. Type and Layer are
// kept as plain strings so the store stays opaque to service semantics.
type Service struct {
	ID         string
	Name       string
	Type       string
	Layer      string
	Interfaces []*Interface

	// Attrs are opaque string-keyed blobs persisted on behalf of callers.
	Attrs map[string]string

	// Hops is the explicit-route annotation, empty when unrouted.
	Hops []string

	// LabelsV4/LabelsV6 carry externally routable addresses.
	LabelsV4 []string
	LabelsV6 []string

	// Peers lists the names of services this one has been peered with.
	Peers []string
}

// HasInterface reports whether the service references the named interface.
func (s *Service) HasInterface(name string) bool {
	for _, ifc := range s.Interfaces {
		if ifc.Name == name {
			return true
		}
	}
	return false
}

// PeerSpec carries the label and capacity descriptors for a peering. The
// store records them verbatim; their meaning belongs to the remote side.
type PeerSpec struct {
	Labels     map[string]string
	PeerLabels map[string]string
	Capacities map[string]int
}
