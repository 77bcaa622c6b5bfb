package netservice

import (
	"fmt"
	"net"
	"sort"

	"github.com/apparentlymart/go-cidr/cidr"
	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/sliceworks/slicenet/pkg/netservice/ipam"
	"github.com/sliceworks/slicenet/pkg/reservation"
	"github.com/sliceworks/slicenet/pkg/topology"
)

// Attribute keys for PortMirror services.
const (
	attrMirrorSource    = "mirror_source"
	attrMirrorVLAN      = "mirror_vlan"
	attrMirrorDirection = "mirror_direction"
)

// NetworkService is the stateful facade bound to one service instance. All
// state lives in the topology store; the facade holds only its identity and
// the per-service address allocator.
type NetworkService struct {
	mgr   *Manager
	name  string
	alloc *ipam.Allocator
	log   *zap.SugaredLogger
}

// subnetStore adapts a service's metadata blob to the allocator. Loads and
// stores go through the topology store's attribute mechanism, so every
// allocation is persisted inside the allocator's critical section.
type subnetStore struct {
	svc *NetworkService
}

func (st subnetStore) LoadSubnet() (*ipam.SubnetState, error) {
	meta, err := st.svc.Meta()
	if err != nil {
		return nil, err
	}
	return &ipam.SubnetState{
		Subnet:    meta.ParsedSubnet(),
		Gateway:   meta.ParsedGateway(),
		Allocated: meta.ParsedAllocated(),
	}, nil
}

func (st subnetStore) StoreSubnet(state *ipam.SubnetState) error {
	meta, err := st.svc.Meta()
	if err != nil {
		return err
	}
	sub := meta.EnsureSubnet()
	if state.Subnet != nil {
		sub.Subnet = state.Subnet.String()
	}
	if state.Gateway != nil {
		sub.Gateway = state.Gateway.String()
	}
	ips := make([]string, 0, len(state.Allocated))
	for _, ip := range state.Allocated {
		ips = append(ips, ip.String())
	}
	sub.AllocatedIPs = ips
	return st.svc.SetMeta(meta)
}

// Name returns the service name, unique within the slice.
func (s *NetworkService) Name() string { return s.name }

func (s *NetworkService) record() (*topology.Service, error) {
	rec, ok := s.mgr.store.GetService(s.name)
	if !ok {
		return nil, fmt.Errorf("network not found: slice %q, network %q", s.mgr.cfg.Name, s.name)
	}
	return rec, nil
}

// ID returns the store object ID.
func (s *NetworkService) ID() (string, error) {
	rec, err := s.record()
	if err != nil {
		return "", err
	}
	return rec.ID, nil
}

// Type returns the service's declared type.
func (s *NetworkService) Type() (ServiceType, error) {
	rec, err := s.record()
	if err != nil {
		return "", err
	}
	return ServiceType(rec.Type), nil
}

// Layer returns L2 or L3.
func (s *NetworkService) Layer() (Layer, error) {
	t, err := s.Type()
	if err != nil {
		return "", err
	}
	return t.Layer(), nil
}

// Interfaces returns the member interfaces, sorted by name.
func (s *NetworkService) Interfaces() ([]*topology.Interface, error) {
	rec, err := s.record()
	if err != nil {
		return nil, err
	}
	out := append([]*topology.Interface(nil), rec.Interfaces...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Interface returns the member with the given name, nil when absent.
func (s *NetworkService) Interface(name string) (*topology.Interface, error) {
	rec, err := s.record()
	if err != nil {
		return nil, err
	}
	for _, ifc := range rec.Interfaces {
		if ifc.Name == name {
			return ifc, nil
		}
	}
	return nil, nil
}

// Site returns the site the service is anchored at: the lone site of its
// members, the first site in name order when members span two, or "" for
// an empty service.
func (s *NetworkService) Site() (string, error) {
	rec, err := s.record()
	if err != nil {
		return "", err
	}
	sites := sets.New[string]()
	for _, ifc := range rec.Interfaces {
		if site := ifc.Site(); site != "" {
			sites.Insert(site)
		}
	}
	if sites.Len() == 0 {
		return "", nil
	}
	return sets.List(sites)[0], nil
}

// Meta reads the service's metadata blob from the store.
func (s *NetworkService) Meta() (ServiceMeta, error) {
	raw, _ := s.mgr.store.GetAttr(s.name, metaAttr)
	return DecodeServiceMeta(raw)
}

// SetMeta persists the metadata blob.
func (s *NetworkService) SetMeta(meta ServiceMeta) error {
	raw, err := meta.Encode()
	if err != nil {
		return err
	}
	return s.mgr.store.SetAttr(s.name, metaAttr, raw)
}

// IsInstantiated reports whether the remote control plane has accepted the
// service and it has been marked ready.
func (s *NetworkService) IsInstantiated() (bool, error) {
	meta, err := s.Meta()
	if err != nil {
		return false, err
	}
	return meta.IsInstantiated(), nil
}

// SetInstantiated records the instantiation flag.
func (s *NetworkService) SetInstantiated(v bool) error {
	meta, err := s.Meta()
	if err != nil {
		return err
	}
	meta.SetInstantiated(v)
	return s.SetMeta(meta)
}

// Subnet returns the service's subnet: the reservation-reported one for an
// instantiated L3 service, otherwise the one recorded in the metadata blob.
// Nil until the service is instantiated.
func (s *NetworkService) Subnet() (*net.IPNet, error) {
	meta, err := s.Meta()
	if err != nil {
		return nil, err
	}
	if !meta.IsInstantiated() {
		return nil, nil
	}
	if layer, err := s.Layer(); err == nil && layer == LayerL3 {
		if subnet, _, ok := s.mgr.res.Assigned(s.name); ok {
			return subnet, nil
		}
	}
	return meta.ParsedSubnet(), nil
}

// SubnetDisplay renders the subnet for inspection, substituting a symbolic
// placeholder while the service awaits instantiation.
func (s *NetworkService) SubnetDisplay() string {
	subnet, err := s.Subnet()
	if err != nil || subnet == nil {
		return s.name + ".subnet"
	}
	return subnet.String()
}

// Gateway returns the gateway address, nil until instantiated.
func (s *NetworkService) Gateway() (net.IP, error) {
	meta, err := s.Meta()
	if err != nil {
		return nil, err
	}
	if !meta.IsInstantiated() {
		return nil, nil
	}
	if layer, err := s.Layer(); err == nil && layer == LayerL3 {
		if _, gw, ok := s.mgr.res.Assigned(s.name); ok {
			return gw, nil
		}
	}
	return meta.ParsedGateway(), nil
}

// GatewayDisplay renders the gateway with a pre-instantiation placeholder.
func (s *NetworkService) GatewayDisplay() string {
	gw, err := s.Gateway()
	if err != nil || gw == nil {
		return s.name + ".gateway"
	}
	return gw.String()
}

// SetSubnet records a subnet in the metadata blob and resets its allocated
// set.
func (s *NetworkService) SetSubnet(subnet *net.IPNet) error {
	meta, err := s.Meta()
	if err != nil {
		return err
	}
	sub := meta.EnsureSubnet()
	sub.Subnet = subnet.String()
	sub.AllocatedIPs = []string{}
	return s.SetMeta(meta)
}

// SetGateway records the gateway in the metadata blob.
func (s *NetworkService) SetGateway(gw net.IP) error {
	meta, err := s.Meta()
	if err != nil {
		return err
	}
	meta.EnsureSubnet().Gateway = gw.String()
	return s.SetMeta(meta)
}

// AllocatedIPs returns the addresses currently allocated from the subnet.
func (s *NetworkService) AllocatedIPs() ([]net.IP, error) {
	meta, err := s.Meta()
	if err != nil {
		return nil, err
	}
	return meta.ParsedAllocated(), nil
}

// AvailableIPs returns up to count free host addresses from the subnet in
// ascending order, skipping the network address, the gateway, and every
// allocated address. Nil when no subnet is configured.
func (s *NetworkService) AvailableIPs(count int) ([]net.IP, error) {
	meta, err := s.Meta()
	if err != nil {
		return nil, err
	}
	subnet := meta.ParsedSubnet()
	if subnet == nil {
		return nil, nil
	}
	gw := meta.ParsedGateway()
	allocated := meta.ParsedAllocated()

	// Membership-bounded walk, same as the allocator: AddressCount cannot
	// bound the loop for 64-bit-plus host ranges.
	var out []net.IP
	network := subnet.IP.Mask(subnet.Mask)
	for host := cidr.Inc(network); subnet.Contains(host) && len(out) < count; host = cidr.Inc(host) {
		if host.Equal(gw) || ipIn(allocated, host) {
			continue
		}
		out = append(out, host)
	}
	return out, nil
}

// AllocateIP allocates an address from the service subnet. A nil requested
// address picks the first free host; see the ipam package for the exact
// contract. A nil result with nil error means exhausted or unconfigured.
func (s *NetworkService) AllocateIP(requested net.IP) (net.IP, error) {
	return s.alloc.Allocate(requested)
}

// FreeIP returns an address to the pool; freeing an unallocated address is
// a no-op.
func (s *NetworkService) FreeIP(addr net.IP) error {
	return s.alloc.Free(addr)
}

// ReservationState reports the remote reservation state.
func (s *NetworkService) ReservationState() reservation.State {
	return s.mgr.res.State(s.name)
}

// AddInterface attaches an interface to the service. For L2 services the
// implied type is recomputed; when it changes the underlying object is
// migrated to the new type with the full interface set. Instantiated L3
// services reject members from other sites. When the service has a subnet,
// the interface's requested or automatic address is allocated and recorded
// on the interface.
func (s *NetworkService) AddInterface(ifc *topology.Interface) error {
	rec, err := s.record()
	if err != nil {
		return err
	}
	t := ServiceType(rec.Type)
	if t == PortMirror {
		return fmt.Errorf("interfaces cannot be attached to a PortMirror service: membership is fixed at creation")
	}

	meta, err := s.Meta()
	if err != nil {
		return err
	}

	newSet := append(append([]*topology.Interface(nil), rec.Interfaces...), ifc)

	switch t.Layer() {
	case LayerL2:
		eroEnabled := len(rec.Hops) > 0
		newType, err := ResolveL2Type(newSet, eroEnabled)
		if err != nil {
			return fmt.Errorf("adding interface %q to %q: %w", ifc.Name, s.name, err)
		}
		if err := ValidateType(newType, newSet); err != nil {
			return fmt.Errorf("adding interface %q to %q: %w", ifc.Name, s.name, err)
		}
		if newType == L2PTP && len(newSet) == 2 {
			pairVLANs(newSet, s.mgr.cfg.DefaultVLAN)
		}
		if newType != t {
			if err := s.migrate(newType, newSet); err != nil {
				return err
			}
		} else if err := s.mgr.store.ConnectInterface(s.name, ifc); err != nil {
			return err
		}

	case LayerL3:
		if meta.IsInstantiated() {
			site, err := s.Site()
			if err != nil {
				return err
			}
			if site != "" && ifc.Site() != site {
				return fmt.Errorf("L3 networks can only include nodes from one site: interface %q is at %q, network %q is at %q",
					ifc.Name, ifc.Site(), s.name, site)
			}
		}
	}

	if meta.ParsedSubnet() != nil {
		switch {
		case ifc.Meta.Addr != "":
			got, err := s.alloc.Allocate(net.ParseIP(ifc.Meta.Addr))
			if err != nil {
				return err
			}
			if got != nil {
				ifc.Meta.Addr = got.String()
			}
		case ifc.Meta.Auto:
			got, err := s.alloc.Allocate(nil)
			if err != nil {
				return err
			}
			if got != nil {
				ifc.Meta.Addr = got.String()
			}
		}
	}

	if t.Layer() == LayerL3 {
		if err := s.mgr.store.ConnectInterface(s.name, ifc); err != nil {
			return err
		}
	}

	s.log.Infow("interface added", "interface", ifc.Name, "site", ifc.Site())
	return nil
}

// RemoveInterface detaches an interface, frees any address it held, and
// recomputes the L2 type exactly as AddInterface does — a removal can also
// trigger a migration.
func (s *NetworkService) RemoveInterface(ifc *topology.Interface) error {
	rec, err := s.record()
	if err != nil {
		return err
	}
	t := ServiceType(rec.Type)
	if t == PortMirror {
		return fmt.Errorf("interfaces cannot be removed from a PortMirror service: membership is fixed at creation")
	}
	if !rec.HasInterface(ifc.Name) {
		return fmt.Errorf("interface %q is not a member of %q", ifc.Name, s.name)
	}

	if ifc.Meta.Addr != "" {
		if addr := net.ParseIP(ifc.Meta.Addr); addr != nil {
			if err := s.alloc.Free(addr); err != nil {
				return err
			}
		}
		ifc.Meta.Addr = ""
	}

	remaining := make([]*topology.Interface, 0, len(rec.Interfaces))
	for _, member := range rec.Interfaces {
		if member.Name != ifc.Name {
			remaining = append(remaining, member)
		}
	}

	if t.Layer() == LayerL2 {
		eroEnabled := len(rec.Hops) > 0
		newType, err := ResolveL2Type(remaining, eroEnabled)
		if err != nil {
			return fmt.Errorf("removing interface %q from %q: %w", ifc.Name, s.name, err)
		}
		if err := ValidateType(newType, remaining); err != nil {
			return fmt.Errorf("removing interface %q from %q: %w", ifc.Name, s.name, err)
		}
		if newType != t {
			// migration detaches everything and rebuilds without ifc
			if err := s.migrate(newType, remaining); err != nil {
				return err
			}
			s.log.Infow("interface removed", "interface", ifc.Name)
			return nil
		}
	}

	if err := s.mgr.store.DisconnectInterface(s.name, ifc); err != nil {
		return err
	}
	s.log.Infow("interface removed", "interface", ifc.Name)
	return nil
}

// migrate rebuilds the underlying service object under a new type: detach
// all members, preserve the attribute blobs, remove and recreate with the
// same name and the post-mutation interface set, restore the blobs. The
// store's object model cannot change a service's type after construction.
// A failure part way through is fatal to the triggering call; no rollback
// is attempted.
func (s *NetworkService) migrate(newType ServiceType, ifaces []*topology.Interface) error {
	rec, err := s.record()
	if err != nil {
		return err
	}

	for _, member := range append([]*topology.Interface(nil), rec.Interfaces...) {
		if err := s.mgr.store.DisconnectInterface(s.name, member); err != nil {
			return fmt.Errorf("migrating %q to %s: %w", s.name, newType, err)
		}
	}

	attrs := make(map[string]string, len(rec.Attrs))
	for k, v := range rec.Attrs {
		attrs[k] = v
	}
	hops := append([]string(nil), rec.Hops...)

	if err := s.mgr.store.RemoveService(s.name); err != nil {
		return fmt.Errorf("migrating %q to %s: %w", s.name, newType, err)
	}
	if _, err := s.mgr.store.AddService(s.name, string(newType), string(newType.Layer()), ifaces); err != nil {
		return fmt.Errorf("migrating %q to %s: %w", s.name, newType, err)
	}
	for k, v := range attrs {
		if err := s.mgr.store.SetAttr(s.name, k, v); err != nil {
			return fmt.Errorf("migrating %q to %s: %w", s.name, newType, err)
		}
	}
	if len(hops) > 0 {
		if err := s.mgr.store.SetServiceProps(s.name, string(newType), hops); err != nil {
			return fmt.Errorf("migrating %q to %s: %w", s.name, newType, err)
		}
	}

	s.log.Infow("service migrated", "from", rec.Type, "to", newType, "interfaces", len(ifaces))
	return nil
}

// Delete detaches and orphans every member interface, then removes the
// underlying service object.
func (s *NetworkService) Delete() error {
	rec, err := s.record()
	if err != nil {
		return err
	}
	for _, member := range append([]*topology.Interface(nil), rec.Interfaces...) {
		if err := s.mgr.store.DisconnectInterface(s.name, member); err != nil {
			return fmt.Errorf("deleting %q: %w", s.name, err)
		}
	}
	if err := s.mgr.store.RemoveService(s.name); err != nil {
		return err
	}
	s.mgr.forget(s.name)
	s.log.Infow("service deleted")
	return nil
}

// SetL2RouteHops pins the sequence of intermediate sites an L2 connection
// must traverse. Only a two-interface point-to-point service can carry an
// explicit route; setting one forces the strict point-to-point type. An
// empty hop list is a no-op.
func (s *NetworkService) SetL2RouteHops(hops []string) error {
	if len(hops) == 0 {
		return nil
	}

	rec, err := s.record()
	if err != nil {
		return err
	}
	t := ServiceType(rec.Type)
	if len(rec.Interfaces) != 2 || (t != L2PTP && t != L2STS) {
		return fmt.Errorf("an explicit network path can only be set on a two-interface point-to-point L2 connection")
	}

	pair := append([]*topology.Interface(nil), rec.Interfaces...)
	sort.Slice(pair, func(i, j int) bool { return pair[i].Name < pair[j].Name })

	if s.mgr.paths != nil {
		if err := s.mgr.paths.ValidatePath(pair[0].Site(), pair[1].Site(), hops); err != nil {
			return fmt.Errorf("validating route hops for %q: %w", s.name, err)
		}
	}

	newType, err := ResolveL2Type(rec.Interfaces, true)
	if err != nil {
		return err
	}
	return s.mgr.store.SetServiceProps(s.name, string(newType), hops)
}

// MakePubliclyRoutable attaches externally routable addresses to an
// extended L3 service.
func (s *NetworkService) MakePubliclyRoutable(ipv4, ipv6 []net.IP) error {
	t, err := s.Type()
	if err != nil {
		return err
	}
	switch t {
	case IPv4NetExt:
		return s.mgr.store.SetLabels(s.name, ipStrings(ipv4), nil)
	case IPv6NetExt:
		return s.mgr.store.SetLabels(s.name, nil, ipStrings(ipv6))
	default:
		return fmt.Errorf("service %q of type %s cannot carry publicly routable addresses", s.name, t)
	}
}

// PublicIPs returns the externally routable addresses attached to an
// extended L3 service.
func (s *NetworkService) PublicIPs() ([]net.IP, error) {
	rec, err := s.record()
	if err != nil {
		return nil, err
	}
	labels := rec.LabelsV4
	if len(labels) == 0 {
		labels = rec.LabelsV6
	}
	var out []net.IP
	for _, raw := range labels {
		if ip := net.ParseIP(raw); ip != nil {
			out = append(out, ip)
		}
	}
	return out, nil
}

// Configure marks the service instantiated and, for L3 services, copies
// the reservation-reported subnet and gateway into the metadata blob. The
// gateway joins the allocated set so it can never be handed out as a host
// address. L2 services only gain the flag.
func (s *NetworkService) Configure() error {
	meta, err := s.Meta()
	if err != nil {
		return err
	}
	meta.SetInstantiated(true)

	layer, err := s.Layer()
	if err != nil {
		return err
	}
	if layer == LayerL3 {
		if subnet, gw, ok := s.mgr.res.Assigned(s.name); ok {
			sub := meta.EnsureSubnet()
			sub.Subnet = subnet.String()
			if gw != nil {
				sub.Gateway = gw.String()
				if !stringIn(sub.AllocatedIPs, gw.String()) {
					sub.AllocatedIPs = append(sub.AllocatedIPs, gw.String())
				}
			}
		}
	}
	return s.SetMeta(meta)
}

// Peer links this service with another for cross-system interconnection.
// The label and capacity descriptors pass through to the store untouched.
func (s *NetworkService) Peer(other *NetworkService, spec topology.PeerSpec) error {
	if other == nil {
		return fmt.Errorf("peering %q: no peer service given", s.name)
	}
	return s.mgr.store.Peer(s.name, other.name, spec)
}

func ipStrings(ips []net.IP) []string {
	out := make([]string, 0, len(ips))
	for _, ip := range ips {
		out = append(out, ip.String())
	}
	return out
}

func ipIn(set []net.IP, ip net.IP) bool {
	for _, member := range set {
		if member.Equal(ip) {
			return true
		}
	}
	return false
}

func stringIn(set []string, s string) bool {
	for _, member := range set {
		if member == s {
			return true
		}
	}
	return false
}
