package netservice

import (
	"fmt"
	"net"
	"sort"
	"sync"

	"github.com/apparentlymart/go-cidr/cidr"
	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/sliceworks/slicenet/pkg/config"
	"github.com/sliceworks/slicenet/pkg/netservice/ipam"
	"github.com/sliceworks/slicenet/pkg/reservation"
	"github.com/sliceworks/slicenet/pkg/topology"
)

// PathValidator checks that an explicit route between two sites is feasible
// against the physical substrate. Implemented by the resource-discovery
// layer above this core.
type PathValidator interface {
	ValidatePath(source, end string, hops []string) error
}

// Manager binds a topology store and a reservation source for one slice.
// Service factories and discovery hang off it. Facade instances are cached
// per service name so that a service's allocation lock is a single lock no
// matter how many callers reach the service.
type Manager struct {
	cfg   config.SliceConfig
	store topology.Store
	res   reservation.Source
	paths PathValidator
	log   *zap.SugaredLogger

	mu       sync.Mutex
	services map[string]*NetworkService
}

// NewManager returns a Manager for one slice.
func NewManager(cfg config.SliceConfig, store topology.Store, res reservation.Source, log *zap.SugaredLogger) *Manager {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Manager{
		cfg:      cfg,
		store:    store,
		res:      res,
		log:      log.Named("netservice"),
		services: make(map[string]*NetworkService),
	}
}

// SetPathValidator installs the explicit-route feasibility check.
func (m *Manager) SetPathValidator(pv PathValidator) {
	m.paths = pv
}

// service returns the cached facade for name, creating it on first use.
func (m *Manager) service(name string) *NetworkService {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.services[name]; ok {
		return s
	}
	s := &NetworkService{
		mgr:  m,
		name: name,
		log:  m.log.With("service", name),
	}
	s.alloc = ipam.New(subnetStore{svc: s})
	m.services[name] = s
	return s
}

// forget drops the cached facade after a delete.
func (m *Manager) forget(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.services, name)
}

// NewL2Network creates an L2 service. With an empty explicitType the type
// is inferred from the interface set; otherwise it must name an L2 variant.
// The type is validated against the interfaces before anything is created.
func (m *Manager) NewL2Network(name string, ifaces []*topology.Interface, explicitType string) (*NetworkService, error) {
	var t ServiceType
	if explicitType == "" {
		resolved, err := ResolveL2Type(ifaces, false)
		if err != nil {
			return nil, err
		}
		t = resolved
	} else {
		parsed, err := ParseServiceType(explicitType)
		if err != nil || !l2Types.Has(parsed) {
			return nil, fmt.Errorf("invalid L2 network type %q: choose from %v or leave empty for automatic selection",
				explicitType, L2Types())
		}
		t = parsed
	}

	if err := ValidateType(t, ifaces); err != nil {
		return nil, fmt.Errorf("validating %s network %q: %w", t, name, err)
	}

	if t == L2PTP {
		pairVLANs(ifaces, m.cfg.DefaultVLAN)
	}

	return m.newService(name, t, ifaces)
}

// NewL3Network creates a subnetted or VPN L3 service. kind is one of IPv4,
// IPv4Ext, IPv6, IPv6Ext or L3VPN. A requested subnet, when given for a
// subnetted kind, is recorded with its first host as the gateway; the
// reservation subsystem confirms or replaces it at instantiation.
func (m *Manager) NewL3Network(name string, ifaces []*topology.Interface, kind string, subnet *net.IPNet) (*NetworkService, error) {
	t, err := ParseL3Kind(kind)
	if err != nil {
		return nil, err
	}

	s, err := m.newService(name, t, ifaces)
	if err != nil {
		return nil, err
	}

	if subnet != nil && t != L3VPN {
		gw, err := cidr.Host(subnet, 1)
		if err != nil {
			return nil, fmt.Errorf("deriving gateway for %q from %s: %w", name, subnet, err)
		}
		if err := s.SetSubnet(subnet); err != nil {
			return nil, err
		}
		if err := s.SetGateway(gw); err != nil {
			return nil, err
		}
		// Reserve the gateway so it is never handed out as a host address.
		if _, err := s.AllocateIP(gw); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// NewPortMirror creates a PortMirror service copying traffic seen on the
// named mirror interface to the receiving interface. Membership is fixed
// from here on. direction is rx, tx or both, case-insensitive.
func (m *Manager) NewPortMirror(name, mirrorIface, mirrorVLAN string, receive *topology.Interface, direction string) (*NetworkService, error) {
	if mirrorIface == "" {
		return nil, fmt.Errorf("a PortMirror service requires the mirrored interface, specified by name")
	}
	if receive == nil {
		return nil, fmt.Errorf("a PortMirror service requires the receiving interface up front")
	}
	dir, err := ParseMirrorDirection(direction)
	if err != nil {
		return nil, fmt.Errorf("creating PortMirror service %q: %w", name, err)
	}

	s, err := m.newService(name, PortMirror, []*topology.Interface{receive})
	if err != nil {
		return nil, err
	}

	for key, val := range map[string]string{
		attrMirrorSource:    mirrorIface,
		attrMirrorVLAN:      mirrorVLAN,
		attrMirrorDirection: string(dir),
	} {
		if err := m.store.SetAttr(name, key, val); err != nil {
			return nil, err
		}
	}

	m.log.Infow("port mirror created", "slice", m.cfg.Name, "name", name,
		"mirror", mirrorIface, "direction", dir)
	return s, nil
}

func (m *Manager) newService(name string, t ServiceType, ifaces []*topology.Interface) (*NetworkService, error) {
	if _, err := m.store.AddService(name, string(t), string(t.Layer()), ifaces); err != nil {
		return nil, err
	}
	s := m.service(name)
	if err := s.SetMeta(NewServiceMeta()); err != nil {
		return nil, err
	}
	m.log.Infow("network service created", "slice", m.cfg.Name, "name", name, "type", t)
	return s, nil
}

// Services returns facades for every service in the slice whose declared
// type is a member of the enumeration, sorted by name.
func (m *Manager) Services() []*NetworkService {
	return m.servicesOfTypes(l2Types.Union(l3Types).Union(specialTypes))
}

// L2Services returns the slice's L2 services.
func (m *Manager) L2Services() []*NetworkService {
	return m.servicesOfTypes(l2Types)
}

// L3Services returns the slice's L3 services.
func (m *Manager) L3Services() []*NetworkService {
	return m.servicesOfTypes(l3Types)
}

// Service returns the named service or an error when it does not exist.
func (m *Manager) Service(name string) (*NetworkService, error) {
	rec, ok := m.store.GetService(name)
	if !ok || !ServiceType(rec.Type).Known() {
		return nil, fmt.Errorf("network not found: slice %q, network %q", m.cfg.Name, name)
	}
	return m.service(name), nil
}

func (m *Manager) servicesOfTypes(types sets.Set[ServiceType]) []*NetworkService {
	var out []*NetworkService
	for _, rec := range m.store.Services() {
		if types.Has(ServiceType(rec.Type)) {
			out = append(out, m.service(rec.Name))
		}
	}
	return out
}

// pairVLANs gives both ends of a new point-to-point link a matching VLAN
// tag: the configured default when neither end carries one, otherwise the
// tag of the tagged end. The pair is ordered by interface name so the
// outcome does not depend on creation order.
func pairVLANs(ifaces []*topology.Interface, defaultVLAN string) {
	if len(ifaces) < 2 {
		return
	}
	if defaultVLAN == "" {
		defaultVLAN = "100"
	}

	pair := append([]*topology.Interface(nil), ifaces...)
	sort.Slice(pair, func(i, j int) bool { return pair[i].Name < pair[j].Name })

	a, b := pair[0], pair[1]
	switch {
	case a.VLAN == "" && b.VLAN == "":
		a.VLAN, b.VLAN = defaultVLAN, defaultVLAN
	case a.VLAN == "":
		a.VLAN = b.VLAN
	case b.VLAN == "":
		b.VLAN = a.VLAN
	}
}
