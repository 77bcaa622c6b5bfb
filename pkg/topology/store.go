package topology

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store is the topology collaborator network services are built on. It
// materializes service objects, attaches and detaches interfaces, and
// persists opaque string-keyed attribute blobs per service.
type Store interface {
	// AddService materializes a service object of the given declared type.
	AddService(name, stype, layer string, ifaces []*Interface) (*Service, error)

	// RemoveService deletes the service object. Member interfaces are left
	// behind, detached.
	RemoveService(name string) error

	// GetService looks a service up by name.
	GetService(name string) (*Service, bool)

	// Services enumerates all service objects, sorted by name.
	Services() []*Service

	// ConnectInterface attaches a single interface to an existing service.
	ConnectInterface(service string, ifc *Interface) error

	// DisconnectInterface detaches a single interface from a service.
	DisconnectInterface(service string, ifc *Interface) error

	// GetAttr and SetAttr access the opaque attribute blobs.
	GetAttr(service, key string) (string, bool)
	SetAttr(service, key, value string) error

	// SetServiceProps rewrites the declared type and explicit-route hops of
	// an existing service object in place.
	SetServiceProps(service, stype string, hops []string) error

	// SetLabels records externally routable addresses on a service.
	SetLabels(service string, v4, v6 []string) error

	// Peer links two service objects for cross-system interconnection.
	Peer(a, b string, spec PeerSpec) error
}

// MemStore is the in-memory Store implementation.
type MemStore struct {
	mu       sync.RWMutex
	nodes    map[string]*Node
	services map[string]*Service
	log      *zap.SugaredLogger
}

// NewMemStore returns an empty MemStore.
func NewMemStore(log *zap.SugaredLogger) *MemStore {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &MemStore{
		nodes:    make(map[string]*Node),
		services: make(map[string]*Service),
		log:      log,
	}
}

// AddNode registers a node. Returns error if the name is already taken.
func (s *MemStore) AddNode(n *Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.nodes[n.Name]; exists {
		return fmt.Errorf("node %q already registered", n.Name)
	}
	s.nodes[n.Name] = n
	return nil
}

// GetNode returns a node by name.
func (s *MemStore) GetNode(name string) (*Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.nodes[name]
	return n, ok
}

// Nodes returns all registered nodes, sorted by name.
func (s *MemStore) Nodes() []*Node {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// AddService implements Store.
func (s *MemStore) AddService(name, stype, layer string, ifaces []*Interface) (*Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.services[name]; exists {
		return nil, fmt.Errorf("service %q already exists", name)
	}

	svc := &Service{
		ID:         uuid.NewString(),
		Name:       name,
		Type:       stype,
		Layer:      layer,
		Interfaces: append([]*Interface(nil), ifaces...),
		Attrs:      make(map[string]string),
	}
	s.services[name] = svc
	s.log.Infow("service created", "name", name, "type", stype, "interfaces", len(ifaces))
	return svc, nil
}

// RemoveService implements Store.
func (s *MemStore) RemoveService(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.services[name]; !ok {
		return fmt.Errorf("service %q not found", name)
	}
	delete(s.services, name)
	s.log.Infow("service removed", "name", name)
	return nil
}

// GetService implements Store.
func (s *MemStore) GetService(name string) (*Service, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	svc, ok := s.services[name]
	return svc, ok
}

// Services implements Store.
func (s *MemStore) Services() []*Service {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Service, 0, len(s.services))
	for _, svc := range s.services {
		out = append(out, svc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ConnectInterface implements Store.
func (s *MemStore) ConnectInterface(service string, ifc *Interface) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	svc, ok := s.services[service]
	if !ok {
		return fmt.Errorf("service %q not found", service)
	}
	if svc.HasInterface(ifc.Name) {
		return fmt.Errorf("interface %q already connected to %q", ifc.Name, service)
	}
	svc.Interfaces = append(svc.Interfaces, ifc)
	s.log.Debugw("interface connected", "service", service, "interface", ifc.Name)
	return nil
}

// DisconnectInterface implements Store.
func (s *MemStore) DisconnectInterface(service string, ifc *Interface) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	svc, ok := s.services[service]
	if !ok {
		return fmt.Errorf("service %q not found", service)
	}
	for i, member := range svc.Interfaces {
		if member.Name == ifc.Name {
			svc.Interfaces = append(svc.Interfaces[:i], svc.Interfaces[i+1:]...)
			s.log.Debugw("interface disconnected", "service", service, "interface", ifc.Name)
			return nil
		}
	}
	return fmt.Errorf("interface %q not connected to %q", ifc.Name, service)
}

// GetAttr implements Store.
func (s *MemStore) GetAttr(service, key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	svc, ok := s.services[service]
	if !ok {
		return "", false
	}
	v, ok := svc.Attrs[key]
	return v, ok
}

// SetAttr implements Store.
func (s *MemStore) SetAttr(service, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	svc, ok := s.services[service]
	if !ok {
		return fmt.Errorf("service %q not found", service)
	}
	svc.Attrs[key] = value
	return nil
}

// SetServiceProps implements Store.
func (s *MemStore) SetServiceProps(service, stype string, hops []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	svc, ok := s.services[service]
	if !ok {
		return fmt.Errorf("service %q not found", service)
	}
	svc.Type = stype
	svc.Hops = append([]string(nil), hops...)
	s.log.Infow("service retyped", "name", service, "type", stype, "hops", hops)
	return nil
}

// SetLabels implements Store.
func (s *MemStore) SetLabels(service string, v4, v6 []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	svc, ok := s.services[service]
	if !ok {
		return fmt.Errorf("service %q not found", service)
	}
	if v4 != nil {
		svc.LabelsV4 = append([]string(nil), v4...)
	}
	if v6 != nil {
		svc.LabelsV6 = append([]string(nil), v6...)
	}
	return nil
}

// Peer implements Store. The spec is recorded on both sides; interpreting
// the descriptors is left to the remote orchestration layer.
func (s *MemStore) Peer(a, b string, spec PeerSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sa, ok := s.services[a]
	if !ok {
		return fmt.Errorf("service %q not found", a)
	}
	sb, ok := s.services[b]
	if !ok {
		return fmt.Errorf("service %q not found", b)
	}

	for _, p := range sa.Peers {
		if p == b {
			return fmt.Errorf("services %q and %q already peered", a, b)
		}
	}
	sa.Peers = append(sa.Peers, b)
	sb.Peers = append(sb.Peers, a)
	s.log.Infow("services peered", "a", a, "b", b)
	return nil
}
