// Package reservation reports what the remote control plane has actually
// provisioned for a service: its instantiation state and, for subnetted
// services, the assigned subnet and gateway. The network-service core only
// reads from it; writing reservations belongs to the orchestration layer.
package reservation

import (
	"net"
	"sync"
)

// State is the remote reservation state of a service.
type State string

const (
	StateUnknown  State = "Unknown"
	StateTicketed State = "Ticketed"
	StateActive   State = "Active"
	StateFailed   State = "Failed"
	StateClosed   State = "Closed"
)

// Source exposes reservation data for the services of one slice.
type Source interface {
	// State returns the reservation state for the named service,
	// StateUnknown when nothing has been reported yet.
	State(service string) State

	// Assigned returns the remotely assigned subnet and gateway for the
	// named service. ok is false until the assignment has been reported.
	Assigned(service string) (subnet *net.IPNet, gateway net.IP, ok bool)
}

type entry struct {
	state   State
	subnet  *net.IPNet
	gateway net.IP
}

// StaticSource is a map-backed Source, useful for tests and for inspecting
// topologies that have not been deployed yet.
type StaticSource struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewStatic returns an empty StaticSource.
func NewStatic() *StaticSource {
	return &StaticSource{entries: make(map[string]entry)}
}

// SetState records the reservation state for a service.
func (s *StaticSource) SetState(service string, st State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entries[service]
	e.state = st
	s.entries[service] = e
}

// SetAssigned records the assigned subnet and gateway for a service.
func (s *StaticSource) SetAssigned(service string, subnet *net.IPNet, gateway net.IP) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entries[service]
	e.subnet = subnet
	e.gateway = gateway
	s.entries[service] = e
}

// State implements Source.
func (s *StaticSource) State(service string) State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[service]
	if !ok || e.state == "" {
		return StateUnknown
	}
	return e.state
}

// Assigned implements Source.
func (s *StaticSource) Assigned(service string) (*net.IPNet, net.IP, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[service]
	if !ok || e.subnet == nil {
		return nil, nil, false
	}
	return e.subnet, e.gateway, true
}
