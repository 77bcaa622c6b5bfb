// Package ipam hands out addresses from the subnet of a single network
// service. Allocation state lives in the service's persisted metadata blob,
// reached through the SubnetStore interface, so every allocate/free is
// durable the moment it returns.
package ipam

import (
	"net"
	"sync"

	"github.com/apparentlymart/go-cidr/cidr"
)

// SubnetState is one service's subnet and its allocation set.
type SubnetState struct {
	// Subnet may be nil when the service has no subnet configured yet.
	// Explicit allocations still work in that state; scanning does not.
	Subnet    *net.IPNet
	Gateway   net.IP
	Allocated []net.IP
}

// SubnetStore loads and persists the subnet state for one service.
type SubnetStore interface {
	LoadSubnet() (*SubnetState, error)
	StoreSubnet(*SubnetState) error
}

// Allocator allocates and frees addresses for one network service. The
// mutex covers the whole load-modify-store sequence, so concurrent callers
// on the same service serialize; separate services hold separate Allocators
// and never contend.
type Allocator struct {
	mu    sync.Mutex
	store SubnetStore
}

// New returns an Allocator bound to a service's subnet store.
func New(store SubnetStore) *Allocator {
	return &Allocator{store: store}
}

// Allocate returns an address and records it in the allocated set.
//
// With a non-nil requested address, that address is recorded and returned
// unless it is already allocated, in which case nil is returned — an
// existing allocation is never overwritten. The requested address is not
// checked against the subnet; callers are trusted to pass members.
//
// With a nil request, the subnet's host range is scanned in ascending
// order, skipping the network address and every allocated address, and the
// first free one is recorded and returned. A nil address with nil error
// means the subnet is exhausted or not configured.
func (a *Allocator) Allocate(requested net.IP) (net.IP, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	st, err := a.store.LoadSubnet()
	if err != nil {
		return nil, err
	}
	if st == nil {
		st = &SubnetState{}
	}

	if requested != nil {
		if containsIP(st.Allocated, requested) {
			return nil, nil
		}
		st.Allocated = append(st.Allocated, requested)
		if err := a.store.StoreSubnet(st); err != nil {
			return nil, err
		}
		return requested, nil
	}

	if st.Subnet == nil {
		return nil, nil
	}

	// Walk hosts from just past the network address, bounded by subnet
	// membership. AddressCount overflows uint64 for prefixes with 64 or
	// more host bits, such as an IPv6 /64, so it cannot bound this loop.
	network := st.Subnet.IP.Mask(st.Subnet.Mask)
	for host := cidr.Inc(network); st.Subnet.Contains(host); host = cidr.Inc(host) {
		if containsIP(st.Allocated, host) {
			continue
		}
		st.Allocated = append(st.Allocated, host)
		if err := a.store.StoreSubnet(st); err != nil {
			return nil, err
		}
		return host, nil
	}

	// Exhausted. An expected condition, not an error.
	return nil, nil
}

// Free removes addr from the allocated set. Freeing an address that is not
// allocated is a no-op.
func (a *Allocator) Free(addr net.IP) error {
	if addr == nil {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	st, err := a.store.LoadSubnet()
	if err != nil {
		return err
	}
	if st == nil || !containsIP(st.Allocated, addr) {
		return nil
	}

	kept := st.Allocated[:0]
	for _, ip := range st.Allocated {
		if !ip.Equal(addr) {
			kept = append(kept, ip)
		}
	}
	st.Allocated = kept
	return a.store.StoreSubnet(st)
}

// Allocated returns a snapshot of the current allocated set.
func (a *Allocator) Allocated() ([]net.IP, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	st, err := a.store.LoadSubnet()
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, nil
	}
	return append([]net.IP(nil), st.Allocated...), nil
}

func containsIP(set []net.IP, ip net.IP) bool {
	for _, member := range set {
		if member.Equal(ip) {
			return true
		}
	}
	return false
}
