package ipam

import (
	"fmt"
	"net"
	"sync"
	"testing"
)

// memSubnetStore keeps subnet state in memory for tests.
type memSubnetStore struct {
	state SubnetState
}

func (m *memSubnetStore) LoadSubnet() (*SubnetState, error) {
	cp := m.state
	cp.Allocated = append([]net.IP(nil), m.state.Allocated...)
	return &cp, nil
}

func (m *memSubnetStore) StoreSubnet(st *SubnetState) error {
	m.state = *st
	return nil
}

func storeWithSubnet(t *testing.T, cidr string) *memSubnetStore {
	t.Helper()
	_, subnet, err := net.ParseCIDR(cidr)
	if err != nil {
		t.Fatalf("ParseCIDR(%q): %v", cidr, err)
	}
	return &memSubnetStore{state: SubnetState{Subnet: subnet}}
}

func TestAllocateAscending(t *testing.T) {
	a := New(storeWithSubnet(t, "192.168.1.0/24"))

	want := []string{"192.168.1.1", "192.168.1.2", "192.168.1.3"}
	for _, w := range want {
		got, err := a.Allocate(nil)
		if err != nil {
			t.Fatalf("Allocate: %v", err)
		}
		if got == nil || got.String() != w {
			t.Fatalf("Allocate = %v, want %s", got, w)
		}
	}
}

func TestAllocateDistinct(t *testing.T) {
	a := New(storeWithSubnet(t, "10.0.0.0/28"))

	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		got, err := a.Allocate(nil)
		if err != nil {
			t.Fatalf("Allocate: %v", err)
		}
		if got == nil {
			t.Fatalf("Allocate returned nil after %d allocations", i)
		}
		if seen[got.String()] {
			t.Fatalf("address %s allocated twice", got)
		}
		seen[got.String()] = true
	}
}

func TestAllocateRequestedDuplicate(t *testing.T) {
	a := New(storeWithSubnet(t, "192.168.1.0/24"))

	addr := net.ParseIP("192.168.1.5")
	got, err := a.Allocate(addr)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if !got.Equal(addr) {
		t.Fatalf("Allocate = %v, want %v", got, addr)
	}

	got, err = a.Allocate(addr)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if got != nil {
		t.Fatalf("second Allocate of %v = %v, want nil", addr, got)
	}
}

func TestAllocateRequestedWithoutSubnet(t *testing.T) {
	a := New(&memSubnetStore{})

	addr := net.ParseIP("172.16.0.9")
	got, err := a.Allocate(addr)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if !got.Equal(addr) {
		t.Fatalf("Allocate = %v, want %v", got, addr)
	}
}

func TestAllocateScanWithoutSubnet(t *testing.T) {
	a := New(&memSubnetStore{})

	got, err := a.Allocate(nil)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if got != nil {
		t.Fatalf("Allocate with no subnet = %v, want nil", got)
	}
}

func TestFreeAndReuse(t *testing.T) {
	a := New(storeWithSubnet(t, "192.168.1.0/24"))

	first, err := a.Allocate(nil)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if _, err := a.Allocate(nil); err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	if err := a.Free(first); err != nil {
		t.Fatalf("Free: %v", err)
	}
	got, err := a.Allocate(nil)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if !got.Equal(first) {
		t.Fatalf("Allocate after Free = %v, want %v", got, first)
	}
}

func TestFreeIdempotent(t *testing.T) {
	a := New(storeWithSubnet(t, "192.168.1.0/24"))

	addr := net.ParseIP("192.168.1.7")
	if err := a.Free(addr); err != nil {
		t.Fatalf("Free of unallocated address: %v", err)
	}
	if err := a.Free(nil); err != nil {
		t.Fatalf("Free(nil): %v", err)
	}
}

func TestExhaustion(t *testing.T) {
	// A /29 has 8 addresses; only the network address is withheld, so 7
	// are allocatable. The gateway occupies the first one.
	st := storeWithSubnet(t, "10.1.0.0/29")
	gw := net.ParseIP("10.1.0.1")
	st.state.Gateway = gw
	st.state.Allocated = []net.IP{gw}
	a := New(st)

	for i := 0; i < 6; i++ {
		got, err := a.Allocate(nil)
		if err != nil {
			t.Fatalf("Allocate #%d: %v", i+1, err)
		}
		if got == nil {
			t.Fatalf("Allocate #%d returned nil before exhaustion", i+1)
		}
		if got.Equal(gw) {
			t.Fatalf("Allocate handed out the gateway %v", gw)
		}
	}

	got, err := a.Allocate(nil)
	if err != nil {
		t.Fatalf("Allocate after exhaustion: %v", err)
	}
	if got != nil {
		t.Fatalf("Allocate after exhaustion = %v, want nil", got)
	}
}

func TestAllocateIPv6Slash64(t *testing.T) {
	// A /64 has 2^64 addresses, which overflows a uint64 host count; the
	// scan must still find free addresses.
	a := New(storeWithSubnet(t, "2602:fcfb:1d::/64"))

	want := []string{"2602:fcfb:1d::1", "2602:fcfb:1d::2", "2602:fcfb:1d::3"}
	for _, w := range want {
		got, err := a.Allocate(nil)
		if err != nil {
			t.Fatalf("Allocate: %v", err)
		}
		if got == nil {
			t.Fatalf("Allocate on a fresh /64 returned nil, want %s", w)
		}
		if got.String() != w {
			t.Fatalf("Allocate = %v, want %s", got, w)
		}
	}

	first := net.ParseIP("2602:fcfb:1d::1")
	if err := a.Free(first); err != nil {
		t.Fatalf("Free: %v", err)
	}
	got, err := a.Allocate(nil)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if !got.Equal(first) {
		t.Fatalf("Allocate after Free = %v, want %v", got, first)
	}
}

func TestConcurrentAllocateFree(t *testing.T) {
	a := New(storeWithSubnet(t, "10.9.0.0/24"))

	const workers = 8
	const perWorker = 4

	var wg sync.WaitGroup
	kept := make(chan net.IP, workers*(perWorker-1))
	errs := make(chan error, workers)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var mine []net.IP
			for i := 0; i < perWorker; i++ {
				ip, err := a.Allocate(nil)
				if err != nil || ip == nil {
					errs <- fmt.Errorf("Allocate = %v, %v", ip, err)
					return
				}
				mine = append(mine, ip)
			}
			if err := a.Free(mine[0]); err != nil {
				errs <- fmt.Errorf("Free: %v", err)
				return
			}
			for _, ip := range mine[1:] {
				kept <- ip
			}
		}()
	}
	wg.Wait()
	close(errs)
	close(kept)

	for err := range errs {
		t.Fatal(err)
	}

	// An address a worker holds is exclusively its own, so the kept sets
	// must be disjoint.
	seen := make(map[string]bool)
	for ip := range kept {
		if seen[ip.String()] {
			t.Fatalf("address %s handed out to two holders", ip)
		}
		seen[ip.String()] = true
	}

	allocated, err := a.Allocated()
	if err != nil {
		t.Fatalf("Allocated: %v", err)
	}
	if len(allocated) != workers*(perWorker-1) {
		t.Fatalf("persisted set holds %d addresses, want %d", len(allocated), workers*(perWorker-1))
	}
	persisted := make(map[string]bool, len(allocated))
	for _, ip := range allocated {
		persisted[ip.String()] = true
	}
	for ip := range seen {
		if !persisted[ip] {
			t.Fatalf("held address %s missing from the persisted set", ip)
		}
	}
}

func TestAllocatedSnapshot(t *testing.T) {
	a := New(storeWithSubnet(t, "192.168.1.0/24"))

	if _, err := a.Allocate(nil); err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if _, err := a.Allocate(nil); err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	got, err := a.Allocated()
	if err != nil {
		t.Fatalf("Allocated: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Allocated returned %d addresses, want 2", len(got))
	}
}
