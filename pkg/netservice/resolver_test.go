package netservice

import (
	"testing"

	"github.com/sliceworks/slicenet/pkg/topology"
)

func computeNode(name, site string) *topology.Node {
	return &topology.Node{Name: name, Site: site, Kind: topology.KindCompute}
}

func facilityNode(name, site string) *topology.Node {
	return &topology.Node{Name: name, Site: site, Kind: topology.KindFacility}
}

func iface(name string, node *topology.Node, model string) *topology.Interface {
	return &topology.Interface{Name: name, Node: node, Model: model}
}

func TestResolveSingleSiteBridge(t *testing.T) {
	n1 := computeNode("node1", "SITE1")
	n2 := computeNode("node2", "SITE1")
	ifaces := []*topology.Interface{
		iface("node1-nic0", n1, "NIC_ConnectX_5"),
		iface("node2-nic0", n2, "NIC_ConnectX_5"),
	}

	got, err := ResolveL2Type(ifaces, false)
	if err != nil {
		t.Fatalf("ResolveL2Type: %v", err)
	}
	if got != L2Bridge {
		t.Fatalf("ResolveL2Type = %s, want %s", got, L2Bridge)
	}
}

func TestResolveEmptySetBridge(t *testing.T) {
	got, err := ResolveL2Type(nil, false)
	if err != nil {
		t.Fatalf("ResolveL2Type: %v", err)
	}
	if got != L2Bridge {
		t.Fatalf("ResolveL2Type = %s, want %s", got, L2Bridge)
	}
}

func TestResolveFacilityPairPTP(t *testing.T) {
	n1 := computeNode("node1", "SITE1")
	f1 := facilityNode("fac1", "SITE2")
	ifaces := []*topology.Interface{
		iface("node1-nic0", n1, "NIC_ConnectX_5"),
		iface("fac1-port0", f1, "NIC_ConnectX_5"),
	}

	got, err := ResolveL2Type(ifaces, false)
	if err != nil {
		t.Fatalf("ResolveL2Type: %v", err)
	}
	if got != L2PTP {
		t.Fatalf("ResolveL2Type = %s, want %s", got, L2PTP)
	}
}

func TestResolveExplicitRoutePTP(t *testing.T) {
	n1 := computeNode("node1", "SITE1")
	n2 := computeNode("node2", "SITE2")
	ifaces := []*topology.Interface{
		iface("node1-nic0", n1, "NIC_ConnectX_5"),
		iface("node2-nic0", n2, "NIC_ConnectX_5"),
	}

	got, err := ResolveL2Type(ifaces, true)
	if err != nil {
		t.Fatalf("ResolveL2Type: %v", err)
	}
	if got != L2PTP {
		t.Fatalf("ResolveL2Type = %s, want %s", got, L2PTP)
	}
}

func TestResolveTwoComputeSitesSTS(t *testing.T) {
	n1 := computeNode("node1", "SITE1")
	n2 := computeNode("node2", "SITE2")
	ifaces := []*topology.Interface{
		iface("node1-nic0", n1, "NIC_ConnectX_5"),
		iface("node2-nic0", n2, "NIC_ConnectX_5"),
	}

	got, err := ResolveL2Type(ifaces, false)
	if err != nil {
		t.Fatalf("ResolveL2Type: %v", err)
	}
	if got != L2STS {
		t.Fatalf("ResolveL2Type = %s, want %s", got, L2STS)
	}
}

func TestResolveThreeInterfacesTwoSitesSTS(t *testing.T) {
	n1 := computeNode("node1", "SITE1")
	n2 := computeNode("node2", "SITE1")
	n3 := computeNode("node3", "SITE2")
	ifaces := []*topology.Interface{
		iface("node1-nic0", n1, "NIC_ConnectX_5"),
		iface("node2-nic0", n2, "NIC_ConnectX_5"),
		iface("node3-nic0", n3, "NIC_ConnectX_5"),
	}

	got, err := ResolveL2Type(ifaces, false)
	if err != nil {
		t.Fatalf("ResolveL2Type: %v", err)
	}
	if got != L2STS {
		t.Fatalf("ResolveL2Type = %s, want %s", got, L2STS)
	}
}

func TestResolveBasicNICForcesSTS(t *testing.T) {
	// A facility pair would normally be point-to-point, but a baseline NIC
	// on the compute end forces the flexible tunnel type.
	n1 := computeNode("node1", "SITE1")
	f1 := facilityNode("fac1", "SITE2")
	ifaces := []*topology.Interface{
		iface("node1-nic0", n1, topology.NICBasic),
		iface("fac1-port0", f1, "NIC_ConnectX_5"),
	}

	got, err := ResolveL2Type(ifaces, false)
	if err != nil {
		t.Fatalf("ResolveL2Type: %v", err)
	}
	if got != L2STS {
		t.Fatalf("ResolveL2Type = %s, want %s", got, L2STS)
	}
}

func TestResolveThreeSitesError(t *testing.T) {
	n1 := computeNode("node1", "SITE1")
	n2 := computeNode("node2", "SITE2")
	n3 := computeNode("node3", "SITE3")
	ifaces := []*topology.Interface{
		iface("node1-nic0", n1, "NIC_ConnectX_5"),
		iface("node2-nic0", n2, "NIC_ConnectX_5"),
		iface("node3-nic0", n3, "NIC_ConnectX_5"),
	}

	if _, err := ResolveL2Type(ifaces, false); err == nil {
		t.Fatal("ResolveL2Type across three sites succeeded, want error")
	}
}
