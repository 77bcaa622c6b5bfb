package netservice

import (
	"encoding/json"
	"fmt"
	"net"
)

// metaAttr is the store attribute key under which a service's metadata blob
// is persisted.
const metaAttr = "user_data"

// Instantiated flag values. Kept as strings so blobs written by earlier
// releases decode unchanged.
const (
	instantiatedTrue  = "True"
	instantiatedFalse = "False"
)

// ServiceMeta is the persistent state of one network service, serialized as
// JSON into the topology store's attribute blob. Field names are stable
// across releases.
type ServiceMeta struct {
	Instantiated string      `json:"instantiated"`
	Mode         string      `json:"mode"`
	Subnet       *SubnetMeta `json:"subnet,omitempty"`
}

// SubnetMeta holds the subnet section of the blob: the CIDR subnet, the
// gateway, and the addresses currently allocated out of the subnet.
type SubnetMeta struct {
	Subnet       string   `json:"subnet,omitempty"`
	Gateway      string   `json:"gateway,omitempty"`
	AllocatedIPs []string `json:"allocated_ips"`
}

// NewServiceMeta returns the blob a freshly created service starts with.
func NewServiceMeta() ServiceMeta {
	return ServiceMeta{Instantiated: instantiatedFalse, Mode: "manual"}
}

// IsInstantiated reports whether the remote control plane has accepted the
// service and the user marked it ready.
func (m *ServiceMeta) IsInstantiated() bool {
	return m.Instantiated == instantiatedTrue
}

// SetInstantiated flips the instantiation flag.
func (m *ServiceMeta) SetInstantiated(v bool) {
	if v {
		m.Instantiated = instantiatedTrue
	} else {
		m.Instantiated = instantiatedFalse
	}
}

// EnsureSubnet returns the subnet section, creating it if absent.
func (m *ServiceMeta) EnsureSubnet() *SubnetMeta {
	if m.Subnet == nil {
		m.Subnet = &SubnetMeta{AllocatedIPs: []string{}}
	}
	return m.Subnet
}

// ParsedSubnet returns the subnet CIDR, nil when unset or unparsable.
func (m *ServiceMeta) ParsedSubnet() *net.IPNet {
	if m.Subnet == nil || m.Subnet.Subnet == "" {
		return nil
	}
	_, ipnet, err := net.ParseCIDR(m.Subnet.Subnet)
	if err != nil {
		return nil
	}
	return ipnet
}

// ParsedGateway returns the gateway address, nil when unset.
func (m *ServiceMeta) ParsedGateway() net.IP {
	if m.Subnet == nil {
		return nil
	}
	return net.ParseIP(m.Subnet.Gateway)
}

// ParsedAllocated returns the allocated set as addresses, dropping entries
// that fail to parse.
func (m *ServiceMeta) ParsedAllocated() []net.IP {
	if m.Subnet == nil {
		return nil
	}
	out := make([]net.IP, 0, len(m.Subnet.AllocatedIPs))
	for _, s := range m.Subnet.AllocatedIPs {
		if ip := net.ParseIP(s); ip != nil {
			out = append(out, ip)
		}
	}
	return out
}

// Encode serializes the blob.
func (m ServiceMeta) Encode() (string, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encoding service metadata: %w", err)
	}
	return string(raw), nil
}

// DecodeServiceMeta parses a blob. An empty string decodes to the initial
// blob so services created before any write still read consistently.
func DecodeServiceMeta(raw string) (ServiceMeta, error) {
	if raw == "" {
		return NewServiceMeta(), nil
	}
	var m ServiceMeta
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return ServiceMeta{}, fmt.Errorf("decoding service metadata: %w", err)
	}
	return m, nil
}
