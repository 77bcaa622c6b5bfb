package topology

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// snapshot is the on-disk form of a MemStore. Interfaces reference their
// owning node by name so the graph survives a round trip.
type snapshot struct {
	Nodes    []*Node           `yaml:"nodes"`
	Services []serviceSnapshot `yaml:"services"`
}

type serviceSnapshot struct {
	ID         string              `yaml:"id"`
	Name       string              `yaml:"name"`
	Type       string              `yaml:"type"`
	Layer      string              `yaml:"layer"`
	Interfaces []interfaceSnapshot `yaml:"interfaces"`
	Attrs      map[string]string   `yaml:"attrs,omitempty"`
	Hops       []string            `yaml:"hops,omitempty"`
	LabelsV4   []string            `yaml:"labelsV4,omitempty"`
	LabelsV6   []string            `yaml:"labelsV6,omitempty"`
	Peers      []string            `yaml:"peers,omitempty"`
}

type interfaceSnapshot struct {
	Name  string        `yaml:"name"`
	Node  string        `yaml:"node"`
	Model string        `yaml:"model"`
	VLAN  string        `yaml:"vlan,omitempty"`
	Meta  InterfaceMeta `yaml:"meta,omitempty"`
}

// Save writes the store contents to a YAML file.
func (s *MemStore) Save(path string) error {
	if path == "" {
		return nil
	}

	s.mu.RLock()
	snap := snapshot{Nodes: make([]*Node, 0, len(s.nodes))}
	for _, n := range s.nodes {
		snap.Nodes = append(snap.Nodes, n)
	}
	for _, svc := range s.services {
		ss := serviceSnapshot{
			ID:       svc.ID,
			Name:     svc.Name,
			Type:     svc.Type,
			Layer:    svc.Layer,
			Attrs:    svc.Attrs,
			Hops:     svc.Hops,
			LabelsV4: svc.LabelsV4,
			LabelsV6: svc.LabelsV6,
			Peers:    svc.Peers,
		}
		for _, ifc := range svc.Interfaces {
			is := interfaceSnapshot{
				Name:  ifc.Name,
				Model: ifc.Model,
				VLAN:  ifc.VLAN,
				Meta:  ifc.Meta,
			}
			if ifc.Node != nil {
				is.Node = ifc.Node.Name
			}
			ss.Interfaces = append(ss.Interfaces, is)
		}
		snap.Services = append(snap.Services, ss)
	}
	s.mu.RUnlock()

	raw, err := yaml.Marshal(&snap)
	if err != nil {
		return fmt.Errorf("marshaling topology state: %w", err)
	}
	if err := os.WriteFile(path, raw, 0644); err != nil {
		return fmt.Errorf("writing topology state to %s: %w", path, err)
	}
	return nil
}

// Load reads a YAML snapshot into the store, replacing its contents.
func (s *MemStore) Load(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var snap snapshot
	if err := yaml.Unmarshal(raw, &snap); err != nil {
		return fmt.Errorf("parsing topology state: %w", err)
	}

	nodes := make(map[string]*Node, len(snap.Nodes))
	for _, n := range snap.Nodes {
		nodes[n.Name] = n
	}

	services := make(map[string]*Service, len(snap.Services))
	for _, ss := range snap.Services {
		svc := &Service{
			ID:       ss.ID,
			Name:     ss.Name,
			Type:     ss.Type,
			Layer:    ss.Layer,
			Attrs:    ss.Attrs,
			Hops:     ss.Hops,
			LabelsV4: ss.LabelsV4,
			LabelsV6: ss.LabelsV6,
			Peers:    ss.Peers,
		}
		if svc.Attrs == nil {
			svc.Attrs = make(map[string]string)
		}
		for _, is := range ss.Interfaces {
			svc.Interfaces = append(svc.Interfaces, &Interface{
				Name:  is.Name,
				Node:  nodes[is.Node],
				Model: is.Model,
				VLAN:  is.VLAN,
				Meta:  is.Meta,
			})
		}
		services[ss.Name] = svc
	}

	s.mu.Lock()
	s.nodes = nodes
	s.services = services
	s.mu.Unlock()
	return nil
}
