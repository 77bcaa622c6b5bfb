package topology

import (
	"encoding/json"
	"net/http"
	"strings"
)

// RegisterRoutes adds read-only inspection endpoints to the given mux.
//
//	GET /api/v1/services          — list service objects
//	GET /api/v1/services/{name}   — service details + member interfaces
//	GET /api/v1/nodes             — list nodes
func (s *MemStore) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/services", s.handleServices)
	mux.HandleFunc("/api/v1/services/", s.handleServiceDetail)
	mux.HandleFunc("/api/v1/nodes", s.handleNodes)
}

type serviceSummary struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Type       string `json:"type"`
	Layer      string `json:"layer"`
	Interfaces int    `json:"interfaces"`
}

func (s *MemStore) handleServices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var out []serviceSummary
	for _, svc := range s.Services() {
		out = append(out, serviceSummary{
			ID:         svc.ID,
			Name:       svc.Name,
			Type:       svc.Type,
			Layer:      svc.Layer,
			Interfaces: len(svc.Interfaces),
		})
	}
	writeJSON(w, out)
}

func (s *MemStore) handleServiceDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/api/v1/services/")
	svc, ok := s.GetService(name)
	if !ok {
		http.Error(w, "service not found", http.StatusNotFound)
		return
	}

	type memberInfo struct {
		Name string `json:"name"`
		Node string `json:"node"`
		Site string `json:"site"`
		Addr string `json:"addr,omitempty"`
		VLAN string `json:"vlan,omitempty"`
	}
	type serviceDetail struct {
		serviceSummary
		Members []memberInfo `json:"members"`
		Hops    []string     `json:"hops,omitempty"`
		Peers   []string     `json:"peers,omitempty"`
	}

	s.mu.RLock()
	detail := serviceDetail{
		serviceSummary: serviceSummary{
			ID:         svc.ID,
			Name:       svc.Name,
			Type:       svc.Type,
			Layer:      svc.Layer,
			Interfaces: len(svc.Interfaces),
		},
		Hops:  svc.Hops,
		Peers: svc.Peers,
	}
	for _, ifc := range svc.Interfaces {
		mi := memberInfo{Name: ifc.Name, Site: ifc.Site(), Addr: ifc.Meta.Addr, VLAN: ifc.VLAN}
		if ifc.Node != nil {
			mi.Node = ifc.Node.Name
		}
		detail.Members = append(detail.Members, mi)
	}
	s.mu.RUnlock()

	writeJSON(w, detail)
}

func (s *MemStore) handleNodes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.Nodes())
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
