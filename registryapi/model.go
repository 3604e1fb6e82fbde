// Package registryapi is the thin request-constructor layer over
// transport.Client: one function per registry endpoint in spec §6,
// returning typed results instead of raw envelope bytes.
package registryapi

// ServiceDesc describes a service registration, keyed by (Service,
// Zone) everywhere it's stored (spec §3).
type ServiceDesc struct {
	Service     string `json:"service"`
	Zone        string `json:"zone"`
	Type        string `json:"type,omitempty"`
	Proto       string `json:"proto,omitempty"`
	Description string `json:"description,omitempty"`
}

// Key returns the (service, zone) pair ServiceKeeper uses to key
// RegisteredSet and PendingAck (spec §3).
func (d ServiceDesc) Key() ServiceKey {
	return ServiceKey{Service: d.Service, Zone: d.Zone}
}

// ServiceKey is the (service, zone) map key spec §3 names RegisteredSet
// and PendingAck by.
type ServiceKey struct {
	Service string
	Zone    string
}

// ServiceEndpoint is the address a service is reachable at, optionally
// carrying a free-form config blob (spec §3).
type ServiceEndpoint struct {
	Address SocketAddr `json:"address"`
	Config  string     `json:"config,omitempty"`
}

// AppNode identifies an application instance the server may associate a
// lease with (spec §3, GLOSSARY).
type AppNode struct {
	Key    string `json:"key"`
	Label  string `json:"label,omitempty"`
	Config string `json:"config,omitempty"`
}

// LeaseGrant is the result of GrantLease: a TTL-bounded token services
// are registered under (spec §3).
type LeaseGrant struct {
	LeaseID    int64 `json:"lease_id"`
	TTL        int64 `json:"ttl"`
	NewAppNode *bool `json:"new_app_node,omitempty"`
}

// PlugResult is the result of PlugService/PlugAllServices; it may carry
// a refreshed lease_id if the server renewed the lease during the call
// (spec §3, invariant L-4 in §4.2's Replug-all handling).
type PlugResult struct {
	LeaseID int64 `json:"lease_id"`
	TTL     int64 `json:"ttl"`
}

// ZoneService is one service's registration within a zone: its
// descriptor plus every endpoint currently plugged there.
type ZoneService struct {
	ServiceDesc
	Endpoints []ServiceEndpoint `json:"endpoints"`
}

// Service is the full per-zone breakdown for a service name.
type Service struct {
	Service string                 `json:"service"`
	Zones   map[string]ZoneService `json:"zones"`
}

// ServiceResult wraps a long-polled Service (or ZoneService) fetch with
// the revision it was observed at, satisfying the Revisioned contract
// watch.Spawn requires (spec §4.1).
type ServiceResult struct {
	Service  Service `json:"service"`
	Revision uint64  `json:"revision"`
}

// GetRevision implements watch.Revisioned.
func (r ServiceResult) GetRevision() uint64 { return r.Revision }

// AppNodes is the membership snapshot returned by WatchAppNodesOnce:
// node key -> label.
type AppNodes struct {
	Nodes    map[string]string `json:"nodes"`
	Revision uint64            `json:"revision"`
}

// GetRevision implements watch.Revisioned.
func (n AppNodes) GetRevision() uint64 { return n.Revision }

// ServiceDescEvent is one put/delete event in the service-description
// catalog stream (SPEC_FULL.md SUPPLEMENTED FEATURES, grounded on
// original_source/src/service.rs's ServiceDescEvent).
type ServiceDescEvent struct {
	EventType string      `json:"event_type"`
	Service   ServiceDesc `json:"service"`
}

const (
	// EventPut marks a service description as added or updated.
	EventPut = "PUT"
	// EventDelete marks a service description as removed.
	EventDelete = "DELETE"
)

// ServiceDescsResult wraps a batch of catalog events with the revision
// they were observed at.
type ServiceDescsResult struct {
	Events   []ServiceDescEvent `json:"events"`
	Revision uint64             `json:"revision"`
}

// GetRevision implements watch.Revisioned.
func (r ServiceDescsResult) GetRevision() uint64 { return r.Revision }
