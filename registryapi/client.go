package registryapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	crdb "github.com/cockroachdb/errors"

	"github.com/xbusio/xbus-go/transport"
	"github.com/xbusio/xbus-go/xbuserr"
)

// sender is the subset of transport.Client the request constructors
// depend on, letting tests substitute a fake without standing up an
// httptest.Server.
type sender interface {
	Send(ctx context.Context, method, path string, query url.Values, form *transport.Form, timeout time.Duration) (json.RawMessage, error)
}

// RegistryAPI is the thin request-constructor layer spec §2 names:
// every method issues exactly one HTTP call via transport and decodes
// its result.
type RegistryAPI struct {
	client sender
}

// New builds a RegistryAPI over an already-constructed transport.Client.
func New(client *transport.Client) *RegistryAPI {
	return &RegistryAPI{client: client}
}

func decode[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 || string(raw) == "null" {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, xbuserr.Serialization(err)
	}
	return v, nil
}

// Get fetches one configuration item (GET /api/configs/{key}).
func (r *RegistryAPI) Get(ctx context.Context, key string) (Item, error) {
	raw, err := r.client.Send(ctx, http.MethodGet, "/api/configs/"+url.PathEscape(key), nil, nil, 0)
	if err != nil {
		return Item{}, err
	}
	return decode[Item](raw)
}

// GetAll fetches many configuration items (GET /api/configs?keys=<json-array>).
func (r *RegistryAPI) GetAll(ctx context.Context, keys []string) ([]Item, error) {
	encodedKeys, err := json.Marshal(keys)
	if err != nil {
		return nil, xbuserr.Serialization(err)
	}
	query := url.Values{"keys": {string(encodedKeys)}}
	raw, err := r.client.Send(ctx, http.MethodGet, "/api/configs", query, nil, 0)
	if err != nil {
		return nil, err
	}
	return decode[[]Item](raw)
}

// GetService fetches a service's full zone breakdown, or just its zone
// list when onlyZone is true (GET /api/v1/services/{service}[?only_zone=true]).
func (r *RegistryAPI) GetService(ctx context.Context, service string, onlyZone bool) (Service, error) {
	query := url.Values{}
	if onlyZone {
		query.Set("only_zone", "true")
	}
	raw, err := r.client.Send(ctx, http.MethodGet, "/api/v1/services/"+url.PathEscape(service), query, nil, 0)
	if err != nil {
		return Service{}, err
	}
	return decode[Service](raw)
}

// GetZoneService fetches one (service, zone)'s registration (GET
// /api/v1/services/{service}/{zone}).
func (r *RegistryAPI) GetZoneService(ctx context.Context, service, zone string) (ZoneService, error) {
	path := "/api/v1/services/" + url.PathEscape(service) + "/" + url.PathEscape(zone)
	raw, err := r.client.Send(ctx, http.MethodGet, path, nil, nil, 0)
	if err != nil {
		return ZoneService{}, err
	}
	return decode[ZoneService](raw)
}

// PlugService registers one service endpoint under an optional lease
// (POST /api/v1/services/{service}, form: ttl, lease_id, desc, endpoint).
func (r *RegistryAPI) PlugService(ctx context.Context, desc ServiceDesc, endpoint ServiceEndpoint, ttl, leaseID *int64) (PlugResult, error) {
	form, err := plugForm(ttl, leaseID, endpoint)
	if err != nil {
		return PlugResult{}, err
	}
	if err := form.Set("desc", desc); err != nil {
		return PlugResult{}, err
	}
	raw, err := r.client.Send(ctx, http.MethodPost, "/api/v1/services/"+url.PathEscape(desc.Service), nil, form, 0)
	if err != nil {
		return PlugResult{}, err
	}
	return decode[PlugResult](raw)
}

// PlugAllServices registers every desc under one endpoint and optional
// lease in a single call (POST /api/v1/services, form: ttl, lease_id,
// descs, endpoint).
func (r *RegistryAPI) PlugAllServices(ctx context.Context, descs []ServiceDesc, endpoint ServiceEndpoint, ttl, leaseID *int64) (PlugResult, error) {
	form, err := plugForm(ttl, leaseID, endpoint)
	if err != nil {
		return PlugResult{}, err
	}
	if err := form.Set("descs", descs); err != nil {
		return PlugResult{}, err
	}
	raw, err := r.client.Send(ctx, http.MethodPost, "/api/v1/services", nil, form, 0)
	if err != nil {
		return PlugResult{}, err
	}
	return decode[PlugResult](raw)
}

func plugForm(ttl, leaseID *int64, endpoint ServiceEndpoint) (*transport.Form, error) {
	form := transport.NewForm()
	if err := form.Set("ttl", optionalInt64(ttl)); err != nil {
		return nil, err
	}
	if err := form.Set("lease_id", optionalInt64(leaseID)); err != nil {
		return nil, err
	}
	if err := form.Set("endpoint", endpoint); err != nil {
		return nil, err
	}
	return form, nil
}

func optionalInt64(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

// UnplugService withdraws one endpoint from a (service, zone) (DELETE
// /api/v1/services/{service}/{zone}/{addr}).
func (r *RegistryAPI) UnplugService(ctx context.Context, service, zone, addr string) error {
	path := "/api/v1/services/" + url.PathEscape(service) + "/" + url.PathEscape(zone) + "/" + url.PathEscape(addr)
	_, err := r.client.Send(ctx, http.MethodDelete, path, nil, nil, 0)
	return err
}

// DeleteService removes a service entirely, or just one zone of it when
// zone is non-empty (DELETE /api/v1/services/{service}[?zone=Z]).
func (r *RegistryAPI) DeleteService(ctx context.Context, service, zone string) error {
	query := url.Values{}
	if zone != "" {
		query.Set("zone", zone)
	}
	_, err := r.client.Send(ctx, http.MethodDelete, "/api/v1/services/"+url.PathEscape(service), query, nil, 0)
	return err
}

// GrantLease requests a new lease, optionally announcing an AppNode
// (POST /api/leases[?ttl=N], form: app_node).
func (r *RegistryAPI) GrantLease(ctx context.Context, ttl *int64, appNode *AppNode) (LeaseGrant, error) {
	query := url.Values{}
	if ttl != nil {
		query.Set("ttl", strconv.FormatInt(*ttl, 10))
	}
	form := transport.NewForm()
	if appNode != nil {
		if err := form.Set("app_node", appNode); err != nil {
			return LeaseGrant{}, err
		}
	} else if err := form.Set("app_node", nil); err != nil {
		return LeaseGrant{}, err
	}
	raw, err := r.client.Send(ctx, http.MethodPost, "/api/leases", query, form, 0)
	if err != nil {
		return LeaseGrant{}, err
	}
	return decode[LeaseGrant](raw)
}

// KeepaliveLease extends a lease's TTL (POST /api/leases/{id}).
func (r *RegistryAPI) KeepaliveLease(ctx context.Context, leaseID int64) error {
	path := "/api/leases/" + strconv.FormatInt(leaseID, 10)
	_, err := r.client.Send(ctx, http.MethodPost, path, nil, nil, 0)
	return err
}

// RevokeLease releases a lease (DELETE /api/leases/{id}).
func (r *RegistryAPI) RevokeLease(ctx context.Context, leaseID int64) error {
	path := "/api/leases/" + strconv.FormatInt(leaseID, 10)
	_, err := r.client.Send(ctx, http.MethodDelete, path, nil, nil, 0)
	return err
}

// RevokeLeaseWithNode releases a lease and additionally removes the
// named app-node membership (DELETE
// /api/leases/{id}[?rm_node_key=K&app_node_label=L]).
func (r *RegistryAPI) RevokeLeaseWithNode(ctx context.Context, leaseID int64, nodeKey, nodeLabel string) error {
	path := "/api/leases/" + strconv.FormatInt(leaseID, 10)
	query := url.Values{"rm_node_key": {nodeKey}}
	if nodeLabel != "" {
		query.Set("app_node_label", nodeLabel)
	}
	_, err := r.client.Send(ctx, http.MethodDelete, path, query, nil, 0)
	return err
}

// WatchServiceOnce issues a single long-poll for a service's topology
// (GET /api/v1/services/{service}?watch=true&revision=R&timeout=S). A
// transport timeout is absorbed into a nil result per spec §5/§7: the
// caller (the loop watch.Spawn runs) re-polls rather than treating it as
// an error.
func (r *RegistryAPI) WatchServiceOnce(ctx context.Context, service string, revision uint64, timeout time.Duration) (*ServiceResult, error) {
	query := url.Values{
		"watch":    {"true"},
		"revision": {strconv.FormatUint(revision, 10)},
		"timeout":  {strconv.FormatInt(int64(timeout.Seconds()), 10)},
	}
	raw, err := r.client.Send(ctx, http.MethodGet, "/api/v1/services/"+url.PathEscape(service), query, nil, timeout)
	if err != nil {
		if absorbTimeout(err) {
			return nil, nil
		}
		return nil, err
	}
	result, err := decode[ServiceResult](raw)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// WatchAppNodesOnce issues a single long-poll for app-node membership
// (GET /api/apps/{app}/nodes?label=L&revision=R&timeout=S).
func (r *RegistryAPI) WatchAppNodesOnce(ctx context.Context, app, label string, revision uint64, timeout time.Duration) (*AppNodes, error) {
	query := url.Values{
		"revision": {strconv.FormatUint(revision, 10)},
		"timeout":  {strconv.FormatInt(int64(timeout.Seconds()), 10)},
	}
	if label != "" {
		query.Set("label", label)
	}
	raw, err := r.client.Send(ctx, http.MethodGet, "/api/apps/"+url.PathEscape(app)+"/nodes", query, nil, timeout)
	if err != nil {
		if absorbTimeout(err) {
			return nil, nil
		}
		return nil, err
	}
	result, err := decode[AppNodes](raw)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// WatchServiceDescsOnce issues a single long-poll for the service
// descriptor catalog (GET
// /api/v1/service-descs?zone=Z&revision=R&timeout=S).
func (r *RegistryAPI) WatchServiceDescsOnce(ctx context.Context, zone string, revision uint64, timeout time.Duration) (*ServiceDescsResult, error) {
	query := url.Values{
		"revision": {strconv.FormatUint(revision, 10)},
		"timeout":  {strconv.FormatInt(int64(timeout.Seconds()), 10)},
	}
	if zone != "" {
		query.Set("zone", zone)
	}
	raw, err := r.client.Send(ctx, http.MethodGet, "/api/v1/service-descs", query, nil, timeout)
	if err != nil {
		if absorbTimeout(err) {
			return nil, nil
		}
		return nil, err
	}
	result, err := decode[ServiceDescsResult](raw)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// ProbeOnline checks whether an app node is currently online (GET
// /api/apps/{app}/online?label=L&key=K).
func (r *RegistryAPI) ProbeOnline(ctx context.Context, app, label, key string) (bool, error) {
	query := url.Values{"key": {key}}
	if label != "" {
		query.Set("label", label)
	}
	raw, err := r.client.Send(ctx, http.MethodGet, "/api/apps/"+url.PathEscape(app)+"/online", query, nil, 0)
	if err != nil {
		return false, err
	}
	return decode[bool](raw)
}

// absorbTimeout reports whether err represents a deadline being
// exceeded, which long-poll callers translate into "no change" (spec
// §5/§7) instead of propagating an error.
func absorbTimeout(err error) bool {
	var xe *xbuserr.Error
	if crdb.As(err, &xe) {
		return xe.IsTimeout()
	}
	return false
}
