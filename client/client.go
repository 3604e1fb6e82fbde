// Package client is the façade spec §2 names: it wires config, transport,
// and registryapi together, constructs ServiceKeeper agents and
// WatchStream subscriptions on the caller's behalf, and owns the
// lifetime of everything it spawns so Close can wait for clean shutdown
// instead of leaking goroutines — the same ownership pattern the
// teacher's ServicesManager uses for its gRPC service goroutines.
package client

import (
	"context"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/xbusio/xbus-go/config"
	"github.com/xbusio/xbus-go/keeper"
	"github.com/xbusio/xbus-go/registryapi"
	"github.com/xbusio/xbus-go/transport"
)

// registryAPI is the full request-constructor surface the façade depends
// on, let tests substitute a fake in place of a real transport.Client the
// way keeper.registryAPI does for the keeper package.
type registryAPI interface {
	Get(ctx context.Context, key string) (registryapi.Item, error)
	GetAll(ctx context.Context, keys []string) ([]registryapi.Item, error)
	GetService(ctx context.Context, service string, onlyZone bool) (registryapi.Service, error)
	GetZoneService(ctx context.Context, service, zone string) (registryapi.ZoneService, error)
	ProbeOnline(ctx context.Context, app, label, key string) (bool, error)
	WatchServiceOnce(ctx context.Context, service string, revision uint64, timeout time.Duration) (*registryapi.ServiceResult, error)
	WatchAppNodesOnce(ctx context.Context, app, label string, revision uint64, timeout time.Duration) (*registryapi.AppNodes, error)
	WatchServiceDescsOnce(ctx context.Context, zone string, revision uint64, timeout time.Duration) (*registryapi.ServiceDescsResult, error)
	GrantLease(ctx context.Context, ttl *int64, appNode *registryapi.AppNode) (registryapi.LeaseGrant, error)
	KeepaliveLease(ctx context.Context, leaseID int64) error
	RevokeLease(ctx context.Context, leaseID int64) error
	RevokeLeaseWithNode(ctx context.Context, leaseID int64, nodeKey, nodeLabel string) error
	PlugService(ctx context.Context, desc registryapi.ServiceDesc, endpoint registryapi.ServiceEndpoint, ttl, leaseID *int64) (registryapi.PlugResult, error)
	PlugAllServices(ctx context.Context, descs []registryapi.ServiceDesc, endpoint registryapi.ServiceEndpoint, ttl, leaseID *int64) (registryapi.PlugResult, error)
	UnplugService(ctx context.Context, service, zone, addr string) error
}

// Client is the embeddable entry point applications construct once and
// share: it fetches configuration items directly, and hands out
// ServiceKeeper and WatchStream instances for registration and
// subscription workloads (spec §2's "Client façade").
type Client struct {
	transport *transport.Client
	api       registryAPI

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
}

// New builds a Client from cfg: it validates cfg, establishes the
// transport (TLS/mTLS setup, CN extraction, cert hot-reload), and wraps
// it in a RegistryAPI. The returned Client owns a background context
// that every ServiceKeeper and WatchStream it spawns inherits; cancel it
// via Close.
func New(cfg *config.Config) (*Client, error) {
	t, err := transport.NewClient(cfg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(ctx)

	return &Client{
		transport: t,
		api:       registryapi.New(t),
		ctx:       gctx,
		cancel:    cancel,
		group:     group,
	}, nil
}

// AppName returns the resolved app name (dev_app override or client
// certificate Common Name, per §6).
func (c *Client) AppName() string {
	return c.transport.AppName()
}

// Get fetches one configuration item.
func (c *Client) Get(ctx context.Context, key string) (registryapi.Item, error) {
	return c.api.Get(ctx, key)
}

// GetAll fetches many configuration items.
func (c *Client) GetAll(ctx context.Context, keys []string) ([]registryapi.Item, error) {
	return c.api.GetAll(ctx, keys)
}

// GetService fetches a service's zone breakdown.
func (c *Client) GetService(ctx context.Context, service string, onlyZone bool) (registryapi.Service, error) {
	return c.api.GetService(ctx, service, onlyZone)
}

// GetZoneService fetches one (service, zone)'s registration.
func (c *Client) GetZoneService(ctx context.Context, service, zone string) (registryapi.ZoneService, error) {
	return c.api.GetZoneService(ctx, service, zone)
}

// ProbeOnline checks whether an app node is currently online.
func (c *Client) ProbeOnline(ctx context.Context, app, label, key string) (bool, error) {
	return c.api.ProbeOnline(ctx, app, label, key)
}

// ServiceKeeper builds and starts-tracking a ServiceKeeper bound to this
// Client's registry connection and lifetime (spec §2's "caller →
// Client.service_keeper(...) → ServiceKeeper"), mirroring
// original_source/src/client.rs's `service_keeper(&self, ttl, endpoint)`.
// The keeper is not started; call Start() once the caller is ready to
// acquire a lease. Close, called on the Client, does not by itself
// revoke a keeper's lease — callers that want a graceful withdrawal
// should call the keeper's own Close first.
func (c *Client) ServiceKeeper(ttl *int64, endpoint registryapi.ServiceEndpoint, appNode *registryapi.AppNode) *keeper.ServiceKeeper {
	k := keeper.New(c.ctx, c.api, ttl, endpoint, appNode)
	c.own(func() error {
		<-k.Done()
		return nil
	})
	return k
}

// own hands a background goroutine to the errgroup so Close's Wait
// blocks until it actually exits, instead of just signalling cancellation
// and returning immediately.
func (c *Client) own(wait func() error) {
	c.group.Go(wait)
}

// Close cancels every ServiceKeeper and WatchStream this Client spawned,
// waits for their background goroutines to exit, and shuts down the
// underlying transport, combining whatever failed along any of those
// independent paths into one error. It does not revoke any lease a
// ServiceKeeper might be holding — callers that need a graceful
// withdrawal must call the keeper's own Close before calling this one.
func (c *Client) Close() error {
	c.cancel()
	err := c.group.Wait()
	if c.transport != nil {
		err = multierr.Append(err, c.transport.Close())
	}
	return err
}
