// Package keeper implements ServiceKeeper (spec §4.2): the agent that
// owns one server-issued lease, keeps it alive, (re-)plugs every
// registered service under that lease, absorbs per-service NOT_PERMITTED
// exclusions, and serializes caller commands through a single
// background goroutine.
package keeper

import (
	"context"
	"time"

	"github.com/xbusio/xbus-go/registryapi"
	"github.com/xbusio/xbus-go/xbuserr"
)

// RetryInterval is the fixed delay spec §9 names uniformly for grant
// retries and replug retries. A var, not a const, so tests don't have to
// sleep the real 5 seconds.
var RetryInterval = 5 * time.Second

// cmdChanSize bounds the in-flight command queue. The original models
// this channel as unbounded; a generous fixed buffer is the pragmatic Go
// substitute spec §9's "Unbounded channels" note anticipates, since
// commands are drained by a single tight loop and never pile up under
// normal use.
const cmdChanSize = 1024

// registryAPI is the subset of registryapi.RegistryAPI the keeper
// depends on, letting tests substitute a fake instead of standing up a
// transport.Client.
type registryAPI interface {
	GrantLease(ctx context.Context, ttl *int64, appNode *registryapi.AppNode) (registryapi.LeaseGrant, error)
	KeepaliveLease(ctx context.Context, leaseID int64) error
	RevokeLease(ctx context.Context, leaseID int64) error
	RevokeLeaseWithNode(ctx context.Context, leaseID int64, nodeKey, nodeLabel string) error
	PlugService(ctx context.Context, desc registryapi.ServiceDesc, endpoint registryapi.ServiceEndpoint, ttl, leaseID *int64) (registryapi.PlugResult, error)
	PlugAllServices(ctx context.Context, descs []registryapi.ServiceDesc, endpoint registryapi.ServiceEndpoint, ttl, leaseID *int64) (registryapi.PlugResult, error)
	UnplugService(ctx context.Context, service, zone, addr string) error
}

// ServiceKeeper is a handle onto the background agent; every method
// enqueues a command rather than touching agent state directly, so the
// agent is the sole owner of its mutable state (spec §4.2, C-3).
type ServiceKeeper struct {
	cmdCh chan interface{}
	done  chan struct{}
}

// New starts the keeper's background agent and returns a handle. ctx
// governs the agent's lifetime: cancelling it detaches all in-flight
// work without revoking the lease. Use Close for a graceful shutdown
// that revokes the lease first.
func New(ctx context.Context, api registryAPI, ttl *int64, endpoint registryapi.ServiceEndpoint, appNode *registryapi.AppNode) *ServiceKeeper {
	t := newKeepTask(ctx, api, ttl, endpoint, appNode)
	go t.run()
	return &ServiceKeeper{cmdCh: t.cmdCh, done: t.done}
}

func (k *ServiceKeeper) send(cmd interface{}) {
	select {
	case k.cmdCh <- cmd:
	case <-k.done:
	}
}

// Start begins lease acquisition and plugging. A no-op if already
// started.
func (k *ServiceKeeper) Start() { k.send(cmdStart{}) }

// UpdateEndpoint replaces the endpoint services are registered under. If
// services are already registered and the keeper is started, this forces
// a fresh Grant + Replug-all (the server keys registrations by
// endpoint).
func (k *ServiceKeeper) UpdateEndpoint(endpoint registryapi.ServiceEndpoint) {
	k.send(cmdUpdateEndpoint{endpoint: endpoint})
}

// Plug registers desc and blocks until the server acknowledges it. It
// errors if (service, zone) is already registered.
func (k *ServiceKeeper) Plug(ctx context.Context, desc registryapi.ServiceDesc) error {
	return k.plug(ctx, desc, false)
}

// PlugReplaceable is Plug but overwrites any existing registration under
// the same (service, zone) instead of erroring.
func (k *ServiceKeeper) PlugReplaceable(ctx context.Context, desc registryapi.ServiceDesc) error {
	return k.plug(ctx, desc, true)
}

func (k *ServiceKeeper) plug(ctx context.Context, desc registryapi.ServiceDesc, replaceable bool) error {
	ack := make(chan error, 1)
	select {
	case k.cmdCh <- cmdPlug{desc: desc, replaceable: replaceable, ack: ack}:
	case <-k.done:
		return xbuserr.Other("keep task closed")
	}
	select {
	case err := <-ack:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-k.done:
		return xbuserr.Other("keep task closed")
	}
}

// Unplug removes a registration. Fire-and-forget: if the keeper is
// started, a best-effort UnplugService call follows in the background.
func (k *ServiceKeeper) Unplug(service, zone string) {
	k.send(cmdUnplug{service: service, zone: zone})
}

// Clear revokes the current lease (if any) and drops every registration
// and pending acknowledgement, returning once the revoke completes.
func (k *ServiceKeeper) Clear(ctx context.Context) error {
	done := make(chan struct{})
	select {
	case k.cmdCh <- cmdClear{done: done}:
	case <-k.done:
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close revokes the current lease (if any) and terminates the agent,
// returning once the revoke completes. The agent itself finishes
// draining any in-flight slot futures shortly after.
func (k *ServiceKeeper) Close(ctx context.Context) error {
	done := make(chan struct{})
	select {
	case k.cmdCh <- cmdRevokeAndClose{done: done}:
	case <-k.done:
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done returns a channel closed once the background agent has exited
// (its governing context was cancelled, or RevokeAndClose drained every
// in-flight slot). Callers that want to wait for full shutdown instead
// of just the revoke signal Close returns should select on this.
func (k *ServiceKeeper) Done() <-chan struct{} {
	return k.done
}

// NotifyNodeOnline subscribes sender to online-transition notifications:
// true on the first grant reporting a new app node observed by this
// keeper, false on every subsequent one. Sends are non-blocking; a
// subscriber that doesn't keep its channel drained may miss a
// notification (spec gives Go no "receiver dropped" signal the way the
// original's senders have, so unlike the original this never prunes
// subscribers).
func (k *ServiceKeeper) NotifyNodeOnline(sender chan<- bool) {
	k.send(cmdNotifyOnline{sender: sender})
}
