package keeper

import (
	"time"

	crdb "github.com/cockroachdb/errors"

	"github.com/xbusio/xbus-go/internal/xlog"
	"github.com/xbusio/xbus-go/registryapi"
	"github.com/xbusio/xbus-go/xbuserr"
)

// scheduleGrant starts a Grant attempt, replacing whatever was in that
// slot (C-1): it resets the lease and invalidates the Replug/Keepalive
// slots too, mirroring new_lease()'s reset of lease_keep_future,
// lease_result and replug_future in the original.
func (t *keepTask) scheduleGrant(delay bool) {
	t.lease = nil
	t.invalidateSlots()

	t.grantGen++
	gen := t.grantGen
	t.grantInFlight = true

	ttl, appNode, api, ctx, resultCh := t.ttl, t.appNode, t.api, t.ctx, t.grantResultCh

	go func() {
		if delay {
			select {
			case <-time.After(RetryInterval):
			case <-ctx.Done():
				return
			}
		}
		grant, err := api.GrantLease(ctx, ttl, appNode)
		select {
		case resultCh <- grantResult{gen: gen, grant: grant, err: err}:
		case <-ctx.Done():
		}
	}()
}

func (t *keepTask) onGrant(r grantResult) {
	t.grantInFlight = false

	if r.err != nil {
		xlog.Warnw("keeper: grant lease failed", "error", r.err)
		if !t.closing {
			t.scheduleGrant(!isTimeout(r.err))
		}
		return
	}

	xlog.Infow("keeper: grant lease ok", "lease_id", r.grant.LeaseID)

	if r.grant.NewAppNode != nil && *r.grant.NewAppNode {
		t.notifyOnline(t.firstOnline)
		t.firstOnline = false
	}

	grant := r.grant
	t.lease = &grant
	if t.closing {
		return
	}
	t.scheduleKeepalive()
	t.scheduleReplug(false)
}

// scheduleKeepalive starts a Keepalive attempt ttl/2 seconds out, per
// spec §4.2.
func (t *keepTask) scheduleKeepalive() {
	if t.lease == nil {
		xlog.Errorw("keeper: missing lease result for keepalive")
		return
	}

	leaseID := t.lease.LeaseID
	delay := time.Duration(t.lease.TTL/2) * time.Second
	api, ctx := t.api, t.ctx

	t.keepaliveGen++
	gen := t.keepaliveGen
	t.keepaliveInFlight = true
	resultCh := t.keepaliveResultCh

	go func() {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
		err := api.KeepaliveLease(ctx, leaseID)
		select {
		case resultCh <- keepaliveResult{gen: gen, err: err}:
		case <-ctx.Done():
		}
	}()
}

func (t *keepTask) onKeepalive(r keepaliveResult) {
	t.keepaliveInFlight = false

	if r.err == nil {
		if !t.closing {
			t.scheduleKeepalive()
		}
		return
	}

	xlog.Warnw("keeper: keepalive failed", "error", r.err)
	if t.closing {
		return
	}
	if isTimeout(r.err) {
		t.scheduleKeepalive()
		return
	}
	// Session presumed lost: re-acquire from scratch.
	t.scheduleGrant(false)
}

// scheduleReplug starts a Replug-all attempt carrying the current
// services set under the active lease. A services set that's gone empty
// in the meantime is skipped rather than issuing a vacuous call (spec
// §4.2's "Empty-services special case").
func (t *keepTask) scheduleReplug(delay bool) {
	if t.lease == nil {
		xlog.Errorw("keeper: replug scheduled without an active lease")
		return
	}
	if len(t.services) == 0 {
		xlog.Infow("keeper: skipping replug-all, no services registered")
		return
	}

	services := make([]registryapi.ServiceDesc, 0, len(t.services))
	for _, d := range t.services {
		services = append(services, d)
	}
	leaseID := t.lease.LeaseID
	endpoint, api, ctx := t.endpoint, t.api, t.ctx

	t.replugGen++
	gen := t.replugGen
	t.replugInFlight = true
	resultCh := t.replugResultCh

	go func() {
		if delay {
			select {
			case <-time.After(RetryInterval):
			case <-ctx.Done():
				return
			}
		}
		result, err := api.PlugAllServices(ctx, services, endpoint, nil, &leaseID)
		select {
		case resultCh <- replugResult{gen: gen, result: result, err: err}:
		case <-ctx.Done():
		}
	}()
}

func (t *keepTask) onReplug(r replugResult) {
	t.replugInFlight = false

	if r.err == nil {
		xlog.Infow("keeper: services replugged ok")
		for key, ack := range t.pending {
			ack <- nil
			delete(t.pending, key)
		}
		if t.lease != nil && r.result.LeaseID != t.lease.LeaseID {
			xlog.Warnw("keeper: server renewed lease during replug", "old_lease_id", t.lease.LeaseID, "new_lease_id", r.result.LeaseID)
			t.lease.LeaseID = r.result.LeaseID
			t.lease.TTL = r.result.TTL
		}
		return
	}

	if keys, ok := notPermittedKeys(r.err); ok {
		xlog.Warnw("keeper: not permitted services", "services", keys)
		offending := make(map[string]bool, len(keys))
		for _, s := range keys {
			offending[s] = true
		}
		for key := range t.services {
			if offending[key.Service] {
				xlog.Errorw("keeper: plug service not permitted", "service", key.Service, "zone", key.Zone)
				delete(t.services, key)
			}
		}
		for key, ack := range t.pending {
			if offending[key.Service] {
				ack <- xbuserr.NotPermitted("not permitted", []string{key.Service})
				delete(t.pending, key)
			}
		}
		if !t.closing {
			t.scheduleReplug(false)
		}
		return
	}

	xlog.Warnw("keeper: services replug failed", "error", r.err)
	if !t.closing {
		t.scheduleReplug(!isTimeout(r.err))
	}
}

// plugOne registers a single service once a lease is already active
// (used when a Plug command arrives with no concurrent Grant needed). A
// non-retryable failure cancels the local registration by looping a
// cmdCancel back through the command channel, exactly as the original's
// plug_one spawns a Cmd::Cancel send.
func (t *keepTask) plugOne(desc registryapi.ServiceDesc, ack chan error) {
	if t.lease == nil {
		xlog.Errorw("keeper: missing lease result for plug-one")
		return
	}

	leaseID := t.lease.LeaseID
	endpoint, api, ctx, cmdCh := t.endpoint, t.api, t.ctx, t.cmdCh
	service, zone := desc.Service, desc.Zone

	go func() {
		_, err := api.PlugService(ctx, desc, endpoint, nil, &leaseID)
		if err != nil {
			if !canRetry(err) {
				select {
				case cmdCh <- cmdCancel{service: service, zone: zone}:
				case <-ctx.Done():
				}
			}
			ack <- err
			return
		}
		ack <- nil
	}()
}

// notifyOnline fans a transition out to every subscriber with a
// non-blocking send. Go gives no signal analogous to the original
// sender's "receiver dropped", so unlike the original this never prunes
// subscribers — a full channel just drops that one notification.
func (t *keepTask) notifyOnline(value bool) {
	for _, sub := range t.onlineSubscribers {
		select {
		case sub <- value:
		default:
			xlog.Warnw("keeper: online subscriber channel full, dropping notification")
		}
	}
}

func isTimeout(err error) bool {
	var xe *xbuserr.Error
	if crdb.As(err, &xe) {
		return xe.IsTimeout()
	}
	return false
}

func isNotFound(err error) bool {
	var xe *xbuserr.Error
	if crdb.As(err, &xe) {
		return xe.IsNotFound()
	}
	return false
}

func canRetry(err error) bool {
	var xe *xbuserr.Error
	if crdb.As(err, &xe) {
		return xe.CanRetry()
	}
	return false
}

func notPermittedKeys(err error) ([]string, bool) {
	var xe *xbuserr.Error
	if crdb.As(err, &xe) && xe.Kind() == xbuserr.KindNotPermitted {
		return xe.Keys(), true
	}
	return nil, false
}
