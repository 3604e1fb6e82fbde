package keeper

import (
	"context"
	"fmt"

	"github.com/xbusio/xbus-go/internal/xlog"
	"github.com/xbusio/xbus-go/registryapi"
	"github.com/xbusio/xbus-go/xbuserr"
)

// cmdStart, cmdUpdateEndpoint, ... mirror service_keeper.rs's Cmd enum;
// Go has no sum type, so the command loop type-switches on an interface
// value instead of matching an enum.
type cmdStart struct{}

type cmdUpdateEndpoint struct {
	endpoint registryapi.ServiceEndpoint
}

type cmdPlug struct {
	desc        registryapi.ServiceDesc
	replaceable bool
	ack         chan error
}

type cmdUnplug struct {
	service, zone string
}

// cmdCancel is emitted internally (never by a caller) when a Plug-one
// attempt fails with a non-retryable error.
type cmdCancel struct {
	service, zone string
}

type cmdClear struct {
	done chan struct{}
}

type cmdRevokeAndClose struct {
	done chan struct{}
}

type cmdNotifyOnline struct {
	sender chan<- bool
}

type grantResult struct {
	gen   int
	grant registryapi.LeaseGrant
	err   error
}

type replugResult struct {
	gen    int
	result registryapi.PlugResult
	err    error
}

type keepaliveResult struct {
	gen int
	err error
}

// keepTask is the single background agent backing a ServiceKeeper. Every
// field it mutates is touched only from run()'s goroutine (spec §4.2,
// C-3); the scheduleX/plugOne goroutines it spawns only read local
// copies captured at schedule time and report back over result
// channels.
type keepTask struct {
	ctx   context.Context
	api   registryAPI
	cmdCh chan interface{}
	done  chan struct{}

	started  bool
	closing  bool
	ttl      *int64
	endpoint registryapi.ServiceEndpoint
	appNode  *registryapi.AppNode

	services map[registryapi.ServiceKey]registryapi.ServiceDesc
	pending  map[registryapi.ServiceKey]chan error

	lease *registryapi.LeaseGrant

	grantInFlight bool
	grantGen      int
	grantResultCh chan grantResult

	replugInFlight bool
	replugGen      int
	replugResultCh chan replugResult

	keepaliveInFlight bool
	keepaliveGen      int
	keepaliveResultCh chan keepaliveResult

	onlineSubscribers []chan<- bool
	firstOnline       bool
}

func newKeepTask(ctx context.Context, api registryAPI, ttl *int64, endpoint registryapi.ServiceEndpoint, appNode *registryapi.AppNode) *keepTask {
	return &keepTask{
		ctx:                ctx,
		api:                api,
		cmdCh:              make(chan interface{}, cmdChanSize),
		done:               make(chan struct{}),
		ttl:                ttl,
		endpoint:           endpoint,
		appNode:            appNode,
		services:           make(map[registryapi.ServiceKey]registryapi.ServiceDesc),
		pending:            make(map[registryapi.ServiceKey]chan error),
		grantResultCh:      make(chan grantResult, 1),
		replugResultCh:     make(chan replugResult, 1),
		keepaliveResultCh:  make(chan keepaliveResult, 1),
		firstOnline:        true,
	}
}

// run is the command/future loop spec §4.2 describes: commands and slot
// completions arrive on channels instead of being polled, which is the
// idiomatic Go replacement for the original's hand-rolled Future::poll.
func (t *keepTask) run() {
	defer close(t.done)
	for {
		select {
		case <-t.ctx.Done():
			return
		case raw := <-t.cmdCh:
			t.handleCmd(raw)
		case r := <-t.grantResultCh:
			if r.gen == t.grantGen {
				t.onGrant(r)
			}
		case r := <-t.replugResultCh:
			if r.gen == t.replugGen {
				t.onReplug(r)
			}
		case r := <-t.keepaliveResultCh:
			if r.gen == t.keepaliveGen {
				t.onKeepalive(r)
			}
		}
		if t.closing && !t.grantInFlight && !t.replugInFlight && !t.keepaliveInFlight {
			return
		}
	}
}

func (t *keepTask) handleCmd(raw interface{}) {
	switch cmd := raw.(type) {
	case cmdStart:
		t.handleStart()
	case cmdUpdateEndpoint:
		t.handleUpdateEndpoint(cmd)
	case cmdPlug:
		t.handlePlug(cmd)
	case cmdUnplug:
		t.handleUnplug(cmd)
	case cmdCancel:
		t.handleCancel(cmd)
	case cmdClear:
		t.handleClear(cmd)
	case cmdRevokeAndClose:
		t.handleRevokeAndClose(cmd)
	case cmdNotifyOnline:
		t.onlineSubscribers = append(t.onlineSubscribers, cmd.sender)
	}
}

func (t *keepTask) handleStart() {
	if t.started || t.closing {
		return
	}
	t.started = true
	if t.lease == nil {
		if !t.grantInFlight {
			t.scheduleGrant(false)
		}
	} else {
		t.scheduleReplug(false)
	}
}

func (t *keepTask) handleUpdateEndpoint(cmd cmdUpdateEndpoint) {
	if t.closing {
		return
	}
	t.endpoint = cmd.endpoint
	if t.started && len(t.services) > 0 {
		t.scheduleGrant(false)
	}
}

func (t *keepTask) handlePlug(cmd cmdPlug) {
	if t.closing {
		cmd.ack <- xbuserr.Other("keep task closed")
		return
	}

	key := cmd.desc.Key()
	if _, exists := t.services[key]; exists && !cmd.replaceable {
		cmd.ack <- xbuserr.Other(fmt.Sprintf("%s:%s has been plugged", key.Service, key.Zone))
		return
	}

	t.services[key] = cmd.desc
	switch {
	case t.started && t.lease != nil:
		t.plugOne(cmd.desc, cmd.ack)
	case t.started:
		t.pending[key] = cmd.ack
		if !t.grantInFlight {
			t.scheduleGrant(false)
		}
	default:
		t.pending[key] = cmd.ack
	}
}

func (t *keepTask) handleUnplug(cmd cmdUnplug) {
	key := registryapi.ServiceKey{Service: cmd.service, Zone: cmd.zone}
	delete(t.pending, key)
	_, existed := t.services[key]
	delete(t.services, key)

	if existed && t.started {
		service, zone, addr := cmd.service, cmd.zone, t.endpoint.Address.String()
		api, ctx := t.api, t.ctx
		go func() {
			if err := api.UnplugService(ctx, service, zone, addr); err != nil {
				xlog.Warnw("keeper: unplug service failed", "service", service, "zone", zone, "error", err)
			}
		}()
	}
}

func (t *keepTask) handleCancel(cmd cmdCancel) {
	key := registryapi.ServiceKey{Service: cmd.service, Zone: cmd.zone}
	delete(t.services, key)
	delete(t.pending, key)
}

func (t *keepTask) handleClear(cmd cmdClear) {
	t.revokeAsync(cmd.done)
	t.invalidateSlots()
	t.pending = make(map[registryapi.ServiceKey]chan error)
	t.services = make(map[registryapi.ServiceKey]registryapi.ServiceDesc)
	t.lease = nil
}

func (t *keepTask) handleRevokeAndClose(cmd cmdRevokeAndClose) {
	t.revokeAsync(cmd.done)
	t.closing = true
}

// invalidateSlots bumps every slot's generation counter so any in-flight
// scheduleX goroutine's eventual result is discarded by run() instead of
// being applied to state that's about to be reset.
func (t *keepTask) invalidateSlots() {
	t.grantGen++
	t.grantInFlight = false
	t.replugGen++
	t.replugInFlight = false
	t.keepaliveGen++
	t.keepaliveInFlight = false
}

// revokeAsync fires RevokeLease (or RevokeLeaseWithNode when an AppNode
// is configured) in the background and closes done once it settles, or
// immediately if no lease is held — this is the behavior Clear and
// RevokeAndClose share (spec §4.2's "RevokeLease helper").
func (t *keepTask) revokeAsync(done chan struct{}) {
	if t.lease == nil {
		close(done)
		return
	}
	leaseID := t.lease.LeaseID
	appNode := t.appNode
	api, ctx := t.api, t.ctx

	go func() {
		defer close(done)
		var err error
		if appNode != nil {
			err = api.RevokeLeaseWithNode(ctx, leaseID, appNode.Key, appNode.Label)
		} else {
			err = api.RevokeLease(ctx, leaseID)
		}
		if err != nil && !isNotFound(err) {
			xlog.Warnw("keeper: revoke lease failed", "lease_id", leaseID, "error", err)
		}
	}()
}
