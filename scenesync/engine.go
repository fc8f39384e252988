// Package scenesync is the top-level scheduler/orchestrator (spec §4.F): it
// drives the registry's phase loop, advances every peer's controller,
// fires due scheduled procedures, pulls and flushes change events, and
// (server) emits snapshots/trickled updates or (client) reconciles against
// the server's state. Grounded on ptp4u/server/server.go's top-level
// Start/run-loop structure, generalized to a single-threaded Tick(dt) entry
// point per spec §5.
package scenesync

import (
	"fmt"

	version "github.com/hashicorp/go-version"
	log "github.com/sirupsen/logrus"

	"github.com/GameNetworking/NetworkSynchronizer-sub000/controller"
	"github.com/GameNetworking/NetworkSynchronizer-sub000/databuffer"
	"github.com/GameNetworking/NetworkSynchronizer-sub000/eventbus"
	"github.com/GameNetworking/NetworkSynchronizer-sub000/ids"
	"github.com/GameNetworking/NetworkSynchronizer-sub000/procedure"
	"github.com/GameNetworking/NetworkSynchronizer-sub000/registry"
	"github.com/GameNetworking/NetworkSynchronizer-sub000/snapshot"
	"github.com/GameNetworking/NetworkSynchronizer-sub000/syncgroup"
)

// ProtocolVersion is the wire-protocol version this build speaks, exchanged
// during peer activation so mixed-version peers are rejected instead of
// silently desyncing (teacher's protocol-version-negotiation idiom, carried
// per SPEC_FULL.md's DOMAIN STACK table).
const ProtocolVersion = "1.0.0"

// NegotiateProtocolVersion reports an error if remote is not the same major
// version as ProtocolVersion.
func NegotiateProtocolVersion(remote string) error {
	local, err := version.NewVersion(ProtocolVersion)
	if err != nil {
		return err
	}
	other, err := version.NewVersion(remote)
	if err != nil {
		return fmt.Errorf("scenesync: malformed peer protocol version %q: %w", remote, err)
	}
	if local.Segments()[0] != other.Segments()[0] {
		return fmt.Errorf("scenesync: incompatible protocol version: local=%s remote=%s", ProtocolVersion, remote)
	}
	return nil
}

// MetricsSink is the seam the orchestrator calls into for observability
// (spec's "Metrics" ambient concern), kept as a small interface so the core
// has no hard Prometheus dependency (same seam the teacher uses between
// server and stats). Leaving Engine.Metrics nil is safe: the engine checks
// for nil before every call into it.
type MetricsSink interface {
	TickProcessed(isServer bool)
	RewindTriggered(objectCount int)
	SnapshotBytes(n int)
}

// ObjectFactory is supplied by the host so the client can instantiate a
// host object the first time it sees an unfamiliar net_id carrying a path
// (spec §4.D client receive path step 1).
type ObjectFactory func(path string) ids.ObjectHandle

// Engine is the scheduler/orchestrator of spec §4.F: one instance runs
// either a server's or a client's tick loop against a shared Registry,
// procedure.Registry and set of syncgroup.Groups.
type Engine struct {
	Cfg       Config
	Reg       *registry.Registry
	Procs     *procedure.Registry
	Signals   *Signals
	Metrics   MetricsSink
	Transport Transport

	isServer  bool
	localPeer ids.PeerID

	globalFrame ids.GlobalFrameIndex

	groups      map[ids.SyncGroupID]*syncgroup.Group
	objectGroup map[ids.ObjectLocalID]ids.SyncGroupID

	peers map[ids.PeerID]*PeerData
	// standalone holds controllers with no remote peer: AutonomousServer
	// (bots / server-controlled objects) and NoNet (fully local play).
	standalone []standaloneController

	// client-side reconciliation state; nil/zero on the server.
	serverSnapshots *snapshot.Deque
	clientSnapshots *snapshot.Deque
	scope           *snapshot.RegistryScope
	lastFullState   *snapshot.Snapshot // last received state, overlaid by each delta

	ObjectFactory ObjectFactory

	nextWatchID eventbus.Handle
	watchers    map[eventbus.Handle]watcher
}

type standaloneController struct {
	ObjectLocalID ids.ObjectLocalID
	Controller    controller.Controller
}

type watcher struct {
	objectLocalID ids.ObjectLocalID
	callback      func(flag registry.NetEventFlag, varID ids.VarID, oldValue databuffer.Variant)
}

// the packed eventbus.Handle space is split by a tag bit so one
// ListenerDispatch callback can route both syncgroup-membership
// notifications and host-level variable watches without the two
// colliding; handle 0 is reserved as "never valid" by eventbus.
const (
	handleTagSyncGroup eventbus.Handle = 1 << 63
	handleTagWatcher   eventbus.Handle = 1 << 62
)

func syncGroupHandle(localID ids.ObjectLocalID) eventbus.Handle {
	return handleTagSyncGroup | eventbus.Handle(localID)
}

// NewEngine constructs an Engine. isServer selects which half of the tick
// algorithm Tick runs; localPeer is this process's own peer id (NoPeer on a
// pure server with no local play).
func NewEngine(cfg Config, transport Transport, isServer bool, localPeer ids.PeerID) *Engine {
	e := &Engine{
		Cfg:         cfg,
		Reg:         registry.New(),
		Procs:       procedure.New(),
		Signals:     NewSignals(),
		Transport:   transport,
		isServer:    isServer,
		localPeer:   localPeer,
		groups:      map[ids.SyncGroupID]*syncgroup.Group{ids.GlobalSyncGroup: syncgroup.New(ids.GlobalSyncGroup)},
		objectGroup: make(map[ids.ObjectLocalID]ids.SyncGroupID),
		peers:       make(map[ids.PeerID]*PeerData),
		watchers:    make(map[eventbus.Handle]watcher),
	}
	e.groups[ids.GlobalSyncGroup].MaxTrickledObjectsPerUpdate = cfg.Trickled.MaxTrickledObjectsPerUpdate
	e.groups[ids.GlobalSyncGroup].MaxObjectsPerPartialUpdate = cfg.Trickled.MaxObjectsCountPerPartialUpdate

	if !isServer {
		e.serverSnapshots = snapshot.NewDeque(cfg.Controller.PlayerInputStorageSize)
		e.clientSnapshots = snapshot.NewDeque(cfg.Controller.PlayerInputStorageSize)
		e.scope = &snapshot.RegistryScope{Reg: e.Reg, ControllerLocal: ids.NoneObjectLocalID}
		e.lastFullState = snapshot.New()
	}

	e.Reg.ListenerDispatch = e.dispatch
	return e
}

// Group returns (creating if absent) the sync group identified by id.
func (e *Engine) Group(id ids.SyncGroupID) *syncgroup.Group {
	g, ok := e.groups[id]
	if !ok {
		g = syncgroup.New(id)
		g.MaxTrickledObjectsPerUpdate = e.Cfg.Trickled.MaxTrickledObjectsPerUpdate
		g.MaxObjectsPerPartialUpdate = e.Cfg.Trickled.MaxObjectsCountPerPartialUpdate
		e.groups[id] = g
	}
	return g
}

// AddObject registers a new host object and places it in group's
// simulated set by default (spec §4.B register + §4.E add_new_object).
func (e *Engine) AddObject(handle ids.ObjectHandle, path string, group ids.SyncGroupID) ids.ObjectLocalID {
	localID := e.Reg.Register(handle, path)
	e.objectGroup[localID] = group
	e.Group(group).AddNewObject(localID, true)
	if e.isServer {
		obj := e.Reg.Get(localID)
		if err := e.Reg.SetNetID(localID, e.Reg.NextServerNetID()); err != nil {
			log.Warningf("scenesync: assigning net id to %s: %v", obj.Path, err)
		}
	}
	return localID
}

// SetTrickled moves localID into its group's trickled set at the given
// rate, instead of the (default) simulated set, and binds the host's
// trickled collect/apply pair (spec §4.E).
func (e *Engine) SetTrickled(localID ids.ObjectLocalID, rate float64, cb registry.TrickledCallbacks) {
	obj := e.Reg.Get(localID)
	if obj == nil {
		return
	}
	obj.Trickled = &cb
	group := e.Group(e.objectGroup[localID])
	group.AddNewObject(localID, false)
	group.SetTrickledUpdateRate(localID, rate)
}

// SetControllerCallbacks binds the host's collect_input/are_inputs_different
// /process triple to localID (spec §3 "Object data").
func (e *Engine) SetControllerCallbacks(localID ids.ObjectLocalID, cb registry.ControllerCallbacks) {
	if obj := e.Reg.Get(localID); obj != nil {
		obj.Controller = &cb
	}
}

// SetRewindDependencies records the objects that must rewind alongside
// localID (SPEC_FULL supplement #3).
func (e *Engine) SetRewindDependencies(localID ids.ObjectLocalID, deps []ids.ObjectLocalID) {
	if obj := e.Reg.Get(localID); obj != nil {
		obj.RewindDependencies = deps
	}
}

// SetRealtimeSyncEnabled gates whether localID participates in client-side
// reconciliation comparison at all (spec §4.D).
func (e *Engine) SetRealtimeSyncEnabled(localID ids.ObjectLocalID, enabled bool) {
	if obj := e.Reg.Get(localID); obj != nil {
		obj.RealtimeSyncEnabledOnClient = enabled
	}
}

// RegisterVariable registers a variable and wires it into its object's
// sync group change-tracking, so a later CHANGE event marks the variable
// dirty for the next snapshot (spec §4.B register_variable + §4.E
// notify_variable_changed).
func (e *Engine) RegisterVariable(localID ids.ObjectLocalID, name string, initial databuffer.Variant, get registry.GetterFunc, set registry.SetterFunc, skipRewinding bool) (ids.VarID, error) {
	varID, err := e.Reg.RegisterVariable(localID, name, initial, get, set, skipRewinding)
	if err != nil {
		return ids.NoneVarID, err
	}
	if err := e.Reg.TrackChange(localID, varID, syncGroupHandle(localID), registry.FlagChange); err != nil {
		return ids.NoneVarID, err
	}
	e.Group(e.objectGroup[localID]).NotifyNewVariable(localID, varID)
	return varID, nil
}

// WatchVariable registers a host-level listener for localID/varID, invoked
// through Engine's own dispatch whenever any flag in mask fires (spec §4.B
// track_change, exposed generically rather than per scene-tree binding
// since this engine has no scene-tree layer of its own).
func (e *Engine) WatchVariable(localID ids.ObjectLocalID, varID ids.VarID, mask registry.NetEventFlag, cb func(flag registry.NetEventFlag, varID ids.VarID, oldValue databuffer.Variant)) (eventbus.Handle, error) {
	e.nextWatchID++
	handle := handleTagWatcher | e.nextWatchID
	if err := e.Reg.TrackChange(localID, varID, handle, mask); err != nil {
		return 0, err
	}
	e.watchers[handle] = watcher{objectLocalID: localID, callback: cb}
	return handle, nil
}

// RemoveWatch unbinds a listener registered by WatchVariable.
func (e *Engine) RemoveWatch(localID ids.ObjectLocalID, handle eventbus.Handle) {
	e.Reg.RemoveListener(localID, handle)
	delete(e.watchers, handle)
}

// dispatch is registry.Registry.ListenerDispatch: it routes a CHANGE event
// to the object's sync group (so the next snapshot reflects it) and any
// other flag to whichever host watcher asked for it.
func (e *Engine) dispatch(handle eventbus.Handle, flag registry.NetEventFlag, varID ids.VarID, oldValue databuffer.Variant) {
	if handle&handleTagSyncGroup != 0 {
		localID := ids.ObjectLocalID(handle &^ handleTagSyncGroup)
		if flag.Has(registry.FlagChange) {
			e.Group(e.objectGroup[localID]).NotifyVariableChanged(localID, varID)
		}
		return
	}
	if w, ok := e.watchers[handle]; ok && w.callback != nil {
		w.callback(flag, varID, oldValue)
	}
}

// AddPeer connects peer and constructs the controller variant appropriate
// for it: ServerController (or AutonomousServerController, if
// cfg.ServerControlled) on the server for a remote peer's owned object;
// PlayerController for this process's own local-input object; DollController
// for every other peer's object on a client, interpolated non-authoritatively.
func (e *Engine) AddPeer(peer ids.PeerID, controlledObject ids.ObjectLocalID) error {
	obj := e.Reg.Get(controlledObject)
	if obj == nil {
		return fmt.Errorf("scenesync: AddPeer on unknown object %d", controlledObject)
	}
	obj.OwnerPeer = peer

	var ctrl controller.Controller
	switch {
	case e.isServer && e.Cfg.Controller.ServerControlled:
		cb := registry.ControllerCallbacks{}
		if obj.Controller != nil {
			cb = *obj.Controller
		}
		ctrl = controller.NewAutonomousServerController(e.Cfg.Controller, cb)
	case e.isServer:
		cb := registry.ControllerCallbacks{}
		if obj.Controller != nil {
			cb = *obj.Controller
		}
		ctrl = controller.NewServerController(e.Cfg.Controller, peer, cb)
	case peer == e.localPeer:
		cb := registry.ControllerCallbacks{}
		if obj.Controller != nil {
			cb = *obj.Controller
		}
		pc := controller.NewPlayerController(e.Cfg.Controller, cb)
		pc.OnFrame = func(frameID ids.FrameIndex) { e.captureClientFrame(controlledObject, frameID) }
		ctrl = pc
		e.scope.ControllerLocal = controlledObject
	default:
		cb := registry.TrickledCallbacks{}
		if obj.Trickled != nil {
			cb = *obj.Trickled
		}
		ctrl = controller.NewDollController(e.Cfg.Controller, cb)
	}

	pd := NewPeerData(peer, ctrl)
	pd.LatencyUpdateViaSnapshotSec = e.Cfg.LatencyUpdateViaSnapshotSec
	e.peers[peer] = pd
	ctrl.ActivatePeer(peer)
	e.Signals.SyncStarted.Broadcast(peer, controlledObject)

	if e.isServer && e.Transport != nil {
		send(e.Transport, peer, MsgActivatePeer, EncodeActivatePeer(ProtocolVersion))
	}
	return nil
}

// ReceiveActivatePeer handles an inbound activate_peer handshake
// (client-side): it runs NegotiateProtocolVersion against the server's
// advertised ProtocolVersion and, on a major-version mismatch, broadcasts
// Signals.ProtocolMismatch instead of trusting any further state from that
// server (spec §9's peer-activation ordering note).
func (e *Engine) ReceiveActivatePeer(payload *databuffer.Buffer) error {
	remote := DecodeActivatePeer(payload)
	if err := NegotiateProtocolVersion(remote); err != nil {
		log.Errorf("scenesync: %v", err)
		e.Signals.ProtocolMismatch.Broadcast(remote, err)
		return err
	}
	return nil
}

// RemovePeer marks peer for removal at end of tick rather than immediately
// (Open Question Decision #3 / SPEC_FULL.md): reshuffling sync-group
// membership mid-phase-loop would violate §5's ordering guarantee.
func (e *Engine) RemovePeer(peer ids.PeerID) {
	if pd, ok := e.peers[peer]; ok {
		pd.pendingRemoval = true
	}
}

func (e *Engine) removePeerNow(peer ids.PeerID) {
	pd, ok := e.peers[peer]
	if !ok {
		return
	}
	pd.Controller.ClearPeers()
	delete(e.peers, peer)
	log.Infof("scenesync: peer %d removed", peer)
}

// Tick runs exactly one iteration of spec §4.F's per-tick algorithm.
func (e *Engine) Tick(dt float64) {
	e.globalFrame++

	if e.isServer {
		e.refreshPeers(dt)
	}

	e.runPhases(dt)
	e.advanceControllers(dt)
	e.runScheduledProcedures()
	e.pullAndFlushChanges()

	if e.isServer {
		e.emitSnapshots(dt)
		e.emitTrickled()
		e.emitLatency()
		e.finalizePeerChurn()
	} else {
		e.reconcile()
	}

	if e.Metrics != nil {
		e.Metrics.TickProcessed(e.isServer)
	}
}

func (e *Engine) runPhases(dt float64) {
	for _, phase := range []registry.Phase{
		registry.PhaseEarly, registry.PhasePre, registry.PhaseProcess, registry.PhasePost, registry.PhaseLate,
	} {
		e.Reg.RunPhase(phase, dt)
	}
}

func (e *Engine) advanceControllers(dt float64) {
	for _, pd := range e.peers {
		if !pd.Authority.Enabled {
			continue
		}
		if e.isServer {
			if _, ok := pd.Controller.(*controller.ServerController); ok && pd.NeedFullSnapshot {
				// Open Question Decision #2: withhold processing this
				// peer's input until its controller object's net_id has
				// been broadcast via a full snapshot.
				continue
			}
		}
		pd.Controller.Process(dt)
	}
	for _, sc := range e.standalone {
		sc.Controller.Process(dt)
	}
}

func (e *Engine) runScheduledProcedures() {
	e.Procs.RunDue(e.globalFrame)
}

func (e *Engine) pullAndFlushChanges() {
	e.Reg.ChangeEventsBegin(registry.FlagChange)
	for _, localID := range e.Reg.AllObjects() {
		e.Reg.PullChanges(localID)
	}
	e.Reg.ChangeEventsFlush()
}

// AddStandalone registers a controller with no remote peer: an
// AutonomousServerController-driven bot, or (non-networked play) a
// NoNetController.
func (e *Engine) AddStandalone(localID ids.ObjectLocalID, ctrl controller.Controller) {
	ctrl.ActivatePeer(ids.NoPeer)
	e.standalone = append(e.standalone, standaloneController{ObjectLocalID: localID, Controller: ctrl})
}
