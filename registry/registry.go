// Package registry implements the object & variable registry (spec §4.B):
// per-object handle/id tables, the ordered per-object variable table whose
// index always equals VarID, and the two-phase change-event dispatch that
// feeds both the controller and the snapshot/recovery engine.
package registry

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/GameNetworking/NetworkSynchronizer-sub000/databuffer"
	"github.com/GameNetworking/NetworkSynchronizer-sub000/eventbus"
	"github.com/GameNetworking/NetworkSynchronizer-sub000/ids"
)

// NetEventFlag is a bitset over the phases a change listener can watch.
type NetEventFlag uint8

const (
	// FlagChange fires at end-of-frame when a variable's observed value
	// differs from the previously committed value.
	FlagChange NetEventFlag = 1 << iota
	// FlagServerUpdate fires when the server authoritatively overwrites a
	// variable outside of normal gameplay mutation (e.g. a teleport).
	FlagServerUpdate
	// FlagSyncReset fires when a client restores a variable to the server
	// snapshot value at the start of a rewind.
	FlagSyncReset
	// FlagSyncRewind fires for every variable touched during tick replay.
	FlagSyncRewind
	// FlagEndSync fires once, after recovery, for any variable whose
	// post-value differs from its pre-rewind value.
	FlagEndSync
	// FlagSyncRecover additionally marks the no-rewind recovery path
	// (spec §4.D): applied together with FlagSyncReset when a
	// skip-rewinding variable mismatches but the reconciliation does not
	// replay ticks.
	FlagSyncRecover
)

// Has reports whether mask contains the flag bits in other.
func (m NetEventFlag) Has(other NetEventFlag) bool { return m&other == other }

// Phase identifies which part of the tick is currently invoking callbacks.
type Phase uint8

const (
	PhaseEarly Phase = iota
	PhasePre
	PhaseProcess
	PhasePost
	PhaseLate
	// PhaseExecuting is used for scheduled procedures firing (spec §4.G)
	// and is not one of the five per-tick object phases.
	PhaseExecuting
)

// ProcessFunc is a host callback bound to one phase of one object.
type ProcessFunc func(dt float64)

// GetterFunc reads the current host-side value of a variable.
type GetterFunc func(handle ids.ObjectHandle) databuffer.Variant

// SetterFunc writes a value back to the host. Returning an error signals a
// type mismatch (spec §7): the assignment is skipped, and ApplyValue logs a
// warning and returns the error. No de-sync hint is recorded, so the next
// pull_changes does not trigger recovery on its account.
type SetterFunc func(handle ids.ObjectHandle, v databuffer.Variant) error

// CollectInputFunc asks the host to fill buf with this tick's input.
type CollectInputFunc func(dt float64, buf *databuffer.Buffer)

// AreInputsDifferentFunc reports whether two encoded inputs are
// meaningfully different, used both for run-length coalescing redundant
// sends and for ghost-input forwarding.
type AreInputsDifferentFunc func(a, b *databuffer.Buffer) bool

// ProcessInputFunc applies one tick's input buffer to the host object.
type ProcessInputFunc func(dt float64, buf *databuffer.Buffer)

// TrickledCollectFunc asks the host to encode a streamed (non-simulated)
// update at the given rate.
type TrickledCollectFunc func(buf *databuffer.Buffer, rate float64)

// TrickledApplyFunc interpolates a trickled object between two received
// epochs.
type TrickledApplyFunc func(dt, alpha float64, past, future *databuffer.Buffer)

// ControllerCallbacks is the optional controller triple an object can
// register (spec §3 "Object data").
type ControllerCallbacks struct {
	CollectInput       CollectInputFunc
	AreInputsDifferent AreInputsDifferentFunc
	Process            ProcessInputFunc
}

// TrickledCallbacks is the optional trickled collect/apply pair.
type TrickledCallbacks struct {
	Collect TrickledCollectFunc
	Apply   TrickledApplyFunc
}

// listenerBinding ties one eventbus handle to the mask of phases it cares
// about for one variable.
type listenerBinding struct {
	handle eventbus.Handle
	mask   NetEventFlag
}

// Variable is a named, typed slot tracked on behalf of the host (spec §3).
type Variable struct {
	Name          string
	ID            ids.VarID
	Value         databuffer.Variant
	Enabled       bool
	SkipRewinding bool
	Get           GetterFunc
	Set           SetterFunc
	listeners     []listenerBinding
}

// ObjectData holds everything the registry tracks about one registered
// object (spec §3).
type ObjectData struct {
	LocalID   ids.ObjectLocalID
	NetID     ids.ObjectNetID
	OwnerPeer ids.PeerID
	Handle    ids.ObjectHandle
	Path      string // host-resolvable path, sent alongside a first net_id reference

	Variables []Variable // index == VarID; entries are never removed, only disabled

	processCallbacks map[Phase][]ProcessFunc
	procedures       []ids.ScheduledProcedureID

	Controller *ControllerCallbacks
	Trickled   *TrickledCallbacks

	// RewindDependencies lists other objects that must be rewound
	// whenever this one is (SPEC_FULL supplement #3).
	RewindDependencies []ids.ObjectLocalID

	// RealtimeSyncEnabledOnClient gates whether this object participates
	// in client-side reconciliation comparison at all (spec §4.D).
	RealtimeSyncEnabledOnClient bool

	alive bool
}

// bufferedEvent is one change observed during the current phase, queued
// until change_events_flush de-duplicates per-listener.
type bufferedEvent struct {
	varID    ids.VarID
	listener eventbus.Handle
	oldValue databuffer.Variant
	newValue databuffer.Variant
}

// Registry is the central object/variable table (spec §4.B).
type Registry struct {
	objects      map[ids.ObjectLocalID]*ObjectData
	netIDToLocal map[ids.ObjectNetID]ids.ObjectLocalID
	nextLocalID  ids.ObjectLocalID
	nextNetID    ids.ObjectNetID

	currentPhase    NetEventFlag
	pendingByObject map[ids.ObjectLocalID][]bufferedEvent
	seenListeners   map[eventbus.Handle]bool

	// ListenerDispatch is invoked once per listener per flush, with the
	// flag that fired, the variable id, and the first observed old value.
	ListenerDispatch func(handle eventbus.Handle, flag NetEventFlag, varID ids.VarID, oldValue databuffer.Variant)
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		objects:         make(map[ids.ObjectLocalID]*ObjectData),
		netIDToLocal:    make(map[ids.ObjectNetID]ids.ObjectLocalID),
		pendingByObject: make(map[ids.ObjectLocalID][]bufferedEvent),
		seenListeners:   make(map[eventbus.Handle]bool),
	}
}

// Register adds a new object for handle and returns its stable LocalID.
// Registration is not idempotent by handle identity alone (the host may
// legitimately register two different logical objects backed by
// unrelated handles); re-registering the same handle yields a new object,
// matching the source's "each call creates a node" behaviour. Callers that
// want idempotence should track the returned LocalID themselves.
func (r *Registry) Register(handle ids.ObjectHandle, path string) ids.ObjectLocalID {
	id := r.nextLocalID
	r.nextLocalID++
	r.objects[id] = &ObjectData{
		LocalID:          id,
		NetID:            ids.NoneObjectNetID,
		OwnerPeer:        ids.NoPeer,
		Handle:           handle,
		Path:             path,
		processCallbacks: make(map[Phase][]ProcessFunc),
		alive:            true,
	}
	return id
}

// Unregister removes an object. Safe to call more than once for the same id.
func (r *Registry) Unregister(id ids.ObjectLocalID) {
	obj, ok := r.objects[id]
	if !ok {
		return
	}
	if obj.NetID != ids.NoneObjectNetID {
		delete(r.netIDToLocal, obj.NetID)
	}
	delete(r.objects, id)
	delete(r.pendingByObject, id)
}

// Get returns the object for id, or nil if it doesn't exist (spec §7:
// unregistered-object operations return a recoverable sentinel).
func (r *Registry) Get(id ids.ObjectLocalID) *ObjectData {
	return r.objects[id]
}

// ByNetID resolves an object by its server-assigned net id.
func (r *Registry) ByNetID(netID ids.ObjectNetID) *ObjectData {
	local, ok := r.netIDToLocal[netID]
	if !ok {
		return nil
	}
	return r.objects[local]
}

// SetNetID assigns (server) or stores (client, on receipt) net_id for an
// object. Maintains the invariant that net_id maps back to the same
// object (spec §3).
func (r *Registry) SetNetID(id ids.ObjectLocalID, netID ids.ObjectNetID) error {
	obj, ok := r.objects[id]
	if !ok {
		return fmt.Errorf("registry: SetNetID on unknown object %d", id)
	}
	if obj.NetID != ids.NoneObjectNetID {
		delete(r.netIDToLocal, obj.NetID)
	}
	obj.NetID = netID
	r.netIDToLocal[netID] = id
	return nil
}

// NextServerNetID allocates the next net id for the server to assign to a
// newly visible object.
func (r *Registry) NextServerNetID() ids.ObjectNetID {
	id := r.nextNetID
	r.nextNetID++
	return id
}

// RegisterVariable registers a variable named name on obj and returns its
// VarID. If a variable with that name was previously registered and then
// unregistered (disabled), its ordinal is reused and the slot is
// re-enabled with the given callbacks — register/unregister/register for
// the same name always yields the same VarId (spec §8 round-trip
// property). A genuinely new name is appended at the next free ordinal;
// VarIDs are never reused for a *different* variable (spec §3 invariant).
func (r *Registry) RegisterVariable(id ids.ObjectLocalID, name string, initial databuffer.Variant, get GetterFunc, set SetterFunc, skipRewinding bool) (ids.VarID, error) {
	obj, ok := r.objects[id]
	if !ok {
		return ids.NoneVarID, fmt.Errorf("registry: RegisterVariable on unknown object %d", id)
	}
	for i := range obj.Variables {
		if obj.Variables[i].Name == name {
			v := &obj.Variables[i]
			v.Value = initial
			v.Enabled = true
			v.SkipRewinding = skipRewinding
			v.Get = get
			v.Set = set
			return v.ID, nil
		}
	}
	varID := ids.VarID(len(obj.Variables))
	obj.Variables = append(obj.Variables, Variable{
		Name:          name,
		ID:            varID,
		Value:         initial,
		Enabled:       true,
		SkipRewinding: skipRewinding,
		Get:           get,
		Set:           set,
	})
	return varID, nil
}

// FindOrAppendVariable locates a variable by name, or appends it at the
// next free ordinal when the client receives a variable reference by name
// for the first time (spec §4.D client receive path step 1).
func (r *Registry) FindOrAppendVariable(id ids.ObjectLocalID, name string) (ids.VarID, error) {
	obj, ok := r.objects[id]
	if !ok {
		return ids.NoneVarID, fmt.Errorf("registry: FindOrAppendVariable on unknown object %d", id)
	}
	for i := range obj.Variables {
		if obj.Variables[i].Name == name {
			return obj.Variables[i].ID, nil
		}
	}
	varID, err := r.RegisterVariable(id, name, databuffer.Variant{}, nil, nil, false)
	return varID, err
}

// UnregisterVariable disables a variable without shifting indices (spec §3
// invariant: erasing a variable disables it but never shifts indices).
func (r *Registry) UnregisterVariable(id ids.ObjectLocalID, varID ids.VarID) {
	obj, ok := r.objects[id]
	if !ok {
		return
	}
	if int(varID) >= len(obj.Variables) {
		return
	}
	obj.Variables[varID].Enabled = false
	obj.Variables[varID].listeners = nil
}

// TrackChange binds listener to fire (through ListenerDispatch) whenever
// any flag in mask is satisfied for varID on obj.
func (r *Registry) TrackChange(id ids.ObjectLocalID, varID ids.VarID, listener eventbus.Handle, mask NetEventFlag) error {
	obj, ok := r.objects[id]
	if !ok {
		return fmt.Errorf("registry: TrackChange on unknown object %d", id)
	}
	if int(varID) >= len(obj.Variables) {
		return fmt.Errorf("registry: TrackChange on unknown variable %d", varID)
	}
	obj.Variables[varID].listeners = append(obj.Variables[varID].listeners, listenerBinding{handle: listener, mask: mask})
	return nil
}

// RemoveListener drops listener from every variable's watch list on obj
// (spec §7 "listener target gone": mark empty, remove from all watched
// variables, do not invoke).
func (r *Registry) RemoveListener(id ids.ObjectLocalID, listener eventbus.Handle) {
	obj, ok := r.objects[id]
	if !ok {
		return
	}
	for i := range obj.Variables {
		v := &obj.Variables[i]
		kept := v.listeners[:0]
		for _, lb := range v.listeners {
			if lb.handle != listener {
				kept = append(kept, lb)
			}
		}
		v.listeners = kept
	}
}

// BindProcess registers fn to run during phase for obj.
func (r *Registry) BindProcess(id ids.ObjectLocalID, phase Phase, fn ProcessFunc) {
	obj, ok := r.objects[id]
	if !ok {
		return
	}
	obj.processCallbacks[phase] = append(obj.processCallbacks[phase], fn)
}

// RunPhase invokes every callback bound to phase, for every registered
// object, in registration order (spec §4.F step 2 / §5 ordering
// guarantee).
func (r *Registry) RunPhase(phase Phase, dt float64) {
	for _, id := range r.orderedIDs() {
		obj := r.objects[id]
		for _, fn := range obj.processCallbacks[phase] {
			fn(dt)
		}
	}
}

// orderedIDs returns every live object id sorted by LocalID, which equals
// registration order since ids are assigned monotonically.
func (r *Registry) orderedIDs() []ids.ObjectLocalID {
	out := make([]ids.ObjectLocalID, 0, len(r.objects))
	for id := range r.objects {
		out = append(out, id)
	}
	// simple insertion sort: object counts are small (tens to low
	// thousands) and this runs once per phase per tick.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j] < out[j-1]; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// AllObjects returns every live object id in registration order.
func (r *Registry) AllObjects() []ids.ObjectLocalID { return r.orderedIDs() }

// ChangeEventsBegin starts a new change-event phase. Subsequent
// PullChanges calls during this phase buffer events under flag.
func (r *Registry) ChangeEventsBegin(flag NetEventFlag) {
	r.currentPhase = flag
	r.pendingByObject = make(map[ids.ObjectLocalID][]bufferedEvent)
	r.seenListeners = make(map[eventbus.Handle]bool)
}

// PullChanges reads current host values via each variable's Get, compares
// with the recorded value, and for each difference buffers a change event
// and updates the recorded value (spec §4.B).
func (r *Registry) PullChanges(id ids.ObjectLocalID) {
	obj, ok := r.objects[id]
	if !ok {
		return
	}
	for i := range obj.Variables {
		v := &obj.Variables[i]
		if !v.Enabled || v.Get == nil {
			continue
		}
		newVal := v.Get(obj.Handle)
		if v.Value.Equal(newVal, 0) {
			continue
		}
		old := v.Value
		v.Value = newVal
		r.changeEventAdd(id, v, old, newVal)
	}
}

// ApplyValue writes v into the object's recorded value and, if a setter is
// bound, into host state, emitting a change event under the current phase
// when the value actually changes. Used by the snapshot/recovery engine to
// push server-authoritative values during SYNC_RESET/SYNC_REWIND/SYNC_RECOVER.
func (r *Registry) ApplyValue(id ids.ObjectLocalID, varID ids.VarID, v databuffer.Variant) error {
	obj, ok := r.objects[id]
	if !ok {
		return fmt.Errorf("registry: ApplyValue on unknown object %d", id)
	}
	if int(varID) >= len(obj.Variables) {
		return fmt.Errorf("registry: ApplyValue on unknown variable %d", varID)
	}
	variable := &obj.Variables[varID]
	old := variable.Value
	if variable.Set != nil {
		if err := variable.Set(obj.Handle, v); err != nil {
			log.Warningf("registry: type mismatch applying %s.%s: %v", obj.Path, variable.Name, err)
			return err
		}
	}
	variable.Value = v
	if !old.Equal(v, 0) {
		r.changeEventAdd(id, variable, old, v)
	}
	return nil
}

func (r *Registry) changeEventAdd(id ids.ObjectLocalID, v *Variable, old, newVal databuffer.Variant) {
	for _, lb := range v.listeners {
		if lb.mask&r.currentPhase == 0 {
			continue
		}
		key := lb.handle
		if r.seenListeners == nil {
			r.seenListeners = make(map[eventbus.Handle]bool)
		}
		// De-duplicate: only the first observed old value for this
		// listener+variable pair within the current phase is kept.
		already := false
		for _, ev := range r.pendingByObject[id] {
			if ev.listener == key && ev.varID == v.ID {
				already = true
				break
			}
		}
		if already {
			continue
		}
		r.pendingByObject[id] = append(r.pendingByObject[id], bufferedEvent{
			varID: v.ID, listener: key, oldValue: old, newValue: newVal,
		})
	}
}

// ChangeEventsFlush invokes ListenerDispatch at most once per listener per
// watched variable, with the first observed old value, then clears the
// buffer (spec §4.B: "de-duplicates cascading changes during a rewind").
func (r *Registry) ChangeEventsFlush() {
	if r.ListenerDispatch == nil {
		r.pendingByObject = make(map[ids.ObjectLocalID][]bufferedEvent)
		return
	}
	for _, id := range r.orderedIDsFromMap(r.pendingByObject) {
		for _, ev := range r.pendingByObject[id] {
			r.ListenerDispatch(ev.listener, r.currentPhase, ev.varID, ev.oldValue)
		}
	}
	r.pendingByObject = make(map[ids.ObjectLocalID][]bufferedEvent)
}

func (r *Registry) orderedIDsFromMap(m map[ids.ObjectLocalID][]bufferedEvent) []ids.ObjectLocalID {
	out := make([]ids.ObjectLocalID, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j] < out[j-1]; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// Scrub removes objects whose host handle the caller reports as dead
// (spec §3 lifecycle: "the registry scrubs stale entries each tick").
// isAlive is supplied by the host-facing layer since only it knows whether
// a given handle still resolves to a live host object.
func (r *Registry) Scrub(isAlive func(ids.ObjectHandle) bool) {
	for id, obj := range r.objects {
		if !isAlive(obj.Handle) {
			r.Unregister(id)
		}
	}
}
