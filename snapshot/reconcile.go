package snapshot

import (
	log "github.com/sirupsen/logrus"

	"github.com/GameNetworking/NetworkSynchronizer-sub000/databuffer"
	"github.com/GameNetworking/NetworkSynchronizer-sub000/ids"
	"github.com/GameNetworking/NetworkSynchronizer-sub000/registry"
)

// ControllerInput is the slice of a PlayerController's behavior the
// reconciliation engine needs: stored inputs for replay, and the
// no-rewind confirmation callback. Expressed as an interface (rather than
// importing the controller package's concrete type) to keep snapshot
// reusable by things other than a live controller, e.g. a recorded replay.
type ControllerInput interface {
	StoredInputAt(frameID ids.FrameIndex) (*databuffer.Buffer, bool)
	NotifyInputChecked(checkedID ids.FrameIndex)
}

// RewindScope resolves the pieces of registry state the reconciliation
// engine needs beyond what Compare's ObjectLookup already covers:
// translating between net and local ids, and expanding the rewind set
// declared in spec §4.D step 1.
type RewindScope interface {
	ObjectLookup
	LocalByNetID(netID ids.ObjectNetID) (ids.ObjectLocalID, bool)
	NetIDByLocal(localID ids.ObjectLocalID) (ids.ObjectNetID, bool)
	RewindDependencies(localID ids.ObjectLocalID) []ids.ObjectLocalID
	// ControllerLocalID returns the local id of the object holding the
	// controller being reconciled, if any local controller exists.
	ControllerLocalID() (ids.ObjectLocalID, bool)
	// ControlledObjects returns every object the controller identified by
	// ControllerLocalID directly controls (spec step 1: "the controller
	// plus all objects it directly controls").
	ControlledObjects(controllerLocalID ids.ObjectLocalID) []ids.ObjectLocalID
	// AllLocalIDs returns every live registered object, used to rebuild a
	// full client snapshot after a replay tick (spec §4.D step 3).
	AllLocalIDs() []ids.ObjectLocalID
}

// Reconciler runs the client-side reconciliation algorithm of spec §4.D
// against a registry.Registry, replaying ticks on mismatch and folding
// skip_rewinding differences into a no-rewind recovery path.
type Reconciler struct {
	Reg       *registry.Registry
	Scope     RewindScope
	Input     ControllerInput // nil for a snapshot-only client with no local controller
	Tolerance float64
	LocalPeer ids.PeerID

	ServerSnapshots *Deque
	ClientSnapshots *Deque

	// preRewindValues records, per localID/varID, the value observed just
	// before a rewind/recovery pass began, so the scheduler can diff
	// against the post-recovery value and fire END_SYNC exactly once
	// (spec §4.D "End-sync events").
	preRewindValues map[ids.ObjectLocalID]map[ids.VarID]databuffer.Variant
}

// Result summarizes what one Reconcile call did, for the scheduler to act
// on (emitting side-band signal events, replay-begin notifications, etc.)
type Result struct {
	Ran            bool
	Checkable      ids.FrameIndex
	Rewound        bool
	RewoundObjects []ids.ObjectLocalID
	ReplayedTicks  []ids.FrameIndex
	EndSyncVars    []EndSyncChange
}

// EndSyncChange is one variable whose value differs across a
// rewind/recovery pass, reported once per spec's END_SYNC contract.
type EndSyncChange struct {
	LocalID ids.ObjectLocalID
	VarID   ids.VarID
	Before  databuffer.Variant
	After   databuffer.Variant
}

// Reconcile runs one pass of the spec §4.D reconciliation algorithm. tick
// advances non-controller object phases and re-processes the controller
// with a stored input buffer for one replay frame; it is supplied by the
// caller (the scheduler) since only it knows how to run EARLY/PRE/PROCESS/
// POST/LATE against the registry for a replay tick.
func (r *Reconciler) Reconcile(tick func(dt float64, replayInput *databuffer.Buffer)) Result {
	checkable, ok := r.ServerSnapshots.LargestCommonInputID(r.ClientSnapshots)
	if !ok {
		return Result{}
	}
	r.ServerSnapshots.DropBefore(checkable)
	r.ClientSnapshots.DropBefore(checkable)

	serverSnap, _ := r.ServerSnapshots.At(checkable)
	clientSnap, _ := r.ClientSnapshots.At(checkable)
	if serverSnap == nil || clientSnap == nil {
		return Result{}
	}

	cmp := Compare(r.Scope, r.Tolerance, serverSnap, clientSnap, ids.NoPeer)
	res := Result{Ran: true, Checkable: checkable}

	if len(cmp.RewindMismatches) > 0 {
		res.Rewound = true
		rewindSet := r.computeRewindSet(cmp.RewindMismatches)
		res.RewoundObjects = rewindSet
		r.beginEndSyncTracking(rewindSet)

		r.Reg.ChangeEventsBegin(registry.FlagSyncReset | registry.FlagSyncRecover)
		for _, localID := range rewindSet {
			netID, ok := r.Scope.NetIDByLocal(localID)
			if !ok {
				continue
			}
			objSnap, ok := serverSnap.Objects[netID]
			if !ok {
				continue
			}
			ApplyToRegistry(r.Reg, localID, objSnap)
		}
		r.Reg.ChangeEventsFlush()

		lastStored, ok := r.lastStoredFrame()
		if ok {
			for frame := checkable + 1; frame <= lastStored; frame++ {
				var input *databuffer.Buffer
				if r.Input != nil {
					input, _ = r.Input.StoredInputAt(frame)
				}
				r.Reg.ChangeEventsBegin(registry.FlagSyncRewind)
				tick(0, input)
				r.Reg.ChangeEventsFlush()

				res.ReplayedTicks = append(res.ReplayedTicks, frame)
				replaySnap := New()
				replaySnap.GlobalFrameIndex = serverSnap.GlobalFrameIndex
				replaySnap.InputID = frame
				for _, localID := range r.Scope.AllLocalIDs() {
					CaptureObject(replaySnap, r.Reg, localID)
				}
				r.ClientSnapshots.PushBack(replaySnap)
			}
		}
	} else if len(cmp.NoRewindMismatches) > 0 {
		rewindSet := r.computeRewindSet(cmp.NoRewindMismatches)
		r.beginEndSyncTracking(rewindSet)

		r.Reg.ChangeEventsBegin(registry.FlagSyncReset | registry.FlagSyncRecover)
		for _, m := range cmp.NoRewindMismatches {
			localID, ok := r.Scope.LocalByNetID(m.NetID)
			if !ok {
				continue
			}
			_ = r.Reg.ApplyValue(localID, m.VarID, m.ServerValue)
		}
		r.Reg.ChangeEventsFlush()

		if r.Input != nil {
			r.Input.NotifyInputChecked(checkable)
		}
	}

	res.EndSyncVars = r.finishEndSyncTracking()
	return res
}

// computeRewindSet expands the directly-mismatched objects per spec step
// 1: if any is (or contains) the local controller, add the controller
// object, everything it directly controls, and its declared rewind
// dependencies.
func (r *Reconciler) computeRewindSet(mismatches []Mismatch) []ids.ObjectLocalID {
	seen := make(map[ids.ObjectLocalID]bool)
	var out []ids.ObjectLocalID
	add := func(id ids.ObjectLocalID) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}

	controllerLocalID, haveController := r.Scope.ControllerLocalID()
	includeController := false

	for _, m := range mismatches {
		localID, ok := r.Scope.LocalByNetID(m.NetID)
		if !ok {
			continue
		}
		add(localID)
		if haveController && localID == controllerLocalID {
			includeController = true
		}
	}

	if haveController && includeController {
		add(controllerLocalID)
		for _, controlled := range r.Scope.ControlledObjects(controllerLocalID) {
			add(controlled)
		}
	}

	for _, localID := range append([]ids.ObjectLocalID(nil), out...) {
		for _, dep := range r.Scope.RewindDependencies(localID) {
			add(dep)
		}
	}

	return out
}

func (r *Reconciler) beginEndSyncTracking(rewindSet []ids.ObjectLocalID) {
	r.preRewindValues = make(map[ids.ObjectLocalID]map[ids.VarID]databuffer.Variant, len(rewindSet))
	for _, localID := range rewindSet {
		obj := r.Reg.Get(localID)
		if obj == nil {
			continue
		}
		values := make(map[ids.VarID]databuffer.Variant, len(obj.Variables))
		for _, v := range obj.Variables {
			if v.Enabled {
				values[v.ID] = v.Value
			}
		}
		r.preRewindValues[localID] = values
	}
}

// finishEndSyncTracking diffs current registry values against the
// pre-rewind snapshot taken by beginEndSyncTracking, returning every
// variable whose value differs (spec §4.D "any variable whose post-value
// differs from its pre-value emits an END_SYNC event exactly once").
func (r *Reconciler) finishEndSyncTracking() []EndSyncChange {
	var out []EndSyncChange
	for localID, before := range r.preRewindValues {
		obj := r.Reg.Get(localID)
		if obj == nil {
			continue
		}
		for _, v := range obj.Variables {
			if !v.Enabled {
				continue
			}
			prev, ok := before[v.ID]
			if !ok || !prev.Equal(v.Value, r.Tolerance) {
				out = append(out, EndSyncChange{LocalID: localID, VarID: v.ID, Before: prev, After: v.Value})
			}
		}
	}
	r.preRewindValues = nil
	return out
}

func (r *Reconciler) lastStoredFrame() (ids.FrameIndex, bool) {
	if lf, ok := r.Input.(interface{ LastStoredFrame() (ids.FrameIndex, bool) }); ok {
		return lf.LastStoredFrame()
	}
	if back, ok := r.ClientSnapshots.Back(); ok {
		return back.InputID, true
	}
	log.Debug("snapshot: no stored input frame available for replay bound")
	return 0, false
}
