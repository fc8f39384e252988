package scenesync

import (
	log "github.com/sirupsen/logrus"

	"github.com/GameNetworking/NetworkSynchronizer-sub000/controller"
	"github.com/GameNetworking/NetworkSynchronizer-sub000/databuffer"
	"github.com/GameNetworking/NetworkSynchronizer-sub000/ids"
	"github.com/GameNetworking/NetworkSynchronizer-sub000/snapshot"
)

// captureClientFrame is PlayerController.OnFrame's callback: it snapshots
// the controlled object (and everything it directly controls) keyed by the
// same FrameIndex just pushed into the controller's input FIFO, so
// reconciliation can later compare it against the matching server snapshot
// (spec §4.D step 0 / §4.F client tick).
func (e *Engine) captureClientFrame(controllerLocalID ids.ObjectLocalID, frameID ids.FrameIndex) {
	snap := snapshot.New()
	snap.GlobalFrameIndex = e.globalFrame
	snap.InputID = frameID

	snapshot.CaptureObject(snap, e.Reg, controllerLocalID)
	for _, localID := range e.scope.ControlledObjects(controllerLocalID) {
		snapshot.CaptureObject(snap, e.Reg, localID)
	}
	e.clientSnapshots.PushBack(snap)
}

// localPlayerController returns the PeerData whose controller is this
// process's own PlayerController, if any (a snapshot-only client, driving
// only doll-interpolated remote objects, has none).
func (e *Engine) localPlayerController() (*controller.PlayerController, bool) {
	pd, ok := e.peers[e.localPeer]
	if !ok {
		return nil, false
	}
	pc, ok := pd.Controller.(*controller.PlayerController)
	return pc, ok
}

// reconcile runs the client-side reconciliation pass and turns its result
// into the side-band signal broadcasts of spec §7.
func (e *Engine) reconcile() {
	var input snapshot.ControllerInput
	if pc, ok := e.localPlayerController(); ok {
		input = pc
	} else {
		// A snapshot-only client keeps only the newest received state:
		// there is nothing of its own to replay against (spec §4.D).
		e.clientSnapshots.KeepOnlyNewest()
	}

	rec := &snapshot.Reconciler{
		Reg:             e.Reg,
		Scope:           e.scope,
		Input:           input,
		Tolerance:       e.Cfg.Snapshot.ComparisonFloatTolerance,
		LocalPeer:       e.localPeer,
		ServerSnapshots: e.serverSnapshots,
		ClientSnapshots: e.clientSnapshots,
	}
	res := rec.Reconcile(e.replayTick)
	if !res.Ran {
		return
	}

	if res.Rewound {
		for _, frame := range res.ReplayedTicks {
			e.Signals.RewindFrameBegin.Broadcast(frame)
		}
		if e.Metrics != nil {
			e.Metrics.RewindTriggered(len(res.RewoundObjects))
		}
		e.logDesync(res.Checkable)
		e.Signals.DesyncDetected.Broadcast(res.Checkable, res.RewoundObjects)
	} else if len(res.EndSyncVars) == 0 {
		e.Signals.StateValidated.Broadcast(res.Checkable)
	} else {
		e.logDesync(res.Checkable)
		e.Signals.DesyncDetected.Broadcast(res.Checkable, res.RewoundObjects)
	}
}

// logDesync dumps the server snapshot that triggered reconciliation at
// checkable, at debug level, for post-mortem diffing against the replayed
// client state.
func (e *Engine) logDesync(checkable ids.FrameIndex) {
	if !log.IsLevelEnabled(log.DebugLevel) {
		return
	}
	if snap, ok := e.serverSnapshots.At(checkable); ok {
		log.Debugf("scenesync: desync at input_id %d, server state:\n%s", checkable, snap.Dump())
	}
}

// replayTick runs one replay frame during rewind: the normal phase loop over
// every registered object (the controlled object's phase callbacks
// included, not only the non-controller objects'), then the local
// controller's process callback
// driven directly by the stored input buffer rather than by the
// PlayerController's own FIFO (spec §4.D step 2 "re-run tick with the
// stored input").
func (e *Engine) replayTick(dt float64, replayInput *databuffer.Buffer) {
	e.runPhases(dt)

	localID, ok := e.scope.ControllerLocalID()
	if !ok {
		return
	}
	obj := e.Reg.Get(localID)
	if obj == nil || obj.Controller == nil || obj.Controller.Process == nil {
		return
	}
	buf := replayInput
	if buf == nil {
		buf = databuffer.New()
	}
	obj.Controller.Process(dt, buf)
}
