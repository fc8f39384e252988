package scenesync

import (
	log "github.com/sirupsen/logrus"

	"github.com/GameNetworking/NetworkSynchronizer-sub000/controller"
	"github.com/GameNetworking/NetworkSynchronizer-sub000/databuffer"
	"github.com/GameNetworking/NetworkSynchronizer-sub000/ids"
	"github.com/GameNetworking/NetworkSynchronizer-sub000/snapshot"
	"github.com/GameNetworking/NetworkSynchronizer-sub000/syncgroup"
)

// refreshPeers reconciles the peer set against the transport's connection
// list and advances each peer's elapsed-time accumulators (spec §4.F step
// 1: "refresh peer list, then timers").
func (e *Engine) refreshPeers(dt float64) {
	if e.Transport == nil {
		return
	}
	connected := make(map[ids.PeerID]bool)
	for _, peer := range e.Transport.ConnectedPeers() {
		connected[peer] = true
		if _, ok := e.peers[peer]; !ok {
			log.Debugf("scenesync: peer %d connected with no controlled object yet", peer)
		}
	}
	for peer, pd := range e.peers {
		if !connected[peer] {
			pd.pendingRemoval = true
			continue
		}
		pd.stateNotifierElapsed += dt
		pd.lastLatencyElapsed += dt
		pd.lastNetstatsElapsed += dt
	}
}

// netIDsFor translates local ids to net ids, skipping any not yet assigned.
func (e *Engine) netIDsFor(localIDs []ids.ObjectLocalID) []ids.ObjectNetID {
	out := make([]ids.ObjectNetID, 0, len(localIDs))
	for _, localID := range localIDs {
		obj := e.Reg.Get(localID)
		if obj == nil || obj.NetID == ids.NoneObjectNetID {
			continue
		}
		out = append(out, obj.NetID)
	}
	return out
}

// changesByNetID re-keys group's per-object change tracking from local to
// net ids, restricted to objectSet (spec §4.E "Partial update" selection).
func (e *Engine) changesByNetID(group *syncgroup.Group, objectSet []ids.ObjectLocalID) map[ids.ObjectNetID]*snapshot.ObjectChangeSet {
	out := make(map[ids.ObjectNetID]*snapshot.ObjectChangeSet, len(objectSet))
	for _, localID := range objectSet {
		obj := e.Reg.Get(localID)
		if obj == nil || obj.NetID == ids.NoneObjectNetID {
			continue
		}
		if cs, ok := group.Change[localID]; ok {
			out[obj.NetID] = cs
		}
	}
	return out
}

// buildSnapshot captures the full registry state plus any pending
// scheduled procedures attached to their owning object (spec §4.G: a
// procedure rides inside the next snapshot until executed).
func (e *Engine) buildSnapshot(group *syncgroup.Group) *snapshot.Snapshot {
	snap := snapshot.Capture(e.Reg, e.globalFrame, e.netIDsFor(group.SimulatedObjects()))
	for _, p := range e.Procs.Pending() {
		obj := e.Reg.Get(p.ObjectLocalID)
		if obj == nil || obj.NetID == ids.NoneObjectNetID {
			continue
		}
		objSnap, ok := snap.Objects[obj.NetID]
		if !ok {
			continue
		}
		objSnap.Procedures = append(objSnap.Procedures, snapshot.ProcedureEntry{
			ProcedureID:    p.ProcedureID,
			ExecuteAtFrame: p.ExecuteAtFrame,
			Arguments:      p.Args,
		})
	}
	return snap
}

// partialSelection caches one group's SelectForPartialUpdate result for the
// duration of one emitSnapshots pass.
type partialSelection struct {
	objects []ids.ObjectLocalID
}

// emitSnapshots sends the `state` message to every eligible peer (spec
// §4.F step 6): forced full on connect/request, otherwise a delta gated by
// server_notify_state_interval, trimmed to the partial-update budget.
func (e *Engine) emitSnapshots(dt float64) {
	touchedGroups := make(map[ids.SyncGroupID]bool)
	// SelectForPartialUpdate mutates the group's shared priority
	// accumulator (resets selected, boosts excluded); it must run at most
	// once per group per tick, not once per peer sharing that group, or
	// later peers in the same group would select from already-rotated
	// priorities and excluded objects would be boosted multiple times in
	// one tick (spec §4.E round-robin fairness).
	partialSelections := make(map[ids.SyncGroupID]partialSelection)

	for peer, pd := range e.peers {
		if pd.pendingRemoval || !pd.Authority.Enabled {
			continue
		}
		forceFull := pd.ForceNotifySnapshot || pd.NeedFullSnapshot
		interval := e.Cfg.Snapshot.ServerNotifyStateInterval.Seconds()
		if !forceFull && pd.stateNotifierElapsed < interval {
			continue
		}
		pd.stateNotifierElapsed = 0
		pd.ForceNotifySnapshot = false

		group := e.Group(pd.Authority.SyncGroup)
		snap := e.buildSnapshot(group)

		objectSet := group.SimulatedObjects()
		if !forceFull {
			sel, ok := partialSelections[pd.Authority.SyncGroup]
			if !ok {
				selected, _ := group.SelectForPartialUpdate()
				sel = partialSelection{objects: selected}
				partialSelections[pd.Authority.SyncGroup] = sel
			}
			objectSet = sel.objects
		}
		changes := e.changesByNetID(group, objectSet)

		var confirmInputID ids.FrameIndex
		hasConfirm := false
		if sc, ok := pd.Controller.(*controller.ServerController); ok {
			confirmInputID, hasConfirm = sc.CurrentFrameIndex()
		}

		var latencyMs uint8
		hasLatency := false
		if pd.lastLatencyElapsed >= pd.LatencyUpdateViaSnapshotSec && pd.LatencyUpdateViaSnapshotSec > 0 {
			pd.lastLatencyElapsed = 0
			latencyMs = pd.LatencyMs
			hasLatency = true
		}

		payload := EncodeState(snap, changes, forceFull, confirmInputID, hasConfirm, latencyMs, hasLatency)
		if e.Transport != nil {
			send(e.Transport, peer, MsgState, payload)
		}
		if e.Metrics != nil {
			e.Metrics.SnapshotBytes(int(payload.BitSize()+7) / 8)
		}

		pd.NeedFullSnapshot = false
		touchedGroups[pd.Authority.SyncGroup] = true
	}

	for groupID := range touchedGroups {
		e.Group(groupID).MarkChangesAsNotified()
	}
}

// emitTrickled runs each touched group's trickled schedule and broadcasts
// the result (spec §4.F step 7 / §4.E).
func (e *Engine) emitTrickled() {
	for _, group := range e.groups {
		updates := group.RunTrickledSchedule(e.collectTrickled)
		if len(updates) == 0 {
			continue
		}
		payload := EncodeTrickledSyncData(uint32(e.globalFrame), e.Cfg.Trickled.NodesRelevancyUpdateTime.Seconds(), updates)
		if e.Transport != nil {
			broadcast(e.Transport, MsgTrickledSyncData, payload)
		}
	}
}

func (e *Engine) collectTrickled(localID ids.ObjectLocalID, rate float64) ([]byte, bool) {
	obj := e.Reg.Get(localID)
	if obj == nil || obj.Trickled == nil || obj.Trickled.Collect == nil {
		return nil, false
	}
	buf := databuffer.New()
	obj.Trickled.Collect(buf, rate)
	return buf.Bytes(), true
}

// emitLatency sends every peer driven by a ServerController its current
// quantized tick-rate correction on notify_fps_acceleration, every tick
// (spec §4.C.1).
func (e *Engine) emitLatency() {
	for peer, pd := range e.peers {
		if pd.pendingRemoval {
			continue
		}
		sc, ok := pd.Controller.(*controller.ServerController)
		if !ok {
			continue
		}
		speed := sc.ClientTickAdditionalSpeed()
		payload := EncodeNotifyFpsAcceleration(speed, e.Cfg.Controller.MaxAdditionalTickSpeed)
		if e.Transport != nil {
			send(e.Transport, peer, MsgNotifyFpsAcceleration, payload)
		}
	}
}

// finalizePeerChurn removes every peer flagged pendingRemoval, deferred from
// mid-tick to end-of-tick (Open Question Decision #3).
func (e *Engine) finalizePeerChurn() {
	for peer, pd := range e.peers {
		if pd.pendingRemoval {
			e.removePeerNow(peer)
		}
	}
}
