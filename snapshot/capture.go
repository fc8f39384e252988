package snapshot

import (
	"github.com/GameNetworking/NetworkSynchronizer-sub000/ids"
	"github.com/GameNetworking/NetworkSynchronizer-sub000/registry"
)

// Capture builds a Snapshot of reg's current state. simulated lists the
// objects to mark as simulated (spec's simulated_objects ordering rule);
// every live registered object with a net id is still included in Objects
// so trickled/non-simulated variables remain visible to the comparison,
// but only entries in SimulatedObjects count toward rule #2's ordering
// check.
func Capture(reg *registry.Registry, globalFrame ids.GlobalFrameIndex, simulated []ids.ObjectNetID) *Snapshot {
	snap := New()
	snap.GlobalFrameIndex = globalFrame
	snap.SimulatedObjects = append([]ids.ObjectNetID(nil), simulated...)

	for _, localID := range reg.AllObjects() {
		obj := reg.Get(localID)
		if obj == nil || obj.NetID == ids.NoneObjectNetID {
			continue
		}
		objSnap := snap.ensureObject(obj.NetID)
		objSnap.Path = obj.Path
		objSnap.ControlledBy = obj.OwnerPeer
		for _, v := range obj.Variables {
			if !v.Enabled {
				continue
			}
			objSnap.Vars = append(objSnap.Vars, VarEntry{VarID: v.ID, Name: v.Name, Value: v.Value})
		}
	}
	return snap
}

// CaptureObject captures just one object's current variable values into an
// existing snapshot, used when rebuilding a client snapshot after tick
// replay (spec §4.D step 3: "overwrite the client snapshot at that tick
// with the re-produced state").
func CaptureObject(snap *Snapshot, reg *registry.Registry, localID ids.ObjectLocalID) {
	obj := reg.Get(localID)
	if obj == nil || obj.NetID == ids.NoneObjectNetID {
		return
	}
	objSnap := snap.ensureObject(obj.NetID)
	objSnap.Vars = objSnap.Vars[:0]
	for _, v := range obj.Variables {
		if !v.Enabled {
			continue
		}
		objSnap.Vars = append(objSnap.Vars, VarEntry{VarID: v.ID, Name: v.Name, Value: v.Value})
	}
}

// ApplyToRegistry writes every variable in objSnap back into reg's live
// state for localID via Registry.ApplyValue, under whatever change-event
// phase the caller has already begun with ChangeEventsBegin (spec §4.D
// steps 2/3: SYNC_RESET | SYNC_RECOVER restore, SYNC_REWIND replay).
func ApplyToRegistry(reg *registry.Registry, localID ids.ObjectLocalID, objSnap *ObjectSnapshot) {
	if objSnap == nil {
		return
	}
	for _, v := range objSnap.Vars {
		_ = reg.ApplyValue(localID, v.VarID, v.Value)
	}
}
