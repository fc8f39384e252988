package snapshot

import (
	"fmt"

	"github.com/GameNetworking/NetworkSynchronizer-sub000/databuffer"
	"github.com/GameNetworking/NetworkSynchronizer-sub000/ids"
)

// ObjectChangeSet is the per-object {unknown_before, unknown_vars,
// changed_vars} tracking the spec names in §4.D / §4.E: which object
// reference form to use, and which variables to include this tick. Owned
// and populated by the syncgroup package; EncodeDelta only reads it.
type ObjectChangeSet struct {
	// UnknownBefore means the receiving peer has never seen this net_id:
	// the object reference must carry its path.
	UnknownBefore bool
	// UnknownVars are variables this peer has never seen by name: they
	// must be sent with their name attached.
	UnknownVars map[ids.VarID]bool
	// ChangedVars are variables to include this tick (a superset of
	// UnknownVars: anything new is also "changed").
	ChangedVars map[ids.VarID]bool
}

// realLevel is the CompressionLevel snapshot payloads use for real/vector
// variable values: float precision is plenty for gameplay state and keeps
// delta snapshots compact (spec §1's "configurable compression" applies
// per-variable in the registry; the wire envelope itself picks one level
// for simplicity, matching the source's single DataBuffer-wide precision
// knob during a network send).
const realLevel = databuffer.CompressionLevel1

// EncodeDelta writes the wire form described in spec §4.D: an optional
// leading controller-confirmation pair, one entry per object in
// changes (or, when forceFull, per object in full), and an optional
// trailing custom-data blob.
func EncodeDelta(buf *databuffer.Buffer, snap *Snapshot, changes map[ids.ObjectNetID]*ObjectChangeSet, forceFull bool, confirmInputID ids.FrameIndex, hasConfirm bool) {
	buf.AddBool(hasConfirm)
	if hasConfirm {
		buf.AddUint(uint64(confirmInputID), databuffer.CompressionLevel1)
	}
	buf.AddUint(uint64(snap.GlobalFrameIndex), databuffer.CompressionLevel1)

	for _, netID := range snap.orderedNetIDs() {
		obj := snap.Objects[netID]
		cs := changes[netID]
		if !forceFull && (cs == nil || (len(cs.ChangedVars) == 0 && !cs.UnknownBefore)) && len(obj.Procedures) == 0 {
			continue
		}

		buf.AddBool(true) // "another object follows"

		unknownBefore := forceFull || (cs != nil && cs.UnknownBefore)
		buf.AddUint(uint64(netID), databuffer.CompressionLevel2)
		buf.AddBool(unknownBefore)
		if unknownBefore {
			buf.AddVariant(databuffer.Variant{Tag: databuffer.VariantString, Str: obj.Path})
		}

		buf.AddBool(obj.HasControllerFrame)
		if obj.HasControllerFrame {
			buf.AddUint(uint64(obj.ControllerFrame), databuffer.CompressionLevel1)
		}

		for _, v := range obj.Vars {
			included := forceFull
			unknownVar := forceFull
			if cs != nil {
				included = included || cs.ChangedVars[v.VarID]
				unknownVar = unknownVar || cs.UnknownVars[v.VarID]
			}
			if !included {
				continue
			}
			buf.AddBool(true) // "another variable follows"
			buf.AddUint(uint64(v.VarID), databuffer.CompressionLevel3)
			buf.AddBool(unknownVar)
			if unknownVar {
				buf.AddVariant(databuffer.Variant{Tag: databuffer.VariantString, Str: v.Name})
			}
			val := v.Value
			val.Level = realLevel
			buf.AddVariant(val)
		}
		buf.AddBool(false) // end of this object's variable list

		for _, p := range obj.Procedures {
			buf.AddBool(true) // "another procedure follows"
			buf.AddUint(uint64(p.ProcedureID), databuffer.CompressionLevel3)
			buf.AddUint(uint64(p.ExecuteAtFrame), databuffer.CompressionLevel1)
			args := databuffer.Variant{Tag: databuffer.VariantBytes}
			if p.Arguments != nil {
				args.Bytes = p.Arguments.Bytes()
			}
			buf.AddVariant(args)
		}
		buf.AddBool(false) // end of this object's procedure list
	}
	buf.AddBool(false) // end of object list

	buf.AddBool(snap.HasCustomData)
	if snap.HasCustomData {
		cd := snap.CustomData
		cd.Level = realLevel
		buf.AddVariant(cd)
	}
}

// VarNameResolver maps a (net_id, var_id) the decoder has not yet seen by
// name back to the object's registered variable ordinal (spec §4.D client
// receive path step 1: "locate or append the variable with that ordinal").
// PathResolver does the equivalent for a first-seen net_id/path pair.
type VarNameResolver interface {
	ResolveObject(netID ids.ObjectNetID, path string) error
	ResolveVar(netID ids.ObjectNetID, varID ids.VarID, name string) error
}

// DecodeDelta parses a buffer written by EncodeDelta into snap, which the
// caller should have seeded as a copy of the last received snapshot (deltas
// are additive per spec §4.D step 2). resolver may be nil when the caller
// doesn't need to react to first-seen objects/variables. DecodeDelta does
// not touch snap.SimulatedObjects: that list reflects sync-group
// membership, which is tracked independently of which objects happen to
// carry a changed variable on a given tick.
func DecodeDelta(buf *databuffer.Buffer, snap *Snapshot, resolver VarNameResolver) error {
	hasConfirm := buf.ReadBool()
	if hasConfirm {
		snap.InputID = ids.FrameIndex(buf.ReadUint(databuffer.CompressionLevel1))
	}
	snap.GlobalFrameIndex = ids.GlobalFrameIndex(buf.ReadUint(databuffer.CompressionLevel1))

	for buf.ReadBool() {
		netID := ids.ObjectNetID(buf.ReadUint(databuffer.CompressionLevel2))
		unknownBefore := buf.ReadBool()
		var path string
		if unknownBefore {
			path = buf.ReadVariant(realLevel).Str
			if resolver != nil {
				if err := resolver.ResolveObject(netID, path); err != nil {
					return fmt.Errorf("snapshot: resolving object %d: %w", netID, err)
				}
			}
		}
		obj := snap.ensureObject(netID)
		if path != "" {
			obj.Path = path
		}

		obj.HasControllerFrame = buf.ReadBool()
		if obj.HasControllerFrame {
			obj.ControllerFrame = ids.FrameIndex(buf.ReadUint(databuffer.CompressionLevel1))
		}

		for buf.ReadBool() {
			varID := ids.VarID(buf.ReadUint(databuffer.CompressionLevel3))
			unknownVar := buf.ReadBool()
			var name string
			if unknownVar {
				name = buf.ReadVariant(realLevel).Str
				if resolver != nil {
					if err := resolver.ResolveVar(netID, varID, name); err != nil {
						return fmt.Errorf("snapshot: resolving var %d on object %d: %w", varID, netID, err)
					}
				}
			}
			val := buf.ReadVariant(realLevel)
			found := false
			for i := range obj.Vars {
				if obj.Vars[i].VarID == varID {
					obj.Vars[i].Value = val
					if name != "" {
						obj.Vars[i].Name = name
					}
					found = true
					break
				}
			}
			if !found {
				obj.Vars = append(obj.Vars, VarEntry{VarID: varID, Name: name, Value: val})
			}
		}

		obj.Procedures = obj.Procedures[:0]
		for buf.ReadBool() {
			pe := ProcedureEntry{}
			pe.ProcedureID = ids.ScheduledProcedureID(buf.ReadUint(databuffer.CompressionLevel3))
			pe.ExecuteAtFrame = ids.GlobalFrameIndex(buf.ReadUint(databuffer.CompressionLevel1))
			args := buf.ReadVariant(realLevel)
			pe.Arguments = databuffer.NewFromBytes(args.Bytes, len(args.Bytes)*8)
			obj.Procedures = append(obj.Procedures, pe)
		}
	}

	snap.HasCustomData = buf.ReadBool()
	if snap.HasCustomData {
		snap.CustomData = buf.ReadVariant(realLevel)
	}
	if buf.Overrun() {
		return fmt.Errorf("snapshot: decode overran buffer")
	}
	return nil
}
