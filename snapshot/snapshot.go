// Package snapshot implements the scene state snapshot, delta wire codec,
// and client/server reconciliation algorithm (spec §4.D). It is grounded
// on original_source/core/snapshot.{h,cpp}'s Snapshot struct and compare
// routine, translated from an index-by-ObjectNetId vector-of-vectors into
// Go maps, and on protocol.go's tagged-variant wire layout discipline for
// the encode/decode side.
package snapshot

import (
	"fmt"
	"sort"
	"strings"

	"github.com/davecgh/go-spew/spew"

	"github.com/GameNetworking/NetworkSynchronizer-sub000/databuffer"
	"github.com/GameNetworking/NetworkSynchronizer-sub000/ids"
)

// VarEntry is one variable's value at the moment the snapshot was taken.
type VarEntry struct {
	VarID ids.VarID
	Name  string // only populated when this value was/needs to be sent by name
	Value databuffer.Variant
}

// ProcedureEntry mirrors one scheduled procedure's (execute_at_frame,
// arguments) pair as carried inside a snapshot (spec §4.G).
type ProcedureEntry struct {
	ProcedureID    ids.ScheduledProcedureID
	ExecuteAtFrame ids.GlobalFrameIndex
	Arguments      *databuffer.Buffer
}

// ObjectSnapshot is the per-object slice of a Snapshot.
type ObjectSnapshot struct {
	NetID          ids.ObjectNetID
	Path           string // populated only when a full/first reference is needed
	ControlledBy   ids.PeerID
	ControllerFrame ids.FrameIndex // secondary controller's current input id, if any
	HasControllerFrame bool
	Vars       []VarEntry
	Procedures []ProcedureEntry
}

// Snapshot is one point-in-time capture of scene state (spec §4.D; struct
// shape grounded on original_source/core/snapshot.h's Snapshot).
type Snapshot struct {
	GlobalFrameIndex ids.GlobalFrameIndex
	InputID          ids.FrameIndex // NoneFrameIndex unless confirming the receiving peer's own controller

	// SimulatedObjects lists, in order, every object this snapshot
	// considers part of the simulated set (spec's ordering rule #2).
	SimulatedObjects []ids.ObjectNetID

	Objects map[ids.ObjectNetID]*ObjectSnapshot

	HasCustomData bool
	CustomData    databuffer.Variant
}

// New returns an empty Snapshot.
func New() *Snapshot {
	return &Snapshot{InputID: ids.NoneFrameIndex, Objects: make(map[ids.ObjectNetID]*ObjectSnapshot)}
}

// GetObjectVars returns the variable slice for netID, or nil if the
// snapshot doesn't mention that object.
func (s *Snapshot) GetObjectVars(netID ids.ObjectNetID) []VarEntry {
	o, ok := s.Objects[netID]
	if !ok {
		return nil
	}
	return o.Vars
}

// Copy returns a deep copy of s (spec's make_copy/copy pair).
func (s *Snapshot) Copy() *Snapshot {
	out := New()
	out.GlobalFrameIndex = s.GlobalFrameIndex
	out.InputID = s.InputID
	out.SimulatedObjects = append([]ids.ObjectNetID(nil), s.SimulatedObjects...)
	out.HasCustomData = s.HasCustomData
	out.CustomData = s.CustomData
	for netID, obj := range s.Objects {
		cp := &ObjectSnapshot{
			NetID:              obj.NetID,
			Path:               obj.Path,
			ControlledBy:       obj.ControlledBy,
			ControllerFrame:    obj.ControllerFrame,
			HasControllerFrame: obj.HasControllerFrame,
			Vars:               append([]VarEntry(nil), obj.Vars...),
			Procedures:         append([]ProcedureEntry(nil), obj.Procedures...),
		}
		out.Objects[netID] = cp
	}
	return out
}

// ensureObject returns (creating if absent) the ObjectSnapshot for netID.
func (s *Snapshot) ensureObject(netID ids.ObjectNetID) *ObjectSnapshot {
	o, ok := s.Objects[netID]
	if !ok {
		o = &ObjectSnapshot{NetID: netID}
		s.Objects[netID] = o
	}
	return o
}

// SetVar records value for varID on netID, overwriting any prior entry for
// that variable.
func (s *Snapshot) SetVar(netID ids.ObjectNetID, varID ids.VarID, name string, value databuffer.Variant) {
	o := s.ensureObject(netID)
	for i := range o.Vars {
		if o.Vars[i].VarID == varID {
			o.Vars[i].Value = value
			if name != "" {
				o.Vars[i].Name = name
			}
			return
		}
	}
	o.Vars = append(o.Vars, VarEntry{VarID: varID, Name: name, Value: value})
}

// String renders the snapshot for debug logging, mirroring the teacher's
// operator std::string dump.
func (s *Snapshot) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Snapshot global_frame_index=%d input_id=%d\n", s.GlobalFrameIndex, s.InputID)
	for _, netID := range s.orderedNetIDs() {
		obj := s.Objects[netID]
		fmt.Fprintf(&b, "Object %d:\n", netID)
		for _, v := range obj.Vars {
			fmt.Fprintf(&b, "|- var %d (%s) = %s\n", v.VarID, v.Name, v.Value.String())
		}
	}
	return b.String()
}

// Dump renders every field of s, including the ones String() elides
// (procedures, custom data, controller frame bookkeeping), for desync
// post-mortems where the compact form isn't enough.
func (s *Snapshot) Dump() string {
	return spew.Sdump(s)
}

func (s *Snapshot) orderedNetIDs() []ids.ObjectNetID {
	out := make([]ids.ObjectNetID, 0, len(s.Objects))
	for id := range s.Objects {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Mismatch describes one variable (or the controller's own input id)
// differing between a server and client snapshot during reconciliation.
type Mismatch struct {
	NetID         ids.ObjectNetID
	VarID         ids.VarID
	VarName       string
	ServerValue   databuffer.Variant
	ClientValue   databuffer.Variant
	SkipRewinding bool
}

// CompareResult is the outcome of Compare.
type CompareResult struct {
	Equal bool
	// RewindMismatches are differences that must trigger a rewind.
	RewindMismatches []Mismatch
	// NoRewindMismatches are differences on skip_rewinding variables; they
	// are folded into a recovery snapshot without rewinding (spec §4.D).
	NoRewindMismatches []Mismatch
	Differences        []string
}

// ObjectLookup resolves whether an object participates in reconciliation
// comparison at all, whether a variable is skip_rewinding, and that
// variable's display name. RegistryScope implements it over a
// *registry.Registry; Compare itself depends only on this interface.
type ObjectLookup interface {
	RealtimeSyncEnabled(netID ids.ObjectNetID) bool
	ControlledByPeer(netID ids.ObjectNetID) ids.PeerID
	SkipRewinding(netID ids.ObjectNetID, varID ids.VarID) bool
	VarName(netID ids.ObjectNetID, varID ids.VarID) string
}

// Compare implements the spec's "Snapshot comparison ordering rules":
// global_frame_index, then simulated_objects (size+contents), then
// has_custom_data/custom-data, then per-object per-variable
// (original_source/core/snapshot.cpp Snapshot::compare, compare_vars).
// skipObjectsNotControlledByPeer, when >= 0, excludes objects controlled by
// any peer other than that one (a doll-owned object reconciles separately).
func Compare(lookup ObjectLookup, tolerance float64, a, b *Snapshot, skipObjectsNotControlledByPeer ids.PeerID) CompareResult {
	res := CompareResult{Equal: true}

	if a.GlobalFrameIndex != b.GlobalFrameIndex {
		res.Equal = false
		res.Differences = append(res.Differences, fmt.Sprintf(
			"global_frame_index differs: a=%d b=%d", a.GlobalFrameIndex, b.GlobalFrameIndex))
	}

	simA, simB := a.SimulatedObjects, b.SimulatedObjects
	if len(simA) != len(simB) {
		res.Equal = false
		res.Differences = append(res.Differences, fmt.Sprintf(
			"simulated_objects count differs: a=%d b=%d", len(simA), len(simB)))
	} else {
		for i := range simA {
			if simA[i] != simB[i] {
				res.Equal = false
				res.Differences = append(res.Differences, fmt.Sprintf(
					"simulated_objects[%d] differs: a=%d b=%d", i, simA[i], simB[i]))
			}
		}
	}

	if a.HasCustomData != b.HasCustomData {
		res.Equal = false
		res.Differences = append(res.Differences, "has_custom_data differs")
	} else if a.HasCustomData && !a.CustomData.Equal(b.CustomData, tolerance) {
		res.Equal = false
		res.Differences = append(res.Differences, "custom_data differs")
	}

	for _, netID := range unionNetIDs(a, b) {
		if lookup != nil && !lookup.RealtimeSyncEnabled(netID) {
			continue
		}
		if lookup != nil && skipObjectsNotControlledByPeer >= 0 {
			if by := lookup.ControlledByPeer(netID); by >= 0 && by != skipObjectsNotControlledByPeer {
				continue
			}
		}

		objA, okA := a.Objects[netID]
		objB, okB := b.Objects[netID]
		if !okB {
			res.Equal = false
			res.Differences = append(res.Differences, fmt.Sprintf("object %d missing from snapshot B", netID))
			continue
		}
		if !okA {
			continue
		}
		compareVars(lookup, tolerance, netID, objA.Vars, objB.Vars, &res)
	}

	return res
}

func unionNetIDs(a, b *Snapshot) []ids.ObjectNetID {
	seen := make(map[ids.ObjectNetID]bool)
	var out []ids.ObjectNetID
	for id := range a.Objects {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for id := range b.Objects {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func compareVars(lookup ObjectLookup, tolerance float64, netID ids.ObjectNetID, serverVars, clientVars []VarEntry, res *CompareResult) {
	clientByID := make(map[ids.VarID]databuffer.Variant, len(clientVars))
	for _, v := range clientVars {
		clientByID[v.VarID] = v.Value
	}

	for _, sv := range serverVars {
		cv, present := clientByID[sv.VarID]
		if !present {
			name := sv.Name
			if lookup != nil {
				name = lookup.VarName(netID, sv.VarID)
			}
			mismatchAppend(lookup, netID, sv.VarID, name, sv.Value, databuffer.Variant{}, res)
			continue
		}
		if sv.Value.Equal(cv, tolerance) {
			continue
		}
		name := sv.Name
		if lookup != nil {
			name = lookup.VarName(netID, sv.VarID)
		}
		mismatchAppend(lookup, netID, sv.VarID, name, sv.Value, cv, res)
	}
}

func mismatchAppend(lookup ObjectLookup, netID ids.ObjectNetID, varID ids.VarID, name string, serverVal, clientVal databuffer.Variant, res *CompareResult) {
	skip := false
	if lookup != nil {
		skip = lookup.SkipRewinding(netID, varID)
	}
	m := Mismatch{NetID: netID, VarID: varID, VarName: name, ServerValue: serverVal, ClientValue: clientVal, SkipRewinding: skip}
	if skip {
		res.NoRewindMismatches = append(res.NoRewindMismatches, m)
		res.Differences = append(res.Differences, fmt.Sprintf(
			"[NO REWIND] object %d var %d (%s): server=%s client=%s", netID, varID, name, serverVal, clientVal))
	} else {
		res.Equal = false
		res.RewindMismatches = append(res.RewindMismatches, m)
		res.Differences = append(res.Differences, fmt.Sprintf(
			"object %d var %d (%s): server=%s client=%s", netID, varID, name, serverVal, clientVal))
	}
}
