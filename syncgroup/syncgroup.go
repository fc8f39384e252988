// Package syncgroup implements per-group simulated/trickled object
// partitioning, per-object change tracking, and trickled-update priority
// scheduling (spec §4.E). Grounded on the teacher's per-peer subscription
// state and ticker-driven scheduling idiom (a subscription's timer loop is
// architecturally the same "accumulate, sort, fire top-N, reset" shape
// this package's trickled scheduler uses, here driven by the scene tick
// instead of a time.Ticker).
package syncgroup

import (
	"sort"

	"github.com/GameNetworking/NetworkSynchronizer-sub000/ids"
	"github.com/GameNetworking/NetworkSynchronizer-sub000/snapshot"
)

// trickledEntry is one object's slot in a group's trickled schedule.
type trickledEntry struct {
	LocalID    ids.ObjectLocalID
	UpdateRate float64
	priority   float64
}

// Group partitions its peers' objects into a simulated set (rewound,
// reconciled, fully synced) and a trickled set (interpolated, best-effort,
// never rewound), per spec §4.E.
type Group struct {
	ID ids.SyncGroupID

	simulated []ids.ObjectLocalID
	trickled  []trickledEntry

	simulatedIndex map[ids.ObjectLocalID]int
	trickledIndex  map[ids.ObjectLocalID]int

	simulatedDirty bool
	trickledDirty  bool

	Peers map[ids.PeerID]bool

	// Change tracks, per simulated object, what needs to go out in the
	// next delta snapshot (spec §4.D's per-object Change struct, owned
	// here since it is a function of sync-group membership).
	Change map[ids.ObjectLocalID]*snapshot.ObjectChangeSet

	// MaxTrickledObjectsPerUpdate bounds step 3 of the trickled scheduling
	// algorithm.
	MaxTrickledObjectsPerUpdate int
	// MaxObjectsPerPartialUpdate bounds how many changed objects a single
	// delta snapshot may cover (spec §4.E "Partial update").
	MaxObjectsPerPartialUpdate int

	// partialPriority boosts objects excluded from a partial update so
	// they're included next frame.
	partialPriority map[ids.ObjectLocalID]float64
}

// New returns an empty Group.
func New(id ids.SyncGroupID) *Group {
	return &Group{
		ID:              id,
		simulatedIndex:  make(map[ids.ObjectLocalID]int),
		trickledIndex:   make(map[ids.ObjectLocalID]int),
		Peers:           make(map[ids.PeerID]bool),
		Change:          make(map[ids.ObjectLocalID]*snapshot.ObjectChangeSet),
		partialPriority: make(map[ids.ObjectLocalID]float64),
	}
}

// AddNewObject adds obj to the simulated or trickled list, moving it from
// the other list first if present (spec §4.E "If the object is in the
// other list, it is moved"). Returns the new index within its list.
func (g *Group) AddNewObject(localID ids.ObjectLocalID, simulated bool) int {
	if simulated {
		g.removeFromTrickled(localID)
		if i, ok := g.simulatedIndex[localID]; ok {
			return i
		}
		g.simulated = append(g.simulated, localID)
		idx := len(g.simulated) - 1
		g.simulatedIndex[localID] = idx
		g.simulatedDirty = true
		g.Change[localID] = &snapshot.ObjectChangeSet{UnknownBefore: true, UnknownVars: map[ids.VarID]bool{}, ChangedVars: map[ids.VarID]bool{}}
		return idx
	}

	g.removeFromSimulated(localID)
	if i, ok := g.trickledIndex[localID]; ok {
		return i
	}
	g.trickled = append(g.trickled, trickledEntry{LocalID: localID, UpdateRate: 1})
	idx := len(g.trickled) - 1
	g.trickledIndex[localID] = idx
	g.trickledDirty = true
	return idx
}

// RemoveObject drops localID from whichever list holds it and sets the
// corresponding dirty bit.
func (g *Group) RemoveObject(localID ids.ObjectLocalID) {
	g.removeFromSimulated(localID)
	g.removeFromTrickled(localID)
	delete(g.Change, localID)
	delete(g.partialPriority, localID)
}

func (g *Group) removeFromSimulated(localID ids.ObjectLocalID) {
	i, ok := g.simulatedIndex[localID]
	if !ok {
		return
	}
	g.simulated = append(g.simulated[:i], g.simulated[i+1:]...)
	delete(g.simulatedIndex, localID)
	for id, idx := range g.simulatedIndex {
		if idx > i {
			g.simulatedIndex[id] = idx - 1
		}
	}
	g.simulatedDirty = true
}

func (g *Group) removeFromTrickled(localID ids.ObjectLocalID) {
	i, ok := g.trickledIndex[localID]
	if !ok {
		return
	}
	g.trickled = append(g.trickled[:i], g.trickled[i+1:]...)
	delete(g.trickledIndex, localID)
	for id, idx := range g.trickledIndex {
		if idx > i {
			g.trickledIndex[id] = idx - 1
		}
	}
	g.trickledDirty = true
}

// ReplaceObjects performs the minimal diff against newSimulated/newTrickled:
// objects already present keep their entry (only mutable fields like
// UpdateRate are copied in via update_from); objects no longer present are
// removed; new ones are added (spec §4.E "replace_objects").
func (g *Group) ReplaceObjects(newSimulated []ids.ObjectLocalID, newTrickled map[ids.ObjectLocalID]float64) {
	wantSim := make(map[ids.ObjectLocalID]bool, len(newSimulated))
	for _, id := range newSimulated {
		wantSim[id] = true
	}
	for _, id := range append([]ids.ObjectLocalID(nil), g.simulated...) {
		if !wantSim[id] {
			g.removeFromSimulated(id)
		}
	}
	for _, id := range newSimulated {
		g.AddNewObject(id, true)
	}

	for _, id := range append([]ids.ObjectLocalID(nil), trickledLocalIDs(g.trickled)...) {
		if _, ok := newTrickled[id]; !ok {
			g.removeFromTrickled(id)
		}
	}
	for id, rate := range newTrickled {
		g.AddNewObject(id, false)
		g.SetTrickledUpdateRate(id, rate)
	}
}

func trickledLocalIDs(entries []trickledEntry) []ids.ObjectLocalID {
	out := make([]ids.ObjectLocalID, len(entries))
	for i, e := range entries {
		out[i] = e.LocalID
	}
	return out
}

// NotifyNewVariable records that localID has an unseen-before variable,
// only while the object is in the simulated set (spec §4.E).
func (g *Group) NotifyNewVariable(localID ids.ObjectLocalID, varID ids.VarID) {
	if _, ok := g.simulatedIndex[localID]; !ok {
		return
	}
	cs := g.changeFor(localID)
	cs.UnknownVars[varID] = true
	cs.ChangedVars[varID] = true
}

// NotifyVariableChanged records that localID's varID changed this tick,
// only while the object is in the simulated set.
func (g *Group) NotifyVariableChanged(localID ids.ObjectLocalID, varID ids.VarID) {
	if _, ok := g.simulatedIndex[localID]; !ok {
		return
	}
	g.changeFor(localID).ChangedVars[varID] = true
}

func (g *Group) changeFor(localID ids.ObjectLocalID) *snapshot.ObjectChangeSet {
	cs, ok := g.Change[localID]
	if !ok {
		cs = &snapshot.ObjectChangeSet{UnknownVars: map[ids.VarID]bool{}, ChangedVars: map[ids.VarID]bool{}}
		g.Change[localID] = cs
	}
	return cs
}

// SetTrickledUpdateRate sets localID's trickled update rate, clamped to
// (0, 1] per spec §4.E.
func (g *Group) SetTrickledUpdateRate(localID ids.ObjectLocalID, rate float64) {
	i, ok := g.trickledIndex[localID]
	if !ok {
		return
	}
	if rate <= 0 {
		rate = 0.0001
	}
	if rate > 1 {
		rate = 1
	}
	g.trickled[i].UpdateRate = rate
}

// SortTrickledByPriority stably sorts the trickled list descending by
// accumulated priority (spec §4.E "sort_trickled_by_priority").
func (g *Group) SortTrickledByPriority() {
	sort.SliceStable(g.trickled, func(i, j int) bool { return g.trickled[i].priority > g.trickled[j].priority })
	g.reindexTrickled()
}

func (g *Group) reindexTrickled() {
	for i, e := range g.trickled {
		g.trickledIndex[e.LocalID] = i
	}
}

// MarkChangesAsNotified clears every object's Change set and both dirty
// bits, called after a snapshot has gone out (spec §4.E).
func (g *Group) MarkChangesAsNotified() {
	for _, cs := range g.Change {
		cs.UnknownBefore = false
		cs.UnknownVars = map[ids.VarID]bool{}
		cs.ChangedVars = map[ids.VarID]bool{}
	}
	g.simulatedDirty = false
	g.trickledDirty = false
}

// SimulatedObjects returns the simulated list in order.
func (g *Group) SimulatedObjects() []ids.ObjectLocalID {
	return append([]ids.ObjectLocalID(nil), g.simulated...)
}

// Dirty reports whether either list changed since the last
// MarkChangesAsNotified.
func (g *Group) Dirty() bool { return g.simulatedDirty || g.trickledDirty }

// ChangedObjectCount reports how many simulated objects currently have a
// non-empty Change set, used to decide whether a partial update is needed
// (spec §4.E "Partial update").
func (g *Group) ChangedObjectCount() int {
	n := 0
	for _, localID := range g.simulated {
		cs := g.Change[localID]
		if cs != nil && (cs.UnknownBefore || len(cs.ChangedVars) > 0) {
			n++
		}
	}
	return n
}
