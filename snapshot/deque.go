package snapshot

import "github.com/GameNetworking/NetworkSynchronizer-sub000/ids"

// Deque is a bounded, FrameIndex-keyed ordered collection of Snapshots,
// used for both server_snapshots and client_snapshots (spec §4.D: "Push
// onto server_snapshots deque, keyed by input_id").
type Deque struct {
	entries  []*Snapshot
	capacity int
}

// NewDeque returns an empty Deque. capacity <= 0 means unbounded.
func NewDeque(capacity int) *Deque {
	return &Deque{capacity: capacity}
}

// PushBack appends snap, keyed by snap.InputID. Entries must arrive in
// non-decreasing InputID order (the scheduler ticks monotonically); a
// snap with an InputID already present overwrites that entry in place.
func (d *Deque) PushBack(snap *Snapshot) {
	for i, e := range d.entries {
		if e.InputID == snap.InputID {
			d.entries[i] = snap
			return
		}
	}
	d.entries = append(d.entries, snap)
	if d.capacity > 0 && len(d.entries) > d.capacity {
		d.entries = d.entries[1:]
	}
}

// At returns the snapshot stored for inputID, if any.
func (d *Deque) At(inputID ids.FrameIndex) (*Snapshot, bool) {
	for _, e := range d.entries {
		if e.InputID == inputID {
			return e, true
		}
	}
	return nil, false
}

// DropBefore discards every entry with InputID strictly less than upTo.
func (d *Deque) DropBefore(upTo ids.FrameIndex) {
	i := 0
	for i < len(d.entries) && d.entries[i].InputID < upTo {
		i++
	}
	d.entries = d.entries[i:]
}

// Front returns the lowest-InputID entry.
func (d *Deque) Front() (*Snapshot, bool) {
	if len(d.entries) == 0 {
		return nil, false
	}
	return d.entries[0], true
}

// Back returns the highest-InputID entry.
func (d *Deque) Back() (*Snapshot, bool) {
	if len(d.entries) == 0 {
		return nil, false
	}
	return d.entries[len(d.entries)-1], true
}

// Len reports how many entries are stored.
func (d *Deque) Len() int { return len(d.entries) }

// KeepOnlyNewest discards every entry except the one with the highest
// InputID (spec §4.D "Snapshot-only (no local controller) client: ...
// drop all but the newest").
func (d *Deque) KeepOnlyNewest() {
	if len(d.entries) <= 1 {
		return
	}
	d.entries = d.entries[len(d.entries)-1:]
}

// LargestCommonInputID returns the largest InputID present in both d and
// other (spec §4.D: "checkable = largest input_id such that both
// server_snapshots and client_snapshots contain it").
func (d *Deque) LargestCommonInputID(other *Deque) (ids.FrameIndex, bool) {
	otherSet := make(map[ids.FrameIndex]bool, len(other.entries))
	for _, e := range other.entries {
		otherSet[e.InputID] = true
	}
	found := false
	var best ids.FrameIndex
	for _, e := range d.entries {
		if otherSet[e.InputID] && (!found || e.InputID > best) {
			best = e.InputID
			found = true
		}
	}
	return best, found
}
