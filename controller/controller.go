// Package controller implements the per-peer controller state machine
// (spec §4.C): the input ring buffer, redundant-unreliable input delivery,
// the server-side tick-rate control loop, and the five controller variants
// (Server, AutonomousServer, Player, Doll, NoNet).
package controller

import (
	"time"

	"github.com/GameNetworking/NetworkSynchronizer-sub000/databuffer"
	"github.com/GameNetworking/NetworkSynchronizer-sub000/ids"
)

// Variant identifies which of the closed sum type of controllers an
// instance is (spec §9 design note: "do not use open inheritance").
type Variant uint8

const (
	VariantServer Variant = iota
	VariantAutonomousServer
	VariantPlayer
	VariantDoll
	VariantNoNet
)

// Controller is the common contract every variant satisfies (spec §4.C
// "Common contract").
type Controller interface {
	Variant() Variant
	CurrentFrameIndex() (ids.FrameIndex, bool)
	Process(dt float64)
	Ready() bool
	ClearPeers()
	ActivatePeer(peer ids.PeerID)
	DeactivatePeer(peer ids.PeerID)
}

// FrameSnapshot is one recorded input (spec §3 "FrameSnapshot").
type FrameSnapshot struct {
	FrameID        ids.FrameIndex
	BitLength      uint64
	Buffer         *databuffer.Buffer
	SimilarityWith ids.FrameIndex // id of a previous input considered identical, or NoneFrameIndex
	ReceivedAt     time.Time
}

// inputFIFO is a bounded, strictly-id-ordered queue of FrameSnapshots
// (spec §3 invariant: "strictly ordered by frame_id; duplicate frame_ids
// are discarded").
type inputFIFO struct {
	entries  []FrameSnapshot
	capacity int
}

func newInputFIFO(capacity int) *inputFIFO {
	return &inputFIFO{capacity: capacity}
}

// Insert adds fs in sorted position by FrameID. Returns false (discarding
// fs) if an entry with the same FrameID already exists.
func (f *inputFIFO) Insert(fs FrameSnapshot) bool {
	i := 0
	for i < len(f.entries) && f.entries[i].FrameID < fs.FrameID {
		i++
	}
	if i < len(f.entries) && f.entries[i].FrameID == fs.FrameID {
		return false
	}
	f.entries = append(f.entries, FrameSnapshot{})
	copy(f.entries[i+1:], f.entries[i:])
	f.entries[i] = fs
	if f.capacity > 0 && len(f.entries) > f.capacity {
		// drop the oldest (lowest FrameID) entry to stay bounded.
		f.entries = f.entries[1:]
	}
	return true
}

// PopFront removes and returns the lowest-FrameID entry, if any.
func (f *inputFIFO) PopFront() (FrameSnapshot, bool) {
	if len(f.entries) == 0 {
		return FrameSnapshot{}, false
	}
	fs := f.entries[0]
	f.entries = f.entries[1:]
	return fs, true
}

// PeekFront returns the lowest-FrameID entry without removing it.
func (f *inputFIFO) PeekFront() (FrameSnapshot, bool) {
	if len(f.entries) == 0 {
		return FrameSnapshot{}, false
	}
	return f.entries[0], true
}

// At returns the entry at FIFO position i (0 = front), used by the ghost
// search (spec §4.C.1 step 3: "search forward in the FIFO up to
// ghost_input_count positions").
func (f *inputFIFO) At(i int) (FrameSnapshot, bool) {
	if i < 0 || i >= len(f.entries) {
		return FrameSnapshot{}, false
	}
	return f.entries[i], true
}

// RemoveBefore drops every entry with FrameID strictly less than upTo.
func (f *inputFIFO) RemoveBefore(upTo ids.FrameIndex) {
	i := 0
	for i < len(f.entries) && f.entries[i].FrameID < upTo {
		i++
	}
	f.entries = f.entries[i:]
}

// RemoveFront drops the first n entries.
func (f *inputFIFO) RemoveFront(n int) {
	if n > len(f.entries) {
		n = len(f.entries)
	}
	f.entries = f.entries[n:]
}

// Len reports how many entries are queued.
func (f *inputFIFO) Len() int { return len(f.entries) }

// PeekLast returns the highest-FrameID entry without removing it.
func (f *inputFIFO) PeekLast() (FrameSnapshot, bool) {
	if len(f.entries) == 0 {
		return FrameSnapshot{}, false
	}
	return f.entries[len(f.entries)-1], true
}

// Tail returns up to the last n entries, oldest first.
func (f *inputFIFO) Tail(n int) []FrameSnapshot {
	if n <= 0 || len(f.entries) == 0 {
		return nil
	}
	if n > len(f.entries) {
		n = len(f.entries)
	}
	return f.entries[len(f.entries)-n:]
}

// Find returns the entry with the given FrameID, if stored.
func (f *inputFIFO) Find(frameID ids.FrameIndex) (FrameSnapshot, bool) {
	// entries are sorted; a linear scan is fine at these bounded sizes
	// (hundreds of entries at most) and keeps the FIFO simple, matching
	// the source's own use of a plain vector for this structure.
	for _, e := range f.entries {
		if e.FrameID == frameID {
			return e, true
		}
	}
	return FrameSnapshot{}, false
}
