// Package procedure implements scheduled procedures (spec §4.G): a
// server-requested host callback fired on every peer at a future frame,
// broadcast inside snapshots and phase-gated through
// COLLECTING_ARGUMENTS/RECEIVED/EXECUTING.
package procedure

import (
	"fmt"

	"github.com/GameNetworking/NetworkSynchronizer-sub000/databuffer"
	"github.com/GameNetworking/NetworkSynchronizer-sub000/ids"
)

// Phase identifies which stage of a scheduled procedure's lifecycle is
// active (spec §4.G).
type Phase uint8

const (
	// PhaseCollectingArguments runs server-side only, while the procedure
	// is being encoded into an outgoing snapshot.
	PhaseCollectingArguments Phase = iota
	// PhaseReceived runs client-side, the first time this procedure is
	// observed in a received snapshot.
	PhaseReceived
	// PhaseExecuting runs on both server and client once
	// current_frame >= execute_at_frame.
	PhaseExecuting
)

// Callback is the host function invoked for a procedure at a given phase.
// args is the same databuffer.Buffer instance across every phase call for
// one procedure (spec §4.G supplement: "argument buffer reuse across
// phases"), so a host can stash phase-specific decode state on it.
type Callback func(phase Phase, args *databuffer.Buffer)

// Procedure is one scheduled (object, procedure_id, execute_at_frame,
// arguments) tuple (spec §4.G; struct shape grounded on
// original_source/core/scheduled_procedure.h's ScheduledProcedureInfo,
// with the DataBuffer kept as a pointer so every phase callback observes
// the same instance instead of a copy).
type Procedure struct {
	ObjectLocalID  ids.ObjectLocalID
	ProcedureID    ids.ScheduledProcedureID
	ExecuteAtFrame ids.GlobalFrameIndex
	Args           *databuffer.Buffer

	executed bool
	received bool
}

// Equal mirrors the original's operator== for deduplication when a
// received set is compared against the server's (spec §4.D: "Scheduled
// procedures... server values are always carried into the no-rewind
// recovery").
func (p *Procedure) Equal(other *Procedure) bool {
	if other == nil {
		return false
	}
	return p.ObjectLocalID == other.ObjectLocalID &&
		p.ProcedureID == other.ProcedureID &&
		p.ExecuteAtFrame == other.ExecuteAtFrame &&
		sameBits(p.Args, other.Args)
}

func sameBits(a, b *databuffer.Buffer) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.BitSize() != b.BitSize() {
		return false
	}
	aBytes, bBytes := a.Bytes(), b.Bytes()
	if len(aBytes) != len(bBytes) {
		return false
	}
	for i := range aBytes {
		if aBytes[i] != bBytes[i] {
			return false
		}
	}
	return true
}

// Registry tracks scheduled procedures pending execution (server: ones it
// created; client: ones observed in a received snapshot), gated by frame
// so each fires in EXECUTING exactly once at its target frame.
type Registry struct {
	pending  []*Procedure
	handlers map[ids.ScheduledProcedureID]Callback
}

// New returns an empty procedure Registry.
func New() *Registry {
	return &Registry{handlers: make(map[ids.ScheduledProcedureID]Callback)}
}

// BindHandler registers the host callback for procedureID, invoked at
// every phase it passes through.
func (r *Registry) BindHandler(procedureID ids.ScheduledProcedureID, cb Callback) {
	r.handlers[procedureID] = cb
}

// Schedule creates a new procedure (server-side) and immediately runs it
// through PhaseCollectingArguments so the host can fill args before it's
// broadcast.
func (r *Registry) Schedule(objectLocalID ids.ObjectLocalID, procedureID ids.ScheduledProcedureID, executeAtFrame ids.GlobalFrameIndex) *Procedure {
	p := &Procedure{ObjectLocalID: objectLocalID, ProcedureID: procedureID, ExecuteAtFrame: executeAtFrame, Args: databuffer.New()}
	if cb, ok := r.handlers[procedureID]; ok {
		cb(PhaseCollectingArguments, p.Args)
	}
	r.pending = append(r.pending, p)
	return p
}

// Observe records a procedure received from a snapshot (client-side). If
// this is the first time this exact tuple has been seen, it runs
// PhaseReceived. Re-observing an already-pending procedure with the same
// identity is a no-op; a differing execute_at_frame/arguments for the same
// (object, procedure_id) pair replaces the pending entry and re-runs
// PhaseReceived, since the server's authoritative copy always wins (spec
// §4.D "server values are always carried into the no-rewind recovery").
func (r *Registry) Observe(p *Procedure) {
	for i, existing := range r.pending {
		if existing.ObjectLocalID == p.ObjectLocalID && existing.ProcedureID == p.ProcedureID {
			if existing.Equal(p) {
				return
			}
			r.pending[i] = p
			r.runReceived(p)
			return
		}
	}
	r.pending = append(r.pending, p)
	r.runReceived(p)
}

func (r *Registry) runReceived(p *Procedure) {
	if p.received {
		return
	}
	p.received = true
	if cb, ok := r.handlers[p.ProcedureID]; ok {
		cb(PhaseReceived, p.Args)
	}
}

// RunDue invokes PhaseExecuting for every pending procedure whose
// execute_at_frame <= currentFrame and which has not yet executed, then
// drops it from the pending set (spec §4.F step 4).
func (r *Registry) RunDue(currentFrame ids.GlobalFrameIndex) []*Procedure {
	var fired []*Procedure
	kept := r.pending[:0]
	for _, p := range r.pending {
		if !p.executed && p.ExecuteAtFrame <= currentFrame {
			p.executed = true
			if cb, ok := r.handlers[p.ProcedureID]; ok {
				cb(PhaseExecuting, p.Args)
			}
			fired = append(fired, p)
			continue
		}
		kept = append(kept, p)
	}
	r.pending = kept
	return fired
}

// Pending returns every not-yet-executed procedure, in scheduling order —
// used by the server to decide what to broadcast inside the next
// snapshot.
func (r *Registry) Pending() []*Procedure {
	return append([]*Procedure(nil), r.pending...)
}

// String renders a procedure for debug logging.
func (p *Procedure) String() string {
	return fmt.Sprintf("Procedure{object=%d id=%d execute_at=%d}", p.ObjectLocalID, p.ProcedureID, p.ExecuteAtFrame)
}
