package controller

import (
	"github.com/GameNetworking/NetworkSynchronizer-sub000/databuffer"
	"github.com/GameNetworking/NetworkSynchronizer-sub000/ids"
	"github.com/GameNetworking/NetworkSynchronizer-sub000/registry"
)

// AutonomousServerController is used for server-controlled objects (bots,
// or a player whose input authority has been handed to the server via
// set_server_controlled): it collects input locally every tick instead of
// waiting on a remote peer's packets, and never runs the tick-rate control
// loop since there is no network round-trip to smooth out (spec §4.C.1,
// grounded on AutonomousServerController in the original source).
type AutonomousServerController struct {
	cfg Config
	cb  registry.ControllerCallbacks

	currentInputID ids.FrameIndex
	haveInput      bool
	active         bool
	peers          map[ids.PeerID]bool
}

// NewAutonomousServerController constructs an AutonomousServerController
// bound to the host's input callback triple.
func NewAutonomousServerController(cfg Config, cb registry.ControllerCallbacks) *AutonomousServerController {
	return &AutonomousServerController{
		cfg:    cfg,
		cb:     cb,
		active: true,
		peers:  make(map[ids.PeerID]bool),
	}
}

func (a *AutonomousServerController) Variant() Variant { return VariantAutonomousServer }

func (a *AutonomousServerController) CurrentFrameIndex() (ids.FrameIndex, bool) {
	return a.currentInputID, a.haveInput
}

func (a *AutonomousServerController) Ready() bool { return a.active }
func (a *AutonomousServerController) ClearPeers() { a.peers = make(map[ids.PeerID]bool) }
func (a *AutonomousServerController) ActivatePeer(peer ids.PeerID) {
	a.peers[peer] = true
}
func (a *AutonomousServerController) DeactivatePeer(peer ids.PeerID) { delete(a.peers, peer) }

// Process collects this tick's input directly from the host (there is no
// remote peer to wait on) and runs it immediately; the input is "always
// new" so no FIFO, ghost forwarding, or streaming-paused bookkeeping apply.
func (a *AutonomousServerController) Process(dt float64) {
	if !a.haveInput {
		a.currentInputID = 0
		a.haveInput = true
	} else {
		a.currentInputID++
	}

	buf := databuffer.New()
	if a.cb.CollectInput != nil {
		a.cb.CollectInput(dt, buf)
	}
	if a.cb.Process != nil {
		a.cb.Process(dt, buf)
	}
}

// IngestInputPacket is a no-op: an autonomous server controller ignores any
// stray input packets a client might still send right after
// set_server_controlled flips (matches the original's receive_inputs
// warning-and-ignore behavior).
func (a *AutonomousServerController) IngestInputPacket(*databuffer.Buffer, uint64) error { return nil }

var _ Controller = (*AutonomousServerController)(nil)
