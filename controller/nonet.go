package controller

import (
	"github.com/GameNetworking/NetworkSynchronizer-sub000/databuffer"
	"github.com/GameNetworking/NetworkSynchronizer-sub000/ids"
	"github.com/GameNetworking/NetworkSynchronizer-sub000/registry"
)

// NoNetController drives an object with no network peer at all: single
// player, or a locally-authoritative bot. It calls collect_input and
// process back-to-back on the same tick and just keeps a frame counter
// (spec §4.C.4).
type NoNetController struct {
	cb           registry.ControllerCallbacks
	frameCounter ids.FrameIndex
	active       bool
}

// NewNoNetController constructs a NoNetController bound to the host's
// input callback triple.
func NewNoNetController(cb registry.ControllerCallbacks) *NoNetController {
	return &NoNetController{cb: cb, active: true}
}

func (n *NoNetController) Variant() Variant { return VariantNoNet }

func (n *NoNetController) CurrentFrameIndex() (ids.FrameIndex, bool) {
	if n.frameCounter == 0 {
		return 0, false
	}
	return n.frameCounter - 1, true
}

func (n *NoNetController) Ready() bool { return n.active }

// ClearPeers, ActivatePeer and DeactivatePeer are no-ops: a NoNetController
// has no concept of remote peers (spec §4.C.4).
func (n *NoNetController) ClearPeers()                       {}
func (n *NoNetController) ActivatePeer(peer ids.PeerID)       {}
func (n *NoNetController) DeactivatePeer(peer ids.PeerID)     {}

// Process collects and applies one tick's input immediately, with no FIFO
// or redundancy bookkeeping.
func (n *NoNetController) Process(dt float64) {
	buf := databuffer.New()
	if n.cb.CollectInput != nil {
		n.cb.CollectInput(dt, buf)
	}
	if n.cb.Process != nil {
		n.cb.Process(dt, buf)
	}
	n.frameCounter++
}

var _ Controller = (*NoNetController)(nil)
