package scenesync

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/GameNetworking/NetworkSynchronizer-sub000/controller"
	"github.com/GameNetworking/NetworkSynchronizer-sub000/databuffer"
	"github.com/GameNetworking/NetworkSynchronizer-sub000/ids"
	"github.com/GameNetworking/NetworkSynchronizer-sub000/registry"
	"github.com/GameNetworking/NetworkSynchronizer-sub000/snapshot"
)

// ReceiveState handles an inbound `state` message (spec §6 / §4.D). The
// decoded snapshot always overlays lastFullState and is pushed onto
// serverSnapshots for the reconciliation pass to pick up; a client with no
// local controller has nothing to reconcile against, so it mirrors the
// decoded state onto the registry immediately instead.
func (e *Engine) ReceiveState(payload *databuffer.Buffer) error {
	working := e.lastFullState.Copy()
	latencyMs, hasLatency, err := DecodeState(payload, working, &clientResolver{e})
	if err != nil {
		return fmt.Errorf("scenesync: ReceiveState: %w", err)
	}
	e.lastFullState = working
	if hasLatency {
		log.Debugf("scenesync: server-reported latency %dms", latencyMs)
	}
	e.serverSnapshots.PushBack(working.Copy())

	if _, hasLocalController := e.scope.ControllerLocalID(); !hasLocalController {
		e.mirrorState(working)
	}
	return nil
}

// mirrorState applies snap directly onto the registry for a snapshot-only
// client (one with no local PlayerController of its own to reconcile
// against) — spec §4.D: such a client treats the server's state as ground
// truth, always.
func (e *Engine) mirrorState(snap *snapshot.Snapshot) {
	e.Reg.ChangeEventsBegin(registry.FlagServerUpdate)
	for _, localID := range e.Reg.AllObjects() {
		obj := e.Reg.Get(localID)
		if obj == nil || obj.NetID == ids.NoneObjectNetID {
			continue
		}
		objSnap, ok := snap.Objects[obj.NetID]
		if !ok {
			continue
		}
		snapshot.ApplyToRegistry(e.Reg, localID, objSnap)
	}
	e.Reg.ChangeEventsFlush()
}

// ReceiveInputPacket feeds an inbound `server_send_inputs` payload into
// peer's ServerController (server-side, spec §4.C.1). payloadBits is the
// fixed per-input encoded width the host's collect_input contract produces.
func (e *Engine) ReceiveInputPacket(peer ids.PeerID, payload *databuffer.Buffer, payloadBits uint64) error {
	pd, ok := e.peers[peer]
	if !ok {
		return fmt.Errorf("scenesync: ReceiveInputPacket from unknown peer %d", peer)
	}
	sc, ok := pd.Controller.(*controller.ServerController)
	if !ok {
		return nil // an autonomous-server-controlled peer's stray input packet is ignored
	}
	wasPaused := sc.StreamingPaused()
	if err := sc.IngestInputPacket(payload, payloadBits); err != nil {
		return err
	}
	if !wasPaused && sc.StreamingPaused() {
		e.Signals.SyncPaused.Broadcast(peer)
	}
	return nil
}

// ReceiveFpsAcceleration applies a server-sent tick-rate correction to the
// local PlayerController (client-side, spec §4.C.1).
func (e *Engine) ReceiveFpsAcceleration(payload *databuffer.Buffer) {
	pc, ok := e.localPlayerController()
	if !ok {
		return
	}
	speed := DecodeNotifyFpsAcceleration(payload, e.Cfg.Controller.MaxAdditionalTickSpeed)
	pc.SetTickAdditionalSpeed(speed)
}

// ReceiveTrickled decodes an inbound `trickled_sync_data` broadcast and
// feeds each entry to the DollController of the object it targets
// (client-side, spec §4.C.3). localIDOf resolves which registered object a
// decoded payload belongs to — left to the caller since trickled_sync_data
// carries no explicit object reference of its own (the host's trickled
// collect/apply contract is expected to encode that inside the payload).
func (e *Engine) ReceiveTrickled(payload *databuffer.Buffer, payloadLen int, localIDOf func(data []byte) (ids.ObjectLocalID, bool)) {
	frames := DecodeTrickledSyncData(payload, payloadLen)
	for _, f := range frames {
		localID, ok := localIDOf(f.Payload)
		if !ok {
			continue
		}
		obj := e.Reg.Get(localID)
		if obj == nil {
			continue
		}
		pd, ok := e.peers[obj.OwnerPeer]
		if !ok {
			continue
		}
		if dc, ok := pd.Controller.(*controller.DollController); ok {
			dc.ReceiveEpoch(f.Epoch, databuffer.NewFromBytes(f.Payload, uint64(payloadLen)*8))
		}
	}
}

// SendInputPacket builds and sends this process's own PlayerController's
// redundant input packet to the server (client-side, spec §4.C.2 / §6).
func (e *Engine) SendInputPacket() {
	pc, ok := e.localPlayerController()
	if !ok || e.Transport == nil {
		return
	}
	payload := pc.BuildRedundantPacket()
	send(e.Transport, e.Transport.LocalPeerID(), MsgServerSendInputs, payload)
}

// RequestFullSnapshot asks the server to force a full, non-delta snapshot
// on its next emission — used after detecting an unrecoverable desync, or
// simply on first connect (spec §6 `notify_need_full_snapshot`).
func (e *Engine) RequestFullSnapshot() {
	if e.Transport == nil {
		return
	}
	send(e.Transport, e.Transport.LocalPeerID(), MsgNotifyNeedFullSnapshot, EncodeBool(true))
}

// ReceiveNeedFullSnapshot handles an inbound notify_need_full_snapshot
// request (server-side): the next emitSnapshots pass for peer will be
// forced full regardless of the notify interval.
func (e *Engine) ReceiveNeedFullSnapshot(peer ids.PeerID) {
	if pd, ok := e.peers[peer]; ok {
		pd.ForceNotifySnapshot = true
	}
}

// SetPeerAuthority enables or disables peer's write authority over its
// controlled objects' variables without disconnecting it (SPEC_FULL
// supplement #2), and broadcasts the change via set_network_enabled.
func (e *Engine) SetPeerAuthority(peer ids.PeerID, enabled bool) {
	pd, ok := e.peers[peer]
	if !ok {
		return
	}
	pd.Authority.Enabled = enabled
	if e.Transport != nil {
		send(e.Transport, peer, MsgSetNetworkEnabled, EncodeBool(enabled))
	}
}
