package scenesync

import (
	"github.com/GameNetworking/NetworkSynchronizer-sub000/controller"
	"github.com/GameNetworking/NetworkSynchronizer-sub000/ids"
)

// PeerAuthorityData gates whether peer's controlled-object variables are
// currently writable by that peer, independent of connection state (spec
// SPEC_FULL supplement #2: a peer can be "benched" as a spectator without
// disconnecting it).
type PeerAuthorityData struct {
	Enabled   bool
	SyncGroup ids.SyncGroupID
}

// PeerData is everything the engine tracks about one connected peer (spec
// §3 "PeerData").
type PeerData struct {
	Peer      ids.PeerID
	Authority PeerAuthorityData

	LatencyMs         uint8
	OutPacketLossPct  float64
	LatencyJitterMs   float64

	// ForceNotifySnapshot requests the next emitted snapshot be a full one
	// even if server_notify_state_interval hasn't elapsed yet.
	ForceNotifySnapshot bool
	// NeedFullSnapshot is set on connect and cleared once a full snapshot
	// has been sent. A client's notify_need_full_snapshot request sets
	// ForceNotifySnapshot instead.
	NeedFullSnapshot bool

	LatencyUpdateViaSnapshotSec float64
	NetstatsPeerUpdateSec       float64

	Controller controller.Controller

	stateNotifierElapsed float64
	lastLatencyElapsed   float64
	lastNetstatsElapsed  float64

	// pendingRemoval is set by RemovePeer, or by refreshPeers once the
	// transport no longer lists this peer; finalizePeerChurn removes the
	// peer at end of tick rather than immediately (SPEC_FULL open question #3).
	pendingRemoval bool
}

// NewPeerData constructs a PeerData for peer, defaulting to the global
// sync group and full authority, awaiting its first full snapshot.
func NewPeerData(peer ids.PeerID, ctrl controller.Controller) *PeerData {
	return &PeerData{
		Peer:             peer,
		Authority:        PeerAuthorityData{Enabled: true, SyncGroup: ids.GlobalSyncGroup},
		Controller:       ctrl,
		NeedFullSnapshot: true,
	}
}
