package scenesync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/GameNetworking/NetworkSynchronizer-sub000/ids"
)

func TestRefreshPeersMarksDisconnectedPeerForRemoval(t *testing.T) {
	transport := &fakeTransport{isServer: true}
	e := NewEngine(DefaultConfig(), transport, true, ids.NoPeer)
	localID := e.AddObject(ids.ObjectHandle(1), "demo/obj", ids.GlobalSyncGroup)
	require.NoError(t, e.AddPeer(ids.PeerID(1), localID))

	transport.connected = nil // peer 1 is no longer reported as connected
	e.refreshPeers(1.0 / 60)

	require.True(t, e.peers[ids.PeerID(1)].pendingRemoval)
}

func TestRefreshPeersAdvancesElapsedTimers(t *testing.T) {
	transport := &fakeTransport{isServer: true, connected: []ids.PeerID{1}}
	e := NewEngine(DefaultConfig(), transport, true, ids.NoPeer)
	localID := e.AddObject(ids.ObjectHandle(1), "demo/obj", ids.GlobalSyncGroup)
	require.NoError(t, e.AddPeer(ids.PeerID(1), localID))

	e.refreshPeers(0.5)
	require.Equal(t, 0.5, e.peers[ids.PeerID(1)].stateNotifierElapsed)
}

func TestEmitSnapshotsSendsFullSnapshotForNewPeer(t *testing.T) {
	transport := &fakeTransport{isServer: true, connected: []ids.PeerID{1}}
	cfg := DefaultConfig()
	cfg.Snapshot.ServerNotifyStateInterval = time.Hour // never trips on its own
	e := NewEngine(cfg, transport, true, ids.NoPeer)
	localID := e.AddObject(ids.ObjectHandle(1), "demo/obj", ids.GlobalSyncGroup)
	require.NoError(t, e.AddPeer(ids.PeerID(1), localID))
	transport.sent = nil // drop the activate_peer handshake AddPeer sent

	e.emitSnapshots(1.0 / 60)

	require.Len(t, transport.sent, 1)
	require.Equal(t, MsgState, transport.sent[0].msg)
	require.False(t, e.peers[ids.PeerID(1)].NeedFullSnapshot, "NeedFullSnapshot clears once sent")
}

func TestEmitSnapshotsSkipsPeerWithoutAuthority(t *testing.T) {
	transport := &fakeTransport{isServer: true, connected: []ids.PeerID{1}}
	e := NewEngine(DefaultConfig(), transport, true, ids.NoPeer)
	localID := e.AddObject(ids.ObjectHandle(1), "demo/obj", ids.GlobalSyncGroup)
	require.NoError(t, e.AddPeer(ids.PeerID(1), localID))
	e.peers[ids.PeerID(1)].Authority.Enabled = false
	transport.sent = nil // drop the activate_peer handshake AddPeer sent

	e.emitSnapshots(1.0 / 60)
	require.Empty(t, transport.sent)
}

func TestBuildSnapshotAttachesPendingProcedures(t *testing.T) {
	e := NewEngine(DefaultConfig(), &fakeTransport{isServer: true}, true, ids.NoPeer)
	localID := e.AddObject(ids.ObjectHandle(1), "demo/obj", ids.GlobalSyncGroup)
	require.NoError(t, e.Reg.SetNetID(localID, 0))

	e.Procs.Schedule(localID, 42, e.globalFrame+1)

	group := e.Group(ids.GlobalSyncGroup)
	snap := e.buildSnapshot(group)
	objSnap, ok := snap.Objects[0]
	require.True(t, ok)
	require.Len(t, objSnap.Procedures, 1)
	require.Equal(t, ids.ScheduledProcedureID(42), objSnap.Procedures[0].ProcedureID)
}
