package scenesync

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/GameNetworking/NetworkSynchronizer-sub000/controller"
	"github.com/GameNetworking/NetworkSynchronizer-sub000/databuffer"
	"github.com/GameNetworking/NetworkSynchronizer-sub000/ids"
	"github.com/GameNetworking/NetworkSynchronizer-sub000/registry"
)

// fakeTransport is an in-memory Transport that just records every Send/
// Broadcast call, enough to assert the engine reaches the wire without a
// real network stack.
type fakeTransport struct {
	isServer  bool
	local     ids.PeerID
	connected []ids.PeerID
	sent      []sentMsg
	broadcast []sentMsg
}

type sentMsg struct {
	peer    ids.PeerID
	channel Channel
	msg     Message
	payload *databuffer.Buffer
}

func (f *fakeTransport) Send(peer ids.PeerID, channel Channel, msg Message, payload *databuffer.Buffer) {
	f.sent = append(f.sent, sentMsg{peer, channel, msg, payload})
}
func (f *fakeTransport) Broadcast(channel Channel, msg Message, payload *databuffer.Buffer) {
	f.broadcast = append(f.broadcast, sentMsg{0, channel, msg, payload})
}
func (f *fakeTransport) ConnectedPeers() []ids.PeerID { return f.connected }
func (f *fakeTransport) LocalPeerID() ids.PeerID       { return f.local }
func (f *fakeTransport) IsServer() bool                { return f.isServer }

func newTestEngine(t *testing.T, isServer bool) *Engine {
	t.Helper()
	return NewEngine(DefaultConfig(), nil, isServer, ids.NoPeer)
}

func TestNewEngineSeedsGlobalSyncGroup(t *testing.T) {
	e := newTestEngine(t, true)
	require.NotNil(t, e.Group(ids.GlobalSyncGroup))
	require.Nil(t, e.serverSnapshots, "a server has no client reconciliation state")
}

func TestNewEngineClientAllocatesReconciliationState(t *testing.T) {
	e := newTestEngine(t, false)
	require.NotNil(t, e.serverSnapshots)
	require.NotNil(t, e.clientSnapshots)
	require.NotNil(t, e.scope)
}

func TestAddObjectAssignsNetIDOnServer(t *testing.T) {
	e := newTestEngine(t, true)
	localID := e.AddObject(ids.ObjectHandle(1), "demo/obj", ids.GlobalSyncGroup)
	obj := e.Reg.Get(localID)
	require.NotEqual(t, ids.NoneObjectNetID, obj.NetID)
}

func TestRegisterVariableRoutesChangeToSyncGroup(t *testing.T) {
	e := newTestEngine(t, true)
	localID := e.AddObject(ids.ObjectHandle(1), "demo/obj", ids.GlobalSyncGroup)

	value := databuffer.Variant{Tag: databuffer.VariantInt, Int: 1}
	_, err := e.RegisterVariable(localID, "hp", value,
		func(ids.ObjectHandle) databuffer.Variant { return value },
		func(h ids.ObjectHandle, v databuffer.Variant) error { value = v; return nil },
		false)
	require.NoError(t, err)

	group := e.Group(ids.GlobalSyncGroup)
	group.MarkChangesAsNotified()

	value = databuffer.Variant{Tag: databuffer.VariantInt, Int: 2}
	e.pullAndFlushChanges()

	require.Equal(t, 1, group.ChangedObjectCount(), "a tracked variable change must reach its sync group")
}

func TestWatchVariableReceivesServerUpdateFlag(t *testing.T) {
	e := newTestEngine(t, true)
	localID := e.AddObject(ids.ObjectHandle(1), "demo/obj", ids.GlobalSyncGroup)
	value := databuffer.Variant{Tag: databuffer.VariantInt, Int: 1}
	varID, err := e.RegisterVariable(localID, "hp", value,
		func(ids.ObjectHandle) databuffer.Variant { return value },
		func(h ids.ObjectHandle, v databuffer.Variant) error { value = v; return nil },
		false)
	require.NoError(t, err)

	var seen registry.NetEventFlag
	_, err = e.WatchVariable(localID, varID, registry.FlagServerUpdate, func(flag registry.NetEventFlag, varID ids.VarID, oldValue databuffer.Variant) {
		seen = flag
	})
	require.NoError(t, err)

	e.Reg.ChangeEventsBegin(registry.FlagServerUpdate)
	require.NoError(t, e.Reg.ApplyValue(localID, varID, databuffer.Variant{Tag: databuffer.VariantInt, Int: 3}))
	e.Reg.PullChanges(localID)
	e.Reg.ChangeEventsFlush()

	require.True(t, seen.Has(registry.FlagServerUpdate))
}

func TestAddStandaloneIsTickedEveryFrame(t *testing.T) {
	e := newTestEngine(t, true)
	var processed int
	localID := e.AddObject(ids.ObjectHandle(1), "demo/obj", ids.GlobalSyncGroup)
	cb := registry.ControllerCallbacks{Process: func(dt float64, buf *databuffer.Buffer) { processed++ }}
	e.AddStandalone(localID, controller.NewNoNetController(cb))

	e.Tick(1.0 / 60)
	e.Tick(1.0 / 60)
	require.Equal(t, 2, processed)
	require.Equal(t, ids.GlobalFrameIndex(2), e.globalFrame)
}

func TestAddPeerServerControlledUsesAutonomousServerController(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Controller.ServerControlled = true
	e := NewEngine(cfg, &fakeTransport{isServer: true}, true, ids.NoPeer)
	localID := e.AddObject(ids.ObjectHandle(1), "demo/obj", ids.GlobalSyncGroup)

	require.NoError(t, e.AddPeer(ids.PeerID(1), localID))
	pd := e.peers[ids.PeerID(1)]
	require.NotNil(t, pd)
	_, ok := pd.Controller.(*controller.AutonomousServerController)
	require.True(t, ok)
}

func TestAddPeerDefaultUsesServerController(t *testing.T) {
	e := NewEngine(DefaultConfig(), &fakeTransport{isServer: true}, true, ids.NoPeer)
	localID := e.AddObject(ids.ObjectHandle(1), "demo/obj", ids.GlobalSyncGroup)

	require.NoError(t, e.AddPeer(ids.PeerID(1), localID))
	pd := e.peers[ids.PeerID(1)]
	_, ok := pd.Controller.(*controller.ServerController)
	require.True(t, ok)
	require.True(t, pd.NeedFullSnapshot, "a freshly added peer awaits its first full snapshot")
}

func TestRemovePeerIsDeferredUntilFinalizePeerChurn(t *testing.T) {
	e := NewEngine(DefaultConfig(), &fakeTransport{isServer: true}, true, ids.NoPeer)
	localID := e.AddObject(ids.ObjectHandle(1), "demo/obj", ids.GlobalSyncGroup)
	require.NoError(t, e.AddPeer(ids.PeerID(1), localID))

	e.RemovePeer(ids.PeerID(1))
	require.Contains(t, e.peers, ids.PeerID(1), "removal must not take effect immediately")

	e.finalizePeerChurn()
	require.NotContains(t, e.peers, ids.PeerID(1))
}
