package scenesync

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/GameNetworking/NetworkSynchronizer-sub000/ids"
)

func TestCaptureClientFrameStoresSnapshotKeyedByFrameID(t *testing.T) {
	e := newTestEngine(t, false)
	localID := e.AddObject(ids.ObjectHandle(1), "demo/obj", ids.GlobalSyncGroup)
	require.NoError(t, e.Reg.SetNetID(localID, 0))

	e.captureClientFrame(localID, ids.FrameIndex(7))

	snap, ok := e.clientSnapshots.At(7)
	require.True(t, ok)
	require.Equal(t, ids.FrameIndex(7), snap.InputID)
	_, hasObj := snap.Objects[0]
	require.True(t, hasObj)
}

func TestLocalPlayerControllerFoundOnlyWhenRegistered(t *testing.T) {
	e := newTestEngine(t, false)
	_, ok := e.localPlayerController()
	require.False(t, ok, "a freshly constructed client has no peer yet")
}
