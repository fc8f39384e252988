package snapshot

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/GameNetworking/NetworkSynchronizer-sub000/databuffer"
	"github.com/GameNetworking/NetworkSynchronizer-sub000/ids"
	"github.com/GameNetworking/NetworkSynchronizer-sub000/registry"
)

func newTestRegistry(t *testing.T) (*registry.Registry, ids.ObjectLocalID, ids.VarID) {
	t.Helper()
	reg := registry.New()
	local := reg.Register(ids.ObjectHandle(1), "root/unit")
	require.NoError(t, reg.SetNetID(local, 0))
	reg.Get(local).RealtimeSyncEnabledOnClient = true
	var value databuffer.Variant = databuffer.Variant{Tag: databuffer.VariantInt, Int: 10}
	varID, err := reg.RegisterVariable(local, "hp", value, func(ids.ObjectHandle) databuffer.Variant {
		return value
	}, func(h ids.ObjectHandle, v databuffer.Variant) error {
		value = v
		return nil
	}, false)
	require.NoError(t, err)
	return reg, local, varID
}

func TestCaptureAndCompareEqual(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	snapA := Capture(reg, 5, []ids.ObjectNetID{0})
	snapB := snapA.Copy()

	scope := &RegistryScope{Reg: reg, ControllerLocal: ids.NoneObjectLocalID}
	res := Compare(scope, 0, snapA, snapB, ids.NoPeer)
	require.True(t, res.Equal)
	require.Empty(t, res.RewindMismatches)
}

func TestCompareDetectsGlobalFrameIndexMismatch(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	snapA := Capture(reg, 5, []ids.ObjectNetID{0})
	snapB := snapA.Copy()
	snapB.GlobalFrameIndex = 6

	scope := &RegistryScope{Reg: reg, ControllerLocal: ids.NoneObjectLocalID}
	res := Compare(scope, 0, snapA, snapB, ids.NoPeer)
	require.False(t, res.Equal)
	require.Contains(t, res.Differences[0], "global_frame_index")
}

func TestCompareMismatchRoutesToRewindOrNoRewind(t *testing.T) {
	reg, local, varID := newTestRegistry(t)
	snapA := Capture(reg, 1, []ids.ObjectNetID{0})
	snapB := snapA.Copy()
	snapB.SetVar(0, varID, "hp", databuffer.Variant{Tag: databuffer.VariantInt, Int: 99})

	scope := &RegistryScope{Reg: reg, ControllerLocal: ids.NoneObjectLocalID}
	res := Compare(scope, 0, snapA, snapB, ids.NoPeer)
	require.False(t, res.Equal)
	require.Len(t, res.RewindMismatches, 1)
	require.Empty(t, res.NoRewindMismatches)

	obj := reg.Get(local)
	obj.Variables[varID].SkipRewinding = true
	res2 := Compare(scope, 0, snapA, snapB, ids.NoPeer)
	require.True(t, res2.Equal, "a skip_rewinding mismatch must not flip Equal to false")
	require.Empty(t, res2.RewindMismatches)
	require.Len(t, res2.NoRewindMismatches, 1)
}

func TestEncodeDecodeDeltaRoundTrip(t *testing.T) {
	reg, _, varID := newTestRegistry(t)
	snap := Capture(reg, 3, []ids.ObjectNetID{0})

	changes := map[ids.ObjectNetID]*ObjectChangeSet{
		0: {UnknownBefore: true, UnknownVars: map[ids.VarID]bool{varID: true}, ChangedVars: map[ids.VarID]bool{varID: true}},
	}

	buf := databuffer.New()
	EncodeDelta(buf, snap, changes, false, 7, true)
	buf.Seek(0)

	decoded := New()
	err := DecodeDelta(buf, decoded, nil)
	require.NoError(t, err)
	require.Equal(t, ids.FrameIndex(7), decoded.InputID)
	require.Equal(t, ids.GlobalFrameIndex(3), decoded.GlobalFrameIndex)

	vars := decoded.GetObjectVars(0)
	require.Len(t, vars, 1)
	require.Equal(t, varID, vars[0].VarID)
	require.Equal(t, "hp", vars[0].Name)
	require.Equal(t, int64(10), vars[0].Value.Int)
}

func TestEncodeDeltaForceFullIncludesEveryVariable(t *testing.T) {
	reg, _, varID := newTestRegistry(t)
	snap := Capture(reg, 1, []ids.ObjectNetID{0})

	buf := databuffer.New()
	EncodeDelta(buf, snap, nil, true, 0, false)
	buf.Seek(0)

	decoded := New()
	require.NoError(t, DecodeDelta(buf, decoded, nil))
	vars := decoded.GetObjectVars(0)
	require.Len(t, vars, 1)
	require.Equal(t, varID, vars[0].VarID)
}

func TestEncodeDeltaOmitsUnchangedObjects(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	snap := Capture(reg, 1, []ids.ObjectNetID{0})

	buf := databuffer.New()
	EncodeDelta(buf, snap, map[ids.ObjectNetID]*ObjectChangeSet{}, false, 0, false)
	buf.Seek(0)

	decoded := New()
	require.NoError(t, DecodeDelta(buf, decoded, nil))
	require.Empty(t, decoded.Objects)
}

func TestCopyIsDeepEqualToSource(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	snap := Capture(reg, 5, []ids.ObjectNetID{0})
	cp := snap.Copy()

	if diff := cmp.Diff(snap, cp); diff != "" {
		t.Fatalf("Copy() diverged from its source (-want +got):\n%s", diff)
	}

	cp.Objects[0].Vars[0].Value.Int = 99
	if diff := cmp.Diff(snap, cp); diff == "" {
		t.Fatal("mutating the copy's vars must not be visible in the source diff")
	}
}

func TestDequeLargestCommonInputID(t *testing.T) {
	a := NewDeque(0)
	b := NewDeque(0)
	for _, id := range []ids.FrameIndex{1, 2, 3} {
		s := New()
		s.InputID = id
		a.PushBack(s)
	}
	for _, id := range []ids.FrameIndex{2, 3, 4} {
		s := New()
		s.InputID = id
		b.PushBack(s)
	}
	got, ok := a.LargestCommonInputID(b)
	require.True(t, ok)
	require.Equal(t, ids.FrameIndex(3), got)
}

func TestReconcilerRewindsAndReplaysOnMismatch(t *testing.T) {
	reg, local, varID := newTestRegistry(t)
	scope := &RegistryScope{Reg: reg, ControllerLocal: local}

	server := NewDeque(0)
	client := NewDeque(0)

	serverSnap := Capture(reg, 10, []ids.ObjectNetID{0})
	serverSnap.InputID = 5
	server.PushBack(serverSnap)

	clientSnap := serverSnap.Copy()
	clientSnap.SetVar(0, varID, "hp", databuffer.Variant{Tag: databuffer.VariantInt, Int: 1})
	client.PushBack(clientSnap)

	r := &Reconciler{Reg: reg, Scope: scope, ServerSnapshots: server, ClientSnapshots: client}

	var replayed int
	res := r.Reconcile(func(dt float64, input *databuffer.Buffer) { replayed++ })
	require.True(t, res.Ran)
	require.True(t, res.Rewound)
	require.Contains(t, res.RewoundObjects, local)

	obj := reg.Get(local)
	require.Equal(t, int64(10), obj.Variables[varID].Value.Int, "rewind must restore the server value")
}

func TestReconcilerNoRewindPathAppliesWithoutReplay(t *testing.T) {
	reg, local, varID := newTestRegistry(t)
	obj := reg.Get(local)
	obj.Variables[varID].SkipRewinding = true
	scope := &RegistryScope{Reg: reg, ControllerLocal: local}

	server := NewDeque(0)
	client := NewDeque(0)
	serverSnap := Capture(reg, 10, []ids.ObjectNetID{0})
	serverSnap.InputID = 5
	server.PushBack(serverSnap)
	clientSnap := serverSnap.Copy()
	clientSnap.SetVar(0, varID, "hp", databuffer.Variant{Tag: databuffer.VariantInt, Int: 1})
	client.PushBack(clientSnap)

	r := &Reconciler{Reg: reg, Scope: scope, ServerSnapshots: server, ClientSnapshots: client}
	var replayed int
	res := r.Reconcile(func(dt float64, input *databuffer.Buffer) { replayed++ })
	require.True(t, res.Ran)
	require.False(t, res.Rewound)
	require.Zero(t, replayed)
	require.Equal(t, int64(10), obj.Variables[varID].Value.Int)
}
