package registry

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/GameNetworking/NetworkSynchronizer-sub000/databuffer"
	"github.com/GameNetworking/NetworkSynchronizer-sub000/eventbus"
	"github.com/GameNetworking/NetworkSynchronizer-sub000/ids"
)

var errTypeMismatch = errors.New("type mismatch")

func TestRegisterUnregisterIdempotent(t *testing.T) {
	r := New()
	id := r.Register(1, "obj/a")
	require.NotNil(t, r.Get(id))
	r.Unregister(id)
	require.Nil(t, r.Get(id))
	r.Unregister(id) // second call must not panic
}

func TestRegisterVariableThenUnregisterThenReregisterSameVarID(t *testing.T) {
	r := New()
	id := r.Register(1, "obj/a")
	v1, err := r.RegisterVariable(id, "hp", databuffer.Variant{Tag: databuffer.VariantInt, Int: 100}, nil, nil, false)
	require.NoError(t, err)
	r.UnregisterVariable(id, v1)
	v2, err := r.RegisterVariable(id, "hp", databuffer.Variant{Tag: databuffer.VariantInt, Int: 100}, nil, nil, false)
	require.NoError(t, err)
	require.Equal(t, v1, v2, "register/unregister/register for the same name yields the same VarId")
}

func TestVarIDEqualsIndex(t *testing.T) {
	r := New()
	id := r.Register(1, "obj/a")
	for i := 0; i < 5; i++ {
		varID, err := r.RegisterVariable(id, fmt.Sprintf("var%d", i), databuffer.Variant{}, nil, nil, false)
		require.NoError(t, err)
		require.Equal(t, ids.VarID(i), varID)
	}
}

func TestSetNetIDInvariant(t *testing.T) {
	r := New()
	id := r.Register(1, "obj/a")
	require.NoError(t, r.SetNetID(id, 42))
	require.Equal(t, r.Get(id), r.ByNetID(42))
}

func TestPullChangesEmitsChangeEvent(t *testing.T) {
	r := New()
	id := r.Register(1, "obj/a")
	hp := 100
	varID, _ := r.RegisterVariable(id, "hp", databuffer.Variant{Tag: databuffer.VariantInt, Int: int64(hp)},
		func(ids.ObjectHandle) databuffer.Variant { return databuffer.Variant{Tag: databuffer.VariantInt, Int: int64(hp)} },
		nil, false)

	var dispatched []ids.VarID
	r.ListenerDispatch = func(handle eventbus.Handle, flag NetEventFlag, v ids.VarID, old databuffer.Variant) {
		dispatched = append(dispatched, v)
	}

	r.TrackChange(id, varID, eventbus.Handle(1), FlagChange)

	r.ChangeEventsBegin(FlagChange)
	r.PullChanges(id) // no change yet
	r.ChangeEventsFlush()
	require.Empty(t, dispatched)

	hp = 50
	r.ChangeEventsBegin(FlagChange)
	r.PullChanges(id)
	r.ChangeEventsFlush()
	require.Equal(t, []ids.VarID{varID}, dispatched)
}

func TestChangeEventsFlushDeduplicatesCascadingChanges(t *testing.T) {
	r := New()
	id := r.Register(1, "obj/a")
	varID, err := r.RegisterVariable(id, "x", databuffer.Variant{Tag: databuffer.VariantInt, Int: 0}, nil, nil, false)
	require.NoError(t, err)

	calls := 0
	r.ListenerDispatch = func(handle eventbus.Handle, flag NetEventFlag, v ids.VarID, old databuffer.Variant) { calls++ }
	r.TrackChange(id, varID, eventbus.Handle(9), FlagSyncRewind)

	r.ChangeEventsBegin(FlagSyncRewind)
	require.NoError(t, r.ApplyValue(id, varID, databuffer.Variant{Tag: databuffer.VariantInt, Int: 1}))
	require.NoError(t, r.ApplyValue(id, varID, databuffer.Variant{Tag: databuffer.VariantInt, Int: 2}))
	r.ChangeEventsFlush()

	require.Equal(t, 1, calls, "the same listener+variable pair must fire at most once per flush")
}

func TestRemoveListenerStopsFutureDispatch(t *testing.T) {
	r := New()
	id := r.Register(1, "obj/a")
	varID, _ := r.RegisterVariable(id, "x", databuffer.Variant{}, nil, nil, false)
	calls := 0
	r.ListenerDispatch = func(handle eventbus.Handle, flag NetEventFlag, v ids.VarID, old databuffer.Variant) { calls++ }
	r.TrackChange(id, varID, eventbus.Handle(1), FlagChange)
	r.RemoveListener(id, eventbus.Handle(1))

	r.ChangeEventsBegin(FlagChange)
	r.ApplyValue(id, varID, databuffer.Variant{Tag: databuffer.VariantInt, Int: 1})
	r.ChangeEventsFlush()
	require.Equal(t, 0, calls)
}

func TestRunPhaseOrdersByRegistration(t *testing.T) {
	r := New()
	var order []ids.ObjectLocalID
	a := r.Register(1, "a")
	b := r.Register(2, "b")
	c := r.Register(3, "c")
	r.BindProcess(c, PhaseProcess, func(dt float64) { order = append(order, c) })
	r.BindProcess(a, PhaseProcess, func(dt float64) { order = append(order, a) })
	r.BindProcess(b, PhaseProcess, func(dt float64) { order = append(order, b) })
	r.RunPhase(PhaseProcess, 0.016)
	require.Equal(t, []ids.ObjectLocalID{a, b, c}, order)
}

func TestScrubRemovesDeadObjects(t *testing.T) {
	r := New()
	id := r.Register(1, "a")
	r.Scrub(func(ids.ObjectHandle) bool { return false })
	require.Nil(t, r.Get(id))
}

func TestApplyValueSetterErrorSkipsAssignment(t *testing.T) {
	r := New()
	id := r.Register(1, "a")
	varID, _ := r.RegisterVariable(id, "x", databuffer.Variant{Tag: databuffer.VariantInt, Int: 1}, nil,
		func(ids.ObjectHandle, databuffer.Variant) error { return errTypeMismatch }, false)
	err := r.ApplyValue(id, varID, databuffer.Variant{Tag: databuffer.VariantString, Str: "oops"})
	require.Error(t, err)
	obj := r.Get(id)
	require.Equal(t, int64(1), obj.Variables[varID].Value.Int, "value must be left unchanged on setter error")
}
