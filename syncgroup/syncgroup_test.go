package syncgroup

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/GameNetworking/NetworkSynchronizer-sub000/ids"
)

func TestAddNewObjectMovesBetweenLists(t *testing.T) {
	g := New(ids.GlobalSyncGroup)
	g.AddNewObject(1, false)
	require.Len(t, g.trickled, 1)
	require.Empty(t, g.simulated)

	g.AddNewObject(1, true)
	require.Empty(t, g.trickled, "moving to simulated must remove it from trickled")
	require.Equal(t, []ids.ObjectLocalID{1}, g.SimulatedObjects())
}

func TestRemoveObjectClearsChangeAndDirty(t *testing.T) {
	g := New(ids.GlobalSyncGroup)
	g.AddNewObject(5, true)
	g.MarkChangesAsNotified()
	require.False(t, g.Dirty())

	g.RemoveObject(5)
	require.True(t, g.Dirty())
	require.NotContains(t, g.Change, ids.ObjectLocalID(5))
}

func TestNotifyVariableChangedOnlyWhileSimulated(t *testing.T) {
	g := New(ids.GlobalSyncGroup)
	g.AddNewObject(2, false)
	g.NotifyVariableChanged(2, 0)
	require.Nil(t, g.Change[2], "a trickled object must not accumulate simulated Change entries")

	g.AddNewObject(2, true)
	g.NotifyVariableChanged(2, 3)
	require.True(t, g.Change[2].ChangedVars[3])
}

func TestReplaceObjectsMinimalDiffPreservesUpdateRate(t *testing.T) {
	g := New(ids.GlobalSyncGroup)
	g.AddNewObject(1, false)
	g.SetTrickledUpdateRate(1, 0.5)

	g.ReplaceObjects(nil, map[ids.ObjectLocalID]float64{1: 0.5, 2: 1})
	require.Len(t, g.trickled, 2)
	for _, e := range g.trickled {
		if e.LocalID == 1 {
			require.Equal(t, 0.5, e.UpdateRate)
		}
	}
}

func TestRunTrickledScheduleRespectsBudgetAndResetsPriority(t *testing.T) {
	g := New(ids.GlobalSyncGroup)
	g.MaxTrickledObjectsPerUpdate = 1
	g.AddNewObject(1, false)
	g.AddNewObject(2, false)
	g.SetTrickledUpdateRate(1, 1)
	g.SetTrickledUpdateRate(2, 0.1)

	collected := map[ids.ObjectLocalID]bool{}
	updates := g.RunTrickledSchedule(func(localID ids.ObjectLocalID, rate float64) ([]byte, bool) {
		collected[localID] = true
		return []byte{1}, true
	})
	require.Len(t, updates, 1)
	require.True(t, collected[1], "the higher update-rate object should accumulate priority fastest and win the budget")

	// second run: object 1's priority reset to 0, object 2 keeps accumulating
	updates = g.RunTrickledSchedule(func(localID ids.ObjectLocalID, rate float64) ([]byte, bool) {
		return []byte{1}, true
	})
	require.Len(t, updates, 1)
}

func TestSelectForPartialUpdateBoostsExcluded(t *testing.T) {
	g := New(ids.GlobalSyncGroup)
	g.MaxObjectsPerPartialUpdate = 1
	for _, id := range []ids.ObjectLocalID{1, 2, 3} {
		g.AddNewObject(id, true)
		g.NotifyVariableChanged(id, 0)
	}

	selected, partial := g.SelectForPartialUpdate()
	require.True(t, partial)
	require.Len(t, selected, 1)

	excludedPriority := 0.0
	for _, id := range []ids.ObjectLocalID{1, 2, 3} {
		if id != selected[0] {
			excludedPriority += g.partialPriority[id]
		}
	}
	require.Equal(t, 2.0, excludedPriority, "both excluded objects should have been boosted once")
}

func TestSelectForPartialUpdateReturnsAllWhenUnderBudget(t *testing.T) {
	g := New(ids.GlobalSyncGroup)
	g.MaxObjectsPerPartialUpdate = 5
	g.AddNewObject(1, true)
	g.NotifyVariableChanged(1, 0)

	selected, partial := g.SelectForPartialUpdate()
	require.False(t, partial)
	require.Len(t, selected, 1)
}

func TestMarkChangesAsNotifiedClearsChangeSets(t *testing.T) {
	g := New(ids.GlobalSyncGroup)
	g.AddNewObject(1, true)
	g.NotifyVariableChanged(1, 2)
	require.NotEmpty(t, g.Change[1].ChangedVars)

	g.MarkChangesAsNotified()
	require.Empty(t, g.Change[1].ChangedVars)
	require.False(t, g.Change[1].UnknownBefore)
}
