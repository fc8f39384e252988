package syncgroup

import (
	"sort"

	"github.com/GameNetworking/NetworkSynchronizer-sub000/ids"
)

// SelectForPartialUpdate implements spec §4.E's "Partial update": when more
// than MaxObjectsPerPartialUpdate simulated objects changed this tick,
// return only the top-N by priority (accumulated for objects skipped by a
// previous partial update), and boost every excluded object's priority so
// it is more likely to be included next tick. Returns every changed
// object, unboosted, when no cap is configured or the changed count is
// already within budget.
func (g *Group) SelectForPartialUpdate() (selected []ids.ObjectLocalID, partial bool) {
	var changed []ids.ObjectLocalID
	for _, localID := range g.simulated {
		cs := g.Change[localID]
		if cs != nil && (cs.UnknownBefore || len(cs.ChangedVars) > 0) {
			changed = append(changed, localID)
		}
	}

	if g.MaxObjectsPerPartialUpdate <= 0 || len(changed) <= g.MaxObjectsPerPartialUpdate {
		return changed, false
	}

	sort.SliceStable(changed, func(i, j int) bool {
		return g.partialPriority[changed[i]] > g.partialPriority[changed[j]]
	})

	selected = changed[:g.MaxObjectsPerPartialUpdate]
	excluded := changed[g.MaxObjectsPerPartialUpdate:]

	selectedSet := make(map[ids.ObjectLocalID]bool, len(selected))
	for _, id := range selected {
		selectedSet[id] = true
		g.partialPriority[id] = 0
	}
	for _, id := range excluded {
		g.partialPriority[id]++
	}
	return selected, true
}
