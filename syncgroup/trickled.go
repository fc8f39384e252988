package syncgroup

import "github.com/GameNetworking/NetworkSynchronizer-sub000/ids"

// TrickledCollectFunc asks the host to encode one object's streamed update
// at the given rate (mirrors registry.TrickledCollectFunc's shape without
// importing the registry package, keeping syncgroup's scheduling logic
// independent of how the buffer payload is produced).
type TrickledCollectFunc func(localID ids.ObjectLocalID, rate float64) (payload []byte, ok bool)

// TrickledUpdate is one object selected by RunTrickledSchedule this tick.
type TrickledUpdate struct {
	LocalID ids.ObjectLocalID
	Payload []byte
}

// RunTrickledSchedule implements spec §4.E's per-tick trickled scheduling:
// accumulate every entry's priority by its update rate, sort descending,
// collect from the top MaxTrickledObjectsPerUpdate entries and reset their
// priority to zero. Entries left over carry their accumulated priority
// into the next tick, guaranteeing eventual service even under a small
// budget.
func (g *Group) RunTrickledSchedule(collect TrickledCollectFunc) []TrickledUpdate {
	for i := range g.trickled {
		g.trickled[i].priority += g.trickled[i].UpdateRate
	}
	g.SortTrickledByPriority()

	budget := g.MaxTrickledObjectsPerUpdate
	if budget <= 0 {
		budget = len(g.trickled)
	}

	var updates []TrickledUpdate
	for i := 0; i < len(g.trickled) && i < budget; i++ {
		e := &g.trickled[i]
		if collect == nil {
			e.priority = 0
			continue
		}
		payload, ok := collect(e.LocalID, e.UpdateRate)
		if !ok {
			continue
		}
		updates = append(updates, TrickledUpdate{LocalID: e.LocalID, Payload: payload})
		e.priority = 0
	}
	return updates
}
