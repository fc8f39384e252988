package snapshot

import (
	"github.com/GameNetworking/NetworkSynchronizer-sub000/ids"
	"github.com/GameNetworking/NetworkSynchronizer-sub000/registry"
)

// RegistryScope adapts a *registry.Registry into the ObjectLookup and
// RewindScope interfaces Compare and Reconciler need, so neither has to
// depend on the registry package's concrete types directly. It is the
// scheduler's job (spec §4.F) to set ControllerLocal to whichever object
// currently holds the local peer's PlayerController, if any.
type RegistryScope struct {
	Reg *registry.Registry

	// ControllerLocal is the object holding the local player controller,
	// or NoneObjectLocalID if this peer has no local controller (a
	// snapshot-only client, or the server itself).
	ControllerLocal ids.ObjectLocalID
}

func (s *RegistryScope) RealtimeSyncEnabled(netID ids.ObjectNetID) bool {
	obj := s.Reg.ByNetID(netID)
	return obj != nil && obj.RealtimeSyncEnabledOnClient
}

func (s *RegistryScope) ControlledByPeer(netID ids.ObjectNetID) ids.PeerID {
	obj := s.Reg.ByNetID(netID)
	if obj == nil {
		return ids.NoPeer
	}
	return obj.OwnerPeer
}

func (s *RegistryScope) SkipRewinding(netID ids.ObjectNetID, varID ids.VarID) bool {
	obj := s.Reg.ByNetID(netID)
	if obj == nil || int(varID) >= len(obj.Variables) {
		return false
	}
	return obj.Variables[varID].SkipRewinding
}

func (s *RegistryScope) VarName(netID ids.ObjectNetID, varID ids.VarID) string {
	obj := s.Reg.ByNetID(netID)
	if obj == nil || int(varID) >= len(obj.Variables) {
		return ""
	}
	return obj.Variables[varID].Name
}

func (s *RegistryScope) LocalByNetID(netID ids.ObjectNetID) (ids.ObjectLocalID, bool) {
	obj := s.Reg.ByNetID(netID)
	if obj == nil {
		return ids.NoneObjectLocalID, false
	}
	return obj.LocalID, true
}

func (s *RegistryScope) NetIDByLocal(localID ids.ObjectLocalID) (ids.ObjectNetID, bool) {
	obj := s.Reg.Get(localID)
	if obj == nil || obj.NetID == ids.NoneObjectNetID {
		return ids.NoneObjectNetID, false
	}
	return obj.NetID, true
}

func (s *RegistryScope) RewindDependencies(localID ids.ObjectLocalID) []ids.ObjectLocalID {
	obj := s.Reg.Get(localID)
	if obj == nil {
		return nil
	}
	return obj.RewindDependencies
}

func (s *RegistryScope) ControllerLocalID() (ids.ObjectLocalID, bool) {
	if s.ControllerLocal == ids.NoneObjectLocalID {
		return ids.NoneObjectLocalID, false
	}
	if s.Reg.Get(s.ControllerLocal) == nil {
		return ids.NoneObjectLocalID, false
	}
	return s.ControllerLocal, true
}

// ControlledObjects returns every object owned by the same peer as
// controllerLocalID (the spec's "objects it directly controls").
func (s *RegistryScope) ControlledObjects(controllerLocalID ids.ObjectLocalID) []ids.ObjectLocalID {
	owner := s.Reg.Get(controllerLocalID)
	if owner == nil || owner.OwnerPeer == ids.NoPeer {
		return nil
	}
	var out []ids.ObjectLocalID
	for _, localID := range s.Reg.AllObjects() {
		if localID == controllerLocalID {
			continue
		}
		obj := s.Reg.Get(localID)
		if obj != nil && obj.OwnerPeer == owner.OwnerPeer {
			out = append(out, localID)
		}
	}
	return out
}

func (s *RegistryScope) AllLocalIDs() []ids.ObjectLocalID { return s.Reg.AllObjects() }

var _ ObjectLookup = (*RegistryScope)(nil)
var _ RewindScope = (*RegistryScope)(nil)
