// Package ids defines the identifier domain shared across the scene
// synchronizer (spec §3): monotonically increasing frame counters, and the
// various id types used to address sync groups, objects, variables,
// scheduled procedures and peers. Every id type reserves its maximum value
// as the NONE sentinel.
package ids

// GlobalFrameIndex is the wall-tick counter, incremented once per scheduler
// tick regardless of which peer is being served.
type GlobalFrameIndex uint32

// FrameIndex is a per-controller input tick counter.
type FrameIndex uint32

// NoneFrameIndex is the sentinel meaning "no frame" / "not yet assigned".
const NoneFrameIndex FrameIndex = ^FrameIndex(0)

// NoneGlobalFrameIndex is the sentinel for GlobalFrameIndex.
const NoneGlobalFrameIndex GlobalFrameIndex = ^GlobalFrameIndex(0)

// SyncGroupID identifies a sync group. GlobalSyncGroup (0) is always
// implicitly valid and holds every peer by default.
type SyncGroupID uint32

// GlobalSyncGroup is the always-present, default sync group.
const GlobalSyncGroup SyncGroupID = 0

// ObjectNetID is assigned by the server and broadcast to clients once an
// object needs to be referenced over the wire.
type ObjectNetID uint16

// NoneObjectNetID means "not yet assigned a net id" (client awaiting
// server assignment, per spec §3 invariants).
const NoneObjectNetID ObjectNetID = ^ObjectNetID(0)

// ObjectLocalID is a per-process stable id assigned at registration time.
type ObjectLocalID uint32

// NoneObjectLocalID is the sentinel for an absent/unregistered object.
const NoneObjectLocalID ObjectLocalID = ^ObjectLocalID(0)

// ObjectHandle is an opaque, pointer-sized key into the host application.
// The core never dereferences it; it is only ever compared or passed back
// to host callbacks.
type ObjectHandle uintptr

// VarID is the ordinal of a variable inside one object's variable table.
// Its value equals the variable's index in that table for the object's
// entire lifetime (spec §3 invariant).
type VarID uint8

// NoneVarID is the sentinel for "no such variable".
const NoneVarID VarID = ^VarID(0)

// ScheduledProcedureID is the ordinal of a scheduled procedure inside one
// object.
type ScheduledProcedureID uint8

// NoneScheduledProcedureID is the sentinel for "no such procedure".
const NoneScheduledProcedureID ScheduledProcedureID = ^ScheduledProcedureID(0)

// SchemeID selects a variable serialization scheme.
type SchemeID uint8

// PeerID identifies a connected peer (network transport's notion of a
// connection). -1 conventionally means "server-only / unowned" per spec §3;
// PeerID is signed to represent that directly.
type PeerID int64

// NoPeer means "server-only / unowned", matching spec §3's "-1" convention.
const NoPeer PeerID = -1
