package scenesync

import "github.com/GameNetworking/NetworkSynchronizer-sub000/eventbus"

// Signals groups the side-band notifications of spec §7: events a host
// can listen to without wiring a variable/controller callback. Each is an
// eventbus.Event so multiple listeners can observe the same occurrence in
// insertion order (spec §4.H).
type Signals struct {
	// SyncStarted fires once a peer's controller becomes Ready.
	SyncStarted *eventbus.Event
	// SyncPaused fires when a ServerController's stream pauses (empty
	// input received).
	SyncPaused *eventbus.Event
	// StateValidated fires after a reconciliation pass finds no mismatch.
	StateValidated *eventbus.Event
	// RewindFrameBegin fires once per replayed tick during a rewind.
	RewindFrameBegin *eventbus.Event
	// DesyncDetected fires whenever Reconcile finds any mismatch, rewound
	// or not.
	DesyncDetected *eventbus.Event
	// ProtocolMismatch fires on the client when an activate_peer handshake
	// carries a remote ProtocolVersion whose major version doesn't match
	// ours (spec §9 peer-activation ordering note).
	ProtocolMismatch *eventbus.Event
}

// NewSignals returns a Signals with every event ready to bind listeners to.
func NewSignals() *Signals {
	return &Signals{
		SyncStarted:      &eventbus.Event{},
		SyncPaused:       &eventbus.Event{},
		StateValidated:   &eventbus.Event{},
		RewindFrameBegin: &eventbus.Event{},
		DesyncDetected:   &eventbus.Event{},
		ProtocolMismatch: &eventbus.Event{},
	}
}
