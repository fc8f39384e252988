package scenesync

import (
	"fmt"

	"github.com/GameNetworking/NetworkSynchronizer-sub000/databuffer"
	"github.com/GameNetworking/NetworkSynchronizer-sub000/ids"
	"github.com/GameNetworking/NetworkSynchronizer-sub000/snapshot"
	"github.com/GameNetworking/NetworkSynchronizer-sub000/syncgroup"
)

// Channel identifies one of the transport's two delivery guarantees (spec
// §6 "Transport interface").
type Channel uint8

const (
	ChannelReliable Channel = iota
	ChannelUnreliable
)

// Message names the callable wire RPCs of spec §6's table. Names are
// contracts: a transport implementation routes by this string (or an
// equivalent numeric mapping it owns).
type Message string

const (
	MsgServerSendInputs        Message = "server_send_inputs"
	MsgSetServerControlled     Message = "set_server_controlled"
	MsgNotifyFpsAcceleration   Message = "notify_fps_acceleration"
	MsgState                   Message = "state"
	MsgNotifyNeedFullSnapshot  Message = "notify_need_full_snapshot"
	MsgSetNetworkEnabled       Message = "set_network_enabled"
	MsgNotifyPeerStatus        Message = "notify_peer_status"
	MsgTrickledSyncData        Message = "trickled_sync_data"
	// MsgActivatePeer is sent server->client when AddPeer binds a
	// controller to a newly connected peer, carrying the sender's
	// ProtocolVersion so the receiver can reject a mixed-version peer
	// before trusting anything else on the wire (spec §9's "peer
	// activation" ordering note).
	MsgActivatePeer Message = "activate_peer"
)

// channelOf returns the channel spec §6's table assigns to msg.
func channelOf(msg Message) Channel {
	switch msg {
	case MsgServerSendInputs, MsgNotifyFpsAcceleration, MsgTrickledSyncData:
		return ChannelUnreliable
	default:
		return ChannelReliable
	}
}

// EncodeBool writes the single-bit payload shared by set_server_controlled,
// set_network_enabled and notify_peer_status.
func EncodeBool(v bool) *databuffer.Buffer {
	buf := databuffer.New()
	buf.AddBool(v)
	return buf
}

// DecodeBool reads a payload written by EncodeBool.
func DecodeBool(buf *databuffer.Buffer) bool {
	buf.Seek(0)
	return buf.ReadBool()
}

// speedQuantizationBits is the 8-bit width spec §6 assigns to
// notify_fps_acceleration's payload.
const speedQuantizationBits = 8

// EncodeNotifyFpsAcceleration quantizes speed (a signed correction in
// [-max, max]) to an unsigned byte, inverted by DequantizeSpeed on the
// client — the same mapping controller.ServerController uses internally,
// kept in sync here since that quantizer is private to the controller
// package (it owns the correction loop, not the wire framing).
func EncodeNotifyFpsAcceleration(speed, max float64) *databuffer.Buffer {
	buf := databuffer.New()
	buf.AddUint(uint64(quantizeSpeed(speed, max)), databuffer.CompressionLevel3)
	return buf
}

// DecodeNotifyFpsAcceleration inverts EncodeNotifyFpsAcceleration.
func DecodeNotifyFpsAcceleration(buf *databuffer.Buffer, max float64) float64 {
	buf.Seek(0)
	q := uint8(buf.ReadUint(databuffer.CompressionLevel3))
	return dequantizeSpeed(q, max)
}

func quantizeSpeed(speed, max float64) uint8 {
	if max <= 0 {
		return 128
	}
	t := speed + max
	if t < 0 {
		t = 0
	}
	if denom := 2 * max; t > denom {
		t = denom
	}
	return uint8((t / (2 * max)) * 255)
}

func dequantizeSpeed(q uint8, max float64) float64 {
	t := float64(q) / 255
	return t*2*max - max
}

// EncodeActivatePeer writes the protocol-version handshake payload of
// MsgActivatePeer.
func EncodeActivatePeer(version string) *databuffer.Buffer {
	buf := databuffer.New()
	buf.AddVariant(databuffer.Variant{Tag: databuffer.VariantString, Str: version})
	return buf
}

// DecodeActivatePeer inverts EncodeActivatePeer.
func DecodeActivatePeer(buf *databuffer.Buffer) string {
	buf.Seek(0)
	return buf.ReadVariant(databuffer.CompressionLevel1).Str
}

// EncodeTrickledSyncData writes one tick's trickled emission as a list of
// `[epoch; real next_sync; trickled payload]` entries, each preceded by a
// true bit and the list ended by a false bit. The epoch takes a full
// 64-bit field (CompressionLevel0), not 32 bits.
func EncodeTrickledSyncData(epoch uint32, nextSync float64, updates []syncgroup.TrickledUpdate) *databuffer.Buffer {
	buf := databuffer.New()
	for _, u := range updates {
		buf.AddBool(true)
		buf.AddUint(uint64(epoch), databuffer.CompressionLevel0)
		buf.AddReal(nextSync, databuffer.CompressionLevel1)
		for _, b := range u.Payload {
			buf.AddUint(uint64(b), databuffer.CompressionLevel3)
		}
	}
	buf.AddBool(false)
	return buf
}

// TrickledFrame is one decoded entry from a trickled_sync_data payload.
type TrickledFrame struct {
	Epoch    uint32
	NextSync float64
	Payload  []byte
}

// DecodeTrickledSyncData parses a payload written by
// EncodeTrickledSyncData. payloadLen is the fixed per-entry byte count the
// host's trickled_collect contract produces (the wire form carries no
// implicit framing, matching DecodeInputPacket's contract in the
// controller package).
func DecodeTrickledSyncData(buf *databuffer.Buffer, payloadLen int) []TrickledFrame {
	buf.Seek(0)
	var out []TrickledFrame
	for buf.ReadBool() {
		f := TrickledFrame{}
		f.Epoch = uint32(buf.ReadUint(databuffer.CompressionLevel0))
		f.NextSync = buf.ReadReal(databuffer.CompressionLevel1)
		f.Payload = make([]byte, payloadLen)
		for i := 0; i < payloadLen; i++ {
			f.Payload[i] = byte(buf.ReadUint(databuffer.CompressionLevel3))
		}
		out = append(out, f)
	}
	return out
}

// Transport is the capability set spec §6 requires of the host's network
// layer. The core never assumes delivery order or fragmentation on
// ChannelUnreliable.
type Transport interface {
	Send(peer ids.PeerID, channel Channel, msg Message, payload *databuffer.Buffer)
	Broadcast(channel Channel, msg Message, payload *databuffer.Buffer)
	ConnectedPeers() []ids.PeerID
	LocalPeerID() ids.PeerID
	IsServer() bool
}

// EncodeState writes a `state` message payload: an EncodeDelta snapshot
// followed by an optional piggy-backed latency byte (spec §4.F step 9,
// "the server may piggy-back its latency estimate for that peer onto any
// outgoing snapshot rather than reserving a separate message"). Kept as a
// wrapper around snapshot.EncodeDelta rather than a change to that
// function's signature, so non-networking callers (tests, replay) are
// unaffected.
func EncodeState(snap *snapshot.Snapshot, changes map[ids.ObjectNetID]*snapshot.ObjectChangeSet, forceFull bool, confirmInputID ids.FrameIndex, hasConfirm bool, latencyMs uint8, hasLatency bool) *databuffer.Buffer {
	buf := databuffer.New()
	snapshot.EncodeDelta(buf, snap, changes, forceFull, confirmInputID, hasConfirm)
	buf.AddBool(hasLatency)
	if hasLatency {
		buf.AddUint(uint64(latencyMs), databuffer.CompressionLevel3)
	}
	return buf
}

// DecodeState inverts EncodeState, returning the piggy-backed latency (and
// whether one was present) alongside decoding into snap.
func DecodeState(buf *databuffer.Buffer, snap *snapshot.Snapshot, resolver snapshot.VarNameResolver) (latencyMs uint8, hasLatency bool, err error) {
	if err := snapshot.DecodeDelta(buf, snap, resolver); err != nil {
		return 0, false, fmt.Errorf("scenesync: decoding state: %w", err)
	}
	hasLatency = buf.ReadBool()
	if hasLatency {
		latencyMs = uint8(buf.ReadUint(databuffer.CompressionLevel3))
	}
	return latencyMs, hasLatency, nil
}

// send routes msg through t on the channel spec §6's table assigns it.
func send(t Transport, peer ids.PeerID, msg Message, payload *databuffer.Buffer) {
	t.Send(peer, channelOf(msg), msg, payload)
}

func broadcast(t Transport, msg Message, payload *databuffer.Buffer) {
	t.Broadcast(channelOf(msg), msg, payload)
}
