package controller

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/GameNetworking/NetworkSynchronizer-sub000/databuffer"
	"github.com/GameNetworking/NetworkSynchronizer-sub000/ids"
	"github.com/GameNetworking/NetworkSynchronizer-sub000/registry"
)

// ServerController is the server's authority over one remote peer's input
// stream (spec §4.C.1).
type ServerController struct {
	cfg Config

	owner ids.PeerID
	cb    registry.ControllerCallbacks

	currentInputID        ids.FrameIndex
	ghostInputCount        int
	lastSentStateInputID  ids.FrameIndex
	snapshots             *inputFIFO
	streamingPaused       bool
	clientTickAdditionalSpeed float64

	lastExecuted *databuffer.Buffer

	// tick-rate control loop state
	arrivals            *slidingWindow
	lastArrivalTime      time.Time
	haveLastArrival      bool
	prevSpeed            float64
	lastNotifySent       time.Time

	active bool

	peers map[ids.PeerID]bool
}

// NewServerController constructs a ServerController for the peer that
// owns this controller's object, with the given host callback triple.
func NewServerController(cfg Config, owner ids.PeerID, cb registry.ControllerCallbacks) *ServerController {
	return &ServerController{
		cfg:            cfg,
		owner:          owner,
		cb:             cb,
		currentInputID: ids.NoneFrameIndex,
		snapshots:      newInputFIFO(cfg.PlayerInputStorageSize),
		arrivals:       newSlidingWindow(cfg.NetworkTracedFrames),
		peers:          make(map[ids.PeerID]bool),
	}
}

func (s *ServerController) Variant() Variant { return VariantServer }

func (s *ServerController) CurrentFrameIndex() (ids.FrameIndex, bool) {
	if s.currentInputID == ids.NoneFrameIndex {
		return 0, false
	}
	return s.currentInputID, true
}

func (s *ServerController) Ready() bool { return s.active }

func (s *ServerController) ClearPeers() { s.peers = make(map[ids.PeerID]bool) }

func (s *ServerController) ActivatePeer(peer ids.PeerID) {
	s.peers[peer] = true
	if peer == s.owner {
		s.active = true
	}
}

func (s *ServerController) DeactivatePeer(peer ids.PeerID) {
	delete(s.peers, peer)
	if peer == s.owner {
		s.active = false
	}
}

// inputRecord is one decoded record from an inbound input packet (spec
// §4.C.1 "Input packet layout").
type inputRecord struct {
	duplicationCount uint8
	hasData          bool
	payload          *databuffer.Buffer
	bitLength        uint64
}

// DecodeInputPacket parses an inbound `server_send_inputs` payload
// (spec §6 wire table): `[first_input_id:u32] [record...]` where each
// record is `[duplication_count:u8][has_data:1 bit][payload bits]`.
// payloadBits is the fixed width of one input's encoded payload — the
// caller (which owns the host's collect_input contract) must supply it
// since DataBuffer records no implicit framing.
func DecodeInputPacket(raw *databuffer.Buffer, payloadBits uint64) (firstID ids.FrameIndex, records []inputRecord, err error) {
	raw.Seek(0)
	firstID = ids.FrameIndex(raw.ReadUint(databuffer.CompressionLevel1))
	for !raw.Overrun() && raw.Tell() < raw.BitSize() {
		dup := uint8(raw.ReadUint(databuffer.CompressionLevel3))
		hasData := raw.ReadBool()
		var payload *databuffer.Buffer
		if hasData {
			bytes := make([]byte, (payloadBits+7)/8)
			for i := uint64(0); i < payloadBits; i++ {
				if raw.ReadBool() {
					bytes[i/8] |= 1 << (i % 8)
				}
			}
			payload = databuffer.NewFromBytes(bytes, payloadBits)
		}
		if raw.Overrun() {
			return 0, nil, fmt.Errorf("controller: malformed input packet: truncated record")
		}
		records = append(records, inputRecord{duplicationCount: dup, hasData: hasData, payload: payload, bitLength: payloadBits})
	}
	return firstID, records, nil
}

// IngestInputPacket decodes and merges an inbound redundant input packet
// into the FIFO, expanding duplication-count runs and discarding ids
// already seen or older than currentInputID (spec §4.C.1).
func (s *ServerController) IngestInputPacket(raw *databuffer.Buffer, payloadBits uint64) error {
	firstID, records, err := DecodeInputPacket(raw, payloadBits)
	if err != nil {
		return err
	}
	id := firstID
	now := time.Now()
	for _, rec := range records {
		count := uint32(rec.duplicationCount) + 1
		for k := uint32(0); k < count; k++ {
			frameID := id
			id++
			if frameID <= s.currentInputID && s.currentInputID != ids.NoneFrameIndex {
				continue
			}
			fs := FrameSnapshot{FrameID: frameID, Buffer: rec.payload, BitLength: rec.bitLength, SimilarityWith: ids.NoneFrameIndex, ReceivedAt: now}
			s.snapshots.Insert(fs)
		}
	}
	if s.haveLastArrival {
		s.arrivals.add(now.Sub(s.lastArrivalTime).Seconds())
	}
	s.lastArrivalTime = now
	s.haveLastArrival = true

	if len(records) == 1 && !records[0].hasData {
		s.streamingPaused = true
		log.Debugf("controller: peer %d sent empty input, pausing stream", s.owner)
	} else if s.streamingPaused {
		s.streamingPaused = false
	}
	return nil
}

// Process advances exactly one tick (spec §4.C.1 tick algorithm).
func (s *ServerController) Process(dt float64) {
	target := s.currentInputID + 1
	if s.currentInputID == ids.NoneFrameIndex {
		target = 0
	}

	fs, ok := s.fetchNextInput(target)
	if !ok {
		log.Debugf("controller: peer %d has no input for frame %d, tick skipped", s.owner, target)
		s.runTickRateControl(dt)
		return
	}

	s.currentInputID = fs.FrameID
	if s.cb.Process != nil && fs.Buffer != nil {
		s.cb.Process(dt, fs.Buffer)
	}
	s.lastExecuted = fs.Buffer
	s.runTickRateControl(dt)
}

func (s *ServerController) fetchNextInput(target ids.FrameIndex) (FrameSnapshot, bool) {
	if fs, ok := s.snapshots.PeekFront(); ok && fs.FrameID == target {
		s.snapshots.PopFront()
		s.ghostInputCount = 0
		return fs, true
	}

	if s.streamingPaused {
		return FrameSnapshot{FrameID: target, Buffer: nil, SimilarityWith: ids.NoneFrameIndex}, true
	}

	s.ghostInputCount++
	for i := 0; i < s.ghostInputCount; i++ {
		fs, ok := s.snapshots.At(i)
		if !ok {
			break
		}
		if s.cb.AreInputsDifferent == nil || s.lastExecuted == nil || s.cb.AreInputsDifferent(s.lastExecuted, fs.Buffer) {
			s.snapshots.RemoveFront(i + 1)
			return fs, true
		}
	}
	return FrameSnapshot{}, false
}

func (s *ServerController) runTickRateControl(dt float64) {
	if !s.haveLastArrival {
		return
	}
	netSensitivity := s.cfg.NetSensitivity.Seconds()
	if netSensitivity <= 0 {
		netSensitivity = 1
	}
	netPoorness := clamp(s.arrivals.stddev()/netSensitivity, 0, 1)
	optimalDelay := lerp(s.cfg.MinFramesDelay, s.cfg.MaxFramesDelay, netPoorness)
	distance := optimalDelay - float64(s.snapshots.Len())

	s.clientTickAdditionalSpeed += distance*s.cfg.TickAcceleration*dt - 0.95*s.prevSpeed
	s.clientTickAdditionalSpeed = clamp(s.clientTickAdditionalSpeed, -s.cfg.MaxAdditionalTickSpeed, s.cfg.MaxAdditionalTickSpeed)
	s.prevSpeed = s.clientTickAdditionalSpeed

	if time.Since(s.lastNotifySent) >= s.cfg.TickSpeedupNotificationDelay {
		s.lastNotifySent = time.Now()
		// quantized to the wire's 8-bit notify_fps_acceleration payload
		_ = quantizeSpeed(s.clientTickAdditionalSpeed, s.cfg.MaxAdditionalTickSpeed)
	}
}

// quantizeSpeed maps a signed speed delta in [-max, max] onto an unsigned
// 8-bit value for the notify_fps_acceleration wire message (spec §6).
func quantizeSpeed(speed, max float64) uint8 {
	if max <= 0 {
		return 128
	}
	t := clamp((speed+max)/(2*max), 0, 1)
	return uint8(t * 255)
}

// DequantizeSpeed inverts quantizeSpeed on the client.
func DequantizeSpeed(q uint8, max float64) float64 {
	t := float64(q) / 255
	return t*2*max - max
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func lerp(a, b, t float64) float64 { return a + (b-a)*t }

// ClientTickAdditionalSpeed exposes the current tick-rate correction value
// for the orchestrator to piggy-back in the next snapshot/notify message.
func (s *ServerController) ClientTickAdditionalSpeed() float64 { return s.clientTickAdditionalSpeed }

// StreamingPaused reports whether the server is currently treating this
// peer's stream as paused (spec §5 "Stream pause").
func (s *ServerController) StreamingPaused() bool { return s.streamingPaused }

// GhostInputCount exposes the current ghost-forwarding counter.
func (s *ServerController) GhostInputCount() int { return s.ghostInputCount }

// PendingInputCount reports how many inputs are currently buffered ahead
// of currentInputID.
func (s *ServerController) PendingInputCount() int { return s.snapshots.Len() }

var _ Controller = (*ServerController)(nil)
