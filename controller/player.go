package controller

import (
	"math"

	"github.com/GameNetworking/NetworkSynchronizer-sub000/databuffer"
	"github.com/GameNetworking/NetworkSynchronizer-sub000/ids"
	"github.com/GameNetworking/NetworkSynchronizer-sub000/registry"
)

// PlayerController is the local-input controller driving client-side
// prediction (spec §4.C.2).
type PlayerController struct {
	cfg Config
	cb  registry.ControllerCallbacks

	frameCounter ids.FrameIndex
	fifo         *inputFIFO
	lastBuffer   *databuffer.Buffer

	bank                     float64
	tickAdditionalSpeed      float64
	lastConfirmedInput       ids.FrameIndex
	haveConfirmed            bool

	active bool
	peers  map[ids.PeerID]bool

	// OnFrame, when set, is invoked once per produced sub-tick with the
	// FrameIndex just pushed into the FIFO, letting a host capture a local
	// snapshot keyed to that same frame (spec §4.F client tick: "a
	// snapshot is captured for every frame a controller produces").
	OnFrame func(ids.FrameIndex)
}

// NewPlayerController constructs a PlayerController bound to the given
// host callback triple.
func NewPlayerController(cfg Config, cb registry.ControllerCallbacks) *PlayerController {
	return &PlayerController{
		cfg:   cfg,
		cb:    cb,
		fifo:  newInputFIFO(cfg.PlayerInputStorageSize),
		peers: make(map[ids.PeerID]bool),
	}
}

func (p *PlayerController) Variant() Variant { return VariantPlayer }

func (p *PlayerController) CurrentFrameIndex() (ids.FrameIndex, bool) {
	if p.frameCounter == 0 {
		return 0, false
	}
	return p.frameCounter - 1, true
}

func (p *PlayerController) Ready() bool { return p.active }
func (p *PlayerController) ClearPeers() { p.peers = make(map[ids.PeerID]bool) }
func (p *PlayerController) ActivatePeer(peer ids.PeerID) {
	p.peers[peer] = true
	p.active = true
}
func (p *PlayerController) DeactivatePeer(peer ids.PeerID) { delete(p.peers, peer) }

// SetTickAdditionalSpeed applies a server-sent notify_fps_acceleration
// correction (spec §4.C.1 tick-rate control loop, client side).
func (p *PlayerController) SetTickAdditionalSpeed(speed float64) {
	p.tickAdditionalSpeed = speed
}

// Process advances the player controller for wall-clock delta dt,
// potentially running multiple sub-ticks to catch the accumulated time
// bank up to the current effective tick rate (spec §4.C.2).
func (p *PlayerController) Process(dt float64) {
	p.bank += dt
	rate := p.cfg.IterationsPerSec + p.tickAdditionalSpeed
	if rate <= 0 {
		rate = p.cfg.IterationsPerSec
	}
	pretendedDelta := 1 / rate

	subTicks := int(math.Floor(p.bank / pretendedDelta))
	for i := 0; i < subTicks; i++ {
		p.tickOnce(pretendedDelta)
	}
	p.bank -= float64(subTicks) * pretendedDelta
}

func (p *PlayerController) tickOnce(dt float64) {
	buf := databuffer.New()
	hasData := p.cb.CollectInput != nil
	buf.AddBool(hasData) // metadata bit, per spec §4.C.2
	if hasData {
		p.cb.CollectInput(dt, buf)
	}
	if p.cb.Process != nil {
		p.cb.Process(dt, buf)
	}

	id := p.frameCounter
	p.frameCounter++

	fs := FrameSnapshot{FrameID: id, Buffer: buf, BitLength: buf.BitSize(), SimilarityWith: ids.NoneFrameIndex}
	if p.lastBuffer != nil && p.cb.AreInputsDifferent != nil && !p.cb.AreInputsDifferent(p.lastBuffer, buf) {
		if prev, ok := p.fifo.PeekLast(); ok {
			fs.SimilarityWith = prev.FrameID
		}
	}
	p.lastBuffer = buf
	p.fifo.Insert(fs)

	if p.OnFrame != nil {
		p.OnFrame(id)
	}
}

// BuildRedundantPacket encodes the outgoing `server_send_inputs` payload:
// the last up to max_redundant_inputs+1 inputs, run-length-coalescing
// consecutive inputs the host judges identical (spec §4.C.2).
func (p *PlayerController) BuildRedundantPacket() *databuffer.Buffer {
	out := databuffer.New()
	tail := p.fifo.Tail(p.cfg.MaxRedundantInputs + 1)
	if len(tail) == 0 {
		return out
	}
	out.AddUint(uint64(tail[0].FrameID), databuffer.CompressionLevel1)

	i := 0
	for i < len(tail) {
		dup := 0
		j := i + 1
		for j < len(tail) && tail[j].SimilarityWith == tail[j-1].FrameID {
			dup++
			j++
		}
		if dup > 255 {
			dup = 255
		}
		out.AddUint(uint64(dup), databuffer.CompressionLevel3)
		hasData := tail[i].Buffer != nil && tail[i].Buffer.BitSize() > 0
		out.AddBool(hasData)
		if hasData {
			b := tail[i].Buffer
			for k := uint64(0); k < b.BitSize(); k++ {
				b.Seek(k)
				out.AddBool(b.ReadBool())
			}
		}
		i = i + dup + 1
	}
	return out
}

// NotifyInputChecked drops FIFO entries up to and including checkedID,
// called after a no-rewind recovery confirms that frame (spec §4.D
// "notify_input_checked").
func (p *PlayerController) NotifyInputChecked(checkedID ids.FrameIndex) {
	p.lastConfirmedInput = checkedID
	p.haveConfirmed = true
	p.fifo.RemoveBefore(checkedID + 1)
}

// StoredInputAt returns the buffer recorded for frameID, if still held in
// the FIFO (used by the snapshot/recovery engine's replay path).
func (p *PlayerController) StoredInputAt(frameID ids.FrameIndex) (*databuffer.Buffer, bool) {
	fs, ok := p.fifo.Find(frameID)
	if !ok {
		return nil, false
	}
	return fs.Buffer, true
}

// LastStoredFrame returns the highest FrameID currently buffered.
func (p *PlayerController) LastStoredFrame() (ids.FrameIndex, bool) {
	if p.fifo.Len() == 0 {
		return 0, false
	}
	last := p.fifo.entries[p.fifo.Len()-1]
	return last.FrameID, true
}

var _ Controller = (*PlayerController)(nil)
