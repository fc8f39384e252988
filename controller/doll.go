package controller

import (
	"math"
	"time"

	"github.com/GameNetworking/NetworkSynchronizer-sub000/databuffer"
	"github.com/GameNetworking/NetworkSynchronizer-sub000/ids"
	"github.com/GameNetworking/NetworkSynchronizer-sub000/registry"
)

// DollController renders a remote peer's controlled object locally,
// non-authoritatively, by interpolating between the two most recently
// received "epoch" frames (spec §4.C.3).
type DollController struct {
	cfg Config
	cb  registry.TrickledCallbacks

	pastEpochBuffer   *databuffer.Buffer
	futureEpochBuffer *databuffer.Buffer
	pastEpochID       uint32
	futureEpochID     uint32
	currentEpoch      float64

	alpha                  float64
	interpolationTimeWindow float64

	arrival          *slidingWindow
	lastReceivedAt   time.Time
	haveLastReceived bool

	pausedEpoch uint32
	havePaused  bool

	active bool
	peers  map[ids.PeerID]bool
}

// NewDollController constructs a DollController bound to the host's
// trickled collect/apply pair (epoch interpolation reuses the trickled
// callback shape per spec §4.C.3 / §4.E).
func NewDollController(cfg Config, cb registry.TrickledCallbacks) *DollController {
	return &DollController{
		cfg:   cfg,
		cb:    cb,
		arrival: newSlidingWindow(cfg.DollConnectionStatsFrameSpan),
		peers: make(map[ids.PeerID]bool),
	}
}

func (d *DollController) Variant() Variant { return VariantDoll }

func (d *DollController) CurrentFrameIndex() (ids.FrameIndex, bool) {
	return ids.FrameIndex(d.futureEpochID), d.futureEpochID != 0
}

func (d *DollController) Ready() bool { return d.active }
func (d *DollController) ClearPeers() { d.peers = make(map[ids.PeerID]bool) }
func (d *DollController) ActivatePeer(peer ids.PeerID) {
	d.peers[peer] = true
	d.active = true
}
func (d *DollController) DeactivatePeer(peer ids.PeerID) { delete(d.peers, peer) }

// PauseAt discards any epoch <= epoch until a newer one arrives (spec
// §4.C.3 "Pause on request").
func (d *DollController) PauseAt(epoch uint32) {
	d.pausedEpoch = epoch
	d.havePaused = true
}

// ReceiveEpoch ingests a server "epoch" frame:
// [next_sync_time:real][epoch:u32][collected-data] (spec §6 wire table
// `trickled_sync_data`, §4.C.3 receive path).
func (d *DollController) ReceiveEpoch(epoch uint32, data *databuffer.Buffer) {
	if d.havePaused && epoch <= d.pausedEpoch {
		return
	}
	now := time.Now()
	if d.haveLastReceived {
		d.arrival.add(now.Sub(d.lastReceivedAt).Seconds())
	}
	d.lastReceivedAt = now
	d.haveLastReceived = true

	d.pastEpochBuffer = d.futureEpochBuffer
	d.pastEpochID = d.futureEpochID
	d.futureEpochBuffer = data
	d.futureEpochID = epoch
	d.alpha = 0

	netSensitivity := d.cfg.DollNetSensitivity.Seconds()
	if netSensitivity <= 0 {
		netSensitivity = 1
	}
	netPoorness := clamp(d.arrival.stddev()/netSensitivity, 0, 1)
	virtualDelay := lerp(d.cfg.DollMinFramesDelay, d.cfg.DollMaxFramesDelay, netPoorness)
	d.interpolationTimeWindow = virtualDelay / d.cfg.DollSyncRate
	if d.interpolationTimeWindow <= 0 {
		d.interpolationTimeWindow = 1.0 / d.cfg.DollSyncRate
	}
}

// Process advances interpolation alpha and invokes the host's apply_epoch
// callback (spec §4.C.3 "Each tick").
func (d *DollController) Process(dt float64) {
	if d.futureEpochBuffer == nil {
		return
	}
	if d.interpolationTimeWindow <= 0 {
		d.interpolationTimeWindow = 1.0 / d.cfg.DollSyncRate
	}
	d.alpha += dt / d.interpolationTimeWindow
	maxAlpha := 1 + d.cfg.DollInterpolationMaxOvershoot
	if d.alpha > maxAlpha {
		d.alpha = maxAlpha
	}
	if d.cb.Apply != nil {
		d.cb.Apply(dt, d.alpha, d.pastEpochBuffer, d.futureEpochBuffer)
	}
	d.currentEpoch = math.Round(lerp(float64(d.pastEpochID), float64(d.futureEpochID), clamp(d.alpha, 0, 1)))
}

// CurrentEpoch returns the rounded interpolated epoch id, per spec
// §4.C.3's "current_epoch = round(lerp(past, future, alpha))".
func (d *DollController) CurrentEpoch() uint32 { return uint32(d.currentEpoch) }

var _ Controller = (*DollController)(nil)
