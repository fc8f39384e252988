package controller

import "time"

// Config groups every tunable named in spec §6's "Controller" and "Doll"
// configuration groups. Zero-value Config is not meaningful; use
// DefaultConfig.
type Config struct {
	ServerControlled bool

	PlayerInputStorageSize int
	MaxRedundantInputs      int

	TickSpeedupNotificationDelay time.Duration
	NetworkTracedFrames          int
	MinFramesDelay               float64
	MaxFramesDelay               float64
	NetSensitivity               time.Duration
	TickAcceleration             float64

	DollSyncRate                  float64
	DollMinFramesDelay            float64
	DollMaxFramesDelay            float64
	DollNetSensitivity            time.Duration
	DollInterpolationMaxOvershoot float64
	DollConnectionStatsFrameSpan  int

	// MaxAdditionalTickSpeed bounds the symmetric clamp applied to
	// client_tick_additional_speed (spec §4.C.1).
	MaxAdditionalTickSpeed float64

	// IterationsPerSec is the player controller's nominal tick rate used
	// to derive pretended_delta (spec §4.C.2).
	IterationsPerSec float64
}

// DefaultConfig matches the orders of magnitude the source uses: frequent
// ticking, a handful of frames of jitter buffer, and gentle tick-rate
// correction.
func DefaultConfig() Config {
	return Config{
		ServerControlled:             false,
		PlayerInputStorageSize:       300,
		MaxRedundantInputs:           5,
		TickSpeedupNotificationDelay: 100 * time.Millisecond,
		NetworkTracedFrames:          15,
		MinFramesDelay:               2,
		MaxFramesDelay:               8,
		NetSensitivity:               300 * time.Millisecond,
		TickAcceleration:             0.3,
		DollSyncRate:                 30,
		DollMinFramesDelay:           2,
		DollMaxFramesDelay:           8,
		DollNetSensitivity:           300 * time.Millisecond,
		DollInterpolationMaxOvershoot: 0.25,
		DollConnectionStatsFrameSpan:  30,
		MaxAdditionalTickSpeed:        0.2,
		IterationsPerSec:              60,
	}
}
