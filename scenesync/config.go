package scenesync

import (
	"os"
	"time"

	yaml "gopkg.in/yaml.v2"

	"github.com/GameNetworking/NetworkSynchronizer-sub000/controller"
)

// SnapshotConfig groups the "Snapshot" configuration surface of spec §6.
type SnapshotConfig struct {
	ServerNotifyStateInterval time.Duration `yaml:"server_notify_state_interval"`
	ComparisonFloatTolerance  float64       `yaml:"comparison_float_tolerance"`
}

// TrickledConfig groups the "Trickled" configuration surface of spec §6.
type TrickledConfig struct {
	MaxTrickledObjectsPerUpdate     int           `yaml:"max_trickled_objects_per_update"`
	NodesRelevancyUpdateTime        time.Duration `yaml:"nodes_relevancy_update_time"`
	MaxObjectsCountPerPartialUpdate int           `yaml:"max_objects_count_per_partial_update"`
}

// Config aggregates every subsystem's tunables into one loadable document,
// the way sptp/client.Config groups MeasurementConfig alongside its own
// top-level fields.
type Config struct {
	Controller controller.Config `yaml:"controller"`
	Snapshot   SnapshotConfig    `yaml:"snapshot"`
	Trickled   TrickledConfig    `yaml:"trickled"`

	// LatencyUpdateViaSnapshotSec is how often (seconds) the server
	// piggy-backs a quantized latency reading onto a peer's snapshot
	// (spec §4.F step 9).
	LatencyUpdateViaSnapshotSec float64 `yaml:"latency_update_via_snapshot_sec"`
}

// DefaultConfig mirrors controller.DefaultConfig's orders of magnitude for
// the subsystems this package owns.
func DefaultConfig() Config {
	return Config{
		Controller: controller.DefaultConfig(),
		Snapshot: SnapshotConfig{
			ServerNotifyStateInterval: 100 * time.Millisecond,
			ComparisonFloatTolerance:  0.001,
		},
		Trickled: TrickledConfig{
			MaxTrickledObjectsPerUpdate:     10,
			NodesRelevancyUpdateTime:        1 * time.Second,
			MaxObjectsCountPerPartialUpdate: 0, // 0 = unbounded
		},
		LatencyUpdateViaSnapshotSec: 1,
	}
}

// ReadConfig loads a Config from a YAML file, seeded with DefaultConfig so
// an omitted section keeps its default.
func ReadConfig(path string) (*Config, error) {
	c := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
