package cmd

import (
	"fmt"

	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/GameNetworking/NetworkSynchronizer-sub000/controller"
	"github.com/GameNetworking/NetworkSynchronizer-sub000/databuffer"
	"github.com/GameNetworking/NetworkSynchronizer-sub000/ids"
	"github.com/GameNetworking/NetworkSynchronizer-sub000/registry"
	"github.com/GameNetworking/NetworkSynchronizer-sub000/scenesync"
	"github.com/GameNetworking/NetworkSynchronizer-sub000/scenesync/metrics"
)

var runTicksFlag int
var runHzFlag float64
var runMetricsPortFlag int

func init() {
	runCmd.Flags().IntVar(&runTicksFlag, "ticks", 60, "number of ticks to run")
	runCmd.Flags().Float64Var(&runHzFlag, "hz", 60, "simulated tick rate")
	runCmd.Flags().IntVar(&runMetricsPortFlag, "metrics-port", 0, "serve Prometheus metrics on this port (0 disables)")
	RootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a single standalone object through an Engine with no transport",
	Run: func(cmd *cobra.Command, args []string) {
		ConfigureVerbosity()
		runDemo()
	},
}

// counter is the whole host-application object: a single integer variable
// replicated and advanced once per tick, standing in for any real
// application object the engine would otherwise be driving.
type counter struct {
	value int64
}

func runDemo() {
	cfg := scenesync.DefaultConfig()
	engine := scenesync.NewEngine(cfg, nil, true, ids.NoPeer)

	if runMetricsPortFlag != 0 {
		sink := metrics.New()
		engine.Metrics = sink
		go func() {
			if err := sink.ListenAndServe(runMetricsPortFlag); err != nil {
				log.Errorf("scenesync-demo: metrics server: %v", err)
			}
		}()
	}

	c := &counter{}
	handle := ids.ObjectHandle(1)
	localID := engine.AddObject(handle, "demo/counter", ids.GlobalSyncGroup)

	get := func(ids.ObjectHandle) databuffer.Variant {
		return databuffer.Variant{Tag: databuffer.VariantInt, Int: c.value}
	}
	set := func(h ids.ObjectHandle, v databuffer.Variant) error {
		if v.Tag != databuffer.VariantInt {
			return fmt.Errorf("demo: counter value wasn't an int")
		}
		c.value = v.Int
		return nil
	}
	if _, err := engine.RegisterVariable(localID, "value", databuffer.Variant{Tag: databuffer.VariantInt}, get, set, false); err != nil {
		log.Fatalf("scenesync-demo: RegisterVariable: %v", err)
	}

	cb := registry.ControllerCallbacks{
		Process: func(dt float64, buf *databuffer.Buffer) {
			c.value++
		},
	}
	engine.SetControllerCallbacks(localID, cb)
	engine.AddStandalone(localID, controller.NewNoNetController(cb))

	dt := 1.0 / runHzFlag
	ok := color.GreenString("[ OK ]")
	for i := 0; i < runTicksFlag; i++ {
		engine.Tick(dt)
		log.Infof("%s tick %d value=%d", ok, i, c.value)
	}
	log.Infof("ran %d ticks at %.0f Hz (%.2fs simulated)", runTicksFlag, runHzFlag, float64(runTicksFlag)*dt)
}
