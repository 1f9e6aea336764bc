package main

//go-build: CGO_ENABLED=0

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/sdcard.go/pkg/env"
	fx "github.com/robotalks/sdcard.go/pkg/framework"
	"github.com/robotalks/sdcard.go/pkg/sd"
	"github.com/robotalks/sdcard.go/pkg/sd/sim"
	"github.com/robotalks/sdcard.go/pkg/slot"
)

var (
	retryInterval = slot.DefaultRetryInterval
	maxAttempts   = 5
	replug        time.Duration
)

func init() {
	env.SetupFlags()
	sd.SetupFlags()
	sim.SetupFlags()
	flag.DurationVar(&retryInterval, "retry-interval", retryInterval, "Delay between init attempts.")
	flag.IntVar(&maxAttempts, "max-attempts", maxAttempts, "Init attempts per insertion, 0 for unlimited.")
	flag.DurationVar(&replug, "sim-replug", replug, "Remove and insert the emulated card periodically.")
}

// replugger removes and inserts the card, exercising presence handling.
func replugger(host *sim.Host, interval time.Duration) fx.RunFunc {
	return func(ctx context.Context) error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		var card *sim.Card
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if card == nil {
					card = host.Remove()
				} else {
					host.Insert(card)
					card = nil
				}
			}
		}
	}
}

func main() {
	flag.Parse()
	defer glog.Flush()

	conf := env.NewConfig()
	reporters := conf.MustNewReporters()
	defer reporters.Close()

	host := sim.NewConfig().MustNewHost()
	monitor := slot.NewMonitor(conf.Slot, conf.SlotTopic(), sd.NewConfig().NewDriver(host), reporters.Publishers)
	monitor.RetryInterval = retryInterval
	monitor.MaxAttempts = maxAttempts

	loop := fx.NewLoop()
	monitor.AddToLoop(loop)

	runner := fx.NewRunner().HandleSignals()
	runner.Go(fx.NamedRun("monitor", loop))
	runner.Go(reporters.Runnables...)
	if replug > 0 {
		runner.Go(fx.NamedRun("replug", replugger(host, replug)))
	}
	if err := runner.Wait(); err != nil {
		log.Fatalln(err)
	}
}
