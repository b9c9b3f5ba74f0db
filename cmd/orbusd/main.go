package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/orbus.go/pkg/bridge/mqtt"
	"github.com/robotalks/orbus.go/pkg/config"
	fx "github.com/robotalks/orbus.go/pkg/framework"
	"github.com/robotalks/orbus.go/pkg/orbus"
	"github.com/robotalks/orbus.go/pkg/orbus/system"
)

var (
	reconnectDelay = 2 * time.Second
	timeInterval   = 5 * time.Second
)

func init() {
	config.SetupFlags()
	flag.DurationVar(&reconnectDelay, "reconnect", reconnectDelay, "Delay before reopening the port.")
	flag.DurationVar(&timeInterval, "time-interval", timeInterval, "Interval of board load queries, 0 to disable.")
}

type notifiers []orbus.StateNotifier

func (n notifiers) StateChanged(ctx context.Context, state orbus.ConnState) {
	for _, notifier := range n {
		notifier.StateChanged(ctx, state)
	}
}

// keepOpen runs the controller and reopens it after failures.
func keepOpen(ctl *orbus.Controller) fx.Runnable {
	return fx.NamedRun("controller", fx.RunFunc(func(ctx context.Context) error {
		for {
			err := ctl.Run(ctx)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			glog.Errorf("connection %s: %v, reopen in %s", ctl.Port, err, reconnectDelay)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(reconnectDelay):
			}
		}
	}))
}

// pollTime queries board load periodically.
func pollTime(ctl *orbus.Controller, board *system.Board, timeout time.Duration) fx.Task {
	var last time.Time
	return fx.TaskFunc(func(ctx context.Context) error {
		if timeInterval <= 0 || ctl.State() != orbus.StateOpen || time.Since(last) < timeInterval {
			return nil
		}
		last = time.Now()
		_, err := board.RequestTime(ctl, timeout)
		return err
	})
}

func main() {
	flag.Parse()
	conf := config.MustResolve()
	ctl := conf.MustNewController()
	board := system.NewBoard()
	if err := ctl.Register(system.CategorySystem, board); err != nil {
		log.Fatalln(err)
	}

	loop := fx.NewLoop()
	if conf.FlushInterval.Duration > 0 {
		loop.Interval = conf.FlushInterval.Duration
	}
	var notify notifiers
	var bridge *mqtt.Bridge
	if conf.MQTT.URL != "" {
		var err error
		if bridge, err = mqtt.NewBridge(conf.MQTT.URL, conf.NodeID(), ctl); err != nil {
			log.Fatalln(err)
		}
		bridge.Categories = conf.CategoryBytes()
		bridge.FlushTimeout = conf.Timeout.Duration
		board.TimeReported = func(stats system.TimeStats) {
			if err := bridge.PublishJSON(mqtt.TopicTime, stats); err != nil {
				glog.Warningf("publish time: %v", err)
			}
		}
		notify = append(notify, bridge)
		loop.Add(bridge)
		glog.Infof("bridge %s as node %s", conf.MQTT.URL, bridge.Node)
	}
	notify = append(notify, orbus.StateChangedFunc(func(ctx context.Context, state orbus.ConnState) {
		if state != orbus.StateOpen {
			return
		}
		go func() {
			info, err := board.RequestInfo(ctl, conf.Timeout.Duration)
			if err != nil {
				glog.Warningf("board info: %v", err)
				return
			}
			glog.Infof("board %s (%s) version %s", info.BoardName, info.BoardType, info.Version)
			if bridge != nil {
				bridge.PublishJSON(mqtt.TopicInfo, info)
			}
		}()
	}))
	ctl.Notifier = notify

	loop.AddTask(fx.PrLvSense, pollTime(ctl, board, conf.Timeout.Duration))
	loop.AddRunnable(keepOpen(ctl))
	loop.RunOrFail()
}
