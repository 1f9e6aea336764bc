package slot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	fx "github.com/robotalks/sdcard.go/pkg/framework"
	"github.com/robotalks/sdcard.go/pkg/msgs"
	"github.com/robotalks/sdcard.go/pkg/report"
	"github.com/robotalks/sdcard.go/pkg/sd"
	"github.com/robotalks/sdcard.go/pkg/sd/sim"
)

type event struct {
	topic string
	msg   msgs.SerializableMessage
}

type testEnv struct {
	t       *testing.T
	host    *sim.Host
	monitor *Monitor
	events  chan event
	cancel  func()
	doneCh  chan error
}

func newTestEnv(t *testing.T, setup func(*sim.Host, *Monitor)) *testEnv {
	conf := sim.NewConfig()
	conf.ImagePath = ""
	conf.MemorySize = 1 << 20
	conf.BusyPolls = 1
	conf.CRCStripped = false
	host, err := conf.NewHost()
	require.NoError(t, err)

	sdConf := sd.NewConfig()
	sdConf.VoltageRetries = 10
	sdConf.StatusPollLimit = 10
	env := &testEnv{t: t, host: host, events: make(chan event, 64), doneCh: make(chan error, 1)}
	pub := report.PublisherFunc(func(topic string, msg msgs.SerializableMessage) error {
		env.events <- event{topic: topic, msg: msg}
		return nil
	})
	env.monitor = NewMonitor("slot0", "host1/slot0", sd.NewDriver(host, sdConf), pub)
	env.monitor.RetryInterval = 0
	if setup != nil {
		setup(host, env.monitor)
	}

	loop := fx.NewLoop()
	loop.Interval = 5 * time.Millisecond
	env.monitor.AddToLoop(loop)
	ctx, cancel := context.WithCancel(context.Background())
	env.cancel = cancel
	go func() { env.doneCh <- loop.Run(ctx) }()
	return env
}

func (e *testEnv) stop() {
	e.cancel()
	<-e.doneCh
}

func (e *testEnv) expect(topic string) msgs.SerializableMessage {
	select {
	case ev := <-e.events:
		require.Equal(e.t, topic, ev.topic)
		return ev.msg
	case <-time.After(2 * time.Second):
		e.t.Fatalf("timeout waiting for %s", topic)
	}
	return nil
}

func TestMonitorLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)
	defer env.stop()

	env.expect("host1/slot0/inserted")
	info := env.expect("host1/slot0/info").(*msgs.CardInfo)
	require.Equal(t, "slot0", info.Slot)
	require.Equal(t, uint64(1<<20), info.CapacityBytes)
	ready := env.expect("host1/slot0/ready").(*msgs.CardReady)
	require.Equal(t, info, ready.Info)
	require.Equal(t, info, env.monitor.Info())

	card := env.host.Remove()
	env.expect("host1/slot0/removed")
	require.Nil(t, env.monitor.Info())

	env.host.Insert(card)
	env.expect("host1/slot0/inserted")
	env.expect("host1/slot0/info")
	env.expect("host1/slot0/ready")
}

func TestMonitorInitFailures(t *testing.T) {
	errFault := errors.New("fault")
	var card *sim.Card
	env := newTestEnv(t, func(host *sim.Host, m *Monitor) {
		m.MaxAttempts = 2
		card = host.Card()
		card.FailOn(sd.CmdSendIfCond, errFault)
	})
	defer env.stop()

	env.expect("host1/slot0/inserted")
	for n := 1; n <= 2; n++ {
		failed := env.expect("host1/slot0/init-failed").(*msgs.InitFailed)
		require.Equal(t, uint32(n), failed.Attempt)
		require.Equal(t, "transport", failed.Kind)
	}
	select {
	case ev := <-env.events:
		t.Fatalf("unexpected event %s", ev.topic)
	case <-time.After(50 * time.Millisecond):
	}
	require.Nil(t, env.monitor.Info())

	// reinsertion starts over
	card.ClearFaults()
	env.host.Insert(env.host.Remove())
	env.expect("host1/slot0/removed")
	env.expect("host1/slot0/inserted")
	env.expect("host1/slot0/info")
	env.expect("host1/slot0/ready")
}
