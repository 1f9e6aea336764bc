// Package slot watches a card slot, initializing inserted cards
// and publishing card events.
package slot

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/sdcard.go/pkg/framework"
	"github.com/robotalks/sdcard.go/pkg/msgs"
	"github.com/robotalks/sdcard.go/pkg/report"
	"github.com/robotalks/sdcard.go/pkg/sd"
)

// DefaultRetryInterval is the default delay between init attempts.
const DefaultRetryInterval = time.Second

// Monitor owns the driver of a slot. Presence events arrive through
// the loop, so the driver is only used from the loop goroutine.
type Monitor struct {
	Name      string
	Topic     string
	Driver    *sd.Driver
	Publisher report.Publisher

	RetryInterval time.Duration
	// MaxAttempts limits init attempts per insertion, 0 is unlimited.
	MaxAttempts int

	presence sd.PresenceChan
	loop     fx.LoopControl

	started     bool
	pending     bool
	attempts    int
	lastAttempt time.Time

	lock sync.RWMutex
	info *msgs.CardInfo
}

// NewMonitor creates a Monitor and registers it as presence listener.
func NewMonitor(name, topic string, driver *sd.Driver, pub report.Publisher) *Monitor {
	m := &Monitor{
		Name:          name,
		Topic:         topic,
		Driver:        driver,
		Publisher:     pub,
		RetryInterval: DefaultRetryInterval,
		presence:      make(sd.PresenceChan, 8),
	}
	driver.AddPresenceListener(m.presence)
	return m
}

// AddToLoop adds the monitor to loop.
func (m *Monitor) AddToLoop(loop *fx.Loop) {
	m.loop = loop
	loop.AddController(m)
}

// Info returns the info of the ready card, nil if none.
func (m *Monitor) Info() *msgs.CardInfo {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.info
}

func (m *Monitor) setInfo(info *msgs.CardInfo) {
	m.lock.Lock()
	m.info = info
	m.lock.Unlock()
}

// Run implements Runnable, forwarding presence events to the loop.
func (m *Monitor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-m.presence:
			if m.loop != nil {
				m.loop.PostMessage(ev)
				m.loop.TriggerNext()
			}
		}
	}
}

// Control implements Controller.
func (m *Monitor) Control(ctx fx.ControlContext) error {
	if !m.started {
		m.started = true
		if err := m.Driver.InitTransport(); err != nil {
			return err
		}
		if m.Driver.IsCardInserted() {
			m.cardInserted(ctx.Time())
		}
	}
	for _, msg := range ctx.Messages() {
		if ev, ok := msg.(sd.PresenceEvent); ok {
			if ev.Inserted {
				m.cardInserted(ctx.Time())
			} else {
				m.cardRemoved(ctx.Time())
			}
		}
	}
	if m.shouldAttempt(ctx.Time()) {
		m.attempt(ctx)
	}
	return nil
}

func (m *Monitor) cardInserted(t time.Time) {
	glog.Infof("%s: card inserted", m.Name)
	m.pending, m.attempts = true, 0
	m.lastAttempt = time.Time{}
	m.publish(msgs.NewCardInserted(m.Name, t))
}

func (m *Monitor) cardRemoved(t time.Time) {
	glog.Infof("%s: card removed", m.Name)
	m.pending = false
	m.Driver.Eject()
	m.setInfo(nil)
	m.publish(msgs.NewCardRemoved(m.Name, t))
}

func (m *Monitor) shouldAttempt(now time.Time) bool {
	if !m.pending || !m.Driver.IsCardInserted() {
		return false
	}
	if m.MaxAttempts > 0 && m.attempts >= m.MaxAttempts {
		return false
	}
	return m.lastAttempt.IsZero() || now.Sub(m.lastAttempt) >= m.RetryInterval
}

func (m *Monitor) attempt(ctx fx.ControlContext) {
	m.attempts++
	m.lastAttempt = ctx.Time()
	err := m.Driver.InitCard(ctx.Context())
	if err != nil {
		glog.Errorf("%s: init attempt %d: %v", m.Name, m.attempts, err)
		m.publish(msgs.NewInitFailed(m.Name, m.attempts, err, ctx.Time()))
		if m.MaxAttempts > 0 && m.attempts >= m.MaxAttempts {
			glog.Errorf("%s: giving up after %d attempts", m.Name, m.attempts)
		}
		return
	}
	m.pending = false
	info := msgs.NewCardInfo(m.Name, m.Driver)
	m.setInfo(info)
	m.publish(info)
	m.publish(msgs.NewCardReady(info, ctx.Time()))
}

func (m *Monitor) publish(msg msgs.SerializableMessage) {
	if m.Publisher == nil {
		return
	}
	topic := report.EventTopic(m.Topic, msg)
	if err := m.Publisher.Publish(topic, msg); err != nil {
		glog.Warningf("%s: publish %s error: %v", m.Name, topic, err)
	}
}
