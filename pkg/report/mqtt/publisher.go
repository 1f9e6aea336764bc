package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/robotalks/sdcard.go/pkg/msgs"
	"github.com/robotalks/sdcard.go/pkg/report"
)

// DefaultPublishTimeout is the default time to wait for publish acknowledgement.
const DefaultPublishTimeout = 5 * time.Second

// MetaTopic is the retained topic under the host holding monitor metadata.
const MetaTopic = "meta"

// Meta describes the monitor publishing events of a host.
type Meta struct {
	Host  string   `json:"host"`
	Slots []string `json:"slots"`
}

// Publisher implements report.Publisher over MQTT.
// Card info is retained so late subscribers see the current card.
type Publisher struct {
	Queue   *Queue
	Meta    Meta
	Timeout time.Duration

	metaJSON []byte
}

// NewPublisher creates a Publisher. The host metadata is retained
// while connected and cleared by the will when the connection drops.
func NewPublisher(brokerURL string, meta Meta) (*Publisher, error) {
	data, err := json.Marshal(&meta)
	if err != nil {
		return nil, err
	}
	opts, topicPrefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	opts.SetBinaryWill(topicPrefix+path.Join(meta.Host, MetaTopic), nil, 1, true)
	if opts.ClientID == "" {
		opts.SetClientID("sdcard:" + meta.Host)
	}
	p := &Publisher{
		Queue:    NewQueue(opts, topicPrefix),
		Meta:     meta,
		Timeout:  DefaultPublishTimeout,
		metaJSON: data,
	}
	p.Queue.OnConnect = func(*Queue) { p.publishMeta(p.metaJSON) }
	return p, nil
}

// Publish implements report.Publisher.
func (p *Publisher) Publish(topic string, msg msgs.SerializableMessage) error {
	payload, err := msgs.Encode(msg)
	if err != nil {
		return err
	}
	var retain bool
	switch msg.(type) {
	case *msgs.CardInfo:
		retain = true
	case *msgs.CardRemoved:
		if err := p.wait(p.Queue.PubWith(path.Join(path.Dir(topic), report.TopicInfo), nil, 1, true)); err != nil {
			return err
		}
	}
	return p.wait(p.Queue.PubWith(topic, payload, 1, retain))
}

func (p *Publisher) wait(token paho.Token) error {
	timeout := p.Timeout
	if timeout == 0 {
		timeout = DefaultPublishTimeout
	}
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("mqtt timeout after %s", timeout)
	}
	return token.Error()
}

func (p *Publisher) publishMeta(payload []byte) {
	token := p.Queue.PubWith(path.Join(p.Meta.Host, MetaTopic), payload, 1, true)
	if err := p.wait(token); err != nil {
		glog.Warningf("publish meta error: %v", err)
	}
}

// Run implements Runnable.
func (p *Publisher) Run(ctx context.Context) error {
	token := p.Queue.Connect()
	if err := p.wait(token); err != nil {
		return errors.Wrap(err, "mqtt connect")
	}
	<-ctx.Done()
	p.publishMeta(nil)
	p.Queue.Close()
	return ctx.Err()
}
