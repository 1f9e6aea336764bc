// Package report delivers card events to subscribers.
package report

import (
	"path"

	fx "github.com/robotalks/sdcard.go/pkg/framework"
	"github.com/robotalks/sdcard.go/pkg/msgs"
)

// Publisher sends card events.
type Publisher interface {
	Publish(topic string, msg msgs.SerializableMessage) error
}

// PublisherFunc is func form of Publisher.
type PublisherFunc func(topic string, msg msgs.SerializableMessage) error

// Publish implements Publisher.
func (f PublisherFunc) Publish(topic string, msg msgs.SerializableMessage) error {
	return f(topic, msg)
}

// Publishers fans out to every Publisher.
type Publishers []Publisher

// Publish implements Publisher. All publishers are attempted.
func (p Publishers) Publish(topic string, msg msgs.SerializableMessage) error {
	var errs fx.AggregatedError
	for _, pub := range p {
		errs.Add(pub.Publish(topic, msg))
	}
	return errs.Aggregate()
}

// Topic names of events, relative to the slot topic.
const (
	TopicInfo       = "info"
	TopicInserted   = "inserted"
	TopicRemoved    = "removed"
	TopicReady      = "ready"
	TopicInitFailed = "init-failed"
	TopicUnknown    = "unknown"
)

// EventName returns the topic name of the message.
func EventName(msg msgs.SerializableMessage) string {
	switch msg.(type) {
	case *msgs.CardInfo:
		return TopicInfo
	case *msgs.CardInserted:
		return TopicInserted
	case *msgs.CardRemoved:
		return TopicRemoved
	case *msgs.CardReady:
		return TopicReady
	case *msgs.InitFailed:
		return TopicInitFailed
	}
	return TopicUnknown
}

// SlotTopic returns the topic of a slot: <host>/<slot>.
func SlotTopic(host, slot string) string {
	return path.Join(host, slot)
}

// EventTopic returns the topic of msg under the slot topic.
func EventTopic(slotTopic string, msg msgs.SerializableMessage) string {
	return path.Join(slotTopic, EventName(msg))
}
