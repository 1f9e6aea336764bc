package mqtt

import (
	"path"

	"github.com/robotalks/sdcard.go/pkg/msgs"
)

// EventHandler receives decoded events. err is set when the
// payload can't be decoded, and msg is nil.
type EventHandler func(topic string, msg msgs.SerializableMessage, err error)

// AllEvents is the filter matching events of all slots on all hosts.
const AllEvents = "+/+/+"

// SubEvents subscribes events matching filter. Empty retained
// payloads clearing card info are skipped.
func (q *Queue) SubEvents(filter string, handler EventHandler) *Subscription {
	return q.Sub(filter, func(topic string, payload []byte) {
		if len(payload) == 0 || path.Base(topic) == MetaTopic {
			return
		}
		msg, err := msgs.Decode(payload)
		handler(topic, msg, err)
	})
}
