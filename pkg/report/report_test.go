package report

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/sdcard.go/pkg/msgs"
)

func TestEventTopic(t *testing.T) {
	slot := SlotTopic("host1", "slot0")
	require.Equal(t, "host1/slot0", slot)
	ts := time.Now()
	testCases := []struct {
		msg   msgs.SerializableMessage
		topic string
	}{
		{&msgs.CardInfo{}, "host1/slot0/info"},
		{msgs.NewCardInserted("slot0", ts), "host1/slot0/inserted"},
		{msgs.NewCardRemoved("slot0", ts), "host1/slot0/removed"},
		{msgs.NewCardReady(nil, ts), "host1/slot0/ready"},
		{&msgs.InitFailed{}, "host1/slot0/init-failed"},
	}
	for _, tc := range testCases {
		require.Equal(t, tc.topic, EventTopic(slot, tc.msg))
	}
}

func TestPublishers(t *testing.T) {
	var topics []string
	ok := PublisherFunc(func(topic string, msg msgs.SerializableMessage) error {
		topics = append(topics, topic)
		return nil
	})
	errFail := errors.New("fail")
	failed := PublisherFunc(func(string, msgs.SerializableMessage) error { return errFail })

	pubs := Publishers{failed, ok}
	err := pubs.Publish("host1/slot0/info", &msgs.CardInfo{})
	require.True(t, errors.Is(err, errFail))
	require.Equal(t, "fail", err.Error())
	require.Equal(t, []string{"host1/slot0/info"}, topics)
	require.NoError(t, Publishers{ok}.Publish("t", &msgs.CardInfo{}))
}
