package env

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/sdcard.go/pkg/msgs"
	"github.com/robotalks/sdcard.go/pkg/report/stream"
)

func TestSlotTopic(t *testing.T) {
	conf := NewConfig()
	conf.Host, conf.Slot = "host1", "slot2"
	require.Equal(t, "host1/slot2", conf.SlotTopic())

	conf.Host = ""
	require.NotEmpty(t, conf.HostID())
	require.Equal(t, conf.Host, conf.HostID())
}

func TestNewReporters(t *testing.T) {
	dir, err := ioutil.TempDir("", "sdcard-env")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	conf := NewConfig()
	conf.Host = "host1"
	conf.MQTTURL = "mqtt://localhost:1883/sdcard/"
	conf.WebsocketAddr = "localhost:0"
	conf.EventLog = filepath.Join(dir, "events.log")
	r, err := conf.NewReporters()
	require.NoError(t, err)
	require.Len(t, r.Publishers, 3)
	require.Len(t, r.Runnables, 2)

	// event log alone succeeds while MQTT isn't connected
	logPub := r.Publishers[2]
	require.NoError(t, logPub.Publish("host1/slot0/inserted", msgs.NewCardInserted("slot0", time.Now())))
	require.NoError(t, r.Close())

	f, err := os.Open(conf.EventLog)
	require.NoError(t, err)
	defer f.Close()
	topic, msg, err := stream.NewReader(f).ReadEvent()
	require.NoError(t, err)
	require.Equal(t, "host1/slot0/inserted", topic)
	require.IsType(t, &msgs.CardInserted{}, msg)

	conf = NewConfig()
	conf.MQTTURL, conf.WebsocketAddr, conf.EventLog = "", "", ""
	r, err = conf.NewReporters()
	require.NoError(t, err)
	require.Empty(t, r.Publishers)
}
