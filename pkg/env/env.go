// Package env provides the common configuration of card monitors
// and the reporters they publish events with.
package env

import (
	"flag"
	"io"
	"log"
	"os"

	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"

	fx "github.com/robotalks/sdcard.go/pkg/framework"
	"github.com/robotalks/sdcard.go/pkg/report"
	"github.com/robotalks/sdcard.go/pkg/report/mqtt"
	"github.com/robotalks/sdcard.go/pkg/report/stream"
	"github.com/robotalks/sdcard.go/pkg/report/websocket"
)

// Config specifies where a monitor reports events.
type Config struct {
	// Host identifies this machine in topics, defaults to the machine ID.
	Host string
	Slot string

	// MQTTURL e.g. mqtt://host:port/topic-prefix, empty disables MQTT.
	MQTTURL string
	// WebsocketAddr is the listen address of websocket events, empty disables it.
	WebsocketAddr string
	// EventLog is the file events are appended to, "-" for stdout.
	EventLog string
}

var defaultConfig = Config{
	Slot: "slot0",
}

func init() {
	if val := os.Getenv("SDCARD_HOST"); val != "" {
		defaultConfig.Host = val
	}
	if val := os.Getenv("SDCARD_SLOT"); val != "" {
		defaultConfig.Slot = val
	}
	if val := os.Getenv("SDCARD_MQTT_URL"); val != "" {
		defaultConfig.MQTTURL = val
	}
	if val := os.Getenv("SDCARD_WS_ADDR"); val != "" {
		defaultConfig.WebsocketAddr = val
	}
	if val := os.Getenv("SDCARD_EVENT_LOG"); val != "" {
		defaultConfig.EventLog = val
	}
}

// SetupFlags sets up command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.Host, "host", defaultConfig.Host, "Host name in event topics, default is machine ID.")
	flag.StringVar(&defaultConfig.Slot, "slot", defaultConfig.Slot, "Slot name in event topics.")
	flag.StringVar(&defaultConfig.MQTTURL, "mqtt", defaultConfig.MQTTURL, "MQTT broker URL to publish events.")
	flag.StringVar(&defaultConfig.WebsocketAddr, "ws", defaultConfig.WebsocketAddr, "Listen address of websocket events.")
	flag.StringVar(&defaultConfig.EventLog, "event-log", defaultConfig.EventLog, "File to append events, - for stdout.")
}

// Default gets the default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// MachineID retrieves the unique ID identifying the machine.
// The host name is used when machine ID is not available.
func MachineID() string {
	id, err := machineid.ID()
	if err == nil {
		return id
	}
	glog.Warningf("machine id unavailable: %v", err)
	if name, err := os.Hostname(); err == nil {
		return name
	}
	return "localhost"
}

// HostID returns Host or the machine ID if not set.
func (c *Config) HostID() string {
	if c.Host == "" {
		c.Host = MachineID()
	}
	return c.Host
}

// SlotTopic returns the topic events of the slot are published under.
func (c *Config) SlotTopic() string {
	return report.SlotTopic(c.HostID(), c.Slot)
}

// Reporters are the publishers built from Config.
type Reporters struct {
	report.Publishers
	// Runnables must run for the publishers to deliver.
	Runnables []fx.Runnable

	closers []io.Closer
}

// Close implements io.Closer.
func (r *Reporters) Close() error {
	var errs fx.AggregatedError
	for _, c := range r.closers {
		errs.Add(c.Close())
	}
	return errs.Aggregate()
}

// NewReporters creates the configured publishers.
func (c *Config) NewReporters() (*Reporters, error) {
	r := &Reporters{}
	if c.MQTTURL != "" {
		pub, err := mqtt.NewPublisher(c.MQTTURL, mqtt.Meta{Host: c.HostID(), Slots: []string{c.Slot}})
		if err != nil {
			return nil, err
		}
		r.Publishers = append(r.Publishers, pub)
		r.Runnables = append(r.Runnables, fx.NamedRun("mqtt", pub))
	}
	if c.WebsocketAddr != "" {
		srv := websocket.NewServer(c.WebsocketAddr)
		r.Publishers = append(r.Publishers, srv)
		r.Runnables = append(r.Runnables, fx.NamedRun("websocket", srv))
	}
	switch c.EventLog {
	case "":
	case "-":
		r.Publishers = append(r.Publishers, stream.NewPublisher(os.Stdout))
	default:
		f, err := os.OpenFile(c.EventLog, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			r.Close()
			return nil, err
		}
		r.closers = append(r.closers, f)
		r.Publishers = append(r.Publishers, stream.NewPublisher(f))
	}
	return r, nil
}

// MustNewReporters creates reporters and fails on error.
func (c *Config) MustNewReporters() *Reporters {
	r, err := c.NewReporters()
	if err != nil {
		log.Fatalln(err)
	}
	return r
}
