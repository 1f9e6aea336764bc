package main

import (
	"encoding/json"
	"flag"
	"io"
	"log"
	"os"

	"github.com/robotalks/sdcard.go/pkg/msgs"
	"github.com/robotalks/sdcard.go/pkg/report/mqtt"
	"github.com/robotalks/sdcard.go/pkg/report/stream"
	"github.com/robotalks/sdcard.go/pkg/report/websocket"
)

var (
	mqttURL    = "mqtt://localhost:1883/sdcard/"
	wsURL      string
	replayFile string
	filter     = mqtt.AllEvents
	outputJSON bool
)

func init() {
	if val := os.Getenv("SDCARD_MQTT_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
	flag.StringVar(&wsURL, "ws", wsURL, "Websocket events URL, e.g. ws://host:8080/events.")
	flag.StringVar(&replayFile, "replay", replayFile, "Event log file to print, - for stdin.")
	flag.StringVar(&filter, "filter", filter, "MQTT topic filter, HOST/SLOT/EVENT.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print events in JSON.")
}

func printEvent(topic string, msg msgs.SerializableMessage, err error) {
	if err != nil {
		log.Printf("%s: bad message: %v", topic, err)
		return
	}
	if outputJSON {
		out, err := json.Marshal(map[string]interface{}{
			"topic": topic,
			"type":  msgs.TypeName(msg),
			"msg":   msg,
		})
		if err != nil {
			log.Printf("%s: %v", topic, err)
			return
		}
		log.Println(string(out))
		return
	}
	log.Printf("%s: [%s] %s", topic, msgs.TypeName(msg), msg.String())
}

func replay(r io.Reader) {
	events := stream.NewReader(r)
	for {
		topic, msg, err := events.ReadEvent()
		if err == io.EOF {
			return
		}
		if err != nil && msg == nil && topic == "" {
			log.Fatalln(err)
		}
		printEvent(topic, msg, err)
	}
}

func watchWebsocket(url string) {
	c, err := websocket.Dial(url)
	if err != nil {
		log.Fatalln(err)
	}
	defer c.Close()
	for {
		topic, msg, err := c.ReadEvent()
		if err == io.EOF {
			return
		}
		if err != nil && topic == "" {
			log.Fatalln(err)
		}
		printEvent(topic, msg, err)
	}
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	switch {
	case replayFile == "-":
		replay(os.Stdin)
	case replayFile != "":
		f, err := os.Open(replayFile)
		if err != nil {
			log.Fatalln(err)
		}
		defer f.Close()
		replay(f)
	case wsURL != "":
		watchWebsocket(wsURL)
	default:
		q, err := mqtt.NewQueueFromURL(mqttURL)
		if err != nil {
			log.Fatalln(err)
		}
		if token := q.Connect(); token.Wait() && token.Error() != nil {
			log.Fatalln(token.Error())
		}
		q.SubEvents(filter, printEvent)
		<-(chan struct{})(nil)
	}
}
