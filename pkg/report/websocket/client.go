package websocket

import (
	"bytes"

	"golang.org/x/net/websocket"

	"github.com/robotalks/sdcard.go/pkg/msgs"
	"github.com/robotalks/sdcard.go/pkg/report/stream"
)

// Client receives events from a Server.
type Client struct {
	conn *websocket.Conn
}

// Dial connects to the events URL, e.g. ws://host:8080/events.
func Dial(url string) (*Client, error) {
	conn, err := websocket.Dial(url, "", "http://localhost/")
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// ReadEvent blocks until the next event arrives.
func (c *Client) ReadEvent() (string, msgs.SerializableMessage, error) {
	var data []byte
	if err := websocket.Message.Receive(c.conn, &data); err != nil {
		return "", nil, err
	}
	return stream.NewReader(bytes.NewReader(data)).ReadEvent()
}

// Close implements io.Closer.
func (c *Client) Close() error {
	return c.conn.Close()
}
