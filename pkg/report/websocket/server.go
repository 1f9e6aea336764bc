// Package websocket broadcasts card events to websocket clients.
//
// Each websocket message carries one event encoded as stream frames.
package websocket

import (
	"bytes"
	"context"
	"net/http"
	"sort"
	"sync"

	"github.com/golang/glog"
	"golang.org/x/net/websocket"

	fx "github.com/robotalks/sdcard.go/pkg/framework"
	"github.com/robotalks/sdcard.go/pkg/msgs"
	"github.com/robotalks/sdcard.go/pkg/report/stream"
)

// DefaultPath is the HTTP path serving events.
const DefaultPath = "/events"

// ClientQueueSize is the number of events buffered per client.
// Events to a client with a full queue are dropped.
const ClientQueueSize = 16

// Server implements report.Publisher, broadcasting to connected clients.
// New clients first receive the info of cards currently ready.
type Server struct {
	Addr string

	lock     sync.Mutex
	clients  map[*websocket.Conn]chan []byte
	retained map[string][]byte
}

// NewServer creates a Server listening on addr when run.
func NewServer(addr string) *Server {
	return &Server{
		Addr:     addr,
		clients:  make(map[*websocket.Conn]chan []byte),
		retained: make(map[string][]byte),
	}
}

// Handler returns the websocket handler.
func (s *Server) Handler() http.Handler {
	return websocket.Handler(s.serveConn)
}

// Clients returns the number of connected clients.
func (s *Server) Clients() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.clients)
}

// Publish implements report.Publisher.
func (s *Server) Publish(topic string, msg msgs.SerializableMessage) error {
	var buf bytes.Buffer
	if err := stream.NewPublisher(&buf).Publish(topic, msg); err != nil {
		return err
	}
	data := buf.Bytes()
	s.lock.Lock()
	defer s.lock.Unlock()
	switch m := msg.(type) {
	case *msgs.CardInfo:
		s.retained[m.Slot] = data
	case *msgs.CardRemoved:
		delete(s.retained, m.Slot)
	}
	for conn, ch := range s.clients {
		select {
		case ch <- data:
		default:
			glog.Warningf("websocket client %s too slow, event dropped", conn.Request().RemoteAddr)
		}
	}
	return nil
}

func (s *Server) register(conn *websocket.Conn) chan []byte {
	s.lock.Lock()
	defer s.lock.Unlock()
	ch := make(chan []byte, ClientQueueSize+len(s.retained))
	slots := make([]string, 0, len(s.retained))
	for slot := range s.retained {
		slots = append(slots, slot)
	}
	sort.Strings(slots)
	for _, slot := range slots {
		ch <- s.retained[slot]
	}
	s.clients[conn] = ch
	return ch
}

func (s *Server) unregister(conn *websocket.Conn) {
	s.lock.Lock()
	delete(s.clients, conn)
	s.lock.Unlock()
}

func (s *Server) serveConn(conn *websocket.Conn) {
	remote := conn.Request().RemoteAddr
	glog.V(2).Infof("websocket client %s connected", remote)
	ch := s.register(conn)
	defer s.unregister(conn)

	closedCh := make(chan struct{})
	go func() {
		// clients don't send anything, reading detects disconnection.
		var discard []byte
		for websocket.Message.Receive(conn, &discard) == nil {
		}
		close(closedCh)
	}()

	for {
		select {
		case data := <-ch:
			if err := websocket.Message.Send(conn, data); err != nil {
				glog.V(2).Infof("websocket client %s send error: %v", remote, err)
				return
			}
		case <-closedCh:
			glog.V(2).Infof("websocket client %s disconnected", remote)
			return
		}
	}
}

// Run implements Runnable.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle(DefaultPath, s.Handler())
	srv := &http.Server{Addr: s.Addr, Handler: mux}
	glog.Infof("websocket events on %s%s", s.Addr, DefaultPath)
	return fx.RunWithContextCloser(ctx, srv, srv.ListenAndServe)
}
