// Package stream records card events as length-prefixed frames,
// suitable for event log files and pipes.
//
// Each event is two frames: the topic, then the Typed message.
// A frame is a 4-byte little-endian length followed by the bytes.
package stream

import (
	"encoding/binary"
	"errors"
	"io"
	"sync"

	"github.com/robotalks/sdcard.go/pkg/msgs"
)

// MaxFrameSize limits the size of a frame accepted by ReadFrame.
const MaxFrameSize = 1 << 20

// ErrFrameTooLarge indicates a corrupted or foreign stream.
var ErrFrameTooLarge = errors.New("frame too large")

// ReadFrame reads one frame.
func ReadFrame(r io.Reader) ([]byte, error) {
	var size uint32
	if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
		return nil, err
	}
	if size > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}
	frame := make([]byte, size)
	if _, err := io.ReadFull(r, frame); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return frame, nil
}

// WriteFrame writes one frame.
func WriteFrame(w io.Writer, frame []byte) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(frame))); err != nil {
		return err
	}
	_, err := w.Write(frame)
	return err
}

// Publisher implements report.Publisher writing events to an io.Writer.
type Publisher struct {
	w    io.Writer
	lock sync.Mutex
}

// NewPublisher creates a Publisher.
func NewPublisher(w io.Writer) *Publisher {
	return &Publisher{w: w}
}

// Publish implements report.Publisher.
func (p *Publisher) Publish(topic string, msg msgs.SerializableMessage) error {
	payload, err := msgs.Encode(msg)
	if err != nil {
		return err
	}
	p.lock.Lock()
	defer p.lock.Unlock()
	if err := WriteFrame(p.w, []byte(topic)); err != nil {
		return err
	}
	return WriteFrame(p.w, payload)
}

// Reader reads events written by Publisher.
type Reader struct {
	r io.Reader
}

// NewReader creates a Reader.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// ReadEvent reads the next event. io.EOF is returned at the
// end of a well formed stream.
func (r *Reader) ReadEvent() (string, msgs.SerializableMessage, error) {
	topic, err := ReadFrame(r.r)
	if err != nil {
		return "", nil, err
	}
	payload, err := ReadFrame(r.r)
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return "", nil, err
	}
	msg, err := msgs.Decode(payload)
	return string(topic), msg, err
}
