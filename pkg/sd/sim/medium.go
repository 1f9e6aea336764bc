package sim

import (
	"io"
	"os"
)

// Medium is the storage behind an emulated card.
type Medium interface {
	io.ReaderAt
	io.WriterAt
	Size() int64
}

// Memory is an in-memory Medium.
type Memory []byte

// NewMemory creates a zero filled Memory of size bytes.
func NewMemory(size int64) Memory {
	return make(Memory, size)
}

// Size implements Medium.
func (m Memory) Size() int64 {
	return int64(len(m))
}

// ReadAt implements io.ReaderAt.
func (m Memory) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(m)) {
		return 0, io.EOF
	}
	n := copy(p, m[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt implements io.WriterAt.
func (m Memory) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(m)) {
		return 0, io.ErrShortWrite
	}
	n := copy(m[off:], p)
	if n < len(p) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

// Image is a Medium backed by an image file.
type Image struct {
	*os.File
	size int64
}

// OpenImage opens an image file for read and write.
func OpenImage(path string) (*Image, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Image{File: f, size: info.Size()}, nil
}

// Size implements Medium.
func (m *Image) Size() int64 {
	return m.size
}
