package stream

import (
	"os"
	"sync"

	"github.com/edsrzf/mmap-go"
)

// FileStream memory-maps an input file on construction and serves it
// as a Stream.
type FileStream struct {
	name string
	f    *os.File
	m    mmap.MMap
	pos  int
	pref int

	mu     sync.Mutex
	closed bool
}

const defaultPreferredBlockSize = 64 * 1024

// OpenFileStream opens and mmaps path read-only.
func OpenFileStream(path string) (*FileStream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.Size() == 0 {
		// mmap-go rejects zero-length mappings; serve an empty stream
		// without mapping anything.
		return &FileStream{name: path, f: f, pref: defaultPreferredBlockSize}, nil
	}
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &FileStream{name: path, f: f, m: m, pref: defaultPreferredBlockSize}, nil
}

func (s *FileStream) Name() string           { return s.name }
func (s *FileStream) PreferredBlockSize() int { return s.pref }

func (s *FileStream) Read(buf []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos >= len(s.m) {
		return 0, ErrStreamEnd
	}
	n := copy(buf, s.m[s.pos:])
	s.pos += n
	if s.pos >= len(s.m) {
		return n, ErrStreamEnd
	}
	return n, nil
}

// Close unmaps the buffer and closes the file descriptor; idempotent.
func (s *FileStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	var err error
	if s.m != nil {
		err = s.m.Unmap()
	}
	if cerr := s.f.Close(); err == nil {
		err = cerr
	}
	return err
}
