package scan

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"gonum.org/v1/gonum/mat"
)

// MemoryScan is a scan held in memory.
type MemoryScan struct {
	Meta    Metadata
	Points  int
	Scalars map[string][]float64
	Images  map[string][]*mat.Dense
}

// MemoryStore serves MemoryScans and counts open handles.
type MemoryStore struct {
	mu     sync.RWMutex
	scans  map[int]*MemoryScan
	opened atomic.Int64
	closed atomic.Int64
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{scans: make(map[int]*MemoryScan)}
}

// Add stores a scan under its number.
func (s *MemoryStore) Add(scanNo int, sc *MemoryScan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scans[scanNo] = sc
}

// Open returns a reader on a stored scan.
func (s *MemoryStore) Open(scanNo int) (Reader, error) {
	s.mu.RLock()
	sc, ok := s.scans[scanNo]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, scanNo)
	}
	s.opened.Add(1)
	return &memoryReader{store: s, scan: sc}, nil
}

// OpenHandles returns the number of readers not yet closed.
func (s *MemoryStore) OpenHandles() int {
	return int(s.opened.Load() - s.closed.Load())
}

// Opened returns the number of readers ever opened.
func (s *MemoryStore) Opened() int {
	return int(s.opened.Load())
}

var errClosed = errors.New("scan reader is closed")

type memoryReader struct {
	store  *MemoryStore
	scan   *MemoryScan
	closed bool
}

func (r *memoryReader) Metadata() (Metadata, error) {
	if r.closed {
		return Metadata{}, errClosed
	}
	return r.scan.Meta, nil
}

func (r *memoryReader) PointCount() (int, error) {
	if r.closed {
		return 0, errClosed
	}
	return r.scan.Points, nil
}

func (r *memoryReader) Scalar(channel string, index int) (float64, error) {
	if r.closed {
		return 0, errClosed
	}
	values, ok := r.scan.Scalars[channel]
	if !ok {
		return 0, fmt.Errorf("no channel %q", channel)
	}
	if index < 0 || index >= len(values) {
		return 0, fmt.Errorf("channel %q: point %d out of range [0, %d)", channel, index, len(values))
	}
	return values[index], nil
}

func (r *memoryReader) Image(channel string, index int) (*mat.Dense, error) {
	if r.closed {
		return nil, errClosed
	}
	images, ok := r.scan.Images[channel]
	if !ok {
		return nil, fmt.Errorf("no channel %q", channel)
	}
	if index < 0 || index >= len(images) {
		return nil, fmt.Errorf("channel %q: point %d out of range [0, %d)", channel, index, len(images))
	}
	return mat.DenseCopyOf(images[index]), nil
}

func (r *memoryReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.store.closed.Add(1)
	return nil
}
