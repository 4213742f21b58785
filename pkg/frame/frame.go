// Package frame manages the global pool of physical memory frames shared by
// every address space in the kernel.
package frame

import (
	"errors"
	"sync"

	"github.com/hashicorp/go-hclog"
)

// Frame allocation errors.
var (
	ErrResourceExhausted = errors.New("frame: not enough free frames")
	ErrInvalidCount      = errors.New("frame: invalid frame count")
)

// Allocator hands out and reclaims physical frame numbers.
type Allocator struct {
	mu     sync.Mutex
	free   []int
	total  int
	logger hclog.Logger
}

// New creates an allocator owning frames 0 through total-1, all free.
func New(total int, logger hclog.Logger) *Allocator {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	free := make([]int, total)
	for i := range free {
		free[i] = i
	}

	return &Allocator{
		free:   free,
		total:  total,
		logger: logger,
	}
}

// Allocate removes n frames from the free set and returns them. If fewer
// than n frames are free nothing is taken and ErrResourceExhausted is
// returned. Callers must not assume the frames are contiguous.
func (a *Allocator) Allocate(n int) ([]int, error) {
	if n < 0 {
		return nil, ErrInvalidCount
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if n > len(a.free) {
		a.logger.Debug("frame request refused", "requested", n, "free", len(a.free))
		return nil, ErrResourceExhausted
	}

	frames := make([]int, n)
	copy(frames, a.free[:n])
	a.free = a.free[n:]

	a.logger.Trace("frames allocated", "count", n, "free", len(a.free))
	return frames, nil
}

// Release returns one previously allocated frame to the free set.
// Releasing a frame that is not allocated corrupts the pool; address spaces
// are the only callers and track their own frames.
func (a *Allocator) Release(frame int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.free = append(a.free, frame)
}

// Free returns the number of unallocated frames.
func (a *Allocator) Free() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.free)
}

// Total returns the number of frames managed by the allocator.
func (a *Allocator) Total() int {
	return a.total
}
