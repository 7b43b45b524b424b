// Package replay stores batched transitions grouped into episodes and
// samples fixed-length training sequences from them.
package replay

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/fyrsmithlabs/worldmodel/internal/batch"
)

var (
	// ErrShapeMismatch is returned when a transition or snapshot does not
	// match the buffer's dimensions.
	ErrShapeMismatch = errors.New("replay shape mismatch")
	// ErrNotEnoughData is returned by Sample when no stored episode is long
	// enough for the requested sequence length.
	ErrNotEnoughData = errors.New("not enough data to sample")
)

// Dims fixes the per-environment widths of stored fields.
type Dims struct {
	Obs    int
	Action int
}

// Buffer is a FIFO replay buffer. Len counts batched steps, so one Store
// adds one regardless of the number of environments in the batch. When Len
// exceeds capacity the oldest completed episodes are evicted.
type Buffer struct {
	mu       sync.Mutex
	capacity int
	dims     Dims
	numEnvs  int
	rng      *rand.Rand

	episodes []episode
	pending  episode
	size     int
	added    int
}

type episode []batch.Transition

// New creates an empty buffer.
func New(capacity int, dims Dims, seed uint64) (*Buffer, error) {
	if capacity <= 0 {
		return nil, errors.New("capacity must be greater than zero")
	}
	if dims.Obs <= 0 || dims.Action <= 0 {
		return nil, fmt.Errorf("dims must be positive, got %+v", dims)
	}
	return &Buffer{
		capacity: capacity,
		dims:     dims,
		rng:      batch.NewRand(seed),
	}, nil
}

// Dims returns the field widths.
func (b *Buffer) Dims() Dims { return b.dims }

// Capacity returns the maximum number of batched steps retained.
func (b *Buffer) Capacity() int { return b.capacity }

// NumEnvs is the batch width fixed by the first stored transition, or 0
// while the buffer is empty.
func (b *Buffer) NumEnvs() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.numEnvs
}

// Store appends a transition to the episode in progress.
func (b *Buffer) Store(t batch.Transition) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrShapeMismatch, err)
	}
	n, obsDim := t.Obs.Dims()
	_, actDim := t.Action.Dims()
	if obsDim != b.dims.Obs || actDim != b.dims.Action {
		return fmt.Errorf("%w: obs/action width %d/%d, want %d/%d",
			ErrShapeMismatch, obsDim, actDim, b.dims.Obs, b.dims.Action)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.numEnvs == 0 {
		b.numEnvs = n
	} else if n != b.numEnvs {
		return fmt.Errorf("%w: batch of %d envs, want %d", ErrShapeMismatch, n, b.numEnvs)
	}

	b.pending = append(b.pending, cloneTransition(t))
	b.size++
	b.evict()
	return nil
}

// AddEpisode closes the episode in progress. It is a no-op when nothing was
// stored since the last call.
func (b *Buffer) AddEpisode() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.pending) == 0 {
		return
	}
	b.episodes = append(b.episodes, b.pending)
	b.pending = nil
	b.added++
}

// Len returns the number of batched steps held, including the episode in
// progress.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Episodes returns the number of completed episodes held.
func (b *Buffer) Episodes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.episodes)
}

// EpisodesAdded counts every completed episode, including evicted ones.
func (b *Buffer) EpisodesAdded() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.added
}

// Pending returns the length of the episode in progress.
func (b *Buffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func (b *Buffer) evict() {
	for b.size > b.capacity && len(b.episodes) > 0 {
		b.size -= len(b.episodes[0])
		b.episodes[0] = nil
		b.episodes = b.episodes[1:]
	}
}

func cloneTransition(t batch.Transition) batch.Transition {
	return batch.Transition{
		Obs:    mat.DenseCopyOf(t.Obs),
		Reward: append([]float64(nil), t.Reward...),
		Cont:   append([]float64(nil), t.Cont...),
		Action: mat.DenseCopyOf(t.Action),
	}
}
