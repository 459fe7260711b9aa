package encviewfs

import (
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// ParallelConfig controls parallel block processing of large ranges
type ParallelConfig struct {
	// Enabled enables parallel block processing
	Enabled bool

	// MaxWorkers is the maximum number of worker goroutines
	// If 0, defaults to runtime.NumCPU()
	MaxWorkers int

	// MinBlocksForParallel is the minimum number of blocks to use parallel
	// processing. Below this threshold, blocks are processed sequentially.
	MinBlocksForParallel int
}

// Validate checks if the parallel configuration is valid
func (p *ParallelConfig) Validate() error {
	if !p.Enabled {
		return nil
	}

	if p.MaxWorkers < 0 {
		return errors.New("parallel max workers cannot be negative")
	}
	if p.MaxWorkers > 1024 {
		return errors.New("parallel max workers must not exceed 1024")
	}
	if p.MinBlocksForParallel < 1 {
		return errors.New("parallel min blocks threshold must be at least 1")
	}
	return nil
}

// DefaultParallelConfig returns the default parallel processing configuration.
// Ranges of 64 KiB and more are split across all CPUs.
func DefaultParallelConfig() ParallelConfig {
	return ParallelConfig{
		Enabled:              true,
		MaxWorkers:           runtime.NumCPU(),
		MinBlocksForParallel: 4096,
	}
}

// cryptBlocks applies fn to every block of src, writing to dst. Large inputs
// are split into one contiguous run of blocks per worker.
func (e *BlockEngine) cryptBlocks(dst, src []byte, fn func(dst, src []byte)) error {
	blocks := len(src) / BlockSize
	p := e.parallel

	if !p.Enabled || blocks < p.MinBlocksForParallel || blocks < 2 {
		for i := 0; i < len(src); i += BlockSize {
			fn(dst[i:i+BlockSize], src[i:i+BlockSize])
		}
		return nil
	}

	numWorkers := p.MaxWorkers
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	if numWorkers > blocks {
		numWorkers = blocks
	}
	perWorker := (blocks + numWorkers - 1) / numWorkers

	// Each run writes a disjoint range of dst.
	var g errgroup.Group
	g.SetLimit(numWorkers)
	for start := 0; start < blocks; start += perWorker {
		from, to := start, min(start+perWorker, blocks)
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("panic in block worker: %v", r)
				}
			}()
			for i := from * BlockSize; i < to*BlockSize; i += BlockSize {
				fn(dst[i:i+BlockSize], src[i:i+BlockSize])
			}
			return nil
		})
	}
	return g.Wait()
}
