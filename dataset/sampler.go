package dataset

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
)

// ErrInvalidRows is returned for a non-positive sample size.
var ErrInvalidRows = errors.New("rows must be a positive integer")

// RowsExceedError reports a sample larger than the dataset. Sampling is
// without replacement, so such requests are rejected rather than capped.
type RowsExceedError struct {
	Requested int
	Available int
}

func (e *RowsExceedError) Error() string {
	return fmt.Sprintf("rows=%d exceeds the %d rows available in the dataset", e.Requested, e.Available)
}

// FetchError wraps any failure to load the dataset.
type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("load dataset %s: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Sampler draws uniform random rows from a Source.
type Sampler struct {
	source Source
	intN   func(n int) int
}

func NewSampler(source Source) *Sampler {
	return &Sampler{source: source, intN: rand.IntN}
}

// Sample loads the dataset and returns rows distinct records chosen uniformly
// at random. The dataset is loaded before rows is checked against its size.
func (s *Sampler) Sample(ctx context.Context, rows int) ([]Record, error) {
	if rows < 1 {
		return nil, ErrInvalidRows
	}

	frame, err := s.source.Load(ctx)
	if err != nil {
		return nil, &FetchError{Source: s.source.Name(), Err: err}
	}

	n := frame.Len()
	if rows > n {
		return nil, &RowsExceedError{Requested: rows, Available: n}
	}

	// partial Fisher-Yates over row indices
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sample := make([]Record, rows)
	for i := 0; i < rows; i++ {
		j := i + s.intN(n-i)
		idx[i], idx[j] = idx[j], idx[i]
		sample[i] = frame.Rows[idx[i]]
	}
	return sample, nil
}
