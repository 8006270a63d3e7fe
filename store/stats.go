package store

import (
	"fmt"

	"github.com/caio/go-tdigest/v4"
)

// Stats is a point-in-time summary of a Store.
type Stats struct {
	Appended     int64
	Resolved     int64
	Compactions  int64
	Dirty        int
	Chains       int
	CacheEntries int
	CacheHitRate float64
	// Chain length quantiles in records per chain.
	ChainLengthP50 float64
	ChainLengthP90 float64
	ChainLengthP99 float64
	ChainLengthMax int
}

// chainLengther is implemented by logs that can report chain lengths
// without copying records.
type chainLengther interface {
	ChainLengths() []int
}

func (s *Store[K, V]) chainLengths() ([]int, error) {
	if l, ok := s.log.(chainLengther); ok {
		return l.ChainLengths(), nil
	}
	keys, err := s.log.Keys()
	if err != nil {
		return nil, err
	}
	lengths := make([]int, 0, len(keys))
	for _, k := range keys {
		records, err := s.log.Records(k)
		if err != nil {
			return nil, err
		}
		if len(records) > 0 {
			lengths = append(lengths, len(records))
		}
	}
	return lengths, nil
}

// Stats reports counters and the distribution of chain lengths. Long chains
// are the ones compaction pays off for.
func (s *Store[K, V]) Stats() (Stats, error) {
	st := Stats{
		Appended:     s.appended.Load(),
		Resolved:     s.resolved.Load(),
		Compactions:  s.compactions.Load(),
		Dirty:        s.dirty.Cardinality(),
		CacheEntries: s.cache.Len(),
		CacheHitRate: s.cache.GetHitRate(),
	}

	lengths, err := s.chainLengths()
	if err != nil {
		return st, err
	}
	st.Chains = len(lengths)
	if len(lengths) == 0 {
		return st, nil
	}

	td, err := tdigest.New()
	if err != nil {
		return st, fmt.Errorf("tdigest.New failed: %w", err)
	}
	for _, n := range lengths {
		if err := td.Add(float64(n)); err != nil {
			return st, fmt.Errorf("tdigest Add failed: %w", err)
		}
		if n > st.ChainLengthMax {
			st.ChainLengthMax = n
		}
	}
	st.ChainLengthP50 = td.Quantile(0.5)
	st.ChainLengthP90 = td.Quantile(0.9)
	st.ChainLengthP99 = td.Quantile(0.99)
	return st, nil
}
