package cache

import "expvar"

// Interface defines the public API for a cache of resolved records.
type Interface[V any] interface {
	Put(key string, value V)
	Get(key string) (value V, ok bool)
	Remove(key string)
	Clear()
	GetHitRate() float64
	SetMetrics(hits, misses *expvar.Int)
	Len() int
}
