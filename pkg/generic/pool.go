package generic

import "sync"

// Pool is a typed sync.Pool. An optional reset hook runs on every value
// handed back with Put.
type Pool[T any] struct {
	pool  sync.Pool
	reset func(T) bool
}

func NewPool[T any](generate func() T) *Pool[T] {
	return &Pool[T]{
		pool: sync.Pool{
			New: func() any {
				return generate()
			},
		},
	}
}

// NewResettablePool builds a pool whose Put first calls reset. Values for
// which reset returns false are dropped instead of pooled.
func NewResettablePool[T any](generate func() T, reset func(T) bool) *Pool[T] {
	p := NewPool[T](generate)
	p.reset = reset
	return p
}

func (p *Pool[T]) Get() T {
	return p.pool.Get().(T)
}

func (p *Pool[T]) Put(value T) {
	if p.reset != nil && !p.reset(value) {
		return
	}
	p.pool.Put(value)
}
