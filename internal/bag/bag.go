/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package bag provides a non-repeating shuffled draw over a fixed catalog.
package bag

import (
	crand "crypto/rand"
	"math/rand/v2"
)

// Rand is the subset of *rand.Rand the bag needs.
type Rand interface {
	IntN(n int) int
}

// NewRand returns a ChaCha8-backed generator seeded from crypto/rand.
func NewRand() *rand.Rand {
	var seed [32]byte
	if _, err := crand.Read(seed[:]); err != nil {
		panic("crypto/rand failure: " + err.Error())
	}

	return rand.New(rand.NewChaCha8(seed))
}

// NewSeeded returns a deterministic generator, for tests and replays.
func NewSeeded(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Shuffle permutes items in place using Fisher-Yates.
func Shuffle[T any](rng Rand, items []T) {
	for i := len(items) - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		items[i], items[j] = items[j], items[i]
	}
}

// Pick returns n distinct items chosen at random, or every item (shuffled)
// if there are n or fewer. items is not modified.
func Pick[T any](rng Rand, items []T, n int) []T {
	clone := make([]T, len(items))
	copy(clone, items)
	Shuffle(rng, clone)

	if n < 0 {
		n = 0
	}
	if len(clone) > n {
		clone = clone[:n]
	}

	return clone
}

// Bag hands out items from a shuffled copy of its catalog without repeats.
// Once fewer items remain than a draw asks for, the whole catalog is
// reshuffled and drawing starts over.
type Bag[T any] struct {
	rng       Rand
	catalog   []T
	remaining []T
	epoch     int
}

func New[T any](rng Rand, catalog []T) *Bag[T] {
	b := &Bag[T]{
		rng:     rng,
		catalog: append([]T(nil), catalog...),
	}
	b.refill()

	return b
}

func (b *Bag[T]) refill() {
	b.remaining = append(b.remaining[:0], b.catalog...)
	Shuffle(b.rng, b.remaining)
	b.epoch++
}

// Draw removes and returns up to n items.
func (b *Bag[T]) Draw(n int) []T {
	if n <= 0 || len(b.catalog) == 0 {
		return []T{}
	}

	if len(b.remaining) < n {
		b.refill()
	}

	n = min(n, len(b.remaining))
	out := make([]T, n)
	copy(out, b.remaining[:n])
	b.remaining = b.remaining[n:]

	return out
}
