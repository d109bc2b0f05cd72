/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package queue holds the pending blocks of a scheduling run.
package queue

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/friendsincode/telrun/internal/models"
)

var (
	// ErrDuplicateID indicates a block ID already present in the queue.
	ErrDuplicateID = errors.New("duplicate block id")

	// ErrInvalidBlock indicates a block rejected at insertion.
	ErrInvalidBlock = models.ErrInvalidBlock

	// ErrIntegrity indicates the queue's internal index is inconsistent.
	ErrIntegrity = errors.New("queue integrity violation")
)

// RankFunc scores a block for ordering. Higher ranks first.
type RankFunc func(b *models.Block) float64

// ByPriority ranks blocks by their working priority.
func ByPriority(b *models.Block) float64 { return b.Priority }

type entry struct {
	block *models.Block
	seq   uint64
}

// Queue is an insertion-ordered map from block ID to block.
type Queue struct {
	mu      sync.RWMutex
	entries map[string]entry
	nextSeq uint64
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{entries: make(map[string]entry)}
}

// Add validates and inserts a block.
func (q *Queue) Add(b *models.Block) error {
	if b == nil {
		return fmt.Errorf("nil block: %w", ErrInvalidBlock)
	}
	if err := b.Validate(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if _, exists := q.entries[b.ID]; exists {
		return fmt.Errorf("block %s: %w", b.ID, ErrDuplicateID)
	}
	q.entries[b.ID] = entry{block: b, seq: q.nextSeq}
	q.nextSeq++
	return nil
}

// Rejection is a block refused by AddAll.
type Rejection struct {
	Index   int
	BlockID string
	Err     error
}

// AddAll inserts blocks individually. A bad entry never prevents the others
// from being added.
func (q *Queue) AddAll(blocks []*models.Block) []Rejection {
	var rejected []Rejection
	for i, b := range blocks {
		if err := q.Add(b); err != nil {
			id := ""
			if b != nil {
				id = b.ID
			}
			rejected = append(rejected, Rejection{Index: i, BlockID: id, Err: err})
		}
	}
	return rejected
}

// Remove deletes a block. Unknown IDs are ignored.
func (q *Queue) Remove(id string) {
	q.mu.Lock()
	delete(q.entries, id)
	q.mu.Unlock()
}

// Get returns a block by ID.
func (q *Queue) Get(id string) (*models.Block, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	e, ok := q.entries[id]
	return e.block, ok
}

// Len returns the number of blocks in any state.
func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.entries)
}

// All returns every block in insertion order.
func (q *Queue) All() []*models.Block {
	q.mu.RLock()
	ordered := q.ordered()
	q.mu.RUnlock()

	out := make([]*models.Block, len(ordered))
	for i, e := range ordered {
		out[i] = e.block
	}
	return out
}

// Pending returns the pending blocks in insertion order.
func (q *Queue) Pending() []*models.Block {
	var out []*models.Block
	for _, b := range q.All() {
		if b.State == models.StatePending {
			out = append(out, b)
		}
	}
	return out
}

// Snapshot returns the pending blocks sorted by rank descending. Ties go to
// the earliest time-window lower bound, an open bound counting as earliest,
// then to insertion order.
func (q *Queue) Snapshot(rank RankFunc) []*models.Block {
	if rank == nil {
		rank = ByPriority
	}

	q.mu.RLock()
	ordered := q.ordered()
	q.mu.RUnlock()

	type ranked struct {
		block *models.Block
		rank  float64
		lower time.Time
		seq   uint64
	}
	candidates := make([]ranked, 0, len(ordered))
	for _, e := range ordered {
		if e.block.State != models.StatePending {
			continue
		}
		lo, _ := e.block.TimeWindow()
		candidates = append(candidates, ranked{block: e.block, rank: rank(e.block), lower: lo, seq: e.seq})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.rank != b.rank {
			return a.rank > b.rank
		}
		if !a.lower.Equal(b.lower) {
			return a.lower.Before(b.lower)
		}
		return a.seq < b.seq
	})

	out := make([]*models.Block, len(candidates))
	for i, c := range candidates {
		out[i] = c.block
	}
	return out
}

// CheckIntegrity verifies every entry is keyed by its own ID.
func (q *Queue) CheckIntegrity() error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	for id, e := range q.entries {
		if e.block == nil {
			return fmt.Errorf("entry %s: nil block: %w", id, ErrIntegrity)
		}
		if e.block.ID != id {
			return fmt.Errorf("entry %s holds block %s: %w", id, e.block.ID, ErrIntegrity)
		}
	}
	return nil
}

// ordered returns entries by insertion sequence. Callers hold mu.
func (q *Queue) ordered() []entry {
	out := make([]entry, 0, len(q.entries))
	for _, e := range q.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}
