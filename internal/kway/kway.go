// Package kway implements the sorted-unique k-way merge spec.md §4.6 uses
// both for compacting several SSTables into one and for combining a range
// read across the memtable and the LSM tree, grounded on the prototype's
// src/util.rs::merge_sorted_uniq.
package kway

import (
	"container/heap"

	"github.com/intellect4all/lsmstore/internal/sstable"
)

// Source yields (key, value) pairs in strictly ascending key order.
type Source interface {
	Next() (sstable.KV, bool)
}

// Merge drains every source in lockstep via a min-heap keyed on Key, and
// returns their union in ascending key order with duplicate keys collapsed.
// Sources are given in priority order: when two sources produce the same
// key, the item from the lower-indexed source wins (callers order sources
// accordingly, e.g. memtable before SSTables, newer SSTables before older
// ones). Ties are broken by key only, not by the full (key, value) pair —
// per spec.md §4.6's closing note that the "kept" value among equal keys is
// resolved by source priority, not value comparison.
func Merge(sources []Source) []sstable.KV {
	h := &minHeap{}
	heap.Init(h)
	for idx, s := range sources {
		if kv, ok := s.Next(); ok {
			heap.Push(h, heapItem{kv: kv, sourceIdx: idx})
		}
	}

	var out []sstable.KV
	var lastKey string
	haveLast := false

	for h.Len() > 0 {
		top := heap.Pop(h).(heapItem)
		if next, ok := sources[top.sourceIdx].Next(); ok {
			heap.Push(h, heapItem{kv: next, sourceIdx: top.sourceIdx})
		}

		if haveLast && lastKey == top.kv.Key {
			continue // a lower-priority source produced an already-kept key
		}
		out = append(out, top.kv)
		lastKey = top.kv.Key
		haveLast = true
	}
	return out
}

type heapItem struct {
	kv        sstable.KV
	sourceIdx int
}

type minHeap []heapItem

func (h minHeap) Len() int { return len(h) }

func (h minHeap) Less(i, j int) bool {
	if h[i].kv.Key != h[j].kv.Key {
		return h[i].kv.Key < h[j].kv.Key
	}
	return h[i].sourceIdx < h[j].sourceIdx
}

func (h minHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *minHeap) Push(x any) {
	*h = append(*h, x.(heapItem))
}

func (h *minHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
