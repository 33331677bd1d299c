/*
Copyright 2025 The marco-fq Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package fq

import (
	"errors"
	"time"

	rb "github.com/glycerine/rbtree"

	"github.com/mad-hin/marco-fq/pkg/fq/types"
)

const (
	// gcMaxCollected bounds how many idle records a single garbage-collection
	// pass may reclaim, amortizing the cost across enqueues.
	gcMaxCollected = 8

	// gcMinIdleAge is the minimum time a detached flow must have been idle
	// before it becomes eligible for reclamation.
	gcMinIdleAge = 3 * time.Second
)

// errTableFull reports that the flow table refused to allocate another
// record. The caller degrades the packet to the internal flow instead of
// failing the enqueue.
var errTableFull = errors.New("flow table at capacity")

// newFlowShard builds one shard index: an ordered tree of flow records keyed
// by flow identity.
func newFlowShard() *rb.Tree {
	return rb.NewTree(func(a, b rb.Item) int {
		return a.(*flow).key.Compare(b.(*flow).key)
	})
}

// flowTable is the sharded index of flow records. The identity space is
// split across 1<<log shards, each an ordered tree giving O(log n)
// lookup/insert without requiring hashable identities.
//
// The table also owns the population counters: total records and how many of
// them are detached (idle). Both drive the amortized GC trigger.
type flowTable struct {
	shards []*rb.Tree
	log    uint8

	// maxFlows caps the total record population. At the cap, creation fails
	// and the scheduler falls back to the internal flow, preserving forward
	// progress.
	maxFlows int

	flows    int
	inactive int

	// reclaimed counts records freed by GC, including those discarded during
	// a rehash.
	reclaimed uint64
}

func newFlowTable(log uint8, maxFlows int) *flowTable {
	t := &flowTable{
		shards:   make([]*rb.Tree, 1<<log),
		log:      log,
		maxFlows: maxFlows,
	}
	for i := range t.shards {
		t.shards[i] = newFlowShard()
	}
	return t
}

// hashGolden is the 64-bit golden-ratio multiplier for shard selection.
const hashGolden = 0x61C8864680B583EB

// shard returns the shard index tree responsible for the given identity.
func (t *flowTable) shard(key types.FlowKey) *rb.Tree {
	h := (key.ID<<1 | uint64(key.Kind)) * hashGolden
	return t.shards[h>>(64-t.log)]
}

// lookup finds the record for key within root, or nil.
func (t *flowTable) lookup(root *rb.Tree, key types.FlowKey) *flow {
	probe := &flow{key: key}
	it := root.FindGE(probe)
	if it == root.Limit() {
		return nil
	}
	if f := it.Item().(*flow); f.key.Compare(key) == 0 {
		return f
	}
	return nil
}

// overloaded reports whether the population justifies an amortized GC pass
// before the next insertion: the table holds more than two records per shard
// and over half of them are idle.
func (t *flowTable) overloaded() bool {
	return t.flows >= 2<<t.log && t.inactive > t.flows/2
}

// gcCandidate reports whether f has been idle long enough to reclaim.
func gcCandidate(f *flow, now time.Time) bool {
	return f.state == flowStateDetached && now.After(f.idleSince.Add(gcMinIdleAge))
}

// gc reclaims up to gcMaxCollected eligible records from root, skipping the
// identity about to be inserted. Returns how many records were freed.
func (t *flowTable) gc(root *rb.Tree, skip types.FlowKey, now time.Time) int {
	tofree := make([]*flow, 0, gcMaxCollected)
	for it := root.Min(); it != root.Limit(); it = it.Next() {
		f := it.Item().(*flow)
		if f.key.Compare(skip) == 0 {
			continue
		}
		if gcCandidate(f, now) {
			tofree = append(tofree, f)
			if len(tofree) == gcMaxCollected {
				break
			}
		}
	}
	for _, f := range tofree {
		root.DeleteWithKey(f)
	}
	n := len(tofree)
	t.flows -= n
	t.inactive -= n
	t.reclaimed += uint64(n)
	return n
}

// lookupOrCreate returns the record for key, allocating a fresh detached one
// if none exists. Reclaimed identities always get a brand-new record; stale
// state is never resurrected.
func (t *flowTable) lookupOrCreate(key types.FlowKey, initialCredit int64, now time.Time) (f *flow, created bool, err error) {
	root := t.shard(key)
	if t.overloaded() {
		t.gc(root, key, now)
	}

	if f := t.lookup(root, key); f != nil {
		return f, false, nil
	}

	if t.flows >= t.maxFlows {
		return nil, false, errTableFull
	}

	f = &flow{
		key:    key,
		credit: initialCredit,
	}
	f.setDetached(now)
	root.InsertGetIt(f)
	t.flows++
	t.inactive++
	return f, true, nil
}

// noteActivated records a detached flow leaving the idle population.
func (t *flowTable) noteActivated() { t.inactive-- }

// noteDetached records a flow rejoining the idle population.
func (t *flowTable) noteDetached() { t.inactive++ }

// rehash re-shards every surviving record into a layout of 1<<newLog shards,
// discarding GC-eligible records encountered during the walk. Callers must
// hold the scheduler's exclusive lock for the duration.
func (t *flowTable) rehash(newLog uint8, now time.Time) {
	shards := make([]*rb.Tree, 1<<newLog)
	for i := range shards {
		shards[i] = newFlowShard()
	}

	freed := 0
	old := t.shards
	t.shards = shards
	t.log = newLog
	for _, root := range old {
		for it := root.Min(); it != root.Limit(); it = it.Next() {
			f := it.Item().(*flow)
			if gcCandidate(f, now) {
				freed++
				continue
			}
			t.shard(f.key).InsertGetIt(f)
		}
	}
	t.flows -= freed
	t.inactive -= freed
	t.reclaimed += uint64(freed)
}

// walk invokes fn for every record in the table.
func (t *flowTable) walk(fn func(*flow)) {
	for _, root := range t.shards {
		for it := root.Min(); it != root.Limit(); it = it.Next() {
			fn(it.Item().(*flow))
		}
	}
}

// purge discards every record, leaving the shard layout in place.
func (t *flowTable) purge() {
	for i := range t.shards {
		t.shards[i] = newFlowShard()
	}
	t.flows = 0
	t.inactive = 0
}
