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
	"time"

	rb "github.com/glycerine/rbtree"
)

// deferralIndex holds throttled flows ordered by their next-allowed-send
// instant. It tracks the earliest pending instant for wakeup scheduling and
// a smoothed estimate of how late flows are typically released past their
// scheduled time (observability only).
type deferralIndex struct {
	tree *rb.Tree

	// next is the earliest nextSchedule among parked flows, or the zero time
	// when the index is empty. It may briefly point earlier than the true
	// minimum after a flow is removed out of band; the cost is one spurious
	// wakeup.
	next time.Time

	count int

	// releaseLag is an EWMA (1/8 weight) of how far past its scheduled
	// instant the earliest flow was actually released.
	releaseLag time.Duration
}

func newDeferralIndex() *deferralIndex {
	return &deferralIndex{
		tree: rb.NewTree(func(a, b rb.Item) int {
			av := a.(*flow)
			bv := b.(*flow)
			if av == bv {
				return 0
			}
			if av.nextSchedule.Before(bv.nextSchedule) {
				return -1
			}
			if av.nextSchedule.After(bv.nextSchedule) {
				return 1
			}
			return av.key.Compare(bv.key)
		}),
	}
}

// insert parks f, keyed by its current nextSchedule. The flow's nextSchedule
// must not change until it is removed.
func (d *deferralIndex) insert(f *flow) {
	f.state = flowStateThrottled
	f.next = nil
	d.tree.InsertGetIt(f)
	d.count++
	if d.next.IsZero() || f.nextSchedule.Before(d.next) {
		d.next = f.nextSchedule
	}
}

// remove takes f out of the index without waiting for it to come due (e.g.,
// on identity reuse). The cached minimum is intentionally left alone.
func (d *deferralIndex) remove(f *flow) {
	d.tree.DeleteWithKey(f)
	d.count--
}

// popDue releases every flow whose next-allowed-send instant is at or before
// now, in deadline order, and re-aims the cached minimum at the earliest
// still-pending flow. It also folds the observed release lag into the EWMA.
func (d *deferralIndex) popDue(now time.Time) []*flow {
	if d.next.IsZero() || d.next.After(now) {
		return nil
	}

	sample := now.Sub(d.next)
	d.releaseLag -= d.releaseLag >> 3
	d.releaseLag += sample >> 3

	d.next = time.Time{}
	var due []*flow
	for {
		it := d.tree.Min()
		if it == d.tree.Limit() {
			break
		}
		f := it.Item().(*flow)
		if f.nextSchedule.After(now) {
			d.next = f.nextSchedule
			break
		}
		d.tree.DeleteWithIterator(it)
		d.count--
		due = append(due, f)
	}
	return due
}

// reset empties the index.
func (d *deferralIndex) reset() {
	d.tree = newDeferralIndex().tree
	d.next = time.Time{}
	d.count = 0
}
