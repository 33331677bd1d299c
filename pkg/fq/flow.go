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

	"github.com/mad-hin/marco-fq/pkg/fq/types"
)

// queuedPacket is the scheduler's per-packet envelope. It carries the
// effective time-to-send (which may differ from the host-visible deadline
// field when the packet arrived without one) and the intrusive link for the
// flow's in-order FIFO.
type queuedPacket struct {
	pkt types.Packet

	// sendAt is the effective earliest-departure instant.
	sendAt time.Time

	// seq is the global arrival sequence number; it breaks sendAt ties in the
	// out-of-order tree so equal deadlines keep arrival order.
	seq uint64

	// next links the packet into its flow's FIFO. nil while the packet sits
	// in the out-of-order tree.
	next *queuedPacket
}

// newPacketTree builds the deadline-ordered spillover tree for packets that
// arrive with a deadline earlier than the current FIFO tail.
func newPacketTree() *rb.Tree {
	return rb.NewTree(func(a, b rb.Item) int {
		av := a.(*queuedPacket)
		bv := b.(*queuedPacket)
		if av == bv {
			return 0
		}
		if av.sendAt.Before(bv.sendAt) {
			return -1
		}
		if av.sendAt.After(bv.sendAt) {
			return 1
		}
		if av.seq < bv.seq {
			return -1
		}
		if av.seq > bv.seq {
			return 1
		}
		return 0
	})
}

// flowState is the membership tag for a flow record. A flow is in exactly one
// of these states at any time.
type flowState uint8

const (
	// flowStateDetached: the flow's queue is empty; the record is retained
	// (awaiting either reuse or garbage collection) and sits on no list.
	flowStateDetached flowState = iota

	// flowStateNew: the flow is on the new-flows activation list.
	flowStateNew

	// flowStateOld: the flow is on the old-flows activation list.
	flowStateOld

	// flowStateThrottled: the flow is parked in the deferral index until its
	// next-allowed-send instant.
	flowStateThrottled

	// flowStateInternal: the record is the scheduler's internal high-priority
	// flow. It never joins activation lists and is never garbage collected.
	flowStateInternal
)

// flow is the per-flow record: identity, packet ordering structures, service
// credit, and pacing state.
//
// Packet ordering follows the common/rare split: packets whose deadlines
// arrive in non-decreasing order live in an O(1) intrusive FIFO
// (head/tail); a packet with a deadline earlier than the current tail spills
// into the deadline-ordered tree. A flow is empty when both are.
type flow struct {
	key types.FlowKey

	// generation detects reuse of a connection identity. A mismatch against
	// an arriving packet means the underlying connection was recycled, so the
	// record's credit and pacing state are reset.
	generation uint32

	head, tail *queuedPacket
	outOfOrder *rb.Tree // lazily allocated; most flows never need it
	qlen       int

	// credit is the byte budget remaining in the current round-robin pass.
	// It goes negative on the last packet of a pass, triggering
	// refill-and-rotate.
	credit int64

	// nextSchedule is the pacing gate: the flow may not emit before this
	// instant. The zero time means unconstrained. Must not change while the
	// flow sits in the deferral index, whose ordering depends on it.
	nextSchedule time.Time

	state flowState

	// idleSince is meaningful only while state == flowStateDetached; it is
	// the instant the flow's queue drained, consulted by garbage collection
	// and by the credit refill-delay check.
	idleSince time.Time

	// next links the flow into an activation list.
	next *flow
}

// setDetached parks the flow in the detached state, recording when it went
// idle.
func (f *flow) setDetached(now time.Time) {
	f.state = flowStateDetached
	f.idleSince = now
	f.next = nil
}

// empty reports whether the flow holds no packets.
func (f *flow) empty() bool {
	return f.head == nil && (f.outOfOrder == nil || f.outOfOrder.Len() == 0)
}

// peek returns the queued packet with the smallest effective send time, or
// nil if the flow is empty. Ties between the tree minimum and the FIFO head
// favor the FIFO.
func (f *flow) peek() *queuedPacket {
	var treeMin *queuedPacket
	if f.outOfOrder != nil && f.outOfOrder.Len() > 0 {
		treeMin = f.outOfOrder.Min().Item().(*queuedPacket)
	}
	if treeMin == nil {
		return f.head
	}
	if f.head == nil {
		return treeMin
	}
	if treeMin.sendAt.Before(f.head.sendAt) {
		return treeMin
	}
	return f.head
}

// push inserts a packet: O(1) FIFO append when its send time is no earlier
// than the current tail's, otherwise into the deadline-ordered tree.
func (f *flow) push(qp *queuedPacket) {
	f.qlen++
	if f.head == nil {
		qp.next = nil
		f.head = qp
		f.tail = qp
		return
	}
	if !qp.sendAt.Before(f.tail.sendAt) {
		qp.next = nil
		f.tail.next = qp
		f.tail = qp
		return
	}
	if f.outOfOrder == nil {
		f.outOfOrder = newPacketTree()
	}
	f.outOfOrder.InsertGetIt(qp)
}

// removeHead detaches qp from whichever structure supplied it. qp must be the
// return value of a prior peek.
func (f *flow) removeHead(qp *queuedPacket) {
	if qp == f.head {
		f.head = qp.next
		if f.head == nil {
			f.tail = nil
		}
	} else {
		f.outOfOrder.DeleteWithKey(qp)
	}
	qp.next = nil
	f.qlen--
}

// purge drops every queued packet and returns how many were held.
func (f *flow) purge() int {
	n := f.qlen
	f.head = nil
	f.tail = nil
	f.outOfOrder = nil
	f.qlen = 0
	return n
}

// flowList is a FIFO of flow records, linked through flow.next. The
// scheduler keeps two: new flows (served first, once) and old flows (the
// steady-state round-robin ring).
type flowList struct {
	first, last *flow
}

// pushTail appends f to the list.
func (l *flowList) pushTail(f *flow) {
	if l.first == nil {
		l.first = f
	} else {
		l.last.next = f
	}
	l.last = f
	f.next = nil
}

// popHead removes and returns the list head, or nil if the list is empty.
func (l *flowList) popHead() *flow {
	f := l.first
	if f == nil {
		return nil
	}
	l.first = f.next
	if l.first == nil {
		l.last = nil
	}
	f.next = nil
	return f
}

// reset empties the list without touching the flows it held.
func (l *flowList) reset() {
	l.first = nil
	l.last = nil
}
