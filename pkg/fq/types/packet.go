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

package types

import "time"

// Packet is the host-owned unit of work the scheduler orders and releases.
//
// The scheduler holds a packet from a successful `Enqueue` until it is
// returned by `Dequeue`, dropped under a capacity or horizon policy, or
// drained by `Reset`/`ApplyConfig`. While held, the packet must not be
// mutated by the host.
type Packet interface {
	// ByteSize returns the packet's wire length in bytes. It is the unit of
	// credit accounting and pacing-delay computation.
	ByteSize() uint32

	// SendTime returns the host-assigned earliest-departure deadline, or the
	// zero time if the host did not assign one. Packets without a deadline
	// are stamped with the arrival time and remain eligible for pacing.
	SendTime() time.Time

	// SetSendTime overwrites the deadline field. The scheduler calls this
	// only when capping a deadline that exceeds the configured horizon.
	SetSendTime(t time.Time)

	// HighPriority reports whether the packet bypasses fair queueing and is
	// served from the internal flow ahead of all round-robin traffic.
	HighPriority() bool

	// FlowID returns the stable surrogate key of the owning connection.
	// ok is false for packets with no usable connection identity; such
	// packets are classified into orphan hash buckets instead.
	FlowID() (id uint64, ok bool)

	// FlowGeneration disambiguates reuse of a connection identity. When a
	// flow record is found under a key but the generation differs, the
	// scheduler treats the connection as recycled and resets the record's
	// credit and pacing state.
	FlowGeneration() uint32

	// Hash returns a stable hash of packet attributes, used to synthesize an
	// orphan flow identity when FlowID reports none.
	Hash() uint32

	// MaxPacingRate returns the owning connection's pacing cap in bytes per
	// second, or 0 if the connection does not constrain its rate.
	MaxPacingRate() uint64

	// MarkCongestionExperienced applies a non-dropping congestion signal to
	// the packet. The scheduler sets it on packets released later than their
	// scheduled pacing instant by more than the configured threshold.
	MarkCongestionExperienced()
}
