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

import "time"

// Stats is a point-in-time snapshot of the scheduler's counters, taken under
// the scheduler lock. Monotonic counters survive Reset; population and
// backlog gauges do not.
type Stats struct {
	// Flows is the current flow-record population (active plus idle,
	// excluding the internal flow).
	Flows int
	// InactiveFlows is how many records are detached/idle.
	InactiveFlows int
	// ThrottledFlows is how many flows sit in the deferral index.
	ThrottledFlows int

	// Backlog is the number of packets currently admitted.
	Backlog int
	// BacklogBytes is their total byte size.
	BacklogBytes uint64

	// GCFlows counts flow records reclaimed by garbage collection, including
	// records discarded during a rehash.
	GCFlows uint64
	// InternalPackets counts packets served through the internal
	// high-priority flow.
	InternalPackets uint64
	// ThrottleEvents counts flow transitions into the deferral index.
	ThrottleEvents uint64
	// CongestionMarks counts packets marked congestion-experienced.
	CongestionMarks uint64
	// HorizonDrops counts packets dropped under the horizon-drop policy.
	HorizonDrops uint64
	// HorizonCaps counts deadlines clamped under the horizon-cap policy.
	HorizonCaps uint64
	// FlowLimitDrops counts packets rejected by the per-flow packet limit.
	FlowLimitDrops uint64
	// QueueLimitDrops counts packets rejected by the global packet limit.
	QueueLimitDrops uint64
	// AllocationErrors counts flow-record allocations refused at the
	// population cap; the affected packets were degraded to the internal
	// flow, not dropped.
	AllocationErrors uint64
	// PacketsTooLong counts pacing delays clamped to the 1 s maximum.
	PacketsTooLong uint64

	// UnthrottleLatency is the smoothed estimate of how late throttled flows
	// are released past their scheduled instant.
	UnthrottleLatency time.Duration

	// NextWakeup is the earliest pending deferral instant, or the zero time
	// when no flow is throttled.
	NextWakeup time.Time
}
