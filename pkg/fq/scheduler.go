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
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/utils/clock"

	"github.com/mad-hin/marco-fq/internal/logging"
	"github.com/mad-hin/marco-fq/pkg/fq/contracts"
	"github.com/mad-hin/marco-fq/pkg/fq/types"
)

// Scheduler is a per-flow fair-queueing packet scheduler with rate pacing.
//
// Packets are classified into flows, ordered within each flow by effective
// send time, and released one per Dequeue call under a two-list round-robin
// credit discipline: flows enter the new-flows list on activation, are served
// a quantum of bytes per pass, and rotate through the old-flows list until
// they drain. Flows gated on a future instant (an explicit deadline or a
// pacing schedule) park in a time-ordered deferral index and re-enter the
// old-flows list when due.
//
// Enqueue and Dequeue are expected to be driven by a single logical caller;
// configuration changes may originate elsewhere. One exclusive lock
// serializes all of it.
type Scheduler struct {
	mu       sync.Mutex
	config   *Config
	clock    clock.PassiveClock
	watchdog contracts.Watchdog
	logger   logr.Logger

	table    *flowTable
	newFlows flowList
	oldFlows flowList
	deferred *deferralIndex

	// internal serves unclassifiable and high-priority traffic. It bypasses
	// round-robin entirely and is exempt from the per-flow limit.
	internal flow

	// seq stamps arrival order onto packet envelopes.
	seq uint64

	backlogPackets int
	backlogBytes   uint64

	statInternalPackets uint64
	statThrottleEvents  uint64
	statCongestionMarks uint64
	statHorizonDrops    uint64
	statHorizonCaps     uint64
	statFlowLimitDrops  uint64
	statQueueLimitDrops uint64
	statAllocErrors     uint64
	statPacketsTooLong  uint64
}

// NewScheduler builds a scheduler around the given configuration and host
// services. A nil config selects the defaults. The watchdog may be nil for
// hosts that poll Dequeue on their own cadence.
func NewScheduler(
	config *Config,
	clk clock.PassiveClock,
	watchdog contracts.Watchdog,
	logger logr.Logger,
) (*Scheduler, error) {
	if config == nil {
		var err error
		config, err = NewConfig()
		if err != nil {
			return nil, err
		}
	} else if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid scheduler config: %w", err)
	}
	if clk == nil {
		clk = clock.RealClock{}
	}

	cfg := *config
	s := &Scheduler{
		config:   &cfg,
		clock:    clk,
		watchdog: watchdog,
		logger:   logger.WithName("fq-scheduler"),
		table:    newFlowTable(cfg.ShardExponent, cfg.MaxFlows),
		deferred: newDeferralIndex(),
	}
	s.internal.state = flowStateInternal
	s.logger.V(logging.DEFAULT).Info("Scheduler initialized",
		"shards", 1<<cfg.ShardExponent, "quantum", cfg.Quantum, "pacing", cfg.PacingEnabled)
	return s, nil
}

// Enqueue admits one packet.
//
// It returns nil when the packet was accepted (or silently consumed by the
// horizon-drop policy, which is counted but never surfaced). A non-nil error
// wraps types.ErrDropped: the packet was not admitted and the caller should
// account for a single drop.
func (s *Scheduler) Enqueue(pkt types.Packet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.backlogPackets >= int(s.config.PacketLimit) {
		s.statQueueLimitDrops++
		return types.ErrQueueCapacity
	}

	now := s.clock.Now()
	qp := &queuedPacket{pkt: pkt, seq: s.seq}
	s.seq++

	if deadline := pkt.SendTime(); deadline.IsZero() {
		qp.sendAt = now
	} else {
		if deadline.After(now.Add(s.config.Horizon)) {
			if s.config.HorizonPolicy == HorizonPolicyDrop {
				s.statHorizonDrops++
				return nil
			}
			s.statHorizonCaps++
			deadline = now.Add(s.config.Horizon)
			pkt.SetSendTime(deadline)
		}
		qp.sendAt = deadline
	}

	f := s.classify(pkt, now)
	if f != &s.internal && f.qlen >= int(s.config.FlowPacketLimit) {
		s.statFlowLimitDrops++
		return types.ErrFlowCapacity
	}

	if f.state == flowStateDetached {
		// The refill-delay check must read idleSince before activation
		// invalidates it.
		if now.After(f.idleSince.Add(s.config.FlowRefillDelay)) {
			if quantum := int64(s.config.Quantum); f.credit < quantum {
				f.credit = quantum
			}
		}
		f.state = flowStateNew
		s.newFlows.pushTail(f)
		s.table.noteActivated()
	}

	f.push(qp)
	if f == &s.internal {
		s.statInternalPackets++
	}
	s.backlogPackets++
	s.backlogBytes += uint64(pkt.ByteSize())
	return nil
}

// classify resolves the flow record a packet belongs to, creating one when
// the identity is unseen. Highest-priority packets, and packets whose record
// cannot be allocated, go to the internal flow.
func (s *Scheduler) classify(pkt types.Packet, now time.Time) *flow {
	if pkt.HighPriority() {
		return &s.internal
	}

	var key types.FlowKey
	if id, ok := pkt.FlowID(); ok {
		key = types.FlowKey{ID: id, Kind: types.FlowKindConnection}
	} else {
		key = types.FlowKey{ID: uint64(pkt.Hash() & s.config.OrphanMask), Kind: types.FlowKindOrphan}
	}

	f, created, err := s.table.lookupOrCreate(key, int64(s.config.InitialQuantum), now)
	if err != nil {
		s.statAllocErrors++
		s.logger.V(logging.VERBOSE).Info("Flow allocation refused, degrading to internal flow", "flowKey", key)
		return &s.internal
	}
	if created {
		f.generation = pkt.FlowGeneration()
		s.logger.V(logging.DEBUG).Info("Created flow record", "flowKey", key)
		return f
	}

	// A generation mismatch on a connection key means the identity was
	// recycled for a new connection: restore initial credit and clear any
	// pacing state inherited from the old one.
	if key.Kind == types.FlowKindConnection && f.generation != pkt.FlowGeneration() {
		f.generation = pkt.FlowGeneration()
		f.credit = int64(s.config.InitialQuantum)
		if f.state == flowStateThrottled {
			s.deferred.remove(f)
			f.state = flowStateOld
			s.oldFlows.pushTail(f)
		}
		f.nextSchedule = time.Time{}
		s.logger.V(logging.DEBUG).Info("Flow identity recycled, credit restored", "flowKey", key)
	}
	return f
}

// Dequeue releases at most one packet. It returns nil when nothing is ready;
// if throttled flows are pending it first arms the watchdog with the
// earliest deferral instant.
func (s *Scheduler) Dequeue() types.Packet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dequeueLocked()
}

func (s *Scheduler) dequeueLocked() types.Packet {
	if s.backlogPackets == 0 {
		return nil
	}

	// Internal traffic bypasses round-robin, credit, and pacing.
	if qp := s.internal.peek(); qp != nil {
		s.internal.removeHead(qp)
		s.backlogPackets--
		s.backlogBytes -= uint64(qp.pkt.ByteSize())
		return qp.pkt
	}

	now := s.clock.Now()
	for _, f := range s.deferred.popDue(now) {
		f.state = flowStateOld
		s.oldFlows.pushTail(f)
	}

	for {
		head := &s.newFlows
		f := head.first
		if f == nil {
			head = &s.oldFlows
			f = head.first
			if f == nil {
				if !s.deferred.next.IsZero() && s.watchdog != nil {
					s.watchdog.ScheduleWakeup(s.deferred.next, s.config.TimerSlack)
				}
				return nil
			}
		}

		if f.credit <= 0 {
			// Turn over: refill one quantum and rotate to the old list. A
			// flow exhausted on the new list is demoted, never re-queued as
			// new.
			f.credit += int64(s.config.Quantum)
			head.popHead()
			f.state = flowStateOld
			s.oldFlows.pushTail(f)
			continue
		}

		qp := f.peek()
		if qp == nil {
			head.popHead()
			if head == &s.newFlows && s.oldFlows.first != nil {
				// Force one pass through the old list before idling so a
				// drained new flow cannot starve old flows of their turn.
				f.state = flowStateOld
				s.oldFlows.pushTail(f)
			} else {
				f.setDetached(now)
				s.table.noteDetached()
			}
			continue
		}

		sendAt := qp.sendAt
		if f.nextSchedule.After(sendAt) {
			sendAt = f.nextSchedule
		}
		if now.Before(sendAt) {
			head.popHead()
			f.nextSchedule = sendAt
			s.deferred.insert(f)
			s.statThrottleEvents++
			continue
		}

		if s.config.PacingEnabled && now.Sub(sendAt) > s.config.CongestionThreshold {
			qp.pkt.MarkCongestionExperienced()
			s.statCongestionMarks++
		}

		f.removeHead(qp)
		s.backlogPackets--
		s.backlogBytes -= uint64(qp.pkt.ByteSize())
		f.credit -= int64(qp.pkt.ByteSize())

		if s.config.PacingEnabled {
			s.pace(f, qp, now)
		}
		return qp.pkt
	}
}

// pace computes the flow's next-allowed-send instant after releasing qp.
//
// Packets that carried an explicit deadline are already spaced by the host;
// they are re-paced only against the global flow rate cap. Packets without
// one are paced against the tighter of the connection's own rate cap and the
// global cap, except that very low rates degrade to quantum-at-a-time
// service (forcing a rotation instead of a per-packet gap).
func (s *Scheduler) pace(f *flow, qp *queuedPacket, now time.Time) {
	plen := int64(qp.pkt.ByteSize())
	rate := s.config.FlowMaxRate // 0 = unlimited

	if qp.pkt.SendTime().IsZero() {
		if r := qp.pkt.MaxPacingRate(); r != 0 && (rate == 0 || r < rate) {
			rate = r
		}
		if rate != 0 && rate <= s.config.LowRateThreshold {
			f.credit = 0
		} else {
			if quantum := int64(s.config.Quantum); plen < quantum {
				plen = quantum
			}
			if f.credit > 0 {
				return
			}
		}
	}

	if rate == 0 {
		return
	}

	delay := time.Duration(uint64(plen) * uint64(time.Second) / rate)
	if delay > maxPacingDelay {
		delay = maxPacingDelay
		s.statPacketsTooLong++
	}
	// Account for scheduling drift: the prior schedule was set when the
	// previous packet left, and now can lag it by tens of microseconds.
	if !f.nextSchedule.IsZero() {
		if elapsed := now.Sub(f.nextSchedule); elapsed > 0 {
			if elapsed > delay/2 {
				elapsed = delay / 2
			}
			delay -= elapsed
		}
	}
	f.nextSchedule = now.Add(delay)
}

// Reset drops every queued packet and returns the scheduler to its empty
// state. Monotonic counters are preserved. Calling Reset on an empty
// scheduler is a no-op.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.internal.purge()
	s.table.walk(func(f *flow) { f.purge() })
	s.table.purge()
	s.newFlows.reset()
	s.oldFlows.reset()
	s.deferred.reset()
	s.backlogPackets = 0
	s.backlogBytes = 0
	s.logger.V(logging.DEFAULT).Info("Scheduler reset")
}

// Resize re-shards the flow table to 1<<exp shards. Re-sharding to the
// current exponent is a no-op. An out-of-range exponent leaves the table
// untouched and returns an error.
func (s *Scheduler) Resize(exp uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resizeLocked(exp)
}

func (s *Scheduler) resizeLocked(exp uint8) error {
	if exp < minShardExponent || exp > maxShardExponent {
		return fmt.Errorf("shard exponent must be in [%d, %d], got %d",
			minShardExponent, maxShardExponent, exp)
	}
	if exp == s.table.log {
		return nil
	}
	s.table.rehash(exp, s.clock.Now())
	s.config.ShardExponent = exp
	s.logger.V(logging.DEFAULT).Info("Flow table resized", "shards", 1<<exp)
	return nil
}

// ApplyConfig applies a partial configuration update. The delta is validated
// in full before anything is committed; on error the running configuration
// is unchanged. If the update lowers the packet limit, the excess backlog is
// force-drained in regular dequeue order and returned to the caller for drop
// accounting.
func (s *Scheduler) ApplyConfig(delta *ConfigDelta) ([]types.Packet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidate := *s.config
	delta.apply(&candidate)
	if err := candidate.validate(); err != nil {
		return nil, fmt.Errorf("invalid config delta: %w", err)
	}

	oldExp := s.config.ShardExponent
	*s.config = candidate
	if candidate.ShardExponent != oldExp {
		// Already validated; resizeLocked cannot fail here.
		s.config.ShardExponent = oldExp
		if err := s.resizeLocked(candidate.ShardExponent); err != nil {
			return nil, err
		}
	}

	var drained []types.Packet
	for s.backlogPackets > int(s.config.PacketLimit) {
		pkt := s.dequeueLocked()
		if pkt == nil {
			break
		}
		drained = append(drained, pkt)
	}
	s.logger.V(logging.DEFAULT).Info("Configuration applied", "drained", len(drained))
	return drained, nil
}

// Stats returns a snapshot of the scheduler's counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Flows:             s.table.flows,
		InactiveFlows:     s.table.inactive,
		ThrottledFlows:    s.deferred.count,
		Backlog:           s.backlogPackets,
		BacklogBytes:      s.backlogBytes,
		GCFlows:           s.table.reclaimed,
		InternalPackets:   s.statInternalPackets,
		ThrottleEvents:    s.statThrottleEvents,
		CongestionMarks:   s.statCongestionMarks,
		HorizonDrops:      s.statHorizonDrops,
		HorizonCaps:       s.statHorizonCaps,
		FlowLimitDrops:    s.statFlowLimitDrops,
		QueueLimitDrops:   s.statQueueLimitDrops,
		AllocationErrors:  s.statAllocErrors,
		PacketsTooLong:    s.statPacketsTooLong,
		UnthrottleLatency: s.deferred.releaseLag,
		NextWakeup:        s.deferred.next,
	}
}

// Len returns the number of packets currently admitted.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backlogPackets
}
