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

package main

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/go-logr/logr"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/mad-hin/marco-fq/internal/logging"
	"github.com/mad-hin/marco-fq/pkg/fq"
	"github.com/mad-hin/marco-fq/pkg/fq/types"
)

// simPacket implements types.Packet for simulated traffic.
type simPacket struct {
	size     uint32
	sendTime time.Time
	hiPrio   bool
	flowID   uint64
	rate     uint64
	ceMarked bool

	enqueuedAt time.Time
}

func (p *simPacket) ByteSize() uint32           { return p.size }
func (p *simPacket) SendTime() time.Time        { return p.sendTime }
func (p *simPacket) SetSendTime(t time.Time)    { p.sendTime = t }
func (p *simPacket) HighPriority() bool         { return p.hiPrio }
func (p *simPacket) FlowID() (uint64, bool)     { return p.flowID, true }
func (p *simPacket) FlowGeneration() uint32     { return 0 }
func (p *simPacket) Hash() uint32               { return uint32(p.flowID) }
func (p *simPacket) MaxPacingRate() uint64      { return p.rate }
func (p *simPacket) MarkCongestionExperienced() { p.ceMarked = true }

var _ types.Packet = &simPacket{}

// wakeupRecorder is the simulation's watchdog: it remembers the next instant
// the virtual clock should jump to.
type wakeupRecorder struct {
	next time.Time
}

func (w *wakeupRecorder) ScheduleWakeup(at time.Time, _ time.Duration) { w.next = at }

func (w *wakeupRecorder) take() time.Time {
	at := w.next
	w.next = time.Time{}
	return at
}

// flowReport accumulates per-flow release observations.
type flowReport struct {
	id        uint64
	released  int
	bytes     uint64
	dropped   int
	firstOut  time.Time
	lastOut   time.Time
	ceMarks   int
	totalWait time.Duration
}

// achievedRate is the flow's served byte rate over its release window.
func (r *flowReport) achievedRate() float64 {
	window := r.lastOut.Sub(r.firstOut)
	if window <= 0 {
		return 0
	}
	return float64(r.bytes) / window.Seconds()
}

type simReport struct {
	flows    map[uint64]*flowReport
	released int
	elapsed  time.Duration
}

// maxRounds bounds the simulation loop so a wedged schedule cannot spin
// forever.
const maxRounds = 10_000_000

// simulate offers every flow's traffic on the virtual clock and drives the
// scheduler until the backlog drains, jumping the clock to each watchdog
// wakeup when nothing is ready.
func simulate(
	s *fq.Scheduler,
	clk *testingclock.FakePassiveClock,
	wd *wakeupRecorder,
	sc *scenario,
	logger logr.Logger,
) (*simReport, error) {
	start := clk.Now()
	report := &simReport{flows: make(map[uint64]*flowReport)}

	// Pending arrivals, ordered by their offer instant.
	type arrival struct {
		at  time.Time
		pkt *simPacket
	}
	var arrivals []arrival
	for _, ft := range sc.Flows {
		report.flows[ft.ID] = &flowReport{id: ft.ID}
		for i := 0; i < ft.Packets; i++ {
			arrivals = append(arrivals, arrival{
				at: start.Add(time.Duration(i) * ft.Interarrival),
				pkt: &simPacket{
					size:   ft.PacketSize,
					hiPrio: ft.HighPriority,
					flowID: ft.ID,
					rate:   ft.MaxPacingRate,
				},
			})
		}
	}
	sort.SliceStable(arrivals, func(i, j int) bool { return arrivals[i].at.Before(arrivals[j].at) })

	offered := 0
	for round := 0; ; round++ {
		if round >= maxRounds {
			return nil, fmt.Errorf("simulation did not drain after %d rounds", maxRounds)
		}
		now := clk.Now()

		for offered < len(arrivals) && !arrivals[offered].at.After(now) {
			a := arrivals[offered]
			offered++
			a.pkt.enqueuedAt = now
			if err := s.Enqueue(a.pkt); err != nil {
				report.flows[a.pkt.flowID].dropped++
				logger.V(logging.VERBOSE).Info("Packet dropped", "flow", a.pkt.flowID, "err", err)
			}
		}

		if pkt := s.Dequeue(); pkt != nil {
			p := pkt.(*simPacket)
			fr := report.flows[p.flowID]
			fr.released++
			fr.bytes += uint64(p.size)
			fr.totalWait += now.Sub(p.enqueuedAt)
			if fr.firstOut.IsZero() {
				fr.firstOut = now
			}
			fr.lastOut = now
			if p.ceMarked {
				fr.ceMarks++
			}
			report.released++
			continue
		}

		if s.Len() == 0 && offered == len(arrivals) {
			break
		}

		// Nothing ready: jump the virtual clock to whichever comes first,
		// the next arrival or the scheduler's requested wakeup.
		next := wd.take()
		if offered < len(arrivals) && (next.IsZero() || arrivals[offered].at.Before(next)) {
			next = arrivals[offered].at
		}
		if next.IsZero() || !next.After(now) {
			return nil, fmt.Errorf("scheduler idle with backlog %d and no wakeup", s.Len())
		}
		clk.SetTime(next)
	}

	report.elapsed = clk.Now().Sub(start)
	return report, nil
}

func (r *simReport) print(w io.Writer, stats fq.Stats) {
	ids := make([]uint64, 0, len(r.flows))
	for id := range r.flows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	fmt.Fprintf(w, "simulated %v of virtual time, released %d packets\n", r.elapsed, r.released)
	for _, id := range ids {
		fr := r.flows[id]
		avgWait := time.Duration(0)
		if fr.released > 0 {
			avgWait = fr.totalWait / time.Duration(fr.released)
		}
		fmt.Fprintf(w, "flow %d: released=%d dropped=%d bytes=%d rate=%.0fB/s avg_wait=%v ce=%d\n",
			id, fr.released, fr.dropped, fr.bytes, fr.achievedRate(), avgWait, fr.ceMarks)
	}
	fmt.Fprintf(w, "scheduler: throttle_events=%d gc_flows=%d horizon_drops=%d unthrottle_latency=%v\n",
		stats.ThrottleEvents, stats.GCFlows, stats.HorizonDrops, stats.UnthrottleLatency)
}
