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

// Package metrics exposes scheduler statistics as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mad-hin/marco-fq/pkg/fq"
)

var (
	descFlows = prometheus.NewDesc(
		"fq_flows",
		"The current flow-record population, active plus idle.",
		nil, nil,
	)
	descInactiveFlows = prometheus.NewDesc(
		"fq_inactive_flows",
		"The number of flow records currently detached and idle.",
		nil, nil,
	)
	descThrottledFlows = prometheus.NewDesc(
		"fq_throttled_flows",
		"The number of flows parked in the deferral index.",
		nil, nil,
	)
	descBacklogPackets = prometheus.NewDesc(
		"fq_backlog_packets",
		"The number of packets currently admitted.",
		nil, nil,
	)
	descBacklogBytes = prometheus.NewDesc(
		"fq_backlog_bytes",
		"The total byte size of the admitted backlog.",
		nil, nil,
	)
	descGCFlows = prometheus.NewDesc(
		"fq_gc_flows_total",
		"The total number of flow records reclaimed by garbage collection.",
		nil, nil,
	)
	descInternalPackets = prometheus.NewDesc(
		"fq_internal_packets_total",
		"The total number of packets served through the internal high-priority flow.",
		nil, nil,
	)
	descThrottleEvents = prometheus.NewDesc(
		"fq_throttle_events_total",
		"The total number of flow transitions into the deferral index.",
		nil, nil,
	)
	descCongestionMarks = prometheus.NewDesc(
		"fq_congestion_marks_total",
		"The total number of packets marked congestion-experienced on late release.",
		nil, nil,
	)
	descDrops = prometheus.NewDesc(
		"fq_drops_total",
		"The total number of packets dropped, partitioned by reason.",
		[]string{"reason"}, nil,
	)
	descHorizonCaps = prometheus.NewDesc(
		"fq_horizon_caps_total",
		"The total number of packet deadlines clamped to the horizon.",
		nil, nil,
	)
	descAllocationErrors = prometheus.NewDesc(
		"fq_allocation_errors_total",
		"The total number of flow-record allocations refused at the population cap.",
		nil, nil,
	)
	descPacketsTooLong = prometheus.NewDesc(
		"fq_packets_too_long_total",
		"The total number of pacing gaps clamped to the maximum delay.",
		nil, nil,
	)
	descUnthrottleLatency = prometheus.NewDesc(
		"fq_unthrottle_latency_seconds",
		"The smoothed estimate of how late throttled flows are released past their scheduled instant.",
		nil, nil,
	)
)

// StatsFunc supplies the snapshot a collection pass reads. It is typically
// `(*fq.Scheduler).Stats`.
type StatsFunc func() fq.Stats

type schedulerCollector struct {
	stats StatsFunc
}

var _ prometheus.Collector = &schedulerCollector{}

// NewSchedulerCollector returns a prometheus.Collector that reports the
// scheduler statistics returned by stats on every scrape.
func NewSchedulerCollector(stats StatsFunc) prometheus.Collector {
	return &schedulerCollector{stats: stats}
}

// Describe implements the prometheus.Collector interface.
func (c *schedulerCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- descFlows
	ch <- descInactiveFlows
	ch <- descThrottledFlows
	ch <- descBacklogPackets
	ch <- descBacklogBytes
	ch <- descGCFlows
	ch <- descInternalPackets
	ch <- descThrottleEvents
	ch <- descCongestionMarks
	ch <- descDrops
	ch <- descHorizonCaps
	ch <- descAllocationErrors
	ch <- descPacketsTooLong
	ch <- descUnthrottleLatency
}

// Collect implements the prometheus.Collector interface.
func (c *schedulerCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()

	ch <- prometheus.MustNewConstMetric(descFlows, prometheus.GaugeValue, float64(s.Flows))
	ch <- prometheus.MustNewConstMetric(descInactiveFlows, prometheus.GaugeValue, float64(s.InactiveFlows))
	ch <- prometheus.MustNewConstMetric(descThrottledFlows, prometheus.GaugeValue, float64(s.ThrottledFlows))
	ch <- prometheus.MustNewConstMetric(descBacklogPackets, prometheus.GaugeValue, float64(s.Backlog))
	ch <- prometheus.MustNewConstMetric(descBacklogBytes, prometheus.GaugeValue, float64(s.BacklogBytes))
	ch <- prometheus.MustNewConstMetric(descGCFlows, prometheus.CounterValue, float64(s.GCFlows))
	ch <- prometheus.MustNewConstMetric(descInternalPackets, prometheus.CounterValue, float64(s.InternalPackets))
	ch <- prometheus.MustNewConstMetric(descThrottleEvents, prometheus.CounterValue, float64(s.ThrottleEvents))
	ch <- prometheus.MustNewConstMetric(descCongestionMarks, prometheus.CounterValue, float64(s.CongestionMarks))
	ch <- prometheus.MustNewConstMetric(descDrops, prometheus.CounterValue, float64(s.HorizonDrops), "horizon")
	ch <- prometheus.MustNewConstMetric(descDrops, prometheus.CounterValue, float64(s.FlowLimitDrops), "flow_limit")
	ch <- prometheus.MustNewConstMetric(descDrops, prometheus.CounterValue, float64(s.QueueLimitDrops), "queue_limit")
	ch <- prometheus.MustNewConstMetric(descHorizonCaps, prometheus.CounterValue, float64(s.HorizonCaps))
	ch <- prometheus.MustNewConstMetric(descAllocationErrors, prometheus.CounterValue, float64(s.AllocationErrors))
	ch <- prometheus.MustNewConstMetric(descPacketsTooLong, prometheus.CounterValue, float64(s.PacketsTooLong))
	ch <- prometheus.MustNewConstMetric(descUnthrottleLatency, prometheus.GaugeValue, s.UnthrottleLatency.Seconds())
}
