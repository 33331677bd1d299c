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

package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mad-hin/marco-fq/pkg/fq"
)

func TestSchedulerCollector(t *testing.T) {
	t.Parallel()

	snapshot := fq.Stats{
		Flows:             12,
		InactiveFlows:     3,
		ThrottledFlows:    2,
		Backlog:           40,
		BacklogBytes:      60000,
		GCFlows:           5,
		InternalPackets:   7,
		ThrottleEvents:    90,
		CongestionMarks:   1,
		HorizonDrops:      4,
		HorizonCaps:       6,
		FlowLimitDrops:    8,
		QueueLimitDrops:   9,
		AllocationErrors:  2,
		PacketsTooLong:    1,
		UnthrottleLatency: 250 * time.Microsecond,
	}
	c := NewSchedulerCollector(func() fq.Stats { return snapshot })

	expected := `
		# HELP fq_backlog_bytes The total byte size of the admitted backlog.
		# TYPE fq_backlog_bytes gauge
		fq_backlog_bytes 60000
		# HELP fq_backlog_packets The number of packets currently admitted.
		# TYPE fq_backlog_packets gauge
		fq_backlog_packets 40
		# HELP fq_drops_total The total number of packets dropped, partitioned by reason.
		# TYPE fq_drops_total counter
		fq_drops_total{reason="flow_limit"} 8
		fq_drops_total{reason="horizon"} 4
		fq_drops_total{reason="queue_limit"} 9
		# HELP fq_flows The current flow-record population, active plus idle.
		# TYPE fq_flows gauge
		fq_flows 12
		# HELP fq_throttled_flows The number of flows parked in the deferral index.
		# TYPE fq_throttled_flows gauge
		fq_throttled_flows 2
		# HELP fq_unthrottle_latency_seconds The smoothed estimate of how late throttled flows are released past their scheduled instant.
		# TYPE fq_unthrottle_latency_seconds gauge
		fq_unthrottle_latency_seconds 0.00025
	`
	err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"fq_backlog_bytes",
		"fq_backlog_packets",
		"fq_drops_total",
		"fq_flows",
		"fq_throttled_flows",
		"fq_unthrottle_latency_seconds",
	)
	require.NoError(t, err)

	assert.Equal(t, 16, testutil.CollectAndCount(c), "every snapshot field must be reported")
}

func TestSchedulerCollector_Lint(t *testing.T) {
	t.Parallel()
	c := NewSchedulerCollector(func() fq.Stats { return fq.Stats{} })
	problems, err := testutil.CollectAndLint(c)
	require.NoError(t, err)
	assert.Empty(t, problems)
}
