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
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/mad-hin/marco-fq/pkg/fq"
)

func TestLoadScenario(t *testing.T) {
	t.Parallel()

	sc, err := loadScenario("testdata/scenario.yaml")
	require.NoError(t, err)
	require.Len(t, sc.Flows, 3)
	assert.Equal(t, uint64(1), sc.Flows[0].ID)
	assert.Equal(t, 50, sc.Flows[0].Packets)
	assert.Equal(t, uint64(1_250_000), sc.Flows[0].MaxPacingRate)
	assert.True(t, sc.Flows[2].HighPriority)

	cfg, err := sc.schedulerConfig()
	require.NoError(t, err)
	assert.Equal(t, uint32(3028), cfg.Quantum)
	assert.Equal(t, uint32(15140), cfg.InitialQuantum)
	assert.True(t, cfg.PacingEnabled)
	assert.Equal(t, fq.HorizonPolicyDrop, cfg.HorizonPolicy)

	_, err = loadScenario("testdata/missing.yaml")
	assert.Error(t, err)
}

func TestScenario_RejectsBadInput(t *testing.T) {
	t.Parallel()

	sc := &scenario{}
	policy := "teleport"
	sc.Scheduler.HorizonPolicy = &policy
	_, err := sc.schedulerConfig()
	assert.Error(t, err, "an unknown horizon policy must be rejected")
}

func TestSimulate_DrainsPacedScenario(t *testing.T) {
	t.Parallel()

	sc := &scenario{
		Flows: []flowTraffic{
			{ID: 1, Packets: 20, PacketSize: 1500, MaxPacingRate: 1_500_000},
			{ID: 2, Packets: 20, PacketSize: 1500, MaxPacingRate: 150_000},
		},
	}
	cfg, err := sc.schedulerConfig()
	require.NoError(t, err)

	clk := testingclock.NewFakePassiveClock(time.Now())
	wd := &wakeupRecorder{}
	s, err := fq.NewScheduler(cfg, clk, wd, logr.Discard())
	require.NoError(t, err)

	report, err := simulate(s, clk, wd, sc, logr.Discard())
	require.NoError(t, err)

	assert.Equal(t, 40, report.released, "every offered packet must be released")
	assert.Equal(t, 0, s.Len())
	require.Contains(t, report.flows, uint64(1))
	require.Contains(t, report.flows, uint64(2))
	assert.Equal(t, 20, report.flows[1].released)
	assert.Equal(t, 20, report.flows[2].released)
	assert.Zero(t, report.flows[1].dropped)

	// The slower flow's pacing dictates the virtual makespan: after its
	// initial-quantum burst it pays a quantum-sized gap (about 20ms at
	// 150 kB/s) per credit refill.
	assert.GreaterOrEqual(t, report.elapsed, 80*time.Millisecond)
	assert.Less(t, report.elapsed, time.Second)
	assert.Greater(t, s.Stats().ThrottleEvents, uint64(0))
}

func TestSimulate_StaggeredArrivals(t *testing.T) {
	t.Parallel()

	sc := &scenario{
		Flows: []flowTraffic{
			{ID: 1, Packets: 10, PacketSize: 500, Interarrival: 10 * time.Millisecond},
		},
	}
	cfg, err := sc.schedulerConfig()
	require.NoError(t, err)

	clk := testingclock.NewFakePassiveClock(time.Now())
	wd := &wakeupRecorder{}
	s, err := fq.NewScheduler(cfg, clk, wd, logr.Discard())
	require.NoError(t, err)

	report, err := simulate(s, clk, wd, sc, logr.Discard())
	require.NoError(t, err)

	assert.Equal(t, 10, report.released)
	assert.GreaterOrEqual(t, report.elapsed, 90*time.Millisecond,
		"the virtual clock must advance through the arrival schedule")
}
