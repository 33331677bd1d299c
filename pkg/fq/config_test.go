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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_Defaults(t *testing.T) {
	t.Parallel()
	c, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, uint32(10000), c.PacketLimit)
	assert.Equal(t, uint32(100), c.FlowPacketLimit)
	assert.Equal(t, uint32(2*defaultMTU), c.Quantum)
	assert.Equal(t, uint32(10*defaultMTU), c.InitialQuantum)
	assert.Equal(t, 40*time.Millisecond, c.FlowRefillDelay)
	assert.True(t, c.PacingEnabled)
	assert.Zero(t, c.FlowMaxRate, "the global rate cap must default to unlimited")
	assert.Equal(t, uint64(550000/8), c.LowRateThreshold)
	assert.Equal(t, 10*time.Second, c.Horizon)
	assert.Equal(t, HorizonPolicyDrop, c.HorizonPolicy)
	assert.Equal(t, uint8(10), c.ShardExponent)
	assert.Equal(t, uint32(1023), c.OrphanMask)
	assert.Equal(t, 10*time.Microsecond, c.TimerSlack)
	assert.Equal(t, 1<<20, c.MaxFlows)
}

func TestNewConfig_Options(t *testing.T) {
	t.Parallel()
	c, err := NewConfig(
		WithPacketLimit(500),
		WithFlowPacketLimit(10),
		WithQuantum(3000),
		WithInitialQuantum(3000),
		WithFlowRefillDelay(time.Second),
		WithPacingEnabled(false),
		WithFlowMaxRate(1_000_000),
		WithLowRateThreshold(1000),
		WithCongestionThreshold(time.Millisecond),
		WithHorizon(time.Minute),
		WithHorizonPolicy(HorizonPolicyCap),
		WithShardExponent(4),
		WithOrphanMask(63),
		WithTimerSlack(time.Millisecond),
		WithMaxFlows(256),
	)
	require.NoError(t, err)

	assert.Equal(t, uint32(500), c.PacketLimit)
	assert.Equal(t, uint32(10), c.FlowPacketLimit)
	assert.Equal(t, uint32(3000), c.Quantum)
	assert.Equal(t, uint32(3000), c.InitialQuantum)
	assert.Equal(t, time.Second, c.FlowRefillDelay)
	assert.False(t, c.PacingEnabled)
	assert.Equal(t, uint64(1_000_000), c.FlowMaxRate)
	assert.Equal(t, uint64(1000), c.LowRateThreshold)
	assert.Equal(t, time.Millisecond, c.CongestionThreshold)
	assert.Equal(t, time.Minute, c.Horizon)
	assert.Equal(t, HorizonPolicyCap, c.HorizonPolicy)
	assert.Equal(t, uint8(4), c.ShardExponent)
	assert.Equal(t, uint32(63), c.OrphanMask)
	assert.Equal(t, time.Millisecond, c.TimerSlack)
	assert.Equal(t, 256, c.MaxFlows)
}

func TestNewConfig_Validation(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name string
		opts []ConfigOption
	}{
		{
			name: "ZeroQuantum",
			opts: []ConfigOption{WithQuantum(0)},
		},
		{
			name: "OversizedQuantum",
			opts: []ConfigOption{WithQuantum(maxQuantum + 1)},
		},
		{
			name: "ShardExponentTooSmall",
			opts: []ConfigOption{WithShardExponent(0)},
		},
		{
			name: "ShardExponentTooLarge",
			opts: []ConfigOption{WithShardExponent(19)},
		},
		{
			name: "UnknownHorizonPolicy",
			opts: []ConfigOption{WithHorizonPolicy(HorizonPolicy(7))},
		},
		{
			name: "NegativeRefillDelay",
			opts: []ConfigOption{WithFlowRefillDelay(-time.Second)},
		},
		{
			name: "NegativeCongestionThreshold",
			opts: []ConfigOption{WithCongestionThreshold(-time.Second)},
		},
		{
			name: "NegativeHorizon",
			opts: []ConfigOption{WithHorizon(-time.Second)},
		},
		{
			name: "NegativeTimerSlack",
			opts: []ConfigOption{WithTimerSlack(-time.Second)},
		},
		{
			name: "NonPositiveMaxFlows",
			opts: []ConfigOption{WithMaxFlows(0)},
		},
	}
	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewConfig(tc.opts...)
			assert.Error(t, err)
		})
	}
}

func TestConfigDelta_Apply(t *testing.T) {
	t.Parallel()
	c, err := NewConfig()
	require.NoError(t, err)

	quantum := uint32(5000)
	pacing := false
	horizon := 2 * time.Second
	delta := &ConfigDelta{
		Quantum:       &quantum,
		PacingEnabled: &pacing,
		Horizon:       &horizon,
	}
	delta.apply(c)

	assert.Equal(t, uint32(5000), c.Quantum)
	assert.False(t, c.PacingEnabled)
	assert.Equal(t, 2*time.Second, c.Horizon)
	assert.Equal(t, uint32(10000), c.PacketLimit, "unset fields must be untouched")
	assert.Equal(t, uint32(10*defaultMTU), c.InitialQuantum, "unset fields must be untouched")
}

func TestHorizonPolicy_String(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "drop", HorizonPolicyDrop.String())
	assert.Equal(t, "cap", HorizonPolicyCap.String())
}
