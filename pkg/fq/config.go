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
	"math"
	"time"
)

// --- Defaults ---

// defaultMTU is the assumed link MTU (Ethernet payload plus header) used to
// derive the default quanta.
const defaultMTU = 1514

const (
	// defaultPacketLimit is the default global packet limit.
	defaultPacketLimit uint32 = 10000
	// defaultFlowPacketLimit is the default per-flow packet limit.
	defaultFlowPacketLimit uint32 = 100
	// defaultQuantum is the default per-pass byte credit (two full-size
	// packets, so a flow can send back-to-back pairs).
	defaultQuantum uint32 = 2 * defaultMTU
	// defaultInitialQuantum is the default credit granted to a brand-new
	// flow, letting it burst its initial window before round-robin applies.
	defaultInitialQuantum uint32 = 10 * defaultMTU
	// defaultFlowRefillDelay is how long a flow must have been idle before a
	// fresh enqueue restores at least one quantum of credit.
	defaultFlowRefillDelay = 40 * time.Millisecond
	// defaultLowRateThreshold is the pacing rate (bytes/sec) below which
	// per-packet pacing is replaced by quantum-at-a-time service (550 kbit).
	defaultLowRateThreshold uint64 = 550000 / 8
	// defaultShardExponent yields 1024 flow-table shards.
	defaultShardExponent uint8 = 10
	// defaultOrphanMask folds unidentifiable traffic into 1024 hash buckets.
	defaultOrphanMask uint32 = 1024 - 1
	// defaultTimerSlack is the wakeup coalescing slack handed to the host.
	defaultTimerSlack = 10 * time.Microsecond
	// defaultHorizon is the maximum allowed distance into the future for a
	// packet deadline.
	defaultHorizon = 10 * time.Second
	// defaultMaxFlows caps the flow-record population.
	defaultMaxFlows = 1 << 20
)

// defaultCongestionThreshold effectively disables congestion marking (about
// 4295 seconds of lateness).
const defaultCongestionThreshold = time.Duration(math.MaxUint32) * time.Microsecond

const (
	minShardExponent uint8 = 1
	maxShardExponent uint8 = 18

	// maxQuantum bounds the per-pass credit to 1 MiB.
	maxQuantum uint32 = 1 << 20

	// maxPacingDelay clamps a single pacing gap. Rates can change after the
	// delay is computed, so never commit a flow further than this into the
	// future.
	maxPacingDelay = time.Second
)

// HorizonPolicy selects what happens to packets whose deadline exceeds the
// horizon.
type HorizonPolicy uint8

const (
	// HorizonPolicyDrop discards the packet (counted, not surfaced as an
	// error).
	HorizonPolicyDrop HorizonPolicy = iota
	// HorizonPolicyCap clamps the deadline to now+horizon and admits the
	// packet (counted separately from drops).
	HorizonPolicyCap
)

func (p HorizonPolicy) String() string {
	if p == HorizonPolicyCap {
		return "cap"
	}
	return "drop"
}

// Config holds the complete scheduler configuration. Construct it with
// NewConfig; a zero Config is not valid.
type Config struct {
	// PacketLimit is the global cap on admitted packets.
	PacketLimit uint32

	// FlowPacketLimit is the per-flow packet cap. The internal high-priority
	// flow is exempt.
	FlowPacketLimit uint32

	// Quantum is the byte credit granted per round-robin pass.
	// Must be in (0, 1 MiB].
	Quantum uint32

	// InitialQuantum is the byte credit granted to a newly created flow.
	InitialQuantum uint32

	// FlowRefillDelay is the idle duration after which a re-activating flow
	// has its credit restored to at least one quantum.
	FlowRefillDelay time.Duration

	// PacingEnabled turns per-flow rate pacing on.
	PacingEnabled bool

	// FlowMaxRate caps every flow's pacing rate in bytes per second.
	// 0 means unlimited.
	FlowMaxRate uint64

	// LowRateThreshold is the pacing rate (bytes/sec) at or below which a
	// flow is paced one quantum at a time instead of per packet.
	LowRateThreshold uint64

	// CongestionThreshold is how far past its scheduled pacing instant a
	// packet may be released before it is marked congestion-experienced.
	CongestionThreshold time.Duration

	// Horizon is the maximum deadline distance into the future.
	Horizon time.Duration

	// HorizonPolicy selects drop or cap for deadlines beyond the horizon.
	HorizonPolicy HorizonPolicy

	// ShardExponent sets the flow-table shard count to 1<<ShardExponent.
	// Must be in [1, 18].
	ShardExponent uint8

	// OrphanMask folds the attribute hash of unidentifiable packets into
	// 1+OrphanMask pseudo-flows.
	OrphanMask uint32

	// TimerSlack is the coalescing slack passed with every wakeup request.
	TimerSlack time.Duration

	// MaxFlows caps the flow-record population; at the cap new identities
	// degrade to the internal flow instead of failing the enqueue.
	MaxFlows int
}

// ConfigOption is a functional option for NewConfig.
type ConfigOption func(*Config)

// WithPacketLimit sets the global packet cap.
func WithPacketLimit(limit uint32) ConfigOption {
	return func(c *Config) { c.PacketLimit = limit }
}

// WithFlowPacketLimit sets the per-flow packet cap.
func WithFlowPacketLimit(limit uint32) ConfigOption {
	return func(c *Config) { c.FlowPacketLimit = limit }
}

// WithQuantum sets the per-pass byte credit.
func WithQuantum(quantum uint32) ConfigOption {
	return func(c *Config) { c.Quantum = quantum }
}

// WithInitialQuantum sets the byte credit for newly created flows.
func WithInitialQuantum(quantum uint32) ConfigOption {
	return func(c *Config) { c.InitialQuantum = quantum }
}

// WithFlowRefillDelay sets the idle duration that triggers a credit refill on
// re-activation.
func WithFlowRefillDelay(d time.Duration) ConfigOption {
	return func(c *Config) { c.FlowRefillDelay = d }
}

// WithPacingEnabled toggles per-flow rate pacing.
func WithPacingEnabled(enabled bool) ConfigOption {
	return func(c *Config) { c.PacingEnabled = enabled }
}

// WithFlowMaxRate caps every flow's pacing rate in bytes per second
// (0 = unlimited).
func WithFlowMaxRate(rate uint64) ConfigOption {
	return func(c *Config) { c.FlowMaxRate = rate }
}

// WithLowRateThreshold sets the rate below which pacing degrades to
// quantum-at-a-time service.
func WithLowRateThreshold(rate uint64) ConfigOption {
	return func(c *Config) { c.LowRateThreshold = rate }
}

// WithCongestionThreshold sets the lateness beyond which released packets are
// marked congestion-experienced.
func WithCongestionThreshold(d time.Duration) ConfigOption {
	return func(c *Config) { c.CongestionThreshold = d }
}

// WithHorizon sets the maximum deadline distance into the future.
func WithHorizon(d time.Duration) ConfigOption {
	return func(c *Config) { c.Horizon = d }
}

// WithHorizonPolicy selects the over-horizon policy.
func WithHorizonPolicy(p HorizonPolicy) ConfigOption {
	return func(c *Config) { c.HorizonPolicy = p }
}

// WithShardExponent sets the flow-table shard count to 1<<exp.
func WithShardExponent(exp uint8) ConfigOption {
	return func(c *Config) { c.ShardExponent = exp }
}

// WithOrphanMask sets the orphan pseudo-flow mask.
func WithOrphanMask(mask uint32) ConfigOption {
	return func(c *Config) { c.OrphanMask = mask }
}

// WithTimerSlack sets the wakeup coalescing slack.
func WithTimerSlack(d time.Duration) ConfigOption {
	return func(c *Config) { c.TimerSlack = d }
}

// WithMaxFlows caps the flow-record population.
func WithMaxFlows(n int) ConfigOption {
	return func(c *Config) { c.MaxFlows = n }
}

// NewConfig builds a fully validated configuration from defaults plus the
// supplied options.
func NewConfig(opts ...ConfigOption) (*Config, error) {
	c := &Config{
		PacketLimit:         defaultPacketLimit,
		FlowPacketLimit:     defaultFlowPacketLimit,
		Quantum:             defaultQuantum,
		InitialQuantum:      defaultInitialQuantum,
		FlowRefillDelay:     defaultFlowRefillDelay,
		PacingEnabled:       true,
		FlowMaxRate:         0,
		LowRateThreshold:    defaultLowRateThreshold,
		CongestionThreshold: defaultCongestionThreshold,
		Horizon:             defaultHorizon,
		HorizonPolicy:       HorizonPolicyDrop,
		ShardExponent:       defaultShardExponent,
		OrphanMask:          defaultOrphanMask,
		TimerSlack:          defaultTimerSlack,
		MaxFlows:            defaultMaxFlows,
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// validate checks every parameter. It is shared by NewConfig and
// ApplyConfig, so delta application cannot commit an invalid state.
func (c *Config) validate() error {
	if c.Quantum == 0 || c.Quantum > maxQuantum {
		return fmt.Errorf("quantum must be in (0, %d], got %d", maxQuantum, c.Quantum)
	}
	if c.ShardExponent < minShardExponent || c.ShardExponent > maxShardExponent {
		return fmt.Errorf("shard exponent must be in [%d, %d], got %d",
			minShardExponent, maxShardExponent, c.ShardExponent)
	}
	if c.HorizonPolicy != HorizonPolicyDrop && c.HorizonPolicy != HorizonPolicyCap {
		return fmt.Errorf("unknown horizon policy %d", c.HorizonPolicy)
	}
	if c.FlowRefillDelay < 0 {
		return fmt.Errorf("flow refill delay must not be negative, got %v", c.FlowRefillDelay)
	}
	if c.CongestionThreshold < 0 {
		return fmt.Errorf("congestion threshold must not be negative, got %v", c.CongestionThreshold)
	}
	if c.Horizon < 0 {
		return fmt.Errorf("horizon must not be negative, got %v", c.Horizon)
	}
	if c.TimerSlack < 0 {
		return fmt.Errorf("timer slack must not be negative, got %v", c.TimerSlack)
	}
	if c.MaxFlows <= 0 {
		return fmt.Errorf("max flows must be positive, got %d", c.MaxFlows)
	}
	return nil
}

// ConfigDelta is a partial configuration update for ApplyConfig. Nil fields
// are left unchanged. The whole delta is validated against the resulting
// configuration before any field is committed; partial application never
// occurs.
type ConfigDelta struct {
	PacketLimit         *uint32
	FlowPacketLimit     *uint32
	Quantum             *uint32
	InitialQuantum      *uint32
	FlowRefillDelay     *time.Duration
	PacingEnabled       *bool
	FlowMaxRate         *uint64
	LowRateThreshold    *uint64
	CongestionThreshold *time.Duration
	Horizon             *time.Duration
	HorizonPolicy       *HorizonPolicy
	ShardExponent       *uint8
	OrphanMask          *uint32
	TimerSlack          *time.Duration
}

// apply copies every set field of the delta onto c.
func (d *ConfigDelta) apply(c *Config) {
	if d.PacketLimit != nil {
		c.PacketLimit = *d.PacketLimit
	}
	if d.FlowPacketLimit != nil {
		c.FlowPacketLimit = *d.FlowPacketLimit
	}
	if d.Quantum != nil {
		c.Quantum = *d.Quantum
	}
	if d.InitialQuantum != nil {
		c.InitialQuantum = *d.InitialQuantum
	}
	if d.FlowRefillDelay != nil {
		c.FlowRefillDelay = *d.FlowRefillDelay
	}
	if d.PacingEnabled != nil {
		c.PacingEnabled = *d.PacingEnabled
	}
	if d.FlowMaxRate != nil {
		c.FlowMaxRate = *d.FlowMaxRate
	}
	if d.LowRateThreshold != nil {
		c.LowRateThreshold = *d.LowRateThreshold
	}
	if d.CongestionThreshold != nil {
		c.CongestionThreshold = *d.CongestionThreshold
	}
	if d.Horizon != nil {
		c.Horizon = *d.Horizon
	}
	if d.HorizonPolicy != nil {
		c.HorizonPolicy = *d.HorizonPolicy
	}
	if d.ShardExponent != nil {
		c.ShardExponent = *d.ShardExponent
	}
	if d.OrphanMask != nil {
		c.OrphanMask = *d.OrphanMask
	}
	if d.TimerSlack != nil {
		c.TimerSlack = *d.TimerSlack
	}
}
