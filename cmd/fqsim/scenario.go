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
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mad-hin/marco-fq/pkg/fq"
)

// scenario describes one simulation run: the scheduler parameters to apply
// and the traffic each flow offers.
type scenario struct {
	Scheduler schedulerParams `yaml:"scheduler"`
	Flows     []flowTraffic   `yaml:"flows"`
}

// schedulerParams mirrors the scheduler options a scenario may override.
// Omitted fields keep their defaults.
type schedulerParams struct {
	PacketLimit     *uint32        `yaml:"packetLimit"`
	FlowPacketLimit *uint32        `yaml:"flowPacketLimit"`
	Quantum         *uint32        `yaml:"quantum"`
	InitialQuantum  *uint32        `yaml:"initialQuantum"`
	PacingEnabled   *bool          `yaml:"pacingEnabled"`
	FlowMaxRate     *uint64        `yaml:"flowMaxRate"`
	Horizon         *time.Duration `yaml:"horizon"`
	HorizonPolicy   *string        `yaml:"horizonPolicy"`
	ShardExponent   *uint8         `yaml:"shardExponent"`
}

// flowTraffic is the offered load of one simulated flow.
type flowTraffic struct {
	// ID is the flow's connection identity.
	ID uint64 `yaml:"id"`
	// Packets is how many packets the flow offers.
	Packets int `yaml:"packets"`
	// PacketSize is the wire length of each packet in bytes.
	PacketSize uint32 `yaml:"packetSize"`
	// MaxPacingRate is the flow's own pacing cap in bytes per second
	// (0 = unconstrained).
	MaxPacingRate uint64 `yaml:"maxPacingRate"`
	// HighPriority routes the flow's packets through the internal flow.
	HighPriority bool `yaml:"highPriority"`
	// Interarrival spaces the flow's enqueues on the virtual clock; 0 offers
	// the whole load up front.
	Interarrival time.Duration `yaml:"interarrival"`
}

func loadScenario(path string) (*scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	var sc scenario
	if err := yaml.Unmarshal(raw, &sc); err != nil {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}
	if len(sc.Flows) == 0 {
		return nil, fmt.Errorf("scenario offers no flows")
	}
	for i, f := range sc.Flows {
		if f.Packets <= 0 || f.PacketSize == 0 {
			return nil, fmt.Errorf("flow %d: packets and packetSize must be positive", i)
		}
	}
	return &sc, nil
}

// schedulerConfig translates the scenario's overrides into a validated
// scheduler configuration.
func (sc *scenario) schedulerConfig() (*fq.Config, error) {
	var opts []fq.ConfigOption
	p := sc.Scheduler
	if p.PacketLimit != nil {
		opts = append(opts, fq.WithPacketLimit(*p.PacketLimit))
	}
	if p.FlowPacketLimit != nil {
		opts = append(opts, fq.WithFlowPacketLimit(*p.FlowPacketLimit))
	}
	if p.Quantum != nil {
		opts = append(opts, fq.WithQuantum(*p.Quantum))
	}
	if p.InitialQuantum != nil {
		opts = append(opts, fq.WithInitialQuantum(*p.InitialQuantum))
	}
	if p.PacingEnabled != nil {
		opts = append(opts, fq.WithPacingEnabled(*p.PacingEnabled))
	}
	if p.FlowMaxRate != nil {
		opts = append(opts, fq.WithFlowMaxRate(*p.FlowMaxRate))
	}
	if p.Horizon != nil {
		opts = append(opts, fq.WithHorizon(*p.Horizon))
	}
	if p.HorizonPolicy != nil {
		switch *p.HorizonPolicy {
		case "drop":
			opts = append(opts, fq.WithHorizonPolicy(fq.HorizonPolicyDrop))
		case "cap":
			opts = append(opts, fq.WithHorizonPolicy(fq.HorizonPolicyCap))
		default:
			return nil, fmt.Errorf("unknown horizon policy %q", *p.HorizonPolicy)
		}
	}
	if p.ShardExponent != nil {
		opts = append(opts, fq.WithShardExponent(*p.ShardExponent))
	}
	return fq.NewConfig(opts...)
}
