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

// Package mocks provides a simple, configurable mock implementation of
// `types.Packet`, intended for use in unit and integration tests.
package mocks

import (
	"time"

	"github.com/mad-hin/marco-fq/pkg/fq/types"
)

// MockPacket provides a mock implementation of the `types.Packet` interface.
type MockPacket struct {
	ByteSizeV       uint32
	SendTimeV       time.Time
	HighPriorityV   bool
	FlowIDV         uint64
	HasFlowIDV      bool
	FlowGenerationV uint32
	HashV           uint32
	MaxPacingRateV  uint64

	// CongestionExperienced records whether MarkCongestionExperienced was
	// called on this packet.
	CongestionExperienced bool
}

// MockPacketOption is a functional option for configuring a MockPacket.
type MockPacketOption func(*MockPacket)

// WithSendTime sets the host-assigned deadline for the mock packet.
func WithSendTime(t time.Time) MockPacketOption {
	return func(m *MockPacket) {
		m.SendTimeV = t
	}
}

// WithHighPriority flags the mock packet as high-priority control traffic.
func WithHighPriority() MockPacketOption {
	return func(m *MockPacket) {
		m.HighPriorityV = true
	}
}

// WithFlowGeneration sets the identity-reuse disambiguator.
func WithFlowGeneration(gen uint32) MockPacketOption {
	return func(m *MockPacket) {
		m.FlowGenerationV = gen
	}
}

// WithHash sets the attribute hash used for orphan classification.
func WithHash(hash uint32) MockPacketOption {
	return func(m *MockPacket) {
		m.HashV = hash
	}
}

// WithMaxPacingRate sets the per-connection pacing cap in bytes per second.
func WithMaxPacingRate(rate uint64) MockPacketOption {
	return func(m *MockPacket) {
		m.MaxPacingRateV = rate
	}
}

// WithoutFlowID clears the connection identity, making the packet classify as
// an orphan.
func WithoutFlowID() MockPacketOption {
	return func(m *MockPacket) {
		m.HasFlowIDV = false
	}
}

// NewMockPacket creates a new MockPacket owned by the given flow identity.
func NewMockPacket(byteSize uint32, flowID uint64, opts ...MockPacketOption) *MockPacket {
	m := &MockPacket{
		ByteSizeV:  byteSize,
		FlowIDV:    flowID,
		HasFlowIDV: true,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MockPacket) ByteSize() uint32           { return m.ByteSizeV }
func (m *MockPacket) SendTime() time.Time        { return m.SendTimeV }
func (m *MockPacket) SetSendTime(t time.Time)    { m.SendTimeV = t }
func (m *MockPacket) HighPriority() bool         { return m.HighPriorityV }
func (m *MockPacket) FlowID() (uint64, bool)     { return m.FlowIDV, m.HasFlowIDV }
func (m *MockPacket) FlowGeneration() uint32     { return m.FlowGenerationV }
func (m *MockPacket) Hash() uint32               { return m.HashV }
func (m *MockPacket) MaxPacingRate() uint64      { return m.MaxPacingRateV }
func (m *MockPacket) MarkCongestionExperienced() { m.CongestionExperienced = true }

var _ types.Packet = &MockPacket{}
