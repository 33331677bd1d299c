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

// Package mocks provides mock implementations of the `contracts` interfaces
// for use in tests.
package mocks

import (
	"time"

	"github.com/mad-hin/marco-fq/pkg/fq/contracts"
)

// MockWatchdog records every wakeup request it receives.
type MockWatchdog struct {
	// Wakeups holds the requested instants in call order.
	Wakeups []time.Time
	// Slacks holds the requested slack values in call order.
	Slacks []time.Duration
}

// ScheduleWakeup records the request.
func (m *MockWatchdog) ScheduleWakeup(at time.Time, slack time.Duration) {
	m.Wakeups = append(m.Wakeups, at)
	m.Slacks = append(m.Slacks, slack)
}

// LastWakeup returns the most recently requested wakeup instant, or the zero
// time if none was requested.
func (m *MockWatchdog) LastWakeup() time.Time {
	if len(m.Wakeups) == 0 {
		return time.Time{}
	}
	return m.Wakeups[len(m.Wakeups)-1]
}

var _ contracts.Watchdog = &MockWatchdog{}
