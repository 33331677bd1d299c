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

// Package contracts defines the service interfaces the scheduler consumes
// from its host. The scheduler depends on these abstractions, never on
// concrete host types, so hosts and tests can supply their own
// implementations.
//
// The monotonic clock dependency is expressed with `k8s.io/utils/clock`
// (`clock.PassiveClock`); tests inject `clock/testing.FakePassiveClock`.
package contracts

import "time"

// Watchdog is the host's wakeup facility.
//
// When `Dequeue` has nothing ready but throttled flows are pending, the
// scheduler arms the watchdog with the earliest deferral instant. The host
// must call `Dequeue` again no earlier than that instant (or sooner, if new
// packets arrive). Re-arming replaces any previously requested wakeup.
type Watchdog interface {
	// ScheduleWakeup requests a dequeue attempt at time `at`. The host may
	// coalesce the wakeup with other timers within `slack` to reduce timer
	// pressure.
	ScheduleWakeup(at time.Time, slack time.Duration)
}
