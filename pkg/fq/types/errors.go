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

package types

import (
	"errors"
	"fmt"
)

// ErrDropped is the sentinel error class for every admission failure reported
// by `Enqueue`. The packet was not admitted and ownership stays with the
// caller, which should account for it as a single drop, not a fatal
// condition.
//
// Callers should use `errors.Is(err, ErrDropped)` to check for this general
// class of failure.
var ErrDropped = errors.New("packet dropped")

var (
	// ErrQueueCapacity indicates the global packet limit was reached.
	// Wraps `ErrDropped`.
	ErrQueueCapacity = fmt.Errorf("scheduler at packet capacity: %w", ErrDropped)

	// ErrFlowCapacity indicates the target flow reached its per-flow packet
	// limit. Wraps `ErrDropped`. The internal high-priority flow is exempt
	// from this limit.
	ErrFlowCapacity = fmt.Errorf("flow at packet capacity: %w", ErrDropped)
)
