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

import "strconv"

// FlowKind distinguishes how a flow identity was obtained.
type FlowKind uint8

const (
	// FlowKindConnection identifies a flow by a host-supplied stable surrogate
	// key for the owning connection (e.g., a connection sequence number). The
	// key must be stable for the lifetime of the connection and must not be
	// reused while the connection is alive.
	FlowKindConnection FlowKind = iota

	// FlowKindOrphan identifies a flow synthesized from a packet attribute
	// hash for traffic that carries no stable connection identity. Orphan
	// traffic fair-shares among hash buckets instead of colliding into a
	// single flow.
	FlowKindOrphan
)

// FlowKey is the unique identity a flow record is indexed under.
//
// The scheduler uses keys only for ordering and equality; it never
// dereferences them. Keys of different kinds never compare equal, so
// host-supplied connection keys cannot collide with synthesized orphan
// buckets regardless of their numeric values.
type FlowKey struct {
	// ID is the numeric identity within the kind's namespace.
	ID uint64

	// Kind is the identity namespace.
	Kind FlowKind
}

// Compare returns -1, 0 or 1 as k orders before, equal to, or after other.
// Ordering is by `Kind` first, then by `ID`, which yields the total order the
// flow-table shard indexes require.
func (k FlowKey) Compare(other FlowKey) int {
	if k.Kind != other.Kind {
		if k.Kind < other.Kind {
			return -1
		}
		return 1
	}
	if k.ID != other.ID {
		if k.ID < other.ID {
			return -1
		}
		return 1
	}
	return 0
}

func (k FlowKey) String() string {
	if k.Kind == FlowKindOrphan {
		return "orphan:" + strconv.FormatUint(k.ID, 10)
	}
	return "conn:" + strconv.FormatUint(k.ID, 10)
}
