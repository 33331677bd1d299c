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

// Package fq implements a per-flow fair-queueing packet scheduler with
// optional rate pacing.
//
// # Model
//
// Packets are grouped by flow identity (one flow per connection; traffic
// without a stable identity fair-shares among orphan hash buckets) and
// released in an order that respects each packet's earliest-send time while
// sharing bandwidth round-robin across flows. With pacing enabled, each flow
// is additionally spaced to a byte rate by deferring its next packet into
// the future.
//
// # Structure
//
//   - A sharded ordered index (the flow table) maps identities to flow
//     records, with amortized garbage collection of long-idle records and
//     on-demand re-sharding.
//   - Each flow record orders its packets with an O(1) FIFO for the common
//     case of non-decreasing deadlines and a deadline-keyed tree for the
//     rare out-of-order arrival.
//   - Two activation lists (new and old flows) drive service order under a
//     byte-credit discipline: every flow gets a quantum per pass and rotates
//     to the back of the old list when it runs out.
//   - Flows gated on a future instant park in a time-ordered deferral index;
//     when nothing is ready the host is handed the earliest pending instant
//     to schedule a wakeup.
//
// # Usage
//
// The host drives the scheduler with Enqueue and Dequeue from a single
// logical caller, and may apply configuration updates from a control path;
// all operations serialize on one internal lock. See the `types` package for
// the packet contract and the `contracts` package for the host services the
// scheduler consumes.
package fq
