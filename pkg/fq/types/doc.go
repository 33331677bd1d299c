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

// Package types defines the core data contracts shared between the fair-queueing
// scheduler (`pkg/fq`) and its host: the `Packet` abstraction the scheduler
// orders and releases, the `FlowKey` identity packets are classified under, and
// the sentinel errors the scheduler reports drops with.
//
// The scheduler never inspects packet payloads. It reads a packet's byte
// length, its optional earliest-send deadline, its priority flag, and its
// owning-flow identity, and it may write the deadline back (horizon capping)
// or set the congestion-experienced signal. Everything else about a packet is
// opaque to this module.
package types
