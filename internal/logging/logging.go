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

// Package logging defines the logr verbosity conventions used throughout the
// module. All library code logs through `logr.Logger.V(level)` with one of
// these levels so that operators can dial verbosity uniformly.
package logging

const (
	// DEFAULT is for messages that should be visible in normal operation:
	// lifecycle transitions, applied configuration, resizes.
	DEFAULT = 1

	// VERBOSE is for messages that are useful when watching the scheduler at
	// work but too chatty for production defaults (e.g., garbage collection
	// batches).
	VERBOSE = 2

	// DEBUG is for per-flow state transitions.
	DEBUG = 4

	// TRACE is for per-packet events on the enqueue/dequeue hot path.
	TRACE = 6
)
