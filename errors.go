// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package rpctrace implements the core of an RPC interception and tracing
// tool for a capability-based message-passing system: the wrapper registry,
// the right rewriter, the message walker, and the forward-and-trace loop.
//
// The engine is written against the kernel package's simulated capability
// primitives (ports, rights, refcounting, blocking send/receive) rather than
// real syscalls, so it runs anywhere Go runs; see the wire and demo packages
// for how a real spawned subprocess is bridged onto it.
package rpctrace

import (
	"errors"
	"fmt"
)

// ErrDuplicateForward is returned by Registry.Insert when the forward right
// is already registered to a different wrapper.
var ErrDuplicateForward = errors.New("rpctrace: forward right already registered")

// assertf panics when cond is false. Violating one of the engine's
// invariants is a program bug, not a recoverable condition, so it aborts
// rather than propagating an error.
func assertf(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf("rpctrace: assertion failed: "+format, args...))
	}
}
