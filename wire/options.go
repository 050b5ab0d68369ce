// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package wire

import (
	"encoding/binary"

	"code.hybscloud.com/rpctrace/internal/bo"
)

// Options configures the framing codec used to carry kernel.Message values
// across a child process's stdio pipes.
type Options struct {
	ByteOrder binary.ByteOrder

	// ReadLimit caps the maximum allowed payload size in bytes. Zero means
	// no limit beyond the wire format's own 2^56-1 ceiling.
	ReadLimit int
}

var defaultOptions = Options{
	ByteOrder: binary.BigEndian,
	ReadLimit: 0,
}

// Option configures a Decoder or Encoder.
type Option func(*Options)

// WithByteOrder overrides the length-prefix byte order (default: big-endian,
// "network" order).
func WithByteOrder(order binary.ByteOrder) Option {
	return func(o *Options) { o.ByteOrder = order }
}

// WithReadLimit caps the maximum accepted payload size.
func WithReadLimit(limit int) Option {
	return func(o *Options) { o.ReadLimit = limit }
}

// WithNetworkByteOrder configures big-endian length prefixes, the
// conventional choice when the wire protocol might ever cross a real
// network socket rather than a local pipe.
func WithNetworkByteOrder() Option {
	return func(o *Options) { o.ByteOrder = binary.BigEndian }
}

// WithLocalByteOrder configures native byte order, appropriate when both
// ends of the pipe are processes on the same host (the common case: a
// traced child's stdio).
func WithLocalByteOrder() Option {
	return func(o *Options) { o.ByteOrder = bo.Native() }
}
