// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package wire

import "errors"

var (
	// ErrInvalidArgument reports a nil reader/writer passed to a constructor.
	ErrInvalidArgument = errors.New("wire: invalid argument")

	// ErrTooLong reports that a frame length exceeds the wire format's limit
	// or the caller's configured ReadLimit.
	ErrTooLong = errors.New("wire: message too long")
)
