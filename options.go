package rpctrace

import (
	"encoding/binary"
	"io"

	"code.hybscloud.com/rpctrace/format"
)

// Options configures a Tracer, following the same functional-options idiom
// as wire.Option.
type Options struct {
	// Output receives trace text. Defaults to io.Discard; callers typically
	// pass os.Stderr or a file opened with the -o flag.
	Output io.Writer

	// Formatter renders scalar descriptor payloads.
	Formatter format.Formatter

	// ByteOrder governs how scalar payload bytes are interpreted.
	ByteOrder binary.ByteOrder

	// Metrics is notified of wrapper lifecycle events so a caller (e.g. the
	// CLI) can export them (see metrics.go). It defaults to a no-op sink and
	// must not be nil.
	Metrics Metrics
}

var defaultOptions = Options{
	Output:    io.Discard,
	Formatter: format.Default,
	ByteOrder: binary.BigEndian,
	Metrics:   noopMetrics{},
}

// Option configures a Tracer.
type Option func(*Options)

// WithOutput sets the trace output stream.
func WithOutput(w io.Writer) Option {
	return func(o *Options) { o.Output = w }
}

// WithFormatter overrides the scalar formatter.
func WithFormatter(f format.Formatter) Option {
	return func(o *Options) { o.Formatter = f }
}

// WithByteOrder overrides the scalar payload byte order.
func WithByteOrder(order binary.ByteOrder) Option {
	return func(o *Options) { o.ByteOrder = order }
}

// WithMetrics installs a Metrics sink.
func WithMetrics(m Metrics) Option {
	return func(o *Options) { o.Metrics = m }
}

// InsertRightMsgID is the message ID of the pass-through operation
// (mach_port_insert_right in the original), whose port-name descriptors
// must be logged but never rewritten: they are integers in a foreign name
// space, not capabilities. Whether this holds for every caller of a
// name-manipulation RPC is an open question; see DESIGN.md.
const InsertRightMsgID int32 = 3215
