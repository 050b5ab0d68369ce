// Package demo wires together a minimal request/reply service over the
// kernel package's simulated ports, so rpctrace can be exercised end to end
// without a real microkernel: a server task, a client that talks to it only
// through a tracer-installed wrapper, and the tracer itself in between.
package demo

import "code.hybscloud.com/rpctrace/kernel"

// Message IDs for the toy protocol. ReplyOffset mirrors the Mach/MIG
// convention a reply's msgh_id is always request id + 100.
const (
	MsgGetPID    int32 = 42
	MsgEcho      int32 = 2000
	ReplyOffset  int32 = 100
	KernelSucess int32 = 0
)

// encodeInt32 packs a single int32 as a kernel.Descriptor scalar payload.
func encodeInt32(v int32) kernel.Descriptor {
	b := []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
	return kernel.Descriptor{ElemKind: 'i', ElemSize: 4, Data: b}
}

func decodeInt32(d kernel.Descriptor) int32 {
	b := d.Data
	return int32(uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]))
}

// retCodeDescriptor is the canonical leading descriptor of every reply
// message, carrying the return code the forward loop uses to recognize a
// reply and print its retcode.
func retCodeDescriptor(code int32) kernel.Descriptor {
	return encodeInt32(code)
}
