// Command rpctrace-demo-child is a reference traced child: it speaks the
// wire protocol over its own stdio rather than calling into an in-process
// kernel.Kernel directly, so cmd/rpctrace can exercise its forward loop
// against a real OS subprocess rather than only the in-process demo
// scenario.
//
// Port numbering is fixed by convention, since this process has no access
// to the parent's kernel.Kernel namespace: port 1 always names this
// child's own reply port, port 2 the traced destination it addresses
// requests to. cmd/rpctrace's bridge maps both onto real capability
// handles in its kernel.
package main

import (
	"fmt"
	"os"

	"code.hybscloud.com/rpctrace/demo"
	"code.hybscloud.com/rpctrace/kernel"
	"code.hybscloud.com/rpctrace/wire"
)

const (
	replyPortID kernel.PortID = 1
	destPortID  kernel.PortID = 2
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "rpctrace-demo-child:", err)
		os.Exit(1)
	}
}

func run() error {
	enc := wire.NewEncoder(os.Stdout)
	dec := wire.NewDecoder(os.Stdin)

	pid, err := call(enc, dec, demo.MsgGetPID)
	if err != nil {
		return fmt.Errorf("get-pid: %w", err)
	}
	fmt.Printf("pid=%d\n", pid)

	echoed, err := call(enc, dec, demo.MsgEcho, 17)
	if err != nil {
		return fmt.Errorf("echo: %w", err)
	}
	fmt.Printf("echo=%d\n", echoed)
	return nil
}

func call(enc *wire.Encoder, dec *wire.Decoder, msgid int32, args ...int32) (int32, error) {
	req := &kernel.Message{
		ID:         msgid,
		LocalPort:  replyPortID,
		LocalKind:  kernel.MakeSendOnce,
		RemotePort: destPortID,
		RemoteKind: kernel.CopySend,
	}
	for _, v := range args {
		req.Body = append(req.Body, encodeInt32(v))
		req.Complex = true
	}
	if err := enc.Encode(req); err != nil {
		return 0, fmt.Errorf("encode request: %w", err)
	}

	reply, err := dec.Decode()
	if err != nil {
		return 0, fmt.Errorf("decode reply: %w", err)
	}
	if reply.RetCode == nil {
		return 0, fmt.Errorf("reply %d carries no return code", reply.ID)
	}
	if *reply.RetCode != demo.KernelSucess {
		return 0, fmt.Errorf("server returned code %d", *reply.RetCode)
	}
	if len(reply.Body) < 2 {
		return 0, fmt.Errorf("reply %d is missing its value descriptor", reply.ID)
	}
	return decodeInt32(reply.Body[1]), nil
}

func encodeInt32(v int32) kernel.Descriptor {
	b := []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
	return kernel.Descriptor{ElemKind: 'i', ElemSize: 4, Data: b}
}

func decodeInt32(d kernel.Descriptor) int32 {
	b := d.Data
	return int32(uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]))
}
