package demo

import (
	"context"
	"fmt"

	"code.hybscloud.com/rpctrace/kernel"
)

// Call sends msgid to dest carrying args, waits for the matching reply, and
// returns the decoded reply value. dest is normally a wrapper's send right
// (task<pid> in rpctrace's own terms), never the server's real port
// directly, so that every hop crosses the tracer.
func Call(ctx context.Context, k *kernel.Kernel, dest kernel.Right, msgid int32, args ...int32) (int32, error) {
	replyReceiver := k.CreatePort()
	replyRight := k.SendOnceRight(replyReceiver)

	body := make([]kernel.Descriptor, len(args))
	for i, a := range args {
		body[i] = encodeInt32(a)
	}

	req := &kernel.Message{
		ID:         msgid,
		LocalPort:  replyRight.ID,
		LocalKind:  replyRight.Kind,
		RemotePort: dest.ID,
		RemoteKind: dest.Kind,
		Body:       body,
	}
	if err := k.Send(req); err != nil {
		return 0, err
	}

	reply, err := k.Receive(ctx, replyReceiver)
	if err != nil {
		return 0, err
	}
	if reply.ID != msgid+ReplyOffset {
		return 0, fmt.Errorf("demo: unexpected reply id %d for request %d", reply.ID, msgid)
	}
	if len(reply.Body) < 2 {
		return 0, fmt.Errorf("demo: reply %d missing value descriptor", reply.ID)
	}
	if code := decodeInt32(reply.Body[0]); code != KernelSucess {
		return 0, fmt.Errorf("demo: request %d failed with code %d", msgid, code)
	}
	return decodeInt32(reply.Body[1]), nil
}

// Notify sends a one-way, no-reply (simpleroutine) message to dest.
func Notify(k *kernel.Kernel, dest kernel.Right, msgid int32, args ...int32) error {
	body := make([]kernel.Descriptor, len(args))
	for i, a := range args {
		body[i] = encodeInt32(a)
	}
	msg := &kernel.Message{ID: msgid, RemotePort: dest.ID, RemoteKind: dest.Kind, Body: body}
	return k.Send(msg)
}
