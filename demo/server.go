package demo

import (
	"context"

	"code.hybscloud.com/rpctrace/kernel"
)

// RunEchoServer answers requests on r until ctx is canceled or the receive
// fails: MsgGetPID always answers 4242, MsgEcho answers with its single
// int32 argument, anything else answers 0. Simpleroutine requests (no reply
// right attached) are silently discarded, matching a real server's
// behavior toward a one-way call.
func RunEchoServer(ctx context.Context, k *kernel.Kernel, r kernel.Receiver) error {
	for {
		msg, err := k.Receive(ctx, r)
		if err != nil {
			return err
		}

		var value int32
		switch msg.ID {
		case MsgGetPID:
			value = 4242
		case MsgEcho:
			if len(msg.Body) > 0 {
				value = decodeInt32(msg.Body[0])
			}
		}

		if msg.RemotePort == kernel.NullPort {
			continue
		}

		code := KernelSucess
		reply := &kernel.Message{
			ID:         msg.ID + ReplyOffset,
			RemotePort: msg.RemotePort,
			RemoteKind: msg.RemoteKind,
			Body:       []kernel.Descriptor{retCodeDescriptor(code), encodeInt32(value)},
			RetCode:    &code,
		}
		if err := k.Send(reply); err != nil && err != kernel.ErrInvalidDest {
			return err
		}
	}
}
