package main

import (
	"context"
	"io"
	"os/exec"
	"testing"
	"time"

	rpctrace "code.hybscloud.com/rpctrace"
	"code.hybscloud.com/rpctrace/kernel"
	"code.hybscloud.com/rpctrace/wire"
	"github.com/stretchr/testify/require"
)

func TestExitStatusSuccess(t *testing.T) {
	code, signal := exitStatus(nil)
	require.Equal(t, 0, code)
	require.Empty(t, signal)
}

func TestExitStatusNonZeroCode(t *testing.T) {
	err := exec.Command("sh", "-c", "exit 3").Run()
	require.Error(t, err)
	code, signal := exitStatus(err)
	require.Equal(t, 3, code)
	require.Empty(t, signal)
}

func TestExitStatusSignaled(t *testing.T) {
	err := exec.Command("sh", "-c", "kill -TERM $$").Run()
	require.Error(t, err)
	code, signal := exitStatus(err)
	require.Equal(t, 0, code)
	require.Equal(t, "terminated", signal)
}

// TestBridgeChildRoundTrip drives bridgeChild against in-memory pipes
// standing in for a traced child's stdio, without spawning a real process,
// and checks a request reaches the real server and its reply comes back.
func TestBridgeChildRoundTrip(t *testing.T) {
	k := kernel.New(4)
	tr := rpctrace.New(k)

	server := k.CreatePort()
	go func() {
		for {
			msg, err := k.Receive(context.Background(), server)
			if err != nil {
				return
			}
			code := int32(0)
			reply := &kernel.Message{
				ID:         msg.ID + 100,
				RemotePort: msg.RemotePort,
				RemoteKind: msg.RemoteKind,
				Body:       []kernel.Descriptor{{ElemKind: 'i', ElemSize: 4, Data: []byte{0, 0, 0, 0}}, {ElemKind: 'i', ElemSize: 4, Data: []byte{0, 0, 0, 42}}},
				RetCode:    &code,
			}
			_ = k.Send(reply)
		}
	}()
	forward := k.SendRight(server)
	dest := tr.Install(forward, "task1")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go tr.Run(ctx)

	childStdinR, childStdinW := io.Pipe()
	childStdoutR, childStdoutW := io.Pipe()

	go func() {
		_ = bridgeChild(ctx, k, childStdinW, childStdoutR, dest)
	}()

	// Play the traced child: write one request to its "stdout" (read by the
	// bridge) and read the reply from its "stdin" (written by the bridge).
	enc := wire.NewEncoder(childStdoutW)
	dec := wire.NewDecoder(childStdinR)

	require.NoError(t, enc.Encode(&kernel.Message{
		ID:         42,
		LocalPort:  1,
		LocalKind:  kernel.MakeSendOnce,
		RemotePort: 2,
		RemoteKind: kernel.CopySend,
	}))

	reply, err := dec.Decode()
	require.NoError(t, err)
	require.Equal(t, int32(142), reply.ID)
	require.NotNil(t, reply.RetCode)
	require.Equal(t, int32(0), *reply.RetCode)
}
