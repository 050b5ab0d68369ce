package kernel_test

import (
	"context"
	"testing"
	"time"

	"code.hybscloud.com/rpctrace/kernel"
	"github.com/stretchr/testify/require"
)

func TestSendReceiveRoundTrip(t *testing.T) {
	k := kernel.New(1)
	r := k.CreatePort()
	send := k.SendRight(r)

	msg := &kernel.Message{ID: 42, RemotePort: send.ID, RemoteKind: send.Kind}
	require.NoError(t, k.Send(msg))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := k.Receive(ctx, r)
	require.NoError(t, err)
	require.Equal(t, int32(42), got.ID)
	require.Equal(t, r.ID, got.LocalPort)
}

func TestSendSwapsHeaderToReceiveConvention(t *testing.T) {
	k := kernel.New(1)
	server := k.CreatePort()
	serverSend := k.SendRight(server)

	replyReceiver := k.CreatePort()
	replyRight := k.SendOnceRight(replyReceiver)

	msg := &kernel.Message{
		ID:         7,
		LocalPort:  replyRight.ID,
		LocalKind:  replyRight.Kind,
		RemotePort: serverSend.ID,
		RemoteKind: serverSend.Kind,
	}
	require.NoError(t, k.Send(msg))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := k.Receive(ctx, server)
	require.NoError(t, err)
	require.Equal(t, server.ID, got.LocalPort, "local port becomes the port received on")
	require.Equal(t, replyRight.ID, got.RemotePort, "remote port becomes the attached reply right")
}

func TestSendToUnknownPortIsInvalidDest(t *testing.T) {
	k := kernel.New(1)
	err := k.Send(&kernel.Message{ID: 1, RemotePort: 999})
	require.ErrorIs(t, err, kernel.ErrInvalidDest)
}

func TestSendToDestroyedPortIsInvalidDest(t *testing.T) {
	k := kernel.New(1)
	r := k.CreatePort()
	send := k.SendRight(r)
	k.DestroyRight(kernel.Right{ID: r.ID, Kind: kernel.MoveReceive})

	err := k.Send(&kernel.Message{ID: 1, RemotePort: send.ID, RemoteKind: send.Kind})
	require.ErrorIs(t, err, kernel.ErrInvalidDest)
}

func TestDerefFiresDropWeakAtZero(t *testing.T) {
	k := kernel.New(1)
	r := k.CreatePort()
	fired := false
	k.SetDropWeak(r, func() { fired = true })

	k.Ref(r)
	k.Deref(r)
	require.True(t, fired)
}

func TestBucketReceivesFromEveryEnrolledPort(t *testing.T) {
	k := kernel.New(1)
	b := k.NewBucket(4)
	a := k.CreatePortIn(b)
	c := k.CreatePortIn(b)

	sendA := k.SendRight(a)
	sendC := k.SendRight(c)
	require.NoError(t, k.Send(&kernel.Message{ID: 1, RemotePort: sendA.ID, RemoteKind: sendA.Kind}))
	require.NoError(t, k.Send(&kernel.Message{ID: 2, RemotePort: sendC.ID, RemoteKind: sendC.Kind}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	seen := map[int32]bool{}
	for i := 0; i < 2; i++ {
		msg, err := b.Receive(ctx)
		require.NoError(t, err)
		seen[msg.ID] = true
	}
	require.True(t, seen[1])
	require.True(t, seen[2])
}

func TestModRefsFiresNoSendersAtZero(t *testing.T) {
	k := kernel.New(1)
	r := k.CreatePort()
	send := k.SendRight(r)

	k.Deallocate(send)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, err := k.Receive(ctx, r)
	require.NoError(t, err)
	require.Equal(t, kernel.NotifyNoSenders, msg.ID)
	require.Equal(t, r.ID, msg.LocalPort)
}

func TestModRefsDoesNotFireNoSendersWhileSendersRemain(t *testing.T) {
	k := kernel.New(1)
	r := k.CreatePort()
	_ = k.SendRight(r)
	send2 := k.SendRight(r)

	k.Deallocate(send2)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := k.Receive(ctx, r)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWatchDeadNameFiresOnDestroyReceiver(t *testing.T) {
	k := kernel.New(1)
	target := k.CreatePort()
	watcher := k.CreatePort()

	k.WatchDeadName(target.ID, watcher)
	k.DestroyRight(kernel.Right{ID: target.ID, Kind: kernel.MoveReceive})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, err := k.Receive(ctx, watcher)
	require.NoError(t, err)
	require.Equal(t, kernel.NotifyDeadName, msg.ID)
	require.Equal(t, watcher.ID, msg.LocalPort)
}

func TestWatchDeadNameFiresImmediatelyIfAlreadyDead(t *testing.T) {
	k := kernel.New(1)
	target := k.CreatePort()
	watcher := k.CreatePort()
	k.DestroyRight(kernel.Right{ID: target.ID, Kind: kernel.MoveReceive})

	k.WatchDeadName(target.ID, watcher)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, err := k.Receive(ctx, watcher)
	require.NoError(t, err)
	require.Equal(t, kernel.NotifyDeadName, msg.ID)
}

func TestRightKindStringsAndPredicates(t *testing.T) {
	require.True(t, kernel.MoveSend.IsSend())
	require.True(t, kernel.CopySend.IsSend())
	require.True(t, kernel.MakeSend.IsSend())
	require.False(t, kernel.MoveReceive.IsSend())

	require.True(t, kernel.MoveSendOnce.IsSendOnce())
	require.True(t, kernel.MakeSendOnce.IsSendOnce())
	require.False(t, kernel.MoveSend.IsSendOnce())

	require.Equal(t, "move-send", kernel.MoveSend.String())
	require.Equal(t, "port-name", kernel.PortName.String())
}

func TestRightValid(t *testing.T) {
	require.False(t, kernel.Right{ID: kernel.NullPort}.Valid())
	require.False(t, kernel.Right{ID: kernel.DeadPort}.Valid())
	require.True(t, kernel.Right{ID: 5}.Valid())
}
