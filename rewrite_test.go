package rpctrace

import (
	"testing"

	"code.hybscloud.com/rpctrace/kernel"
	"github.com/stretchr/testify/require"
)

func newTestTracer() (*Tracer, *kernel.Kernel) {
	k := kernel.New(4)
	return New(k), k
}

func TestRewriteNewSendAllocatesWrapper(t *testing.T) {
	tr, k := newTestTracer()
	real := k.CreatePort()
	realSend := k.SendRight(real)

	out, name := tr.RewriteRight(realSend)
	require.Equal(t, kernel.MakeSend, out.Kind)
	require.NotEqual(t, realSend.ID, out.ID, "the caller must see our wrapper's port, not the real one")
	require.Empty(t, name)

	w, ok := tr.Registry.Find(realSend.ID)
	require.True(t, ok)
	require.Equal(t, out.ID, w.Receiver.ID)
}

func TestRewriteSendReusesExistingWrapper(t *testing.T) {
	tr, k := newTestTracer()
	real := k.CreatePort()
	realSend1 := k.SendRight(real)
	realSend2 := k.SendRight(real)

	out1, _ := tr.RewriteRight(realSend1)
	out2, _ := tr.RewriteRight(realSend2)
	require.Equal(t, out1.ID, out2.ID, "repeated sends of the same capability share one wrapper")
}

func TestRewriteSendUnwrapsOwnWrapper(t *testing.T) {
	tr, k := newTestTracer()
	real := k.CreatePort()
	realSend := k.SendRight(real)
	wrapped, _ := tr.RewriteRight(realSend)

	// The tracee hands our own wrapper's send right back to us.
	out, _ := tr.RewriteRight(wrapped)
	require.Equal(t, realSend.ID, out.ID, "must unwrap to the real right, not re-wrap our own wrapper")
}

func TestRewriteSendOnceAlwaysAllocatesFresh(t *testing.T) {
	tr, k := newTestTracer()
	r1 := k.CreatePort()
	r2 := k.CreatePort()
	so1 := k.SendOnceRight(r1)
	so2 := k.SendOnceRight(r2)

	out1, _ := tr.RewriteRight(so1)
	out2, _ := tr.RewriteRight(so2)
	require.Equal(t, kernel.MakeSendOnce, out1.Kind)
	require.NotEqual(t, out1.ID, out2.ID)
}

func TestRewritePortNamePassesThroughUntouched(t *testing.T) {
	tr, _ := newTestTracer()
	right := kernel.Right{ID: 123, Kind: kernel.PortName}
	out, name := tr.RewriteRight(right)
	require.Equal(t, right, out)
	require.Empty(t, name)
}

func TestRewriteNullRightPassesThrough(t *testing.T) {
	tr, _ := newTestTracer()
	out, _ := tr.RewriteRight(kernel.Right{})
	require.Equal(t, kernel.Right{}, out)
}

func TestRewriteReceiveAlreadyRegisteredClaimsAndRepoints(t *testing.T) {
	tr, k := newTestTracer()
	real := k.CreatePort()
	realSend := k.SendRight(real)

	wrapped, _ := tr.RewriteRight(realSend)
	w, ok := tr.Registry.Find(real.ID)
	require.True(t, ok)

	out, name := tr.RewriteRight(kernel.Right{ID: real.ID, Kind: kernel.MoveReceive})

	require.Equal(t, kernel.MoveReceive, out.Kind)
	require.Equal(t, wrapped.ID, out.ID, "move-receive must substitute the wrapper's own receive port")
	require.Equal(t, w.Name, name)
	require.Equal(t, real.ID, w.Forward.ID, "forward still names the same moving port")
	require.Equal(t, kernel.MakeSend, w.Forward.Kind, "forward is a freshly claimed send right")

	w2, ok := tr.Registry.Find(real.ID)
	require.True(t, ok)
	require.Same(t, w, w2, "the same wrapper keeps intercepting traffic on the moved port")
}

func TestRewriteReceiveNotRegisteredInstallsNewWrapper(t *testing.T) {
	tr, k := newTestTracer()
	real := k.CreatePort()

	out, _ := tr.RewriteRight(kernel.Right{ID: real.ID, Kind: kernel.MoveReceive})

	require.Equal(t, kernel.MoveReceive, out.Kind)
	require.NotEqual(t, real.ID, out.ID, "must substitute a new wrapper receive port, not pass the real one through")

	w, ok := tr.Registry.Find(real.ID)
	require.True(t, ok)
	require.Equal(t, out.ID, w.Receiver.ID)
	require.Equal(t, real.ID, w.Forward.ID)
}
