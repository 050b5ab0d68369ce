package rpctrace

import (
	"testing"

	"code.hybscloud.com/rpctrace/kernel"
	"github.com/stretchr/testify/require"
)

func TestWrapperSendOnceCorrelationFields(t *testing.T) {
	w := &Wrapper{Kind: SendOnceWrapper, sendOnce: &sendOnceState{}}
	w.setSentTo(77, 2000)
	require.Equal(t, kernel.PortID(77), w.SentTo())
	require.Equal(t, int32(2000), w.SentMsgID())
}

func TestWrapperResetClearsEveryField(t *testing.T) {
	k := kernel.New(1)
	w := &Wrapper{
		Receiver: k.CreatePort(),
		Forward:  kernel.Right{ID: 3, Kind: kernel.MakeSend},
		Kind:     SendWrapper,
		Name:     "task1",
		send:     &sendState{},
	}
	w.reset()
	require.Equal(t, kernel.Receiver{}, w.Receiver)
	require.Equal(t, kernel.Right{}, w.Forward)
	require.Empty(t, w.Name)
	require.Nil(t, w.send)
	require.Nil(t, w.sendOnce)
	require.NotPanics(t, w.assertFreelistClean)
}

func TestWrapperKindString(t *testing.T) {
	require.Equal(t, "send-wrapper", SendWrapper.String())
	require.Equal(t, "send-once-wrapper", SendOnceWrapper.String())
}

func TestWrapperArmMismatchPanics(t *testing.T) {
	w := &Wrapper{Kind: SendWrapper}
	require.Panics(t, func() { w.sendOnceArm() })
}
