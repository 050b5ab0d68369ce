package rpctrace

import (
	"bytes"
	"testing"

	"code.hybscloud.com/rpctrace/kernel"
	"github.com/stretchr/testify/require"
)

func newTraceTracer(out *bytes.Buffer) *Tracer {
	k := kernel.New(1)
	return New(k, WithOutput(out))
}

func TestTraceRequestReplyMatched(t *testing.T) {
	var out bytes.Buffer
	tr := newTraceTracer(&out)

	tr.traceRequest("task1", 2000, []string{"reply(5:2000)"}, 5, false)
	tr.traceReply("reply(5:2000)", 5, 2100, 2100, 0)

	require.Equal(t, "task1->2000 (reply(5:2000)) = 0\n", out.String())
}

func TestTraceRequestReplyMismatchedMsgID(t *testing.T) {
	var out bytes.Buffer
	tr := newTraceTracer(&out)

	tr.traceRequest("task1", 2000, []string{"reply(5:2000)"}, 5, false)
	tr.traceReply("reply(5:2000)", 5, 9999, 2100, 0)

	require.Equal(t, "task1->2000 (reply(5:2000)) > 5 ...\nreply(5:2000)>5 >(9999) 0\n", out.String())
}

func TestTraceSimpleroutineTerminatesImmediately(t *testing.T) {
	var out bytes.Buffer
	tr := newTraceTracer(&out)
	tr.traceRequest("task1", 9, nil, kernel.NullPort, true)
	require.Equal(t, "task1->9 ();\n", out.String())
}

func TestTraceChildExitFooter(t *testing.T) {
	var out bytes.Buffer
	tr := newTraceTracer(&out)
	tr.traceChildExit(1234, 0, "")
	require.Equal(t, "Child 1234 exited with 0\n", out.String())
}

func TestTraceChildSignalFooter(t *testing.T) {
	var out bytes.Buffer
	tr := newTraceTracer(&out)
	tr.traceChildExit(1234, 0, "SIGSEGV")
	require.Equal(t, "Child 1234 SIGSEGV\n", out.String())
}
