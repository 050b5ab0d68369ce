package rpctrace

import (
	"fmt"
	"strings"

	"code.hybscloud.com/rpctrace/kernel"
)

// pendingLine is a request line written without its trailing terminator,
// left open until its reply (or some unrelated message) closes it — the
// "unfinished line" of the trace grammar.
type pendingLine struct {
	text string
	port kernel.PortID // expected_reply_port
}

// traceRequest prints a request line. A simpleroutine (no reply port
// expected) is terminated immediately with ";"; otherwise the line is left
// open, recorded as the pending correlation target for the next reply.
func (t *Tracer) traceRequest(sender string, msgid int32, args []string, replyPort kernel.PortID, simpleroutine bool) {
	text := fmt.Sprintf("%s->%d (%s)", sender, msgid, strings.Join(args, " "))
	if simpleroutine {
		t.flushUnfinished()
		fmt.Fprintf(t.opts.Output, "%s;\n", text)
		return
	}
	t.flushUnfinished()
	t.line = &pendingLine{text: text, port: replyPort}
	t.expectedReplyPort = replyPort
}

// flushUnfinished closes any open request line that a new, uncorrelated
// message has interrupted, with "> <port> ...".
func (t *Tracer) flushUnfinished() {
	if t.line == nil {
		return
	}
	fmt.Fprintf(t.opts.Output, "%s > %d ...\n", t.line.text, t.line.port)
	t.line = nil
	t.expectedReplyPort = kernel.NullPort
}

// traceReply prints a reply, correlating it against the open request line
// (if any) on the same port. onPort is the reply wrapper's own receive
// port — the expected_reply_port a matching reply must arrive on; got and
// expected are the reply's msgh_id and sent_msgid+100 respectively.
func (t *Tracer) traceReply(label string, onPort kernel.PortID, got, expected, retcode int32) {
	if t.line != nil && onPort == t.expectedReplyPort && got == expected {
		fmt.Fprintf(t.opts.Output, "%s = %d\n", t.line.text, retcode)
		t.line = nil
		t.expectedReplyPort = kernel.NullPort
		return
	}
	t.flushUnfinished()
	if got != expected {
		fmt.Fprintf(t.opts.Output, "%s>%d >(%d) %d\n", label, onPort, got, retcode)
	} else {
		fmt.Fprintf(t.opts.Output, "%s>%d > %d\n", label, onPort, retcode)
	}
}

// traceChildExit prints the footer the trace grammar specifies once the
// traced child has been reaped.
func (t *Tracer) traceChildExit(pid int, code int, signal string) {
	t.flushUnfinished()
	if signal != "" {
		fmt.Fprintf(t.opts.Output, "Child %d %s\n", pid, signal)
		return
	}
	fmt.Fprintf(t.opts.Output, "Child %d exited with %d\n", pid, code)
}

// ChildExited reports a traced child's termination so the trace stream can
// print its footer. code is ignored when signal is non-empty.
func (t *Tracer) ChildExited(pid int, code int, signal string) {
	t.traceChildExit(pid, code, signal)
}
