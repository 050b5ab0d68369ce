package rpctrace

import (
	"context"
	"fmt"
	"strings"

	"code.hybscloud.com/rpctrace/kernel"
)

// Run services this tracer's bucket of wrapper receive rights until ctx is
// canceled or the kernel reports an unrecoverable send error. This is the
// forward loop's entry point: a single dedicated worker, matching
// the engine's single-threaded, cooperative design — callers must
// not invoke Run (or any other Tracer method) from more than one goroutine.
func (t *Tracer) Run(ctx context.Context) error {
	for {
		msg, err := t.bucket.Receive(ctx)
		if err != nil {
			return err
		}
		if err := t.handleMessage(msg); err != nil {
			return err
		}
	}
}

// handleMessage implements the forward loop's per-message sequence: look up
// the wrapper, take the notification fast path if this is one, otherwise
// swap the header, classify and print, walk the body, and resend.
func (t *Tracer) handleMessage(msg *kernel.Message) error {
	w, ok := t.Registry.LookupReceive(msg.LocalPort)
	assertf(ok, "no wrapper registered for local port %d", msg.LocalPort)

	if msg.LocalKind == kernel.MoveSendOnce {
		switch msg.ID {
		case kernel.NotifyDeadName:
			t.K.DestroyRight(w.Forward)
			if w.Kind == SendWrapper {
				t.dropWeak(w)
			} else {
				t.freeSendOnce(w)
			}
			return nil
		case kernel.NotifyNoSenders:
			if w.Kind == SendWrapper {
				t.K.Deref(w.Receiver)
			}
			return nil
		}
	}

	replyRight := kernel.Right{ID: msg.RemotePort, Kind: msg.RemoteKind}
	var outLocal kernel.Right
	var replyName string
	if replyRight.Valid() {
		outLocal, replyName = t.RewriteRight(replyRight)
		if rw, ok := t.Registry.LookupReceive(outLocal.ID); ok && rw.Kind == SendOnceWrapper {
			if replyName == "" {
				replyName = defaultReplyName(rw.Receiver.ID, msg.ID)
				rw.Name = replyName
			}
			rw.setSentTo(w.Receiver.ID, msg.ID)
		}
	}

	forwardKind := kernel.CopySend
	if w.Kind == SendOnceWrapper {
		forwardKind = kernel.MoveSendOnce
	}

	out := &kernel.Message{
		ID:         msg.ID,
		LocalPort:  outLocal.ID,
		LocalKind:  outLocal.Kind,
		RemotePort: w.Forward.ID,
		RemoteKind: forwardKind,
		Complex:    msg.Complex,
		Body:       msg.Body,
		RetCode:    msg.RetCode,
	}

	isReply := w.Kind == SendOnceWrapper && msg.RetCode != nil
	sender := senderLabel(w)
	replyLabel, replyWrapperPort := w.Name, w.Receiver.ID
	var replySentMsgID int32
	if isReply {
		replySentMsgID = w.SentMsgID()
	}
	if w.Kind == SendOnceWrapper {
		t.freeSendOnce(w)
	}

	argv := t.WalkBody(out.Body)
	args := make([]string, 0, len(argv))
	for _, a := range argv {
		if len(a) == 1 {
			args = append(args, a[0])
		} else {
			args = append(args, "{"+strings.Join(a, " ")+"}")
		}
	}

	if isReply {
		t.traceReply(replyLabel, replyWrapperPort, msg.ID, replySentMsgID+100, *msg.RetCode)
	} else {
		simpleroutine := !replyRight.Valid()
		t.traceRequest(sender, msg.ID, args, outLocal.ID, simpleroutine)
	}

	err := t.K.Send(out)
	if err != nil {
		if err == kernel.ErrInvalidDest {
			t.opts.Metrics.MessageDropped("invalid-dest")
			return nil
		}
		return fmt.Errorf("rpctrace: forwarding message %d: %w", msg.ID, err)
	}
	t.opts.Metrics.MessageForwarded()
	return nil
}

func senderLabel(w *Wrapper) string {
	if w.Name != "" {
		return w.Name
	}
	return fmt.Sprintf("%d", w.Receiver.ID)
}
