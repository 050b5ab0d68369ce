package rpctrace

import "code.hybscloud.com/rpctrace/kernel"

// RewriteRight decides what a single port right crossing the tracer should
// become on the way out, and performs whatever registry/kernel bookkeeping
// that decision implies. It returns the right to substitute into the
// outgoing message and a human-readable name for the trace line.
//
// The cases below follow rewrite_right in the original source, case by case:
// the three send-right transfer kinds share one branch, send-once rights
// always mint a fresh watcher, receive-right transfers reuse or create a
// wrapper around the moving receive right, and port-names/null/dead rights
// pass through untouched.
func (t *Tracer) RewriteRight(right kernel.Right) (out kernel.Right, name string) {
	switch {
	case right.Kind.IsSend():
		return t.rewriteSend(right)
	case right.Kind.IsSendOnce():
		return t.rewriteSendOnce(right)
	case right.Kind == kernel.MoveReceive:
		return t.rewriteReceive(right)
	default:
		// port-name, or an already-null/dead right: nothing to intercept.
		return right, ""
	}
}

// rewriteSend handles move-send, copy-send, and make-send. If the right
// already names one of our own wrapper's receive ports, the sender is
// handing back a right we gave out earlier: unwrap to the real forward
// right instead of wrapping our own wrapper a second time. If the right
// names an already-registered forward, the existing wrapper is reused so
// that repeated sends of the same capability don't multiply wrappers.
// Otherwise, a new SendWrapper is allocated.
func (t *Tracer) rewriteSend(right kernel.Right) (kernel.Right, string) {
	if w, ok := t.Registry.LookupReceive(right.ID); ok && w.Kind == SendWrapper {
		t.K.Deallocate(right)
		return w.Forward, w.Name
	}

	if w, ok := t.Registry.Find(right.ID); ok {
		t.K.Deallocate(right)
		out := t.K.SendRight(w.Receiver)
		return out, w.Name
	}

	w, out := t.newSendWrapper(right)
	return out, w.Name
}

// rewriteSendOnce handles move-send-once and make-send-once. Every send-once
// right is unique by construction (a reply port minted for a single RPC), so
// it always gets a fresh, unregistered wrapper.
func (t *Tracer) rewriteSendOnce(right kernel.Right) (kernel.Right, string) {
	w, out := t.newSendOnceWrapper(right)
	return out, w.Name
}

// rewriteReceive handles move-receive: the real receive right is leaving our
// purview for whatever owns the other end of this hop. Tracing must not stop
// just because the right moved, so the engine substitutes its own receive
// port for the moving one and keeps relaying to it under a freshly claimed
// handle:
//
//   - If a SendWrapper already forwards sends to this same port, that
//     wrapper's send-right holders must keep reaching the same identity:
//     its own receive port goes out in place of the moving right, and its
//     Forward is repointed to a fresh send right on the just-claimed receive
//     right so the wrapper keeps relaying traffic to it. The registry key is
//     unaffected — a wrapper's forward right always names the same port it
//     was registered under, move or not.
//   - If nothing was registered, the moving right was never intercepted
//     before; a new wrapper is installed around it so tracing begins on it
//     now.
func (t *Tracer) rewriteReceive(right kernel.Right) (kernel.Right, string) {
	if w, ok := t.Registry.Find(right.ID); ok {
		claimed := t.K.Claim(right.ID)
		fresh := t.K.SendRight(claimed)
		t.K.Deallocate(w.Forward)
		w.Forward = fresh
		return kernel.Right{ID: w.Receiver.ID, Kind: kernel.MoveReceive}, w.Name
	}

	imported := t.K.ImportPort(right.ID)
	fresh := t.K.SendRight(imported)
	w, _ := t.newSendWrapper(fresh)
	return kernel.Right{ID: w.Receiver.ID, Kind: kernel.MoveReceive}, w.Name
}
