package rpctrace

import (
	"fmt"

	"code.hybscloud.com/rpctrace/kernel"
)

// Tracer owns the registry, freelist, and kernel handle that together
// implement the tracing engine's interposition logic. All of its methods
// are meant to be called from exactly one goroutine (see Run), which is
// what lets the engine stay single-threaded and lock-free.
type Tracer struct {
	K        *kernel.Kernel
	Registry *Registry
	bucket   *kernel.Bucket
	opts     Options

	expectedReplyPort kernel.PortID // the request line left open, awaiting its reply
	line              *pendingLine
}

// New constructs a Tracer over a shared kernel.Kernel. Every wrapper it
// creates enrolls its receive right in one bucket, so Run services the
// whole set with a single blocking receive.
func New(k *kernel.Kernel, opts ...Option) *Tracer {
	o := defaultOptions
	for _, fn := range opts {
		fn(&o)
	}
	return &Tracer{K: k, Registry: NewRegistry(), bucket: k.NewBucket(16), opts: o}
}

// Bucket exposes the port set backing this tracer's wrappers.
func (t *Tracer) Bucket() *kernel.Bucket { return t.bucket }

// Install wraps an existing real send right (typically the traced task's
// kernel port, installed in place of the real one before the child execs)
// under name, and returns the send right to hand to the child in its
// place. This is the tracer's one public entry point for seeding the
// registry; every other wrapper is created on demand by RewriteRight as
// messages flow.
func (t *Tracer) Install(forward kernel.Right, name string) kernel.Right {
	w, out := t.newSendWrapper(forward)
	w.Name = name
	return out
}

// newSendWrapper allocates (reusing a freelist slot when available) a
// SendWrapper relaying forward, registers it, and returns both the wrapper
// and a fresh send right to its own receive port — the Go analogue of
// rpctrace.c's new_send_wrapper.
func (t *Tracer) newSendWrapper(forward kernel.Right) (*Wrapper, kernel.Right) {
	w := t.Registry.ClaimFreelistSlot()
	if w == nil {
		w = &Wrapper{}
	}
	// A freelist slot carries no receive right, so every wrapper gets a new one.
	w.Receiver = t.K.CreatePortIn(t.bucket)
	t.K.SetDropWeak(w.Receiver, func() { t.dropWeak(w) })
	w.Kind = SendWrapper
	w.Forward = forward

	if err := t.Registry.Insert(w); err != nil {
		// Can only happen if the caller already checked Find and raced
		// itself on the same goroutine — a programming error.
		panic(err)
	}
	t.K.Ref(w.Receiver) // registry holds the corresponding weak ref implicitly
	t.Registry.TrackReceive(w)
	t.opts.Metrics.WrapperRegistered(SendWrapper)
	if forward.Valid() {
		t.K.WatchDeadName(forward.ID, w.Receiver)
	}

	right := t.K.SendRight(w.Receiver)
	return w, right
}

// newSendOnceWrapper allocates a SendOnceWrapper relaying forward. Send-once
// rights are never registered: each transfer is unique by
// construction, so every one gets its own disposable wrapper.
func (t *Tracer) newSendOnceWrapper(forward kernel.Right) (*Wrapper, kernel.Right) {
	w := t.Registry.ClaimFreelistSlot()
	if w == nil {
		w = &Wrapper{}
	}
	w.Receiver = t.K.CreatePortIn(t.bucket)
	w.Kind = SendOnceWrapper
	w.Forward = forward
	w.sendOnce = &sendOnceState{}
	t.Registry.TrackReceive(w)
	t.opts.Metrics.WrapperRegistered(SendOnceWrapper)
	if forward.Valid() {
		t.K.WatchDeadName(forward.ID, w.Receiver)
	}

	right := t.K.SendOnceRight(w.Receiver)
	return w, right
}

// dropWeak is the callback fired when a SendWrapper's hard refcount (sends
// outstanding to its receive right) reaches zero: it unregisters the
// wrapper, releases the forward right so the real port also observes
// no-senders, and returns the slot to the freelist (rpctrace.c's
// traced_dropweak).
func (t *Tracer) dropWeak(w *Wrapper) {
	assertf(w.Kind == SendWrapper, "dropWeak on a %v wrapper", w.Kind)
	t.Registry.RemoveViaHandle(w)
	t.Registry.UntrackReceive(w)
	t.K.Deallocate(w.Forward)
	t.opts.Metrics.WrapperFreed(SendWrapper)
	t.Registry.ReleaseToFreelist(w)
}

// freeSendOnce reclaims a send-once wrapper immediately after it has carried
// its single message, or when a dead-name notification reports that its
// forward destination died. A send-once notification does not reclaim it:
// the forward loop has no case for NotifySendOnce.
func (t *Tracer) freeSendOnce(w *Wrapper) {
	assertf(w.Kind == SendOnceWrapper, "freeSendOnce on a %v wrapper", w.Kind)
	t.Registry.UntrackReceive(w)
	t.opts.Metrics.WrapperFreed(SendOnceWrapper)
	t.Registry.ReleaseToFreelist(w)
}

func defaultReplyName(port kernel.PortID, msgid int32) string {
	return fmt.Sprintf("reply(%d:%d)", port, msgid)
}
