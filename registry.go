package rpctrace

import "code.hybscloud.com/rpctrace/kernel"

// registryEntry is the back-pointer a SendWrapper holds into the registry
// that indexes it, giving Registry.RemoveViaHandle O(1) removal without a
// second map lookup.
type registryEntry struct {
	reg *Registry
	key kernel.PortID
}

func (e *registryEntry) remove() { delete(e.reg.byForward, e.key) }

// Registry maps each real send right the tracer has seen to the unique
// SendWrapper that intercepts it, and owns the freelist of reusable
// wrapper slots (of either kind).
//
// Registry state is touched only from the forward loop's goroutine — see
// Tracer.Run — so it carries no locks.
type Registry struct {
	byForward map[kernel.PortID]*Wrapper
	byReceive map[kernel.PortID]*Wrapper // every live wrapper, keyed by its own receive right
	freelist  []*Wrapper                 // LIFO: append pushes, truncate-from-end pops
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byForward: make(map[kernel.PortID]*Wrapper),
		byReceive: make(map[kernel.PortID]*Wrapper),
	}
}

// TrackReceive records w under its own receive right, so LookupReceive can
// answer "is this port name one of our own wrapper ports?" and the
// forward loop can find the wrapper owning an
// inbound message's local port. Every live wrapper, of either kind, is
// tracked here for as long as it lives.
func (r *Registry) TrackReceive(w *Wrapper) {
	r.byReceive[w.Receiver.ID] = w
}

// UntrackReceive removes w once its receive right is no longer ours to
// answer for, when the wrapper is freelisted. A receive-right transfer
// leaves the wrapper tracked.
func (r *Registry) UntrackReceive(w *Wrapper) {
	delete(r.byReceive, w.Receiver.ID)
}

// LookupReceive finds the wrapper (of either kind) owning receive right id,
// if we are the ones holding it.
func (r *Registry) LookupReceive(id kernel.PortID) (*Wrapper, bool) {
	w, ok := r.byReceive[id]
	return w, ok
}

// Find performs the O(1) reverse lookup from a forward right to the
// SendWrapper relaying it, if any.
func (r *Registry) Find(forward kernel.PortID) (*Wrapper, bool) {
	w, ok := r.byForward[forward]
	return w, ok
}

// Insert registers w under its Forward right. It fails with
// ErrDuplicateForward if that right is already registered to a different
// wrapper — no two live send-wrappers may share a forward right.
func (r *Registry) Insert(w *Wrapper) error {
	assertf(w.Kind == SendWrapper, "Insert: %v is not a send-wrapper", w.Kind)
	if existing, ok := r.byForward[w.Forward.ID]; ok && existing != w {
		return ErrDuplicateForward
	}
	r.byForward[w.Forward.ID] = w
	w.send = &sendState{entry: &registryEntry{reg: r, key: w.Forward.ID}}
	return nil
}

// RemoveViaHandle removes w from the registry in O(1) using its stored
// back-pointer.
func (r *Registry) RemoveViaHandle(w *Wrapper) {
	e := w.sendArm().entry
	assertf(e != nil, "RemoveViaHandle: wrapper carries no registry handle")
	e.remove()
}

// ClaimFreelistSlot pops the most recently released wrapper slot, or
// returns nil if the freelist is empty. The returned slot carries no
// receive right, name, or forward right.
func (r *Registry) ClaimFreelistSlot() *Wrapper {
	n := len(r.freelist)
	if n == 0 {
		return nil
	}
	w := r.freelist[n-1]
	r.freelist = r.freelist[:n-1]
	w.assertFreelistClean()
	return w
}

// ReleaseToFreelist zeroes w and pushes it onto the freelist. The caller
// must guarantee no other references to w exist.
func (r *Registry) ReleaseToFreelist(w *Wrapper) {
	w.reset()
	r.freelist = append(r.freelist, w)
}

// Len reports the number of live send-wrapper registrations (for metrics).
func (r *Registry) Len() int { return len(r.byForward) }

// FreelistLen reports the number of reusable slots waiting on the freelist
// (for metrics).
func (r *Registry) FreelistLen() int { return len(r.freelist) }
