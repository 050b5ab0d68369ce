package rpctrace

import (
	"code.hybscloud.com/rpctrace/kernel"
)

// Kind distinguishes the two wrapper variants the engine maintains.
type Kind uint8

const (
	SendWrapper Kind = iota
	SendOnceWrapper
)

// sendState holds the fields that exist only for a SendWrapper: the
// back-pointer into the registry that makes teardown O(1).
type sendState struct {
	entry *registryEntry
}

// sendOnceState holds the fields that exist only for a SendOnceWrapper: the
// hint used to correlate the single reply it is expected to carry.
type sendOnceState struct {
	sentTo    kernel.PortID
	sentMsgID int32
}

// Wrapper is the central entity of the tracing engine: a receive right
// standing in for a real forward right, plus per-kind state. The per-kind
// fields are modeled as a tagged variant (two mutually exclusive
// pointer-typed structs) rather than overlapping fields on one struct, to
// eliminate a whole class of read-the-wrong-arm bugs.
type Wrapper struct {
	Receiver kernel.Receiver
	Forward  kernel.Right // the real right this wrapper relays to
	Kind     Kind
	Name     string

	send     *sendState
	sendOnce *sendOnceState
}

// sendArm returns the send-kind state, asserting Kind is SendWrapper.
func (w *Wrapper) sendArm() *sendState {
	assertf(w.Kind == SendWrapper, "sendArm called on a %v wrapper", w.Kind)
	return w.send
}

// sendOnceArm returns the send-once state, asserting Kind is SendOnceWrapper.
func (w *Wrapper) sendOnceArm() *sendOnceState {
	assertf(w.Kind == SendOnceWrapper, "sendOnceArm called on a %v wrapper", w.Kind)
	return w.sendOnce
}

// SentTo and SentMsgID record, for a send-once wrapper carrying a reply
// port, the wrapper through which the originating request was forwarded and
// that request's message ID, so the eventual reply can be correlated back
// to it.
func (w *Wrapper) SentTo() kernel.PortID  { return w.sendOnceArm().sentTo }
func (w *Wrapper) SentMsgID() int32       { return w.sendOnceArm().sentMsgID }
func (w *Wrapper) setSentTo(id kernel.PortID, msgid int32) {
	s := w.sendOnceArm()
	s.sentTo, s.sentMsgID = id, msgid
}

// reset clears every field except Kind so the Wrapper is fit to sit on the
// freelist: no receive right, no forward right, no name, no registry handle.
// Kind is left as it was; the constructors set it when the slot is reused.
func (w *Wrapper) reset() {
	w.Receiver = kernel.Receiver{}
	w.Forward = kernel.Right{}
	w.Name = ""
	w.send = nil
	w.sendOnce = nil
}

// assertFreelistClean asserts the discipline described above, called when a
// slot is pulled off the freelist for reuse.
func (w *Wrapper) assertFreelistClean() {
	assertf(w.Receiver == (kernel.Receiver{}), "freelist slot has a receive right")
	assertf(w.Forward == (kernel.Right{}), "freelist slot has a forward right")
	assertf(w.Name == "", "freelist slot has a name")
	assertf(w.send == nil && w.sendOnce == nil, "freelist slot has kind state")
}

func (k Kind) String() string {
	if k == SendWrapper {
		return "send-wrapper"
	}
	return "send-once-wrapper"
}
