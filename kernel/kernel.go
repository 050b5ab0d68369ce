// Package kernel simulates the capability-passing message-passing primitives
// that a real microkernel (Mach, and by descent GNU Hurd) exposes to user
// tasks: ports, the three right kinds a port can be held by, reference
// counting on those rights, and a blocking send/receive queue per port.
//
// rpctrace's tracing engine is written against this package's primitives
// (create_port, get_send_right, claim_right, destroy_right, ref/deref/
// weak_ref, msg_send, msg_receive_into, mod_refs, insert_right, deallocate),
// so the engine itself never assumes anything about a real kernel being
// underneath.
//
// Unlike the tracing engine's own state (registry, freelist — confined to
// one goroutine by design, see the root package), the Kernel's port table is
// shared by every task in the simulation (the tracee, the tracer, and any
// destination service) and is therefore guarded by a mutex, the same way a
// real kernel's port namespace is synchronized by the OS.
package kernel

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// PortID names a receive right inside the kernel's port table.
type PortID uint64

const (
	// NullPort is never a valid receive right; it denotes "no port".
	NullPort PortID = 0
	// DeadPort denotes a right whose receiver has been destroyed.
	DeadPort PortID = ^PortID(0)
)

// RightKind is the transfer-kind annotation a port right carries inside a
// message.
type RightKind uint8

const (
	// Zero value: absent / not a right.
	KindNone RightKind = iota
	MoveSend
	CopySend
	MakeSend
	MoveSendOnce
	MakeSendOnce
	MoveReceive
	PortName
)

// IsSend reports whether kind denotes any flavor of send right.
func (k RightKind) IsSend() bool {
	return k == MoveSend || k == CopySend || k == MakeSend
}

// IsSendOnce reports whether kind denotes any flavor of send-once right.
func (k RightKind) IsSendOnce() bool {
	return k == MoveSendOnce || k == MakeSendOnce
}

func (k RightKind) String() string {
	switch k {
	case MoveSend:
		return "move-send"
	case CopySend:
		return "copy-send"
	case MakeSend:
		return "make-send"
	case MoveSendOnce:
		return "move-send-once"
	case MakeSendOnce:
		return "make-send-once"
	case MoveReceive:
		return "move-receive"
	case PortName:
		return "port-name"
	default:
		return "none"
	}
}

// Right is a capability handle: a port name together with the kind under
// which it is currently held. Rights are plain values; their validity is
// tracked by the Kernel's port table, not by the Go runtime's GC.
type Right struct {
	ID   PortID
	Kind RightKind
}

// Valid reports whether r denotes a real (non-null, non-dead) right.
func (r Right) Valid() bool {
	return r.ID != NullPort && r.ID != DeadPort
}

// Receiver is a capability handle for a receive right: the one kind of right
// that can be waited on and whose lifecycle (refs, drop-weak, notifications)
// the Kernel tracks. Unlike Right, a Receiver is bound to the Kernel that
// created it, so its methods never need a *Kernel argument threaded through.
type Receiver struct {
	k  *Kernel
	ID PortID
}

// Notification message IDs, mirroring MACH_NOTIFY_*.
const (
	NotifyDeadName  int32 = -1000
	NotifyNoSenders int32 = -1001
	NotifySendOnce  int32 = -1002
)

// Descriptor is one typed item inside a Message's body: either an array of
// port rights (TransferKind is a right kind) or a scalar data payload
// (TransferKind is KindNone, interpreted via ElemKind/ElemSize instead).
type Descriptor struct {
	TransferKind RightKind // KindNone => this is a data descriptor, not ports
	Inline       bool      // data/port array is carried inline vs out-of-line
	Ports        []Right   // valid when TransferKind != KindNone
	ElemKind     byte      // scalar element type tag, see the format package's tag constants
	ElemSize     int       // bytes per scalar element
	Data         []byte    // valid when TransferKind == KindNone
}

// NumElements reports how many array elements this descriptor carries.
func (d Descriptor) NumElements() int {
	if d.TransferKind != KindNone {
		return len(d.Ports)
	}
	if d.ElemSize == 0 {
		return 0
	}
	return len(d.Data) / d.ElemSize
}

// Message is one Mach-style IPC message: a header plus a body of typed
// descriptors. Fields follow the send-time convention (RemotePort/RemoteKind
// name the destination, LocalPort/LocalKind name the reply right carried
// along, if any); Send swaps them to the receive-time convention
// (LocalPort/LocalKind become the port received on, RemotePort/RemoteKind
// the reply right) before delivery, exactly as a real microkernel does when
// handing a message to its receiver.
type Message struct {
	ID         int32
	LocalPort  PortID
	LocalKind  RightKind
	RemotePort PortID
	RemoteKind RightKind
	Complex    bool // true if the body carries any typed descriptors at all
	Body       []Descriptor

	// RetCode marks a reply message and carries its canonical return-code
	// descriptor, the value MIG always places first in a reply body.
	RetCode *int32
}

var (
	// ErrInvalidDest reports that msg_send targeted an unknown or dead port.
	// non-fatal: the message is simply discarded.
	ErrInvalidDest = errors.New("kernel: invalid destination port")
	// ErrDead reports an operation against a port whose receiver is gone.
	ErrDead = errors.New("kernel: port is dead")
)

type portEntry struct {
	recv     chan *Message
	sendRefs int
	hardRefs int // hard references on the in-process wrapper object, if any
	weak     func() // drop-weak callback, invoked when hardRefs hits zero
	alive    bool
	sendOnce bool // not set by any operation: send-once use is not tracked

	// deadNameWatchers names the receivers to notify, via a synthetic
	// dead-name message on their own port, if this port's receiver is
	// destroyed — registered by WatchDeadName, fired once by DestroyRight.
	deadNameWatchers []PortID
}

// Kernel is the shared port table. The zero value is not usable; use New.
type Kernel struct {
	mu      sync.Mutex
	next    PortID
	ports   map[PortID]*portEntry
	msgChan int // queue depth for newly created ports
}

// New returns an empty Kernel. msgChanDepth bounds how many undelivered
// messages may queue on a single port's receive channel before Send blocks;
// 0 means unbuffered (send blocks until the receiver is ready).
func New(msgChanDepth int) *Kernel {
	return &Kernel{ports: make(map[PortID]*portEntry), next: 1, msgChan: msgChanDepth}
}

// Bucket is a port set: a single delivery queue shared by every receive
// right enrolled in it via CreatePortIn, corresponding to the "bucket of
// wrapper receive rights" a single forward-loop worker services.
type Bucket struct {
	recv chan *Message
}

// NewBucket returns an empty port set.
func (k *Kernel) NewBucket(depth int) *Bucket {
	return &Bucket{recv: make(chan *Message, depth)}
}

// CreatePort allocates a fresh receive right (ports_create_port).
func (k *Kernel) CreatePort() Receiver {
	return k.CreatePortIn(nil)
}

// CreatePortIn allocates a fresh receive right enrolled in bucket, so
// Bucket.Receive observes messages sent to it alongside every other port in
// the same bucket. A nil bucket gives the port its own private queue.
func (k *Kernel) CreatePortIn(bucket *Bucket) Receiver {
	k.mu.Lock()
	defer k.mu.Unlock()
	id := k.next
	k.next++
	ch := make(chan *Message, k.msgChan)
	if bucket != nil {
		ch = bucket.recv
	}
	k.ports[id] = &portEntry{recv: ch, alive: true}
	return Receiver{k: k, ID: id}
}

// Receive blocks until any message arrives for a port enrolled in b, or ctx
// is done.
func (b *Bucket) Receive(ctx context.Context) (*Message, error) {
	select {
	case m := <-b.recv:
		return m, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ImportPort adopts an existing receive right under a new owner
// (ports_import_port): the moved-in right keeps its identity (ID) and
// whatever send refcount it already carries, as happens when a move-receive
// transfer hands a receive right to a new process. If the ID was never seen
// before, a fresh entry is created for it.
func (k *Kernel) ImportPort(id PortID) Receiver {
	k.mu.Lock()
	defer k.mu.Unlock()
	e, ok := k.ports[id]
	if !ok {
		e = &portEntry{recv: make(chan *Message, k.msgChan), alive: true}
		k.ports[id] = e
	}
	return Receiver{k: k, ID: id}
}

// SetDropWeak installs the callback invoked when this receiver's hard
// refcount reaches zero while a weak reference is still registered
// (ports_create_class's dropweak argument in the original).
func (k *Kernel) SetDropWeak(r Receiver, fn func()) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if e, ok := k.ports[r.ID]; ok {
		e.weak = fn
	}
}

// Ref bumps the hard refcount on a receiver (ports_port_ref).
func (k *Kernel) Ref(r Receiver) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if e, ok := k.ports[r.ID]; ok {
		e.hardRefs++
	}
}

// Deref drops the hard refcount on a receiver; when it reaches zero and a
// weak callback is installed, the callback fires synchronously
// (ports_port_deref / drop-weak).
func (k *Kernel) Deref(r Receiver) {
	k.mu.Lock()
	e, ok := k.ports[r.ID]
	if !ok {
		k.mu.Unlock()
		return
	}
	e.hardRefs--
	fireWeak := e.hardRefs <= 0 && e.weak != nil
	var cb func()
	if fireWeak {
		cb = e.weak
		e.weak = nil
	}
	k.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// SendRight mints a send right to r, bumping its send refcount
// (ports_get_right).
func (k *Kernel) SendRight(r Receiver) Right {
	k.mu.Lock()
	defer k.mu.Unlock()
	if e, ok := k.ports[r.ID]; ok {
		e.sendRefs++
	}
	return Right{ID: r.ID, Kind: MakeSend}
}

// SendOnceRight mints a fresh send-once right to r. Unlike send rights,
// send-once rights are not counted, and Send does not consume them: the
// kernel does not stop a second message from using the same right.
func (k *Kernel) SendOnceRight(r Receiver) Right {
	return Right{ID: r.ID, Kind: MakeSendOnce}
}

// Claim detaches the receive right from its current owner and hands it to a
// new one, analogous to ports_claim_right: used when a move-receive transfer
// carries a receive right we were already tracing sends to.
func (k *Kernel) Claim(id PortID) Receiver {
	return Receiver{k: k, ID: id}
}

// WatchDeadName registers notify to receive a synthetic dead-name
// notification on its own port if target's receiver is ever destroyed
// (mach_port_request_notification with MACH_NOTIFY_DEAD_NAME): called
// whenever a wrapper is created forwarding to a real destination, so the
// forward loop hears about that destination's death instead of forwarding
// into the void forever. If target is already dead, the notification fires
// immediately.
func (k *Kernel) WatchDeadName(target PortID, notify Receiver) {
	k.mu.Lock()
	e, ok := k.ports[target]
	if !ok {
		k.mu.Unlock()
		return
	}
	if !e.alive {
		k.mu.Unlock()
		k.NotifyDeadName(notify, target)
		return
	}
	e.deadNameWatchers = append(e.deadNameWatchers, notify.ID)
	k.mu.Unlock()
}

// ModRefs adjusts a send right's refcount by delta (mach_port_mod_refs). When
// the count crosses from positive to zero or below, a no-senders
// notification fires on that same port, exactly as a real kernel generates
// one the moment a port's last send right is deallocated.
func (k *Kernel) ModRefs(right Right, delta int) error {
	if !right.Valid() {
		return nil
	}
	k.mu.Lock()
	e, ok := k.ports[right.ID]
	if !ok || !e.alive {
		k.mu.Unlock()
		return ErrDead
	}
	before := e.sendRefs
	e.sendRefs += delta
	crossed := before > 0 && e.sendRefs <= 0
	k.mu.Unlock()
	if crossed {
		k.NotifyNoSenders(Receiver{k: k, ID: right.ID})
	}
	return nil
}

// InsertRight materializes right as a freshly counted right of kind
// (mach_port_insert_right): used when normalizing a polymorphic batch's
// make-send/make-send-once entries into move-send/move-send-once.
func (k *Kernel) InsertRight(right Right, kind RightKind) (Right, error) {
	if err := k.ModRefs(Right{ID: right.ID, Kind: kind}, 1); err != nil {
		return Right{}, err
	}
	return Right{ID: right.ID, Kind: kind}, nil
}

// Deallocate drops one reference to right without destroying the receiver
// (mach_port_deallocate).
func (k *Kernel) Deallocate(right Right) {
	_ = k.ModRefs(right, -1)
}

// DestroyRight revokes a right outright: for a send right this drops all
// sends at once and, if it reaches zero, fires no-senders; for a receiver it
// tears the port down and notifies every watcher registered via
// WatchDeadName.
func (k *Kernel) DestroyRight(right Right) {
	k.mu.Lock()
	e, ok := k.ports[right.ID]
	if !ok {
		k.mu.Unlock()
		return
	}

	if right.Kind == MoveReceive {
		e.alive = false
		watchers := e.deadNameWatchers
		e.deadNameWatchers = nil
		k.mu.Unlock()
		for _, id := range watchers {
			k.NotifyDeadName(Receiver{k: k, ID: id}, right.ID)
		}
		return
	}

	hadSenders := e.sendRefs > 0
	e.sendRefs = 0
	k.mu.Unlock()
	if hadSenders {
		k.NotifyNoSenders(Receiver{k: k, ID: right.ID})
	}
}

// Send delivers msg to the port named by msg.RemotePort. Delivery rewrites
// the header to receive-time convention (swapping local/remote) exactly as
// a real kernel does, so the handler sees the destination it was sent to in
// LocalPort and any reply right the sender attached in RemotePort.
//
// Send returns ErrInvalidDest if that port is unknown or dead; per the
// engine's error handling design this is non-fatal and simply discards the
// message.
func (k *Kernel) Send(msg *Message) error {
	k.mu.Lock()
	e, ok := k.ports[msg.RemotePort]
	if !ok || !e.alive {
		k.mu.Unlock()
		return ErrInvalidDest
	}
	ch := e.recv
	k.mu.Unlock()

	delivered := *msg
	delivered.LocalPort, delivered.RemotePort = msg.RemotePort, msg.LocalPort
	delivered.LocalKind, delivered.RemoteKind = msg.RemoteKind, msg.LocalKind

	select {
	case ch <- &delivered:
		return nil
	default:
	}
	ch <- &delivered
	return nil
}

// Receive blocks until a message arrives for r, or ctx is done.
func (k *Kernel) Receive(ctx context.Context, r Receiver) (*Message, error) {
	k.mu.Lock()
	e, ok := k.ports[r.ID]
	k.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("kernel: receive on unknown port %d", r.ID)
	}
	select {
	case m := <-e.recv:
		return m, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// NotifyNoSenders delivers a synthetic no-senders notification to r,
// carrying r's send refcount at the moment of delivery (zero, or below zero
// if more references were dropped than minted).
func (k *Kernel) NotifyNoSenders(r Receiver) {
	k.mu.Lock()
	e, ok := k.ports[r.ID]
	count := 0
	if ok {
		count = e.sendRefs
	}
	k.mu.Unlock()
	if !ok {
		return
	}
	msg := &Message{
		ID:        NotifyNoSenders,
		LocalPort: r.ID, LocalKind: MoveSendOnce,
		Body: []Descriptor{{TransferKind: KindNone, ElemKind: 'i', ElemSize: 4, Data: int32ToBytes(int32(count))}},
	}
	select {
	case e.recv <- msg:
	default:
		e.recv <- msg
	}
}

// NotifyDeadName delivers a synthetic dead-name notification for forward to
// the receiver r (the send-once wrapper created to watch it).
func (k *Kernel) NotifyDeadName(r Receiver, forward PortID) {
	k.mu.Lock()
	e, ok := k.ports[r.ID]
	k.mu.Unlock()
	if !ok {
		return
	}
	msg := &Message{
		ID:        NotifyDeadName,
		LocalPort: r.ID, LocalKind: MoveSendOnce,
		Body: []Descriptor{{TransferKind: PortName, Ports: []Right{{ID: forward, Kind: PortName}}}},
	}
	select {
	case e.recv <- msg:
	default:
		e.recv <- msg
	}
}

func int32ToBytes(v int32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}
