package rpctrace

import (
	"strings"

	"code.hybscloud.com/rpctrace/kernel"
)

// WalkBody rewrites every right-carrying descriptor in msg's body in place
// and returns, for each descriptor, the names to print for its elements —
// the Go analogue of print_contents walking a message's type list while
// rewrite_right substitutes each right it finds.
//
// Port-name descriptors are never rewritten, matching the pass-through
// operation named by InsertRightMsgID (mach_port_insert_right): a RightKind
// of PortName falls through RewriteRight's default case untouched regardless
// of which operation carried it, so no special case is needed here beyond
// picking a readable label.
func (t *Tracer) WalkBody(body []kernel.Descriptor) [][]string {
	names := make([][]string, len(body))
	for i := range body {
		d := &body[i]
		if d.TransferKind == kernel.KindNone {
			var sb strings.Builder
			t.opts.Formatter.FormatScalar(&sb, d.ElemKind, d.Data, d.NumElements(), d.ElemSize, t.opts.ByteOrder)
			names[i] = []string{sb.String()}
			continue
		}
		rewritten := make([]kernel.Right, len(d.Ports))
		labels := make([]string, len(d.Ports))
		for j, right := range d.Ports {
			out, name := t.RewriteRight(right)
			rewritten[j] = out
			labels[j] = name
		}
		if polymorphicBatch(rewritten) {
			for j, right := range rewritten {
				rewritten[j] = t.normalize(right)
			}
		}
		elems := make([]string, len(d.Ports))
		for j, right := range rewritten {
			d.Ports[j] = right
			if labels[j] != "" {
				elems[j] = labels[j]
			} else {
				elems[j] = portLabel(right)
			}
		}
		names[i] = elems
	}
	return names
}

// polymorphicBatch reports whether a rewritten descriptor's port rights are
// "polymorphic" in print_contents's sense: more than one element, and not
// all of the same kind. A lone right, or a batch that rewrote to a single
// uniform kind, is left exactly as the rewriter emitted it.
func polymorphicBatch(rights []kernel.Right) bool {
	if len(rights) <= 1 {
		return false
	}
	first := rights[0].Kind
	for _, r := range rights[1:] {
		if r.Kind != first {
			return true
		}
	}
	return false
}

// normalize promotes a copy-send or make-send right to move-send, and a
// make-send-once right to move-send-once, once a descriptor has been found
// polymorphic: every further hop should see such a right as an owned
// transfer rather than a freshly-minted one, matching print_contents's
// "polymorphic" pass over a batch of port rights of mixed kind.
func (t *Tracer) normalize(right kernel.Right) kernel.Right {
	switch right.Kind {
	case kernel.MakeSend, kernel.CopySend:
		if moved, err := t.K.InsertRight(right, kernel.MoveSend); err == nil {
			return moved
		}
	case kernel.MakeSendOnce:
		if moved, err := t.K.InsertRight(right, kernel.MoveSendOnce); err == nil {
			return moved
		}
	}
	return right
}

func portLabel(r kernel.Right) string {
	if !r.Valid() {
		return "(dead)"
	}
	return r.Kind.String()
}
