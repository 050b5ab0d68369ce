package demo

import (
	"context"

	rpctrace "code.hybscloud.com/rpctrace"
	"code.hybscloud.com/rpctrace/kernel"
)

// Scenario is a complete in-process rig: a real echo server, a tracer
// sitting in front of it, and the wrapped send right a client must use to
// reach the server through the tracer — the in-process analogue of
// traced_spawn installing a wrapper as a child's task port before exec.
type Scenario struct {
	Kernel  *kernel.Kernel
	Tracer  *rpctrace.Tracer
	Dest    kernel.Right // hand this to a client; never the server's real port
	cancel  context.CancelFunc
	done    chan error
}

// NewScenario starts the echo server and the tracer's forward loop as
// background goroutines and returns a Scenario ready for Call/Notify.
func NewScenario(ctx context.Context, name string, opts ...rpctrace.Option) *Scenario {
	ctx, cancel := context.WithCancel(ctx)
	k := kernel.New(8)
	tr := rpctrace.New(k, opts...)

	server := k.CreatePort()
	go RunEchoServer(ctx, k, server)

	forward := k.SendRight(server)
	dest := tr.Install(forward, name)

	done := make(chan error, 1)
	go func() { done <- tr.Run(ctx) }()

	return &Scenario{Kernel: k, Tracer: tr, Dest: dest, cancel: cancel, done: done}
}

// Stop cancels the server and forward-loop goroutines and waits for the
// forward loop to exit.
func (s *Scenario) Stop() {
	s.cancel()
	<-s.done
}
