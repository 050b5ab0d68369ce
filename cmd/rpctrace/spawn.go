package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/rs/xid"
	log "github.com/sirupsen/logrus"

	rpctrace "code.hybscloud.com/rpctrace"
	"code.hybscloud.com/rpctrace/demo"
	"code.hybscloud.com/rpctrace/kernel"
	"code.hybscloud.com/rpctrace/wire"
)

// killGrace is how long spawnAndTrace waits for a child to exit on its own
// once the trace context is cancelled before it sends SIGKILL.
const killGrace = time.Second

// spawnAndTrace starts name/args as a child process, bridges its stdio onto
// a simulated kernel.Kernel through the wire protocol, traces every message
// it exchanges with the in-process demo server, and returns the exit code
// the caller should use as its own (0 success, 1 when the child cannot be
// started, 2 when the child exits non-zero or is killed by a signal).
func spawnAndTrace(ctx context.Context, out io.Writer, metricsAddr string, name string, args []string) (int, error) {
	k := kernel.New(64)
	tr := rpctrace.New(k, rpctrace.WithOutput(out), rpctrace.WithMetrics(promMetrics{}))

	if metricsAddr != "" {
		srv := newAdminServer(metricsAddr)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.WithError(err).Warn("admin server stopped")
			}
		}()
		defer srv.Close()
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	server := k.CreatePort()
	go demo.RunEchoServer(runCtx, k, server)
	forward := k.SendRight(server)

	cmd := exec.Command(name, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return 1, fmt.Errorf("rpctrace: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return 1, fmt.Errorf("rpctrace: %w", err)
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return 1, fmt.Errorf("rpctrace: starting %s: %w", name, err)
	}

	session := xid.New()
	taskName := fmt.Sprintf("task%d", cmd.Process.Pid)
	dest := tr.Install(forward, taskName)
	log.WithFields(log.Fields{"session": session.String(), "pid": cmd.Process.Pid}).Debug("installed wrapper for traced child")

	go func() {
		if err := tr.Run(runCtx); err != nil {
			log.WithError(err).Error("forward loop exited")
		}
	}()
	go func() {
		if err := bridgeChild(runCtx, k, stdin, stdout, dest); err != nil && err != io.EOF {
			log.WithField("session", session.String()).WithError(err).Debug("child bridge stopped")
		}
	}()

	waited := make(chan error, 1)
	go func() { waited <- cmd.Wait() }()

	var waitErr error
	select {
	case waitErr = <-waited:
	case <-ctx.Done():
		timer := time.NewTimer(killGrace)
		defer timer.Stop()
		select {
		case waitErr = <-waited:
		case <-timer.C:
			_ = cmd.Process.Kill()
			waitErr = <-waited
		}
	}

	code, signal := exitStatus(waitErr)
	tr.ChildExited(cmd.Process.Pid, code, signal)

	if signal != "" || code != 0 {
		return 2, nil
	}
	return 0, nil
}

// exitStatus extracts the exit code and, for a signal death, its name from
// the error os/exec.Cmd.Wait returns.
func exitStatus(err error) (code int, signal string) {
	if err == nil {
		return 0, ""
	}
	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		return 1, ""
	}
	if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		return 0, status.Signal().String()
	}
	return exitErr.ExitCode(), ""
}

// bridgeChild relays messages between a traced child's stdio (wire-framed
// kernel.Message values, addressed by the fixed protocol port numbers
// cmd/rpctrace-demo-child uses) and the real dest wrapper installed for it.
// It owns one kernel.Receiver standing in for the child's own reply port:
// every request from the child gets a fresh send-once right minted against
// that receiver as its reply port, and every message arriving on it is
// relayed back down the child's stdin.
func bridgeChild(ctx context.Context, k *kernel.Kernel, stdin io.WriteCloser, stdout io.ReadCloser, dest kernel.Right) error {
	defer stdin.Close()
	child := k.CreatePort()
	enc := wire.NewEncoder(stdin)
	dec := wire.NewDecoder(stdout)

	errs := make(chan error, 2)
	go func() {
		for {
			msg, err := dec.Decode()
			if err != nil {
				errs <- err
				return
			}
			replyRight := k.SendOnceRight(child)
			out := &kernel.Message{
				ID:         msg.ID,
				LocalPort:  replyRight.ID,
				LocalKind:  replyRight.Kind,
				RemotePort: dest.ID,
				RemoteKind: dest.Kind,
				Complex:    msg.Complex,
				Body:       msg.Body,
			}
			if err := k.Send(out); err != nil {
				errs <- err
				return
			}
		}
	}()
	go func() {
		for {
			msg, err := k.Receive(ctx, child)
			if err != nil {
				errs <- err
				return
			}
			if err := enc.Encode(msg); err != nil {
				errs <- err
				return
			}
		}
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errs:
		return err
	}
}
