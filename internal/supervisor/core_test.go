// Whaleinit - Minimal Init Process Supervisor for Containers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whaleinit

package supervisor

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thejerf/suture/v4"
	"golang.org/x/sys/unix"

	"github.com/tomtom215/whaleinit/internal/config"
	"github.com/tomtom215/whaleinit/internal/logmux"
	"github.com/tomtom215/whaleinit/internal/service"
)

// syncBuffer lets the test read output while the writer goroutine is
// still emitting.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// coreHarness runs a Core plus writer and collects their output.
type coreHarness struct {
	t      *testing.T
	core   *Core
	out    *syncBuffer
	errOut *syncBuffer
	done   chan error
	stop   func()
}

func startCore(t *testing.T, cfg Config, specs ...config.Service) *coreHarness {
	t.Helper()
	out := &syncBuffer{}
	errOut := &syncBuffer{}
	mux := logmux.NewWriter(out, errOut)

	ctx, cancel := context.WithCancel(context.Background())
	muxDone := make(chan struct{})
	go func() {
		_ = mux.Serve(ctx)
		close(muxDone)
	}()

	core := NewCore(specs, service.NewRunner(mux, os.Environ()), cfg)
	done := make(chan error, 1)
	go func() {
		done <- core.Serve(context.Background())
	}()

	return &coreHarness{
		t:    t,
		core: core,
		out:  out, errOut: errOut,
		done: done,
		stop: func() {
			cancel()
			<-muxDone
		},
	}
}

// wait blocks until the core finishes and drains the writer.
func (h *coreHarness) wait(timeout time.Duration) {
	h.t.Helper()
	select {
	case err := <-h.done:
		require.True(h.t, errors.Is(err, suture.ErrTerminateSupervisorTree),
			"core should terminate the tree, got %v", err)
	case <-time.After(timeout):
		h.t.Fatal("core did not finish in time")
	}
	h.stop()
}

// waitOutput polls until the tagged output contains want.
func (h *coreHarness) waitOutput(want string) {
	h.t.Helper()
	require.Eventually(h.t, func() bool {
		return strings.Contains(h.out.String(), want)
	}, 10*time.Second, 10*time.Millisecond, "never saw %q in output", want)
}

func (h *coreHarness) sendSignal(sig unix.Signal) {
	h.t.Helper()
	require.NoError(h.t, unix.Kill(os.Getpid(), sig))
}

func TestAllServicesExitZero(t *testing.T) {
	h := startCore(t, Config{},
		config.Service{Title: "one", Exec: "/bin/sh", Args: []string{"-c", "echo one-done"}},
		config.Service{Title: "two", Exec: "/bin/sh", Args: []string{"-c", "echo two-done"}},
	)
	h.wait(15 * time.Second)

	assert.Equal(t, 0, h.core.ExitCode())
	assert.Contains(t, h.out.String(), "[one] one-done\n")
	assert.Contains(t, h.out.String(), "[two] two-done\n")
	for _, inst := range h.core.instances {
		assert.Equal(t, service.Exited, inst.State())
	}
}

// An essential service's exit takes whaleinit down with its status, and
// its final output is relayed before that happens.
func TestEssentialExitPropagatesStatus(t *testing.T) {
	h := startCore(t, Config{},
		config.Service{
			Title:     "w",
			Exec:      "/bin/sh",
			Args:      []string{"-c", "echo hi; exit 7"},
			Essential: true,
		},
	)
	h.wait(15 * time.Second)

	assert.Equal(t, 7, h.core.ExitCode())
	assert.Equal(t, "[w] hi\n", h.out.String())
}

func TestEssentialCleanExitShutsDownWithZero(t *testing.T) {
	h := startCore(t, Config{},
		config.Service{Title: "task", Exec: "/bin/true", Essential: true},
		config.Service{Title: "bg", Exec: "/bin/sleep", Args: []string{"60"}},
	)
	h.wait(15 * time.Second)

	assert.Equal(t, 0, h.core.ExitCode())
}

func TestSigtermGracefulShutdown(t *testing.T) {
	h := startCore(t, Config{},
		config.Service{
			Title: "a",
			Exec:  "/bin/sh",
			Args:  []string{"-c", "echo ready; exec sleep 100"},
		},
	)
	h.waitOutput("[a] ready\n")

	h.sendSignal(unix.SIGTERM)
	h.wait(15 * time.Second)

	assert.Equal(t, 128+int(unix.SIGTERM), h.core.ExitCode())
}

func TestSigintGracefulShutdown(t *testing.T) {
	h := startCore(t, Config{},
		config.Service{
			Title: "a",
			Exec:  "/bin/sh",
			Args:  []string{"-c", "echo ready; exec sleep 100"},
		},
	)
	h.waitOutput("[a] ready\n")

	h.sendSignal(unix.SIGINT)
	h.wait(15 * time.Second)

	assert.Equal(t, 128+int(unix.SIGINT), h.core.ExitCode())
}

// A service that ignores SIGTERM is killed when its grace timer fires.
func TestStopTimeoutEscalatesToSigkill(t *testing.T) {
	h := startCore(t, Config{},
		config.Service{
			Title:         "stubborn",
			Exec:          "/bin/sh",
			Args:          []string{"-c", `trap "" TERM; echo ready; while true; do sleep 1; done`},
			StopTimeoutMS: 300,
		},
	)
	h.waitOutput("[stubborn] ready\n")

	start := time.Now()
	h.sendSignal(unix.SIGTERM)
	h.wait(15 * time.Second)

	assert.Equal(t, 128+int(unix.SIGTERM), h.core.ExitCode())
	assert.Less(t, time.Since(start), 10*time.Second, "grace timer should escalate well before default timeouts")
}

// The global shutdown budget kills survivors even when their own grace
// timers have not fired yet.
func TestShutdownTimeoutKillsSurvivors(t *testing.T) {
	h := startCore(t, Config{ShutdownTimeout: 500 * time.Millisecond},
		config.Service{
			Title:         "slowpoke",
			Exec:          "/bin/sh",
			Args:          []string{"-c", `trap "" TERM; echo ready; while true; do sleep 1; done`},
			StopTimeoutMS: 60000,
		},
	)
	h.waitOutput("[slowpoke] ready\n")

	h.sendSignal(unix.SIGTERM)
	h.wait(15 * time.Second)

	assert.Equal(t, 128+int(unix.SIGTERM), h.core.ExitCode())
}

func TestFirstSpawnFailureAborts(t *testing.T) {
	h := startCore(t, Config{},
		config.Service{Title: "ghost", Exec: "/does/not/exist"},
		config.Service{Title: "never", Exec: "/bin/sleep", Args: []string{"60"}},
	)
	h.wait(15 * time.Second)

	assert.Equal(t, 71, h.core.ExitCode())
	require.Error(t, h.core.Failure())

	var serr *Error
	require.True(t, errors.As(h.core.Failure(), &serr))
	assert.Equal(t, KindStartupAborted, serr.Kind)

	// The second service was never spawned.
	assert.Zero(t, h.core.instances[1].PID())
}

func TestLateSpawnFailureNonEssentialContinues(t *testing.T) {
	h := startCore(t, Config{},
		config.Service{Title: "ok", Exec: "/bin/sh", Args: []string{"-c", "sleep 0.3; echo ok-done"}},
		config.Service{Title: "ghost", Exec: "/does/not/exist"},
	)
	h.wait(15 * time.Second)

	assert.Equal(t, 0, h.core.ExitCode())
	assert.Contains(t, h.out.String(), "[ok] ok-done\n")
	assert.Equal(t, 127, h.core.instances[1].ExitStatus())
}

func TestLateSpawnFailureEssentialShutsDown(t *testing.T) {
	h := startCore(t, Config{},
		config.Service{Title: "long", Exec: "/bin/sleep", Args: []string{"60"}},
		config.Service{Title: "ghost", Exec: "/does/not/exist", Essential: true},
	)
	h.wait(15 * time.Second)

	assert.Equal(t, 127, h.core.ExitCode())
}

func TestPreHookFailureAbortsStartup(t *testing.T) {
	h := startCore(t, Config{},
		config.Service{Title: "first", Exec: "/bin/sleep", Args: []string{"60"}},
		config.Service{Title: "hooked", Exec: "/bin/true", PreHook: "/bin/false"},
		config.Service{Title: "after", Exec: "/bin/sleep", Args: []string{"60"}},
	)
	h.wait(15 * time.Second)

	assert.Equal(t, 66, h.core.ExitCode())
	assert.Zero(t, h.core.instances[2].PID(), "services after the failed hook are never spawned")
}

// A termination signal that lands before startup spawns anything leaves
// every service unspawned.
func TestSignalBeforeStartup(t *testing.T) {
	out := &syncBuffer{}
	errOut := &syncBuffer{}
	mux := logmux.NewWriter(out, errOut)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = mux.Serve(ctx) }()

	core := NewCore([]config.Service{
		{Title: "a", Exec: "/bin/sleep", Args: []string{"60"}},
		{Title: "b", Exec: "/bin/sleep", Args: []string{"60"}},
	}, service.NewRunner(mux, os.Environ()), Config{})

	// Pending before Serve installs its handlers.
	core.signals <- unix.SIGTERM

	done := make(chan error, 1)
	go func() { done <- core.Serve(context.Background()) }()

	select {
	case err := <-done:
		require.True(t, errors.Is(err, suture.ErrTerminateSupervisorTree))
	case <-time.After(15 * time.Second):
		t.Fatal("core did not finish")
	}

	assert.Equal(t, 128+int(unix.SIGTERM), core.ExitCode())
	for _, inst := range core.instances {
		assert.Equal(t, service.Exited, inst.State())
		assert.Zero(t, inst.PID())
	}
}

// Children whaleinit never spawned (here: a process started behind the
// core's back, standing in for an adopted orphan) are reaped and
// discarded without disturbing service bookkeeping.
func TestStrayChildReaped(t *testing.T) {
	stray := exec.Command("/bin/sh", "-c", "exit 0")
	require.NoError(t, stray.Start())
	strayPID := stray.Process.Pid
	require.NoError(t, stray.Process.Release())

	h := startCore(t, Config{},
		config.Service{Title: "svc", Exec: "/bin/sh", Args: []string{"-c", "sleep 0.3"}},
	)
	h.wait(15 * time.Second)

	assert.Equal(t, 0, h.core.ExitCode())

	// The stray is gone: a direct wait finds nothing.
	var ws unix.WaitStatus
	_, err := unix.Wait4(strayPID, &ws, unix.WNOHANG, nil)
	assert.Error(t, err, "stray child should already be reaped")
}

// Two chatty services: every line tagged with its producer, per-service
// order preserved, nothing lost.
func TestOutputInterleaving(t *testing.T) {
	loop := `i=0; while [ $i -lt 100 ]; do echo %s-$i; i=$((i+1)); done`
	h := startCore(t, Config{},
		config.Service{Title: "a", Exec: "/bin/sh", Args: []string{"-c", strings.ReplaceAll(loop, "%s", "a")}},
		config.Service{Title: "b", Exec: "/bin/sh", Args: []string{"-c", strings.ReplaceAll(loop, "%s", "b")}},
	)
	h.wait(30 * time.Second)

	lines := strings.Split(strings.TrimSuffix(h.out.String(), "\n"), "\n")
	require.Len(t, lines, 200)

	var nextA, nextB int
	for _, l := range lines {
		switch {
		case strings.HasPrefix(l, "[a] "):
			assert.Equal(t, "[a] a-"+strconv.Itoa(nextA), l)
			nextA++
		case strings.HasPrefix(l, "[b] "):
			assert.Equal(t, "[b] b-"+strconv.Itoa(nextB), l)
			nextB++
		default:
			t.Fatalf("unexpected line %q", l)
		}
	}
	assert.Equal(t, 100, nextA)
	assert.Equal(t, 100, nextB)
}
