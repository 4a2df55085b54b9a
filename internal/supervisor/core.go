// Whaleinit - Minimal Init Process Supervisor for Containers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whaleinit

package supervisor

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/thejerf/suture/v4"
	"golang.org/x/sys/unix"

	"github.com/tomtom215/whaleinit/internal/config"
	"github.com/tomtom215/whaleinit/internal/logging"
	"github.com/tomtom215/whaleinit/internal/logmux"
	"github.com/tomtom215/whaleinit/internal/service"
)

// Config holds the core's tunables.
type Config struct {
	// ShutdownTimeout bounds graceful shutdown as a whole. When it
	// expires, every process still alive is killed. Default: 30s.
	ShutdownTimeout time.Duration
}

// Core is the PID-1 event loop. It owns every Instance; nothing else
// mutates one. See the package documentation for the concurrency rules.
type Core struct {
	cfg    Config
	runner *service.Runner

	instances []*service.Instance // discovery order
	byTitle   map[string]*service.Instance
	byPID     map[int]*service.Instance

	signals chan os.Signal
	events  chan event
	timers  []*time.Timer

	anySpawned   bool
	shuttingDown bool
	termSignals  int
	exitCode     int
	exitCodeSet  bool
	failure      *Error
}

// event is a message posted to the core loop by tail goroutines and
// timers. Only the loop goroutine acts on one.
type event interface{ isEvent() }

// streamClosed reports EOF on one pipe of one service.
type streamClosed struct {
	title  string
	stream logmux.Stream
}

// stopTimeout reports an expired per-service grace timer. The
// generation guards against a timer outliving the process it was armed
// for.
type stopTimeout struct {
	title      string
	generation uint64
}

// shutdownTimeout reports the expired global shutdown budget.
type shutdownTimeout struct{}

func (streamClosed) isEvent()    {}
func (stopTimeout) isEvent()     {}
func (shutdownTimeout) isEvent() {}

// NewCore creates the core for the given service definitions, in
// discovery order.
func NewCore(specs []config.Service, runner *service.Runner, cfg Config) *Core {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}

	c := &Core{
		cfg:     cfg,
		runner:  runner,
		byTitle: make(map[string]*service.Instance, len(specs)),
		byPID:   make(map[int]*service.Instance, len(specs)),
		signals: make(chan os.Signal, 16),
		events:  make(chan event, 2*len(specs)+16),
	}
	for _, spec := range specs {
		inst := service.NewInstance(spec)
		c.instances = append(c.instances, inst)
		c.byTitle[spec.Title] = inst
	}
	return c
}

// ExitCode returns the code the init process should exit with. Valid
// once Serve has returned. A recorded failure supplies the code when no
// shutdown initiator fixed one first.
func (c *Core) ExitCode() int {
	if c.exitCodeSet {
		return c.exitCode
	}
	if c.failure != nil {
		return c.failure.ExitCode()
	}
	return 0
}

// Failure returns the recorded startup or internal failure, if any.
func (c *Core) Failure() error {
	if c.failure == nil {
		return nil
	}
	return c.failure
}

// Serve implements suture.Service: install signal handlers, spawn every
// service, then run the event loop until all instances have exited.
// Returning suture.ErrTerminateSupervisorTree brings down the whole
// tree, writer included, which is how whaleinit ends.
func (c *Core) Serve(ctx context.Context) error {
	// PID 1 receives no default dispositions; without this, SIGTERM to
	// the container would be dropped on the floor.
	signal.Notify(c.signals,
		unix.SIGCHLD, unix.SIGTERM, unix.SIGINT, unix.SIGQUIT, unix.SIGHUP)
	defer signal.Stop(c.signals)
	defer c.stopTimers()

	c.startup()
	c.loop(ctx)

	return suture.ErrTerminateSupervisorTree
}

// startup spawns services in discovery order. Signals arriving between
// spawns are honored immediately, so a SIGTERM that lands mid-startup
// leaves the remaining services unspawned.
func (c *Core) startup() {
	for _, inst := range c.instances {
		c.drainSignals()

		if inst.State() != service.Pending {
			// Marked exited by a shutdown that began mid-startup.
			continue
		}
		if c.shuttingDown {
			inst.MarkFailed(0)
			continue
		}

		err := c.runner.Spawn(inst, c.postStreamClosed)
		if err == nil {
			c.anySpawned = true
			c.byPID[inst.PID()] = inst
			continue
		}

		var serr *service.Error
		if !errors.As(err, &serr) {
			serr = &service.Error{Kind: service.KindSpawn, Title: inst.Title(), Err: err}
		}

		switch {
		case serr.Kind == service.KindPreHook:
			// A failed pre-hook aborts startup outright, essential or not.
			logging.Error().Err(serr).Msg("pre-hook failed, aborting startup")
			c.failure = &Error{Kind: KindStartupAborted, Err: serr}
			inst.MarkFailed(c.failure.ExitCode())
			c.beginShutdown(c.failure.ExitCode())

		case !c.anySpawned:
			// Nothing running yet: abort before becoming an init.
			logging.Error().Err(serr).Msg("first spawn failed, aborting startup")
			c.failure = &Error{Kind: KindStartupAborted, Err: serr}
			inst.MarkFailed(c.failure.ExitCode())
			c.beginShutdown(c.failure.ExitCode())

		default:
			// Later failures count as an immediate failed exit.
			logging.Error().Err(serr).Msg("spawn failed")
			inst.MarkFailed(127)
			c.onExited(inst)
		}
	}
}

// loop blocks on signal and event delivery until every instance exited.
func (c *Core) loop(ctx context.Context) {
	ctxDone := ctx.Done()
	for !c.allExited() {
		select {
		case sig := <-c.signals:
			c.handleSignal(sig)
		case ev := <-c.events:
			c.handleEvent(ev)
		case <-ctxDone:
			// The harness is tearing down; treat it like a polite stop.
			ctxDone = nil
			c.beginShutdown(0)
		}
	}
}

// drainSignals processes any pending signals without blocking.
func (c *Core) drainSignals() {
	for {
		select {
		case sig := <-c.signals:
			c.handleSignal(sig)
		default:
			return
		}
	}
}

func (c *Core) handleSignal(sig os.Signal) {
	switch sig {
	case unix.SIGCHLD:
		c.reap()
	case unix.SIGTERM, unix.SIGINT, unix.SIGQUIT:
		c.termSignals++
		if c.termSignals == 1 {
			s, _ := sig.(syscall.Signal)
			logging.Info().Str("signal", unix.SignalName(s)).Msg("termination signal received")
			c.beginShutdown(128 + int(s))
		} else {
			logging.Warn().Msg("second termination signal, killing remaining services")
			c.killAll()
		}
	case unix.SIGHUP:
		// Reserved; no reload in this version.
		logging.Debug().Msg("SIGHUP ignored")
	}
}

func (c *Core) handleEvent(ev event) {
	switch e := ev.(type) {
	case streamClosed:
		inst, ok := c.byTitle[e.title]
		if !ok {
			return
		}
		inst.MarkStreamClosed(e.stream)
		c.maybeExited(inst)

	case stopTimeout:
		inst, ok := c.byTitle[e.title]
		if !ok || inst.Generation() != e.generation || inst.Reaped() {
			return
		}
		logging.Warn().Str("service", e.title).Msg("grace timer expired")
		c.runner.Kill(inst)

	case shutdownTimeout:
		logging.Warn().Msg("shutdown timeout expired, killing remaining services")
		c.killAll()
	}
}

// reap drains every ready child. Runs on SIGCHLD, which may be
// coalesced, hence the loop until wait4 reports nothing.
func (c *Core) reap() {
	for {
		var ws unix.WaitStatus
		pid, err := unix.Wait4(-1, &ws, unix.WNOHANG, nil)
		switch {
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.ECHILD):
			return
		case err != nil:
			logging.Error().Err(err).Msg("wait4 failed")
			if c.failure == nil {
				c.failure = &Error{Kind: KindInternal, Err: err}
			}
			if !c.shuttingDown {
				c.beginShutdown(c.failure.ExitCode())
			}
			return
		case pid <= 0:
			return
		}

		inst, ok := c.byPID[pid]
		if !ok {
			// An adopted orphan; init's job is just to clear the zombie.
			logging.Debug().Int("pid", pid).Int("status", exitStatus(ws)).Msg("reaped orphan")
			continue
		}
		delete(c.byPID, pid)
		inst.MarkReaped(exitStatus(ws))
		c.maybeExited(inst)
	}
}

// exitStatus normalizes a wait status: exit code, or 128+signal.
func exitStatus(ws unix.WaitStatus) int {
	if ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return ws.ExitStatus()
}

// maybeExited finishes an instance once reaped and fully drained.
func (c *Core) maybeExited(inst *service.Instance) {
	if !inst.ReadyToExit() {
		return
	}
	inst.MarkExited()
	c.onExited(inst)
}

// onExited reacts to a finished instance: logs it and, for an essential
// service outside shutdown, takes the whole init down with its status.
func (c *Core) onExited(inst *service.Instance) {
	logging.Info().Str("service", inst.Title()).Int("status", inst.ExitStatus()).
		Bool("essential", inst.Spec().Essential).Msg("service exited")

	if inst.Spec().Essential && !c.shuttingDown {
		c.beginShutdown(inst.ExitStatus())
	}
}

// beginShutdown stops everything: SIGTERM to Running instances in
// reverse discovery order with per-service grace timers, one global
// timer over it all, and Pending instances marked exited unspawned.
// The first initiator fixes the exit code.
func (c *Core) beginShutdown(code int) {
	if c.shuttingDown {
		return
	}
	c.shuttingDown = true
	c.setExitCode(code)
	logging.Info().Int("exit_code", code).Msg("shutting down")

	for i := len(c.instances) - 1; i >= 0; i-- {
		inst := c.instances[i]
		switch inst.State() {
		case service.Pending, service.Starting:
			inst.MarkFailed(0)
		case service.Running:
			c.runner.Stop(inst)
			c.armStopTimer(inst)
		}
	}

	if !c.allExited() {
		t := time.AfterFunc(c.cfg.ShutdownTimeout, func() {
			c.events <- shutdownTimeout{}
		})
		c.timers = append(c.timers, t)
	}
}

// armStopTimer schedules SIGKILL escalation for one Exiting instance.
func (c *Core) armStopTimer(inst *service.Instance) {
	title := inst.Title()
	gen := inst.Generation()
	t := time.AfterFunc(inst.Spec().StopTimeout(), func() {
		c.events <- stopTimeout{title: title, generation: gen}
	})
	c.timers = append(c.timers, t)
}

// killAll delivers SIGKILL to every process not yet reaped.
func (c *Core) killAll() {
	for _, inst := range c.instances {
		c.runner.Kill(inst)
	}
}

func (c *Core) allExited() bool {
	for _, inst := range c.instances {
		if inst.State() != service.Exited {
			return false
		}
	}
	return true
}

func (c *Core) setExitCode(code int) {
	if !c.exitCodeSet {
		c.exitCode = code
		c.exitCodeSet = true
	}
}

func (c *Core) stopTimers() {
	for _, t := range c.timers {
		t.Stop()
	}
}

// postStreamClosed runs on a tail goroutine; it only publishes.
func (c *Core) postStreamClosed(title string, stream logmux.Stream) {
	c.events <- streamClosed{title: title, stream: stream}
}

// String implements fmt.Stringer for suture's service naming.
func (c *Core) String() string {
	return "pid1-core"
}
