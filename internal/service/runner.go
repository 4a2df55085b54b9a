// Whaleinit - Minimal Init Process Supervisor for Containers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whaleinit

package service

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/tomtom215/whaleinit/internal/config"
	"github.com/tomtom215/whaleinit/internal/logging"
	"github.com/tomtom215/whaleinit/internal/logmux"
)

// Runner spawns and signals service processes. It holds the init's
// environment snapshot and the log multiplexer the children's pipes
// feed into.
type Runner struct {
	mux     *logmux.Writer
	baseEnv []string
}

// NewRunner creates a runner. baseEnv is the init's environment as of
// startup (os.Environ()); per-service env entries are overlaid on it.
func NewRunner(mux *logmux.Writer, baseEnv []string) *Runner {
	return &Runner{mux: mux, baseEnv: baseEnv}
}

// Spawn runs the spawn protocol for one Pending instance:
//
//  1. Run the pre-hook, if any, and require exit 0.
//  2. Create the stdout/stderr pipes.
//  3. Start the child as a session leader with the pipes on fds 1 and 2
//     and the merged environment. Signal dispositions reset across exec.
//  4. Record the PID, move to Running, and register both read ends with
//     the multiplexer.
//
// onStreamClosed fires once per stream at EOF, from the tail goroutine.
func (r *Runner) Spawn(inst *Instance, onStreamClosed logmux.CloseFunc) error {
	spec := inst.Spec()

	if spec.PreHook != "" {
		if err := r.runPreHook(spec); err != nil {
			return err
		}
	}

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return &Error{Kind: KindSpawn, Title: spec.Title, Err: err}
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		stdoutR.Close()
		stdoutW.Close()
		return &Error{Kind: KindSpawn, Title: spec.Title, Err: err}
	}

	cmd := exec.Command(spec.Exec, spec.Args...)
	cmd.Env = r.mergedEnv(spec)
	cmd.Stdin = nil
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW
	// A session of its own keeps terminal signal groups from reaching
	// the child behind the supervisor's back.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	inst.MarkStarting()
	if err := cmd.Start(); err != nil {
		stdoutR.Close()
		stdoutW.Close()
		stderrR.Close()
		stderrW.Close()
		return &Error{Kind: KindSpawn, Title: spec.Title, Err: err}
	}

	// Parent keeps only the read ends.
	stdoutW.Close()
	stderrW.Close()

	pid := cmd.Process.Pid
	// The supervisor reaps via wait4(-1); drop the handle so os/exec
	// never competes for the wait.
	_ = cmd.Process.Release()

	inst.MarkRunning(pid)
	r.mux.Tail(spec.Title, logmux.Stdout, stdoutR, onStreamClosed)
	r.mux.Tail(spec.Title, logmux.Stderr, stderrR, onStreamClosed)

	logging.Info().Str("service", spec.Title).Int("pid", pid).Str("exec", spec.Exec).
		Msg("service started")
	return nil
}

// runPreHook executes the pre-hook synchronously with the service's
// merged environment. Its output is relayed tagged like service output,
// but without touching the instance's stream bookkeeping.
func (r *Runner) runPreHook(spec *config.Service) error {
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return &Error{Kind: KindPreHook, Title: spec.Title, Err: err}
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		stdoutR.Close()
		stdoutW.Close()
		return &Error{Kind: KindPreHook, Title: spec.Title, Err: err}
	}
	// Wait for both tails before returning so the hook's output lands
	// ahead of the service's first lines.
	closed := make(chan struct{}, 2)
	onClose := func(string, logmux.Stream) { closed <- struct{}{} }
	r.mux.Tail(spec.Title, logmux.Stdout, stdoutR, onClose)
	r.mux.Tail(spec.Title, logmux.Stderr, stderrR, onClose)

	cmd := exec.Command(spec.PreHook)
	cmd.Env = r.mergedEnv(spec)
	cmd.Stdin = nil
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	runErr := cmd.Run()
	stdoutW.Close()
	stderrW.Close()
	<-closed
	<-closed

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			runErr = fmt.Errorf("%s exited with status %d", spec.PreHook, exitErr.ExitCode())
		}
		return &Error{Kind: KindPreHook, Title: spec.Title, Err: runErr}
	}

	logging.Debug().Str("service", spec.Title).Str("pre_hook", spec.PreHook).Msg("pre-hook succeeded")
	return nil
}

// Stop delivers SIGTERM and moves a Running instance to Exiting. The
// caller owns the grace timer; on expiry it calls Kill. Stop never
// waits: reaping stays with the supervisor.
func (r *Runner) Stop(inst *Instance) {
	if inst.State() != Running {
		return
	}
	if err := unix.Kill(inst.PID(), unix.SIGTERM); err != nil {
		logging.Warn().Err(err).Str("service", inst.Title()).Int("pid", inst.PID()).
			Msg("failed to deliver SIGTERM")
	}
	inst.MarkExiting()
	logging.Info().Str("service", inst.Title()).Int("pid", inst.PID()).
		Dur("grace", inst.Spec().StopTimeout()).Msg("stopping service")
}

// Kill delivers SIGKILL to an instance whose process is still alive.
func (r *Runner) Kill(inst *Instance) {
	if inst.Reaped() || inst.PID() <= 0 {
		return
	}
	if err := unix.Kill(inst.PID(), unix.SIGKILL); err != nil {
		logging.Warn().Err(err).Str("service", inst.Title()).Int("pid", inst.PID()).
			Msg("failed to deliver SIGKILL")
		return
	}
	logging.Warn().Str("service", inst.Title()).Int("pid", inst.PID()).Msg("killed service")
}

// mergedEnv overlays the per-service env on the init snapshot. Overlay
// entries are appended last in sorted key order; os/exec keeps the last
// occurrence of a duplicated key.
func (r *Runner) mergedEnv(spec *config.Service) []string {
	if len(spec.Env) == 0 {
		return r.baseEnv
	}
	env := make([]string, 0, len(r.baseEnv)+len(spec.Env))
	env = append(env, r.baseEnv...)

	keys := make([]string, 0, len(spec.Env))
	for k := range spec.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+spec.Env[k])
	}
	return env
}
