// Whaleinit - Minimal Init Process Supervisor for Containers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whaleinit

package supervisor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"

	"github.com/tomtom215/whaleinit/internal/service"
)

func TestErrorExitCodeDelegatesToCause(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want int
	}{
		{
			"pre-hook cause",
			&Error{Kind: KindStartupAborted, Err: &service.Error{Kind: service.KindPreHook, Title: "x", Err: errors.New("status 1")}},
			66,
		},
		{
			"spawn cause",
			&Error{Kind: KindStartupAborted, Err: &service.Error{Kind: service.KindSpawn, Title: "x", Err: errors.New("no such file")}},
			71,
		},
		{
			"startup aborted without coded cause",
			&Error{Kind: KindStartupAborted, Err: errors.New("plain")},
			71,
		},
		{
			"internal syscall failure",
			&Error{Kind: KindInternal, Err: unix.EINVAL},
			70,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.ExitCode())
		})
	}
}

// ExitCode falls back to the recorded failure when no shutdown
// initiator fixed a code.
func TestCoreExitCodeFailureFallback(t *testing.T) {
	c := &Core{failure: &Error{Kind: KindInternal, Err: unix.EIO}}
	assert.Equal(t, 70, c.ExitCode())

	c.setExitCode(7)
	assert.Equal(t, 7, c.ExitCode(), "an explicit code wins over the failure")
}
