// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

// Package lifecycle supervises the node's background tasks: the
// consensus proposer loop, the peer heartbeat loop, and the HTTP
// listeners, cancelling all of them together on shutdown.
package lifecycle

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/blocknet/relayer/internal/logger"
)

// Task is a long-running background job that returns when ctx is
// cancelled.
type Task func(ctx context.Context) error

// Supervisor runs a set of Tasks under a shared errgroup, cancelling all
// of them as soon as any returns an error or the parent context ends.
type Supervisor struct {
	group  *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc
}

// New builds a Supervisor deriving its own cancellation from parent.
func New(parent context.Context) *Supervisor {
	ctx, cancel := context.WithCancel(parent)
	group, ctx := errgroup.WithContext(ctx)
	return &Supervisor{group: group, ctx: ctx, cancel: cancel}
}

// Go registers a named background task. Panics are not recovered here;
// a crashing task should fail loudly rather than vanish silently.
func (s *Supervisor) Go(name string, task Task) {
	s.group.Go(func() error {
		logger.Info("lifecycle: task starting", logger.String("task", name))
		err := task(s.ctx)
		if err != nil && s.ctx.Err() == nil {
			logger.ErrorMsg("lifecycle: task exited with error", logger.String("task", name), logger.Error(err))
		} else {
			logger.Info("lifecycle: task stopped", logger.String("task", name))
		}
		return err
	})
}

// Context returns the supervisor's context, cancelled on Shutdown or
// when any supervised task fails.
func (s *Supervisor) Context() context.Context {
	return s.ctx
}

// Shutdown cancels every supervised task and waits for them to return.
func (s *Supervisor) Shutdown() error {
	s.cancel()
	return s.group.Wait()
}
