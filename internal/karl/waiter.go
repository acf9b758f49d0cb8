// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package karl

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/jredmondson/madara-sub009/internal/knowledge"
)

// Sender is the Transport-side collaborator the Waiter drives after each
// re-evaluation (spec.md §4.3: "the Waiter triggers a send of
// global-modifieds through any attached Transport"). Declared here
// rather than imported from internal/transport so that karl does not
// depend on transport; UDPTransport and NATSTransport satisfy it, and
// cmd/madara-agent wires the two packages together.
type Sender interface {
	SendModifieds(ctx *knowledge.Context) error
}

// WaitSettings configures a single Wait call (spec.md §4.3).
type WaitSettings struct {
	EvalSettings
	MaxWaitTime        time.Duration
	PollFrequency      time.Duration
	PrePrintStatement  string
	PostPrintStatement string
}

// Waiter re-evaluates a compiled Expression under the Context's change
// condition (or a poll tick) until it is truthy or MaxWaitTime elapses.
type Waiter struct {
	Expr     *Expression
	Settings WaitSettings
	Sender   Sender // optional
}

// NewWaiter builds a Waiter over a compiled expression.
func NewWaiter(expr *Expression, settings WaitSettings) *Waiter {
	return &Waiter{Expr: expr, Settings: settings}
}

// Wait implements spec.md §4.3 steps 1-5. It blocks the calling
// goroutine (not the whole process) for up to Settings.MaxWaitTime.
func (w *Waiter) Wait(ctx *knowledge.Context) (knowledge.Value, error) {
	deadline := time.Time{}
	if w.Settings.MaxWaitTime > 0 {
		deadline = time.Now().Add(w.Settings.MaxWaitTime)
	}

	var tick chan struct{}
	if w.Settings.PollFrequency > 0 {
		scheduler, err := gocron.NewScheduler()
		if err != nil {
			return knowledge.ZeroInteger, err
		}
		tick = make(chan struct{}, 1)
		if _, err := scheduler.NewJob(
			gocron.DurationJob(w.Settings.PollFrequency),
			gocron.NewTask(func() {
				select {
				case tick <- struct{}{}:
				default:
				}
			}),
		); err != nil {
			return knowledge.ZeroInteger, err
		}
		scheduler.Start()
		defer scheduler.Shutdown()
	}

	for {
		if w.Settings.PrePrintStatement != "" {
			ctx.Logger().Infof("%s", w.Settings.PrePrintStatement)
		}

		// Evaluate without holding ctx's lock: Expression.Evaluate reaches
		// Get/Set/LookupFunction, which each acquire it themselves, and
		// sync.Mutex isn't reentrant. Those per-call locks still give each
		// individual read/write a consistent view; nothing here needs the
		// whole expression evaluated as one atomic critical section.
		result, err := w.Expr.Evaluate(ctx, w.Settings.EvalSettings)
		if err != nil {
			return knowledge.ZeroInteger, err
		}

		if w.Settings.PostPrintStatement != "" {
			ctx.Logger().Infof("%s", w.Settings.PostPrintStatement)
		}

		if !w.Settings.DelaySendingModifieds && w.Sender != nil {
			if err := w.Sender.SendModifieds(ctx); err != nil {
				ctx.Logger().Warnf("waiter: send_modifieds failed: %s", err)
			}
		}

		if result.Truthy(w.Settings.LegacyTruthiness) {
			return result, nil
		}

		if !deadline.IsZero() && time.Now().After(deadline) {
			return result, nil
		}

		if tick != nil {
			if deadline.IsZero() {
				<-tick
			} else {
				select {
				case <-tick:
				case <-time.After(time.Until(deadline)):
					return result, nil
				}
			}
			continue
		}

		waitCtx := context.Background()
		cancel := func() {}
		if !deadline.IsZero() {
			waitCtx, cancel = context.WithDeadline(waitCtx, deadline)
		}
		ctx.WaitForChange(waitCtx)
		cancel()
	}
}
