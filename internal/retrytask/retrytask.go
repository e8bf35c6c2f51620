// Package retrytask layers resilient one-shot scheduling on top of a plain
// timer heap: a failing task is rescheduled through the same scheduler using
// an exponential backoff policy instead of running once and giving up.
package retrytask

import (
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/coachpo/eventloop/internal/event"
	"github.com/coachpo/eventloop/internal/observability"
)

// Scheduler is the subset of EventLoop's timer-facing API retrytask needs.
type Scheduler interface {
	ScheduleTask(delay time.Duration, fn func() error) event.TaskID
}

// Policy bounds how a failing task is retried.
type Policy struct {
	MaxAttempts int
	MaxInterval time.Duration
}

// DefaultPolicy allows up to 5 attempts in total (the first run plus 4
// retries) with backoff capped at 5s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 5,
		MaxInterval: 5 * time.Second,
	}
}

// Schedule runs fn after delay via scheduler.ScheduleTask. Each failure
// reschedules a fresh attempt through the same scheduler using policy's
// backoff, up to policy.MaxAttempts total attempts. The underlying one-shot
// task contract is unchanged: every individual invocation that returns an
// error is still counted as a task failure by the loop's statistics; this
// wrapper only decides whether to try again.
//
// The returned task id identifies the first attempt only; retries are new
// timer entries the caller cannot address directly. Cancelling the returned
// id before it fires prevents the first attempt, but not attempts already
// rescheduled by a prior failure.
func Schedule(scheduler Scheduler, delay time.Duration, fn func() error, policy Policy) event.TaskID {
	if policy.MaxAttempts <= 0 {
		policy = DefaultPolicy()
	}
	back := backoff.NewExponentialBackOff()
	if policy.MaxInterval > 0 {
		back.MaxInterval = policy.MaxInterval
	}

	attempts := 0
	var attempt func() error
	attempt = func() error {
		attempts++
		err := fn()
		if err == nil {
			return nil
		}
		if attempts >= policy.MaxAttempts {
			observability.Log().Error("retrytask attempts exhausted",
				observability.Field{Key: "attempts", Value: attempts},
				observability.Field{Key: "error", Value: err.Error()},
			)
			return err
		}
		sleep := back.NextBackOff()
		if sleep == backoff.Stop {
			return err
		}
		observability.Log().Warn("retrytask attempt failed, retrying",
			observability.Field{Key: "attempt", Value: attempts},
			observability.Field{Key: "retry_in", Value: sleep.String()},
			observability.Field{Key: "error", Value: err.Error()},
		)
		scheduler.ScheduleTask(sleep, attempt)
		return err
	}

	return scheduler.ScheduleTask(delay, attempt)
}
