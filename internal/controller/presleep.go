package controller

import (
	"context"
	"time"
)

// presleepTimeout bounds how long the interceptor waits for the locker
// child to report ready before letting suspend proceed anyway.
const presleepTimeout = 5 * time.Second

// handlePrepareForSleep implements the Pre-Sleep Lock Interceptor (§4.7).
// aboutToSleep=true is the "about to sleep" signal: take a delay
// inhibitor, lock synchronously, then release the inhibitor so suspend
// proceeds. aboutToSleep=false is "resumed from sleep": rebase the
// idleness source and return to Active.
func (c *Controller) handlePrepareForSleep(ctx context.Context, aboutToSleep bool) {
	if aboutToSleep {
		c.handleAboutToSleep(ctx)
		return
	}
	c.handleResumed(ctx)
}

func (c *Controller) handleAboutToSleep(ctx context.Context) {
	if c.lock == nil {
		// No locker configured: nothing to intercept, suspend proceeds
		// on its own.
		return
	}

	c.phase = Suspending

	inhibitor, err := c.logind.TakeDelayInhibitor("sleep", "energia", "lock screen before suspend")
	if err != nil {
		c.log.WithError(err).Warn("presleep: failed to take delay inhibitor; suspend proceeds unlocked")
		return
	}
	c.suspendInhibitor = inhibitor
	defer func() {
		if err := c.suspendInhibitor.Release(); err != nil {
			c.log.WithError(err).Warn("presleep: failed to release delay inhibitor")
		}
		c.suspendInhibitor = nil
	}()

	applyCtx, cancel := context.WithTimeout(ctx, presleepTimeout)
	defer cancel()

	if err := c.lock.ApplyNext(applyCtx); err != nil {
		c.log.WithError(err).Warn("presleep: lock apply failed")
		return
	}
	if err := c.lock.WaitReady(applyCtx, presleepTimeout); err != nil {
		c.log.WithError(err).Warn("presleep: locker did not report ready before timeout")
	}
}

func (c *Controller) handleResumed(ctx context.Context) {
	if c.seq != nil {
		if err := c.seq.OnActivity(ctx); err != nil {
			c.log.WithError(err).Warn("presleep: rollback on resume failed")
		}
		c.seq = nil
	}

	if err := c.source.Rebase(ctx); err != nil {
		c.log.WithError(err).Warn("presleep: failed to rebase idleness source")
	}

	c.phase = Active
	if err := c.armForActive(ctx); err != nil {
		c.log.WithError(err).Warn("presleep: re-arm after resume failed")
	}
}
