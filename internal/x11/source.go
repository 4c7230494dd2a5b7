// Package x11 implements the idleness source, the dpms backend and the
// brightness backend against the MIT-SCREEN-SAVER, DPMS and RandR X11
// extensions via jezek/xgb, plus a minimal XTEST wrapper (XTest) that only
// initializes the extension; nothing in energia calls it.
package x11

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/screensaver"
	"github.com/jezek/xgb/xproto"
	"github.com/sirupsen/logrus"

	"github.com/energia-project/energia/internal/apperr"
)

// Source is the idleness source: it polls the MIT-SCREEN-SAVER
// extension's inactivity counter and translates it into arm/disarm
// threshold callbacks for the Effect Sequencer, plus an activity
// notification for the Environment Controller.
//
// Whether inactivity continues to accumulate while an idle inhibitor is
// active is a property of the underlying X server's counter, not of this
// client: the counter keeps advancing regardless of inhibitors, which is
// why the sequencer gates action on inhibitors rather than asking the
// source to pause.
type Source struct {
	conn *xgb.Conn
	root xproto.Window
	log  *logrus.Entry

	pollInterval time.Duration

	mu             sync.Mutex
	armed          bool
	threshold      time.Duration
	lastInactivity time.Duration

	onThreshold func(ctx context.Context)
	onActivity  func(ctx context.Context)
}

// Connect opens the X11 display and initializes the screensaver
// extension. Returns apperr.SystemUnavailable on failure, matching the
// hard-dependency startup contract for a configured X11 source.
func Connect(pollInterval time.Duration, log *logrus.Entry) (*Source, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, apperr.New(apperr.SystemUnavailable, "x11: connect", err)
	}
	if err := screensaver.Init(conn); err != nil {
		conn.Close()
		return nil, apperr.New(apperr.SystemUnavailable, "x11: init MIT-SCREEN-SAVER", err)
	}

	setup := xproto.Setup(conn)
	root := setup.DefaultScreen(conn).Root

	if pollInterval <= 0 {
		pollInterval = time.Second
	}

	return &Source{conn: conn, root: root, log: log, pollInterval: pollInterval}, nil
}

// Close releases the X11 connection.
func (s *Source) Close() {
	s.conn.Close()
}

// SetOnThreshold registers the callback invoked when accumulated
// inactivity reaches the armed threshold.
func (s *Source) SetOnThreshold(cb func(ctx context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onThreshold = cb
}

// SetOnActivity registers the callback invoked when the inactivity
// counter is observed to have reset (user input occurred).
func (s *Source) SetOnActivity(cb func(ctx context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onActivity = cb
}

// Arm implements sequencer.Armer: the source will invoke onThreshold the
// next time accumulated inactivity reaches threshold.
func (s *Source) Arm(ctx context.Context, threshold time.Duration) error {
	s.mu.Lock()
	s.armed = true
	s.threshold = threshold
	s.mu.Unlock()
	return nil
}

// Disarm implements sequencer.Armer: no further threshold callbacks fire
// until Arm is called again.
func (s *Source) Disarm(ctx context.Context) error {
	s.mu.Lock()
	s.armed = false
	s.mu.Unlock()
	return nil
}

// CurrentInactivity reads the instantaneous inactivity duration,
// independent of the arm/disarm state. Used by the pre-sleep interceptor
// to rebase on resume.
func (s *Source) CurrentInactivity(ctx context.Context) (time.Duration, error) {
	reply, err := screensaver.QueryInfo(s.conn, xproto.Drawable(s.root)).Reply()
	if err != nil {
		return 0, fmt.Errorf("x11: QueryInfo: %w", err)
	}
	return time.Duration(reply.MsSinceUserInput) * time.Millisecond, nil
}

// Rebase re-reads the inactivity counter and adopts it as the polling
// loop's baseline, so the next tick is not mistaken for an activity reset
// after a resume from suspend rebases the underlying X server counter.
func (s *Source) Rebase(ctx context.Context) error {
	inactivity, err := s.CurrentInactivity(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.lastInactivity = inactivity
	s.mu.Unlock()
	return nil
}

// Run polls the inactivity counter until ctx is cancelled, firing
// onActivity when the counter resets and onThreshold when an armed
// threshold is reached.
func (s *Source) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			inactivity, err := s.CurrentInactivity(ctx)
			if err != nil {
				s.log.WithError(err).Warn("x11: failed to poll inactivity counter")
				continue
			}
			s.poll(ctx, inactivity)
		}
	}
}

func (s *Source) poll(ctx context.Context, inactivity time.Duration) {
	s.mu.Lock()
	reset := inactivity < s.lastInactivity
	s.lastInactivity = inactivity
	armed, threshold := s.armed, s.threshold
	onActivity, onThreshold := s.onActivity, s.onThreshold
	s.mu.Unlock()

	if reset && onActivity != nil {
		onActivity(ctx)
		return
	}
	if armed && inactivity >= threshold && onThreshold != nil {
		onThreshold(ctx)
	}
}
