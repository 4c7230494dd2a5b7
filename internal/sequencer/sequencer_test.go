package sequencer

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/energia-project/energia/internal/effect"
	"github.com/energia-project/energia/internal/schedule"
)

// fakeEffector is a single-effect test double recording apply/rollback
// calls in order, shared across the whole test file via a *[]string log.
type fakeEffector struct {
	name  string
	effs  []schedule.Name
	depth int
	log   *[]string
	fail  bool
}

func (f *fakeEffector) Name() string                          { return f.name }
func (f *fakeEffector) SupportedEffects() []schedule.Name      { return f.effs }
func (f *fakeEffector) Depth() int                             { return f.depth }
func (f *fakeEffector) ApplyNext(ctx context.Context) error {
	if f.fail {
		return assert.AnError
	}
	*f.log = append(*f.log, "apply:"+string(f.effs[f.depth]))
	f.depth++
	return nil
}
func (f *fakeEffector) RollbackOne(ctx context.Context) error {
	f.depth--
	*f.log = append(*f.log, "rollback:"+string(f.effs[f.depth]))
	return nil
}
func (f *fakeEffector) Reset(ctx context.Context) error {
	f.depth = 0
	return nil
}

// fakeArmer records arm/disarm calls.
type fakeArmer struct {
	armedAt   []time.Duration
	disarmed  int
}

func (a *fakeArmer) Arm(ctx context.Context, threshold time.Duration) error {
	a.armedAt = append(a.armedAt, threshold)
	return nil
}
func (a *fakeArmer) Disarm(ctx context.Context) error {
	a.disarmed++
	return nil
}

// fakeClock is a mutable, test-controlled clock.
type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func newTestSequencer(t *testing.T, calls *[]string) (*Sequencer, *fakeArmer, *effect.Registry) {
	t.Helper()
	session := &fakeEffector{name: "session", effs: []schedule.Name{schedule.IdleHint}, log: calls}
	brightness := &fakeEffector{name: "brightness", effs: []schedule.Name{schedule.ScreenDim}, log: calls}
	dpms := &fakeEffector{name: "dpms", effs: []schedule.Name{schedule.ScreenOff}, log: calls}
	lock := &fakeEffector{name: "lock", effs: []schedule.Name{schedule.Lock}, log: calls}

	reg, err := effect.NewRegistry(session, brightness, dpms, lock)
	require.NoError(t, err)

	armer := &fakeArmer{}
	log := logrus.NewEntry(logrus.New())

	sched := schedule.Schedule{
		schedule.ScreenDim: 3 * time.Minute,
		schedule.Lock:       3 * time.Minute,
		schedule.ScreenOff:  3*time.Minute + 30*time.Second,
	}
	steps := schedule.Compile(sched)

	clock := &fakeClock{now: time.Unix(0, 0)}
	seq := New(steps, reg, armer, clock, log)
	return seq, armer, reg
}

func TestSequencerStartEpisodeArmsFirstStep(t *testing.T) {
	var calls []string
	seq, armer, _ := newTestSequencer(t, &calls)

	require.NoError(t, seq.StartEpisode(context.Background(), time.Unix(0, 0)))
	require.Len(t, armer.armedAt, 1)
	assert.Equal(t, 3*time.Minute, armer.armedAt[0])
}

func TestSequencerFiresStepsInOrderAtSharedOffset(t *testing.T) {
	var calls []string
	seq, _, _ := newTestSequencer(t, &calls)
	ctx := context.Background()

	require.NoError(t, seq.StartEpisode(ctx, time.Unix(0, 0)))
	clock := seq.clock.(*fakeClock)
	clock.now = time.Unix(0, 0).Add(3 * time.Minute)

	require.NoError(t, seq.OnThresholdReached(ctx))
	assert.Equal(t, []string{"apply:idle_hint", "apply:screen_dim", "apply:lock"}, calls)
}

func TestSequencerOnActivityRollsBackInReverseOrder(t *testing.T) {
	var calls []string
	seq, _, _ := newTestSequencer(t, &calls)
	ctx := context.Background()

	require.NoError(t, seq.StartEpisode(ctx, time.Unix(0, 0)))
	clock := seq.clock.(*fakeClock)
	clock.now = time.Unix(0, 0).Add(3*time.Minute + 30*time.Second)
	require.NoError(t, seq.OnThresholdReached(ctx))
	calls = nil

	require.NoError(t, seq.OnActivity(ctx))
	assert.Equal(t, []string{"rollback:screen_off", "rollback:lock", "rollback:screen_dim", "rollback:idle_hint"}, calls)
}

func TestSequencerOnActivityIsIdempotent(t *testing.T) {
	var calls []string
	seq, _, _ := newTestSequencer(t, &calls)
	ctx := context.Background()

	require.NoError(t, seq.StartEpisode(ctx, time.Unix(0, 0)))
	require.NoError(t, seq.OnActivity(ctx))
	calls = nil
	require.NoError(t, seq.OnActivity(ctx))
	assert.Empty(t, calls)
}

func TestSequencerInhibitorFreezeThenCatchUp(t *testing.T) {
	var calls []string
	seq, _, _ := newTestSequencer(t, &calls)
	ctx := context.Background()

	require.NoError(t, seq.StartEpisode(ctx, time.Unix(0, 0)))
	clock := seq.clock.(*fakeClock)
	clock.now = time.Unix(0, 0).Add(2 * time.Minute)
	require.NoError(t, seq.OnInhibitorChange(ctx, true))

	clock.now = time.Unix(0, 0).Add(5 * time.Minute)
	require.NoError(t, seq.OnThresholdReached(ctx))
	assert.Empty(t, calls, "nothing should fire while inhibited")

	require.NoError(t, seq.OnInhibitorChange(ctx, false))
	assert.Equal(t, []string{"apply:idle_hint", "apply:screen_dim", "apply:lock", "apply:screen_off"}, calls)
}

func TestSequencerOnScheduleChangeDoesNotApplyWhileInhibited(t *testing.T) {
	var calls []string
	seq, _, _ := newTestSequencer(t, &calls)
	ctx := context.Background()

	require.NoError(t, seq.StartEpisode(ctx, time.Unix(0, 0)))
	clock := seq.clock.(*fakeClock)
	clock.now = time.Unix(0, 0).Add(2 * time.Minute)
	require.NoError(t, seq.OnInhibitorChange(ctx, true))
	calls = nil

	newSteps := schedule.Compile(schedule.Schedule{
		schedule.ScreenDim: time.Minute,
		schedule.Lock:      time.Minute,
	})
	require.NoError(t, seq.OnScheduleChange(ctx, newSteps))
	assert.Empty(t, calls, "apply_next must not be invoked while inhibited, even across a schedule change")

	require.NoError(t, seq.OnInhibitorChange(ctx, false))
	assert.Equal(t, []string{"apply:idle_hint", "apply:screen_dim", "apply:lock"}, calls, "catch-up fires once the inhibitor clears")
}

func TestSequencerEffectFailureSkipsForRemainderOfEpisode(t *testing.T) {
	var calls []string
	session := &fakeEffector{name: "session", effs: []schedule.Name{schedule.IdleHint}, log: &calls}
	brightness := &fakeEffector{name: "brightness", effs: []schedule.Name{schedule.ScreenDim}, log: &calls, fail: true}
	reg, err := effect.NewRegistry(session, brightness)
	require.NoError(t, err)

	armer := &fakeArmer{}
	clock := &fakeClock{now: time.Unix(0, 0)}
	steps := schedule.Compile(schedule.Schedule{schedule.ScreenDim: time.Minute})
	seq := New(steps, reg, armer, clock, logrus.NewEntry(logrus.New()))

	ctx := context.Background()
	require.NoError(t, seq.StartEpisode(ctx, time.Unix(0, 0)))
	clock.now = time.Unix(0, 0).Add(time.Minute)
	require.NoError(t, seq.OnThresholdReached(ctx))

	assert.Equal(t, []string{"apply:idle_hint"}, calls)
}
