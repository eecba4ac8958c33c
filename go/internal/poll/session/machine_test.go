package session

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/tj/assert"

	"github.com/mcdev12/livepoll/go/internal/models"
	"github.com/mcdev12/livepoll/go/internal/poll/events"
)

var (
	moderator = Identity{ConnectionID: "m1", DisplayName: "Host", Role: models.RoleModerator}
	alice     = Identity{ConnectionID: "c1", DisplayName: "Alice", Role: models.RoleParticipant}
	bob       = Identity{ConnectionID: "c2", DisplayName: "Bob", Role: models.RoleParticipant}
)

type machineFixture struct {
	machine  *Machine
	clock    *clockwork.FakeClock
	out      *recorder
	writer   *recordWriter
	presence []string
}

func newMachineFixture(presence ...string) *machineFixture {
	f := &machineFixture{
		clock:    clockwork.NewFakeClock(),
		out:      &recorder{},
		writer:   &recordWriter{},
		presence: presence,
	}
	f.machine = newMachine(f.clock, DefaultConfig(), f.out, f.writer, func() []string { return f.presence }, noTimer)
	return f
}

func (f *machineFixture) create(d time.Duration) bool {
	return f.machine.CreatePoll(moderator, events.CreatePollCommand{
		Question: "Pick one",
		Options:  twoOptions(),
		Duration: d,
	})
}

func TestCreatePoll(t *testing.T) {
	t.Run("only one active session", func(t *testing.T) {
		f := newMachineFixture("Alice")
		assert.True(t, f.create(time.Minute))
		first := f.machine.Current().ID

		assert.False(t, f.create(time.Minute))
		assert.Equal(t, first, f.machine.Current().ID)
		assert.Len(t, f.out.broadcasts(events.EventPollNew), 1)
		assert.Equal(t, StateActive, f.machine.State())
	})

	t.Run("participant cannot create", func(t *testing.T) {
		f := newMachineFixture()
		ok := f.machine.CreatePoll(alice, events.CreatePollCommand{Question: "q", Options: twoOptions()})
		assert.False(t, ok)
		assert.Equal(t, StateIdle, f.machine.State())
		assert.Empty(t, f.out.broadcasts(events.EventPollNew))
	})

	t.Run("too few options", func(t *testing.T) {
		f := newMachineFixture()
		ok := f.machine.CreatePoll(moderator, events.CreatePollCommand{
			Question: "q",
			Options:  []models.Option{{Text: "only"}},
		})
		assert.False(t, ok)
		assert.Empty(t, f.out.broadcasts(events.EventPollNew))
	})

	t.Run("duration above maximum", func(t *testing.T) {
		f := newMachineFixture()
		assert.False(t, f.create(time.Hour))
		assert.Equal(t, StateIdle, f.machine.State())
	})

	t.Run("default duration", func(t *testing.T) {
		f := newMachineFixture()
		assert.True(t, f.create(0))
		assert.Equal(t, 60*time.Second, f.machine.Current().Duration)

		payload := decode[events.SessionPayload](t, f.out.broadcasts(events.EventPollNew)[0])
		assert.Equal(t, int64(60000), payload.Duration)
		assert.Equal(t, int64(60000), payload.RemainingMs)
		assert.Equal(t, f.clock.Now().UnixMilli(), payload.StartTime)
		assert.Equal(t, "Pick one", payload.Question)
	})
}

func TestSubmitAnswer(t *testing.T) {
	t.Run("answer window", func(t *testing.T) {
		f := newMachineFixture("Alice", "Bob")
		f.create(60 * time.Second)

		f.clock.Advance(59999 * time.Millisecond)
		assert.True(t, f.machine.SubmitAnswer(alice, "A"))

		f.clock.Advance(2 * time.Millisecond)
		assert.False(t, f.machine.SubmitAnswer(bob, "B"))
		assert.Equal(t, map[string]string{"Alice": "A"}, f.machine.Current().Answers)
	})

	t.Run("last write wins", func(t *testing.T) {
		f := newMachineFixture("Alice", "Bob")
		f.create(time.Minute)

		assert.True(t, f.machine.SubmitAnswer(alice, "A"))
		assert.True(t, f.machine.SubmitAnswer(alice, "B"))

		results := f.out.broadcasts(events.EventPollResults)
		assert.Len(t, results, 2)
		assert.Equal(t, events.AnswersPayload{"Alice": "B"}, decode[events.AnswersPayload](t, results[1]))
	})

	t.Run("rejected without session", func(t *testing.T) {
		f := newMachineFixture("Alice")
		assert.False(t, f.machine.SubmitAnswer(alice, "A"))
		assert.Empty(t, f.out.broadcasts(events.EventPollResults))
	})

	t.Run("unknown option and moderator answers are dropped", func(t *testing.T) {
		f := newMachineFixture("Alice")
		f.create(time.Minute)
		assert.False(t, f.machine.SubmitAnswer(alice, "Z"))
		assert.False(t, f.machine.SubmitAnswer(moderator, "A"))
		assert.Empty(t, f.out.broadcasts(events.EventPollResults))
	})
}

func TestFinalize(t *testing.T) {
	t.Run("all answered closes early", func(t *testing.T) {
		f := newMachineFixture("Alice", "Bob")
		f.create(time.Minute)
		id := f.machine.Current().ID

		f.machine.SubmitAnswer(alice, "A")
		assert.Equal(t, StateActive, f.machine.State())
		f.machine.SubmitAnswer(bob, "B")

		assert.Equal(t, StateIdle, f.machine.State())
		ends := f.out.broadcasts(events.EventPollEnd)
		assert.Len(t, ends, 1)
		assert.Equal(t, events.AnswersPayload{"Alice": "A", "Bob": "B"}, decode[events.AnswersPayload](t, ends[0]))

		// the timer firing afterwards for the same session is inert
		assert.False(t, f.machine.OnTimer(id))
		assert.Len(t, f.out.broadcasts(events.EventPollEnd), 1)

		records := f.writer.all()
		assert.Len(t, records, 1)
		assert.Equal(t, id, records[0].SessionID)
		assert.Equal(t, map[string]string{"Alice": "A", "Bob": "B"}, records[0].Answers)
		assert.Equal(t, time.Minute, records[0].Duration)
	})

	t.Run("timer fire finalizes", func(t *testing.T) {
		f := newMachineFixture("Alice", "Bob")
		f.create(time.Minute)
		id := f.machine.Current().ID
		f.machine.SubmitAnswer(alice, "A")

		f.clock.Advance(time.Minute)
		assert.True(t, f.machine.OnTimer(id))
		assert.False(t, f.machine.OnTimer(id))

		assert.Len(t, f.out.broadcasts(events.EventPollEnd), 1)
		records := f.writer.all()
		assert.Len(t, records, 1)
		assert.Equal(t, f.clock.Now(), records[0].EndTime)
	})

	t.Run("stale timer from an older session", func(t *testing.T) {
		f := newMachineFixture("Alice")
		f.create(time.Minute)
		f.machine.SubmitAnswer(alice, "A")
		assert.Equal(t, StateIdle, f.machine.State())

		f.create(time.Minute)
		assert.False(t, f.machine.OnTimer(uuid.New()))
		assert.Equal(t, StateActive, f.machine.State())
	})

	t.Run("empty presence never closes early", func(t *testing.T) {
		f := newMachineFixture()
		f.create(time.Minute)
		assert.False(t, f.machine.allAnswered())
	})

	t.Run("shutdown finalizes live session", func(t *testing.T) {
		f := newMachineFixture("Alice")
		f.create(time.Minute)
		f.machine.Shutdown()
		assert.Equal(t, StateIdle, f.machine.State())
		assert.Len(t, f.writer.all(), 1)
	})
}

func TestCurrentSnapshot(t *testing.T) {
	f := newMachineFixture("Alice", "Bob")
	_, ok := f.machine.CurrentSnapshot()
	assert.False(t, ok)

	start := f.clock.Now()
	f.create(60 * time.Second)
	f.machine.SubmitAnswer(alice, "B")

	f.clock.Advance(10 * time.Second)
	snapshot, ok := f.machine.CurrentSnapshot()
	assert.True(t, ok)
	assert.Equal(t, int64(10000), snapshot.ElapsedMs)
	assert.Equal(t, int64(50000), snapshot.RemainingMs)
	assert.Equal(t, start.UnixMilli(), snapshot.StartTime)
	assert.Equal(t, f.clock.Now().UnixMilli(), snapshot.ServerTime)
	assert.Equal(t, map[string]string{"Alice": "B"}, snapshot.Answers)

	f.clock.Advance(50 * time.Second)
	_, ok = f.machine.CurrentSnapshot()
	assert.False(t, ok)
}
