package memory_test

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-coach/pkg/memory"
)

func fixedClock(start time.Time) (func() time.Time, func(time.Duration)) {
	now := start
	return func() time.Time { return now }, func(d time.Duration) { now = now.Add(d) }
}

func TestAppend(t *testing.T) {
	m := memory.New()

	turn, err := m.Append(memory.RoleUser, "hello")
	require.NoError(t, err)
	assert.NotEmpty(t, turn.ID)
	assert.Equal(t, memory.RoleUser, turn.Role)
	assert.False(t, turn.Timestamp.IsZero())

	_, err = m.Append("narrator", "hi")
	assert.ErrorIs(t, err, memory.ErrInvalidRole)

	_, err = m.Append(memory.RoleAssistant, "   ")
	assert.ErrorIs(t, err, memory.ErrEmptyContent)

	assert.Equal(t, 1, m.Len())
}

func TestRecent(t *testing.T) {
	m := memory.New(memory.WithWindow(3))
	for i := 0; i < 5; i++ {
		_, err := m.Append(memory.RoleUser, strings.Repeat("x", i+1))
		require.NoError(t, err)
	}

	recent := m.Recent(0)
	require.Len(t, recent, 3)
	assert.Equal(t, "xxx", recent[0].Content)
	assert.Equal(t, "xxxxx", recent[2].Content)

	assert.Len(t, m.Recent(10), 5)
	assert.Len(t, m.History(), 5)

	// Returned slices are copies.
	recent[0].Content = "mutated"
	assert.Equal(t, "xxx", m.Recent(3)[0].Content)
}

func TestConfirmationTracking(t *testing.T) {
	m := memory.New()

	_, err := m.Append(memory.RoleAssistant, "Loops repeat work. Does that make sense?")
	require.NoError(t, err)
	ctx := m.Context()
	assert.True(t, ctx.TransitionPending)
	assert.False(t, ctx.UserConfirmedUnderstanding)
	assert.False(t, ctx.LastTransitionTime.IsZero())

	_, err = m.Append(memory.RoleUser, "  Yes ")
	require.NoError(t, err)
	ctx = m.Context()
	assert.False(t, ctx.TransitionPending)
	assert.True(t, ctx.UserConfirmedUnderstanding)

	_, err = m.Append(memory.RoleUser, "banana")
	require.NoError(t, err)
	ctx = m.Context()
	assert.False(t, ctx.TransitionPending, "non-matching input must not change the pending flag")
	assert.True(t, ctx.UserConfirmedUnderstanding)
}

func TestNonConfirmationKeepsPending(t *testing.T) {
	m := memory.New()

	_, _ = m.Append(memory.RoleAssistant, "Is that clear?")
	_, _ = m.Append(memory.RoleUser, "banana")
	assert.True(t, m.Context().TransitionPending)

	// Paraphrases are not confirmations.
	_, _ = m.Append(memory.RoleUser, "sounds good to me")
	assert.True(t, m.Context().TransitionPending)

	// A confirmation phrase with no pending request changes nothing.
	m2 := memory.New()
	_, _ = m2.Append(memory.RoleUser, "yes")
	assert.False(t, m2.Context().UserConfirmedUnderstanding)
}

func TestNewConfirmationRequestClearsConfirmed(t *testing.T) {
	m := memory.New()
	_, _ = m.Append(memory.RoleAssistant, "Does that make sense?")
	_, _ = m.Append(memory.RoleUser, "got it")
	require.True(t, m.Context().UserConfirmedUnderstanding)

	_, _ = m.Append(memory.RoleAssistant, "Shall we move on?")
	ctx := m.Context()
	assert.True(t, ctx.TransitionPending)
	assert.False(t, ctx.UserConfirmedUnderstanding)
}

func TestTopicTracking(t *testing.T) {
	now, advance := fixedClock(time.UnixMilli(1700000000000))
	m := memory.New(memory.WithNow(now))

	_, _ = m.Append(memory.RoleAssistant, "Great! Let's talk about Variables & Types.")
	ctx := m.Context()
	require.Len(t, ctx.TopicsCovered, 1)
	assert.Equal(t, "greatletstalkaboutvariablestypes_1700000000000", ctx.CurrentTopic)
	assert.Equal(t, ctx.CurrentTopic, ctx.TopicsCovered[0])
	assert.True(t, m.HasCovered(ctx.CurrentTopic))

	advance(time.Second)
	_, _ = m.Append(memory.RoleAssistant, "Now let's dive into loops.")
	assert.Len(t, m.Topics(), 2)

	// Prompt turns are never classified.
	_, _ = m.Append(memory.RolePrompt, "let's talk about anything, does that make sense")
	assert.Len(t, m.Topics(), 2)
	assert.False(t, m.Context().TransitionPending)

	m.ClearTopics()
	assert.Empty(t, m.Topics())
	assert.Empty(t, m.Context().CurrentTopic)
}

func TestTopicID(t *testing.T) {
	at := time.UnixMilli(42)
	long := strings.Repeat("ab", 40)
	id := memory.TopicID(long, at)
	assert.Equal(t, strings.Repeat("ab", 25)+"_42", id)

	assert.Equal(t, "hello_42", memory.TopicID("Hello!!", at))
}

func TestSwappablePhrases(t *testing.T) {
	m := memory.New(memory.WithPhrases(memory.Phrases{
		ConfirmationRequests: []string{"capisce"},
		Confirmations:        []string{"si"},
	}))

	_, _ = m.Append(memory.RoleAssistant, "Does that make sense?")
	assert.False(t, m.Context().TransitionPending)

	_, _ = m.Append(memory.RoleAssistant, "Capisce?")
	assert.True(t, m.Context().TransitionPending)

	_, _ = m.Append(memory.RoleUser, "SI")
	assert.True(t, m.Context().UserConfirmedUnderstanding)
}

func TestInitPreservesTopics(t *testing.T) {
	m := memory.New()
	_, _ = m.Append(memory.RoleAssistant, "Let's review recursion.")
	_, _ = m.Append(memory.RoleAssistant, "Do you understand?")
	_, _ = m.Append(memory.RoleUser, "i follow")

	m.Init("lesson-2", 4)

	ctx := m.Context()
	assert.Equal(t, "lesson-2", ctx.LessonID)
	assert.Equal(t, 4, ctx.PositionIndex)
	assert.Len(t, ctx.TopicsCovered, 1)
	assert.True(t, ctx.UserConfirmedUnderstanding)
	assert.Empty(t, ctx.CurrentTopic)
	assert.Zero(t, m.Len())
}

func TestResetContext(t *testing.T) {
	m := memory.New()
	m.UpdatePosition(2, "Intro", 10)
	_, _ = m.Append(memory.RoleAssistant, "Let's explore maps. Is that clear?")

	m.ResetContext()
	ctx := m.Context()
	assert.False(t, ctx.TransitionPending)
	assert.Empty(t, ctx.CurrentTopic)
	assert.Len(t, ctx.TopicsCovered, 1)
	assert.Equal(t, 2, ctx.PositionIndex)
}

func TestPositionLabel(t *testing.T) {
	assert.Empty(t, memory.Context{}.PositionLabel())

	ctx := memory.Context{PositionIndex: 2, PositionCount: 12, PositionTitle: "Loops"}
	assert.Equal(t, `[SLIDE_CONTEXT: Currently viewing slide 3/12: "Loops"]`, ctx.PositionLabel())
}

func TestSummary(t *testing.T) {
	now, advance := fixedClock(time.Unix(1000, 0))
	m := memory.New(memory.WithNow(now))
	m.SetMode(memory.ModeText)
	_, _ = m.Append(memory.RoleUser, "hi")
	advance(90 * time.Second)
	_, _ = m.Append(memory.RoleAssistant, "hello")

	s := m.Summary()
	assert.Equal(t, 2, s.TotalMessages)
	assert.Equal(t, 2, s.TotalTurns)
	assert.Equal(t, 90*time.Second, s.Duration)
	assert.Equal(t, memory.ModeText, s.Mode)
}

func TestPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions", "memory.json")

	m := memory.NewWithFile(path)
	m.Init("lesson-1", 0)
	_, _ = m.Append(memory.RoleAssistant, "Let's discuss closures. Does that make sense?")
	_, _ = m.Append(memory.RoleUser, "hmm")

	restored := memory.NewWithFile(path)
	require.Equal(t, 2, restored.Len())
	ctx := restored.Context()
	assert.Equal(t, "lesson-1", ctx.LessonID)
	assert.True(t, ctx.TransitionPending)
	assert.Len(t, ctx.TopicsCovered, 1)
	assert.True(t, restored.HasCovered(ctx.TopicsCovered[0]))

	_, _ = restored.Append(memory.RoleUser, "makes sense")
	assert.True(t, restored.Context().UserConfirmedUnderstanding)
	require.NoError(t, restored.Close())
}

func TestJSONStoreMissingFile(t *testing.T) {
	s := memory.NewJSONStore(filepath.Join(t.TempDir(), "missing.json"))
	data, err := s.Load()
	require.NoError(t, err)
	assert.Nil(t, data)
}
