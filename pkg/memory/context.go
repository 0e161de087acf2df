package memory

import (
	"fmt"
	"time"
)

// Context is the lesson and topic state of a session.
type Context struct {
	LessonID      string `json:"lesson_id,omitempty"`
	PositionIndex int    `json:"position_index"`
	PositionTitle string `json:"position_title,omitempty"`
	PositionCount int    `json:"position_count,omitempty"`

	CurrentTopic   string    `json:"current_topic,omitempty"`
	TopicStartTime time.Time `json:"topic_start_time,omitempty"`
	TopicsCovered  []string  `json:"topics_covered,omitempty"`

	LastTransitionTime         time.Time `json:"last_transition_time,omitempty"`
	UserConfirmedUnderstanding bool      `json:"user_confirmed_understanding"`
	TransitionPending          bool      `json:"transition_pending"`
}

// PositionLabel renders the position for the chat backend, e.g.
// [SLIDE_CONTEXT: Currently viewing slide 3/12: "Loops"]. It is empty when
// the lesson has no positions.
func (c Context) PositionLabel() string {
	if c.PositionCount <= 0 {
		return ""
	}
	return fmt.Sprintf("[SLIDE_CONTEXT: Currently viewing slide %d/%d: %q]",
		c.PositionIndex+1, c.PositionCount, c.PositionTitle)
}

// --- Memory methods for Context ---

// Context returns a copy of the current context.
func (m *Memory) Context() Context {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c := m.ctx
	if c.TopicsCovered != nil {
		c.TopicsCovered = append([]string(nil), m.ctx.TopicsCovered...)
	}
	return c
}

// UpdatePosition moves the lesson pointer.
func (m *Memory) UpdatePosition(index int, title string, count int) {
	m.mu.Lock()
	m.ctx.PositionIndex = index
	m.ctx.PositionTitle = title
	if count > 0 {
		m.ctx.PositionCount = count
	}
	m.mu.Unlock()

	m.save()
}

// SetLesson switches the lesson without clearing the log.
func (m *Memory) SetLesson(lessonID string) {
	m.mu.Lock()
	m.ctx.LessonID = lessonID
	m.mu.Unlock()

	m.save()
}

// Topics returns the ids of covered topics in the order they were introduced.
func (m *Memory) Topics() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.ctx.TopicsCovered...)
}

// HasCovered reports whether a topic id was introduced.
func (m *Memory) HasCovered(topicID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.topics[topicID]
	return ok
}

// ClearTopics forgets topic history and the confirmation flags.
func (m *Memory) ClearTopics() {
	m.mu.Lock()
	m.topics = make(map[string]struct{})
	m.ctx.TopicsCovered = nil
	m.ctx.CurrentTopic = ""
	m.ctx.TopicStartTime = time.Time{}
	m.ctx.LastTransitionTime = time.Time{}
	m.ctx.TransitionPending = false
	m.ctx.UserConfirmedUnderstanding = false
	m.mu.Unlock()

	m.save()
}

// ResetContext returns the context to its start-of-conversation shape. The
// lesson position, covered topics and the confirmation flag are kept; the
// current topic and any pending confirmation are dropped.
func (m *Memory) ResetContext() {
	m.mu.Lock()
	m.ctx.CurrentTopic = ""
	m.ctx.TopicStartTime = time.Time{}
	m.ctx.LastTransitionTime = time.Time{}
	m.ctx.TransitionPending = false
	m.mu.Unlock()

	m.save()
}
