// Package memory keeps the conversation log and the lesson context.
//
// A Memory holds:
//   - Turns: the append-only log of user, assistant and prompt utterances
//   - Context: lesson position, current topic, covered topics and the
//     confirmation flags driven by the phrase Classifier
//
// Memory persists to an optional Store after every change.
package memory

import (
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultWindow is how many recent turns are sent as context.
const DefaultWindow = 10

var (
	// ErrInvalidRole is returned by Append for unknown roles.
	ErrInvalidRole = errors.New("memory: invalid role")

	// ErrEmptyContent is returned by Append for blank content.
	ErrEmptyContent = errors.New("memory: empty content")
)

// Memory is the conversation log and context for one session.
type Memory struct {
	turns           []Turn
	ctx             Context
	topics          map[string]struct{}
	mode            Mode
	startedAt       time.Time
	lastInteraction time.Time
	totalTurns      int

	window     int
	classifier *Classifier
	store      Store
	now        func() time.Time
	logger     *slog.Logger

	mu sync.RWMutex
}

// Option configures a Memory.
type Option func(*Memory)

// WithStore persists memory after every change.
func WithStore(s Store) Option {
	return func(m *Memory) { m.store = s }
}

// WithPhrases replaces the topic and confirmation phrase lists.
func WithPhrases(p Phrases) Option {
	return func(m *Memory) { m.classifier = NewClassifier(p) }
}

// WithWindow sets how many turns Recent returns by default.
func WithWindow(n int) Option {
	return func(m *Memory) {
		if n > 0 {
			m.window = n
		}
	}
}

// WithNow replaces the wall clock.
func WithNow(now func() time.Time) Option {
	return func(m *Memory) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Memory) {
		if l != nil {
			m.logger = l
		}
	}
}

// New creates an empty memory in voice mode.
func New(opts ...Option) *Memory {
	m := &Memory{
		topics:     make(map[string]struct{}),
		mode:       ModeVoice,
		window:     DefaultWindow,
		classifier: NewClassifier(DefaultPhrases()),
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "memory")
	m.startedAt = m.now()
	m.lastInteraction = m.startedAt

	if m.store != nil {
		if err := m.Load(); err != nil {
			m.logger.Warn("failed to load memory", "error", err)
		}
	}
	return m
}

// NewWithFile creates a memory that persists to a JSON file.
func NewWithFile(path string, opts ...Option) *Memory {
	return New(append(opts, WithStore(NewJSONStore(path)))...)
}

// Init starts a new session for a lesson. The log is cleared; covered topics
// and the confirmation flag carry over from the previous session.
func (m *Memory) Init(lessonID string, position int) {
	m.mu.Lock()
	now := m.now()
	m.turns = nil
	m.totalTurns = 0
	m.startedAt = now
	m.lastInteraction = now
	m.ctx = Context{
		LessonID:                   lessonID,
		PositionIndex:              position,
		PositionTitle:              m.ctx.PositionTitle,
		PositionCount:              m.ctx.PositionCount,
		TopicsCovered:              m.ctx.TopicsCovered,
		UserConfirmedUnderstanding: m.ctx.UserConfirmedUnderstanding,
	}
	m.mu.Unlock()

	m.save()
}

// Append logs a turn and updates topic tracking.
//
// Assistant turns are checked for topic introductions and confirmation
// requests. User turns are checked against the confirmation list only while a
// confirmation is pending. Prompt turns are logged without classification.
func (m *Memory) Append(role Role, content string) (Turn, error) {
	if !role.Valid() {
		return Turn{}, ErrInvalidRole
	}
	if strings.TrimSpace(content) == "" {
		return Turn{}, ErrEmptyContent
	}

	m.mu.Lock()
	now := m.now()
	turn := Turn{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: now,
	}
	m.turns = append(m.turns, turn)
	m.lastInteraction = now
	m.totalTurns++

	switch role {
	case RoleUser:
		if m.ctx.TransitionPending && m.classifier.IsConfirmation(content) {
			m.ctx.TransitionPending = false
			m.ctx.UserConfirmedUnderstanding = true
			m.logger.Debug("user confirmed understanding")
		}
	case RoleAssistant:
		if m.classifier.IsTopicIntroduction(content) {
			id := TopicID(content, now)
			m.ctx.CurrentTopic = id
			m.ctx.TopicStartTime = now
			if _, seen := m.topics[id]; !seen {
				m.topics[id] = struct{}{}
				m.ctx.TopicsCovered = append(m.ctx.TopicsCovered, id)
			}
			m.logger.Debug("new topic", "topic", id)
		}
		if m.classifier.IsConfirmationRequest(content) {
			m.ctx.TransitionPending = true
			m.ctx.UserConfirmedUnderstanding = false
			m.ctx.LastTransitionTime = now
			m.logger.Debug("waiting for confirmation")
		}
	}
	m.mu.Unlock()

	m.save()
	return turn, nil
}

// Recent returns up to n of the latest turns, oldest first. n <= 0 uses the
// configured window.
func (m *Memory) Recent(n int) []Turn {
	if n <= 0 {
		n = m.window
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	start := len(m.turns) - n
	if start < 0 {
		start = 0
	}
	out := make([]Turn, len(m.turns)-start)
	copy(out, m.turns[start:])
	return out
}

// History returns a copy of every turn.
func (m *Memory) History() []Turn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Turn, len(m.turns))
	copy(out, m.turns)
	return out
}

// Len returns the number of logged turns.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.turns)
}

// SetMode records the interaction mode.
func (m *Memory) SetMode(mode Mode) {
	m.mu.Lock()
	m.mode = mode
	m.mu.Unlock()
	m.save()
}

// Mode returns the recorded interaction mode.
func (m *Memory) Mode() Mode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mode
}

// Summary describes the session at a glance.
type Summary struct {
	TotalMessages int           `json:"total_messages"`
	TotalTurns    int           `json:"total_turns"`
	Duration      time.Duration `json:"duration"`
	Mode          Mode          `json:"mode"`
	LessonID      string        `json:"lesson_id,omitempty"`
	PositionIndex int           `json:"position_index"`
	TopicsCovered int           `json:"topics_covered"`
}

// Summary returns counts and timing for the session.
func (m *Memory) Summary() Summary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Summary{
		TotalMessages: len(m.turns),
		TotalTurns:    m.totalTurns,
		Duration:      m.now().Sub(m.startedAt),
		Mode:          m.mode,
		LessonID:      m.ctx.LessonID,
		PositionIndex: m.ctx.PositionIndex,
		TopicsCovered: len(m.ctx.TopicsCovered),
	}
}

// LastInteraction returns when the last turn was appended.
func (m *Memory) LastInteraction() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastInteraction
}

// record is the persisted form of Memory.
type record struct {
	Turns           []Turn    `json:"turns"`
	Context         Context   `json:"context"`
	Mode            Mode      `json:"mode"`
	StartedAt       time.Time `json:"started_at"`
	LastInteraction time.Time `json:"last_interaction"`
	TotalTurns      int       `json:"total_turns"`
}

// ToJSON serializes memory to JSON bytes.
func (m *Memory) ToJSON() ([]byte, error) {
	m.mu.RLock()
	rec := record{
		Turns:           m.turns,
		Context:         m.ctx,
		Mode:            m.mode,
		StartedAt:       m.startedAt,
		LastInteraction: m.lastInteraction,
		TotalTurns:      m.totalTurns,
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	m.mu.RUnlock()
	return data, err
}

// FromJSON replaces memory contents with serialized data.
func (m *Memory) FromJSON(data []byte) error {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = rec.Turns
	m.ctx = rec.Context
	m.topics = make(map[string]struct{}, len(rec.Context.TopicsCovered))
	for _, id := range rec.Context.TopicsCovered {
		m.topics[id] = struct{}{}
	}
	if rec.Mode != "" {
		m.mode = rec.Mode
	}
	if !rec.StartedAt.IsZero() {
		m.startedAt = rec.StartedAt
	}
	if !rec.LastInteraction.IsZero() {
		m.lastInteraction = rec.LastInteraction
	}
	m.totalTurns = rec.TotalTurns
	return nil
}

// Save persists memory to the configured store.
func (m *Memory) Save() error {
	if m.store == nil {
		return nil
	}
	data, err := m.ToJSON()
	if err != nil {
		return err
	}
	return m.store.Save(data)
}

func (m *Memory) save() {
	if err := m.Save(); err != nil {
		m.logger.Warn("failed to save memory", "error", err)
	}
}

// Load reads memory from the configured store.
func (m *Memory) Load() error {
	if m.store == nil {
		return nil
	}
	data, err := m.store.Load()
	if err != nil {
		return err
	}
	if data == nil {
		return nil // No data yet
	}
	return m.FromJSON(data)
}

// Close releases resources held by the store.
func (m *Memory) Close() error {
	if m.store == nil {
		return nil
	}
	return m.store.Close()
}
