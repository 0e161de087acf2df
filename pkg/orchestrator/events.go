package orchestrator

import (
	"time"

	"github.com/teslashibe/go-coach/pkg/memory"
)

// EventType classifies events delivered to subscribers.
type EventType string

const (
	// EventState carries a Snapshot after a state change.
	EventState EventType = "state"
	// EventTurn carries a turn appended to memory.
	EventTurn EventType = "turn"
	// EventInterim carries an accepted interim transcript.
	EventInterim EventType = "interim"
	// EventReveal carries the visible prefix of the reply being revealed.
	EventReveal EventType = "reveal"
	// EventNotice carries a user-facing notice.
	EventNotice EventType = "notice"
)

// Notice identifies a user-facing message.
type Notice string

const (
	NoticePermission        Notice = "permission"
	NoticeSynthesisFailed   Notice = "synthesis-failed"
	NoticeChatFailed        Notice = "chat-failed"
	NoticeSpeechUnavailable Notice = "speech-unavailable"
)

// Event is delivered to subscribers.
type Event struct {
	Type     EventType    `json:"type"`
	Snapshot *Snapshot    `json:"snapshot,omitempty"`
	Turn     *memory.Turn `json:"turn,omitempty"`
	Text     string       `json:"text,omitempty"`
	Notice   Notice       `json:"notice,omitempty"`
	Time     time.Time    `json:"time"`
}

// Snapshot is the observable orchestrator state.
type Snapshot struct {
	State            State     `json:"state"`
	ConversationMode bool      `json:"conversation_mode"`
	IsAISpeaking     bool      `json:"is_ai_speaking"`
	Listening        bool      `json:"listening"`
	NoSpeechCount    int       `json:"no_speech_count"`
	LastValidSpeech  time.Time `json:"last_valid_speech,omitempty"`
	Mode             string    `json:"mode"`
	ResumePending    bool      `json:"resume_pending"`
	ResumeDelayMs    int64     `json:"resume_delay_ms"`
}

// Subscribe registers fn for every event. Events are delivered on the
// goroutine that produced them, so fn must not block.
func (o *Orchestrator) Subscribe(fn func(Event)) (unsubscribe func()) {
	o.subsMu.Lock()
	id := o.nextSub
	o.nextSub++
	o.subs[id] = fn
	o.subsMu.Unlock()

	return func() {
		o.subsMu.Lock()
		delete(o.subs, id)
		o.subsMu.Unlock()
	}
}

func (o *Orchestrator) subscribed() bool {
	o.subsMu.RLock()
	defer o.subsMu.RUnlock()
	return len(o.subs) > 0
}

// emit must be called without o.mu held.
func (o *Orchestrator) emit(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = o.clock.Now()
	}

	o.subsMu.RLock()
	fns := make([]func(Event), 0, len(o.subs))
	for _, fn := range o.subs {
		fns = append(fns, fn)
	}
	o.subsMu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}

func (o *Orchestrator) emitState() {
	snap := o.Snapshot()
	o.emit(Event{Type: EventState, Snapshot: &snap})
}

func (o *Orchestrator) emitNotice(n Notice, text string) {
	o.emit(Event{Type: EventNotice, Notice: n, Text: text})
}
