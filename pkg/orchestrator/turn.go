package orchestrator

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/teslashibe/go-coach/pkg/chat"
	"github.com/teslashibe/go-coach/pkg/memory"
	"github.com/teslashibe/go-coach/pkg/render"
)

const (
	chatErrorReply = "Sorry, there was an error processing your message."
	emptyReply     = "Sorry, I could not process your request."

	voiceUnavailableNote = "\n\n[Voice synthesis temporarily unavailable]"
)

// SubmitText processes typed input as a user turn. It stops any running
// recognition and returns once the turn has been accepted; the reply arrives
// through events.
func (o *Orchestrator) SubmitText(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyText
	}

	o.mu.Lock()
	switch {
	case o.closed:
		o.mu.Unlock()
		return ErrClosed
	case o.state == StateSpeaking:
		o.mu.Unlock()
		return ErrAISpeaking
	case o.state.Busy():
		o.mu.Unlock()
		return ErrBusy
	}
	wasRecognizing := o.recognizing
	o.recognizing = false
	o.session++
	gen, ctx := o.beginTurnLocked()
	o.mu.Unlock()

	o.retry.Cancel()
	o.silence.Stop()
	if wasRecognizing {
		if err := o.rec.Stop(); err != nil {
			o.logger.Warn("failed to stop recognition", "error", err)
		}
	}
	o.emitState()

	go o.runTurn(ctx, gen, memory.RoleUser, text, false)
	return nil
}

// beginTurnLocked moves to thinking and opens a new turn generation. The
// caller must hold o.mu and must run runTurn with the returned values.
func (o *Orchestrator) beginTurnLocked() (uint64, context.Context) {
	o.state = StateThinking
	o.turnGen++
	if o.turnCancel != nil {
		o.turnCancel()
	}
	ctx, cancel := context.WithCancel(o.ctx)
	o.turnCancel = cancel
	o.wg.Add(1)
	return o.turnGen, ctx
}

// currentTurn reports whether gen is still the live turn.
func (o *Orchestrator) currentTurn(gen uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.turnGen == gen && !o.closed
}

// runTurn sends one turn to the chat backend and delivers the reply.
func (o *Orchestrator) runTurn(ctx context.Context, gen uint64, role memory.Role, text string, greeting bool) {
	defer o.wg.Done()

	ctx, span := tracer.Start(ctx, "process turn", trace.WithAttributes(
		attribute.String("role", string(role)),
		attribute.Bool("greeting", greeting),
	))
	defer span.End()

	mctx := o.mem.Context()
	req := chat.Request{
		Text:          text,
		History:       o.history(),
		PositionIndex: mctx.PositionIndex,
		PositionLabel: mctx.PositionLabel(),
		LessonID:      mctx.LessonID,
	}
	if greeting {
		req = chat.Greeting(mctx.LessonID, mctx.PositionIndex, mctx.PositionLabel())
	} else {
		o.appendTurn(role, text)
	}

	resp, err := o.chat.Send(ctx, req)
	if !o.currentTurn(gen) {
		o.logger.Debug("turn abandoned", "turn", gen)
		return
	}

	var reply string
	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.logger.Warn("chat request failed", "error", err)
		o.emitNotice(NoticeChatFailed, err.Error())
		reply = chatErrorReply
	case strings.TrimSpace(resp.Text) == "":
		reply = emptyReply
	default:
		reply = resp.Text
	}
	o.appendTurn(memory.RoleAssistant, reply)
	turnsProcessed.Add(ctx, 1, metricReason(string(role)))

	o.mu.Lock()
	mode := o.mode
	o.mu.Unlock()

	route := render.Select(mode, reply, err, o.cfg.ChunkThreshold)
	span.SetAttributes(attribute.String("route", route.String()))
	o.logger.Debug("reply ready", "turn", gen, "route", route.String(), "chars", len(reply))

	if !route.Speaks() {
		o.finishAsText(ctx, gen, reply)
		return
	}
	o.speak(ctx, gen, reply, route)
}

// history returns the recent turns sent as context. Prompt turns are the
// client talking to itself and are left out.
func (o *Orchestrator) history() []chat.Message {
	turns := o.mem.Recent(o.cfg.HistoryTurns)
	msgs := make([]chat.Message, 0, len(turns))
	for _, t := range turns {
		if t.Role == memory.RolePrompt {
			continue
		}
		msgs = append(msgs, chat.Message{Role: string(t.Role), Content: t.Content})
	}
	return msgs
}

func (o *Orchestrator) appendTurn(role memory.Role, text string) {
	turn, err := o.mem.Append(role, text)
	if err != nil {
		o.logger.Warn("failed to record turn", "role", role, "error", err)
		return
	}
	o.emit(Event{Type: EventTurn, Turn: &turn})
}

// finishAsText returns to ready, schedules the next listen in conversation
// mode and reveals reply.
func (o *Orchestrator) finishAsText(ctx context.Context, gen uint64, reply string) {
	o.mu.Lock()
	if o.turnGen != gen {
		o.mu.Unlock()
		return
	}
	changed := o.state != StateReady
	o.state = StateReady
	conv := o.conversation
	o.mu.Unlock()

	if changed {
		o.emitState()
	}
	if conv {
		o.scheduleRetry(o.backoff.AfterSpeech, "text-reply")
	}
	o.reveal(ctx, reply)
}

func (o *Orchestrator) reveal(ctx context.Context, text string) {
	if !o.subscribed() {
		return
	}
	_ = o.typewriter.Reveal(ctx, text, func(s string) {
		o.emit(Event{Type: EventReveal, Text: s})
	})
}
