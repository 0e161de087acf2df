package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/teslashibe/go-coach/pkg/memory"
	"github.com/teslashibe/go-coach/pkg/speech"
)

// silencePrompt is sent on the user's behalf when the silence timer fires.
const silencePrompt = "continue conversation"

// StartListening starts a recognition session. It is refused while
// recognition is running, while the coach is speaking and while a turn is
// being processed. If the recognizer fails to start the state returns to
// ready. ctx bounds the start only, not the session.
func (o *Orchestrator) StartListening(ctx context.Context) error {
	playing := o.player != nil && o.player.Playing()

	o.mu.Lock()
	switch {
	case o.closed:
		o.mu.Unlock()
		return ErrClosed
	case o.recognizing:
		o.mu.Unlock()
		return ErrAlreadyListening
	case o.state == StateSpeaking || playing:
		o.mu.Unlock()
		return ErrAISpeaking
	case o.state.Busy():
		o.mu.Unlock()
		return ErrBusy
	}
	o.recognizing = true
	o.session++
	sess := o.session
	o.state = StateListening
	o.listenStart = o.clock.Now()
	o.speechStart = time.Time{}
	o.mu.Unlock()

	o.emitState()

	if err := o.rec.Start(ctx, &sessionHandler{o: o, session: sess}); err != nil {
		o.mu.Lock()
		changed := false
		if o.session == sess {
			o.recognizing = false
			if o.state == StateListening {
				o.state = StateReady
				changed = true
			}
		}
		o.mu.Unlock()

		o.logger.Warn("failed to start recognition", "error", err)
		o.emitNotice(NoticeSpeechUnavailable, err.Error())
		if changed {
			o.emitState()
		}
		return fmt.Errorf("orchestrator: start recognition: %w", err)
	}

	o.silence.Stop()
	o.logger.Debug("listening", "session", sess)
	return nil
}

// sessionHandler tags recognizer events with the session that produced them
// so late events from a stopped session are dropped.
type sessionHandler struct {
	o       *Orchestrator
	session uint64
}

func (h *sessionHandler) HandleResult(r speech.Result) {
	h.o.handleResult(h.session, r)
}

func (h *sessionHandler) HandleEnd() {
	h.o.handleEnd(h.session)
}

func (h *sessionHandler) HandleError(k speech.ErrorKind) {
	h.o.handleError(h.session, k)
}

func (o *Orchestrator) handleResult(sess uint64, r speech.Result) {
	now := o.clock.Now()

	o.mu.Lock()
	if o.session != sess || !o.recognizing {
		o.mu.Unlock()
		return
	}
	// A final that arrives as the first result is timed from the start of
	// listening; otherwise from the first result of the utterance.
	start := o.speechStart
	if start.IsZero() {
		o.speechStart = now
		start = o.listenStart
	}
	o.mu.Unlock()
	o.silence.Stop()

	res := o.validator.Evaluate(r.Text, r.Confidence, r.Final, now.Sub(start))
	if !res.Accepted {
		return
	}
	if !r.Final {
		o.emit(Event{Type: EventInterim, Text: r.Text})
		return
	}

	o.mu.Lock()
	if o.session != sess || !o.recognizing || o.state.Busy() || o.state == StateSpeaking {
		o.mu.Unlock()
		return
	}
	o.noSpeechCount = 0
	o.lastValidSpeech = now
	o.recognizing = false
	o.session++
	o.speechStart = time.Time{}
	gen, ctx := o.beginTurnLocked()
	o.mu.Unlock()

	if err := o.rec.Stop(); err != nil {
		o.logger.Warn("failed to stop recognition", "error", err)
	}
	o.logger.Debug("speech accepted", "words", res.Words, "confidence", r.Confidence)
	o.emitState()

	go o.runTurn(ctx, gen, memory.RoleUser, r.Text, false)
}

func (o *Orchestrator) handleEnd(sess uint64) {
	now := o.clock.Now()

	o.mu.Lock()
	if o.session != sess {
		o.mu.Unlock()
		return
	}
	o.recognizing = false
	changed := false
	if o.state == StateListening {
		o.state = StateReady
		changed = true
	}
	idle := o.conversation && !o.closed && o.state == StateReady
	handled := o.errorHandled == sess
	last := o.lastValidSpeech
	o.mu.Unlock()

	if changed {
		o.emitState()
	}
	if !idle {
		return
	}

	o.silence.Arm(o.cfg.SilenceTimeout, o.onSilence)
	if handled {
		return
	}
	o.scheduleRetry(o.backoff.EndDelay(now, last), "recognition-end")
}

func (o *Orchestrator) handleError(sess uint64, kind speech.ErrorKind) {
	recognitionErrors.Add(o.ctx, 1, metricKind(kind.String()))
	maxNoSpeech := o.validator.Config().MaxNoSpeechRetries

	o.mu.Lock()
	if o.session != sess {
		o.mu.Unlock()
		return
	}
	o.recognizing = false
	o.errorHandled = sess
	changed := false
	if o.state == StateListening {
		o.state = StateReady
		changed = true
	}

	var (
		delay time.Duration
		retry = true
		fatal bool
	)
	switch kind {
	case speech.ErrorNoSpeech:
		o.noSpeechCount++
		d, reset := o.backoff.NoSpeechDelay(o.noSpeechCount, maxNoSpeech)
		if reset {
			o.noSpeechCount = 0
		}
		delay = d
	case speech.ErrorNotAllowed:
		fatal = true
	case speech.ErrorAudioCapture:
		delay = o.backoff.AudioCapture
	case speech.ErrorAborted:
		retry = false
	default:
		delay = o.backoff.OtherError
	}
	retry = retry && !fatal && o.conversation && !o.closed && o.state != StateSpeaking
	count := o.noSpeechCount
	o.mu.Unlock()

	if changed {
		o.emitState()
	}

	if fatal {
		o.logger.Error("microphone permission denied, stopping conversation")
		o.emitNotice(NoticePermission, "Microphone access is required for voice conversation.")
		o.StopConversation()
		return
	}

	o.logger.Debug("recognition error", "kind", kind.String(), "no_speech_count", count)
	if retry {
		o.scheduleRetry(delay, kind.String())
	}
}

// onSilence re-prompts the coach after a quiet stretch.
func (o *Orchestrator) onSilence() {
	o.mu.Lock()
	if !o.conversation || o.closed || o.state != StateReady || o.recognizing {
		o.mu.Unlock()
		return
	}
	gen, ctx := o.beginTurnLocked()
	o.mu.Unlock()

	o.retry.Cancel()
	o.logger.Debug("silence timeout, prompting")
	o.emitState()

	go o.runTurn(ctx, gen, memory.RolePrompt, silencePrompt, false)
}
