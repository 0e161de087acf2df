package orchestrator

import (
	"context"
	"time"

	"github.com/teslashibe/go-coach/pkg/audio"
	"github.com/teslashibe/go-coach/pkg/render"
	"github.com/teslashibe/go-coach/pkg/tts"
)

// speak synthesizes reply and plays it. Any failure falls back to text.
func (o *Orchestrator) speak(ctx context.Context, gen uint64, reply string, route render.Route) {
	o.mu.Lock()
	if o.turnGen != gen {
		o.mu.Unlock()
		return
	}
	o.state = StateGeneratingSpeech
	settings := o.settings
	o.mu.Unlock()
	o.emitState()

	res, err := o.synthesize(ctx, route, settings.Request(reply))
	if !o.currentTurn(gen) {
		return
	}

	var done <-chan audio.Outcome
	if err == nil {
		if o.player == nil {
			err = audio.ErrNoDevice
		} else {
			done, err = o.player.Play(o.ctx, res.Audio)
		}
	}
	if err != nil {
		o.logger.Warn("speech synthesis failed, showing text", "route", route.String(), "error", err)
		o.emitNotice(NoticeSynthesisFailed, err.Error())
		o.finishAsText(ctx, gen, reply+voiceUnavailableNote)
		return
	}

	o.mu.Lock()
	if o.turnGen != gen {
		o.mu.Unlock()
		o.player.Interrupt()
		return
	}
	o.playGen++
	pg := o.playGen
	o.state = StateSpeaking
	o.wg.Add(1)
	o.mu.Unlock()

	o.retry.Cancel()
	o.silence.Stop()
	o.emitState()

	go o.awaitPlayback(pg, done)
	o.reveal(ctx, reply)
}

func (o *Orchestrator) synthesize(ctx context.Context, route render.Route, req tts.Request) (*tts.AudioResult, error) {
	if o.tts == nil {
		return nil, tts.ErrProviderUnavailable
	}
	if route == render.RouteChunkedSpeech {
		return o.tts.SynthesizeChunked(ctx, req)
	}
	return o.tts.Synthesize(ctx, req)
}

// awaitPlayback routes the playback outcome. Superseded playbacks report
// nothing; whoever replaced them owns the state.
func (o *Orchestrator) awaitPlayback(pg uint64, done <-chan audio.Outcome) {
	defer o.wg.Done()

	var outcome audio.Outcome
	select {
	case outcome = <-done:
	case <-o.ctx.Done():
		return
	}

	switch outcome {
	case audio.OutcomeCompleted, audio.OutcomeFailed:
		o.onPlaybackEnded(pg, o.backoff.AfterSpeech, "playback-completed")
	case audio.OutcomeInterrupted:
		o.onPlaybackEnded(pg, o.backoff.AfterInterrupt, "playback-interrupted")
	}
}

func (o *Orchestrator) onPlaybackEnded(pg uint64, resumeAfter time.Duration, reason string) {
	o.mu.Lock()
	if o.playGen != pg || o.state != StateSpeaking {
		o.mu.Unlock()
		return
	}
	o.state = StateReady
	conv := o.conversation && !o.closed
	o.mu.Unlock()

	o.silence.Stop()
	o.logger.Debug("playback ended", "reason", reason)
	o.emitState()

	if conv {
		o.scheduleRetry(resumeAfter, reason)
	}
}
