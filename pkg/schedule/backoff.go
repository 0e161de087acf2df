package schedule

import "time"

// Backoff holds the resume delays used by the orchestrator.
type Backoff struct {
	// AfterSpeech follows a natural end of AI playback.
	AfterSpeech time.Duration

	// AfterInterrupt follows a user interruption; it is shorter than AfterSpeech.
	AfterInterrupt time.Duration

	// NoSpeech follows a no-speech recognition error.
	NoSpeech time.Duration

	// Cooldown replaces NoSpeech once the retry limit is reached.
	Cooldown time.Duration

	// AudioCapture follows a microphone capture error.
	AudioCapture time.Duration

	// OtherError follows any other recognition error.
	OtherError time.Duration

	// RecognitionEnd follows a recognition session that ended quietly.
	RecognitionEnd time.Duration

	// RecognitionEndIdle replaces RecognitionEnd when no valid speech has
	// been heard for IdleAfter.
	RecognitionEndIdle time.Duration
	IdleAfter          time.Duration
}

// DefaultBackoff returns the stock delays.
func DefaultBackoff() Backoff {
	return Backoff{
		AfterSpeech:        1000 * time.Millisecond,
		AfterInterrupt:     300 * time.Millisecond,
		NoSpeech:           1000 * time.Millisecond,
		Cooldown:           6000 * time.Millisecond,
		AudioCapture:       1500 * time.Millisecond,
		OtherError:         2000 * time.Millisecond,
		RecognitionEnd:     800 * time.Millisecond,
		RecognitionEndIdle: 2000 * time.Millisecond,
		IdleAfter:          30 * time.Second,
	}
}

// NoSpeechDelay returns the delay after the count-th consecutive no-speech
// error. Once count reaches max the cooldown is returned and reset is true;
// the caller must then zero its counter.
func (b Backoff) NoSpeechDelay(count, max int) (delay time.Duration, reset bool) {
	if max > 0 && count >= max {
		return b.Cooldown, true
	}
	return b.NoSpeech, false
}

// EndDelay returns the restart delay after a quiet recognition end.
// lastSpeech is when speech was last accepted; zero counts as idle.
func (b Backoff) EndDelay(now, lastSpeech time.Time) time.Duration {
	if lastSpeech.IsZero() || now.Sub(lastSpeech) > b.IdleAfter {
		return b.RecognitionEndIdle
	}
	return b.RecognitionEnd
}
