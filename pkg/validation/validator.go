package validation

import (
	"log/slog"
	"sync"
	"time"
)

// Validator evaluates results against a config that can be swapped while
// the conversation is running.
type Validator struct {
	mu     sync.RWMutex
	config Config
	logger *slog.Logger

	statsMu  sync.Mutex
	accepted int
	rejected map[Reason]int
}

// New creates a validator with the given config.
func New(cfg Config) *Validator {
	return NewWithLogger(cfg, slog.Default())
}

// NewWithLogger creates a validator that logs rejections to logger.
func NewWithLogger(cfg Config, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		config:   cfg,
		logger:   logger.With("component", "validation"),
		rejected: make(map[Reason]int),
	}
}

// Config returns the active config.
func (v *Validator) Config() Config {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.config
}

// SetConfig replaces the active config.
func (v *Validator) SetConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	v.mu.Lock()
	v.config = cfg
	v.mu.Unlock()
	v.logger.Info("validation config changed", "preset", cfg.Name)
	return nil
}

// SetPreset switches to a named preset.
func (v *Validator) SetPreset(name string) error {
	cfg, err := PresetByName(name)
	if err != nil {
		return err
	}
	return v.SetConfig(cfg)
}

// Evaluate runs Evaluate with the active config and records the outcome.
func (v *Validator) Evaluate(transcript string, confidence float64, isFinal bool, elapsed time.Duration) Result {
	res := Evaluate(transcript, confidence, isFinal, elapsed, v.Config())

	v.statsMu.Lock()
	if res.Accepted {
		v.accepted++
	} else {
		v.rejected[res.Reason]++
	}
	v.statsMu.Unlock()

	if !res.Accepted {
		v.logger.Debug("speech rejected",
			"reason", res.Reason.String(),
			"confidence", confidence,
			"final", isFinal,
			"words", res.Words,
			"elapsed_ms", elapsed.Milliseconds(),
		)
	}
	return res
}

// Stats summarises validation outcomes since creation or the last Reset.
type Stats struct {
	Accepted int            `json:"accepted"`
	Rejected map[string]int `json:"rejected"`
	Preset   string         `json:"preset"`
}

// Stats returns a copy of the counters.
func (v *Validator) Stats() Stats {
	v.statsMu.Lock()
	defer v.statsMu.Unlock()

	rejected := make(map[string]int, len(v.rejected))
	for reason, n := range v.rejected {
		rejected[reason.String()] = n
	}
	return Stats{
		Accepted: v.accepted,
		Rejected: rejected,
		Preset:   v.Config().Name,
	}
}

// Reset clears the counters.
func (v *Validator) Reset() {
	v.statsMu.Lock()
	defer v.statsMu.Unlock()
	v.accepted = 0
	v.rejected = make(map[Reason]int)
}
