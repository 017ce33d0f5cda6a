package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/chalkvoice/chalkvoice/pkg/provider/asr"
)

// ErrAllProvidersFailed is returned by [ASRChain.Transcribe] when every
// backend fails or sits behind an open breaker.
var ErrAllProvidersFailed = errors.New("all transcription providers failed")

// chainEntry pairs one backend with its dedicated circuit breaker.
type chainEntry struct {
	name     string
	provider asr.Provider
	breaker  *CircuitBreaker
}

// ASRChain implements [asr.Provider] with automatic failover across multiple
// transcription backends. The primary is always tried first; fallbacks follow
// in registration order, and a backend behind an open breaker is skipped
// without being called.
//
// ASRChain is safe for concurrent use once assembled; AddFallback must not be
// called concurrently with Transcribe.
type ASRChain struct {
	entries []chainEntry
	cbCfg   CircuitBreakerConfig
}

// Compile-time interface assertion.
var _ asr.Provider = (*ASRChain)(nil)

// NewASRChain creates an [ASRChain] with primary as the preferred backend.
// cbCfg seeds every per-backend breaker; its Name field is overwritten with
// the backend's name.
func NewASRChain(primary asr.Provider, cbCfg CircuitBreakerConfig) *ASRChain {
	c := &ASRChain{cbCfg: cbCfg}
	c.add(primary)
	return c
}

// AddFallback registers an additional backend, tried after all earlier ones.
func (c *ASRChain) AddFallback(provider asr.Provider) {
	c.add(provider)
}

func (c *ASRChain) add(provider asr.Provider) {
	cfg := c.cbCfg
	cfg.Name = "asr/" + provider.Name()
	c.entries = append(c.entries, chainEntry{
		name:     provider.Name(),
		provider: provider,
		breaker:  NewCircuitBreaker(cfg),
	})
}

// Name implements asr.Provider. It reports the primary backend's name.
func (c *ASRChain) Name() string {
	if len(c.entries) == 0 {
		return "asr-chain"
	}
	return c.entries[0].name
}

// Ready reports whether the chain could currently serve a transcription: at
// least one backend must sit behind a breaker that admits calls. Used as the
// readiness check for the asr dependency.
func (c *ASRChain) Ready() error {
	if len(c.entries) == 0 {
		return errors.New("no transcription backends configured")
	}
	for i := range c.entries {
		if c.entries[i].breaker.State() != StateOpen {
			return nil
		}
	}
	return errors.New("all transcription backends have open circuit breakers")
}

// Transcribe tries each backend in order until one returns a transcript.
// A ctx that is cancelled or past its deadline stops the chain immediately so
// a caller-imposed timeout is not burned retrying hopeless backends.
func (c *ASRChain) Transcribe(ctx context.Context, audio []byte) (string, error) {
	var lastErr error
	for i := range c.entries {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if lastErr != nil {
				return "", fmt.Errorf("%w: %w", lastErr, ctxErr)
			}
			return "", ctxErr
		}

		entry := &c.entries[i]
		var transcript string
		err := entry.breaker.Execute(func() error {
			var innerErr error
			transcript, innerErr = entry.provider.Transcribe(ctx, audio)
			return innerErr
		})
		if err == nil {
			return transcript, nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping transcription backend (circuit open)", "provider", entry.name)
		} else {
			slog.Warn("transcription backend failed, trying next",
				"provider", entry.name, "error", err)
		}
	}
	return "", fmt.Errorf("%w: %w", ErrAllProvidersFailed, lastErr)
}
