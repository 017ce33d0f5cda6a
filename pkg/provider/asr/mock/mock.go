// Package mock provides a test double for the asr.Provider interface.
//
// Pre-populate Transcript (or TranscribeFn for per-call behaviour), then
// inspect TranscribeCalls to verify what audio the caller delivered.
package mock

import (
	"context"
	"sync"

	"github.com/chalkvoice/chalkvoice/pkg/provider/asr"
)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Audio is a copy of the audio bytes passed to Transcribe.
	Audio []byte
}

// Provider is a mock implementation of asr.Provider.
type Provider struct {
	mu sync.Mutex

	// Transcript is returned by Transcribe when TranscribeFn is nil.
	Transcript string

	// TranscribeErr, if non-nil, is returned as the error from Transcribe.
	TranscribeErr error

	// TranscribeFn, if non-nil, overrides the canned Transcript/TranscribeErr
	// pair entirely.
	TranscribeFn func(ctx context.Context, audio []byte) (string, error)

	// ProviderName is returned by Name. Defaults to "mock".
	ProviderName string

	// TranscribeCalls records every call to Transcribe in order.
	TranscribeCalls []TranscribeCall
}

// Transcribe records the call and returns the configured result.
func (p *Provider) Transcribe(ctx context.Context, audio []byte) (string, error) {
	p.mu.Lock()
	cp := make([]byte, len(audio))
	copy(cp, audio)
	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{Ctx: ctx, Audio: cp})
	fn := p.TranscribeFn
	transcript, err := p.Transcript, p.TranscribeErr
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, audio)
	}
	return transcript, err
}

// Name returns ProviderName, defaulting to "mock".
func (p *Provider) Name() string {
	if p.ProviderName != "" {
		return p.ProviderName
	}
	return "mock"
}

// TranscribeCallCount returns the number of Transcribe calls. Thread-safe.
func (p *Provider) TranscribeCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.TranscribeCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = nil
}

// Ensure Provider implements asr.Provider at compile time.
var _ asr.Provider = (*Provider)(nil)
