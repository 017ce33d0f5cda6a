// Package whispercpp provides an asr.Provider backed by the whisper.cpp CGO
// bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH environment variables.
//
// The model is loaded once at construction and shared across all Transcribe
// calls; each call runs inference in a fresh whisper context, so concurrent
// transcriptions do not interfere.
package whispercpp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/chalkvoice/chalkvoice/pkg/provider/asr"
)

const (
	defaultLanguage = "en"

	// inferenceRate is the sample rate whisper.cpp expects. Clips recorded at
	// another rate are resampled before inference.
	inferenceRate = 16000
)

// Compile-time assertion that Provider satisfies asr.Provider.
var _ asr.Provider = (*Provider)(nil)

// Provider implements asr.Provider using whisper.cpp Go bindings (CGO).
type Provider struct {
	model    whisperlib.Model
	language string
}

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithLanguage sets the BCP-47 language code for transcription (e.g., "en",
// "de", "hi"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// New creates a Provider that loads the whisper.cpp model from the given file
// path. The caller must call Close when the provider is no longer needed.
func New(modelPath string, opts ...Option) (*Provider, error) {
	if modelPath == "" {
		return nil, errors.New("whispercpp: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whispercpp: load model %q: %w", modelPath, err)
	}

	p := &Provider{
		model:    model,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the whisper model. Must be called when the provider is no
// longer needed.
func (p *Provider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// Name implements asr.Provider.
func (p *Provider) Name() string { return "whispercpp" }

// Transcribe implements asr.Provider. The audio payload is a 16-bit PCM
// RIFF/WAVE clip, or raw 16 kHz mono PCM without a container.
func (p *Provider) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("whispercpp: context already done: %w", err)
	}
	if len(audio) == 0 {
		return "", errors.New("whispercpp: empty audio clip")
	}

	c, err := decodeClip(audio, inferenceRate)
	if err != nil {
		return "", err
	}
	samples := resample(c.samples, c.sampleRate, inferenceRate)
	if len(samples) == 0 {
		return "", errors.New("whispercpp: clip contains no samples")
	}

	// Inference runs on the CGO side and cannot be interrupted, so the
	// deadline is re-checked after it completes. Callers bound the wait with
	// their own ctx timeout.
	text, err := p.infer(samples)
	if err != nil {
		return "", err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", fmt.Errorf("whispercpp: transcription overran deadline: %w", ctxErr)
	}
	return text, nil
}

// infer runs whisper.cpp inference on a fresh context and concatenates the
// recognised segments.
func (p *Provider) infer(samples []float32) (string, error) {
	wctx, err := p.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whispercpp: create context: %w", err)
	}

	if err := wctx.SetLanguage(p.language); err != nil {
		return "", fmt.Errorf("whispercpp: set language %q: %w", p.language, err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whispercpp: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whispercpp: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}

// resample converts samples from one rate to another with linear
// interpolation. Good enough for speech recognition input; returns the input
// unchanged when the rates already agree.
func resample(samples []float32, from, to int) []float32 {
	if from == to || from <= 0 || to <= 0 || len(samples) == 0 {
		return samples
	}
	outLen := int(float64(len(samples)) * float64(to) / float64(from))
	if outLen == 0 {
		return nil
	}
	out := make([]float32, outLen)
	ratio := float64(from) / float64(to)
	for i := range out {
		pos := float64(i) * ratio
		j := int(pos)
		if j >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := float32(pos - float64(j))
		out[i] = samples[j]*(1-frac) + samples[j+1]*frac
	}
	return out
}
