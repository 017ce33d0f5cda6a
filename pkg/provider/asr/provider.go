// Package asr defines the Provider interface for batch speech-to-text
// backends.
//
// Unlike a streaming dictation pipeline, a classroom command is one short
// utterance: the caller records a complete clip, hands the bytes to
// Transcribe, and receives the full transcript in a single round trip. The
// audio format is 16-bit signed little-endian PCM wrapped in a RIFF/WAVE
// container unless an implementation documents otherwise.
//
// Implementations must be safe for concurrent use.
package asr

import (
	"context"
	"errors"
)

// ErrNotSupported is returned by providers for capabilities they do not
// implement.
var ErrNotSupported = errors.New("asr: not supported")

// Provider is the abstraction over any batch speech-to-text backend.
type Provider interface {
	// Transcribe converts one complete audio clip into its transcript.
	// Implementations must honour ctx cancellation and deadlines; a deadline
	// crossing returns an error wrapping context.DeadlineExceeded.
	//
	// The returned transcript is the raw recognised text without any command
	// normalization applied.
	Transcribe(ctx context.Context, audio []byte) (string, error)

	// Name identifies the backend in logs and health output.
	Name() string
}
