package whispercpp

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// clip is decoded audio ready for inference.
type clip struct {
	samples    []float32
	sampleRate int
}

var errNotWAV = errors.New("whispercpp: audio is not a RIFF/WAVE container")

// decodeClip turns an audio payload into mono float32 samples. RIFF/WAVE
// containers carrying 16-bit PCM are parsed; anything without a RIFF header
// is treated as raw 16-bit signed little-endian mono PCM at the provider's
// configured sample rate.
func decodeClip(audio []byte, fallbackRate int) (clip, error) {
	if len(audio) >= 12 && string(audio[0:4]) == "RIFF" && string(audio[8:12]) == "WAVE" {
		return decodeWAV(audio)
	}
	return clip{
		samples:    pcmToFloat32Mono(audio, 1),
		sampleRate: fallbackRate,
	}, nil
}

// decodeWAV walks the RIFF chunk list for the fmt and data chunks. Only
// uncompressed 16-bit PCM (format tag 1) is accepted.
func decodeWAV(audio []byte) (clip, error) {
	if len(audio) < 12 || string(audio[0:4]) != "RIFF" || string(audio[8:12]) != "WAVE" {
		return clip{}, errNotWAV
	}

	var (
		channels   int
		sampleRate int
		bitDepth   int
		data       []byte
		haveFmt    bool
	)

	off := 12
	for off+8 <= len(audio) {
		id := string(audio[off : off+4])
		size := int(binary.LittleEndian.Uint32(audio[off+4 : off+8]))
		body := off + 8
		if size < 0 || body+size > len(audio) {
			return clip{}, fmt.Errorf("whispercpp: truncated %q chunk", id)
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return clip{}, fmt.Errorf("whispercpp: fmt chunk too short (%d bytes)", size)
			}
			format := int(binary.LittleEndian.Uint16(audio[body : body+2]))
			if format != 1 {
				return clip{}, fmt.Errorf("whispercpp: unsupported WAV format tag %d, want PCM", format)
			}
			channels = int(binary.LittleEndian.Uint16(audio[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(audio[body+4 : body+8]))
			bitDepth = int(binary.LittleEndian.Uint16(audio[body+14 : body+16]))
			haveFmt = true
		case "data":
			data = audio[body : body+size]
		}

		// Chunks are word-aligned.
		off = body + size
		if size%2 == 1 {
			off++
		}
	}

	switch {
	case !haveFmt:
		return clip{}, errors.New("whispercpp: WAV missing fmt chunk")
	case data == nil:
		return clip{}, errors.New("whispercpp: WAV missing data chunk")
	case bitDepth != 16:
		return clip{}, fmt.Errorf("whispercpp: unsupported WAV bit depth %d, want 16", bitDepth)
	case channels < 1:
		return clip{}, fmt.Errorf("whispercpp: invalid WAV channel count %d", channels)
	}

	return clip{
		samples:    pcmToFloat32Mono(data, channels),
		sampleRate: sampleRate,
	}, nil
}

// pcmToFloat32Mono converts 16-bit signed little-endian PCM to mono float32
// samples in [-1.0, 1.0], averaging all channels per frame. A trailing odd
// byte is ignored.
func pcmToFloat32Mono(pcm []byte, channels int) []float32 {
	if channels < 1 {
		channels = 1
	}
	frames := len(pcm) / (2 * channels)
	mono := make([]float32, frames)
	for i := range frames {
		var sum float32
		for ch := range channels {
			idx := (i*channels + ch) * 2
			sample := int16(binary.LittleEndian.Uint16(pcm[idx : idx+2]))
			sum += float32(sample) / 32768.0
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}
