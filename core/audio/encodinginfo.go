// Package audio describes raw audio encodings and turns raw PCM produced by
// tools into WAV attachments.
package audio

import "strings"

const (
	DefaultSampleRate = 16000
	DefaultFormat     = "linear16"
)

func GetDefaultEncodingInfo() EncodingInfo {
	return EncodingInfo{SampleRate: DefaultSampleRate, Format: encodingFormat(DefaultFormat)}
}

type EncodingInfo struct {
	SampleRate int
	Format     encodingFormat
	// Channels defaults to mono when zero.
	Channels int
}

func (e EncodingInfo) IsZero() bool {
	return e.SampleRate == 0 || e.Format.Name() == ""
}

func (e EncodingInfo) channels() int {
	if e.Channels <= 0 {
		return 1
	}
	return e.Channels
}

// Duration returns the playback length of size bytes in seconds.
func (e EncodingInfo) Duration(size int) float64 {
	if e.IsZero() || e.Format.ByteSize() <= 0 {
		return 0
	}
	frames := size / (e.Format.ByteSize() * e.channels())
	return float64(frames) / float64(e.SampleRate)
}

func (e EncodingInfo) SilenceValue() byte {
	switch e.Format {
	case EncodingALaw:
		return 0x55
	case EncodingMulaw:
		return 0xFF
	case EncodingLinear16:
		return 0
	}

	return 0
}

type encodingFormat string

// ParseFormat maps names such as "linear16", "pcm_s16le" or "ulaw" to a known
// format. ok is false for anything else.
func ParseFormat(name string) (format encodingFormat, ok bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "linear16", "pcm", "pcm16", "pcm_s16le", "s16le":
		return EncodingLinear16, true
	case "mulaw", "ulaw", "mu-law", "pcm_mulaw":
		return EncodingMulaw, true
	case "alaw", "a-law", "pcm_alaw":
		return EncodingALaw, true
	}
	return "", false
}

func (e encodingFormat) Name() string {
	return string(e)
}

func (e encodingFormat) ByteSize() int {
	switch e {
	case EncodingMulaw, EncodingALaw:
		return 1
	case EncodingLinear16:
		return 2
	}
	return -1
}

const (
	EncodingMulaw    encodingFormat = "mulaw"
	EncodingALaw     encodingFormat = "alaw"
	EncodingLinear16 encodingFormat = "linear16"
)
