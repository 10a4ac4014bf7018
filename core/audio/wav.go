package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const WAVMIMEType = "audio/wav"

var (
	ErrUnsupportedEncoding = errors.New("unsupported audio encoding")
	ErrMisalignedAudio     = errors.New("audio length does not match encoding frame size")
)

// ToWAV wraps raw PCM in a RIFF/WAVE container. Companded formats are
// expanded to 16-bit linear samples first so every player can open the
// result.
func ToWAV(pcm []byte, info EncodingInfo) ([]byte, error) {
	if info.IsZero() {
		return nil, fmt.Errorf("%w: missing sample rate or format", ErrUnsupportedEncoding)
	}

	var samples []byte
	switch info.Format {
	case EncodingLinear16:
		if len(pcm)%(2*info.channels()) != 0 {
			return nil, ErrMisalignedAudio
		}
		samples = pcm
	case EncodingMulaw:
		samples = expand(pcm, mulawToLinear)
	case EncodingALaw:
		samples = expand(pcm, alawToLinear)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEncoding, info.Format.Name())
	}

	channels := info.channels()
	const bitsPerSample = 16
	blockAlign := channels * bitsPerSample / 8

	var buf bytes.Buffer
	buf.Grow(44 + len(samples))
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(36+len(samples)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(&buf, binary.LittleEndian, uint16(channels))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(info.SampleRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(info.SampleRate*blockAlign))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))
	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(samples)))
	buf.Write(samples)
	return buf.Bytes(), nil
}

func expand(companded []byte, decode func(byte) int16) []byte {
	out := make([]byte, 2*len(companded))
	for i, b := range companded {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(decode(b)))
	}
	return out
}

// G.711 decoders.

func mulawToLinear(u byte) int16 {
	u = ^u
	sign := u & 0x80
	exponent := (u >> 4) & 0x07
	mantissa := u & 0x0F
	sample := ((int16(mantissa) << 3) + 0x84) << exponent
	sample -= 0x84
	if sign != 0 {
		return -sample
	}
	return sample
}

func alawToLinear(a byte) int16 {
	a ^= 0x55
	sign := a & 0x80
	exponent := (a >> 4) & 0x07
	mantissa := int16(a & 0x0F)
	var sample int16
	if exponent == 0 {
		sample = (mantissa << 4) + 8
	} else {
		sample = ((mantissa << 4) + 0x108) << (exponent - 1)
	}
	if sign == 0 {
		return -sample
	}
	return sample
}
