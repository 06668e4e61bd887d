// Package audio turns captured recordings into the canonical clip handed to speech recognition:
// mono, 16-bit signed little-endian PCM in a WAV container.
package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/go-audio/wav"

	"github.com/satriahrh/lafal/domain/entities"
)

const (
	canonicalBitDepth = 16
	canonicalChannels = 1

	wavFormatPCM = 1

	// float samples in [-1, 1] map onto this peak
	floatScale = 32767
)

var (
	ErrUnsupportedFormat = fmt.Errorf("%w: unsupported format", entities.ErrInvalidAudio)
	ErrMisalignedPCM     = fmt.Errorf("%w: pcm payload not aligned", entities.ErrInvalidAudio)
)

// Source is one of the capture shapes accepted by Normalize:
// EncodedSource, FrameSource or FloatSource.
type Source interface {
	isSource()
}

// EncodedSource is an uploaded byte stream in a WAV container
type EncodedSource struct {
	Data []byte
}

// FrameSource is a live capture delivered as ordered interleaved PCM buffers
type FrameSource struct {
	Frames     [][]byte
	SampleRate int
	BitDepth   int
	Channels   int
}

// FloatSource is a block capture of samples in [-1.0, 1.0]
type FloatSource struct {
	Samples    []float32
	SampleRate int
}

func (EncodedSource) isSource() {}
func (FrameSource) isSource()   {}
func (FloatSource) isSource()   {}

// Size returns the number of payload bytes held by the frames
func (f FrameSource) Size() int {
	n := 0
	for _, frame := range f.Frames {
		n += len(frame)
	}
	return n
}

// Normalize converts any capture shape into a canonical clip.
// The sample rate of the capture is kept; nothing is resampled.
func Normalize(src Source) (entities.AudioClip, error) {
	switch s := src.(type) {
	case EncodedSource:
		return normalizeEncoded(s)
	case *EncodedSource:
		return normalizeEncoded(*s)
	case FrameSource:
		return normalizeFrames(s)
	case *FrameSource:
		return normalizeFrames(*s)
	case FloatSource:
		return normalizeFloats(s)
	case *FloatSource:
		return normalizeFloats(*s)
	default:
		return entities.AudioClip{}, fmt.Errorf("%w: source %T", ErrUnsupportedFormat, src)
	}
}

func normalizeEncoded(s EncodedSource) (entities.AudioClip, error) {
	if len(s.Data) == 0 {
		return entities.AudioClip{}, entities.ErrEmptyAudio
	}

	samples, sampleRate, err := DecodeWAV(s.Data)
	if err != nil {
		return entities.AudioClip{}, err
	}
	if len(samples) == 0 {
		return entities.AudioClip{}, entities.ErrEmptyAudio
	}

	return newClip(sampleRate, samples), nil
}

func normalizeFrames(s FrameSource) (entities.AudioClip, error) {
	if s.Size() == 0 {
		return entities.AudioClip{}, entities.ErrEmptyAudio
	}
	if s.SampleRate <= 0 {
		return entities.AudioClip{}, fmt.Errorf("%w: sample rate %d", ErrUnsupportedFormat, s.SampleRate)
	}

	bitDepth := s.BitDepth
	if bitDepth == 0 {
		bitDepth = canonicalBitDepth
	}
	if bitDepth != canonicalBitDepth {
		return entities.AudioClip{}, fmt.Errorf("%w: %d-bit frames", ErrUnsupportedFormat, bitDepth)
	}

	channels := s.Channels
	if channels == 0 {
		channels = canonicalChannels
	}
	if channels < 0 {
		return entities.AudioClip{}, fmt.Errorf("%w: %d channels", ErrUnsupportedFormat, channels)
	}

	// frames are joined in arrival order before any interpretation
	pcm := bytes.Join(s.Frames, nil)
	if len(pcm)%2 != 0 {
		return entities.AudioClip{}, ErrMisalignedPCM
	}

	samples := make([]int, len(pcm)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}

	if channels > 1 {
		if len(samples)%channels != 0 {
			return entities.AudioClip{}, ErrMisalignedPCM
		}
		samples = downmix(samples, channels)
	}

	return newClip(s.SampleRate, samples), nil
}

func normalizeFloats(s FloatSource) (entities.AudioClip, error) {
	if len(s.Samples) == 0 {
		return entities.AudioClip{}, entities.ErrEmptyAudio
	}
	if s.SampleRate <= 0 {
		return entities.AudioClip{}, fmt.Errorf("%w: sample rate %d", ErrUnsupportedFormat, s.SampleRate)
	}

	samples := make([]int, len(s.Samples))
	for i, v := range s.Samples {
		samples[i] = floatToInt16(v)
	}
	return newClip(s.SampleRate, samples), nil
}

// DecodeWAV reads a PCM WAV container and returns mono 16-bit samples with the stated sample rate
func DecodeWAV(data []byte) ([]int, int, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		if err := dec.Err(); err != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
		}
		// headers parsed but the data chunk holds no samples
		if dec.NumChans > 0 && dec.BitDepth >= 8 && dec.SampleRate > 0 {
			return nil, 0, entities.ErrEmptyAudio
		}
		return nil, 0, fmt.Errorf("%w: not a wav file", ErrUnsupportedFormat)
	}
	if dec.WavAudioFormat != wavFormatPCM {
		return nil, 0, fmt.Errorf("%w: wav format tag %d", ErrUnsupportedFormat, dec.WavAudioFormat)
	}
	if dec.SampleRate == 0 {
		return nil, 0, fmt.Errorf("%w: sample rate 0", ErrUnsupportedFormat)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}

	samples, err := rescale(buf.Data, int(dec.BitDepth))
	if err != nil {
		return nil, 0, err
	}

	channels := int(dec.NumChans)
	if channels > 1 {
		samples = downmix(samples[:len(samples)-len(samples)%channels], channels)
	}

	return samples, int(dec.SampleRate), nil
}

// rescale maps integer samples of the given depth onto the signed 16-bit range
func rescale(samples []int, bitDepth int) ([]int, error) {
	out := make([]int, len(samples))
	switch bitDepth {
	case 8:
		// 8-bit wav is unsigned with 128 as silence
		for i, v := range samples {
			out[i] = (v - 128) << 8
		}
	case 16:
		copy(out, samples)
	case 24:
		for i, v := range samples {
			out[i] = v >> 8
		}
	case 32:
		for i, v := range samples {
			out[i] = v >> 16
		}
	default:
		return nil, fmt.Errorf("%w: %d-bit samples", ErrUnsupportedFormat, bitDepth)
	}
	return out, nil
}

// downmix averages each interleaved frame into one sample
func downmix(samples []int, channels int) []int {
	out := make([]int, len(samples)/channels)
	for i := range out {
		sum := 0
		for c := 0; c < channels; c++ {
			sum += samples[i*channels+c]
		}
		out[i] = sum / channels
	}
	return out
}

func floatToInt16(v float32) int {
	f := float64(v)
	if math.IsNaN(f) {
		return 0
	}
	return clamp16(int(math.Round(f * floatScale)))
}

func clamp16(v int) int {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return v
}

func newClip(sampleRate int, samples []int) entities.AudioClip {
	data := make([]byte, len(samples)*2)
	for i, v := range samples {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(int16(clamp16(v))))
	}
	return entities.AudioClip{
		Format:     entities.AudioFormatWAV,
		Channels:   canonicalChannels,
		BitDepth:   canonicalBitDepth,
		SampleRate: sampleRate,
		Data:       data,
	}
}

// IsInvalid reports whether err is a normalization failure other than an empty capture
func IsInvalid(err error) bool {
	return errors.Is(err, entities.ErrInvalidAudio)
}
